// Package invoice turns an electricity bill into a models.Invoice with the
// help of a chat model. JSON documents are normalized directly, the text
// layer of a PDF goes the same way as plain text.
package invoice

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/ledongthuc/pdf"

	"github.com/kanna-karuppasamy/energy-cost-analyzer/internal/llm"
	"github.com/kanna-karuppasamy/energy-cost-analyzer/internal/logging"
	"github.com/kanna-karuppasamy/energy-cost-analyzer/internal/models"
)

const maxTextChars = 4000

var (
	ErrUnsupportedFormat = errors.New("unsupported invoice format")
	ErrIncomplete        = errors.New("invoice has neither an energy price nor a consumption")
)

// Extractor reads invoice fields from raw document bytes.
type Extractor interface {
	Extract(ctx context.Context, data []byte, mimeHint string) (models.Invoice, error)
}

// ExtractFile reads path and extracts it with the MIME type guessed from the name and content.
func ExtractFile(ctx context.Context, ex Extractor, path string) (models.Invoice, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return models.Invoice{}, fmt.Errorf("read invoice: %w", err)
	}
	return ex.Extract(ctx, data, DetectMIME(path, data))
}

var extensionMIME = map[string]string{
	".json": "application/json",
	".txt":  "text/plain",
	".text": "text/plain",
	".pdf":  "application/pdf",
	".png":  "image/png",
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".webp": "image/webp",
	".gif":  "image/gif",
}

// DetectMIME prefers the file extension and sniffs the content otherwise.
func DetectMIME(path string, data []byte) string {
	if m, ok := extensionMIME[strings.ToLower(filepath.Ext(path))]; ok {
		return m
	}
	return http.DetectContentType(data)
}

// LLMExtractor sends text to the chat model and pictures to the vision model.
type LLMExtractor struct {
	chat   llm.Provider
	vision llm.Provider
	logger logging.Logger
}

// NewLLMExtractor creates an extractor. A nil vision provider means chat is used for images too.
func NewLLMExtractor(chat, vision llm.Provider, logger logging.Logger) *LLMExtractor {
	if vision == nil {
		vision = chat
	}
	if logger == nil {
		logger = logging.Discard()
	}
	return &LLMExtractor{chat: chat, vision: vision, logger: logger}
}

func (e *LLMExtractor) Extract(ctx context.Context, data []byte, mimeHint string) (models.Invoice, error) {
	mime := strings.ToLower(strings.TrimSpace(strings.SplitN(mimeHint, ";", 2)[0]))
	log := e.logger.WithFields(logging.Fields{"mime": mime, "bytes": len(data)})

	var raw map[string]any
	switch {
	case mime == "application/json":
		if err := json.Unmarshal(data, &raw); err != nil {
			return models.Invoice{}, fmt.Errorf("decode invoice json: %w", err)
		}
	case mime == "application/pdf":
		text, err := pdfText(data)
		if err != nil {
			return models.Invoice{}, err
		}
		if raw, err = e.extractText(ctx, text, log); err != nil {
			return models.Invoice{}, err
		}
	case strings.HasPrefix(mime, "text/"):
		var err error
		if raw, err = e.extractText(ctx, string(data), log); err != nil {
			return models.Invoice{}, err
		}
	case strings.HasPrefix(mime, "image/"):
		reply, err := e.vision.Chat(ctx, []llm.Message{
			{Role: llm.RoleUser, Content: extractionPrompt, Images: []llm.Image{{MIME: mime, Data: data}}},
		})
		if err != nil {
			return models.Invoice{}, fmt.Errorf("extract invoice image: %w", err)
		}
		if raw, err = ParseJSONReply(reply); err != nil {
			return models.Invoice{}, err
		}
	default:
		return models.Invoice{}, fmt.Errorf("%w: %s", ErrUnsupportedFormat, mime)
	}

	inv := Normalize(raw)
	if inv.EnergyPriceCtKWh <= 0 && inv.AnnualKWh <= 0 {
		return models.Invoice{}, ErrIncomplete
	}
	log.WithFields(logging.Fields{
		"supplier":    inv.Supplier,
		"price_ct":    inv.EnergyPriceCtKWh,
		"annual_kwh":  inv.AnnualKWh,
		"postal_code": inv.PostalCode,
	}).Info("invoice extracted")
	return inv, nil
}

func (e *LLMExtractor) extractText(ctx context.Context, text string, log logging.Entry) (map[string]any, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, fmt.Errorf("%w: empty text", ErrUnsupportedFormat)
	}
	if len(text) > maxTextChars {
		text = text[:maxTextChars]
		log.Info("invoice text truncated")
	}
	reply, err := e.chat.Chat(ctx, []llm.Message{
		{Role: llm.RoleUser, Content: "Here is the text of an Austrian electricity invoice:\n\n" + text},
		{Role: llm.RoleAssistant, Content: "I have read the invoice text. What should I do with it?"},
		{Role: llm.RoleUser, Content: extractionPrompt},
	})
	if err != nil {
		return nil, fmt.Errorf("extract invoice text: %w", err)
	}
	return ParseJSONReply(reply)
}

// pdfText returns the text layer of a PDF. Scanned documents without one
// yield ErrUnsupportedFormat.
func pdfText(data []byte) (text string, err error) {
	// the parser panics on some malformed files
	defer func() {
		if p := recover(); p != nil {
			text, err = "", fmt.Errorf("%w: unreadable pdf: %v", ErrUnsupportedFormat, p)
		}
	}()
	r, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", fmt.Errorf("%w: unreadable pdf: %v", ErrUnsupportedFormat, err)
	}
	plain, err := r.GetPlainText()
	if err != nil {
		return "", fmt.Errorf("%w: unreadable pdf: %v", ErrUnsupportedFormat, err)
	}
	b, err := io.ReadAll(plain)
	if err != nil {
		return "", fmt.Errorf("read pdf text: %w", err)
	}
	if strings.TrimSpace(string(b)) == "" {
		return "", fmt.Errorf("%w: pdf has no text layer", ErrUnsupportedFormat)
	}
	return string(b), nil
}

const extractionPrompt = "Extract the following fields from this Austrian electricity invoice. " +
	"Reply ONLY with a JSON object, no text before or after it.\n\n" +
	"```json\n" +
	`{
  "lieferant": "name of the electricity supplier",
  "tarif_name": "name of the tariff",
  "energiepreis_ct_kwh": 0.0,
  "grundgebuehr_eur_monat": 0.0,
  "jahresverbrauch_kwh": 0.0,
  "plz": "0000",
  "zaehlpunkt": "AT00...",
  "netzkosten_eur_jahr": 0.0
}` + "\n```\n\n" +
	"Rules:\n" +
	"- energiepreis_ct_kwh is the energy price in CENT per kWh, gross (including 20% VAT)\n" +
	"- grundgebuehr_eur_monat is the base fee in EURO per MONTH, gross. Divide a yearly fee by 12.\n" +
	"- jahresverbrauch_kwh is the consumption of the billing period in kWh, projected to 365 days if shorter\n" +
	"- numbers as decimals (19.68, not \"19,68\")\n" +
	"- use 0 for missing numbers and \"\" for missing strings\n"
