package agent

import (
	"encoding/json"
	"regexp"
	"strings"
)

// Call is a tool invocation found in a model reply.
type Call struct {
	Name string
	Args map[string]any
}

// Parser finds <tool_call>{...}</tool_call> blocks. The literal tool name is
// accepted as the tag too, since models tend to use it.
type Parser struct {
	known map[string]bool
	block *regexp.Regexp
	tags  *regexp.Regexp
	name  *regexp.Regexp
}

// NewParser builds a parser for the given tool names.
func NewParser(names []string) *Parser {
	known := make(map[string]bool, len(names))
	alts := []string{"tool_call"}
	for _, n := range names {
		known[n] = true
		alts = append(alts, regexp.QuoteMeta(n))
	}
	tag := "(?:" + strings.Join(alts, "|") + ")"
	return &Parser{
		known: known,
		block: regexp.MustCompile(`(?s)<` + tag + `>\s*(\{.*?\})\s*</` + tag + `>`),
		tags:  regexp.MustCompile(`</?` + tag + `>`),
		name:  regexp.MustCompile(`"name"\s*:\s*"([^"]+)"`),
	}
}

// Parse returns the first tool call in content. A block whose JSON is broken
// still yields a call with empty arguments when it names a known tool. A
// missing block, an unknown name or an unreadable block yields false.
func (p *Parser) Parse(content string) (Call, bool) {
	m := p.block.FindStringSubmatch(content)
	if m == nil {
		return Call{}, false
	}
	raw := m[1]

	var data map[string]any
	if err := json.Unmarshal([]byte(raw), &data); err != nil {
		if nm := p.name.FindStringSubmatch(raw); nm != nil && p.known[nm[1]] {
			return Call{Name: nm[1], Args: map[string]any{}}, true
		}
		return Call{}, false
	}

	name, _ := data["name"].(string)
	if !p.known[name] {
		return Call{}, false
	}
	argsRaw, ok := data["arguments"]
	if !ok {
		argsRaw = data["parameters"]
	}
	args, ok := argsRaw.(map[string]any)
	if !ok {
		args = map[string]any{}
	}
	return Call{Name: name, Args: args}, true
}

// Clean strips stray tool tags from a final answer.
func (p *Parser) Clean(content string) string {
	return strings.TrimSpace(p.tags.ReplaceAllString(content, ""))
}
