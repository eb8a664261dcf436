package logging

import (
	"bytes"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
)

func TestParseLevel(t *testing.T) {
	assert.Equal(t, logrus.DebugLevel, ParseLevel("DEBUG"))
	assert.Equal(t, logrus.WarnLevel, ParseLevel("warning"))
	assert.Equal(t, logrus.ErrorLevel, ParseLevel("error"))
	assert.Equal(t, logrus.InfoLevel, ParseLevel("bogus"))
}

func TestTextLoggerWritesFields(t *testing.T) {
	var buf bytes.Buffer
	l := NewTextLogger("info", &buf)
	l.WithFields(Fields{"step": "invoice"}).Info("started")
	assert.Contains(t, buf.String(), "step=invoice")

	buf.Reset()
	l.Debug("hidden")
	assert.Empty(t, buf.String())
}
