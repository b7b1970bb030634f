package logger

import (
	"io"
	"regexp"
)

const redactedMark = "[REDACTED]"

// defaultRedactionPatterns cover the secrets this process actually handles:
// provider API keys, bearer tokens, and the usual password/secret spill.
var defaultRedactionPatterns = []string{
	`sk-ant-[a-zA-Z0-9_-]{20,}`,
	`sk-[a-zA-Z0-9_-]{20,}`,
	`Bearer\s+[a-zA-Z0-9._-]+`,
	`password["\s:=]+[^\s"]+`,
	`pwd["\s:=]+[^\s"]+`,
	`token["\s:=]+[a-zA-Z0-9._-]{20,}`,
	`secret["\s:=]+[^\s"]+`,
}

// Redactor scrubs sensitive values out of log output before it ever
// reaches a sink.
type Redactor struct {
	patterns []*regexp.Regexp
}

// NewRedactor builds a redactor with the default pattern set.
func NewRedactor() *Redactor {
	r := &Redactor{}
	for _, p := range defaultRedactionPatterns {
		r.patterns = append(r.patterns, regexp.MustCompile(p))
	}
	return r
}

// AddPattern registers an extra redaction pattern.
func (r *Redactor) AddPattern(pattern string) error {
	re, err := regexp.Compile(pattern)
	if err != nil {
		return err
	}
	r.patterns = append(r.patterns, re)
	return nil
}

// Redact replaces every pattern match in s with the redaction mark.
func (r *Redactor) Redact(s string) string {
	for _, pattern := range r.patterns {
		s = pattern.ReplaceAllString(s, redactedMark)
	}
	return s
}

// Wrap returns a writer that redacts everything written through it.
func (r *Redactor) Wrap(w io.Writer) io.Writer {
	return &redactingWriter{writer: w, redactor: r}
}

type redactingWriter struct {
	writer   io.Writer
	redactor *Redactor
}

func (w *redactingWriter) Write(p []byte) (n int, err error) {
	return w.writer.Write([]byte(w.redactor.Redact(string(p))))
}
