// Package logger provides log output helpers, including a secret-masking writer.
package logger

import (
	"io"
	"regexp"
)

var redactPatterns = []struct {
	re          *regexp.Regexp
	replacement []byte
}{
	// Code::Stats machine tokens are signed Phoenix tokens; the base64
	// header "SFMyNTY" is a stable prefix.
	{regexp.MustCompile(`SFMyNTY[A-Za-z0-9._\-]+`), []byte("[REDACTED-API-TOKEN]")},
	// The token header, in case a request dump ends up in the logs.
	{regexp.MustCompile(`(?i)x-api-token[:=]\s*[A-Za-z0-9._~+/\-]+=*`), []byte("X-API-Token: [REDACTED]")},
}

type RedactWriter struct{ w io.Writer }

func NewRedactWriter(w io.Writer) *RedactWriter { return &RedactWriter{w: w} }

func (r *RedactWriter) Write(p []byte) (int, error) {
	out := p
	for _, pat := range redactPatterns {
		out = pat.re.ReplaceAllLiteral(out, pat.replacement)
	}
	_, err := r.w.Write(out)
	return len(p), err
}
