package log

import (
	"context"
	"io"
	"log/slog"
	"net/url"
	"regexp"
	"strings"
)

// sensitiveKeys contains attribute keys whose values are always masked.
var sensitiveKeys = map[string]bool{
	// Session identity
	"cookie":     true,
	"cookies":    true,
	"set-cookie": true,
	"proxy":      true,
	"proxy_url":  true,

	// Generic credentials that may appear in customData or headers
	"authorization": true,
	"password":      true,
	"secret":        true,
	"token":         true,
	"api_key":       true,
	"apikey":        true,
	"access_token":  true,
}

// sensitivePatterns match values that look like secrets regardless of
// the attribute key.
var sensitivePatterns = []*regexp.Regexp{
	// Cookie pairs ("name=value; name2=value2")
	regexp.MustCompile(`^[\w.-]+=[^;\s]+(?:;\s*[\w.-]+=[^;\s]+)+$`),

	// Bearer / Basic authorization values
	regexp.MustCompile(`(?i)^(bearer|basic)\s+\S+$`),

	// JWT tokens
	regexp.MustCompile(`^eyJ[A-Za-z0-9_-]*\.eyJ[A-Za-z0-9_-]*\.[A-Za-z0-9_-]*$`),
}

// MaskValue replaces redacted attribute values.
const MaskValue = "***REDACTED***"

// SanitizingHandler wraps an slog.Handler and masks sensitive attribute
// values before delegating.
//
// Design decision: A handler wrapper rather than a custom logger
// because it composes with any underlying handler (text, JSON) and
// keeps call sites on the standard slog API.
type SanitizingHandler struct {
	handler slog.Handler
}

// NewSanitizingHandler wraps handler with redaction. A nil handler
// falls back to slog.Default().Handler().
func NewSanitizingHandler(handler slog.Handler) *SanitizingHandler {
	if handler == nil {
		handler = slog.Default().Handler()
	}
	return &SanitizingHandler{handler: handler}
}

// Enabled delegates to the underlying handler.
func (h *SanitizingHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.handler.Enabled(ctx, level)
}

// Handle masks the record's attributes and delegates.
func (h *SanitizingHandler) Handle(ctx context.Context, r slog.Record) error {
	sanitized := slog.NewRecord(r.Time, r.Level, r.Message, r.PC)
	r.Attrs(func(a slog.Attr) bool {
		sanitized.AddAttrs(h.sanitizeAttr(a))
		return true
	})
	return h.handler.Handle(ctx, sanitized)
}

// WithAttrs returns a handler with the given attributes added, masked.
func (h *SanitizingHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	sanitized := make([]slog.Attr, len(attrs))
	for i, a := range attrs {
		sanitized[i] = h.sanitizeAttr(a)
	}
	return &SanitizingHandler{handler: h.handler.WithAttrs(sanitized)}
}

// WithGroup returns a handler with the given group name.
func (h *SanitizingHandler) WithGroup(name string) slog.Handler {
	return &SanitizingHandler{handler: h.handler.WithGroup(name)}
}

func (h *SanitizingHandler) sanitizeAttr(a slog.Attr) slog.Attr {
	if a.Value.Kind() == slog.KindGroup {
		attrs := a.Value.Group()
		sanitized := make([]slog.Attr, len(attrs))
		for i, ga := range attrs {
			sanitized[i] = h.sanitizeAttr(ga)
		}
		return slog.Attr{Key: a.Key, Value: slog.GroupValue(sanitized...)}
	}

	if sensitiveKeys[strings.ToLower(a.Key)] {
		return slog.String(a.Key, MaskValue)
	}

	if a.Value.Kind() == slog.KindString {
		v := a.Value.String()
		if masked, changed := maskProxyCredentials(v); changed {
			return slog.String(a.Key, masked)
		}
		if isSensitiveValue(v) {
			return slog.String(a.Key, MaskValue)
		}
	}

	return a
}

// maskProxyCredentials strips userinfo from proxy-looking URLs so the
// host remains visible while the credentials do not.
func maskProxyCredentials(v string) (string, bool) {
	if !strings.Contains(v, "@") || !strings.Contains(v, "://") {
		return v, false
	}
	u, err := url.Parse(v)
	if err != nil || u.User == nil {
		return v, false
	}
	u.User = url.User(MaskValue)
	return u.String(), true
}

func isSensitiveValue(v string) bool {
	for _, p := range sensitivePatterns {
		if p.MatchString(v) {
			return true
		}
	}
	return false
}

// NewLogger creates a sanitizing text logger writing to w. Verbose
// selects Debug level, otherwise Warn.
func NewLogger(w io.Writer, verbose bool) *slog.Logger {
	level := slog.LevelWarn
	if verbose {
		level = slog.LevelDebug
	}
	handler := slog.NewTextHandler(w, &slog.HandlerOptions{Level: level})
	return slog.New(NewSanitizingHandler(handler))
}

// NewJSONLogger is NewLogger with JSON output, for log aggregation.
func NewJSONLogger(w io.Writer, verbose bool) *slog.Logger {
	level := slog.LevelWarn
	if verbose {
		level = slog.LevelDebug
	}
	handler := slog.NewJSONHandler(w, &slog.HandlerOptions{Level: level})
	return slog.New(NewSanitizingHandler(handler))
}
