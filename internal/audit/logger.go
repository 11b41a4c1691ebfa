// Package audit records operator actions in the audit trail and redacts
// secrets from free text before it is persisted or logged.
package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/rs/zerolog"

	"github.com/SHESHU45/UrumiAssignment/internal/model"
)

const (
	redactedValue  = "[REDACTED]"
	maxTextDetails = 2048
)

var (
	bearerTokenPattern  = regexp.MustCompile(`(?i)\bBearer\s+[A-Za-z0-9\-._~+/]+=*`)
	keyValuePattern     = regexp.MustCompile(`(?i)\b(token|secret|password|authorization)\s*[:=]\s*([^\s,;]+)`)
	jsonKeyValuePattern = regexp.MustCompile(`(?i)("[a-z_]*(?:token|secret|password|authorization)[a-z_]*"\s*:\s*)"[^"]*"`)
)

// Writer persists audit entries.
type Writer interface {
	AppendAudit(ctx context.Context, entry model.AuditEntry) (model.AuditEntry, error)
}

// Entry is one audit record before persistence.
type Entry struct {
	StoreID   string
	Action    string
	Details   map[string]any
	IPAddress string
}

// Logger writes audit entries to the repository and mirrors them to the
// structured log.
type Logger struct {
	writer Writer
	logger zerolog.Logger
}

// NewLogger creates an audit logger.
func NewLogger(writer Writer, logger zerolog.Logger) *Logger {
	return &Logger{
		writer: writer,
		logger: logger.With().Str("component", "audit").Logger(),
	}
}

// Record persists one audit entry. Failures are logged and returned; they
// never abort the action being audited.
func (l *Logger) Record(ctx context.Context, entry Entry) error {
	if l == nil || l.writer == nil {
		return nil
	}

	action := strings.TrimSpace(entry.Action)
	if action == "" {
		action = "unknown"
	}

	var details []byte
	if len(entry.Details) > 0 {
		encoded, err := json.Marshal(entry.Details)
		if err != nil {
			return fmt.Errorf("encoding audit details: %w", err)
		}
		details = encoded
	}

	_, err := l.writer.AppendAudit(ctx, model.AuditEntry{
		StoreID:   strings.TrimSpace(entry.StoreID),
		Action:    action,
		Details:   details,
		IPAddress: strings.TrimSpace(entry.IPAddress),
	})

	event := l.logger.Info()
	if err != nil {
		event = l.logger.Error().Err(err)
	}
	event.
		Str("event", "store_platform.audit").
		Str("action", action).
		Str("store_id", entry.StoreID).
		Str("ip", entry.IPAddress).
		Msg("audit entry")

	if err != nil {
		return fmt.Errorf("appending audit entry: %w", err)
	}
	return nil
}

// RedactSensitiveText removes obvious secrets from free text.
func RedactSensitiveText(raw string) string {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return ""
	}

	redacted := jsonKeyValuePattern.ReplaceAllString(trimmed, `${1}"`+redactedValue+`"`)
	redacted = bearerTokenPattern.ReplaceAllString(redacted, "Bearer "+redactedValue)
	redacted = keyValuePattern.ReplaceAllStringFunc(redacted, func(match string) string {
		if strings.Contains(match, `"`) {
			return match
		}
		parts := strings.SplitN(match, ":", 2)
		if len(parts) == 2 {
			return fmt.Sprintf("%s: %s", strings.TrimSpace(parts[0]), redactedValue)
		}
		parts = strings.SplitN(match, "=", 2)
		if len(parts) == 2 {
			return fmt.Sprintf("%s=%s", strings.TrimSpace(parts[0]), redactedValue)
		}
		return redactedValue
	})
	return redacted
}

// RedactBody turns a request body into an audit-safe value. JSON objects have
// sensitive keys masked at any depth; anything else is redacted as text and
// truncated.
func RedactBody(body []byte) any {
	trimmed := strings.TrimSpace(string(body))
	if trimmed == "" {
		return nil
	}

	var decoded any
	if err := json.Unmarshal([]byte(trimmed), &decoded); err == nil {
		return redactValue(decoded)
	}

	text := RedactSensitiveText(trimmed)
	if len(text) > maxTextDetails {
		text = text[:maxTextDetails]
	}
	return text
}

func redactValue(value any) any {
	switch typed := value.(type) {
	case map[string]any:
		out := make(map[string]any, len(typed))
		for key, item := range typed {
			if isSensitiveKey(key) {
				out[key] = redactedValue
				continue
			}
			out[key] = redactValue(item)
		}
		return out
	case []any:
		out := make([]any, len(typed))
		for i, item := range typed {
			out[i] = redactValue(item)
		}
		return out
	case string:
		return RedactSensitiveText(typed)
	default:
		return typed
	}
}

func isSensitiveKey(key string) bool {
	lower := strings.ToLower(key)
	for _, marker := range []string{"password", "secret", "token", "authorization", "credential"} {
		if strings.Contains(lower, marker) {
			return true
		}
	}
	return false
}
