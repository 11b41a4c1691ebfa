package audit

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/SHESHU45/UrumiAssignment/internal/model"
)

type mockWriter struct {
	AppendAuditFn func(ctx context.Context, entry model.AuditEntry) (model.AuditEntry, error)
	entries       []model.AuditEntry
}

func (m *mockWriter) AppendAudit(ctx context.Context, entry model.AuditEntry) (model.AuditEntry, error) {
	m.entries = append(m.entries, entry)
	if m.AppendAuditFn != nil {
		return m.AppendAuditFn(ctx, entry)
	}
	return entry, nil
}

func splitJSONLines(t *testing.T, raw string) []map[string]any {
	t.Helper()
	var out []map[string]any
	for _, line := range strings.Split(strings.TrimSpace(raw), "\n") {
		if strings.TrimSpace(line) == "" {
			continue
		}
		entry := map[string]any{}
		require.NoError(t, json.Unmarshal([]byte(line), &entry))
		out = append(out, entry)
	}
	return out
}

func TestLoggerRecord_PersistsAndLogs(t *testing.T) {
	var buf bytes.Buffer
	writer := &mockWriter{}
	auditLogger := NewLogger(writer, zerolog.New(&buf))

	err := auditLogger.Record(context.Background(), Entry{
		StoreID:   "abc12345",
		Action:    model.AuditActionCreateStore,
		Details:   map[string]any{"name": "acme", "engine": "woocommerce", "namespace": "store-abc12345"},
		IPAddress: "10.0.0.7",
	})
	require.NoError(t, err)

	require.Len(t, writer.entries, 1)
	persisted := writer.entries[0]
	require.Equal(t, "abc12345", persisted.StoreID)
	require.Equal(t, model.AuditActionCreateStore, persisted.Action)
	require.Equal(t, "10.0.0.7", persisted.IPAddress)
	require.JSONEq(t, `{"name":"acme","engine":"woocommerce","namespace":"store-abc12345"}`, string(persisted.Details))

	lines := splitJSONLines(t, buf.String())
	require.Len(t, lines, 1)
	require.Equal(t, "audit", lines[0]["component"])
	require.Equal(t, "store_platform.audit", lines[0]["event"])
	require.Equal(t, model.AuditActionCreateStore, lines[0]["action"])
	require.Equal(t, "info", lines[0]["level"])
}

func TestLoggerRecord_WriteFailureIsReturnedAndLogged(t *testing.T) {
	var buf bytes.Buffer
	writer := &mockWriter{AppendAuditFn: func(ctx context.Context, entry model.AuditEntry) (model.AuditEntry, error) {
		return model.AuditEntry{}, errors.New("database is locked")
	}}
	auditLogger := NewLogger(writer, zerolog.New(&buf))

	err := auditLogger.Record(context.Background(), Entry{Action: "POST /api/stores"})
	require.Error(t, err)
	require.Contains(t, err.Error(), "database is locked")

	lines := splitJSONLines(t, buf.String())
	require.Len(t, lines, 1)
	require.Equal(t, "error", lines[0]["level"])
	require.Nil(t, writer.entries[0].Details)
}

func TestLoggerRecord_NilLoggerIsNoop(t *testing.T) {
	var auditLogger *Logger
	require.NoError(t, auditLogger.Record(context.Background(), Entry{Action: "x"}))
}

func TestRedactSensitiveText_RedactsTokenLikeSegments(t *testing.T) {
	raw := "request failed: Authorization: Bearer abc.def.ghi token=xyz123 password=hunter2"
	redacted := RedactSensitiveText(raw)

	require.NotContains(t, redacted, "abc.def.ghi")
	require.NotContains(t, redacted, "xyz123")
	require.NotContains(t, redacted, "hunter2")
	require.Contains(t, redacted, "token=[REDACTED]")
	require.Contains(t, redacted, "password=[REDACTED]")
}

func TestRedactSensitiveText_RedactsJSONFragments(t *testing.T) {
	redacted := RedactSensitiveText(`helm said {"adminPassword": "s3cr3t", "host": "acme"}`)

	require.NotContains(t, redacted, "s3cr3t")
	require.Contains(t, redacted, `"adminPassword": "[REDACTED]"`)
	require.Contains(t, redacted, `"host": "acme"`)
}

func TestRedactBody(t *testing.T) {
	t.Run("json object", func(t *testing.T) {
		redacted := RedactBody([]byte(`{"name":"acme","engine":"woocommerce","nested":{"apiToken":"t-1"},"list":[{"password":"p"}]}`))
		encoded, err := json.Marshal(redacted)
		require.NoError(t, err)
		require.JSONEq(t, `{"name":"acme","engine":"woocommerce","nested":{"apiToken":"[REDACTED]"},"list":[{"password":"[REDACTED]"}]}`, string(encoded))
	})

	t.Run("plain text", func(t *testing.T) {
		require.Equal(t, "secret=[REDACTED]", RedactBody([]byte("secret=abc")))
	})

	t.Run("empty", func(t *testing.T) {
		require.Nil(t, RedactBody(nil))
		require.Nil(t, RedactBody([]byte("   ")))
	})
}
