package log

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"
)

func TestRedactingHandler(t *testing.T) {
	tests := []struct {
		name     string
		attrs    []slog.Attr
		expected map[string]string
	}{
		{
			name: "negotiation secrets are redacted",
			attrs: []slog.Attr{
				slog.String("password", "secret123"),
				slog.String("proof_token", "abcdef"),
				slog.String("authenticator", "xyz"),
				slog.String("username", "alice"), // safe
			},
			expected: map[string]string{
				"password":      "[REDACTED]",
				"proof_token":   "[REDACTED]",
				"authenticator": "[REDACTED]",
				"username":      "alice",
			},
		},
		{
			name: "case insensitive matching",
			attrs: []slog.Attr{
				slog.String("UserPassword", "secret"),
				slog.String("CombinedHash", "xyz"),
			},
			expected: map[string]string{
				"UserPassword": "[REDACTED]",
				"CombinedHash": "[REDACTED]",
			},
		},
		{
			name: "sizes are kept",
			attrs: []slog.Attr{
				slog.Int("proof_len", 32),
				slog.String("context_token", "urn:uuid:1"),
			},
			expected: map[string]string{
				"context_token": "urn:uuid:1",
			},
		},
		{
			name: "nested groups are redacted",
			attrs: []slog.Attr{
				slog.Group("credential",
					slog.String("secret", "hidden"),
					slog.String("username", "visible"),
				),
			},
			expected: map[string]string{
				"credential.secret":   "[REDACTED]",
				"credential.username": "visible",
			},
		},
		{
			name: "log valuers are resolved",
			attrs: []slog.Attr{
				slog.Any("session", sessionValue{id: "urn:uuid:2", secret: "hidden"}),
			},
			expected: map[string]string{
				"session.id":     "urn:uuid:2",
				"session.secret": "[REDACTED]",
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			h := NewRedactingHandler(slog.NewJSONHandler(&buf, nil))
			logger := slog.New(h)

			// Log with attributes
			args := make([]any, len(tt.attrs))
			for i, a := range tt.attrs {
				args[i] = a
			}
			logger.Info("test message", args...)

			// Parse result
			var result map[string]any
			if err := json.Unmarshal(buf.Bytes(), &result); err != nil {
				t.Fatalf("failed to parse log output: %v", err)
			}

			// Verify expectations
			for k, v := range tt.expected {
				parts := strings.Split(k, ".")
				var val any = result
				var found bool

				// Traverse json map to find key
				for i, part := range parts {
					m, ok := val.(map[string]any)
					if !ok {
						break
					}
					val, ok = m[part]
					if !ok {
						break
					}
					if i == len(parts)-1 {
						found = true
					}
				}

				if !found {
					t.Errorf("key %s not found in output", k)
					continue
				}

				if val != v {
					t.Errorf("key %s: got %v, want %v", k, val, v)
				}
			}
		})
	}
}

type sessionValue struct {
	id, secret string
}

func (s sessionValue) LogValue() slog.Value {
	return slog.GroupValue(slog.String("id", s.id), slog.String("secret", s.secret))
}

func TestIsSensitiveKey(t *testing.T) {
	tests := map[string]bool{
		"secret":      true,
		"nonce":       true,
		"CipherValue": true,
		"token_len":   false,
		"proof_len":   false,
		"endpoint":    false,
		"request":     false,
		"keytab_path": true,
		"session_key": true,
		"response":    false,
	}
	for key, want := range tests {
		if got := IsSensitiveKey(key); got != want {
			t.Errorf("IsSensitiveKey(%q) = %v, want %v", key, got, want)
		}
	}
}

func TestRedactingHandler_WithAttrs(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(NewRedactingHandler(slog.NewJSONHandler(&buf, nil))).
		With("secret", "hunter2").
		WithGroup("negotiation")
	logger.Info("step", "nonce", "abc", "leg", 2)

	out := buf.String()
	if strings.Contains(out, "hunter2") || strings.Contains(out, `"abc"`) {
		t.Errorf("secret leaked: %s", out)
	}
	if !strings.Contains(out, `"leg":2`) {
		t.Errorf("missing safe attribute: %s", out)
	}
}
