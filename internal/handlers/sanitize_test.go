package handlers_test

import (
	"testing"

	"github.com/serroba/keythrottle/internal/handlers"
	"github.com/stretchr/testify/assert"
)

func TestSanitizeKey(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"plain key unchanged", "user:42", "user:42"},
		{"trims whitespace", "  user:42\n", "user:42"},
		{"drops null and escape", "us\x00er\x1b:42", "user:42"},
		{"keeps inner tab", "a\tb", "a\tb"},
		{"composes to NFC", "cafe\u0301", "caf\u00e9"},
		{"only controls becomes empty", "\x01\x02 ", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, handlers.SanitizeKey(tt.in))
		})
	}
}
