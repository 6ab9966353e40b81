package auth

import (
	"net/http"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestExtractToken(t *testing.T) {
	tests := []struct {
		name   string
		header string
		input  url.Values
		want   string
		found  bool
	}{
		{name: "bearer", header: "Bearer abc", want: "abc", found: true},
		{name: "bearer lowercase", header: "bearer abc", want: "abc", found: true},
		{name: "token scheme", header: "Token abc", want: "abc", found: true},
		{name: "unknown scheme falls back to input", header: "Basic Zm9v", input: url.Values{"token": {"xyz"}}, want: "xyz", found: true},
		{name: "input only", input: url.Values{"token": {"xyz"}}, want: "xyz", found: true},
		{name: "scheme without value", header: "Bearer ", found: false},
		{name: "nothing", found: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := http.Header{}
			if tt.header != "" {
				h.Set("Authorization", tt.header)
			}
			got, found := ExtractToken(h, tt.input)
			assert.Equal(t, tt.found, found)
			assert.Equal(t, tt.want, got)
		})
	}
}
