package evidence

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCanonicalURL(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{
			name: "lowercases scheme and host",
			in:   "HTTPS://Example.COM/Docs",
			want: "https://example.com/Docs",
		},
		{
			name: "drops fragment",
			in:   "https://example.com/page#section-2",
			want: "https://example.com/page",
		},
		{
			name: "strips tracking params, keeps the rest sorted",
			in:   "https://example.com/a?utm_source=tw&b=2&utm_campaign=x&a=1",
			want: "https://example.com/a?a=1&b=2",
		},
		{
			name: "strips fbclid and gclid",
			in:   "https://example.com/?fbclid=abc&gclid=def&q=go",
			want: "https://example.com?q=go",
		},
		{
			name: "strips trailing slash",
			in:   "https://example.com/docs/",
			want: "https://example.com/docs",
		},
		{
			name: "root slash becomes empty path",
			in:   "https://example.com/",
			want: "https://example.com",
		},
		{
			name: "unparseable input returned trimmed",
			in:   "  not a url  ",
			want: "not a url",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := CanonicalURL(tt.in)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, got, CanonicalURL(got), "canonicalization must be idempotent")
		})
	}
}
