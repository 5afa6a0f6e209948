package common

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizePath(t *testing.T) {
	tests := []struct {
		name string
		path string
		want string
	}{
		{"numeric id", "/users/42/profile", "/users/*/profile"},
		{"uuid", "/items/550e8400-e29b-41d4-a716-446655440000", "/items/*"},
		{"long alphanumeric", "/files/a1b2c3d4e5f6g7h8i9j0k1/raw", "/files/*/raw"},
		{"short alphanumeric kept", "/v1/users/me", "/v1/users/me"},
		{"nineteen chars kept", "/x/abcdefghij123456789", "/x/abcdefghij123456789"},
		{"mixed with dash kept", "/blog/my-first-post", "/blog/my-first-post"},
		{"trailing slash", "/users/123/", "/users/*/"},
		{"root", "/", "/"},
		{"empty", "", "/"},
		{"multiple ids", "/orgs/7/repos/99/issues", "/orgs/*/repos/*/issues"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, NormalizePath(tt.path))
		})
	}
}

func TestNormalizePath_Idempotent(t *testing.T) {
	paths := []string{
		"/users/42/profile",
		"/items/550e8400-e29b-41d4-a716-446655440000",
		"/a/b/c",
		"/files/a1b2c3d4e5f6g7h8i9j0k1/raw",
	}

	for _, p := range paths {
		once := NormalizePath(p)
		assert.Equal(t, once, NormalizePath(once), "path %s", p)
	}
}
