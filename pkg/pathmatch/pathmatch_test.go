package pathmatch

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPatternMatch(t *testing.T) {
	tests := []struct {
		pattern string
		path    string
		want    bool
	}{
		{"/app/*", "/app/home", true},
		{"/app/*", "/app/a/b", false},
		{"/app/*", "/app", false},
		{"/app/**", "/app", true},
		{"/app/**", "/app/a/b/c", true},
		{"/app/**", "/other", false},
		{"/**", "/", true},
		{"/**", "/anything/at/all", true},
		{"/exact", "/exact", true},
		{"/exact", "/exact/more", false},
		{"/api/*/items", "/api/v1/items", true},
		{"/api/*/items", "/api/v1/v2/items", false},
		{"/api/**/items", "/api/a/b/items", true},
		{"/api/**/items", "/api/items", true},
		// Leading slash is optional in patterns.
		{"app/*", "/app/home", true},
	}
	for _, tt := range tests {
		t.Run(tt.pattern+" vs "+tt.path, func(t *testing.T) {
			assert.Equal(t, tt.want, Compile(tt.pattern).Match(tt.path))
		})
	}
}

func TestSetMatch(t *testing.T) {
	set := CompileSet([]string{"/app/**", "/admin/*"})

	assert.True(t, set.Match("/app/x/y"))
	assert.True(t, set.Match("/admin/panel"))
	assert.False(t, set.Match("/public"))
	assert.False(t, set.Match("/admin/panel/deep"))
}
