package crawler

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Harvey-AU/site-mirror/internal/util"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		tag      string
		attr     string
		expected Role
		ok       bool
	}{
		{"link", "href", RoleStylesheet, true},
		{"LINK", "HREF", RoleStylesheet, true},
		{"script", "src", RoleScript, true},
		{"img", "src", RoleImage, true},
		{"a", "href", RolePage, true},
		{"img", "srcset", 0, false},
		{"iframe", "src", 0, false},
		{"a", "title", 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.tag+"_"+tt.attr, func(t *testing.T) {
			role, ok := Classify(tt.tag, tt.attr)
			assert.Equal(t, tt.ok, ok)
			if tt.ok {
				assert.Equal(t, tt.expected, role)
			}
		})
	}
}

func TestResolveTarget(t *testing.T) {
	base := "https://example.test/catalogue/index.html"

	tests := []struct {
		name     string
		href     string
		role     Role
		expected string
	}{
		{"sibling", "page-2.html", RolePage, "https://example.test/catalogue/page-2.html"},
		{"parent", "../static/main.css", RoleStylesheet, "https://example.test/static/main.css"},
		{"root_relative", "/media/cover.jpg", RoleImage, "https://example.test/media/cover.jpg"},
		{"scheme_relative", "//cdn.example.test/app.js", RoleScript, "https://cdn.example.test/app.js"},
		{"absolute", "https://example.test/about", RolePage, "https://example.test/about"},
		{"fragment_dropped", "page-3.html#reviews", RolePage, "https://example.test/catalogue/page-3.html"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			target, err := ResolveTarget(tt.href, base, tt.role)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, target.URL)
			assert.Equal(t, tt.role, target.Role)
		})
	}
}

func TestResolveTargetInvalid(t *testing.T) {
	_, err := ResolveTarget("   ", "https://example.test/", RolePage)
	assert.ErrorIs(t, err, util.ErrInvalidURL)
}

func TestRoleString(t *testing.T) {
	assert.Equal(t, "page", RolePage.String())
	assert.Equal(t, "stylesheet", RoleStylesheet.String())
	assert.Equal(t, "script", RoleScript.String())
	assert.Equal(t, "image", RoleImage.String())
	assert.Equal(t, "css_asset", RoleCSSAsset.String())
	assert.Equal(t, "unknown", Role(42).String())
}
