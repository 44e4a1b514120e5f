package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Harvey-AU/site-mirror/internal/mirror"
	"github.com/Harvey-AU/site-mirror/internal/testutil"
)

func TestParseOTLPHeaders(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected map[string]string
	}{
		{"empty", "", map[string]string{}},
		{"single", "authorization=Bearer abc", map[string]string{"authorization": "Bearer abc"}},
		{"multiple_with_spaces", " a=1 , b = 2 ", map[string]string{"a": "1", "b": "2"}},
		{"malformed_pairs_skipped", "novalue,=x,c=3", map[string]string{"c": "3"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, parseOTLPHeaders(tt.input))
		})
	}
}

func TestLoadSettingsDefaults(t *testing.T) {
	v := viper.New()
	newRootCmd(v)

	s, err := loadSettings(v)
	require.NoError(t, err)

	assert.Equal(t, "./mirror", s.Output)
	assert.Equal(t, mirror.DefaultConfig(), s.Traversal)
	assert.Equal(t, 8, s.Crawler.MaxConcurrency)
	assert.Equal(t, 30*time.Second, s.Crawler.RequestTimeout)
}

func TestLoadSettingsFromFlagsAndEnv(t *testing.T) {
	t.Setenv("MIRROR_MAX_DEPTH", "3")
	t.Setenv("MIRROR_CSS_ASSET_BASE", "/static/")

	v := viper.New()
	cmd := newRootCmd(v)
	require.NoError(t, cmd.ParseFlags([]string{
		"--output", "out",
		"--concurrency", "2",
		"--timeout", "5s",
		"--same-host-only=false",
	}))

	s, err := loadSettings(v)
	require.NoError(t, err)

	assert.Equal(t, "out", s.Output)
	assert.Equal(t, 3, s.Traversal.MaxDepth)
	assert.Equal(t, "/static/", s.Traversal.CSSAssetBase)
	assert.False(t, s.Traversal.SameHostOnly)
	assert.Equal(t, 2, s.Crawler.MaxConcurrency)
	assert.Equal(t, 5*time.Second, s.Crawler.RequestTimeout)
}

func TestLoadSettingsRejectsNegativeDepth(t *testing.T) {
	t.Setenv("MIRROR_MAX_DEPTH", "-1")

	v := viper.New()
	newRootCmd(v)

	_, err := loadSettings(v)
	assert.Error(t, err)
}

func TestRootCommandMirrorsSite(t *testing.T) {
	site := testutil.NewSite(t, map[string]testutil.Route{
		"/": {
			ContentType: "text/html",
			Body: `<html><head><link rel="stylesheet" href="css/site.css"></head><body>` +
				`<div class="side_categories"><a href="catalogue/index.html">Catalogue</a></div></body></html>`,
		},
		"/css/site.css":         {ContentType: "text/css", Body: "body{}"},
		"/catalogue/index.html": {ContentType: "text/html", Body: "<html><body><section>books</section></body></html>"},
	})
	out := filepath.Join(t.TempDir(), "site")

	var stdout bytes.Buffer
	cmd := newRootCmd(viper.New())
	cmd.SetOut(&stdout)
	cmd.SetArgs([]string{site.URL("/"), "--output", out, "--concurrency", "2"})

	require.NoError(t, cmd.Execute())

	for _, rel := range []string{"index.html", "css/site.css", "catalogue/index.html", mirror.SummaryFile} {
		_, err := os.Stat(filepath.Join(out, filepath.FromSlash(rel)))
		assert.NoError(t, err, "expected %s in mirror", rel)
	}
	assert.Contains(t, stdout.String(), "Pages persisted:      2")
	assert.Contains(t, stdout.String(), "Resources downloaded: 1")
}

func TestRootCommandSeedFailure(t *testing.T) {
	site := testutil.NewSite(t, map[string]testutil.Route{})

	var stdout bytes.Buffer
	cmd := newRootCmd(viper.New())
	cmd.SetOut(&stdout)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{site.URL("/"), "--output", t.TempDir()})

	err := cmd.Execute()
	require.Error(t, err)

	var ce *mirror.CrawlError
	assert.ErrorAs(t, err, &ce)
	assert.Contains(t, stdout.String(), "Pages persisted:      0")
}

func TestRootCommandRequiresSeed(t *testing.T) {
	cmd := newRootCmd(viper.New())
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{})

	assert.Error(t, cmd.Execute())
}
