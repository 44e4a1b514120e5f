package storage

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClient_SaveAndRead(t *testing.T) {
	tests := []struct {
		name string
		path string
		data []byte
	}{
		{name: "root_file", path: "/mirror/index.html", data: []byte("<html></html>")},
		{name: "nested_file", path: "/mirror/catalogue/page-1.html", data: []byte("<p>page</p>")},
		{name: "binary_file", path: "/mirror/fonts/icon.woff", data: []byte{0x77, 0x4f, 0x46, 0x46, 0x00, 0xff}},
		{name: "empty_file", path: "/mirror/empty.txt", data: []byte{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := NewMemory()

			require.NoError(t, client.Save(tt.path, tt.data))
			assert.True(t, client.Exists(tt.path))

			got, err := client.ReadFile(tt.path)
			require.NoError(t, err)
			assert.Equal(t, tt.data, got)
		})
	}
}

func TestClient_WriteFileRequiresDirectory(t *testing.T) {
	client := NewOS()
	path := filepath.Join(t.TempDir(), "missing", "dir", "file.css")

	err := client.WriteFile(path, []byte("body{}"))
	assert.Error(t, err)
	assert.False(t, client.Exists(path))
}

func TestClient_EnsureDirIsIdempotent(t *testing.T) {
	client := NewMemory()

	require.NoError(t, client.EnsureDir("/mirror/a/b"))
	require.NoError(t, client.EnsureDir("/mirror/a/b"))
	assert.True(t, client.Exists("/mirror/a/b"))
}

func TestClient_EnsureDirOverFileFails(t *testing.T) {
	client := New(afero.NewOsFs())
	root := t.TempDir()

	filePath := filepath.Join(root, "page")
	require.NoError(t, os.WriteFile(filePath, []byte("x"), 0o644))

	assert.Error(t, client.EnsureDir(filepath.Join(filePath, "child")))
}

func TestClient_OverwriteIsIdempotent(t *testing.T) {
	client := NewMemory()
	path := "/mirror/styles/main.css"

	require.NoError(t, client.Save(path, []byte("body{}")))
	require.NoError(t, client.Save(path, []byte("body{}")))

	got, err := client.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, []byte("body{}"), got)

	entries, err := afero.ReadDir(client.Fs(), "/mirror/styles")
	require.NoError(t, err)
	assert.Len(t, entries, 1, "temporary files must not be left behind")
}

func TestClient_ReadMissing(t *testing.T) {
	client := NewMemory()

	_, err := client.ReadFile("/nope.html")
	assert.Error(t, err)
	assert.False(t, client.Exists("/nope.html"))
}

func TestClient_ConcurrentSavesIntoSameDirectory(t *testing.T) {
	client := NewOS()
	root := t.TempDir()
	const numFiles = 50

	var wg sync.WaitGroup
	errs := make(chan error, numFiles)
	for i := 0; i < numFiles; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			path := filepath.Join(root, "media", "cache", fmt.Sprintf("%d.jpg", i))
			errs <- client.Save(path, []byte(fmt.Sprintf("image-%d", i)))
		}(i)
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		assert.NoError(t, err)
	}

	for i := 0; i < numFiles; i++ {
		got, err := client.ReadFile(filepath.Join(root, "media", "cache", fmt.Sprintf("%d.jpg", i)))
		require.NoError(t, err)
		assert.Equal(t, fmt.Sprintf("image-%d", i), string(got))
	}
}
