package fetch

import (
	"archive/zip"
	"context"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const indexHTML = `<!DOCTYPE html>
<html><body>
<h1>Archive listing</h1>
<table>
<tr><td><a href="avall.zip">avall.zip</a></td></tr>
<tr><td><a href="/avdata/up01JAN.zip?dl=1">up01JAN.zip</a></td></tr>
<tr><td><a href="https://example.com/avdata/up08JAN25.zip">up08JAN25.zip</a></td></tr>
<tr><td><a href="readme.txt">readme.txt</a></td></tr>
<tr><td><a href="avall.zip">avall.zip (duplicate link)</a></td></tr>
</table>
</body></html>`

func newTestClient(t *testing.T, handler http.Handler) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewClient(srv.URL, filepath.Join(t.TempDir(), "temp"), testLogger(t))
}

func testLogger(t *testing.T) *log.Logger {
	t.Helper()
	return log.New(io.Discard, "", 0)
}

func TestListArchivesScrapesZipLinks(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(indexHTML))
	}))

	names, err := client.ListArchives(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"avall.zip", "up01JAN.zip", "up08JAN25.zip"}, names)
}

func TestListArchivesTransportError(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))

	_, err := client.ListArchives(context.Background())
	require.ErrorIs(t, err, ErrTransport)
}

func TestDownload(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/up01JAN.zip":
			_, _ = w.Write([]byte("zip-bytes"))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	ctx := context.Background()

	path, err := client.Download(ctx, "up01JAN.zip")
	require.NoError(t, err)
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "zip-bytes", string(data))

	_, err = client.Download(ctx, "up99XXX.zip")
	require.ErrorIs(t, err, ErrNotFound)
}

// Downloads must be free to stream a multi-hundred-MB snapshot for as
// long as it takes: connection setup and first byte are bounded, the
// body read is bounded only by the caller's context.
func TestClientHasNoWholeRequestDeadline(t *testing.T) {
	client := NewClient("http://unused", t.TempDir(), testLogger(t))

	assert.Zero(t, client.http.Timeout)

	tr, ok := client.http.Transport.(*http.Transport)
	require.True(t, ok)
	assert.NotZero(t, tr.ResponseHeaderTimeout)
}

func TestExtractMDB(t *testing.T) {
	tempDir := filepath.Join(t.TempDir(), "temp")
	require.NoError(t, os.MkdirAll(tempDir, 0755))
	client := NewClient("http://unused", tempDir, testLogger(t))

	zipPath := filepath.Join(tempDir, "avall.zip")
	writeZip(t, zipPath, map[string]string{
		"readme.txt": "ignore me",
		"avall.mdb":  "mdb-bytes",
	})

	mdbPath, err := client.ExtractMDB(zipPath)
	require.NoError(t, err)
	assert.Equal(t, "avall.mdb", filepath.Base(mdbPath))

	data, err := os.ReadFile(mdbPath)
	require.NoError(t, err)
	assert.Equal(t, "mdb-bytes", string(data))
}

func TestExtractMDBMissingEntry(t *testing.T) {
	tempDir := filepath.Join(t.TempDir(), "temp")
	require.NoError(t, os.MkdirAll(tempDir, 0755))
	client := NewClient("http://unused", tempDir, testLogger(t))

	zipPath := filepath.Join(tempDir, "empty.zip")
	writeZip(t, zipPath, map[string]string{"readme.txt": "no database here"})

	_, err := client.ExtractMDB(zipPath)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no .mdb")
}

func TestIsUpdateArchive(t *testing.T) {
	tests := []struct {
		name string
		want bool
	}{
		{"up01JAN.zip", true},
		{"up08FEB25.zip", true},
		{"UP08FEB25.ZIP", true},
		{"avall.zip", false},
		{"up1JAN.zip", false},
		{"update.zip", false},
		{"up01JAN.tar", false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, IsUpdateArchive(tt.name), "IsUpdateArchive(%q)", tt.name)
	}
}

func TestCleanTempDir(t *testing.T) {
	tempDir := filepath.Join(t.TempDir(), "temp")
	require.NoError(t, os.MkdirAll(tempDir, 0755))
	client := NewClient("http://unused", tempDir, testLogger(t))

	require.NoError(t, os.WriteFile(filepath.Join(tempDir, "a.zip"), []byte("a"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(tempDir, "b.mdb"), []byte("b"), 0644))

	deleted, err := client.CleanTempDir()
	require.NoError(t, err)
	assert.Equal(t, 2, deleted)

	// Missing dir is fine.
	missing := NewClient("http://unused", filepath.Join(t.TempDir(), "nope"), testLogger(t))
	deleted, err = missing.CleanTempDir()
	require.NoError(t, err)
	assert.Zero(t, deleted)
}

func writeZip(t *testing.T, path string, entries map[string]string) {
	t.Helper()
	f, err := os.Create(path)
	require.NoError(t, err)
	zw := zip.NewWriter(f)
	for name, content := range entries {
		w, err := zw.Create(name)
		require.NoError(t, err)
		_, err = w.Write([]byte(content))
		require.NoError(t, err)
	}
	require.NoError(t, zw.Close())
	require.NoError(t, f.Close())
}
