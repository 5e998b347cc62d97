package http

import (
	"archive/tar"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"testing"

	"github.com/klauspost/compress/gzip"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// "café" as UTF-16LE with a byte order mark
var utf16Cafe = []byte{0xFF, 0xFE, 'c', 0, 'a', 0, 'f', 0, 0xE9, 0}

func artifactServer(t *testing.T) (*testServer, string) {
	t.Helper()
	ts := newTestServer(t)
	ts.output = t.TempDir()

	require.NoError(t, os.MkdirAll(filepath.Join(ts.output, "Run 1"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(ts.output, "instruments.log"), []byte("Instruments Trace Complete\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(ts.output, "Run 1", "results.txt"), utf16Cafe, 0o644))

	return ts, ts.create(t)
}

func TestListArtifacts(t *testing.T) {
	ts, id := artifactServer(t)

	w, resp := ts.do(t, http.MethodGet, "/wd/hub/session/"+id+"/artifacts", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	list, ok := resp.Value.([]interface{})
	require.True(t, ok)
	require.Len(t, list, 2)
	assert.Equal(t, "Run 1/results.txt", list[0].(map[string]interface{})["path"])
	assert.Equal(t, "instruments.log", list[1].(map[string]interface{})["path"])
}

func TestListArtifactsArchive(t *testing.T) {
	ts, id := artifactServer(t)

	w, _ := ts.do(t, http.MethodGet, "/wd/hub/session/"+id+"/artifacts?archive=tar.gz", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "application/gzip", w.Header().Get("Content-Type"))
	assert.Contains(t, w.Header().Get("Content-Disposition"), id+".tar.gz")

	zr, err := gzip.NewReader(w.Body)
	require.NoError(t, err)
	tr := tar.NewReader(zr)

	var names []string
	for {
		h, err := tr.Next()
		if err == io.EOF {
			break
		}
		require.NoError(t, err)
		names = append(names, h.Name)
	}
	assert.Equal(t, []string{"Run 1/results.txt", "instruments.log"}, names)

	w, resp := ts.do(t, http.MethodGet, "/wd/hub/session/"+id+"/artifacts?archive=rar", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, StatusUnknownCommand, resp.Status)
}

func TestGetArtifact(t *testing.T) {
	ts, id := artifactServer(t)
	base := "/wd/hub/session/" + id + "/artifact/"

	w, _ := ts.do(t, http.MethodGet, base+"Run%201/results.txt", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "café", w.Body.String())
	assert.Equal(t, "text/plain; charset=utf-8", w.Header().Get("Content-Type"))
	assert.Equal(t, id, w.Header().Get("X-Session-ID"))

	w, resp := ts.do(t, http.MethodGet, base+"missing.log", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, StatusUnknownError, resp.Status)

	w, _ = ts.do(t, http.MethodGet, base+"Run%201", nil)
	assert.Equal(t, http.StatusNotFound, w.Code, "directories are not served")
}

func TestGetArtifactOutsideOutput(t *testing.T) {
	ts, id := artifactServer(t)

	// gin matches the decoded path without cleaning it
	w, resp := ts.do(t, http.MethodGet, "/wd/hub/session/"+id+"/artifact/%2e%2e/secret", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, StatusUnknownCommand, resp.Status)
}

func TestArtifactsWithoutOutput(t *testing.T) {
	ts := newTestServer(t)
	ts.output = ""
	id := ts.create(t)

	w, _ := ts.do(t, http.MethodGet, "/wd/hub/session/"+id+"/artifacts", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w, _ = ts.do(t, http.MethodGet, "/wd/hub/session/"+id+"/artifacts?archive=zstd", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}
