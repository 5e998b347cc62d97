package artifacts

import (
	"archive/tar"
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var pngHeader = []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR\x00\x00\x00\x01\x00\x00\x00\x01\x08\x02\x00\x00\x00")

// utf16le encodes ASCII s as UTF-16LE with a byte order mark.
func utf16le(s string) []byte {
	out := []byte{0xFF, 0xFE}
	for _, r := range s {
		out = append(out, byte(r), 0)
	}
	return out
}

func outputFolder(t *testing.T) string {
	t.Helper()
	root := t.TempDir()
	files := map[string][]byte{
		"instruments.log":               []byte("Instruments Trace Complete\n"),
		"Run 1/Screenshot 1.png":        pngHeader,
		"Run 1/Automation Results.txt":  utf16le("Pass: login"),
		"trace.trace/instrument_data/x": []byte{0, 1, 2, 3},
	}
	for name, data := range files {
		path := filepath.Join(root, filepath.FromSlash(name))
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, data, 0o644))
	}
	return root
}

func TestList(t *testing.T) {
	root := outputFolder(t)

	list, err := List(context.Background(), root)
	require.NoError(t, err)

	paths := make([]string, 0, len(list))
	for _, a := range list {
		paths = append(paths, a.Path)
	}
	assert.Equal(t, []string{
		"Run 1/Automation Results.txt",
		"Run 1/Screenshot 1.png",
		"instruments.log",
		"trace.trace/instrument_data/x",
	}, paths)

	assert.Equal(t, "image/png", list[1].MIME)
	assert.True(t, strings.HasPrefix(list[2].MIME, "text/plain"))
	assert.Equal(t, int64(len("Instruments Trace Complete\n")), list[2].Size)
}

func TestListWithoutOutput(t *testing.T) {
	_, err := List(context.Background(), "")
	assert.ErrorIs(t, err, ErrNoOutput)

	_, err = List(context.Background(), filepath.Join(t.TempDir(), "missing"))
	assert.Error(t, err)
}

func TestResolve(t *testing.T) {
	root := "/tmp/out"

	tests := []struct {
		rel     string
		want    string
		wantErr bool
	}{
		{rel: "instruments.log", want: "/tmp/out/instruments.log"},
		{rel: "/Run 1/Screenshot 1.png", want: "/tmp/out/Run 1/Screenshot 1.png"},
		{rel: "../etc/passwd", wantErr: true},
		{rel: "Run 1/../../secret", wantErr: true},
		{rel: "", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.rel, func(t *testing.T) {
			got, err := Resolve(root, tt.rel)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrOutsideRoot)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, filepath.FromSlash(tt.want), got)
		})
	}
}

func TestOpenTranscodesText(t *testing.T) {
	root := outputFolder(t)

	f, err := Open(root, "Run 1/Automation Results.txt")
	require.NoError(t, err)
	defer f.Close()

	data, err := io.ReadAll(f)
	require.NoError(t, err)
	assert.Equal(t, "Pass: login", string(data))
	assert.Equal(t, "text/plain; charset=utf-8", f.MIME)
}

func TestOpenBinary(t *testing.T) {
	root := outputFolder(t)

	f, err := Open(root, "Run 1/Screenshot 1.png")
	require.NoError(t, err)
	defer f.Close()

	data, err := io.ReadAll(f)
	require.NoError(t, err)
	assert.Equal(t, pngHeader, data)
	assert.Equal(t, "image/png", f.MIME)
	assert.Equal(t, int64(len(pngHeader)), f.Size)

	_, err = Open(root, "Run 1")
	assert.ErrorIs(t, err, ErrNotFile)

	_, err = Open(root, "nope.txt")
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestToUTF8(t *testing.T) {
	assert.Equal(t, []byte("plain"), ToUTF8([]byte("plain"), ""))
	assert.Equal(t, []byte("bom"), ToUTF8([]byte("\xEF\xBB\xBFbom"), "utf-8"))
	assert.Equal(t, "hi", string(ToUTF8(utf16le("hi"), "utf-16le")))
	assert.Equal(t, "café", string(ToUTF8([]byte("caf\xe9"), "iso-8859-1")))
}

func readTar(t *testing.T, r io.Reader) map[string][]byte {
	t.Helper()
	out := make(map[string][]byte)
	tr := tar.NewReader(r)
	for {
		h, err := tr.Next()
		if err == io.EOF {
			return out
		}
		require.NoError(t, err)
		data, err := io.ReadAll(tr)
		require.NoError(t, err)
		out[h.Name] = data
	}
}

func TestWriteArchive(t *testing.T) {
	root := outputFolder(t)

	t.Run("tar.gz", func(t *testing.T) {
		var buf bytes.Buffer
		require.NoError(t, WriteArchive(context.Background(), root, &buf, FormatTarGzip))

		zr, err := gzip.NewReader(&buf)
		require.NoError(t, err)
		entries := readTar(t, zr)
		assert.Len(t, entries, 4)
		assert.Equal(t, pngHeader, entries["Run 1/Screenshot 1.png"])
		assert.Equal(t, utf16le("Pass: login"), entries["Run 1/Automation Results.txt"], "archives keep stored bytes")
	})

	t.Run("tar.zst", func(t *testing.T) {
		var buf bytes.Buffer
		require.NoError(t, WriteArchive(context.Background(), root, &buf, FormatTarZstd))

		zr, err := zstd.NewReader(&buf)
		require.NoError(t, err)
		defer zr.Close()
		entries := readTar(t, zr)
		assert.Equal(t, []byte("Instruments Trace Complete\n"), entries["instruments.log"])
	})

	t.Run("cancelled", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		assert.Error(t, WriteArchive(ctx, root, io.Discard, FormatTarGzip))
	})
}

func TestParseFormat(t *testing.T) {
	for in, want := range map[string]Format{
		"tar.gz":  FormatTarGzip,
		"TGZ":     FormatTarGzip,
		"zstd":    FormatTarZstd,
		"tar.zst": FormatTarZstd,
	} {
		got, err := ParseFormat(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}

	_, err := ParseFormat("rar")
	assert.Error(t, err)
	assert.Equal(t, "application/zstd", FormatTarZstd.ContentType())
	assert.Equal(t, "application/gzip", FormatTarGzip.ContentType())
}
