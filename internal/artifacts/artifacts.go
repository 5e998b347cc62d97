package artifacts

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"mime"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/charlievieth/fastwalk"
	"github.com/gabriel-vasile/mimetype"
	"github.com/saintfish/chardet"
	"golang.org/x/net/html/charset"
)

var (
	ErrNoOutput    = errors.New("no output folder")
	ErrOutsideRoot = errors.New("path escapes output folder")
	ErrNotFile     = errors.New("not a regular file")
)

// MaxTextSize bounds text artifacts transcoded in memory. Larger files are
// served as stored.
const MaxTextSize = 16 << 20

// Artifact is one file below an output folder.
type Artifact struct {
	Path    string    `json:"path"`
	Size    int64     `json:"size"`
	ModTime time.Time `json:"modTime"`
	MIME    string    `json:"mime"`
}

// List returns every regular file below root, sorted by path.
func List(ctx context.Context, root string) ([]Artifact, error) {
	if root == "" {
		return nil, ErrNoOutput
	}

	var (
		mu  sync.Mutex
		out []Artifact
	)

	// fastwalk calls fn from several goroutines
	conf := fastwalk.Config{Follow: false}
	err := fastwalk.Walk(&conf, root, func(path string, d fs.DirEntry, err error) error {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if err != nil {
			if path == root {
				return err
			}
			return nil
		}
		if !d.Type().IsRegular() {
			return nil
		}

		info, err := d.Info()
		if err != nil {
			return nil
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return nil
		}

		a := Artifact{
			Path:    filepath.ToSlash(rel),
			Size:    info.Size(),
			ModTime: info.ModTime(),
			MIME:    "application/octet-stream",
		}
		if mt, err := mimetype.DetectFile(path); err == nil {
			a.MIME = mt.String()
		}

		mu.Lock()
		out = append(out, a)
		mu.Unlock()
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list %s: %w", root, err)
	}

	slices.SortFunc(out, func(a, b Artifact) int { return strings.Compare(a.Path, b.Path) })
	return out, nil
}

// Resolve maps a slash-separated path relative to root onto the
// filesystem, refusing anything outside root.
func Resolve(root, rel string) (string, error) {
	if root == "" {
		return "", ErrNoOutput
	}
	rel = filepath.FromSlash(strings.TrimPrefix(rel, "/"))
	if rel == "" || !filepath.IsLocal(rel) {
		return "", fmt.Errorf("%w: %q", ErrOutsideRoot, rel)
	}
	return filepath.Join(root, rel), nil
}

// File is an opened artifact.
type File struct {
	io.ReadCloser
	MIME string
	Size int64
}

// Open opens the artifact at rel. Text artifacts are transcoded to UTF-8.
func Open(root, rel string) (*File, error) {
	path, err := Resolve(root, rel)
	if err != nil {
		return nil, err
	}

	info, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	if !info.Mode().IsRegular() {
		return nil, fmt.Errorf("%w: %s", ErrNotFile, rel)
	}

	mt, err := mimetype.DetectFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to detect type of %s: %w", rel, err)
	}

	if strings.HasPrefix(mt.String(), "text/") && info.Size() <= MaxTextSize {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		text := ToUTF8(data, mediaCharset(mt.String()))
		mediaType, _, _ := mime.ParseMediaType(mt.String())
		return &File{
			ReadCloser: io.NopCloser(bytes.NewReader(text)),
			MIME:       mediaType + "; charset=utf-8",
			Size:       int64(len(text)),
		}, nil
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	return &File{ReadCloser: f, MIME: mt.String(), Size: info.Size()}, nil
}

func mediaCharset(contentType string) string {
	_, params, err := mime.ParseMediaType(contentType)
	if err != nil {
		return ""
	}
	return params["charset"]
}

var utf8BOM = []byte("\xEF\xBB\xBF")

// ToUTF8 decodes data from label, or from the detected charset when label
// is empty, and returns UTF-8 without a byte order mark. Data that cannot
// be decoded is returned unchanged.
func ToUTF8(data []byte, label string) []byte {
	label = strings.ToLower(label)
	if label == "" || label == "utf-8" {
		if utf8.Valid(data) {
			return bytes.TrimPrefix(data, utf8BOM)
		}
		label = DetectCharset(data)
	}

	r, err := charset.NewReaderLabel(label, bytes.NewReader(data))
	if err != nil {
		return data
	}
	out, err := io.ReadAll(r)
	if err != nil {
		return data
	}
	return bytes.TrimPrefix(out, utf8BOM)
}

// DetectCharset guesses the character set of data.
func DetectCharset(data []byte) string {
	result, err := chardet.NewTextDetector().DetectBest(data)
	if err != nil || result == nil {
		return "utf-8"
	}
	return strings.ToLower(result.Charset)
}
