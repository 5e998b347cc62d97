package artifacts

import (
	"archive/tar"
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
)

// Format is an archive encoding.
type Format string

const (
	FormatTarGzip Format = "tar.gz"
	FormatTarZstd Format = "tar.zst"
)

// ParseFormat accepts tar.gz, tgz, gzip, tar.zst, zst and zstd.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "tar.gz", "tgz", "gz", "gzip":
		return FormatTarGzip, nil
	case "tar.zst", "zst", "zstd":
		return FormatTarZstd, nil
	default:
		return "", fmt.Errorf("unknown archive format %q", s)
	}
}

// ContentType returns the media type of the encoded archive.
func (f Format) ContentType() string {
	if f == FormatTarZstd {
		return "application/zstd"
	}
	return "application/gzip"
}

// WriteArchive streams every artifact below root to w as a compressed tar.
// Entries are written in path order with the bytes as stored.
func WriteArchive(ctx context.Context, root string, w io.Writer, format Format) (err error) {
	list, err := List(ctx, root)
	if err != nil {
		return err
	}

	var compressed io.WriteCloser
	switch format {
	case FormatTarGzip:
		compressed = gzip.NewWriter(w)
	case FormatTarZstd:
		zw, err := zstd.NewWriter(w)
		if err != nil {
			return fmt.Errorf("failed to create zstd writer: %w", err)
		}
		compressed = zw
	default:
		return fmt.Errorf("unknown archive format %q", format)
	}

	tw := tar.NewWriter(compressed)
	defer func() {
		if cerr := tw.Close(); err == nil {
			err = cerr
		}
		if cerr := compressed.Close(); err == nil {
			err = cerr
		}
	}()

	for _, a := range list {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := addFile(tw, root, a); err != nil {
			return err
		}
	}
	return nil
}

func addFile(tw *tar.Writer, root string, a Artifact) error {
	path, err := Resolve(root, a.Path)
	if err != nil {
		return err
	}
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return err
	}
	header, err := tar.FileInfoHeader(info, "")
	if err != nil {
		return err
	}
	header.Name = a.Path

	if err := tw.WriteHeader(header); err != nil {
		return err
	}
	if _, err := io.Copy(tw, f); err != nil {
		return fmt.Errorf("failed to archive %s: %w", a.Path, err)
	}
	return nil
}
