package archive

import (
	"archive/zip"
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"strings"

	"github.com/bobarin/clipmix/internal/models"
)

var ErrPackaging = errors.New("packaging error")

// Package writes every artifact that still exists into a zip at dest, in the
// given order. Missing artifacts are skipped with a warning since rendering
// and packaging can be far apart in time. An archive with no entries is valid.
// Only failure to create or write the container itself is an error.
func Package(ctx context.Context, artifacts []string, dest string) (*models.Archive, error) {
	if err := os.MkdirAll(filepath.Dir(dest), 0755); err != nil {
		return nil, fmt.Errorf("%w: failed to create archive dir: %v", ErrPackaging, err)
	}

	// Build next to dest and rename so a half-written zip is never served
	tmp, err := os.CreateTemp(filepath.Dir(dest), ".archive-*.zip")
	if err != nil {
		return nil, fmt.Errorf("%w: failed to create archive: %v", ErrPackaging, err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	result := &models.Archive{Path: dest, Entries: []string{}}
	zw := zip.NewWriter(tmp)
	names := make(map[string]int)

	for _, path := range artifacts {
		if err := ctx.Err(); err != nil {
			zw.Close()
			tmp.Close()
			return nil, fmt.Errorf("%w: %v", ErrPackaging, err)
		}

		src, err := os.Open(path)
		if err != nil {
			log.Printf("[Archive] Warning: skipping %s: %v", path, err)
			result.Skipped = append(result.Skipped, path)
			continue
		}

		name := entryName(filepath.Base(path), names)
		err = addEntry(zw, name, src)
		src.Close()
		if err != nil {
			zw.Close()
			tmp.Close()
			return nil, fmt.Errorf("%w: failed to add %s: %v", ErrPackaging, name, err)
		}

		result.Entries = append(result.Entries, name)
	}

	if err := zw.Close(); err != nil {
		tmp.Close()
		return nil, fmt.Errorf("%w: failed to finish archive: %v", ErrPackaging, err)
	}
	if err := tmp.Close(); err != nil {
		return nil, fmt.Errorf("%w: failed to close archive: %v", ErrPackaging, err)
	}
	if err := os.Rename(tmpPath, dest); err != nil {
		return nil, fmt.Errorf("%w: failed to move archive into place: %v", ErrPackaging, err)
	}

	if info, err := os.Stat(dest); err == nil {
		result.ByteSize = info.Size()
	}

	log.Printf("[Archive] Packaged %d entries into %s (%d skipped)", len(result.Entries), filepath.Base(dest), len(result.Skipped))
	return result, nil
}

// addEntry stores the file without compression; mp4 payloads don't deflate.
func addEntry(zw *zip.Writer, name string, src *os.File) error {
	info, err := src.Stat()
	if err != nil {
		return err
	}

	header, err := zip.FileInfoHeader(info)
	if err != nil {
		return err
	}
	header.Name = name
	header.Method = zip.Store

	w, err := zw.CreateHeader(header)
	if err != nil {
		return err
	}
	_, err = io.Copy(w, src)
	return err
}

// entryName keeps the artifact's base name, adding -2, -3... on collisions.
// A suffixed name that is itself taken moves on to the next counter.
func entryName(base string, seen map[string]int) string {
	seen[base]++
	if seen[base] == 1 {
		return base
	}
	ext := filepath.Ext(base)
	stem := strings.TrimSuffix(base, ext)
	for n := seen[base]; ; n++ {
		name := fmt.Sprintf("%s-%d%s", stem, n, ext)
		if seen[name] == 0 {
			seen[name]++
			seen[base] = n
			return name
		}
	}
}
