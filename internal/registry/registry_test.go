package registry

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/bobarin/clipmix/internal/models"
)

type fakeProber struct {
	ms  int
	err error
}

func (p fakeProber) GetVideoDuration(ctx context.Context, path string) (int, error) {
	return p.ms, p.err
}

func TestIngestStoresClip(t *testing.T) {
	reg, err := New(t.TempDir(), Options{Prober: fakeProber{ms: 6500}})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	ref, err := reg.Ingest(context.Background(), strings.NewReader("video bytes"), "intro.MP4", models.RoleIntro)
	if err != nil {
		t.Fatalf("Ingest: %v", err)
	}

	data, err := os.ReadFile(ref.Path)
	if err != nil {
		t.Fatalf("stored file not readable: %v", err)
	}
	if string(data) != "video bytes" {
		t.Errorf("unexpected stored content %q", data)
	}
	if ref.Role != models.RoleIntro || ref.Filename != "intro.MP4" {
		t.Errorf("unexpected ref %+v", ref)
	}
	if ref.DurationSec == nil || *ref.DurationSec != 6.5 {
		t.Errorf("expected duration 6.5s, got %v", ref.DurationSec)
	}
}

func TestIngestRejectsUnsupportedFormat(t *testing.T) {
	reg, err := New(t.TempDir(), Options{})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	cases := []struct {
		filename string
		role     models.Role
	}{
		{"clip.avi", models.RoleProduct},
		{"song.mp3", models.RoleOutro},
		{"clip.mp4", models.RoleMusic},
	}

	for _, c := range cases {
		if _, err := reg.Ingest(context.Background(), strings.NewReader("x"), c.filename, c.role); !errors.Is(err, ErrUnsupportedFormat) {
			t.Errorf("%s as %s: expected ErrUnsupportedFormat, got %v", c.filename, c.role, err)
		}
	}
}

func TestIngestTooLargeLeavesNothingBehind(t *testing.T) {
	dir := t.TempDir()
	reg, err := New(dir, Options{MaxUploadBytes: 4})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	_, err = reg.Ingest(context.Background(), strings.NewReader("too many bytes"), "p.mov", models.RoleProduct)
	if !errors.Is(err, ErrTooLarge) {
		t.Fatalf("expected ErrTooLarge, got %v", err)
	}

	entries, _ := os.ReadDir(filepath.Join(dir, string(models.RoleProduct)))
	if len(entries) != 0 {
		t.Errorf("expected no files after rejected upload, found %d", len(entries))
	}
}

type failingReader struct{}

func (failingReader) Read(p []byte) (int, error) {
	return 0, errors.New("connection reset")
}

func TestIngestWriteFailureIsStorageError(t *testing.T) {
	dir := t.TempDir()
	reg, err := New(dir, Options{})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	first, err := reg.Ingest(context.Background(), strings.NewReader("ok"), "a.mp4", models.RoleIntro)
	if err != nil {
		t.Fatalf("Ingest: %v", err)
	}

	if _, err := reg.Ingest(context.Background(), failingReader{}, "b.mp4", models.RoleIntro); !errors.Is(err, ErrStorage) {
		t.Fatalf("expected ErrStorage, got %v", err)
	}

	// Earlier clips stay intact
	if data, err := os.ReadFile(first.Path); err != nil || string(data) != "ok" {
		t.Errorf("previously ingested clip damaged: %q, %v", data, err)
	}
	entries, _ := os.ReadDir(filepath.Join(dir, string(models.RoleIntro)))
	if len(entries) != 1 {
		t.Errorf("expected 1 stored intro, found %d", len(entries))
	}
}

func TestAdmit(t *testing.T) {
	reg, err := New(t.TempDir(), Options{MaxClipsPerRole: 2})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	if err := reg.Admit(models.RoleIntro, 1); err != nil {
		t.Errorf("expected admit at 1, got %v", err)
	}
	if err := reg.Admit(models.RoleIntro, 2); !errors.Is(err, ErrPoolFull) {
		t.Errorf("expected ErrPoolFull at 2, got %v", err)
	}
	if err := reg.Admit(models.RoleMusic, 5); err != nil {
		t.Errorf("music is always admitted, got %v", err)
	}
}
