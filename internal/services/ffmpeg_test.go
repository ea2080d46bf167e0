package services

import (
	"context"
	"errors"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"
)

func TestParseResolution(t *testing.T) {
	cases := []struct {
		in   string
		want Resolution
	}{
		{"1080x1920", Resolution{1080, 1920}},
		{" 1920X1080 ", Resolution{1920, 1080}},
		{"721x1281", Resolution{720, 1280}},
		{"", DefaultResolution},
		{"wide", DefaultResolution},
		{"0x100", DefaultResolution},
	}

	for _, c := range cases {
		if got := ParseResolution(c.in); got != c.want {
			t.Errorf("ParseResolution(%q) = %v, want %v", c.in, got, c.want)
		}
	}
}

func TestCommandErrorKeepsStderrTail(t *testing.T) {
	cause := errors.New("exit status 1")
	long := strings.Repeat("x", 5000) + "Invalid data found when processing input"

	err := &CommandError{Op: "concatenate", Err: cause, Stderr: tail(long, stderrTailBytes)}

	if !errors.Is(err, cause) {
		t.Error("expected CommandError to unwrap to its cause")
	}
	if !strings.HasSuffix(err.Error(), "Invalid data found when processing input") {
		t.Errorf("diagnostic lost the end of stderr: %q", err.Error()[len(err.Error())-60:])
	}
	if len(err.Stderr) > stderrTailBytes+3 {
		t.Errorf("stderr tail not truncated: %d bytes", len(err.Stderr))
	}
}

func TestFinalizeRejectsNonPositiveDuration(t *testing.T) {
	s := NewFFmpegService(FFmpegOptions{})
	if err := s.FinalizeVideo(context.Background(), "in.mp4", "", "out.mp4", 0); err == nil {
		t.Fatal("expected error for zero duration")
	}
}

func TestFinalizeMissingMusic(t *testing.T) {
	s := NewFFmpegService(FFmpegOptions{})
	err := s.FinalizeVideo(context.Background(), "in.mp4", filepath.Join(t.TempDir(), "none.mp3"), "out.mp4", 10)
	if err == nil {
		t.Fatal("expected error for missing music file")
	}
}

func TestConcatenateRequiresClips(t *testing.T) {
	s := NewFFmpegService(FFmpegOptions{})
	if err := s.ConcatenateClips(context.Background(), nil, "out.mp4"); err == nil {
		t.Fatal("expected error for empty clip list")
	}
}

// skipIfNoFFmpeg skips the test if ffmpeg is not available
func skipIfNoFFmpeg(t *testing.T) {
	t.Helper()
	if _, err := exec.LookPath("ffmpeg"); err != nil {
		t.Skip("ffmpeg not found in PATH")
	}
	if _, err := exec.LookPath("ffprobe"); err != nil {
		t.Skip("ffprobe not found in PATH")
	}
}

// makeClip renders a short synthetic clip with ffmpeg's lavfi sources.
func makeClip(t *testing.T, path string, seconds string, size string, withAudio bool) {
	t.Helper()

	args := []string{"-hide_banner", "-loglevel", "error", "-y",
		"-f", "lavfi", "-i", "testsrc=size=" + size + ":rate=25:duration=" + seconds}
	if withAudio {
		args = append(args, "-f", "lavfi", "-i", "sine=frequency=440:duration="+seconds)
	}
	args = append(args, "-c:v", "libx264", "-pix_fmt", "yuv420p")
	if withAudio {
		args = append(args, "-c:a", "aac")
	}
	args = append(args, path)

	if out, err := exec.Command("ffmpeg", args...).CombinedOutput(); err != nil {
		t.Fatalf("failed to create test clip: %v: %s", err, out)
	}
}

func TestConcatenateAndFinalizeIntegration(t *testing.T) {
	skipIfNoFFmpeg(t)

	dir := t.TempDir()
	s := NewFFmpegService(FFmpegOptions{Resolution: Resolution{320, 240}})
	ctx := context.Background()

	intro := filepath.Join(dir, "intro.mp4")
	product := filepath.Join(dir, "product.mov")
	outro := filepath.Join(dir, "outro.mp4")
	makeClip(t, intro, "2", "320x240", true)
	makeClip(t, product, "2", "640x360", false)
	makeClip(t, outro, "2", "240x320", true)

	concat := filepath.Join(dir, "concat.mp4")
	if err := s.ConcatenateClips(ctx, []string{intro, product, outro}, concat); err != nil {
		t.Fatalf("ConcatenateClips: %v", err)
	}

	ms, err := s.GetVideoDuration(ctx, concat)
	if err != nil {
		t.Fatalf("GetVideoDuration: %v", err)
	}
	if ms < 5500 || ms > 6500 {
		t.Errorf("expected ~6s concatenation, got %dms", ms)
	}

	final := filepath.Join(dir, "final.mp4")
	if err := s.FinalizeVideo(ctx, concat, "", final, 4); err != nil {
		t.Fatalf("FinalizeVideo: %v", err)
	}

	ms, err = s.GetVideoDuration(ctx, final)
	if err != nil {
		t.Fatalf("GetVideoDuration: %v", err)
	}
	if ms < 3800 || ms > 4200 {
		t.Errorf("expected ~4s final video, got %dms", ms)
	}
}

func TestFinalizeWithMusicStopsAtShorterInput(t *testing.T) {
	skipIfNoFFmpeg(t)

	dir := t.TempDir()
	s := NewFFmpegService(FFmpegOptions{Resolution: Resolution{320, 240}})
	ctx := context.Background()

	video := filepath.Join(dir, "video.mp4")
	makeClip(t, video, "5", "320x240", true)

	music := filepath.Join(dir, "music.wav")
	out, err := exec.Command("ffmpeg", "-hide_banner", "-loglevel", "error", "-y",
		"-f", "lavfi", "-i", "sine=frequency=220:duration=3", music).CombinedOutput()
	if err != nil {
		t.Fatalf("failed to create music: %v: %s", err, out)
	}

	final := filepath.Join(dir, "final.mp4")
	if err := s.FinalizeVideo(ctx, video, music, final, 10); err != nil {
		t.Fatalf("FinalizeVideo: %v", err)
	}

	ms, err := s.GetVideoDuration(ctx, final)
	if err != nil {
		t.Fatalf("GetVideoDuration: %v", err)
	}
	if ms > 3500 {
		t.Errorf("expected output to stop with the 3s music, got %dms", ms)
	}

	if _, err := os.Stat(final); err != nil {
		t.Fatalf("final output missing: %v", err)
	}
}
