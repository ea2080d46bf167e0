package services

import (
	"bytes"
	"context"
	"fmt"
	"log"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
)

// Output / encoding constants. Every variation is re-encoded to the same
// codec pair so clips recorded on different devices line up.
const (
	videoCodec   = "libx264"
	audioCodec   = "aac"
	audioBitrate = "192k"
	audioRate    = 48000
	videoFPS     = 30
	videoCRF     = 23
	videoPreset  = "medium"

	// Stderr kept on a failed command for the per-variation diagnostic
	stderrTailBytes = 2048
)

// Resolution is the output frame size every clip is scaled and padded to.
type Resolution struct {
	Width  int
	Height int
}

// DefaultResolution is 1080x1920 portrait, the shape of social commercials.
var DefaultResolution = Resolution{Width: 1080, Height: 1920}

// ParseResolution parses "WIDTHxHEIGHT", falling back to DefaultResolution.
func ParseResolution(s string) Resolution {
	parts := strings.SplitN(strings.ToLower(strings.TrimSpace(s)), "x", 2)
	if len(parts) != 2 {
		return DefaultResolution
	}
	w, errW := strconv.Atoi(parts[0])
	h, errH := strconv.Atoi(parts[1])
	if errW != nil || errH != nil || w <= 0 || h <= 0 {
		return DefaultResolution
	}
	// libx264 with yuv420p needs even dimensions
	return Resolution{Width: w &^ 1, Height: h &^ 1}
}

// CommandError carries the tail of ffmpeg's stderr so a failed variation can
// report what the encoder said, not just its exit status.
type CommandError struct {
	Op     string
	Err    error
	Stderr string
}

func (e *CommandError) Error() string {
	if e.Stderr == "" {
		return fmt.Sprintf("ffmpeg %s failed: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("ffmpeg %s failed: %v: %s", e.Op, e.Err, e.Stderr)
}

func (e *CommandError) Unwrap() error {
	return e.Err
}

// ---------------------------------------------------------------------------
// FFmpegService
// ---------------------------------------------------------------------------

type FFmpegService struct {
	ffmpegPath  string
	ffprobePath string
	resolution  Resolution
	musicVolume float64
}

type FFmpegOptions struct {
	FFmpegPath  string
	FFprobePath string
	Resolution  Resolution
	MusicVolume float64 // 0..1, level of the music bed against the clip audio
}

func NewFFmpegService(opts FFmpegOptions) *FFmpegService {
	if opts.FFmpegPath == "" {
		opts.FFmpegPath = "ffmpeg"
	}
	if opts.FFprobePath == "" {
		opts.FFprobePath = "ffprobe"
	}
	if opts.Resolution.Width == 0 || opts.Resolution.Height == 0 {
		opts.Resolution = DefaultResolution
	}
	if opts.MusicVolume <= 0 {
		opts.MusicVolume = 0.5
	}

	return &FFmpegService{
		ffmpegPath:  opts.FFmpegPath,
		ffprobePath: opts.FFprobePath,
		resolution:  opts.Resolution,
		musicVolume: opts.MusicVolume,
	}
}

// run executes ffmpeg and folds the stderr tail into the returned error.
func (s *FFmpegService) run(ctx context.Context, op string, args []string) error {
	args = append([]string{"-hide_banner", "-loglevel", "error", "-y"}, args...)

	var stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, s.ffmpegPath, args...)
	cmd.Stdout = os.Stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return fmt.Errorf("ffmpeg %s cancelled: %w", op, ctx.Err())
		}
		return &CommandError{Op: op, Err: err, Stderr: tail(stderr.String(), stderrTailBytes)}
	}
	return nil
}

// ConcatenateClips joins clips in order into one video, re-encoding every
// input to a common resolution, frame rate and codec pair. Stream-copy concat
// desyncs audio when the inputs were encoded differently, so it is not used.
// Clips without an audio track get a silent one of the same length.
func (s *FFmpegService) ConcatenateClips(ctx context.Context, clipPaths []string, outputPath string) error {
	if len(clipPaths) == 0 {
		return fmt.Errorf("no clips to concatenate")
	}

	var (
		inputs  []string
		filters []string
		labels  strings.Builder
	)

	for _, path := range clipPaths {
		inputs = append(inputs, "-i", path)
	}

	// Silent sources are appended after the clip inputs
	nextInput := len(clipPaths)
	for i, path := range clipPaths {
		filters = append(filters, fmt.Sprintf(
			"[%d:v]scale=%d:%d:force_original_aspect_ratio=decrease,pad=%d:%d:(ow-iw)/2:(oh-ih)/2,setsar=1,fps=%d,format=yuv420p[v%d]",
			i, s.resolution.Width, s.resolution.Height, s.resolution.Width, s.resolution.Height, videoFPS, i,
		))

		hasAudio, err := s.HasAudio(ctx, path)
		if err != nil {
			return fmt.Errorf("failed to probe %s: %w", filepath.Base(path), err)
		}

		audioSrc := fmt.Sprintf("%d:a", i)
		if !hasAudio {
			durationMs, err := s.GetVideoDuration(ctx, path)
			if err != nil {
				return fmt.Errorf("failed to measure silent clip %s: %w", filepath.Base(path), err)
			}
			inputs = append(inputs,
				"-f", "lavfi",
				"-t", formatSeconds(float64(durationMs)/1000.0),
				"-i", fmt.Sprintf("anullsrc=channel_layout=stereo:sample_rate=%d", audioRate),
			)
			audioSrc = fmt.Sprintf("%d:a", nextInput)
			nextInput++
			log.Printf("[FFmpeg] %s has no audio, padding with %dms of silence", filepath.Base(path), durationMs)
		}

		filters = append(filters, fmt.Sprintf(
			"[%s]aresample=%d,aformat=channel_layouts=stereo[a%d]", audioSrc, audioRate, i,
		))
		fmt.Fprintf(&labels, "[v%d][a%d]", i, i)
	}

	filters = append(filters, fmt.Sprintf("%sconcat=n=%d:v=1:a=1[vout][aout]", labels.String(), len(clipPaths)))

	args := append(inputs,
		"-filter_complex", strings.Join(filters, ";"),
		"-map", "[vout]",
		"-map", "[aout]",
		"-c:v", videoCodec,
		"-preset", videoPreset,
		"-crf", strconv.Itoa(videoCRF),
		"-c:a", audioCodec,
		"-b:a", audioBitrate,
		outputPath,
	)

	log.Printf("[FFmpeg] Concatenating %d clips into %s", len(clipPaths), filepath.Base(outputPath))
	return s.run(ctx, "concatenate", args)
}

// FinalizeVideo trims the concatenated video to durationSec and re-encodes it.
// With a music bed, the music is mixed under the clip audio and the output
// stops at the shorter of video and music, never past durationSec.
//
// musicPath: path to the background music file (mp3/wav/etc.), empty for none.
func (s *FFmpegService) FinalizeVideo(ctx context.Context, videoPath, musicPath, outputPath string, durationSec float64) error {
	if durationSec <= 0 {
		return fmt.Errorf("target duration must be positive, got %.2f", durationSec)
	}

	args := []string{"-i", videoPath}

	if musicPath != "" {
		// Check if music file exists
		if _, err := os.Stat(musicPath); err != nil {
			return fmt.Errorf("background music unavailable: %w", err)
		}

		log.Printf("[FFmpeg] Mixing background music from %s", filepath.Base(musicPath))

		// [0:a] = clip audio at full level
		// [1:a] = music bed at musicVolume
		// amix duration=shortest ends the mix with the shorter audio input,
		// -shortest then ends the file with the shorter of video and mix
		filterComplex := fmt.Sprintf(
			"[1:a]volume=%.2f[music];[0:a][music]amix=inputs=2:duration=shortest:dropout_transition=0[aout]",
			s.musicVolume,
		)

		args = append(args,
			"-i", musicPath,
			"-filter_complex", filterComplex,
			"-map", "0:v",
			"-map", "[aout]",
			"-shortest",
		)
	}

	args = append(args,
		"-t", formatSeconds(durationSec),
		"-c:v", videoCodec,
		"-preset", videoPreset,
		"-crf", strconv.Itoa(videoCRF),
		"-pix_fmt", "yuv420p",
		"-c:a", audioCodec,
		"-b:a", audioBitrate,
		"-movflags", "+faststart",
		outputPath,
	)

	log.Printf("[FFmpeg] Finalizing %s (duration=%ss, music=%v)", filepath.Base(outputPath), formatSeconds(durationSec), musicPath != "")
	return s.run(ctx, "finalize", args)
}

// GetVideoDuration returns the duration of a media file in milliseconds using ffprobe.
func (s *FFmpegService) GetVideoDuration(ctx context.Context, videoPath string) (int, error) {
	args := []string{
		"-v", "error",
		"-show_entries", "format=duration",
		"-of", "default=noprint_wrappers=1:nokey=1",
		videoPath,
	}

	cmd := exec.CommandContext(ctx, s.ffprobePath, args...)
	output, err := cmd.Output()
	if err != nil {
		return 0, fmt.Errorf("ffprobe video duration failed: %w", err)
	}

	var durationSec float64
	if _, err := fmt.Sscanf(strings.TrimSpace(string(output)), "%f", &durationSec); err != nil {
		return 0, fmt.Errorf("failed to parse video duration: %w", err)
	}

	return int(durationSec * 1000), nil
}

// HasAudio reports whether the file has at least one audio stream.
func (s *FFmpegService) HasAudio(ctx context.Context, path string) (bool, error) {
	args := []string{
		"-v", "error",
		"-select_streams", "a",
		"-show_entries", "stream=index",
		"-of", "csv=p=0",
		path,
	}

	cmd := exec.CommandContext(ctx, s.ffprobePath, args...)
	output, err := cmd.Output()
	if err != nil {
		return false, fmt.Errorf("ffprobe audio streams failed: %w", err)
	}

	return strings.TrimSpace(string(output)) != "", nil
}

func formatSeconds(sec float64) string {
	return strconv.FormatFloat(sec, 'f', 3, 64)
}

// tail keeps the last n bytes of s, where ffmpeg prints the actual error.
func tail(s string, n int) string {
	s = strings.TrimSpace(s)
	if len(s) <= n {
		return s
	}
	return "..." + s[len(s)-n:]
}
