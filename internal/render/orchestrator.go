package render

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/bobarin/clipmix/internal/models"
	"golang.org/x/sync/errgroup"
)

// Encoder is the external tool contract the orchestrator depends on.
// Implemented by services.FFmpegService.
type Encoder interface {
	// ConcatenateClips joins inputs in order, re-encoding to a common codec pair.
	ConcatenateClips(ctx context.Context, inputs []string, output string) error
	// FinalizeVideo re-encodes input trimmed to durationSec, mixing in musicPath
	// (if non-empty) and stopping at the shorter of video and music.
	FinalizeVideo(ctx context.Context, input, musicPath, output string, durationSec float64) error
}

// Job is one assembled variation ready for the encoder.
type Job struct {
	Index     int
	Clips     []string // ordered clip paths, intro first, outro last
	MusicPath string   // empty = no music bed
	Err       error    // assembly failure; the job is recorded as failed without encoding
}

// ProgressFunc is called after each variation reaches a terminal state.
type ProgressFunc func(done, total int, result models.RenderResult)

// Orchestrator drives the encoder once per variation and records every outcome.
type Orchestrator struct {
	encoder           Encoder
	outputDir         string
	targetDurationSec float64
	concurrency       int
	keepIntermediate  bool
	progress          ProgressFunc
}

type Options struct {
	TargetDurationSec float64
	Concurrency       int // <= 1 renders sequentially
	KeepIntermediate  bool
	Progress          ProgressFunc
}

func New(encoder Encoder, outputDir string, opts Options) (*Orchestrator, error) {
	if err := os.MkdirAll(outputDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create output dir: %w", err)
	}
	if opts.Concurrency < 1 {
		opts.Concurrency = 1
	}

	return &Orchestrator{
		encoder:           encoder,
		outputDir:         outputDir,
		targetDurationSec: opts.TargetDurationSec,
		concurrency:       opts.Concurrency,
		keepIntermediate:  opts.KeepIntermediate,
		progress:          opts.Progress,
	}, nil
}

// OutputPath returns where the final artifact of a variation is written.
// Variation numbers in file names are 1-based.
func (o *Orchestrator) OutputPath(index int) string {
	return filepath.Join(o.outputDir, fmt.Sprintf("variation_%d.mp4", index+1))
}

func (o *Orchestrator) intermediatePath(index int) string {
	return filepath.Join(o.outputDir, fmt.Sprintf(".concat_%d.mp4", index+1))
}

// Render produces the final artifact for one variation. It never returns an
// error: failures in either encoder stage come back as a failed result.
func (o *Orchestrator) Render(ctx context.Context, job Job) models.RenderResult {
	start := time.Now()
	result := models.RenderResult{Index: job.Index}

	fail := func(stage models.RenderStage, err error) models.RenderResult {
		result.Status = models.RenderStatusFailed
		result.Stage = stage
		result.Error = err.Error()
		result.Duration = time.Since(start).Round(time.Millisecond).String()
		return result
	}

	if job.Err != nil {
		log.Printf("[Render] Variation %d: assembly failed: %v", job.Index+1, job.Err)
		return fail(models.StageAssemble, job.Err)
	}

	// Stage 1: concatenate the clip list
	concatPath := o.intermediatePath(job.Index)
	if !o.keepIntermediate {
		defer os.Remove(concatPath)
	}

	log.Printf("[Render] Variation %d: concatenating %d clips", job.Index+1, len(job.Clips))
	if err := o.encoder.ConcatenateClips(ctx, job.Clips, concatPath); err != nil {
		log.Printf("[Render] Variation %d: concatenation failed: %v", job.Index+1, err)
		return fail(models.StageConcatenate, err)
	}

	// Stage 2: trim to the target duration, mixing in music when present
	outputPath := o.OutputPath(job.Index)
	if err := o.encoder.FinalizeVideo(ctx, concatPath, job.MusicPath, outputPath, o.targetDurationSec); err != nil {
		log.Printf("[Render] Variation %d: finalize failed (music=%v): %v", job.Index+1, job.MusicPath != "", err)
		os.Remove(outputPath)
		return fail(models.StageFinalize, err)
	}

	result.Status = models.RenderStatusSucceeded
	result.OutputPath = outputPath
	result.Duration = time.Since(start).Round(time.Millisecond).String()
	log.Printf("[Render] Variation %d: rendered %s in %s", job.Index+1, filepath.Base(outputPath), result.Duration)
	return result
}

// RenderAll renders every job and returns results in job order. It returns only
// after every job has reached a terminal state. Up to the configured
// concurrency jobs run at once; each result stays tied to its job's index.
func (o *Orchestrator) RenderAll(ctx context.Context, jobs []Job) []models.RenderResult {
	results := make([]models.RenderResult, len(jobs))

	var (
		mu   sync.Mutex
		done int
	)
	report := func(r models.RenderResult) {
		if o.progress == nil {
			return
		}
		mu.Lock()
		defer mu.Unlock()
		done++
		o.progress(done, len(jobs), r)
	}

	if o.concurrency == 1 {
		for i, job := range jobs {
			results[i] = o.Render(ctx, job)
			report(results[i])
		}
		return results
	}

	// Render never fails the group, so one bad variation cannot cancel the rest
	g := new(errgroup.Group)
	g.SetLimit(o.concurrency)

	for i, job := range jobs {
		i, job := i, job
		g.Go(func() error {
			results[i] = o.Render(ctx, job)
			report(results[i])
			return nil
		})
	}
	_ = g.Wait()

	return results
}

// Artifacts returns the output paths of successful results, in result order.
func Artifacts(results []models.RenderResult) []string {
	var paths []string
	for _, r := range results {
		if r.Succeeded() {
			paths = append(paths, r.OutputPath)
		}
	}
	return paths
}
