package batch

import (
	"context"
	"errors"
	"fmt"
	"log"
	"path/filepath"

	"github.com/bobarin/clipmix/internal/archive"
	"github.com/bobarin/clipmix/internal/assembler"
	"github.com/bobarin/clipmix/internal/models"
	"github.com/bobarin/clipmix/internal/render"
	"github.com/bobarin/clipmix/internal/variation"
)

// ArchiveName is the file name of the packaged outputs inside a batch directory.
const ArchiveName = "variations.zip"

// ErrNotReady means a required pool is empty, so there is nothing to render.
var ErrNotReady = errors.New("not ready to render: intro and outro clips are required")

// Input is everything one batch needs from the caller's session state.
type Input struct {
	Intros    models.AssetPool
	Products  models.AssetPool
	Outros    models.AssetPool
	Selection models.Selection
	Music     *models.ClipRef
	Options   models.BatchOptions
}

// Summary is the terminal state of a batch: results for every variation and
// the archive of the ones that succeeded.
type Summary struct {
	Variations []models.Variation
	Results    []models.RenderResult
	Archive    *models.Archive
	Succeeded  int
	Failures   []models.RenderResult
}

// Pipeline runs enumerate → limit → assemble → render → package.
type Pipeline struct {
	encoder          render.Encoder
	concurrency      int
	keepIntermediate bool
}

// Snapshot copies the pools and selection of in so the result shares no
// backing arrays with the session it came from.
func (in Input) Snapshot() *models.BatchSource {
	src := &models.BatchSource{
		Intros:    append(models.AssetPool(nil), in.Intros...),
		Products:  append(models.AssetPool(nil), in.Products...),
		Outros:    append(models.AssetPool(nil), in.Outros...),
		Selection: in.Selection.Clone(),
	}
	if in.Music != nil {
		m := *in.Music
		src.Music = &m
	}
	return src
}

// FromSource rebuilds the input a batch was planned with.
func FromSource(src *models.BatchSource, opts models.BatchOptions) Input {
	return Input{
		Intros:    src.Intros,
		Products:  src.Products,
		Outros:    src.Outros,
		Selection: src.Selection,
		Music:     src.Music,
		Options:   opts,
	}
}

func NewPipeline(encoder render.Encoder, concurrency int, keepIntermediate bool) *Pipeline {
	return &Pipeline{
		encoder:          encoder,
		concurrency:      concurrency,
		keepIntermediate: keepIntermediate,
	}
}

// Plan enumerates the variation set for in and limits it to the requested count.
// An empty result means a required pool is empty.
func Plan(in Input) []models.Variation {
	var set []models.Variation
	if in.Options.ThreeWay {
		set = variation.EnumerateWithProducts(in.Intros, in.Products, in.Outros)
	} else {
		set = variation.Enumerate(in.Intros, in.Outros)
	}

	set = variation.Limit(set, in.Options.Count)
	if in.Options.UseMusic && in.Music != nil {
		set = variation.AttachMusic(set, in.Music)
	}
	return set
}

// Run renders one batch into outDir. Individual variation failures are recorded
// in the summary and never stop the batch. Run fails only when there is nothing
// to render, the output dir cannot be created, or packaging fails
// (archive.ErrPackaging).
func (p *Pipeline) Run(ctx context.Context, in Input, outDir string, progress render.ProgressFunc) (*Summary, error) {
	set := Plan(in)
	if len(set) == 0 {
		return nil, ErrNotReady
	}

	asm := &assembler.Assembler{
		Policy:                   in.Options.Policy,
		ProductTimeBudgetSec:     in.Options.ProductTimeBudgetSec,
		EstimatedClipDurationSec: in.Options.EstimatedClipDurationSec,
	}

	// Curated variations take the selection as ordered; budget-slice takes the
	// ordered product pool and cuts it to the time budget.
	products := in.Products
	if in.Options.Policy == models.PolicyCurated || in.Options.Policy == "" {
		products = in.Selection.Selected
	}

	jobs := make([]render.Job, len(set))
	for i, v := range set {
		jobs[i] = render.Job{Index: v.Index}

		clips, err := asm.Assemble(v, products)
		if err != nil {
			jobs[i].Err = err
			continue
		}
		jobs[i].Clips = assembler.Paths(clips)
		if v.Music != nil {
			jobs[i].MusicPath = v.Music.Path
		}
	}

	orch, err := render.New(p.encoder, outDir, render.Options{
		TargetDurationSec: in.Options.TargetDurationSec,
		Concurrency:       p.concurrency,
		KeepIntermediate:  p.keepIntermediate,
		Progress:          progress,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to prepare output dir: %w", err)
	}

	log.Printf("[Batch] Rendering %d variations (policy=%s, three_way=%v, music=%v)",
		len(jobs), asm.Policy, in.Options.ThreeWay, in.Options.UseMusic && in.Music != nil)

	results := orch.RenderAll(ctx, jobs)

	summary := &Summary{Variations: set, Results: results}
	for _, r := range results {
		if r.Succeeded() {
			summary.Succeeded++
		} else {
			summary.Failures = append(summary.Failures, r)
		}
	}

	// Packaging starts only after every render is terminal
	arc, err := archive.Package(ctx, render.Artifacts(results), filepath.Join(outDir, ArchiveName))
	if err != nil {
		return summary, err
	}
	summary.Archive = arc

	log.Printf("[Batch] Done: %d/%d variations succeeded, archive has %d entries",
		summary.Succeeded, len(results), len(arc.Entries))
	return summary, nil
}
