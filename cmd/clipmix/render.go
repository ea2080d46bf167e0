package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/bobarin/clipmix/internal/batch"
	"github.com/bobarin/clipmix/internal/config"
	"github.com/bobarin/clipmix/internal/models"
	"github.com/bobarin/clipmix/internal/registry"
	"github.com/bobarin/clipmix/internal/services"
	"github.com/bobarin/clipmix/internal/storage"
	"github.com/bobarin/clipmix/internal/variation"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

var renderCmd = &cobra.Command{
	Use:   "render",
	Short: "Render all variations and package them into a zip",
	Long: `Render copies the given clips into a job directory, renders one video per
variation and writes variations.zip to the output directory. A failed
variation is reported and skipped; the rest are still rendered.`,
	Example: `  clipmix render --intro a.mp4 --intro b.mp4 --product p1.mp4 --product p2.mp4 \
    --outro end.mp4 --music bed.mp3 --count 2 --out ./out`,
	RunE: runRenderCommand,
}

var planCmd = &cobra.Command{
	Use:   "plan",
	Short: "List the variations render would produce",
	RunE:  runPlanCommand,
}

type renderFlags struct {
	intros      []string
	products    []string
	outros      []string
	music       string
	count       int
	policy      string
	threeWay    bool
	maxSelected int
	duration    float64
	concurrency int
	out         string
	keep        bool
	deliver     bool
}

var flags renderFlags

func init() {
	for _, c := range []*cobra.Command{renderCmd, planCmd} {
		c.Flags().StringArrayVar(&flags.intros, "intro", nil, "Intro clip (repeatable)")
		c.Flags().StringArrayVar(&flags.products, "product", nil, "Product clip, in display order (repeatable)")
		c.Flags().StringArrayVar(&flags.outros, "outro", nil, "Outro clip (repeatable)")
		c.Flags().StringVar(&flags.music, "music", "", "Music bed mixed under every variation")
		c.Flags().IntVarP(&flags.count, "count", "n", 0, "Number of variations to render (default: all)")
		c.Flags().StringVar(&flags.policy, "policy", "", "Product assembly policy: curated or budget_slice (default: ASSEMBLY_POLICY)")
		c.Flags().BoolVar(&flags.threeWay, "three-way", false, "Also vary the product clip (intro × product × outro)")
		c.Flags().IntVar(&flags.maxSelected, "max-selected", 0, "Product clips in every curated variation (default: MAX_SELECTED_PRODUCTS)")
		c.MarkFlagRequired("intro")
		c.MarkFlagRequired("outro")
	}

	renderCmd.Flags().Float64Var(&flags.duration, "duration", 0, "Target duration in seconds (default: TARGET_DURATION_SECONDS)")
	renderCmd.Flags().IntVarP(&flags.concurrency, "jobs", "j", 0, "Variations rendered at once (default: RENDER_CONCURRENCY)")
	renderCmd.Flags().StringVarP(&flags.out, "out", "o", "clipmix-out", "Output directory")
	renderCmd.Flags().BoolVar(&flags.keep, "keep-intermediate", false, "Keep the concatenated pre-trim files")
	renderCmd.Flags().BoolVar(&flags.deliver, "deliver", false, "Upload the archive with DELIVERY_BACKEND and print its URL")
}

// options merges command-line flags over the configured defaults.
func (f renderFlags) options(cfg *config.Config, hasMusic bool) (models.BatchOptions, error) {
	opts := models.BatchOptions{
		Count:                    f.count,
		Policy:                   cfg.AssemblyPolicy,
		ThreeWay:                 f.threeWay,
		UseMusic:                 hasMusic,
		TargetDurationSec:        cfg.TargetDurationSec,
		ProductTimeBudgetSec:     cfg.ProductTimeBudgetSec,
		EstimatedClipDurationSec: cfg.EstimatedClipDurationSec,
	}
	if f.policy != "" {
		switch p := models.AssemblyPolicy(f.policy); p {
		case models.PolicyCurated, models.PolicyBudgetSlice:
			opts.Policy = p
		default:
			return opts, fmt.Errorf("invalid --policy %q (curated or budget_slice)", f.policy)
		}
	}
	if f.duration > 0 {
		opts.TargetDurationSec = f.duration
	}
	return opts, nil
}

// ingest copies every clip into the job directory and builds the batch input.
// Products are pre-selected in the order given.
func ingest(ctx context.Context, reg *registry.Registry, f renderFlags, maxSelected int) (batch.Input, error) {
	var in batch.Input

	add := func(paths []string, role models.Role) (models.AssetPool, error) {
		pool := make(models.AssetPool, 0, len(paths))
		for _, p := range paths {
			if err := reg.Admit(role, len(pool)); err != nil {
				return nil, err
			}
			ref, err := ingestFile(ctx, reg, p, role)
			if err != nil {
				return nil, err
			}
			pool = append(pool, ref)
		}
		return pool, nil
	}

	var err error
	if in.Intros, err = add(f.intros, models.RoleIntro); err != nil {
		return in, err
	}
	if in.Products, err = add(f.products, models.RoleProduct); err != nil {
		return in, err
	}
	if in.Outros, err = add(f.outros, models.RoleOutro); err != nil {
		return in, err
	}
	if f.music != "" {
		ref, err := ingestFile(ctx, reg, f.music, models.RoleMusic)
		if err != nil {
			return in, err
		}
		in.Music = &ref
	}

	in.Selection = registry.InitializeSelection(models.Selection{}, in.Products, maxSelected)
	return in, nil
}

func ingestFile(ctx context.Context, reg *registry.Registry, path string, role models.Role) (models.ClipRef, error) {
	src, err := os.Open(path)
	if err != nil {
		return models.ClipRef{}, fmt.Errorf("cannot open %s clip: %w", role, err)
	}
	defer src.Close()
	return reg.Ingest(ctx, src, path, role)
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	if flags.maxSelected > 0 {
		cfg.MaxSelectedProducts = flags.maxSelected
	}
	if flags.concurrency > 0 {
		cfg.RenderConcurrency = flags.concurrency
	}
	return cfg, nil
}

func runPlanCommand(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	// Plan only needs names and order, so clips are referenced in place
	ref := func(paths []string, role models.Role) models.AssetPool {
		pool := make(models.AssetPool, len(paths))
		for i, p := range paths {
			pool[i] = models.ClipRef{ID: uuid.New(), Role: role, Path: p, Filename: filepath.Base(p)}
		}
		return pool
	}
	in := batch.Input{
		Intros:   ref(flags.intros, models.RoleIntro),
		Products: ref(flags.products, models.RoleProduct),
		Outros:   ref(flags.outros, models.RoleOutro),
	}
	in.Selection = registry.InitializeSelection(models.Selection{}, in.Products, cfg.MaxSelectedProducts)
	if flags.music != "" {
		m := models.ClipRef{ID: uuid.New(), Role: models.RoleMusic, Path: flags.music, Filename: filepath.Base(flags.music)}
		in.Music = &m
	}

	in.Options, err = flags.options(cfg, in.Music != nil)
	if err != nil {
		return err
	}
	if in.Options.Count <= 0 {
		in.Options.Count = countAll(in)
	}

	total := countAll(in)
	set := batch.Plan(in)
	fmt.Printf("%d of %d variations:\n", len(set), total)
	for _, v := range set {
		fmt.Printf("  %d: %s\n", v.Index+1, describe(v, in))
	}
	return nil
}

// countAll is the size of the full variation set for the given pools.
func countAll(in batch.Input) int {
	return variation.Count(len(in.Intros), len(in.Products), len(in.Outros), in.Options.ThreeWay)
}

// describe prints the clip order of one planned variation.
func describe(v models.Variation, in batch.Input) string {
	products := v.Products
	if len(products) == 0 {
		products = in.Selection.Selected
		if in.Options.Policy == models.PolicyBudgetSlice {
			products = in.Products
		}
	}
	names := []string{v.Intro.Filename}
	for _, p := range products {
		names = append(names, p.Filename)
	}
	names = append(names, v.Outro.Filename)
	s := strings.Join(names, " → ")
	if v.Music != nil {
		s += "  ♪ " + v.Music.Filename
	}
	return s
}

func runRenderCommand(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := os.MkdirAll(cfg.WorkDir, 0755); err != nil {
		return fmt.Errorf("cannot create work dir: %w", err)
	}
	jobDir, err := os.MkdirTemp(cfg.WorkDir, "job-*")
	if err != nil {
		return fmt.Errorf("cannot create job dir: %w", err)
	}

	reg, err := registry.New(jobDir, registry.Options{
		MaxUploadBytes:  cfg.MaxUploadBytes(),
		MaxClipsPerRole: cfg.MaxClipsPerRole,
	})
	if err != nil {
		return err
	}
	defer reg.Remove()

	in, err := ingest(ctx, reg, flags, cfg.MaxSelectedProducts)
	if err != nil {
		return err
	}
	if in.Options, err = flags.options(cfg, in.Music != nil); err != nil {
		return err
	}
	if in.Options.Count <= 0 {
		in.Options.Count = countAll(in)
	}

	ffmpegSvc := services.NewFFmpegService(services.FFmpegOptions{
		FFmpegPath:  cfg.FFmpegPath,
		FFprobePath: cfg.FFprobePath,
		Resolution:  services.ParseResolution(cfg.OutputResolution),
		MusicVolume: cfg.MusicVolume,
	})

	pipeline := batch.NewPipeline(ffmpegSvc, cfg.RenderConcurrency, flags.keep)
	summary, err := pipeline.Run(ctx, in, flags.out, func(done, total int, r models.RenderResult) {
		state := "ok"
		if !r.Succeeded() {
			state = "FAILED at " + string(r.Stage)
		}
		fmt.Printf("[%d/%d] variation %d %s (%s)\n", done, total, r.Index+1, state, r.Duration)
	})
	if err != nil {
		return err
	}

	fmt.Printf("\nRendered %d of %d variations\n", summary.Succeeded, len(summary.Results))
	for _, f := range summary.Failures {
		fmt.Printf("  variation %d failed during %s: %s\n", f.Index+1, f.Stage, f.Error)
	}
	fmt.Printf("Archive: %s (%d files)\n", summary.Archive.Path, len(summary.Archive.Entries))

	if flags.deliver {
		deliverer, err := storage.NewDeliverer(ctx, cfg.Delivery())
		if err != nil {
			return err
		}
		url, err := deliverer.Deliver(ctx, uuid.New(), uuid.New(), summary.Archive.Path)
		if err != nil {
			return fmt.Errorf("archive delivery failed: %w", err)
		}
		if url != "" {
			fmt.Printf("Download: %s\n", url)
		}
	}

	if len(summary.Failures) > 0 && summary.Succeeded == 0 {
		return fmt.Errorf("no variation rendered successfully")
	}
	return nil
}
