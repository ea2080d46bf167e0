package assembler

import (
	"errors"
	"fmt"
	"math"
	"testing"

	"github.com/bobarin/clipmix/internal/models"
	"github.com/google/uuid"
)

func clip(role models.Role, i int) models.ClipRef {
	return models.ClipRef{
		ID:       uuid.New(),
		Role:     role,
		Filename: fmt.Sprintf("%s_%d.mp4", role, i),
		Path:     fmt.Sprintf("/job/%s_%d.mp4", role, i),
	}
}

func products(n int) models.AssetPool {
	p := make(models.AssetPool, n)
	for i := range p {
		p[i] = clip(models.RoleProduct, i)
	}
	return p
}

func variation() models.Variation {
	intro := clip(models.RoleIntro, 0)
	outro := clip(models.RoleOutro, 0)
	return models.Variation{Intro: &intro, Outro: &outro}
}

func TestBudgetSliceTakesFloorOfBudget(t *testing.T) {
	a := &Assembler{
		Policy:                   models.PolicyBudgetSlice,
		ProductTimeBudgetSec:     20,
		EstimatedClipDurationSec: 6.5,
	}

	for _, size := range []int{3, 4, 7, 12} {
		t.Run(fmt.Sprintf("pool_%d", size), func(t *testing.T) {
			pool := products(size)
			clips, err := a.Assemble(variation(), pool)
			if err != nil {
				t.Fatalf("Assemble: %v", err)
			}

			if len(clips) != 5 {
				t.Fatalf("expected intro + 3 products + outro, got %d clips", len(clips))
			}
			for i := 0; i < 3; i++ {
				if clips[i+1].ID != pool[i].ID {
					t.Errorf("product slot %d holds %s, want %s", i, clips[i+1].Filename, pool[i].Filename)
				}
			}
		})
	}
}

func TestBudgetSliceShortPool(t *testing.T) {
	a := &Assembler{Policy: models.PolicyBudgetSlice, ProductTimeBudgetSec: 20, EstimatedClipDurationSec: 6.5}

	clips, err := a.Assemble(variation(), products(2))
	if err != nil {
		t.Fatalf("Assemble: %v", err)
	}
	if len(clips) != 4 {
		t.Fatalf("expected 4 clips, got %d", len(clips))
	}
}

func TestBudgetSliceRejectsNonPositiveEstimate(t *testing.T) {
	a := &Assembler{Policy: models.PolicyBudgetSlice, ProductTimeBudgetSec: 20}

	if _, err := a.Assemble(variation(), products(3)); !errors.Is(err, ErrInvalidVariation) {
		t.Fatalf("expected ErrInvalidVariation, got %v", err)
	}
}

func TestBudgetSliceHugeBudgetTakesWholePool(t *testing.T) {
	for _, budget := range []float64{1e30, float64(math.MaxInt64)} {
		a := &Assembler{Policy: models.PolicyBudgetSlice, ProductTimeBudgetSec: budget, EstimatedClipDurationSec: 1}
		clips, err := a.Assemble(variation(), products(4))
		if err != nil {
			t.Fatalf("budget %g: Assemble: %v", budget, err)
		}
		if len(clips) != 6 {
			t.Errorf("budget %g: expected intro + 4 products + outro, got %d clips", budget, len(clips))
		}
	}
}

func TestBudgetSliceRejectsNonFiniteValues(t *testing.T) {
	tests := []struct {
		name             string
		budget, estimate float64
	}{
		{"inf budget", math.Inf(1), 6.5},
		{"nan budget", math.NaN(), 6.5},
		{"nan estimate", 20, math.NaN()},
		{"inf estimate", 20, math.Inf(1)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := &Assembler{Policy: models.PolicyBudgetSlice, ProductTimeBudgetSec: tt.budget, EstimatedClipDurationSec: tt.estimate}
			if _, err := a.Assemble(variation(), products(3)); !errors.Is(err, ErrInvalidVariation) {
				t.Fatalf("expected ErrInvalidVariation, got %v", err)
			}
		})
	}
}

func TestCuratedUsesSelectionVerbatim(t *testing.T) {
	a := &Assembler{Policy: models.PolicyCurated, ProductTimeBudgetSec: 1, EstimatedClipDurationSec: 6.5}
	selected := products(3)
	selected[0], selected[2] = selected[2], selected[0]

	clips, err := a.Assemble(variation(), selected)
	if err != nil {
		t.Fatalf("Assemble: %v", err)
	}

	if len(clips) != 5 {
		t.Fatalf("curated policy ignores the time budget; expected 5 clips, got %d", len(clips))
	}
	for i, p := range selected {
		if clips[i+1].ID != p.ID {
			t.Errorf("slot %d holds %s, want %s", i, clips[i+1].Filename, p.Filename)
		}
	}
}

func TestAssembleIntroFirstOutroLast(t *testing.T) {
	policies := []*Assembler{
		{Policy: models.PolicyCurated},
		{Policy: models.PolicyBudgetSlice, ProductTimeBudgetSec: 20, EstimatedClipDurationSec: 6.5},
		{Policy: models.PolicyBudgetSlice, ProductTimeBudgetSec: 0, EstimatedClipDurationSec: 6.5},
	}

	for _, a := range policies {
		for _, n := range []int{0, 1, 5} {
			v := variation()
			clips, err := a.Assemble(v, products(n))
			if err != nil {
				t.Fatalf("%s/%d: %v", a.Policy, n, err)
			}
			if clips[0].ID != v.Intro.ID {
				t.Errorf("%s/%d: first clip is %s", a.Policy, n, clips[0].Filename)
			}
			if clips[len(clips)-1].ID != v.Outro.ID {
				t.Errorf("%s/%d: last clip is %s", a.Policy, n, clips[len(clips)-1].Filename)
			}
		}
	}
}

func TestAssembleThreeWayPassesProductThrough(t *testing.T) {
	a := &Assembler{Policy: models.PolicyBudgetSlice, ProductTimeBudgetSec: 20, EstimatedClipDurationSec: 6.5}
	v := variation()
	v.Products = products(1)

	clips, err := a.Assemble(v, products(6))
	if err != nil {
		t.Fatalf("Assemble: %v", err)
	}
	if len(clips) != 3 || clips[1].ID != v.Products[0].ID {
		t.Fatalf("expected the variation's own product, got %d clips", len(clips))
	}
}

func TestAssembleMissingIntroOrOutro(t *testing.T) {
	a := &Assembler{Policy: models.PolicyCurated}

	noIntro := variation()
	noIntro.Intro = nil
	if _, err := a.Assemble(noIntro, products(1)); !errors.Is(err, ErrInvalidVariation) {
		t.Errorf("missing intro: expected ErrInvalidVariation, got %v", err)
	}

	noOutro := variation()
	noOutro.Outro = nil
	if _, err := a.Assemble(noOutro, products(1)); !errors.Is(err, ErrInvalidVariation) {
		t.Errorf("missing outro: expected ErrInvalidVariation, got %v", err)
	}
}

func TestAssembleUnknownPolicy(t *testing.T) {
	a := &Assembler{Policy: "shuffle"}
	if _, err := a.Assemble(variation(), products(2)); !errors.Is(err, ErrInvalidVariation) {
		t.Fatalf("expected ErrInvalidVariation, got %v", err)
	}
}
