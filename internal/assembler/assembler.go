package assembler

import (
	"errors"
	"fmt"
	"math"

	"github.com/bobarin/clipmix/internal/models"
)

var ErrInvalidVariation = errors.New("invalid variation")

// Assembler builds the ordered clip list for one variation.
//
// The budget-slice policy estimates how many product clips fit in the time
// budget from a fixed per-clip duration. It does not measure the clips: a pool
// of 2s clips and a pool of 15s clips both get floor(budget/estimate) entries.
type Assembler struct {
	Policy                   models.AssemblyPolicy
	ProductTimeBudgetSec     float64
	EstimatedClipDurationSec float64
}

// ProductSlots returns how many product clips the budget-slice policy admits.
// The result is capped at maxSlots; callers clamp it to the pool size.
func (a *Assembler) ProductSlots() (int, error) {
	budget, estimate := a.ProductTimeBudgetSec, a.EstimatedClipDurationSec
	if !finite(estimate) || estimate <= 0 {
		return 0, fmt.Errorf("%w: estimated clip duration must be positive, got %v", ErrInvalidVariation, estimate)
	}
	if !finite(budget) {
		return 0, fmt.Errorf("%w: product time budget must be finite, got %v", ErrInvalidVariation, budget)
	}
	if budget <= 0 {
		return 0, nil
	}
	slots := math.Floor(budget / estimate)
	if slots >= maxSlots {
		return maxSlots, nil
	}
	return int(slots), nil
}

const maxSlots = math.MaxInt32

func finite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}

// Assemble returns [intro] + products + [outro] for v.
//
// products is the ordered product source for the two-way form: the curated
// Selection's Selected clips under PolicyCurated, or the ordered product pool
// under PolicyBudgetSlice. Variations that already carry products (three-way
// enumeration) are used as-is.
func (a *Assembler) Assemble(v models.Variation, products models.AssetPool) ([]models.ClipRef, error) {
	if v.Intro == nil {
		return nil, fmt.Errorf("%w: variation %d has no intro", ErrInvalidVariation, v.Index)
	}
	if v.Outro == nil {
		return nil, fmt.Errorf("%w: variation %d has no outro", ErrInvalidVariation, v.Index)
	}

	middle := v.Products
	if len(middle) == 0 {
		var err error
		middle, err = a.pickProducts(products)
		if err != nil {
			return nil, err
		}
	}

	clips := make([]models.ClipRef, 0, len(middle)+2)
	clips = append(clips, *v.Intro)
	clips = append(clips, middle...)
	clips = append(clips, *v.Outro)
	return clips, nil
}

func (a *Assembler) pickProducts(products models.AssetPool) (models.AssetPool, error) {
	switch a.Policy {
	case models.PolicyCurated, "":
		return products, nil
	case models.PolicyBudgetSlice:
		slots, err := a.ProductSlots()
		if err != nil {
			return nil, err
		}
		return products[:max(0, min(slots, len(products)))], nil
	default:
		return nil, fmt.Errorf("%w: unknown assembly policy %q", ErrInvalidVariation, a.Policy)
	}
}

// Paths returns the storage locations of an assembled clip list.
func Paths(clips []models.ClipRef) []string {
	return models.AssetPool(clips).Paths()
}
