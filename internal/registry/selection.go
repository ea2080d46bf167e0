package registry

import (
	"fmt"

	"github.com/bobarin/clipmix/internal/models"
	"github.com/google/uuid"
)

// DefaultMaxSelected is the number of product clips that appear in every variation.
const DefaultMaxSelected = 3

// InitializeSelection partitions the product pool: the first maxSelected clips
// are selected, the rest are available. A selection that already holds clips is
// returned unchanged so in-progress curation survives repeated calls.
func InitializeSelection(sel models.Selection, products models.AssetPool, maxSelected int) models.Selection {
	if !sel.IsEmpty() {
		return sel
	}
	if maxSelected <= 0 {
		maxSelected = DefaultMaxSelected
	}

	n := min(maxSelected, len(products))
	return models.Selection{
		Selected:    append(models.AssetPool(nil), products[:n]...),
		Available:   append(models.AssetPool(nil), products[n:]...),
		MaxSelected: maxSelected,
	}
}

// SyncSelection adds product clips that are in neither partition to the end of
// Available. Used after further uploads once the selection exists.
func SyncSelection(sel models.Selection, products models.AssetPool) models.Selection {
	if sel.IsEmpty() {
		return InitializeSelection(sel, products, sel.MaxSelected)
	}

	next := sel.Clone()
	for _, p := range products {
		if next.Selected.Find(p.ID) < 0 && next.Available.Find(p.ID) < 0 {
			next.Available = append(next.Available, p)
		}
	}
	return next
}

// MoveToSelected moves a clip from Available to the end of Selected.
func MoveToSelected(sel models.Selection, id uuid.UUID) (models.Selection, error) {
	i := sel.Available.Find(id)
	if i < 0 {
		return sel, fmt.Errorf("%w: %s is not available", ErrNotFound, id)
	}
	if len(sel.Selected) >= sel.MaxSelected {
		return sel, fmt.Errorf("%w: %d of %d selected", ErrCapacityExceeded, len(sel.Selected), sel.MaxSelected)
	}

	next := sel.Clone()
	next.Selected = append(next.Selected, next.Available[i])
	next.Available = append(next.Available[:i], next.Available[i+1:]...)
	return next, nil
}

// MoveToAvailable removes a clip from any position of Selected and appends it to Available.
func MoveToAvailable(sel models.Selection, id uuid.UUID) (models.Selection, error) {
	i := sel.Selected.Find(id)
	if i < 0 {
		return sel, fmt.Errorf("%w: %s is not selected", ErrNotFound, id)
	}

	next := sel.Clone()
	next.Available = append(next.Available, next.Selected[i])
	next.Selected = append(next.Selected[:i], next.Selected[i+1:]...)
	return next, nil
}

// Reorder rearranges Selected to the given order. ids must name every selected
// clip exactly once.
func Reorder(sel models.Selection, ids []uuid.UUID) (models.Selection, error) {
	if len(ids) != len(sel.Selected) {
		return sel, fmt.Errorf("%w: got %d ids for %d selected clips", ErrInvalidOrder, len(ids), len(sel.Selected))
	}

	seen := make(map[uuid.UUID]bool, len(ids))
	ordered := make(models.AssetPool, 0, len(ids))
	for _, id := range ids {
		i := sel.Selected.Find(id)
		if i < 0 || seen[id] {
			return sel, fmt.Errorf("%w: %s", ErrInvalidOrder, id)
		}
		seen[id] = true
		ordered = append(ordered, sel.Selected[i])
	}

	next := sel.Clone()
	next.Selected = ordered
	return next, nil
}
