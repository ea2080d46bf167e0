package registry

import "errors"

// Sentinel errors; callers use errors.Is() instead of string matching
var (
	ErrStorage           = errors.New("storage error")
	ErrCapacityExceeded  = errors.New("selection is at capacity")
	ErrNotFound          = errors.New("clip not found")
	ErrInvalidOrder      = errors.New("order must be a permutation of the selected clips")
	ErrUnsupportedFormat = errors.New("unsupported file format")
	ErrTooLarge          = errors.New("file exceeds upload limit")
	ErrPoolFull          = errors.New("pool has reached its clip limit")
)
