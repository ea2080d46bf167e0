package variation

import (
	"github.com/bobarin/clipmix/internal/models"
)

// Enumerate returns the intro × outro cross product, intro-major and
// outro-minor, in arrival order. An empty pool yields an empty set, which
// callers treat as "not ready to render".
func Enumerate(intros, outros models.AssetPool) []models.Variation {
	if len(intros) == 0 || len(outros) == 0 {
		return nil
	}

	set := make([]models.Variation, 0, len(intros)*len(outros))
	for i := range intros {
		for o := range outros {
			set = append(set, models.Variation{
				Index: len(set),
				Intro: &intros[i],
				Outro: &outros[o],
			})
		}
	}
	return set
}

// EnumerateWithProducts returns the intro × product × outro cross product with
// the product dimension nested between intro and outro. Each variation carries
// exactly one product clip.
func EnumerateWithProducts(intros, products, outros models.AssetPool) []models.Variation {
	if len(intros) == 0 || len(products) == 0 || len(outros) == 0 {
		return nil
	}

	set := make([]models.Variation, 0, len(intros)*len(products)*len(outros))
	for i := range intros {
		for p := range products {
			for o := range outros {
				set = append(set, models.Variation{
					Index:    len(set),
					Intro:    &intros[i],
					Products: models.AssetPool{products[p]},
					Outro:    &outros[o],
				})
			}
		}
	}
	return set
}

// Count returns the size of the set Enumerate (or EnumerateWithProducts when
// threeWay is set) would produce, without building it.
func Count(intros, products, outros int, threeWay bool) int {
	if threeWay {
		return intros * products * outros
	}
	return intros * outros
}

// Limit returns the first k variations, preserving order. k is clamped to
// [1, len(set)] so a bad request still renders something rather than nothing.
func Limit(set []models.Variation, k int) []models.Variation {
	if len(set) == 0 {
		return nil
	}
	k = max(1, min(k, len(set)))
	return set[:k:k]
}

// AttachMusic sets the optional music bed on every variation in the set.
func AttachMusic(set []models.Variation, music *models.ClipRef) []models.Variation {
	for i := range set {
		set[i].Music = music
	}
	return set
}
