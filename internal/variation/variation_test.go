package variation

import (
	"fmt"
	"testing"

	"github.com/bobarin/clipmix/internal/models"
	"github.com/google/uuid"
)

func pool(role models.Role, n int) models.AssetPool {
	p := make(models.AssetPool, n)
	for i := range p {
		p[i] = models.ClipRef{ID: uuid.New(), Role: role, Filename: fmt.Sprintf("%s_%d.mp4", role, i)}
	}
	return p
}

func TestEnumerateSizeAndOrder(t *testing.T) {
	for _, dims := range [][2]int{{1, 1}, {2, 2}, {3, 2}, {2, 5}} {
		t.Run(fmt.Sprintf("%dx%d", dims[0], dims[1]), func(t *testing.T) {
			intros := pool(models.RoleIntro, dims[0])
			outros := pool(models.RoleOutro, dims[1])

			set := Enumerate(intros, outros)
			if len(set) != dims[0]*dims[1] {
				t.Fatalf("expected %d variations, got %d", dims[0]*dims[1], len(set))
			}

			for n, v := range set {
				wantIntro := intros[n/len(outros)]
				wantOutro := outros[n%len(outros)]
				if v.Intro.ID != wantIntro.ID || v.Outro.ID != wantOutro.ID {
					t.Fatalf("variation %d = (%s, %s), want (%s, %s)",
						n, v.Intro.Filename, v.Outro.Filename, wantIntro.Filename, wantOutro.Filename)
				}
				if v.Index != n {
					t.Errorf("variation %d has index %d", n, v.Index)
				}
			}
		})
	}
}

func TestEnumerateEmptyPool(t *testing.T) {
	cases := []struct {
		name           string
		intros, outros int
	}{
		{"no intros", 0, 3},
		{"no outros", 2, 0},
		{"both empty", 0, 0},
	}

	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			set := Enumerate(pool(models.RoleIntro, c.intros), pool(models.RoleOutro, c.outros))
			if len(set) != 0 {
				t.Fatalf("expected empty set, got %d", len(set))
			}
		})
	}
}

func TestEnumerateWithProducts(t *testing.T) {
	intros := pool(models.RoleIntro, 2)
	products := pool(models.RoleProduct, 3)
	outros := pool(models.RoleOutro, 2)

	set := EnumerateWithProducts(intros, products, outros)
	if len(set) != 12 {
		t.Fatalf("expected 12 variations, got %d", len(set))
	}

	// intro-major, product-mid, outro-minor
	n := 0
	for i := range intros {
		for p := range products {
			for o := range outros {
				v := set[n]
				if v.Intro.ID != intros[i].ID || v.Products[0].ID != products[p].ID || v.Outro.ID != outros[o].ID {
					t.Fatalf("variation %d out of order", n)
				}
				if len(v.Products) != 1 {
					t.Fatalf("variation %d carries %d products", n, len(v.Products))
				}
				n++
			}
		}
	}

	if got := EnumerateWithProducts(intros, nil, outros); len(got) != 0 {
		t.Errorf("expected empty set without products, got %d", len(got))
	}
}

func TestLimitReturnsPrefix(t *testing.T) {
	set := Enumerate(pool(models.RoleIntro, 2), pool(models.RoleOutro, 3))

	for k := 1; k <= len(set); k++ {
		got := Limit(set, k)
		if len(got) != k {
			t.Fatalf("Limit(%d) returned %d", k, len(got))
		}
		for i := range got {
			if got[i].Intro.ID != set[i].Intro.ID || got[i].Outro.ID != set[i].Outro.ID {
				t.Fatalf("Limit(%d)[%d] is not the %dth variation", k, i, i)
			}
		}
	}
}

func TestLimitFullSizeIsIdentity(t *testing.T) {
	set := Enumerate(pool(models.RoleIntro, 3), pool(models.RoleOutro, 2))

	got := Limit(set, len(set))
	if len(got) != len(set) {
		t.Fatalf("expected %d, got %d", len(set), len(got))
	}
	for i := range set {
		if got[i].Index != set[i].Index || got[i].Intro != set[i].Intro || got[i].Outro != set[i].Outro {
			t.Fatalf("variation %d changed", i)
		}
	}
}

func TestLimitClamps(t *testing.T) {
	set := Enumerate(pool(models.RoleIntro, 2), pool(models.RoleOutro, 2))

	cases := []struct {
		k    int
		want int
	}{
		{0, 1},
		{-3, 1},
		{4, 4},
		{10, 4},
	}

	for _, c := range cases {
		if got := Limit(set, c.k); len(got) != c.want {
			t.Errorf("Limit(k=%d) = %d variations, want %d", c.k, len(got), c.want)
		}
	}

	if got := Limit(nil, 3); len(got) != 0 {
		t.Errorf("Limit on empty set returned %d", len(got))
	}
}

func TestCount(t *testing.T) {
	if got := Count(2, 5, 2, false); got != 4 {
		t.Errorf("two-way count = %d, want 4", got)
	}
	if got := Count(2, 5, 2, true); got != 20 {
		t.Errorf("three-way count = %d, want 20", got)
	}
}

func TestAttachMusic(t *testing.T) {
	set := Enumerate(pool(models.RoleIntro, 1), pool(models.RoleOutro, 2))
	music := &models.ClipRef{ID: uuid.New(), Role: models.RoleMusic}

	set = AttachMusic(set, music)
	for i, v := range set {
		if v.Music != music {
			t.Errorf("variation %d has no music", i)
		}
	}
}
