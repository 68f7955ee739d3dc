package token

// Token defines how many units of pull currency a pool charges per draw

type Token struct {
	Name       string `json:"name,omitempty" yaml:"name"`               // e.g. "Stellar Jade", "Star Stone"
	PerDraw    int    `json:"perDraw" yaml:"per_draw"`                  // tokens per single draw, e.g. 160, 250
	PerTenDraw int    `json:"perTenDraw,omitempty" yaml:"per_ten_draw"` // optional; if 0 -> equal to 10 * PerDraw, a special case of PerNDraw
	PerNDraw   int    `json:"perNDraw,omitempty" yaml:"per_n_draw"`     // optional; if 0 -> equal to N * PerDraw
	N          int    `json:"n,omitempty" yaml:"n"`                     // optional; if 0, the batch price is not used
}

// IsZero reports whether no pricing is configured
func (t Token) IsZero() bool {
	return t.PerDraw == 0 && t.PerTenDraw == 0 && t.PerNDraw == 0
}

// Merge fills the unset fields of t from base
func (t Token) Merge(base Token) Token {
	if t.Name == "" {
		t.Name = base.Name
	}
	if t.PerDraw == 0 {
		t.PerDraw = base.PerDraw
	}
	if t.PerTenDraw == 0 {
		t.PerTenDraw = base.PerTenDraw
	}
	if t.PerNDraw == 0 {
		t.PerNDraw = base.PerNDraw
		t.N = base.N
	}
	return t
}

// TokensForDraws returns how many tokens are required for n draws
func (t Token) TokensForDraws(n int) int {
	if n <= 0 {
		return 0
	}
	if t.PerTenDraw > 0 && n >= 10 && t.N <= 1 {
		tens := n / 10
		remTens := n % 10
		return tens*t.PerTenDraw + remTens*t.PerDraw
	}
	if t.PerNDraw > 0 && t.N > 1 && n >= t.N {
		ns := n / t.N
		rem := n % t.N
		return ns*t.PerNDraw + rem*t.PerDraw
	}

	return n * t.PerDraw
}
