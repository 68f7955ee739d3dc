// types.go
package game

// Raw config loaded from YAML; every field is optional so files can be layered.
type RawConfig struct {
	Version string        `yaml:"version"`
	Draw    DrawConfig    `yaml:"draw"`
	Banner  *BannerConfig `yaml:"banner,omitempty"`
	Tokens  *TokenConfig  `yaml:"tokens,omitempty"`
	Notes   string        `yaml:"notes,omitempty"`
}

type DrawConfig struct {
	PBase      *float64 `yaml:"p_base"`
	Pity       *int     `yaml:"pity"` // hard pity cap
	SecondTier *float64 `yaml:"second_tier"`
	Soft       *SoftCfg `yaml:"soft,omitempty"`
}
type SoftCfg struct {
	Mode      string   `yaml:"mode"` // "per_draw_increment" | "target_ramp" | "none"
	StartAt   *int     `yaml:"start_at,omitempty"`
	Increment *float64 `yaml:"increment,omitempty"` // for per_draw_increment
	Target    *float64 `yaml:"target,omitempty"`    // for target_ramp
	Easing    string   `yaml:"easing,omitempty"`
}
type BannerConfig struct {
	RateUp      *bool      `yaml:"rate_up"`
	Window      *WindowCfg `yaml:"guarantee_window,omitempty"`
	RateUpItems []string   `yaml:"rate_up_items,omitempty"`
}
type WindowCfg struct {
	From int `yaml:"from"`
	To   int `yaml:"to"`
}
type TokenConfig struct {
	Name       string `yaml:"name,omitempty"`
	PerDraw    *int   `yaml:"per_draw"`
	PerTenDraw *int   `yaml:"per_ten_draw"`
	PerNDraw   *int   `yaml:"per_n_draw,omitempty"`
	N          *int   `yaml:"n,omitempty"`
}

const (
	SoftIncrement  = "per_draw_increment"
	SoftTargetRamp = "target_ramp"
	SoftNone       = "none"
)
