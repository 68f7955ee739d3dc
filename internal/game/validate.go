package game

import (
	"fmt"
	"strings"
)

// ValidateRaw checks semantic constraints of a RawConfig.
// It accepts partial configs; completeness is checked by Resolve.
func ValidateRaw(cfg RawConfig) error {
	var errs []string

	// draw.pity
	if cfg.Draw.Pity != nil && *cfg.Draw.Pity <= 0 {
		errs = append(errs, "draw.pity must be >= 1")
	}
	// draw.p_base
	if cfg.Draw.PBase != nil {
		if *cfg.Draw.PBase <= 0 || *cfg.Draw.PBase > 1 {
			errs = append(errs, "draw.p_base must be in (0,1]")
		}
	}
	if cfg.Draw.SecondTier != nil {
		if *cfg.Draw.SecondTier < 0 || *cfg.Draw.SecondTier >= 1 {
			errs = append(errs, "draw.second_tier must be in [0,1)")
		}
	}

	// soft
	if cfg.Draw.Soft != nil {
		switch cfg.Draw.Soft.Mode {
		case SoftTargetRamp:
			if cfg.Draw.Soft.Target == nil {
				errs = append(errs, "draw.soft.target is required for mode=target_ramp")
			} else if *cfg.Draw.Soft.Target <= 0 || *cfg.Draw.Soft.Target >= 1 {
				errs = append(errs, "draw.soft.target must be in (0,1)")
			}
			if cfg.Draw.Soft.StartAt == nil {
				errs = append(errs, "draw.soft.start_at is required for mode=target_ramp")
			}
		case SoftIncrement:
			if cfg.Draw.Soft.StartAt == nil {
				errs = append(errs, "draw.soft.start_at is required for mode=per_draw_increment")
			}
			if cfg.Draw.Soft.Increment == nil {
				errs = append(errs, "draw.soft.increment is required for mode=per_draw_increment")
			} else if *cfg.Draw.Soft.Increment < 0 || *cfg.Draw.Soft.Increment > 1 {
				errs = append(errs, "draw.soft.increment must be in [0,1]")
			}
		case "", SoftNone:
			// no soft pity
		default:
			errs = append(errs, "draw.soft.mode must be one of: target_ramp, per_draw_increment, none")
		}

		if cfg.Draw.Soft.StartAt != nil {
			if *cfg.Draw.Soft.StartAt < 1 {
				errs = append(errs, "draw.soft.start_at must be >= 1")
			}
			if cfg.Draw.Pity != nil && *cfg.Draw.Soft.StartAt > *cfg.Draw.Pity {
				errs = append(errs, "draw.soft.start_at must satisfy start_at <= pity")
			}
		}
	}

	// banner
	if cfg.Banner != nil && cfg.Banner.Window != nil {
		w := cfg.Banner.Window
		if w.From < 1 || w.To < w.From {
			errs = append(errs, fmt.Sprintf("banner.guarantee_window %d-%d must satisfy 1 <= from <= to", w.From, w.To))
		}
	}

	// tokens (optional)
	if cfg.Tokens != nil {
		fields := []struct {
			name string
			v    *int
		}{
			{"per_draw", cfg.Tokens.PerDraw},
			{"per_ten_draw", cfg.Tokens.PerTenDraw},
			{"per_n_draw", cfg.Tokens.PerNDraw},
		}
		for _, f := range fields {
			if f.v != nil && *f.v < 0 {
				errs = append(errs, "tokens."+f.name+" must be >= 0")
			}
		}
		if cfg.Tokens.PerNDraw != nil && (cfg.Tokens.N == nil || *cfg.Tokens.N < 2) {
			errs = append(errs, "tokens.n must be >= 2 when per_n_draw is set")
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed: %s", strings.Join(errs, "; "))
	}
	return nil
}
