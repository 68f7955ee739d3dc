package ledger

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/xtding233/gacha-ledger/internal/gacha"
)

// RarityScale maps the star count reported by the ledger to a rarity tier.
type RarityScale struct {
	TopStars int // stars of the top tier; TopStars-1 is the second tier
}

// DefaultScale is the six-star scale of the game.
var DefaultScale = RarityScale{TopStars: 6}

// Tier converts a star count.
func (s RarityScale) Tier(stars int) gacha.Rarity {
	switch {
	case stars >= s.TopStars:
		return gacha.RarityTop
	case stars == s.TopStars-1:
		return gacha.RaritySecond
	default:
		return gacha.RarityOther
	}
}

// rawRecord is one ledger entry as sent by the service. Older endpoints use
// alternate field names, so every field is optional here.
type rawRecord struct {
	Seq      json.Number `json:"seq"`
	SeqID    json.Number `json:"seqId"`
	Stars    *int        `json:"rarity"`
	Rank     *int        `json:"rank"`
	ItemID   string      `json:"itemId"`
	CharID   string      `json:"charId"`
	WeaponID string      `json:"weaponId"`
	ItemName string      `json:"itemName"`
	CharName string      `json:"charName"`
	Name     string      `json:"name"`
	PoolID   string      `json:"poolId"`
	PoolName string      `json:"poolName"`
	Free     *bool       `json:"free"`
	IsFree   *bool       `json:"isFree"`
	Time     json.Number `json:"ts"`
	TimeStr  string      `json:"time"`
}

// entry is a normalized record before validation.
type entry struct {
	Seq      *int64 `validate:"required,gte=0"`
	Stars    *int   `validate:"required,gte=1,lte=10"`
	ItemID   string `validate:"max=128"`
	ItemName string `validate:"max=256"`
	PoolID   string `validate:"required,max=128"`
	PoolName string `validate:"max=256"`
	Free     bool
	At       time.Time
}

// Rejected is a ledger entry dropped by the parse step.
type Rejected struct {
	Index  int    `json:"index"`
	Reason string `json:"reason"`
}

var (
	vOnce sync.Once
	valid *validator.Validate
)

func validate() *validator.Validate {
	vOnce.Do(func() {
		valid = validator.New(validator.WithRequiredStructEnabled())
	})
	return valid
}

func firstNonEmpty(ss ...string) string {
	for _, s := range ss {
		if s = strings.TrimSpace(s); s != "" {
			return s
		}
	}
	return ""
}

func (r rawRecord) normalize() (entry, error) {
	var e entry
	if s := firstNonEmpty(r.Seq.String(), r.SeqID.String()); s != "" {
		n, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			return e, fmt.Errorf("seq %q is not an integer", s)
		}
		e.Seq = &n
	}
	e.Stars = r.Stars
	if e.Stars == nil {
		e.Stars = r.Rank
	}
	e.ItemID = firstNonEmpty(r.ItemID, r.CharID, r.WeaponID)
	e.ItemName = firstNonEmpty(r.ItemName, r.CharName, r.Name)
	e.PoolID = strings.TrimSpace(r.PoolID)
	e.PoolName = strings.TrimSpace(r.PoolName)
	switch {
	case r.Free != nil:
		e.Free = *r.Free
	case r.IsFree != nil:
		e.Free = *r.IsFree
	}
	at, err := parseTime(r.Time, r.TimeStr)
	if err != nil {
		return e, err
	}
	e.At = at
	return e, nil
}

// parseTime accepts unix seconds or milliseconds, RFC 3339 or "2006-01-02 15:04:05" (UTC).
func parseTime(n json.Number, s string) (time.Time, error) {
	if n != "" {
		v, err := n.Int64()
		if err != nil {
			return time.Time{}, fmt.Errorf("ts %q is not an integer", n)
		}
		if v > 1e12 {
			return time.UnixMilli(v).UTC(), nil
		}
		return time.Unix(v, 0).UTC(), nil
	}
	if s == "" {
		return time.Time{}, nil
	}
	for _, layout := range []string{time.RFC3339, time.DateTime} {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("time %q has an unknown layout", s)
}

// ParseRecord turns one raw entry into a PullRecord.
func (s RarityScale) ParseRecord(raw json.RawMessage) (gacha.PullRecord, error) {
	var r rawRecord
	if err := json.Unmarshal(raw, &r); err != nil {
		return gacha.PullRecord{}, fmt.Errorf("decode: %w", err)
	}
	e, err := r.normalize()
	if err != nil {
		return gacha.PullRecord{}, err
	}
	if err := validate().Struct(e); err != nil {
		return gacha.PullRecord{}, err
	}
	return gacha.PullRecord{
		Seq:      *e.Seq,
		Rarity:   s.Tier(*e.Stars),
		ItemID:   e.ItemID,
		ItemName: e.ItemName,
		PoolID:   e.PoolID,
		PoolName: e.PoolName,
		Free:     e.Free,
		At:       e.At,
	}, nil
}

// ParseRecords parses every entry; malformed ones are reported, not returned.
func (s RarityScale) ParseRecords(raws []json.RawMessage) ([]gacha.PullRecord, []Rejected) {
	out := make([]gacha.PullRecord, 0, len(raws))
	var rejected []Rejected
	for i, raw := range raws {
		rec, err := s.ParseRecord(raw)
		if err != nil {
			rejected = append(rejected, Rejected{Index: i, Reason: err.Error()})
			continue
		}
		out = append(out, rec)
	}
	return out, rejected
}
