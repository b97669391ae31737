// Package awb computes one incremental white-balance gain correction per
// call. The caller owns the gain triple and invokes Step once per frame
// until it reports the gains as settled.
package awb

import (
	"errors"
	"fmt"
)

type Channel int

const (
	Red Channel = iota
	Green
	Blue

	numChannels = 3
)

// Channels is the evaluation order used by every per-channel pass.
var Channels = [numChannels]Channel{Red, Green, Blue}

func (c Channel) String() string {
	switch c {
	case Red:
		return "r"
	case Green:
		return "g"
	case Blue:
		return "b"
	default:
		return fmt.Sprintf("channel(%d)", int(c))
	}
}

// Color is a sample or representative colour indexed by Channel. Channel
// values are non-negative intensities.
type Color [numChannels]int

func RGB(r, g, b int) Color { return Color{r, g, b} }

func (c Color) R() int { return c[Red] }
func (c Color) G() int { return c[Green] }
func (c Color) B() int { return c[Blue] }

// Gain is the white-balance state, indexed by Channel.
type Gain [numChannels]int

func UniformGain(v int) Gain { return Gain{v, v, v} }

func (g Gain) R() int { return g[Red] }
func (g Gain) G() int { return g[Green] }
func (g Gain) B() int { return g[Blue] }

func (g Gain) allAbove(v int) bool {
	return g[Red] > v && g[Green] > v && g[Blue] > v
}

func (g *Gain) addAll(delta int) {
	for _, ch := range Channels {
		g[ch] += delta
	}
}

func (g *Gain) clip(lo, hi int) {
	for _, ch := range Channels {
		g[ch] = clampInt(g[ch], lo, hi)
	}
}

type Params struct {
	Identity  int `json:"wb_identity"`
	Max       int `json:"wb_max"`
	BreakDiff int `json:"break_diff"`

	NearGrayMinBrightness     int     `json:"neargray_min_brightness"`
	NearGrayMaxBrightness     int     `json:"neargray_max_brightness"`
	NearGrayMaxColorDeviation float64 `json:"neargray_max_color_deviation"`
	NearGrayRequiredAmount    float64 `json:"neargray_required_amount"`
}

func DefaultParams() Params {
	return Params{
		Identity:                  64,
		Max:                       255,
		BreakDiff:                 2,
		NearGrayMinBrightness:     10,
		NearGrayMaxBrightness:     253,
		NearGrayMaxColorDeviation: 0.25,
		NearGrayRequiredAmount:    0.08,
	}
}

func (p Params) Validate() error {
	if p.Identity < 1 {
		return errors.New("wb identity must be >= 1")
	}
	if p.Max <= p.Identity {
		return errors.New("wb max must be > wb identity")
	}
	if p.BreakDiff < 1 {
		return errors.New("break diff must be >= 1")
	}
	if p.NearGrayMinBrightness < 0 || p.NearGrayMinBrightness > p.NearGrayMaxBrightness {
		return errors.New("near-gray brightness band must satisfy 0 <= min <= max")
	}
	if p.NearGrayMaxColorDeviation <= 0 {
		return errors.New("near-gray max color deviation must be > 0")
	}
	// A zero required amount would let the near-gray mean be selected with no
	// near-gray samples.
	if p.NearGrayRequiredAmount <= 0 || p.NearGrayRequiredAmount > 1 {
		return errors.New("near-gray required amount must be in (0,1]")
	}
	return nil
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func absInt(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
