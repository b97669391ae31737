package awb

import "fmt"

type Outcome int

const (
	// NoSamples: the collection was empty and gain is untouched.
	NoSamples Outcome = iota
	// InvalidGain: a channel entered below identity. It is raised to
	// identity and no step is taken.
	InvalidGain
	// Converged: channels were balanced and gain was pushed to the ceiling.
	Converged
	// Saturated: the step clipped back to the entry gain, so nothing can change.
	Saturated
	// NeedsMore: gain moved and another frame is required.
	NeedsMore
)

func (o Outcome) String() string {
	switch o {
	case NoSamples:
		return "no_samples"
	case InvalidGain:
		return "invalid_gain"
	case Converged:
		return "converged"
	case Saturated:
		return "saturated"
	case NeedsMore:
		return "needs_more"
	default:
		return fmt.Sprintf("outcome(%d)", int(o))
	}
}

// Settled reports whether the calling loop should stop iterating.
func (o Outcome) Settled() bool {
	return o == Converged || o == Saturated
}

type Result struct {
	Outcome Outcome
	Stats   Stats
	Before  Gain
	After   Gain
}

func (r Result) Settled() bool { return r.Outcome.Settled() }

func (r Result) Changed() bool { return r.Before != r.After }

// Controller is the per-frame entry point. It holds no state between calls;
// the gain triple is owned by the caller and must not be mutated
// concurrently while a call is in progress.
type Controller struct {
	params     Params
	aggregator Aggregator
	stepper    Stepper
}

func NewController(p Params) (*Controller, error) {
	if err := p.Validate(); err != nil {
		return nil, fmt.Errorf("awb params: %w", err)
	}
	return &Controller{
		params:     p,
		aggregator: NewAggregator(p),
		stepper:    NewStepper(p),
	}, nil
}

func (c *Controller) Params() Params { return c.params }

// Step runs one white-balance iteration and reports whether gain has settled.
func (c *Controller) Step(samples []Color, matrix ColorMatrix, gain *Gain) bool {
	return c.Run(samples, matrix, gain).Settled()
}

// Run is Step with the full outcome of the iteration.
func (c *Controller) Run(samples []Color, matrix ColorMatrix, gain *Gain) Result {
	res := Result{Before: *gain}
	if len(samples) == 0 {
		res.Outcome = NoSamples
		res.After = *gain
		return res
	}

	raised := false
	for _, ch := range Channels {
		if gain[ch] < c.params.Identity {
			gain[ch] = c.params.Identity
			raised = true
		}
	}
	if raised {
		res.Outcome = InvalidGain
		res.After = *gain
		return res
	}

	// Bring the lowest channel down to identity so the stepper has room to move.
	if gain.allAbove(c.params.Identity) {
		low := gain[Red]
		for _, ch := range Channels {
			if gain[ch] < low {
				low = gain[ch]
			}
		}
		gain.addAll(c.params.Identity - low)
	}

	res.Stats = c.aggregator.Aggregate(samples, matrix, true)
	if c.stepper.Step(res.Stats.Representative, gain) {
		res.Outcome = Converged
		res.After = *gain
		return res
	}

	gain.clip(c.params.Identity, c.params.Max)
	res.After = *gain
	if *gain == res.Before {
		res.Outcome = Saturated
	} else {
		res.Outcome = NeedsMore
	}
	return res
}

// AutoWhiteBalanceStep runs a single iteration with params. It returns false
// without touching gain when params are invalid.
func AutoWhiteBalanceStep(samples []Color, matrix ColorMatrix, gain *Gain, p Params) bool {
	c, err := NewController(p)
	if err != nil {
		return false
	}
	return c.Step(samples, matrix, gain)
}
