package awb

// CalcStep returns the gain increment for a channel imbalance of delta,
// never less than 1.
func CalcStep(delta int) int {
	step := absInt(delta) / 4
	if step < 1 {
		step = 1
	}
	return step
}

type Stepper struct {
	params Params
}

func NewStepper(p Params) Stepper {
	return Stepper{params: p}
}

// Step moves gain one bounded increment toward equal channel responses for
// the representative colour clr. It reports true, with every channel set to
// the gain ceiling, when all channels are within the break threshold of
// their average.
//
// The adjustment direction follows the channel's value in clr relative to
// the average, not the sign of the gain.
func (s Stepper) Step(clr Color, gain *Gain) bool {
	avg := (clr[Red] + clr[Green] + clr[Blue]) / 3

	var delta [numChannels]int
	balanced := true
	for _, ch := range Channels {
		delta[ch] = avg - clr[ch]
		if absInt(delta[ch]) >= s.params.BreakDiff {
			balanced = false
		}
	}

	if balanced {
		*gain = UniformGain(s.params.Max)
		return true
	}

	for _, ch := range Channels {
		if clr[ch] > avg && gain[ch] > s.params.Identity {
			gain[ch] -= CalcStep(delta[ch])
		}
		if clr[ch] < avg && gain[ch] < s.params.Max {
			gain[ch] += CalcStep(delta[ch])
		}
	}

	// Re-centre once all three channels have left the floor.
	if gain.allAbove(s.params.Identity) {
		gain.addAll(-1)
	}
	return false
}
