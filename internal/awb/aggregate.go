package awb

// Stats is the outcome of one aggregation pass over a sample collection.
type Stats struct {
	Mean             Color   `json:"mean"`
	NearGrayMean     Color   `json:"neargray_mean"`
	Count            int     `json:"count"`
	NearGrayCount    int     `json:"neargray_count"`
	NearGrayFraction float64 `json:"neargray_fraction"`
	UsedNearGray     bool    `json:"used_neargray"`
	Representative   Color   `json:"representative"`
}

type Aggregator struct {
	params Params
}

func NewAggregator(p Params) Aggregator {
	return Aggregator{params: p}
}

// Brightness is the truncated average of the three channels.
func Brightness(c Color) int {
	return (c[Red] + c[Green] + c[Blue]) / 3
}

// IsNearGray reports whether c lies inside the brightness band and every
// channel deviates from the brightness by less than the configured ratio.
func IsNearGray(c Color, p Params) bool {
	brightness := Brightness(c)
	if brightness < p.NearGrayMinBrightness || brightness > p.NearGrayMaxBrightness {
		return false
	}
	if brightness == 0 {
		return false
	}
	for _, ch := range Channels {
		dev := float64(absInt(c[ch]-brightness)) / float64(brightness)
		if !(dev < p.NearGrayMaxColorDeviation) {
			return false
		}
	}
	return true
}

// Aggregate reduces samples to a representative colour in one pass. The
// near-gray mean is chosen only when nearGray is set and the near-gray
// fraction reaches the required amount. samples must not be empty.
func (a Aggregator) Aggregate(samples []Color, _ ColorMatrix, nearGray bool) Stats {
	var sum, graySum [numChannels]int
	grayCount := 0

	for _, s := range samples {
		isGray := IsNearGray(s, a.params)
		for _, ch := range Channels {
			sum[ch] += s[ch]
			if isGray {
				graySum[ch] += s[ch]
			}
		}
		if isGray {
			grayCount++
		}
	}

	st := Stats{Count: len(samples), NearGrayCount: grayCount}
	if st.Count == 0 {
		return st
	}
	st.NearGrayFraction = float64(grayCount) / float64(st.Count)

	for _, ch := range Channels {
		st.Mean[ch] = sum[ch] / st.Count
		if grayCount > 0 {
			st.NearGrayMean[ch] = graySum[ch] / grayCount
		}
	}

	if !nearGray || st.NearGrayFraction < a.params.NearGrayRequiredAmount || grayCount == 0 {
		st.Representative = st.Mean
		return st
	}
	st.UsedNearGray = true
	st.Representative = st.NearGrayMean
	return st
}
