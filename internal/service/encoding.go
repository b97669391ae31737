package service

import (
	"encoding/binary"

	"awb-agent/internal/awb"
)

const (
	EncodingGainU8    = "wb_u8x3"
	EncodingGainU16BE = "wb_u16bex3"
)

// EncodeGain picks the narrowest register layout that holds ceiling.
func EncodeGain(g awb.Gain, ceiling int) (string, []byte) {
	if ceiling <= 0xFF {
		return EncodingGainU8, EncodeGainU8(g)
	}
	return EncodingGainU16BE, EncodeGainU16BE(g)
}

func EncodeGainU8(g awb.Gain) []byte {
	out := make([]byte, 0, 3)
	for _, ch := range awb.Channels {
		out = append(out, byte(clampInt(g[ch], 0, 0xFF)))
	}
	return out
}

func EncodeGainU16BE(g awb.Gain) []byte {
	out := make([]byte, 0, 6)
	for _, ch := range awb.Channels {
		out = binary.BigEndian.AppendUint16(out, uint16(clampInt(g[ch], 0, 0xFFFF)))
	}
	return out
}

// ApplyGain scales samples the way the sensor applies white-balance gain:
// value * gain / identity, clamped to ceiling.
func ApplyGain(samples []awb.Color, g awb.Gain, identity, ceiling int) []awb.Color {
	out := make([]awb.Color, len(samples))
	for i, s := range samples {
		for _, ch := range awb.Channels {
			out[i][ch] = clampInt(s[ch]*g[ch]/identity, 0, ceiling)
		}
	}
	return out
}

func clampInt(v, min, max int) int {
	if v < min {
		return min
	}
	if v > max {
		return max
	}
	return v
}
