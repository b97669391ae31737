package model

import (
	"time"

	"awb-agent/internal/awb"
)

type RGB struct {
	R int `json:"r"`
	G int `json:"g"`
	B int `json:"b"`
}

func FromColor(c awb.Color) RGB { return RGB{R: c.R(), G: c.G(), B: c.B()} }

func FromGain(g awb.Gain) RGB { return RGB{R: g.R(), G: g.G(), B: g.B()} }

func (c RGB) Color() awb.Color { return awb.RGB(c.R, c.G, c.B) }

func (c RGB) Gain() awb.Gain { return awb.Gain{c.R, c.G, c.B} }

func ColorsFromRGB(in []RGB) []awb.Color {
	out := make([]awb.Color, 0, len(in))
	for _, c := range in {
		out = append(out, c.Color())
	}
	return out
}

type GainState struct {
	StreamID    string      `json:"stream_id"`
	CameraID    string      `json:"camera_id,omitempty"`
	Gain        RGB         `json:"gain"`
	Settled     bool        `json:"settled"`
	Steps       int         `json:"steps"`
	LastOutcome string      `json:"last_outcome"`
	ColorMatrix *[9]float64 `json:"color_matrix,omitempty"`
	UpdatedAt   int64       `json:"updated_at_unix_ms"`
}

type StepReport struct {
	StreamID         string  `json:"stream_id"`
	CameraID         string  `json:"camera_id,omitempty"`
	Outcome          string  `json:"outcome"`
	Settled          bool    `json:"settled"`
	GainBefore       RGB     `json:"gain_before"`
	GainAfter        RGB     `json:"gain_after"`
	Representative   RGB     `json:"representative"`
	Corrected        RGB     `json:"corrected"`
	SampleCount      int     `json:"sample_count"`
	NearGrayCount    int     `json:"neargray_count"`
	NearGrayFraction float64 `json:"neargray_fraction"`
	UsedNearGray     bool    `json:"used_neargray"`
	Steps            int     `json:"steps"`
	CreatedAt        int64   `json:"created_at_unix_ms"`
}

type SimulationRun struct {
	RunID   string       `json:"run_id"`
	Settled bool         `json:"settled"`
	Final   RGB          `json:"final_gain"`
	Steps   []StepReport `json:"steps"`
}

type HardwareEnvelope struct {
	CameraID   string `json:"camera_id"`
	StreamID   string `json:"stream_id"`
	Encoding   string `json:"encoding"`
	PayloadB64 string `json:"payload_b64"`
	Gain       RGB    `json:"gain"`
	CreatedAt  int64  `json:"created_at_unix_ms"`
}

type StoredState struct {
	Streams           map[string]GainState        `json:"streams"`
	HardwareOutbox    map[string]HardwareEnvelope `json:"hardware_outbox"`
	LastUpdatedUnixMS int64                       `json:"last_updated_unix_ms"`
	CreatedAt         time.Time                   `json:"created_at"`
}

type Event struct {
	Type      string      `json:"type"`
	Payload   interface{} `json:"payload"`
	CreatedAt int64       `json:"created_at_unix_ms"`
}
