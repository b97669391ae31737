package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"

	"github.com/joho/godotenv"

	"awb-agent/internal/awb"
)

type Config struct {
	ListenAddr         string
	DataPath           string
	SampleGridWidth    int
	SampleGridHeight   int
	SimulateMaxSteps   int
	MaxUploadSizeBytes int64

	WBIdentity                int
	WBMax                     int
	BreakDiff                 int
	NearGrayMinBrightness     int
	NearGrayMaxBrightness     int
	NearGrayMaxColorDeviation float64
	NearGrayRequiredAmount    float64
}

func Load() (Config, error) {
	_ = godotenv.Load()

	def := awb.DefaultParams()
	cfg := Config{
		ListenAddr:         getEnv("LISTEN_ADDR", ":8080"),
		DataPath:           getEnv("DATA_PATH", "./data/awb_state.json"),
		SampleGridWidth:    getEnvInt("SAMPLE_GRID_WIDTH", 32),
		SampleGridHeight:   getEnvInt("SAMPLE_GRID_HEIGHT", 24),
		SimulateMaxSteps:   getEnvInt("SIMULATE_MAX_STEPS", 128),
		MaxUploadSizeBytes: getEnvInt64("MAX_UPLOAD_SIZE_BYTES", 32*1024*1024),

		WBIdentity:                getEnvInt("AWB_WB_IDENTITY", def.Identity),
		WBMax:                     getEnvInt("AWB_WB_MAX", def.Max),
		BreakDiff:                 getEnvInt("AWB_BREAK_DIFF", def.BreakDiff),
		NearGrayMinBrightness:     getEnvInt("AWB_NEARGRAY_MIN_BRIGHTNESS", def.NearGrayMinBrightness),
		NearGrayMaxBrightness:     getEnvInt("AWB_NEARGRAY_MAX_BRIGHTNESS", def.NearGrayMaxBrightness),
		NearGrayMaxColorDeviation: getEnvFloat("AWB_NEARGRAY_MAX_COLOR_DEVIATION", def.NearGrayMaxColorDeviation),
		NearGrayRequiredAmount:    getEnvFloat("AWB_NEARGRAY_REQUIRED_AMOUNT", def.NearGrayRequiredAmount),
	}

	if cfg.SampleGridWidth <= 0 || cfg.SampleGridHeight <= 0 {
		return Config{}, errors.New("sample grid width/height must be > 0")
	}
	if cfg.SimulateMaxSteps <= 0 {
		return Config{}, errors.New("simulate max steps must be > 0")
	}
	if cfg.MaxUploadSizeBytes <= 0 {
		return Config{}, errors.New("max upload size must be > 0")
	}
	if err := cfg.AWBParams().Validate(); err != nil {
		return Config{}, fmt.Errorf("awb params: %w", err)
	}

	return cfg, nil
}

func (c Config) AWBParams() awb.Params {
	return awb.Params{
		Identity:                  c.WBIdentity,
		Max:                       c.WBMax,
		BreakDiff:                 c.BreakDiff,
		NearGrayMinBrightness:     c.NearGrayMinBrightness,
		NearGrayMaxBrightness:     c.NearGrayMaxBrightness,
		NearGrayMaxColorDeviation: c.NearGrayMaxColorDeviation,
		NearGrayRequiredAmount:    c.NearGrayRequiredAmount,
	}
}

func getEnv(key, fallback string) string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	return v
}

func getEnvInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

func getEnvInt64(key string, fallback int64) int64 {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return fallback
	}
	return n
}

func getEnvFloat(key string, fallback float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return fallback
	}
	return f
}
