package main

import (
	"flag"
	"fmt"
	"os"

	"awb-agent/internal/awb"
	"awb-agent/internal/config"
	"awb-agent/internal/service"
)

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	fs := flag.NewFlagSet("awbstep", flag.ContinueOnError)
	gridW := fs.Int("grid-width", 0, "sample grid width (default from SAMPLE_GRID_WIDTH)")
	gridH := fs.Int("grid-height", 0, "sample grid height (default from SAMPLE_GRID_HEIGHT)")
	maxSteps := fs.Int("max-steps", 0, "step cap (default from SIMULATE_MAX_STEPS)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() < 1 {
		return fmt.Errorf("usage: awbstep [flags] <frame-file>")
	}
	path := fs.Arg(0)

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if *gridW <= 0 {
		*gridW = cfg.SampleGridWidth
	}
	if *gridH <= 0 {
		*gridH = cfg.SampleGridHeight
	}
	if *maxSteps <= 0 {
		*maxSteps = cfg.SimulateMaxSteps
	}

	b, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading frame: %w", err)
	}
	img, format, err := service.DecodeFrame(b)
	if err != nil {
		return err
	}
	samples, err := service.SamplesFromImage(img, *gridW, *gridH)
	if err != nil {
		return err
	}
	fmt.Printf("Loaded %s: %s %dx%d, %d samples\n", path, format, img.Bounds().Dx(), img.Bounds().Dy(), len(samples))

	p := cfg.AWBParams()
	ctrl, err := awb.NewController(p)
	if err != nil {
		return err
	}

	steps := 0
	gain, settled := service.Converge(ctrl, samples, awb.UniformGain(p.Identity), *maxSteps, func(step int, res awb.Result) {
		steps = step
		g, repr := res.After, res.Stats.Representative
		fmt.Printf("  step %3d: %-12s gain=(%d,%d,%d) repr=(%d,%d,%d) neargray=%.1f%%\n",
			step, res.Outcome, g.R(), g.G(), g.B(), repr.R(), repr.G(), repr.B(),
			res.Stats.NearGrayFraction*100)
	})

	fmt.Println()
	fmt.Println("=== White Balance ===")
	fmt.Printf("  Steps:    %d\n", steps)
	fmt.Printf("  Settled:  %v\n", settled)
	fmt.Printf("  Gain:     r=%d g=%d b=%d (identity %d)\n", gain.R(), gain.G(), gain.B(), p.Identity)
	fmt.Println("=====================")
	return nil
}
