package service

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"strings"

	"github.com/disintegration/imaging"
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"

	"awb-agent/internal/awb"
)

// DecodeFrame decodes png, jpeg, gif, bmp and tiff frames.
func DecodeFrame(b []byte) (image.Image, string, error) {
	img, format, err := image.Decode(bytes.NewReader(b))
	if err != nil {
		return nil, "", fmt.Errorf("decode frame: %w", err)
	}
	return img, format, nil
}

// SamplesFromImage box-filters img down to a gridW x gridH grid and returns
// one 8-bit sample per cell, row-major.
func SamplesFromImage(img image.Image, gridW, gridH int) ([]awb.Color, error) {
	if gridW <= 0 || gridH <= 0 {
		return nil, errors.New("sample grid must be > 0")
	}
	b := img.Bounds()
	if b.Empty() {
		return nil, nil
	}
	if gridW > b.Dx() {
		gridW = b.Dx()
	}
	if gridH > b.Dy() {
		gridH = b.Dy()
	}

	cells := imaging.Resize(img, gridW, gridH, imaging.Box)
	samples := make([]awb.Color, 0, gridW*gridH)
	for y := 0; y < gridH; y++ {
		row := cells.Pix[y*cells.Stride:]
		for x := 0; x < gridW; x++ {
			p := row[x*4 : x*4+3]
			samples = append(samples, awb.RGB(int(p[0]), int(p[1]), int(p[2])))
		}
	}
	return samples, nil
}

type BayerPattern string

const (
	BayerRGGB BayerPattern = "rggb"
	BayerBGGR BayerPattern = "bggr"
	BayerGRBG BayerPattern = "grbg"
	BayerGBRG BayerPattern = "gbrg"
)

func ParseBayerPattern(s string) (BayerPattern, error) {
	p := BayerPattern(strings.ToLower(strings.TrimSpace(s)))
	switch p {
	case BayerRGGB, BayerBGGR, BayerGRBG, BayerGBRG:
		return p, nil
	case "":
		return BayerRGGB, nil
	default:
		return "", fmt.Errorf("unsupported bayer pattern %q", s)
	}
}

// DecodeRaw16LE reads width*height little-endian 16-bit pixels.
func DecodeRaw16LE(b []byte, width, height int) ([]uint16, error) {
	if width <= 0 || height <= 0 {
		return nil, errors.New("raw frame width/height must be > 0")
	}
	n := width * height
	if len(b) < n*2 {
		return nil, fmt.Errorf("raw frame too short: have %d bytes, need %d", len(b), n*2)
	}
	out := make([]uint16, n)
	for i := range out {
		out[i] = binary.LittleEndian.Uint16(b[i*2:])
	}
	return out, nil
}

// SamplesFromBayer builds one sample per 2x2 colour-filter quad, taking
// every stride-th quad in each direction. The two greens of a quad are
// averaged and values are scaled down to 8 bits.
//
// Quad layout for the pattern letters (top-left, top-right, bottom-left,
// bottom-right):
//
//	rggb = R G / G B
//	bggr = B G / G R
//	grbg = G R / B G
//	gbrg = G B / R G
func SamplesFromBayer(raw []uint16, width, height int, pattern BayerPattern, bitDepth, stride int) ([]awb.Color, error) {
	if width < 2 || height < 2 {
		return nil, errors.New("bayer frame must be at least 2x2")
	}
	if len(raw) < width*height {
		return nil, fmt.Errorf("bayer frame has %d pixels, need %d", len(raw), width*height)
	}
	if bitDepth < 8 || bitDepth > 16 {
		return nil, fmt.Errorf("bit depth %d out of range [8,16]", bitDepth)
	}
	if stride < 1 {
		stride = 1
	}
	pattern, err := ParseBayerPattern(string(pattern))
	if err != nil {
		return nil, err
	}
	shift := uint(bitDepth - 8)

	offsets := [4][2]int{{0, 0}, {1, 0}, {0, 1}, {1, 1}}
	samples := make([]awb.Color, 0, (width/2/stride+1)*(height/2/stride+1))
	for y := 0; y+1 < height; y += 2 * stride {
		for x := 0; x+1 < width; x += 2 * stride {
			var sum awb.Color
			greens := 0
			for i, off := range offsets {
				v := int(raw[(y+off[1])*width+x+off[0]] >> shift)
				switch pattern[i] {
				case 'r':
					sum[awb.Red] += v
				case 'b':
					sum[awb.Blue] += v
				default:
					sum[awb.Green] += v
					greens++
				}
			}
			sum[awb.Green] /= greens
			samples = append(samples, sum)
		}
	}
	return samples, nil
}
