package reduce

import "github.com/esimov/halftone/utils"

// Ink selects how a pixel is turned into a brightness value.
type Ink string

const (
	// Luminance measures the Rec. 601 luma of the pixel.
	Luminance Ink = ""
	// Black, Cyan, Magenta and Yellow measure the complement of the
	// ink coverage of the corresponding process color.
	Black   Ink = "k"
	Cyan    Ink = "c"
	Magenta Ink = "m"
	Yellow  Ink = "y"
)

// ParseInk maps a command line name to an Ink.
func ParseInk(s string) (Ink, bool) {
	switch s {
	case "", "lum", "luminance":
		return Luminance, true
	case "k", "black":
		return Black, true
	case "c", "cyan":
		return Cyan, true
	case "m", "magenta":
		return Magenta, true
	case "y", "yellow":
		return Yellow, true
	}
	return Luminance, false
}

func (i Ink) valid() bool {
	switch i {
	case Luminance, Black, Cyan, Magenta, Yellow:
		return true
	}
	return false
}

// measure returns the per pixel brightness function of the ink. The
// inputs are normalized to [0, 1], the output is in [0, 255].
func (i Ink) measure() func(r, g, b float64) float64 {
	switch i {
	case Black, Cyan, Magenta, Yellow:
		return func(r, g, b float64) float64 {
			c, m, y, k := Separate(r, g, b)
			var cov float64
			switch i {
			case Black:
				cov = k
			case Cyan:
				cov = c
			case Magenta:
				cov = m
			case Yellow:
				cov = y
			}
			return 255 * (1 - cov)
		}
	}
	return func(r, g, b float64) float64 {
		return 255 * (0.299*r + 0.587*g + 0.114*b)
	}
}

// Separate converts normalized RGB into naive CMYK ink coverage.
func Separate(r, g, b float64) (c, m, y, k float64) {
	k = 1 - utils.Max(r, utils.Max(g, b))
	if k >= 1 {
		return 0, 0, 0, 1
	}
	c = (1 - r - k) / (1 - k)
	m = (1 - g - k) / (1 - k)
	y = (1 - b - k) / (1 - k)
	return c, m, y, k
}
