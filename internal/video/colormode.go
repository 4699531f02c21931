package video

import (
	"encoding/json"
	"fmt"
	"strings"
)

// ColorMode selects how a pixel is binarised. Its value is the number of
// bits produced per pixel.
type ColorMode int

const (
	// BlackWhite thresholds the luminance into one bit.
	BlackWhite ColorMode = 1
	// BinarizedRGB thresholds each channel into one bit.
	BinarizedRGB ColorMode = 3
	// Pure keeps all eight bits of each channel.
	Pure ColorMode = 24
)

// ParseColorMode accepts the names used in the video configuration file.
func ParseColorMode(s string) (ColorMode, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "BLACKWHITE", "BW":
		return BlackWhite, nil
	case "BINARIZEDRGB", "RGB":
		return BinarizedRGB, nil
	case "PURE":
		return Pure, nil
	}
	return 0, fmt.Errorf("unknown color mode %q", s)
}

// BitsPerPixel returns the number of encoded bits per pixel.
func (c ColorMode) BitsPerPixel() int {
	return int(c)
}

// Valid reports whether c is one of the known modes.
func (c ColorMode) Valid() bool {
	switch c {
	case BlackWhite, BinarizedRGB, Pure:
		return true
	}
	return false
}

func (c ColorMode) String() string {
	switch c {
	case BlackWhite:
		return "BLACKWHITE"
	case BinarizedRGB:
		return "BINARIZEDRGB"
	case Pure:
		return "PURE"
	}
	return fmt.Sprintf("ColorMode(%d)", int(c))
}

// MarshalJSON writes the mode by name.
func (c ColorMode) MarshalJSON() ([]byte, error) {
	return json.Marshal(c.String())
}

// UnmarshalJSON accepts either the mode name or its bits-per-pixel value.
func (c *ColorMode) UnmarshalJSON(data []byte) error {
	var name string
	if err := json.Unmarshal(data, &name); err == nil {
		mode, err := ParseColorMode(name)
		if err != nil {
			return err
		}
		*c = mode
		return nil
	}

	var n int
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("color mode must be a name or a number: %w", err)
	}
	mode := ColorMode(n)
	if !mode.Valid() {
		return fmt.Errorf("unknown color mode %d", n)
	}
	*c = mode
	return nil
}
