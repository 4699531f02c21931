package filehandler

import (
	"fmt"
	"image"
	"image/color"
	_ "image/gif"
	_ "image/jpeg"
	"image/png"
	"os"

	"golang.org/x/image/draw"

	"github.com/fpang/video-sequence-learning/internal/video"
)

// binaryThreshold splits an 8-bit channel into on and off.
const binaryThreshold = 128

// LoadImage decodes a PNG, JPEG or GIF file.
func LoadImage(path string) (image.Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open image: %w", err)
	}
	defer f.Close()

	img, _, err := image.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("failed to decode image %s: %w", path, err)
	}
	return img, nil
}

// Resize scales img to exactly width x height.
func Resize(img image.Image, width, height int) *image.RGBA {
	dst := image.NewRGBA(image.Rect(0, 0, width, height))
	if b := img.Bounds(); b.Dx() == width && b.Dy() == height {
		draw.Draw(dst, dst.Bounds(), img, b.Min, draw.Src)
		return dst
	}
	draw.CatmullRom.Scale(dst, dst.Bounds(), img, img.Bounds(), draw.Src, nil)
	return dst
}

// EncodeImage scales img to width x height and binarises it row by row.
// The result has width*height*mode.BitsPerPixel() entries, each 0 or 1.
func EncodeImage(img image.Image, width, height int, mode video.ColorMode) []int {
	rgba := Resize(img, width, height)
	bits := make([]int, 0, width*height*mode.BitsPerPixel())

	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			c := rgba.RGBAAt(x, y)
			switch mode {
			case video.BlackWhite:
				bits = append(bits, bit(luminance(c)))
			case video.BinarizedRGB:
				bits = append(bits, bit(c.R), bit(c.G), bit(c.B))
			default:
				bits = appendByte(bits, c.R)
				bits = appendByte(bits, c.G)
				bits = appendByte(bits, c.B)
			}
		}
	}
	return bits
}

// DecodeBits renders an encoded frame back into an image.
func DecodeBits(bits []int, width, height int, mode video.ColorMode) (*image.RGBA, error) {
	if want := width * height * mode.BitsPerPixel(); len(bits) != want {
		return nil, fmt.Errorf("encoded frame has %d bits, want %d for %dx%d %s", len(bits), want, width, height, mode)
	}

	img := image.NewRGBA(image.Rect(0, 0, width, height))
	i := 0
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			var c color.RGBA
			switch mode {
			case video.BlackWhite:
				v := level(bits[i])
				c = color.RGBA{R: v, G: v, B: v, A: 0xff}
				i++
			case video.BinarizedRGB:
				c = color.RGBA{R: level(bits[i]), G: level(bits[i+1]), B: level(bits[i+2]), A: 0xff}
				i += 3
			default:
				c = color.RGBA{R: readByte(bits[i:]), G: readByte(bits[i+8:]), B: readByte(bits[i+16:]), A: 0xff}
				i += 24
			}
			img.SetRGBA(x, y, c)
		}
	}
	return img, nil
}

// SavePNG writes img to path.
func SavePNG(path string, img image.Image) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	if err := png.Encode(f, img); err != nil {
		f.Close()
		return fmt.Errorf("failed to encode %s: %w", path, err)
	}
	return f.Close()
}

func luminance(c color.RGBA) uint8 {
	return uint8((299*int(c.R) + 587*int(c.G) + 114*int(c.B)) / 1000)
}

func bit(v uint8) int {
	if v >= binaryThreshold {
		return 1
	}
	return 0
}

func level(b int) uint8 {
	if b != 0 {
		return 0xff
	}
	return 0
}

// appendByte appends the eight bits of v, most significant first.
func appendByte(bits []int, v uint8) []int {
	for shift := 7; shift >= 0; shift-- {
		bits = append(bits, int(v>>shift)&1)
	}
	return bits
}

func readByte(bits []int) uint8 {
	var v uint8
	for i := 0; i < 8; i++ {
		v = v<<1 | uint8(bits[i]&1)
	}
	return v
}
