package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/ncruces/zenity"
	"github.com/rs/zerolog/log"
)

// ConsoleSource reads still-image paths typed (or dropped) on a terminal,
// one per line.
type ConsoleSource struct {
	reader *bufio.Reader
	out    io.Writer
}

// NewConsoleSource reads from in and prints prompts to out.
func NewConsoleSource(in io.Reader, out io.Writer) *ConsoleSource {
	return &ConsoleSource{reader: bufio.NewReader(in), out: out}
}

// Next prompts for and returns the next line. End of input is io.EOF.
func (c *ConsoleSource) Next(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	fmt.Fprint(c.out, "Drag an image to predict from, or type Q to quit: ")

	line, err := c.reader.ReadString('\n')
	if err != nil {
		if errors.Is(err, io.EOF) && line != "" {
			return strings.TrimSpace(line), nil
		}
		return "", err
	}
	return strings.TrimSpace(line), nil
}

// PickerSource asks for still images through the native file dialog.
// Cancelling the dialog ends the input (io.EOF).
type PickerSource struct {
	selectFile func(options ...zenity.Option) (string, error)
}

// NewPickerSource returns a PickerSource backed by zenity.
func NewPickerSource() *PickerSource {
	return &PickerSource{selectFile: zenity.SelectFile}
}

// Next opens the dialog and returns the chosen file.
func (p *PickerSource) Next(ctx context.Context) (string, error) {
	selected, err := p.selectFile(
		zenity.Context(ctx),
		zenity.Title("Select an image to predict from"),
		zenity.FileFilters{
			{
				Name:     "Images",
				Patterns: []string{"*.jpg", "*.jpeg", "*.png", "*.gif"},
			},
		},
	)
	if err != nil {
		if errors.Is(err, zenity.ErrCanceled) {
			log.Info().Msg("Image picker canceled")
			return "", io.EOF
		}
		return "", fmt.Errorf("image picker failed: %w", err)
	}
	return selected, nil
}
