// Package cli holds the interactive pieces of the command line: dataset
// path prompting and the console and native-dialog sources of still images.
package cli

import (
	"bufio"
	"fmt"
	"io"
	"strings"

	"github.com/rs/zerolog/log"
)

// PromptForDirectory asks for a directory path on out and reads the answer
// from in. Returns fallback if the user enters nothing or input fails.
func PromptForDirectory(in io.Reader, out io.Writer, fallback string) string {
	fmt.Fprintf(out, "Training dataset directory [%s]: ", fallback)

	reader := bufio.NewReader(in)
	input, err := reader.ReadString('\n')
	if err != nil && input == "" {
		log.Warn().Err(err).Msg("Failed to read input, using default directory")
		return fallback
	}

	input = strings.Trim(strings.TrimSpace(input), `"'`)
	if input == "" {
		return fallback
	}

	return input
}
