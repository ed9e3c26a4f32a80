package cmd

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/petalvault/petalvault/internal/frame"
	syncpkg "github.com/petalvault/petalvault/internal/sync"
)

// Scan reads frame payloads from stdin (one per line, as produced by an
// external QR decoder) until a changeset reassembles, then merges it.
func Scan(flagPath string) {
	v := OpenUnlocked(flagPath)
	defer v.Close()

	blob, err := collectBlob(os.Stdin)
	if err != nil {
		HandleError(err)
	}

	result, err := syncpkg.New(v).MergeChangeset(blob)
	if err != nil {
		HandleError(err)
	}

	fmt.Printf("✓ Merged changeset from device %s\n", result.Origin)
	fmt.Printf("  %d record(s): %d applied, %d already known\n",
		result.Records, result.Applied, result.Skipped)
	if result.Created > 0 {
		fmt.Printf("  %d entr%s created\n", result.Created, plural(result.Created, "y", "ies"))
	}
	if result.Updated > 0 {
		fmt.Printf("  %d field(s) updated\n", result.Updated)
	}
	if result.Deleted > 0 {
		fmt.Printf("  %d entr%s deleted\n", result.Deleted, plural(result.Deleted, "y", "ies"))
	}
}

// Preview shows what a scanned changeset would change, without merging
func Preview(flagPath string) {
	v := OpenUnlocked(flagPath)
	defer v.Close()

	blob, err := collectBlob(os.Stdin)
	if err != nil {
		HandleError(err)
	}

	text, err := syncpkg.New(v).Preview(blob)
	if err != nil {
		HandleError(err)
	}
	fmt.Print(text)
}

// collectBlob feeds scanned lines through the frame collector until one
// session completes. The reader goroutine is the single producer, the
// collect loop the single consumer, so a slow merge never blocks the
// scanner mid-line.
func collectBlob(input *os.File) ([]byte, error) {
	lines := make(chan string, 16)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(input)
		scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
		for scanner.Scan() {
			line := strings.TrimSpace(scanner.Text())
			if line != "" {
				lines <- line
			}
		}
	}()

	fmt.Fprintln(os.Stderr, "Paste scanned frames, one per line (Ctrl-D to abort):")

	collector := frame.NewCollector()
	for line := range lines {
		progress, err := collector.Collect(line)
		if err != nil {
			if errors.Is(err, frame.ErrMalformedFrame) {
				fmt.Fprintf(os.Stderr, "Ignored malformed frame: %s\n", err)
				continue
			}
			return nil, err
		}

		if progress.Complete() {
			fmt.Fprintf(os.Stderr, "All %d frame(s) received\n", progress.Total)
			return progress.Blob, nil
		}
		fmt.Fprintf(os.Stderr, "Frame %d/%d received, missing %v\n",
			progress.Received, progress.Total, progress.Missing)
	}

	return nil, fmt.Errorf("input ended before the transfer completed")
}

func plural(n int, one, many string) string {
	if n == 1 {
		return one
	}
	return many
}
