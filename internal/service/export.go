package service

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"pwguess/internal/service/montecarlo"
)

// WriteCrackedList writes one line per cracked password:
// password, ml2p, count and guess number, tab separated
func WriteCrackedList(w io.Writer, entries []montecarlo.Entry) error {
	bw := bufio.NewWriter(w)
	for _, e := range entries {
		if _, err := fmt.Fprintf(bw, "%s\t%.8f\t%d\t%.8f\n", e.Password, e.ML2P, e.Count, e.GuessNumber); err != nil {
			return err
		}
	}
	return bw.Flush()
}

// WriteReport writes a guessing curve: password, ml2p, count, guess number,
// cumulative cracked count and cracked percentage
func WriteReport(w io.Writer, report *montecarlo.GuessReport) error {
	bw := bufio.NewWriter(w)
	for _, e := range report.Entries {
		if _, err := fmt.Fprintf(bw, "%s\t%.8f\t%d\t%.8f\t%d\t%5.2f\n",
			e.Password, e.ML2P, e.Count, e.GuessNumber, e.Cracked, e.Ratio); err != nil {
			return err
		}
	}
	return bw.Flush()
}

// WriteSectional writes the guessing curve stitched together from all rounds
func WriteSectional(w io.Writer, entries []SectionalEntry) error {
	bw := bufio.NewWriter(w)
	for _, e := range entries {
		if _, err := fmt.Fprintf(bw, "%s\t%.8f\t%d\t%.8f\t%d\t%5.2f\n",
			e.Password, e.ML2P, e.Count, e.GuessNumber, e.Cracked, e.Ratio); err != nil {
			return err
		}
	}
	return bw.Flush()
}

// WriteSamples writes the distinct sampled passwords: password, ml2p and
// how many times it was drawn
func WriteSamples(w io.Writer, index *montecarlo.SampleIndex) error {
	bw := bufio.NewWriter(w)
	for _, e := range index.Entries() {
		if _, err := fmt.Fprintf(bw, "%s\t%.8f\t%d\n", e.Password, e.ML2P, e.Count); err != nil {
			return err
		}
	}
	return bw.Flush()
}

// WriteSnapshot writes the configuration snapshot as indented JSON
func WriteSnapshot(w io.Writer, snap ConfigSnapshot) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(snap)
}

// ExportFile creates path, creating parent directories, and fills it with write
func ExportFile(path string, write func(io.Writer) error) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	if err := write(f); err != nil {
		f.Close()
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return f.Close()
}
