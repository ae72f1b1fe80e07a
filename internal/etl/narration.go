package etl

import (
	"context"
	"fmt"
	"time"

	"github.com/hiswaca/etl-console/internal/model"
)

// DefaultCadence is the delay before each scripted line.
const DefaultCadence = 600 * time.Millisecond

const pipelineVersion = "v2.4"

// Script returns the cosmetic pipeline narration for one submission. It is not
// derived from backend progress.
func Script(dm model.DataModel, fileName, period string) []string {
	if period == "" {
		period = "not specified"
	}
	return []string{
		fmt.Sprintf("Initializing pipeline %s...", pipelineVersion),
		fmt.Sprintf("Loading SQL schema: %s...", dm.Code),
		fmt.Sprintf("Analyzing file: %q...", fileName),
		fmt.Sprintf("Checking period: %s...", period),
		"Cleaning columns (strip whitespace)...",
		fmt.Sprintf("Validating data types (domain: %s)...", dm.Label),
		"Anomaly detection: 0 found.",
		"Inserting into database...",
		"Generating output file...",
	}
}

func SuccessLine(count int) string {
	return fmt.Sprintf("✓ %d indicators created successfully", count)
}

func ArtifactLine(ref string) string {
	return fmt.Sprintf("✓ Output file generated: %s", ref)
}

func FailureLine(message string) string {
	return fmt.Sprintf("✗ Error: %s", message)
}

// Narrator plays scripted lines at a steady cadence.
type Narrator struct {
	Cadence time.Duration
}

// Play waits Cadence before emitting each line. It stops early when ctx is done or
// emit returns false, and returns the number of lines emitted.
func (n Narrator) Play(ctx context.Context, lines []string, emit func(string) bool) int {
	played := 0
	for _, line := range lines {
		if n.Cadence > 0 {
			timer := time.NewTimer(n.Cadence)
			select {
			case <-ctx.Done():
				timer.Stop()
				return played
			case <-timer.C:
			}
		} else if ctx.Err() != nil {
			return played
		}
		if !emit(line) {
			return played
		}
		played++
	}
	return played
}
