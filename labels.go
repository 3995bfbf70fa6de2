package siamtrack

import (
	"bufio"
	"fmt"
	"os"
	"strings"
)

// LoadLabels reads class labels from the given text file, one label per line.
// Blank lines are skipped
func LoadLabels(file string) ([]string, error) {

	f, err := os.Open(file)

	if err != nil {
		return nil, fmt.Errorf("error opening file: %w", err)
	}

	defer f.Close()

	scanner := bufio.NewScanner(f)

	var labels []string

	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())

		if line == "" {
			continue
		}

		labels = append(labels, line)
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("error reading file: %w", err)
	}

	return labels, nil
}

// LabelName returns the label for a class ID, or an empty string when the ID
// is out of range
func LabelName(labels []string, classID int) string {

	if classID < 0 || classID >= len(labels) {
		return ""
	}

	return labels[classID]
}
