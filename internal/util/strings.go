// Package util holds small shared helpers with no domain knowledge.
package util

import "strings"

// NormalizeLabel trims surrounding whitespace from a label. An empty
// result means the label is unusable.
func NormalizeLabel(label string) string {
	return strings.TrimSpace(label)
}

// NormalizeLabels trims and dedupes a label set, dropping empties and
// preserving first-seen order. Comparison is case-sensitive.
func NormalizeLabels(labels []string) []string {
	result := make([]string, 0, len(labels))
	seen := make(map[string]bool, len(labels))
	for _, label := range labels {
		label = NormalizeLabel(label)
		if label == "" || seen[label] {
			continue
		}
		seen[label] = true
		result = append(result, label)
	}
	return result
}
