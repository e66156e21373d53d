package crawler

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// LoadSelectors reads a YAML selector profile and lays it over the defaults.
// Keys missing from the file keep their default selector.
func LoadSelectors(path string) (Selectors, error) {
	sel := DefaultSelectors()

	data, err := os.ReadFile(path)
	if err != nil {
		return sel, fmt.Errorf("failed to read selectors: %w", err)
	}

	var override Selectors
	if err := yaml.Unmarshal(data, &override); err != nil {
		return sel, fmt.Errorf("failed to parse selectors: %w", err)
	}

	merge(&sel.Items, override.Items)
	merge(&sel.FallbackItems, override.FallbackItems)
	merge(&sel.StatusLink, override.StatusLink)
	merge(&sel.Time, override.Time)
	merge(&sel.Content, override.Content)
	merge(&sel.Reply, override.Reply)
	merge(&sel.Share, override.Share)
	merge(&sel.Like, override.Like)
	if len(override.WaitMarkers) > 0 {
		sel.WaitMarkers = override.WaitMarkers
	}

	if sel.Items == "" || sel.StatusLink == "" {
		return sel, fmt.Errorf("selectors: items and status_link must not be empty")
	}
	return sel, nil
}

func merge(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}
