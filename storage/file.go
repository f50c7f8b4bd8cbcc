package storage

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/use-agent/haunt/models"
)

// LoadTargetsFile seeds a MemoryStore from a JSON file containing an array
// of targets. Targets without an ID or URL are rejected so a bad entry
// surfaces at startup instead of as a confusing run failure later.
func LoadTargetsFile(path string) (*MemoryStore, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read targets file: %w", err)
	}

	var targets []*models.Target
	if err := json.Unmarshal(data, &targets); err != nil {
		return nil, fmt.Errorf("parse targets file %s: %w", path, err)
	}

	store := NewMemoryStore()
	for i, t := range targets {
		if t.ID == "" {
			return nil, fmt.Errorf("targets file %s: entry %d has no id", path, i)
		}
		if t.URL == "" {
			return nil, fmt.Errorf("targets file %s: target %q has no url", path, t.ID)
		}
		store.Put(t)
	}
	return store, nil
}
