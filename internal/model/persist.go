package model

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// snapshotVersion is bumped whenever the persisted layout changes
const snapshotVersion = 1

// snapshot is the persisted form of a fitted model
type snapshot struct {
	Version   int       `json:"version"`
	SavedAt   time.Time `json:"saved_at"`
	Columns   []string  `json:"columns"`
	HoldoutR2 *float64  `json:"holdout_r2,omitempty"`
	Forest    *Forest   `json:"forest"`
}

// Save writes the model to path, creating parent directories as needed
func Save(path string, m *Model) error {
	forest, ok := m.Regressor.(*Forest)
	if !ok || forest == nil {
		return fmt.Errorf("only fitted forests can be saved, got %T", m.Regressor)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create model directory: %w", err)
	}

	data, err := json.Marshal(snapshot{
		Version:   snapshotVersion,
		SavedAt:   time.Now().UTC(),
		Columns:   m.Columns,
		HoldoutR2: m.HoldoutR2,
		Forest:    forest,
	})
	if err != nil {
		return fmt.Errorf("failed to marshal model: %w", err)
	}

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("failed to write model: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("failed to move model into place: %w", err)
	}
	return nil
}

// Load reads a model saved by Save. The returned model is in the Loaded state.
func Load(path string) (*Model, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read model: %w", err)
	}

	var snap snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("failed to decode model: %w", err)
	}
	if snap.Version != snapshotVersion {
		return nil, fmt.Errorf("unsupported model version %d", snap.Version)
	}
	if snap.Forest == nil || len(snap.Forest.Trees) == 0 {
		return nil, fmt.Errorf("model file holds no trees")
	}
	if len(snap.Columns) != snap.Forest.Features {
		return nil, fmt.Errorf("model has %d columns but forest expects %d", len(snap.Columns), snap.Forest.Features)
	}
	for i, tree := range snap.Forest.Trees {
		if tree == nil {
			return nil, fmt.Errorf("tree %d is empty", i)
		}
		if err := tree.validate(snap.Forest.Features); err != nil {
			return nil, fmt.Errorf("tree %d is corrupt: %w", i, err)
		}
	}

	return &Model{
		State:     StateLoaded,
		Columns:   snap.Columns,
		Regressor: snap.Forest,
		HoldoutR2: snap.HoldoutR2,
	}, nil
}
