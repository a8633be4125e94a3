// Package dataset loads per-event team scouting records for picklist generation.
package dataset

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/yourusername/frc-picklist/internal/models"
)

// ErrUnknownEvent indicates no data exists for an event
var ErrUnknownEvent = errors.New("unknown event")

// Dataset is the unified team view of one event.
type Dataset struct {
	Event   string              `json:"event"`
	Version string              `json:"version,omitempty"`
	Teams   []models.TeamRecord `json:"teams" validate:"required,min=1,dive"`
}

// Provider returns team records for an event.
type Provider interface {
	Load(ctx context.Context, event string) (*Dataset, error)
}

var datasetValidator = validator.New()

// Validate checks team records and rejects duplicate team numbers.
func (d *Dataset) Validate() error {
	if err := datasetValidator.Struct(d); err != nil {
		return fmt.Errorf("invalid dataset: %w", err)
	}
	seen := make(map[int]bool, len(d.Teams))
	for _, t := range d.Teams {
		if seen[t.TeamNumber] {
			return fmt.Errorf("invalid dataset: team %d listed twice", t.TeamNumber)
		}
		seen[t.TeamNumber] = true
	}
	return nil
}

// FileProvider reads datasets from JSON files. A directory path resolves events to
// <dir>/<event>.json; a file path serves that file for every event.
type FileProvider struct {
	path string
}

// NewFileProvider creates a provider rooted at path.
func NewFileProvider(path string) *FileProvider {
	return &FileProvider{path: path}
}

// Load reads and validates the dataset for event.
func (p *FileProvider) Load(ctx context.Context, event string) (*Dataset, error) {
	path := p.path
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open dataset %s: %w", path, err)
	}
	if info.IsDir() {
		if event == "" || strings.ContainsAny(event, `/\`) {
			return nil, fmt.Errorf("%w: %q", ErrUnknownEvent, event)
		}
		path = filepath.Join(path, event+".json")
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrUnknownEvent, event)
		}
		return nil, fmt.Errorf("failed to read dataset: %w", err)
	}

	ds, err := Decode(data)
	if err != nil {
		return nil, err
	}
	if ds.Event == "" {
		ds.Event = event
	}
	if ds.Version == "" {
		if fi, err := os.Stat(path); err == nil {
			ds.Version = fi.ModTime().UTC().Format(time.RFC3339)
		}
	}
	return ds, nil
}

// Decode parses a dataset document: either {"event","version","teams"} or a bare
// array of team records.
func Decode(data []byte) (*Dataset, error) {
	trimmed := strings.TrimSpace(string(data))
	ds := &Dataset{}
	if strings.HasPrefix(trimmed, "[") {
		if err := json.Unmarshal(data, &ds.Teams); err != nil {
			return nil, fmt.Errorf("failed to parse dataset: %w", err)
		}
	} else if err := json.Unmarshal(data, ds); err != nil {
		return nil, fmt.Errorf("failed to parse dataset: %w", err)
	}
	if err := ds.Validate(); err != nil {
		return nil, err
	}
	return ds, nil
}
