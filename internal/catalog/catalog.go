// Package catalog loads the streaming services groups can share from a YAML
// file and seeds them into the store.
//
// The file lists one entry per plan:
//
//	services:
//	  - id: netflix-standard
//	    name: Netflix Standard
//	    max_screens: 2
package catalog

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	yaml "gopkg.in/yaml.v3"

	"github.com/mmynk/streamshare/internal/models"
	"github.com/mmynk/streamshare/internal/storage"
)

type file struct {
	Services []entry `yaml:"services"`
}

type entry struct {
	ID         string `yaml:"id"`
	Name       string `yaml:"name"`
	MaxScreens int    `yaml:"max_screens"`
}

// Load reads and validates the catalog at path.
func Load(path string) ([]*models.StreamingService, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open catalog: %w", err)
	}
	defer f.Close()
	return Parse(f)
}

// Parse decodes and validates a catalog. Unknown keys are rejected.
func Parse(r io.Reader) ([]*models.StreamingService, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)

	var doc file
	if err := dec.Decode(&doc); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("failed to decode catalog: %w", err)
	}

	seen := make(map[string]struct{}, len(doc.Services))
	services := make([]*models.StreamingService, 0, len(doc.Services))
	for i, e := range doc.Services {
		id := strings.TrimSpace(e.ID)
		name := strings.TrimSpace(e.Name)
		switch {
		case id == "":
			return nil, fmt.Errorf("catalog entry %d: id is required", i)
		case name == "":
			return nil, fmt.Errorf("catalog entry %q: name is required", id)
		case e.MaxScreens < 1:
			return nil, fmt.Errorf("catalog entry %q: max_screens must be at least 1", id)
		}
		if _, dup := seen[id]; dup {
			return nil, fmt.Errorf("catalog entry %q is listed twice", id)
		}
		seen[id] = struct{}{}
		services = append(services, &models.StreamingService{ID: id, Name: name, MaxScreens: e.MaxScreens})
	}
	return services, nil
}

// SeedResult counts what Seed changed.
type SeedResult struct {
	Created   int
	Updated   int
	Unchanged int
}

// Seed creates missing services and updates changed ones in one
// transaction. Services absent from the catalog are left alone, since
// groups may still reference them. Group capacities are not recomputed
// here; that happens when a group's services are next set.
func Seed(ctx context.Context, store storage.Store, services []*models.StreamingService, logger *slog.Logger) (SeedResult, error) {
	if logger == nil {
		logger = slog.Default()
	}
	var res SeedResult
	if len(services) == 0 {
		return res, nil
	}

	ids := make([]string, len(services))
	for i, s := range services {
		ids[i] = s.ID
	}

	err := store.WithTransaction(ctx, func(tx storage.Queries) error {
		res = SeedResult{}
		existing, err := tx.ListStreamingServices(ctx, ids)
		if err != nil {
			return err
		}
		byID := make(map[string]*models.StreamingService, len(existing))
		for _, s := range existing {
			byID[s.ID] = s
		}

		for _, s := range services {
			cur, ok := byID[s.ID]
			switch {
			case !ok:
				if err := tx.CreateStreamingService(ctx, s); err != nil {
					return err
				}
				res.Created++
			case cur.Name != s.Name || cur.MaxScreens != s.MaxScreens:
				if err := tx.UpdateStreamingService(ctx, s); err != nil {
					return err
				}
				logger.Info("Streaming service updated", "id", s.ID, "max_screens", s.MaxScreens)
				res.Updated++
			default:
				res.Unchanged++
			}
		}
		return nil
	})
	if err != nil {
		return SeedResult{}, fmt.Errorf("failed to seed catalog: %w", err)
	}
	logger.Info("Streaming catalog seeded", "created", res.Created, "updated", res.Updated, "unchanged", res.Unchanged)
	return res, nil
}
