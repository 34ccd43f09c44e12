package catalog

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/mmynk/streamshare/internal/storage/sqlite"
)

const sample = `
services:
  - id: netflix-standard
    name: Netflix Standard
    max_screens: 2
  - id: disney-premium
    name: " Disney+ Premium "
    max_screens: 4
`

func TestParse(t *testing.T) {
	services, err := Parse(strings.NewReader(sample))
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if len(services) != 2 {
		t.Fatalf("expected 2 services, got %d", len(services))
	}
	if services[1].Name != "Disney+ Premium" || services[1].MaxScreens != 4 {
		t.Errorf("unexpected service: %+v", services[1])
	}
}

func TestParse_Empty(t *testing.T) {
	services, err := Parse(strings.NewReader(""))
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if len(services) != 0 {
		t.Errorf("expected no services, got %d", len(services))
	}
}

func TestParse_Invalid(t *testing.T) {
	tests := []struct {
		name string
		doc  string
	}{
		{"missing id", "services:\n  - name: X\n    max_screens: 1\n"},
		{"missing name", "services:\n  - id: x\n    max_screens: 1\n"},
		{"no screens", "services:\n  - id: x\n    name: X\n"},
		{"duplicate", "services:\n  - {id: x, name: X, max_screens: 1}\n  - {id: x, name: Y, max_screens: 2}\n"},
		{"unknown key", "services:\n  - {id: x, name: X, max_screens: 1, price: 9}\n"},
		{"not yaml", "services: [\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Parse(strings.NewReader(tt.doc)); err == nil {
				t.Error("expected an error")
			}
		})
	}
}

func TestSeed(t *testing.T) {
	tempDir := t.TempDir()
	store, err := sqlite.New(filepath.Join(tempDir, "test.db"))
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}
	defer store.Close()
	ctx := context.Background()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	path := filepath.Join(tempDir, "catalog.yaml")
	if err := os.WriteFile(path, []byte(sample), 0o644); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}
	services, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	res, err := Seed(ctx, store, services, logger)
	if err != nil {
		t.Fatalf("Seed failed: %v", err)
	}
	if res.Created != 2 {
		t.Errorf("expected 2 created, got %+v", res)
	}

	services[0].MaxScreens = 3
	res, err = Seed(ctx, store, services, logger)
	if err != nil {
		t.Fatalf("second Seed failed: %v", err)
	}
	if res.Updated != 1 || res.Unchanged != 1 || res.Created != 0 {
		t.Errorf("expected 1 updated and 1 unchanged, got %+v", res)
	}

	got, err := store.ListStreamingServices(ctx, []string{"netflix-standard"})
	if err != nil {
		t.Fatalf("ListStreamingServices failed: %v", err)
	}
	if len(got) != 1 || got[0].MaxScreens != 3 {
		t.Errorf("expected updated screen limit, got %+v", got)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Error("expected an error for a missing file")
	}
}
