package e2e

import (
	"context"
	"os"
	"path/filepath"
	"time"

	"github.com/abelbrown/vibesphere/internal/docstore"
	"github.com/abelbrown/vibesphere/internal/model"
)

// seedFixtureDB writes two Pulses into the store the TUI opens under
// homeDir.
func seedFixtureDB(homeDir string) error {
	dataDir := filepath.Join(homeDir, ".vibesphere")
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return err
	}
	st, err := docstore.Open(filepath.Join(dataDir, "vibesphere.db"))
	if err != nil {
		return err
	}
	defer st.Close()

	now := time.Now().UTC()
	pulses := []model.Pulse{
		{
			ID:          "pulse-1",
			UserID:      "fixture-user",
			Username:    "fixture",
			VideoURL:    "https://example.com/fixture-1.mp4",
			Caption:     "Fixture Dance One",
			Tags:        []string{"dance"},
			ResonatedBy: []string{},
			Echoes:      []model.Echo{},
			Duration:    12,
			CreatedAt:   now.Add(-10 * time.Minute),
		},
		{
			ID:          "pulse-2",
			UserID:      "fixture-user",
			Username:    "fixture",
			VideoURL:    "https://example.com/fixture-2.mp4",
			Caption:     "Quiet sunset clip",
			Tags:        []string{"sunset"},
			ResonatedBy: []string{},
			Echoes:      []model.Echo{},
			Duration:    20,
			CreatedAt:   now.Add(-5 * time.Minute),
		},
	}
	ctx := context.Background()
	for _, p := range pulses {
		if _, err := st.Set(ctx, model.CollectionPulses, p.ID, p); err != nil {
			return err
		}
	}
	return nil
}
