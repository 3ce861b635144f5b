package feed

import (
	"context"
	"fmt"
	"time"

	"github.com/abelbrown/vibesphere/internal/docstore"
	"github.com/abelbrown/vibesphere/internal/logging"
	"github.com/abelbrown/vibesphere/internal/model"
)

const (
	wavesWindow = 50 // newest pulses considered
	wavesLimit  = 20
)

// LoadWaves returns the trending view: flagged Pulses among the newest 50,
// ranked by WaveScore. When none are flagged the built-in waves are used.
func LoadWaves(ctx context.Context, store docstore.Store, now time.Time) ([]model.Pulse, bool, error) {
	page, err := store.QueryPage(ctx, docstore.Query{
		Collection: model.CollectionPulses,
		OrderBy:    "createdAt",
		Descending: true,
		Limit:      wavesWindow,
	})
	if err != nil {
		return nil, false, fmt.Errorf("query waves: %w", err)
	}
	ps := make([]model.Pulse, 0, len(page.Docs))
	for _, d := range page.Docs {
		p, err := decodePulse(d)
		if err != nil {
			logging.Warn("waves: skipping undecodable pulse", "id", d.ID, "error", err)
			continue
		}
		ps = append(ps, p)
	}
	waves := RankWaves(ps, now, wavesLimit)
	if len(waves) == 0 {
		return FallbackWaves(now), true, nil
	}
	return waves, false, nil
}
