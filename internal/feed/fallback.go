package feed

import (
	"sort"
	"time"

	"github.com/abelbrown/vibesphere/internal/model"
)

const sampleBase = "https://commondatastorage.googleapis.com/gtv-videos-bucket/sample/"

// Trending is the editorial list shown when the store has no Pulses yet.
func Trending(now time.Time) []model.Pulse {
	return []model.Pulse{
		{
			ID:          "trending1",
			UserID:      "trending",
			Username:    "TrendingNow",
			VideoURL:    sampleBase + "BigBuckBunny.mp4",
			Caption:     "Amazing viral content! 🔥 #trending #viral",
			Tags:        []string{"trending", "viral", "amazing"},
			Resonance:   1250,
			ResonatedBy: []string{},
			Echoes:      []model.Echo{},
			Ripples:     89,
			Views:       15420,
			Duration:    60,
			CreatedAt:   now.Add(-1 * time.Hour),
		},
		{
			ID:          "trending2",
			UserID:      "trending",
			Username:    "ViralHits",
			VideoURL:    sampleBase + "ElephantsDream.mp4",
			Caption:     "This will blow your mind! 🤯 #mindblown #wow",
			Tags:        []string{"mindblown", "wow", "viral"},
			Resonance:   890,
			ResonatedBy: []string{},
			Echoes:      []model.Echo{},
			Ripples:     67,
			Views:       12300,
			Duration:    45,
			CreatedAt:   now.Add(-2 * time.Hour),
		},
		{
			ID:          "trending3",
			UserID:      "trending",
			Username:    "HotTrends",
			VideoURL:    sampleBase + "ForBiggerBlazes.mp4",
			Caption:     "Everyone is talking about this! 💬 #hot #trending",
			Tags:        []string{"hot", "trending", "talking"},
			Resonance:   2100,
			ResonatedBy: []string{},
			Echoes:      []model.Echo{},
			Ripples:     145,
			Views:       25600,
			Duration:    30,
			CreatedAt:   now.Add(-3 * time.Hour),
		},
	}
}

// IsFallback reports whether id belongs to a built-in Pulse that has no
// document in the store.
func IsFallback(id string) bool {
	switch id {
	case "trending1", "trending2", "trending3", "tiktok1", "instagram1", "tiktok2":
		return true
	}
	return false
}

// FallbackWaves is shown in the Waves view when no stored Pulse is flagged.
func FallbackWaves(now time.Time) []model.Pulse {
	day := 24 * time.Hour
	return []model.Pulse{
		{
			ID: "tiktok1", UserID: "tiktok_user", Username: "DanceVibes",
			VideoURL:  sampleBase + "BigBuckBunny.mp4",
			Caption:   "🔥 Viral dance challenge! Join the trend! #DanceChallenge #Viral",
			Tags:      []string{"dance", "challenge", "viral", "tiktok"},
			Resonance: 2500000, Ripples: 50000, Views: 15000000, Duration: 15,
			ResonatedBy: []string{}, Echoes: []model.Echo{},
			CreatedAt: now.Add(-1 * day), IsWave: true,
		},
		{
			ID: "instagram1", UserID: "instagram_user", Username: "FoodieHeaven",
			VideoURL:  sampleBase + "ElephantsDream.mp4",
			Caption:   "🍕 This pizza recipe will change your life! Recipe in bio 👩‍🍳",
			Tags:      []string{"food", "recipe", "pizza", "cooking"},
			Resonance: 1800000, Ripples: 35000, Views: 12000000, Duration: 30,
			ResonatedBy: []string{}, Echoes: []model.Echo{},
			CreatedAt: now.Add(-2 * day), IsWave: true,
		},
		{
			ID: "tiktok2", UserID: "tiktok_user2", Username: "ComedyCentral",
			VideoURL:  sampleBase + "ForBiggerBlazes.mp4",
			Caption:   "😂 When you try to be cool but... 🤣 #Comedy #Fail #Funny",
			Tags:      []string{"comedy", "funny", "fail", "tiktok"},
			Resonance: 3200000, Ripples: 75000, Views: 22000000, Duration: 12,
			ResonatedBy: []string{}, Echoes: []model.Echo{},
			CreatedAt: now.Add(-3 * day), IsWave: true,
		},
	}
}

// WaveScore ranks trending Pulses: resonance, plus views in thousands, plus
// one point per day of age.
func WaveScore(p model.Pulse, now time.Time) float64 {
	age := now.Sub(p.CreatedAt).Hours() / 24
	return float64(p.Resonance) + float64(p.Views)/1000 + age
}

// RankWaves keeps flagged Pulses and orders them by WaveScore, at most limit.
func RankWaves(ps []model.Pulse, now time.Time, limit int) []model.Pulse {
	waves := make([]model.Pulse, 0, len(ps))
	for _, p := range ps {
		if p.IsWave {
			waves = append(waves, p)
		}
	}
	sort.SliceStable(waves, func(i, j int) bool {
		return WaveScore(waves[i], now) > WaveScore(waves[j], now)
	})
	if limit > 0 && len(waves) > limit {
		waves = waves[:limit]
	}
	return waves
}
