// Package scoring turns an extraction result into the visibility score. The
// formula here is the single source of truth: nothing else in the system may
// compute visibility differently, including the manual correction path,
// which re-runs this function over corrected extraction inputs.
package scoring

import (
	"math"
	"sort"

	"github.com/aurascan-ai/aurascan-engine/pkg/models"
)

const (
	absentBase    = 5.0
	absentFloor   = 0.0
	absentCeiling = 2.0

	presentBase        = 6.0
	presentFloor       = 3.0
	competitorWeight   = 0.3
	maxCompetitorDrag  = 2.0
	absentCompetitorWt = 0.2
)

// positionBonus rewards the org brand appearing early among all mentions:
// first mention overall earns the largest bonus, dropping off to nothing
// from fourth place on.
var positionBonus = []float64{1.5, 1.0, 0.5}

// Score derives the visibility score for one run, deterministic over its
// extraction result.
//
// Org brand absent: score starts at 5.0 minus 0.2 per competitor, clamped
// into [0, 2.0]. A low ceiling that shrinks with competitor density.
//
// Org brand present: 6.0 plus the position bonus minus a competitor penalty
// capped at 2.0, floored at 3.0. The result is always clamped to [0, 10]
// and rounded to one decimal.
func Score(extraction models.ExtractionResult) models.ScoreRecord {
	competitorCount := len(extraction.Competitors)

	record := models.ScoreRecord{
		OrgBrandPresent: len(extraction.OrgBrands) > 0,
		CompetitorCount: competitorCount,
	}

	if !record.OrgBrandPresent {
		raw := absentBase - absentCompetitorWt*float64(competitorCount)
		record.Score = round1(clamp(raw, absentFloor, absentCeiling))
		return record
	}

	rank := prominenceRank(extraction)
	record.OrgBrandProminence = &rank

	bonus := 0.0
	if rank <= len(positionBonus) {
		bonus = positionBonus[rank-1]
	}
	penalty := math.Min(maxCompetitorDrag, competitorWeight*float64(competitorCount))

	raw := presentBase + bonus - penalty
	if raw < presentFloor {
		raw = presentFloor
	}
	record.Score = round1(clamp(raw, 0, 10))
	return record
}

// prominenceRank returns the 1-based rank of the org brand's first mention
// among all mentions, ordered by first occurrence position. Rank 1 means the
// org brand is the first brand the response names.
func prominenceRank(extraction models.ExtractionResult) int {
	orgFirst := earliest(extraction.OrgBrands)

	positions := make([]float64, 0, len(extraction.OrgBrands)+len(extraction.Competitors))
	for _, m := range extraction.OrgBrands {
		positions = append(positions, m.FirstPosRatio)
	}
	for _, m := range extraction.Competitors {
		positions = append(positions, m.FirstPosRatio)
	}
	sort.Float64s(positions)

	for i, p := range positions {
		if p >= orgFirst {
			return i + 1
		}
	}
	return len(positions)
}

// earliest returns the smallest first-position ratio among mentions.
func earliest(mentions []models.Mention) float64 {
	best := math.Inf(1)
	for _, m := range mentions {
		if m.FirstPosRatio < best {
			best = m.FirstPosRatio
		}
	}
	return best
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// round1 rounds to one decimal place.
func round1(v float64) float64 {
	return math.Round(v*10) / 10
}
