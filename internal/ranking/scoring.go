package ranking

import (
	"sort"

	"github.com/google/uuid"
	"github.com/jonathan/job-tracker/internal/types"
	"github.com/jonathan/job-tracker/internal/vectorindex"
)

type bulletKey struct {
	experienceID uuid.UUID
	index        int
}

// experienceScore is the total relevance of one experience across all requirement queries
type experienceScore struct {
	id      uuid.UUID
	score   float64
	bullets []types.ScoredBullet
}

// accumulate sums hit similarity per bullet across every query result.
// Hits without a parseable experience_id or bullet_index are ignored.
func accumulate(results [][]vectorindex.Hit) map[bulletKey]float64 {
	acc := make(map[bulletKey]float64)
	for _, hits := range results {
		for _, hit := range hits {
			idStr, ok := vectorindex.MetadataString(hit.Metadata, vectorindex.KeyExperienceID)
			if !ok {
				continue
			}
			id, err := uuid.Parse(idStr)
			if err != nil {
				continue
			}
			index, ok := vectorindex.MetadataInt(hit.Metadata, vectorindex.KeyBulletIndex)
			if !ok || index < 0 {
				continue
			}
			acc[bulletKey{experienceID: id, index: index}] += hit.Similarity()
		}
	}
	return acc
}

// rankByAccumulatedScore groups bullet scores by experience and sorts
// experiences by their summed score, highest first.
func rankByAccumulatedScore(acc map[bulletKey]float64) []experienceScore {
	byID := make(map[uuid.UUID]*experienceScore)
	for key, score := range acc {
		es, ok := byID[key.experienceID]
		if !ok {
			es = &experienceScore{id: key.experienceID}
			byID[key.experienceID] = es
		}
		es.score += score
		es.bullets = append(es.bullets, types.ScoredBullet{
			ExperienceID:     key.experienceID,
			BulletIndex:      key.index,
			AccumulatedScore: score,
		})
	}

	ranked := make([]experienceScore, 0, len(byID))
	for _, es := range byID {
		sortBullets(es.bullets)
		ranked = append(ranked, *es)
	}

	// Ties break on id so output does not depend on map order
	sort.Slice(ranked, func(i, j int) bool {
		if ranked[i].score != ranked[j].score {
			return ranked[i].score > ranked[j].score
		}
		return ranked[i].id.String() < ranked[j].id.String()
	})
	return ranked
}

func sortBullets(bullets []types.ScoredBullet) {
	sort.Slice(bullets, func(i, j int) bool {
		if bullets[i].AccumulatedScore != bullets[j].AccumulatedScore {
			return bullets[i].AccumulatedScore > bullets[j].AccumulatedScore
		}
		return bullets[i].BulletIndex < bullets[j].BulletIndex
	})
}

// pruneBullets keeps the top maxBullets scored bullets and resolves their text
// from the stored experience. Indexes past the end of the stored bullets are dropped.
func pruneBullets(exp *types.Experience, scored []types.ScoredBullet, maxBullets int) []string {
	if len(scored) > maxBullets {
		scored = scored[:maxBullets]
	}

	bullets := make([]string, 0, len(scored))
	for _, sb := range scored {
		if sb.BulletIndex >= len(exp.Bullets) {
			continue
		}
		bullets = append(bullets, exp.Bullets[sb.BulletIndex])
	}
	return bullets
}
