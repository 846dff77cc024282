package sampling

import (
	"fmt"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func makeUnits(repo string, n int, baseScore float64) []Unit {
	var out []Unit
	for i := 0; i < n; i++ {
		out = append(out, Unit{
			ID:          fmt.Sprintf("%s-%02d", repo, i),
			Repo:        repo,
			ImpactScore: baseScore - float64(i),
		})
	}
	return out
}

func TestSelectBelowThresholdTakesAll(t *testing.T) {
	units := makeUnits("api", 4, 10)
	res := Select(units, DefaultConfig(), rand.New(rand.NewSource(1)))
	assert.Len(t, res.Selected, 4)
	require.Len(t, res.Summaries, 1)
	assert.True(t, res.Summaries[0].TookAll)
	assert.Equal(t, 4, res.Summaries[0].SampledUnits)
}

func TestSelectNeverExceedsPerRepoCap(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxTotalSamples = 0
	units := makeUnits("api", 30, 100)
	res := Select(units, cfg, rand.New(rand.NewSource(2)))
	assert.LessOrEqual(t, len(res.Selected), cfg.MaxPerRepo)
}

func TestSelectAlwaysIncludesTopImpactPerRepo(t *testing.T) {
	var units []Unit
	units = append(units, makeUnits("api", 12, 50)...)
	units = append(units, makeUnits("web", 12, 80)...)
	units = append(units, makeUnits("infra", 2, 5)...)
	for seed := int64(0); seed < 5; seed++ {
		res := Select(units, DefaultConfig(), rand.New(rand.NewSource(seed)))
		assert.True(t, res.Selected["api-00"], "seed=%d", seed)
		assert.True(t, res.Selected["web-00"], "seed=%d", seed)
		assert.True(t, res.Selected["infra-00"], "seed=%d", seed)
	}
}

func TestSelectIncludesFlaggedExtras(t *testing.T) {
	units := makeUnits("api", 20, 100)
	// A low-impact hotfix outside the top-impact picks.
	units[15].IsHotfix = true
	cfg := DefaultConfig()
	cfg.MaxTotalSamples = 0
	res := Select(units, cfg, rand.New(rand.NewSource(3)))
	assert.True(t, res.Selected[units[15].ID])
}

func TestSelectRespectsGlobalCap(t *testing.T) {
	var units []Unit
	for r := 0; r < 6; r++ {
		units = append(units, makeUnits(fmt.Sprintf("repo%d", r), 15, float64(100-r))...)
	}
	cfg := DefaultConfig()
	cfg.MaxTotalSamples = 10
	for seed := int64(0); seed < 5; seed++ {
		res := Select(units, cfg, rand.New(rand.NewSource(seed)))
		assert.LessOrEqual(t, len(res.Selected), 10, "seed=%d", seed)
	}
}

func TestSelectGlobalCapPrefersRepoTops(t *testing.T) {
	var units []Unit
	for r := 0; r < 4; r++ {
		units = append(units, makeUnits(fmt.Sprintf("repo%d", r), 15, float64(100+r))...)
	}
	cfg := DefaultConfig()
	cfg.MaxTotalSamples = 8
	res := Select(units, cfg, rand.New(rand.NewSource(7)))
	require.LessOrEqual(t, len(res.Selected), 8)
	for r := 0; r < 4; r++ {
		assert.True(t, res.Selected[fmt.Sprintf("repo%d-00", r)], "repo%d top unit", r)
	}
}

func TestSelectEmptyInput(t *testing.T) {
	res := Select(nil, DefaultConfig(), nil)
	assert.Empty(t, res.Selected)
	assert.Empty(t, res.Summaries)
}

func TestSelectBoundsHoldAcrossSeeds(t *testing.T) {
	var units []Unit
	units = append(units, makeUnits("api", 25, 100)...)
	units = append(units, makeUnits("web", 3, 10)...)
	cfg := DefaultConfig()
	for seed := int64(0); seed < 20; seed++ {
		res := Select(units, cfg, rand.New(rand.NewSource(seed)))
		assert.LessOrEqual(t, len(res.Selected), cfg.MaxTotalSamples, "seed=%d", seed)
		// A repo under the threshold is fully sampled regardless of the draw.
		assert.True(t, res.Selected["web-00"] && res.Selected["web-01"] && res.Selected["web-02"], "seed=%d", seed)
	}
}
