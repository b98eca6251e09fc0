package engine

import (
	"math/rand/v2"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ollamad/internal/apperr"
	"ollamad/pkg/types"
)

func randomLogits(r *rand.Rand, n int) []float32 {
	out := make([]float32, n)
	for i := range out {
		out[i] = float32(r.NormFloat64() * 3)
	}
	return out
}

func TestSamplerSeededIsDeterministic(t *testing.T) {
	seed := int64(42)
	cfg := Defaults()
	cfg.Seed = &seed
	a, b := NewSampler(cfg), NewSampler(cfg)
	r := rand.New(rand.NewPCG(1, 2))
	var genA, genB []int
	for i := 0; i < 64; i++ {
		logits := randomLogits(r, 100)
		x, err := a.Sample(logits, genA)
		require.NoError(t, err)
		y, err := b.Sample(logits, genB)
		require.NoError(t, err)
		require.Equal(t, x, y, "step %d", i)
		genA, genB = append(genA, x), append(genB, y)
	}
}

func TestSamplerTopKOnePicksArgmax(t *testing.T) {
	cfg := Defaults()
	cfg.TopK = 1
	s := NewSampler(cfg)
	for i := 0; i < 20; i++ {
		id, err := s.Sample([]float32{0.1, 2.5, 2.4, -1}, nil)
		require.NoError(t, err)
		assert.Equal(t, 1, id)
	}
}

func TestSamplerTopPKeepsNucleus(t *testing.T) {
	cfg := Defaults()
	cfg.Temperature = 1
	cfg.TopP = 0.5
	s := NewSampler(cfg)
	// token 0 alone carries well over half the mass
	for i := 0; i < 50; i++ {
		id, err := s.Sample([]float32{5, 1, 1, 1}, nil)
		require.NoError(t, err)
		assert.Equal(t, 0, id)
	}
}

func TestSamplerRepeatPenaltyShiftsChoice(t *testing.T) {
	cfg := Defaults()
	cfg.Temperature = 1
	cfg.TopP = 1
	cfg.TopK = 2
	cfg.RepeatPenalty = 1e6
	seed := int64(7)
	cfg.Seed = &seed
	s := NewSampler(cfg)
	// equal logits; the previously generated token is suppressed
	for i := 0; i < 20; i++ {
		id, err := s.Sample([]float32{1, 1}, []int{0})
		require.NoError(t, err)
		assert.Equal(t, 1, id)
	}
}

func TestSamplerNoLogits(t *testing.T) {
	_, err := NewSampler(Defaults()).Sample(nil, nil)
	assert.Error(t, err)
}

func TestConfigValidate(t *testing.T) {
	require.NoError(t, Defaults().Validate())
	bad := []func(*Config){
		func(c *Config) { c.Temperature = 0 },
		func(c *Config) { c.TopP = 0 },
		func(c *Config) { c.TopP = 1.5 },
		func(c *Config) { c.TopK = 0 },
		func(c *Config) { c.MaxTokens = -1 },
		func(c *Config) { c.RepeatPenalty = 0.5 },
	}
	for i, mut := range bad {
		c := Defaults()
		mut(&c)
		err := c.Validate()
		assert.True(t, apperr.Is(err, apperr.KindBadRequest), "case %d: %v", i, err)
	}
}

func TestConfigMerge(t *testing.T) {
	temp, k, n, seed := 0.2, 5, 16, int64(3)
	c := Defaults().Merge(&types.Options{Temperature: &temp, TopK: &k, NumPredict: &n, Seed: &seed})
	assert.Equal(t, 0.2, c.Temperature)
	assert.Equal(t, 5, c.TopK)
	assert.Equal(t, 16, c.MaxTokens)
	assert.Equal(t, 0.9, c.TopP)
	require.NotNil(t, c.Seed)
	assert.Equal(t, int64(3), *c.Seed)
	assert.Equal(t, Defaults(), Defaults().Merge(nil))
}

func TestEstimateSplit(t *testing.T) {
	p, e := EstimateSplit(time.Second)
	assert.Equal(t, 100*time.Millisecond, p)
	assert.Equal(t, 900*time.Millisecond, e)
	p, e = EstimateSplit(0)
	assert.Zero(t, p)
	assert.Zero(t, e)
}
