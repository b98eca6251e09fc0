package engine

import (
	"errors"
	"math"
	"math/rand/v2"
	"sort"
)

var errNoLogits = errors.New("backend returned no logits")

// Sampler picks the next token from a logits vector. Filters run in a fixed order:
// temperature, top-k, top-p, repeat penalty; the survivors are then sampled.
type Sampler struct {
	cfg Config
	rng *rand.Rand
}

type candidate struct {
	id int
	p  float64
}

// NewSampler builds a sampler for cfg. A set Seed makes the token sequence
// reproducible for identical logits.
func NewSampler(cfg Config) *Sampler {
	var src rand.Source
	if cfg.Seed != nil {
		s := uint64(*cfg.Seed)
		src = rand.NewPCG(s, s^0x9e3779b97f4a7c15)
	} else {
		src = rand.NewPCG(rand.Uint64(), rand.Uint64())
	}
	return &Sampler{cfg: cfg, rng: rand.New(src)}
}

// Sample returns the chosen token id. generated holds the tokens produced so far
// in this call; they are down-weighted by RepeatPenalty.
func (s *Sampler) Sample(logits []float32, generated []int) (int, error) {
	if len(logits) == 0 {
		return 0, errNoLogits
	}
	temp := s.cfg.Temperature
	if temp <= 0 {
		temp = 1
	}
	cands := make([]candidate, 0, len(logits))
	for id, l := range logits {
		v := float64(l) / temp
		if math.IsNaN(v) {
			continue
		}
		cands = append(cands, candidate{id: id, p: v})
	}
	if len(cands) == 0 {
		return 0, errNoLogits
	}
	sort.SliceStable(cands, func(i, j int) bool { return cands[i].p > cands[j].p })

	if k := s.cfg.TopK; k > 0 && k < len(cands) {
		cands = cands[:k]
	}
	softmax(cands)

	if p := s.cfg.TopP; p > 0 && p < 1 {
		var cum float64
		cut := len(cands)
		for i, c := range cands {
			cum += c.p
			if cum >= p {
				cut = i + 1
				break
			}
		}
		cands = cands[:cut]
	}

	if rp := s.cfg.RepeatPenalty; rp > 1 && len(generated) > 0 {
		seen := make(map[int]struct{}, len(generated))
		for _, id := range generated {
			seen[id] = struct{}{}
		}
		for i := range cands {
			if _, ok := seen[cands[i].id]; ok {
				cands[i].p /= rp
			}
		}
	}

	var total float64
	for _, c := range cands {
		total += c.p
	}
	if total <= 0 || math.IsInf(total, 0) {
		return cands[0].id, nil
	}
	r := s.rng.Float64() * total
	for _, c := range cands {
		r -= c.p
		if r < 0 {
			return c.id, nil
		}
	}
	return cands[len(cands)-1].id, nil
}

// softmax converts logits in cands (sorted descending) to probabilities in place.
func softmax(cands []candidate) {
	maxL := cands[0].p
	var sum float64
	for i := range cands {
		cands[i].p = math.Exp(cands[i].p - maxL)
		sum += cands[i].p
	}
	for i := range cands {
		cands[i].p /= sum
	}
}
