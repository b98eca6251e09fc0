package engine

import (
	"ollamad/internal/apperr"
	"ollamad/pkg/types"
)

// Config holds the sampling parameters for one generation.
type Config struct {
	Temperature   float64 `json:"temperature" yaml:"temperature" toml:"temperature"`
	TopP          float64 `json:"top_p" yaml:"top_p" toml:"top_p"`
	TopK          int     `json:"top_k" yaml:"top_k" toml:"top_k"`
	MaxTokens     int     `json:"max_tokens" yaml:"max_tokens" toml:"max_tokens"`
	RepeatPenalty float64 `json:"repeat_penalty" yaml:"repeat_penalty" toml:"repeat_penalty"`
	Seed          *int64  `json:"seed,omitempty" yaml:"seed,omitempty" toml:"seed,omitempty"`
}

// Defaults returns the configuration applied when a request sets nothing.
func Defaults() Config {
	return Config{
		Temperature:   0.8,
		TopP:          0.9,
		TopK:          40,
		MaxTokens:     512,
		RepeatPenalty: 1.1,
	}
}

// Validate reports the first out-of-range field as a BadRequest error.
func (c Config) Validate() error {
	switch {
	case !(c.Temperature > 0):
		return apperr.BadRequest("temperature must be > 0, got %v", c.Temperature)
	case !(c.TopP > 0 && c.TopP <= 1):
		return apperr.BadRequest("top_p must be in (0, 1], got %v", c.TopP)
	case c.TopK <= 0:
		return apperr.BadRequest("top_k must be > 0, got %d", c.TopK)
	case c.MaxTokens <= 0:
		return apperr.BadRequest("num_predict must be > 0, got %d", c.MaxTokens)
	case !(c.RepeatPenalty >= 1):
		return apperr.BadRequest("repeat_penalty must be >= 1, got %v", c.RepeatPenalty)
	}
	return nil
}

// Merge overlays the fields set in o onto c.
func (c Config) Merge(o *types.Options) Config {
	if o == nil {
		return c
	}
	if o.Temperature != nil {
		c.Temperature = *o.Temperature
	}
	if o.TopP != nil {
		c.TopP = *o.TopP
	}
	if o.TopK != nil {
		c.TopK = *o.TopK
	}
	if o.NumPredict != nil {
		c.MaxTokens = *o.NumPredict
	}
	if o.RepeatPenalty != nil {
		c.RepeatPenalty = *o.RepeatPenalty
	}
	if o.Seed != nil {
		s := *o.Seed
		c.Seed = &s
	}
	return c
}
