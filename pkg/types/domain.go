package types

import (
	"strings"
	"time"
)

// Family identifies the architecture family a model was built for. It selects the
// backend loader used to materialize the weights.
type Family string

const (
	FamilyLlama   Family = "llama"
	FamilyMistral Family = "mistral"
	FamilyGemma   Family = "gemma"
	FamilyPhi     Family = "phi"
	FamilyUnknown Family = "unknown"
)

// ParseFamily maps a free-form family string onto a known Family.
func ParseFamily(s string) Family {
	switch f := Family(strings.ToLower(strings.TrimSpace(s))); f {
	case FamilyLlama, FamilyMistral, FamilyGemma, FamilyPhi:
		return f
	default:
		return FamilyUnknown
	}
}

// Model represents a discoverable or registered LLM model on disk.
type Model struct {
	// Stable identifier for the model.
	// example: tinyllama-q4
	ID string `json:"id" example:"tinyllama-q4"`
	// Human-friendly name.
	// example: TinyLlama (Q4)
	Name string `json:"name" example:"TinyLlama (Q4)"`
	// Architecture family (llama, mistral, gemma, phi, unknown).
	// example: llama
	Family Family `json:"family" example:"llama"`
	// Absolute path to the model weights on disk.
	// example: /home/user/models/TinyLlama.Q4_K_M.gguf
	Path string `json:"path" example:"/home/user/models/TinyLlama.Q4_K_M.gguf"`
	// Absolute path to the tokenizer file, empty when the weights embed it.
	TokenizerPath string `json:"tokenizer_path,omitempty"`
	// Size of the weights file in bytes.
	// example: 668788096
	SizeBytes int64 `json:"size" example:"668788096"`
	// Quantization level or variant string.
	// example: Q4_K_M
	Quant string `json:"quant,omitempty" example:"Q4_K_M"`
	// Registration time.
	CreatedAt time.Time `json:"created_at"`
}

// ModelStats is an aggregate view over the catalog and the loaded instances.
type ModelStats struct {
	// example: 3
	TotalModels int `json:"total_models" example:"3"`
	// example: 1
	RunningModels int `json:"running_models" example:"1"`
	// example: 9663676416
	TotalSizeBytes int64 `json:"total_size_bytes" example:"9663676416"`
	// example: 9
	TotalSizeGB float64 `json:"total_size_gb" example:"9"`
}

// SizeGB converts a byte count into GiB.
func SizeGB(bytes int64) float64 {
	return float64(bytes) / (1024 * 1024 * 1024)
}
