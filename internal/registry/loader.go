package registry

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"ollamad/internal/common/fsutil"
	"ollamad/pkg/types"
)

// GGUFScanner discovers *.gguf weight files in a models directory.
type GGUFScanner struct {
	now func() time.Time
}

// NewGGUFScanner returns a scanner stamping records with the current time.
func NewGGUFScanner() *GGUFScanner { return &GGUFScanner{now: time.Now} }

// Scan builds one record per *.gguf file in dir (non-recursive).
// ID is the file name without extension; Path is the absolute file path.
func (s *GGUFScanner) Scan(dir string) ([]types.Model, error) {
	base, err := fsutil.ExpandHome(dir)
	if err != nil {
		return nil, err
	}
	abs, err := filepath.Abs(base)
	if err != nil {
		return nil, fmt.Errorf("abs path: %w", err)
	}
	entries, err := os.ReadDir(abs)
	if err != nil {
		return nil, fmt.Errorf("read dir: %w", err)
	}
	var models []types.Model
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		if !strings.HasSuffix(strings.ToLower(name), ".gguf") {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		id := name[:len(name)-len(filepath.Ext(name))]
		models = append(models, types.Model{
			ID:            id,
			Name:          id,
			Family:        DetectFamily(id),
			Path:          filepath.Join(abs, name),
			TokenizerPath: findTokenizer(abs, id),
			SizeBytes:     info.Size(),
			Quant:         DetectQuant(id),
			CreatedAt:     s.now().UTC(),
		})
	}
	return models, nil
}

// LoadDir scans a directory with a default scanner.
func LoadDir(dir string) ([]types.Model, error) {
	return NewGGUFScanner().Scan(dir)
}

// findTokenizer prefers a per-model sidecar, then a shared tokenizer.json.
func findTokenizer(dir, id string) string {
	for _, name := range []string{id + ".tokenizer.json", "tokenizer.json"} {
		p := filepath.Join(dir, name)
		if fsutil.PathExists(p) {
			return p
		}
	}
	return ""
}

// DetectFamily infers the model family from its file name.
func DetectFamily(name string) types.Family {
	n := strings.ToLower(name)
	switch {
	case strings.Contains(n, "mistral"), strings.Contains(n, "mixtral"):
		return types.FamilyMistral
	case strings.Contains(n, "gemma"):
		return types.FamilyGemma
	case phiPattern.MatchString(n):
		return types.FamilyPhi
	case strings.Contains(n, "llama"):
		return types.FamilyLlama
	default:
		return types.FamilyUnknown
	}
}

var (
	phiPattern   = regexp.MustCompile(`(^|[^a-z])phi`)
	quantPattern = regexp.MustCompile(`(?i)(iq\d_[a-z]+|q\d(_[a-z0-9]+)*|f16|f32|bf16)$`)
)

// DetectQuant extracts a trailing quantization tag such as Q4_K_M or F16.
func DetectQuant(name string) string {
	parts := strings.FieldsFunc(name, func(r rune) bool { return r == '.' || r == '-' })
	if len(parts) == 0 {
		return ""
	}
	if m := quantPattern.FindString(parts[len(parts)-1]); m != "" && strings.EqualFold(m, parts[len(parts)-1]) {
		return strings.ToUpper(m)
	}
	return ""
}
