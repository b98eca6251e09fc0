package backend

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strings"
)

// WordLevel is a whitespace word-level tokenizer. It reads the WordLevel flavour of
// a Hugging Face tokenizer.json (model.vocab plus added_tokens) or a plain JSON
// array where the index is the token id.
//
// For text made only of in-vocabulary words, Decode(Encode(s)) equals
// strings.Join(strings.Fields(s), " "): runs of whitespace collapse to one space and
// leading/trailing whitespace is dropped.
type WordLevel struct {
	vocab   map[string]int
	pieces  map[int]string
	added   []string // sorted longest first for greedy matching
	special map[int]bool
}

type hfTokenizerFile struct {
	AddedTokens []struct {
		ID      int    `json:"id"`
		Content string `json:"content"`
		Special bool   `json:"special"`
	} `json:"added_tokens"`
	Model struct {
		Type  string         `json:"type"`
		Vocab map[string]int `json:"vocab"`
	} `json:"model"`
}

// LoadWordLevel reads a tokenizer file from disk.
func LoadWordLevel(path string) (*WordLevel, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read tokenizer: %w", err)
	}
	return ParseWordLevel(b)
}

// ParseWordLevel parses tokenizer.json or a JSON vocabulary array.
func ParseWordLevel(b []byte) (*WordLevel, error) {
	var list []string
	if err := json.Unmarshal(b, &list); err == nil {
		return NewWordLevel(list), nil
	}
	var f hfTokenizerFile
	if err := json.Unmarshal(b, &f); err != nil {
		return nil, fmt.Errorf("parse tokenizer: %w", err)
	}
	if len(f.Model.Vocab) == 0 {
		return nil, fmt.Errorf("parse tokenizer: empty vocabulary")
	}
	if f.Model.Type != "" && f.Model.Type != "WordLevel" {
		return nil, fmt.Errorf("parse tokenizer: unsupported model type %q", f.Model.Type)
	}
	w := newWordLevel()
	for piece, id := range f.Model.Vocab {
		w.add(piece, id)
	}
	for _, at := range f.AddedTokens {
		w.add(at.Content, at.ID)
		w.added = append(w.added, at.Content)
		if at.Special {
			w.special[at.ID] = true
		}
	}
	w.finish()
	return w, nil
}

// NewWordLevel builds a tokenizer where vocab[i] has id i. Entries of the form
// <...> are treated as special tokens.
func NewWordLevel(vocab []string) *WordLevel {
	w := newWordLevel()
	for id, piece := range vocab {
		w.add(piece, id)
		if strings.HasPrefix(piece, "<") && strings.HasSuffix(piece, ">") && len(piece) > 2 {
			w.added = append(w.added, piece)
			w.special[id] = true
		}
	}
	w.finish()
	return w
}

func newWordLevel() *WordLevel {
	return &WordLevel{vocab: map[string]int{}, pieces: map[int]string{}, special: map[int]bool{}}
}

func (w *WordLevel) add(piece string, id int) {
	w.vocab[piece] = id
	w.pieces[id] = piece
}

func (w *WordLevel) finish() {
	for _, s := range []Special{SpecialBOS, SpecialEOS, SpecialUNK} {
		if id, ok := w.vocab[s.String()]; ok {
			w.special[id] = true
		}
	}
	sort.Slice(w.added, func(i, j int) bool { return len(w.added[i]) > len(w.added[j]) })
}

// Encode splits text on whitespace and added tokens and maps each piece to its id.
func (w *WordLevel) Encode(text string) ([]int, error) {
	var ids []int
	for _, field := range strings.Fields(text) {
		for field != "" {
			at, tok := w.nextAdded(field)
			if at < 0 {
				id, err := w.word(field)
				if err != nil {
					return nil, err
				}
				ids = append(ids, id)
				break
			}
			if at > 0 {
				id, err := w.word(field[:at])
				if err != nil {
					return nil, err
				}
				ids = append(ids, id)
			}
			ids = append(ids, w.vocab[tok])
			field = field[at+len(tok):]
		}
	}
	return ids, nil
}

// nextAdded finds the earliest added token in s, preferring the longest at a position.
func (w *WordLevel) nextAdded(s string) (int, string) {
	best, bestTok := -1, ""
	for _, tok := range w.added {
		if i := strings.Index(s, tok); i >= 0 && (best < 0 || i < best) {
			best, bestTok = i, tok
		}
	}
	return best, bestTok
}

func (w *WordLevel) word(s string) (int, error) {
	if id, ok := w.vocab[s]; ok {
		return id, nil
	}
	if id, ok := w.vocab[SpecialUNK.String()]; ok {
		return id, nil
	}
	return 0, fmt.Errorf("word %q not in vocabulary", s)
}

// Decode joins the pieces of ids with single spaces, skipping BOS and EOS.
func (w *WordLevel) Decode(ids []int) (string, error) {
	bos, _ := w.TokenID(SpecialBOS)
	eos, _ := w.TokenID(SpecialEOS)
	parts := make([]string, 0, len(ids))
	for _, id := range ids {
		if w.special[id] && (id == bos || id == eos) {
			continue
		}
		p, ok := w.pieces[id]
		if !ok {
			return "", fmt.Errorf("token id %d not in vocabulary", id)
		}
		parts = append(parts, p)
	}
	return strings.Join(parts, " "), nil
}

// TokenID returns the id of a control symbol.
func (w *WordLevel) TokenID(s Special) (int, bool) {
	id, ok := w.vocab[s.String()]
	return id, ok
}

// VocabSize is one past the largest id.
func (w *WordLevel) VocabSize() int {
	n := 0
	for id := range w.pieces {
		if id+1 > n {
			n = id + 1
		}
	}
	return n
}
