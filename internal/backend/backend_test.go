package backend

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ollamad/pkg/types"
)

var testVocab = []string{"<unk>", "<s>", "</s>", "hello", "world", "the", "quick", "[INST]", "[/INST]"}

func TestWordLevelRoundTrip(t *testing.T) {
	tok := NewWordLevel(testVocab)
	for _, s := range []string{"hello world", "  the   quick\n\thello ", "", "world"} {
		ids, err := tok.Encode(s)
		require.NoError(t, err)
		got, err := tok.Decode(ids)
		require.NoError(t, err)
		assert.Equal(t, strings.Join(strings.Fields(s), " "), got, "input %q", s)
	}
}

func TestWordLevelSpecials(t *testing.T) {
	tok := NewWordLevel(testVocab)
	bos, ok := tok.TokenID(SpecialBOS)
	require.True(t, ok)
	assert.Equal(t, DefaultBOS, bos)
	eos, ok := tok.TokenID(SpecialEOS)
	require.True(t, ok)
	assert.Equal(t, DefaultEOS, eos)

	ids, err := tok.Encode("<s>hello")
	require.NoError(t, err)
	assert.Equal(t, []int{1, 3}, ids)

	text, err := tok.Decode([]int{1, 3, 4, 2})
	require.NoError(t, err)
	assert.Equal(t, "hello world", text)
}

func TestWordLevelUnknown(t *testing.T) {
	tok := NewWordLevel(testVocab)
	ids, err := tok.Encode("hello martian")
	require.NoError(t, err)
	assert.Equal(t, []int{3, 0}, ids)

	strict := NewWordLevel([]string{"a", "b"})
	_, err = strict.Encode("a c")
	assert.Error(t, err)

	_, err = tok.Decode([]int{99})
	assert.Error(t, err)
}

func TestLoadWordLevelHF(t *testing.T) {
	doc := `{
  "added_tokens": [
    {"id": 0, "content": "<unk>", "special": true},
    {"id": 1, "content": "<s>", "special": true},
    {"id": 2, "content": "</s>", "special": true}
  ],
  "model": {"type": "WordLevel", "vocab": {"<unk>": 0, "<s>": 1, "</s>": 2, "hi": 3, "there": 4}}
}`
	path := filepath.Join(t.TempDir(), "tokenizer.json")
	require.NoError(t, os.WriteFile(path, []byte(doc), 0o644))
	tok, err := LoadWordLevel(path)
	require.NoError(t, err)
	ids, err := tok.Encode("hi there")
	require.NoError(t, err)
	assert.Equal(t, []int{3, 4}, ids)
	assert.Equal(t, 5, tok.VocabSize())

	_, err = ParseWordLevel([]byte(`{"model":{"type":"BPE","vocab":{"a":0}}}`))
	assert.Error(t, err)
	_, err = LoadWordLevel(filepath.Join(t.TempDir(), "missing.json"))
	assert.Error(t, err)
}

func TestRegistryLookup(t *testing.T) {
	r := NewRegistry()
	_, err := r.Lookup(types.FamilyLlama)
	assert.ErrorIs(t, err, ErrNoLoader)

	var used string
	r.Register(types.FamilyPhi, LoaderFunc(func(context.Context, LoadSpec) (Model, Tokenizer, error) {
		used = "phi"
		return nil, nil, nil
	}))
	r.SetFallback(LoaderFunc(func(context.Context, LoadSpec) (Model, Tokenizer, error) {
		used = "fallback"
		return nil, nil, errors.New("boom")
	}))

	_, _, err = r.Load(context.Background(), LoadSpec{Family: types.FamilyPhi})
	require.NoError(t, err)
	assert.Equal(t, "phi", used)

	_, _, err = r.Load(context.Background(), LoadSpec{Family: types.FamilyGemma})
	assert.EqualError(t, err, "boom")
	assert.Equal(t, "fallback", used)
}

func TestDefaultRegistryWithoutRuntime(t *testing.T) {
	if LlamaBuilt {
		t.Skip("llama runtime compiled in")
	}
	_, _, err := DefaultRegistry(2048, 4).Load(context.Background(), LoadSpec{ID: "x", Family: types.FamilyLlama})
	assert.ErrorIs(t, err, ErrLlamaNotBuilt)
}
