package ingestion_engine

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func chunkOf(index, tokens int) Chunk {
	return chunkOfWord(index, tokens, "abcd")
}

func chunkOfWord(index, tokens int, word string) Chunk {
	content := strings.TrimSpace(strings.Repeat(word+" ", tokens*4/(len(word)+1)))
	return Chunk{Index: index, Content: content, TokenCount: EstimateTokens(content)}
}

func TestMergeChunksCoalescesUndersized(t *testing.T) {
	in := []Chunk{chunkOf(0, 40), chunkOf(1, 40), chunkOf(2, 470)}

	out := MergeChunks(in, 100, 500)
	require.Len(t, out, 2)

	assert.Equal(t, "true", out[0].Metadata["merged"])
	assert.Contains(t, out[0].Content, in[0].Content)
	assert.Contains(t, out[0].Content, in[1].Content)

	assert.Nil(t, out[1].Metadata)
	assert.Equal(t, in[2].Content, out[1].Content)
}

func TestMergeChunksRespectsMaxTokens(t *testing.T) {
	in := []Chunk{chunkOf(0, 80), chunkOf(1, 450), chunkOf(2, 80)}

	out := MergeChunks(in, 100, 500)
	for _, ch := range out {
		assert.LessOrEqual(t, ch.TokenCount, 500)
	}
}

func TestMergeChunksSeparatorCountsTowardMax(t *testing.T) {
	// Token counts sum to exactly the cap; the joining blank line pushes
	// the combined text one token over, so no merge may happen.
	small := Chunk{Index: 0, Content: strings.Repeat("a", 99*4)}
	small.TokenCount = EstimateTokens(small.Content)
	big := Chunk{Index: 1, Content: strings.Repeat("b", 401*4)}
	big.TokenCount = EstimateTokens(big.Content)
	require.Equal(t, 500, small.TokenCount+big.TokenCount)

	out := MergeChunks([]Chunk{small, big}, 100, 500)
	require.Len(t, out, 2)
	for _, ch := range out {
		assert.LessOrEqual(t, ch.TokenCount, 500)
		assert.LessOrEqual(t, EstimateTokens(ch.Content), 500)
	}
	assert.Nil(t, out[0].Metadata)
}

func TestMergeChunksPreservesOrderAndReindexes(t *testing.T) {
	in := []Chunk{
		chunkOfWord(0, 30, "alpha"),
		chunkOfWord(1, 30, "bravo"),
		chunkOfWord(2, 30, "carol"),
		chunkOfWord(3, 480, "delta"),
	}

	out := MergeChunks(in, 100, 500)
	require.NotEmpty(t, out)

	for i, ch := range out {
		assert.Equal(t, i, ch.Index)
	}
	// original content order survives merging
	joined := ""
	for _, ch := range out {
		joined += ch.Content + "\n\n"
	}
	last := -1
	for _, orig := range in {
		pos := strings.Index(joined, orig.Content)
		require.GreaterOrEqual(t, pos, 0)
		assert.Greater(t, pos, last)
		last = pos
	}
}

func TestMergeChunksSingleAndEmpty(t *testing.T) {
	assert.Empty(t, MergeChunks(nil, 100, 500))

	one := []Chunk{chunkOf(0, 40)}
	assert.Equal(t, one, MergeChunks(one, 100, 500))
}
