package chunk

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChunkTextDeterministic(t *testing.T) {
	t.Parallel()

	p := New()
	text := "The quick brown fox jumps. The dog was sleeping. A third sentence follows here."
	params := Params{MaxChunkSize: 40, MinChunkSize: 10, Overlap: 10}

	a := p.ChunkText(text, params)
	b := p.ChunkText(text, params)

	require.Equal(t, len(a), len(b))
	for i := range a {
		assert.Equal(t, a[i], b[i])
	}
	assert.NotEmpty(t, a)
}

func TestChunkTextTrailingBufferAlwaysEmitted(t *testing.T) {
	t.Parallel()

	p := New()
	chunks := p.ChunkText("Short.", Params{MaxChunkSize: 1000, MinChunkSize: 500, Overlap: 0})

	require.Len(t, chunks, 1)
	assert.Equal(t, "Short.", chunks[0].Content)
}

func TestChunkTextEachEndsWithTerminator(t *testing.T) {
	t.Parallel()

	p := New()
	text := "One sentence here. Another sentence follows. Yet another one. And a final one to close it out."
	chunks := p.ChunkText(text, Params{MaxChunkSize: 30, MinChunkSize: 5, Overlap: 5})

	require.NotEmpty(t, chunks)
	for i, c := range chunks {
		last := c.Content[len(c.Content)-1]
		assert.Contains(t, sentenceBoundaries, string(last), "chunk %d: %q", i, c.Content)
	}
}

func TestChunkTextEmpty(t *testing.T) {
	t.Parallel()

	p := New()
	assert.Empty(t, p.ChunkText("", DefaultParams()))
	assert.Empty(t, p.ChunkText("   ", DefaultParams()))
}

func TestMatchesGlob(t *testing.T) {
	t.Parallel()

	p := New()

	ok, err := p.Matches("/tmp/does-not-exist/docs/a.txt", []string{"**/docs/*.txt"})
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = p.Matches("/tmp/does-not-exist/docs/a.bin", []string{"**/docs/*.txt"})
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestCollectFilesSkipsMissingPaths(t *testing.T) {
	t.Parallel()

	p := New()
	files, err := p.CollectFiles([]string{"/does/not/exist/at/all"})
	require.NoError(t, err)
	assert.Empty(t, files)
}

func TestOverlapTailTrimsToRequestedLength(t *testing.T) {
	t.Parallel()

	tail := overlapTail("the quick brown fox", 5)
	assert.LessOrEqual(t, runeLen(tail), 5)
}

func TestSplitSentencesKeepsTerminators(t *testing.T) {
	t.Parallel()

	sentences := splitSentences("Hello world. How are you? Fine!")
	require.Len(t, sentences, 3)
	for _, s := range sentences {
		assert.True(t, strings.ContainsAny(s[len(s)-1:], sentenceBoundaries))
	}
}
