package chunker

import (
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/xxxsen/docmem/internal/config"
)

func numberedWords(n int) string {
	words := make([]string, n)
	for i := range words {
		words[i] = fmt.Sprintf("w%d", i)
	}
	return strings.Join(words, " ")
}

func numberedSentences(n int) []string {
	out := make([]string, n)
	for i := range out {
		out[i] = fmt.Sprintf("Sentence %d has five words.", i)
	}
	return out
}

func TestWordChunkerShortTextReturnedAsIs(t *testing.T) {
	c := NewWordChunker(10, 3, 0)
	text := "  hello\n\nworld  "
	got, err := c.Chunk(text)
	require.NoError(t, err)
	require.Equal(t, []string{text}, got)
}

func TestWordChunkerBlankText(t *testing.T) {
	got, err := NewWordChunker(10, 3, 0).Chunk(" \n\t ")
	require.NoError(t, err)
	require.Empty(t, got)
}

func TestWordChunkerWindows(t *testing.T) {
	c := NewWordChunker(10, 3, 0)
	got, err := c.Chunk(numberedWords(25))
	require.NoError(t, err)
	require.Len(t, got, 4)
	for i, chunk := range got {
		require.LessOrEqual(t, len(strings.Fields(chunk)), 10)
		if i == 0 {
			continue
		}
		prev := strings.Fields(got[i-1])
		require.True(t, strings.HasPrefix(chunk, strings.Join(prev[len(prev)-3:], " ")))
	}
	require.Equal(t, "w21 w22 w23 w24", got[3])
}

func TestWordChunkerMergesTrailingSliver(t *testing.T) {
	c := NewWordChunker(10, 3, 5)
	got, err := c.Chunk(numberedWords(25))
	require.NoError(t, err)
	require.Len(t, got, 3)
	require.True(t, strings.HasSuffix(got[2], "w23 w24"))
	require.Equal(t, 1, strings.Count(got[2], "w24"))
}

func TestSplitSentencesAbbreviations(t *testing.T) {
	got := SplitSentences("Dr. Smith met Mr. Jones on Jan. 5. They agreed, e.g. on the budget! Was it final?")
	require.Equal(t, []string{
		"Dr. Smith met Mr. Jones on Jan. 5.",
		"They agreed, e.g. on the budget!",
		"Was it final?",
	}, got)
}

func TestSplitSentencesParagraphs(t *testing.T) {
	got := SplitSentences("Heading without period\n\nBody sentence here.\nStill \"quoted.\" Next")
	require.Equal(t, []string{
		"Heading without period",
		"Body sentence here.",
		"Still \"quoted.\"",
		"Next",
	}, got)
}

func TestSentenceChunkerPacksWholeSentences(t *testing.T) {
	sentences := numberedSentences(40)
	c := NewSentenceChunker(20, 5, 0)
	got, err := c.Chunk(strings.Join(sentences, " "))
	require.NoError(t, err)
	require.Greater(t, len(got), 1)

	joined := strings.Join(got, " ")
	for _, s := range sentences {
		require.Contains(t, joined, s)
	}
	for i, chunk := range got {
		require.LessOrEqual(t, len(strings.Fields(chunk)), 20)
		require.True(t, strings.HasSuffix(chunk, "words."))
		if i == 0 {
			continue
		}
		prev := SplitSentences(got[i-1])
		require.True(t, strings.HasPrefix(chunk, prev[len(prev)-1]))
	}
}

func TestSentenceChunkerMergesTrailingSliver(t *testing.T) {
	text := "One two three four five six seven eight. " +
		"aa bb cc dd ee ff gg hh ii jj. " +
		"Done."
	got, err := NewSentenceChunker(10, 0, 3).Chunk(text)
	require.NoError(t, err)
	require.Len(t, got, 2)
	require.Equal(t, "aa bb cc dd ee ff gg hh ii jj. Done.", got[1])
}

func TestSentenceChunkerSplitsTextJustOverSize(t *testing.T) {
	text := numberedWords(296) + " end. Alice drafts the proposal."
	got, err := NewSentenceChunker(300, 50, 5).Chunk(text)
	require.NoError(t, err)
	require.Len(t, got, 2)
	require.Equal(t, "Alice drafts the proposal.", got[1])
	require.LessOrEqual(t, len(strings.Fields(got[0])), 300)
}

func TestSentenceChunkerMovesSentencesToShortTail(t *testing.T) {
	text := "a1 a2 a3 a4 a5. b1 b2 b3 b4. c1 c2."
	got, err := NewSentenceChunker(10, 0, 3).Chunk(text)
	require.NoError(t, err)
	require.Equal(t, []string{"a1 a2 a3 a4 a5.", "b1 b2 b3 b4. c1 c2."}, got)
}

func TestChunkersSplitEveryTextLongerThanSize(t *testing.T) {
	chunkers := map[string]Chunker{
		"sentence": NewSentenceChunker(300, 50, 5),
		"word":     NewWordChunker(300, 3, 5),
	}
	for name, c := range chunkers {
		for tail := 1; tail <= 8; tail++ {
			head := numberedWords(301 - tail)
			tailWords := make([]string, tail)
			for i := range tailWords {
				tailWords[i] = fmt.Sprintf("t%d", i)
			}
			text := head + ". " + strings.Join(tailWords, " ") + "."
			got, err := c.Chunk(text)
			require.NoError(t, err)
			require.GreaterOrEqual(t, len(got), 2, "%s tail=%d", name, tail)

			seen := make(map[string]bool)
			for _, chunk := range got {
				require.LessOrEqual(t, len(strings.Fields(chunk)), 300, "%s tail=%d", name, tail)
				for _, w := range strings.Fields(chunk) {
					seen[w] = true
				}
			}
			for _, w := range strings.Fields(text) {
				require.True(t, seen[w], "%s tail=%d lost %q", name, tail, w)
			}
		}
	}
}

func TestWordChunkerAlignsShortLastWindow(t *testing.T) {
	got, err := NewWordChunker(10, 2, 5).Chunk(numberedWords(11))
	require.NoError(t, err)
	require.Len(t, got, 2)
	require.Equal(t, "w0 w1 w2 w3 w4 w5 w6 w7 w8 w9", got[0])
	require.Equal(t, "w1 w2 w3 w4 w5 w6 w7 w8 w9 w10", got[1])
}

func TestSentenceChunkerSplitsOversizedSentence(t *testing.T) {
	text := numberedWords(30) + ". Short tail sentence here."
	got, err := NewSentenceChunker(10, 0, 0).Chunk(text)
	require.NoError(t, err)
	for _, chunk := range got {
		require.LessOrEqual(t, len(strings.Fields(chunk)), 10)
	}
	require.Contains(t, strings.Join(got, " "), "Short tail sentence here.")
}

func TestSentenceChunkerFallsBackToWords(t *testing.T) {
	text := numberedWords(50)
	got, err := NewSentenceChunker(20, 5, 0).Chunk(text)
	require.NoError(t, err)
	want, err := NewWordChunker(20, 5, 0).Chunk(text)
	require.NoError(t, err)
	require.Equal(t, want, got)
}

func TestNewFromConfig(t *testing.T) {
	c, err := New(config.ChunkerConfig{Type: "word", ChunkSize: 10, Overlap: 2})
	require.NoError(t, err)
	require.IsType(t, &WordChunker{}, c)

	c, err = New(config.ChunkerConfig{ChunkSize: 10, Overlap: 2})
	require.NoError(t, err)
	require.IsType(t, &SentenceChunker{}, c)

	_, err = New(config.ChunkerConfig{Type: "paragraph"})
	require.Error(t, err)
}

func TestEstimateTokens(t *testing.T) {
	require.Equal(t, 0, estimateTokens(""))
	require.Equal(t, 3, estimateTokens("one two three"))
	require.Equal(t, 4, estimateTokens("你好 ok"))
}

func TestPlainTextStripsMarkup(t *testing.T) {
	md := "# Summary\n\nSome **bold** text\nnext line.\n\n- item one\n- item two\n"
	got := PlainText(md)
	require.NotContains(t, got, "#")
	require.NotContains(t, got, "**")
	require.Contains(t, got, "Summary")
	require.Contains(t, got, "Some bold text next line.")
	require.Contains(t, got, "item one")
	require.Contains(t, got, "item two")
	require.NotContains(t, got, "\n\n\n")
}
