package chunker

import (
	"regexp"
	"strings"
	"unicode"
)

var (
	paragraphBreak = regexp.MustCompile(`\n[ \t\r]*\n`)
	dottedAcronym  = regexp.MustCompile(`^(?:[a-z]\.){2,}$`)
)

// abbreviations never end a sentence even though they end with a period.
var abbreviations = map[string]struct{}{
	"mr.": {}, "mrs.": {}, "ms.": {}, "dr.": {}, "prof.": {}, "sr.": {}, "jr.": {},
	"st.": {}, "rev.": {}, "hon.": {}, "gen.": {}, "col.": {}, "capt.": {}, "lt.": {},
	"sgt.": {}, "gov.": {}, "sen.": {}, "rep.": {}, "pres.": {},
	"jan.": {}, "feb.": {}, "mar.": {}, "apr.": {}, "jun.": {}, "jul.": {}, "aug.": {},
	"sep.": {}, "sept.": {}, "oct.": {}, "nov.": {}, "dec.": {},
	"mon.": {}, "tue.": {}, "tues.": {}, "wed.": {}, "thu.": {}, "thur.": {}, "thurs.": {},
	"fri.": {}, "sat.": {}, "sun.": {},
	"vs.": {}, "etc.": {}, "e.g.": {}, "i.e.": {}, "cf.": {}, "al.": {}, "approx.": {},
	"inc.": {}, "ltd.": {}, "co.": {}, "corp.": {}, "dept.": {}, "no.": {}, "fig.": {},
	"vol.": {}, "p.": {}, "pp.": {}, "est.": {}, "a.m.": {}, "p.m.": {},
}

// SentenceChunker packs whole sentences into chunks of at most Size words and
// starts each following chunk with trailing sentences of the previous one,
// up to Overlap words.
type SentenceChunker struct {
	size      int
	overlap   int
	minTokens int
	fallback  *WordChunker
}

func NewSentenceChunker(size, overlap, minTokens int) *SentenceChunker {
	size, overlap, minTokens = normalizeSizes(size, overlap, minTokens)
	return &SentenceChunker{
		size:      size,
		overlap:   overlap,
		minTokens: minTokens,
		fallback:  NewWordChunker(size, overlap, minTokens),
	}
}

type sentence struct {
	text  string
	words int
}

func (c *SentenceChunker) Chunk(text string) ([]string, error) {
	if strings.TrimSpace(text) == "" {
		return nil, nil
	}
	if len(strings.Fields(text)) <= c.size {
		return []string{text}, nil
	}
	sentences := SplitSentences(text)
	if len(sentences) <= 1 {
		return c.fallback.Chunk(text)
	}
	return c.pack(c.pieces(sentences)), nil
}

// pieces breaks sentences longer than the chunk size into word windows.
func (c *SentenceChunker) pieces(sentences []string) []sentence {
	out := make([]sentence, 0, len(sentences))
	for _, s := range sentences {
		words := strings.Fields(s)
		for len(words) > c.size {
			out = append(out, sentence{text: strings.Join(words[:c.size], " "), words: c.size})
			words = words[c.size:]
		}
		if len(words) > 0 {
			out = append(out, sentence{text: strings.Join(words, " "), words: len(words)})
		}
	}
	return out
}

func (c *SentenceChunker) pack(pieces []sentence) []string {
	var (
		chunks   []string
		last     []sentence
		current  []sentence
		words    int
		newCount int
	)
	emit := func(items []sentence) {
		chunks = append(chunks, joinSentences(items))
		last = items
		current = c.overlapTail(items)
		words = countWords(current)
		newCount = 0
	}
	flush := func(final bool) {
		if newCount == 0 {
			return
		}
		if estimateTokens(joinSentences(current)) >= c.minTokens {
			emit(current)
			return
		}
		fresh := current[len(current)-newCount:]
		if len(chunks) == 0 {
			if final {
				emit(current)
			}
			return
		}
		if left, right, ok := c.rebalance(last, fresh); ok {
			chunks[len(chunks)-1] = joinSentences(left)
			emit(right)
			return
		}
		if len(chunks) == 1 {
			// folding would leave a single chunk for text longer than size
			emit(current)
			return
		}
		chunks[len(chunks)-1] += " " + joinSentences(fresh)
		current, words, newCount = nil, 0, 0
	}
	for _, p := range pieces {
		if words+p.words > c.size && newCount > 0 {
			flush(false)
		}
		for newCount == 0 && len(current) > 0 && words+p.words > c.size {
			words -= current[0].words
			current = current[1:]
		}
		current = append(current, p)
		words += p.words
		newCount++
	}
	flush(true)
	return chunks
}

// rebalance moves the fewest trailing sentences of prev in front of a sliver
// so that the sliver reaches minTokens. prev keeps at least one sentence and
// neither side grows past size.
func (c *SentenceChunker) rebalance(prev, sliver []sentence) ([]sentence, []sentence, bool) {
	all := make([]sentence, 0, len(prev)+len(sliver))
	all = append(all, prev...)
	all = append(all, sliver...)
	for k := len(prev) - 1; k >= 1; k-- {
		right := all[k:]
		if countWords(right) > c.size {
			return nil, nil, false
		}
		if estimateTokens(joinSentences(right)) >= c.minTokens {
			return all[:k], right, true
		}
	}
	return nil, nil, false
}

func (c *SentenceChunker) overlapTail(current []sentence) []sentence {
	total := 0
	start := len(current)
	for i := len(current) - 1; i >= 0; i-- {
		if total+current[i].words > c.overlap {
			break
		}
		total += current[i].words
		start = i
	}
	tail := make([]sentence, len(current)-start)
	copy(tail, current[start:])
	return tail
}

func joinSentences(items []sentence) string {
	parts := make([]string, len(items))
	for i, s := range items {
		parts[i] = s.text
	}
	return strings.Join(parts, " ")
}

func countWords(items []sentence) int {
	total := 0
	for _, s := range items {
		total += s.words
	}
	return total
}

// SplitSentences segments text on terminal punctuation and blank lines.
// Whitespace inside a sentence is collapsed to single spaces.
func SplitSentences(text string) []string {
	var out []string
	for _, para := range paragraphBreak.Split(text, -1) {
		var current []string
		for _, tok := range strings.Fields(para) {
			current = append(current, tok)
			if endsSentence(tok) {
				out = append(out, strings.Join(current, " "))
				current = nil
			}
		}
		if len(current) > 0 {
			out = append(out, strings.Join(current, " "))
		}
	}
	return out
}

func endsSentence(token string) bool {
	trimmed := strings.TrimRightFunc(token, isClosing)
	if trimmed == "" {
		return false
	}
	switch trimmed[len(trimmed)-1] {
	case '!', '?':
		return true
	case '.':
		return !isAbbreviation(trimmed)
	default:
		return false
	}
}

func isAbbreviation(token string) bool {
	word := strings.ToLower(strings.TrimLeftFunc(token, isOpening))
	if _, ok := abbreviations[word]; ok {
		return true
	}
	// initials such as "J." in "J. R. Smith"
	if r := []rune(word); len(r) == 2 && unicode.IsLetter(r[0]) {
		return true
	}
	return dottedAcronym.MatchString(word)
}

func isClosing(r rune) bool {
	switch r {
	case '"', '\'', ')', ']', '}', '”', '’':
		return true
	}
	return false
}

func isOpening(r rune) bool {
	switch r {
	case '"', '\'', '(', '[', '{', '“', '‘':
		return true
	}
	return false
}
