package services

import (
	"fmt"
	"regexp"
	"strings"

	"persona-advisor/internal/logger"
	"persona-advisor/models"
)

// Chunker splits extracted text into overlapping token-bounded segments.
// Paragraph boundaries are preserved where possible; paragraphs that exceed
// the token budget are split by sentence, then by comma clause, then by raw
// word groups until every piece fits.
type Chunker struct {
	chunkSize      int
	overlap        int
	counter        TokenCounter
	paragraphRegex *regexp.Regexp
	sentenceRegex  *regexp.Regexp
	clauseRegex    *regexp.Regexp
}

// NewChunker creates a chunker. overlap must be strictly less than chunkSize.
func NewChunker(chunkSize, overlap int, counter TokenCounter) (*Chunker, error) {
	if chunkSize <= 0 {
		return nil, fmt.Errorf("chunk size must be positive, got %d", chunkSize)
	}
	if overlap >= chunkSize {
		return nil, fmt.Errorf("chunk overlap (%d) must be less than chunk size (%d)", overlap, chunkSize)
	}
	return &Chunker{
		chunkSize:      chunkSize,
		overlap:        overlap,
		counter:        counter,
		paragraphRegex: regexp.MustCompile(`\n\n+`),
		sentenceRegex:  regexp.MustCompile(`[.!?]+\s+`),
		clauseRegex:    regexp.MustCompile(`,\s+`),
	}, nil
}

// piece is a unit of accumulation with exact offsets into the source text.
// Segment text is always a direct slice of the source, so offsets and content
// never drift apart.
type piece struct {
	start  int
	end    int
	tokens int
}

// Chunk splits text into ordered segments. Empty or whitespace-only input
// yields an empty result, not an error.
func (c *Chunker) Chunk(text, sourceName string) []models.Segment {
	if strings.TrimSpace(text) == "" {
		return nil
	}

	pieces := c.splitPieces(text)
	if len(pieces) == 0 {
		return nil
	}

	var segments []models.Segment
	chunkStart := -1
	prevEnd := 0
	hasContent := false

	closeChunk := func(end int) {
		segText := text[chunkStart:end]
		segments = append(segments, models.Segment{
			Text:       segText,
			Index:      len(segments),
			CharStart:  chunkStart,
			CharEnd:    end,
			TokenCount: c.counter.Count(segText),
			Source:     sourceName,
		})
	}

	for _, p := range pieces {
		if chunkStart < 0 {
			chunkStart = p.start
		}

		if hasContent && c.counter.Count(text[chunkStart:p.end]) > c.chunkSize {
			closeChunk(prevEnd)

			// Seed the next chunk with trailing sentences of the one just
			// closed, so adjacent segments share boundary context.
			overlapStart := c.overlapStart(text, chunkStart, prevEnd)
			if overlapStart >= 0 && c.counter.Count(text[overlapStart:p.end]) <= c.chunkSize {
				chunkStart = overlapStart
			} else {
				chunkStart = p.start
			}
			hasContent = false
		}

		prevEnd = p.end
		hasContent = true
	}

	if hasContent {
		closeChunk(prevEnd)
	}

	logger.Debug("Chunked document", "source", sourceName, "chars", len(text), "segments", len(segments))
	return segments
}

// splitPieces breaks the text into paragraph pieces, recursively splitting any
// paragraph that exceeds the token budget.
func (c *Chunker) splitPieces(text string) []piece {
	var pieces []piece
	for _, span := range c.splitSpans(text, 0, len(text), c.paragraphRegex) {
		body := text[span.start:span.end]
		if strings.TrimSpace(body) == "" {
			continue
		}
		tokens := c.counter.Count(body)
		if tokens <= c.chunkSize {
			pieces = append(pieces, piece{start: span.start, end: span.end, tokens: tokens})
			continue
		}
		pieces = append(pieces, c.splitOversized(text, span.start, span.end)...)
	}
	return pieces
}

// splitOversized splits one oversized paragraph by sentence, falling back to
// comma clauses and finally raw word groups for pieces that still do not fit.
func (c *Chunker) splitOversized(text string, start, end int) []piece {
	var pieces []piece
	for _, sent := range c.splitSpans(text, start, end, c.sentenceRegex) {
		if tokens := c.counter.Count(text[sent.start:sent.end]); tokens <= c.chunkSize {
			pieces = append(pieces, piece{start: sent.start, end: sent.end, tokens: tokens})
			continue
		}
		for _, cl := range c.splitSpans(text, sent.start, sent.end, c.clauseRegex) {
			if tokens := c.counter.Count(text[cl.start:cl.end]); tokens <= c.chunkSize {
				pieces = append(pieces, piece{start: cl.start, end: cl.end, tokens: tokens})
				continue
			}
			pieces = append(pieces, c.splitWords(text, cl.start, cl.end)...)
		}
	}
	return pieces
}

// splitWords is the last-resort split: group words until a group reaches 80%
// of the token budget, then close it.
func (c *Chunker) splitWords(text string, start, end int) []piece {
	limit := c.chunkSize * 8 / 10
	var pieces []piece

	groupStart := -1
	cursor := start
	for cursor < end {
		// Skip whitespace to the next word
		for cursor < end && isSpace(text[cursor]) {
			cursor++
		}
		if cursor >= end {
			break
		}
		wordStart := cursor
		for cursor < end && !isSpace(text[cursor]) {
			cursor++
		}
		if groupStart < 0 {
			groupStart = wordStart
		}
		if c.counter.Count(text[groupStart:cursor]) >= limit {
			pieces = append(pieces, piece{
				start:  groupStart,
				end:    cursor,
				tokens: c.counter.Count(text[groupStart:cursor]),
			})
			groupStart = -1
		}
	}
	if groupStart >= 0 {
		pieces = append(pieces, piece{
			start:  groupStart,
			end:    end,
			tokens: c.counter.Count(text[groupStart:end]),
		})
	}
	return pieces
}

type span struct {
	start int
	end   int
}

// splitSpans splits text[start:end] on separator matches, returning spans with
// absolute offsets. Separator characters stay attached to the preceding span
// so slicing the source reproduces it exactly.
func (c *Chunker) splitSpans(text string, start, end int, sep *regexp.Regexp) []span {
	body := text[start:end]
	locs := sep.FindAllStringIndex(body, -1)

	var spans []span
	prev := 0
	for _, loc := range locs {
		if loc[1] >= len(body) {
			break
		}
		spans = append(spans, span{start: start + prev, end: start + loc[1]})
		prev = loc[1]
	}
	if prev < len(body) {
		spans = append(spans, span{start: start + prev, end: end})
	}
	return spans
}

// overlapStart returns the source offset where the next chunk's overlap seed
// begins: trailing sentences of the closed chunk are selected backwards until
// their token total reaches 80% of the overlap target, never exceeding it.
// Returns -1 when no overlap applies.
func (c *Chunker) overlapStart(text string, start, end int) int {
	if c.overlap <= 0 {
		return -1
	}

	sentences := c.splitSpans(text, start, end, c.sentenceRegex)
	if len(sentences) == 0 {
		return -1
	}

	total := 0
	overlapFrom := -1
	for i := len(sentences) - 1; i >= 0; i-- {
		if total*10 >= c.overlap*8 {
			break
		}
		tokens := c.counter.Count(text[sentences[i].start:sentences[i].end])
		if total+tokens > c.overlap {
			break
		}
		total += tokens
		overlapFrom = sentences[i].start
	}

	// Seeding the whole closed chunk would make the next segment a superset
	// of the previous one; treat that as no overlap.
	if overlapFrom <= start {
		return -1
	}
	return overlapFrom
}

func isSpace(b byte) bool {
	return b == ' ' || b == '\t' || b == '\n' || b == '\r'
}
