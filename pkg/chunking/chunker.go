// Package chunking splits a section into word-bounded chunks sized for one
// generation call each.
package chunking

import (
	"github.com/otherjamesbrown/studynotes-cli/pkg/sections"
	"github.com/otherjamesbrown/studynotes-cli/pkg/transcript"
)

// DefaultMaxWords is the chunk size cap used when none is configured.
const DefaultMaxWords = 1500

// Chunk is a contiguous slice of a section's entries.
type Chunk struct {
	StartTime float64
	EndTime   float64
	Entries   []transcript.Entry
	WordCount int
	Text      string
}

// Chunker packs entries greedily up to a word cap.
type Chunker struct {
	maxWords int
}

// New returns a Chunker. A non-positive maxWords selects DefaultMaxWords.
func New(maxWords int) *Chunker {
	if maxWords <= 0 {
		maxWords = DefaultMaxWords
	}
	return &Chunker{maxWords: maxWords}
}

// MaxWords returns the configured cap.
func (c *Chunker) MaxWords() int {
	return c.maxWords
}

// Chunk splits section into chunks covering every entry exactly once, in
// order. No chunk exceeds the cap unless it holds a single oversized entry.
func (c *Chunker) Chunk(section sections.Section) []Chunk {
	var (
		chunks  []Chunk
		current []transcript.Entry
		words   int
	)

	for _, e := range section.Entries {
		n := e.WordCount()
		if words+n > c.maxWords && len(current) > 0 {
			chunks = append(chunks, newChunk(current, words))
			current, words = nil, 0
		}
		current = append(current, e)
		words += n
	}

	if len(current) > 0 {
		chunks = append(chunks, newChunk(current, words))
	}
	return chunks
}

func newChunk(entries []transcript.Entry, words int) Chunk {
	return Chunk{
		StartTime: entries[0].Start,
		EndTime:   entries[len(entries)-1].End(),
		Entries:   entries,
		WordCount: words,
		Text:      transcript.JoinText(entries),
	}
}
