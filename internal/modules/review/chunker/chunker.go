// Package chunker splits extracted document text into bounded, overlapping
// segments that each fit a single model call.
package chunker

import (
	"iter"
	"slices"
	"strings"
)

type Config struct {
	// MaxRunes is the hard size budget of one chunk.
	MaxRunes int
	// Overlap is how many runes of the previous chunk the next one repeats.
	Overlap int
	// LookBack is the trailing window searched for a paragraph or sentence
	// boundary before falling back to a hard cut.
	LookBack int
}

func DefaultConfig() Config {
	return Config{MaxRunes: 2000, Overlap: 200, LookBack: 300}
}

type Chunk struct {
	Index int
	Text  string
	// Start and End are rune offsets into the source text, End exclusive.
	Start int
	End   int
}

type Chunker struct {
	cfg Config
}

func New(cfg Config) *Chunker {
	def := DefaultConfig()
	if cfg.MaxRunes <= 0 {
		cfg.MaxRunes = def.MaxRunes
	}
	if cfg.Overlap < 0 {
		cfg.Overlap = 0
	}
	if cfg.Overlap >= cfg.MaxRunes {
		cfg.Overlap = cfg.MaxRunes / 4
	}
	if cfg.LookBack < 0 {
		cfg.LookBack = 0
	}
	if cfg.LookBack > cfg.MaxRunes/2 {
		cfg.LookBack = cfg.MaxRunes / 2
	}
	return &Chunker{cfg: cfg}
}

func (c *Chunker) Config() Config { return c.cfg }

// Split materializes Seq.
func (c *Chunker) Split(text string) []Chunk {
	return slices.Collect(c.Seq(text))
}

// Seq yields chunks in document order. The sequence is restartable and
// deterministic for identical input. Whitespace-only input yields nothing.
func (c *Chunker) Seq(text string) iter.Seq[Chunk] {
	return func(yield func(Chunk) bool) {
		if strings.TrimSpace(text) == "" {
			return
		}
		runes := []rune(text)
		n := len(runes)
		start, idx := 0, 0
		for start < n {
			end := start + c.cfg.MaxRunes
			if end >= n {
				end = n
			} else {
				end = c.cut(runes, start, end)
			}
			if seg := string(runes[start:end]); strings.TrimSpace(seg) != "" {
				if !yield(Chunk{Index: idx, Text: seg, Start: start, End: end}) {
					return
				}
				idx++
			}
			if end >= n {
				return
			}
			next := end - c.cfg.Overlap
			if next <= start {
				next = end
			}
			start = next
		}
	}
}

// cut returns the exclusive end of the chunk beginning at start, preferring a
// paragraph break, then a sentence terminator, inside the look-back window.
func (c *Chunker) cut(runes []rune, start, limit int) int {
	lo := limit - c.cfg.LookBack
	if lo <= start {
		lo = start + 1
	}
	for i := limit; i > lo; i-- {
		if runes[i-1] == '\n' && i-2 >= start && runes[i-2] == '\n' {
			return i
		}
	}
	for i := limit; i > lo; i-- {
		if isTerminator(runes[i-1]) {
			return i
		}
	}
	return limit
}

func isTerminator(r rune) bool {
	switch r {
	case '。', '！', '？', '；', '.', '!', '?', ';', '\n':
		return true
	}
	return false
}
