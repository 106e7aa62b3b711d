// Package chunker splits book text into overlapping segments sized for
// embedding. Cuts prefer the largest natural boundary (paragraph break,
// line break, space) within each window, falling back to a hard
// character cut, so the output is deterministic and chunks remain
// exact slices of the input.
package chunker

import (
	"strings"
	"unicode/utf8"
)

// DefaultChunkSize is the default number of characters per chunk.
const DefaultChunkSize = 1000

// DefaultOverlap is the default number of overlapping characters
// between successive chunks.
const DefaultOverlap = 200

// DefaultSeparators is the boundary priority list. The empty string
// means a hard character cut.
var DefaultSeparators = []string{"\n\n", "\n", " ", ""}

// Chunk is one slice of the input text.
type Chunk struct {
	// Text is the chunk content, an exact substring of the input.
	Text string

	// Offset is the chunk's starting byte offset in the input.
	Offset int
}

// Splitter produces overlapping chunks from text.
type Splitter struct {
	chunkSize  int
	overlap    int
	separators []string
}

// Option configures the splitter.
type Option func(*Splitter)

// WithChunkSize sets the chunk size in characters.
func WithChunkSize(size int) Option {
	return func(s *Splitter) {
		if size > 0 {
			s.chunkSize = size
		}
	}
}

// WithOverlap sets the overlap between chunks in characters.
func WithOverlap(overlap int) Option {
	return func(s *Splitter) {
		if overlap >= 0 {
			s.overlap = overlap
		}
	}
}

// WithSeparators sets the boundary priority list.
func WithSeparators(separators []string) Option {
	return func(s *Splitter) {
		if len(separators) > 0 {
			s.separators = separators
		}
	}
}

// New creates a splitter with the given options.
func New(opts ...Option) *Splitter {
	s := &Splitter{
		chunkSize:  DefaultChunkSize,
		overlap:    DefaultOverlap,
		separators: DefaultSeparators,
	}

	for _, opt := range opts {
		opt(s)
	}

	// Ensure overlap doesn't exceed chunk size
	if s.overlap >= s.chunkSize {
		s.overlap = s.chunkSize / 4
	}

	return s
}

// ChunkSize returns the configured chunk size.
func (s *Splitter) ChunkSize() int { return s.chunkSize }

// Overlap returns the configured overlap.
func (s *Splitter) Overlap() int { return s.overlap }

// Chunk splits text into overlapping chunks. Whitespace-only input
// yields no chunks; input shorter than the chunk size yields exactly
// one. Same input and parameters always yield the same sequence.
func (s *Splitter) Chunk(text string) []Chunk {
	if strings.TrimSpace(text) == "" {
		return nil
	}
	if len(text) <= s.chunkSize {
		return []Chunk{{Text: text, Offset: 0}}
	}

	var chunks []Chunk
	start := 0

	for start < len(text) {
		end := start + s.chunkSize
		if end >= len(text) {
			chunks = append(chunks, Chunk{Text: text[start:], Offset: start})
			break
		}

		end = s.boundary(text, start, end)
		chunks = append(chunks, Chunk{Text: text[start:end], Offset: start})

		// Overlap the next chunk with the tail of this one.
		start = end - s.overlap
		for start < len(text) && !utf8.RuneStart(text[start]) {
			start++
		}
	}

	return chunks
}

// boundary moves the cut back to the highest-priority separator in the
// window, keeping the separator with the preceding chunk. A separator
// is only used if the resulting chunk stays longer than the overlap,
// which guarantees forward progress; otherwise the hard cut applies.
func (s *Splitter) boundary(text string, start, end int) int {
	window := text[start:end]
	for _, sep := range s.separators {
		if sep == "" {
			break
		}
		if i := strings.LastIndex(window, sep); i >= 0 {
			b := start + i + len(sep)
			if b-start > s.overlap {
				return b
			}
		}
	}

	// Hard cut: back up to a rune start so multi-byte characters
	// never split.
	for end > start && !utf8.RuneStart(text[end]) {
		end--
	}
	return end
}
