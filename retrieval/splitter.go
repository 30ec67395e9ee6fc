package retrieval

import (
	"strings"
	"unicode/utf8"
)

// Default splitter geometry, measured in runes.
const (
	DefaultChunkSize    = 1000
	DefaultChunkOverlap = 200
)

// separators lists the preferred cut points in descending order: paragraph
// breaks, line breaks, sentence ends, then word boundaries. A chunk is cut at
// the last occurrence of the highest ranked separator in its window; when
// none appears past the midpoint the text is cut mid-word at the size limit.
var separators = []string{"\n\n", "\n", ". ", " "}

// Piece is one chunk of a split document together with its rune offset from
// the start of the original text.
type Piece struct {
	Text   string
	Offset int
}

// Splitter cuts long documents into overlapping chunks that respect natural
// text boundaries where possible.
type Splitter struct {
	ChunkSize int // maximum chunk length in runes
	Overlap   int // runes shared between consecutive chunks
}

// NewSplitter creates a splitter, substituting defaults for non-positive
// values. Overlap is clamped below ChunkSize so splitting always progresses.
func NewSplitter(chunkSize, overlap int) *Splitter {
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}
	if overlap < 0 {
		overlap = DefaultChunkOverlap
	}
	if overlap >= chunkSize {
		overlap = chunkSize / 2
	}
	return &Splitter{ChunkSize: chunkSize, Overlap: overlap}
}

// Split cuts text into pieces of at most ChunkSize runes. Consecutive pieces
// share Overlap runes. Empty input yields no pieces.
func (s *Splitter) Split(text string) []Piece {
	runes := []rune(text)
	if len(runes) == 0 {
		return nil
	}
	if len(runes) <= s.ChunkSize {
		return []Piece{{Text: text, Offset: 0}}
	}

	var pieces []Piece
	start := 0
	for start < len(runes) {
		end := start + s.ChunkSize
		if end >= len(runes) {
			pieces = append(pieces, Piece{Text: string(runes[start:]), Offset: start})
			break
		}

		cut := s.findCut(runes[start:end])
		pieces = append(pieces, Piece{Text: string(runes[start : start+cut]), Offset: start})

		next := start + cut - s.Overlap
		if next <= start {
			next = start + cut
		}
		start = next
	}
	return pieces
}

// findCut returns the rune length to keep from window, preferring the last
// occurrence of the strongest separator in the second half of the window.
func (s *Splitter) findCut(window []rune) int {
	chunk := string(window)
	half := len(window) / 2

	for _, sep := range separators {
		idx := strings.LastIndex(chunk, sep)
		if idx < 0 {
			continue
		}
		cut := utf8.RuneCountInString(chunk[:idx+len(sep)])
		if cut > half {
			return cut
		}
	}
	return len(window)
}
