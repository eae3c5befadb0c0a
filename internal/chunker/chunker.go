// Package chunker splits normalized document text into overlapping segments
// at natural boundaries for embedding.
package chunker

import (
	"strings"

	"github.com/intraline/kbcore/internal/domain"
)

// Config controls chunk sizing.
type Config struct {
	// TargetSize is the window size in runes, roughly 500 tokens at 4
	// chars/token.
	TargetSize int
	// Overlap is how many runes of the previous chunk's tail are repeated
	// at the start of the next chunk.
	Overlap int
	// MinSize drops trailing fragments too short to carry retrievable
	// signal.
	MinSize int
}

// DefaultConfig provides sane defaults for chunking.
func DefaultConfig() Config {
	return Config{
		TargetSize: 2000,
		Overlap:    200,
		MinSize:    50,
	}
}

// Split cuts text into ordered, overlapping chunks. It is deterministic and
// single-pass: the same input always yields the same sequence. Empty or
// whitespace-only input yields no chunks.
func Split(text string, cfg Config) []domain.Chunk {
	if cfg.TargetSize <= 0 {
		cfg = DefaultConfig()
	}

	clean := Normalize(text)
	if clean == "" {
		return nil
	}

	runes := []rune(clean)
	if len(runes) <= cfg.TargetSize {
		return []domain.Chunk{{Text: clean, Index: 0}}
	}

	chunks := make([]domain.Chunk, 0, len(runes)/cfg.TargetSize+1)
	start := 0
	for start < len(runes) {
		end := start + cfg.TargetSize
		if end >= len(runes) {
			end = len(runes)
		} else {
			end = breakPoint(runes, start, end)
		}

		segment := string(runes[start:end])
		if end-start >= cfg.MinSize {
			chunks = append(chunks, domain.Chunk{Text: segment, Index: len(chunks)})
		}

		if end >= len(runes) {
			break
		}

		next := end - cfg.Overlap
		// Forward progress: never restart at or before the previous start.
		if next <= start {
			next = end
		}
		start = next
	}

	return chunks
}

// Normalize converts line endings to \n and trims surrounding whitespace.
func Normalize(text string) string {
	clean := strings.ReplaceAll(text, "\r\n", "\n")
	clean = strings.ReplaceAll(clean, "\r", "\n")
	return strings.TrimSpace(clean)
}

// breakPoint searches backward from the tentative end for a natural cut,
// never before the midpoint of the window: a paragraph break first, then a
// sentence terminator, then a single newline, falling back to the raw
// window boundary.
func breakPoint(runes []rune, start, end int) int {
	mid := start + (end-start)/2

	for i := end; i > mid; i-- {
		if runes[i-1] == '\n' && i >= start+2 && runes[i-2] == '\n' {
			return i
		}
	}

	for i := end; i > mid; i-- {
		if i < start+2 {
			break
		}
		if isSentenceEnd(runes[i-2]) && (runes[i-1] == ' ' || runes[i-1] == '\n') {
			return i
		}
	}

	for i := end; i > mid; i-- {
		if runes[i-1] == '\n' {
			return i
		}
	}

	return end
}

func isSentenceEnd(r rune) bool {
	return r == '.' || r == '!' || r == '?'
}
