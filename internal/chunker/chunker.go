package chunker

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

const (
	// DefaultMaxTokens is the target maximum token count per chunk
	DefaultMaxTokens = 400

	// DefaultOverlapTokens is the token budget shared between consecutive chunks
	DefaultOverlapTokens = 80

	// CharsPerToken is the heuristic for estimating tokens (chars/4)
	CharsPerToken = 4

	// MinChunkChars is the floor for the character budget, regardless of maxTokens
	MinChunkChars = 32
)

// Chunk is a contiguous, line-addressed slice of a document.
// Line numbers are zero-based and inclusive.
type Chunk struct {
	Text      string
	StartLine int
	EndLine   int
	Hash      string
}

// ComputeHash returns the truncated SHA-256 digest of a chunk's exact text.
// The 16-hex-char prefix is enough for change detection and id derivation
// while keeping ids short.
func ComputeHash(text string) string {
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:])[:16]
}

// ChunkMarkdown splits document content into overlapping line-addressed
// chunks bounded by an approximate token budget.
//
// Lines are accumulated into a buffer; when adding the next line would
// exceed the budget the buffer is emitted and a suffix of it is retained
// as the seed of the next buffer, producing controlled overlap. A single
// line longer than the budget is emitted whole: the budget is a soft cap,
// lines are never split. Buffers that are blank after trimming are dropped.
//
// The function is pure: identical inputs always yield identical chunk
// boundaries and hashes.
func ChunkMarkdown(content string, maxTokens, overlapTokens int) []Chunk {
	if content == "" {
		return nil
	}

	maxChars := maxTokens * CharsPerToken
	if maxChars < MinChunkChars {
		maxChars = MinChunkChars
	}
	overlapChars := overlapTokens * CharsPerToken
	if overlapChars < 0 {
		overlapChars = 0
	}

	lines := strings.Split(content, "\n")

	var chunks []Chunk
	var current []string
	currentChars := 0
	startLine := 0

	for i, line := range lines {
		lineChars := len(line) + 1 // +1 for the newline

		if currentChars+lineChars > maxChars && len(current) > 0 {
			if c, ok := makeChunk(current, startLine, i-1); ok {
				chunks = append(chunks, c)
			}

			// Retain a suffix of the closed buffer as the next buffer's seed.
			overlap, overlapTotal := tailWithinBudget(current, overlapChars)
			current = overlap
			currentChars = overlapTotal
			startLine = i - len(overlap)
		}

		current = append(current, line)
		currentChars += lineChars
	}

	if len(current) > 0 {
		if c, ok := makeChunk(current, startLine, len(lines)-1); ok {
			chunks = append(chunks, c)
		}
	}

	return chunks
}

// makeChunk joins buffered lines into a Chunk, rejecting blank-only buffers.
func makeChunk(lines []string, startLine, endLine int) (Chunk, bool) {
	text := strings.Join(lines, "\n")
	if strings.TrimSpace(text) == "" {
		return Chunk{}, false
	}
	return Chunk{
		Text:      text,
		StartLine: startLine,
		EndLine:   endLine,
		Hash:      ComputeHash(text),
	}, true
}

// tailWithinBudget takes lines from the end of the buffer, accumulating
// character count, stopping once adding another line would exceed the budget.
func tailWithinBudget(lines []string, budget int) ([]string, int) {
	var tail []string
	total := 0
	for i := len(lines) - 1; i >= 0; i-- {
		chars := len(lines[i]) + 1
		if total+chars > budget {
			break
		}
		tail = append([]string{lines[i]}, tail...)
		total += chars
	}
	return tail, total
}

// EstimateTokenCount estimates the number of tokens in a string.
func EstimateTokenCount(text string) int {
	return len(text) / CharsPerToken
}
