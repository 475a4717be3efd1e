package ingest

import (
	"strings"
	"sync"
	"unicode"

	"github.com/pkoukk/tiktoken-go"
)

// Splitter defaults.
const (
	DefaultChunkSize    = 1000
	DefaultChunkOverlap = 120
)

// DefaultSeparators are tried in order: paragraphs, lines, sentences, words
// and finally single characters.
var DefaultSeparators = []string{"\n\n", "\n", ". ", " ", ""}

// TokenEncoding is the tiktoken encoding chunk sizes are measured in.
const TokenEncoding = tiktoken.MODEL_CL100K_BASE

var (
	encoderOnce sync.Once
	encoder     *tiktoken.Tiktoken
	encoderErr  error
)

// tokenEncoder loads the BPE ranks once. tiktoken-go downloads them on first
// use and caches them under TIKTOKEN_CACHE_DIR.
func tokenEncoder() (*tiktoken.Tiktoken, error) {
	encoderOnce.Do(func() {
		encoder, encoderErr = tiktoken.GetEncoding(TokenEncoding)
	})
	return encoder, encoderErr
}

// CountTokens returns the cl100k_base token count of text, or EstimateTokens
// when the encoding cannot be loaded.
func CountTokens(text string) int {
	if text == "" {
		return 0
	}
	enc, err := tokenEncoder()
	if err != nil {
		return EstimateTokens(text)
	}
	return len(enc.EncodeOrdinary(text))
}

// EstimateTokens approximates a tokenizer: about 1.3 tokens per word plus one
// per two punctuation marks.
func EstimateTokens(text string) int {
	if text == "" {
		return 0
	}
	words := len(strings.Fields(text))
	punct := 0
	for _, r := range text {
		if unicode.IsPunct(r) {
			punct++
		}
	}
	return int(float64(words)*1.3) + punct/2
}

// RecursiveSplitter splits text on the coarsest separator present, recurses
// into pieces that are still too long and merges small pieces back into
// chunks of at most ChunkSize, carrying up to ChunkOverlap into the next one.
type RecursiveSplitter struct {
	Separators   []string
	ChunkSize    int
	ChunkOverlap int
	Length       func(string) int
}

// NewRecursiveSplitter returns a token-measured splitter. Non-positive sizes
// fall back to the defaults.
func NewRecursiveSplitter(chunkSize, overlap int) *RecursiveSplitter {
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}
	if overlap < 0 || overlap >= chunkSize {
		overlap = DefaultChunkOverlap
		if overlap >= chunkSize {
			overlap = chunkSize / 10
		}
	}
	return &RecursiveSplitter{
		Separators:   DefaultSeparators,
		ChunkSize:    chunkSize,
		ChunkOverlap: overlap,
		Length:       CountTokens,
	}
}

// Split returns the chunks of text in order.
func (s *RecursiveSplitter) Split(text string) []string {
	return s.split(text, s.Separators)
}

func (s *RecursiveSplitter) split(text string, separators []string) []string {
	separator := ""
	var rest []string
	for i, sep := range separators {
		if sep == "" || strings.Contains(text, sep) {
			separator = sep
			rest = separators[i+1:]
			break
		}
	}

	var pieces []string
	if separator == "" {
		for _, r := range text {
			pieces = append(pieces, string(r))
		}
	} else {
		pieces = strings.Split(text, separator)
	}

	var out, good []string
	for _, p := range pieces {
		if p == "" {
			continue
		}
		if s.Length(p) < s.ChunkSize {
			good = append(good, p)
			continue
		}
		if len(good) > 0 {
			out = append(out, s.merge(good, separator)...)
			good = nil
		}
		if len(rest) == 0 {
			out = append(out, p)
		} else {
			out = append(out, s.split(p, rest)...)
		}
	}
	if len(good) > 0 {
		out = append(out, s.merge(good, separator)...)
	}
	return out
}

// merge packs pieces into chunks joined by separator.
func (s *RecursiveSplitter) merge(pieces []string, separator string) []string {
	sepLen := s.Length(separator)
	joinLen := func(n int) int {
		if n > 0 {
			return sepLen
		}
		return 0
	}

	var chunks, current []string
	total := 0
	for _, p := range pieces {
		l := s.Length(p)
		if total+l+joinLen(len(current)) > s.ChunkSize && len(current) > 0 {
			if chunk := strings.TrimSpace(strings.Join(current, separator)); chunk != "" {
				chunks = append(chunks, chunk)
			}
			// drop from the front until what is left fits as overlap
			for total > s.ChunkOverlap || (total > 0 && total+l+joinLen(len(current)) > s.ChunkSize) {
				total -= s.Length(current[0]) + joinLen(len(current)-1)
				current = current[1:]
				if len(current) == 0 {
					total = 0
					break
				}
			}
		}
		current = append(current, p)
		total += l + joinLen(len(current)-1)
	}
	if chunk := strings.TrimSpace(strings.Join(current, separator)); chunk != "" {
		chunks = append(chunks, chunk)
	}
	return chunks
}
