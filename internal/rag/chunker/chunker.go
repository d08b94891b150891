// Package chunker splits raw document text into bounded, overlapping
// segments using a cascade of semantic separators. Splits happen only at
// separator boundaries; a hard rune-level cut is the last resort.
package chunker

import (
	"strings"
	"unicode/utf8"
)

type Config struct {
	// MaxSize is the target chunk size in runes. A chunk may exceed it by
	// at most Overlap runes when the injected overlap fills it.
	MaxSize int
	// Overlap is the number of runes adjacent chunks share.
	Overlap int
	// Separators are tried in priority order; the empty string means a
	// hard cut and always terminates the cascade.
	Separators []string
}

// DefaultConfig mirrors the corpus the assistant was built for: CJK
// classical texts with full-width sentence terminals.
func DefaultConfig() Config {
	return Config{
		MaxSize:    1000,
		Overlap:    200,
		Separators: []string{"\n\n\n", "\n\n", "\n", "。", "！", "？", " ", ""},
	}
}

// Split returns the chunk sequence for text. Deterministic for a fixed
// config; empty input yields no chunks; text shorter than MaxSize yields
// exactly one. Concatenating the chunks after stripping each one's overlap
// prefix reconstructs the input losslessly.
func Split(text string, cfg Config) []string {
	if text == "" {
		return nil
	}
	if utf8.RuneCountInString(text) <= cfg.MaxSize {
		return []string{text}
	}

	segments := splitRecursive(text, cfg.MaxSize, cfg.Separators)

	var chunks []string
	cur := ""
	hasCore := false
	for _, seg := range segments {
		if hasCore && utf8.RuneCountInString(cur)+utf8.RuneCountInString(seg) > cfg.MaxSize {
			chunks = append(chunks, cur)
			cur = lastRunes(cur, cfg.Overlap)
			hasCore = false
		}
		cur += seg
		hasCore = true
	}
	if hasCore {
		chunks = append(chunks, cur)
	}
	return chunks
}

// splitRecursive cuts text into segments of at most maxSize runes. It finds
// the first separator present in the text, splits there keeping the
// separator attached to the preceding segment, and recurses into oversize
// segments with the remaining separators.
func splitRecursive(text string, maxSize int, separators []string) []string {
	if utf8.RuneCountInString(text) <= maxSize {
		return []string{text}
	}
	for i, sep := range separators {
		if sep == "" {
			break
		}
		if !strings.Contains(text, sep) {
			continue
		}
		parts := strings.SplitAfter(text, sep)
		if parts[len(parts)-1] == "" {
			parts = parts[:len(parts)-1]
		}
		var segments []string
		for _, part := range parts {
			if utf8.RuneCountInString(part) > maxSize {
				segments = append(segments, splitRecursive(part, maxSize, separators[i+1:])...)
			} else {
				segments = append(segments, part)
			}
		}
		return segments
	}
	return hardSplit(text, maxSize)
}

// hardSplit cuts at rune boundaries, never mid-codepoint.
func hardSplit(text string, maxSize int) []string {
	var segments []string
	runes := []rune(text)
	for len(runes) > maxSize {
		segments = append(segments, string(runes[:maxSize]))
		runes = runes[maxSize:]
	}
	if len(runes) > 0 {
		segments = append(segments, string(runes))
	}
	return segments
}

// lastRunes returns the trailing n runes of s.
func lastRunes(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[len(runes)-n:])
}

// OverlapLen reports how many runes of chunk i are replayed from chunk i-1,
// given the previous chunk. Callers use it to strip overlaps when
// reassembling documents.
func OverlapLen(prev string, overlap int) int {
	if n := utf8.RuneCountInString(prev); n < overlap {
		return n
	}
	return overlap
}
