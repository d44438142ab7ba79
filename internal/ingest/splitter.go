package ingest

import (
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"
)

const (
	DefaultChunkSize    = 500
	DefaultChunkOverlap = 50
)

// boundaryPatterns are tried in order: paragraph, line, sentence, whitespace.
// A hard cut is the last resort.
var boundaryPatterns = []*regexp.Regexp{
	regexp.MustCompile(`\n[ \t]*\n\s*`),
	regexp.MustCompile(`\n`),
	regexp.MustCompile(`[.!?]+["')\]]*\s+`),
	regexp.MustCompile(`\s+`),
}

// Splitter cuts text into chunks of at most ChunkSize characters where
// consecutive chunks share up to Overlap characters.
type Splitter struct {
	ChunkSize int
	Overlap   int
}

func NewSplitter(size, overlap int) Splitter {
	if size <= 0 {
		size = DefaultChunkSize
	}
	if overlap < 0 || overlap >= size/2 {
		overlap = size / 10
	}
	return Splitter{ChunkSize: size, Overlap: overlap}
}

func (s Splitter) SplitText(text string) []string {
	if strings.TrimSpace(text) == "" {
		return nil
	}
	if runeLen(text) <= s.ChunkSize {
		return []string{strings.TrimSpace(text)}
	}
	return s.merge(s.pieces(text, 0))
}

// pieceLimit leaves room for the overlap carried into the next chunk.
func (s Splitter) pieceLimit() int {
	return s.ChunkSize - s.Overlap
}

func (s Splitter) pieces(text string, level int) []string {
	if runeLen(text) <= s.pieceLimit() {
		return []string{text}
	}
	if level >= len(boundaryPatterns) {
		return hardCut(text, s.pieceLimit())
	}
	parts := splitAfter(text, boundaryPatterns[level])
	if len(parts) <= 1 {
		return s.pieces(text, level+1)
	}
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		out = append(out, s.pieces(p, level+1)...)
	}
	return out
}

func (s Splitter) merge(pieces []string) []string {
	var (
		chunks []string
		cur    strings.Builder
		curLen int
		fresh  bool
	)
	for _, p := range pieces {
		pl := runeLen(p)
		if curLen > 0 && curLen+pl > s.ChunkSize {
			emitted := cur.String()
			cur.Reset()
			curLen = 0
			if fresh {
				chunks = append(chunks, strings.TrimSpace(emitted))
				tail := s.overlapTail(emitted)
				cur.WriteString(tail)
				curLen = runeLen(tail)
			}
			fresh = false
		}
		cur.WriteString(p)
		curLen += pl
		if strings.TrimSpace(p) != "" {
			fresh = true
		}
	}
	if fresh {
		chunks = append(chunks, strings.TrimSpace(cur.String()))
	}
	return chunks
}

// overlapTail returns at most Overlap trailing characters of chunk, starting at a
// word boundary when one exists inside the window.
func (s Splitter) overlapTail(chunk string) string {
	if s.Overlap <= 0 {
		return ""
	}
	runes := []rune(chunk)
	start := len(runes) - s.Overlap
	if start < 0 {
		start = 0
	}
	if start > 0 && !unicode.IsSpace(runes[start-1]) {
		for i := start; i < len(runes); i++ {
			if unicode.IsSpace(runes[i]) {
				if strings.TrimSpace(string(runes[i:])) != "" {
					start = i
				}
				break
			}
		}
	}
	tail := strings.TrimLeftFunc(string(runes[start:]), unicode.IsSpace)
	if strings.TrimSpace(tail) == "" {
		return ""
	}
	return tail
}

// splitAfter cuts text after every match, keeping separators with the preceding part.
func splitAfter(text string, re *regexp.Regexp) []string {
	matches := re.FindAllStringIndex(text, -1)
	if len(matches) == 0 {
		return []string{text}
	}
	parts := make([]string, 0, len(matches)+1)
	last := 0
	for _, m := range matches {
		if m[1] <= last {
			continue
		}
		parts = append(parts, text[last:m[1]])
		last = m[1]
	}
	if last < len(text) {
		parts = append(parts, text[last:])
	}
	return parts
}

func hardCut(text string, size int) []string {
	runes := []rune(text)
	out := make([]string, 0, len(runes)/size+1)
	for i := 0; i < len(runes); i += size {
		end := i + size
		if end > len(runes) {
			end = len(runes)
		}
		out = append(out, string(runes[i:end]))
	}
	return out
}

func runeLen(s string) int {
	return utf8.RuneCountInString(s)
}
