package chunker

import (
	"errors"
	"strings"
	"unicode/utf8"
)

// DefaultMaxChunkChars keeps a chunk plus prompt well inside a 128k-token context.
const DefaultMaxChunkChars = 50000

// DefaultFileMarkers are the line prefixes that open a new file in a
// concatenated repository payload.
var DefaultFileMarkers = []string{"// File: ", "# File: ", "--- File: ", "=== File: "}

var (
	ErrEmptyPayload = errors.New("payload is empty")
	ErrInvalidBound = errors.New("max chunk size must be positive")
)

// Options controls how a payload is split.
type Options struct {
	// MaxChunkChars bounds each chunk, measured in bytes of UTF-8 text.
	MaxChunkChars int
	// FileMarkers overrides DefaultFileMarkers when non-nil.
	FileMarkers []string
	// AtomicFiles keeps a file larger than the bound whole as its own
	// oversized chunk instead of splitting it at paragraphs.
	AtomicFiles bool
}

// Chunk is a contiguous slice of the payload.
type Chunk struct {
	Index  int    `json:"index"`
	Total  int    `json:"total"`
	Offset int    `json:"offset"`
	Text   string `json:"-"`
}

func (c Chunk) Len() int { return len(c.Text) }

// Split partitions payload into ordered chunks. Concatenating the chunk texts
// in index order reproduces payload exactly. Split points are chosen from
// file markers first, then blank lines, then raw offsets (preferring a
// newline or whitespace, always on a rune boundary).
func Split(payload string, opts Options) ([]Chunk, error) {
	if opts.MaxChunkChars <= 0 {
		return nil, ErrInvalidBound
	}
	if strings.TrimSpace(payload) == "" {
		return nil, ErrEmptyPayload
	}
	markers := opts.FileMarkers
	if markers == nil {
		markers = DefaultFileMarkers
	}
	limit := opts.MaxChunkChars

	var segs []string
	for _, file := range splitFiles(payload, markers) {
		if len(file) <= limit || opts.AtomicFiles {
			segs = append(segs, file)
			continue
		}
		for _, para := range splitParagraphs(file) {
			if len(para) <= limit {
				segs = append(segs, para)
				continue
			}
			segs = append(segs, splitRaw(para, limit)...)
		}
	}

	texts := pack(segs, limit)
	chunks := make([]Chunk, len(texts))
	offset := 0
	for i, text := range texts {
		chunks[i] = Chunk{Index: i, Total: len(texts), Offset: offset, Text: text}
		offset += len(text)
	}
	return chunks, nil
}

// Reassemble concatenates chunk texts in the order given.
func Reassemble(chunks []Chunk) string {
	var sb strings.Builder
	for _, c := range chunks {
		sb.WriteString(c.Text)
	}
	return sb.String()
}

// splitFiles cuts payload at the start of every line that begins with a file
// marker. Text before the first marker forms its own unit.
func splitFiles(payload string, markers []string) []string {
	var units []string
	start := 0
	for i := 0; i < len(payload); {
		if i > start && hasMarker(payload[i:], markers) {
			units = append(units, payload[start:i])
			start = i
		}
		nl := strings.IndexByte(payload[i:], '\n')
		if nl < 0 {
			break
		}
		i += nl + 1
	}
	return append(units, payload[start:])
}

func hasMarker(line string, markers []string) bool {
	for _, m := range markers {
		if m != "" && strings.HasPrefix(line, m) {
			return true
		}
	}
	return false
}

// splitParagraphs cuts text after each run of blank lines.
func splitParagraphs(text string) []string {
	var paras []string
	start := 0
	for i := 1; i < len(text); i++ {
		if text[i] == '\n' && text[i-1] == '\n' && (i+1 == len(text) || text[i+1] != '\n') {
			paras = append(paras, text[start:i+1])
			start = i + 1
		}
	}
	if start < len(text) {
		paras = append(paras, text[start:])
	}
	return paras
}

// splitRaw cuts s into pieces of at most limit bytes.
func splitRaw(s string, limit int) []string {
	var pieces []string
	for len(s) > limit {
		cut := rawCut(s, limit)
		pieces = append(pieces, s[:cut])
		s = s[cut:]
	}
	if s != "" {
		pieces = append(pieces, s)
	}
	return pieces
}

func rawCut(s string, limit int) int {
	window := s[:limit]
	if nl := strings.LastIndexByte(window, '\n'); nl > 0 {
		return nl + 1
	}
	if sp := strings.LastIndexAny(window, " \t"); sp > 0 {
		return sp + 1
	}
	cut := limit
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	if cut == 0 {
		// A single rune wider than the bound.
		_, size := utf8.DecodeRuneInString(s)
		cut = size
	}
	return cut
}

// pack greedily joins adjacent segments while the result stays within limit.
func pack(segs []string, limit int) []string {
	var out []string
	var cur strings.Builder
	for _, seg := range segs {
		if cur.Len() > 0 && cur.Len()+len(seg) > limit {
			out = append(out, cur.String())
			cur.Reset()
		}
		cur.WriteString(seg)
	}
	if cur.Len() > 0 {
		out = append(out, cur.String())
	}
	return out
}
