package ingestion_engine

import (
	"regexp"
	"strings"
)

// Chunk is the internal representation passed through the pipeline.
//
// Index:      stable, zero-based position of the chunk inside the document.
// Content:    chunk text (built from one or more paragraphs or sentences).
// TokenCount: approximate token count (used for batching and overlap math).
type Chunk struct {
	Index      int
	Content    string
	TokenCount int
	Metadata   map[string]string
}

// ChunkOptions tunes the splitter.
//
// MaxTokens:          approximate upper bound per chunk (e.g., 500).
// OverlapTokens:      tokens carried from the tail of one chunk into the
//                     next for context bleed (e.g., 50).
// PreserveParagraphs: split on blank-line boundaries before packing.
type ChunkOptions struct {
	MaxTokens          int
	OverlapTokens      int
	PreserveParagraphs bool
}

var (
	multiNewline = regexp.MustCompile(`\n{3,}`)
	sentenceEnd  = regexp.MustCompile(`[.!?]\s+`)
)

// Normalize unifies line endings, collapses runs of 3+ newlines to exactly
// two, and trims surrounding whitespace.
func Normalize(text string) string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = strings.ReplaceAll(text, "\r", "\n")
	text = multiNewline.ReplaceAllString(text, "\n\n")
	return strings.TrimSpace(text)
}

// SplitText splits raw document text into ordered, token-bounded chunks.
//
// Paragraphs are accumulated greedily while the estimated token count stays
// at or below MaxTokens. A paragraph that alone exceeds MaxTokens is broken
// into sentences and the sentences packed by the same rule. When a buffer
// is flushed, the next one is seeded with the last OverlapTokens worth of
// trailing words so local context survives the boundary.
//
// Empty (or whitespace-only) input yields an empty slice, not an error.
// A single oversized sentence with no terminal punctuation degrades to one
// chunk above MaxTokens; the bound is best-effort, matching the estimator.
func SplitText(text string, opts ChunkOptions) []Chunk {
	text = Normalize(text)
	if text == "" {
		return []Chunk{}
	}

	paragraphs := []string{text}
	if opts.PreserveParagraphs {
		paragraphs = splitParagraphs(text)
	}

	acc := &accumulator{opts: opts}
	for _, p := range paragraphs {
		if EstimateTokens(p) > opts.MaxTokens {
			// Oversized paragraph: flush what we have, then fall back to
			// sentence-level packing.
			acc.flush()
			for _, s := range splitSentences(p) {
				acc.add(s, " ")
			}
			continue
		}
		acc.add(p, "\n\n")
	}
	acc.flush()
	return acc.chunks
}

// accumulator greedily packs text segments into chunks.
type accumulator struct {
	opts    ChunkOptions
	cur     string
	pending bool // cur holds more than an overlap seed
	chunks  []Chunk
}

func (a *accumulator) add(seg, sep string) {
	// The bound holds for the joined text, separator included, not for
	// the sum of the parts.
	joined := a.join(seg, sep)
	if a.pending && EstimateTokens(joined) > a.opts.MaxTokens {
		a.flush()
		joined = a.join(seg, sep)
	}
	a.cur = joined
	a.pending = true
}

func (a *accumulator) join(seg, sep string) string {
	if a.cur == "" {
		return seg
	}
	return a.cur + sep + seg
}

// flush emits the current buffer as a chunk and reseeds the buffer with
// the overlap tail, if configured. A buffer holding only a leftover seed
// is discarded, never emitted on its own.
func (a *accumulator) flush() {
	if !a.pending {
		a.cur = ""
		return
	}
	content := strings.TrimSpace(a.cur)
	a.pending = false
	a.cur = ""
	if content == "" {
		return
	}
	a.chunks = append(a.chunks, Chunk{
		Index:      len(a.chunks),
		Content:    content,
		TokenCount: EstimateTokens(content),
	})
	if a.opts.OverlapTokens > 0 {
		a.cur = TailWords(content, a.opts.OverlapTokens)
	}
}

func splitParagraphs(text string) []string {
	raw := strings.Split(text, "\n\n")
	out := make([]string, 0, len(raw))
	for _, p := range raw {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// splitSentences cuts on sentence-terminal punctuation followed by
// whitespace, keeping the punctuation with its sentence. Text with no
// terminal punctuation comes back as a single sentence.
func splitSentences(p string) []string {
	var out []string
	start := 0
	for _, loc := range sentenceEnd.FindAllStringIndex(p, -1) {
		if s := strings.TrimSpace(p[start:loc[1]]); s != "" {
			out = append(out, s)
		}
		start = loc[1]
	}
	if rest := strings.TrimSpace(p[start:]); rest != "" {
		out = append(out, rest)
	}
	return out
}
