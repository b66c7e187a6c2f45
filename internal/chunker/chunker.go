package chunker

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"github.com/dshills/manualrag/pkg/types"
)

const (
	// MinTextLength is the shortest extracted text (in characters) worth indexing
	MinTextLength = 200

	// TokensPerChar is the heuristic for estimating tokens (chars/4)
	TokensPerChar = types.CharsPerToken
)

// chunkNamespace seeds deterministic chunk IDs
var chunkNamespace = uuid.NewSHA1(uuid.NameSpaceOID, []byte("manualrag.chunk"))

// Options tunes the chunker
type Options struct {
	MinTextLength int
	OverlapTokens int
}

// DefaultOptions returns the standard chunking options
func DefaultOptions() Options {
	return Options{
		MinTextLength: MinTextLength,
		OverlapTokens: types.OverlapTokens,
	}
}

// Chunker splits manual text into a chapter > section > procedure hierarchy
type Chunker struct {
	opts Options
}

// New creates a Chunker with default options
func New() *Chunker {
	return NewWithOptions(DefaultOptions())
}

// NewWithOptions creates a Chunker. Overlap is capped at the standard tolerance.
func NewWithOptions(opts Options) *Chunker {
	if opts.MinTextLength <= 0 {
		opts.MinTextLength = MinTextLength
	}
	if opts.OverlapTokens < 0 || opts.OverlapTokens > types.OverlapTokens {
		opts.OverlapTokens = types.OverlapTokens
	}
	return &Chunker{opts: opts}
}

// builder accumulates chunks in emission order
type builder struct {
	manualID string
	doc      *document
	chunks   []types.Chunk
}

// Chunk splits rawText into an ordered chunk list for the manual. The same
// input always yields the same chunks, IDs included.
func (c *Chunker) Chunk(rawText, manualID string, vehicle types.Vehicle) ([]types.Chunk, error) {
	if manualID == "" {
		return nil, types.ErrInvalidManualID
	}

	doc := newDocument(rawText)
	if len(strings.TrimSpace(doc.text)) < c.opts.MinTextLength {
		return nil, fmt.Errorf("%w: %d characters, need %d",
			types.ErrTextTooShort, len(strings.TrimSpace(doc.text)), c.opts.MinTextLength)
	}

	overlap := c.opts.OverlapTokens * TokensPerChar
	b := &builder{manualID: manualID, doc: doc}

	for _, ch := range c.chapterBlocks(doc, vehicle, overlap) {
		chapterID := b.add(nil, types.LevelChapter, ch)
		if chapterID == "" {
			continue
		}

		sections := sectionBlocks(doc, ch, overlap)
		for _, sec := range sections {
			sectionID := b.add(&chapterID, types.LevelSection, sec)
			if sectionID == "" || sec.tokens() <= types.SectionTokenBudget {
				continue
			}

			for _, w := range windows(doc.text, sec, types.ProcedureTokenBudget*TokensPerChar, overlap) {
				w.title = sec.title
				b.add(&sectionID, types.LevelProcedure, w)
			}
		}
	}

	if len(b.chunks) == 0 {
		return nil, fmt.Errorf("%w: no content after splitting", types.ErrTextTooShort)
	}

	return b.chunks, nil
}

// chapterBlocks returns heading-delimited chapters, or fixed-width windows when
// the text has no recognizable chapter headings.
func (c *Chunker) chapterBlocks(doc *document, vehicle types.Vehicle, overlap int) []span {
	whole := span{start: 0, end: len(doc.text)}
	headings := findChapterHeadings(doc.text, vehicle)
	if len(headings) == 0 {
		return windows(doc.text, whole, types.ChapterTokenBudget*TokensPerChar, overlap)
	}
	return blocksFromHeadings(doc.text, whole, headings)
}

// sectionBlocks splits a chapter on section headings. A chapter without headings
// that already fits a section is not split again.
func sectionBlocks(doc *document, chapter span, overlap int) []span {
	body := chapter
	if chapter.title != "" {
		// the heading line itself is not a section
		nl := strings.IndexByte(doc.text[chapter.start:chapter.end], '\n')
		if nl < 0 {
			return nil
		}
		body.start = chapter.start + nl + 1
	}

	headings := findSectionHeadings(doc.text[body.start:body.end], body.start)
	if len(headings) == 0 {
		if chapter.tokens() <= types.SectionTokenBudget {
			return nil
		}
		secs := windows(doc.text, chapter, types.SectionTokenBudget*TokensPerChar, overlap)
		for i := range secs {
			secs[i].title = chapter.title
		}
		return secs
	}

	secs := blocksFromHeadings(doc.text, body, headings)
	for i := range secs {
		if secs[i].title == "" {
			secs[i].title = chapter.title
		}
	}
	return secs
}

// add appends a chunk for the span at the given level and returns its ID, or
// "" if the span has no content. Text beyond the level budget is clipped; the
// full text is carried by the span's children.
func (b *builder) add(parentID *string, level types.ChunkLevel, s span) string {
	content := clip(strings.TrimSpace(b.doc.text[s.start:s.end]), level.Budget()*TokensPerChar)
	if content == "" {
		return ""
	}

	seq := len(b.chunks)
	id := ChunkID(b.manualID, seq)

	var parent *string
	if parentID != nil {
		p := *parentID
		parent = &p
	}

	b.chunks = append(b.chunks, types.Chunk{
		ID:            id,
		ManualID:      b.manualID,
		ParentID:      parent,
		Level:         level,
		Content:       content,
		TokenCount:    types.EstimateTokens(content),
		PageNumber:    b.doc.pageFor(s),
		SectionTitle:  s.title,
		ContentType:   Classify(content),
		SequenceIndex: seq,
	})

	return id
}

// ChunkID returns the deterministic identifier of the chunk at seq within a manual
func ChunkID(manualID string, seq int) string {
	return uuid.NewSHA1(chunkNamespace, []byte(manualID+":"+strconv.Itoa(seq))).String()
}

// EstimateTokenCount provides a rough token count estimate
func EstimateTokenCount(text string) int {
	return types.EstimateTokens(text)
}
