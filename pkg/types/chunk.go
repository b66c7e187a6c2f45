package types

import (
	"crypto/sha256"
	"fmt"
)

// ChunkLevel is the depth of a chunk in the chapter > section > procedure hierarchy
type ChunkLevel int

const (
	LevelChapter ChunkLevel = iota
	LevelSection
	LevelProcedure
)

// Token budgets per level. One token is approximated as CharsPerToken characters.
const (
	ChapterTokenBudget   = 2048
	SectionTokenBudget   = 512
	ProcedureTokenBudget = 256
	OverlapTokens        = 40
	CharsPerToken        = 4
)

func (l ChunkLevel) String() string {
	switch l {
	case LevelChapter:
		return "chapter"
	case LevelSection:
		return "section"
	case LevelProcedure:
		return "procedure"
	default:
		return fmt.Sprintf("level(%d)", int(l))
	}
}

// Budget returns the token budget for the level, or 0 if the level is unknown
func (l ChunkLevel) Budget() int {
	switch l {
	case LevelChapter:
		return ChapterTokenBudget
	case LevelSection:
		return SectionTokenBudget
	case LevelProcedure:
		return ProcedureTokenBudget
	default:
		return 0
	}
}

// ContentType is the keyword-derived classification of a chunk
type ContentType string

const (
	ContentWarning       ContentType = "warning"
	ContentProcedure     ContentType = "procedure"
	ContentSpecification ContentType = "specification"
	ContentGeneral       ContentType = "general"
)

// Valid reports whether c is one of the known content types
func (c ContentType) Valid() bool {
	switch c {
	case ContentWarning, ContentProcedure, ContentSpecification, ContentGeneral:
		return true
	}
	return false
}

// Chunk is an immutable slice of manual text
type Chunk struct {
	// Identification
	ID       string
	ManualID string
	ParentID *string // nil for chapter chunks

	// Content
	Level        ChunkLevel
	Content      string
	TokenCount   int
	PageNumber   *int // best-effort
	SectionTitle string
	ContentType  ContentType

	// Ordering
	SequenceIndex int
}

// EstimateTokens approximates the token count of text
func EstimateTokens(text string) int {
	return len(text) / CharsPerToken
}

// Validate checks the chunk's own fields; tree shape is checked by ValidateHierarchy.
func (c *Chunk) Validate() error {
	if c.ID == "" {
		return ErrInvalidChunkID
	}
	if c.ManualID == "" {
		return ErrInvalidManualID
	}
	if c.Content == "" {
		return ErrEmptyContent
	}
	if c.Level.Budget() == 0 {
		return fmt.Errorf("%w: %d", ErrInvalidChunkLevel, c.Level)
	}
	if !c.ContentType.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidContentType, c.ContentType)
	}
	if c.TokenCount > c.Level.Budget()+OverlapTokens {
		return fmt.Errorf("%w: %d tokens at %s level", ErrChunkOverBudget, c.TokenCount, c.Level)
	}
	if (c.Level == LevelChapter) != (c.ParentID == nil) {
		return fmt.Errorf("%w: %s chunk %s", ErrInvalidParent, c.Level, c.ID)
	}
	return nil
}

// ContentHash returns the SHA-256 of the chunk text
func (c *Chunk) ContentHash() [32]byte {
	return sha256.Sum256([]byte(c.Content))
}

// ValidateHierarchy checks every chunk and that parent links form a tree in which
// each chunk sits exactly one level below its parent. Parents must precede children.
func ValidateHierarchy(chunks []Chunk) error {
	levels := make(map[string]ChunkLevel, len(chunks))
	for i := range chunks {
		c := &chunks[i]
		if err := c.Validate(); err != nil {
			return err
		}
		if c.SequenceIndex != i {
			return fmt.Errorf("sequence index %d at position %d", c.SequenceIndex, i)
		}
		if c.ParentID != nil {
			parentLevel, ok := levels[*c.ParentID]
			if !ok {
				return fmt.Errorf("%w: parent %s of %s not seen", ErrInvalidParent, *c.ParentID, c.ID)
			}
			if c.Level != parentLevel+1 {
				return fmt.Errorf("%w: %s under %s", ErrInvalidParent, c.Level, parentLevel)
			}
		}
		if _, dup := levels[c.ID]; dup {
			return fmt.Errorf("%w: duplicate %s", ErrInvalidChunkID, c.ID)
		}
		levels[c.ID] = c.Level
	}
	return nil
}
