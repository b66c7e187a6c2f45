package types

// RetrievalMethod tags which search produced a result
type RetrievalMethod string

const (
	MethodBM25     RetrievalMethod = "bm25"
	MethodSemantic RetrievalMethod = "semantic"
	MethodHybrid   RetrievalMethod = "hybrid"
)

// RetrievalResult is one ranked passage returned for a query
type RetrievalResult struct {
	ChunkID      string          `json:"chunk_id"`
	ManualID     string          `json:"manual_id"`
	Text         string          `json:"text"`
	PageNumber   *int            `json:"page_number,omitempty"`
	SectionTitle string          `json:"section_title,omitempty"`
	Score        float64         `json:"score"`
	Method       RetrievalMethod `json:"method"`
}

// Validate checks the result is well formed
func (r *RetrievalResult) Validate() error {
	if r.ChunkID == "" {
		return ErrInvalidChunkID
	}
	if r.ManualID == "" {
		return ErrInvalidManualID
	}
	if r.Text == "" {
		return ErrEmptyContent
	}
	switch r.Method {
	case MethodBM25, MethodSemantic, MethodHybrid:
		return nil
	default:
		return ErrInvalidMethod
	}
}
