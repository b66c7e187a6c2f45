package types

import "errors"

// Domain errors for type validation
var (
	ErrInvalidVehicle     = errors.New("invalid vehicle descriptor")
	ErrTextTooShort       = errors.New("manual text below minimum length")
	ErrInvalidChunkID     = errors.New("invalid chunk ID")
	ErrInvalidManualID    = errors.New("invalid manual ID")
	ErrInvalidChunkLevel  = errors.New("invalid chunk level")
	ErrInvalidContentType = errors.New("invalid content type")
	ErrInvalidParent      = errors.New("invalid parent reference")
	ErrChunkOverBudget    = errors.New("chunk exceeds level token budget")
	ErrEmptyContent       = errors.New("content cannot be empty")
	ErrInvalidMethod      = errors.New("invalid retrieval method")
	ErrInvalidSource      = errors.New("invalid manual source")
)
