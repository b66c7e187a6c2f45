package types

import "time"

// ManualStatus is the processing state of a manual
type ManualStatus string

const (
	StatusPending    ManualStatus = "pending"
	StatusProcessing ManualStatus = "processing"
	StatusCompleted  ManualStatus = "completed"
	StatusFailed     ManualStatus = "failed"
)

// ManualNotMirrored is the error message of a manual recorded by reference
// only: its PDF could not be downloaded, so it is never indexed.
const ManualNotMirrored = "not_mirrored"

// Source tags where a manual URL came from
type Source string

const (
	SourceCache         Source = "cache"
	SourceCommercialAPI Source = "commercial_api"
	SourceOEMFallback   Source = "oem_fallback"
	SourceAIDiscovered  Source = "ai_discovered"
	SourceWebSearch     Source = "web_search"
)

// Valid reports whether s is a known source tag
func (s Source) Valid() bool {
	switch s {
	case SourceCache, SourceCommercialAPI, SourceOEMFallback, SourceAIDiscovered, SourceWebSearch:
		return true
	}
	return false
}

// Manual is the persisted record for one vehicle's owner's manual
type Manual struct {
	ID         string
	VehicleKey string
	Vehicle    Vehicle

	Title     string
	Source    Source
	SourceURL string
	BlobURL   string // empty when the PDF was not mirrored

	Status       ManualStatus
	PageCount    int
	ChunkCount   int
	ErrorMessage string

	CreatedAt time.Time
	UpdatedAt time.Time
}

// ManualRetrievalResult is the outcome of an acquisition request
type ManualRetrievalResult struct {
	Source      Source    `json:"source"`
	Vehicle     Vehicle   `json:"vehicle"`
	ManualURL   string    `json:"manual_url"`
	ManualTitle string    `json:"manual_title"`
	RetrievedAt time.Time `json:"retrieved_at"`
	Cached      bool      `json:"cached"`
}

// Stage tags reported through progress events
type Stage string

const (
	StageCheckingCache     Stage = "checking_cache"
	StageCommercialAPI     Stage = "querying_commercial_api"
	StageManufacturer      Stage = "trying_manufacturer_patterns"
	StageAskingAI          Stage = "asking_ai_for_url"
	StageVerifyingURL      Stage = "verifying_url"
	StageDownloading       Stage = "downloading"
	StageWebSearchFallback Stage = "fallback_web_search_link"
	StageDone              Stage = "done"
)

// ProgressEvent is an advisory stage transition notice
type ProgressEvent struct {
	Stage  Stage  `json:"stage"`
	Detail string `json:"detail,omitempty"`
}
