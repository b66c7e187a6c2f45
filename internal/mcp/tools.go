package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/mark3labs/mcp-go/mcp"

	"github.com/dshills/manualrag/internal/indexer"
	"github.com/dshills/manualrag/internal/searcher"
	"github.com/dshills/manualrag/internal/storage"
	"github.com/dshills/manualrag/pkg/types"
)

// MCP error codes
const (
	ErrorCodeInvalidParams      = -32602 // Invalid method parameters
	ErrorCodeInternalError      = -32603 // Internal JSON-RPC error
	ErrorCodeManualNotFound     = -32001 // No manual for the given ID or vehicle
	ErrorCodeIndexingInProgress = -32002 // Another indexing run holds the manual
	ErrorCodeTextTooShort       = -32003 // Manual text below the minimum length
)

// handleAcquireManual handles the acquire_manual tool invocation
func (s *Server) handleAcquireManual(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, ok := request.Params.Arguments.(map[string]interface{})
	if !ok {
		return nil, newMCPError(ErrorCodeInvalidParams, "invalid arguments", nil)
	}

	vehicle, err := parseVehicle(args)
	if err != nil {
		return nil, vehicleError(err)
	}

	out, err := s.app.Orchestrator.Acquire(ctx, vehicle, nil)
	if err != nil {
		return nil, vehicleError(err)
	}

	res := out.Result
	response := map[string]interface{}{
		"source":       res.Source,
		"manual_url":   res.ManualURL,
		"manual_title": res.ManualTitle,
		"retrieved_at": res.RetrievedAt.Format(time.RFC3339),
		"cached":       res.Cached,
		"vehicle":      res.Vehicle,
		"verified":     res.Source != types.SourceWebSearch,
	}
	if out.Manual != nil {
		response["manual_id"] = out.Manual.ID
	}

	if task := out.IndexTask; task != nil {
		indexing := map[string]interface{}{"state": task.State()}
		if getBoolDefault(args, "wait_for_index", false) {
			stats, err := task.Wait(ctx)
			indexing["state"] = task.State()
			if err != nil {
				indexing["error"] = err.Error()
			} else {
				indexing["chunks_stored"] = stats.ChunksStored
				indexing["page_count"] = stats.PageCount
			}
		}
		response["indexing"] = indexing
	}

	return mcp.NewToolResultText(formatJSON(response)), nil
}

// handleSearchManual handles the search_manual tool invocation
func (s *Server) handleSearchManual(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, ok := request.Params.Arguments.(map[string]interface{})
	if !ok {
		return nil, newMCPError(ErrorCodeInvalidParams, "invalid arguments", nil)
	}

	query, ok := args["query"].(string)
	if !ok {
		return nil, newMCPError(ErrorCodeInvalidParams, "query parameter is required", map[string]interface{}{
			"param":  "query",
			"reason": "missing",
		})
	}

	limit := getIntDefault(args, "limit", searcher.DefaultLimit)
	if limit < 1 || limit > searcher.MaxLimit {
		return nil, newMCPError(ErrorCodeInvalidParams, "limit must be between 1 and 100", map[string]interface{}{
			"param": "limit",
			"value": limit,
		})
	}

	searchMode := getStringDefault(args, "search_mode", "hybrid")
	if searchMode != "hybrid" && searchMode != "semantic" {
		return nil, newMCPError(ErrorCodeInvalidParams, "invalid search_mode", map[string]interface{}{
			"param":   "search_mode",
			"value":   searchMode,
			"allowed": []string{"hybrid", "semantic"},
		})
	}

	req := searcher.SearchRequest{
		Query:    query,
		ManualID: getStringDefault(args, "manual_id", ""),
		Limit:    limit,
		Options:  s.app.SearchOptions(),
	}
	req.Options.DisableLexical = searchMode == "semantic"
	if req.ManualID == "" {
		vehicle, err := parseVehicle(args)
		if err != nil {
			return nil, vehicleError(err)
		}
		req.Vehicle = &vehicle
	}

	resp, err := s.app.Searcher.Search(ctx, req)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, newMCPError(ErrorCodeManualNotFound, "manual not found", map[string]interface{}{
				"manual_id": req.ManualID,
			})
		}
		return nil, newMCPError(ErrorCodeInternalError, "search failed", map[string]interface{}{
			"error": err.Error(),
		})
	}

	results := make([]map[string]interface{}, len(resp.Results))
	for i, r := range resp.Results {
		item := map[string]interface{}{
			"rank":      i + 1,
			"chunk_id":  r.ChunkID,
			"manual_id": r.ManualID,
			"text":      r.Text,
			"score":     r.Score,
			"method":    r.Method,
		}
		if r.PageNumber != nil {
			item["page_number"] = *r.PageNumber
		}
		if r.SectionTitle != "" {
			item["section_title"] = r.SectionTitle
		}
		results[i] = item
	}

	response := map[string]interface{}{
		"results":             results,
		"grounding_available": len(results) > 0,
		"manual_id":           resp.ManualID,
		"duration_ms":         resp.Duration.Milliseconds(),
		"cache_hit":           resp.CacheHit,
	}
	return mcp.NewToolResultText(formatJSON(response)), nil
}

// handleIndexManualText handles the index_manual_text tool invocation
func (s *Server) handleIndexManualText(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, ok := request.Params.Arguments.(map[string]interface{})
	if !ok {
		return nil, newMCPError(ErrorCodeInvalidParams, "invalid arguments", nil)
	}

	text, ok := args["text"].(string)
	if !ok || strings.TrimSpace(text) == "" {
		return nil, newMCPError(ErrorCodeInvalidParams, "text parameter is required", map[string]interface{}{
			"param":  "text",
			"reason": "missing or empty",
		})
	}

	manual, err := s.resolveOrCreateManual(ctx, args)
	if err != nil {
		return nil, err
	}

	stats, err := s.app.Indexer.IndexManual(ctx, manual.ID, text)
	switch {
	case errors.Is(err, indexer.ErrIndexInProgress):
		return nil, newMCPError(ErrorCodeIndexingInProgress, "manual is already being indexed", map[string]interface{}{
			"manual_id": manual.ID,
		})
	case errors.Is(err, types.ErrTextTooShort):
		return nil, newMCPError(ErrorCodeTextTooShort, "manual text is too short to index", map[string]interface{}{
			"manual_id": manual.ID,
			"length":    len(text),
		})
	case err != nil:
		return nil, newMCPError(ErrorCodeInternalError, "indexing failed", map[string]interface{}{
			"manual_id": manual.ID,
			"error":     err.Error(),
		})
	}

	response := map[string]interface{}{
		"indexed":        true,
		"manual_id":      manual.ID,
		"chunks_created": stats.ChunksCreated,
		"chunks_stored":  stats.ChunksStored,
		"chunks_deleted": stats.ChunksDeleted,
		"page_count":     stats.PageCount,
		"duration_ms":    stats.Duration.Milliseconds(),
	}
	return mcp.NewToolResultText(formatJSON(response)), nil
}

// handleGetManualStatus handles the get_manual_status tool invocation
func (s *Server) handleGetManualStatus(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, ok := request.Params.Arguments.(map[string]interface{})
	if !ok {
		return nil, newMCPError(ErrorCodeInvalidParams, "invalid arguments", nil)
	}

	manual, err := s.resolveManual(ctx, args)
	if errors.Is(err, storage.ErrNotFound) {
		response := map[string]interface{}{
			"indexed": false,
			"message": "No manual recorded. Use acquire_manual or index_manual_text first.",
		}
		return mcp.NewToolResultText(formatJSON(response)), nil
	}
	if err != nil {
		return nil, err
	}

	status, err := s.app.Storage.GetStatus(ctx, manual.ID)
	if err != nil {
		return nil, newMCPError(ErrorCodeInternalError, "failed to get status", map[string]interface{}{
			"error": err.Error(),
		})
	}

	byLevel := map[string]int{}
	for level, n := range status.ChunksByLevel {
		byLevel[level.String()] = n
	}

	manualInfo := map[string]interface{}{
		"id":          manual.ID,
		"vehicle_key": manual.VehicleKey,
		"title":       manual.Title,
		"source":      manual.Source,
		"source_url":  manual.SourceURL,
		"blob_url":    manual.BlobURL,
		"status":      manual.Status,
		"page_count":  manual.PageCount,
	}
	if manual.ErrorMessage != "" {
		manualInfo["error"] = manual.ErrorMessage
	}
	if !status.LastIndexedAt.IsZero() {
		manualInfo["last_indexed_at"] = status.LastIndexedAt.Format(time.RFC3339)
	}

	response := map[string]interface{}{
		"indexed": manual.Status == types.StatusCompleted,
		"manual":  manualInfo,
		"statistics": map[string]interface{}{
			"chunks_count":        status.ChunksCount,
			"chunks_by_level":     byLevel,
			"embeddings_count":    status.EmbeddingsCount,
			"embedding_dimension": status.EmbeddingDimension,
			"index_size_mb":       fmt.Sprintf("%.2f", status.IndexSizeMB),
		},
		"health": map[string]interface{}{
			"database_accessible":  status.Health.DatabaseAccessible,
			"embeddings_available": status.Health.EmbeddingsAvailable,
			"embeddings_complete":  status.Health.EmbeddingsComplete,
			"fts_indexes_built":    status.Health.FTSIndexesBuilt,
		},
	}
	return mcp.NewToolResultText(formatJSON(response)), nil
}

// resolveManual finds the manual named by manual_id or by the vehicle fields.
// A missing manual is returned as storage.ErrNotFound; bad input as an MCPError.
func (s *Server) resolveManual(ctx context.Context, args map[string]interface{}) (*types.Manual, error) {
	if id := getStringDefault(args, "manual_id", ""); id != "" {
		m, err := s.app.Storage.GetManual(ctx, id)
		if err != nil && !errors.Is(err, storage.ErrNotFound) {
			return nil, newMCPError(ErrorCodeInternalError, "failed to load manual", map[string]interface{}{"error": err.Error()})
		}
		return m, err
	}

	vehicle, err := parseVehicle(args)
	if err != nil {
		return nil, vehicleError(err)
	}
	m, err := s.app.Storage.GetManualByVehicleKey(ctx, vehicle.Key())
	if err != nil && !errors.Is(err, storage.ErrNotFound) {
		return nil, newMCPError(ErrorCodeInternalError, "failed to load manual", map[string]interface{}{"error": err.Error()})
	}
	return m, err
}

func (s *Server) resolveOrCreateManual(ctx context.Context, args map[string]interface{}) (*types.Manual, error) {
	manual, err := s.resolveManual(ctx, args)
	if err == nil {
		return manual, nil
	}
	if !errors.Is(err, storage.ErrNotFound) {
		return nil, err
	}
	if id := getStringDefault(args, "manual_id", ""); id != "" {
		return nil, newMCPError(ErrorCodeManualNotFound, "manual not found", map[string]interface{}{"manual_id": id})
	}

	vehicle, _ := parseVehicle(args)
	manual = &types.Manual{
		ID:      uuid.NewString(),
		Vehicle: vehicle,
		Title:   getStringDefault(args, "title", vehicle.String()+" Owner's Manual"),
		Status:  types.StatusPending,
	}
	if err := s.app.Storage.CreateManual(ctx, manual); err != nil {
		return nil, newMCPError(ErrorCodeInternalError, "failed to create manual", map[string]interface{}{"error": err.Error()})
	}
	return manual, nil
}

// Helper functions

// parseVehicle reads the descriptor fields and validates them
func parseVehicle(args map[string]interface{}) (types.Vehicle, error) {
	v := types.Vehicle{
		Year:  getIntDefault(args, "year", 0),
		Make:  getStringDefault(args, "make", ""),
		Model: getStringDefault(args, "model", ""),
		Trim:  getStringDefault(args, "trim", ""),
		VIN:   getStringDefault(args, "vin", ""),
	}
	return v, v.Validate()
}

func vehicleError(err error) error {
	return newMCPError(ErrorCodeInvalidParams, "invalid vehicle", map[string]interface{}{
		"reason": err.Error(),
	})
}

// newMCPError creates a properly formatted MCP error
func newMCPError(code int, message string, data interface{}) error {
	// MCP errors are returned as regular errors, the framework handles encoding
	return &MCPError{
		Code:    code,
		Message: message,
		Data:    data,
	}
}

// MCPError represents an MCP protocol error
type MCPError struct {
	Code    int
	Message string
	Data    interface{}
}

func (e *MCPError) Error() string {
	return fmt.Sprintf("MCP error %d: %s", e.Code, e.Message)
}

// formatJSON formats a map as indented JSON
func formatJSON(data map[string]interface{}) string {
	bytes, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return fmt.Sprintf("%v", data)
	}
	return string(bytes)
}

// getBoolDefault extracts a boolean parameter with a default value
func getBoolDefault(args map[string]interface{}, key string, defaultValue bool) bool {
	if val, ok := args[key].(bool); ok {
		return val
	}
	return defaultValue
}

// getIntDefault extracts an integer parameter with a default value
func getIntDefault(args map[string]interface{}, key string, defaultValue int) int {
	if val, ok := args[key].(float64); ok {
		return int(val)
	}
	if val, ok := args[key].(int); ok {
		return val
	}
	return defaultValue
}

// getStringDefault extracts a string parameter with a default value
func getStringDefault(args map[string]interface{}, key string, defaultValue string) string {
	if val, ok := args[key].(string); ok && val != "" {
		return val
	}
	return defaultValue
}
