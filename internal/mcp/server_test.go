package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dshills/manualrag/internal/app"
	"github.com/dshills/manualrag/internal/config"
)

func setupTestServer(t *testing.T) *Server {
	t.Helper()
	dir := t.TempDir()

	cfg := config.DefaultConfig()
	cfg.Storage.DBPath = filepath.Join(dir, "manuals.db")
	cfg.Embedding.Provider = "local"
	cfg.Acquisition.CacheBackend = config.CacheMemory
	cfg.Acquisition.BlobDir = filepath.Join(dir, "pdfs")
	cfg.Acquisition.Manufacturers = false

	a, err := app.New(cfg, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Close() })

	s, err := NewServer(a)
	require.NoError(t, err)
	return s
}

func call(args map[string]interface{}) mcp.CallToolRequest {
	var req mcp.CallToolRequest
	req.Params.Arguments = args
	return req
}

func decode(t *testing.T, res *mcp.CallToolResult) map[string]interface{} {
	t.Helper()
	require.NotNil(t, res)
	require.Len(t, res.Content, 1)
	text, ok := res.Content[0].(mcp.TextContent)
	require.True(t, ok)

	var out map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(text.Text), &out))
	return out
}

func requireCode(t *testing.T, err error, code int) {
	t.Helper()
	var mcpErr *MCPError
	require.ErrorAs(t, err, &mcpErr)
	assert.Equal(t, code, mcpErr.Code)
}

func camryArgs(extra map[string]interface{}) map[string]interface{} {
	args := map[string]interface{}{"year": float64(2022), "make": "Toyota", "model": "Camry"}
	for k, v := range extra {
		args[k] = v
	}
	return args
}

func oilManual() string {
	var b strings.Builder
	b.WriteString("TOYOTA CAMRY OWNER'S MANUAL\n\nChapter 1 Maintenance\n\n")
	b.WriteString("1.1 Engine Oil\nUse SAE 5W-30 engine oil. Oil capacity with filter is 4.8 quarts.\nPage 412\n")
	b.WriteString("1.2 Tires\n")
	b.WriteString(strings.Repeat("Check tire pressure monthly when the tires are cold. ", 8))
	b.WriteString("\nPage 430\n")
	return b.String()
}

func TestIndexThenSearch(t *testing.T) {
	s := setupTestServer(t)
	ctx := context.Background()

	res, err := s.handleIndexManualText(ctx, call(camryArgs(map[string]interface{}{"text": oilManual()})))
	require.NoError(t, err)
	indexed := decode(t, res)
	assert.Equal(t, true, indexed["indexed"])
	assert.Greater(t, indexed["chunks_stored"].(float64), 0.0)
	manualID := indexed["manual_id"].(string)

	res, err = s.handleSearchManual(ctx, call(camryArgs(map[string]interface{}{"query": "5W-30 oil"})))
	require.NoError(t, err)
	found := decode(t, res)
	assert.Equal(t, true, found["grounding_available"])
	assert.Equal(t, manualID, found["manual_id"])

	results := found["results"].([]interface{})
	require.NotEmpty(t, results)
	top := results[0].(map[string]interface{})
	assert.Contains(t, top["text"], "5W-30")
	assert.Equal(t, float64(1), top["rank"])

	// reindexing the same vehicle reuses the manual
	res, err = s.handleIndexManualText(ctx, call(camryArgs(map[string]interface{}{"text": oilManual()})))
	require.NoError(t, err)
	assert.Equal(t, manualID, decode(t, res)["manual_id"])

	res, err = s.handleGetManualStatus(ctx, call(map[string]interface{}{"manual_id": manualID}))
	require.NoError(t, err)
	status := decode(t, res)
	assert.Equal(t, true, status["indexed"])
	stats := status["statistics"].(map[string]interface{})
	assert.Equal(t, stats["chunks_count"], stats["embeddings_count"])
}

func TestSearchManual_NoGrounding(t *testing.T) {
	s := setupTestServer(t)
	ctx := context.Background()

	res, err := s.handleSearchManual(ctx, call(camryArgs(map[string]interface{}{"query": "tire pressure"})))
	require.NoError(t, err)
	out := decode(t, res)
	assert.Equal(t, false, out["grounding_available"])
	assert.Empty(t, out["results"])

	res, err = s.handleSearchManual(ctx, call(camryArgs(map[string]interface{}{"query": ""})))
	require.NoError(t, err)
	assert.Equal(t, false, decode(t, res)["grounding_available"])
}

func TestSearchManual_InvalidParams(t *testing.T) {
	s := setupTestServer(t)
	ctx := context.Background()

	tests := []struct {
		name string
		args map[string]interface{}
	}{
		{"missing query", camryArgs(nil)},
		{"limit too large", camryArgs(map[string]interface{}{"query": "oil", "limit": float64(101)})},
		{"limit zero", camryArgs(map[string]interface{}{"query": "oil", "limit": float64(0)})},
		{"bad mode", camryArgs(map[string]interface{}{"query": "oil", "search_mode": "keyword"})},
		{"no scope", map[string]interface{}{"query": "oil"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := s.handleSearchManual(ctx, call(tt.args))
			requireCode(t, err, ErrorCodeInvalidParams)
		})
	}

	_, err := s.handleSearchManual(ctx, mcp.CallToolRequest{})
	requireCode(t, err, ErrorCodeInvalidParams)
}

func TestIndexManualText_Errors(t *testing.T) {
	s := setupTestServer(t)
	ctx := context.Background()

	_, err := s.handleIndexManualText(ctx, call(camryArgs(nil)))
	requireCode(t, err, ErrorCodeInvalidParams)

	_, err = s.handleIndexManualText(ctx, call(camryArgs(map[string]interface{}{"text": "too short"})))
	requireCode(t, err, ErrorCodeTextTooShort)

	_, err = s.handleIndexManualText(ctx, call(map[string]interface{}{"manual_id": "missing", "text": oilManual()}))
	requireCode(t, err, ErrorCodeManualNotFound)

	_, err = s.handleIndexManualText(ctx, call(map[string]interface{}{"year": float64(2022), "make": "Toyota", "text": oilManual()}))
	requireCode(t, err, ErrorCodeInvalidParams)
}

func TestGetManualStatus_NotRecorded(t *testing.T) {
	s := setupTestServer(t)

	res, err := s.handleGetManualStatus(context.Background(), call(camryArgs(nil)))
	require.NoError(t, err)
	assert.Equal(t, false, decode(t, res)["indexed"])
}

func TestAcquireManual_OfflineFallback(t *testing.T) {
	s := setupTestServer(t)

	res, err := s.handleAcquireManual(context.Background(), call(camryArgs(map[string]interface{}{"wait_for_index": true})))
	require.NoError(t, err)
	out := decode(t, res)

	assert.Equal(t, "web_search", out["source"])
	assert.Equal(t, false, out["verified"])
	assert.Equal(t, false, out["cached"])
	assert.NotContains(t, out, "indexing")
	assert.True(t, strings.HasPrefix(out["manual_url"].(string), "https://"))
}

func TestAcquireManual_InvalidVehicle(t *testing.T) {
	s := setupTestServer(t)

	_, err := s.handleAcquireManual(context.Background(), call(map[string]interface{}{"year": float64(1900), "make": "Ford", "model": "T"}))
	requireCode(t, err, ErrorCodeInvalidParams)
}

func TestParseVehicle(t *testing.T) {
	v, err := parseVehicle(map[string]interface{}{
		"year": float64(2019), "make": "Honda", "model": "CR-V", "trim": "EX", "vin": "",
	})
	require.NoError(t, err)
	assert.Equal(t, "2019:honda:cr-v:ex", v.Key())

	_, err = parseVehicle(map[string]interface{}{"year": "2019", "make": "Honda", "model": "CR-V"})
	assert.Error(t, err)
}

func TestMCPError(t *testing.T) {
	err := newMCPError(ErrorCodeManualNotFound, "manual not found", nil)
	assert.Equal(t, fmt.Sprintf("MCP error %d: manual not found", ErrorCodeManualNotFound), err.Error())
}

func TestServerRegistersTools(t *testing.T) {
	s := setupTestServer(t)
	assert.NotNil(t, s.mcp)

	names := []string{acquireManualTool().Name, searchManualTool().Name, indexManualTextTool().Name, getManualStatusTool().Name}
	assert.Equal(t, []string{"acquire_manual", "search_manual", "index_manual_text", "get_manual_status"}, names)
	for _, tool := range []mcp.Tool{acquireManualTool(), searchManualTool(), indexManualTextTool(), getManualStatusTool()} {
		assert.Contains(t, tool.InputSchema.Properties, "make")
	}
}
