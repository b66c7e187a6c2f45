package mcp

import (
	"github.com/mark3labs/mcp-go/mcp"
)

// vehicleProperties are the descriptor fields shared by every tool
func vehicleProperties() map[string]interface{} {
	return map[string]interface{}{
		"year": map[string]interface{}{
			"type":        "integer",
			"description": "Model year",
			"minimum":     1950,
			"maximum":     2100,
		},
		"make": map[string]interface{}{
			"type":        "string",
			"description": "Manufacturer, e.g. Toyota",
		},
		"model": map[string]interface{}{
			"type":        "string",
			"description": "Model name, e.g. Camry",
		},
		"trim": map[string]interface{}{
			"type":        "string",
			"description": "Optional trim level",
		},
		"vin": map[string]interface{}{
			"type":        "string",
			"description": "Optional 17-character VIN",
		},
	}
}

func withVehicle(props map[string]interface{}) map[string]interface{} {
	for k, v := range vehicleProperties() {
		props[k] = v
	}
	return props
}

// acquireManualTool returns the tool definition for acquire_manual
func acquireManualTool() mcp.Tool {
	return mcp.Tool{
		Name: "acquire_manual",
		Description: "Locate the owner's manual PDF for a vehicle. Always returns a result; " +
			"source web_search means no verified manual was found and the user must search manually.",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: withVehicle(map[string]interface{}{
				"wait_for_index": map[string]interface{}{
					"type":        "boolean",
					"description": "If true, wait for background indexing of a downloaded manual to finish",
					"default":     false,
				},
			}),
			Required: []string{"year", "make", "model"},
		},
	}
}

// searchManualTool returns the tool definition for search_manual
func searchManualTool() mcp.Tool {
	return mcp.Tool{
		Name: "search_manual",
		Description: "Search one indexed owner's manual for passages that answer a question. " +
			"Scope by manual_id or by vehicle. An empty result means no grounding is available.",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: withVehicle(map[string]interface{}{
				"query": map[string]interface{}{
					"type":        "string",
					"description": "Question or keywords, e.g. \"5W-30 oil type\"",
				},
				"manual_id": map[string]interface{}{
					"type":        "string",
					"description": "Manual to search; overrides the vehicle fields",
				},
				"limit": map[string]interface{}{
					"type":        "integer",
					"description": "Maximum number of results to return (1-100)",
					"default":     10,
					"minimum":     1,
					"maximum":     100,
				},
				"search_mode": map[string]interface{}{
					"type":        "string",
					"description": "hybrid (keyword + semantic) or semantic (vector only)",
					"enum":        []string{"hybrid", "semantic"},
					"default":     "hybrid",
				},
			}),
			Required: []string{"query"},
		},
	}
}

// indexManualTextTool returns the tool definition for index_manual_text
func indexManualTextTool() mcp.Tool {
	return mcp.Tool{
		Name:        "index_manual_text",
		Description: "Index already extracted manual text for a vehicle or an existing manual",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: withVehicle(map[string]interface{}{
				"text": map[string]interface{}{
					"type":        "string",
					"description": "Plain manual text",
				},
				"manual_id": map[string]interface{}{
					"type":        "string",
					"description": "Existing manual to reindex; overrides the vehicle fields",
				},
				"title": map[string]interface{}{
					"type":        "string",
					"description": "Title for a newly created manual",
				},
			}),
			Required: []string{"text"},
		},
	}
}

// getManualStatusTool returns the tool definition for get_manual_status
func getManualStatusTool() mcp.Tool {
	return mcp.Tool{
		Name:        "get_manual_status",
		Description: "Query processing status and index statistics for a vehicle's manual",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: withVehicle(map[string]interface{}{
				"manual_id": map[string]interface{}{
					"type":        "string",
					"description": "Manual ID; overrides the vehicle fields",
				},
			}),
		},
	}
}
