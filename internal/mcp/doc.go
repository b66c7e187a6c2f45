// Package mcp implements the Model Context Protocol (MCP) server for manualrag.
//
// The server exposes four tools to assistants that need to ground answers
// about a vehicle in its owner's manual:
//   - acquire_manual: locate, verify and mirror a vehicle's manual PDF, then index it in the background
//   - search_manual: hybrid keyword + semantic search scoped to one manual
//   - index_manual_text: index already extracted manual text
//   - get_manual_status: processing state and index statistics
//
// Messages are JSON-RPC 2.0 over stdio; logs go to stderr.
//
//	manualrag serve
//
// # Tool: search_manual
//
//	Request:
//	{
//	  "name": "search_manual",
//	  "arguments": {"year": 2022, "make": "Toyota", "model": "Camry", "query": "5W-30 oil type"}
//	}
//
//	Response:
//	{
//	  "grounding_available": true,
//	  "results": [
//	    {"rank": 1, "method": "hybrid", "page_number": 412, "section_title": "Engine oil", "text": "..."}
//	  ]
//	}
//
// An empty results list is not an error: it means the manual has nothing
// relevant and the assistant should say so rather than guess.
//
// # Tool: acquire_manual
//
// Always succeeds for a valid vehicle. The source field is one of cache,
// commercial_api, oem_fallback, ai_discovered or web_search; web_search
// results point at a search page and are marked "verified": false.
//
// # MCP Client Configuration
//
//	{
//	  "mcpServers": {
//	    "manualrag": {
//	      "command": "/usr/local/bin/manualrag",
//	      "args": ["serve"],
//	      "env": {"OPENAI_API_KEY": "your-api-key"}
//	    }
//	  }
//	}
//
// # Error codes
//   - -32602: Invalid params (missing text, bad vehicle, bad limit)
//   - -32603: Internal error
//   - -32001: Manual not found
//   - -32002: Indexing in progress
//   - -32003: Manual text too short
package mcp
