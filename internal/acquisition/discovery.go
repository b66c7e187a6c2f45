package acquisition

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/dshills/manualrag/internal/llm"
	"github.com/dshills/manualrag/pkg/types"
)

// ReasonCode explains why discovery produced no candidate
type ReasonCode string

const (
	ReasonNone         ReasonCode = ""
	ReasonNoSuggestion ReasonCode = "no_suggestion"
	ReasonInsecureURL  ReasonCode = "insecure_url"
	ReasonMalformed    ReasonCode = "malformed_response"
	ReasonLLMError     ReasonCode = "llm_error"
	ReasonDisabled     ReasonCode = "disabled"
)

// Discovery is either {Found, URL, Title} or {!Found, Reason}
type Discovery struct {
	Found  bool
	URL    string
	Title  string
	Reason ReasonCode
}

const discoverySystemPrompt = `You locate official vehicle owner's manuals.
Reply with a JSON object {"url": string or null, "title": string or null}.
"url" must be a single direct https link to the manufacturer's owner's manual PDF.
Use null when you are not confident. Do not return search pages or HTML pages.`

type discoveryPayload struct {
	URL   *string `json:"url"`
	Title *string `json:"title"`
}

func discoveryPrompt(v types.Vehicle) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Vehicle: %s\n", v.String())
	if v.VIN != "" {
		fmt.Fprintf(&b, "VIN: %s\n", strings.ToUpper(v.VIN))
	}
	b.WriteString("Return the direct PDF URL of this vehicle's owner's manual.")
	return b.String()
}

// discover asks the model for one best-guess PDF URL
func discover(ctx context.Context, completer llm.Completer, v types.Vehicle) Discovery {
	if completer == nil {
		return Discovery{Reason: ReasonDisabled}
	}

	var payload discoveryPayload
	if err := completer.CompleteJSON(ctx, discoverySystemPrompt, discoveryPrompt(v), &payload); err != nil {
		return Discovery{Reason: ReasonLLMError}
	}
	return parseDiscovery(payload)
}

func parseDiscovery(p discoveryPayload) Discovery {
	if p.URL == nil || strings.TrimSpace(*p.URL) == "" {
		return Discovery{Reason: ReasonNoSuggestion}
	}

	u, err := url.Parse(strings.TrimSpace(*p.URL))
	if err != nil || u.Host == "" {
		return Discovery{Reason: ReasonMalformed}
	}
	if u.Scheme != "https" {
		return Discovery{Reason: ReasonInsecureURL}
	}

	d := Discovery{Found: true, URL: u.String()}
	if p.Title != nil {
		d.Title = strings.TrimSpace(*p.Title)
	}
	return d
}
