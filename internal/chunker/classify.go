package chunker

import (
	"regexp"

	"github.com/dshills/manualrag/pkg/types"
)

var (
	warningRe = regexp.MustCompile(`(?i)\b(?:warning|caution|danger|hazard)\b`)

	procedureRe = regexp.MustCompile(`(?im)\bstep\s+\d+\b|\bprocedures?\b|\binstructions?\b|` +
		`\bto (?:replace|remove|install|check|adjust|reset|inspect)\b|^\s*\d{1,2}[.)]\s+[A-Z]`)

	specificationRe = regexp.MustCompile(`(?i)\b\d+(?:\.\d+)?\s*(?:psi|kpa|bar|n·m|nm|lb[-.·]?ft|ft[-.·]?lbs?|` +
		`qts?|quarts?|liters?|litres?|l|gal|gallons?|mm|rpm|volts?|v|amps?|kg|lbs?)\b|` +
		`\b\d{1,2}w-\d{1,2}\b|\b(?:capacity|capacities|torque|pressure|viscosity|specifications?)\b`)
)

// Classify tags text by keyword heuristics. Safety language wins over
// instructions, which win over measurements.
func Classify(text string) types.ContentType {
	switch {
	case warningRe.MatchString(text):
		return types.ContentWarning
	case procedureRe.MatchString(text):
		return types.ContentProcedure
	case specificationRe.MatchString(text):
		return types.ContentSpecification
	default:
		return types.ContentGeneral
	}
}
