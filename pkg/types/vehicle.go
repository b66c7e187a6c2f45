package types

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// Model years accepted for a vehicle descriptor
const (
	MinVehicleYear = 1950
	MaxVehicleYear = 2100
)

var (
	whitespaceRe = regexp.MustCompile(`\s+`)
	fileUnsafeRe = regexp.MustCompile(`[^a-z0-9]+`)
	vinRe        = regexp.MustCompile(`^[A-HJ-NPR-Z0-9]{17}$`)
)

// Vehicle describes the vehicle a manual belongs to
type Vehicle struct {
	Year  int    `json:"year"`
	Make  string `json:"make"`
	Model string `json:"model"`
	Trim  string `json:"trim,omitempty"`
	VIN   string `json:"vin,omitempty"`
}

// Validate checks the descriptor is syntactically usable for acquisition
func (v Vehicle) Validate() error {
	if v.Year < MinVehicleYear || v.Year > MaxVehicleYear {
		return fmt.Errorf("%w: year %d out of range", ErrInvalidVehicle, v.Year)
	}
	if strings.TrimSpace(v.Make) == "" {
		return fmt.Errorf("%w: make is required", ErrInvalidVehicle)
	}
	if strings.TrimSpace(v.Model) == "" {
		return fmt.Errorf("%w: model is required", ErrInvalidVehicle)
	}
	if v.VIN != "" && !vinRe.MatchString(strings.ToUpper(v.VIN)) {
		return fmt.Errorf("%w: malformed VIN %q", ErrInvalidVehicle, v.VIN)
	}
	return nil
}

// Key returns the normalized cache key: lower-cased year:make:model[:trim].
// Parts never contain ':'.
func (v Vehicle) Key() string {
	parts := []string{
		strconv.Itoa(v.Year),
		normalizeKeyPart(v.Make),
		normalizeKeyPart(v.Model),
	}
	if trim := normalizeKeyPart(v.Trim); trim != "" {
		parts = append(parts, trim)
	}
	return strings.Join(parts, ":")
}

// FileName derives a stable PDF file name from the descriptor
func (v Vehicle) FileName() string {
	name := fmt.Sprintf("%d-%s-%s", v.Year, v.Make, v.Model)
	if v.Trim != "" {
		name += "-" + v.Trim
	}
	name = fileUnsafeRe.ReplaceAllString(strings.ToLower(name), "-")
	return strings.Trim(name, "-") + ".pdf"
}

// String renders the descriptor for prompts and titles, e.g. "2022 Toyota Camry LE".
func (v Vehicle) String() string {
	s := fmt.Sprintf("%d %s %s", v.Year, strings.TrimSpace(v.Make), strings.TrimSpace(v.Model))
	if t := strings.TrimSpace(v.Trim); t != "" {
		s += " " + t
	}
	return s
}

// normalizeKeyPart lower-cases s and collapses whitespace. ':' separates key
// parts, so it is treated as whitespace.
func normalizeKeyPart(s string) string {
	s = strings.ReplaceAll(strings.ToLower(s), ":", " ")
	return whitespaceRe.ReplaceAllString(strings.TrimSpace(s), " ")
}
