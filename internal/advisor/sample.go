package advisor

import (
	"errors"
	"regexp"
	"strconv"
	"strings"
)

// Defaults applied when a form value is missing or unparseable.
const (
	DefaultNutrient = 0.0
	DefaultPH       = 6.5
)

type Season string

const (
	Kharif Season = "kharif"
	Rabi   Season = "rabi"
	Zaid   Season = "zaid"
)

// ParseSeason normalises case and whitespace. Unknown values are kept as-is;
// the decision table treats them like zaid.
func ParseSeason(s string) Season {
	return Season(strings.ToLower(strings.TrimSpace(s)))
}

// SoilSample is the immutable input to Recommend.
type SoilSample struct {
	Nitrogen   float64 `json:"nitrogen"`
	Phosphorus float64 `json:"phosphorus"`
	Potassium  float64 `json:"potassium"`
	PH         float64 `json:"ph"`
	Season     Season  `json:"season"`
	District   string  `json:"district,omitempty"`
}

// FormInput holds the raw string values as collected by a form.
type FormInput struct {
	Nitrogen   string
	Phosphorus string
	Potassium  string
	PH         string
	Season     string
	District   string
}

// SampleFromForm converts raw form values into a SoilSample. It never fails:
// bad numbers fall back to DefaultNutrient or DefaultPH.
func SampleFromForm(in FormInput) SoilSample {
	return SoilSample{
		Nitrogen:   ParseNumber(in.Nitrogen, DefaultNutrient),
		Phosphorus: ParseNumber(in.Phosphorus, DefaultNutrient),
		Potassium:  ParseNumber(in.Potassium, DefaultNutrient),
		PH:         ParseNumber(in.PH, DefaultPH),
		Season:     ParseSeason(in.Season),
		District:   strings.TrimSpace(in.District),
	}
}

var leadingNumber = regexp.MustCompile(`^[+-]?(?:Infinity|\d+\.?\d*(?:[eE][+-]?\d+)?|\.\d+(?:[eE][+-]?\d+)?)`)

// ParseNumber reads the longest leading numeric prefix of raw ("12abc" is 12).
// Empty, non-numeric and zero values all yield def, so a pH of "0" becomes
// DefaultPH while a nitrogen of "0" stays 0.
func ParseNumber(raw string, def float64) float64 {
	m := leadingNumber.FindString(strings.TrimSpace(raw))
	if m == "" {
		return def
	}
	// Out-of-range values come back as ±Inf or 0 alongside ErrRange.
	v, err := strconv.ParseFloat(m, 64)
	if err != nil && !errors.Is(err, strconv.ErrRange) {
		return def
	}
	if v == 0 {
		return def
	}
	return v
}

// District is a selectable farm location. The decision table ignores it.
type District struct {
	Value string
	Label string
}

var Districts = []District{
	{Value: "pune", Label: "Pune"},
	{Value: "nashik", Label: "Nashik"},
	{Value: "nagpur", Label: "Nagpur"},
	{Value: "kolhapur", Label: "Kolhapur"},
	{Value: "aurangabad", Label: "Aurangabad"},
	{Value: "solapur", Label: "Solapur"},
	{Value: "other", Label: "Other District"},
}

// KnownDistrict reports whether value is one of Districts.
func KnownDistrict(value string) bool {
	value = strings.ToLower(strings.TrimSpace(value))
	for _, d := range Districts {
		if d.Value == value {
			return true
		}
	}
	return false
}
