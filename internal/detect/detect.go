// Package detect defines the pest and disease detection contract shared by
// the upstream AI backends.
package detect

import (
	"context"
	"strings"
)

// SystemPrompt is the fixed instruction sent to every backend.
const SystemPrompt = `You are an expert agricultural plant pathologist and entomologist. Analyze crop images to detect pests and diseases.

ALWAYS respond with a JSON array of detected issues. Each item must have:
- "name": string (pest or disease name)
- "confidence": number (0-100, your confidence percentage)
- "severity": "low" | "medium" | "high"
- "description": string (what it is and how it affects the crop, 1-2 sentences)
- "remedy": string (actionable treatment steps, 2-3 sentences)

If the image shows a healthy plant with no issues, return:
[{"name":"` + HealthyName + `","confidence":95,"severity":"low","description":"No visible signs of pests or diseases detected. The plant appears healthy.","remedy":"Continue regular care. Monitor regularly for any changes."}]

If the image is not a plant/crop, return:
[{"name":"` + NotPlantName + `","confidence":100,"severity":"low","description":"The uploaded image does not appear to be a plant or crop.","remedy":"Please upload a clear photo of a plant leaf or crop for analysis."}]

Return ONLY the JSON array, no markdown or extra text.`

// UserPrompt accompanies the image in the user turn.
const UserPrompt = "Analyze this crop image for pests and diseases. Return the JSON array."

const (
	ToolName        = "report_pest_detection"
	ToolDescription = "Report detected pests and diseases from crop image analysis"
)

// Names the model uses for its own sentinel results.
const (
	HealthyName  = "Healthy Plant"
	NotPlantName = "Not a Plant Image"
)

// ToolParameters is the JSON schema of the single tool argument. Backends
// embed it verbatim in their tool definitions.
func ToolParameters() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"detections": map[string]any{
				"type": "array",
				"items": map[string]any{
					"type": "object",
					"properties": map[string]any{
						"name":        map[string]any{"type": "string"},
						"confidence":  map[string]any{"type": "number"},
						"severity":    map[string]any{"type": "string", "enum": []string{string(SeverityLow), string(SeverityMedium), string(SeverityHigh)}},
						"description": map[string]any{"type": "string"},
						"remedy":      map[string]any{"type": "string"},
					},
					"required":             []string{"name", "confidence", "severity", "description", "remedy"},
					"additionalProperties": false,
				},
			},
		},
		"required":             []string{"detections"},
		"additionalProperties": false,
	}
}

// Detector classifies a crop image given as a base64 data URL. Implementations
// make exactly one upstream call per invocation and never retry.
type Detector interface {
	Detect(ctx context.Context, imageDataURL string) ([]Detection, error)
}

// ConfigChecker is implemented by detectors that can report whether their
// credentials are present without making a call.
type ConfigChecker interface {
	Configured() bool
}

type Severity string

const (
	SeverityLow    Severity = "low"
	SeverityMedium Severity = "medium"
	SeverityHigh   Severity = "high"
)

// Label is the human-facing risk label for s.
func (s Severity) Label() string {
	switch s {
	case SeverityLow:
		return "Low Risk"
	case SeverityMedium:
		return "Medium Risk"
	case SeverityHigh:
		return "High Risk"
	default:
		return "Unknown Risk"
	}
}

// Detection is one finding. Values are passed through from the model as-is.
type Detection struct {
	Name        string   `json:"name"`
	Confidence  float64  `json:"confidence"`
	Severity    Severity `json:"severity"`
	Description string   `json:"description"`
	Remedy      string   `json:"remedy"`
}

func (d Detection) IsHealthy() bool {
	return strings.EqualFold(strings.TrimSpace(d.Name), HealthyName)
}

func (d Detection) IsNotPlant() bool {
	return strings.EqualFold(strings.TrimSpace(d.Name), NotPlantName)
}

// Summary counts findings for logging. Sentinel results are not issues.
type Summary struct {
	Issues   int
	Healthy  bool
	NotPlant bool
	MaxRisk  Severity
}

func Summarize(ds []Detection) Summary {
	var s Summary
	rank := map[Severity]int{SeverityLow: 1, SeverityMedium: 2, SeverityHigh: 3}
	for _, d := range ds {
		switch {
		case d.IsHealthy():
			s.Healthy = true
		case d.IsNotPlant():
			s.NotPlant = true
		default:
			s.Issues++
			if rank[d.Severity] > rank[s.MaxRisk] {
				s.MaxRisk = d.Severity
			}
		}
	}
	return s
}
