// Command cropadvice prints crop, irrigation and fertilizer advice for a soil
// test result.
//
//	cropadvice -n 90 -p 40 -k 45 -ph 6.8 -season rabi -district pune
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"math"
	"os"

	"github.com/vbonduro/cropsense/internal/advisor"
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("cropadvice", flag.ContinueOnError)
	fs.SetOutput(stderr)

	var in advisor.FormInput
	fs.StringVar(&in.Nitrogen, "n", "", "nitrogen, kg/ha")
	fs.StringVar(&in.Phosphorus, "p", "", "phosphorus, kg/ha")
	fs.StringVar(&in.Potassium, "k", "", "potassium, kg/ha")
	fs.StringVar(&in.PH, "ph", "", "soil pH (default 6.5)")
	fs.StringVar(&in.Season, "season", "", "kharif, rabi or zaid")
	fs.StringVar(&in.District, "district", "", "farm district")
	asJSON := fs.Bool("json", false, "print the recommendation as JSON")

	if err := fs.Parse(args); err != nil {
		return 2
	}

	sample := advisor.SampleFromForm(in)
	if sample.District != "" && !advisor.KnownDistrict(sample.District) {
		_, _ = fmt.Fprintf(stderr, "warning: unknown district %q\n", sample.District)
	}

	rec := advisor.Recommend(sample)

	if *asJSON {
		enc := json.NewEncoder(stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(struct {
			Sample         sampleView             `json:"sample"`
			Recommendation advisor.Recommendation `json:"recommendation"`
		}{newSampleView(sample), rec}); err != nil {
			_, _ = fmt.Fprintf(stderr, "failed to write output: %v\n", err)
			return 1
		}
		return 0
	}

	printText(stdout, sample, rec)
	return 0
}

// sampleView is the JSON form of a sample. Non-finite readings such as
// "Infinity" are written as null since JSON has no encoding for them.
type sampleView struct {
	Nitrogen   *float64       `json:"nitrogen"`
	Phosphorus *float64       `json:"phosphorus"`
	Potassium  *float64       `json:"potassium"`
	PH         *float64       `json:"ph"`
	Season     advisor.Season `json:"season"`
	District   string         `json:"district,omitempty"`
}

func newSampleView(s advisor.SoilSample) sampleView {
	return sampleView{
		Nitrogen:   finite(s.Nitrogen),
		Phosphorus: finite(s.Phosphorus),
		Potassium:  finite(s.Potassium),
		PH:         finite(s.PH),
		Season:     s.Season,
		District:   s.District,
	}
}

func finite(v float64) *float64 {
	if math.IsInf(v, 0) || math.IsNaN(v) {
		return nil
	}
	return &v
}

func printText(w io.Writer, s advisor.SoilSample, rec advisor.Recommendation) {
	season := string(s.Season)
	if season == "" {
		season = "unspecified"
	}
	_, _ = fmt.Fprintf(w, "Soil: N=%g P=%g K=%g pH=%g season=%s\n\n", s.Nitrogen, s.Phosphorus, s.Potassium, s.PH, season)
	for _, sec := range []struct {
		label string
		a     advisor.Advice
	}{
		{"Crop", rec.Crop},
		{"Irrigation", rec.Irrigation},
		{"Fertilizer", rec.Fertilizer},
	} {
		_, _ = fmt.Fprintf(w, "%s: %s\n  %s\n", sec.label, sec.a.Title, sec.a.Details)
	}
	for _, a := range rec.Alerts {
		_, _ = fmt.Fprintf(w, "\nAlert (%s): %s\n  %s\n", a.Kind, a.Message, a.Details)
	}
}
