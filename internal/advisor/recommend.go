// Package advisor maps soil measurements and a season to crop, irrigation and
// fertilizer advice. Everything here is pure and synchronous.
package advisor

import (
	"fmt"
	"strconv"
)

type Advice struct {
	Title   string `json:"title"`
	Details string `json:"details"`
}

type AlertKind string

const (
	AlertRain AlertKind = "rain"
	AlertHeat AlertKind = "heat"
)

type Alert struct {
	Kind    AlertKind `json:"type"`
	Message string    `json:"message"`
	Details string    `json:"details"`
}

type Recommendation struct {
	Crop       Advice  `json:"crop"`
	Irrigation Advice  `json:"irrigation"`
	Fertilizer Advice  `json:"fertilizer"`
	Alerts     []Alert `json:"alerts"`
}

// Thresholds in kg/ha (nutrients) and pH units. Every comparison is strict.
const (
	lowNitrogen   = 30
	lowPhosphorus = 25
	lowPotassium  = 30
	acidicPH      = 5.5
	alkalinePH    = 8.0
)

// rule is one row of the decision table: the first row whose match returns
// true wins. A nil match always matches.
type rule struct {
	match  func(SoilSample) bool
	advice Advice
}

func first(rules []rule, s SoilSample) (Advice, bool) {
	for _, r := range rules {
		if r.match == nil || r.match(s) {
			return r.advice, true
		}
	}
	return Advice{}, false
}

var defaultCrop = Advice{
	Title:   "Rice",
	Details: "Ideal for monsoon season with high nitrogen soil.",
}

var cropRules = map[Season][]rule{
	Rabi: {
		{
			match: func(s SoilSample) bool { return s.Nitrogen > 40 && s.Phosphorus > 30 },
			advice: Advice{
				Title:   "Wheat",
				Details: "Perfect match for your soil and winter season. Expected yield: 4-5 tonnes/hectare.",
			},
		},
		{
			match: func(s SoilSample) bool { return s.Phosphorus > 40 },
			advice: Advice{
				Title:   "Chickpea (Chana)",
				Details: "Good for phosphorus-rich soil. Nitrogen-fixing crop that improves soil health.",
			},
		},
		{advice: Advice{
			Title:   "Mustard",
			Details: "Suitable for moderate nutrient levels. Good oil crop for winter.",
		}},
	},
	Kharif: {
		{
			match: func(s SoilSample) bool { return s.Nitrogen > 50 && s.Potassium > 40 },
			advice: Advice{
				Title:   "Sugarcane",
				Details: "High nutrient soil perfect for sugarcane. Long-term profitable crop.",
			},
		},
		{
			match: func(s SoilSample) bool { return s.Nitrogen > 35 },
			advice: Advice{
				Title:   "Rice",
				Details: "Monsoon season and nitrogen-rich soil ideal for paddy cultivation.",
			},
		},
		{advice: Advice{
			Title:   "Soybean",
			Details: "Good for moderate nitrogen soil. Improves soil fertility.",
		}},
	},
}

// summerCropRules apply to zaid and to any season not in cropRules.
var summerCropRules = []rule{
	{
		match: func(s SoilSample) bool { return s.Potassium > 50 },
		advice: Advice{
			Title:   "Watermelon",
			Details: "Summer fruit with high market demand. Needs good potassium.",
		},
	},
	{advice: Advice{
		Title:   "Cucumber",
		Details: "Quick growing summer vegetable with good returns.",
	}},
}

func recommendCrop(s SoilSample) Advice {
	rules, ok := cropRules[s.Season]
	if !ok {
		rules = summerCropRules
	}
	if a, ok := first(rules, s); ok {
		return a
	}
	return defaultCrop
}

var irrigationBySeason = map[Season]Advice{
	Kharif: {
		Title:   "Reduce artificial irrigation",
		Details: "Monsoon provides natural water. Ensure proper drainage to prevent waterlogging.",
	},
	Zaid: {
		Title:   "Daily light watering",
		Details: "Summer heat requires frequent watering. Best time: early morning or evening.",
	},
}

var defaultIrrigation = Advice{
	Title:   "Moderate watering",
	Details: "Water every 3-4 days during active growth.",
}

func recommendIrrigation(s SoilSample) Advice {
	if a, ok := irrigationBySeason[s.Season]; ok {
		return a
	}
	return defaultIrrigation
}

func recommendFertilizer(s SoilSample) Advice {
	var a Advice
	switch {
	case s.Nitrogen < lowNitrogen:
		a = Advice{
			Title:   "Apply Urea fertilizer",
			Details: fmt.Sprintf("Soil nitrogen is low (%s kg/ha). Apply 50-60 kg Urea per hectare.", formatAmount(s.Nitrogen)),
		}
	case s.Phosphorus < lowPhosphorus:
		a = Advice{
			Title:   "Apply DAP fertilizer",
			Details: fmt.Sprintf("Phosphorus is low (%s kg/ha). Apply 40-50 kg DAP per hectare.", formatAmount(s.Phosphorus)),
		}
	case s.Potassium < lowPotassium:
		a = Advice{
			Title:   "Apply Potash (MOP)",
			Details: fmt.Sprintf("Potassium is low (%s kg/ha). Apply 30-40 kg MOP per hectare.", formatAmount(s.Potassium)),
		}
	default:
		a = Advice{
			Title:   "Maintain current levels",
			Details: "Your soil nutrients are balanced. Apply light organic manure for maintenance.",
		}
	}

	// The pH note is appended to, never replaces, the nutrient advice.
	switch {
	case s.PH < acidicPH:
		a.Details += " Note: Soil is acidic - apply lime to raise pH."
	case s.PH > alkalinePH:
		a.Details += " Note: Soil is alkaline - apply gypsum to lower pH."
	}
	return a
}

var (
	rainAlert = Alert{
		Kind:    AlertRain,
		Message: "Heavy Rain Expected",
		Details: "Prepare drainage channels. Avoid fertilizer application for next 3 days.",
	}
	heatAlert = Alert{
		Kind:    AlertHeat,
		Message: "Heat Wave Warning",
		Details: "Increase watering frequency. Consider mulching to retain soil moisture.",
	}
)

// weatherAlerts keeps rain ahead of heat.
func weatherAlerts(s SoilSample) []Alert {
	alerts := make([]Alert, 0, 1)
	if s.Season == Kharif {
		alerts = append(alerts, rainAlert)
	}
	if s.Season == Zaid {
		alerts = append(alerts, heatAlert)
	}
	return alerts
}

// Recommend evaluates the decision table for s. It is total: every input,
// including unknown seasons, produces a complete Recommendation.
func Recommend(s SoilSample) Recommendation {
	return Recommendation{
		Crop:       recommendCrop(s),
		Irrigation: recommendIrrigation(s),
		Fertilizer: recommendFertilizer(s),
		Alerts:     weatherAlerts(s),
	}
}

// formatAmount renders a measurement the way a person typed it: 10 not 10.000000.
func formatAmount(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
