package model

import "strings"

// ExpertiseSeparator joins area and subarea in the external multi-select
// option label.
const ExpertiseSeparator = " - "

type Expertise struct {
	Area    string `json:"area"`
	Subarea string `json:"subarea,omitempty"`
}

// Label renders the external option label, "Area - Subarea" or just "Area".
// Both parts are trimmed, so Label and ParseExpertise agree.
func (e Expertise) Label() string {
	area := strings.TrimSpace(e.Area)

	subarea := strings.TrimSpace(e.Subarea)
	if subarea == "" {
		return area
	}

	return area + ExpertiseSeparator + subarea
}

// ParseExpertise splits an option label on the first separator only, so a
// subarea may itself contain " - ".
func ParseExpertise(label string) Expertise {
	area, subarea, found := strings.Cut(label, ExpertiseSeparator)
	if !found {
		return Expertise{Area: strings.TrimSpace(label)}
	}

	return Expertise{
		Area:    strings.TrimSpace(area),
		Subarea: strings.TrimSpace(subarea),
	}
}
