// Package fieldmap translates mentor profiles to and from the flat record
// schema of the operations CRM. Both directions are pure functions.
package fieldmap

import (
	"fmt"
	"strings"
	"time"

	"mentorsync/internal/model"
)

// External column names.
const (
	FieldPlatformID   = "Platform ID"
	FieldHeadline     = "Headline"
	FieldBio          = "Bio"
	FieldCompany      = "Company"
	FieldTitle        = "Title"
	FieldIndustry     = "Industry"
	FieldStage        = "Stage"
	FieldTimezone     = "Timezone"
	FieldExpertise    = "Expertise"
	FieldActive       = "Active"
	FieldUtilization  = "Utilization %"
	FieldAvgFeedback  = "Avg Feedback (90d)"
	FieldLastSyncedAt = "Last Synced At"
)

const industrySeparator = ", "

// InboundFields is the allow-list of columns operations staff may edit in the
// CRM. Anything else in an inbound record is ignored.
var InboundFields = []string{
	FieldHeadline,
	FieldBio,
	FieldCompany,
	FieldTitle,
	FieldIndustry,
	FieldStage,
	FieldTimezone,
	FieldExpertise,
	FieldActive,
}

// Outbound builds the external record for a mentor. Null or blank scalars are
// omitted so a partial update leaves the external value untouched.
func Outbound(m *model.Mentor, stats model.MentorStats, syncedAt time.Time) model.ExternalFields {
	fields := model.ExternalFields{
		FieldPlatformID:   m.ID.String(),
		FieldActive:       m.Active,
		FieldExpertise:    encodeExpertise(m.Expertise),
		FieldLastSyncedAt: syncedAt.UTC().Format(time.RFC3339),
	}

	setScalar(fields, FieldHeadline, m.Headline)
	setScalar(fields, FieldBio, m.Bio)
	setScalar(fields, FieldCompany, m.Company)
	setScalar(fields, FieldTitle, m.Title)
	setScalar(fields, FieldTimezone, m.Timezone)

	if v, ok := present(m.Industry); ok {
		if industries := splitIndustry(v); len(industries) > 0 {
			fields[FieldIndustry] = industries
		}
	}

	if v, ok := present(m.Stage); ok {
		fields[FieldStage] = []string{strings.TrimSpace(v)}
	}

	if stats.UtilizationPct != nil {
		fields[FieldUtilization] = *stats.UtilizationPct
	}

	if stats.AvgFeedback != nil {
		fields[FieldAvgFeedback] = *stats.AvgFeedback
	}

	return fields
}

// Inbound translates allow-listed external columns into a profile patch.
// A column that is present but null clears the internal value.
func Inbound(fields model.ExternalFields) model.ProfilePatch {
	var patch model.ProfilePatch

	for _, name := range InboundFields {
		raw, ok := fields[name]
		if !ok {
			continue
		}

		switch name {
		case FieldHeadline:
			patch.Headline = scalar(raw)
		case FieldBio:
			patch.Bio = scalar(raw)
		case FieldCompany:
			patch.Company = scalar(raw)
		case FieldTitle:
			patch.Title = scalar(raw)
		case FieldTimezone:
			patch.Timezone = scalar(raw)
		case FieldIndustry:
			industry := strings.Join(stringList(raw), industrySeparator)
			patch.Industry = &industry
		case FieldStage:
			stage := ""
			if list := stringList(raw); len(list) > 0 {
				stage = list[0]
			}
			patch.Stage = &stage
		case FieldExpertise:
			expertise := decodeExpertise(stringList(raw))
			patch.Expertise = &expertise
		case FieldActive:
			active, _ := raw.(bool)
			patch.Active = &active
		}
	}

	return patch
}

func setScalar(fields model.ExternalFields, name string, v *string) {
	if s, ok := present(v); ok {
		fields[name] = s
	}
}

func present(v *string) (string, bool) {
	if v == nil || strings.TrimSpace(*v) == "" {
		return "", false
	}

	return *v, true
}

func splitIndustry(v string) []string {
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))

	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}

	return out
}

func encodeExpertise(list []model.Expertise) []string {
	out := make([]string, 0, len(list))

	for _, e := range list {
		if strings.TrimSpace(e.Area) == "" {
			continue
		}

		out = append(out, e.Label())
	}

	return out
}

func decodeExpertise(labels []string) []model.Expertise {
	out := make([]model.Expertise, 0, len(labels))

	for _, label := range labels {
		e := model.ParseExpertise(label)
		if e.Area == "" {
			continue
		}

		out = append(out, e)
	}

	return out
}

func scalar(raw any) *string {
	var s string

	switch v := raw.(type) {
	case nil:
	case string:
		s = v
	case fmt.Stringer:
		s = v.String()
	default:
		s = fmt.Sprint(v)
	}

	return &s
}

// stringList accepts the shapes a multi-select arrives in: a JSON array of
// strings, an array of {"name": ...} option objects, or a bare string.
func stringList(raw any) []string {
	switch v := raw.(type) {
	case nil:
		return nil
	case string:
		if v = strings.TrimSpace(v); v == "" {
			return nil
		}
		return splitIndustry(v)
	case []string:
		return trimAll(v)
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			switch opt := item.(type) {
			case string:
				out = append(out, opt)
			case map[string]any:
				if name, ok := opt["name"].(string); ok {
					out = append(out, name)
				}
			}
		}
		return trimAll(out)
	}

	return nil
}

func trimAll(in []string) []string {
	out := make([]string, 0, len(in))

	for _, s := range in {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}

	return out
}
