package fieldmap

import (
	"strings"
	"testing"
	"time"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mentorsync/internal/model"
)

func strPtr(s string) *string { return &s }

func floatPtr(f float64) *float64 { return &f }

var syncedAt = time.Date(2026, 3, 1, 12, 30, 0, 0, time.UTC)

func TestOutbound(t *testing.T) {
	id := uuid.MustParse("6d1f3a8e-0b7c-4e1d-9a53-2f0c8b7e4d10")

	m := &model.Mentor{
		ID:       id,
		Headline: strPtr("Scaling B2B sales teams"),
		Company:  strPtr("Acme"),
		Industry: strPtr("Fintech, SaaS,,"),
		Stage:    strPtr("Series A"),
		Timezone: strPtr("Europe/Berlin"),
		Expertise: []model.Expertise{
			{Area: "Sales", Subarea: "Enterprise"},
			{Area: "Hiring"},
			{Area: "", Subarea: "orphan"},
		},
		Active: true,
	}

	stats := model.MentorStats{UtilizationPct: floatPtr(62.5), AvgFeedback: floatPtr(4.8)}

	got := Outbound(m, stats, syncedAt)

	assert.Equal(t, model.ExternalFields{
		FieldPlatformID:   id.String(),
		FieldHeadline:     "Scaling B2B sales teams",
		FieldCompany:      "Acme",
		FieldIndustry:     []string{"Fintech", "SaaS"},
		FieldStage:        []string{"Series A"},
		FieldTimezone:     "Europe/Berlin",
		FieldExpertise:    []string{"Sales - Enterprise", "Hiring"},
		FieldActive:       true,
		FieldUtilization:  62.5,
		FieldAvgFeedback:  4.8,
		FieldLastSyncedAt: "2026-03-01T12:30:00Z",
	}, got)
}

func TestOutboundOmitsNullAndBlankScalars(t *testing.T) {
	m := &model.Mentor{
		ID:       uuid.New(),
		Headline: nil,
		Bio:      strPtr("   "),
		Industry: strPtr(" , "),
		Stage:    strPtr(""),
	}

	got := Outbound(m, model.MentorStats{}, syncedAt)

	for _, name := range []string{FieldHeadline, FieldBio, FieldIndustry, FieldStage, FieldUtilization, FieldAvgFeedback} {
		assert.NotContains(t, got, name)
	}

	assert.Equal(t, []string{}, got[FieldExpertise])
	assert.Equal(t, false, got[FieldActive])
	assert.Contains(t, got, FieldLastSyncedAt)
}

func TestInbound(t *testing.T) {
	tests := []struct {
		name   string
		fields model.ExternalFields
		want   model.ProfilePatch
	}{
		{
			name:   "empty record yields empty patch",
			fields: model.ExternalFields{},
			want:   model.ProfilePatch{},
		},
		{
			name: "unknown and read-only fields are ignored",
			fields: model.ExternalFields{
				"Internal Notes":  "vip",
				FieldUtilization:  40.0,
				FieldPlatformID:   "abc",
				FieldLastSyncedAt: "2026-01-01T00:00:00Z",
			},
			want: model.ProfilePatch{},
		},
		{
			name: "scalars",
			fields: model.ExternalFields{
				FieldHeadline: "Ex-founder",
				FieldTitle:    "CTO",
				FieldBio:      nil,
			},
			want: model.ProfilePatch{
				Headline: strPtr("Ex-founder"),
				Title:    strPtr("CTO"),
				Bio:      strPtr(""),
			},
		},
		{
			name: "expertise splits on first separator only",
			fields: model.ExternalFields{
				FieldExpertise: []any{"Product - Growth - B2B", "Fundraising", ""},
			},
			want: model.ProfilePatch{
				Expertise: &[]model.Expertise{
					{Area: "Product", Subarea: "Growth - B2B"},
					{Area: "Fundraising"},
				},
			},
		},
		{
			name: "multi-select option objects",
			fields: model.ExternalFields{
				FieldExpertise: []any{map[string]any{"id": "sel1", "name": "Ops - Logistics"}},
			},
			want: model.ProfilePatch{
				Expertise: &[]model.Expertise{{Area: "Ops", Subarea: "Logistics"}},
			},
		},
		{
			name: "industry list rejoined and stage reduced to first",
			fields: model.ExternalFields{
				FieldIndustry: []any{"Fintech", "SaaS"},
				FieldStage:    []any{"Seed", "Series A"},
			},
			want: model.ProfilePatch{
				Industry: strPtr("Fintech, SaaS"),
				Stage:    strPtr("Seed"),
			},
		},
		{
			name: "empty stage list clears stage",
			fields: model.ExternalFields{
				FieldStage: []any{},
			},
			want: model.ProfilePatch{Stage: strPtr("")},
		},
		{
			name: "active checkbox",
			fields: model.ExternalFields{
				FieldActive: true,
			},
			want: model.ProfilePatch{Active: boolPtr(true)},
		},
		{
			name: "unchecked checkbox sent as null",
			fields: model.ExternalFields{
				FieldActive: nil,
			},
			want: model.ProfilePatch{Active: boolPtr(false)},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Inbound(tt.fields))
		})
	}
}

func boolPtr(b bool) *bool { return &b }

func TestInboundIsDeterministic(t *testing.T) {
	fields := model.ExternalFields{
		FieldHeadline:  "Hello",
		FieldExpertise: []any{"A - B"},
		FieldIndustry:  []any{"X", "Y"},
	}

	first := Inbound(fields)
	second := Inbound(fields)

	assert.Equal(t, first, second)
	assert.Equal(t, []any{"A - B"}, fields[FieldExpertise], "input must not be mutated")
}

func TestRoundTripStable(t *testing.T) {
	faker := gofakeit.New(42)

	for i := 0; i < 250; i++ {
		m := randomMentor(faker)
		stats := model.MentorStats{UtilizationPct: floatPtr(float64(faker.IntRange(0, 100)))}

		first := Outbound(m, stats, syncedAt)

		restored := &model.Mentor{ID: m.ID}
		restored.Apply(Inbound(first))

		second := Outbound(restored, stats, syncedAt)

		require.Equal(t, allowListed(first), allowListed(second), "mentor %+v", m)
	}
}

func TestOutboundNormalisesPaddedValues(t *testing.T) {
	m := &model.Mentor{
		ID:    uuid.New(),
		Stage: strPtr(" Seed "),
		Expertise: []model.Expertise{
			{Area: "Go", Subarea: "  "},
			{Area: " Go"},
			{Area: " Sales ", Subarea: " Enterprise "},
		},
	}

	first := Outbound(m, model.MentorStats{}, syncedAt)

	assert.Equal(t, []string{"Seed"}, first[FieldStage])
	assert.Equal(t, []string{"Go", "Go", "Sales - Enterprise"}, first[FieldExpertise])

	restored := &model.Mentor{ID: m.ID}
	restored.Apply(Inbound(first))

	assert.Equal(t, allowListed(first), allowListed(Outbound(restored, model.MentorStats{}, syncedAt)))
}

func allowListed(fields model.ExternalFields) model.ExternalFields {
	out := model.ExternalFields{}

	for _, name := range InboundFields {
		if v, ok := fields[name]; ok {
			out[name] = v
		}
	}

	return out
}

func randomMentor(f *gofakeit.Faker) *model.Mentor {
	optional := func(v string) *string {
		if f.Bool() {
			return nil
		}
		return &v
	}

	industries := make([]string, f.IntRange(0, 3))
	for i := range industries {
		industries[i] = f.BuzzWord()
	}

	pad := func(v string) string {
		return f.RandomString([]string{"", " ", "  "}) + v + f.RandomString([]string{"", " ", "\t"})
	}

	expertise := make([]model.Expertise, f.IntRange(0, 4))
	for i := range expertise {
		e := model.Expertise{Area: pad(f.BuzzWord())}
		switch f.IntRange(0, 2) {
		case 1:
			e.Subarea = pad(f.Word())
		case 2:
			e.Subarea = f.RandomString([]string{" ", "  ", "\t"})
		}
		expertise[i] = e
	}

	return &model.Mentor{
		ID:        uuid.New(),
		Headline:  optional(f.JobTitle()),
		Bio:       optional(f.Company() + " alumnus"),
		Company:   optional(f.Company()),
		Title:     optional(f.JobTitle()),
		Industry:  optional(strings.Join(industries, ",")),
		Stage:     optional(pad(f.RandomString([]string{"Pre-seed", "Seed", "Series A", "Growth"}))),
		Timezone:  optional(f.TimeZoneRegion()),
		Expertise: expertise,
		Active:    f.Bool(),
	}
}
