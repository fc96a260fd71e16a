package repository

import (
	"bytes"
	"slices"
	"strings"

	"mentorsync/internal/model"
)

// prefixed qualifies every column of a comma separated list with p.
func prefixed(p, columns string) string {
	parts := strings.Split(columns, ",")
	for i, c := range parts {
		parts[i] = p + strings.TrimSpace(c)
	}

	return strings.Join(parts, ", ")
}

func sortOutboxItems(items []model.OutboxItem) {
	slices.SortStableFunc(items, func(a, b model.OutboxItem) int {
		if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
			return c
		}

		return bytes.Compare(a.ID[:], b.ID[:])
	})
}
