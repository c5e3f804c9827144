// Package sqlxrepos implements the user & directory repositories on postgres with sqlx.
package sqlxrepos

import (
	"strings"

	"github.com/google/uuid"

	"github.com/trezcool/bitacora/core"
)

// isUUID guards uuid columns: postgres rejects malformed values instead of matching nothing.
func isUUID(id string) bool {
	_, err := uuid.Parse(id)
	return err == nil
}

// orderBy renders `ordering` keeping only the fields in `allowed` ({field: column}).
func orderBy(ordering []core.DBOrdering, allowed map[string]string) string {
	parts := make([]string, 0, len(ordering))
	for _, ord := range ordering {
		col, ok := allowed[ord.Field]
		if !ok {
			continue
		}
		parts = append(parts, core.DBOrdering{Field: col, Ascending: ord.Ascending}.String())
	}
	return strings.Join(parts, ", ")
}
