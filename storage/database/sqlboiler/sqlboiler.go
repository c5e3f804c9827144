// Package boiledrepos implements the evidence & notification repositories on postgres
// with sqlboiler raw queries.
package boiledrepos

import (
	"time"

	"github.com/google/uuid"
	"github.com/volatiletech/null/v8"
)

func isUUID(id string) bool {
	_, err := uuid.Parse(id)
	return err == nil
}

func nullString(s string) null.String { return null.NewString(s, s != "") }

func nullTime(t time.Time) null.Time { return null.NewTime(t.UTC(), !t.IsZero()) }

func timeOrZero(t null.Time) time.Time {
	if !t.Valid {
		return time.Time{}
	}
	return t.Time.UTC()
}
