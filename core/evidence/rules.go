package evidence

import (
	"time"

	"github.com/trezcool/bitacora/core"
)

// Evaluate decides whether `track` accepts a submission on `today` given its anchor day.
// Both days are calendar days as returned by core.Day; a zero anchor means no history.
func Evaluate(track Track, anchor, today time.Time, cooldownDays int) EligibilityResult {
	res := EligibilityResult{Eligible: true, Track: track.String(), Anchor: anchor}
	if !track.RateLimited() || anchor.IsZero() {
		return res
	}

	daysSince := core.DaysBetween(anchor, today)
	if daysSince >= cooldownDays {
		return res
	}
	res.Eligible = false
	res.DaysRemaining = cooldownDays - daysSince
	res.NextEligibleDate = core.AddDays(anchor, cooldownDays)
	return res
}

// NewTrack validates a category & sub-session pair.
// Unknown Excel sub-sessions are accepted: they get a track of their own without anchor column.
func NewTrack(category Category, subSession SubSession) (Track, error) {
	if !category.Valid() {
		return Track{}, invalidInput("tipo", "must be one of word, excel or pdf")
	}
	if category == CategoryExcel {
		if subSession == "" {
			return Track{}, invalidInput("sesion_excel", "this field is required for excel documents")
		}
	} else if subSession != "" {
		return Track{}, invalidInput("sesion_excel", "only excel documents have a session")
	}
	return Track{Category: category, SubSession: subSession}, nil
}
