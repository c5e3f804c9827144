package evidence

import (
	"fmt"
	"time"
)

const viewDateLayout = "02/01/2006"

var categoryLabels = map[Category]string{
	CategoryWord:  "Word",
	CategoryExcel: "Excel",
	CategoryPdf:   "PDF",
}

// RestrictionView is what the upload form shows when a track is in cooldown.
type RestrictionView struct {
	Restricted   bool   `json:"restringido"`
	Message      string `json:"mensaje"`
	NextEligible string `json:"fecha_proxima"`
}

func restrictionMessage(track string, daysRemaining int, next time.Time) string {
	return fmt.Sprintf(
		"Ya enviaste un documento %s en este periodo. Podrás enviar otro a partir del %s (faltan %d días).",
		track, next.Format(viewDateLayout), daysRemaining,
	)
}

func trackLabel(t Track) string {
	label := categoryLabels[t.Category]
	if t.SubSession != "" {
		label += " (" + string(t.SubSession) + ")"
	}
	return label
}

// NewRestrictionView renders an eligibility decision.
func NewRestrictionView(track Track, res EligibilityResult) RestrictionView {
	if res.Eligible {
		return RestrictionView{}
	}
	return RestrictionView{
		Restricted:   true,
		Message:      restrictionMessage(trackLabel(track), res.DaysRemaining, res.NextEligibleDate),
		NextEligible: res.NextEligibleDate.Format(viewDateLayout),
	}
}

// CooldownView renders a *CooldownError.
func CooldownView(cerr *CooldownError) RestrictionView {
	return RestrictionView{
		Restricted:   true,
		Message:      restrictionMessage(cerr.Track, cerr.DaysRemaining, cerr.NextEligibleDate),
		NextEligible: cerr.NextEligibleDate.Format(viewDateLayout),
	}
}
