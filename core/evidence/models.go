package evidence

import (
	"io"
	"strings"
	"time"
)

type Category string

const (
	CategoryWord  Category = "word"
	CategoryExcel Category = "excel"
	CategoryPdf   Category = "pdf"
)

var Categories = []Category{CategoryWord, CategoryExcel, CategoryPdf}

func (c Category) Valid() bool {
	switch c {
	case CategoryWord, CategoryExcel, CategoryPdf:
		return true
	}
	return false
}

// SubSession labels the Excel tracks.
type SubSession string

const (
	SubSessionFifteenDays SubSession = "15_dias"
	SubSessionThreeMonths SubSession = "3_meses"
)

// AnchorField is the record column holding the first-submission anchor of a track.
type AnchorField int

const (
	AnchorNone AnchorField = iota
	AnchorWord
	AnchorExcel15
	AnchorExcel3m
)

// Track is a (category, sub-session) pair with its own cooldown & anchor.
type Track struct {
	Category   Category
	SubSession SubSession
}

func (t Track) String() string {
	if t.SubSession == "" {
		return string(t.Category)
	}
	return string(t.Category) + ":" + string(t.SubSession)
}

// RateLimited reports whether submissions to the track are subject to the cooldown.
// Pdf never is.
func (t Track) RateLimited() bool {
	return t.Category != CategoryPdf
}

func (t Track) AnchorField() AnchorField {
	switch {
	case t.Category == CategoryWord:
		return AnchorWord
	case t.Category == CategoryExcel && t.SubSession == SubSessionFifteenDays:
		return AnchorExcel15
	case t.Category == CategoryExcel && t.SubSession == SubSessionThreeMonths:
		return AnchorExcel3m
	}
	return AnchorNone
}

// Record is one uploaded document, or an empty pre-allocated slot.
// Zero times stand for NULL.
type Record struct {
	ID               string     `json:"id"`
	LearnerID        string     `json:"learner_id"`
	Category         Category   `json:"category"`
	SubSession       SubSession `json:"sub_session,omitempty"`
	StoredFilename   string     `json:"-"`
	OriginalFilename string     `json:"original_filename"`
	Format           string     `json:"format"`
	Note             string     `json:"note"`
	SubmittedAt      time.Time  `json:"submitted_at"`
	WordAnchor       time.Time  `json:"word_anchor"`
	Excel15Anchor    time.Time  `json:"excel_15_anchor"`
	Excel3mAnchor    time.Time  `json:"excel_3m_anchor"`
	CreatedAt        time.Time  `json:"created_at"`
	UpdatedAt        time.Time  `json:"updated_at"`
}

// IsEmptySlot reports whether the record is a slot waiting for an upload.
func (r Record) IsEmptySlot() bool {
	return r.SubmittedAt.IsZero() && r.StoredFilename == ""
}

func (r Record) Track() Track {
	return Track{Category: r.Category, SubSession: r.SubSession}
}

func (r Record) Anchor(field AnchorField) time.Time {
	switch field {
	case AnchorWord:
		return r.WordAnchor
	case AnchorExcel15:
		return r.Excel15Anchor
	case AnchorExcel3m:
		return r.Excel3mAnchor
	}
	return time.Time{}
}

func (r *Record) SetAnchor(field AnchorField, day time.Time) {
	switch field {
	case AnchorWord:
		r.WordAnchor = day
	case AnchorExcel15:
		r.Excel15Anchor = day
	case AnchorExcel3m:
		r.Excel3mAnchor = day
	}
}

// TrackHistory holds the cooldown days of a track, as core.Day values.
// It outlives the records it was built from: deleting or editing records never moves it back.
type TrackHistory struct {
	First time.Time
	Last  time.Time
}

// Extend records a submission on `day`; First is only ever set once.
func (h TrackHistory) Extend(day time.Time) TrackHistory {
	if h.First.IsZero() {
		h.First = day
	}
	if day.After(h.Last) {
		h.Last = day
	}
	return h
}

// FileMeta describes a stored upload.
type FileMeta struct {
	StoredFilename   string
	OriginalFilename string
	Format           string // lowercased extension, without the dot
}

// EligibilityResult is the decision of CheckEligibility.
// DaysRemaining & NextEligibleDate are only set when not eligible.
type EligibilityResult struct {
	Eligible         bool      `json:"eligible"`
	Track            string    `json:"track"`
	Anchor           time.Time `json:"anchor,omitempty"`
	DaysRemaining    int       `json:"days_remaining,omitempty"`
	NextEligibleDate time.Time `json:"next_eligible_date,omitempty"`
}

// Upload is a file submitted by a learner.
type Upload struct {
	LearnerID  string
	Category   Category
	SubSession SubSession
	Filename   string
	Size       int64
	Content    io.Reader
	Note       string
}

// Edit defines what may change on an existing record. Nil/empty fields are left untouched.
type Edit struct {
	ID          string
	LearnerID   string // owner check, empty for admins
	Note        *string
	SubmittedAt time.Time
	Filename    string
	Size        int64
	Content     io.Reader
}

func fileFormat(filename string) string {
	i := strings.LastIndex(filename, ".")
	if i < 0 {
		return ""
	}
	return strings.ToLower(filename[i+1:])
}
