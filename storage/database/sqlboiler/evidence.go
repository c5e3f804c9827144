package boiledrepos

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"
	"github.com/volatiletech/sqlboiler/v4/queries"

	"github.com/trezcool/bitacora/core"
	"github.com/trezcool/bitacora/core/evidence"
)

const evidenceColumns = `id, learner_id, category, sub_session, stored_filename, original_filename, format, note,
	submitted_at, word_anchor, excel_15_anchor, excel_3m_anchor, created_at, updated_at`

var anchorColumns = map[evidence.AnchorField]string{
	evidence.AnchorWord:    "word_anchor",
	evidence.AnchorExcel15: "excel_15_anchor",
	evidence.AnchorExcel3m: "excel_3m_anchor",
}

type evidenceRow struct {
	ID               string      `boil:"id"`
	LearnerID        string      `boil:"learner_id"`
	Category         string      `boil:"category"`
	SubSession       null.String `boil:"sub_session"`
	StoredFilename   null.String `boil:"stored_filename"`
	OriginalFilename null.String `boil:"original_filename"`
	Format           null.String `boil:"format"`
	Note             null.String `boil:"note"`
	SubmittedAt      null.Time   `boil:"submitted_at"`
	WordAnchor       null.Time   `boil:"word_anchor"`
	Excel15Anchor    null.Time   `boil:"excel_15_anchor"`
	Excel3mAnchor    null.Time   `boil:"excel_3m_anchor"`
	CreatedAt        time.Time   `boil:"created_at"`
	UpdatedAt        time.Time   `boil:"updated_at"`
}

func boilRecord(rec evidence.Record) evidenceRow {
	return evidenceRow{
		ID:               rec.ID,
		LearnerID:        rec.LearnerID,
		Category:         string(rec.Category),
		SubSession:       nullString(string(rec.SubSession)),
		StoredFilename:   nullString(rec.StoredFilename),
		OriginalFilename: nullString(rec.OriginalFilename),
		Format:           nullString(rec.Format),
		Note:             nullString(rec.Note),
		SubmittedAt:      nullTime(rec.SubmittedAt),
		WordAnchor:       nullTime(rec.WordAnchor),
		Excel15Anchor:    nullTime(rec.Excel15Anchor),
		Excel3mAnchor:    nullTime(rec.Excel3mAnchor),
		CreatedAt:        rec.CreatedAt.UTC(),
		UpdatedAt:        rec.UpdatedAt.UTC(),
	}
}

func (r evidenceRow) unboil() evidence.Record {
	return evidence.Record{
		ID:               r.ID,
		LearnerID:        r.LearnerID,
		Category:         evidence.Category(r.Category),
		SubSession:       evidence.SubSession(r.SubSession.String),
		StoredFilename:   r.StoredFilename.String,
		OriginalFilename: r.OriginalFilename.String,
		Format:           r.Format.String,
		Note:             r.Note.String,
		SubmittedAt:      timeOrZero(r.SubmittedAt),
		WordAnchor:       timeOrZero(r.WordAnchor),
		Excel15Anchor:    timeOrZero(r.Excel15Anchor),
		Excel3mAnchor:    timeOrZero(r.Excel3mAnchor),
		CreatedAt:        r.CreatedAt.UTC(),
		UpdatedAt:        r.UpdatedAt.UTC(),
	}
}

type evidenceRepository struct {
	exec core.DBExecutor
}

var _ evidence.Repository = (*evidenceRepository)(nil) // interface compliance check

func NewEvidenceRepository(exec core.DBExecutor) evidence.Repository {
	return &evidenceRepository{exec: exec}
}

func (repo *evidenceRepository) getExec(svcExec []core.DBExecutor) core.DBExecutor {
	return core.GetExec(repo.exec, svcExec)
}

// trapNoRowsErr maps psql "no rows" err to `notFound`
func trapNoRowsErr(err error, notFound error, msg string) error {
	if errors.Cause(err) == sql.ErrNoRows {
		return notFound
	}
	return errors.Wrap(err, msg)
}

func (repo *evidenceRepository) LockLearner(ctx context.Context, learnerID string, exec ...core.DBExecutor) error {
	if !isUUID(learnerID) {
		return evidence.ErrLearnerNotFound
	}
	var row struct {
		ID string `boil:"id"`
	}
	err := queries.Raw(`SELECT id FROM learner WHERE id = $1 FOR UPDATE`, learnerID).Bind(ctx, repo.getExec(exec), &row)
	if err != nil {
		return trapNoRowsErr(err, evidence.ErrLearnerNotFound, "locking learner")
	}
	return nil
}

func (repo *evidenceRepository) LearnerExists(ctx context.Context, learnerID string, exec ...core.DBExecutor) (bool, error) {
	if !isUUID(learnerID) {
		return false, nil
	}
	var exists bool
	err := queries.Raw(`SELECT EXISTS (SELECT 1 FROM learner WHERE id = $1)`, learnerID).
		QueryRowContext(ctx, repo.getExec(exec)).
		Scan(&exists)
	if err != nil {
		return false, errors.Wrap(err, "checking learner")
	}
	return exists, nil
}

func (repo *evidenceRepository) InsertRecord(ctx context.Context, rec evidence.Record, exec ...core.DBExecutor) (evidence.Record, error) {
	rec.ID = uuid.New().String()
	r := boilRecord(rec)
	_, err := queries.Raw(
		`INSERT INTO evidence (`+evidenceColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`,
		r.ID, r.LearnerID, r.Category, r.SubSession, r.StoredFilename, r.OriginalFilename, r.Format, r.Note,
		r.SubmittedAt, r.WordAnchor, r.Excel15Anchor, r.Excel3mAnchor, r.CreatedAt, r.UpdatedAt,
	).ExecContext(ctx, repo.getExec(exec))
	if err != nil {
		return evidence.Record{}, errors.Wrap(err, "inserting evidence")
	}
	return rec, nil
}

func (repo *evidenceRepository) UpdateRecord(ctx context.Context, rec evidence.Record, exec ...core.DBExecutor) (evidence.Record, error) {
	if !isUUID(rec.ID) {
		return evidence.Record{}, evidence.ErrNotFound
	}
	r := boilRecord(rec)
	res, err := queries.Raw(
		`UPDATE evidence SET sub_session = $2, stored_filename = $3, original_filename = $4, format = $5, note = $6,
			submitted_at = $7, word_anchor = $8, excel_15_anchor = $9, excel_3m_anchor = $10, updated_at = $11
		WHERE id = $1`,
		r.ID, r.SubSession, r.StoredFilename, r.OriginalFilename, r.Format, r.Note,
		r.SubmittedAt, r.WordAnchor, r.Excel15Anchor, r.Excel3mAnchor, r.UpdatedAt,
	).ExecContext(ctx, repo.getExec(exec))
	if err != nil {
		return evidence.Record{}, errors.Wrap(err, "updating evidence")
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return evidence.Record{}, evidence.ErrNotFound
	}
	return rec, nil
}

func (repo *evidenceRepository) GetRecord(ctx context.Context, id string, exec ...core.DBExecutor) (evidence.Record, error) {
	if !isUUID(id) {
		return evidence.Record{}, evidence.ErrNotFound
	}
	var row evidenceRow
	err := queries.Raw(`SELECT `+evidenceColumns+` FROM evidence WHERE id = $1`, id).Bind(ctx, repo.getExec(exec), &row)
	if err != nil {
		return evidence.Record{}, trapNoRowsErr(err, evidence.ErrNotFound, "finding evidence")
	}
	return row.unboil(), nil
}

func (repo *evidenceRepository) ListRecords(ctx context.Context, learnerID string, exec ...core.DBExecutor) ([]evidence.Record, error) {
	records := make([]evidence.Record, 0)
	if !isUUID(learnerID) {
		return records, nil
	}
	var rows []*evidenceRow
	err := queries.Raw(
		`SELECT `+evidenceColumns+` FROM evidence WHERE learner_id = $1 ORDER BY created_at, id`, learnerID,
	).Bind(ctx, repo.getExec(exec), &rows)
	if err != nil {
		return nil, errors.Wrap(err, "listing evidence")
	}
	for _, r := range rows {
		records = append(records, r.unboil())
	}
	return records, nil
}

func (repo *evidenceRepository) DeleteRecord(ctx context.Context, id string, exec ...core.DBExecutor) error {
	if !isUUID(id) {
		return evidence.ErrNotFound
	}
	res, err := queries.Raw(`DELETE FROM evidence WHERE id = $1`, id).ExecContext(ctx, repo.getExec(exec))
	if err != nil {
		return errors.Wrap(err, "deleting evidence")
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return evidence.ErrNotFound
	}
	return nil
}

func (repo *evidenceRepository) CountSubmitted(ctx context.Context, learnerID string, exec ...core.DBExecutor) (int, error) {
	var cnt int
	err := queries.Raw(
		`SELECT COUNT(*) FROM evidence WHERE learner_id = $1 AND submitted_at IS NOT NULL`, learnerID,
	).QueryRowContext(ctx, repo.getExec(exec)).Scan(&cnt)
	if err != nil {
		return 0, errors.Wrap(err, "counting submissions")
	}
	return cnt, nil
}

func (repo *evidenceRepository) FindEmptySlot(ctx context.Context, learnerID string, category evidence.Category, exec ...core.DBExecutor) (evidence.Record, error) {
	var row evidenceRow
	err := queries.Raw(
		`SELECT `+evidenceColumns+` FROM evidence
		WHERE learner_id = $1 AND category = $2 AND submitted_at IS NULL AND stored_filename IS NULL
		ORDER BY created_at, id
		LIMIT 1`,
		learnerID, string(category),
	).Bind(ctx, repo.getExec(exec), &row)
	if err != nil {
		return evidence.Record{}, trapNoRowsErr(err, evidence.ErrNotFound, "finding empty slot")
	}
	return row.unboil(), nil
}

func (repo *evidenceRepository) FindAnchor(ctx context.Context, learnerID string, field evidence.AnchorField, exec ...core.DBExecutor) (time.Time, error) {
	col, ok := anchorColumns[field]
	if !ok {
		return time.Time{}, nil
	}
	var anchor null.Time
	err := queries.Raw(
		`SELECT MIN(`+col+`) FROM evidence WHERE learner_id = $1`, learnerID,
	).QueryRowContext(ctx, repo.getExec(exec)).Scan(&anchor)
	if err != nil {
		return time.Time{}, errors.Wrap(err, "finding anchor")
	}
	return timeOrZero(anchor), nil
}

func (repo *evidenceRepository) SubmissionBounds(ctx context.Context, learnerID string, track evidence.Track, exec ...core.DBExecutor) (first, last time.Time, err error) {
	var bounds struct {
		First null.Time `boil:"first"`
		Last  null.Time `boil:"last"`
	}
	err = queries.Raw(
		`SELECT MIN(submitted_at) AS first, MAX(submitted_at) AS last FROM evidence
		WHERE learner_id = $1 AND category = $2 AND COALESCE(sub_session, '') = $3 AND submitted_at IS NOT NULL`,
		learnerID, string(track.Category), string(track.SubSession),
	).Bind(ctx, repo.getExec(exec), &bounds)
	if err != nil {
		return time.Time{}, time.Time{}, errors.Wrap(err, "finding submission bounds")
	}
	return timeOrZero(bounds.First), timeOrZero(bounds.Last), nil
}

func (repo *evidenceRepository) GetTrackHistory(ctx context.Context, learnerID string, track evidence.Track, exec ...core.DBExecutor) (evidence.TrackHistory, error) {
	if !isUUID(learnerID) {
		return evidence.TrackHistory{}, nil
	}
	var row struct {
		First time.Time `boil:"first_submitted"`
		Last  time.Time `boil:"last_submitted"`
	}
	err := queries.Raw(
		`SELECT first_submitted, last_submitted FROM evidence_track WHERE learner_id = $1 AND track = $2`,
		learnerID, track.String(),
	).Bind(ctx, repo.getExec(exec), &row)
	if errors.Cause(err) == sql.ErrNoRows {
		return evidence.TrackHistory{}, nil
	}
	if err != nil {
		return evidence.TrackHistory{}, errors.Wrap(err, "getting track history")
	}
	return evidence.TrackHistory{First: core.Day(row.First, time.UTC), Last: core.Day(row.Last, time.UTC)}, nil
}

func (repo *evidenceRepository) SaveTrackHistory(ctx context.Context, learnerID string, track evidence.Track, hist evidence.TrackHistory, exec ...core.DBExecutor) error {
	_, err := queries.Raw(
		`INSERT INTO evidence_track (learner_id, track, first_submitted, last_submitted)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (learner_id, track) DO UPDATE
		SET first_submitted = EXCLUDED.first_submitted, last_submitted = EXCLUDED.last_submitted`,
		learnerID, track.String(), hist.First.Format("2006-01-02"), hist.Last.Format("2006-01-02"),
	).ExecContext(ctx, repo.getExec(exec))
	if err != nil {
		return errors.Wrap(err, "saving track history")
	}
	return nil
}
