package inmemdb

import (
	"context"
	"time"

	"github.com/trezcool/bitacora/core"
	"github.com/trezcool/bitacora/core/evidence"
)

type evidenceRepository struct {
	db *DB
}

var _ evidence.Repository = (*evidenceRepository)(nil)

func NewEvidenceRepository(db *DB) evidence.Repository {
	return &evidenceRepository{db: db}
}

// LockLearner only checks the learner exists: DB.RunInTx already serializes transactions.
func (repo *evidenceRepository) LockLearner(ctx context.Context, learnerID string, exec ...core.DBExecutor) error {
	exists, _ := repo.LearnerExists(ctx, learnerID, exec...)
	if !exists {
		return evidence.ErrLearnerNotFound
	}
	return nil
}

func (repo *evidenceRepository) LearnerExists(ctx context.Context, learnerID string, exec ...core.DBExecutor) (bool, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	_, ok := repo.db.learners[learnerID]
	return ok, nil
}

func (repo *evidenceRepository) InsertRecord(ctx context.Context, rec evidence.Record, exec ...core.DBExecutor) (evidence.Record, error) {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	if _, ok := repo.db.learners[rec.LearnerID]; !ok {
		return evidence.Record{}, evidence.ErrLearnerNotFound
	}
	rec.ID = repo.db.newID()
	repo.db.evidence[rec.ID] = &rec
	return rec, nil
}

func (repo *evidenceRepository) UpdateRecord(ctx context.Context, rec evidence.Record, exec ...core.DBExecutor) (evidence.Record, error) {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	if _, ok := repo.db.evidence[rec.ID]; !ok {
		return evidence.Record{}, evidence.ErrNotFound
	}
	repo.db.evidence[rec.ID] = &rec
	return rec, nil
}

func (repo *evidenceRepository) GetRecord(ctx context.Context, id string, exec ...core.DBExecutor) (evidence.Record, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	if rec, ok := repo.db.evidence[id]; ok {
		return *rec, nil
	}
	return evidence.Record{}, evidence.ErrNotFound
}

// records returns the learner's records in insertion order; db.mu must be held.
func (repo *evidenceRepository) records(learnerID string) []evidence.Record {
	ids := make([]string, 0)
	for id, rec := range repo.db.evidence {
		if rec.LearnerID == learnerID {
			ids = append(ids, id)
		}
	}
	repo.db.sortIDs(ids, false)

	records := make([]evidence.Record, 0, len(ids))
	for _, id := range ids {
		records = append(records, *repo.db.evidence[id])
	}
	return records
}

func (repo *evidenceRepository) ListRecords(ctx context.Context, learnerID string, exec ...core.DBExecutor) ([]evidence.Record, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()
	return repo.records(learnerID), nil
}

func (repo *evidenceRepository) DeleteRecord(ctx context.Context, id string, exec ...core.DBExecutor) error {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	if _, ok := repo.db.evidence[id]; !ok {
		return evidence.ErrNotFound
	}
	delete(repo.db.evidence, id)
	return nil
}

func (repo *evidenceRepository) CountSubmitted(ctx context.Context, learnerID string, exec ...core.DBExecutor) (int, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	var cnt int
	for _, rec := range repo.db.evidence {
		if rec.LearnerID == learnerID && !rec.SubmittedAt.IsZero() {
			cnt++
		}
	}
	return cnt, nil
}

func (repo *evidenceRepository) FindEmptySlot(ctx context.Context, learnerID string, category evidence.Category, exec ...core.DBExecutor) (evidence.Record, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	for _, rec := range repo.records(learnerID) {
		if rec.Category == category && rec.IsEmptySlot() {
			return rec, nil
		}
	}
	return evidence.Record{}, evidence.ErrNotFound
}

func (repo *evidenceRepository) FindAnchor(ctx context.Context, learnerID string, field evidence.AnchorField, exec ...core.DBExecutor) (time.Time, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	var anchor time.Time
	for _, rec := range repo.db.evidence {
		if rec.LearnerID != learnerID {
			continue
		}
		if a := rec.Anchor(field); !a.IsZero() && (anchor.IsZero() || a.Before(anchor)) {
			anchor = a
		}
	}
	return anchor, nil
}

func (repo *evidenceRepository) SubmissionBounds(ctx context.Context, learnerID string, track evidence.Track, exec ...core.DBExecutor) (first, last time.Time, err error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	for _, rec := range repo.db.evidence {
		if rec.LearnerID != learnerID || rec.Track() != track || rec.SubmittedAt.IsZero() {
			continue
		}
		if first.IsZero() || rec.SubmittedAt.Before(first) {
			first = rec.SubmittedAt
		}
		if last.IsZero() || rec.SubmittedAt.After(last) {
			last = rec.SubmittedAt
		}
	}
	return first, last, nil
}

func (repo *evidenceRepository) GetTrackHistory(ctx context.Context, learnerID string, track evidence.Track, exec ...core.DBExecutor) (evidence.TrackHistory, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()
	return repo.db.tracks[trackKey{learnerID: learnerID, track: track.String()}], nil
}

func (repo *evidenceRepository) SaveTrackHistory(ctx context.Context, learnerID string, track evidence.Track, hist evidence.TrackHistory, exec ...core.DBExecutor) error {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	if _, ok := repo.db.learners[learnerID]; !ok {
		return evidence.ErrLearnerNotFound
	}
	repo.db.tracks[trackKey{learnerID: learnerID, track: track.String()}] = hist
	return nil
}
