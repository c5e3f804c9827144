package evidence

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/kat-co/vala"
	"github.com/pkg/errors"

	"github.com/trezcool/bitacora/core"
	"github.com/trezcool/bitacora/core/directory"
	"github.com/trezcool/bitacora/core/notification"
)

type (
	Repository interface {
		// LockLearner locks the learner row until the end of the transaction run by `exec`.
		LockLearner(ctx context.Context, learnerID string, exec ...core.DBExecutor) error
		LearnerExists(ctx context.Context, learnerID string, exec ...core.DBExecutor) (bool, error)

		InsertRecord(ctx context.Context, rec Record, exec ...core.DBExecutor) (Record, error)
		UpdateRecord(ctx context.Context, rec Record, exec ...core.DBExecutor) (Record, error)
		GetRecord(ctx context.Context, id string, exec ...core.DBExecutor) (Record, error)
		ListRecords(ctx context.Context, learnerID string, exec ...core.DBExecutor) ([]Record, error)
		DeleteRecord(ctx context.Context, id string, exec ...core.DBExecutor) error

		// CountSubmitted counts the learner's records having a submission date.
		CountSubmitted(ctx context.Context, learnerID string, exec ...core.DBExecutor) (int, error)
		// FindEmptySlot returns the oldest empty slot of (learner, category); ErrNotFound if none.
		FindEmptySlot(ctx context.Context, learnerID string, category Category, exec ...core.DBExecutor) (Record, error)
		// FindAnchor returns the earliest non-null value of `field` among the learner's records; zero if none.
		FindAnchor(ctx context.Context, learnerID string, field AnchorField, exec ...core.DBExecutor) (time.Time, error)
		// SubmissionBounds returns the earliest & latest submission dates of a track; zero if none.
		SubmissionBounds(ctx context.Context, learnerID string, track Track, exec ...core.DBExecutor) (first, last time.Time, err error)

		// GetTrackHistory returns the saved history of a track; zero if the track was never submitted to.
		GetTrackHistory(ctx context.Context, learnerID string, track Track, exec ...core.DBExecutor) (TrackHistory, error)
		SaveTrackHistory(ctx context.Context, learnerID string, track Track, hist TrackHistory, exec ...core.DBExecutor) error
	}

	// FileStore keeps the uploaded documents. Stored names are relative to the store.
	FileStore interface {
		Save(ctx context.Context, learnerID, ext string, r io.Reader) (storedName string, err error)
		Open(ctx context.Context, storedName string) (io.ReadCloser, error)
		Remove(ctx context.Context, storedName string) error
	}

	// LearnerDirectory resolves who gets notified about a submission.
	LearnerDirectory interface {
		GetLearner(ctx context.Context, id string) (directory.Learner, error)
		GetInstructor(ctx context.Context, id string) (directory.Instructor, error)
	}

	// Observer is notified of eligibility decisions & submissions.
	Observer interface {
		ObserveEligibility(track string, eligible bool)
		ObserveSubmission(category string, outcome string)
	}

	Service interface {
		CheckEligibility(ctx context.Context, learnerID string, category Category, subSession SubSession) (EligibilityResult, error)
		// RecordSubmission records an already stored file; callers check eligibility beforehand.
		RecordSubmission(ctx context.Context, learnerID string, category Category, subSession SubSession, meta FileMeta, note string) (Record, error)
		// Submit checks, stores & records an upload atomically.
		Submit(ctx context.Context, up Upload) (Record, error)
		List(ctx context.Context, learnerID string) ([]Record, error)
		Get(ctx context.Context, id string) (Record, error)
		Update(ctx context.Context, edit Edit) (Record, error)
		Delete(ctx context.Context, id, learnerID string) error
		Open(ctx context.Context, rec Record) (io.ReadCloser, error)
		AllocateSlots(ctx context.Context, learnerID string, category Category, n int) ([]Record, error)
	}

	Options struct {
		CooldownDays   int
		MaxSubmissions int
		AnchorMode     string
		Location       *time.Location
		MaxUploadSize  int64
		SniffContent   bool
		Now            func() time.Time
		Observer       Observer
	}

	service struct {
		opts       Options
		repo       Repository
		tx         core.Transactor
		files      FileStore
		learners   LearnerDirectory
		dispatcher notification.Dispatcher
		logger     core.Logger
	}
)

var _ Service = (*service)(nil)

// Submission outcomes
const (
	OutcomeAccepted = "accepted"
	OutcomeCooldown = "cooldown"
	OutcomeQuota    = "quota_exceeded"
	OutcomeInvalid  = "invalid"
	OutcomeError    = "error"
)

// OptionsFromConfig reads the evidence rules from `conf`.
func OptionsFromConfig(conf *core.Config) Options {
	return Options{
		CooldownDays:   conf.Evidence.CooldownDays,
		MaxSubmissions: conf.Evidence.MaxSubmissions,
		AnchorMode:     conf.Evidence.AnchorMode,
		Location:       conf.Location(),
		MaxUploadSize:  conf.Uploads.MaxSize,
		SniffContent:   conf.Uploads.SniffContent,
	}
}

type nopObserver struct{}

func (nopObserver) ObserveEligibility(string, bool)  {}
func (nopObserver) ObserveSubmission(string, string) {}

func NewService(
	opts Options,
	repo Repository,
	tx core.Transactor,
	files FileStore,
	learners LearnerDirectory,
	dispatcher notification.Dispatcher,
	logger core.Logger,
) Service {
	vala.BeginValidation().Validate(
		vala.IsNotNil(repo, "repo"),
		vala.IsNotNil(tx, "tx"),
		vala.IsNotNil(files, "files"),
		vala.IsNotNil(learners, "learners"),
		vala.IsNotNil(dispatcher, "dispatcher"),
		vala.IsNotNil(logger, "logger"),
	).CheckAndPanic()

	if opts.CooldownDays <= 0 {
		opts.CooldownDays = 90
	}
	if opts.MaxSubmissions <= 0 {
		opts.MaxSubmissions = 17
	}
	if opts.AnchorMode != core.AnchorModeLatest {
		opts.AnchorMode = core.AnchorModeFirst
	}
	if opts.Location == nil {
		opts.Location = time.UTC
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Observer == nil {
		opts.Observer = nopObserver{}
	}

	return &service{
		opts:       opts,
		repo:       repo,
		tx:         tx,
		files:      files,
		learners:   learners,
		dispatcher: dispatcher,
		logger:     logger,
	}
}

func (svc *service) today() time.Time {
	return core.Day(svc.opts.Now(), svc.opts.Location)
}

// history returns the cooldown days of a track. The saved history wins; records only fill in
// what was never saved: the dedicated anchor column, then the earliest submission.
func (svc *service) history(ctx context.Context, learnerID string, track Track, exec core.DBExecutor) (TrackHistory, error) {
	hist, err := svc.repo.GetTrackHistory(ctx, learnerID, track, exec)
	if err != nil {
		return TrackHistory{}, errors.Wrap(err, "getting track history")
	}

	first, last, err := svc.repo.SubmissionBounds(ctx, learnerID, track, exec)
	if err != nil {
		return TrackHistory{}, errors.Wrap(err, "finding submission bounds")
	}
	if hist.First.IsZero() {
		if field := track.AnchorField(); field != AnchorNone {
			anchor, err := svc.repo.FindAnchor(ctx, learnerID, field, exec)
			if err != nil {
				return TrackHistory{}, errors.Wrap(err, "finding anchor")
			}
			if !anchor.IsZero() {
				hist.First = core.Day(anchor, time.UTC)
			}
		}
		if hist.First.IsZero() && !first.IsZero() {
			hist.First = core.Day(first, svc.opts.Location)
		}
	}
	if !last.IsZero() {
		hist = hist.Extend(core.Day(last, svc.opts.Location))
	}
	return hist, nil
}

// anchor looks up the cooldown anchor of a track.
// first: the day of the very first submission. latest: the day of the most recent one.
func (svc *service) anchor(ctx context.Context, learnerID string, track Track, exec core.DBExecutor) (time.Time, error) {
	hist, err := svc.history(ctx, learnerID, track, exec)
	if err != nil {
		return time.Time{}, err
	}
	if svc.opts.AnchorMode == core.AnchorModeLatest {
		return hist.Last, nil
	}
	return hist.First, nil
}

func (svc *service) evaluate(ctx context.Context, learnerID string, track Track, exec core.DBExecutor) (EligibilityResult, error) {
	var anchor time.Time
	if track.RateLimited() {
		var err error
		if anchor, err = svc.anchor(ctx, learnerID, track, exec); err != nil {
			return EligibilityResult{}, err
		}
	}
	res := Evaluate(track, anchor, svc.today(), svc.opts.CooldownDays)
	svc.opts.Observer.ObserveEligibility(res.Track, res.Eligible)
	return res, nil
}

func (svc *service) CheckEligibility(ctx context.Context, learnerID string, category Category, subSession SubSession) (EligibilityResult, error) {
	track, err := NewTrack(category, subSession)
	if err != nil {
		return EligibilityResult{}, err
	}

	exists, err := svc.repo.LearnerExists(ctx, learnerID)
	if err != nil {
		return EligibilityResult{}, errors.Wrap(err, "checking learner")
	}
	if !exists {
		return EligibilityResult{}, ErrLearnerNotFound
	}
	return svc.evaluate(ctx, learnerID, track, nil)
}

// record fills an empty slot, or creates a record, for the submission.
// Must run inside a transaction holding the learner lock.
func (svc *service) record(ctx context.Context, exec core.DBExecutor, learnerID string, track Track, meta FileMeta, note string) (Record, error) {
	submitted, err := svc.repo.CountSubmitted(ctx, learnerID, exec)
	if err != nil {
		return Record{}, errors.Wrap(err, "counting submissions")
	}
	if submitted >= svc.opts.MaxSubmissions {
		return Record{}, ErrQuotaExceeded
	}

	now := svc.opts.Now().UTC()
	today := svc.today()

	// the first anchor is set once; later submissions re-affirm it
	anchor := today
	if track.RateLimited() {
		hist, err := svc.history(ctx, learnerID, track, exec)
		if err != nil {
			return Record{}, err
		}
		hist = hist.Extend(today)
		if err := svc.repo.SaveTrackHistory(ctx, learnerID, track, hist, exec); err != nil {
			return Record{}, errors.Wrap(err, "saving track history")
		}
		if svc.opts.AnchorMode == core.AnchorModeFirst {
			anchor = hist.First
		}
	}

	rec, err := svc.repo.FindEmptySlot(ctx, learnerID, track.Category, exec)
	isNew := errors.Cause(err) == ErrNotFound
	if err != nil && !isNew {
		return Record{}, errors.Wrap(err, "finding empty slot")
	}
	if isNew {
		rec = Record{LearnerID: learnerID, Category: track.Category, CreatedAt: now}
	}

	rec.SubSession = track.SubSession
	rec.StoredFilename = meta.StoredFilename
	rec.OriginalFilename = meta.OriginalFilename
	rec.Format = meta.Format
	rec.Note = note
	rec.SubmittedAt = now
	rec.SetAnchor(track.AnchorField(), anchor)
	rec.UpdatedAt = now

	if isNew {
		rec, err = svc.repo.InsertRecord(ctx, rec, exec)
	} else {
		rec, err = svc.repo.UpdateRecord(ctx, rec, exec)
	}
	if err != nil {
		return Record{}, errors.Wrap(err, "saving record")
	}
	return rec, nil
}

func (svc *service) RecordSubmission(
	ctx context.Context,
	learnerID string,
	category Category,
	subSession SubSession,
	meta FileMeta,
	note string,
) (Record, error) {
	track, err := NewTrack(category, subSession)
	if err != nil {
		return Record{}, err
	}

	var rec Record
	err = svc.tx.RunInTx(ctx, func(exec core.DBExecutor) error {
		if err := svc.repo.LockLearner(ctx, learnerID, exec); err != nil {
			return err
		}
		var err error
		rec, err = svc.record(ctx, exec, learnerID, track, meta, core.CleanString(note))
		return err
	})
	if err != nil {
		svc.observeSubmission(category, err)
		return Record{}, err
	}
	svc.observeSubmission(category, nil)
	svc.notifyInstructor(ctx, rec)
	return rec, nil
}

func (svc *service) Submit(ctx context.Context, up Upload) (Record, error) {
	rec, err := svc.submit(ctx, up)
	svc.observeSubmission(up.Category, err)
	if err != nil {
		return Record{}, err
	}
	svc.notifyInstructor(ctx, rec)
	return rec, nil
}

func (svc *service) submit(ctx context.Context, up Upload) (Record, error) {
	track, err := NewTrack(up.Category, up.SubSession)
	if err != nil {
		return Record{}, err
	}
	content, err := svc.checkFile(up.Category, up.Filename, up.Size, up.Content)
	if err != nil {
		return Record{}, err
	}

	var (
		rec    Record
		stored string
	)
	err = svc.tx.RunInTx(ctx, func(exec core.DBExecutor) error {
		if err := svc.repo.LockLearner(ctx, up.LearnerID, exec); err != nil {
			return err
		}

		res, err := svc.evaluate(ctx, up.LearnerID, track, exec)
		if err != nil {
			return err
		}
		if !res.Eligible {
			return &CooldownError{
				Track:            trackLabel(track),
				DaysRemaining:    res.DaysRemaining,
				NextEligibleDate: res.NextEligibleDate,
			}
		}

		submitted, err := svc.repo.CountSubmitted(ctx, up.LearnerID, exec)
		if err != nil {
			return errors.Wrap(err, "counting submissions")
		}
		if submitted >= svc.opts.MaxSubmissions {
			return ErrQuotaExceeded
		}

		format := fileFormat(up.Filename)
		if stored, err = svc.files.Save(ctx, up.LearnerID, format, content); err != nil {
			return &StorageError{Op: "save", Err: err}
		}

		meta := FileMeta{StoredFilename: stored, OriginalFilename: up.Filename, Format: format}
		rec, err = svc.record(ctx, exec, up.LearnerID, track, meta, core.CleanString(up.Note))
		return err
	})
	if err != nil {
		if stored != "" {
			svc.removeFile(ctx, stored)
		}
		return Record{}, err
	}
	return rec, nil
}

func (svc *service) observeSubmission(category Category, err error) {
	outcome := OutcomeAccepted
	if err != nil {
		switch _, cooldown := IsCooldownActive(err); {
		case cooldown:
			outcome = OutcomeCooldown
		case errors.Cause(err) == ErrQuotaExceeded:
			outcome = OutcomeQuota
		case core.IsValidationError(err):
			outcome = OutcomeInvalid
		default:
			outcome = OutcomeError
		}
	}
	svc.opts.Observer.ObserveSubmission(string(category), outcome)
}

func (svc *service) removeFile(ctx context.Context, stored string) {
	if err := svc.files.Remove(ctx, stored); err != nil {
		svc.logger.Error(fmt.Sprintf("evidence.removeFile: %v", err), err, map[string]interface{}{"file": stored})
	}
}

// notifyInstructor tells the learner's instructor about a new submission. Best-effort.
func (svc *service) notifyInstructor(ctx context.Context, rec Record) {
	lrn, err := svc.learners.GetLearner(ctx, rec.LearnerID)
	if err != nil {
		svc.logger.Warn(fmt.Sprintf("evidence.notifyInstructor: %v", err), err)
		return
	}
	if lrn.InstructorID == "" {
		return
	}
	ins, err := svc.learners.GetInstructor(ctx, lrn.InstructorID)
	if err != nil {
		svc.logger.Warn(fmt.Sprintf("evidence.notifyInstructor: %v", err), err)
		return
	}
	if ins.UserID == "" {
		svc.logger.Warn("evidence.notifyInstructor: instructor has no account", map[string]interface{}{"instructor": ins.ID})
		return
	}

	senderRole := notification.RoleLearner
	if lrn.UserID == "" {
		senderRole = "system"
	}
	svc.dispatcher.Dispatch(notification.NewNotification{
		SenderID:      lrn.UserID,
		SenderRole:    senderRole,
		RecipientID:   ins.UserID,
		RecipientRole: notification.RoleInstructor,
		Subject:       fmt.Sprintf("Nueva evidencia %s de %s", trackLabel(rec.Track()), lrn.FullName),
		Body: fmt.Sprintf(
			"%s envió el documento %q el %s.",
			lrn.FullName, rec.OriginalFilename, core.Day(rec.SubmittedAt, svc.opts.Location).Format(viewDateLayout),
		),
	})
}

func (svc *service) List(ctx context.Context, learnerID string) ([]Record, error) {
	return svc.repo.ListRecords(ctx, learnerID)
}

func (svc *service) Get(ctx context.Context, id string) (Record, error) {
	return svc.repo.GetRecord(ctx, id)
}

// owned returns the record `id`, hiding records of other learners when `learnerID` is set.
func (svc *service) owned(ctx context.Context, id, learnerID string, exec core.DBExecutor) (Record, error) {
	rec, err := svc.repo.GetRecord(ctx, id, exec)
	if err != nil {
		return Record{}, err
	}
	if learnerID != "" && rec.LearnerID != learnerID {
		return Record{}, ErrNotFound
	}
	return rec, nil
}

func (svc *service) Update(ctx context.Context, edit Edit) (Record, error) {
	var (
		content io.Reader
		newFile string
		oldFile string
		rec     Record
	)

	err := svc.tx.RunInTx(ctx, func(exec core.DBExecutor) error {
		var err error
		if rec, err = svc.owned(ctx, edit.ID, edit.LearnerID, exec); err != nil {
			return err
		}
		if err = svc.repo.LockLearner(ctx, rec.LearnerID, exec); err != nil {
			return err
		}
		if rec.IsEmptySlot() {
			return invalidInput("archivo", "this slot has no submission yet, upload a document instead")
		}

		if edit.Content != nil {
			if content, err = svc.checkFile(rec.Category, edit.Filename, edit.Size, edit.Content); err != nil {
				return err
			}
			format := fileFormat(edit.Filename)
			if newFile, err = svc.files.Save(ctx, rec.LearnerID, format, content); err != nil {
				return &StorageError{Op: "save", Err: err}
			}
			oldFile = rec.StoredFilename
			rec.StoredFilename = newFile
			rec.OriginalFilename = edit.Filename
			rec.Format = format
		}
		if edit.Note != nil {
			rec.Note = core.CleanString(*edit.Note)
		}
		if !edit.SubmittedAt.IsZero() {
			if err = svc.checkSubmissionDate(ctx, rec, edit.SubmittedAt, exec); err != nil {
				return err
			}
			rec.SubmittedAt = edit.SubmittedAt.UTC()
		}
		rec.UpdatedAt = svc.opts.Now().UTC()

		rec, err = svc.repo.UpdateRecord(ctx, rec, exec)
		return err
	})
	if err != nil {
		if newFile != "" {
			svc.removeFile(ctx, newFile)
		}
		return Record{}, err
	}
	if oldFile != "" {
		svc.removeFile(ctx, oldFile)
	}
	return rec, nil
}

// checkSubmissionDate refuses dates in the future, and dates before the first submission of
// a rate-limited track: the first anchor must stay the earliest submission.
func (svc *service) checkSubmissionDate(ctx context.Context, rec Record, date time.Time, exec core.DBExecutor) error {
	if date.After(svc.opts.Now()) {
		return invalidInput("fecha", "submission date cannot be in the future")
	}
	track := rec.Track()
	if !track.RateLimited() {
		return nil
	}
	hist, err := svc.history(ctx, rec.LearnerID, track, exec)
	if err != nil {
		return err
	}
	if !hist.First.IsZero() && core.Day(date, svc.opts.Location).Before(hist.First) {
		return invalidInput("fecha", fmt.Sprintf(
			"submission date cannot precede the first %s submission (%s)",
			trackLabel(track), hist.First.Format(viewDateLayout),
		))
	}
	return nil
}

func (svc *service) Delete(ctx context.Context, id, learnerID string) error {
	var stored string
	err := svc.tx.RunInTx(ctx, func(exec core.DBExecutor) error {
		rec, err := svc.owned(ctx, id, learnerID, exec)
		if err != nil {
			return err
		}
		stored = rec.StoredFilename
		return svc.repo.DeleteRecord(ctx, id, exec)
	})
	if err != nil {
		return err
	}
	if stored != "" {
		svc.removeFile(ctx, stored)
	}
	return nil
}

func (svc *service) Open(ctx context.Context, rec Record) (io.ReadCloser, error) {
	if rec.StoredFilename == "" {
		return nil, ErrNotFound
	}
	rc, err := svc.files.Open(ctx, rec.StoredFilename)
	if err != nil {
		return nil, &StorageError{Op: "open", Err: err}
	}
	return rc, nil
}

func (svc *service) AllocateSlots(ctx context.Context, learnerID string, category Category, n int) ([]Record, error) {
	if !category.Valid() {
		return nil, invalidInput("tipo", "must be one of word, excel or pdf")
	}
	if n < 1 || n > svc.opts.MaxSubmissions {
		return nil, invalidInput("cantidad", fmt.Sprintf("must be between 1 and %d", svc.opts.MaxSubmissions))
	}

	slots := make([]Record, 0, n)
	err := svc.tx.RunInTx(ctx, func(exec core.DBExecutor) error {
		if err := svc.repo.LockLearner(ctx, learnerID, exec); err != nil {
			return err
		}
		now := svc.opts.Now().UTC()
		for i := 0; i < n; i++ {
			rec, err := svc.repo.InsertRecord(ctx, Record{
				LearnerID: learnerID,
				Category:  category,
				CreatedAt: now,
				UpdatedAt: now,
			}, exec)
			if err != nil {
				return errors.Wrap(err, "inserting slot")
			}
			slots = append(slots, rec)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return slots, nil
}
