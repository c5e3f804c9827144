package evidence_test

import (
	"bytes"
	"context"
	"errors"
	"io"
	"io/ioutil"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/bitacora/core"
	"github.com/trezcool/bitacora/core/directory"
	"github.com/trezcool/bitacora/core/evidence"
	"github.com/trezcool/bitacora/core/notification"
	inmemdb "github.com/trezcool/bitacora/storage/database/inmem"
	filestore "github.com/trezcool/bitacora/storage/files"
)

var (
	pdfContent  = append([]byte("%PDF-1.4\n"), bytes.Repeat([]byte("x"), 64)...)
	docxContent = append([]byte("PK\x03\x04"), bytes.Repeat([]byte{0}, 64)...)
	docContent  = append([]byte("\xD0\xCF\x11\xE0\xA1\xB1\x1A\xE1"), bytes.Repeat([]byte{0}, 504)...)
)

type nopLogger struct{}

func (nopLogger) Debug(string, ...interface{}) {}
func (nopLogger) Info(string, ...interface{})  {}
func (nopLogger) Warn(string, ...interface{})  {}
func (nopLogger) Error(string, ...interface{}) {}
func (nopLogger) Fatal(string, ...interface{}) {}

type dispatcherMock struct {
	mu   sync.Mutex
	sent []notification.NewNotification
}

func (d *dispatcherMock) Dispatch(nn notification.NewNotification) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.sent = append(d.sent, nn)
}

func (d *dispatcherMock) Sent() []notification.NewNotification {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]notification.NewNotification(nil), d.sent...)
}

type failingStore struct {
	evidence.FileStore
}

func (failingStore) Save(context.Context, string, string, io.Reader) (string, error) {
	return "", errors.New("disk full")
}

type failingInsertRepo struct {
	evidence.Repository
}

func (failingInsertRepo) InsertRecord(context.Context, evidence.Record, ...core.DBExecutor) (evidence.Record, error) {
	return evidence.Record{}, errors.New("connection reset")
}

type testEnv struct {
	svc        evidence.Service
	repo       evidence.Repository
	dirSvc     directory.Service
	dispatcher *dispatcherMock
	uploadsDir string
	now        time.Time
	learner    directory.Learner
	instructor directory.Instructor
}

type envOption func(opts *evidence.Options, repo *evidence.Repository, store *evidence.FileStore)

func newTestEnv(t *testing.T, options ...envOption) *testEnv {
	t.Helper()
	ctx := context.Background()

	db := inmemdb.Open()
	dirSvc := directory.NewService(inmemdb.NewDirectoryRepository(db))
	ins, err := dirSvc.CreateInstructor(ctx, directory.NewInstructor{
		UserID:         "0f8fad5b-d9cb-469f-a165-70867728950e",
		FullName:       "Instructor",
		DocumentNumber: "800100",
		Email:          "instructor@test.test",
	})
	require.NoError(t, err)
	lrn, err := dirSvc.CreateLearner(ctx, directory.NewLearner{
		UserID:         "7c9e6679-7425-40de-944b-e07fc1f90ae7",
		FullName:       "Aprendiz",
		DocumentType:   "CC",
		DocumentNumber: "100200",
		Email:          "learner@test.test",
		InstructorID:   ins.ID,
	})
	require.NoError(t, err)

	env := &testEnv{
		dirSvc:     dirSvc,
		dispatcher: new(dispatcherMock),
		uploadsDir: t.TempDir(),
		now:        time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC),
		learner:    lrn,
		instructor: ins,
	}

	store, err := filestore.NewLocalStore(env.uploadsDir)
	require.NoError(t, err)
	var fileStore evidence.FileStore = store
	repo := inmemdb.NewEvidenceRepository(db)

	opts := evidence.OptionsFromConfig(core.NewTestConfig())
	opts.Now = func() time.Time { return env.now }
	for _, opt := range options {
		opt(&opts, &repo, &fileStore)
	}

	env.repo = repo
	env.svc = evidence.NewService(opts, repo, db, fileStore, dirSvc, env.dispatcher, new(nopLogger))
	return env
}

func (env *testEnv) setDate(t *testing.T, date string) {
	t.Helper()
	d, err := time.Parse("2006-01-02", date)
	require.NoError(t, err)
	env.now = d.Add(10 * time.Hour)
}

func (env *testEnv) upload(category evidence.Category, subSession evidence.SubSession, filename string, content []byte) evidence.Upload {
	return evidence.Upload{
		LearnerID:  env.learner.ID,
		Category:   category,
		SubSession: subSession,
		Filename:   filename,
		Size:       int64(len(content)),
		Content:    bytes.NewReader(content),
	}
}

func (env *testEnv) storedFiles(t *testing.T) []os.FileInfo {
	t.Helper()
	files, err := ioutil.ReadDir(filepath.Join(env.uploadsDir, env.learner.ID))
	if os.IsNotExist(err) {
		return nil
	}
	require.NoError(t, err)
	return files
}

func TestCheckEligibility_NoHistory(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	for _, track := range []evidence.Track{
		{Category: evidence.CategoryWord},
		{Category: evidence.CategoryExcel, SubSession: evidence.SubSessionFifteenDays},
		{Category: evidence.CategoryExcel, SubSession: evidence.SubSessionThreeMonths},
		{Category: evidence.CategoryPdf},
	} {
		res, err := env.svc.CheckEligibility(ctx, env.learner.ID, track.Category, track.SubSession)
		require.NoError(t, err)
		assert.True(t, res.Eligible, track.String())
	}
}

func TestCheckEligibility_Errors(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	_, err := env.svc.CheckEligibility(ctx, "a3bb189e-8bf9-3888-9912-ace4e6543002", evidence.CategoryWord, "")
	assert.True(t, evidence.IsNotFound(err))

	_, err = env.svc.CheckEligibility(ctx, env.learner.ID, evidence.CategoryWord, evidence.SubSessionFifteenDays)
	assert.True(t, evidence.IsInvalidInput(err))

	res, err := env.svc.CheckEligibility(ctx, env.learner.ID, evidence.CategoryExcel, "6_meses")
	require.NoError(t, err)
	assert.True(t, res.Eligible)
}

func TestSubmit_WordScenario(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	env.setDate(t, "2024-01-01")
	rec, err := env.svc.Submit(ctx, env.upload(evidence.CategoryWord, "", "informe.docx", docxContent))
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), rec.WordAnchor)
	assert.Equal(t, "docx", rec.Format)
	assert.Equal(t, "informe.docx", rec.OriginalFilename)
	assert.False(t, rec.SubmittedAt.IsZero())

	env.setDate(t, "2024-02-01")
	res, err := env.svc.CheckEligibility(ctx, env.learner.ID, evidence.CategoryWord, "")
	require.NoError(t, err)
	assert.False(t, res.Eligible)
	assert.Equal(t, 59, res.DaysRemaining)
	assert.Equal(t, time.Date(2024, 3, 31, 0, 0, 0, 0, time.UTC), res.NextEligibleDate)

	view := evidence.NewRestrictionView(evidence.Track{Category: evidence.CategoryWord}, res)
	assert.True(t, view.Restricted)
	assert.Equal(t, "31/03/2024", view.NextEligible)
	assert.Contains(t, view.Message, "59")

	_, err = env.svc.Submit(ctx, env.upload(evidence.CategoryWord, "", "informe2.docx", docxContent))
	cerr, ok := evidence.IsCooldownActive(err)
	require.True(t, ok)
	assert.Equal(t, 59, cerr.DaysRemaining)
	assert.Len(t, env.storedFiles(t), 1, "no file stored for a rejected upload")
}

func TestSubmit_CooldownBoundary(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	env.setDate(t, "2024-01-01")
	_, err := env.svc.Submit(ctx, env.upload(evidence.CategoryWord, "", "a.doc", docContent))
	require.NoError(t, err)

	env.setDate(t, "2024-03-30") // A+89
	res, err := env.svc.CheckEligibility(ctx, env.learner.ID, evidence.CategoryWord, "")
	require.NoError(t, err)
	assert.False(t, res.Eligible)
	assert.Equal(t, 1, res.DaysRemaining)

	env.setDate(t, "2024-03-31") // A+90
	res, err = env.svc.CheckEligibility(ctx, env.learner.ID, evidence.CategoryWord, "")
	require.NoError(t, err)
	assert.True(t, res.Eligible)
}

func TestSubmit_AnchorNeverAdvances(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	anchor := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	env.setDate(t, "2024-01-01")
	_, err := env.svc.Submit(ctx, env.upload(evidence.CategoryWord, "", "a.docx", docxContent))
	require.NoError(t, err)

	env.setDate(t, "2024-04-01")
	rec, err := env.svc.Submit(ctx, env.upload(evidence.CategoryWord, "", "b.docx", docxContent))
	require.NoError(t, err)
	assert.Equal(t, anchor, rec.WordAnchor, "anchor is re-affirmed")

	// still measured from the very first submission
	env.setDate(t, "2024-04-02")
	res, err := env.svc.CheckEligibility(ctx, env.learner.ID, evidence.CategoryWord, "")
	require.NoError(t, err)
	assert.True(t, res.Eligible)
	assert.Equal(t, anchor, res.Anchor)

	records, err := env.svc.List(ctx, env.learner.ID)
	require.NoError(t, err)
	require.Len(t, records, 2)
	for _, r := range records {
		assert.Equal(t, anchor, r.WordAnchor)
	}
}

func TestSubmit_LatestAnchorMode(t *testing.T) {
	env := newTestEnv(t, func(opts *evidence.Options, _ *evidence.Repository, _ *evidence.FileStore) {
		opts.AnchorMode = core.AnchorModeLatest
	})
	ctx := context.Background()

	env.setDate(t, "2024-01-01")
	_, err := env.svc.Submit(ctx, env.upload(evidence.CategoryWord, "", "a.docx", docxContent))
	require.NoError(t, err)

	env.setDate(t, "2024-04-01")
	rec, err := env.svc.Submit(ctx, env.upload(evidence.CategoryWord, "", "b.docx", docxContent))
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 4, 1, 0, 0, 0, 0, time.UTC), rec.WordAnchor)

	env.setDate(t, "2024-04-02")
	res, err := env.svc.CheckEligibility(ctx, env.learner.ID, evidence.CategoryWord, "")
	require.NoError(t, err)
	assert.False(t, res.Eligible)
	assert.Equal(t, 89, res.DaysRemaining)
}

func TestSubmit_ExcelTracksAreIndependent(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	_, err := env.svc.Submit(ctx, env.upload(evidence.CategoryExcel, evidence.SubSessionFifteenDays, "q.xlsx", docxContent))
	require.NoError(t, err)

	res, err := env.svc.CheckEligibility(ctx, env.learner.ID, evidence.CategoryExcel, evidence.SubSessionThreeMonths)
	require.NoError(t, err)
	assert.True(t, res.Eligible)

	rec, err := env.svc.Submit(ctx, env.upload(evidence.CategoryExcel, evidence.SubSessionThreeMonths, "m.xls", docContent))
	require.NoError(t, err)
	assert.Equal(t, evidence.SubSessionThreeMonths, rec.SubSession)
	assert.True(t, rec.Excel15Anchor.IsZero())
	assert.False(t, rec.Excel3mAnchor.IsZero())

	res, err = env.svc.CheckEligibility(ctx, env.learner.ID, evidence.CategoryExcel, evidence.SubSessionFifteenDays)
	require.NoError(t, err)
	assert.False(t, res.Eligible)
	assert.Equal(t, 90, res.DaysRemaining)
}

func TestSubmit_PdfAlwaysEligible(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := env.svc.Submit(ctx, env.upload(evidence.CategoryPdf, "", "f.pdf", pdfContent))
		require.NoError(t, err)
	}
	res, err := env.svc.CheckEligibility(ctx, env.learner.ID, evidence.CategoryPdf, "")
	require.NoError(t, err)
	assert.True(t, res.Eligible)
}

func TestSubmit_QuotaExceeded(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	for i := 0; i < 17; i++ {
		_, err := env.svc.Submit(ctx, env.upload(evidence.CategoryPdf, "", "f.pdf", pdfContent))
		require.NoError(t, err)
	}
	_, err := env.svc.Submit(ctx, env.upload(evidence.CategoryPdf, "", "f.pdf", pdfContent))
	assert.Equal(t, evidence.ErrQuotaExceeded, err)

	_, err = env.svc.RecordSubmission(ctx, env.learner.ID, evidence.CategoryPdf, "", evidence.FileMeta{StoredFilename: "x"}, "")
	assert.Equal(t, evidence.ErrQuotaExceeded, err)

	records, err := env.svc.List(ctx, env.learner.ID)
	require.NoError(t, err)
	assert.Len(t, records, 17)
	assert.Len(t, env.storedFiles(t), 17)
}

func TestSubmit_ConcurrentUploadsRespectQuota(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		accepted int
	)
	for i := 0; i < 25; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			up := env.upload(evidence.CategoryPdf, "", "f.pdf", pdfContent)
			if _, err := env.svc.Submit(ctx, up); err == nil {
				mu.Lock()
				accepted++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 17, accepted)
	cnt, err := env.repo.CountSubmitted(ctx, env.learner.ID)
	require.NoError(t, err)
	assert.Equal(t, 17, cnt)
}

func TestSubmit_RejectsInvalidFiles(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	tests := []struct {
		name string
		up   evidence.Upload
	}{
		{name: "txt tagged word", up: env.upload(evidence.CategoryWord, "", "notes.txt", []byte("hello"))},
		{name: "docx tagged pdf", up: env.upload(evidence.CategoryPdf, "", "informe.docx", docxContent)},
		{name: "text content in a pdf", up: env.upload(evidence.CategoryPdf, "", "fake.pdf", []byte("just some text"))},
		{name: "excel without session", up: env.upload(evidence.CategoryExcel, "", "q.xlsx", docxContent)},
		{name: "unknown category", up: env.upload("ppt", "", "s.ppt", docContent)},
		{name: "no file", up: evidence.Upload{LearnerID: env.learner.ID, Category: evidence.CategoryPdf}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := env.svc.Submit(ctx, tt.up)
			require.Error(t, err)
			assert.True(t, evidence.IsInvalidInput(err), err.Error())
		})
	}

	records, err := env.svc.List(ctx, env.learner.ID)
	require.NoError(t, err)
	assert.Empty(t, records)
	assert.Empty(t, env.storedFiles(t))
}

func TestSubmit_ContentSniffingDisabled(t *testing.T) {
	env := newTestEnv(t, func(opts *evidence.Options, _ *evidence.Repository, _ *evidence.FileStore) {
		opts.SniffContent = false
	})
	_, err := env.svc.Submit(context.Background(), env.upload(evidence.CategoryPdf, "", "fake.pdf", []byte("just some text")))
	assert.NoError(t, err)
}

func TestSubmit_TooLarge(t *testing.T) {
	env := newTestEnv(t, func(opts *evidence.Options, _ *evidence.Repository, _ *evidence.FileStore) {
		opts.MaxUploadSize = 10
	})
	_, err := env.svc.Submit(context.Background(), env.upload(evidence.CategoryPdf, "", "f.pdf", pdfContent))
	assert.True(t, evidence.IsInvalidInput(err))
}

func TestSubmit_UnknownLearner(t *testing.T) {
	env := newTestEnv(t)
	up := env.upload(evidence.CategoryPdf, "", "f.pdf", pdfContent)
	up.LearnerID = "a3bb189e-8bf9-3888-9912-ace4e6543002"
	_, err := env.svc.Submit(context.Background(), up)
	assert.True(t, evidence.IsNotFound(err))
}

func TestSubmit_StorageFailure(t *testing.T) {
	env := newTestEnv(t, func(_ *evidence.Options, _ *evidence.Repository, store *evidence.FileStore) {
		*store = &failingStore{*store}
	})
	ctx := context.Background()

	_, err := env.svc.Submit(ctx, env.upload(evidence.CategoryPdf, "", "f.pdf", pdfContent))
	assert.True(t, evidence.IsStorageFailure(err))

	records, err := env.svc.List(ctx, env.learner.ID)
	require.NoError(t, err)
	assert.Empty(t, records)
	assert.Empty(t, env.dispatcher.Sent())
}

func TestSubmit_FailedInsertRemovesFile(t *testing.T) {
	env := newTestEnv(t, func(_ *evidence.Options, repo *evidence.Repository, _ *evidence.FileStore) {
		*repo = &failingInsertRepo{*repo}
	})

	_, err := env.svc.Submit(context.Background(), env.upload(evidence.CategoryPdf, "", "f.pdf", pdfContent))
	require.Error(t, err)
	assert.Empty(t, env.storedFiles(t))
}

func TestSubmit_ReusesEmptySlot(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	slots, err := env.svc.AllocateSlots(ctx, env.learner.ID, evidence.CategoryWord, 2)
	require.NoError(t, err)
	require.Len(t, slots, 2)
	assert.True(t, slots[0].IsEmptySlot())

	rec, err := env.svc.Submit(ctx, env.upload(evidence.CategoryWord, "", "a.docx", docxContent))
	require.NoError(t, err)
	assert.Equal(t, slots[0].ID, rec.ID)

	records, err := env.svc.List(ctx, env.learner.ID)
	require.NoError(t, err)
	assert.Len(t, records, 2)

	cnt, err := env.repo.CountSubmitted(ctx, env.learner.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, cnt)
}

func TestCheckEligibility_FallsBackToEarliestSubmission(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	// record predating the anchor columns
	_, err := env.repo.InsertRecord(ctx, evidence.Record{
		LearnerID:      env.learner.ID,
		Category:       evidence.CategoryExcel,
		SubSession:     evidence.SubSessionThreeMonths,
		StoredFilename: "legacy.xlsx",
		SubmittedAt:    time.Date(2023, 12, 20, 15, 0, 0, 0, time.UTC),
		CreatedAt:      time.Date(2023, 12, 20, 15, 0, 0, 0, time.UTC),
	})
	require.NoError(t, err)

	env.setDate(t, "2024-01-01")
	res, err := env.svc.CheckEligibility(ctx, env.learner.ID, evidence.CategoryExcel, evidence.SubSessionThreeMonths)
	require.NoError(t, err)
	assert.False(t, res.Eligible)
	assert.Equal(t, 78, res.DaysRemaining)

	// a new submission copies the healed anchor
	env.setDate(t, "2024-03-20")
	rec, err := env.svc.Submit(ctx, env.upload(evidence.CategoryExcel, evidence.SubSessionThreeMonths, "n.xlsx", docxContent))
	require.NoError(t, err)
	assert.Equal(t, time.Date(2023, 12, 20, 0, 0, 0, 0, time.UTC), rec.Excel3mAnchor)
}

func TestSubmit_NotifiesInstructor(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	_, err := env.svc.Submit(ctx, env.upload(evidence.CategoryPdf, "", "f.pdf", pdfContent))
	require.NoError(t, err)

	sent := env.dispatcher.Sent()
	require.Len(t, sent, 1)
	assert.Equal(t, env.instructor.UserID, sent[0].RecipientID)
	assert.Equal(t, notification.RoleInstructor, sent[0].RecipientRole)
	assert.Equal(t, env.learner.UserID, sent[0].SenderID)
}

func TestSubmit_WithoutInstructorStillSucceeds(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	lrn, err := env.dirSvc.AssignInstructor(ctx, env.learner.ID, "")
	require.NoError(t, err)
	assert.Empty(t, lrn.InstructorID)

	_, err = env.svc.Submit(ctx, env.upload(evidence.CategoryPdf, "", "f.pdf", pdfContent))
	require.NoError(t, err)
	assert.Empty(t, env.dispatcher.Sent())
}

func TestUpdateDeleteOpen(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	rec, err := env.svc.Submit(ctx, env.upload(evidence.CategoryPdf, "", "f.pdf", pdfContent))
	require.NoError(t, err)

	// other learners cannot touch the record
	note := "otra nota"
	_, err = env.svc.Update(ctx, evidence.Edit{ID: rec.ID, LearnerID: "someone-else", Note: &note})
	assert.Equal(t, evidence.ErrNotFound, err)

	newPdf := append([]byte("%PDF-1.7\n"), bytes.Repeat([]byte("y"), 32)...)
	updated, err := env.svc.Update(ctx, evidence.Edit{
		ID:        rec.ID,
		LearnerID: env.learner.ID,
		Note:      &note,
		Filename:  "g.pdf",
		Size:      int64(len(newPdf)),
		Content:   bytes.NewReader(newPdf),
	})
	require.NoError(t, err)
	assert.Equal(t, "otra nota", updated.Note)
	assert.Equal(t, "g.pdf", updated.OriginalFilename)
	assert.NotEqual(t, rec.StoredFilename, updated.StoredFilename)
	assert.Len(t, env.storedFiles(t), 1, "old file removed")

	rc, err := env.svc.Open(ctx, updated)
	require.NoError(t, err)
	content, err := ioutil.ReadAll(rc)
	_ = rc.Close()
	require.NoError(t, err)
	assert.Equal(t, newPdf, content)

	_, err = env.svc.Update(ctx, evidence.Edit{ID: rec.ID, SubmittedAt: env.now.Add(48 * time.Hour)})
	assert.True(t, evidence.IsInvalidInput(err))

	assert.Equal(t, evidence.ErrNotFound, env.svc.Delete(ctx, rec.ID, "someone-else"))
	require.NoError(t, env.svc.Delete(ctx, rec.ID, env.learner.ID))
	assert.Empty(t, env.storedFiles(t))

	_, err = env.svc.Get(ctx, rec.ID)
	assert.Equal(t, evidence.ErrNotFound, err)
}

func TestRecordSubmission(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	anchor := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	env.setDate(t, "2024-01-01")
	meta := evidence.FileMeta{StoredFilename: "a.docx", OriginalFilename: "informe.docx", Format: "docx"}
	first, err := env.svc.RecordSubmission(ctx, env.learner.ID, evidence.CategoryWord, "", meta, "  primera  ")
	require.NoError(t, err)
	assert.Equal(t, anchor, first.WordAnchor)
	assert.Equal(t, "primera", first.Note)
	assert.Equal(t, "informe.docx", first.OriginalFilename)

	env.setDate(t, "2024-05-01")
	meta.StoredFilename = "b.docx"
	second, err := env.svc.RecordSubmission(ctx, env.learner.ID, evidence.CategoryWord, "", meta, "")
	require.NoError(t, err)
	assert.NotEqual(t, first.ID, second.ID)
	assert.Equal(t, anchor, second.WordAnchor, "anchor is re-affirmed")

	sent := env.dispatcher.Sent()
	require.Len(t, sent, 2)
	for _, nn := range sent {
		assert.Equal(t, env.instructor.UserID, nn.RecipientID)
		assert.Equal(t, notification.RoleInstructor, nn.RecipientRole)
	}
}

func TestDelete_KeepsCooldown(t *testing.T) {
	for _, mode := range []string{core.AnchorModeFirst, core.AnchorModeLatest} {
		t.Run(mode, func(t *testing.T) {
			env := newTestEnv(t, func(opts *evidence.Options, _ *evidence.Repository, _ *evidence.FileStore) {
				opts.AnchorMode = mode
			})
			ctx := context.Background()

			env.setDate(t, "2024-01-01")
			rec, err := env.svc.Submit(ctx, env.upload(evidence.CategoryWord, "", "a.docx", docxContent))
			require.NoError(t, err)
			require.NoError(t, env.svc.Delete(ctx, rec.ID, env.learner.ID))

			env.setDate(t, "2024-01-02")
			res, err := env.svc.CheckEligibility(ctx, env.learner.ID, evidence.CategoryWord, "")
			require.NoError(t, err)
			assert.False(t, res.Eligible)
			assert.Equal(t, 89, res.DaysRemaining)

			_, err = env.svc.Submit(ctx, env.upload(evidence.CategoryWord, "", "b.docx", docxContent))
			_, cooldown := evidence.IsCooldownActive(err)
			assert.True(t, cooldown)

			// the history goes away with the learner only
			env.setDate(t, "2024-03-31")
			rec, err = env.svc.Submit(ctx, env.upload(evidence.CategoryWord, "", "c.docx", docxContent))
			require.NoError(t, err)
			if mode == core.AnchorModeFirst {
				assert.Equal(t, time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), rec.WordAnchor)
			}
		})
	}
}

func TestUpdate_SubmissionDate(t *testing.T) {
	tests := []struct {
		mode          string
		daysRemaining int
	}{
		{mode: core.AnchorModeFirst, daysRemaining: 81},  // anchored on 2024-01-01
		{mode: core.AnchorModeLatest, daysRemaining: 85}, // anchored on the edited 2024-01-05
	}
	for _, tt := range tests {
		t.Run(tt.mode, func(t *testing.T) {
			env := newTestEnv(t, func(opts *evidence.Options, _ *evidence.Repository, _ *evidence.FileStore) {
				opts.AnchorMode = tt.mode
			})
			ctx := context.Background()

			env.setDate(t, "2024-01-01")
			rec, err := env.svc.Submit(ctx, env.upload(evidence.CategoryWord, "", "a.docx", docxContent))
			require.NoError(t, err)

			env.setDate(t, "2024-01-10")
			for _, date := range []time.Time{
				time.Date(2023, 6, 1, 12, 0, 0, 0, time.UTC),
				time.Date(2023, 12, 31, 23, 0, 0, 0, time.UTC),
			} {
				_, err = env.svc.Update(ctx, evidence.Edit{ID: rec.ID, LearnerID: env.learner.ID, SubmittedAt: date})
				require.Error(t, err, date.String())
				assert.True(t, evidence.IsInvalidInput(err))
			}

			res, err := env.svc.CheckEligibility(ctx, env.learner.ID, evidence.CategoryWord, "")
			require.NoError(t, err)
			assert.False(t, res.Eligible)

			updated, err := env.svc.Update(ctx, evidence.Edit{
				ID:          rec.ID,
				LearnerID:   env.learner.ID,
				SubmittedAt: time.Date(2024, 1, 5, 9, 0, 0, 0, time.UTC),
			})
			require.NoError(t, err)
			assert.Equal(t, time.Date(2024, 1, 5, 9, 0, 0, 0, time.UTC), updated.SubmittedAt)

			res, err = env.svc.CheckEligibility(ctx, env.learner.ID, evidence.CategoryWord, "")
			require.NoError(t, err)
			assert.False(t, res.Eligible)
			assert.Equal(t, tt.daysRemaining, res.DaysRemaining)
		})
	}
}

func TestUpdate_PdfDateIsFree(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	env.setDate(t, "2024-01-10")
	rec, err := env.svc.Submit(ctx, env.upload(evidence.CategoryPdf, "", "f.pdf", pdfContent))
	require.NoError(t, err)

	_, err = env.svc.Update(ctx, evidence.Edit{ID: rec.ID, SubmittedAt: time.Date(2023, 6, 1, 0, 0, 0, 0, time.UTC)})
	assert.NoError(t, err)
}

func TestDeleteLearnerCascades(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	_, err := env.svc.Submit(ctx, env.upload(evidence.CategoryPdf, "", "f.pdf", pdfContent))
	require.NoError(t, err)

	require.NoError(t, env.dirSvc.DeleteLearner(ctx, env.learner.ID))
	records, err := env.repo.ListRecords(ctx, env.learner.ID)
	require.NoError(t, err)
	assert.Empty(t, records)
}

func TestAllocateSlots_Validation(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	_, err := env.svc.AllocateSlots(ctx, env.learner.ID, evidence.CategoryWord, 0)
	assert.True(t, evidence.IsInvalidInput(err))
	_, err = env.svc.AllocateSlots(ctx, env.learner.ID, "ppt", 1)
	assert.True(t, evidence.IsInvalidInput(err))
	_, err = env.svc.AllocateSlots(ctx, "a3bb189e-8bf9-3888-9912-ace4e6543002", evidence.CategoryWord, 1)
	assert.True(t, evidence.IsNotFound(err))
}
