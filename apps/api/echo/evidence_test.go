package echoapi_test

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	echoapi "github.com/trezcool/bitacora/apps/api/echo"
	"github.com/trezcool/bitacora/core/directory"
	"github.com/trezcool/bitacora/core/evidence"
	"github.com/trezcool/bitacora/core/notification"
	"github.com/trezcool/bitacora/core/user"
	testutil "github.com/trezcool/bitacora/tests"
)

type evidenceFixture struct {
	*testEnv
	admin, instructor, learner, stranger string
	lrn                                  directory.Learner
}

func newEvidenceFixture(t *testing.T) *evidenceFixture {
	env := newTestEnv(t)
	insUsr := env.createUser(t, "Instructor", "instructor@test.test", user.RoleInstructor)
	ins := testutil.CreateInstructor(t, env.dirSvc, insUsr, "800100")
	lrnUsr := env.createUser(t, "Ana", "ana@test.test", user.RoleLearner)
	strangerUsr := env.createUser(t, "Beto", "beto@test.test", user.RoleLearner)
	testutil.CreateLearner(t, env.dirSvc, strangerUsr, "100300", "")

	return &evidenceFixture{
		testEnv:    env,
		admin:      env.token(t, env.createUser(t, "Admin", "admin@test.test", user.RoleAdmin)),
		instructor: env.token(t, insUsr),
		lrn:        testutil.CreateLearner(t, env.dirSvc, lrnUsr, "100200", ins.ID),
		learner:    env.token(t, lrnUsr),
		stranger:   env.token(t, strangerUsr),
	}
}

func (f *evidenceFixture) submit(t *testing.T, category, subSession, filename string, content []byte) *evidence.Record {
	t.Helper()
	rec := f.multipartRequest(t, http.MethodPost, "/v1/evidences", f.learner, map[string]string{
		"tipo":         category,
		"sesion_excel": subSession,
		"nota":         "  primera entrega ",
	}, &formFile{name: filename, content: content})
	if rec.Code != http.StatusCreated {
		return nil
	}
	var r evidence.Record
	decode(t, rec, &r)
	return &r
}

func TestEvidenceAPI_SubmitAndCooldown(t *testing.T) {
	f := newEvidenceFixture(t)

	first := f.submit(t, "word", "", "informe.docx", docxContent)
	require.NotNil(t, first)
	assert.Equal(t, evidence.CategoryWord, first.Category)
	assert.Equal(t, "informe.docx", first.OriginalFilename)
	assert.Equal(t, "primera entrega", first.Note)

	// a second Word document within the cooldown
	rec := f.multipartRequest(t, http.MethodPost, "/v1/evidences", f.learner, map[string]string{"tipo": "word"},
		&formFile{name: "informe2.docx", content: docxContent})
	require.Equal(t, http.StatusConflict, rec.Code, rec.Body.String())
	var view evidence.RestrictionView
	decode(t, rec, &view)
	assert.True(t, view.Restricted)
	assert.NotEmpty(t, view.NextEligible)
	assert.Contains(t, view.Message, "Word")

	rec = f.request(t, http.MethodGet, "/v1/evidences/eligibility?tipo=word", f.learner, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var elig echoapi.EligibilityResponse
	decode(t, rec, &elig)
	assert.False(t, elig.Eligible)
	assert.Equal(t, 90, elig.DaysRemaining)
	assert.True(t, elig.View.Restricted)

	rec = f.request(t, http.MethodGet, "/v1/evidences/eligibility?tipo=excel&sesion_excel=15_dias", f.learner, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	decode(t, rec, &elig)
	assert.True(t, elig.Eligible)
	assert.False(t, elig.View.Restricted)

	// pdf is never rate limited
	require.NotNil(t, f.submit(t, "pdf", "", "a.pdf", pdfContent))
	require.NotNil(t, f.submit(t, "pdf", "", "b.pdf", pdfContent))

	// the instructor got a notification per submission
	rec = f.request(t, http.MethodGet, "/v1/notifications", f.instructor, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var inbox []notification.Notification
	decode(t, rec, &inbox)
	assert.Len(t, inbox, 3)
}

func TestEvidenceAPI_SubmitValidation(t *testing.T) {
	f := newEvidenceFixture(t)

	tests := []struct {
		name     string
		token    string
		fields   map[string]string
		file     *formFile
		wantCode int
	}{
		{name: "no file", token: f.learner, fields: map[string]string{"tipo": "pdf"}, wantCode: http.StatusBadRequest},
		{name: "unknown category", token: f.learner, fields: map[string]string{"tipo": "video"}, file: &formFile{"a.pdf", pdfContent}, wantCode: http.StatusBadRequest},
		{name: "wrong extension", token: f.learner, fields: map[string]string{"tipo": "word"}, file: &formFile{"a.pdf", pdfContent}, wantCode: http.StatusBadRequest},
		{name: "content mismatch", token: f.learner, fields: map[string]string{"tipo": "pdf"}, file: &formFile{"a.pdf", docxContent}, wantCode: http.StatusBadRequest},
		{name: "empty file", token: f.learner, fields: map[string]string{"tipo": "pdf"}, file: &formFile{"a.pdf", nil}, wantCode: http.StatusBadRequest},
		{name: "staff cannot submit", token: f.instructor, fields: map[string]string{"tipo": "pdf"}, file: &formFile{"a.pdf", pdfContent}, wantCode: http.StatusForbidden},
		{name: "anonymous", fields: map[string]string{"tipo": "pdf"}, file: &formFile{"a.pdf", pdfContent}, wantCode: http.StatusUnauthorized},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := f.multipartRequest(t, http.MethodPost, "/v1/evidences", tt.token, tt.fields, tt.file)
			assert.Equal(t, tt.wantCode, rec.Code, rec.Body.String())
		})
	}
}

func TestEvidenceAPI_Access(t *testing.T) {
	f := newEvidenceFixture(t)
	doc := f.submit(t, "pdf", "", "reporte final.pdf", pdfContent)
	require.NotNil(t, doc)
	path := "/v1/evidences/" + doc.ID

	t.Run("visibility", func(t *testing.T) {
		assert.Equal(t, http.StatusOK, f.request(t, http.MethodGet, path, f.learner, nil).Code)
		assert.Equal(t, http.StatusOK, f.request(t, http.MethodGet, path, f.instructor, nil).Code)
		assert.Equal(t, http.StatusOK, f.request(t, http.MethodGet, path, f.admin, nil).Code)
		assert.Equal(t, http.StatusNotFound, f.request(t, http.MethodGet, path, f.stranger, nil).Code)
	})

	t.Run("list", func(t *testing.T) {
		var records []evidence.Record
		rec := f.request(t, http.MethodGet, "/v1/evidences", f.learner, nil)
		require.Equal(t, http.StatusOK, rec.Code)
		decode(t, rec, &records)
		assert.Len(t, records, 1)

		rec = f.request(t, http.MethodGet, "/v1/evidences?learner_id="+f.lrn.ID, f.instructor, nil)
		require.Equal(t, http.StatusOK, rec.Code)
		decode(t, rec, &records)
		assert.Len(t, records, 1)

		// the stranger only ever sees their own documents
		rec = f.request(t, http.MethodGet, "/v1/evidences?learner_id="+f.lrn.ID, f.stranger, nil)
		require.Equal(t, http.StatusOK, rec.Code)
		decode(t, rec, &records)
		assert.Empty(t, records)
	})

	t.Run("download", func(t *testing.T) {
		rec := f.request(t, http.MethodGet, path+"/file", f.instructor, nil)
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, pdfContent, rec.Body.Bytes())
		assert.Equal(t, `attachment; filename="reporte final.pdf"`, rec.Header().Get("Content-Disposition"))
		assert.Equal(t, "application/pdf", rec.Header().Get("Content-Type"))

		assert.Equal(t, http.StatusNotFound, f.request(t, http.MethodGet, path+"/file", f.stranger, nil).Code)
	})

	t.Run("update", func(t *testing.T) {
		rec := f.multipartRequest(t, http.MethodPut, path, f.stranger, map[string]string{"nota": "mine"}, nil)
		assert.Equal(t, http.StatusNotFound, rec.Code)

		rec = f.multipartRequest(t, http.MethodPut, path, f.learner, map[string]string{"fecha": "31/01/2024"}, nil)
		assert.Equal(t, http.StatusBadRequest, rec.Code)

		rec = f.multipartRequest(t, http.MethodPut, path, f.learner, map[string]string{"nota": "corregido", "fecha": "2024-01-31"}, nil)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		var updated evidence.Record
		decode(t, rec, &updated)
		assert.Equal(t, "corregido", updated.Note)
		assert.Equal(t, "2024-01-31", updated.SubmittedAt.Format("2006-01-02"))
		assert.Equal(t, doc.OriginalFilename, updated.OriginalFilename)

		rec = f.multipartRequest(t, http.MethodPut, path, f.admin, nil, &formFile{name: "v2.pdf", content: pdfContent})
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		decode(t, rec, &updated)
		assert.Equal(t, "v2.pdf", updated.OriginalFilename)
		assert.Equal(t, "corregido", updated.Note)
	})

	t.Run("delete", func(t *testing.T) {
		assert.Equal(t, http.StatusForbidden, f.request(t, http.MethodDelete, path, f.instructor, nil).Code)
		assert.Equal(t, http.StatusNotFound, f.request(t, http.MethodDelete, path, f.stranger, nil).Code)
		assert.Equal(t, http.StatusNoContent, f.request(t, http.MethodDelete, path, f.learner, nil).Code)
		assert.Equal(t, http.StatusNotFound, f.request(t, http.MethodGet, path, f.learner, nil).Code)
	})
}

func TestEvidenceAPI_AllocateSlots(t *testing.T) {
	f := newEvidenceFixture(t)

	tests := []struct {
		name     string
		token    string
		data     echoapi.AllocateSlotsRequest
		wantCode int
	}{
		{name: "not an admin", token: f.instructor, data: echoapi.AllocateSlotsRequest{LearnerID: f.lrn.ID, Category: evidence.CategoryPdf, Count: 1}, wantCode: http.StatusForbidden},
		{name: "unknown learner", token: f.admin, data: echoapi.AllocateSlotsRequest{LearnerID: "nobody", Category: evidence.CategoryPdf, Count: 1}, wantCode: http.StatusNotFound},
		{name: "bad count", token: f.admin, data: echoapi.AllocateSlotsRequest{LearnerID: f.lrn.ID, Category: evidence.CategoryPdf, Count: 0}, wantCode: http.StatusBadRequest},
		{name: "bad category", token: f.admin, data: echoapi.AllocateSlotsRequest{LearnerID: f.lrn.ID, Category: "video", Count: 1}, wantCode: http.StatusBadRequest},
		{name: "ok", token: f.admin, data: echoapi.AllocateSlotsRequest{LearnerID: f.lrn.ID, Category: evidence.CategoryWord, Count: 2}, wantCode: http.StatusCreated},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := f.request(t, http.MethodPost, "/v1/evidences/slots", tt.token, tt.data)
			assert.Equal(t, tt.wantCode, rec.Code, rec.Body.String())
		})
	}

	// the upload fills a slot instead of adding a record
	doc := f.submit(t, "word", "", "informe.docx", docxContent)
	require.NotNil(t, doc)
	var records []evidence.Record
	decode(t, f.request(t, http.MethodGet, "/v1/evidences", f.learner, nil), &records)
	assert.Len(t, records, 2)
}
