package echoapi

import (
	"io"
	"mime"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/bitacora/core"
	"github.com/trezcool/bitacora/core/directory"
	"github.com/trezcool/bitacora/core/evidence"
)

const (
	fileField       = "archivo"
	categoryField   = "tipo"
	subSessionField = "sesion_excel"
	noteField       = "nota"
	dateField       = "fecha"
)

type evidenceApi struct {
	svc       evidence.Service
	directory directory.Service
}

func registerEvidenceAPI(g *echo.Group, jwt echo.MiddlewareFunc, svc evidence.Service, dirSvc directory.Service) {
	api := evidenceApi{svc: svc, directory: dirSvc}

	eg := g.Group("/evidences", jwt)
	eg.GET("", api.query)
	eg.POST("", api.submit, learnerMiddleware)
	eg.GET("/eligibility", api.eligibility, learnerMiddleware)
	eg.POST("/slots", api.allocateSlots, adminMiddleware())
	eg.GET("/:id", api.retrieve)
	eg.PUT("/:id", api.update)
	eg.DELETE("/:id", api.destroy)
	eg.GET("/:id/file", api.download)
}

// learnerScope returns the learner whose documents the requester may act upon:
// learners act on their own, staff name one with `learner_id`.
func (api *evidenceApi) learnerScope(ctx echo.Context, learnerID string) (string, error) {
	claims, err := getContextClaims(ctx)
	if err != nil {
		return "", errors.Wrap(err, "getting context claims")
	}
	switch {
	case claims.IsAdmin:
		return learnerID, nil
	case claims.IsInstructor && learnerID != "":
		lrn, err := api.directory.GetLearner(ctx.Request().Context(), learnerID)
		if err != nil {
			return "", err
		}
		if claims.InstructorID == "" || lrn.InstructorID != claims.InstructorID {
			return "", directory.ErrLearnerNotFound
		}
		return learnerID, nil
	case claims.LearnerID != "":
		return claims.LearnerID, nil
	}
	return "", errHttpForbidden
}

// visibleRecord returns the record `id` if the requester may see it.
func (api *evidenceApi) visibleRecord(ctx echo.Context) (evidence.Record, error) {
	rec, err := api.svc.Get(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return evidence.Record{}, err
	}
	claims, err := getContextClaims(ctx)
	if err != nil {
		return evidence.Record{}, errors.Wrap(err, "getting context claims")
	}
	if claims.IsAdmin || rec.LearnerID == claims.LearnerID {
		return rec, nil
	}
	if claims.IsInstructor {
		if _, err := api.learnerScope(ctx, rec.LearnerID); err == nil {
			return rec, nil
		}
	}
	return evidence.Record{}, evidence.ErrNotFound
}

// ownerFilter is the learner an edit is restricted to; empty for admins.
func ownerFilter(ctx echo.Context) (string, error) {
	claims, err := getContextClaims(ctx)
	if err != nil {
		return "", errors.Wrap(err, "getting context claims")
	}
	if claims.IsAdmin {
		return "", nil
	}
	if claims.LearnerID == "" {
		return "", errHttpForbidden
	}
	return claims.LearnerID, nil
}

func (api *evidenceApi) query(ctx echo.Context) error {
	learnerID, err := api.learnerScope(ctx, core.CleanString(ctx.QueryParam("learner_id")))
	if err != nil {
		return errors.Wrap(err, "resolving learner")
	}
	if learnerID == "" {
		return ctx.JSON(http.StatusOK, []evidence.Record{})
	}
	records, err := api.svc.List(ctx.Request().Context(), learnerID)
	if err != nil {
		return errors.Wrap(err, "listing evidence")
	}
	return ctx.JSON(http.StatusOK, records)
}

func (api *evidenceApi) eligibility(ctx echo.Context) error {
	claims, err := getContextClaims(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context claims")
	}
	track := evidence.Track{
		Category:   evidence.Category(core.CleanString(ctx.QueryParam(categoryField), true)),
		SubSession: evidence.SubSession(core.CleanString(ctx.QueryParam(subSessionField))),
	}
	res, err := api.svc.CheckEligibility(ctx.Request().Context(), claims.LearnerID, track.Category, track.SubSession)
	if err != nil {
		return errors.Wrap(err, "checking eligibility")
	}
	return ctx.JSON(http.StatusOK, EligibilityResponse{
		EligibilityResult: res,
		View:              evidence.NewRestrictionView(track, res),
	})
}

func (api *evidenceApi) submit(ctx echo.Context) error {
	claims, err := getContextClaims(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context claims")
	}
	fh, err := ctx.FormFile(fileField)
	if err != nil {
		return core.NewValidationError(nil, core.FieldError{Field: fileField, Error: "select a document to upload"})
	}
	src, err := fh.Open()
	if err != nil {
		return errors.Wrap(err, "opening upload")
	}
	defer src.Close()

	rec, err := api.svc.Submit(ctx.Request().Context(), evidence.Upload{
		LearnerID:  claims.LearnerID,
		Category:   evidence.Category(core.CleanString(ctx.FormValue(categoryField), true)),
		SubSession: evidence.SubSession(core.CleanString(ctx.FormValue(subSessionField))),
		Filename:   fh.Filename,
		Size:       fh.Size,
		Content:    src,
		Note:       ctx.FormValue(noteField),
	})
	if err != nil {
		return errors.Wrap(err, "submitting evidence")
	}
	return ctx.JSON(http.StatusCreated, rec)
}

func (api *evidenceApi) retrieve(ctx echo.Context) error {
	rec, err := api.visibleRecord(ctx)
	if err != nil {
		return errors.Wrap(err, "finding evidence")
	}
	return ctx.JSON(http.StatusOK, rec)
}

func (api *evidenceApi) update(ctx echo.Context) error {
	owner, err := ownerFilter(ctx)
	if err != nil {
		return err
	}
	edit := evidence.Edit{ID: ctx.Param("id"), LearnerID: owner}

	if edit.SubmittedAt, err = formDate(ctx, dateField); err != nil {
		return err
	}
	params, err := ctx.FormParams()
	if err != nil {
		return errors.Wrap(err, "parsing form")
	}
	if params.Has(noteField) {
		note := params.Get(noteField)
		edit.Note = &note
	}

	if fh, err := ctx.FormFile(fileField); err == nil {
		src, err := fh.Open()
		if err != nil {
			return errors.Wrap(err, "opening upload")
		}
		defer src.Close()
		edit.Filename, edit.Size, edit.Content = fh.Filename, fh.Size, src
	} else if err != http.ErrMissingFile && err != http.ErrNotMultipart {
		return errors.Wrap(err, "reading upload")
	}

	rec, err := api.svc.Update(ctx.Request().Context(), edit)
	if err != nil {
		return errors.Wrap(err, "updating evidence")
	}
	return ctx.JSON(http.StatusOK, rec)
}

func (api *evidenceApi) destroy(ctx echo.Context) error {
	owner, err := ownerFilter(ctx)
	if err != nil {
		return err
	}
	if err := api.svc.Delete(ctx.Request().Context(), ctx.Param("id"), owner); err != nil {
		return errors.Wrap(err, "deleting evidence")
	}
	return ctx.NoContent(http.StatusNoContent)
}

func (api *evidenceApi) download(ctx echo.Context) error {
	rec, err := api.visibleRecord(ctx)
	if err != nil {
		return errors.Wrap(err, "finding evidence")
	}
	rc, err := api.svc.Open(ctx.Request().Context(), rec)
	if err != nil {
		return errors.Wrap(err, "opening evidence")
	}
	defer rc.Close()

	ctype := mime.TypeByExtension("." + rec.Format)
	if ctype == "" {
		ctype = echo.MIMEOctetStream
	}
	ctx.Response().Header().Set(
		echo.HeaderContentDisposition,
		mime.FormatMediaType("attachment", map[string]string{"filename": rec.OriginalFilename}),
	)
	ctx.Response().Header().Set(echo.HeaderContentType, ctype)
	ctx.Response().WriteHeader(http.StatusOK)
	_, err = io.Copy(ctx.Response(), rc)
	return err
}

func (api *evidenceApi) allocateSlots(ctx echo.Context) error {
	var data AllocateSlotsRequest
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to AllocateSlotsRequest")
	}
	slots, err := api.svc.AllocateSlots(ctx.Request().Context(), data.LearnerID, data.Category, data.Count)
	if err != nil {
		return errors.Wrap(err, "allocating slots")
	}
	return ctx.JSON(http.StatusCreated, slots)
}

type EligibilityResponse struct {
	evidence.EligibilityResult
	View evidence.RestrictionView `json:"vista"`
}

type AllocateSlotsRequest struct {
	LearnerID string            `json:"learner_id"`
	Category  evidence.Category `json:"tipo"`
	Count     int               `json:"cantidad"`
}
