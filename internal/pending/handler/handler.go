package handler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"enrollgate/internal/completeness"
	"enrollgate/internal/documents"
	"enrollgate/internal/pending/models"
	"enrollgate/internal/pending/report"
	"enrollgate/internal/pending/service"
	"enrollgate/internal/requirements"
	dErrors "enrollgate/pkg/domain-errors"
	"enrollgate/pkg/platform/httputil"
	"enrollgate/pkg/platform/sentinel"
	"enrollgate/pkg/requestcontext"
	"enrollgate/pkg/validation"
)

// DefaultMaxUploadBytes bounds a single document upload.
const DefaultMaxUploadBytes = 10 << 20

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

// Service defines the pending-registration operations exposed over HTTP.
type Service interface {
	ResolveRequirements(modality, planOrYear, module string) requirements.Set
	EvaluateCompleteness(refs completeness.Refs, set requirements.Set) completeness.Result
	Submit(ctx context.Context, req *models.SubmitRequest) (*service.SubmitResult, error)
	SubmitOrUpdate(ctx context.Context, nationalID models.NationalID, personal models.PersonalData, refs completeness.Refs) (*models.View, error)
	Get(ctx context.Context, nationalID models.NationalID) (*models.View, error)
	FinalizeIfComplete(ctx context.Context, nationalID models.NationalID) (*service.FinalizeResult, error)
	Delete(ctx context.Context, nationalID models.NationalID) error
	ResetAlarm(ctx context.Context, nationalID models.NationalID, days int, reason string) (*models.View, error)
	List(ctx context.Context, filter models.ListFilter) ([]*models.View, error)
	NotifyOne(ctx context.Context, nationalID models.NationalID, opts models.NotifyOptions) error
	NotifyPending(ctx context.Context, minUrgency models.Urgency) (int, error)
	Import(ctx context.Context, req *models.ImportRequest) (*service.ImportResult, error)
}

// Handler serves the pending-registration endpoints.
type Handler struct {
	logger    *slog.Logger
	pending   Service
	documents documents.Store
	maxUpload int64
}

// Option configures a Handler.
type Option func(*Handler)

// WithMaxUploadBytes overrides DefaultMaxUploadBytes.
func WithMaxUploadBytes(n int64) Option {
	return func(h *Handler) {
		if n > 0 {
			h.maxUpload = n
		}
	}
}

// New creates a new pending Handler. docs may be nil, in which case
// uploads are rejected.
func New(pending Service, docs documents.Store, logger *slog.Logger, opts ...Option) *Handler {
	h := &Handler{
		logger:    logger,
		pending:   pending,
		documents: docs,
		maxUpload: DefaultMaxUploadBytes,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Register registers the applicant-facing routes.
func (h *Handler) Register(r chi.Router) {
	r.Get("/requirements", h.handleGetRequirements)
	r.Post("/requirements/evaluate", h.handleEvaluate)
	r.Post("/pending", h.handleSubmit)
	r.Get("/pending/{nationalID}", h.handleGet)
	r.Post("/pending/{nationalID}/finalize", h.handleFinalize)
	r.Post("/pending/{nationalID}/documents/{kind}", h.handleUpload)
}

// RegisterAdmin registers the operator routes.
func (h *Handler) RegisterAdmin(r chi.Router) {
	r.Route("/admin/pending", func(r chi.Router) {
		r.Get("/", h.handleList)
		r.Get("/export.xlsx", h.handleExport)
		r.Post("/import", h.handleImport)
		r.Post("/notify", h.handleNotifyPending)
		r.Delete("/{nationalID}", h.handleDelete)
		r.Post("/{nationalID}/alarm-reset", h.handleAlarmReset)
		r.Post("/{nationalID}/notify", h.handleNotifyOne)
	})
}

func (h *Handler) handleGetRequirements(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	set := h.pending.ResolveRequirements(q.Get("modality"), q.Get("plan"), q.Get("module"))
	httputil.WriteJSON(w, http.StatusOK, &RequirementsResponse{
		Requirements:  set,
		TotalRequired: set.TotalRequired(),
		Determined:    !set.IsEmpty(),
	})
}

func (h *Handler) handleEvaluate(w http.ResponseWriter, r *http.Request) {
	req, ok := httputil.DecodeAndPrepare[models.EvaluateRequest](w, r, h.logger)
	if !ok {
		return
	}
	refs, err := models.ParseDocuments(req.Documents)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	set := h.pending.ResolveRequirements(req.Modality, req.PlanOrYear, req.Module)
	httputil.WriteJSON(w, http.StatusOK, h.pending.EvaluateCompleteness(refs, set))
}

func (h *Handler) handleSubmit(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	req, ok := httputil.DecodeAndPrepare[models.SubmitRequest](w, r, h.logger)
	if !ok {
		return
	}
	res, err := h.pending.Submit(ctx, req)
	if err != nil {
		h.fail(ctx, w, "failed to submit pending registration", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, &SubmitResponse{
		Finalized:        res.Finalized,
		AlreadyFinalized: res.AlreadyFinalized,
		Record:           toRecordResponse(res.View),
	})
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	view, err := h.pending.Get(ctx, nationalIDParam(r))
	if err != nil {
		h.fail(ctx, w, "failed to get pending registration", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, toRecordResponse(view))
}

func (h *Handler) handleFinalize(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	res, err := h.pending.FinalizeIfComplete(ctx, nationalIDParam(r))
	if err != nil {
		h.fail(ctx, w, "failed to finalize pending registration", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, &SubmitResponse{
		Finalized:        res.Finalized,
		AlreadyFinalized: res.AlreadyFinalized,
		Record:           toRecordResponse(res.View),
	})
}

// handleUpload stores one document and records its reference. Personal data
// form fields are optional and only needed when no live record exists yet.
func (h *Handler) handleUpload(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.documents == nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeInternal, "document storage is not configured"))
		return
	}
	nationalID := models.NormalizeNationalID(nationalIDParam(r).String())
	if nationalID == "" {
		httputil.WriteError(w, dErrors.New(dErrors.CodeValidation, "national_id is required"))
		return
	}
	if !validation.IsNationalID(nationalID.String()) {
		httputil.WriteError(w, dErrors.New(dErrors.CodeValidation, validation.NationalIDMessage))
		return
	}
	kind, ok := requirements.ParseDocKind(chi.URLParam(r, "kind"))
	if !ok {
		httputil.WriteError(w, dErrors.New(dErrors.CodeValidation, fmt.Sprintf("unknown document kind %q", chi.URLParam(r, "kind"))))
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, h.maxUpload)
	if err := r.ParseMultipartForm(h.maxUpload); err != nil {
		h.logger.WarnContext(ctx, "invalid document upload",
			"error", err,
			"request_id", requestcontext.RequestID(ctx),
		)
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid multipart upload"))
		return
	}
	defer func() { _ = r.MultipartForm.RemoveAll() }()

	file, header, err := r.FormFile("file")
	if err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeValidation, "file is required"))
		return
	}
	defer func() { _ = file.Close() }()

	ref, err := h.documents.Put(ctx, documents.Upload{
		Owner:       nationalID,
		Kind:        kind,
		Filename:    header.Filename,
		ContentType: header.Header.Get("Content-Type"),
		Size:        header.Size,
		Body:        file,
	})
	if err != nil {
		if errors.Is(err, sentinel.ErrUnavailable) {
			err = dErrors.Unavailable(err)
		} else {
			err = dErrors.Wrap(err, dErrors.CodeInternal, "failed to store document")
		}
		h.fail(ctx, w, "failed to store document", err)
		return
	}

	personal := models.PersonalData{
		FirstName:  r.FormValue("first_name"),
		LastName:   r.FormValue("last_name"),
		Email:      strings.ToLower(strings.TrimSpace(r.FormValue("email"))),
		Phone:      r.FormValue("phone"),
		Modality:   r.FormValue("modality"),
		PlanOrYear: r.FormValue("plan_or_year"),
		Module:     r.FormValue("module"),
	}
	view, err := h.pending.SubmitOrUpdate(ctx, nationalID, personal, completeness.Refs{kind: ref})
	if err != nil {
		h.fail(ctx, w, "failed to record uploaded document", err)
		return
	}

	resp := &SubmitResponse{Record: toRecordResponse(view)}
	if view.Completeness.IsComplete {
		fin, err := h.pending.FinalizeIfComplete(ctx, nationalID)
		if err != nil {
			h.fail(ctx, w, "failed to finalize pending registration", err)
			return
		}
		resp = &SubmitResponse{
			Finalized:        fin.Finalized,
			AlreadyFinalized: fin.AlreadyFinalized,
			Record:           toRecordResponse(fin.View),
		}
	}
	httputil.WriteJSON(w, http.StatusOK, resp)
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	filter, err := parseListFilter(r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	views, err := h.pending.List(ctx, filter)
	if err != nil {
		h.fail(ctx, w, "failed to list pending registrations", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, toListResponse(views))
}

func (h *Handler) handleExport(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	filter, err := parseListFilter(r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	filter.SortByExpiry = true
	views, err := h.pending.List(ctx, filter)
	if err != nil {
		h.fail(ctx, w, "failed to list pending registrations", err)
		return
	}
	data, err := report.ExportXLSX(views, nil)
	if err != nil {
		h.fail(ctx, w, "failed to render export", dErrors.Wrap(err, dErrors.CodeInternal, "failed to render export"))
		return
	}
	filename := fmt.Sprintf("pending-%s.xlsx", requestcontext.Now(ctx).Format("20060102"))
	w.Header().Set("Content-Type", xlsxContentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

func (h *Handler) handleImport(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	req, ok := httputil.DecodeAndPrepare[models.ImportRequest](w, r, h.logger)
	if !ok {
		return
	}
	res, err := h.pending.Import(ctx, req)
	if err != nil {
		h.fail(ctx, w, "failed to import pending registrations", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, res)
}

func (h *Handler) handleDelete(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if err := h.pending.Delete(ctx, nationalIDParam(r)); err != nil {
		h.fail(ctx, w, "failed to delete pending registration", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleAlarmReset(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	req, ok := httputil.DecodeAndPrepare[models.AlarmResetRequest](w, r, h.logger)
	if !ok {
		return
	}
	view, err := h.pending.ResetAlarm(ctx, nationalIDParam(r), req.ExtensionDays, req.Reason)
	if err != nil {
		h.fail(ctx, w, "failed to reset alarm", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, toRecordResponse(view))
}

func (h *Handler) handleNotifyOne(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	req, ok := httputil.DecodeOptionalAndPrepare[models.NotifyRequest](w, r, h.logger)
	if !ok {
		return
	}
	if err := h.pending.NotifyOne(ctx, nationalIDParam(r), req.Options()); err != nil {
		h.fail(ctx, w, "failed to notify applicant", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, &NotifyResponse{Sent: 1})
}

func (h *Handler) handleNotifyPending(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var urgency models.Urgency
	if raw := r.URL.Query().Get("urgency"); raw != "" {
		u, ok := models.ParseUrgency(raw)
		if !ok {
			httputil.WriteError(w, dErrors.New(dErrors.CodeValidation, "urgency must be one of normal, urgent, critical"))
			return
		}
		urgency = u
	}
	sent, err := h.pending.NotifyPending(ctx, urgency)
	if err != nil {
		h.fail(ctx, w, "failed to notify pending registrations", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, &NotifyResponse{Sent: sent})
}

func (h *Handler) fail(ctx context.Context, w http.ResponseWriter, msg string, err error) {
	level := slog.LevelError
	if dErrors.CodeOf(err) != dErrors.CodeInternal {
		level = slog.LevelWarn
	}
	h.logger.Log(ctx, level, msg,
		"error", err,
		"request_id", requestcontext.RequestID(ctx),
	)
	httputil.WriteError(w, err)
}

func nationalIDParam(r *http.Request) models.NationalID {
	return models.NationalID(chi.URLParam(r, "nationalID"))
}
