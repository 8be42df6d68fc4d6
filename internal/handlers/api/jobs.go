package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"slices"
	"strings"

	"github.com/gofiber/fiber/v3"

	"consultacnpj/internal/batch"
	"consultacnpj/internal/jobs"
	"consultacnpj/internal/models"
)

// JobHandler drives batch jobs over the JSON API.
type JobHandler struct {
	jobs       *jobs.Manager
	extractor  *batch.Extractor
	extensions []string
	maxBytes   int64
}

// NewJobHandler creates a new job handler. extensions lists the accepted
// upload extensions.
func NewJobHandler(manager *jobs.Manager, extractor *batch.Extractor, extensions []string, maxBytes int64) *JobHandler {
	return &JobHandler{
		jobs:       manager,
		extractor:  extractor,
		extensions: extensions,
		maxBytes:   maxBytes,
	}
}

// Start creates a job from a JSON body {"cnpjs": "..."}, a form field cnpjs
// or an uploaded CSV/XLSX file.
func (h *JobHandler) Start(c fiber.Ctx) error {
	owner, ok := ownerKey(c)
	if !ok {
		return jsonError(c, fiber.StatusUnauthorized, "unauthorized")
	}

	var (
		reqs     []models.LookupRequest
		source   = models.SourceManual
		filename *string
		err      error
	)

	if strings.HasPrefix(strings.ToLower(c.Get(fiber.HeaderContentType)), fiber.MIMEApplicationJSON) {
		var body struct {
			CNPJs string `json:"cnpjs"`
		}
		if err := json.Unmarshal(c.Body(), &body); err != nil {
			return jsonError(c, fiber.StatusBadRequest, "invalid request body")
		}
		reqs, err = h.extractor.FromText(body.CNPJs)
	} else if text := strings.TrimSpace(c.FormValue("cnpjs")); text != "" {
		reqs, err = h.extractor.FromText(text)
	} else {
		var name string
		reqs, name, err = h.fromUpload(c)
		if err == nil {
			source = models.SourceUpload
			filename = &name
		}
	}

	if err != nil {
		var uploadErr *uploadError
		switch {
		case errors.As(err, &uploadErr):
			return jsonError(c, uploadErr.status, uploadErr.message)
		case errors.Is(err, batch.ErrNoIdentifiers), errors.Is(err, batch.ErrUnsupportedFile):
			return jsonError(c, fiber.StatusBadRequest, err.Error())
		default:
			slog.Warn("failed to read batch input", "error", err)
			return jsonError(c, fiber.StatusBadRequest, "failed to read file")
		}
	}

	job, err := h.jobs.Start(owner, reqs, source, filename)
	if err != nil {
		if errors.Is(err, jobs.ErrEmptyBatch) {
			return jsonError(c, fiber.StatusBadRequest, err.Error())
		}
		return jsonError(c, fiber.StatusInternalServerError, "failed to start job")
	}

	snap := job.Snapshot()
	return jsonSuccess(c, models.StartJobResponse{JobID: job.ID.String(), Total: snap.Total})
}

type uploadError struct {
	status  int
	message string
}

func (e *uploadError) Error() string { return e.message }

func (h *JobHandler) fromUpload(c fiber.Ctx) ([]models.LookupRequest, string, error) {
	fh, err := c.FormFile("file")
	if err != nil {
		// Older clients post the upload as csv_file.
		if fh, err = c.FormFile("csv_file"); err != nil {
			return nil, "", &uploadError{fiber.StatusBadRequest, "send cnpjs or a CSV/XLSX file"}
		}
	}

	ext := strings.ToLower(filepath.Ext(fh.Filename))
	if !slices.Contains(h.extensions, ext) {
		return nil, "", &uploadError{fiber.StatusBadRequest, "file not allowed, send only CSV or XLSX"}
	}
	if h.maxBytes > 0 && fh.Size > h.maxBytes {
		return nil, "", &uploadError{fiber.StatusRequestEntityTooLarge, fmt.Sprintf("file exceeds %d bytes", h.maxBytes)}
	}

	f, err := fh.Open()
	if err != nil {
		return nil, "", fmt.Errorf("failed to open upload: %w", err)
	}
	defer f.Close()

	reqs, err := h.extractor.FromFile(fh.Filename, f)
	return reqs, filepath.Base(fh.Filename), err
}

// Step processes one queued identifier. The request blocks for the whole
// lookup.
func (h *JobHandler) Step(c fiber.Ctx) error {
	owner, ok := ownerKey(c)
	if !ok {
		return jsonError(c, fiber.StatusUnauthorized, "unauthorized")
	}

	res, err := h.jobs.Step(c.Context(), owner)
	if err != nil {
		return h.jobError(c, err)
	}

	return jsonSuccess(c, models.StepResponse{
		Status:    string(res.Status),
		Processed: res.Processed,
		Total:     res.Total,
		Item:      res.Item,
	})
}

// Status reports the caller's job progress.
func (h *JobHandler) Status(c fiber.Ctx) error {
	return h.transition(c, h.jobs.Status)
}

// Pause pauses the caller's job.
func (h *JobHandler) Pause(c fiber.Ctx) error {
	return h.transition(c, h.jobs.Pause)
}

// Resume resumes the caller's job.
func (h *JobHandler) Resume(c fiber.Ctx) error {
	return h.transition(c, h.jobs.Resume)
}

// Cancel cancels the caller's job.
func (h *JobHandler) Cancel(c fiber.Ctx) error {
	return h.transition(c, h.jobs.Cancel)
}

func (h *JobHandler) transition(c fiber.Ctx, fn func(owner string) (jobs.Snapshot, error)) error {
	owner, ok := ownerKey(c)
	if !ok {
		return jsonError(c, fiber.StatusUnauthorized, "unauthorized")
	}

	snap, err := fn(owner)
	if err != nil {
		return h.jobError(c, err)
	}
	return jsonSuccess(c, statusResponse(snap))
}

// Finalize stores the caller's job in history and discards it.
func (h *JobHandler) Finalize(c fiber.Ctx) error {
	owner, ok := ownerKey(c)
	if !ok {
		return jsonError(c, fiber.StatusUnauthorized, "unauthorized")
	}

	out, err := h.jobs.Finalize(c.Context(), owner)
	if err != nil {
		if errors.Is(err, jobs.ErrNoJob) {
			return h.jobError(c, err)
		}
		slog.Error("failed to finalize job", "owner", owner, "error", err)
		return jsonError(c, fiber.StatusInternalServerError, "failed to save history")
	}

	resp := models.FinalizeResponse{Saved: out.Saved}
	if out.HistoryID != nil {
		resp.HistoryID = out.HistoryID.String()
	}
	return jsonSuccess(c, resp)
}

// RetryStatus returns the last retry message of the caller's job.
func (h *JobHandler) RetryStatus(c fiber.Ctx) error {
	owner, ok := ownerKey(c)
	if !ok {
		return jsonError(c, fiber.StatusUnauthorized, "unauthorized")
	}
	return jsonSuccess(c, fiber.Map{"status": h.jobs.RetryStatus(owner)})
}

func (h *JobHandler) jobError(c fiber.Ctx, err error) error {
	if errors.Is(err, jobs.ErrNoJob) {
		return jsonError(c, fiber.StatusBadRequest, err.Error())
	}
	return jsonError(c, fiber.StatusInternalServerError, "job step failed")
}

func statusResponse(s jobs.Snapshot) models.JobStatusResponse {
	return models.JobStatusResponse{
		JobID:       s.ID.String(),
		Status:      string(s.Status),
		Processed:   s.Processed,
		Total:       s.Total,
		Source:      s.Source,
		Filename:    stringOrEmpty(s.Filename),
		RetryStatus: s.RetryStatus,
	}
}
