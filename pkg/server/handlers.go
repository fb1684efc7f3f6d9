package server

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/matzehuels/bricklayers/pkg/buildinfo"
	apperr "github.com/matzehuels/bricklayers/pkg/errors"
	"github.com/matzehuels/bricklayers/pkg/jobs"
	"github.com/matzehuels/bricklayers/pkg/pipeline"
	"github.com/matzehuels/bricklayers/pkg/storage"
)

// Upload form limits.
const (
	minMultiplier = 1.0
	maxMultiplier = 1.2

	// formMemory is the part of a multipart body kept in memory; the rest
	// spills to temporary files.
	formMemory = 8 << 20
	// formOverhead allows for multipart framing and the other fields on top
	// of the file itself.
	formOverhead = 1 << 20
)

type uploadResponse struct {
	JobID     string      `json:"job_id"`
	Filename  string      `json:"filename"`
	FileSize  int64       `json:"file_size"`
	CreatedAt time.Time   `json:"created_at"`
	Status    jobs.Status `json:"status"`
	Message   string      `json:"message"`
}

type cancelResponse struct {
	JobID     string      `json:"job_id"`
	Cancelled bool        `json:"cancelled"`
	Status    jobs.Status `json:"status"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "healthy",
		"version": buildinfo.Version,
		"queued":  s.jobs.Depth(),
		"running": s.jobs.Running(),
	})
}

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	limit := s.files.Config().MaxUploadSize
	r.Body = http.MaxBytesReader(w, r.Body, limit+formOverhead)
	if err := r.ParseMultipartForm(formMemory); err != nil {
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) {
			writeProblem(w, http.StatusRequestEntityTooLarge, "File too large",
				fmt.Sprintf("Request exceeds maximum allowed size (%.2fMB)", float64(limit)/(1<<20)))
			return
		}
		writeProblem(w, http.StatusBadRequest, "Invalid upload", "Expected a multipart/form-data body")
		return
	}
	defer r.MultipartForm.RemoveAll()

	params, priority, err := parseUploadForm(r)
	if err != nil {
		writeProblem(w, http.StatusUnprocessableEntity, "Invalid parameters", apperr.UserMessage(err))
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		writeProblem(w, http.StatusUnprocessableEntity, "Invalid parameters", "Field 'file' is required")
		return
	}
	defer file.Close()

	if err := s.files.ValidateName(header.Filename); err != nil {
		writeProblem(w, http.StatusBadRequest, "Invalid file", apperr.UserMessage(err))
		return
	}
	if err := s.files.ValidateSize(header.Size); err != nil {
		s.writeUploadError(w, err)
		return
	}

	id := uuid.NewString()
	path, size, err := s.files.Save(id, header.Filename, file)
	if err != nil {
		s.writeUploadError(w, err)
		return
	}

	job, err := s.jobs.Submit(r.Context(), jobs.Request{
		ID:         id,
		Filename:   header.Filename,
		UploadPath: path,
		OutputPath: s.files.OutputPath(id, header.Filename),
		Params:     params,
		Priority:   priority,
	})
	if err != nil {
		if rerr := s.files.Remove(path); rerr != nil {
			s.logger.Warn("could not remove rejected upload", "path", path, "err", rerr)
		}
		switch {
		case errors.Is(err, jobs.ErrQueueFull), errors.Is(err, jobs.ErrClosed):
			w.Header().Set("Retry-After", "30")
			writeProblem(w, http.StatusServiceUnavailable, "Service unavailable", "The processing queue is full, try again later")
		case apperr.Is(err, apperr.ErrCodeInvalidConfig), apperr.Is(err, apperr.ErrCodeInvalidInput):
			writeProblem(w, http.StatusUnprocessableEntity, "Invalid parameters", apperr.UserMessage(err))
		default:
			s.logger.Error("submit job", "err", err)
			writeProblem(w, http.StatusInternalServerError, "Internal server error", "Could not queue the file for processing")
		}
		return
	}

	writeJSON(w, http.StatusCreated, uploadResponse{
		JobID:     job.ID,
		Filename:  job.Filename,
		FileSize:  size,
		CreatedAt: job.CreatedAt,
		Status:    job.Status,
		Message:   "File uploaded successfully and queued for processing",
	})
}

func (s *Server) writeUploadError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, storage.ErrTooLarge):
		writeProblem(w, http.StatusRequestEntityTooLarge, "File too large", apperr.UserMessage(err))
	case apperr.GetCode(err) != "":
		writeProblem(w, http.StatusBadRequest, "Invalid file", apperr.UserMessage(err))
	default:
		s.logger.Error("save upload", "err", err)
		writeProblem(w, http.StatusInternalServerError, "Internal server error", "Could not store the uploaded file")
	}
}

// parseUploadForm reads the processing parameters of an upload. Absent
// fields take their defaults.
func parseUploadForm(r *http.Request) (jobs.Params, jobs.Priority, error) {
	params := jobs.Params{
		StartAtLayer:        pipeline.DefaultStartAtLayer,
		ExtrusionMultiplier: pipeline.DefaultExtrusionMultiplier,
		IgnoreLayers:        strings.TrimSpace(r.FormValue("ignore_layers")),
		Dialect:             strings.TrimSpace(r.FormValue("dialect")),
	}
	priority := jobs.PriorityNormal

	if v := strings.TrimSpace(r.FormValue("start_at_layer")); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return params, priority, apperr.New(apperr.ErrCodeInvalidInput, "start_at_layer must be an integer >= 0")
		}
		params.StartAtLayer = n
	}
	if v := strings.TrimSpace(r.FormValue("extrusion_multiplier")); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil || f < minMultiplier || f > maxMultiplier {
			return params, priority, apperr.New(apperr.ErrCodeInvalidInput,
				"extrusion_multiplier must be a number between %.1f and %.1f", minMultiplier, maxMultiplier)
		}
		params.ExtrusionMultiplier = f
	}
	if v := strings.TrimSpace(r.FormValue("priority")); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return params, priority, apperr.New(apperr.ErrCodeInvalidInput, "priority must be 0 (high), 1 (normal) or 2 (low)")
		}
		p, err := jobs.ParsePriority(n)
		if err != nil {
			return params, priority, apperr.Wrap(apperr.ErrCodeInvalidInput, err, "priority must be 0 (high), 1 (normal) or 2 (low)")
		}
		priority = p
	}
	return params, priority, nil
}

func (s *Server) handleListJobs(w http.ResponseWriter, r *http.Request) {
	list, err := s.jobs.List(r.Context())
	if err != nil {
		s.logger.Error("list jobs", "err", err)
		writeProblem(w, http.StatusInternalServerError, "Internal server error", "Could not list jobs")
		return
	}
	if list == nil {
		list = []*jobs.Job{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"jobs": list, "total": len(list)})
}

// lookup fetches the job named in the path, writing the problem response
// when it cannot.
func (s *Server) lookup(w http.ResponseWriter, r *http.Request) (*jobs.Job, bool) {
	id := chi.URLParam(r, "id")
	job, err := s.jobs.Get(r.Context(), id)
	switch {
	case errors.Is(err, jobs.ErrNotFound):
		writeProblem(w, http.StatusNotFound, "Job not found", fmt.Sprintf("No job with id %s", id))
		return nil, false
	case err != nil:
		s.logger.Error("get job", "job", id, "err", err)
		writeProblem(w, http.StatusInternalServerError, "Internal server error", "Could not read job status")
		return nil, false
	}
	return job, true
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	job, ok := s.lookup(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, job)
}

func (s *Server) handleCancel(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	cancelled, err := s.jobs.Cancel(r.Context(), id)
	switch {
	case errors.Is(err, jobs.ErrNotFound):
		writeProblem(w, http.StatusNotFound, "Job not found", fmt.Sprintf("No job with id %s", id))
		return
	case err != nil:
		s.logger.Error("cancel job", "job", id, "err", err)
		writeProblem(w, http.StatusInternalServerError, "Internal server error", "Could not cancel job")
		return
	}
	job, ok := s.lookup(w, r)
	if !ok {
		return
	}
	if !cancelled {
		writeProblem(w, http.StatusConflict, "Job already finished",
			fmt.Sprintf("Job status is %s and can no longer be cancelled", job.Status))
		return
	}
	writeJSON(w, http.StatusOK, cancelResponse{JobID: job.ID, Cancelled: true, Status: job.Status})
}

// handleDownload serves the processed file and then deletes the job's
// upload, which is no longer needed.
func (s *Server) handleDownload(w http.ResponseWriter, r *http.Request) {
	job, ok := s.lookup(w, r)
	if !ok {
		return
	}
	if job.Status != jobs.StatusCompleted {
		writeProblem(w, http.StatusConflict, "Job not ready",
			fmt.Sprintf("Job status is %s, not ready for download", job.Status))
		return
	}

	f, err := openRegular(job.OutputPath)
	if err != nil {
		writeProblem(w, http.StatusNotFound, "Processed file not found", "The processed file has expired or was removed")
		return
	}
	defer f.Close()
	info, err := f.Stat()
	if err != nil {
		writeProblem(w, http.StatusNotFound, "Processed file not found", "The processed file has expired or was removed")
		return
	}

	name := storage.ProcessedName(job.Filename)
	w.Header().Set("Content-Type", "application/octet-stream")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", name))
	http.ServeContent(w, r, name, info.ModTime(), f)

	if err := s.files.Remove(job.UploadPath); err != nil {
		s.logger.Warn("could not remove upload after download", "job", job.ID, "err", err)
	}
}
