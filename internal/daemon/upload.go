package daemon

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"harp/internal/api"
	"harp/internal/artifacts"
	"harp/internal/jobs"
	"harp/internal/logging"
	"harp/internal/preflight"
	"harp/internal/services"
)

const maxFieldBytes = 256

var videoExtensions = map[string]struct{}{
	".mp4":  {},
	".mov":  {},
	".mkv":  {},
	".avi":  {},
	".webm": {},
}

// uploadError is a client-visible rejection of an upload.
type uploadError struct {
	status  int
	message string
}

func (e *uploadError) Error() string { return e.message }

func badUpload(message string) error {
	return &uploadError{status: http.StatusBadRequest, message: message}
}

type uploadForm struct {
	method      string
	mode        string
	video       string
	model       string
	modelName   string
	weights     string
	weightsName string
	fields      map[string]bool
}

// skips reports whether a file field can be dropped unread because the
// method has already arrived and does not use it. Parts that precede the
// method field are stored and pruned once the form is complete.
func (f uploadForm) skips(kind artifacts.Kind) bool {
	if !f.fields["method"] {
		return false
	}
	method, ok := jobs.ParseMethod(f.method)
	if !ok {
		return false
	}
	switch kind {
	case artifacts.KindModel:
		return !method.NeedsAudio()
	case artifacts.KindWeights:
		return !method.NeedsHand()
	}
	return false
}

func (s *apiServer) handleUpload(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	if limit := s.cfg.MaxUploadBytes(); limit > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, limit)
	}

	jobID := uuid.NewString()
	logger := logging.WithContext(services.WithJobID(r.Context(), jobID), s.logger)

	job, err := s.acceptUpload(r, jobID)
	if err != nil {
		if removeErr := s.daemon.store.Remove(jobID); removeErr != nil {
			logger.Warn("failed to clean up rejected upload", logging.Error(removeErr))
		}
		status, message := uploadFailure(err, s.cfg.API.MaxUploadMB)
		logging.WarnWithContext(logger, "upload rejected", "upload_rejected",
			logging.String("reason", message),
			logging.Int("status", status),
			logging.String(logging.FieldErrorHint, "fix the request fields and resubmit"),
			logging.String(logging.FieldImpact, "no job was created"),
		)
		s.writeError(w, status, message)
		return
	}

	if err := s.daemon.workflow.Submit(context.WithoutCancel(r.Context()), job.ID); err != nil {
		// The manager has already moved the job to error; the client can
		// observe that through status polling.
		logger.Error("job submission failed", logging.Error(err))
	}
	logger.Info("job queued", logging.Args(
		logging.String(logging.FieldEventType, "job_queued"),
		logging.String(logging.FieldMethod, string(job.Method)),
		logging.String("mode", string(job.Params.Mode)),
		logging.String("weights", job.Params.Weights),
	)...)
	s.writeJSON(w, http.StatusOK, api.UploadResponse{JobID: job.ID, Status: string(job.Status)})
}

func uploadFailure(err error, maxUploadMB int) (int, string) {
	var uerr *uploadError
	var maxErr *http.MaxBytesError
	switch {
	case errors.As(err, &uerr):
		return uerr.status, uerr.message
	case errors.As(err, &maxErr):
		return http.StatusRequestEntityTooLarge, fmt.Sprintf("upload exceeds the %d MB limit", maxUploadMB)
	case errors.Is(err, services.ErrValidation):
		return http.StatusBadRequest, services.Describe(err)
	default:
		return http.StatusInternalServerError, services.Describe(err)
	}
}

// acceptUpload streams the multipart body into the job's upload directory,
// validates the combination of fields, and registers the job.
func (s *apiServer) acceptUpload(r *http.Request, jobID string) (jobs.Job, error) {
	reader, err := r.MultipartReader()
	if err != nil {
		return jobs.Job{}, badUpload("expected a multipart/form-data upload")
	}
	form, err := s.readForm(reader, jobID)
	if err != nil {
		return jobs.Job{}, err
	}

	if form.video == "" {
		return jobs.Job{}, badUpload("video file is required")
	}
	methodValue := form.method
	if methodValue == "" {
		methodValue = string(jobs.MethodAudio)
	}
	method, ok := jobs.ParseMethod(methodValue)
	if !ok {
		return jobs.Job{}, badUpload("method must be 'audio', 'hand', or 'both'")
	}

	params := jobs.Params{Video: form.video}
	if method.NeedsAudio() {
		if form.model == "" {
			if method == jobs.MethodBoth {
				return jobs.Job{}, badUpload("For both, upload a .keras model file.")
			}
			return jobs.Job{}, badUpload("For audio detection, upload a .keras model file.")
		}
		if !hasExt(form.modelName, ".keras") {
			return jobs.Job{}, badUpload("model must be a .keras file")
		}
		mode, ok := jobs.ParseMode(form.mode)
		if !ok {
			return jobs.Job{}, badUpload("mode must be 'default' or 'hybrid'")
		}
		params.Model = form.model
		params.Mode = mode
	}
	if method.NeedsHand() {
		if form.weights != "" && !hasExt(form.weightsName, ".pt") {
			return jobs.Job{}, badUpload("weights must be a .pt file")
		}
		params.Weights = form.weights
		if params.Weights == "" {
			params.Weights = preflight.ResolveDefaultWeights(s.cfg)
			if params.Weights == "" && method == jobs.MethodHand {
				return jobs.Job{}, badUpload("For hand detection, upload a .pt weights file or configure detectors.default_weights.")
			}
		}
	}
	if !method.NeedsAudio() {
		s.dropUnused(form.model)
	}
	if !method.NeedsHand() {
		s.dropUnused(form.weights)
	}

	return s.daemon.registry.CreateWithID(jobID, method, params)
}

func (s *apiServer) readForm(reader *multipart.Reader, jobID string) (uploadForm, error) {
	form := uploadForm{fields: make(map[string]bool)}
	for {
		part, err := reader.NextPart()
		if errors.Is(err, io.EOF) {
			return form, nil
		}
		if err != nil {
			return form, err
		}
		name := part.FormName()
		if name == "" {
			part.Close()
			continue
		}
		if form.fields[name] {
			part.Close()
			return form, badUpload(fmt.Sprintf("field %q was sent more than once", name))
		}
		form.fields[name] = true

		switch name {
		case "method":
			form.method, err = readField(part)
		case "mode":
			form.mode, err = readField(part)
		case "video":
			form.video, err = s.saveFile(part, jobID, artifacts.KindVideo)
		case "model":
			form.modelName = part.FileName()
			form.model, err = s.saveInput(part, jobID, artifacts.KindModel, form.skips(artifacts.KindModel))
		case "weights":
			form.weightsName = part.FileName()
			form.weights, err = s.saveInput(part, jobID, artifacts.KindWeights, form.skips(artifacts.KindWeights))
		default:
			_, err = io.Copy(io.Discard, part)
		}
		part.Close()
		if err != nil {
			return form, err
		}
	}
}

func readField(part *multipart.Part) (string, error) {
	data, err := io.ReadAll(io.LimitReader(part, maxFieldBytes+1))
	if err != nil {
		return "", err
	}
	if len(data) > maxFieldBytes {
		return "", badUpload(fmt.Sprintf("field %q is too long", part.FormName()))
	}
	return strings.TrimSpace(string(data)), nil
}

// saveFile validates the video's extension and stores the part. Empty file
// inputs (a form submitted without choosing a file) count as omitted.
func (s *apiServer) saveFile(part *multipart.Part, jobID string, kind artifacts.Kind) (string, error) {
	filename := part.FileName()
	if filename == "" {
		_, err := io.Copy(io.Discard, part)
		return "", err
	}
	if kind == artifacts.KindVideo {
		if _, ok := videoExtensions[strings.ToLower(filepath.Ext(filename))]; !ok {
			return "", badUpload("Video must be .mp4, .mov, .mkv, .avi, or .webm")
		}
	}
	return s.daemon.store.Save(jobID, kind, filename, part)
}

// saveInput stores a detector input. Its extension is checked in
// acceptUpload, once the method says whether the field matters at all.
func (s *apiServer) saveInput(part *multipart.Part, jobID string, kind artifacts.Kind, skip bool) (string, error) {
	if skip {
		_, err := io.Copy(io.Discard, part)
		return "", err
	}
	return s.saveFile(part, jobID, kind)
}

// dropUnused deletes an input stored before the method field arrived.
func (s *apiServer) dropUnused(path string) {
	if path == "" {
		return
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		s.logger.Warn("failed to remove unused upload", logging.String("path", path), logging.Error(err))
	}
}

func hasExt(name, ext string) bool {
	return strings.EqualFold(filepath.Ext(name), ext)
}
