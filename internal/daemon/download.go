package daemon

import (
	"errors"
	"fmt"
	"mime"
	"net/http"
	"os"
	"strings"

	"harp/internal/artifacts"
	"harp/internal/jobs"
	"harp/internal/logging"
)

var contentTypes = map[artifacts.Type]string{
	artifacts.TypeCSV:   "text/csv",
	artifacts.TypeVideo: "video/mp4",
}

func (s *apiServer) handleDownload(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	typ := artifacts.Type(r.PathValue("kind"))
	contentType, ok := contentTypes[typ]
	if !ok {
		s.writeError(w, http.StatusNotFound, "not found")
		return
	}

	job, err := s.daemon.registry.Get(r.PathValue("id"))
	if err != nil || job.Status != jobs.StatusDone {
		s.writeError(w, http.StatusNotFound, "Job not ready or not found")
		return
	}

	subtype := artifacts.Subtype(strings.ToLower(strings.TrimSpace(r.URL.Query().Get("type"))))
	switch subtype {
	case "":
		if job.Method == jobs.MethodBoth {
			s.writeError(w, http.StatusBadRequest, "For this job, use ?type=audio, ?type=hand, or ?type=combined")
			return
		}
	case artifacts.SubtypeAudio, artifacts.SubtypeHand, artifacts.SubtypeCombined:
	default:
		s.writeError(w, http.StatusBadRequest, "type must be 'audio', 'hand', or 'combined'")
		return
	}

	path, err := s.daemon.store.Resolve(job.ID, typ, subtype)
	switch {
	case errors.Is(err, artifacts.ErrInvalidType):
		s.writeError(w, http.StatusBadRequest, fmt.Sprintf("no %s artifact of type %q", typ, subtype))
		return
	case errors.Is(err, artifacts.ErrNotFound):
		s.writeError(w, http.StatusNotFound, notFoundMessage(typ, subtype))
		return
	case err != nil:
		s.writeServiceError(w, err)
		return
	}

	file, err := os.Open(path)
	if err != nil {
		s.writeError(w, http.StatusNotFound, notFoundMessage(typ, subtype))
		return
	}
	defer file.Close()
	info, err := file.Stat()
	if err != nil {
		s.logger.Error("stat artifact failed", logging.Error(err))
		s.writeError(w, http.StatusInternalServerError, "failed to read artifact")
		return
	}

	name := downloadName(job.Method, typ, subtype)
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": name}))
	http.ServeContent(w, r, name, info.ModTime(), file)
}

// downloadName returns the attachment filename clients save the artifact as.
func downloadName(method jobs.Method, typ artifacts.Type, subtype artifacts.Subtype) string {
	if method != jobs.MethodBoth {
		if typ == artifacts.TypeCSV {
			return "harp_predictions.csv"
		}
		return "harp_labeled.mp4"
	}
	switch {
	case subtype == artifacts.SubtypeCombined:
		return "harp_combined.mp4"
	case typ == artifacts.TypeCSV:
		return fmt.Sprintf("harp_%s_predictions.csv", subtype)
	default:
		return fmt.Sprintf("harp_%s_video.mp4", subtype)
	}
}

func notFoundMessage(typ artifacts.Type, subtype artifacts.Subtype) string {
	switch {
	case subtype == artifacts.SubtypeCombined:
		return "No combined video available"
	case typ == artifacts.TypeCSV:
		return "CSV not found"
	default:
		return "Video not found"
	}
}
