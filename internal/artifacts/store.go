// Package artifacts owns the per-job filesystem layout: uploaded inputs under
// the uploads root and detector outputs under the outputs root, both keyed by
// job id so concurrent jobs never share a path.
package artifacts

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"harp/internal/fileutil"
	"harp/internal/services"
	"harp/internal/textutil"
)

// Kind identifies an uploaded input file.
type Kind string

const (
	KindVideo   Kind = "video"
	KindModel   Kind = "model"
	KindWeights Kind = "weights"
)

// Type identifies a downloadable artifact format.
type Type string

const (
	TypeCSV   Type = "csv"
	TypeVideo Type = "video"
)

// Subtype identifies which pipeline produced an artifact.
type Subtype string

const (
	SubtypeAudio    Subtype = "audio"
	SubtypeHand     Subtype = "hand"
	SubtypeCombined Subtype = "combined"
)

// CombinedVideoName is the file the combiner writes inside a job's output root.
const CombinedVideoName = "video_combined.mp4"

var (
	// ErrNotFound is returned when an artifact was never produced for a job.
	ErrNotFound = fmt.Errorf("artifact %w", services.ErrNotFound)
	// ErrAmbiguous is returned when a subtype is required to pick between artifacts.
	ErrAmbiguous = fmt.Errorf("artifact type is ambiguous without a subtype: %w", services.ErrValidation)
	// ErrInvalidType is returned for unknown type/subtype combinations.
	ErrInvalidType = fmt.Errorf("unknown artifact type: %w", services.ErrValidation)
	// ErrInvalidJobID is returned for job ids that cannot be used as a directory name.
	ErrInvalidJobID = fmt.Errorf("invalid job id: %w", services.ErrValidation)
)

// Artifact is one produced output file.
type Artifact struct {
	Type    Type
	Subtype Subtype
	Path    string
}

// Store manages job directories and the index of produced artifacts.
type Store struct {
	uploadsDir string
	outputsDir string

	mu    sync.RWMutex
	index map[string][]Artifact
}

// NewStore creates the store roots if needed.
func NewStore(uploadsDir, outputsDir string) (*Store, error) {
	if strings.TrimSpace(uploadsDir) == "" || strings.TrimSpace(outputsDir) == "" {
		return nil, errors.New("artifact store requires uploads and outputs directories")
	}
	for _, dir := range []string{uploadsDir, outputsDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create artifact root %q: %w", dir, err)
		}
	}
	return &Store{
		uploadsDir: uploadsDir,
		outputsDir: outputsDir,
		index:      make(map[string][]Artifact),
	}, nil
}

// Save streams an uploaded input into the job's upload directory and returns
// the stored path. The client-supplied name is reduced to its base name.
func (s *Store) Save(jobID string, kind Kind, name string, r io.Reader) (string, error) {
	if err := validateJobID(jobID); err != nil {
		return "", err
	}
	switch kind {
	case KindVideo, KindModel, KindWeights:
	default:
		return "", fmt.Errorf("unknown input kind %q: %w", kind, services.ErrValidation)
	}
	dir := filepath.Join(s.uploadsDir, jobID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create upload dir: %w", err)
	}
	dst := filepath.Join(dir, string(kind)+"-"+sanitizeName(name, kind))
	if _, err := fileutil.WriteAtomic(dst, r, 0o644); err != nil {
		return "", fmt.Errorf("save %s: %w", kind, err)
	}
	return dst, nil
}

// OutputDir returns (and creates) the directory a pipeline side writes into.
func (s *Store) OutputDir(jobID string, subtype Subtype) (string, error) {
	if err := validateJobID(jobID); err != nil {
		return "", err
	}
	dir := filepath.Join(s.outputsDir, jobID)
	if subtype != SubtypeCombined {
		if subtype != SubtypeAudio && subtype != SubtypeHand {
			return "", ErrInvalidType
		}
		dir = filepath.Join(dir, string(subtype))
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create output dir: %w", err)
	}
	return dir, nil
}

// CombinedVideoPath returns where the combined video for a job is written.
func (s *Store) CombinedVideoPath(jobID string) (string, error) {
	dir, err := s.OutputDir(jobID, SubtypeCombined)
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, CombinedVideoName), nil
}

// Record registers a produced artifact. Re-recording the same type/subtype
// replaces the earlier path.
func (s *Store) Record(jobID string, artifact Artifact) error {
	if err := validateJobID(jobID); err != nil {
		return err
	}
	if !validPair(artifact.Type, artifact.Subtype) || artifact.Path == "" {
		return ErrInvalidType
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	list := s.index[jobID]
	for i := range list {
		if list[i].Type == artifact.Type && list[i].Subtype == artifact.Subtype {
			list[i].Path = artifact.Path
			return nil
		}
	}
	s.index[jobID] = append(list, artifact)
	return nil
}

// Resolve finds the path of a produced artifact. An empty subtype resolves
// only when the job produced exactly one artifact of that type. Files removed
// from disk after being recorded resolve as not found.
func (s *Store) Resolve(jobID string, typ Type, subtype Subtype) (string, error) {
	if typ != TypeCSV && typ != TypeVideo {
		return "", ErrInvalidType
	}
	if subtype != "" && !validPair(typ, subtype) {
		return "", ErrInvalidType
	}

	s.mu.RLock()
	var matches []Artifact
	for _, artifact := range s.index[jobID] {
		if artifact.Type != typ {
			continue
		}
		if subtype != "" && artifact.Subtype != subtype {
			continue
		}
		matches = append(matches, artifact)
	}
	s.mu.RUnlock()

	switch len(matches) {
	case 0:
		return "", ErrNotFound
	case 1:
	default:
		return "", ErrAmbiguous
	}
	if !fileutil.IsRegularFile(matches[0].Path) {
		return "", ErrNotFound
	}
	return matches[0].Path, nil
}

// List returns the artifacts recorded for a job.
func (s *Store) List(jobID string) []Artifact {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]Artifact(nil), s.index[jobID]...)
}

// Remove deletes every file and index entry for a job.
func (s *Store) Remove(jobID string) error {
	if err := validateJobID(jobID); err != nil {
		return err
	}
	s.mu.Lock()
	delete(s.index, jobID)
	s.mu.Unlock()

	var errs []error
	for _, root := range []string{s.uploadsDir, s.outputsDir} {
		if err := os.RemoveAll(filepath.Join(root, jobID)); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Sweep removes job directories last modified before cutoff, skipping ids in
// keep. It returns the removed job ids in sorted order. Directories left by a
// previous daemon run are swept the same way.
func (s *Store) Sweep(cutoff time.Time, keep map[string]struct{}) ([]string, error) {
	stale := make(map[string]struct{})
	for _, root := range []string{s.uploadsDir, s.outputsDir} {
		entries, err := os.ReadDir(root)
		if err != nil {
			return nil, fmt.Errorf("read artifact root: %w", err)
		}
		for _, entry := range entries {
			if !entry.IsDir() {
				continue
			}
			id := entry.Name()
			if _, ok := keep[id]; ok {
				continue
			}
			info, err := entry.Info()
			if err != nil || !info.ModTime().Before(cutoff) {
				continue
			}
			stale[id] = struct{}{}
		}
	}

	removed := make([]string, 0, len(stale))
	var errs []error
	for id := range stale {
		if err := s.Remove(id); err != nil {
			errs = append(errs, err)
			continue
		}
		removed = append(removed, id)
	}
	sort.Strings(removed)
	return removed, errors.Join(errs...)
}

func validPair(typ Type, subtype Subtype) bool {
	switch subtype {
	case SubtypeAudio, SubtypeHand:
		return typ == TypeCSV || typ == TypeVideo
	case SubtypeCombined:
		return typ == TypeVideo
	default:
		return false
	}
}

func validateJobID(jobID string) error {
	if jobID == "" || jobID == "." || jobID == ".." || strings.ContainsAny(jobID, `/\`) {
		return ErrInvalidJobID
	}
	return nil
}

func sanitizeName(name string, kind Kind) string {
	base := textutil.SanitizeFileName(filepath.Base(strings.TrimSpace(strings.ReplaceAll(name, `\`, "/"))))
	if base == "." || base == "-" || base == "" {
		switch kind {
		case KindModel:
			return "model.keras"
		case KindWeights:
			return "weights.pt"
		default:
			return "video.mp4"
		}
	}
	return base
}
