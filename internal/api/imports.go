package api

import (
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/MikeSquared-Agency/promptvault/internal/batch"
	"github.com/MikeSquared-Agency/promptvault/internal/importer"
	"github.com/MikeSquared-Agency/promptvault/internal/progress"
	"github.com/MikeSquared-Agency/promptvault/internal/prompt"
)

const multipartMemory = 32 << 20

type createImportResponse struct {
	SessionID string          `json:"sessionId"`
	Status    progress.Status `json:"status"`
	StreamURL string          `json:"streamUrl"`
}

// createImport handles POST /api/v1/imports with multipart "files" and
// optional platform, maxConcurrency, chunkSize, maxRetries and
// enableRecovery fields.
func (s *Server) createImport(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.deps.MaxUploadBytes)
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		writeError(w, badRequest("invalid multipart upload", err))
		return
	}
	defer r.MultipartForm.RemoveAll()

	headers := r.MultipartForm.File["files"]
	if len(headers) == 0 {
		writeError(w, badRequest("no files uploaded", nil))
		return
	}

	opts, apiErr := s.importOptions(r)
	if apiErr != nil {
		writeError(w, apiErr)
		return
	}

	files := make([]prompt.RawFile, 0, len(headers))
	for _, fh := range headers {
		f, err := fh.Open()
		if err != nil {
			writeError(w, badRequest("cannot read upload "+fh.Filename, err))
			return
		}
		data, err := io.ReadAll(f)
		f.Close()
		if err != nil {
			writeError(w, badRequest("cannot read upload "+fh.Filename, err))
			return
		}
		raw := prompt.NewRawFile(fh.Filename, data)
		raw.SizeBytes = max(raw.SizeBytes, fh.Size)
		files = append(files, raw)
	}

	id, err := s.deps.Importer.Start(r.Context(), importer.Request{
		UserID:   userFrom(r.Context()),
		Platform: r.FormValue("platform"),
		Files:    files,
		Options:  opts,
	})
	if err != nil {
		writeError(w, internalError("failed to start import", err))
		return
	}

	s.deps.Logger.Info("import accepted", "session_id", id, "files", len(files))
	writeJSON(w, http.StatusAccepted, createImportResponse{
		SessionID: id,
		Status:    progress.StatusPending,
		StreamURL: fmt.Sprintf("/api/v1/imports/%s/stream", id),
	})
}

func (s *Server) importOptions(r *http.Request) (batch.Options, *APIError) {
	opts := s.deps.Defaults
	if opts.MaxConcurrency == 0 {
		opts = batch.DefaultOptions()
	}
	ints := []struct {
		field string
		dst   *int
	}{
		{"maxConcurrency", &opts.MaxConcurrency},
		{"chunkSize", &opts.ChunkSize},
		{"maxRetries", &opts.MaxRetries},
	}
	for _, f := range ints {
		v := r.FormValue(f.field)
		if v == "" {
			continue
		}
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return opts, badRequest("invalid "+f.field, err)
		}
		*f.dst = n
	}
	if v := r.FormValue("enableRecovery"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return opts, badRequest("invalid enableRecovery", err)
		}
		opts.EnableRecovery = b
	}
	return opts, nil
}

// lookup returns the session if it exists and belongs to the caller.
func (s *Server) lookup(r *http.Request) (progress.Session, *APIError) {
	id := chi.URLParam(r, "id")
	sess, ok := s.deps.Tracker.Get(id)
	if !ok || sess.UserID != userFrom(r.Context()) {
		return progress.Session{}, notFound("import session", id)
	}
	return sess, nil
}

func (s *Server) getImport(w http.ResponseWriter, r *http.Request) {
	sess, apiErr := s.lookup(r)
	if apiErr != nil {
		writeError(w, apiErr)
		return
	}
	writeJSON(w, http.StatusOK, sess)
}
