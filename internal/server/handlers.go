package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"strconv"

	"github.com/go-playground/validator/v10"

	"ragcorpus/internal/domain"
	"ragcorpus/internal/service"
)

type errorBody struct {
	Error string `json:"error"`
}

type askRequest struct {
	Question string   `json:"question" validate:"required"`
	K        int      `json:"k" validate:"gte=0,lte=100"`
	Sites    []string `json:"sites"`
	Corpus   string   `json:"corpus"`
}

func (r askRequest) input() service.QueryInput {
	return service.QueryInput{Question: r.Question, K: r.K, Collection: r.Corpus, Domains: r.Sites}
}

type fetchURLRequest struct {
	URL    string `json:"url" validate:"required"`
	Corpus string `json:"corpus"`
}

type corpusRequest struct {
	ID   string `json:"id"`
	Name string `json:"name" validate:"required"`
}

type assignRequest struct {
	Corpus string `json:"corpus" validate:"required"`
}

type bulkRequest struct {
	IDs    []string `json:"ids" validate:"required,min=1,dive,required"`
	Corpus string   `json:"corpus"`
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

func (s *Server) handleListSources(w http.ResponseWriter, r *http.Request) {
	sources, err := s.svc.ListSources(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"sources": sources})
}

func (s *Server) handleListDocs(w http.ResponseWriter, r *http.Request) {
	sources, err := s.svc.ListSources(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"docs": sources})
}

func (s *Server) handleGetSource(w http.ResponseWriter, r *http.Request) {
	src, err := s.svc.GetSource(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"source": src})
}

func (s *Server) handleDeleteSource(w http.ResponseWriter, r *http.Request) {
	if err := s.svc.DeleteSource(r.Context(), r.PathValue("id")); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

func (s *Server) handleSourceFile(w http.ResponseWriter, r *http.Request) {
	rc, info, err := s.svc.OpenFile(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	defer rc.Close()

	h := w.Header()
	h.Set("Content-Type", info.MediaType)
	h.Set("Content-Disposition", mime.FormatMediaType("inline", map[string]string{"filename": info.Name}))
	if info.Size > 0 {
		h.Set("Content-Length", strconv.FormatInt(info.Size, 10))
	}
	if _, err := io.Copy(w, rc); err != nil {
		slog.Warn("File stream interrupted", "source_id", r.PathValue("id"), "error", err)
	}
}

func (s *Server) handleAssign(w http.ResponseWriter, r *http.Request) {
	var req assignRequest
	if !s.decode(w, r, &req) {
		return
	}
	src, err := s.svc.AssignCollection(r.Context(), r.PathValue("id"), req.Corpus)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"source": src})
}

func (s *Server) handleUnassign(w http.ResponseWriter, r *http.Request) {
	src, err := s.svc.UnassignCollection(r.Context(), r.PathValue("id"), r.PathValue("cid"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"source": src})
}

func (s *Server) handleBulkAssign(w http.ResponseWriter, r *http.Request) {
	var req bulkRequest
	if !s.decode(w, r, &req) {
		return
	}
	if req.Corpus == "" {
		writeError(w, domain.Validationf("corpus is required"))
		return
	}
	res, err := s.svc.BulkAssign(r.Context(), req.IDs, req.Corpus)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleBulkDelete(w http.ResponseWriter, r *http.Request) {
	var req bulkRequest
	if !s.decode(w, r, &req) {
		return
	}
	res, err := s.svc.BulkDelete(r.Context(), req.IDs)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.MaxUploadBytes)
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		writeError(w, domain.Validationf("invalid upload: %v", err))
		return
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, domain.Validationf("No file"))
		return
	}
	defer file.Close()
	data, err := io.ReadAll(file)
	if err != nil {
		writeError(w, fmt.Errorf("read upload: %w", err))
		return
	}

	src, err := s.svc.IngestDocument(r.Context(), service.UploadInput{
		Name:       header.Filename,
		Data:       data,
		MediaType:  header.Header.Get("Content-Type"),
		Collection: r.FormValue("corpus"),
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "source": src})
}

func (s *Server) handleFetchURL(w http.ResponseWriter, r *http.Request) {
	var req fetchURLRequest
	if !s.decode(w, r, &req) {
		return
	}
	src, err := s.svc.IngestURL(r.Context(), req.URL, req.Corpus)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "source": src})
}

func (s *Server) handleListCollections(w http.ResponseWriter, r *http.Request) {
	cols, err := s.svc.ListCollections(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"corpora": cols})
}

func (s *Server) handleCreateCollection(w http.ResponseWriter, r *http.Request) {
	var req corpusRequest
	if !s.decode(w, r, &req) {
		return
	}
	c, err := s.svc.CreateCollection(r.Context(), req.ID, req.Name)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"corpus": c})
}

func (s *Server) handleRenameCollection(w http.ResponseWriter, r *http.Request) {
	var req corpusRequest
	if !s.decode(w, r, &req) {
		return
	}
	c, err := s.svc.RenameCollection(r.Context(), r.PathValue("id"), req.Name)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"corpus": c})
}

func (s *Server) handleDeleteCollection(w http.ResponseWriter, r *http.Request) {
	if err := s.svc.DeleteCollection(r.Context(), r.PathValue("id")); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

func (s *Server) handleAsk(w http.ResponseWriter, r *http.Request) {
	var req askRequest
	if !s.decode(w, r, &req) {
		return
	}
	ans, err := s.svc.Ask(r.Context(), req.input())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ans)
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	var req askRequest
	if !s.decode(w, r, &req) {
		return
	}
	res, err := s.svc.Search(r.Context(), req.input())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// decode reads a JSON body into v and validates it. On failure it has
// already written the response.
func (s *Server) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 5<<20))
	if err := dec.Decode(v); err != nil {
		writeError(w, domain.Validationf("invalid JSON body: %v", err))
		return false
	}
	if err := s.validate.Struct(v); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			fe := verrs[0]
			err = domain.Validationf("field %s failed %s", fe.Field(), fe.Tag())
		}
		writeError(w, err)
		return false
	}
	return true
}

// statusFor maps domain errors to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrValidation), errors.Is(err, domain.ErrExtraction):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrAlreadyExists):
		return http.StatusConflict
	case errors.Is(err, domain.ErrProvider):
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}

func writeError(w http.ResponseWriter, err error) {
	status := statusFor(err)
	msg := err.Error()
	if status == http.StatusInternalServerError {
		slog.Error("Request failed", "error", err)
		msg = "internal error"
	}
	writeJSON(w, status, errorBody{Error: msg})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Warn("Encode response failed", "error", err)
	}
}
