package server

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/hyperjump/tanya/internal/indexer"
	"github.com/hyperjump/tanya/internal/models"
	"github.com/hyperjump/tanya/internal/session"
	"github.com/hyperjump/tanya/internal/storage"
)

const (
	defaultSearchLimit = 20
	maxSearchLimit     = 100
	multipartMemory    = 32 << 20
)

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	resp := map[string]interface{}{
		"sessions": s.sessions.Len(),
		"config": map[string]interface{}{
			"storage_backend":      s.config.Storage.Backend,
			"embedding_provider":   s.config.Embedding.Provider,
			"embedding_dimensions": s.config.Embedding.Dimensions,
			"vector_index_type":    s.config.Vector.IndexType,
			"chunk_size":           s.config.Retrieval.ChunkSize,
			"top_k":                s.config.Retrieval.TopK,
			"follow_links":         s.config.Retrieval.FollowLinksOrDefault(),
			"answer_provider":      s.config.Answer.Provider,
		},
	}
	if diskBytes, err := storage.DiskUsageBytes(s.store.Paths()...); err == nil {
		resp["disk_usage_bytes"] = diskBytes
	} else {
		s.logger.Warn("status: disk usage failed", zap.Error(err))
	}
	s.respondJSON(w, http.StatusOK, resp)
}

func (s *Server) handleListUsers(w http.ResponseWriter, r *http.Request) {
	emails, err := s.store.List(r.Context())
	if err != nil {
		s.logger.Error("list users failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]interface{}{"users": emails})
}

// session resolves the {email} path parameter, writing an error response and
// returning nil on failure.
func (s *Server) session(w http.ResponseWriter, r *http.Request) *session.Session {
	sess, err := s.sessions.Get(r.Context(), chi.URLParam(r, "email"))
	if err != nil {
		s.respondSessionError(w, err)
		return nil
	}
	return sess
}

func (s *Server) handleIndexState(w http.ResponseWriter, r *http.Request) {
	sess := s.session(w, r)
	if sess == nil {
		return
	}
	s.respondJSON(w, http.StatusOK, sess.State())
}

func (s *Server) handleListConversations(w http.ResponseWriter, r *http.Request) {
	sess := s.session(w, r)
	if sess == nil {
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]interface{}{"conversations": sess.List()})
}

func (s *Server) handleCreateConversation(w http.ResponseWriter, r *http.Request) {
	sess := s.session(w, r)
	if sess == nil {
		return
	}
	s.respondJSON(w, http.StatusCreated, sess.New(r.Context()))
}

func (s *Server) handleGetConversation(w http.ResponseWriter, r *http.Request) {
	sess := s.session(w, r)
	if sess == nil {
		return
	}
	conv, err := sess.Get(chi.URLParam(r, "id"))
	if err != nil {
		s.respondSessionError(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, conversationView{ID: conv.ID, Conversation: conv})
}

// conversationView adds the id, which is the map key in persisted records, to
// the JSON form of a conversation.
type conversationView struct {
	ID string `json:"id"`
	*models.Conversation
}

func (s *Server) handleDeleteConversation(w http.ResponseWriter, r *http.Request) {
	sess := s.session(w, r)
	if sess == nil {
		return
	}
	id := chi.URLParam(r, "id")
	s.logger.Debug("delete conversation request", zap.String("email", sess.Email()), zap.String("conversation", id))
	if err := sess.Delete(r.Context(), id); err != nil {
		s.respondSessionError(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

func (s *Server) handleUploadFiles(w http.ResponseWriter, r *http.Request) {
	sess := s.session(w, r)
	if sess == nil {
		return
	}
	if limit := s.config.Server.MaxUploadBytes; limit > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, limit)
	}
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			s.respondError(w, http.StatusRequestEntityTooLarge, "upload too large")
			return
		}
		s.respondError(w, http.StatusBadRequest, "invalid multipart form")
		return
	}
	defer func() { _ = r.MultipartForm.RemoveAll() }()

	var files []indexer.File
	for _, fh := range r.MultipartForm.File["files"] {
		f, err := fh.Open()
		if err != nil {
			s.respondError(w, http.StatusBadRequest, "cannot read "+fh.Filename)
			return
		}
		content, err := io.ReadAll(f)
		_ = f.Close()
		if err != nil {
			s.respondError(w, http.StatusBadRequest, "cannot read "+fh.Filename)
			return
		}
		files = append(files, indexer.File{Name: fh.Filename, Content: content})
	}
	if len(files) == 0 {
		s.respondError(w, http.StatusBadRequest, `no files in form field "files"`)
		return
	}
	report, err := sess.Upload(r.Context(), chi.URLParam(r, "id"), files)
	if err != nil {
		s.respondSessionError(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, report)
}

type linksRequest struct {
	URLs []string `json:"urls"`
}

func (s *Server) handleAddLinks(w http.ResponseWriter, r *http.Request) {
	sess := s.session(w, r)
	if sess == nil {
		return
	}
	var req linksRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if len(req.URLs) == 0 {
		s.respondError(w, http.StatusBadRequest, "urls is required")
		return
	}
	report, err := sess.AddLinks(r.Context(), chi.URLParam(r, "id"), req.URLs)
	if err != nil {
		s.respondSessionError(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, report)
}

func (s *Server) handleAsk(w http.ResponseWriter, r *http.Request) {
	sess := s.session(w, r)
	if sess == nil {
		return
	}
	var req models.AskRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	s.logger.Debug("ask request", zap.String("email", sess.Email()), zap.String("question", req.Question), zap.Int("top_k", req.TopK))
	resp, err := sess.Ask(r.Context(), chi.URLParam(r, "id"), req)
	if err != nil {
		s.respondSessionError(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, resp)
}

func (s *Server) handlePreviewContext(w http.ResponseWriter, r *http.Request) {
	sess := s.session(w, r)
	if sess == nil {
		return
	}
	query := r.URL.Query().Get("q")
	if query == "" {
		s.respondError(w, http.StatusBadRequest, "q is required")
		return
	}
	topK, _ := strconv.Atoi(r.URL.Query().Get("top_k"))
	chunks, err := sess.Preview(r.Context(), chi.URLParam(r, "id"), query, topK)
	if err != nil {
		s.respondSessionError(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]interface{}{"chunks": chunks})
}

func (s *Server) handleFindConversations(w http.ResponseWriter, r *http.Request) {
	sess := s.session(w, r)
	if sess == nil {
		return
	}
	query := r.URL.Query().Get("q")
	if query == "" {
		s.respondError(w, http.StatusBadRequest, "q is required")
		return
	}
	limit, err := strconv.Atoi(r.URL.Query().Get("limit"))
	if err != nil || limit <= 0 {
		limit = defaultSearchLimit
	}
	limit = min(limit, maxSearchLimit)
	res, err := sess.Find(r.Context(), query, limit)
	if err != nil {
		s.logger.Error("chat search failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.respondJSON(w, http.StatusOK, res)
}

func (s *Server) respondSessionError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, session.ErrNotFound):
		s.respondError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, session.ErrInvalidEmail), errors.Is(err, models.ErrEmptyQuestion):
		s.respondError(w, http.StatusBadRequest, err.Error())
	default:
		s.logger.Error("request failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
	}
}

func (s *Server) respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func (s *Server) respondError(w http.ResponseWriter, status int, message string) {
	s.respondJSON(w, status, map[string]string{"error": message})
}
