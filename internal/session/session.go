// Package session serves one user's conversations: ingestion into a
// conversation's context, question answering against the active index, and
// conversation lifecycle. A Registry keeps sessions partitioned by email so no
// index or conversation map is shared between users.
package session

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"go.uber.org/zap"

	"github.com/hyperjump/tanya/internal/answer"
	"github.com/hyperjump/tanya/internal/contextmgr"
	"github.com/hyperjump/tanya/internal/indexer"
	"github.com/hyperjump/tanya/internal/keyword"
	"github.com/hyperjump/tanya/internal/models"
	"github.com/hyperjump/tanya/internal/retrieval"
)

// Apology is the answer given when the answer generator fails.
const Apology = "Sorry, I could not generate an answer right now. Please try again."

var (
	// ErrNotFound is returned for unknown conversation ids.
	ErrNotFound = errors.New("conversation not found")
	// ErrInvalidEmail is returned for a blank user email.
	ErrInvalidEmail = errors.New("email is required")
)

// Index is the per-user chunk index a session drives.
type Index interface {
	retrieval.Index
	Close() error
}

// Deps are the collaborators shared by all sessions. Only stateless or
// internally synchronized values belong here; per-user state is created by
// NewIndex.
type Deps struct {
	Manager   *contextmgr.Manager
	Indexer   *indexer.Indexer
	Generator answer.Generator
	NewIndex  func() (Index, error)
	TopK      int
	Logger    *zap.Logger

	// MaxSessions bounds the Registry; DefaultMaxSessions when zero.
	MaxSessions int
}

// Session is one user's working state. All methods are safe for concurrent use
// and run one at a time.
type Session struct {
	mu      sync.Mutex
	deps    Deps
	logger  *zap.Logger
	profile *models.UserProfile
	index   Index
	orch    *retrieval.Orchestrator
	chats   *keyword.ChatIndex
	tables  map[string][]models.TableDescriptor
	images  map[string][]models.ImageAttachment
}

func newSession(ctx context.Context, deps Deps, email string) (*Session, error) {
	logger := deps.Logger.With(zap.String("email", email))
	index, err := deps.NewIndex()
	if err != nil {
		return nil, fmt.Errorf("create index: %w", err)
	}
	chats, err := keyword.NewChatIndex()
	if err != nil {
		_ = index.Close()
		return nil, err
	}
	s := &Session{
		deps:    deps,
		logger:  logger,
		profile: deps.Manager.LoadProfile(ctx, email),
		index:   index,
		orch:    retrieval.New(index, retrieval.WithLogger(logger)),
		chats:   chats,
		tables:  make(map[string][]models.TableDescriptor),
		images:  make(map[string][]models.ImageAttachment),
	}
	for _, conv := range s.profile.Conversations {
		s.reindexChat(ctx, conv)
	}
	return s, nil
}

// Email returns the session owner's email.
func (s *Session) Email() string {
	return s.profile.Email
}

// List returns conversation summaries, newest first.
func (s *Session) List() []models.ConversationSummary {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.ConversationSummary, 0, len(s.profile.Conversations))
	for _, conv := range s.profile.Conversations {
		out = append(out, conv.Summary())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	return out
}

// Get returns a copy of conversation id.
func (s *Session) Get(id string) (*models.Conversation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	conv, ok := s.profile.Conversations[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return conv.Clone(), nil
}

// New creates an empty conversation and persists the profile.
func (s *Session) New(ctx context.Context) models.ConversationSummary {
	s.mu.Lock()
	defer s.mu.Unlock()
	conv := s.deps.Manager.NewConversation(s.profile.Conversations)
	s.reindexChat(ctx, conv)
	s.deps.Manager.SaveProfile(ctx, s.profile)
	s.logger.Info("conversation created", zap.String("conversation", conv.ID))
	return conv.Summary()
}

// Delete removes conversation id, drops it from the index if it was active,
// and persists the profile.
func (s *Session) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !contextmgr.DeleteConversation(s.profile.Conversations, id) {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	s.orch.Forget(id)
	if err := s.chats.Delete(ctx, id); err != nil {
		s.logger.Warn("failed to drop conversation from chat index", zap.String("conversation", id), zap.Error(err))
	}
	delete(s.tables, id)
	delete(s.images, id)
	s.deps.Manager.SaveProfile(ctx, s.profile)
	s.logger.Info("conversation deleted", zap.String("conversation", id))
	return nil
}

// Upload ingests files into conversation id.
func (s *Session) Upload(ctx context.Context, id string, files []indexer.File) (*models.UploadReport, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.profile.Conversations[id]; !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return s.apply(ctx, id, s.deps.Indexer.IngestFiles(ctx, files)), nil
}

// AddLinks fetches urls into conversation id.
func (s *Session) AddLinks(ctx context.Context, id string, urls []string) (*models.UploadReport, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.profile.Conversations[id]; !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return s.apply(ctx, id, s.deps.Indexer.IngestLinks(ctx, urls)), nil
}

// apply appends an ingested batch to the conversation context first, then to
// the index if the conversation is active.
func (s *Session) apply(ctx context.Context, id string, b *indexer.Batch) *models.UploadReport {
	report := &models.UploadReport{ConversationID: id, Files: b.Reports, Added: len(b.Chunks)}
	if report.Files == nil {
		report.Files = []models.FileReport{}
	}
	s.tables[id] = append(s.tables[id], b.Tables...)
	s.images[id] = append(s.images[id], b.Images...)
	if len(b.Chunks) == 0 && len(b.Sources) == 0 {
		return report
	}
	contextmgr.AppendContext(id, b.Chunks, b.Sources, s.profile.Conversations)
	if err := s.orch.Append(ctx, id, b.Chunks); err != nil {
		s.logger.Warn("index append failed; conversation will be reindexed on next question",
			zap.String("conversation", id), zap.Error(err))
	}
	s.reindexChat(ctx, s.profile.Conversations[id])
	s.deps.Manager.SaveProfile(ctx, s.profile)
	s.logger.Info("context updated", zap.String("conversation", id),
		zap.Int("chunks", len(b.Chunks)), zap.Strings("sources", b.Sources))
	return report
}

// Ask answers a question from conversation id's context and records the
// exchange. Retrieval failures degrade to no evidence; generator failures to
// the Apology answer.
func (s *Session) Ask(ctx context.Context, id string, req models.AskRequest) (*models.AskResponse, error) {
	if req.TopK <= 0 {
		req.TopK = s.deps.TopK
	}
	if err := req.Validate(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	conv, ok := s.profile.Conversations[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}

	chunks := s.orch.Retrieve(ctx, conv, req.Question, req.TopK)
	resp := &models.AskResponse{
		ConversationID: id,
		Question:       req.Question,
		Chunks:         chunks,
		Sources:        chunkSources(chunks),
	}
	text, err := s.deps.Generator.Answer(ctx, answer.Request{
		Question: req.Question,
		Chunks:   chunks,
		Tables:   s.tables[id],
		Images:   s.images[id],
	})
	if err != nil {
		s.logger.Warn("answer generation failed", zap.String("conversation", id),
			zap.String("generator", s.deps.Generator.Name()), zap.Error(err))
		text = Apology
		resp.Degraded = true
	}
	resp.Answer = text

	contextmgr.RecordExchange(conv, req.Question, text, resp.Sources)
	s.reindexChat(ctx, conv)
	s.deps.Manager.SaveProfile(ctx, s.profile)
	return resp, nil
}

// Preview ranks conversation id's context against query without touching the
// shared index.
func (s *Session) Preview(ctx context.Context, id, query string, topK int) ([]models.Chunk, error) {
	if topK <= 0 {
		topK = s.deps.TopK
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.profile.Conversations[id]; !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return s.deps.Manager.RetrieveContext(ctx, id, query, s.profile.Conversations, topK), nil
}

// FindResult is the outcome of a chat search.
type FindResult struct {
	Query         string                       `json:"query"`
	Conversations []models.ConversationSummary `json:"conversations"`
	// Suggestion is a corrected query when some terms are unknown.
	Suggestion string `json:"suggestion,omitempty"`
}

// Find searches conversation titles, transcripts and sources. When the exact
// search finds nothing it retries with fuzzy matching.
func (s *Session) Find(ctx context.Context, query string, limit int) (*FindResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	hits, err := s.chats.Search(ctx, query, limit, nil)
	if err != nil {
		return nil, err
	}
	res := &FindResult{Query: query, Conversations: []models.ConversationSummary{}}
	if len(hits) == 0 {
		if res.Suggestion, err = s.chats.Suggest(query); err != nil {
			s.logger.Debug("no chat search suggestion", zap.Error(err))
		}
		if hits, err = s.chats.Search(ctx, query, limit, &keyword.SearchOptions{Fuzzy: true}); err != nil {
			return nil, err
		}
	}
	for _, h := range hits {
		if conv, ok := s.profile.Conversations[h.ID]; ok {
			res.Conversations = append(res.Conversations, conv.Summary())
		}
	}
	return res, nil
}

// State reports what the session's index currently mirrors.
func (s *Session) State() retrieval.State {
	return s.orch.State()
}

// Close releases the session's indexes.
func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return errors.Join(s.index.Close(), s.chats.Close())
}

func (s *Session) reindexChat(ctx context.Context, conv *models.Conversation) {
	if err := s.chats.Index(ctx, conv.ID, keyword.DocumentFor(conv)); err != nil {
		s.logger.Warn("failed to index conversation for search", zap.String("conversation", conv.ID), zap.Error(err))
	}
}

// chunkSources returns the distinct sources of chunks in rank order.
func chunkSources(chunks []models.Chunk) []string {
	out := []string{}
	seen := make(map[string]bool)
	for _, c := range chunks {
		if !seen[c.Source] {
			seen[c.Source] = true
			out = append(out, c.Source)
		}
	}
	return out
}
