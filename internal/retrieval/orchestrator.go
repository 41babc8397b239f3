// Package retrieval keeps the shared vector index in step with the active
// conversation and answers ranking queries against it.
package retrieval

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/hyperjump/tanya/internal/models"
	"github.com/hyperjump/tanya/pkg/utils"
)

// Index is the chunk index the orchestrator drives. *vector.ChunkIndex implements it.
type Index interface {
	Clear()
	Add(ctx context.Context, chunks []models.Chunk) error
	Search(ctx context.Context, query string, topK int) ([]models.Chunk, error)
	Size() int
}

// State reports which conversation, if any, the index currently mirrors.
type State struct {
	Indexed        bool   `json:"indexed"`
	ConversationID string `json:"conversation_id,omitempty"`
	Chunks         int    `json:"chunks"`
}

// Orchestrator owns the active-conversation state of one index. It is either
// unindexed or indexed for exactly one conversation; switching conversations
// clears and rebuilds the index before any query runs against it.
type Orchestrator struct {
	index    Index
	logger   *zap.Logger
	mu       sync.Mutex
	indexed  bool
	activeID string
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithLogger sets the logger used when retrieval degrades to an empty result.
func WithLogger(l *zap.Logger) Option {
	return func(o *Orchestrator) { o.logger = utils.OrNop(l) }
}

// New returns an unindexed orchestrator over index.
func New(index Index, opts ...Option) *Orchestrator {
	o := &Orchestrator{index: index, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Activate makes the index mirror conv. It does nothing when conv is already
// indexed; otherwise it clears the index, adds all of conv's chunks, and records
// conv as active. If adding fails the orchestrator is left unindexed.
func (o *Orchestrator) Activate(ctx context.Context, conv *models.Conversation) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.activateLocked(ctx, conv)
}

func (o *Orchestrator) activateLocked(ctx context.Context, conv *models.Conversation) error {
	if conv == nil {
		return fmt.Errorf("no conversation to activate")
	}
	if o.indexed && o.activeID == conv.ID {
		return nil
	}
	o.index.Clear()
	o.indexed = false
	o.activeID = ""
	if len(conv.Context.Chunks) > 0 {
		if err := o.index.Add(ctx, conv.Context.Chunks); err != nil {
			return fmt.Errorf("failed to index conversation %s: %w", conv.ID, err)
		}
	}
	o.indexed = true
	o.activeID = conv.ID
	o.logger.Debug("index switched", zap.String("conversation", conv.ID), zap.Int("chunks", len(conv.Context.Chunks)))
	return nil
}

// Append adds newly ingested chunks when id is the indexed conversation. For any
// other conversation it does nothing: the chunks are picked up from the
// conversation's context on its next activation. A failed add leaves the
// orchestrator unindexed so the next activation rebuilds from scratch.
func (o *Orchestrator) Append(ctx context.Context, id string, chunks []models.Chunk) error {
	if len(chunks) == 0 {
		return nil
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	if !o.indexed || o.activeID != id {
		return nil
	}
	if err := o.index.Add(ctx, chunks); err != nil {
		o.index.Clear()
		o.indexed = false
		o.activeID = ""
		return fmt.Errorf("failed to index new chunks: %w", err)
	}
	return nil
}

// Search activates conv if needed and returns its top topK chunks for query.
// Activation and search happen under one lock so no query observes a
// half-rebuilt index.
func (o *Orchestrator) Search(ctx context.Context, conv *models.Conversation, query string, topK int) ([]models.Chunk, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if err := o.activateLocked(ctx, conv); err != nil {
		return nil, err
	}
	return o.index.Search(ctx, query, topK)
}

// Retrieve is Search with failures logged and degraded to an empty result.
func (o *Orchestrator) Retrieve(ctx context.Context, conv *models.Conversation, query string, topK int) []models.Chunk {
	chunks, err := o.Search(ctx, conv, query, topK)
	if err != nil {
		id := ""
		if conv != nil {
			id = conv.ID
		}
		o.logger.Warn("retrieval failed, continuing without context", zap.String("conversation", id), zap.Error(err))
		return []models.Chunk{}
	}
	return chunks
}

// Forget clears the index if it mirrors conversation id, e.g. after deletion.
func (o *Orchestrator) Forget(id string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.indexed && o.activeID == id {
		o.index.Clear()
		o.indexed = false
		o.activeID = ""
	}
}

// State returns the current index state.
func (o *Orchestrator) State() State {
	o.mu.Lock()
	defer o.mu.Unlock()
	return State{Indexed: o.indexed, ConversationID: o.activeID, Chunks: o.index.Size()}
}
