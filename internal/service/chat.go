package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/raphaelgruber/sitechat/internal/models"
	"github.com/raphaelgruber/sitechat/internal/store"
)

const sessionsCollection = "sessions"

var (
	// ErrSessionNotFound means no session has the requested ID.
	ErrSessionNotFound = errors.New("session not found")

	// ErrSessionClient means a session is reused under a different client.
	ErrSessionClient = errors.New("session belongs to another client")
)

// ChatRequest is one user message. ConversationHistory, when given,
// replaces the stored transcript as the model's history.
type ChatRequest struct {
	Message             string               `json:"message" validate:"required,max=4000"`
	SessionID           string               `json:"session_id,omitempty" validate:"omitempty,max=128"`
	ConversationHistory []models.ChatMessage `json:"conversation_history,omitempty" validate:"omitempty,dive"`
	ClientID            string               `json:"client_id,omitempty" validate:"omitempty,max=128"`
}

// ChatResponse is an Answer bound to its session.
type ChatResponse struct {
	Answer
	SessionID string    `json:"session_id"`
	Timestamp time.Time `json:"timestamp"`
}

// ChatService runs conversations and keeps their transcripts.
type ChatService struct {
	search *SearchService
	store  store.Store
	log    *slog.Logger

	// locks serialises exchanges on the same session so none is lost
	// between loading and saving the transcript.
	mu    sync.Mutex
	locks map[string]*sessionLock
}

type sessionLock struct {
	sync.Mutex
	refs int
}

// NewChatService creates a chat service.
func NewChatService(search *SearchService, st store.Store, log *slog.Logger) *ChatService {
	if log == nil {
		log = slog.Default()
	}
	return &ChatService{search: search, store: st, log: log, locks: make(map[string]*sessionLock)}
}

// lockSession blocks until the caller holds id and returns the release func.
func (c *ChatService) lockSession(id string) func() {
	c.mu.Lock()
	l, ok := c.locks[id]
	if !ok {
		l = &sessionLock{}
		c.locks[id] = l
	}
	l.refs++
	c.mu.Unlock()

	l.Lock()
	return func() {
		l.Unlock()
		c.mu.Lock()
		if l.refs--; l.refs == 0 {
			delete(c.locks, id)
		}
		c.mu.Unlock()
	}
}

// Chat answers req.Message and appends the exchange to the session,
// creating one when req.SessionID is empty or unknown.
func (c *ChatService) Chat(ctx context.Context, req ChatRequest) (*ChatResponse, error) {
	if err := validateStruct(req); err != nil {
		return nil, err
	}

	id := req.SessionID
	if id == "" {
		id = uuid.NewString()
	}
	defer c.lockSession(id)()

	now := time.Now().UTC()
	session := &models.ChatSession{ID: id, ClientID: req.ClientID, CreatedAt: now}
	if req.SessionID != "" {
		existing, err := c.Session(ctx, req.SessionID)
		switch {
		case err == nil:
			if existing.ClientID != req.ClientID {
				return nil, fmt.Errorf("%w: %s", ErrSessionClient, req.SessionID)
			}
			session = existing
		case !errors.Is(err, ErrSessionNotFound):
			c.log.Warn("failed to load session, starting fresh", "session_id", req.SessionID, "error", err)
		}
	}

	history := req.ConversationHistory
	if len(history) == 0 {
		history = session.Messages
	}

	answer := c.search.Answer(ctx, AnswerRequest{
		Query:    req.Message,
		ClientID: req.ClientID,
		History:  history,
	})

	session.Messages = append(session.Messages,
		models.ChatMessage{Role: models.RoleUser, Content: req.Message, Timestamp: now},
		models.ChatMessage{Role: models.RoleAssistant, Content: answer.Text, Timestamp: time.Now().UTC()},
	)
	session.UpdatedAt = time.Now().UTC()
	if err := c.store.Upsert(ctx, sessionsCollection, session.ID, session); err != nil {
		c.log.Warn("failed to save session", "session_id", session.ID, "error", err)
	}

	return &ChatResponse{Answer: answer, SessionID: session.ID, Timestamp: session.UpdatedAt}, nil
}

// Session loads a stored transcript.
func (c *ChatService) Session(ctx context.Context, id string) (*models.ChatSession, error) {
	rec, err := c.store.FindOne(ctx, sessionsCollection, id)
	if errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}
	if err != nil {
		return nil, err
	}
	var s models.ChatSession
	if err := rec.Decode(&s); err != nil {
		return nil, err
	}
	return &s, nil
}

// Sessions lists a client's sessions, most recent first.
func (c *ChatService) Sessions(ctx context.Context, clientID string, limit int) ([]models.ChatSession, error) {
	var filter store.Filter
	if clientID != "" {
		filter = store.Filter{"client_id": clientID}
	}
	recs, err := c.store.Find(ctx, sessionsCollection, filter, limit)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	out := make([]models.ChatSession, 0, len(recs))
	for _, rec := range recs {
		var s models.ChatSession
		if err := rec.Decode(&s); err != nil {
			c.log.Warn("skipping unreadable session", "session_id", rec.ID, "error", err)
			continue
		}
		out = append(out, s)
	}
	return out, nil
}

// DeleteSessions removes every session of clientID and returns how many
// were removed.
func (c *ChatService) DeleteSessions(ctx context.Context, clientID string) (int, error) {
	if clientID == "" {
		return 0, fmt.Errorf("%w: client id is required", ErrInvalidRequest)
	}
	return c.store.DeleteMany(ctx, sessionsCollection, store.Filter{"client_id": clientID})
}
