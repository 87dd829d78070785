package handler

import (
	"context"
	"errors"
	"sync"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"timeline-editor/internal/session"
)

var ErrSessionNotFound = errors.New("editor session not found")

type hubEntry struct {
	s      *session.Session
	cancel context.CancelFunc
}

// Hub keeps the open editor sessions of this process. Sessions live in memory
// only; a project survives a restart once it has been saved.
type Hub struct {
	// Options are applied to every session the hub opens.
	Options func() []session.Option
	Log     logrus.FieldLogger

	mu       sync.RWMutex
	sessions map[uuid.UUID]hubEntry
}

func NewHub(log logrus.FieldLogger, options func() []session.Option) *Hub {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Hub{Options: options, Log: log, sessions: make(map[uuid.UUID]hubEntry)}
}

// Open creates a session and starts its background renderer.
func (h *Hub) Open(extra ...session.Option) *session.Session {
	var opts []session.Option
	if h.Options != nil {
		opts = append(opts, h.Options()...)
	}
	opts = append(opts, extra...)
	s := session.New(opts...)

	ctx, cancel := context.WithCancel(context.Background())
	if r := s.Renderer(); r != nil {
		go func() {
			if err := r.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				h.Log.WithError(err).WithField("session_id", s.ID()).Warn("renderer exited")
			}
		}()
	}

	h.mu.Lock()
	h.sessions[s.ID()] = hubEntry{s: s, cancel: cancel}
	n := len(h.sessions)
	h.mu.Unlock()
	h.Log.WithFields(logrus.Fields{"session_id": s.ID(), "open_sessions": n}).Info("session opened")
	return s
}

func (h *Hub) Get(id uuid.UUID) (*session.Session, error) {
	h.mu.RLock()
	e, ok := h.sessions[id]
	h.mu.RUnlock()
	if !ok {
		return nil, ErrSessionNotFound
	}
	return e.s, nil
}

// CloseSession stops and forgets one session.
func (h *Hub) CloseSession(id uuid.UUID) error {
	h.mu.Lock()
	e, ok := h.sessions[id]
	delete(h.sessions, id)
	h.mu.Unlock()
	if !ok {
		return ErrSessionNotFound
	}
	e.cancel()
	e.s.Close()
	return nil
}

func (h *Hub) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.sessions)
}

// Close stops every session. Used on shutdown.
func (h *Hub) Close() {
	h.mu.Lock()
	entries := h.sessions
	h.sessions = make(map[uuid.UUID]hubEntry)
	h.mu.Unlock()
	for _, e := range entries {
		e.cancel()
		e.s.Close()
	}
}
