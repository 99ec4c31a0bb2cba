// Package conversation exposes the operations callers consume: session
// lifecycle, history access and the generate-a-turn flow that couples the
// memory coordinator with the generation pipeline.
package conversation

import (
	"context"
	"log/slog"

	"github.com/antoniostano/scenegen/internal/chat"
	"github.com/antoniostano/scenegen/internal/generate"
	"github.com/antoniostano/scenegen/internal/memory"
	"github.com/antoniostano/scenegen/internal/store"
)

type Service struct {
	store    store.Store
	coord    *memory.Coordinator
	pipeline *generate.Pipeline
	log      *slog.Logger
}

func NewService(st store.Store, coord *memory.Coordinator, pipeline *generate.Pipeline, log *slog.Logger) *Service {
	if log == nil {
		log = slog.Default()
	}
	return &Service{store: st, coord: coord, pipeline: pipeline, log: log}
}

func (s *Service) CreateSession(ctx context.Context, userID, name string) (chat.Session, error) {
	return s.store.CreateSession(ctx, userID, name)
}

func (s *Service) ListSessions(ctx context.Context, userID string) ([]chat.Session, error) {
	return s.store.ListSessions(ctx, userID)
}

// DeleteSession destroys the session, its durable turns and its cached
// window. The cache is cleared first so a reconciliation pass cannot
// resurrect the session from a stale window.
func (s *Service) DeleteSession(ctx context.Context, sessionID, userID string) error {
	if err := s.coord.ClearSession(ctx, sessionID, userID); err != nil {
		return err
	}
	return s.store.DeleteSession(ctx, sessionID, userID)
}

func (s *Service) History(ctx context.Context, sessionID, userID string) ([]chat.Turn, error) {
	return s.coord.LoadHistory(ctx, sessionID, userID)
}

func (s *Service) ClearSession(ctx context.Context, sessionID, userID string) error {
	return s.coord.ClearSession(ctx, sessionID, userID)
}

// Generate runs one conversational turn through the pipeline: ownership
// gate, load history, generate/validate/render with bounded correction,
// then write both sides of the exchange through to cache and durable log.
// An exhausted pipeline still records nothing: only a successful exchange
// becomes part of the conversation.
func (s *Service) Generate(ctx context.Context, sessionID, userID, concept string, onProgress generate.Progress) (generate.Result, error) {
	if _, err := s.store.GetSession(ctx, sessionID, userID); err != nil {
		return generate.Result{}, err
	}

	history, err := s.coord.LoadHistory(ctx, sessionID, userID)
	if err != nil {
		return generate.Result{}, err
	}

	res, err := s.pipeline.Run(ctx, history, concept, onProgress)
	if err != nil {
		return res, err
	}
	if !res.Success {
		return res, nil
	}

	if _, err := s.coord.SaveTurn(ctx, sessionID, userID, chat.RoleHuman, concept); err != nil {
		return res, err
	}
	if _, err := s.coord.SaveTurn(ctx, sessionID, userID, chat.RoleAI, res.Script); err != nil {
		return res, err
	}
	return res, nil
}
