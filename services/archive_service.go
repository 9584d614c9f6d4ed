package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/Dosada05/arena-tournaments/models"
	"github.com/Dosada05/arena-tournaments/repositories"
	"github.com/Dosada05/arena-tournaments/tourney"
)

// RoomHistory is one page of a room's archived tournaments.
type RoomHistory struct {
	Records []*models.TournamentRecord `json:"records"`
	Total   int                        `json:"total"`
	Limit   int                        `json:"limit"`
	Offset  int                        `json:"offset"`
}

// ArchiveService persists finished tournaments and serves the per-room
// history. It satisfies tourney.ResultSink.
type ArchiveService struct {
	records repositories.RecordRepository
	logger  *slog.Logger
}

func NewArchiveService(records repositories.RecordRepository, logger *slog.Logger) *ArchiveService {
	if logger == nil {
		logger = slog.Default()
	}
	return &ArchiveService{records: records, logger: logger}
}

// RecordTournament archives one finished tournament. Forced endings are
// stored without results.
func (s *ArchiveService) RecordTournament(ctx context.Context, res *tourney.Result) error {
	var results json.RawMessage
	if res.Results != nil {
		raw, err := json.Marshal(res.Results)
		if err != nil {
			return fmt.Errorf("failed to encode tournament results for room %s: %w", res.RoomID, err)
		}
		results = raw
	}

	record := &models.TournamentRecord{
		RoomID:      res.RoomID,
		Format:      res.Format,
		Generator:   res.Generator,
		PlayerCount: res.PlayerCount,
		Results:     results,
		Forced:      res.Forced,
		EndedAt:     res.EndedAt,
	}
	if err := s.records.Create(ctx, nil, record); err != nil {
		return err
	}
	s.logger.Info("tournament archived", "room", res.RoomID, "record", record.ID, "forced", res.Forced)
	return nil
}

// History returns one page of a room's archive, newest first.
func (s *ArchiveService) History(ctx context.Context, roomID string, limit, offset int) (*RoomHistory, error) {
	if limit <= 0 || limit > 100 || offset < 0 {
		return nil, ErrInvalidPage
	}

	history := &RoomHistory{Limit: limit, Offset: offset}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		records, err := s.records.ListByRoom(gctx, roomID, limit, offset)
		if err != nil {
			return err
		}
		history.Records = records
		return nil
	})
	g.Go(func() error {
		total, err := s.records.CountByRoom(gctx, roomID)
		if err != nil {
			return err
		}
		history.Total = total
		return nil
	})
	if err := g.Wait(); err != nil {
		if errors.Is(err, repositories.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	if history.Records == nil {
		history.Records = []*models.TournamentRecord{}
	}
	return history, nil
}
