package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ironsheep/anpr-parking/internal/source"
)

// Run ingests frames from src until ctx is cancelled or a non-looping
// source ends. Per-frame failures are logged and the loop moves on. src is
// always closed on return.
func (s *Service) Run(ctx context.Context, src source.FrameSource) error {
	defer func() {
		if err := src.Close(); err != nil {
			s.log.Warn().Err(err).Msg("Failed to close frame source")
		}
	}()

	s.log.Info().Bool("loop", s.cfg.Loop).Msg("Ingestion started")
	frames := 0
	for {
		if ctx.Err() != nil {
			s.log.Info().Int("frames", frames).Msg("Ingestion stopped")
			return nil
		}
		started := time.Now()

		frame, err := src.Next(ctx)
		switch {
		case errors.Is(err, source.ErrEndOfStream):
			if !s.cfg.Loop {
				s.log.Info().Int("frames", frames).Msg("Frame source exhausted")
				return nil
			}
			if err := src.Restart(); err != nil {
				return fmt.Errorf("failed to restart frame source: %w", err)
			}
			continue
		case ctx.Err() != nil:
			continue
		case err != nil:
			s.log.Warn().Err(err).Msg("Failed to read frame")
		default:
			frames++
			res, err := s.ProcessFrame(ctx, frame)
			if err != nil && ctx.Err() == nil {
				s.log.Error().Err(err).Int("frame", frames).Msg("Recognition cycle failed")
			}
			if res != nil {
				for _, ev := range res.Events {
					s.log.Info().
						Str("plate", ev.Plate).
						Str("status", string(ev.Status)).
						Str("spot", ev.SpotID).
						Msg("Plate event")
				}
			}
		}

		if wait := s.cfg.FrameInterval - time.Since(started); wait > 0 {
			select {
			case <-ctx.Done():
			case <-time.After(wait):
			}
		}
	}
}
