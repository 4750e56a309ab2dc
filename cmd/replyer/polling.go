package main

import (
	"context"
	"fmt"
	"time"

	"github.com/moskvenov/replyer/botapi"
)

const pollRetryDelay = 5 * time.Second

// Long-polls the Bot API and hands every update to the dispatcher, until ctx is cancelled.
func (s *Server) RunPolling(ctx context.Context) error {
	// a webhook left over from a previous deployment makes getUpdates fail.
	// the backlog queued while the bot was down is dropped rather than relayed in a burst
	if err := s.client.DeleteWebhook(ctx, true); err != nil {
		return fmt.Errorf("removing webhook before polling: %w", err)
	}
	s.logger.Info("starting long polling")

	var offset int64
	for {
		if ctx.Err() != nil {
			return nil
		}
		updates, err := s.client.GetUpdates(ctx, offset, botapi.LongPollTimeout)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			pollErrors.Inc()
			s.logger.Warn("polling for updates failed", "err", err)
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(pollRetryDelay):
			}
			continue
		}
		for _, upd := range updates {
			offset = upd.UpdateID + 1
			updatesReceived.WithLabelValues("polling").Inc()
			if err := s.dispatcher.Submit(ctx, upd); err != nil {
				// only fails once shutting down
				return nil
			}
		}
	}
}
