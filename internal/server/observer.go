package server

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/morezero/ableton-bridge/pkg/db"
	"github.com/morezero/ableton-bridge/pkg/dispatcher"
	"github.com/morezero/ableton-bridge/pkg/events"
)

const observerLogPrefix = "server:observer"

// observerTimeout bounds journal writes and event publishing per command.
const observerTimeout = 5 * time.Second

// observer journals and publishes every completed command. Failures are
// logged; they never affect the response already sent.
func (s *Server) observer() dispatcher.Observer {
	return dispatcher.ObserverFunc(func(ctx context.Context, rec *dispatcher.Record) {
		ctx, cancel := context.WithTimeout(ctx, observerTimeout)
		defer cancel()

		if s.journal != nil {
			if err := s.journal.Record(ctx, journalParams(rec)); err != nil {
				slog.Warn(fmt.Sprintf("%s - journal write for %s failed: %v", observerLogPrefix, rec.Command, err))
			}
		}
		if err := s.publisher.PublishExecuted(ctx, events.NewCommandExecutedEvent(rec)); err != nil {
			slog.Warn(fmt.Sprintf("%s - publish for %s failed: %v", observerLogPrefix, rec.Command, err))
		}
	})
}

func journalParams(rec *dispatcher.Record) db.RecordParams {
	p := db.RecordParams{
		CommandID:  rec.ID,
		Command:    rec.Command,
		Params:     rec.Params,
		Status:     rec.Response.Status,
		Path:       string(rec.Path),
		Duration:   rec.Duration,
		ReceivedAt: rec.ReceivedAt,
	}
	if rec.Response.Error != nil {
		p.ErrorKind = string(rec.Response.Error.Kind)
		p.Message = rec.Response.Error.Message
	}
	return p
}
