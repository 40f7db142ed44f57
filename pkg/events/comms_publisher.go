package events

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	comms "github.com/nats-io/nats.go"

	"github.com/morezero/ableton-bridge/pkg/commsutil"
)

const commsPublisherLogPrefix = "events:comms_publisher"

// CommsPublisherOpts configures CommsPublisher. Nil or zero values use defaults.
type CommsPublisherOpts struct {
	// GlobalSubject overrides the executed event subject (COMMAND_EVENT_SUBJECT).
	// Per-command events go to GlobalSubject.<command>.
	GlobalSubject string
}

// CommsPublisher publishes executed events on NATS: once on the per-command
// subject and once on the global subject.
type CommsPublisher struct {
	nc            *comms.Conn
	globalSubject string
}

// NewCommsPublisher creates a new CommsPublisher. Pass nil for opts to use defaults.
func NewCommsPublisher(nc *comms.Conn, opts *CommsPublisherOpts) *CommsPublisher {
	globalSubject := commsutil.SubjectExecuted
	if opts != nil && opts.GlobalSubject != "" {
		globalSubject = opts.GlobalSubject
	}
	return &CommsPublisher{nc: nc, globalSubject: globalSubject}
}

// PublishExecuted publishes event on both subjects. A failure on one subject
// does not skip the other; the errors are joined.
func (p *CommsPublisher) PublishExecuted(_ context.Context, event *CommandExecutedEvent) error {
	data, err := commsutil.EncodePayload(event)
	if err != nil {
		return fmt.Errorf("%s - failed to encode event: %w", commsPublisherLogPrefix, err)
	}

	var errs []error
	for _, subject := range []string{commsutil.BuildExecutedSubject(p.globalSubject, event.Command), p.globalSubject} {
		if err := p.nc.PublishMsg(newEventMsg(subject, event, data)); err != nil {
			slog.Error(fmt.Sprintf("%s - failed to publish to %s: %v", commsPublisherLogPrefix, subject, err))
			errs = append(errs, fmt.Errorf("%s: %w", subject, err))
		}
	}
	if len(errs) > 0 {
		return errors.Join(errs...)
	}

	slog.Debug(fmt.Sprintf("%s - Published %s event for %s (%s)", commsPublisherLogPrefix, event.Status, event.Command, event.ID))
	return nil
}

// newEventMsg wraps an encoded event with headers that let subscribers filter
// without decoding the body.
func newEventMsg(subject string, event *CommandExecutedEvent, data []byte) *comms.Msg {
	msg := comms.NewMsg(subject)
	msg.Data = data
	if event.ID != "" {
		msg.Header.Set(commsutil.HeaderMsgID, event.ID)
	}
	msg.Header.Set(commsutil.HeaderCommand, event.Command)
	msg.Header.Set(commsutil.HeaderStatus, event.Status)
	return msg
}
