package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	comms "github.com/nats-io/nats.go"

	"github.com/morezero/ableton-bridge/pkg/commsutil"
	"github.com/morezero/ableton-bridge/pkg/protocol"
)

const commsLogPrefix = "server:comms"

// subscribeCommands serves command requests over NATS. A request on the base
// subject carries a full command envelope; a request on base.<command> carries
// only the params object. Both reply with a response envelope.
func (s *Server) subscribeCommands(ctx context.Context) error {
	base := s.cfg.CommandSubject
	if base == "" {
		base = commsutil.SubjectCommands
	}

	handler := func(msg *comms.Msg) {
		resp := s.handleCommsRequest(ctx, base, msg)
		data, err := json.Marshal(resp)
		if err != nil {
			slog.Error(fmt.Sprintf("%s - failed to encode response on %s: %v", commsLogPrefix, msg.Subject, err))
			data, _ = json.Marshal(protocol.Failure(resp.ID, protocol.KindHost, "result cannot be encoded as JSON"))
		}
		if err := msg.Respond(data); err != nil {
			slog.Warn(fmt.Sprintf("%s - failed to respond on %s: %v", commsLogPrefix, msg.Subject, err))
		}
	}

	for _, subject := range []string{base, base + ".*"} {
		sub, err := s.nc.Subscribe(subject, handler)
		if err != nil {
			for _, prev := range s.subs {
				prev.Unsubscribe()
			}
			s.subs = nil
			return fmt.Errorf("%s - failed to subscribe to %s: %w", commsLogPrefix, subject, err)
		}
		s.subs = append(s.subs, sub)
		slog.Info(fmt.Sprintf("%s - Subscribed to %s", commsLogPrefix, subject))
	}
	return s.nc.Flush()
}

func (s *Server) handleCommsRequest(ctx context.Context, base string, msg *comms.Msg) *protocol.Response {
	var cmd *protocol.Command
	if name := commsutil.CommandFromSubject(base, msg.Subject); name != "" {
		params, err := commsutil.DecodeParams(msg.Data)
		if errors.Is(err, commsutil.ErrNotObject) {
			return protocol.Failure("", protocol.KindInvalidParams, err.Error())
		}
		if err != nil {
			return protocol.Failure("", protocol.KindProtocol, fmt.Sprintf("invalid params of %q: %v", name, err))
		}
		cmd = &protocol.Command{Name: name, Params: params}
	} else {
		decoded, err := protocol.DecodeCommand(msg.Data)
		if err != nil {
			slog.Warn(fmt.Sprintf("%s - bad request on %s: %v", commsLogPrefix, msg.Subject, err))
			return protocol.FromError("", err)
		}
		cmd = decoded
	}
	return s.disp.Dispatch(ctx, cmd)
}
