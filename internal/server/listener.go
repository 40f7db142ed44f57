package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"

	"github.com/morezero/ableton-bridge/pkg/protocol"
)

const listenerLogPrefix = "server:listener"

// acceptLoop accepts connections until the listener closes. Each connection
// gets its own goroutine; all of them feed the one dispatcher.
func (s *Server) acceptLoop(ctx context.Context) {
	for {
		nc, err := s.listener.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) || ctx.Err() != nil {
				return
			}
			slog.Warn(fmt.Sprintf("%s - accept failed: %v", listenerLogPrefix, err))
			continue
		}

		conn := protocol.NewConn(nc, s.cfg.MaxMessageSize)
		if open := s.track(conn); open > 1 {
			slog.Warn(fmt.Sprintf("%s - %d connections open; only one client should drive the host session at a time (new client %s)",
				listenerLogPrefix, open, conn.RemoteAddr()))
		}
		s.connWG.Add(1)
		go func() {
			defer s.connWG.Done()
			defer s.untrack(conn)
			s.serveConn(ctx, conn)
		}()
	}
}

// serveConn answers commands in order until the peer closes or sends
// something unparseable. A ProtocolError is reported to the peer before the
// connection closes; a ConnectionError just closes it.
func (s *Server) serveConn(ctx context.Context, conn *protocol.Conn) {
	defer conn.Close()
	remote := conn.RemoteAddr()
	slog.Info(fmt.Sprintf("%s - Client connected from %s", listenerLogPrefix, remote))

	for {
		cmd, err := conn.Receive()
		if err != nil {
			if protocol.KindOf(err) == protocol.KindProtocol {
				slog.Warn(fmt.Sprintf("%s - protocol error from %s: %v", listenerLogPrefix, remote, err))
				if sendErr := conn.Send(protocol.FromError("", err)); sendErr != nil {
					slog.Debug(fmt.Sprintf("%s - could not report protocol error to %s: %v", listenerLogPrefix, remote, sendErr))
				}
			} else {
				slog.Info(fmt.Sprintf("%s - Client %s disconnected: %v", listenerLogPrefix, remote, err))
			}
			return
		}

		resp := s.disp.Dispatch(ctx, cmd)
		s.served.Add(1)
		err = conn.Send(resp)
		if protocol.KindOf(err) == protocol.KindProtocol {
			// Nothing was written; the result itself cannot be encoded.
			slog.Error(fmt.Sprintf("%s - result of %s cannot be encoded: %v", listenerLogPrefix, cmd.Name, err))
			err = conn.Send(protocol.Failure(resp.ID, protocol.KindHost,
				fmt.Sprintf("result of %s cannot be encoded as JSON", cmd.Name)))
		}
		if err != nil {
			slog.Warn(fmt.Sprintf("%s - failed to answer %s to %s: %v", listenerLogPrefix, cmd.Name, remote, err))
			return
		}
	}
}

func (s *Server) track(c *protocol.Conn) int {
	s.connMu.Lock()
	defer s.connMu.Unlock()
	s.conns[c] = struct{}{}
	return len(s.conns)
}

func (s *Server) untrack(c *protocol.Conn) {
	s.connMu.Lock()
	delete(s.conns, c)
	s.connMu.Unlock()
}

// Connections returns the number of open TCP connections.
func (s *Server) Connections() int {
	s.connMu.Lock()
	defer s.connMu.Unlock()
	return len(s.conns)
}
