package events

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	commsserver "github.com/nats-io/nats-server/v2/server"
	comms "github.com/nats-io/nats.go"
)

// startTestServer starts an in-process NATS server on a random port.
func startTestServer(t *testing.T) (*comms.Conn, func()) {
	t.Helper()

	opts := &commsserver.Options{
		Host:   "127.0.0.1",
		Port:   -1,
		NoLog:  true,
		NoSigs: true,
	}

	ns, err := commsserver.NewServer(opts)
	if err != nil {
		t.Fatalf("events:comms_publisher_integration_test - failed to create server: %v", err)
	}

	go ns.Start()
	if !ns.ReadyForConnections(10 * time.Second) {
		t.Fatal("events:comms_publisher_integration_test - server failed to start")
	}

	nc, err := comms.Connect(ns.ClientURL(), comms.Timeout(5*time.Second))
	if err != nil {
		ns.Shutdown()
		t.Fatalf("events:comms_publisher_integration_test - failed to connect: %v", err)
	}

	cleanup := func() {
		nc.Close()
		ns.Shutdown()
		ns.WaitForShutdown()
	}

	return nc, cleanup
}

func subscribeEvents(t *testing.T, nc *comms.Conn, subject string) chan *CommandExecutedEvent {
	t.Helper()
	received := make(chan *CommandExecutedEvent, 1)
	sub, err := nc.Subscribe(subject, func(msg *comms.Msg) {
		var event CommandExecutedEvent
		if err := json.Unmarshal(msg.Data, &event); err != nil {
			t.Errorf("events:comms_publisher_integration_test - failed to unmarshal: %v", err)
			return
		}
		received <- &event
	})
	if err != nil {
		t.Fatalf("events:comms_publisher_integration_test - failed to subscribe to %s: %v", subject, err)
	}
	t.Cleanup(func() { sub.Unsubscribe() })
	return received
}

func waitEvent(t *testing.T, ch chan *CommandExecutedEvent, what string) *CommandExecutedEvent {
	t.Helper()
	select {
	case got := <-ch:
		return got
	case <-time.After(5 * time.Second):
		t.Fatalf("events:comms_publisher_integration_test - timeout waiting for %s event", what)
		return nil
	}
}

func TestCommsPublisher_PublishExecuted_BothSubjects(t *testing.T) {
	nc, cleanup := startTestServer(t)
	defer cleanup()

	publisher := NewCommsPublisher(nc, nil)
	granular := subscribeEvents(t, nc, "ableton.bridge.executed.set_tempo")
	global := subscribeEvents(t, nc, "ableton.bridge.executed")

	event := &CommandExecutedEvent{
		ID:         "c-1",
		Command:    "set_tempo",
		Status:     "success",
		Path:       "executed",
		DurationMs: 4,
		Timestamp:  "2025-01-01T00:00:00Z",
	}
	if err := publisher.PublishExecuted(context.Background(), event); err != nil {
		t.Fatalf("events:comms_publisher_integration_test - PublishExecuted failed: %v", err)
	}
	nc.Flush()

	for name, ch := range map[string]chan *CommandExecutedEvent{"granular": granular, "global": global} {
		got := waitEvent(t, ch, name)
		if got.Command != "set_tempo" || got.ID != "c-1" {
			t.Errorf("events:comms_publisher_integration_test - %s event = %+v", name, got)
		}
	}
}

func TestCommsPublisher_CustomGlobalSubject(t *testing.T) {
	nc, cleanup := startTestServer(t)
	defer cleanup()

	customSubject := "studio.a.executed"
	publisher := NewCommsPublisher(nc, &CommsPublisherOpts{GlobalSubject: customSubject})
	received := subscribeEvents(t, nc, customSubject)
	granular := subscribeEvents(t, nc, customSubject+".stop_playback")

	err := publisher.PublishExecuted(context.Background(), &CommandExecutedEvent{ID: "c-2", Command: "stop_playback"})
	if err != nil {
		t.Fatalf("events:comms_publisher_integration_test - PublishExecuted failed: %v", err)
	}
	nc.Flush()

	if got := waitEvent(t, received, "custom subject"); got.Command != "stop_playback" {
		t.Errorf("events:comms_publisher_integration_test - Command = %q, want %q", got.Command, "stop_playback")
	}
	if got := waitEvent(t, granular, "custom per-command subject"); got.ID != "c-2" {
		t.Errorf("events:comms_publisher_integration_test - ID = %q, want %q", got.ID, "c-2")
	}
}

func TestCommsPublisher_Headers(t *testing.T) {
	nc, cleanup := startTestServer(t)
	defer cleanup()

	msgs := make(chan *comms.Msg, 1)
	sub, err := nc.ChanSubscribe("ableton.bridge.executed", msgs)
	if err != nil {
		t.Fatalf("events:comms_publisher_integration_test - subscribe failed: %v", err)
	}
	defer sub.Unsubscribe()

	publisher := NewCommsPublisher(nc, nil)
	event := &CommandExecutedEvent{ID: "c-4", Command: "fire_clip", Status: "error", ErrorKind: "HostError"}
	if err := publisher.PublishExecuted(context.Background(), event); err != nil {
		t.Fatalf("events:comms_publisher_integration_test - PublishExecuted failed: %v", err)
	}
	nc.Flush()

	select {
	case msg := <-msgs:
		want := map[string]string{
			"Nats-Msg-Id":    "c-4",
			"Bridge-Command": "fire_clip",
			"Bridge-Status":  "error",
		}
		for key, value := range want {
			if got := msg.Header.Get(key); got != value {
				t.Errorf("events:comms_publisher_integration_test - header %s = %q, want %q", key, got, value)
			}
		}
	case <-time.After(5 * time.Second):
		t.Fatal("events:comms_publisher_integration_test - timeout waiting for message")
	}
}

func TestCommsPublisher_ClosedConnection(t *testing.T) {
	nc, cleanup := startTestServer(t)
	defer cleanup()

	publisher := NewCommsPublisher(nc, nil)
	nc.Close()

	err := publisher.PublishExecuted(context.Background(), &CommandExecutedEvent{ID: "c-5", Command: "set_tempo"})
	if err == nil {
		t.Fatal("events:comms_publisher_integration_test - expected error on a closed connection")
	}
	if !errors.Is(err, comms.ErrConnectionClosed) {
		t.Errorf("events:comms_publisher_integration_test - err = %v, want ErrConnectionClosed", err)
	}
}

func TestCommsPublisher_EventFieldsPreserved(t *testing.T) {
	nc, cleanup := startTestServer(t)
	defer cleanup()

	publisher := NewCommsPublisher(nc, nil)
	received := subscribeEvents(t, nc, "ableton.bridge.executed")

	event := &CommandExecutedEvent{
		ID:         "c-3",
		Command:    "set_tempo",
		Status:     "error",
		Path:       "rejected",
		ErrorKind:  "InvalidParams",
		Message:    "missing required parameter tempo (number)",
		Stubbed:    false,
		DurationMs: 0,
		Timestamp:  "2025-06-15T12:30:00Z",
	}
	if err := publisher.PublishExecuted(context.Background(), event); err != nil {
		t.Fatalf("events:comms_publisher_integration_test - PublishExecuted failed: %v", err)
	}
	nc.Flush()

	got := waitEvent(t, received, "global")
	if *got != *event {
		t.Errorf("events:comms_publisher_integration_test - got %+v, want %+v", got, event)
	}
}

func TestNewCommsPublisher_DefaultSubject(t *testing.T) {
	nc, cleanup := startTestServer(t)
	defer cleanup()

	for _, opts := range []*CommsPublisherOpts{nil, {GlobalSubject: ""}} {
		publisher := NewCommsPublisher(nc, opts)
		if publisher.globalSubject != "ableton.bridge.executed" {
			t.Errorf("events:comms_publisher_integration_test - globalSubject = %q, want %q",
				publisher.globalSubject, "ableton.bridge.executed")
		}
	}
}
