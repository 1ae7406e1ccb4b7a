package realtime

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"
)

func TestManagerCreateRoomIdempotency(t *testing.T) {
	m := NewManager(context.Background())

	if err := m.CreateRoom(context.Background(), "room-1", 3); err != nil {
		t.Fatalf("first create failed: %v", err)
	}
	if err := m.CreateRoom(context.Background(), "room-1", 3); !errors.Is(err, ErrRoomExists) {
		t.Fatalf("expected ErrRoomExists, got %v", err)
	}

	if err := m.CloseRoom(context.Background(), "room-1"); err != nil {
		t.Fatalf("close failed: %v", err)
	}
	if err := m.CloseRoom(context.Background(), "room-1"); !errors.Is(err, ErrRoomNotFound) {
		t.Fatalf("expected ErrRoomNotFound, got %v", err)
	}

	// Closed room id can be reused.
	if err := m.CreateRoom(context.Background(), "room-1", 3); err != nil {
		t.Fatalf("recreate failed: %v", err)
	}
}

func TestCloseRoomReleasesParticipants(t *testing.T) {
	m := NewManager(context.Background())
	if err := m.CreateRoom(context.Background(), "room-1", 3); err != nil {
		t.Fatalf("create failed: %v", err)
	}
	room := m.rooms["room-1"]

	client := newClient(room, nil, "viewer", false)
	room.register <- client

	if err := m.CloseRoom(context.Background(), "room-1"); err != nil {
		t.Fatalf("close failed: %v", err)
	}

	// The read pump's teardown must complete even though the run loop is gone.
	done := make(chan struct{})
	go func() {
		client.leave()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("leaving a closed room blocked")
	}
}

func TestAttachRacingRoomClose(t *testing.T) {
	m := NewManager(context.Background())
	if err := m.CreateRoom(context.Background(), "room-1", 3); err != nil {
		t.Fatalf("create failed: %v", err)
	}

	// Shut the room down directly, as if CloseRoom ran between Attach's map
	// lookup and the register handoff.
	m.rooms["room-1"].close()

	done := make(chan error, 1)
	go func() {
		done <- m.Attach("room-1", nil, "viewer", false)
	}()
	select {
	case err := <-done:
		if !errors.Is(err, ErrRoomNotFound) {
			t.Fatalf("expected ErrRoomNotFound, got %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("attach to a closed room blocked")
	}
}

func TestRoomAssignsMonotonicSequence(t *testing.T) {
	r := newRoom(context.Background(), "room-1", 5)

	for i := 0; i < 3; i++ {
		r.handleInbound(inbound{data: []byte(fmt.Sprintf(`{"type":"slide","slideIndex":%d}`, i))})
	}

	snapshot, ok := r.slides.Snapshot()
	if !ok {
		t.Fatal("expected a snapshot after slide events")
	}
	if snapshot.Seq != 3 {
		t.Fatalf("expected seq 3, got %d", snapshot.Seq)
	}
	if snapshot.SlideIndex != 2 {
		t.Fatalf("expected snapshot on slide 2, got %d", snapshot.SlideIndex)
	}
}

func TestRoomDropsMalformedFrames(t *testing.T) {
	r := newRoom(context.Background(), "room-1", 3)

	r.handleInbound(inbound{data: []byte(`{"type":"slide","slideIndex":1}`)})

	malformed := [][]byte{
		[]byte(`not json`),
		[]byte(`{"type":"slide"}`),
		[]byte(`{"type":"slide","slideIndex":-4}`),
		[]byte(`{"type":"slide","slideIndex":17}`),
	}
	for _, data := range malformed {
		r.handleInbound(inbound{data: data})
	}

	snapshot, ok := r.slides.Snapshot()
	if !ok {
		t.Fatal("expected snapshot to survive malformed frames")
	}
	if snapshot.SlideIndex != 1 || snapshot.Seq != 1 {
		t.Fatalf("malformed frames changed state: %+v", snapshot)
	}
}
