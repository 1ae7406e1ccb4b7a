package realtime

import (
	"context"
	"errors"
	"sync"

	"github.com/gorilla/websocket"
)

var (
	ErrRoomExists   = errors.New("room already exists")
	ErrRoomNotFound = errors.New("room not found")
)

// Manager owns all live rooms. It is the in-process transport provider the
// session lifecycle talks to: CreateRoom on start, CloseRoom on end.
type Manager struct {
	mu    sync.Mutex
	rooms map[string]*Room
	ctx   context.Context
}

func NewManager(ctx context.Context) *Manager {
	return &Manager{
		rooms: make(map[string]*Room),
		ctx:   ctx,
	}
}

// CreateRoom spins up the room's run loop. Creating a room that already
// exists returns ErrRoomExists so the caller can treat a re-start as
// idempotent.
func (m *Manager) CreateRoom(ctx context.Context, roomId string, slideCount int) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.rooms[roomId]; exists {
		return ErrRoomExists
	}

	room := newRoom(m.ctx, roomId, slideCount)
	m.rooms[roomId] = room
	go room.Run()
	return nil
}

// CloseRoom disconnects all participants and drops the room.
func (m *Manager) CloseRoom(ctx context.Context, roomId string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	room, exists := m.rooms[roomId]
	if !exists {
		return ErrRoomNotFound
	}

	room.close()
	delete(m.rooms, roomId)
	return nil
}

// Attach registers an upgraded websocket connection as a participant and
// starts its pumps. canPublish comes from the access token's grant.
func (m *Manager) Attach(roomId string, conn *websocket.Conn, identity string, canPublish bool) error {
	m.mu.Lock()
	room, exists := m.rooms[roomId]
	m.mu.Unlock()
	if !exists {
		return ErrRoomNotFound
	}

	client := newClient(room, conn, identity, canPublish)
	select {
	case room.register <- client:
	case <-room.shutdown:
		// CloseRoom won the race between the lookup and the handoff.
		return ErrRoomNotFound
	}

	go client.WritePump()
	go client.ReadPump()
	return nil
}
