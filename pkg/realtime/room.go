package realtime

import (
	"context"
	"encoding/json"

	"github.com/rs/zerolog"
)

type inbound struct {
	sender *Client
	data   []byte
}

// Room is the data-broadcast primitive backing a live session: every frame a
// publisher sends is fanned out to all connected participants. Slide events
// additionally get a room-assigned sequence number and are kept as the
// snapshot replayed to late joiners.
type Room struct {
	id         string
	slideCount int

	clients    map[*Client]bool
	register   chan *Client
	unregister chan *Client
	broadcast  chan inbound
	shutdown   chan struct{}

	seq    uint64
	slides SlideState

	ctx context.Context
}

func newRoom(ctx context.Context, id string, slideCount int) *Room {
	return &Room{
		id:         id,
		slideCount: slideCount,
		clients:    make(map[*Client]bool),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		broadcast:  make(chan inbound),
		shutdown:   make(chan struct{}),
		ctx:        ctx,
	}
}

func (r *Room) Run() {
	for {
		select {
		case <-r.shutdown:
			for client := range r.clients {
				close(client.send)
			}
			return

		case client := <-r.register:
			r.clients[client] = true
			if snapshot, ok := r.slides.Snapshot(); ok {
				if data, err := json.Marshal(snapshot); err == nil {
					client.queue(data)
				}
			}
			zerolog.Ctx(r.ctx).Info().Str("room", r.id).Str("identity", client.identity).Msg("participant joined room")

		case client := <-r.unregister:
			if _, ok := r.clients[client]; ok {
				delete(r.clients, client)
				close(client.send)
				zerolog.Ctx(r.ctx).Info().Str("room", r.id).Str("identity", client.identity).Msg("participant left room")
			}

		case msg := <-r.broadcast:
			r.handleInbound(msg)
		}
	}
}

func (r *Room) handleInbound(msg inbound) {
	var envelope struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(msg.data, &envelope); err != nil {
		zerolog.Ctx(r.ctx).Warn().Err(err).Str("room", r.id).Msg("dropping malformed frame")
		return
	}
	if envelope.Type != EventTypeSlide {
		// Not a slide event: forward as-is, the broadcast channel is generic.
		// The sender already has the frame, so it is skipped.
		r.broadcastExcept(msg.data, msg.sender)
		return
	}

	ev, err := DecodeSlideEvent(msg.data, r.slideCount)
	if err != nil {
		zerolog.Ctx(r.ctx).Warn().Err(err).Str("room", r.id).Msg("dropping malformed slide event")
		return
	}

	r.seq++
	ev.Seq = r.seq
	r.slides.Apply(ev)

	data, err := json.Marshal(ev)
	if err != nil {
		zerolog.Ctx(r.ctx).Error().Err(err).Str("room", r.id).Msg("failed to marshal slide event")
		return
	}
	r.broadcastToAll(data)
}

func (r *Room) broadcastToAll(message []byte) {
	r.broadcastExcept(message, nil)
}

func (r *Room) broadcastExcept(message []byte, skip *Client) {
	for client := range r.clients {
		if client == skip {
			continue
		}
		select {
		case client.send <- message:
		default:
			close(client.send)
			delete(r.clients, client)
		}
	}
}

func (r *Room) close() {
	select {
	case <-r.shutdown:
	default:
		close(r.shutdown)
	}
}
