package realtime

import (
	"encoding/json"
	"errors"
	"fmt"
)

const EventTypeSlide = "slide"

// SlideEvent is the one message type of the slide-sync protocol. Seq is
// assigned by the room, monotonically per room, so viewers can resolve
// out-of-order delivery without acknowledgments.
type SlideEvent struct {
	Type       string `json:"type"`
	SlideIndex int    `json:"slideIndex"`
	Seq        uint64 `json:"seq,omitempty"`
}

var (
	ErrNotSlideEvent     = errors.New("not a slide event")
	ErrMissingSlideIndex = errors.New("missing slide index")
	ErrSlideOutOfRange   = errors.New("slide index out of range")
)

// DecodeSlideEvent parses a raw frame into a SlideEvent and validates the
// index against the deck size. slideCount <= 0 means the deck size is unknown
// and only negative indexes are rejected.
func DecodeSlideEvent(data []byte, slideCount int) (SlideEvent, error) {
	var raw struct {
		Type       string `json:"type"`
		SlideIndex *int   `json:"slideIndex"`
		Seq        uint64 `json:"seq"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return SlideEvent{}, err
	}
	if raw.Type != EventTypeSlide {
		return SlideEvent{}, ErrNotSlideEvent
	}
	if raw.SlideIndex == nil {
		return SlideEvent{}, ErrMissingSlideIndex
	}
	if *raw.SlideIndex < 0 {
		return SlideEvent{}, fmt.Errorf("%w: %d", ErrSlideOutOfRange, *raw.SlideIndex)
	}
	if slideCount > 0 && *raw.SlideIndex >= slideCount {
		return SlideEvent{}, fmt.Errorf("%w: %d", ErrSlideOutOfRange, *raw.SlideIndex)
	}
	return SlideEvent{Type: raw.Type, SlideIndex: *raw.SlideIndex, Seq: raw.Seq}, nil
}

// SlideState is the last-value register both sides of the protocol keep: the
// room holds one as the snapshot for late joiners, and a viewer applies
// received events through one so a stale event can never move the deck
// backwards.
type SlideState struct {
	seq     uint64
	index   int
	applied bool
}

// Apply updates the state iff the event is newer than the last applied one.
// It reports whether the displayed index changed.
func (s *SlideState) Apply(ev SlideEvent) bool {
	if s.applied && ev.Seq <= s.seq {
		return false
	}
	s.seq = ev.Seq
	s.index = ev.SlideIndex
	s.applied = true
	return true
}

// Current returns the displayed index, or false if no event was applied yet
// (a fresh viewer shows slide 0 until the snapshot arrives).
func (s *SlideState) Current() (int, bool) {
	return s.index, s.applied
}

func (s *SlideState) Snapshot() (SlideEvent, bool) {
	if !s.applied {
		return SlideEvent{}, false
	}
	return SlideEvent{Type: EventTypeSlide, SlideIndex: s.index, Seq: s.seq}, true
}
