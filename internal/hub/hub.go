package hub

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// WebSocket timing shared by the client pumps.
const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer.
	maxMessageSize = 1024

	// Frames buffered per subscriber before it is considered slow.
	sendBufferSize = 256

	// Rooms a single subscriber may be joined to at once.
	maxRoomsPerSubscriber = 16
)

var (
	ErrInvalidSlug  = errors.New("invalid event slug")
	ErrTooManyRooms = errors.New("too many rooms joined")
)

// Subscriber receives envelopes for the rooms it joined. Deliver must not
// block; it reports false when the frame was dropped.
type Subscriber interface {
	ID() string
	Deliver(env Envelope) bool
}

// Hub owns every room membership of the process. All mutations and
// broadcasts go through one RWMutex, so a broadcast sees a consistent set
// of members and nothing else.
type Hub struct {
	mu          sync.RWMutex
	rooms       map[string]map[string]Subscriber // slug -> subscriber id -> subscriber
	memberships map[string]map[string]struct{}   // subscriber id -> slugs
	log         *logrus.Entry
}

// NewHub creates an empty Hub.
func NewHub() *Hub {
	return &Hub{
		rooms:       make(map[string]map[string]Subscriber),
		memberships: make(map[string]map[string]struct{}),
		log:         logrus.WithField("component", "hub"),
	}
}

// Join adds sub to the room of slug. Joining twice is a no-op.
func (h *Hub) Join(sub Subscriber, slug string) error {
	if sub == nil {
		return errors.New("hub: nil subscriber")
	}
	if !ValidSlug(slug) {
		return fmt.Errorf("%w: %q", ErrInvalidSlug, slug)
	}
	id := sub.ID()
	logCtx := h.log.WithFields(logrus.Fields{"subscriber_id": id, "room": RoomName(slug)})

	h.mu.Lock()
	joined := h.memberships[id]
	if _, ok := joined[slug]; ok {
		h.mu.Unlock()
		return nil
	}
	if len(joined) >= maxRoomsPerSubscriber {
		h.mu.Unlock()
		return ErrTooManyRooms
	}
	if joined == nil {
		joined = make(map[string]struct{})
		h.memberships[id] = joined
	}
	joined[slug] = struct{}{}
	room, ok := h.rooms[slug]
	if !ok {
		room = make(map[string]Subscriber)
		h.rooms[slug] = room
	}
	room[id] = sub
	size := len(room)
	h.mu.Unlock()

	logCtx.WithField("room_size", size).Info("Subscriber joined room")
	return nil
}

// Leave removes the subscriber from one room.
func (h *Hub) Leave(subID, slug string) {
	h.mu.Lock()
	removed := h.removeLocked(subID, slug)
	h.mu.Unlock()
	if removed {
		h.log.WithFields(logrus.Fields{"subscriber_id": subID, "room": RoomName(slug)}).Info("Subscriber left room")
	}
}

// Disconnect removes the subscriber from every room. After it returns no
// broadcast will reach the subscriber.
func (h *Hub) Disconnect(subID string) {
	h.mu.Lock()
	slugs := make([]string, 0, len(h.memberships[subID]))
	for slug := range h.memberships[subID] {
		slugs = append(slugs, slug)
	}
	for _, slug := range slugs {
		h.removeLocked(subID, slug)
	}
	delete(h.memberships, subID)
	h.mu.Unlock()

	if len(slugs) > 0 {
		h.log.WithFields(logrus.Fields{"subscriber_id": subID, "rooms": len(slugs)}).Info("Subscriber disconnected")
	}
}

func (h *Hub) removeLocked(subID, slug string) bool {
	joined, ok := h.memberships[subID]
	if !ok {
		return false
	}
	if _, ok := joined[slug]; !ok {
		return false
	}
	delete(joined, slug)
	if len(joined) == 0 {
		delete(h.memberships, subID)
	}
	if room, ok := h.rooms[slug]; ok {
		delete(room, subID)
		if len(room) == 0 {
			delete(h.rooms, slug)
		}
	}
	return true
}

// Broadcast sends msgType with payload to every subscriber currently in the
// room of slug and returns how many accepted the frame. There is no replay
// for subscribers that join later.
func (h *Hub) Broadcast(slug, msgType string, payload interface{}) (int, error) {
	env, err := NewEnvelope(msgType, slug, payload)
	if err != nil {
		return 0, fmt.Errorf("hub: encode %s: %w", msgType, err)
	}
	return h.Publish(slug, env), nil
}

// Publish delivers a prepared envelope to the room of slug. Envelopes whose
// own slug differs from the target room are discarded.
func (h *Hub) Publish(slug string, env Envelope) int {
	logCtx := h.log.WithFields(logrus.Fields{"room": RoomName(slug), "type": env.Type})
	if env.EventSlug != slug {
		logCtx.WithField("envelope_slug", env.EventSlug).Error("Envelope slug does not match target room, discarded")
		return 0
	}

	delivered := 0
	h.mu.RLock()
	room := h.rooms[slug]
	for id, sub := range room {
		if sub.Deliver(env) {
			delivered++
			continue
		}
		logCtx.WithField("subscriber_id", id).Warn("Subscriber queue full during broadcast, skipping")
	}
	recipients := len(room)
	h.mu.RUnlock()

	logCtx.WithFields(logrus.Fields{"recipients": recipients, "delivered": delivered}).Debug("Broadcast done")
	return delivered
}

// RoomSize returns the number of subscribers in the room of slug.
func (h *Hub) RoomSize(slug string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[slug])
}

// ActiveRooms lists slugs with at least one subscriber.
func (h *Hub) ActiveRooms() []string {
	h.mu.RLock()
	slugs := make([]string, 0, len(h.rooms))
	for slug := range h.rooms {
		slugs = append(slugs, slug)
	}
	h.mu.RUnlock()
	sort.Strings(slugs)
	return slugs
}

// Rooms lists the slugs subID is joined to.
func (h *Hub) Rooms(subID string) []string {
	h.mu.RLock()
	slugs := make([]string, 0, len(h.memberships[subID]))
	for slug := range h.memberships[subID] {
		slugs = append(slugs, slug)
	}
	h.mu.RUnlock()
	sort.Strings(slugs)
	return slugs
}

// Shutdown drops every membership and closes subscribers that support it.
func (h *Hub) Shutdown() {
	h.mu.Lock()
	subs := make(map[string]Subscriber)
	for _, room := range h.rooms {
		for id, sub := range room {
			subs[id] = sub
		}
	}
	h.rooms = make(map[string]map[string]Subscriber)
	h.memberships = make(map[string]map[string]struct{})
	h.mu.Unlock()

	for _, sub := range subs {
		if c, ok := sub.(interface{ Close() }); ok {
			c.Close()
		}
	}
	h.log.WithField("subscribers", len(subs)).Info("Hub shut down")
}
