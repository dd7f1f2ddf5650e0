package hub

import (
	"encoding/json"
	"fmt"
	"math/rand"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSubscriber struct {
	id       string
	capacity int

	mu       sync.Mutex
	received []Envelope
}

func newFakeSubscriber(id string) *fakeSubscriber {
	return &fakeSubscriber{id: id, capacity: 1 << 20}
}

func (f *fakeSubscriber) ID() string { return f.id }

func (f *fakeSubscriber) Deliver(env Envelope) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.received) >= f.capacity {
		return false
	}
	f.received = append(f.received, env)
	return true
}

func (f *fakeSubscriber) envelopes() []Envelope {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]Envelope, len(f.received))
	copy(out, f.received)
	return out
}

type testPayload struct {
	Room string `json:"room"`
	Seq  int    `json:"seq"`
}

func decodePayload(t *testing.T, env Envelope) testPayload {
	t.Helper()
	var p testPayload
	require.NoError(t, json.Unmarshal(env.Data, &p))
	return p
}

func TestHub_BroadcastReachesOnlyRoomMembers(t *testing.T) {
	h := NewHub()
	a1, a2, b1 := newFakeSubscriber("a1"), newFakeSubscriber("a2"), newFakeSubscriber("b1")
	require.NoError(t, h.Join(a1, "room-a"))
	require.NoError(t, h.Join(a2, "room-a"))
	require.NoError(t, h.Join(b1, "room-b"))

	n, err := h.Broadcast("room-a", MessageNewPhoto, testPayload{Room: "room-a"})
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	assert.Len(t, a1.envelopes(), 1)
	assert.Len(t, a2.envelopes(), 1)
	assert.Empty(t, b1.envelopes())

	env := a1.envelopes()[0]
	assert.Equal(t, MessageNewPhoto, env.Type)
	assert.Equal(t, "room-a", env.EventSlug)

	var wire map[string]interface{}
	require.NoError(t, json.Unmarshal(env.Bytes(), &wire))
	assert.Equal(t, "new-photo", wire["type"])
	assert.Equal(t, "room-a", wire["eventSlug"])
}

func TestHub_NoReplayForLateJoiners(t *testing.T) {
	h := NewHub()
	early := newFakeSubscriber("early")
	require.NoError(t, h.Join(early, "party"))
	_, err := h.Broadcast("party", MessageNewPhoto, testPayload{Seq: 1})
	require.NoError(t, err)

	late := newFakeSubscriber("late")
	require.NoError(t, h.Join(late, "party"))
	assert.Empty(t, late.envelopes())
	assert.Len(t, early.envelopes(), 1)
}

func TestHub_LeaveAndDisconnect(t *testing.T) {
	h := NewHub()
	sub := newFakeSubscriber("s")
	require.NoError(t, h.Join(sub, "one"))
	require.NoError(t, h.Join(sub, "two"))
	require.NoError(t, h.Join(sub, "two"))
	assert.Equal(t, []string{"one", "two"}, h.Rooms("s"))
	assert.Equal(t, 1, h.RoomSize("two"))

	h.Leave("s", "one")
	_, _ = h.Broadcast("one", MessageNewPhoto, nil)
	_, _ = h.Broadcast("two", MessageNewPhoto, nil)
	require.Len(t, sub.envelopes(), 1)
	assert.Equal(t, "two", sub.envelopes()[0].EventSlug)
	assert.Equal(t, []string{"two"}, h.ActiveRooms())

	h.Disconnect("s")
	_, _ = h.Broadcast("two", MessageNewPhoto, nil)
	assert.Len(t, sub.envelopes(), 1)
	assert.Empty(t, h.ActiveRooms())
	assert.Empty(t, h.Rooms("s"))
	assert.Zero(t, h.RoomSize("two"))

	// Unknown ids are ignored.
	h.Leave("ghost", "two")
	h.Disconnect("ghost")
}

func TestHub_JoinValidation(t *testing.T) {
	h := NewHub()
	sub := newFakeSubscriber("s")
	assert.ErrorIs(t, h.Join(sub, ""), ErrInvalidSlug)
	assert.ErrorIs(t, h.Join(sub, "Bad Slug!"), ErrInvalidSlug)
	assert.Error(t, h.Join(nil, "ok"))

	for i := 0; i < maxRoomsPerSubscriber; i++ {
		require.NoError(t, h.Join(sub, fmt.Sprintf("room-%d", i)))
	}
	assert.ErrorIs(t, h.Join(sub, "one-too-many"), ErrTooManyRooms)
}

func TestHub_PublishDiscardsMismatchedSlug(t *testing.T) {
	h := NewHub()
	sub := newFakeSubscriber("s")
	require.NoError(t, h.Join(sub, "room-a"))

	env, err := NewEnvelope(MessageNewPhoto, "room-b", testPayload{Room: "room-b"})
	require.NoError(t, err)
	assert.Zero(t, h.Publish("room-a", env))
	assert.Empty(t, sub.envelopes())
}

func TestHub_SlowSubscriberIsSkipped(t *testing.T) {
	h := NewHub()
	slow := newFakeSubscriber("slow")
	slow.capacity = 1
	fast := newFakeSubscriber("fast")
	require.NoError(t, h.Join(slow, "r"))
	require.NoError(t, h.Join(fast, "r"))

	for i := 0; i < 3; i++ {
		_, err := h.Broadcast("r", MessageNewPhoto, testPayload{Seq: i})
		require.NoError(t, err)
	}
	assert.Len(t, slow.envelopes(), 1)
	assert.Len(t, fast.envelopes(), 3)
}

func TestHub_PerSubscriberOrdering(t *testing.T) {
	h := NewHub()
	sub := newFakeSubscriber("s")
	require.NoError(t, h.Join(sub, "ordered"))

	const total = 200
	for i := 0; i < total; i++ {
		_, err := h.Broadcast("ordered", MessageNewPhoto, testPayload{Room: "ordered", Seq: i})
		require.NoError(t, err)
	}
	got := sub.envelopes()
	require.Len(t, got, total)
	for i, env := range got {
		assert.Equal(t, i, decodePayload(t, env).Seq)
	}
}

// trackingSubscriber mirrors its own membership. A slug is added before Join
// and removed after Leave or Disconnect return, so the recorded set always
// covers what the hub holds and any delivery outside it is a cross delivery.
type trackingSubscriber struct {
	*fakeSubscriber

	memberMu   sync.Mutex
	joined     map[string]bool
	violations []string
}

func newTrackingSubscriber(id string) *trackingSubscriber {
	return &trackingSubscriber{fakeSubscriber: newFakeSubscriber(id), joined: make(map[string]bool)}
}

func (s *trackingSubscriber) Deliver(env Envelope) bool {
	s.memberMu.Lock()
	if !s.joined[env.EventSlug] {
		s.violations = append(s.violations, env.EventSlug)
	}
	s.memberMu.Unlock()
	return s.fakeSubscriber.Deliver(env)
}

func (s *trackingSubscriber) join(h *Hub, slug string) {
	s.memberMu.Lock()
	already := s.joined[slug]
	s.joined[slug] = true
	s.memberMu.Unlock()
	if err := h.Join(s, slug); err != nil && !already {
		s.memberMu.Lock()
		delete(s.joined, slug)
		s.memberMu.Unlock()
	}
}

func (s *trackingSubscriber) leave(h *Hub, slug string) {
	h.Leave(s.ID(), slug)
	s.memberMu.Lock()
	delete(s.joined, slug)
	s.memberMu.Unlock()
}

func (s *trackingSubscriber) disconnect(h *Hub) {
	h.Disconnect(s.ID())
	s.memberMu.Lock()
	s.joined = make(map[string]bool)
	s.memberMu.Unlock()
}

func (s *trackingSubscriber) rooms() []string {
	s.memberMu.Lock()
	defer s.memberMu.Unlock()
	out := make([]string, 0, len(s.joined))
	for slug := range s.joined {
		out = append(out, slug)
	}
	return out
}

// Interleaves joins, leaves, disconnects and broadcasts across several rooms.
// Half of the subscribers roam over every room, the rest stay on one.
func TestHub_IsolationUnderConcurrency(t *testing.T) {
	h := NewHub()
	rooms := []string{"alpha", "bravo", "charlie", "delta"}
	const perRoom = 8
	const rounds = 300

	type member struct {
		sub   *trackingSubscriber
		home  string
		roams bool
	}
	var members []member
	for _, room := range rooms {
		for i := 0; i < perRoom; i++ {
			members = append(members, member{
				sub:   newTrackingSubscriber(fmt.Sprintf("%s-%d", room, i)),
				home:  room,
				roams: i%2 == 1,
			})
		}
	}

	var wg sync.WaitGroup
	for i, m := range members {
		wg.Add(1)
		go func(seed int64, m member) {
			defer wg.Done()
			rng := rand.New(rand.NewSource(seed))
			pick := func() string {
				if m.roams {
					return rooms[rng.Intn(len(rooms))]
				}
				return m.home
			}
			for r := 0; r < rounds; r++ {
				switch rng.Intn(4) {
				case 0, 1:
					m.sub.join(h, pick())
				case 2:
					m.sub.leave(h, pick())
				default:
					m.sub.disconnect(h)
				}
			}
			m.sub.join(h, m.home)
			if m.roams {
				for _, room := range rooms {
					m.sub.join(h, room)
				}
			}
		}(int64(i), m)
	}
	for _, room := range rooms {
		wg.Add(1)
		go func(room string) {
			defer wg.Done()
			for seq := 0; seq < rounds; seq++ {
				_, _ = h.Broadcast(room, MessageNewPhoto, testPayload{Room: room, Seq: seq})
			}
		}(room)
	}
	wg.Wait()

	for _, room := range rooms {
		_, err := h.Broadcast(room, MessageNewPhoto, testPayload{Room: room, Seq: rounds})
		require.NoError(t, err)
	}

	roamersOutsideHome := 0
	for _, m := range members {
		assert.Empty(t, m.sub.violations, "subscriber %s got envelopes for rooms it had not joined", m.sub.ID())

		lastSeq := make(map[string]int)
		for _, env := range m.sub.envelopes() {
			p := decodePayload(t, env)
			assert.Equal(t, env.EventSlug, p.Room)
			if !m.roams {
				assert.Equal(t, m.home, env.EventSlug, "subscriber %s got %s", m.sub.ID(), env.EventSlug)
			} else if env.EventSlug != m.home {
				roamersOutsideHome++
			}
			if last, ok := lastSeq[env.EventSlug]; ok {
				assert.Greater(t, p.Seq, last, "out of order delivery to %s in %s", m.sub.ID(), env.EventSlug)
			}
			lastSeq[env.EventSlug] = p.Seq
		}
		for _, room := range m.sub.rooms() {
			assert.Equal(t, rounds, lastSeq[room], "subscriber %s missed the final broadcast of %s", m.sub.ID(), room)
		}
	}
	assert.Positive(t, roamersOutsideHome, "roaming subscribers received from other rooms")
}

func TestHub_Shutdown(t *testing.T) {
	h := NewHub()
	closer := &closingSubscriber{fakeSubscriber: newFakeSubscriber("c")}
	require.NoError(t, h.Join(closer, "x"))
	require.NoError(t, h.Join(closer, "y"))

	h.Shutdown()
	assert.Equal(t, 1, closer.closed)
	assert.Empty(t, h.ActiveRooms())
}

type closingSubscriber struct {
	*fakeSubscriber
	closed int
}

func (c *closingSubscriber) Close() { c.closed++ }
