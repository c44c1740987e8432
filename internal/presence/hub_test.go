package presence

import (
	"context"
	"encoding/json"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Pratikk2op/Mechiee-sub000/internal/models"
)

type recordingMirror struct {
	mu     sync.Mutex
	joined []string
	left   []string
}

func (m *recordingMirror) Joined(_ context.Context, roomKey, userID string, _ models.Role) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.joined = append(m.joined, roomKey+"/"+userID)
	return nil
}

func (m *recordingMirror) Left(_ context.Context, roomKey, userID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.left = append(m.left, roomKey+"/"+userID)
	return nil
}

func drain(c *Client) []models.Envelope {
	var out []models.Envelope
	for {
		select {
		case raw, ok := <-c.send:
			if !ok {
				return out
			}
			var env models.Envelope
			_ = json.Unmarshal(raw, &env)
			out = append(out, env)
		default:
			return out
		}
	}
}

func TestJoinLeavesPreviousRoom(t *testing.T) {
	ctx := context.Background()
	mirror := &recordingMirror{}
	h := NewHub(nil, WithMirror(mirror))
	c := h.Register("u1", models.RoleCustomer)

	assert.Nil(t, h.Join(ctx, c, Room{Key: "s1", ID: "booking_b1"}))
	prev := h.Join(ctx, c, Room{Key: "s2", ID: "booking_b2"})
	require.NotNil(t, prev)
	assert.Equal(t, "s1", prev.Key)

	assert.Empty(t, h.RoomMembers("s1"))
	assert.Equal(t, []Member{{UserID: "u1", Role: models.RoleCustomer}}, h.RoomMembers("s2"))
	assert.Equal(t, []string{"s1/u1", "s2/u1"}, mirror.joined)
	assert.Equal(t, []string{"s1/u1"}, mirror.left)
}

func TestMirrorKeepsUserWhileAnotherTabRemains(t *testing.T) {
	ctx := context.Background()
	mirror := &recordingMirror{}
	h := NewHub(nil, WithMirror(mirror))
	tab1 := h.Register("u1", models.RoleCustomer)
	tab2 := h.Register("u1", models.RoleCustomer)
	tab3 := h.Register("u1", models.RoleCustomer)
	for _, c := range []*Client{tab1, tab2, tab3} {
		h.Join(ctx, c, Room{Key: "s1"})
	}

	assert.True(t, h.Leave(ctx, tab1, "s1"))
	h.Join(ctx, tab2, Room{Key: "s2"})
	assert.Empty(t, mirror.left)
	assert.Equal(t, []Member{{UserID: "u1", Role: models.RoleCustomer}}, h.RoomMembers("s1"))

	h.Unregister(ctx, tab3)
	assert.Equal(t, []string{"s1/u1"}, mirror.left)
}

func TestRejoinSameRoomIsNoop(t *testing.T) {
	ctx := context.Background()
	h := NewHub(nil)
	c := h.Register("u1", models.RoleCustomer)

	h.Join(ctx, c, Room{Key: "s1", ID: "support_b1"})
	assert.Nil(t, h.Join(ctx, c, Room{Key: "s1", ID: "booking_b1"}))
	cur := h.CurrentRoom(c)
	require.NotNil(t, cur)
	assert.Equal(t, models.RoomID("booking_b1"), cur.ID)
	assert.Len(t, h.RoomMembers("s1"), 1)
}

func TestLeaveOnlyCurrentRoom(t *testing.T) {
	ctx := context.Background()
	h := NewHub(nil)
	c := h.Register("u1", models.RoleGarage)
	h.Join(ctx, c, Room{Key: "s1"})

	assert.False(t, h.Leave(ctx, c, "other"))
	assert.True(t, h.Leave(ctx, c, "s1"))
	assert.False(t, h.Leave(ctx, c, "s1"))
	assert.Nil(t, h.CurrentRoom(c))
}

func TestSendToRoomSkipsSender(t *testing.T) {
	ctx := context.Background()
	h := NewHub(nil)
	a := h.Register("a", models.RoleCustomer)
	b := h.Register("b", models.RoleGarage)
	outsider := h.Register("c", models.RoleGarage)
	h.Join(ctx, a, Room{Key: "s1"})
	h.Join(ctx, b, Room{Key: "s1"})

	n := h.SendToRoom("s1", models.EventTyping, map[string]string{"userId": "a"}, a)
	assert.Equal(t, 1, n)
	assert.Empty(t, drain(a))
	got := drain(b)
	require.Len(t, got, 1)
	assert.Equal(t, models.EventTyping, got[0].Event)
	assert.Empty(t, drain(outsider))
}

func TestSendToUserReachesEveryConnection(t *testing.T) {
	h := NewHub(nil)
	c1 := h.Register("u1", models.RoleCustomer)
	c2 := h.Register("u1", models.RoleCustomer)
	h.Register("u2", models.RoleCustomer)

	assert.Equal(t, 2, h.SendToUser("u1", models.EventNotification, nil))
	assert.Len(t, drain(c1), 1)
	assert.Len(t, drain(c2), 1)
	assert.True(t, h.Online("u1"))
	assert.False(t, h.Online("nobody"))
}

func TestSendToRole(t *testing.T) {
	h := NewHub(nil)
	g1 := h.Register("g1", models.RoleGarage)
	h.Register("cust", models.RoleCustomer)
	g2 := h.Register("g2", models.RoleGarage)

	assert.Equal(t, 2, h.SendToRole(models.RoleGarage, models.EventBookingAccepted, nil))
	assert.Len(t, drain(g1), 1)
	assert.Len(t, drain(g2), 1)
}

func TestFullQueueDropsInsteadOfBlocking(t *testing.T) {
	h := NewHub(nil, WithSendBuffer(1))
	c := h.Register("u1", models.RoleCustomer)

	assert.Equal(t, 1, h.SendToUser("u1", models.EventNotification, nil))
	assert.Equal(t, 0, h.SendToUser("u1", models.EventNotification, nil))
	assert.Len(t, drain(c), 1)
}

func TestUnregisterReturnsLastRoomAndClosesQueue(t *testing.T) {
	ctx := context.Background()
	h := NewHub(nil)
	c := h.Register("u1", models.RoleMechanic)
	h.Join(ctx, c, Room{Key: "s9", ID: "booking_b9"})

	last := h.Unregister(ctx, c)
	require.NotNil(t, last)
	assert.Equal(t, "s9", last.Key)
	assert.Nil(t, h.Unregister(ctx, c))

	_, open := <-c.send
	assert.False(t, open)
	assert.False(t, h.Online("u1"))
	assert.Empty(t, h.RoomMembers("s9"))
	assert.Equal(t, 0, h.SendToUser("u1", models.EventNotification, nil))
}

func TestConcurrentSendAndUnregister(t *testing.T) {
	ctx := context.Background()
	h := NewHub(nil, WithSendBuffer(4))
	clients := make([]*Client, 20)
	for i := range clients {
		clients[i] = h.Register("u", models.RoleCustomer)
	}

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			h.SendToUser("u", models.EventNotification, nil)
		}()
	}
	for _, c := range clients {
		wg.Add(1)
		go func(c *Client) {
			defer wg.Done()
			h.Unregister(ctx, c)
		}(c)
	}
	wg.Wait()
	assert.False(t, h.Online("u"))
}
