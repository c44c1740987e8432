package presence

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/Pratikk2op/Mechiee-sub000/internal/models"
)

const mirrorTTL = 24 * time.Hour

// RedisMirror keeps a hash of userId -> role per room so other instances and
// operators can see who is connected.
type RedisMirror struct {
	client redis.UniversalClient
}

func NewRedisMirror(client redis.UniversalClient) *RedisMirror {
	return &RedisMirror{client: client}
}

func MembersKey(roomKey string) string { return "room:" + roomKey + ":members" }

func (m *RedisMirror) Joined(ctx context.Context, roomKey, userID string, role models.Role) error {
	key := MembersKey(roomKey)
	pipe := m.client.TxPipeline()
	pipe.HSet(ctx, key, userID, string(role))
	pipe.Expire(ctx, key, mirrorTTL)
	_, err := pipe.Exec(ctx)
	return err
}

func (m *RedisMirror) Left(ctx context.Context, roomKey, userID string) error {
	return m.client.HDel(ctx, MembersKey(roomKey), userID).Err()
}

// Members reads the mirrored membership of a room.
func (m *RedisMirror) Members(ctx context.Context, roomKey string) ([]Member, error) {
	vals, err := m.client.HGetAll(ctx, MembersKey(roomKey)).Result()
	if err != nil {
		return nil, err
	}
	out := make([]Member, 0, len(vals))
	for uid, role := range vals {
		out = append(out, Member{UserID: uid, Role: models.Role(role)})
	}
	return out, nil
}
