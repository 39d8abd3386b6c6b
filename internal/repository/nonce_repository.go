package repository

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// NonceRepo is the replay guard: a single-use token store backed by
// Redis.  A nonce is "consumed" by writing it with SET NX and a TTL;
// the existence check and the mark-as-consumed write are one command,
// so two requests presenting the same nonce can never both observe
// "not yet consumed".  After the TTL the key expires, which is safe
// because the companion timestamp-window check already rejects
// anything old enough for the key to have expired.
type NonceRepo struct {
	rdb    *redis.Client
	prefix string
}

// NewNonceRepo returns a NonceRepo using the given Redis client.  Keys
// are namespaced under "nonce:".
func NewNonceRepo(rdb *redis.Client) *NonceRepo {
	return &NonceRepo{rdb: rdb, prefix: "nonce:"}
}

// Consume marks the nonce as used.  It returns true when the nonce was
// fresh and is now consumed, false when it had been seen before within
// its TTL.
func (r *NonceRepo) Consume(ctx context.Context, nonce string, ttl time.Duration) (bool, error) {
	return r.rdb.SetNX(ctx, r.prefix+nonce, 1, ttl).Result()
}
