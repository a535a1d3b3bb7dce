package nonce

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/inneri/gateway/pkg/cryptoutil"
)

// redisConsumeScript atomically checks and deletes a nonce binding so a
// concurrent double-consume cannot both observe a match, mirroring the
// atomic-check-then-mutate shape of the teacher's token-bucket script.
// KEYS[1] = binding key ("nonce:<agent_id>")
// ARGV[1] = expected nonce value
var redisConsumeScript = redis.NewScript(`
local stored = redis.call("GET", KEYS[1])
if not stored then
    return 0
end
if stored ~= ARGV[1] then
    return 0
end
redis.call("DEL", KEYS[1])
return 1
`)

// RedisRegistry is a durable, cross-process nonce registry for deployments
// running more than one gateway instance, grounded on
// pkg/kernel/limiter_redis.go's atomic Lua-scripted state transition pattern.
type RedisRegistry struct {
	client *redis.Client
}

func NewRedisRegistry(addr, password string, db int) *RedisRegistry {
	return &RedisRegistry{
		client: redis.NewClient(&redis.Options{
			Addr:     addr,
			Password: password,
			DB:       db,
		}),
	}
}

func bindingKey(agentID string) string {
	return fmt.Sprintf("nonce:%s", agentID)
}

// Issue stores a fresh nonce with a TTL-bound expiry; SET unconditionally
// overwrites any prior binding for agentID, satisfying "issuing replaces."
func (r *RedisRegistry) Issue(agentID string) (string, int64, error) {
	n, err := cryptoutil.GenerateNonce()
	if err != nil {
		return "", 0, err
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := r.client.Set(ctx, bindingKey(agentID), n, TTL).Err(); err != nil {
		return "", 0, fmt.Errorf("nonce: redis issue failed: %w", err)
	}

	return n, time.Now().Add(TTL).Unix(), nil
}

// Consume atomically verifies and deletes the binding. Redis's own key TTL
// enforces expiry, so a matched key is by construction unexpired; a
// tampered or already-consumed nonce returns false without side effects.
func (r *RedisRegistry) Consume(agentID, nonceValue string, now time.Time) bool {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	res, err := redisConsumeScript.Run(ctx, r.client, []string{bindingKey(agentID)}, nonceValue).Result()
	if err != nil {
		return false
	}

	ok, _ := res.(int64)
	return ok == 1
}
