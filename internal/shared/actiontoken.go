package shared

import (
	"context"
	"crypto/hmac"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// DefaultActionTokenTTL bounds how long an issued token stays redeemable.
const DefaultActionTokenTTL = 30 * time.Minute

// consumeScript deletes the key only when it still holds the presented token,
// so two racing submissions of the same token cannot both succeed.
var consumeScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// ActionTokenStore issues and consumes single-use action tokens keyed by
// (actor session, action name). Issuing overwrites any previous token for the
// same action, so only the most recently rendered form stays valid.
type ActionTokenStore struct {
	client *redis.Client
	ttl    time.Duration
	prefix string
}

// NewActionTokenStore constructs the store backed by Redis.
func NewActionTokenStore(client *redis.Client, ttl time.Duration) *ActionTokenStore {
	if ttl <= 0 {
		ttl = DefaultActionTokenTTL
	}
	return &ActionTokenStore{client: client, ttl: ttl, prefix: "action_token"}
}

// Issue generates a fresh token for action within scope.
func (s *ActionTokenStore) Issue(ctx context.Context, scope, action string) (string, error) {
	if s == nil || s.client == nil {
		return "", errors.New("action token store not initialised")
	}
	if action == "" {
		return "", errors.New("action name required")
	}
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("action token: random: %w", err)
	}
	token := base64.RawURLEncoding.EncodeToString(buf)
	if err := s.client.Set(ctx, s.key(scope, action), token, s.ttl).Err(); err != nil {
		return "", fmt.Errorf("action token: store: %w", err)
	}
	return token, nil
}

// Consume redeems token for action exactly once. A false result with a nil
// error means the submission must be dropped as a duplicate or expired request.
func (s *ActionTokenStore) Consume(ctx context.Context, scope, action, token string) (bool, error) {
	if s == nil || s.client == nil {
		return false, errors.New("action token store not initialised")
	}
	if action == "" || token == "" {
		return false, nil
	}
	key := s.key(scope, action)
	stored, err := s.client.Get(ctx, key).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return false, nil
		}
		return false, fmt.Errorf("action token: load: %w", err)
	}
	if !hmac.Equal([]byte(stored), []byte(token)) {
		return false, nil
	}
	deleted, err := consumeScript.Run(ctx, s.client, []string{key}, token).Int()
	if err != nil {
		return false, fmt.Errorf("action token: consume: %w", err)
	}
	return deleted == 1, nil
}

// TTL exposes the configured token lifetime.
func (s *ActionTokenStore) TTL() time.Duration {
	return s.ttl
}

func (s *ActionTokenStore) key(scope, action string) string {
	return s.prefix + ":" + scope + ":" + action
}
