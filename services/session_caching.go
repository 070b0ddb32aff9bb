package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"mongosession/converter"
	"mongosession/model"
	"mongosession/utils"

	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/bson"
)

// ErrSessionExpired is returned when caching a session that has already expired.
var ErrSessionExpired = errors.New("session has already expired")

// SessionCache keeps the BSON form of sessions in Redis so reads can skip the
// database. Entries expire together with the session they hold.
type SessionCache struct {
	client    *redis.Client
	converter *converter.SessionConverter
	clock     model.Clock
	prefix    string
}

// NewSessionCache creates and initializes a new session cache
func NewSessionCache(ctx context.Context, redisURL string, conv *converter.SessionConverter, clock model.Clock) (*SessionCache, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return NewSessionCacheWithClient(client, conv, clock), nil
}

func NewSessionCacheWithClient(client *redis.Client, conv *converter.SessionConverter, clock model.Clock) *SessionCache {
	if conv == nil {
		conv = converter.NewSessionConverter(nil)
	}
	if clock == nil {
		clock = model.RealClock{}
	}
	return &SessionCache{
		client:    client,
		converter: conv,
		clock:     clock,
		prefix:    "session:",
	}
}

func (sc *SessionCache) key(sessionID string) string {
	return sc.prefix + sessionID
}

// SetSession caches an individual session
func (sc *SessionCache) SetSession(ctx context.Context, session *model.Session) error {
	if session == nil {
		return fmt.Errorf("cannot cache nil session")
	}

	var ttl time.Duration
	if expireAt := session.ExpireAt(); !expireAt.IsZero() {
		ttl = expireAt.Sub(sc.clock.Now())
		if ttl <= 0 {
			return ErrSessionExpired
		}
	}

	doc, err := sc.converter.ToDocument(session)
	utils.TrackConversion("to_document", err)
	if err != nil {
		return fmt.Errorf("failed to convert session: %w", err)
	}

	data, err := bson.Marshal(doc)
	if err != nil {
		return fmt.Errorf("failed to marshal session: %w", err)
	}

	// A zero TTL keeps never-expiring sessions until they are deleted.
	if err := sc.client.Set(ctx, sc.key(session.ID()), data, ttl).Err(); err != nil {
		return fmt.Errorf("failed to cache session: %w", err)
	}

	return nil
}

// GetSession retrieves a session from cache. A miss returns nil, nil.
func (sc *SessionCache) GetSession(ctx context.Context, sessionID string) (*model.Session, error) {
	if sessionID == "" {
		return nil, fmt.Errorf("sessionID cannot be empty")
	}

	data, err := sc.client.Get(ctx, sc.key(sessionID)).Bytes()
	if errors.Is(err, redis.Nil) {
		utils.TrackCacheOperation(false)
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get session from cache: %w", err)
	}

	session, err := sc.converter.FromRaw(data)
	utils.TrackConversion("from_document", err)
	if err != nil {
		return nil, fmt.Errorf("failed to decode cached session: %w", err)
	}

	if session.IsExpired(sc.clock.Now()) {
		if err := sc.DeleteSession(ctx, sessionID); err != nil {
			return nil, err
		}
		utils.TrackCacheOperation(false)
		return nil, nil
	}

	utils.TrackCacheOperation(true)
	return session, nil
}

// DeleteSession removes a session from cache
func (sc *SessionCache) DeleteSession(ctx context.Context, sessionID string) error {
	if sessionID == "" {
		return fmt.Errorf("sessionID cannot be empty")
	}

	if err := sc.client.Del(ctx, sc.key(sessionID)).Err(); err != nil {
		return fmt.Errorf("failed to delete session from cache: %w", err)
	}

	return nil
}

func (sc *SessionCache) IsConnected(ctx context.Context) bool {
	if sc == nil || sc.client == nil {
		return false
	}
	return sc.client.Ping(ctx).Err() == nil
}

// Close closes the Redis connection
func (sc *SessionCache) Close() error {
	return sc.client.Close()
}
