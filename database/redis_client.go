package database

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"resumable-upload/conf"
	"resumable-upload/model"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

var RedisClient *redis.Client

// InitRedis initialize Redis client
func InitRedis() error {
	if !conf.Cfg.Redis.Enabled {
		log.Println("Redis is disabled")
		return nil
	}

	client := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%d", conf.Cfg.Redis.Host, conf.Cfg.Redis.Port),
		Password: conf.Cfg.Redis.Password,
		DB:       conf.Cfg.Redis.DB,
	})

	// Test connection
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		log.Printf("Failed to connect to Redis: %v", err)
		client.Close()
		return err
	}

	RedisClient = client
	log.Printf("Redis connected successfully: %s:%d (DB: %d, TTL: %ds)",
		conf.Cfg.Redis.Host, conf.Cfg.Redis.Port, conf.Cfg.Redis.DB, conf.Cfg.Redis.CacheTTL)
	return nil
}

// CloseRedis close Redis connection
func CloseRedis() error {
	if RedisClient != nil {
		return RedisClient.Close()
	}
	return nil
}

// IsRedisEnabled check if Redis is enabled and connected
func IsRedisEnabled() bool {
	return RedisClient != nil
}

// RedisSessionCache caches COMPLETED sessions so repeated finalize/status calls skip the ledger
type RedisSessionCache struct {
	client *redis.Client
	ttl    time.Duration
	prefix string
}

// NewRedisSessionCache create completed-session cache
func NewRedisSessionCache(client *redis.Client, ttl time.Duration) *RedisSessionCache {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &RedisSessionCache{client: client, ttl: ttl, prefix: "upload:completed:"}
}

// Get returns the cached session, false on miss or error
func (c *RedisSessionCache) Get(ctx context.Context, sessionID string) (*model.UploadSession, bool) {
	data, err := c.client.Get(ctx, c.prefix+sessionID).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			log.Printf("Failed to read cache for session %s: %v", sessionID, err)
		}
		return nil, false
	}
	var session model.UploadSession
	if err := json.Unmarshal(data, &session); err != nil {
		return nil, false
	}
	return &session, true
}

// Set stores a completed session; other statuses are ignored
func (c *RedisSessionCache) Set(ctx context.Context, session *model.UploadSession) {
	if session.Status != model.SessionStatusCompleted {
		return
	}
	data, err := json.Marshal(session)
	if err != nil {
		return
	}
	if err := c.client.Set(ctx, c.prefix+session.SessionId, data, c.ttl).Err(); err != nil {
		log.Printf("Failed to set cache for session %s: %v", session.SessionId, err)
	}
}

// releaseScript deletes the lock only when it still holds our token
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisSweepLock keeps the orphan sweep single-flight across service instances
type RedisSweepLock struct {
	client *redis.Client
	key    string
	ttl    time.Duration
	token  string
}

// NewRedisSweepLock create sweep lock. ttl bounds how long a crashed holder blocks others.
func NewRedisSweepLock(client *redis.Client, key string, ttl time.Duration) *RedisSweepLock {
	return &RedisSweepLock{
		client: client,
		key:    key,
		ttl:    ttl,
		token:  uuid.NewString(),
	}
}

// TryAcquire takes the lock without blocking
func (l *RedisSweepLock) TryAcquire(ctx context.Context) (bool, error) {
	return l.client.SetNX(ctx, l.key, l.token, l.ttl).Result()
}

// Release drops the lock if this instance still owns it
func (l *RedisSweepLock) Release(ctx context.Context) error {
	return releaseScript.Run(ctx, l.client, []string{l.key}, l.token).Err()
}
