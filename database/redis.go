package database

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	sessionPrefix    = "session:"
	userSessionsKey  = "user_sessions:"
	rememberMePrefix = "remember_me:"
	magicLinkPrefix  = "magic_link:"
)

// ErrSessionNotFound is returned when a key is missing or expired.
var ErrSessionNotFound = errors.New("session not found")

type RedisClient struct {
	*redis.Client
}

func GetRedisClient(addr, password string, db int) (*RedisClient, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	return &RedisClient{client}, nil
}

// NewRedisClient wraps an existing client without pinging it.
func NewRedisClient(client *redis.Client) *RedisClient {
	return &RedisClient{client}
}

// SetSession stores the session token and indexes it under the user so all
// sessions of a user can be revoked together.
func (r *RedisClient) SetSession(ctx context.Context, sessionToken string, userID uint, ttl time.Duration) error {
	userKey := userSessionsKey + strconv.FormatUint(uint64(userID), 10)
	_, err := r.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, sessionPrefix+sessionToken, userID, ttl)
		pipe.SAdd(ctx, userKey, sessionToken)
		pipe.Expire(ctx, userKey, ttl)
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis set session: %w", err)
	}
	return nil
}

func (r *RedisClient) GetSession(ctx context.Context, sessionToken string) (uint, error) {
	val, err := r.Get(ctx, sessionPrefix+sessionToken).Uint64()
	if errors.Is(err, redis.Nil) {
		return 0, ErrSessionNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("redis get session: %w", err)
	}
	return uint(val), nil
}

func (r *RedisClient) DeleteSession(ctx context.Context, sessionToken string) error {
	if err := r.Del(ctx, sessionPrefix+sessionToken).Err(); err != nil {
		return fmt.Errorf("redis delete session: %w", err)
	}
	return nil
}

// DeleteUserSessions removes every session token indexed under the user.
func (r *RedisClient) DeleteUserSessions(ctx context.Context, userID uint) error {
	userKey := userSessionsKey + strconv.FormatUint(uint64(userID), 10)
	tokens, err := r.SMembers(ctx, userKey).Result()
	if err != nil {
		return fmt.Errorf("redis list user sessions: %w", err)
	}

	keys := make([]string, 0, len(tokens)+1)
	for _, token := range tokens {
		keys = append(keys, sessionPrefix+token)
	}
	keys = append(keys, userKey)

	if err := r.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("redis delete user sessions: %w", err)
	}
	return nil
}

func (r *RedisClient) SetRememberMe(ctx context.Context, userID uint, remember bool, ttl time.Duration) error {
	key := rememberMePrefix + strconv.FormatUint(uint64(userID), 10)
	if !remember {
		return r.Del(ctx, key).Err()
	}
	return r.Set(ctx, key, 1, ttl).Err()
}

func (r *RedisClient) RememberMe(ctx context.Context, userID uint) (bool, error) {
	n, err := r.Exists(ctx, rememberMePrefix+strconv.FormatUint(uint64(userID), 10)).Result()
	if err != nil {
		return false, fmt.Errorf("redis remember me: %w", err)
	}
	return n == 1, nil
}

func (r *RedisClient) SetMagicLink(ctx context.Context, token string, userID uint, ttl time.Duration) error {
	if err := r.Set(ctx, magicLinkPrefix+token, userID, ttl).Err(); err != nil {
		return fmt.Errorf("redis set magic link: %w", err)
	}
	return nil
}

// ConsumeMagicLink returns the user bound to token and deletes it, so a link
// can only be used once.
func (r *RedisClient) ConsumeMagicLink(ctx context.Context, token string) (uint, error) {
	val, err := r.GetDel(ctx, magicLinkPrefix+token).Uint64()
	if errors.Is(err, redis.Nil) {
		return 0, ErrSessionNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("redis consume magic link: %w", err)
	}
	return uint(val), nil
}
