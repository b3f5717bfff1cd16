package store

import "github.com/redis/rueidis"

// NewRedisForTest creates a Redis store with the provided rueidis client
// (test-only).
func NewRedisForTest(c rueidis.Client) *Redis {
	return &Redis{client: c, prefix: DefaultKeyPrefix}
}
