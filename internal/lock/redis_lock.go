package lock

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/Dhoini/Billing-microservice/pkg/logger"
)

// Скрипт освобождает блокировку только ее владельцу
const releaseScript = `
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0`

// RedisLock распределенная блокировка на Redis (SET NX + TTL).
// Используется, чтобы фоновые задачи выполнялись одним экземпляром сервиса.
type RedisLock struct {
	client *redis.Client
	log    *logger.Logger
}

// NewRedisLock создает новую распределенную блокировку
func NewRedisLock(client *redis.Client, log *logger.Logger) *RedisLock {
	return &RedisLock{client: client, log: log}
}

// Acquire пытается захватить блокировку name на ttl.
// Возвращает release-функцию и true при успехе.
func (l *RedisLock) Acquire(ctx context.Context, name string, ttl time.Duration) (func(), bool, error) {
	key := fmt.Sprintf("lock:%s", name)
	token := uuid.NewString()

	ok, err := l.client.SetNX(ctx, key, token, ttl).Result()
	if err != nil {
		return nil, false, fmt.Errorf("acquire lock %s: %w", name, err)
	}
	if !ok {
		return nil, false, nil
	}

	release := func() {
		// Отдельный контекст: освобождение должно сработать и при отмене ctx
		releaseCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()

		if err := l.client.Eval(releaseCtx, releaseScript, []string{key}, token).Err(); err != nil {
			l.log.Warnw("Failed to release lock", "lock", name, "error", err)
		}
	}
	return release, true, nil
}
