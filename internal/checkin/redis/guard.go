package redis

import (
	"context"
	"fmt"
	"log"
	"os"
	"strconv"
	"time"

	"github.com/go-redis/redis/v8"
)

// Guard suppresses duplicate submissions of the same scanned token
// across devices using a short-lived SetNX key. It is noise control
// only: correctness against double check-in rests on the store's
// conditional update, not on this guard.
type Guard struct {
	Client *redis.Client
	Logger *log.Logger
}

func NewGuard(client *redis.Client) *Guard {
	return &Guard{
		Client: client,
		Logger: log.Default(),
	}
}

// guardTTL reads the suppression window from the environment, default
// 2 seconds to match the scanner cooldown.
func (g *Guard) guardTTL() time.Duration {
	defaultTTL := 2 * time.Second

	ttlStr := os.Getenv("SCAN_GUARD_TTL_SECONDS")
	if ttlStr == "" {
		return defaultTTL
	}

	ttlSec, err := strconv.Atoi(ttlStr)
	if err != nil {
		g.Logger.Println("REDIS: invalid SCAN_GUARD_TTL_SECONDS value '" + ttlStr + "', using default 2 seconds")
		return defaultTTL
	}
	return time.Duration(ttlSec) * time.Second
}

// MarkScan records that a token signature was just scanned. Returns
// true for the first sighting within the TTL window, false for
// repeats.
func (g *Guard) MarkScan(tokenSignature, deviceID string) (bool, error) {
	key := "scan_guard:" + tokenSignature
	ok, err := g.Client.SetNX(context.Background(), key, deviceID, g.guardTTL()).Result()
	return ok, err
}

// ClearScan drops the guard entry early, but only for the device that
// set it.
func (g *Guard) ClearScan(tokenSignature, deviceID string) error {
	ctx := context.Background()
	key := fmt.Sprintf("scan_guard:%s", tokenSignature)
	val, err := g.Client.Get(ctx, key).Result()
	if err == redis.Nil {
		return nil // already expired
	}
	if err != nil {
		return err
	}
	if val == deviceID {
		_, err := g.Client.Del(ctx, key).Result()
		return err
	}
	return nil
}
