package dispatch

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/ignite/perf-brain/internal/engine/face"
)

// dedupeTTL bounds how long an action ID is remembered after it was queued.
const dedupeTTL = 7 * 24 * time.Hour

// Pushes the payload only when its action ID has not been queued before.
// Returns 1 when pushed, 0 when skipped.
const enqueueOnceLuaScript = `
local seenKey = KEYS[1]
local queueKey = KEYS[2]
local payload = ARGV[1]
local ttl = tonumber(ARGV[2])

if redis.call("SET", seenKey, "1", "NX", "EX", ttl) == false then
    return 0
end
redis.call("LPUSH", queueKey, payload)
return 1
`

// Queue pushes payloads as JSON onto a Redis list the executor pops from.
// Redelivering the same state does not queue its actions twice.
type Queue struct {
	rdb    redis.UniversalClient
	key    string
	script *redis.Script
}

func NewQueue(rdb redis.UniversalClient, key string) *Queue {
	return &Queue{rdb: rdb, key: key, script: redis.NewScript(enqueueOnceLuaScript)}
}

func (q *Queue) Dispatch(ctx context.Context, payloads []face.ActionPayload) error {
	for _, p := range payloads {
		data, err := json.Marshal(p)
		if err != nil {
			return fmt.Errorf("marshal action %s: %w", p.ActionID, err)
		}
		seen := fmt.Sprintf("%s:seen:%s", q.key, p.ActionID)
		if err := q.script.Run(ctx, q.rdb, []string{seen, q.key}, string(data), int(dedupeTTL.Seconds())).Err(); err != nil {
			return fmt.Errorf("enqueue action %s: %w", p.ActionID, err)
		}
	}
	return nil
}
