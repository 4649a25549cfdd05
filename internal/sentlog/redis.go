package sentlog

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/redis/go-redis/v9"

	"github.com/ganttmailer/internal/model"
)

const defaultRedisKey = "ganttmailer:sent"

// RedisLog keeps the sent log as members of a Redis set. Members are
// "project|email|date".
type RedisLog struct {
	rdb *redis.Client
	key string
}

func NewRedisLog(rdb *redis.Client, key string) *RedisLog {
	if key == "" {
		key = defaultRedisKey
	}
	return &RedisLog{rdb: rdb, key: key}
}

func (l *RedisLog) List(ctx context.Context) (model.SentRecords, error) {
	members, err := l.rdb.SMembers(ctx, l.key).Result()
	if err != nil {
		return nil, fmt.Errorf("sentlog: smembers %s: %w", l.key, err)
	}
	sort.Strings(members)

	records := make(model.SentRecords, 0, len(members))
	for _, m := range members {
		if rec, ok := decodeMember(m); ok {
			records = append(records, rec)
		}
	}
	return records, nil
}

func (l *RedisLog) Append(ctx context.Context, rec model.SentRecord) error {
	if err := l.rdb.SAdd(ctx, l.key, encodeMember(rec)).Err(); err != nil {
		return fmt.Errorf("sentlog: sadd %s: %w", l.key, err)
	}
	return nil
}

func encodeMember(rec model.SentRecord) string {
	return rec.Project + "|" + rec.Email + "|" + rec.Date
}

func decodeMember(m string) (model.SentRecord, bool) {
	parts := strings.SplitN(m, "|", 3)
	if len(parts) != 3 {
		return model.SentRecord{}, false
	}
	return model.SentRecord{Project: parts[0], Email: parts[1], Date: parts[2]}, true
}

func (l *RedisLog) Ping(ctx context.Context) error {
	return l.rdb.Ping(ctx).Err()
}
