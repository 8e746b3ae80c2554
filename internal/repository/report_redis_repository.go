package repository

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/stemsi/exstem-portal/internal/config"
	"github.com/stemsi/exstem-portal/internal/model"
)

// RedisReportRepository keeps the report in Redis, expiring after ttl
// (zero keeps it forever).
type RedisReportRepository struct {
	rdb *redis.Client
	ttl time.Duration
}

// NewRedisReportRepository creates a new RedisReportRepository.
func NewRedisReportRepository(rdb *redis.Client, ttl time.Duration) *RedisReportRepository {
	return &RedisReportRepository{rdb: rdb, ttl: ttl}
}

func (r *RedisReportRepository) Save(ctx context.Context, slot string, rep *model.ExamReport) error {
	payload, err := encodeReport(rep)
	if err != nil {
		return err
	}
	return r.rdb.Set(ctx, config.CacheKey.RedisReportKey(slot), payload, r.ttl).Err()
}

func (r *RedisReportRepository) Load(ctx context.Context, slot string) (*model.ExamReport, error) {
	data, err := r.rdb.Get(ctx, config.CacheKey.RedisReportKey(slot)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrReportNotFound
	}
	if err != nil {
		return nil, err
	}
	return decodeReport(data)
}

func (r *RedisReportRepository) Clear(ctx context.Context, slot string) error {
	return r.rdb.Del(ctx, config.CacheKey.RedisReportKey(slot)).Err()
}
