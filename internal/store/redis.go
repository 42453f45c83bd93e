package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/spigell/interviewer/internal/interview"
	"github.com/spigell/interviewer/internal/logger"
)

const defaultRedisPrefix = "interviewer"

type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	Prefix   string `mapstructure:"prefix"`
}

// Redis stores one JSON value per candidate, a set of known ids and the
// current id under a common key prefix.
type Redis struct {
	client *redis.Client
	prefix string
	now    func() time.Time
	logger *zap.Logger
}

func NewRedis(ctx context.Context, cfg RedisConfig, log *zap.Logger) (*Redis, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("ping redis %s: %w", cfg.Addr, err)
	}

	prefix := strings.TrimSuffix(strings.TrimSpace(cfg.Prefix), ":")
	if prefix == "" {
		prefix = defaultRedisPrefix
	}

	return &Redis{
		client: client,
		prefix: prefix,
		now:    func() time.Time { return time.Now().UTC() },
		logger: logger.WithFields(log, zap.String("store", TypeRedis), zap.String("addr", cfg.Addr)),
	}, nil
}

func (r *Redis) Create(ctx context.Context, c interview.Candidate) (interview.Candidate, error) {
	if err := validate(c); err != nil {
		return interview.Candidate{}, err
	}

	c.UpdatedAt = r.now()
	data, err := json.Marshal(c)
	if err != nil {
		return interview.Candidate{}, fmt.Errorf("encode candidate: %w", err)
	}

	created, err := r.client.SetNX(ctx, r.candidateKey(c.ID), data, 0).Result()
	if err != nil {
		return interview.Candidate{}, fmt.Errorf("create candidate: %w", err)
	}
	if !created {
		return interview.Candidate{}, fmt.Errorf("%w: %s", ErrExists, c.ID)
	}

	_, err = r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.SAdd(ctx, r.indexKey(), c.ID)
		pipe.Set(ctx, r.currentKey(), c.ID, 0)
		return nil
	})
	if err != nil {
		return interview.Candidate{}, fmt.Errorf("index candidate: %w", err)
	}
	return c, nil
}

func (r *Redis) Save(ctx context.Context, c interview.Candidate) (interview.Candidate, error) {
	if err := validate(c); err != nil {
		return interview.Candidate{}, err
	}

	c.UpdatedAt = r.now()
	data, err := json.Marshal(c)
	if err != nil {
		return interview.Candidate{}, fmt.Errorf("encode candidate: %w", err)
	}

	_, err = r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, r.candidateKey(c.ID), data, 0)
		pipe.SAdd(ctx, r.indexKey(), c.ID)
		return nil
	})
	if err != nil {
		return interview.Candidate{}, fmt.Errorf("save candidate: %w", err)
	}
	return c, nil
}

// Update runs an optimistic read-modify-write on the candidate key.
func (r *Redis) Update(ctx context.Context, id string, u interview.Update) (interview.Candidate, error) {
	key := r.candidateKey(id)

	var updated interview.Candidate
	err := r.client.Watch(ctx, func(tx *redis.Tx) error {
		current, err := r.decode(tx.Get(ctx, key), id)
		if err != nil {
			return err
		}

		updated = u.Apply(current)
		updated.UpdatedAt = r.now()

		data, err := json.Marshal(updated)
		if err != nil {
			return fmt.Errorf("encode candidate: %w", err)
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, data, 0)
			return nil
		})
		return err
	}, key)
	if errors.Is(err, redis.TxFailedErr) {
		r.logger.Warn("concurrent candidate update", zap.String(logger.FieldCandidate, id))
	}
	if err != nil {
		return interview.Candidate{}, err
	}
	return updated, nil
}

func (r *Redis) Get(ctx context.Context, id string) (interview.Candidate, error) {
	return r.decode(r.client.Get(ctx, r.candidateKey(id)), id)
}

func (r *Redis) Current(ctx context.Context) (interview.Candidate, error) {
	id, err := r.client.Get(ctx, r.currentKey()).Result()
	if errors.Is(err, redis.Nil) {
		return interview.Candidate{}, fmt.Errorf("%w: no current candidate", ErrNotFound)
	}
	if err != nil {
		return interview.Candidate{}, fmt.Errorf("get current candidate id: %w", err)
	}
	return r.Get(ctx, id)
}

func (r *Redis) List(ctx context.Context) ([]interview.Candidate, error) {
	ids, err := r.client.SMembers(ctx, r.indexKey()).Result()
	if err != nil {
		return nil, fmt.Errorf("list candidate ids: %w", err)
	}
	if len(ids) == 0 {
		return nil, nil
	}

	keys := make([]string, 0, len(ids))
	for _, id := range ids {
		keys = append(keys, r.candidateKey(id))
	}

	values, err := r.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("load candidates: %w", err)
	}

	out := make([]interview.Candidate, 0, len(values))
	for i, value := range values {
		raw, ok := value.(string)
		if !ok {
			r.logger.Warn("indexed candidate is missing", zap.String(logger.FieldCandidate, ids[i]))
			continue
		}
		var c interview.Candidate
		if err := json.Unmarshal([]byte(raw), &c); err != nil {
			return nil, fmt.Errorf("decode candidate %s: %w", ids[i], err)
		}
		out = append(out, c)
	}
	return out, nil
}

func (r *Redis) Close() error {
	return r.client.Close()
}

func (r *Redis) decode(cmd *redis.StringCmd, id string) (interview.Candidate, error) {
	data, err := cmd.Bytes()
	if errors.Is(err, redis.Nil) {
		return interview.Candidate{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return interview.Candidate{}, fmt.Errorf("get candidate %s: %w", id, err)
	}

	var c interview.Candidate
	if err := json.Unmarshal(data, &c); err != nil {
		return interview.Candidate{}, fmt.Errorf("decode candidate %s: %w", id, err)
	}
	return c, nil
}

func (r *Redis) candidateKey(id string) string {
	return fmt.Sprintf("%s:candidate:%s", r.prefix, id)
}

func (r *Redis) indexKey() string {
	return r.prefix + ":candidates"
}

func (r *Redis) currentKey() string {
	return r.prefix + ":current"
}
