package redisstore

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/anime-auth-api/internal/config"
	"github.com/anime-auth-api/internal/domain"
	"github.com/redis/go-redis/v9"
)

const keyPrefix = "otp:"

// ttlGrace keeps an expired hash around so reads can still report it as
// expired instead of missing.
const ttlGrace = 24 * time.Hour

// Hash fields.
const (
	hEmail      = "email"
	hPurpose    = "purpose"
	hCode       = "code"
	hCreatedAt  = "created_at"
	hExpiresAt  = "expires_at"
	hAttempts   = "attempts"
	hVerified   = "verified"
	hVerifiedAt = "verified_at"
)

// Both scripts refuse to touch a key that no longer exists, so a concurrent
// delete is never undone.
var (
	incrIfExists = redis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 0 then return -1 end
return redis.call('HINCRBY', KEYS[1], ARGV[1], 1)
`)
	markIfExists = redis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 0 then return -1 end
redis.call('HSET', KEYS[1], ARGV[1], '1', ARGV[2], ARGV[3])
return 1
`)
)

// OTPStore keeps each OTP record as a Redis hash keyed by purpose and email.
type OTPStore struct {
	rdb *redis.Client
}

func NewClient(cfg *config.Config) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
}

func NewOTPStore(rdb *redis.Client) *OTPStore {
	return &OTPStore{rdb: rdb}
}

func (s *OTPStore) Put(ctx context.Context, rec *domain.OTPRecord) error {
	key := otpKey(rec.Purpose, rec.Email)
	_, err := s.rdb.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.Del(ctx, key)
		p.HSet(ctx, key, encode(rec))
		p.ExpireAt(ctx, key, rec.ExpiresAt.Add(ttlGrace))
		return nil
	})
	return err
}

func (s *OTPStore) Get(ctx context.Context, purpose domain.Purpose, email string) (*domain.OTPRecord, error) {
	fields, err := s.rdb.HGetAll(ctx, otpKey(purpose, email)).Result()
	if err != nil {
		return nil, err
	}
	if len(fields) == 0 {
		return nil, fmt.Errorf("otp record not found: %w", domain.ErrNotFound)
	}
	return decode(fields)
}

func (s *OTPStore) IncrementAttempts(ctx context.Context, purpose domain.Purpose, email string) error {
	n, err := incrIfExists.Run(ctx, s.rdb, []string{otpKey(purpose, email)}, hAttempts).Int64()
	if err != nil {
		return err
	}
	if n < 0 {
		return fmt.Errorf("otp record not found: %w", domain.ErrNotFound)
	}
	return nil
}

func (s *OTPStore) MarkVerified(ctx context.Context, purpose domain.Purpose, email string, at time.Time) error {
	n, err := markIfExists.Run(ctx, s.rdb, []string{otpKey(purpose, email)},
		hVerified, hVerifiedAt, at.UTC().Format(time.RFC3339Nano)).Int64()
	if err != nil {
		return err
	}
	if n < 0 {
		return fmt.Errorf("otp record not found: %w", domain.ErrNotFound)
	}
	return nil
}

func (s *OTPStore) Delete(ctx context.Context, purpose domain.Purpose, email string) error {
	return s.rdb.Del(ctx, otpKey(purpose, email)).Err()
}

func otpKey(purpose domain.Purpose, email string) string {
	return keyPrefix + string(purpose) + ":" + email
}

func encode(rec *domain.OTPRecord) map[string]interface{} {
	m := map[string]interface{}{
		hEmail:     rec.Email,
		hPurpose:   string(rec.Purpose),
		hCode:      rec.Code,
		hCreatedAt: rec.CreatedAt.UTC().Format(time.RFC3339Nano),
		hExpiresAt: rec.ExpiresAt.UTC().Format(time.RFC3339Nano),
		hAttempts:  strconv.Itoa(rec.Attempts),
		hVerified:  "0",
	}
	if rec.Verified {
		m[hVerified] = "1"
	}
	if rec.VerifiedAt != nil {
		m[hVerifiedAt] = rec.VerifiedAt.UTC().Format(time.RFC3339Nano)
	}
	return m
}

func decode(fields map[string]string) (*domain.OTPRecord, error) {
	rec := &domain.OTPRecord{
		Email:    fields[hEmail],
		Purpose:  domain.Purpose(fields[hPurpose]),
		Code:     fields[hCode],
		Verified: fields[hVerified] == "1",
	}
	var err error
	if rec.CreatedAt, err = time.Parse(time.RFC3339Nano, fields[hCreatedAt]); err != nil {
		return nil, fmt.Errorf("decode %s: %w", hCreatedAt, err)
	}
	if rec.ExpiresAt, err = time.Parse(time.RFC3339Nano, fields[hExpiresAt]); err != nil {
		return nil, fmt.Errorf("decode %s: %w", hExpiresAt, err)
	}
	if rec.Attempts, err = strconv.Atoi(fields[hAttempts]); err != nil {
		return nil, fmt.Errorf("decode %s: %w", hAttempts, err)
	}
	if v, ok := fields[hVerifiedAt]; ok && v != "" {
		at, err := time.Parse(time.RFC3339Nano, v)
		if err != nil {
			return nil, fmt.Errorf("decode %s: %w", hVerifiedAt, err)
		}
		rec.VerifiedAt = &at
	}
	return rec, nil
}
