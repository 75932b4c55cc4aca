package redisgeo

import (
	"context"

	"github.com/redis/go-redis/v9"

	"ride-dispatch/internal/general/config"
)

// Store writes driver positions into a Redis GEO set.
type Store interface {
	Add(ctx context.Context, driverID string, lat, lon float64) error
	Remove(ctx context.Context, driverID string) error
	Reset(ctx context.Context, drivers []Position) error
}

// Position is one member of the GEO set.
type Position struct {
	DriverID  string
	Latitude  float64
	Longitude float64
}

// NewClient builds a go-redis client from cfg. It returns nil when no address is configured.
func NewClient(cfg *config.Config) *redis.Client {
	if cfg.Redis.Addr == "" {
		return nil
	}
	return redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
}

type redisStore struct {
	rdb *redis.Client
	key string
}

// NewStore returns a Store over the GEO set at key.
func NewStore(rdb *redis.Client, key string) Store {
	return &redisStore{rdb: rdb, key: key}
}

func (s *redisStore) Add(ctx context.Context, driverID string, lat, lon float64) error {
	return s.rdb.GeoAdd(ctx, s.key, &redis.GeoLocation{
		Name:      driverID,
		Longitude: lon,
		Latitude:  lat,
	}).Err()
}

func (s *redisStore) Remove(ctx context.Context, driverID string) error {
	return s.rdb.ZRem(ctx, s.key, driverID).Err()
}

// Reset replaces the whole set with drivers in one transaction.
func (s *redisStore) Reset(ctx context.Context, drivers []Position) error {
	pipe := s.rdb.TxPipeline()
	pipe.Del(ctx, s.key)
	if len(drivers) > 0 {
		locs := make([]*redis.GeoLocation, len(drivers))
		for i, d := range drivers {
			locs[i] = &redis.GeoLocation{Name: d.DriverID, Longitude: d.Longitude, Latitude: d.Latitude}
		}
		pipe.GeoAdd(ctx, s.key, locs...)
	}
	_, err := pipe.Exec(ctx)
	return err
}
