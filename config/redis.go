package config

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/sirupsen/logrus"
)

type RedisConfig struct {
	Host         string
	Port         string
	Password     string
	DB           int
	ClusterAddrs []string
}

func NewRedisClient(config RedisConfig) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:         fmt.Sprintf("%s:%s", config.Host, config.Port),
		Password:     config.Password,
		DB:           config.DB,
		PoolSize:     10,
		MinIdleConns: 5,
		MaxRetries:   3,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	})

	pong, err := rdb.Ping(context.Background()).Result()
	if err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	logrus.WithField("addr", rdb.Options().Addr).Infof("Redis connected: %s", pong)

	return rdb, nil
}

func NewRedisCluster(addrs []string, password string) (*redis.ClusterClient, error) {
	rdb := redis.NewClusterClient(&redis.ClusterOptions{
		Addrs:    addrs,
		Password: password,
		PoolSize: 10,
	})

	pong, err := rdb.Ping(context.Background()).Result()
	if err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("failed to connect to redis cluster: %w", err)
	}
	logrus.WithField("addrs", addrs).Infof("Redis cluster connected: %s", pong)

	return rdb, nil
}

// NewRedis connects to the cluster when cluster addresses are configured and
// to a single node otherwise.
func NewRedis(config RedisConfig) (redis.UniversalClient, error) {
	if len(config.ClusterAddrs) > 0 {
		return NewRedisCluster(config.ClusterAddrs, config.Password)
	}
	return NewRedisClient(config)
}
