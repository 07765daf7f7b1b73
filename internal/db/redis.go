package db

import "github.com/redis/go-redis/v9"

func ConnectRedis(addr, password string) *redis.Client {
	if addr == "" {
		return nil
	}

	return redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
	})
}
