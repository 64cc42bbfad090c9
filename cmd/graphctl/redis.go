package main

import (
	"fmt"
	"io"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

// openRedis connects to addr. An empty addr or "mini" starts an in-process miniredis.
func openRedis(addr string, log io.Writer) (redis.UniversalClient, func(), error) {
	if addr == "" || addr == redisMini {
		mr, err := miniredis.Run()
		if err != nil {
			return nil, nil, fmt.Errorf("start miniredis: %w", err)
		}
		client := redis.NewUniversalClient(&redis.UniversalOptions{Addrs: []string{mr.Addr()}})
		fmt.Fprintf(log, "using miniredis at %s\n", mr.Addr())
		return client, func() {
			_ = client.Close()
			mr.Close()
		}, nil
	}

	client := redis.NewUniversalClient(&redis.UniversalOptions{Addrs: []string{addr}})
	fmt.Fprintf(log, "using redis at %s\n", addr)
	return client, func() { _ = client.Close() }, nil
}
