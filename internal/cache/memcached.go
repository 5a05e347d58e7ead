package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"log/slog"
	"os"

	"github.com/IliaW/link-repair-kit/config"
	"github.com/IliaW/link-repair-kit/internal/model"
	"github.com/bradfitz/gomemcache/memcache"
)

// ResultCache stores reachability results between probes of the same URL.
type ResultCache interface {
	GetResult(string) (*model.ReachabilityResult, bool)
	SetResult(*model.ReachabilityResult)
	Close()
}

// itemStore is the subset of *memcache.Client used by MemcachedClient.
type itemStore interface {
	Get(key string) (*memcache.Item, error)
	Set(item *memcache.Item) error
	Close() error
}

type MemcachedClient struct {
	client itemStore
	cfg    *config.CacheConfig
}

func NewMemcachedClient(cacheConfig *config.CacheConfig) *MemcachedClient {
	slog.Info("connecting to memcached...")
	ss := new(memcache.ServerList)
	err := ss.SetServers(cacheConfig.Servers...)
	if err != nil {
		slog.Error("failed to set memcached servers.", slog.String("err", err.Error()))
		os.Exit(1)
	}
	client := memcache.NewFromSelector(ss)
	slog.Info("pinging the memcached.")
	if err = client.Ping(); err != nil {
		slog.Error("connection to the memcached is failed.", slog.String("err", err.Error()))
		os.Exit(1)
	}
	slog.Info("connected to memcached!")

	return newMemcachedClient(client, cacheConfig)
}

func newMemcachedClient(client itemStore, cacheConfig *config.CacheConfig) *MemcachedClient {
	return &MemcachedClient{client: client, cfg: cacheConfig}
}

func (mc *MemcachedClient) GetResult(url string) (*model.ReachabilityResult, bool) {
	key := hashURL(url)
	it, err := mc.client.Get(key)
	if err != nil {
		if !errors.Is(err, memcache.ErrCacheMiss) {
			slog.Error("failed to get cached result.", slog.String("key", key),
				slog.String("err", err.Error()))
		}
		return nil, false
	}
	if len(it.Value) == 0 {
		slog.Warn("cache found but the value is empty.", slog.String("key", key))
		return nil, false
	}

	var result model.ReachabilityResult
	if err = json.Unmarshal(it.Value, &result); err != nil {
		slog.Error("failed to unmarshal cached result.", slog.String("key", key),
			slog.String("err", err.Error()))
		return nil, false
	}
	// results cached for a different url hashing to the same key are ignored
	if result.URL != url {
		return nil, false
	}

	return &result, true
}

func (mc *MemcachedClient) SetResult(result *model.ReachabilityResult) {
	value, err := json.Marshal(result)
	if err != nil {
		slog.Error("failed to marshal value.", slog.String("err", err.Error()))
		return
	}
	item := &memcache.Item{
		Key:        hashURL(result.URL),
		Value:      value,
		Expiration: int32(mc.cfg.Ttl.Seconds()),
	}
	if err = mc.client.Set(item); err != nil {
		slog.Error("failed to cache result.", slog.String("url", result.URL),
			slog.String("err", err.Error()))
	}
}

func (mc *MemcachedClient) Close() {
	slog.Info("closing memcached connection.")
	err := mc.client.Close()
	if err != nil {
		slog.Error("failed to close memcached connection.", slog.String("err", err.Error()))
	}
}

func hashURL(url string) string {
	hash := sha256.New()
	hash.Write([]byte(url))
	return hex.EncodeToString(hash.Sum(nil))
}
