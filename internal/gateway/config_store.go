package gateway

import (
	"context"
	"encoding/json"
	"log"
	"sync"
	"time"

	goredis "github.com/go-redis/redis/v8"

	"cryptodash/internal/indengine"
	"cryptodash/internal/indicator"
)

const indicatorConfigRedisKey = "gateway:indicator_config"

// ConfigStore holds the dashboard's active indicator parameters. Changes
// are persisted to Redis, forwarded to the indicator engine on its config
// channel, and broadcast to WS clients.
type ConfigStore struct {
	mu  sync.RWMutex
	cfg indicator.Config

	hub *Hub
	rdb goredis.Cmdable // nil keeps the config in memory only
}

// NewConfigStore creates a ConfigStore starting from base.
func NewConfigStore(hub *Hub, rdb goredis.Cmdable, base indicator.Config) *ConfigStore {
	return &ConfigStore{hub: hub, rdb: rdb, cfg: base}
}

// Load restores the config persisted by a previous gateway. Returns true
// if one was found and valid.
func (cs *ConfigStore) Load(ctx context.Context) bool {
	if cs.rdb == nil {
		return false
	}
	data, err := cs.rdb.Get(ctx, indicatorConfigRedisKey).Bytes()
	if err != nil {
		return false
	}
	var cfg indicator.Config
	if json.Unmarshal(data, &cfg) != nil || cfg.Validate() != nil {
		log.Printf("[config_store] ignoring invalid persisted config")
		return false
	}
	cs.mu.Lock()
	cs.cfg = cfg
	cs.mu.Unlock()
	log.Printf("[config_store] restored indicator config from Redis: %s", indengine.FormatIndicatorSpecs(cfg))
	return true
}

// Get returns a copy of the active config.
func (cs *ConfigStore) Get() indicator.Config {
	cs.mu.RLock()
	defer cs.mu.RUnlock()
	cfg := cs.cfg
	cfg.SMAPeriods = append([]int(nil), cs.cfg.SMAPeriods...)
	return cfg
}

// Set validates and activates cfg. Redis failures are logged; the gateway
// keeps serving the new config either way.
func (cs *ConfigStore) Set(ctx context.Context, cfg indicator.Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	cfg.SMAPeriods = append([]int(nil), cfg.SMAPeriods...)
	cs.mu.Lock()
	cs.cfg = cfg
	cs.mu.Unlock()

	specs := indengine.FormatIndicatorSpecs(cfg)
	if cs.rdb != nil {
		ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
		defer cancel()
		if data, err := json.Marshal(cfg); err == nil {
			if err := cs.rdb.Set(ctx, indicatorConfigRedisKey, data, 0).Err(); err != nil {
				log.Printf("[config_store] WARNING: failed to persist indicator config: %v", err)
			}
		}
		if err := cs.rdb.Publish(ctx, indengine.ConfigChannel, specs).Err(); err != nil {
			log.Printf("[config_store] WARNING: failed to publish %s: %v", indengine.ConfigChannel, err)
		} else {
			log.Printf("[config_store] published indicator config to indengine: %s", specs)
		}
	}

	if cs.hub != nil {
		envelope, err := json.Marshal(map[string]any{
			"type":   "config_update",
			"config": cfg,
			"ts":     time.Now().UTC().Format(time.RFC3339Nano),
		})
		if err == nil {
			cs.hub.sendAll(envelope)
		}
	}
	return nil
}
