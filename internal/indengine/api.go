package indengine

import (
	"context"
	"encoding/json"
	"log"
	"net/http"

	goredis "github.com/go-redis/redis/v8"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// ConfigChannel carries "TYPE:PERIOD,..." indicator specs for live reload.
const ConfigChannel = "config:indicators"

// Handler serves /reload, /config, /healthz and /metrics.
func (svc *Service) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/reload", svc.handleReload)
	mux.HandleFunc("/config", svc.handleConfig)
	mux.Handle("/metrics", promhttp.Handler())
	if svc.deps.Health != nil {
		mux.Handle("/healthz", svc.deps.Health)
	}
	return mux
}

// handleReload handles POST /reload with a JSON indicator config.
func (svc *Service) handleReload(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "POST only", http.StatusMethodNotAllowed)
		return
	}
	cfg := svc.IndicatorConfig()
	cfg.SMAPeriods = append([]int(nil), cfg.SMAPeriods...)
	if err := json.NewDecoder(r.Body).Decode(&cfg); err != nil {
		http.Error(w, "invalid JSON: "+err.Error(), http.StatusBadRequest)
		return
	}
	if err := svc.SetIndicatorConfig(cfg); err != nil {
		http.Error(w, "validation: "+err.Error(), http.StatusBadRequest)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"status": "ok",
		"config": cfg,
	})
}

func (svc *Service) handleConfig(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(svc.IndicatorConfig())
}

// RunConfigSubscriber listens on ConfigChannel for indicator spec updates
// until ctx is cancelled.
func (svc *Service) RunConfigSubscriber(ctx context.Context, rdb *goredis.Client) {
	pubsub := rdb.Subscribe(ctx, ConfigChannel)
	defer pubsub.Close()
	log.Printf("[indengine] subscribed to %s for dynamic reload", ConfigChannel)

	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			log.Printf("[indengine] received config update: %s", msg.Payload)
			svc.applySpecs(msg.Payload)
		}
	}
}

func (svc *Service) applySpecs(specs string) {
	cfg, err := ParseIndicatorSpecs(specs, svc.IndicatorConfig())
	if err != nil {
		log.Printf("[indengine] invalid config: %v", err)
		return
	}
	if err := svc.SetIndicatorConfig(cfg); err != nil {
		log.Printf("[indengine] invalid config: %v", err)
	}
}
