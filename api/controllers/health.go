package controllers

import (
	"context"
	"net/http"

	"github.com/tracehq/trace-backend/api/responses"
	"github.com/tracehq/trace-backend/pkg/config"
	pkgerrors "github.com/tracehq/trace-backend/pkg/errors"
	"github.com/tracehq/trace-backend/pkg/logger"
)

const envHeader = "X-Trace-Env"

type Pinger interface {
	Ping(ctx context.Context) error
}

func HealthLive(cfg *config.Config) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set(envHeader, cfg.App.Env)
		responses.WriteSuccess(w, map[string]string{"status": "live"})
	}
}

// HealthReady pings every dependency the API needs to serve traffic. Nil
// dependencies are skipped so partial deployments stay checkable.
func HealthReady(cfg *config.Config, logg *logger.Logger, deps map[string]Pinger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set(envHeader, cfg.App.Env)

		checks := map[string]string{}
		healthy := true
		for name, dep := range deps {
			if dep == nil {
				continue
			}
			if err := dep.Ping(r.Context()); err != nil {
				healthy = false
				checks[name] = err.Error()
				if logg != nil {
					ctx := logg.WithFields(r.Context(), map[string]any{"dependency": name})
					logg.Error(ctx, "health.dependency_unreachable", err)
				}
				continue
			}
			checks[name] = "ok"
		}

		if !healthy {
			responses.WriteError(r.Context(), nil, w,
				pkgerrors.New(pkgerrors.CodeDependency, "dependency unavailable").WithDetails(checks))
			return
		}
		responses.WriteSuccess(w, map[string]any{"status": "ready", "checks": checks})
	}
}

// ReadyDeps assembles the named dependency set for HealthReady.
func ReadyDeps(db, redis, storage, queue Pinger) map[string]Pinger {
	return map[string]Pinger{
		"database": db,
		"redis":    redis,
		"storage":  storage,
		"pubsub":   queue,
	}
}
