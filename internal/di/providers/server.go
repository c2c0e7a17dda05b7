package providers

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"

	"github.com/samber/do/v2"

	"github.com/listenupapp/treewatch/internal/api"
	"github.com/listenupapp/treewatch/internal/config"
	"github.com/listenupapp/treewatch/internal/logger"
	"github.com/listenupapp/treewatch/internal/ratelimit"
	"github.com/listenupapp/treewatch/internal/service"
)

// HTTPServerHandle wraps http.Server with Shutdownable. Server is nil when
// the API is disabled.
type HTTPServerHandle struct {
	*http.Server
	limiter *ratelimit.KeyedRateLimiter
}

// Shutdown implements do.Shutdownable.
func (h *HTTPServerHandle) Shutdown() error {
	if h.limiter != nil {
		h.limiter.Stop()
	}
	if h.Server == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return h.Server.Shutdown(ctx)
}

// ProvideHTTPServer provides the HTTP server and starts serving.
func ProvideHTTPServer(i do.Injector) (*HTTPServerHandle, error) {
	cfg := do.MustInvoke[*config.Config](i)
	log := do.MustInvoke[*logger.Logger](i)

	if !cfg.Server.Enabled {
		log.Info("HTTP API disabled by configuration")
		return &HTTPServerHandle{}, nil
	}

	sseHandle := do.MustInvoke[*SSEManagerHandle](i)
	monitors := do.MustInvoke[*service.MonitorService](i)

	var limiter *ratelimit.KeyedRateLimiter
	if cfg.Server.RateLimit > 0 {
		limiter = ratelimit.New(cfg.Server.RateLimit, cfg.Server.RateBurst, 0)
	}

	handler := api.NewServer(cfg.Server, &api.Services{Monitors: monitors}, sseHandle.Manager, limiter, log.Logger)

	srv := &http.Server{
		Addr:         cfg.Server.Addr,
		Handler:      handler,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	// Bind now so a taken port fails startup instead of a background log line.
	ln, err := net.Listen("tcp", srv.Addr)
	if err != nil {
		if limiter != nil {
			limiter.Stop()
		}
		return nil, fmt.Errorf("listen on %s: %w", srv.Addr, err)
	}

	srvLog := log.WithField("addr", ln.Addr().String())
	go func() {
		srvLog.Info("HTTP server starting")
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			srvLog.WithError(err).Error("HTTP server error")
		}
	}()

	return &HTTPServerHandle{Server: srv, limiter: limiter}, nil
}
