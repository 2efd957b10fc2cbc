package mcpserver

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/antibyte/c64mcp/pkg/auth"
	"github.com/antibyte/c64mcp/pkg/configuration"
	"github.com/antibyte/c64mcp/pkg/logger"
	tlsmanager "github.com/antibyte/c64mcp/pkg/tls"
)

const shutdownTimeout = 5 * time.Second

// Handler serves MCP over streamable HTTP together with the token endpoint,
// the monitor WebSocket and a health check
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mcpPath := configuration.GetString("Server", "mcp_path", "/mcp")
	streamable := mcp.NewStreamableHTTPHandler(func(*http.Request) *mcp.Server { return s.server }, nil)
	mux.Handle(mcpPath, auth.RequireToken(streamable))

	mux.HandleFunc("/api/auth/token", auth.HandleToken)

	if s.hub != nil {
		monitorPath := configuration.GetString("Server", "monitor_path", "/ws/monitor")
		mux.Handle(monitorPath, auth.RequireToken(s.hub))
	}

	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain")
		fmt.Fprintln(w, "ok")
	})
	return mux
}

// ListenAndServe runs the HTTP transport until ctx is cancelled. With TLS
// enabled the handler is served on the HTTPS port, and the plain port only
// answers ACME challenges or redirects.
func (s *Server) ListenAndServe(ctx context.Context) error {
	tlsManager, err := tlsmanager.NewManager()
	if err != nil {
		return err
	}

	if s.hub != nil {
		go s.hub.Run(ctx)
	}

	handler := s.Handler()
	var servers []*http.Server
	errCh := make(chan error, 2)
	start := func(srv *http.Server, useTLS bool) {
		servers = append(servers, srv)
		go func() {
			var err error
			if useTLS {
				err = srv.ListenAndServeTLS("", "")
			} else {
				err = srv.ListenAndServe()
			}
			if err != nil && !errors.Is(err, http.ErrServerClosed) {
				errCh <- fmt.Errorf("server on %s: %w", srv.Addr, err)
			}
		}()
	}

	if tlsManager.IsEnabled() {
		httpsAddr := ":" + tlsManager.GetHTTPSPort()
		logger.Info(logger.AreaSecurity, "Serving MCP over HTTPS on %s", httpsAddr)
		start(&http.Server{
			Addr:              httpsAddr,
			Handler:           handler,
			TLSConfig:         tlsManager.GetTLSConfig(),
			ReadHeaderTimeout: 10 * time.Second,
		}, true)

		if tlsManager.NeedsHTTPServer() {
			plain := tlsManager.GetHTTPHandler(tlsManager.GetHTTPSRedirectHandler())
			if plain == nil {
				plain = tlsManager.GetHTTPSRedirectHandler()
			}
			httpAddr := ":" + tlsManager.GetHTTPPort()
			logger.Info(logger.AreaSecurity, "Plain HTTP listener on %s for challenges and redirects", httpAddr)
			start(&http.Server{Addr: httpAddr, Handler: plain, ReadHeaderTimeout: 10 * time.Second}, false)
		}
	} else {
		addr := ":" + configuration.GetString("Server", "http_port", "8080")
		logger.MCPInfo("Serving MCP over HTTP on %s", addr)
		start(&http.Server{Addr: addr, Handler: handler, ReadHeaderTimeout: 10 * time.Second}, false)
	}

	var serveErr error
	select {
	case <-ctx.Done():
	case serveErr = <-errCh:
		logger.MCPError("HTTP transport failed: %v", serveErr)
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()
	for _, srv := range servers {
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.MCPWarn("Shutdown of %s: %v", srv.Addr, err)
		}
	}
	logger.MCPInfo("HTTP transport stopped")
	return serveErr
}
