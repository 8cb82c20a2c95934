package capture

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/banshee-data/gaitlog/internal/monitoring"
)

// ServeDebug serves mux on addr until ctx is cancelled, then shuts the
// server down. It returns once the listener is closed.
func ServeDebug(ctx context.Context, addr string, mux *http.ServeMux) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	return serveDebug(ctx, ln, mux)
}

func serveDebug(ctx context.Context, ln net.Listener, mux *http.ServeMux) error {
	server := &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		errc <- server.Serve(ln)
	}()
	monitoring.Logf("debug server listening on %s", ln.Addr())

	select {
	case err := <-errc:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 1*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		monitoring.Logf("HTTP server shutdown error: %v", err)
		// Force close the server if graceful shutdown fails
		if err := server.Close(); err != nil {
			monitoring.Logf("HTTP server force close error: %v", err)
		}
	}
	<-errc
	monitoring.Logf("debug server stopped")
	return nil
}
