package api

import (
	"net/http"

	"github.com/coder/websocket"
	echo "github.com/labstack/echo/v5"
)

// wsHandler upgrades HTTP connections to WebSocket and delegates to ConnectionManager.
// Cross-origin browsers are admitted only when their origin matches the
// configured allowlist; with an empty allowlist only same-origin connects.
func (s *Server) wsHandler(c *echo.Context) error {
	if s.connManager == nil {
		return echo.NewHTTPError(http.StatusServiceUnavailable, "WebSocket not available")
	}

	var opts websocket.AcceptOptions
	if s.cfg != nil {
		opts.OriginPatterns = s.cfg.System.AllowedWSOrigins
	}

	conn, err := websocket.Accept(c.Response(), c.Request(), &opts)
	if err != nil {
		return err
	}

	// HandleConnection blocks until the WebSocket closes.
	s.connManager.HandleConnection(c.Request().Context(), conn)
	return nil
}
