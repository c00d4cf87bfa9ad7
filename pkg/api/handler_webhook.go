package api

import (
	"io"
	"net/http"
	"strings"

	echo "github.com/labstack/echo/v5"

	"github.com/codeready-toolchain/scout/pkg/trigger"
)

// maxWebhookBody caps inbound webhook payloads at 1 MiB.
const maxWebhookBody = 1 << 20

// webhookHandler handles ANY /webhooks/*. The path below /webhooks is
// matched against registered webhook triggers; the trigger layer decides
// auth, rate limiting, and the response code.
func (s *Server) webhookHandler(c *echo.Context) error {
	r := c.Request()

	body, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody+1))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "failed to read request body")
	}
	if len(body) > maxWebhookBody {
		return echo.NewHTTPError(http.StatusRequestEntityTooLarge, "request body too large")
	}

	resp := s.triggerService.HandleWebhook(r.Context(), trigger.Request{
		Path:    strings.TrimPrefix(r.URL.Path, "/webhooks"),
		Method:  r.Method,
		Headers: r.Header,
		Query:   r.URL.Query(),
		Body:    body,
	})
	return c.JSON(resp.StatusCode, resp)
}
