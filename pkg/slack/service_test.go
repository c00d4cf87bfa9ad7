package slack

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codeready-toolchain/scout/pkg/models"
)

func TestService_NilReceiver(t *testing.T) {
	var s *Service

	// Should not panic.
	s.NotifyRunFinished(context.Background(), &models.Run{ID: "run-1", Status: models.RunStatusCompleted})
}

func TestNewService(t *testing.T) {
	t.Run("returns nil when token empty", func(t *testing.T) {
		assert.Nil(t, NewService(ServiceConfig{Token: "", Channel: "C123"}))
	})

	t.Run("returns nil when channel empty", func(t *testing.T) {
		assert.Nil(t, NewService(ServiceConfig{Token: "xoxb-test", Channel: ""}))
	})

	t.Run("returns service when configured", func(t *testing.T) {
		svc := NewService(ServiceConfig{Token: "xoxb-test", Channel: "C123", BaseURL: "https://example.com"})
		assert.NotNil(t, svc)
	})
}

func TestService_NotifyRunFinished(t *testing.T) {
	var posted int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/chat.postMessage", r.URL.Path)
		posted++
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"ok": true, "channel": "C123", "ts": "1720000000.000100"}`))
	}))
	defer srv.Close()

	client := NewClientWithAPIURL("xoxb-test", "C123", srv.URL+"/")
	svc := NewServiceWithClient(client, "https://scout.example.com")

	svc.NotifyRunFinished(context.Background(), &models.Run{
		ID:          "run-1",
		Status:      models.RunStatusCompleted,
		Input:       "q",
		FinalReport: "report body",
	})
	assert.Equal(t, 1, posted)
}

func TestService_NotifyRunFinishedAPIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"ok": false, "error": "channel_not_found"}`))
	}))
	defer srv.Close()

	client := NewClientWithAPIURL("xoxb-test", "missing", srv.URL+"/")
	svc := NewServiceWithClient(client, "")

	// Fail-open: no panic, no error surfaced.
	svc.NotifyRunFinished(context.Background(), &models.Run{ID: "run-2", Status: models.RunStatusFailed, Error: "boom"})
}
