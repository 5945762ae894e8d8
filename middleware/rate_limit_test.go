package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/Dosada05/bracket-progression/models"
	"github.com/stretchr/testify/require"
)

func TestRateLimiterPerUser(t *testing.T) {
	limiter := NewRateLimiter(0.001, 2)
	handler := limiter.Middleware(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	send := func(actor *models.Actor) int {
		req := httptest.NewRequest(http.MethodPost, "/api/matches/1/score", nil)
		req.RemoteAddr = "10.0.0.1:5000"
		if actor != nil {
			req = req.WithContext(WithActor(req.Context(), *actor))
		}
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		return rec.Code
	}

	alice := &models.Actor{UserID: 1, Role: models.RolePlayer}
	bob := &models.Actor{UserID: 2, Role: models.RolePlayer}

	require.Equal(t, http.StatusNoContent, send(alice))
	require.Equal(t, http.StatusNoContent, send(alice))
	require.Equal(t, http.StatusTooManyRequests, send(alice))

	// другой пользователь с того же адреса имеет свой бакет
	require.Equal(t, http.StatusNoContent, send(bob))
	require.Equal(t, http.StatusNoContent, send(nil))
}
