package http

import (
	"encoding/json"
	"net/http"

	"github.com/gomodule/redigo/redis"
	"github.com/jmoiron/sqlx"
	"golang.org/x/net/context"

	"github.com/tapglue/nexus/core"
	"github.com/tapglue/nexus/service/invite"
	"github.com/tapglue/nexus/service/issuer"
)

const pgHealthcheck = `SELECT 1`

// Handler is the gateway specific http.HandlerFunc expecting a context.Context.
type Handler func(context.Context, http.ResponseWriter, *http.Request)

// Middleware can be used to chain Handlers with different responsibilities.
type Middleware func(Handler) Handler

// Chain takes a variadic number of Middlewares and returns a combined
// Middleware.
func Chain(ms ...Middleware) Middleware {
	return func(handler Handler) Handler {
		for i := len(ms) - 1; i >= 0; i-- {
			handler = ms[i](handler)
		}

		return handler
	}
}

// Wrap takes a Middleware and Handler and returns an http.HandlerFunc.
func Wrap(
	middleware Middleware,
	handler Handler,
) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		middleware(handler)(context.Background(), w, r)
	}
}

// Health checks for liveliness of backing services and responds with status.
func Health(pg *sqlx.DB, rClient *redis.Pool) Handler {
	return func(ctx context.Context, w http.ResponseWriter, r *http.Request) {
		res := struct {
			Healthy  bool            `json:"healthy"`
			Services map[string]bool `json:"services"`
		}{
			Healthy: true,
			Services: map[string]bool{
				"postgres": true,
				"redis":    true,
			},
		}

		if _, err := pg.Exec(pgHealthcheck); err != nil {
			res.Healthy = false
			res.Services["postgres"] = false

			respondJSON(w, 500, &res)
			return
		}

		conn := rClient.Get()
		if err := conn.Err(); err != nil {
			res.Healthy = false
			res.Services["redis"] = false

			respondJSON(w, 500, &res)
			return
		}
		defer conn.Close()

		respondJSON(w, http.StatusOK, &res)
	}
}

type apiError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func respondError(w http.ResponseWriter, code int, err error) {
	statusCode := http.StatusInternalServerError

	switch {
	case unwrapError(err) == ErrBadRequest,
		core.IsInvalidEntity(err),
		invite.IsInvalidIssuance(err),
		invite.IsInvalidRedemption(err),
		issuer.IsInvalidIssuer(err):
		statusCode = http.StatusBadRequest
	case unwrapError(err) == ErrUnauthorized:
		statusCode = http.StatusUnauthorized
	case core.IsUnauthorized(err),
		invite.IsQuotaExhausted(err):
		statusCode = http.StatusForbidden
	case core.IsNotFound(err),
		invite.IsNotFound(err),
		issuer.IsNotFound(err):
		statusCode = http.StatusNotFound
	case invite.IsAlreadyUsed(err):
		statusCode = http.StatusConflict
	case invite.IsExpired(err):
		statusCode = http.StatusGone
	case unwrapError(err) == ErrLimitExceeded,
		invite.IsContention(err):
		statusCode = 429

		w.Header().Set("Retry-After", "1")
	case invite.IsUnavailable(err):
		statusCode = http.StatusServiceUnavailable
	}

	respondJSON(w, statusCode, struct {
		Errors []apiError `json:"errors"`
	}{
		Errors: []apiError{
			{Code: code, Message: err.Error()},
		},
	})
}

func respondJSON(w http.ResponseWriter, statusCode int, payload interface{}) {
	w.Header().Add("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(payload)
}
