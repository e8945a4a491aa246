package middleware

import (
	"context"
	"errors"
	"net"
	"net/http"

	"github.com/irsalhamdi/course-progress/api/web"
	"github.com/irsalhamdi/course-progress/api/weberr"
	"github.com/irsalhamdi/course-progress/core/claims"
	"github.com/irsalhamdi/course-progress/rate"
)

// RateLimit throttles requests per learner, falling back to the remote host
// for unauthenticated requests. It must run after authentication to see the
// learner.
func RateLimit(l *rate.Limiter) web.Middleware {
	m := func(handler web.Handler) web.Handler {
		h := func(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
			key := clientKey(ctx, r)
			if !l.Check(key) {
				return weberr.TooManyRequests(errors.New("rate limit exceeded"),
					weberr.WithFields(map[string]any{"client": key}))
			}

			return handler(ctx, w, r)
		}
		return h
	}
	return m
}

func clientKey(ctx context.Context, r *http.Request) string {
	if c, err := claims.Get(ctx); err == nil {
		return "learner:" + c.LearnerID
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		host = r.RemoteAddr
	}
	return "addr:" + host
}
