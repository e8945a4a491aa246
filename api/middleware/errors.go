package middleware

import (
	"context"
	"errors"
	"net/http"

	"github.com/irsalhamdi/course-progress/api/web"
	"github.com/irsalhamdi/course-progress/api/weberr"
	"github.com/sirupsen/logrus"
)

// Errors logs handler errors and renders the response attached by weberr.
// Errors that were not caused by the request are logged at error level and
// answered with a generic 500.
func Errors(log logrus.FieldLogger) web.Middleware {
	m := func(handler web.Handler) web.Handler {
		h := func(ctx context.Context, w http.ResponseWriter, r *http.Request) error {

			err := handler(ctx, w, r)
			if err == nil {
				return nil
			}

			fields := logrus.Fields{
				"req_id":  ContextRequestID(ctx),
				"message": err,
			}
			if f, ok := weberr.Fields(err); ok {
				for k, v := range f {
					fields[k] = v
				}
			}

			var reqErr *weberr.RequestError
			if errors.As(err, &reqErr) {
				log.WithFields(fields).Warn("request rejected")
			} else {
				log.WithFields(fields).Error("ERROR")
			}

			if body, code, ok := weberr.Response(err); ok {
				return web.Respond(ctx, w, body, code)
			}

			er := weberr.ErrorResponse{Error: http.StatusText(http.StatusInternalServerError)}
			return web.Respond(ctx, w, er, http.StatusInternalServerError)
		}
		return h
	}
	return m
}
