package api

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/irsalhamdi/course-progress/api/middleware"
	"github.com/irsalhamdi/course-progress/api/web"
	"github.com/irsalhamdi/course-progress/core/auth"
	"github.com/irsalhamdi/course-progress/core/course"
	"github.com/irsalhamdi/course-progress/core/enrollment"
	"github.com/irsalhamdi/course-progress/core/player"
	"github.com/irsalhamdi/course-progress/core/quiz"
	"github.com/irsalhamdi/course-progress/database"
	"github.com/irsalhamdi/course-progress/notify"
	"github.com/irsalhamdi/course-progress/rate"
	"github.com/jmoiron/sqlx"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
)

type APIConfig struct {
	CorsOrigin string
	Log        logrus.FieldLogger
	DB         *sqlx.DB
	Verifier   auth.Verifier
	Registry   *player.Registry
	Channel    notify.Channel
	Limiter    *rate.Limiter
	// StreamFor bounds one server-sent events response.
	StreamFor time.Duration
}

type api struct {
	*mux.Router
	mw  []web.Middleware
	log logrus.FieldLogger
}

func APIMux(cfg APIConfig) http.Handler {
	a := &api{
		Router: mux.NewRouter(),
		log:    cfg.Log,
	}

	a.mw = append(a.mw, middleware.RequestID())
	a.mw = append(a.mw, middleware.Logger(cfg.Log))
	a.mw = append(a.mw, middleware.Errors(cfg.Log))
	a.mw = append(a.mw, middleware.Panics())

	if cfg.CorsOrigin != "" {
		a.mw = append(a.mw, middleware.Cors(cfg.CorsOrigin))

		h := func(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
			w.WriteHeader(http.StatusNoContent)
			return nil
		}

		a.Handle(http.MethodOptions, "/{path:.*}", h)
	}

	authen := auth.Authenticate(cfg.Verifier)
	admin := auth.Admin(cfg.Verifier)

	var limit web.Middleware
	if cfg.Limiter != nil {
		limit = middleware.RateLimit(cfg.Limiter)
	}

	a.Handle(http.MethodGet, "/health", handleHealth(cfg.DB))
	a.Handle(http.MethodGet, "/metrics", handleMetrics())

	a.Handle(http.MethodGet, "/courses/{course_id}/progress", enrollment.HandleSummary(cfg.DB), authen)
	a.Handle(http.MethodGet, "/courses/{course_id}/changes", player.HandleChanges(cfg.Channel, cfg.StreamFor), authen)
	a.Handle(http.MethodPost, "/courses/{course_id}/sessions", player.HandleOpen(cfg.DB, cfg.Registry), authen)
	a.Handle(http.MethodPost, "/courses/{course_id}/lessons/{lesson_id}/quizzes/{quiz_id}/attempts", quiz.HandleStart(cfg.DB), authen)
	a.Handle(http.MethodGet, "/courses/{course_id}", course.HandleShow(cfg.DB))
	a.Handle(http.MethodGet, "/courses", course.HandleList(cfg.DB))
	a.Handle(http.MethodPost, "/courses", course.HandleCreate(cfg.DB), admin)

	a.Handle(http.MethodGet, "/progress", enrollment.HandleList(cfg.DB), authen)

	a.Handle(http.MethodGet, "/sessions/{session_id}", player.HandleShow(cfg.Registry), authen)
	a.Handle(http.MethodDelete, "/sessions/{session_id}", player.HandleClose(cfg.Registry), authen)
	a.Handle(http.MethodPost, "/sessions/{session_id}/resume", player.HandleResume(cfg.Registry), authen)
	a.Handle(http.MethodPost, "/sessions/{session_id}/fresh", player.HandleStartFresh(cfg.Registry), authen)
	a.Handle(http.MethodPost, "/sessions/{session_id}/advance", player.HandleAdvance(cfg.Registry), authen)
	a.Handle(http.MethodPost, "/sessions/{session_id}/retreat", player.HandleRetreat(cfg.Registry), authen)
	a.Handle(http.MethodPut, "/sessions/{session_id}/cursor", player.HandleJump(cfg.Registry), authen)
	a.Handle(http.MethodPost, "/sessions/{session_id}/events", player.HandleEvent(cfg.Registry), authen, limit)
	a.Handle(http.MethodPost, "/sessions/{session_id}/flush", player.HandleFlush(cfg.Registry), authen, limit)

	a.Handle(http.MethodGet, "/quizzes/{quiz_id}/attempts/current", quiz.HandleCurrent(cfg.DB), authen)
	a.Handle(http.MethodPut, "/quizzes/{quiz_id}/attempts/{attempt}/answers", quiz.HandleAnswer(cfg.DB), authen)
	a.Handle(http.MethodPost, "/quizzes/{quiz_id}/attempts/{attempt}/submit", quiz.HandleSubmit(cfg.DB), authen)

	return a.Router
}

func (a *api) Handle(method string, path string, handler web.Handler, mw ...web.Middleware) {

	handler = web.WrapMiddleware(mw, handler)

	handler = web.WrapMiddleware(a.mw, handler)

	h := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {

		ctx := r.Context()

		if err := handler(ctx, w, r); err != nil {

			a.log.WithFields(logrus.Fields{
				"req_id":  middleware.ContextRequestID(ctx),
				"message": err,
			}).Error("ERROR")
		}
	})

	a.Router.Handle(path, h).Methods(method)
}

type health struct {
	Status string `json:"status"`
}

func handleHealth(db *sqlx.DB) web.Handler {
	return func(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
		ctx, cancel := context.WithTimeout(ctx, time.Second)
		defer cancel()

		if err := database.StatusCheck(ctx, db); err != nil {
			return web.Respond(ctx, w, health{Status: "db not ready"}, http.StatusInternalServerError)
		}

		return web.Respond(ctx, w, health{Status: "ok"}, http.StatusOK)
	}
}

func handleMetrics() web.Handler {
	h := promhttp.Handler()
	return func(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
		h.ServeHTTP(w, r)
		return nil
	}
}
