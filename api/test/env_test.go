package test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/irsalhamdi/course-progress/api"
	"github.com/irsalhamdi/course-progress/core/auth"
	"github.com/irsalhamdi/course-progress/core/claims"
	"github.com/irsalhamdi/course-progress/core/course"
	"github.com/irsalhamdi/course-progress/core/enrollment"
	"github.com/irsalhamdi/course-progress/core/player"
	"github.com/irsalhamdi/course-progress/core/progress"
	"github.com/irsalhamdi/course-progress/database/dbtest"
	"github.com/irsalhamdi/course-progress/notify"
	"github.com/irsalhamdi/course-progress/rate"
	"github.com/jmoiron/sqlx"
	"github.com/sirupsen/logrus"
)

const (
	adminToken   = "admin-token"
	learnerToken = "learner-token"
	otherToken   = "other-token"
)

type TestEnv struct {
	*httptest.Server
	DB       *sqlx.DB
	Registry *player.Registry
}

func NewTestEnv(t *testing.T) *TestEnv {
	t.Helper()

	log := logrus.New()
	log.SetOutput(io.Discard)

	db := dbtest.NewSqlite(t)

	mr := miniredis.RunT(t)
	channel, err := notify.NewRedis(notify.RedisConfig{Addr: mr.Addr(), Prefix: "test"}, log)
	if err != nil {
		t.Fatalf("connecting to redis: %v", err)
	}
	t.Cleanup(func() { channel.Close() })

	limiter := rate.NewLimiter(1000, time.Minute, 1000)
	t.Cleanup(limiter.Stop)

	reg, err := player.NewRegistry(player.Deps{
		Progress:    progress.NewStore(db),
		Enrollments: enrollment.NewStore(db),
		Channel:     channel,
		Clock:       player.SystemClock(),
		Log:         log,
	}, player.Config{
		DebounceWindow:   5 * time.Second,
		MinAdvance:       3,
		Rewind:           2,
		AutoRestoreRatio: 0.6,
	}, time.Hour, 0)
	if err != nil {
		t.Fatalf("starting registry: %v", err)
	}
	t.Cleanup(func() { reg.Shutdown(context.Background()) })

	verifier := auth.StaticVerifier{
		adminToken:   {LearnerID: "admin-1", Role: claims.RoleAdmin},
		learnerToken: {LearnerID: "learner-1", Role: claims.RoleLearner},
		otherToken:   {LearnerID: "learner-2", Role: claims.RoleLearner},
	}

	srv := httptest.NewServer(api.APIMux(api.APIConfig{
		Log:       log,
		DB:        db,
		Verifier:  verifier,
		Registry:  reg,
		Channel:   channel,
		Limiter:   limiter,
		StreamFor: 5 * time.Second,
	}))
	t.Cleanup(srv.Close)

	return &TestEnv{Server: srv, DB: db, Registry: reg}
}

// Do sends body as JSON and decodes the response into out when given. It
// returns the status code.
func (e *TestEnv) Do(t *testing.T, method, path, token string, body, out any) int {
	t.Helper()

	var rd io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatal(err)
		}
		rd = bytes.NewReader(b)
	}

	r, err := http.NewRequest(method, e.URL+path, rd)
	if err != nil {
		t.Fatal(err)
	}
	if body != nil {
		r.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		r.Header.Set("Authorization", "Bearer "+token)
	}

	w, err := e.Client().Do(r)
	if err != nil {
		t.Fatal(err)
	}
	defer w.Body.Close()

	if out != nil && w.StatusCode < 300 {
		if err := json.NewDecoder(w.Body).Decode(out); err != nil {
			t.Fatalf("cannot unmarshal response of %s %s: %v", method, path, err)
		}
	}

	return w.StatusCode
}

// createCourseOK creates a course of two modules holding two lessons of 600
// seconds each.
func (e *TestEnv) createCourseOK(t *testing.T) course.Course {
	t.Helper()

	lessons := func(prefix string) []course.LessonNew {
		return []course.LessonNew{
			{Title: prefix + " 1", Duration: 600},
			{Title: prefix + " 2", Duration: 600},
		}
	}
	cn := course.CourseNew{
		Name: "Go in practice",
		Modules: []course.ModuleNew{
			{Title: "Basics", Lessons: lessons("basics")},
			{Title: "Concurrency", Lessons: lessons("concurrency")},
		},
	}

	var c course.Course
	if code := e.Do(t, http.MethodPost, "/courses", adminToken, cn, &c); code != http.StatusCreated {
		t.Fatalf("can't create course: status code %d", code)
	}
	return c
}

func (e *TestEnv) openOK(t *testing.T, token, courseID string) player.Snapshot {
	t.Helper()

	var s player.Snapshot
	if code := e.Do(t, http.MethodPost, "/courses/"+courseID+"/sessions", token, nil, &s); code != http.StatusCreated {
		t.Fatalf("can't open session: status code %d", code)
	}
	return s
}

func (e *TestEnv) eventOK(t *testing.T, sessionID string, ev player.Event) player.Snapshot {
	t.Helper()

	var s player.Snapshot
	if code := e.Do(t, http.MethodPost, "/sessions/"+sessionID+"/events", learnerToken, ev, &s); code != http.StatusOK {
		t.Fatalf("can't send %s event: status code %d", ev.Kind, code)
	}
	return s
}
