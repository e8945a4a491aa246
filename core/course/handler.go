package course

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/irsalhamdi/course-progress/api/web"
	"github.com/irsalhamdi/course-progress/api/weberr"
	"github.com/irsalhamdi/course-progress/database"
	"github.com/irsalhamdi/course-progress/validate"
	"github.com/jmoiron/sqlx"
)

func HandleCreate(db *sqlx.DB) web.Handler {
	return func(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
		var cn CourseNew
		if err := web.Decode(w, r, &cn); err != nil {
			return weberr.BadRequest(fmt.Errorf("unable to decode payload: %w", err))
		}

		if err := validate.Check(cn); err != nil {
			return weberr.NewError(err, err.Error(), http.StatusBadRequest)
		}

		c := build(cn, time.Now().UTC())
		err := database.Transaction(db, func(tx sqlx.ExtContext) error {
			return Create(ctx, tx, c)
		})
		if err != nil {
			return fmt.Errorf("creating course: %w", err)
		}

		return web.Respond(ctx, w, c, http.StatusCreated)
	}
}

func HandleShow(db *sqlx.DB) web.Handler {
	return func(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
		id := web.Param(r, "course_id")
		if err := validate.CheckID(id); err != nil {
			return weberr.NewError(err, err.Error(), http.StatusBadRequest)
		}

		c, err := Fetch(ctx, db, id)
		if err != nil {
			if errors.Is(err, ErrNotFound) {
				return weberr.NotFound(err)
			}
			return fmt.Errorf("fetching course[%s]: %w", id, err)
		}

		return web.Respond(ctx, w, c, http.StatusOK)
	}
}

func HandleList(db *sqlx.DB) web.Handler {
	return func(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
		cs, err := List(ctx, db)
		if err != nil {
			return fmt.Errorf("listing courses: %w", err)
		}

		return web.Respond(ctx, w, cs, http.StatusOK)
	}
}

func build(cn CourseNew, now time.Time) Course {
	c := Course{
		ID:          validate.GenerateID(),
		Name:        cn.Name,
		Description: cn.Description,
		CreatedAt:   now,
		UpdatedAt:   now,
		Modules:     make([]Module, 0, len(cn.Modules)),
	}

	for mi, mn := range cn.Modules {
		m := Module{
			ID:       validate.GenerateID(),
			CourseID: c.ID,
			Title:    mn.Title,
			Index:    mi,
			Lessons:  make([]Lesson, 0, len(mn.Lessons)),
		}
		for li, ln := range mn.Lessons {
			m.Lessons = append(m.Lessons, Lesson{
				ID:       validate.GenerateID(),
				ModuleID: m.ID,
				CourseID: c.ID,
				Title:    ln.Title,
				VideoURL: ln.VideoURL,
				Duration: ln.Duration,
				Index:    li,
			})
		}
		c.Modules = append(c.Modules, m)
	}

	return c
}
