package course

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"
)

// Create inserts a course with its whole structure. Run it inside a
// transaction.
func Create(ctx context.Context, db sqlx.ExtContext, c Course) error {
	const qc = `
	INSERT INTO courses (course_id, name, description, created_at, updated_at)
	VALUES (:course_id, :name, :description, :created_at, :updated_at)`

	if _, err := sqlx.NamedExecContext(ctx, db, qc, c); err != nil {
		return fmt.Errorf("inserting course: %w", err)
	}

	const qm = `
	INSERT INTO course_modules (module_id, course_id, title, order_index)
	VALUES (:module_id, :course_id, :title, :order_index)`

	const ql = `
	INSERT INTO lessons (lesson_id, module_id, course_id, title, video_url, duration_seconds, order_index)
	VALUES (:lesson_id, :module_id, :course_id, :title, :video_url, :duration_seconds, :order_index)`

	for _, m := range c.Modules {
		if _, err := sqlx.NamedExecContext(ctx, db, qm, m); err != nil {
			return fmt.Errorf("inserting module[%s]: %w", m.ID, err)
		}
		for _, l := range m.Lessons {
			if _, err := sqlx.NamedExecContext(ctx, db, ql, l); err != nil {
				return fmt.Errorf("inserting lesson[%s]: %w", l.ID, err)
			}
		}
	}

	return nil
}

// Fetch loads a course with its modules and lessons in document order.
func Fetch(ctx context.Context, db sqlx.ExtContext, id string) (Course, error) {
	var c Course
	q := db.Rebind(`SELECT course_id, name, description, created_at, updated_at FROM courses WHERE course_id = ?`)
	if err := sqlx.GetContext(ctx, db, &c, q, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Course{}, ErrNotFound
		}
		return Course{}, fmt.Errorf("selecting course[%s]: %w", id, err)
	}

	var mods []Module
	q = db.Rebind(`SELECT module_id, course_id, title, order_index FROM course_modules WHERE course_id = ? ORDER BY order_index`)
	if err := sqlx.SelectContext(ctx, db, &mods, q, id); err != nil {
		return Course{}, fmt.Errorf("selecting modules of course[%s]: %w", id, err)
	}

	var lessons []Lesson
	q = db.Rebind(`
	SELECT l.lesson_id, l.module_id, l.course_id, l.title, l.video_url, l.duration_seconds, l.order_index
	FROM lessons l
	JOIN course_modules m ON m.module_id = l.module_id
	WHERE l.course_id = ?
	ORDER BY m.order_index, l.order_index`)
	if err := sqlx.SelectContext(ctx, db, &lessons, q, id); err != nil {
		return Course{}, fmt.Errorf("selecting lessons of course[%s]: %w", id, err)
	}

	pos := make(map[string]int, len(mods))
	for i := range mods {
		pos[mods[i].ID] = i
		mods[i].Lessons = []Lesson{}
	}
	for _, l := range lessons {
		i := pos[l.ModuleID]
		mods[i].Lessons = append(mods[i].Lessons, l)
	}

	c.Modules = mods
	if c.Modules == nil {
		c.Modules = []Module{}
	}
	return c, nil
}

// List returns every course without its structure.
func List(ctx context.Context, db sqlx.ExtContext) ([]Course, error) {
	cs := []Course{}
	const q = `SELECT course_id, name, description, created_at, updated_at FROM courses ORDER BY created_at, course_id`
	if err := sqlx.SelectContext(ctx, db, &cs, q); err != nil {
		return nil, fmt.Errorf("selecting courses: %w", err)
	}
	return cs, nil
}
