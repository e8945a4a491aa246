package player

import (
	"errors"

	"github.com/irsalhamdi/course-progress/core/course"
)

var ErrOutOfRange = errors.New("lesson position out of range")

// Position addresses a lesson by module and lesson index, both zero based.
type Position struct {
	Module int `json:"moduleIndex"`
	Lesson int `json:"lessonIndex"`
}

// Cursor is where the learner is within a course. It walks lessons in
// document order and skips modules without lessons. A course without
// lessons has no position at all.
type Cursor struct {
	course course.Course
	order  []Position
	at     int
}

// NewCursor places a cursor on the first lesson of c.
func NewCursor(c course.Course) *Cursor {
	cur := Cursor{course: c, at: -1}
	for mi, m := range c.Modules {
		for li := range m.Lessons {
			cur.order = append(cur.order, Position{Module: mi, Lesson: li})
		}
	}
	if len(cur.order) > 0 {
		cur.at = 0
	}
	return &cur
}

// Position returns the current position, false when the course is empty.
func (c *Cursor) Position() (Position, bool) {
	if c.at < 0 {
		return Position{}, false
	}
	return c.order[c.at], true
}

func (c *Cursor) Current() (course.Lesson, bool) {
	p, ok := c.Position()
	if !ok {
		return course.Lesson{}, false
	}
	return c.course.LessonAt(p.Module, p.Lesson)
}

// Advance moves to the next lesson and reports false when there is none.
func (c *Cursor) Advance() bool {
	if c.at < 0 || c.at == len(c.order)-1 {
		return false
	}
	c.at++
	return true
}

// Retreat moves to the previous lesson and reports false when there is none.
func (c *Cursor) Retreat() bool {
	if c.at <= 0 {
		return false
	}
	c.at--
	return true
}

// JumpTo moves to an existing lesson, leaving the cursor untouched on
// ErrOutOfRange.
func (c *Cursor) JumpTo(module, lesson int) error {
	for i, p := range c.order {
		if p.Module == module && p.Lesson == lesson {
			c.at = i
			return nil
		}
	}
	return ErrOutOfRange
}

// Reset returns to the first lesson.
func (c *Cursor) Reset() {
	if len(c.order) > 0 {
		c.at = 0
	}
}

func (c *Cursor) IsFirst() bool { return c.at <= 0 }

func (c *Cursor) IsLast() bool { return c.at < 0 || c.at == len(c.order)-1 }
