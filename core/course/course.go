package course

import (
	"errors"
	"time"
)

var ErrNotFound = errors.New("course not found")

// Course is an ordered sequence of modules, each an ordered sequence of
// lessons. Lesson ids are unique within a course.
type Course struct {
	ID          string    `json:"id" db:"course_id"`
	Name        string    `json:"name" db:"name"`
	Description string    `json:"description" db:"description"`
	CreatedAt   time.Time `json:"createdAt" db:"created_at"`
	UpdatedAt   time.Time `json:"updatedAt" db:"updated_at"`
	Modules     []Module  `json:"modules" db:"-"`
}

type Module struct {
	ID       string   `json:"id" db:"module_id"`
	CourseID string   `json:"courseId" db:"course_id"`
	Title    string   `json:"title" db:"title"`
	Index    int      `json:"index" db:"order_index"`
	Lessons  []Lesson `json:"lessons" db:"-"`
}

type Lesson struct {
	ID       string  `json:"id" db:"lesson_id"`
	ModuleID string  `json:"moduleId" db:"module_id"`
	CourseID string  `json:"courseId" db:"course_id"`
	Title    string  `json:"title" db:"title"`
	VideoURL string  `json:"videoUrl" db:"video_url"`
	Duration float64 `json:"duration" db:"duration_seconds"`
	Index    int     `json:"index" db:"order_index"`
}

type CourseNew struct {
	Name        string      `json:"name" validate:"required"`
	Description string      `json:"description"`
	Modules     []ModuleNew `json:"modules" validate:"dive"`
}

type ModuleNew struct {
	Title   string      `json:"title" validate:"required"`
	Lessons []LessonNew `json:"lessons" validate:"dive"`
}

type LessonNew struct {
	Title    string  `json:"title" validate:"required"`
	VideoURL string  `json:"videoUrl" validate:"omitempty,url"`
	Duration float64 `json:"duration" validate:"gte=0"`
}

// TotalLessons counts the lessons of every module.
func (c Course) TotalLessons() int {
	var n int
	for _, m := range c.Modules {
		n += len(m.Lessons)
	}
	return n
}

// LessonAt returns the lesson at the given position, false when the position
// does not exist.
func (c Course) LessonAt(module, lesson int) (Lesson, bool) {
	if module < 0 || module >= len(c.Modules) {
		return Lesson{}, false
	}
	ls := c.Modules[module].Lessons
	if lesson < 0 || lesson >= len(ls) {
		return Lesson{}, false
	}
	return ls[lesson], true
}

// Locate finds the position of a lesson by id.
func (c Course) Locate(lessonID string) (module, lesson int, ok bool) {
	for mi, m := range c.Modules {
		for li, l := range m.Lessons {
			if l.ID == lessonID {
				return mi, li, true
			}
		}
	}
	return 0, 0, false
}

// HasLesson reports whether lessonID belongs to the course.
func (c Course) HasLesson(lessonID string) bool {
	_, _, ok := c.Locate(lessonID)
	return ok
}
