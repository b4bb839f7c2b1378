// Package progress persists per-student lesson/exercise completion state
// to disk as JSON, atomically, in the XDG data directory.
package progress

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// ErrNoProgress names the case where no progress file exists on disk. Open
// does not return it: a missing file yields an empty Store.
var ErrNoProgress = errors.New("no saved progress")

// ExerciseProgress is the persisted outcome of one exercise.
type ExerciseProgress struct {
	Completed  bool `json:"completed"`
	XPEarned   int  `json:"xp_earned"`
	Attempts   int  `json:"attempts"`
	HintsUsed  int  `json:"hints_used"`
}

// LessonProgress is the persisted outcome of every exercise attempted
// within one lesson.
type LessonProgress struct {
	Exercises map[string]ExerciseProgress `json:"exercises"`
}

// Completed reports whether every exercise recorded for this lesson is
// complete. A lesson with no recorded exercises is not considered complete.
func (l LessonProgress) Completed() bool {
	if len(l.Exercises) == 0 {
		return false
	}
	for _, ep := range l.Exercises {
		if !ep.Completed {
			return false
		}
	}
	return true
}

// TotalXP sums XPEarned across every recorded exercise in the lesson.
func (l LessonProgress) TotalXP() int {
	total := 0
	for _, ep := range l.Exercises {
		total += ep.XPEarned
	}
	return total
}

// CompletedCount returns the number of exercises recorded as complete.
func (l LessonProgress) CompletedCount() int {
	n := 0
	for _, ep := range l.Exercises {
		if ep.Completed {
			n++
		}
	}
	return n
}

// document is the on-disk JSON shape.
type document struct {
	Lessons map[string]LessonProgress `json:"lessons"`
}

// Store is a JSON-file-backed progress tracker. The zero value is not
// usable; construct with Open.
type Store struct {
	path    string
	lessons map[string]LessonProgress
}

// Open loads progress from path, creating an empty in-memory store if the
// file does not yet exist. path's parent directory is created on first
// Save.
func Open(path string) (*Store, error) {
	s := &Store{path: path, lessons: map[string]LessonProgress{}}

	raw, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return s, nil
	}
	if err != nil {
		return nil, fmt.Errorf("progress: read %s: %w", path, err)
	}

	var doc document
	if err := json.Unmarshal(raw, &doc); err != nil {
		// A corrupt progress file should not block a student from
		// starting a session; start fresh rather than erroring out.
		return s, nil
	}
	if doc.Lessons != nil {
		s.lessons = doc.Lessons
	}
	return s, nil
}

// GetLessonProgress returns the progress recorded for lessonID, creating an
// empty entry if none exists yet.
func (s *Store) GetLessonProgress(lessonID string) LessonProgress {
	lp, ok := s.lessons[lessonID]
	if !ok {
		lp = LessonProgress{Exercises: map[string]ExerciseProgress{}}
		s.lessons[lessonID] = lp
	}
	return lp
}

// IsExerciseCompleted reports whether exerciseID within lessonID has
// already been recorded complete.
func (s *Store) IsExerciseCompleted(lessonID, exerciseID string) bool {
	lp, ok := s.lessons[lessonID]
	if !ok {
		return false
	}
	ep, ok := lp.Exercises[exerciseID]
	return ok && ep.Completed
}

// RecordExercise marks exerciseID within lessonID complete with the given
// award and attempt counters, then saves to disk.
func (s *Store) RecordExercise(lessonID, exerciseID string, xpEarned, attempts, hintsUsed int) error {
	lp := s.GetLessonProgress(lessonID)
	if lp.Exercises == nil {
		lp.Exercises = map[string]ExerciseProgress{}
	}
	lp.Exercises[exerciseID] = ExerciseProgress{
		Completed: true,
		XPEarned:  xpEarned,
		Attempts:  attempts,
		HintsUsed: hintsUsed,
	}
	s.lessons[lessonID] = lp
	return s.save()
}

// TotalXP sums TotalXP across every lesson.
func (s *Store) TotalXP() int {
	total := 0
	for _, lp := range s.lessons {
		total += lp.TotalXP()
	}
	return total
}

// CompletedLessons returns the IDs of every fully completed lesson.
func (s *Store) CompletedLessons() []string {
	var ids []string
	for id, lp := range s.lessons {
		if lp.Completed() {
			ids = append(ids, id)
		}
	}
	return ids
}

// ResetLesson discards all recorded progress for lessonID and saves.
func (s *Store) ResetLesson(lessonID string) error {
	delete(s.lessons, lessonID)
	return s.save()
}

// ResetAll discards every recorded lesson and saves.
func (s *Store) ResetAll() error {
	s.lessons = map[string]LessonProgress{}
	return s.save()
}

// save marshals the store to JSON and writes it atomically via a temp file
// in the same directory followed by os.Rename.
func (s *Store) save() error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("progress: create data directory: %w", err)
	}

	data, err := json.MarshalIndent(document{Lessons: s.lessons}, "", "  ")
	if err != nil {
		return fmt.Errorf("progress: marshal: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(s.path), "progress-*.json.tmp")
	if err != nil {
		return fmt.Errorf("progress: create temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer func() {
		if err != nil {
			os.Remove(tmpName)
		}
	}()

	if _, err = tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("progress: write temp file: %w", err)
	}
	if err = tmp.Close(); err != nil {
		return fmt.Errorf("progress: close temp file: %w", err)
	}
	if err = os.Rename(tmpName, s.path); err != nil {
		return fmt.Errorf("progress: rename temp file: %w", err)
	}
	return nil
}

// DefaultPath returns $XDG_DATA_HOME/clitutor/progress.json, falling back
// to ~/.local/share/clitutor/progress.json.
func DefaultPath() (string, error) {
	base := os.Getenv("XDG_DATA_HOME")
	if base == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		base = filepath.Join(home, ".local", "share")
	}
	return filepath.Join(base, "clitutor", "progress.json"), nil
}
