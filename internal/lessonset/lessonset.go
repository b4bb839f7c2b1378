// Package lessonset loads lesson markdown files with embedded YAML
// exercise blocks from a directory, indexed by a metadata.json manifest,
// and can watch that directory for live-reload during lesson authoring.
package lessonset

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"github.com/fsnotify/fsnotify"
	"gopkg.in/yaml.v3"

	"github.com/clitutor/controller/internal/lesson"
)

// exercisePattern matches an HTML comment of the form:
//
//	<!-- exercise
//	<yaml body>
//	-->
var exercisePattern = regexp.MustCompile(`(?s)<!--\s*exercise\s*\n(.*?)-->`)

// manifest is the on-disk shape of metadata.json.
type manifest struct {
	Lessons []lesson.Meta `json:"lessons"`
}

// Set is a loaded collection of lessons backed by a directory on disk.
type Set struct {
	dir    string
	meta   []lesson.Meta
	lessons map[string]lesson.Data // keyed by lesson.Meta.ID
}

// Load reads metadata.json from dir and eagerly parses every referenced
// lesson markdown file. Lessons are sorted by Order.
func Load(dir string) (*Set, error) {
	metaPath := filepath.Join(dir, "metadata.json")
	raw, err := os.ReadFile(metaPath)
	if os.IsNotExist(err) {
		return &Set{dir: dir, lessons: map[string]lesson.Data{}}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("lessonset: read metadata: %w", err)
	}

	var m manifest
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, fmt.Errorf("lessonset: parse metadata: %w", err)
	}
	sort.Slice(m.Lessons, func(i, j int) bool { return m.Lessons[i].Order < m.Lessons[j].Order })

	s := &Set{dir: dir, meta: m.Lessons, lessons: make(map[string]lesson.Data, len(m.Lessons))}
	for _, meta := range m.Lessons {
		data, err := loadLesson(dir, meta)
		if err != nil {
			slog.Warn("lessonset: skipping lesson", "id", meta.ID, "error", err)
			continue
		}
		s.lessons[meta.ID] = data
	}
	return s, nil
}

// loadLesson reads and parses a single lesson markdown file referenced by
// meta.File.
func loadLesson(dir string, meta lesson.Meta) (lesson.Data, error) {
	path := filepath.Join(dir, meta.File)
	content, err := os.ReadFile(path)
	if err != nil {
		return lesson.Data{}, fmt.Errorf("lesson file not found: %s", path)
	}

	exercises := extractExercises(string(content))
	display := strings.TrimSpace(exercisePattern.ReplaceAllString(string(content), ""))

	return lesson.Data{
		ID:              meta.ID,
		Title:           meta.Title,
		Slug:            meta.Slug,
		Order:           meta.Order,
		Category:        meta.Category,
		Difficulty:      meta.Difficulty,
		Description:     meta.Description,
		ContentMarkdown: display,
		Exercises:       exercises,
	}, nil
}

// extractExercises parses every embedded exercise comment in content.
// Blocks whose YAML body fails to parse are skipped rather than aborting
// the whole lesson, matching the reference loader's tolerance for a single
// malformed block.
func extractExercises(content string) []lesson.Exercise {
	matches := exercisePattern.FindAllStringSubmatch(content, -1)
	exercises := make([]lesson.Exercise, 0, len(matches))
	for i, m := range matches {
		var ex lesson.Exercise
		if err := yaml.Unmarshal([]byte(m[1]), &ex); err != nil {
			slog.Warn("lessonset: malformed exercise block, skipping", "index", i, "error", err)
			continue
		}
		if ex.ID == "" {
			ex.ID = fmt.Sprintf("ex%d", i)
		}
		if ex.Title == "" {
			ex.Title = "Untitled"
		}
		exercises = append(exercises, ex.Defaults())
	}
	return exercises
}

// Metadata returns the lesson index, sorted by Order.
func (s *Set) Metadata() []lesson.Meta {
	return s.meta
}

// Lesson returns the fully parsed lesson for id, or false if unknown.
func (s *Set) Lesson(id string) (lesson.Data, bool) {
	d, ok := s.lessons[id]
	return d, ok
}

// First returns the lowest-Order lesson, used to boot directly into a
// lesson when none is named on the command line.
func (s *Set) First() (lesson.Data, bool) {
	if len(s.meta) == 0 {
		return lesson.Data{}, false
	}
	return s.Lesson(s.meta[0].ID)
}

// Watcher hot-reloads a Set whenever its backing directory changes, for use
// during lesson authoring. It is not used in normal student-facing runs.
type Watcher struct {
	fsw *fsnotify.Watcher
	dir string
	onReload func(*Set)
}

// WatchDir starts watching dir and invokes onReload with a freshly loaded
// Set every time a file under it changes. Call Close to stop watching.
func WatchDir(dir string, onReload func(*Set)) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("lessonset: create watcher: %w", err)
	}
	if err := fsw.Add(dir); err != nil {
		fsw.Close()
		return nil, fmt.Errorf("lessonset: watch %s: %w", dir, err)
	}

	w := &Watcher{fsw: fsw, dir: dir, onReload: onReload}
	go w.loop()
	return w, nil
}

func (w *Watcher) loop() {
	for {
		select {
		case event, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove|fsnotify.Rename) == 0 {
				continue
			}
			set, err := Load(w.dir)
			if err != nil {
				slog.Warn("lessonset: reload failed", "error", err)
				continue
			}
			w.onReload(set)
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			slog.Warn("lessonset: watcher error", "error", err)
		}
	}
}

// Close stops the underlying fsnotify watcher.
func (w *Watcher) Close() error {
	return w.fsw.Close()
}
