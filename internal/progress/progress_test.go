package progress_test

import (
	"os"
	"path/filepath"
	"testing"

	"pgregory.net/rapid"

	"github.com/clitutor/controller/internal/progress"
)

// Feature: clitutor progress, Property 1: RecordExercise persistence round-trip
func TestRecordExerciseRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "progress.json")

	store, err := progress.Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}

	rapid.Check(t, func(rt *rapid.T) {
		lessonID := rapid.StringN(1, 20, -1).Draw(rt, "lesson_id")
		exerciseID := rapid.StringN(1, 20, -1).Draw(rt, "exercise_id")
		xp := rapid.IntRange(0, 500).Draw(rt, "xp")
		attempts := rapid.IntRange(1, 10).Draw(rt, "attempts")
		hints := rapid.IntRange(0, 5).Draw(rt, "hints")

		if err := store.RecordExercise(lessonID, exerciseID, xp, attempts, hints); err != nil {
			rt.Fatalf("RecordExercise: %v", err)
		}

		reloaded, err := progress.Open(path)
		if err != nil {
			rt.Fatalf("Open (reload): %v", err)
		}
		if !reloaded.IsExerciseCompleted(lessonID, exerciseID) {
			rt.Fatalf("exercise %s/%s not marked completed after reload", lessonID, exerciseID)
		}
		lp := reloaded.GetLessonProgress(lessonID)
		ep, ok := lp.Exercises[exerciseID]
		if !ok {
			rt.Fatalf("exercise %s/%s missing after reload", lessonID, exerciseID)
		}
		if ep.XPEarned != xp || ep.Attempts != attempts || ep.HintsUsed != hints {
			rt.Fatalf("got %+v, want xp=%d attempts=%d hints=%d", ep, xp, attempts, hints)
		}
	})
}

func TestOpenMissingFileReturnsEmptyStore(t *testing.T) {
	store, err := progress.Open(filepath.Join(t.TempDir(), "nope", "progress.json"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if store.TotalXP() != 0 {
		t.Errorf("TotalXP() = %d, want 0", store.TotalXP())
	}
	if store.IsExerciseCompleted("any", "any") {
		t.Error("IsExerciseCompleted on empty store returned true")
	}
}

func TestLessonProgressCompletedRequiresAllExercises(t *testing.T) {
	path := filepath.Join(t.TempDir(), "progress.json")
	store, err := progress.Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}

	if err := store.RecordExercise("nav", "ex1", 10, 1, 0); err != nil {
		t.Fatalf("RecordExercise: %v", err)
	}
	lp := store.GetLessonProgress("nav")
	if lp.Completed() {
		t.Error("lesson reported complete with only one of its exercises recorded")
	}
}

func TestResetLessonClearsProgress(t *testing.T) {
	path := filepath.Join(t.TempDir(), "progress.json")
	store, err := progress.Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if err := store.RecordExercise("nav", "ex1", 10, 1, 0); err != nil {
		t.Fatalf("RecordExercise: %v", err)
	}
	if err := store.ResetLesson("nav"); err != nil {
		t.Fatalf("ResetLesson: %v", err)
	}
	if store.IsExerciseCompleted("nav", "ex1") {
		t.Error("exercise still marked completed after ResetLesson")
	}
}

func TestSaveFailurePropagatesError(t *testing.T) {
	if os.Getuid() == 0 {
		t.Skip("running as root; permission checks are ineffective")
	}

	tmp := t.TempDir()
	if err := os.Chmod(tmp, 0o000); err != nil {
		t.Fatalf("chmod: %v", err)
	}
	t.Cleanup(func() { os.Chmod(tmp, 0o755) })

	store, err := progress.Open(filepath.Join(tmp, "sub", "progress.json"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if err := store.RecordExercise("nav", "ex1", 10, 1, 0); err == nil {
		t.Fatal("expected error recording into unwritable directory, got nil")
	}
}
