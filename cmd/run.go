package cmd

import (
	"context"
	"fmt"
	"os"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/x/term"
	"github.com/spf13/cobra"

	"github.com/clitutor/controller/internal/driver"
	"github.com/clitutor/controller/internal/lesson"
	"github.com/clitutor/controller/internal/lessonset"
	"github.com/clitutor/controller/internal/progress"
	"github.com/clitutor/controller/internal/sandboxvm"
	"github.com/clitutor/controller/internal/tui"
)

var runCmd = &cobra.Command{
	Use:   "run [lesson-id]",
	Short: "Start an interactive lesson session in the sandbox",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runSession,
}

func init() {
	rootCmd.AddCommand(runCmd)
}

func runSession(cmd *cobra.Command, args []string) error {
	// The split-pane session view is a full interactive TUI; it needs a
	// real terminal to attach to, the same check the teacher's first-run
	// wizard made before drawing anything.
	if !term.IsTerminal(os.Stdin.Fd()) {
		return fmt.Errorf("run requires an interactive terminal (stdin is not a TTY)")
	}

	c := GetConfig()

	lessons, err := lessonset.Load(c.LessonsDir)
	if err != nil {
		return fmt.Errorf("loading lessons: %w", err)
	}

	data, ok := selectLesson(lessons, c.DefaultLesson, args)
	if !ok {
		return fmt.Errorf("no lesson available in %s", c.LessonsDir)
	}

	progressPath, err := progress.DefaultPath()
	if err != nil {
		return fmt.Errorf("resolving progress path: %w", err)
	}
	store, err := progress.Open(progressPath)
	if err != nil {
		return fmt.Errorf("opening progress store: %w", err)
	}

	sandboxRoot := c.SandboxRoot
	if sandboxRoot == "" {
		sandboxRoot, err = os.MkdirTemp("", "clitutor-sandbox-*")
		if err != nil {
			return fmt.Errorf("creating sandbox directory: %w", err)
		}
	}
	channel, err := sandboxvm.NewPTYSession(sandboxRoot)
	if err != nil {
		return fmt.Errorf("creating sandbox session: %w", err)
	}

	ctx := context.Background()

	var d *driver.Driver
	var program *tea.Program
	model := tui.New(data.Title, data.ContentMarkdown, func(line string) {
		hint, err := d.HandleInputLine(ctx, line)
		if err != nil {
			program.Send(tui.OutputMsg("\r\nsession error: " + err.Error() + "\r\n"))
			return
		}
		if hint != "" {
			program.Send(tui.HintMsg(hint))
		}
	})
	program = tea.NewProgram(model, tea.WithAltScreen())

	d = driver.New(channel, store, func(s string) {
		program.Send(tui.OutputMsg(s))
	}, func(snap driver.Snapshot) {
		program.Send(tui.StatusMsg{
			LessonTitle:   snap.LessonTitle,
			ExerciseTitle: snap.ExerciseTitle,
			ExerciseIndex: snap.ExerciseIndex,
			ExerciseCount: snap.ExerciseCount,
			TotalXP:       snap.TotalXP,
			Level:         snap.Level,
			LevelTitle:    snap.LevelTitle,
			LevelProgress: snap.LevelProgress,
		})
	})
	defer d.Close()

	if err := d.Boot(ctx); err != nil {
		return fmt.Errorf("booting sandbox shell: %w", err)
	}
	if err := d.EnterLesson(ctx, data, false); err != nil {
		return fmt.Errorf("entering lesson: %w", err)
	}

	_, err = program.Run()
	return err
}

// selectLesson resolves which lesson to run: an explicit lesson-id argument
// wins, then the configured default lesson, then the lowest-Order lesson.
func selectLesson(lessons *lessonset.Set, defaultLesson string, args []string) (lesson.Data, bool) {
	if len(args) == 1 {
		return lessons.Lesson(args[0])
	}
	if defaultLesson != "" {
		if d, ok := lessons.Lesson(defaultLesson); ok {
			return d, true
		}
	}
	return lessons.First()
}
