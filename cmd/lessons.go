package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/clitutor/controller/internal/lessonset"
	"github.com/clitutor/controller/internal/progress"
)

var lessonsCmd = &cobra.Command{
	Use:   "lessons",
	Short: "List available lessons and completion status",
	RunE: func(cmd *cobra.Command, args []string) error {
		c := GetConfig()

		set, err := lessonset.Load(c.LessonsDir)
		if err != nil {
			return fmt.Errorf("loading lessons: %w", err)
		}

		progressPath, err := progress.DefaultPath()
		if err != nil {
			return fmt.Errorf("resolving progress path: %w", err)
		}
		store, err := progress.Open(progressPath)
		if err != nil {
			return fmt.Errorf("opening progress store: %w", err)
		}

		meta := set.Metadata()
		if len(meta) == 0 {
			cmd.Println("no lessons found in", c.LessonsDir)
			return nil
		}

		for _, m := range meta {
			data, ok := set.Lesson(m.ID)
			if !ok {
				continue
			}
			lp := store.GetLessonProgress(m.ID)
			mark := " "
			if data.ExerciseCount() > 0 && lp.CompletedCount() == data.ExerciseCount() {
				mark = "x"
			}
			cmd.Printf("[%s] %-24s %-40s %d/%d exercises\n",
				mark, m.ID, m.Title, lp.CompletedCount(), data.ExerciseCount())
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(lessonsCmd)
}
