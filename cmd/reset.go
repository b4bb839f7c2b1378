package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/clitutor/controller/internal/progress"
)

var resetAll bool

var resetCmd = &cobra.Command{
	Use:   "reset [lesson-id]",
	Short: "Clear recorded progress for one lesson, or all lessons with --all",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		progressPath, err := progress.DefaultPath()
		if err != nil {
			return fmt.Errorf("resolving progress path: %w", err)
		}
		store, err := progress.Open(progressPath)
		if err != nil {
			return fmt.Errorf("opening progress store: %w", err)
		}

		if resetAll {
			if err := store.ResetAll(); err != nil {
				return fmt.Errorf("resetting progress: %w", err)
			}
			cmd.Println("all lesson progress cleared")
			return nil
		}

		if len(args) != 1 {
			return fmt.Errorf("specify a lesson id, or pass --all")
		}
		if err := store.ResetLesson(args[0]); err != nil {
			return fmt.Errorf("resetting lesson: %w", err)
		}
		cmd.Printf("progress cleared for %s\n", args[0])
		return nil
	},
}

func init() {
	resetCmd.Flags().BoolVar(&resetAll, "all", false, "reset progress for every lesson")
	rootCmd.AddCommand(resetCmd)
}
