package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/clitutor/controller/internal/progress"
	"github.com/clitutor/controller/internal/xp"
)

var progressCmd = &cobra.Command{
	Use:   "progress",
	Short: "Show total XP, level, and completed lessons",
	RunE: func(cmd *cobra.Command, args []string) error {
		progressPath, err := progress.DefaultPath()
		if err != nil {
			return fmt.Errorf("resolving progress path: %w", err)
		}
		store, err := progress.Open(progressPath)
		if err != nil {
			return fmt.Errorf("opening progress store: %w", err)
		}

		total := store.TotalXP()
		info := xp.LevelFor(total)

		cmd.Printf("Level %d — %s\n", info.Level, info.Title)
		cmd.Printf("Total XP: %d\n", total)
		if info.XPForLevel() > 0 {
			cmd.Printf("Progress to next level: %d/%d XP (%s)\n",
				info.XPInLevel(), info.XPForLevel(), renderBar(info.Progress(), 20))
		} else {
			cmd.Println("You have reached the top of the ladder.")
		}

		lessons := store.CompletedLessons()
		cmd.Printf("\nCompleted lessons: %d\n", len(lessons))
		for _, id := range lessons {
			cmd.Printf("  - %s\n", id)
		}
		return nil
	},
}

func renderBar(frac float64, width int) string {
	if frac < 0 {
		frac = 0
	}
	if frac > 1 {
		frac = 1
	}
	filled := int(frac * float64(width))
	return "[" + strings.Repeat("=", filled) + strings.Repeat("-", width-filled) + "]"
}

func init() {
	rootCmd.AddCommand(progressCmd)
}
