package cmd

import (
	"os/exec"

	"github.com/spf13/cobra"

	"github.com/clitutor/controller/internal/lessonset"
)

var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Check that the environment can run interactive lessons",
	// Bypass the normal PersistentPreRunE: doctor should work even with a
	// broken or missing config.
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error { return nil },
	RunE: func(cmd *cobra.Command, args []string) error {
		ok := true

		if path, err := exec.LookPath("bash"); err != nil {
			cmd.Println("✗ bash not found on PATH")
			ok = false
		} else {
			cmd.Printf("✓ bash found at %s\n", path)
		}

		c := GetConfig()
		set, err := lessonset.Load(c.LessonsDir)
		if err != nil {
			cmd.Printf("✗ could not load lessons from %s: %v\n", c.LessonsDir, err)
			ok = false
		} else if len(set.Metadata()) == 0 {
			cmd.Printf("✗ no lessons found in %s\n", c.LessonsDir)
			ok = false
		} else {
			cmd.Printf("✓ %d lesson(s) found in %s\n", len(set.Metadata()), c.LessonsDir)
		}

		if ok {
			cmd.Println("\nEnvironment looks good. Run 'clitutor run' to begin.")
		} else {
			cmd.Println("\nFix the issues above before running 'clitutor run'.")
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(doctorCmd)
}
