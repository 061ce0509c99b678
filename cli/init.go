package cli

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/sdmlabs/sdm/store"
)

// NewInit creates the init command.
func NewInit() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Create a new backing store file",
		Long: `Create a new sdm backing store at the configured --data path.

This command will:
  - Create the parent directory if missing
  - Allocate a fresh memory-mapped backing file
  - Write an empty arena header, ready to accept spaces`,
		RunE: runInit,
	}
	return cmd
}

func runInit(cmd *cobra.Command, args []string) error {
	fmt.Println(Banner())
	fmt.Println(subtitleStyle.Render("Initializing store at " + dataPath))
	fmt.Println()

	if err := os.MkdirAll(filepath.Dir(dataPath), 0755); err != nil {
		return fmt.Errorf("failed to create data directory: %w", err)
	}

	if _, err := os.Stat(dataPath); err == nil {
		fmt.Println(warningStyle.Render("Store already exists at " + dataPath))
		return nil
	}

	s, err := store.Open(openStoreOptions())
	if err != nil {
		return fmt.Errorf("failed to initialize store: %w", err)
	}
	defer s.Close()

	fmt.Println(successStyle.Render("Store initialized"))
	fmt.Println()
	fmt.Println(infoStyle.Render("Next steps:"))
	fmt.Println("  1. Run 'sdmctl load <file>' to bulk-teach a space")
	fmt.Println("  2. Run 'sdmctl repl' to explore it interactively")
	fmt.Println()
	return nil
}
