package cli

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/sdmlabs/sdm/store"
)

// NewLoad creates the load command.
func NewLoad() *cobra.Command {
	var space string
	cmd := &cobra.Command{
		Use:   "load <file>",
		Short: "Bulk-load names from a word list into a space",
		Long: `Read one name per line from file and teach each as a named
vector in --space, skipping blank lines and lines starting with "#".`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := store.Open(openStoreOptions())
			if err != nil {
				return fmt.Errorf("failed to open store: %w", err)
			}
			defer s.Close()

			fmt.Println(subtitleStyle.Render("Loading " + args[0] + " into " + space))
			n, err := bulkLoad(s, space, args[0])
			if err != nil {
				return err
			}
			fmt.Println(successStyle.Render(fmt.Sprintf("Loaded %d names", n)))
			return nil
		},
	}
	cmd.Flags().StringVar(&space, "space", "words", "Target space")
	return cmd
}

// bulkLoad teaches one named vector per non-blank, non-comment line of
// path into space, returning the count of names taught.
func bulkLoad(s *store.Store, space, path string) (int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer f.Close()

	n := 0
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		name := strings.TrimSpace(scanner.Text())
		if name == "" || strings.HasPrefix(name, "#") {
			continue
		}
		if _, err := s.NamedVector(space, name, 1); err != nil {
			return n, fmt.Errorf("named_vector(%s): %w", name, err)
		}
		n++
	}
	if err := scanner.Err(); err != nil {
		return n, fmt.Errorf("reading %s: %w", path, err)
	}
	return n, nil
}
