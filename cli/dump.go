package cli

import (
	"bufio"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/sdmlabs/sdm/store"
)

// NewDump creates the dump command.
func NewDump() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "dump <space>",
		Short: "Dump a space's geometry to <space>.dat",
		Long: `Write one line per symbol in <space> to <space>.dat, each line
"name\tdensity\trefcount", in the space's positional order.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := store.Open(openStoreOptions())
			if err != nil {
				return fmt.Errorf("failed to open store: %w", err)
			}
			defer s.Close()

			out := args[0] + ".dat"
			n, err := dumpGeometry(s, args[0], out)
			if err != nil {
				return err
			}
			fmt.Println(successStyle.Render(fmt.Sprintf("Dumped %d entries to %s", n, out)))
			return nil
		},
	}
	return cmd
}

// dumpGeometry writes space's geometry to path as tab-separated
// "name\tdensity\trefcount" lines, returning the entry count written.
func dumpGeometry(s *store.Store, space, path string) (int, error) {
	points, status, err := s.Geometry(space)
	if err != nil {
		return 0, err
	}
	if store.IsError(status) {
		return 0, fmt.Errorf("geometry(%s): %s", space, status)
	}

	f, err := os.Create(path)
	if err != nil {
		return 0, fmt.Errorf("failed to create %s: %w", path, err)
	}
	defer f.Close()

	w := bufio.NewWriter(f)
	for _, p := range points {
		if _, err := fmt.Fprintf(w, "%s\t%.6f\t%d\n", p.Name, p.Density, p.Refcount); err != nil {
			return 0, fmt.Errorf("writing %s: %w", path, err)
		}
	}
	if err := w.Flush(); err != nil {
		return 0, fmt.Errorf("flushing %s: %w", path, err)
	}
	return len(points), nil
}
