package cli

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"runtime/debug"
	"strings"

	"github.com/charmbracelet/fang"
	"github.com/spf13/cobra"

	"github.com/sdmlabs/sdm/store"
)

var (
	// Version information (set via ldflags)
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
)

// dataPath is the default backing file path.
var dataPath string

var (
	maxSizeMB      int64
	compactOnClose bool
)

// Execute runs the CLI.
func Execute(ctx context.Context) error {
	root := &cobra.Command{
		Use:   "sdmctl",
		Short: "sdmctl - embedded associative-memory engine",
		Long: `sdmctl drives an embedded Sparse Distributed Memory store: named
spaces of named symbols, taught by superposition and recalled by
Hamming similarity.

Get started:
  sdmctl init             Create a new backing store
  sdmctl repl              Open an interactive shell against a store
  sdmctl load <file>       Bulk-load names from a word list into a space
  sdmctl dump <space>      Dump a space's geometry to <space>.dat`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	home, _ := os.UserHomeDir()
	dataPath = filepath.Join(home, ".sdm", "store.sdm")

	root.SetVersionTemplate("sdmctl {{.Version}}\n")
	root.Version = versionString()
	root.PersistentFlags().StringVar(&dataPath, "data", dataPath, "Backing file path")
	root.PersistentFlags().Int64Var(&maxSizeMB, "max-size", 0, "Maximum backing file size in MiB (0 = unbounded)")
	root.PersistentFlags().BoolVar(&compactOnClose, "compact", false, "Shrink the backing file to fit on close")

	root.AddCommand(NewInit())
	root.AddCommand(NewRepl())
	root.AddCommand(NewLoad())
	root.AddCommand(NewDump())

	if err := fang.Execute(ctx, root,
		fang.WithVersion(Version),
		fang.WithCommit(Commit),
	); err != nil {
		fmt.Fprintln(os.Stderr, errorStyle.Render("[ERROR] "+err.Error()))
		return err
	}
	return nil
}

func versionString() string {
	if strings.TrimSpace(Version) != "" && Version != "dev" {
		return Version
	}
	if bi, ok := debug.ReadBuildInfo(); ok {
		if bi.Main.Version != "" && bi.Main.Version != "(devel)" {
			return bi.Main.Version
		}
	}
	return "dev"
}

// GetDataPath returns the configured backing file path.
func GetDataPath() string {
	return dataPath
}

// openStoreOptions builds store.Options from the persistent CLI flags.
// InitialSize is pinned to DefaultInitialSize rather than left at the
// zero value: a zero InitialSize against an already-existing backing
// file asks Store.Open for a read-only reopen, but every sdmctl
// subcommand that opens the store (repl, load, dump) needs write access
// to teach and mutate it. A caller that genuinely wants a read-only
// handle should build Options directly with InitialSize left at 0.
func openStoreOptions() store.Options {
	opts := store.Options{
		Path:           dataPath,
		InitialSize:    store.DefaultInitialSize,
		CompactOnClose: compactOnClose,
	}
	if maxSizeMB > 0 {
		opts.MaxSize = maxSizeMB << 20
	}
	return opts
}
