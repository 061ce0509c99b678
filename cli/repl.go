package cli

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/sdmlabs/sdm/store"
)

// NewRepl creates the repl command: an interactive shell over a store,
// following the single-character token grammar spec.md §6 describes for
// external CLI collaborators.
func NewRepl() *cobra.Command {
	var space string
	cmd := &cobra.Command{
		Use:   "repl",
		Short: "Open an interactive shell against a store",
		Long: `Open an interactive shell against the backing store at --data.

Tokens (every name refers to a symbol in the shell's current space, set
with --space or "*space"; names are not space-qualified):

  =name               teach/select a symbol (named-vector, dither=1)
  name,0.5            same, with an explicit dither
  <path               bulk load one name per line from path into the current space
  >path               dump the current space's geometry to path
  t ^ s[:shift]        superpose s onto t
  t + s[:shift]         superpose s onto t, same as ^ (the source's stored dither applies)
  t - s[:shift]         subtract s from t
  a ? b                 similarity of a and b
  a . b                 overlap of a and b
  | name                density of name
  @ name                load and summarize name's semantic vector
  *space                switch the current space
  bare word             prefix search the current space
  quit / exit           leave the shell`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRepl(space)
		},
	}
	cmd.Flags().StringVar(&space, "space", "default", "Initial current space")
	return cmd
}

func runRepl(initialSpace string) error {
	s, err := store.Open(openStoreOptions())
	if err != nil {
		return fmt.Errorf("failed to open store: %w", err)
	}
	defer s.Close()

	fmt.Println(Banner())
	fmt.Println(infoStyle.Render("store: " + dataPath))
	fmt.Println(infoStyle.Render("space: " + initialSpace))
	fmt.Println()

	current := initialSpace
	scanner := bufio.NewScanner(os.Stdin)
	fmt.Print(promptStyle.Render(current + "> "))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "quit" || line == "exit" {
			break
		}
		if line != "" {
			current = evalLine(s, current, line)
		}
		fmt.Print(promptStyle.Render(current + "> "))
	}
	fmt.Println()
	return nil
}

// evalLine executes one REPL token and returns the (possibly updated)
// current space name.
func evalLine(s *store.Store, current, line string) string {
	switch {
	case strings.HasPrefix(line, "*"):
		return strings.TrimSpace(line[1:])

	case strings.HasPrefix(line, "<"):
		path := strings.TrimSpace(line[1:])
		n, err := bulkLoad(s, current, path)
		report(err, fmt.Sprintf("loaded %d names into %q", n, current))

	case strings.HasPrefix(line, ">"):
		path := strings.TrimSpace(line[1:])
		n, err := dumpGeometry(s, current, path)
		report(err, fmt.Sprintf("dumped %d entries from %q to %s", n, current, path))

	case strings.HasPrefix(line, "|"):
		name := strings.TrimSpace(line[1:])
		d, status, err := s.Density(current, name)
		if reportStatus(status, err) {
			fmt.Println(labelStyle.Render("density") + valueStyle.Render(fmt.Sprintf("%.6f", d)))
		}

	case strings.HasPrefix(line, "@"):
		name := strings.TrimSpace(line[1:])
		printLoadSummary(s, current, name)

	case strings.HasPrefix(line, "="):
		name := strings.TrimSpace(line[1:])
		status, err := s.NamedVector(current, name, 1)
		report(err, status.String())

	case strings.ContainsRune(line, '^'):
		t, src, shift := splitOp(line, '^')
		status, err := s.Superpose(current, t, current, src, shift, false)
		report(err, status.String())

	case strings.ContainsRune(line, '+'):
		t, src, shift := splitOp(line, '+')
		status, err := s.Superpose(current, t, current, src, shift, false)
		report(err, status.String())

	case strings.ContainsRune(line, '-'):
		t, src, shift := splitOp(line, '-')
		status, err := s.Subtract(current, t, current, src, shift)
		report(err, status.String())

	case strings.ContainsRune(line, '?'):
		a, b := splitPair(line, '?')
		sim, status, err := s.Similarity(current, a, current, b)
		if reportStatus(status, err) {
			fmt.Println(labelStyle.Render("similarity") + valueStyle.Render(fmt.Sprintf("%.6f", sim)))
		}

	case strings.ContainsRune(line, '.') && !strings.HasSuffix(line, ".") && !strings.ContainsRune(line, ','):
		a, b := splitPair(line, '.')
		ov, status, err := s.Overlap(current, a, current, b)
		if reportStatus(status, err) {
			fmt.Println(labelStyle.Render("overlap") + valueStyle.Render(fmt.Sprintf("%.6f", ov)))
		}

	case strings.ContainsRune(line, ','):
		name, dither := splitDither(line)
		status, err := s.NamedVector(current, name, dither)
		report(err, status.String())

	default:
		if isBareWord(line) {
			names, status, err := s.PrefixSearch(current, line)
			if reportStatus(status, err) {
				for _, n := range names {
					fmt.Println(valueStyle.Render(n))
				}
			}
			return current
		}
		status, err := s.NamedVector(current, line, 1)
		report(err, status.String())
	}
	return current
}

func isBareWord(s string) bool {
	for _, r := range s {
		if r == '^' || r == '+' || r == '-' || r == '?' || r == '.' || r == '|' || r == '@' || r == '<' || r == '>' || r == '*' || r == ',' {
			return false
		}
	}
	return true
}

func splitOp(line string, op rune) (target, source string, shift int) {
	parts := strings.SplitN(line, string(op), 2)
	target = strings.TrimSpace(parts[0])
	rest := ""
	if len(parts) > 1 {
		rest = strings.TrimSpace(parts[1])
	}
	fields := strings.SplitN(rest, ":", 2)
	source = strings.TrimSpace(fields[0])
	if len(fields) > 1 {
		shift, _ = strconv.Atoi(strings.TrimSpace(fields[1]))
	}
	return target, source, shift
}

func splitPair(line string, op rune) (a, b string) {
	parts := strings.SplitN(line, string(op), 2)
	a = strings.TrimSpace(parts[0])
	if len(parts) > 1 {
		b = strings.TrimSpace(parts[1])
	}
	return a, b
}

func splitDither(line string) (name string, dither float64) {
	parts := strings.SplitN(line, ",", 2)
	name = strings.TrimSpace(parts[0])
	dither = 1
	if len(parts) > 1 {
		if v, err := strconv.ParseFloat(strings.TrimSpace(parts[1]), 64); err == nil {
			dither = v
		}
	}
	return name, dither
}

func printLoadSummary(s *store.Store, space, name string) {
	d, status, err := s.Density(space, name)
	if !reportStatus(status, err) {
		return
	}
	fmt.Println(labelStyle.Render("name") + valueStyle.Render(name))
	fmt.Println(labelStyle.Render("density") + valueStyle.Render(fmt.Sprintf("%.6f", d)))
}

func report(err error, ok string) {
	if err != nil {
		fmt.Println(errorStyle.Render(err.Error()))
		return
	}
	fmt.Println(successStyle.Render(ok))
}

func reportStatus(status store.Status, err error) bool {
	if err != nil {
		fmt.Println(errorStyle.Render(err.Error()))
		return false
	}
	if store.IsError(status) {
		fmt.Println(warningStyle.Render(status.String()))
		return false
	}
	return true
}
