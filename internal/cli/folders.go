// Package cli provides folder operation commands.
package cli

import (
	"fmt"
	"io"
	"os"
	"sync"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/rescale/rescale-foldernav/internal/constants"
	"github.com/rescale/rescale-foldernav/internal/models"
	"github.com/rescale/rescale-foldernav/internal/navigator"
	"github.com/rescale/rescale-foldernav/internal/progress"
	"github.com/rescale/rescale-foldernav/internal/tree"
)

// idArg returns args[0] or the root id.
func idArg(args []string) string {
	if len(args) > 0 && args[0] != "" {
		return args[0]
	}
	return models.RootID
}

// sortFlags binds --sort, --desc and --folders-first.
type sortFlags struct {
	field        string
	desc         bool
	foldersFirst bool
}

func (f *sortFlags) bind(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.field, "sort", "", "Sort by name, date or size (default: listing order)")
	cmd.Flags().BoolVar(&f.desc, "desc", false, "Reverse the sort order")
	cmd.Flags().BoolVar(&f.foldersFirst, "folders-first", false, "List folders before files")
}

func (f *sortFlags) spec() (tree.SortSpec, error) {
	field, err := tree.ParseSortField(f.field)
	if err != nil {
		return tree.SortSpec{}, err
	}
	return tree.SortSpec{Field: field, Descending: f.desc, FoldersFirst: f.foldersFirst}, nil
}

func kindMarker(n models.Node) string {
	if n.IsFolder() {
		return "d"
	}
	return "-"
}

func kindLabel(k models.Kind) string {
	if k == models.KindFolder {
		return "Folder"
	}
	return "File"
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.Local().Format("2006-01-02 15:04")
}

// printListing writes one line per child. long adds id, size and date.
func printListing(w io.Writer, children []models.Node, long bool) error {
	if !long {
		for _, c := range children {
			name := c.Name
			if c.IsFolder() {
				name += "/"
			}
			fmt.Fprintln(w, name)
		}
		return nil
	}
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "KIND\tNAME\tID\tSIZE\tUPDATED")
	for _, c := range children {
		size := "-"
		if !c.IsFolder() {
			size = fmt.Sprintf("%d", c.Size)
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", kindMarker(c), c.Name, c.ID, size, formatTime(c.UpdatedAt))
	}
	return tw.Flush()
}

// newLsCmd creates the 'ls' command.
func newLsCmd() *cobra.Command {
	var long bool
	var sf sortFlags

	cmd := &cobra.Command{
		Use:   "ls [folder-id]",
		Short: "List folder contents",
		Long: `List the files and subfolders of a folder (default: root).

Example:
  rescale-foldernav ls
  rescale-foldernav ls -l --sort date --desc folder-1`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			spec, err := sf.spec()
			if err != nil {
				return err
			}
			ctx := GetContext()
			nav, _, err := newNavigator(ctx, nil)
			if err != nil {
				return err
			}
			defer nav.Close()

			id := idArg(args)
			if err := nav.Ensure(ctx, id); err != nil {
				return fmt.Errorf("failed to list %s: %w", id, err)
			}
			n, err := nav.Get(id)
			if err != nil {
				return err
			}
			if !n.IsFolder() {
				return printListing(cmd.OutOrStdout(), []models.Node{n}, long)
			}
			children, err := nav.Cache().Children(id, spec)
			if err != nil {
				return err
			}
			return printListing(cmd.OutOrStdout(), children, long)
		},
	}

	cmd.Flags().BoolVarP(&long, "long", "l", false, "Show kind, id, size and modification time")
	sf.bind(cmd)
	return cmd
}

// printTree renders the cached subtree under id down to depth levels.
func printTree(w io.Writer, cache *tree.Cache, id string, depth int, spec tree.SortSpec) {
	var walk func(n models.Node, indent string, level int)
	walk = func(n models.Node, indent string, level int) {
		if level >= depth || !n.IsFolder() {
			return
		}
		children, err := cache.Children(n.ID, spec)
		if err != nil {
			return
		}
		for i, c := range children {
			branch, next := "├── ", "│   "
			if i == len(children)-1 {
				branch, next = "└── ", "    "
			}
			name := c.Name
			if c.IsFolder() {
				name += "/"
				if cache.Status(c.ID) != tree.StatusLoaded && level+1 < depth {
					name += " (not loaded)"
				}
			}
			fmt.Fprintf(w, "%s%s%s\n", indent, branch, name)
			if full, err := cache.Get(c.ID); err == nil {
				walk(full, indent+next, level+1)
			}
		}
	}

	root, err := cache.Get(id)
	if err != nil {
		return
	}
	fmt.Fprintln(w, models.FormatPath(tree.Resolve(cache, id)))
	walk(root, "", 0)
}

// newTreeCmd creates the 'tree' command.
func newTreeCmd() *cobra.Command {
	var depth int
	var sf sortFlags

	cmd := &cobra.Command{
		Use:   "tree [folder-id]",
		Short: "Print a folder subtree",
		Long: `Load a folder subtree breadth-first and print it.

Example:
  rescale-foldernav tree --depth 2
  rescale-foldernav tree folder-1 --sort name --folders-first`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if depth < 1 {
				return fmt.Errorf("--depth must be at least 1, got %d", depth)
			}
			spec, err := sf.spec()
			if err != nil {
				return err
			}
			ctx := GetContext()
			nav, _, err := newNavigator(ctx, nil)
			if err != nil {
				return err
			}
			defer nav.Close()

			id := idArg(args)
			if err := nav.Prefetch(ctx, id, depth, nil); err != nil {
				return fmt.Errorf("failed to load %s: %w", id, err)
			}
			printTree(cmd.OutOrStdout(), nav.Cache(), id, depth, spec)
			return nil
		},
	}

	cmd.Flags().IntVarP(&depth, "depth", "d", constants.DefaultPrefetchDepth, "Levels to load and print")
	sf.bind(cmd)
	return cmd
}

// createNode runs a create through the navigator and prints the result.
func createNode(cmd *cobra.Command, parentID string, draft models.Draft) error {
	ctx := GetContext()
	nav, _, err := newNavigator(ctx, nil)
	if err != nil {
		return err
	}
	defer nav.Close()

	created, err := nav.Create(ctx, parentID, draft)
	if err != nil && created.ID == "" {
		return fmt.Errorf("failed to create %s: %w", draft.Name, err)
	}
	if err != nil {
		GetLogger().Warn().Err(err).Msg("Created, but the parent listing could not be refreshed")
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "✓ %s created\n", kindLabel(created.Kind))
	fmt.Fprintf(out, "  Name: %s\n", created.Name)
	fmt.Fprintf(out, "  ID: %s\n", created.ID)
	fmt.Fprintf(out, "  Path: %s\n", models.FormatPath(nav.BreadcrumbFor(created.ID)))
	return nil
}

// newMkdirCmd creates the 'mkdir' command.
func newMkdirCmd() *cobra.Command {
	var parentID string

	cmd := &cobra.Command{
		Use:   "mkdir <name>",
		Short: "Create a folder",
		Long: `Create a folder (default parent: root).

Example:
  rescale-foldernav mkdir "Q3 Reports" --parent-id folder-1`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return createNode(cmd, parentID, models.Draft{Name: args[0], Kind: models.KindFolder})
		},
	}

	cmd.Flags().StringVarP(&parentID, "parent-id", "p", models.RootID, "Parent folder ID")
	return cmd
}

// newTouchCmd creates the 'touch' command.
func newTouchCmd() *cobra.Command {
	var parentID, sql, sqlFile, description, databaseID string

	cmd := &cobra.Command{
		Use:   "touch <name>",
		Short: "Create a file",
		Long: `Create a file holding a SQL query (default parent: root).

Example:
  rescale-foldernav touch "Q3 Report" --parent-id folder-1-1 --sql "SELECT 1"
  rescale-foldernav touch "Churn" --sql-file churn.sql --database analytics`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if sql != "" && sqlFile != "" {
				return fmt.Errorf("--sql and --sql-file are mutually exclusive")
			}
			if sqlFile != "" {
				data, err := os.ReadFile(sqlFile)
				if err != nil {
					return fmt.Errorf("failed to read %s: %w", sqlFile, err)
				}
				sql = string(data)
			}
			return createNode(cmd, parentID, models.Draft{
				Name:        args[0],
				Kind:        models.KindFile,
				SQL:         sql,
				Description: description,
				DatabaseID:  databaseID,
			})
		},
	}

	cmd.Flags().StringVarP(&parentID, "parent-id", "p", models.RootID, "Parent folder ID")
	cmd.Flags().StringVar(&sql, "sql", "", "SQL text of the file")
	cmd.Flags().StringVar(&sqlFile, "sql-file", "", "Read the SQL text from a local file")
	cmd.Flags().StringVar(&description, "description", "", "File description")
	cmd.Flags().StringVar(&databaseID, "database", "", "Database the query runs against")
	return cmd
}

// newRenameCmd creates the 'rename' command.
func newRenameCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "rename <id> <new-name>",
		Short: "Rename a file or folder",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := GetContext()
			nav, _, err := newNavigator(ctx, nil)
			if err != nil {
				return err
			}
			defer nav.Close()

			renamed, err := nav.Rename(ctx, args[0], args[1])
			if err != nil && renamed.Name == "" {
				return fmt.Errorf("failed to rename %s: %w", args[0], err)
			}
			if err != nil {
				GetLogger().Warn().Err(err).Msg("Renamed, but the parent listing could not be refreshed")
			}
			fmt.Fprintf(cmd.OutOrStdout(), "✓ Renamed to %s\n", renamed.Name)
			if renamed.ID != "" && renamed.ID != args[0] {
				fmt.Fprintf(cmd.OutOrStdout(), "  New ID: %s\n", renamed.ID)
			}
			return nil
		},
	}
}

// newRmCmd creates the 'rm' command.
func newRmCmd() *cobra.Command {
	var yes bool

	cmd := &cobra.Command{
		Use:   "rm <id>",
		Short: "Delete a file or folder",
		Long: `Delete a file or folder. Whether a non-empty folder can be deleted is
decided by the folder service (see [server] delete_policy).

Example:
  rescale-foldernav rm file-2-1 --yes`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := GetContext()
			nav, _, err := newNavigator(ctx, nil)
			if err != nil {
				return err
			}
			defer nav.Close()

			id := args[0]
			if !yes {
				label := id
				if n, err := nav.Get(id); err == nil {
					label = n.Name
				}
				ok, err := promptConfirm(cmd.InOrStdin(), cmd.OutOrStdout(), fmt.Sprintf("Delete %s?", label))
				if err != nil {
					return err
				}
				if !ok {
					fmt.Fprintln(cmd.OutOrStdout(), "Aborted.")
					return nil
				}
			}

			if err := nav.Delete(ctx, id); err != nil {
				return fmt.Errorf("failed to delete %s: %w", id, err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "✓ Deleted %s\n", id)
			return nil
		},
	}

	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "Do not ask for confirmation")
	return cmd
}

// newPrefetchCmd creates the 'prefetch' command.
func newPrefetchCmd() *cobra.Command {
	var depth int

	cmd := &cobra.Command{
		Use:   "prefetch [folder-id]",
		Short: "Load a folder subtree and report timings",
		Long: `Load a folder subtree breadth-first, fetch_concurrency folders at a
time, and report how many folders were loaded.

Example:
  rescale-foldernav prefetch --depth 5`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if depth < 1 {
				return fmt.Errorf("--depth must be at least 1, got %d", depth)
			}
			ctx := GetContext()
			nav, cfg, err := newNavigator(ctx, nil)
			if err != nil {
				return err
			}
			defer nav.Close()

			var reporter progress.Reporter = progress.NewNoOpProgress()
			if term.IsTerminal(int(os.Stderr.Fd())) {
				reporter = progress.NewCLIProgress(os.Stderr)
			}

			id := idArg(args)
			start := time.Now()
			var mu sync.Mutex
			loaded, files := 0, 0
			reporter.Start(-1, "Prefetching")
			err = nav.Prefetch(ctx, id, depth, func(n models.Node) {
				mu.Lock()
				defer mu.Unlock()
				loaded++
				for _, c := range n.Children {
					if !c.IsFolder() {
						files++
					}
				}
				reporter.Add(1)
			})
			reporter.Finish()

			logPrefetch(nav, id, depth, cfg.Navigation.FetchConcurrency, loaded, time.Since(start), err)
			if err != nil {
				return fmt.Errorf("prefetch stopped: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "✓ Loaded %d folders (%d files) in %s\n",
				loaded, files, time.Since(start).Round(time.Millisecond))
			return nil
		},
	}

	cmd.Flags().IntVarP(&depth, "depth", "d", constants.DefaultPrefetchDepth, "Levels to load")
	return cmd
}

func logPrefetch(nav *navigator.Navigator, id string, depth, concurrency, loaded int, elapsed time.Duration, err error) {
	ev := GetLogger().Debug()
	if err != nil {
		ev = GetLogger().Warn().Err(err)
	}
	ev.Str("root", id).
		Int("depth", depth).
		Int("concurrency", concurrency).
		Int("loaded", loaded).
		Int("cached", nav.Cache().Len()).
		Dur("elapsed", elapsed).
		Msg("Prefetch finished")
}
