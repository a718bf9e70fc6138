package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/rescale/rescale-foldernav/internal/constants"
	"github.com/rescale/rescale-foldernav/internal/events"
	"github.com/rescale/rescale-foldernav/internal/models"
	"github.com/rescale/rescale-foldernav/internal/navigator"
	"github.com/rescale/rescale-foldernav/internal/tree"
)

// errUsage marks a malformed shell command.
var errUsage = errors.New("usage")

// newBrowseCmd creates the 'browse' command.
func newBrowseCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "browse",
		Short: "Browse the folder tree interactively",
		Long: `Start an interactive shell over the folder tree. The prompt shows the
breadcrumb of the current folder. Type 'help' for the command list.

Folders are fetched when first opened and kept in memory for the rest of
the session; 'refresh' re-fetches.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := GetContext()
			bus := events.NewEventBus(constants.EventBusDefaultBuffer)
			defer bus.Close()

			nav, _, err := newNavigator(ctx, bus)
			if err != nil {
				return err
			}
			defer nav.Close()

			fd := int(os.Stdin.Fd())
			if term.IsTerminal(fd) && term.IsTerminal(int(os.Stdout.Fd())) {
				return runTerminal(ctx, nav, bus, fd)
			}
			sh := newShell(ctx, nav, bus, cmd.OutOrStdout())
			nav.Select(ctx, models.RootID)
			sh.settle()
			return sh.run(bufio.NewScanner(cmd.InOrStdin()))
		},
	}
	return cmd
}

// runTerminal drives the shell on a raw-mode terminal with line editing
// and history.
func runTerminal(ctx context.Context, nav *navigator.Navigator, bus *events.EventBus, fd int) error {
	oldState, err := term.MakeRaw(fd)
	if err != nil {
		return fmt.Errorf("failed to enter raw mode: %w", err)
	}
	defer term.Restore(fd, oldState)

	t := term.NewTerminal(struct {
		io.Reader
		io.Writer
	}{os.Stdin, os.Stdout}, "")
	if w, h, err := term.GetSize(fd); err == nil {
		_ = t.SetSize(w, h)
	}

	sh := newShell(ctx, nav, bus, t)
	nav.Select(ctx, models.RootID)
	sh.settle()
	fmt.Fprintln(t, "Type 'help' for commands, 'quit' to leave.")

	for {
		if ctx.Err() != nil {
			return nil
		}
		t.SetPrompt(sh.prompt())
		line, err := t.ReadLine()
		if err == io.EOF {
			fmt.Fprintln(t)
			return nil
		}
		if err != nil {
			return err
		}
		quit, err := sh.exec(line)
		sh.report(err)
		if quit {
			return nil
		}
	}
}

// shell interprets browse commands against a navigator.
type shell struct {
	ctx      context.Context
	nav      *navigator.Navigator
	out      io.Writer
	sort     tree.SortSpec
	failures <-chan events.Event
}

func newShell(ctx context.Context, nav *navigator.Navigator, bus *events.EventBus, out io.Writer) *shell {
	return &shell{
		ctx:      ctx,
		nav:      nav,
		out:      out,
		failures: bus.Subscribe(events.EventNodeLoadFailed),
	}
}

// run reads commands until EOF or quit. Used when stdin is not a terminal.
func (s *shell) run(scanner *bufio.Scanner) error {
	for scanner.Scan() {
		if s.ctx.Err() != nil {
			return nil
		}
		quit, err := s.exec(scanner.Text())
		s.report(err)
		if quit {
			return nil
		}
	}
	return scanner.Err()
}

func (s *shell) prompt() string {
	return models.FormatPath(s.nav.BreadcrumbFor(s.cwd())) + " $ "
}

func (s *shell) report(err error) {
	switch {
	case err == nil:
	case errors.Is(err, errUsage):
		fmt.Fprintf(s.out, "%v (type 'help')\n", err)
	case navigator.IsRemote(err):
		fmt.Fprintf(s.out, "server error: %v\n", err)
	default:
		fmt.Fprintf(s.out, "error: %v\n", err)
	}
}

// settle waits for background fetches and prints the failures they
// published.
func (s *shell) settle() {
	s.nav.Wait()
	for {
		select {
		case ev, ok := <-s.failures:
			if !ok {
				return
			}
			if ne, isNode := ev.(*events.NodeEvent); isNode {
				fmt.Fprintf(s.out, "! could not load %s: %v\n", s.label(ne.NodeID), ne.Error)
			}
		default:
			return
		}
	}
}

// cwd is the selected folder, or the parent of a selected file.
func (s *shell) cwd() string {
	id := s.nav.Selected()
	if n, err := s.nav.Get(id); err == nil && !n.IsFolder() {
		if parent, ok := s.nav.Cache().ParentOf(id); ok {
			return parent
		}
		return models.RootID
	}
	return id
}

func (s *shell) label(id string) string {
	if n, err := s.nav.Get(id); err == nil && n.Name != "" {
		return n.Name
	}
	return id
}

// resolve maps a shell argument to a node id: "/" is the root, ".." the
// parent of the current folder, a child name of the current folder, or
// any cached id.
func (s *shell) resolve(arg string) (string, error) {
	cwd := s.cwd()
	switch arg {
	case "", ".":
		return cwd, nil
	case "/":
		return models.RootID, nil
	case "..":
		if parent, ok := s.nav.Cache().ParentOf(cwd); ok {
			return parent, nil
		}
		return models.RootID, nil
	}
	if children, err := s.nav.Cache().Children(cwd, tree.SortSpec{}); err == nil {
		for _, c := range children {
			if c.Name == arg {
				return c.ID, nil
			}
		}
	}
	if s.nav.Cache().Has(arg) {
		return arg, nil
	}
	return "", fmt.Errorf("%s: no such file or folder", arg)
}

func (s *shell) resolveFolder(arg string) (string, error) {
	id, err := s.resolve(arg)
	if err != nil {
		return "", err
	}
	if n, err := s.nav.Get(id); err == nil && !n.IsFolder() {
		return "", fmt.Errorf("%s: %w", arg, models.ErrNotAFolder)
	}
	return id, nil
}

const shellHelp = `Commands:
  ls [folder]                 list a folder (default: current)
  cd <folder|..|/>            open a folder
  up                          open the parent folder
  back, forward               move through history
  history                     show visited folders
  open <folder>               root the view at a folder
  expand <folder>             expand a folder in the view
  collapse <folder>           collapse a folder
  collapse-all                collapse everything but the root
  view                        print the expanded tree
  tree [depth]                load and print the current subtree
  show <file>                 select a file and print its query
  mkdir <name>                create a folder here
  touch <name> [sql...]       create a file here
  rename <node> <new-name>    rename a file or folder
  rm <node>                   delete a file or folder
  refresh [all]               re-fetch this folder or every expanded folder
  sort <name|date|size|none> [desc] [folders-first]
  pwd                         print the breadcrumb
  status                      show pending loads and failures
  quit                        leave
Quote names that contain spaces: cd "Q1 Report"`

// exec runs one command line.
func (s *shell) exec(line string) (quit bool, err error) {
	args, err := splitArgs(line)
	if err != nil {
		return false, err
	}
	if len(args) == 0 {
		return false, nil
	}
	defer s.settle()

	cmd, rest := args[0], args[1:]
	arg := func(i int) string {
		if i < len(rest) {
			return rest[i]
		}
		return ""
	}

	switch cmd {
	case "quit", "exit", "q":
		return true, nil
	case "help", "?":
		fmt.Fprintln(s.out, shellHelp)
	case "pwd":
		fmt.Fprintln(s.out, models.FormatPath(s.nav.Breadcrumb()))
	case "ls":
		return false, s.ls(arg(0))
	case "cd":
		if len(rest) != 1 {
			return false, fmt.Errorf("%w: cd <folder>", errUsage)
		}
		return false, s.cd(rest[0])
	case "up":
		return false, s.cd("..")
	case "back":
		id, err := s.nav.Back(s.ctx)
		if err != nil {
			return false, err
		}
		s.nav.Wait()
		fmt.Fprintln(s.out, models.FormatPath(s.nav.BreadcrumbFor(id)))
	case "forward":
		id, err := s.nav.Forward(s.ctx)
		if err != nil {
			return false, err
		}
		s.nav.Wait()
		fmt.Fprintln(s.out, models.FormatPath(s.nav.BreadcrumbFor(id)))
	case "history":
		s.history()
	case "open":
		id, err := s.resolveFolder(arg(0))
		if err != nil {
			return false, err
		}
		s.nav.OpenAsRoot(s.ctx, id)
	case "expand":
		id, err := s.resolveFolder(arg(0))
		if err != nil {
			return false, err
		}
		s.nav.Expand(s.ctx, id)
	case "collapse":
		id, err := s.resolveFolder(arg(0))
		if err != nil {
			return false, err
		}
		s.nav.Collapse(id)
	case "collapse-all":
		s.nav.CollapseAll()
	case "view":
		s.nav.Wait()
		s.printView()
	case "tree":
		depth := constants.DefaultPrefetchDepth
		if v := arg(0); v != "" {
			d, err := strconv.Atoi(v)
			if err != nil || d < 1 {
				return false, fmt.Errorf("%w: tree [depth], depth >= 1", errUsage)
			}
			depth = d
		}
		cwd := s.cwd()
		if err := s.nav.Prefetch(s.ctx, cwd, depth, nil); err != nil {
			return false, err
		}
		printTree(s.out, s.nav.Cache(), cwd, depth, s.sort)
	case "show":
		return false, s.show(arg(0))
	case "mkdir":
		if len(rest) != 1 {
			return false, fmt.Errorf("%w: mkdir <name>", errUsage)
		}
		return false, s.create(models.Draft{Name: rest[0], Kind: models.KindFolder})
	case "touch":
		if len(rest) < 1 {
			return false, fmt.Errorf("%w: touch <name> [sql...]", errUsage)
		}
		return false, s.create(models.Draft{Name: rest[0], Kind: models.KindFile, SQL: strings.Join(rest[1:], " ")})
	case "rename":
		if len(rest) != 2 {
			return false, fmt.Errorf("%w: rename <node> <new-name>", errUsage)
		}
		return false, s.rename(rest[0], rest[1])
	case "rm":
		if len(rest) != 1 {
			return false, fmt.Errorf("%w: rm <node>", errUsage)
		}
		return false, s.remove(rest[0])
	case "refresh":
		if arg(0) == "all" {
			return false, s.nav.RefreshExpanded(s.ctx)
		}
		return false, s.nav.Refresh(s.ctx, s.cwd())
	case "sort":
		return false, s.setSort(rest)
	case "status":
		s.status()
	default:
		return false, fmt.Errorf("%w: unknown command %q", errUsage, cmd)
	}
	return false, nil
}

func (s *shell) ls(target string) error {
	id, err := s.resolveFolder(target)
	if err != nil {
		return err
	}
	if err := s.nav.Ensure(s.ctx, id); err != nil {
		return err
	}
	children, err := s.nav.Cache().Children(id, s.sort)
	if err != nil {
		return err
	}
	if len(children) == 0 {
		fmt.Fprintln(s.out, "(empty)")
		return nil
	}
	return printListing(s.out, children, false)
}

func (s *shell) cd(target string) error {
	id, err := s.resolveFolder(target)
	if err != nil {
		return err
	}
	s.nav.Select(s.ctx, id)
	s.nav.Wait()
	if err := s.nav.LastError(id); err != nil {
		return nil // reported by settle
	}
	if s.nav.Cache().Status(id) == tree.StatusLoaded {
		n, _ := s.nav.Get(id)
		fmt.Fprintf(s.out, "%s (%d entries)\n", models.FormatPath(s.nav.BreadcrumbFor(id)), len(n.Children))
	}
	return nil
}

func (s *shell) show(target string) error {
	if target == "" {
		return fmt.Errorf("%w: show <file>", errUsage)
	}
	id, err := s.resolve(target)
	if err != nil {
		return err
	}
	n, err := s.nav.Get(id)
	if err != nil {
		return err
	}
	if n.IsFolder() {
		return s.cd(target)
	}
	s.nav.Select(s.ctx, id)

	fmt.Fprintf(s.out, "%s\n", models.FormatPath(s.nav.BreadcrumbFor(id)))
	fmt.Fprintf(s.out, "  ID:       %s\n", n.ID)
	if n.DatabaseID != "" {
		fmt.Fprintf(s.out, "  Database: %s\n", n.DatabaseID)
	}
	if n.Description != "" {
		fmt.Fprintf(s.out, "  About:    %s\n", n.Description)
	}
	fmt.Fprintf(s.out, "  Updated:  %s\n", formatTime(n.UpdatedAt))
	if n.SQL != "" {
		fmt.Fprintln(s.out)
		fmt.Fprintln(s.out, n.SQL)
	}
	return nil
}

func (s *shell) create(draft models.Draft) error {
	created, err := s.nav.Create(s.ctx, s.cwd(), draft)
	if err != nil && created.ID == "" {
		return err
	}
	fmt.Fprintf(s.out, "created %s %s\n", created.Kind, created.Name)
	return err
}

func (s *shell) rename(target, name string) error {
	id, err := s.resolve(target)
	if err != nil {
		return err
	}
	renamed, err := s.nav.Rename(s.ctx, id, name)
	if err != nil && renamed.Name == "" {
		return err
	}
	fmt.Fprintf(s.out, "renamed to %s\n", renamed.Name)
	return err
}

func (s *shell) remove(target string) error {
	id, err := s.resolve(target)
	if err != nil {
		return err
	}
	label := s.label(id)
	if err := s.nav.Delete(s.ctx, id); err != nil {
		return err
	}
	fmt.Fprintf(s.out, "deleted %s\n", label)
	return nil
}

func (s *shell) setSort(args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("%w: sort <name|date|size|none> [desc] [folders-first]", errUsage)
	}
	field := args[0]
	if field == "none" {
		field = ""
	}
	f, err := tree.ParseSortField(field)
	if err != nil {
		return err
	}
	spec := tree.SortSpec{Field: f}
	for _, opt := range args[1:] {
		switch opt {
		case "desc":
			spec.Descending = true
		case "folders-first":
			spec.FoldersFirst = true
		default:
			return fmt.Errorf("%w: unknown sort option %q", errUsage, opt)
		}
	}
	s.sort = spec
	return nil
}

func (s *shell) history() {
	entries, cursor := s.nav.History()
	for i, id := range entries {
		mark := "  "
		if i == cursor {
			mark = "> "
		}
		fmt.Fprintf(s.out, "%s%s\n", mark, models.FormatPath(s.nav.BreadcrumbFor(id)))
	}
}

func (s *shell) status() {
	st := s.nav.Status()
	fmt.Fprintf(s.out, "Cached nodes:      %d\n", s.nav.Cache().Len())
	fmt.Fprintf(s.out, "Loading:           %d\n", len(st.Loading))
	fmt.Fprintf(s.out, "Pending mutations: %d\n", st.PendingMutations)
	if len(st.Failures) == 0 {
		return
	}
	fmt.Fprintln(s.out, "Failed loads:")
	for id, err := range st.Failures {
		fmt.Fprintf(s.out, "  %s: %v\n", s.label(id), err.Err)
	}
}

// printView renders the sidebar: the open root and every expanded
// folder's children. "*" marks the selection.
func (s *shell) printView() {
	v := s.nav.View()
	cache := s.nav.Cache()
	selected := v.Selected()

	var walk func(id, indent string)
	walk = func(id, indent string) {
		children, err := cache.Children(id, s.sort)
		if err != nil {
			return
		}
		for _, c := range children {
			mark := " "
			if c.ID == selected {
				mark = "*"
			}
			switch {
			case !c.IsFolder():
				fmt.Fprintf(s.out, "%s%s  %s\n", indent, mark, c.Name)
			case v.IsExpanded(c.ID):
				suffix := ""
				switch cache.Status(c.ID) {
				case tree.StatusLoading:
					suffix = " (loading)"
				case tree.StatusUnknown:
					if s.nav.LastError(c.ID) != nil {
						suffix = " (failed)"
					}
				}
				fmt.Fprintf(s.out, "%s%s▾ %s%s\n", indent, mark, c.Name, suffix)
				walk(c.ID, indent+"  ")
			default:
				fmt.Fprintf(s.out, "%s%s▸ %s\n", indent, mark, c.Name)
			}
		}
	}

	root := v.OpenRoot()
	mark := " "
	if root == selected {
		mark = "*"
	}
	fmt.Fprintf(s.out, "%s▾ %s\n", mark, s.label(root))
	walk(root, "  ")
}

// splitArgs splits a command line on spaces, keeping double-quoted
// sections together.
func splitArgs(line string) ([]string, error) {
	var args []string
	var cur strings.Builder
	inQuote, hasToken := false, false

	for _, r := range line {
		switch {
		case r == '"':
			inQuote = !inQuote
			hasToken = true
		case (r == ' ' || r == '\t') && !inQuote:
			if hasToken {
				args = append(args, cur.String())
				cur.Reset()
				hasToken = false
			}
		default:
			cur.WriteRune(r)
			hasToken = true
		}
	}
	if inQuote {
		return nil, fmt.Errorf("%w: unterminated quote", errUsage)
	}
	if hasToken {
		args = append(args, cur.String())
	}
	return args, nil
}
