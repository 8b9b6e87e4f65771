package cli

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/bk-med/kanban/pkg/board"
	"github.com/bk-med/kanban/pkg/client"
)

func newLoginCmd(app *App) *cobra.Command {
	var username, password string
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Log in and store the token pair",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			in := bufio.NewReader(app.In)
			var err error
			if username == "" {
				if username, err = prompt(app.Out, in, "Username: "); err != nil {
					return err
				}
			}
			if password == "" {
				if password, err = prompt(app.Out, in, "Password: "); err != nil {
					return err
				}
			}
			if err := app.session.Login(cmd.Context(), username, password); err != nil {
				return err
			}
			fmt.Fprintf(app.Out, "Logged in as %s\n", username)
			return nil
		},
	}
	cmd.Flags().StringVarP(&username, "username", "u", "", "username")
	cmd.Flags().StringVarP(&password, "password", "p", "", "password, read from stdin when omitted")
	return cmd
}

func prompt(out io.Writer, in *bufio.Reader, label string) (string, error) {
	fmt.Fprint(out, label)
	line, err := in.ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", err
	}
	line = strings.TrimSpace(line)
	if line == "" {
		return "", fmt.Errorf("%s is required", strings.ToLower(strings.TrimSuffix(label, ": ")))
	}
	return line, nil
}

func newLogoutCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Revoke the refresh token and forget credentials",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			err := app.session.Logout(cmd.Context())
			fmt.Fprintln(app.Out, "Logged out")
			if err != nil {
				app.logger.WithError(err).Warn("Server did not confirm logout")
			}
			return nil
		},
	}
}

func newWhoamiCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "Show the current user",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := app.client()
			if err != nil {
				return err
			}
			me, err := c.Me(cmd.Context())
			if err != nil {
				return err
			}
			role := "member"
			if me.IsStaff || me.IsSuperuser {
				role = "admin"
			}
			fmt.Fprintf(app.Out, "%s <%s> (%s)\n", me.Username, me.Email, role)
			return nil
		},
	}
}

func newProjectsCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "projects",
		Short: "List the projects you belong to",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := app.client()
			if err != nil {
				return err
			}
			projects, err := c.ListProjects(cmd.Context())
			if err != nil {
				return err
			}
			if len(projects) == 0 {
				fmt.Fprintln(app.Out, "No projects.")
				return nil
			}

			w := tabwriter.NewWriter(app.Out, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tNAME\tOWNER\tTASKS\tMEMBERS")
			for _, p := range projects {
				fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%d\n", p.ID, p.Name, p.Owner.Username, p.TaskCount, p.MemberCount)
			}
			return w.Flush()
		},
	}
}

func newBoardCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "board <project>",
		Short: "Show the tasks of a project by column",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			b, err := app.openBoard(cmd, args[0])
			if err != nil {
				return err
			}
			defer b.Close()
			return printBoard(app.Out, b)
		},
	}
}

func newMoveCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "move <project> <task> <status>",
		Short: "Move a task to TODO, IN_PROGRESS or DONE",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			status, err := parseStatus(args[2])
			if err != nil {
				return err
			}
			b, err := app.openBoard(cmd, args[0])
			if err != nil {
				return err
			}
			defer b.Close()

			if err := b.Move(cmd.Context(), args[1], status); err != nil {
				var moveErr *board.MoveError
				if errors.As(err, &moveErr) {
					return fmt.Errorf("move rejected, task stays in %s: %w", moveErr.Restored, moveErr.Err)
				}
				return err
			}
			task, _ := b.Task(args[1])
			fmt.Fprintf(app.Out, "%s %q is now %s\n", task.ID, task.Title, task.Status)
			return nil
		},
	}
}

func newAddCmd(app *App) *cobra.Command {
	var description, priority, due, assignee string
	cmd := &cobra.Command{
		Use:   "add <project> <title>",
		Short: "Create a task",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := app.client()
			if err != nil {
				return err
			}
			b := board.New(c, args[0], board.WithLogger(app.logger))
			defer b.Close()

			input := client.TaskInput{
				Title:       args[1],
				Description: description,
				Priority:    strings.ToUpper(priority),
			}
			if due != "" {
				input.DueDate = &due
			}
			if assignee != "" {
				input.AssignedToID = &assignee
			}
			task, err := b.Create(cmd.Context(), input)
			if err != nil {
				return err
			}
			fmt.Fprintf(app.Out, "Created %s %q in %s\n", task.ID, task.Title, task.Status)
			return nil
		},
	}
	cmd.Flags().StringVarP(&description, "description", "d", "", "task description")
	cmd.Flags().StringVar(&priority, "priority", "", "LOW, MEDIUM or HIGH")
	cmd.Flags().StringVar(&due, "due", "", "due date, YYYY-MM-DD")
	cmd.Flags().StringVar(&assignee, "assign", "", "user ID to assign")
	return cmd
}

func newRmCmd(app *App) *cobra.Command {
	var yes bool
	cmd := &cobra.Command{
		Use:   "rm <project> <task>",
		Short: "Delete a task",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := app.client()
			if err != nil {
				return err
			}
			if !yes {
				ok, err := confirm(app.Out, bufio.NewReader(app.In), fmt.Sprintf("Delete task %s? [y/N]: ", args[1]))
				if err != nil {
					return err
				}
				if !ok {
					fmt.Fprintln(app.Out, "Aborted")
					return nil
				}
			}
			b := board.New(c, args[0], board.WithLogger(app.logger))
			defer b.Close()

			if err := b.Delete(cmd.Context(), args[1]); err != nil {
				return err
			}
			fmt.Fprintf(app.Out, "Deleted %s\n", args[1])
			return nil
		},
	}
	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "delete without asking")
	return cmd
}

// confirm reads one answer. Only y or yes, in any case, counts as consent.
func confirm(out io.Writer, in *bufio.Reader, question string) (bool, error) {
	fmt.Fprint(out, question)
	line, err := in.ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return false, err
	}
	switch strings.ToLower(strings.TrimSpace(line)) {
	case "y", "yes":
		return true, nil
	default:
		return false, nil
	}
}

func (a *App) openBoard(cmd *cobra.Command, projectID string) (*board.Board, error) {
	c, err := a.client()
	if err != nil {
		return nil, err
	}
	b := board.New(c, projectID, board.WithLogger(a.logger))
	if err := b.Load(cmd.Context()); err != nil {
		b.Close()
		return nil, err
	}
	return b, nil
}

func printBoard(out io.Writer, b *board.Board) error {
	cols := b.Columns()
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	for i, status := range client.Statuses {
		if i > 0 {
			fmt.Fprintln(w)
		}
		fmt.Fprintf(w, "%s (%d)\n", status, len(cols[status]))
		for _, t := range cols[status] {
			assignee := "-"
			if t.AssignedTo != nil {
				assignee = t.AssignedTo.Username
			}
			due := "-"
			if t.DueDate != nil {
				due = *t.DueDate
			}
			fmt.Fprintf(w, "  %s\t%s\t%s\t%s\t%s\n", t.ID, t.Title, t.Priority, assignee, due)
		}
	}
	return w.Flush()
}

// parseStatus accepts the API names in any case, with '-' or ' ' for '_'.
func parseStatus(raw string) (client.Status, error) {
	s := client.Status(strings.ToUpper(strings.NewReplacer("-", "_", " ", "_").Replace(strings.TrimSpace(raw))))
	if !s.Valid() {
		return "", fmt.Errorf("unknown status %q, want one of TODO, IN_PROGRESS, DONE", raw)
	}
	return s, nil
}
