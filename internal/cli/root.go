// Package cli implements the kanban command line client.
package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/bk-med/kanban/pkg/client"
)

// App carries what every command needs. Streams are replaceable for tests.
type App struct {
	In  io.Reader
	Out io.Writer
	Err io.Writer

	configPath string
	server     string
	verbose    bool

	cfg     *Config
	session *client.Session
	logger  *logrus.Logger
}

func NewApp() *App {
	return &App{In: os.Stdin, Out: os.Stdout, Err: os.Stderr}
}

// NewRootCommand builds the command tree bound to app.
func NewRootCommand(app *App) *cobra.Command {
	root := &cobra.Command{
		Use:           "kanban",
		Short:         "Command line client for the kanban API",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return app.setup()
		},
	}
	root.SetIn(app.In)
	root.SetOut(app.Out)
	root.SetErr(app.Err)

	root.PersistentFlags().StringVar(&app.configPath, "config", "", "config file (default ~/.kanban/config.yaml)")
	root.PersistentFlags().StringVar(&app.server, "server", "", "API base URL, overrides the config file")
	root.PersistentFlags().BoolVarP(&app.verbose, "verbose", "v", false, "enable debug logging")

	root.AddCommand(
		newLoginCmd(app),
		newLogoutCmd(app),
		newWhoamiCmd(app),
		newProjectsCmd(app),
		newBoardCmd(app),
		newMoveCmd(app),
		newAddCmd(app),
		newRmCmd(app),
	)
	return root
}

// Execute runs the CLI and prints the error, if any, to stderr.
func Execute(ctx context.Context, app *App, args []string) error {
	root := NewRootCommand(app)
	root.SetArgs(args)
	if err := root.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(app.Err, "Error:", describe(err))
		return err
	}
	return nil
}

func (a *App) setup() error {
	cfg, err := LoadConfig(a.configPath)
	if err != nil {
		return err
	}
	if a.server != "" {
		cfg.Server = a.server
	}
	a.cfg = cfg

	a.logger = logrus.New()
	a.logger.SetOutput(a.Err)
	a.logger.SetLevel(logrus.WarnLevel)
	if a.verbose {
		a.logger.SetLevel(logrus.DebugLevel)
	}

	a.session = client.NewSession(cfg.Server, client.NewFileStore(cfg.Credentials))
	a.session.OnLogout(func() {
		a.logger.WithField("server", cfg.Server).Debug("Session ended")
	})
	a.logger.WithFields(logrus.Fields{"server": cfg.Server, "credentials": cfg.Credentials}).Debug("CLI configured")
	return nil
}

func (a *App) client() (*client.Client, error) {
	if !a.session.Authenticated() {
		return nil, client.ErrNotLoggedIn
	}
	return a.session.Client(), nil
}

// describe turns client errors into a line a user can act on.
func describe(err error) string {
	switch {
	case errors.Is(err, client.ErrNotLoggedIn), errors.Is(err, client.ErrSessionExpired):
		return "not logged in or session expired, run `kanban login`"
	case client.IsTransient(err):
		return fmt.Sprintf("cannot reach the server: %v", err)
	default:
		return err.Error()
	}
}
