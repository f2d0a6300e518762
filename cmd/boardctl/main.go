// Command boardctl drives a project board from the terminal: lanes, moves,
// roadmap links, comments and bulk generation.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"taskboard/internal/apiclient"
	"taskboard/internal/config"
	"taskboard/internal/models"
	"taskboard/internal/projectview"
	"taskboard/internal/telemetry"

	"github.com/spf13/cobra"
)

const (
	exitUserError = 1
	exitSysError  = 2
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "boardctl:", models.Describe(err))
		if isUserError(err) {
			os.Exit(exitUserError)
		}
		os.Exit(exitSysError)
	}
}

func isUserError(err error) bool {
	for _, target := range []error{
		models.ErrValidation, models.ErrReadOnly, models.ErrForbidden, models.ErrUnauthorized,
		models.ErrNotFound, models.ErrConflict, models.ErrPositionMismatch, models.ErrAlreadyConfirmed,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

// app is the state shared by every subcommand of one invocation.
type app struct {
	configFile string
	baseURL    string
	workspace  string
	project    string

	cfg    *config.Config
	log    *slog.Logger
	client *apiclient.Client
	otel   *telemetry.Provider
}

func newRootCmd() *cobra.Command {
	a := &app{}
	root := &cobra.Command{
		Use:           "boardctl",
		Short:         "Work with a project's task board and roadmap",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.init(cmd)
		},
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			return a.otel.Shutdown(context.WithoutCancel(cmd.Context()))
		},
	}
	flags := root.PersistentFlags()
	flags.StringVar(&a.configFile, "config", "", "config file (default: ./taskboard.yaml or ~/.config/taskboard/taskboard.yaml)")
	flags.StringVar(&a.baseURL, "base-url", "", "API base URL (overrides client.base_url)")
	flags.StringVarP(&a.workspace, "workspace", "w", "", "workspace id (overrides client.workspace)")
	flags.StringVarP(&a.project, "project", "p", "", "project id (overrides client.project)")

	root.AddCommand(
		newLoginCmd(a),
		newBoardCmd(a),
		newCreateCmd(a),
		newEditCmd(a),
		newMoveCmd(a),
		newDeleteCmd(a),
		newRoadmapCmd(a),
		newLinkCmd(a, models.LinkModeLink),
		newLinkCmd(a, models.LinkModeUnlink),
		newCommentsCmd(a),
		newGenerateCmd(a),
		newMemberCmd(a),
		newWatchCmd(a),
	)
	return root
}

func (a *app) init(cmd *cobra.Command) error {
	cfg, err := config.Load(a.configFile)
	if err != nil {
		return err
	}
	if a.baseURL != "" {
		cfg.Client.BaseURL = a.baseURL
	}
	if a.workspace != "" {
		cfg.Client.Workspace = a.workspace
	}
	if a.project != "" {
		cfg.Client.Project = a.project
	}
	if err := cfg.ValidateClient(); err != nil {
		return err
	}
	a.cfg = cfg
	a.log = telemetry.NewLogger(cfg.Log.Level, cmd.ErrOrStderr())
	if a.otel, err = telemetry.Init(cmd.Context(), cfg.Telemetry); err != nil {
		return err
	}
	a.client = apiclient.New(cfg.Client.BaseURL,
		apiclient.WithTimeout(cfg.Client.Timeout),
		apiclient.WithToken(cfg.Client.Token),
		apiclient.WithLogger(a.log),
	)
	return nil
}

// scope resolves the caller's role in the configured workspace.
func (a *app) scope(ctx context.Context) (models.Scope, error) {
	c := a.cfg.Client
	if c.Workspace == "" || c.Project == "" {
		return models.Scope{}, fmt.Errorf("%w: workspace and project are required", models.ErrValidation)
	}
	if a.client.Token() == "" {
		return models.Scope{}, fmt.Errorf("%w: run boardctl login first", models.ErrUnauthorized)
	}
	userID, err := a.client.UserID()
	if err != nil {
		return models.Scope{}, fmt.Errorf("%w: %v", models.ErrUnauthorized, err)
	}
	role, err := a.client.Role(ctx, c.Workspace)
	if err != nil {
		return models.Scope{}, err
	}
	return models.Scope{WorkspaceID: c.Workspace, ProjectID: c.Project, UserID: userID, Role: role}, nil
}

// open opens the configured project. The caller closes the view.
func (a *app) open(ctx context.Context) (*projectview.View, error) {
	scope, err := a.scope(ctx)
	if err != nil {
		return nil, err
	}
	metrics, err := telemetry.NewMetrics(a.otel.Meter)
	if err != nil {
		return nil, err
	}
	return projectview.Open(ctx, a.client, projectview.Config{
		Scope:           scope,
		LinkConcurrency: a.cfg.Client.LinkConcurrency,
		Log:             a.log,
		Telemetry:       a.otel,
		Metrics:         metrics,
	})
}

func out(cmd *cobra.Command) io.Writer { return cmd.OutOrStdout() }
