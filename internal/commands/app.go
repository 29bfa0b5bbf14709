package commands

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/gaborage/go-kintone/kintone/app"
	"github.com/gaborage/go-kintone/middleware"
)

// ErrDeployFailed is returned by deploy --wait when an app does not reach SUCCESS
var ErrDeployFailed = errors.New("deployment did not succeed")

// DeployOptions holds the flags of the app deploy commands
type DeployOptions struct {
	Apps         []uint64
	Revert       bool
	Wait         bool
	PollInterval time.Duration
	Timeout      time.Duration
}

// NewAppCommand creates the app command group
func NewAppCommand(global *GlobalOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "app",
		Short: "Manage app settings",
	}

	cmd.AddCommand(
		newAppDeployCommand(global),
		newAppDeployStatusCommand(global),
	)

	return cmd
}

func newAppDeployCommand(global *GlobalOptions) *cobra.Command {
	opts := &DeployOptions{}

	cmd := &cobra.Command{
		Use:   "deploy APP_ID...",
		Short: "Deploy pending app settings to production",
		Example: `  kintone app deploy 12 13 --wait
  kintone app deploy 12 --revert`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ids, err := parseIDs(args)
			if err != nil {
				return err
			}
			opts.Apps = ids

			s, err := global.connect(cmd)
			if err != nil {
				return err
			}
			defer s.close()

			req := app.DeployAppSettings().Revert(opts.Revert)
			for _, id := range opts.Apps {
				req.App(id, -1)
			}
			if _, err := req.Send(cmd.Context(), s.client); err != nil {
				return err
			}
			if !opts.Wait {
				return nil
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), opts.Timeout)
			defer cancel()
			status, err := waitForDeploy(ctx, s.client, opts.Apps, opts.PollInterval)
			if err != nil {
				return err
			}
			if err := printJSON(cmd.OutOrStdout(), status); err != nil {
				return err
			}
			for _, st := range status.Apps {
				if st.Status != app.DeploySuccess {
					return fmt.Errorf("%w: app %d is %s", ErrDeployFailed, st.App, st.Status)
				}
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&opts.Revert, "revert", false, "Discard pending settings instead of deploying")
	cmd.Flags().BoolVarP(&opts.Wait, "wait", "w", false, "Poll until every app finished deploying")
	cmd.Flags().DurationVar(&opts.PollInterval, "poll-interval", time.Second, "Delay between status polls")
	cmd.Flags().DurationVar(&opts.Timeout, "timeout", 5*time.Minute, "Give up waiting after this long")

	return cmd
}

// waitForDeploy polls until no app is still processing.
func waitForDeploy(ctx context.Context, svc middleware.Service, apps []uint64, interval time.Duration) (*app.GetAppDeployStatusResponse, error) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		status, err := app.GetAppDeployStatus(apps...).Send(ctx, svc)
		if err != nil {
			return nil, err
		}
		done := true
		for _, st := range status.Apps {
			if !st.Status.Done() {
				done = false
				break
			}
		}
		if done {
			return status, nil
		}

		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("waiting for deployment: %w", ctx.Err())
		case <-ticker.C:
		}
	}
}

func newAppDeployStatusCommand(global *GlobalOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "deploy-status APP_ID...",
		Short: "Print the deployment status of apps",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ids, err := parseIDs(args)
			if err != nil {
				return err
			}

			s, err := global.connect(cmd)
			if err != nil {
				return err
			}
			defer s.close()

			status, err := app.GetAppDeployStatus(ids...).Send(cmd.Context(), s.client)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), status)
		},
	}

	return cmd
}
