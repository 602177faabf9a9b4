package main

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/fipibank-harvester/internal/app"
	"github.com/JakeFAU/fipibank-harvester/internal/config"
	"github.com/JakeFAU/fipibank-harvester/internal/logging"
)

type appKeyType struct{}

// newApp is the application factory; tests swap it to inject options.
var newApp = func(ctx context.Context, cfg config.Config, logger *zap.Logger) (*app.App, error) {
	return app.New(ctx, cfg, logger)
}

// session owns the services opened for one command invocation. cobra skips
// PersistentPostRunE when RunE fails, so execute closes it instead.
type session struct {
	app    *app.App
	closed bool
}

func (s *session) Close() error {
	if s.app == nil || s.closed {
		return nil
	}
	s.closed = true
	err := s.app.Close()
	_ = s.app.Logger().Sync()
	return err
}

// execute runs the command tree and always releases the session.
func execute(ctx context.Context, s *session, args []string, out io.Writer) (err error) {
	defer func() {
		if closeErr := s.Close(); closeErr != nil {
			err = errors.Join(err, fmt.Errorf("close services: %w", closeErr))
		}
	}()

	cmd := newRootCmd(s)
	if out != nil {
		cmd.SetOut(out)
		cmd.SetErr(out)
	}
	cmd.SetArgs(args)
	return cmd.ExecuteContext(ctx)
}

func newRootCmd(s *session) *cobra.Command {
	var cfgFile string

	cmd := &cobra.Command{
		Use:   "fipibank",
		Short: "Harvests the FIPI open problem bank into a relational store.",
		Long: `fipibank discovers subjects and codifier themes on the FIPI open bank,
downloads every problem listing, repairs split problem cards and stores each
problem exactly once with its subject, themes, exam track and attached files.`,
		SilenceUsage: true,

		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(cfgFile)
			if err != nil {
				return err
			}
			logger, err := logging.New(logging.Config{
				Development: cfg.Logging.Development,
				Level:       cfg.Logging.Level,
			})
			if err != nil {
				return err
			}
			a, err := newApp(cmd.Context(), cfg, logger)
			if err != nil {
				_ = logger.Sync()
				return fmt.Errorf("initialize services: %w", err)
			}
			s.app = a
			cmd.SetContext(context.WithValue(cmd.Context(), appKeyType{}, a))
			return nil
		},
	}

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (YAML); FIPIBANK_* variables override it")

	cmd.AddCommand(
		newHarvestCmd(),
		newServeCmd(),
		newSchemaCmd(),
		newExamNumberCmd(),
	)
	return cmd
}

func resolveApp(ctx context.Context) (*app.App, error) {
	a, ok := ctx.Value(appKeyType{}).(*app.App)
	if !ok || a == nil {
		return nil, errors.New("application services not initialized")
	}
	return a, nil
}
