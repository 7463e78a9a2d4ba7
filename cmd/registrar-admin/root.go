package main

import (
	"context"
	"encoding/json"
	"io"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/noah-isme/campus-registrar-api/internal/app"
	"github.com/noah-isme/campus-registrar-api/internal/models"
	"github.com/noah-isme/campus-registrar-api/pkg/config"
)

// cli carries what every subcommand needs. open is swapped in tests.
type cli struct {
	cfg    *config.Config
	logger *zap.Logger
	open   func(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*app.App, error)
}

func newCLI(cfg *config.Config, logger *zap.Logger) *cli {
	return &cli{cfg: cfg, logger: logger, open: app.New}
}

func newRootCmd(c *cli) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "registrar-admin",
		Short:         "Operate the campus registration core",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.AddCommand(migrateCmd(c))
	rootCmd.AddCommand(sectionCmd(c))
	rootCmd.AddCommand(overrideCmd(c))
	rootCmd.AddCommand(auditCmd(c))
	rootCmd.AddCommand(tokenCmd(c))
	rootCmd.AddCommand(maintenanceCmd(c))

	return rootCmd
}

// withApp builds the registrar for one command and tears it down afterwards.
func (c *cli) withApp(ctx context.Context, fn func(a *app.App) error) error {
	a, err := c.open(ctx, c.cfg, c.logger)
	if err != nil {
		return err
	}
	a.Start(ctx)
	defer a.Close() //nolint:errcheck
	return fn(a)
}

func actorFlags(cmd *cobra.Command) {
	cmd.Flags().String("actor", "", "acting user id (required)")
	cmd.Flags().String("role", string(models.RoleRegistrar), "acting user role")
	_ = cmd.MarkFlagRequired("actor")
}

func actorFromFlags(cmd *cobra.Command) models.Actor {
	id, _ := cmd.Flags().GetString("actor")
	role, _ := cmd.Flags().GetString("role")
	return models.Actor{ID: id, Role: models.UserRole(role)}
}

func printJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
