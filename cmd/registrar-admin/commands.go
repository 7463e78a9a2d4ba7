package main

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/noah-isme/campus-registrar-api/internal/app"
	"github.com/noah-isme/campus-registrar-api/internal/dto"
	"github.com/noah-isme/campus-registrar-api/internal/models"
	"github.com/noah-isme/campus-registrar-api/internal/service"
	"github.com/noah-isme/campus-registrar-api/pkg/config"
	"github.com/noah-isme/campus-registrar-api/pkg/database"
)

func migrateCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending database migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			if c.cfg.Registration.Store == config.StoreMemory {
				return fmt.Errorf("migrate needs REGISTRATION_STORE=%s", config.StorePostgres)
			}
			db, err := database.NewPostgres(c.cfg.Database)
			if err != nil {
				return fmt.Errorf("connect postgres: %w", err)
			}
			defer db.Close()

			ran, err := database.Migrate(cmd.Context(), db, c.logger)
			if err != nil {
				return err
			}
			if len(ran) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "schema up to date")
				return nil
			}
			fmt.Fprintf(cmd.OutOrStdout(), "applied: %s\n", strings.Join(ran, ", "))
			return nil
		},
	}
}

func sectionCmd(c *cli) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "section",
		Short: "Inspect section seat state",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "state [section-id]",
		Short: "Show capacity, enrolled and waitlist counts",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withApp(cmd.Context(), func(a *app.App) error {
				state, err := a.Enrollments.GetSectionState(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), state)
			})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "waitlist [section-id]",
		Short: "List the waitlist in position order",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withApp(cmd.Context(), func(a *app.App) error {
				entries, err := a.Enrollments.ListWaitlist(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), entries)
			})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "check [section-id]",
		Short: "Report invariant violations; exits non-zero when any are found",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withApp(cmd.Context(), func(a *app.App) error {
				report, err := a.Enrollments.CheckInvariants(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				if err := printJSON(cmd.OutOrStdout(), report); err != nil {
					return err
				}
				if !report.Consistent() {
					return fmt.Errorf("section %s has %d invariant violation(s)", args[0], len(report.Violations))
				}
				return nil
			})
		},
	})

	return cmd
}

func overrideCmd(c *cli) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "override [student-id] [section-id]",
		Short: "Force-enroll a student past capacity and eligibility rules",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			reason, _ := cmd.Flags().GetString("reason")
			return c.withApp(cmd.Context(), func(a *app.App) error {
				req := dto.ForceEnrollRequest{StudentID: args[0], SectionID: args[1], Reason: reason}
				result, err := a.Gateway.ForceEnroll(cmd.Context(), req, actorFromFlags(cmd))
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), result)
			})
		},
	}
	actorFlags(cmd)
	cmd.Flags().String("reason", "", "justification stored on the override record (required)")
	_ = cmd.MarkFlagRequired("reason")
	return cmd
}

func auditCmd(c *cli) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "audit",
		Short: "Query and export the audit trail",
	}

	filterFlags := func(cmd *cobra.Command) {
		cmd.Flags().String("section", "", "filter by section id")
		cmd.Flags().String("student", "", "filter by student id")
		cmd.Flags().String("type", "", "filter by event type")
	}
	filterFromFlags := func(cmd *cobra.Command) dto.AuditQuery {
		section, _ := cmd.Flags().GetString("section")
		student, _ := cmd.Flags().GetString("student")
		eventType, _ := cmd.Flags().GetString("type")
		return dto.AuditQuery{SectionID: section, StudentID: student, EventType: strings.ToUpper(eventType)}
	}

	list := &cobra.Command{
		Use:   "list",
		Short: "List audit events, oldest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			query := filterFromFlags(cmd)
			query.Page, _ = cmd.Flags().GetInt("page")
			query.PageSize, _ = cmd.Flags().GetInt("page-size")
			overrides, _ := cmd.Flags().GetBool("overrides")
			return c.withApp(cmd.Context(), func(a *app.App) error {
				if overrides {
					records, _, err := a.Audit.ListOverrides(cmd.Context(), query.Filter())
					if err != nil {
						return err
					}
					return printJSON(cmd.OutOrStdout(), records)
				}
				events, _, err := a.Audit.ListEvents(cmd.Context(), query.Filter())
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), events)
			})
		},
	}
	filterFlags(list)
	list.Flags().Int("page", 1, "page number")
	list.Flags().Int("page-size", 50, "entries per page")
	list.Flags().Bool("overrides", false, "list override records instead of events")

	exportCmd := &cobra.Command{
		Use:   "export",
		Short: "Render matching audit events to a CSV or PDF file",
		RunE: func(cmd *cobra.Command, args []string) error {
			query := filterFromFlags(cmd)
			format, _ := cmd.Flags().GetString("format")
			out, _ := cmd.Flags().GetString("out")
			actor, _ := cmd.Flags().GetString("actor")
			return c.withApp(cmd.Context(), func(a *app.App) error {
				result, err := a.Audit.Export(cmd.Context(), query.Filter(), format, actor)
				if err != nil {
					return err
				}
				if out == "" {
					out = result.Filename
				}
				if err := os.WriteFile(out, result.Data, 0o600); err != nil {
					return fmt.Errorf("write export: %w", err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "wrote %d rows to %s\n", result.Rows, out)
				return nil
			})
		},
	}
	filterFlags(exportCmd)
	exportCmd.Flags().String("format", "csv", "csv or pdf")
	exportCmd.Flags().StringP("out", "o", "", "output file (defaults to a timestamped name)")
	exportCmd.Flags().String("actor", "", "acting user id recorded on the export (required)")
	_ = exportCmd.MarkFlagRequired("actor")

	cmd.AddCommand(list, exportCmd)
	return cmd
}

func tokenCmd(c *cli) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "token [user-id]",
		Short: "Mint a development access token",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if c.cfg.Env == config.EnvProduction {
				return fmt.Errorf("token minting is disabled in %s", config.EnvProduction)
			}
			role, _ := cmd.Flags().GetString("role")
			ttl, _ := cmd.Flags().GetDuration("ttl")
			email, _ := cmd.Flags().GetString("email")
			tokens := service.NewTokenService(service.TokenConfig{Secret: c.cfg.JWT.Secret, Issuer: c.cfg.JWT.Issuer, Expiration: c.cfg.JWT.Expiration})
			token, expires, err := tokens.Issue(models.Actor{ID: args[0], Role: models.UserRole(strings.ToUpper(role))}, email, ttl)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), map[string]interface{}{"token": token, "expires_at": expires})
		},
	}
	cmd.Flags().String("role", string(models.RoleStudent), "role claim")
	cmd.Flags().String("email", "", "email claim")
	cmd.Flags().Duration("ttl", time.Hour, "token lifetime")
	return cmd
}

func maintenanceCmd(c *cli) *cobra.Command {
	cmd := &cobra.Command{
		Use:       "maintenance [on|off|status]",
		Short:     "Show or toggle registration maintenance mode",
		Args:      cobra.ExactArgs(1),
		ValidArgs: []string{"on", "off", "status"},
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withApp(cmd.Context(), func(a *app.App) error {
				switch args[0] {
				case "status":
				case "on", "off":
					if err := a.Gateway.SetMaintenanceMode(cmd.Context(), args[0] == "on", actorFromFlags(cmd)); err != nil {
						return err
					}
				default:
					return fmt.Errorf("unknown maintenance action %q", args[0])
				}
				enabled, err := a.Gateway.MaintenanceMode(cmd.Context())
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), map[string]bool{"enabled": enabled})
			})
		},
	}
	cmd.Flags().String("actor", "", "acting user id")
	cmd.Flags().String("role", string(models.RoleAdmin), "acting user role")
	return cmd
}
