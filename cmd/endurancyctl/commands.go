package main

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"endurancy/internal/app"
	"endurancy/internal/engine/entitlements"
	"endurancy/internal/pkg/logger"
	"endurancy/internal/platform/auth"
	"endurancy/internal/platform/config"
	"endurancy/internal/platform/models"
	"endurancy/internal/platform/repositories"
	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"
)

type cli struct {
	configPath string
	cfg        *config.Config
}

func newRootCmd() *cobra.Command {
	c := &cli{}

	root := &cobra.Command{
		Use:           "endurancyctl",
		Short:         "Operate the Endurancy plan and entitlement service",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(c.configPath)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			logger.Init(cfg.Logging)
			c.cfg = cfg
			return nil
		},
	}
	root.PersistentFlags().StringVar(&c.configPath, "config", "configs/config.yaml", "Path to config file (empty for defaults and environment only)")

	root.AddCommand(
		c.moduleCmd(),
		c.planCmd(),
		c.orgCmd(),
		c.reconcileCmd(),
		c.reconcileAllCmd(),
		c.expireOrdersCmd(),
		c.tokenCmd(),
	)
	return root
}

func (c *cli) withApp(cmd *cobra.Command, fn func(ctx context.Context, a *app.App) error) error {
	ctx := cmd.Context()
	a, err := app.New(ctx, c.cfg)
	if err != nil {
		return err
	}
	defer a.Close()
	return fn(ctx, a)
}

func printJSON(cmd *cobra.Command, v interface{}) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func (c *cli) moduleCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "module", Short: "Manage the module catalog"}

	var m models.Module
	add := &cobra.Command{
		Use:   "add",
		Short: "Add a module to the catalog",
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withApp(cmd, func(ctx context.Context, a *app.App) error {
				m.CreatedAt = time.Now().Unix()
				if err := repositories.NewModuleRepository(a.DB).Create(ctx, &m); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "module %s added\n", m.ID)
				return nil
			})
		},
	}
	add.Flags().StringVar(&m.ID, "id", "", "Module id")
	add.Flags().StringVar(&m.Name, "name", "", "Display name")
	add.Flags().StringVar(&m.Type, "type", "", "Module type")
	add.MarkFlagRequired("id")
	add.MarkFlagRequired("name")

	list := &cobra.Command{
		Use:   "list",
		Short: "List catalog modules",
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withApp(cmd, func(ctx context.Context, a *app.App) error {
				modules, err := repositories.NewModuleRepository(a.DB).List(ctx)
				if err != nil {
					return err
				}
				return printJSON(cmd, modules)
			})
		},
	}

	cmd.AddCommand(add, list)
	return cmd
}

func (c *cli) planCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "plan", Short: "Manage plans"}

	var (
		p     models.Plan
		price string
	)
	add := &cobra.Command{
		Use:   "add",
		Short: "Create a plan",
		RunE: func(cmd *cobra.Command, args []string) error {
			amount, err := decimal.NewFromString(price)
			if err != nil {
				return fmt.Errorf("invalid price %q: %w", price, err)
			}
			return c.withApp(cmd, func(ctx context.Context, a *app.App) error {
				now := time.Now().Unix()
				p.Price = amount
				p.Active = true
				p.CreatedAt, p.UpdatedAt = now, now
				if err := repositories.NewPlanRepository(a.DB).Create(ctx, &p); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "plan %s added\n", p.ID)
				return nil
			})
		},
	}
	add.Flags().StringVar(&p.ID, "id", "", "Plan id")
	add.Flags().StringVar(&p.Name, "name", "", "Display name")
	add.Flags().StringVar(&p.Description, "description", "", "Description")
	add.Flags().StringVar(&price, "price", "0", "Price, e.g. 199.90")
	add.Flags().StringVar(&p.BillingInterval, "interval", "month", "Billing interval")
	add.MarkFlagRequired("id")
	add.MarkFlagRequired("name")

	var planID string
	var moduleIDs []string
	addModules := &cobra.Command{
		Use:   "add-modules",
		Short: "Include catalog modules in a plan",
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withApp(cmd, func(ctx context.Context, a *app.App) error {
				plans := repositories.NewPlanRepository(a.DB)
				now := time.Now().Unix()
				for _, id := range moduleIDs {
					if err := plans.AddModule(ctx, planID, id, now); err != nil {
						return fmt.Errorf("add %s to %s: %w", id, planID, err)
					}
				}
				fmt.Fprintf(cmd.OutOrStdout(), "plan %s now includes %v\n", planID, moduleIDs)
				return nil
			})
		},
	}
	addModules.Flags().StringVar(&planID, "plan", "", "Plan id")
	addModules.Flags().StringSliceVar(&moduleIDs, "module", nil, "Module id (repeatable)")
	addModules.MarkFlagRequired("plan")
	addModules.MarkFlagRequired("module")

	cmd.AddCommand(add, addModules)
	return cmd
}

func (c *cli) orgCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "org", Short: "Manage organizations"}

	var o models.Organization
	add := &cobra.Command{
		Use:   "add",
		Short: "Create an organization without a plan",
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withApp(cmd, func(ctx context.Context, a *app.App) error {
				now := time.Now().Unix()
				o.CreatedAt, o.UpdatedAt = now, now
				if err := repositories.NewOrganizationRepository(a.DB).Create(ctx, &o); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "organization %s added\n", o.ID)
				return nil
			})
		},
	}
	add.Flags().StringVar(&o.ID, "id", "", "Organization id")
	add.Flags().StringVar(&o.Name, "name", "", "Display name")
	add.Flags().StringVar(&o.Email, "email", "", "Contact email")
	add.MarkFlagRequired("id")
	add.MarkFlagRequired("name")

	var orgID string
	modules := &cobra.Command{
		Use:   "modules",
		Short: "Show an organization's entitlement rows",
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withApp(cmd, func(ctx context.Context, a *app.App) error {
				rows, err := a.Entitlements.ListOrganizationModules(ctx, orgID)
				if err != nil {
					return err
				}
				return printJSON(cmd, rows)
			})
		},
	}
	modules.Flags().StringVar(&orgID, "org", "", "Organization id")
	modules.MarkFlagRequired("org")

	cmd.AddCommand(add, modules)
	return cmd
}

func (c *cli) reconcileCmd() *cobra.Command {
	var orgID, planID string
	cmd := &cobra.Command{
		Use:   "reconcile",
		Short: "Reconcile one organization's modules",
		Long:  "Reconcile against the organization's active plan, or against --plan without moving the plan pointer.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withApp(cmd, func(ctx context.Context, a *app.App) error {
				var (
					changes []entitlements.Change
					err     error
				)
				if planID != "" {
					changes, err = a.Reconciler.Run(ctx, orgID, planID)
				} else {
					changes, err = a.Entitlements.ReconcileOrganization(ctx, orgID)
				}
				if err != nil {
					return err
				}
				return printJSON(cmd, entitlements.Summarize(changes))
			})
		},
	}
	cmd.Flags().StringVar(&orgID, "org", "", "Organization id")
	cmd.Flags().StringVar(&planID, "plan", "", "Plan id (defaults to the active plan)")
	cmd.MarkFlagRequired("org")
	return cmd
}

func (c *cli) reconcileAllCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "reconcile-all",
		Short: "Reconcile every organization with an active plan",
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withApp(cmd, func(ctx context.Context, a *app.App) error {
				res, err := a.Reconciler.ReconcileAll(ctx)
				if err != nil {
					return err
				}
				return printJSON(cmd, res)
			})
		},
	}
}

func (c *cli) expireOrdersCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "expire-orders",
		Short: "Expire pending orders older than payment.pending_order_ttl",
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withApp(cmd, func(ctx context.Context, a *app.App) error {
				n, err := a.Payments.ExpireStaleOrders(ctx)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "expired %d orders\n", n)
				return nil
			})
		},
	}
}

func (c *cli) tokenCmd() *cobra.Command {
	var subject, orgID, role, email string
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Mint an access token for the organization API",
		RunE: func(cmd *cobra.Command, args []string) error {
			if orgID == "" && role != auth.RoleAdmin {
				return fmt.Errorf("--org is required unless --role=%s", auth.RoleAdmin)
			}
			token, err := auth.NewTokenService(c.cfg.JWT).GenerateAccessToken(subject, orgID, role, email)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}
	cmd.Flags().StringVar(&subject, "subject", "", "Token subject (user id)")
	cmd.Flags().StringVar(&orgID, "org", "", "Organization id")
	cmd.Flags().StringVar(&role, "role", "member", "Role")
	cmd.Flags().StringVar(&email, "email", "", "Email claim")
	cmd.MarkFlagRequired("subject")
	return cmd
}
