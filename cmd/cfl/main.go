package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"campflow/internal/config"
	"campflow/internal/db"
	"campflow/internal/directory"
	"campflow/internal/domain"
	"campflow/internal/lifecycle"
	"campflow/internal/migrate"
	"campflow/internal/server"
	"campflow/internal/store"
)

var rootCmd = &cobra.Command{
	Use:   "cfl",
	Short: "Campflow CLI",
	Long: `Campflow tracks marketing work as a campaign -> project -> task hierarchy.
- Workspace: your .campflow directory holding the database; settings live in campflow.yml.
- Campaigns: the top-level initiatives that own budget; project budgets roll up into them.
- Projects: workstreams inside a campaign; they cannot be created under a cancelled campaign.
- Tasks: assigned work items inside a project; they need an active assignee.
- Lifecycle: transitions are permissive, but archiving or cancelling a campaign or project
  cascades down, and completing the last child completes the parent automatically.
- Audit log: every committed change lands in the append-only log, view with 'cfl audit tail'.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		workspace := viper.GetString("workspace")
		if _, err := db.EnsureWorkspace(workspace); err != nil {
			return err
		}
		return nil
	},
}

func main() {
	cobra.OnInitialize(initConfig)
	addPersistentFlags()
	registerCommands()
	if err := rootCmd.Execute(); err != nil {
		fmt.Println("error:", err)
		os.Exit(1)
	}
}

func initConfig() {
	viper.SetEnvPrefix("CAMPFLOW")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

func addPersistentFlags() {
	rootCmd.PersistentFlags().StringP("workspace", "w", ".", "workspace directory")
	rootCmd.PersistentFlags().Bool("json", false, "output JSON")
	rootCmd.PersistentFlags().String("actor-id", "local-user", "actor identifier")
	_ = viper.BindPFlag("workspace", rootCmd.PersistentFlags().Lookup("workspace"))
	_ = viper.BindPFlag("json", rootCmd.PersistentFlags().Lookup("json"))
	_ = viper.BindPFlag("actor-id", rootCmd.PersistentFlags().Lookup("actor-id"))
}

func registerCommands() {
	rootCmd.AddCommand(campaignCmd())
	rootCmd.AddCommand(projectCmd())
	rootCmd.AddCommand(taskCmd())
	rootCmd.AddCommand(userCmd())
	rootCmd.AddCommand(auditCmd())
	rootCmd.AddCommand(apikeyCmd())
	rootCmd.AddCommand(configCmd())
	rootCmd.AddCommand(serveCmd())
}

// --- campaigns ---

func campaignCmd() *cobra.Command {
	c := &cobra.Command{Use: "campaign", Short: "Manage campaigns"}
	c.AddCommand(campaignCreateCmd())
	c.AddCommand(campaignListCmd())
	c.AddCommand(campaignShowCmd())
	c.AddCommand(campaignUpdateCmd())
	c.AddCommand(campaignProjectsCmd())
	c.AddCommand(transitionCmd(domain.KindCampaign))
	c.AddCommand(unarchiveCmd(domain.KindCampaign))
	c.AddCommand(campaignRollupCmd())
	return c
}

func campaignCreateCmd() *cobra.Command {
	var camp domain.Campaign
	var budget, estimated float64
	var priority int
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a campaign",
		RunE: func(cmd *cobra.Command, args []string) error {
			camp.Budget = budget
			if cmd.Flags().Changed("estimated-budget") {
				camp.EstimatedBudget = &estimated
			}
			if cmd.Flags().Changed("priority") {
				camp.Priority = &priority
			}
			return withCoordinator(cmd.Context(), func(ctx context.Context, co lifecycle.Coordinator) error {
				res, err := co.CreateCampaign(ctx, camp, viper.GetString("actor-id"))
				if err != nil {
					return err
				}
				return printJSONOrTable(res)
			})
		},
	}
	cmd.Flags().StringVar(&camp.Name, "name", "", "campaign name")
	cmd.Flags().StringVar(&camp.Description, "description", "", "description")
	cmd.Flags().StringVar(&camp.StartDate, "start", "", "start date (RFC 3339)")
	cmd.Flags().StringVar(&camp.EndDate, "end", "", "end date (RFC 3339)")
	cmd.Flags().StringVar(&camp.OwnerID, "owner", "", "owner user id")
	cmd.Flags().Float64Var(&budget, "budget", 0, "budget")
	cmd.Flags().Float64Var(&estimated, "estimated-budget", 0, "estimated budget")
	cmd.Flags().IntVar(&priority, "priority", 0, "priority (1-5)")
	_ = cmd.MarkFlagRequired("name")
	return cmd
}

func campaignListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List campaigns",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withCoordinator(cmd.Context(), func(ctx context.Context, co lifecycle.Coordinator) error {
				items, err := co.Store.ListCampaigns(ctx)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Name", "State", "Budget", "Start", "End"})
				for _, c := range items {
					tw.AppendRow(table.Row{c.ID, c.Name, c.State, c.Budget, c.StartDate, c.EndDate})
				}
				tw.Render()
				return nil
			})
		},
	}
}

func campaignShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <id>",
		Short: "Show a campaign",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withCoordinator(cmd.Context(), func(ctx context.Context, co lifecycle.Coordinator) error {
				c, err := co.Store.GetCampaign(ctx, args[0])
				if err != nil {
					return err
				}
				return printJSONOrTable(c)
			})
		},
	}
}

func campaignUpdateCmd() *cobra.Command {
	var name, description, start, end, owner string
	var budget, estimated float64
	var priority int
	cmd := &cobra.Command{
		Use:   "update <id>",
		Short: "Update campaign fields",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			partial := map[string]any{}
			addChanged(cmd, partial, "name", name)
			addChanged(cmd, partial, "description", description)
			addChangedAs(cmd, partial, "start", "start_date", start)
			addChangedAs(cmd, partial, "end", "end_date", end)
			addChangedAs(cmd, partial, "owner", "owner_id", owner)
			if cmd.Flags().Changed("budget") {
				partial["budget"] = budget
			}
			if cmd.Flags().Changed("estimated-budget") {
				partial["estimated_budget"] = estimated
			}
			if cmd.Flags().Changed("priority") {
				partial["priority"] = priority
			}
			return withCoordinator(cmd.Context(), func(ctx context.Context, co lifecycle.Coordinator) error {
				res, err := co.UpdateFields(ctx, domain.KindCampaign, args[0], partial, viper.GetString("actor-id"))
				if err != nil {
					return err
				}
				return printJSONOrTable(res)
			})
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "campaign name")
	cmd.Flags().StringVar(&description, "description", "", "description")
	cmd.Flags().StringVar(&start, "start", "", "start date (RFC 3339)")
	cmd.Flags().StringVar(&end, "end", "", "end date (RFC 3339)")
	cmd.Flags().StringVar(&owner, "owner", "", "owner user id")
	cmd.Flags().Float64Var(&budget, "budget", 0, "budget")
	cmd.Flags().Float64Var(&estimated, "estimated-budget", 0, "estimated budget")
	cmd.Flags().IntVar(&priority, "priority", 0, "priority (1-5)")
	return cmd
}

func campaignProjectsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "projects <id>",
		Short: "List a campaign's projects",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withCoordinator(cmd.Context(), func(ctx context.Context, co lifecycle.Coordinator) error {
				items, err := co.Store.ListProjects(ctx, args[0])
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Name", "State", "Budget"})
				for _, p := range items {
					tw.AppendRow(table.Row{p.ID, p.Name, p.State, p.Budget})
				}
				tw.Render()
				return nil
			})
		},
	}
}

func campaignRollupCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "rollup <id>",
		Short: "Recompute campaign budget from project budgets",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withCoordinator(cmd.Context(), func(ctx context.Context, co lifecycle.Coordinator) error {
				if err := co.RollUpBudget(ctx, args[0], viper.GetString("actor-id")); err != nil {
					return err
				}
				c, err := co.Store.GetCampaign(ctx, args[0])
				if err != nil {
					return err
				}
				return printJSONOrTable(c)
			})
		},
	}
}

// --- projects ---

func projectCmd() *cobra.Command {
	p := &cobra.Command{Use: "project", Short: "Manage projects"}
	p.AddCommand(projectCreateCmd())
	p.AddCommand(projectShowCmd())
	p.AddCommand(projectUpdateCmd())
	p.AddCommand(projectTasksCmd())
	p.AddCommand(transitionCmd(domain.KindProject))
	p.AddCommand(unarchiveCmd(domain.KindProject))
	return p
}

func projectCreateCmd() *cobra.Command {
	var campaignID string
	var proj domain.Project
	var budget float64
	var priority int
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a project under a campaign",
		RunE: func(cmd *cobra.Command, args []string) error {
			proj.Budget = budget
			if cmd.Flags().Changed("priority") {
				proj.Priority = &priority
			}
			return withCoordinator(cmd.Context(), func(ctx context.Context, co lifecycle.Coordinator) error {
				res, err := co.CreateProject(ctx, campaignID, proj, viper.GetString("actor-id"))
				if err != nil {
					return err
				}
				return printJSONOrTable(res)
			})
		},
	}
	cmd.Flags().StringVar(&campaignID, "campaign", "", "parent campaign id")
	cmd.Flags().StringVar(&proj.Name, "name", "", "project name")
	cmd.Flags().StringVar(&proj.Description, "description", "", "description")
	cmd.Flags().StringVar(&proj.StartDate, "start", "", "start date (RFC 3339)")
	cmd.Flags().StringVar(&proj.EndDate, "end", "", "end date (RFC 3339)")
	cmd.Flags().Float64Var(&budget, "budget", 0, "budget")
	cmd.Flags().IntVar(&priority, "priority", 0, "priority (1-5)")
	_ = cmd.MarkFlagRequired("campaign")
	_ = cmd.MarkFlagRequired("name")
	return cmd
}

func projectShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <id>",
		Short: "Show a project",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withCoordinator(cmd.Context(), func(ctx context.Context, co lifecycle.Coordinator) error {
				p, err := co.Store.GetProject(ctx, args[0])
				if err != nil {
					return err
				}
				return printJSONOrTable(p)
			})
		},
	}
}

func projectUpdateCmd() *cobra.Command {
	var name, description, start, end, campaignID string
	var budget float64
	var priority int
	cmd := &cobra.Command{
		Use:   "update <id>",
		Short: "Update project fields",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			partial := map[string]any{}
			addChanged(cmd, partial, "name", name)
			addChanged(cmd, partial, "description", description)
			addChangedAs(cmd, partial, "start", "start_date", start)
			addChangedAs(cmd, partial, "end", "end_date", end)
			addChangedAs(cmd, partial, "campaign", "campaign_id", campaignID)
			if cmd.Flags().Changed("budget") {
				partial["budget"] = budget
			}
			if cmd.Flags().Changed("priority") {
				partial["priority"] = priority
			}
			return withCoordinator(cmd.Context(), func(ctx context.Context, co lifecycle.Coordinator) error {
				res, err := co.UpdateFields(ctx, domain.KindProject, args[0], partial, viper.GetString("actor-id"))
				if err != nil {
					return err
				}
				return printJSONOrTable(res)
			})
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "project name")
	cmd.Flags().StringVar(&description, "description", "", "description")
	cmd.Flags().StringVar(&start, "start", "", "start date (RFC 3339)")
	cmd.Flags().StringVar(&end, "end", "", "end date (RFC 3339)")
	cmd.Flags().StringVar(&campaignID, "campaign", "", "move to campaign id")
	cmd.Flags().Float64Var(&budget, "budget", 0, "budget")
	cmd.Flags().IntVar(&priority, "priority", 0, "priority (1-5)")
	return cmd
}

func projectTasksCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "tasks <id>",
		Short: "List a project's tasks",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withCoordinator(cmd.Context(), func(ctx context.Context, co lifecycle.Coordinator) error {
				items, err := co.Store.ListTasks(ctx, args[0])
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Name", "State", "Assignee", "Due"})
				for _, t := range items {
					tw.AppendRow(table.Row{t.ID, t.Name, t.State, t.AssigneeID, t.DueDate})
				}
				tw.Render()
				return nil
			})
		},
	}
}

// --- tasks ---

func taskCmd() *cobra.Command {
	t := &cobra.Command{Use: "task", Short: "Manage tasks"}
	t.AddCommand(taskCreateCmd())
	t.AddCommand(taskShowCmd())
	t.AddCommand(taskUpdateCmd())
	t.AddCommand(transitionCmd(domain.KindTask))
	return t
}

func taskCreateCmd() *cobra.Command {
	var projectID string
	var task domain.Task
	var effort float64
	var priority int
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a task under a project",
		RunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Flags().Changed("effort") {
				task.EstimatedEffort = &effort
			}
			if cmd.Flags().Changed("priority") {
				task.Priority = &priority
			}
			return withCoordinator(cmd.Context(), func(ctx context.Context, co lifecycle.Coordinator) error {
				res, err := co.CreateTask(ctx, projectID, task, viper.GetString("actor-id"))
				if err != nil {
					return err
				}
				return printJSONOrTable(res)
			})
		},
	}
	cmd.Flags().StringVar(&projectID, "project", "", "parent project id")
	cmd.Flags().StringVar(&task.Name, "name", "", "task name")
	cmd.Flags().StringVar(&task.Description, "description", "", "description")
	cmd.Flags().StringVar(&task.AssigneeID, "assignee", "", "assignee user id")
	cmd.Flags().StringVar(&task.DueDate, "due", "", "due date (RFC 3339)")
	cmd.Flags().Float64Var(&effort, "effort", 0, "estimated effort")
	cmd.Flags().IntVar(&priority, "priority", 0, "priority (1-5)")
	_ = cmd.MarkFlagRequired("project")
	_ = cmd.MarkFlagRequired("name")
	_ = cmd.MarkFlagRequired("assignee")
	return cmd
}

func taskShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <id>",
		Short: "Show a task",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withCoordinator(cmd.Context(), func(ctx context.Context, co lifecycle.Coordinator) error {
				t, err := co.Store.GetTask(ctx, args[0])
				if err != nil {
					return err
				}
				return printJSONOrTable(t)
			})
		},
	}
}

func taskUpdateCmd() *cobra.Command {
	var name, description, assignee, due string
	var effort float64
	var priority int
	cmd := &cobra.Command{
		Use:   "update <id>",
		Short: "Update task fields",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			partial := map[string]any{}
			addChanged(cmd, partial, "name", name)
			addChanged(cmd, partial, "description", description)
			addChangedAs(cmd, partial, "assignee", "assignee_id", assignee)
			addChangedAs(cmd, partial, "due", "due_date", due)
			if cmd.Flags().Changed("effort") {
				partial["estimated_effort"] = effort
			}
			if cmd.Flags().Changed("priority") {
				partial["priority"] = priority
			}
			return withCoordinator(cmd.Context(), func(ctx context.Context, co lifecycle.Coordinator) error {
				res, err := co.UpdateFields(ctx, domain.KindTask, args[0], partial, viper.GetString("actor-id"))
				if err != nil {
					return err
				}
				return printJSONOrTable(res)
			})
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "task name")
	cmd.Flags().StringVar(&description, "description", "", "description")
	cmd.Flags().StringVar(&assignee, "assignee", "", "assignee user id")
	cmd.Flags().StringVar(&due, "due", "", "due date (RFC 3339)")
	cmd.Flags().Float64Var(&effort, "effort", 0, "estimated effort")
	cmd.Flags().IntVar(&priority, "priority", 0, "priority (1-5)")
	return cmd
}

// --- shared lifecycle commands ---

func transitionCmd(kind string) *cobra.Command {
	var state string
	cmd := &cobra.Command{
		Use:   "transition <id>",
		Short: "Change " + kind + " state",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if state == "" {
				return fmt.Errorf("--state required")
			}
			return withCoordinator(cmd.Context(), func(ctx context.Context, co lifecycle.Coordinator) error {
				res, err := co.TransitionState(ctx, kind, args[0], state, viper.GetString("actor-id"))
				if err != nil {
					return err
				}
				return printJSONOrTable(res)
			})
		},
	}
	cmd.Flags().StringVar(&state, "state", "", "target state ("+strings.Join(domain.StatesFor(kind), ", ")+")")
	_ = cmd.MarkFlagRequired("state")
	return cmd
}

func unarchiveCmd(kind string) *cobra.Command {
	return &cobra.Command{
		Use:   "unarchive <id>",
		Short: "Return an archived " + kind + " to on_hold",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withCoordinator(cmd.Context(), func(ctx context.Context, co lifecycle.Coordinator) error {
				res, err := co.Unarchive(ctx, kind, args[0], viper.GetString("actor-id"))
				if err != nil {
					return err
				}
				return printJSONOrTable(res)
			})
		},
	}
}

// --- users ---

func userCmd() *cobra.Command {
	u := &cobra.Command{Use: "user", Short: "Manage the user directory"}
	u.AddCommand(userAddCmd())
	u.AddCommand(userListCmd())
	u.AddCommand(userActivateCmd(true))
	u.AddCommand(userActivateCmd(false))
	u.AddCommand(userSegmentCmd())
	return u
}

func userAddCmd() *cobra.Command {
	var id, name string
	cmd := &cobra.Command{
		Use:   "add",
		Short: "Add or update a user",
		RunE: func(cmd *cobra.Command, args []string) error {
			if id == "" {
				return fmt.Errorf("--id required")
			}
			return withDirectory(cmd.Context(), func(ctx context.Context, dir directory.SQL) error {
				u, err := dir.EnsureUser(ctx, domain.User{ID: id, Name: name, Active: true})
				if err != nil {
					return err
				}
				return printJSONOrTable(u)
			})
		},
	}
	cmd.Flags().StringVar(&id, "id", "", "user id")
	cmd.Flags().StringVar(&name, "name", "", "display name")
	_ = cmd.MarkFlagRequired("id")
	return cmd
}

func userListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List users",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withDirectory(cmd.Context(), func(ctx context.Context, dir directory.SQL) error {
				items, err := dir.ListUsers(ctx)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Name", "Active"})
				for _, u := range items {
					tw.AppendRow(table.Row{u.ID, u.Name, u.Active})
				}
				tw.Render()
				return nil
			})
		},
	}
}

func userActivateCmd(active bool) *cobra.Command {
	use, short := "deactivate <id>", "Deactivate a user"
	if active {
		use, short = "activate <id>", "Reactivate a user"
	}
	return &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withDirectory(cmd.Context(), func(ctx context.Context, dir directory.SQL) error {
				if err := dir.SetActive(ctx, args[0], active); err != nil {
					return err
				}
				u, err := dir.GetUser(ctx, args[0])
				if err != nil {
					return err
				}
				return printJSONOrTable(u)
			})
		},
	}
}

func userSegmentCmd() *cobra.Command {
	var segment string
	cmd := &cobra.Command{
		Use:   "segment <id>",
		Short: "Add a user to a segment",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if segment == "" {
				return fmt.Errorf("--segment required")
			}
			return withDirectory(cmd.Context(), func(ctx context.Context, dir directory.SQL) error {
				if _, err := dir.GetUser(ctx, args[0]); err != nil {
					return err
				}
				if err := dir.AddSegment(ctx, args[0], segment); err != nil {
					return err
				}
				segments, err := dir.UserSegments(ctx, args[0])
				if err != nil {
					return err
				}
				return printJSONOrTable(segments)
			})
		},
	}
	cmd.Flags().StringVar(&segment, "segment", "", "segment id")
	_ = cmd.MarkFlagRequired("segment")
	return cmd
}

// --- audit ---

func auditCmd() *cobra.Command {
	a := &cobra.Command{Use: "audit", Short: "Audit log"}
	a.AddCommand(auditTailCmd())
	return a
}

func auditTailCmd() *cobra.Command {
	var n int
	var action, entityKind, entityID, actorID string
	cmd := &cobra.Command{
		Use:   "tail",
		Short: "Show the newest audit entries",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withCoordinator(cmd.Context(), func(ctx context.Context, co lifecycle.Coordinator) error {
				entries, err := co.Store.ListAudit(ctx, store.AuditFilters{
					Action:     action,
					EntityKind: entityKind,
					EntityID:   entityID,
					ActorID:    actorID,
					Limit:      n,
				})
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(entries)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "TS", "Action", "Entity", "Actor", "Changes"})
				for _, e := range entries {
					tw.AppendRow(table.Row{e.ID, e.TS, e.Action, e.EntityKind + "/" + e.EntityID, e.ActorID, e.Changes})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().IntVar(&n, "n", 20, "number of entries")
	cmd.Flags().StringVar(&action, "action", "", "action filter (created, updated, state-changed)")
	cmd.Flags().StringVar(&entityKind, "entity-kind", "", "entity kind filter")
	cmd.Flags().StringVar(&entityID, "entity-id", "", "entity id filter")
	cmd.Flags().StringVar(&actorID, "actor", "", "actor filter")
	return cmd
}

// --- api keys ---

func apikeyCmd() *cobra.Command {
	k := &cobra.Command{Use: "apikey", Short: "Manage API keys"}
	k.AddCommand(apikeyCreateCmd())
	k.AddCommand(apikeyListCmd())
	k.AddCommand(apikeyRevokeCmd())
	return k
}

func apikeyCreateCmd() *cobra.Command {
	var actor, name string
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create an API key (the plaintext key is shown once)",
		RunE: func(cmd *cobra.Command, args []string) error {
			if actor == "" {
				return fmt.Errorf("--actor required")
			}
			return withCoordinator(cmd.Context(), func(ctx context.Context, co lifecycle.Coordinator) error {
				plaintext := uuid.New().String()
				key := domain.APIKey{
					ID:      uuid.New().String(),
					ActorID: actor,
					Name:    name,
					KeyHash: store.HashAPIKey(plaintext),
				}
				if err := co.Store.InsertAPIKey(ctx, nil, key); err != nil {
					return err
				}
				return printJSONOrTable(map[string]string{
					"id":      key.ID,
					"actor":   key.ActorID,
					"api_key": plaintext,
				})
			})
		},
	}
	cmd.Flags().StringVar(&actor, "actor", "", "actor id the key authenticates as")
	cmd.Flags().StringVar(&name, "name", "", "key label")
	_ = cmd.MarkFlagRequired("actor")
	return cmd
}

func apikeyListCmd() *cobra.Command {
	var actor string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List API keys",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withCoordinator(cmd.Context(), func(ctx context.Context, co lifecycle.Coordinator) error {
				keys, err := co.Store.ListAPIKeys(ctx, actor)
				if err != nil {
					return err
				}
				return printJSONOrTable(keys)
			})
		},
	}
	cmd.Flags().StringVar(&actor, "actor", "", "filter by actor id")
	return cmd
}

func apikeyRevokeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "revoke <id>",
		Short: "Revoke an API key",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withCoordinator(cmd.Context(), func(ctx context.Context, co lifecycle.Coordinator) error {
				return co.Store.DeleteAPIKey(ctx, args[0])
			})
		},
	}
}

// --- config ---

func configCmd() *cobra.Command {
	c := &cobra.Command{Use: "config", Short: "Manage campflow.yml"}
	c.AddCommand(configInitCmd())
	c.AddCommand(configShowCmd())
	return c
}

func configInitCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Write a default campflow.yml",
		RunE: func(cmd *cobra.Command, args []string) error {
			path := config.Path(viper.GetString("workspace"))
			if _, err := os.Stat(path); err == nil {
				return fmt.Errorf("%s already exists", path)
			}
			if err := os.WriteFile(path, []byte(config.GenerateDefault()), 0o644); err != nil {
				return err
			}
			fmt.Printf("Wrote %s\n", path)
			return nil
		},
	}
}

func configShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Show the effective config",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadOptional(viper.GetString("workspace"))
			if err != nil {
				return err
			}
			if cfg == nil {
				cfg = config.Default()
			}
			return printJSONOrTable(cfg)
		},
	}
}

// --- serve ---

func serveCmd() *cobra.Command {
	var addr, basePath string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start HTTP API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			workspace := viper.GetString("workspace")
			conn, err := db.Open(db.Config{Workspace: workspace})
			if err != nil {
				return err
			}
			defer conn.Close()
			if err := migrate.Migrate(conn); err != nil {
				return err
			}
			cfg, err := config.LoadOptional(workspace)
			if err != nil {
				return err
			}
			if cfg == nil {
				cfg = config.Default()
			}
			if !cmd.Flags().Changed("addr") {
				addr = cfg.ListenAddr()
			}
			if !cmd.Flags().Changed("base-path") && cfg.Server.BasePath != "" {
				basePath = cfg.Server.BasePath
			}
			secret := os.Getenv("CAMPFLOW_JWT_SECRET")
			if secret == "" {
				secret = cfg.Auth.JWTSecret
			}
			dir := directory.SQL{DB: conn}
			co := lifecycle.New(conn, dir)
			handler, err := server.New(server.Config{
				Coordinator: co,
				Directory:   &dir,
				BasePath:    basePath,
				Auth: server.AuthConfig{
					JWTSecret:              secret,
					AllowLegacyActorHeader: cfg.Auth.AllowActorHeader,
				},
			})
			if err != nil {
				return err
			}
			server.StartWebhookDispatcher(co.Store, cfg.Webhooks)
			srv := &http.Server{Addr: addr, Handler: handler}
			go func() {
				<-cmd.Context().Done()
				ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				srv.Shutdown(ctx)
			}()
			fmt.Printf("Serving Campflow API on http://%s%s (OpenAPI at %s/openapi.json, Swagger UI at /docs)\n", addr, basePath, basePath)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "127.0.0.1:8080", "listen address")
	cmd.Flags().StringVar(&basePath, "base-path", "/api/v1", "API base path")
	return cmd
}

// --- helpers ---

func withCoordinator(ctx context.Context, fn func(context.Context, lifecycle.Coordinator) error) error {
	workspace := viper.GetString("workspace")
	conn, err := db.Open(db.Config{Workspace: workspace})
	if err != nil {
		return err
	}
	defer conn.Close()
	if err := migrate.Migrate(conn); err != nil {
		return err
	}
	return fn(ctx, lifecycle.New(conn, directory.SQL{DB: conn}))
}

func withDirectory(ctx context.Context, fn func(context.Context, directory.SQL) error) error {
	workspace := viper.GetString("workspace")
	conn, err := db.Open(db.Config{Workspace: workspace})
	if err != nil {
		return err
	}
	defer conn.Close()
	if err := migrate.Migrate(conn); err != nil {
		return err
	}
	return fn(ctx, directory.SQL{DB: conn})
}

func addChanged(cmd *cobra.Command, partial map[string]any, flag string, value string) {
	addChangedAs(cmd, partial, flag, flag, value)
}

func addChangedAs(cmd *cobra.Command, partial map[string]any, flag, column string, value string) {
	if cmd.Flags().Changed(flag) {
		partial[column] = value
	}
}

func printJSONOrTable(v any) error {
	if viper.GetBool("json") {
		return printJSON(v)
	}
	b, _ := json.MarshalIndent(v, "", "  ")
	fmt.Println(string(b))
	return nil
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
