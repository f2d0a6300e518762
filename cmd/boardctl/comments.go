package main

import (
	"fmt"
	"text/tabwriter"

	"taskboard/internal/models"

	"github.com/spf13/cobra"
)

func newCommentsCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "comments <task-id>",
		Short: "Show a task and its comment thread",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			v, err := a.open(cmd.Context())
			if err != nil {
				return err
			}
			defer v.Close()
			p, err := v.OpenPanel(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			t, _ := p.Task()
			fmt.Fprintf(out(cmd), "%s  %s [%s, %s]\n", t.ID, t.Title, t.Status, t.Priority)
			if t.Description != "" {
				fmt.Fprintln(out(cmd), t.Description)
			}
			w := tabwriter.NewWriter(out(cmd), 0, 4, 2, ' ', 0)
			for _, c := range p.Comments() {
				fmt.Fprintf(w, "%s\t%s\t%s\n", c.CreatedAt.Format("2006-01-02 15:04"), c.AuthorID, c.Content)
			}
			return w.Flush()
		},
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "add <task-id> <text>",
		Short: "Add a comment to a task",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			v, err := a.open(cmd.Context())
			if err != nil {
				return err
			}
			defer v.Close()
			p, err := v.OpenPanel(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			c, err := p.AddComment(cmd.Context(), args[1])
			if err != nil {
				return err
			}
			fmt.Fprintf(out(cmd), "Added comment %s to %s\n", c.ID, args[0])
			return nil
		},
	})
	return cmd
}

func newGenerateCmd(a *app) *cobra.Command {
	var yes bool
	cmd := &cobra.Command{
		Use:   "generate <instructions>",
		Short: "Draft tasks from instructions; --yes creates them",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			v, err := a.open(cmd.Context())
			if err != nil {
				return err
			}
			defer v.Close()
			p, err := v.Intake().Propose(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			w := tabwriter.NewWriter(out(cmd), 0, 4, 2, ' ', 0)
			for i, d := range p.Drafts() {
				fmt.Fprintf(w, "%d\t%s\t%s\teffort %d\n", i+1, d.Title, d.Priority, d.Effort)
			}
			if err := w.Flush(); err != nil {
				return err
			}
			if !yes {
				fmt.Fprintln(out(cmd), "Nothing created; rerun with --yes to create these tasks.")
				return v.Intake().Discard(p)
			}
			created, err := v.Intake().Confirm(cmd.Context(), p)
			if err != nil {
				return err
			}
			fmt.Fprintf(out(cmd), "Created %d tasks in %s\n", len(created), models.StatusTodo)
			return nil
		},
	}
	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "create the drafted tasks")
	return cmd
}

func newMemberCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "members",
		Short: "List workspace members",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			members, err := a.client.ListMembers(cmd.Context(), a.cfg.Client.Workspace)
			if err != nil {
				return err
			}
			w := tabwriter.NewWriter(out(cmd), 0, 4, 2, ' ', 0)
			for _, m := range members {
				fmt.Fprintf(w, "%s\t%s\t%s\n", m.Username, m.Role, m.UserID)
			}
			return w.Flush()
		},
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "add <username> <viewer|editor|owner>",
		Short: "Grant a user a role (owners only)",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			role := models.Role(args[1])
			if !role.Valid() {
				return fmt.Errorf("%w: unknown role %q", models.ErrValidation, args[1])
			}
			m, err := a.client.AddMember(cmd.Context(), a.cfg.Client.Workspace, args[0], role)
			if err != nil {
				return err
			}
			fmt.Fprintf(out(cmd), "%s is now %s\n", m.Username, m.Role)
			return nil
		},
	})
	return cmd
}
