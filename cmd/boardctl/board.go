package main

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"text/tabwriter"

	"taskboard/internal/models"

	"github.com/spf13/cobra"
)

func newLoginCmd(a *app) *cobra.Command {
	var password string
	cmd := &cobra.Command{
		Use:   "login <username>",
		Short: "Log in and print the token to put in client.token",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if password == "" {
				password = os.Getenv("TASKBOARD_PASSWORD")
			}
			if password == "" {
				return fmt.Errorf("%w: --password or TASKBOARD_PASSWORD is required", models.ErrValidation)
			}
			s, err := a.client.Login(cmd.Context(), args[0], password)
			if err != nil {
				return err
			}
			fmt.Fprintf(out(cmd), "Logged in as %s (%s)\n", s.Username, s.UserID)
			fmt.Fprintf(out(cmd), "export TASKBOARD_CLIENT_TOKEN=%s\n", s.Token)
			return nil
		},
	}
	cmd.Flags().StringVar(&password, "password", "", "password (first login registers the user)")
	return cmd
}

func newBoardCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "board",
		Short: "Show the board lane by lane",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			v, err := a.open(cmd.Context())
			if err != nil {
				return err
			}
			defer v.Close()

			view := v.Store().LaneView()
			w := tabwriter.NewWriter(out(cmd), 0, 4, 2, ' ', 0)
			for _, status := range models.Statuses {
				lane := view.Lane(status)
				fmt.Fprintf(w, "%s (%d)\n", strings.ToUpper(string(status)), len(lane))
				for _, t := range lane {
					fmt.Fprintf(w, "  %d\t%s\t%s\t%s\t%s\n", t.OrderIndex, t.ID, t.Title, t.Priority, contextLabels(t))
				}
			}
			if !v.Engine().CanDrag() {
				fmt.Fprintln(w, "(read-only)")
			}
			return w.Flush()
		},
	}
}

func contextLabels(t models.Task) string {
	labels := make([]string, 0, len(t.ContextLinks))
	for _, l := range t.ContextLinks {
		labels = append(labels, l.Label())
	}
	return strings.Join(labels, ", ")
}

type taskFlags struct {
	description string
	status      string
	priority    string
	due         string
	assignee    string
	effort      int
	kb, prd     string
	roadmap     string
}

func (f *taskFlags) register(cmd *cobra.Command, withStatus bool) {
	fl := cmd.Flags()
	fl.StringVar(&f.description, "description", "", "description")
	if withStatus {
		fl.StringVar(&f.status, "status", "", "lane: todo, in_progress or done")
	}
	fl.StringVar(&f.priority, "priority", "", "low, medium, high or critical")
	fl.StringVar(&f.due, "due", "", "due date, e.g. 2026-03-01")
	fl.StringVar(&f.assignee, "assignee", "", "assignee user id")
	fl.IntVar(&f.effort, "effort", 0, "effort points")
	fl.StringVar(&f.kb, "kb", "", "knowledge-base entry id")
	fl.StringVar(&f.prd, "prd", "", "PRD id")
	fl.StringVar(&f.roadmap, "roadmap", "", "roadmap item id")
}

func (f *taskFlags) links() []models.ContextLink {
	var links []models.ContextLink
	for _, l := range []models.ContextLink{
		{Kind: models.ContextKB, ID: f.kb},
		{Kind: models.ContextPRD, ID: f.prd},
		{Kind: models.ContextRoadmap, ID: f.roadmap},
	} {
		if l.ID != "" {
			links = append(links, l)
		}
	}
	return links
}

func newCreateCmd(a *app) *cobra.Command {
	var f taskFlags
	cmd := &cobra.Command{
		Use:   "create <title>",
		Short: "Create a task at the end of its lane",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			v, err := a.open(cmd.Context())
			if err != nil {
				return err
			}
			defer v.Close()
			t, err := v.Engine().CreateTask(cmd.Context(), models.TaskInput{
				Title:        args[0],
				Description:  f.description,
				Status:       models.TaskStatus(f.status),
				Priority:     models.TaskPriority(f.priority),
				DueDate:      f.due,
				AssigneeID:   f.assignee,
				ContextLinks: f.links(),
				Effort:       f.effort,
			})
			if err != nil {
				return err
			}
			fmt.Fprintf(out(cmd), "Created %s in %s at %d\n", t.ID, t.Status, t.OrderIndex)
			return nil
		},
	}
	f.register(cmd, true)
	return cmd
}

func newEditCmd(a *app) *cobra.Command {
	var f taskFlags
	var title string
	cmd := &cobra.Command{
		Use:   "edit <task-id>",
		Short: "Edit task fields; --status moves it to the end of that lane",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var patch models.TaskPatch
			set := cmd.Flags().Changed
			if set("title") {
				patch.Title = &title
			}
			if set("description") {
				patch.Description = &f.description
			}
			if set("status") {
				s := models.TaskStatus(f.status)
				patch.Status = &s
			}
			if set("priority") {
				p := models.TaskPriority(f.priority)
				patch.Priority = &p
			}
			if set("due") {
				patch.DueDate = &f.due
			}
			if set("assignee") {
				patch.AssigneeID = &f.assignee
			}
			if set("effort") {
				patch.Effort = &f.effort
			}
			if set("kb") || set("prd") || set("roadmap") {
				links := f.links()
				patch.ContextLinks = &links
			}

			v, err := a.open(cmd.Context())
			if err != nil {
				return err
			}
			defer v.Close()
			p, err := v.OpenPanel(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			t, err := p.Update(cmd.Context(), patch)
			if err != nil {
				return err
			}
			fmt.Fprintf(out(cmd), "Updated %s (version %d)\n", t.ID, t.Version)
			return nil
		},
	}
	cmd.Flags().StringVar(&title, "title", "", "title")
	f.register(cmd, true)
	return cmd
}

func newMoveCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "move <task-id> <status> <index>",
		Short: "Move a task to a lane position",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			to := models.TaskStatus(args[1])
			idx, err := strconv.Atoi(args[2])
			if err != nil {
				return fmt.Errorf("%w: index %q is not a number", models.ErrValidation, args[2])
			}
			v, err := a.open(cmd.Context())
			if err != nil {
				return err
			}
			defer v.Close()

			from, fromIdx, ok := v.Store().LaneView().Find(args[0])
			if !ok {
				return fmt.Errorf("task %s: %w", args[0], models.ErrNotFound)
			}
			if err := v.Engine().Move(cmd.Context(), args[0], from, to, fromIdx, idx); err != nil {
				return err
			}
			t, _ := v.Store().Task(args[0])
			fmt.Fprintf(out(cmd), "Moved %s to %s at %d\n", t.ID, t.Status, t.OrderIndex)
			return nil
		},
	}
}

func newDeleteCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <task-id>",
		Short: "Delete a task with its comments and milestone links",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			v, err := a.open(cmd.Context())
			if err != nil {
				return err
			}
			defer v.Close()
			if err := v.Engine().DeleteTask(cmd.Context(), args[0]); err != nil {
				return err
			}
			fmt.Fprintf(out(cmd), "Deleted %s\n", args[0])
			return nil
		},
	}
}
