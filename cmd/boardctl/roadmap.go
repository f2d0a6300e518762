package main

import (
	"fmt"
	"math"

	"taskboard/internal/models"

	"github.com/spf13/cobra"
)

func percent(p float64) int { return int(math.Round(p * 100)) }

func newRoadmapCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "roadmap",
		Short: "Show phases and milestones with progress",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			v, err := a.open(cmd.Context())
			if err != nil {
				return err
			}
			defer v.Close()
			for _, p := range v.Graph().Phases() {
				fmt.Fprintf(out(cmd), "%s  %s [%s] %d%%\n", p.ID, p.Title, p.Status, percent(p.Progress))
				for _, m := range p.Milestones {
					fmt.Fprintf(out(cmd), "  %s  %s [%s] %d%% (%d tasks)\n", m.ID, m.Title, m.Status, percent(m.Progress), len(m.LinkedTasks))
					for _, t := range m.LinkedTasks {
						fmt.Fprintf(out(cmd), "    - %s %s (%s)\n", t.ID, t.Title, t.Status)
					}
				}
			}
			return nil
		},
	}

	var due, description string
	phase := &cobra.Command{
		Use:   "phase <title>",
		Short: "Add a phase at the end of the roadmap",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			v, err := a.open(cmd.Context())
			if err != nil {
				return err
			}
			defer v.Close()
			p, err := v.Graph().CreatePhase(cmd.Context(), models.PhaseInput{Title: args[0], Description: description, DueDate: due})
			if err != nil {
				return err
			}
			fmt.Fprintf(out(cmd), "Created phase %s\n", p.ID)
			return nil
		},
	}
	milestone := &cobra.Command{
		Use:   "milestone <phase-id> <title>",
		Short: "Add a milestone to a phase",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			v, err := a.open(cmd.Context())
			if err != nil {
				return err
			}
			defer v.Close()
			m, err := v.Graph().CreateMilestone(cmd.Context(), args[0], models.MilestoneInput{Title: args[1], Description: description, DueDate: due})
			if err != nil {
				return err
			}
			fmt.Fprintf(out(cmd), "Created milestone %s\n", m.ID)
			return nil
		},
	}
	for _, c := range []*cobra.Command{phase, milestone} {
		c.Flags().StringVar(&due, "due", "", "due date")
		c.Flags().StringVar(&description, "description", "", "description")
	}

	remove := &cobra.Command{
		Use:   "rm <phase|milestone> <id>",
		Short: "Delete a phase or milestone; linked tasks stay",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			v, err := a.open(cmd.Context())
			if err != nil {
				return err
			}
			defer v.Close()
			switch args[0] {
			case "phase":
				err = v.Graph().DeletePhase(cmd.Context(), args[1])
			case "milestone":
				err = v.Graph().DeleteMilestone(cmd.Context(), args[1])
			default:
				return fmt.Errorf("%w: expected phase or milestone, got %q", models.ErrValidation, args[0])
			}
			if err != nil {
				return err
			}
			fmt.Fprintf(out(cmd), "Deleted %s %s\n", args[0], args[1])
			return nil
		},
	}
	cmd.AddCommand(phase, milestone, remove)
	return cmd
}

// newLinkCmd builds "link" or "unlink". Both compute the desired link set
// and hand it to the link graph, which sends only the difference.
func newLinkCmd(a *app, mode models.LinkMode) *cobra.Command {
	return &cobra.Command{
		Use:   string(mode) + " <milestone-id> <task-id>...",
		Short: "Change which tasks a milestone is linked to",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			v, err := a.open(cmd.Context())
			if err != nil {
				return err
			}
			defer v.Close()

			milestoneID, ids := args[0], args[1:]
			desired := v.Graph().LinkedIDs(milestoneID)
			if mode == models.LinkModeLink {
				desired = append(desired, ids...)
			} else {
				drop := make(map[string]bool, len(ids))
				for _, id := range ids {
					drop[id] = true
				}
				kept := desired[:0]
				for _, id := range desired {
					if !drop[id] {
						kept = append(kept, id)
					}
				}
				desired = kept
			}

			diff := v.Graph().Diff(milestoneID, desired)
			if err := v.Graph().SetLinks(cmd.Context(), milestoneID, desired); err != nil {
				return err
			}
			fmt.Fprintf(out(cmd), "Linked %d, unlinked %d; progress %d%%\n",
				len(diff.ToAdd), len(diff.ToRemove), percent(v.Graph().Progress(milestoneID)))
			return nil
		},
	}
}
