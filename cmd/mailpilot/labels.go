package main

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/joshsymonds/mailpilot/internal/gmail"
	"github.com/joshsymonds/mailpilot/internal/mailbox"
)

type labelView struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Kind string `json:"kind"`
}

func toLabelView(l gmail.Label) labelView {
	return labelView{ID: string(l.ID), Name: l.Name, Kind: string(l.Kind)}
}

func newLabelsCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "labels",
		Short: "Manage labels",
		RunE:  a.runWithSession(runLabelsList(a)),
	}

	list := &cobra.Command{
		Use:   "list",
		Short: "List labels",
		Args:  cobra.NoArgs,
		RunE:  a.runWithSession(runLabelsList(a)),
	}

	create := &cobra.Command{
		Use:   "create <name>",
		Short: "Create a label",
		Args:  cobra.ExactArgs(1),
		RunE: a.runWithSession(func(ctx context.Context, s *session, args []string) error {
			svc := mailbox.NewService(s.Client, s.Limiter, a.log)
			label, err := svc.CreateLabel(ctx, args[0])
			if err != nil {
				return err
			}
			return printJSON(map[string]any{
				"account": s.Account.Email,
				"status":  "success",
				"label":   toLabelView(label),
			})
		}),
	}

	del := &cobra.Command{
		Use:   "delete <name-or-id>",
		Short: "Delete a label",
		Args:  cobra.ExactArgs(1),
		RunE: a.runWithSession(func(ctx context.Context, s *session, args []string) error {
			svc := mailbox.NewService(s.Client, s.Limiter, a.log)
			label, err := svc.DeleteLabel(ctx, args[0])
			if err != nil {
				return err
			}
			return printJSON(map[string]any{
				"account": s.Account.Email,
				"status":  "success",
				"deleted": toLabelView(label),
			})
		}),
	}

	rename := &cobra.Command{
		Use:   "rename <old-name> <new-name>",
		Short: "Rename a label",
		Args:  cobra.ExactArgs(2),
		RunE: a.runWithSession(func(ctx context.Context, s *session, args []string) error {
			svc := mailbox.NewService(s.Client, s.Limiter, a.log)
			label, err := svc.RenameLabel(ctx, args[0], args[1])
			if err != nil {
				return err
			}
			return printJSON(map[string]any{
				"account": s.Account.Email,
				"status":  "success",
				"label":   toLabelView(label),
			})
		}),
	}

	cmd.AddCommand(list, create, del, rename)
	return cmd
}

func runLabelsList(a *app) func(context.Context, *session, []string) error {
	return func(ctx context.Context, s *session, _ []string) error {
		svc := mailbox.NewService(s.Client, s.Limiter, a.log)
		labels, err := svc.Labels(ctx)
		if err != nil {
			return err
		}
		views := make([]labelView, 0, len(labels))
		for _, l := range labels {
			views = append(views, toLabelView(l))
		}
		return printJSON(map[string]any{
			"account": s.Account.Email,
			"count":   len(views),
			"labels":  views,
		})
	}
}
