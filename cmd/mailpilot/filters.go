package main

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/joshsymonds/mailpilot/internal/filters"
	"github.com/joshsymonds/mailpilot/internal/gmail"
)

type filterView struct {
	ID       string         `json:"id"`
	Criteria map[string]any `json:"criteria"`
	Actions  map[string]any `json:"actions"`
}

func toFilterView(f gmail.Filter) filterView {
	criteria := map[string]any{}
	if f.Criteria.From != "" {
		criteria["from"] = f.Criteria.From
	}
	if f.Criteria.To != "" {
		criteria["to"] = f.Criteria.To
	}
	if f.Criteria.Subject != "" {
		criteria["subject"] = f.Criteria.Subject
	}
	if f.Criteria.Query != "" {
		criteria["query"] = f.Criteria.Query
	}
	if f.Criteria.HasAttachment {
		criteria["has_attachment"] = true
	}
	actions := map[string]any{}
	if len(f.Actions.AddLabelIDs) > 0 {
		actions["add_labels"] = labelIDStrings(f.Actions.AddLabelIDs)
	}
	if len(f.Actions.RemoveLabelIDs) > 0 {
		actions["remove_labels"] = labelIDStrings(f.Actions.RemoveLabelIDs)
	}
	if f.Actions.Forward != "" {
		actions["forward"] = f.Actions.Forward
	}
	return filterView{ID: string(f.ID), Criteria: criteria, Actions: actions}
}

func labelIDStrings(ids []gmail.LabelID) []string {
	out := make([]string, len(ids))
	for i, id := range ids {
		out[i] = string(id)
	}
	return out
}

func newFiltersCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "filters",
		Short: "Manage server-side filters",
		RunE:  a.runWithSession(runFiltersList(a)),
	}

	list := &cobra.Command{
		Use:   "list",
		Short: "List filters",
		Args:  cobra.NoArgs,
		RunE:  a.runWithSession(runFiltersList(a)),
	}

	var criteria gmail.FilterCriteria
	var actions filters.Actions
	add := &cobra.Command{
		Use:   "add",
		Short: "Create a filter from criteria and actions",
		Args:  cobra.NoArgs,
		RunE: a.runWithSession(func(ctx context.Context, s *session, _ []string) error {
			svc := filters.NewService(s.Client, s.Limiter, a.log)
			filter, err := svc.Add(ctx, criteria, actions)
			if err != nil {
				return err
			}
			return printJSON(map[string]any{
				"account": s.Account.Email,
				"status":  "success",
				"filter":  toFilterView(filter),
			})
		}),
	}
	add.Flags().StringVar(&criteria.From, "from", "", "match the sender address")
	add.Flags().StringVar(&criteria.To, "to", "", "match the recipient address")
	add.Flags().StringVar(&criteria.Subject, "subject", "", "match the subject")
	add.Flags().StringVar(&criteria.Query, "query", "", "match a Gmail search expression")
	add.Flags().BoolVar(&criteria.HasAttachment, "has-attachment", false, "match messages with attachments")
	add.Flags().StringVar(&actions.AddLabel, "label", "", "apply this label; must exist unless --create is given")
	add.Flags().BoolVar(&actions.CreateLabel, "create", false, "create the label when it does not exist")
	add.Flags().BoolVar(&actions.Archive, "archive", false, "skip the inbox")
	add.Flags().BoolVar(&actions.MarkRead, "mark-read", false, "mark matches as read")
	add.Flags().BoolVar(&actions.Trash, "trash", false, "send matches to the trash")
	add.Flags().BoolVar(&actions.Star, "star", false, "star matches")
	add.Flags().StringVar(&actions.Forward, "forward", "", "forward matches to this address")

	del := &cobra.Command{
		Use:   "delete <filter-id>",
		Short: "Delete a filter",
		Args:  cobra.ExactArgs(1),
		RunE: a.runWithSession(func(ctx context.Context, s *session, args []string) error {
			svc := filters.NewService(s.Client, s.Limiter, a.log)
			if err := svc.Delete(ctx, gmail.FilterID(args[0])); err != nil {
				return err
			}
			return printJSON(map[string]any{
				"account": s.Account.Email,
				"status":  "success",
				"deleted": args[0],
			})
		}),
	}

	cmd.AddCommand(list, add, del)
	return cmd
}

func runFiltersList(a *app) func(context.Context, *session, []string) error {
	return func(ctx context.Context, s *session, _ []string) error {
		svc := filters.NewService(s.Client, s.Limiter, a.log)
		all, err := svc.List(ctx)
		if err != nil {
			return err
		}
		views := make([]filterView, 0, len(all))
		for _, f := range all {
			views = append(views, toFilterView(f))
		}
		return printJSON(map[string]any{
			"account": s.Account.Email,
			"count":   len(views),
			"filters": views,
		})
	}
}
