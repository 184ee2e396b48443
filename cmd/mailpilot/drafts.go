package main

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/joshsymonds/mailpilot/internal/compose"
	"github.com/joshsymonds/mailpilot/internal/gmail"
)

func newDraftsCmd(a *app) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "drafts",
		Short: "Manage drafts",
		RunE:  a.runWithSession(runDraftsList(a, &limit)),
	}
	cmd.Flags().IntVar(&limit, "limit", 20, "maximum drafts to return")

	list := &cobra.Command{
		Use:   "list",
		Short: "List drafts",
		Args:  cobra.NoArgs,
		RunE:  a.runWithSession(runDraftsList(a, &limit)),
	}
	list.Flags().IntVar(&limit, "limit", 20, "maximum drafts to return")

	var req compose.Request
	create := &cobra.Command{
		Use:   "create",
		Short: "Compose a new draft",
		Args:  cobra.NoArgs,
		RunE: a.runWithSession(func(ctx context.Context, s *session, _ []string) error {
			svc := compose.NewService(s.Client, s.Limiter, a.log)
			d, err := svc.CreateDraft(ctx, req)
			if err != nil {
				return err
			}
			return printJSON(map[string]any{
				"account":  s.Account.Email,
				"status":   "success",
				"draft_id": string(d.ID),
			})
		}),
	}
	composeFlags(create, &req)

	var replyBody, replyCc string
	reply := &cobra.Command{
		Use:   "reply <message-id>",
		Short: "Draft a reply to a message in its thread",
		Args:  cobra.ExactArgs(1),
		RunE: a.runWithSession(func(ctx context.Context, s *session, args []string) error {
			svc := compose.NewService(s.Client, s.Limiter, a.log)
			d, err := svc.DraftReply(ctx, gmail.MessageID(args[0]), replyBody, replyCc)
			if err != nil {
				return err
			}
			return printJSON(map[string]any{
				"account":  s.Account.Email,
				"status":   "success",
				"draft_id": string(d.ID),
			})
		}),
	}
	reply.Flags().StringVar(&replyBody, "body", "", "reply body text")
	reply.Flags().StringVar(&replyCc, "cc", "", "additional cc addresses")

	del := &cobra.Command{
		Use:   "delete <draft-id>",
		Short: "Delete a draft",
		Args:  cobra.ExactArgs(1),
		RunE: a.runWithSession(func(ctx context.Context, s *session, args []string) error {
			svc := compose.NewService(s.Client, s.Limiter, a.log)
			if err := svc.DeleteDraft(ctx, gmail.DraftID(args[0])); err != nil {
				return err
			}
			return printJSON(map[string]any{
				"account": s.Account.Email,
				"status":  "success",
				"deleted": args[0],
			})
		}),
	}

	send := &cobra.Command{
		Use:   "send <draft-id>",
		Short: "Send an existing draft",
		Args:  cobra.ExactArgs(1),
		RunE: a.runWithSession(func(ctx context.Context, s *session, args []string) error {
			svc := compose.NewService(s.Client, s.Limiter, a.log)
			res, err := svc.SendDraft(ctx, gmail.DraftID(args[0]))
			if err != nil {
				return err
			}
			return printJSON(sendResultJSON(s.Account.Email, res))
		}),
	}

	cmd.AddCommand(list, create, reply, del, send)
	return cmd
}

func runDraftsList(a *app, limit *int) func(context.Context, *session, []string) error {
	return func(ctx context.Context, s *session, _ []string) error {
		svc := compose.NewService(s.Client, s.Limiter, a.log)
		drafts, err := svc.ListDrafts(ctx, *limit)
		if err != nil {
			return err
		}
		views := make([]map[string]any, 0, len(drafts))
		for _, d := range drafts {
			views = append(views, map[string]any{
				"draft_id": string(d.ID),
				"to":       d.Message.Header("To"),
				"subject":  d.Message.Header("Subject"),
				"date":     d.Message.Header("Date"),
			})
		}
		return printJSON(map[string]any{
			"account": s.Account.Email,
			"count":   len(views),
			"drafts":  views,
		})
	}
}
