package main

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/joshsymonds/mailpilot/internal/compose"
	"github.com/joshsymonds/mailpilot/internal/gmail"
)

func composeFlags(cmd *cobra.Command, req *compose.Request) {
	cmd.Flags().StringVar(&req.To, "to", "", "recipient addresses, comma-separated")
	cmd.Flags().StringVar(&req.Cc, "cc", "", "cc addresses, comma-separated")
	cmd.Flags().StringVar(&req.Bcc, "bcc", "", "bcc addresses, comma-separated")
	cmd.Flags().StringVar(&req.Subject, "subject", "", "message subject")
	cmd.Flags().StringVar(&req.Body, "body", "", "message body text")
	cmd.Flags().StringSliceVar(&req.Attachments, "attach", nil, "file to attach, repeatable")
}

func sendResultJSON(email string, res gmail.SendResult) map[string]any {
	return map[string]any{
		"account":    email,
		"status":     "success",
		"message_id": string(res.ID),
		"thread_id":  string(res.ThreadID),
	}
}

func newSendCmd(a *app) *cobra.Command {
	var req compose.Request
	var draft bool
	cmd := &cobra.Command{
		Use:   "send",
		Short: "Send a message or save it as a draft",
		Args:  cobra.NoArgs,
		RunE: a.runWithSession(func(ctx context.Context, s *session, _ []string) error {
			svc := compose.NewService(s.Client, s.Limiter, a.log)
			if draft {
				d, err := svc.CreateDraft(ctx, req)
				if err != nil {
					return err
				}
				return printJSON(map[string]any{
					"account":  s.Account.Email,
					"status":   "success",
					"draft_id": string(d.ID),
				})
			}
			res, err := svc.Send(ctx, req)
			if err != nil {
				return err
			}
			return printJSON(sendResultJSON(s.Account.Email, res))
		}),
	}
	composeFlags(cmd, &req)
	cmd.Flags().BoolVar(&draft, "draft", false, "save as a draft instead of sending")
	return cmd
}

func newReplyCmd(a *app) *cobra.Command {
	var body, cc string
	var draft bool
	cmd := &cobra.Command{
		Use:   "reply <message-id>",
		Short: "Reply to a message in its thread",
		Args:  cobra.ExactArgs(1),
		RunE: a.runWithSession(func(ctx context.Context, s *session, args []string) error {
			svc := compose.NewService(s.Client, s.Limiter, a.log)
			id := gmail.MessageID(args[0])
			if draft {
				d, err := svc.DraftReply(ctx, id, body, cc)
				if err != nil {
					return err
				}
				return printJSON(map[string]any{
					"account":  s.Account.Email,
					"status":   "success",
					"draft_id": string(d.ID),
				})
			}
			res, err := svc.Reply(ctx, id, body, cc)
			if err != nil {
				return err
			}
			return printJSON(sendResultJSON(s.Account.Email, res))
		}),
	}
	cmd.Flags().StringVar(&body, "body", "", "reply body text")
	cmd.Flags().StringVar(&cc, "cc", "", "additional cc addresses")
	cmd.Flags().BoolVar(&draft, "draft", false, "save the reply as a draft instead of sending")
	return cmd
}
