package main

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/joshsymonds/mailpilot/internal/attachment"
	"github.com/joshsymonds/mailpilot/internal/gmail"
)

func attachmentFlags(cmd *cobra.Command, opts *attachment.Options) {
	cmd.Flags().StringVar(&opts.Filter, "filter", "", "only download filenames containing this substring")
	cmd.Flags().StringVar(&opts.Prefix, "prefix", "", "prepend this prefix to saved filenames")
	cmd.Flags().StringVarP(&opts.OutDir, "output", "o", ".", "directory to save attachments into")
}

func manifestJSON(email string, m attachment.Manifest) map[string]any {
	saved := make([]map[string]any, 0, len(m.Saved))
	for _, f := range m.Saved {
		saved = append(saved, map[string]any{
			"message_id": string(f.MessageID),
			"filename":   f.Filename,
			"saved_as":   f.SavedAs,
			"size":       f.Size,
		})
	}
	out := map[string]any{
		"account": email,
		"count":   len(saved),
		"saved":   saved,
	}
	if len(m.Failures) > 0 {
		failed := make([]map[string]any, 0, len(m.Failures))
		for _, f := range m.Failures {
			failed = append(failed, map[string]any{
				"message_id": string(f.MessageID),
				"filename":   f.Filename,
				"error":      f.Err.Error(),
			})
		}
		out["failed"] = failed
	}
	return out
}

func newAttachmentsCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "attachments <message-id>",
		Short: "List a message's attachments",
		Args:  cobra.ExactArgs(1),
		RunE: a.runWithSession(func(ctx context.Context, s *session, args []string) error {
			svc := attachment.NewService(s.Client, s.Limiter, a.log)
			parts, err := svc.List(ctx, gmail.MessageID(args[0]))
			if err != nil {
				return err
			}
			views := make([]map[string]any, 0, len(parts))
			for _, p := range parts {
				views = append(views, map[string]any{
					"filename":  p.Filename,
					"mime_type": p.MimeType,
					"size":      p.Size,
				})
			}
			return printJSON(map[string]any{
				"account":     s.Account.Email,
				"message_id":  args[0],
				"count":       len(views),
				"attachments": views,
			})
		}),
	}
}

func newDownloadCmd(a *app) *cobra.Command {
	var opts attachment.Options
	cmd := &cobra.Command{
		Use:   "download <message-id>",
		Short: "Download a message's attachments",
		Args:  cobra.ExactArgs(1),
		RunE: a.runWithSession(func(ctx context.Context, s *session, args []string) error {
			svc := attachment.NewService(s.Client, s.Limiter, a.log)
			manifest, err := svc.Download(ctx, gmail.MessageID(args[0]), opts)
			if err != nil {
				return err
			}
			return printJSON(manifestJSON(s.Account.Email, manifest))
		}),
	}
	attachmentFlags(cmd, &opts)
	return cmd
}

func newSearchDownloadCmd(a *app) *cobra.Command {
	var opts attachment.Options
	var limit int
	cmd := &cobra.Command{
		Use:   "search-download <query>",
		Short: "Download attachments from every message matching a query",
		Args:  cobra.ExactArgs(1),
		RunE: a.runWithSession(func(ctx context.Context, s *session, args []string) error {
			svc := attachment.NewService(s.Client, s.Limiter, a.log)
			manifest, err := svc.SearchDownload(ctx, args[0], limit, opts)
			if err != nil {
				return err
			}
			out := manifestJSON(s.Account.Email, manifest)
			out["query"] = args[0]
			return printJSON(out)
		}),
	}
	attachmentFlags(cmd, &opts)
	cmd.Flags().IntVar(&limit, "limit", 50, "maximum messages to scan")
	return cmd
}
