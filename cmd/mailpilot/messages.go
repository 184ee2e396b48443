package main

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/joshsymonds/mailpilot/internal/gmail"
	"github.com/joshsymonds/mailpilot/internal/mailbox"
)

// messageView is the JSON shape common to list, search, read and summary.
type messageView struct {
	ID       string   `json:"id"`
	ThreadID string   `json:"thread_id,omitempty"`
	From     string   `json:"from,omitempty"`
	To       string   `json:"to,omitempty"`
	Subject  string   `json:"subject,omitempty"`
	Date     string   `json:"date,omitempty"`
	Snippet  string   `json:"snippet,omitempty"`
	Body     string   `json:"body,omitempty"`
	Labels   []string `json:"labels,omitempty"`
	Unread   bool     `json:"unread"`
}

func toView(m gmail.Message, withBody bool) messageView {
	v := messageView{
		ID:       string(m.ID),
		ThreadID: string(m.ThreadID),
		From:     m.Header("From"),
		To:       m.Header("To"),
		Subject:  m.Header("Subject"),
		Snippet:  m.Snippet,
		Unread:   m.HasLabel(gmail.LabelUnread),
	}
	if !m.Date.IsZero() {
		v.Date = m.Date.Format(time.RFC3339)
	}
	for _, l := range m.LabelIDs {
		v.Labels = append(v.Labels, string(l))
	}
	if withBody {
		v.Body = m.Body
	}
	return v
}

func toViews(msgs []gmail.Message, withBody bool) []messageView {
	views := make([]messageView, 0, len(msgs))
	for _, m := range msgs {
		views = append(views, toView(m, withBody))
	}
	return views
}

// parseIDs accepts either a JSON array of IDs or a comma-separated list.
func parseIDs(raw string) ([]gmail.MessageID, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, gmail.ValidationError("no message ids given")
	}
	var parts []string
	if strings.HasPrefix(raw, "[") {
		if err := json.Unmarshal([]byte(raw), &parts); err != nil {
			return nil, gmail.ValidationError("bad id list %q: %v", raw, err)
		}
	} else {
		parts = strings.Split(raw, ",")
	}
	ids := make([]gmail.MessageID, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			ids = append(ids, gmail.MessageID(p))
		}
	}
	if len(ids) == 0 {
		return nil, gmail.ValidationError("no message ids given")
	}
	return ids, nil
}

func itemResults(results []mailbox.ItemResult) (succeeded []string, failed []map[string]string) {
	for _, r := range results {
		if r.Err != nil {
			failed = append(failed, map[string]string{
				"id":    string(r.ID),
				"error": r.Err.Error(),
			})
			continue
		}
		succeeded = append(succeeded, string(r.ID))
	}
	return succeeded, failed
}

func newListCmd(a *app) *cobra.Command {
	var limit int
	var unread bool
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List inbox messages",
		Args:  cobra.NoArgs,
		RunE: a.runWithSession(func(ctx context.Context, s *session, _ []string) error {
			query := "label:INBOX"
			if unread {
				query += " is:unread"
			}
			svc := mailbox.NewService(s.Client, s.Limiter, a.log)
			msgs, err := svc.Search(ctx, query, limit)
			if err != nil {
				return err
			}
			return printJSON(map[string]any{
				"account":  s.Account.Email,
				"count":    len(msgs),
				"messages": toViews(msgs, false),
			})
		}),
	}
	cmd.Flags().IntVar(&limit, "limit", 25, "maximum messages to return")
	cmd.Flags().BoolVar(&unread, "unread", false, "only unread messages")
	return cmd
}

func newSearchCmd(a *app) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Search messages with Gmail query syntax",
		Args:  cobra.ExactArgs(1),
		RunE: a.runWithSession(func(ctx context.Context, s *session, args []string) error {
			svc := mailbox.NewService(s.Client, s.Limiter, a.log)
			msgs, err := svc.Search(ctx, args[0], limit)
			if err != nil {
				return err
			}
			return printJSON(map[string]any{
				"account":  s.Account.Email,
				"query":    args[0],
				"count":    len(msgs),
				"messages": toViews(msgs, false),
			})
		}),
	}
	cmd.Flags().IntVar(&limit, "limit", 25, "maximum messages to return")
	return cmd
}

func newReadCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "read <message-id>",
		Short: "Read a full message including its body",
		Args:  cobra.ExactArgs(1),
		RunE: a.runWithSession(func(ctx context.Context, s *session, args []string) error {
			svc := mailbox.NewService(s.Client, s.Limiter, a.log)
			msg, err := svc.Read(ctx, gmail.MessageID(args[0]))
			if err != nil {
				return err
			}
			return printJSON(map[string]any{
				"account": s.Account.Email,
				"message": toView(msg, true),
			})
		}),
	}
}

func newTrashCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "trash <ids>",
		Short: "Move messages to the trash",
		Args:  cobra.ExactArgs(1),
		RunE: a.runWithSession(func(ctx context.Context, s *session, args []string) error {
			return runPerID(ctx, a, s, args[0], "trashed", func(svc *mailbox.Service, ids []gmail.MessageID) ([]mailbox.ItemResult, error) {
				return svc.Trash(ctx, ids)
			})
		}),
	}
}

func newUntrashCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "untrash <ids>",
		Short: "Restore messages from the trash",
		Args:  cobra.ExactArgs(1),
		RunE: a.runWithSession(func(ctx context.Context, s *session, args []string) error {
			return runPerID(ctx, a, s, args[0], "untrashed", func(svc *mailbox.Service, ids []gmail.MessageID) ([]mailbox.ItemResult, error) {
				return svc.Untrash(ctx, ids)
			})
		}),
	}
}

func runPerID(ctx context.Context, a *app, s *session, raw, verb string, op func(*mailbox.Service, []gmail.MessageID) ([]mailbox.ItemResult, error)) error {
	ids, err := parseIDs(raw)
	if err != nil {
		return err
	}
	svc := mailbox.NewService(s.Client, s.Limiter, a.log)
	results, err := op(svc, ids)
	if err != nil {
		return err
	}
	succeeded, failed := itemResults(results)
	out := map[string]any{
		"account": s.Account.Email,
		verb:      succeeded,
		"count":   len(succeeded),
	}
	if len(failed) > 0 {
		out["failed"] = failed
	}
	return printJSON(out)
}

func newArchiveCmd(a *app) *cobra.Command {
	var markRead bool
	cmd := &cobra.Command{
		Use:   "archive <ids>",
		Short: "Remove messages from the inbox",
		Args:  cobra.ExactArgs(1),
		RunE: a.runWithSession(func(ctx context.Context, s *session, args []string) error {
			ids, err := parseIDs(args[0])
			if err != nil {
				return err
			}
			svc := mailbox.NewService(s.Client, s.Limiter, a.log)
			if err := svc.Archive(ctx, ids, markRead); err != nil {
				return err
			}
			return printJSON(map[string]any{
				"account": s.Account.Email,
				"status":  "success",
				"count":   len(ids),
			})
		}),
	}
	cmd.Flags().BoolVar(&markRead, "mark-read", false, "also mark the messages as read")
	return cmd
}

func newMoveCmd(a *app) *cobra.Command {
	var opts mailbox.MoveOptions
	cmd := &cobra.Command{
		Use:   "move <label> <ids>",
		Short: "Label messages and remove them from the inbox",
		Args:  cobra.ExactArgs(2),
		RunE: a.runWithSession(func(ctx context.Context, s *session, args []string) error {
			ids, err := parseIDs(args[1])
			if err != nil {
				return err
			}
			svc := mailbox.NewService(s.Client, s.Limiter, a.log)
			label, err := svc.Move(ctx, args[0], ids, opts)
			if err != nil {
				return err
			}
			return printJSON(map[string]any{
				"account": s.Account.Email,
				"status":  "success",
				"label":   label.Name,
				"count":   len(ids),
			})
		}),
	}
	cmd.Flags().BoolVar(&opts.Create, "create", false, "create the label when it does not exist")
	cmd.Flags().BoolVar(&opts.MarkRead, "mark-read", false, "also mark the messages as read")
	return cmd
}

func newCleanupCmd(a *app) *cobra.Command {
	var days int
	cmd := &cobra.Command{
		Use:   "cleanup <label>",
		Short: "Trash messages under a label older than a cutoff",
		Args:  cobra.ExactArgs(1),
		RunE: a.runWithSession(func(ctx context.Context, s *session, args []string) error {
			svc := mailbox.NewService(s.Client, s.Limiter, a.log)
			n, err := svc.Cleanup(ctx, args[0], days)
			if err != nil {
				return err
			}
			return printJSON(map[string]any{
				"account": s.Account.Email,
				"label":   args[0],
				"trashed": n,
			})
		}),
	}
	cmd.Flags().IntVarP(&days, "days", "d", 30, "trash messages older than this many days")
	return cmd
}

func newSummaryCmd(a *app) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "summary <label>",
		Short: "Summarize recent messages under a label",
		Args:  cobra.ExactArgs(1),
		RunE: a.runWithSession(func(ctx context.Context, s *session, args []string) error {
			svc := mailbox.NewService(s.Client, s.Limiter, a.log)
			msgs, err := svc.Summary(ctx, args[0], limit)
			if err != nil {
				return err
			}
			return printJSON(map[string]any{
				"account":  s.Account.Email,
				"label":    args[0],
				"count":    len(msgs),
				"messages": toViews(msgs, true),
			})
		}),
	}
	cmd.Flags().IntVar(&limit, "limit", 10, "maximum messages to summarize")
	return cmd
}
