// Package runtime adapts *gmailapi.Service to the narrow client interface
// the rest of mailpilot programs against, applying per-call error
// classification and bounded retry at the boundary.
package runtime

import (
	"context"
	"encoding/base64"
	"fmt"
	"log/slog"
	"os"
	"time"

	gmailapi "google.golang.org/api/gmail/v1"

	"github.com/joshsymonds/mailpilot/internal/gmail"
)

const me = "me"

type googleClient struct{ svc *gmailapi.Service }

// NewGoogleAPIClient wraps an authenticated Gmail service.
func NewGoogleAPIClient(svc *gmailapi.Service) gmail.Client { return &googleClient{svc} }

// DefaultLogger is the process-wide logging setup: text to stderr at Info.
func DefaultLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))
}

func (g *googleClient) Profile(ctx context.Context) (string, error) {
	var email string
	err := withRetry(ctx, "get profile", func() error {
		p, err := g.svc.Users.GetProfile(me).Context(ctx).Do()
		if err != nil {
			return err
		}
		email = p.EmailAddress
		return nil
	})
	return email, err
}

func (g *googleClient) List(ctx context.Context, q gmail.Query, pageToken string, pageSize int) (gmail.ListPage, error) {
	var page gmail.ListPage
	err := withRetry(ctx, "list messages", func() error {
		call := g.svc.Users.Messages.List(me).Q(q.Raw).MaxResults(int64(pageSize))
		if pageToken != "" {
			call = call.PageToken(pageToken)
		}
		res, err := call.Context(ctx).Do()
		if err != nil {
			return err
		}
		page = gmail.ListPage{NextPageToken: res.NextPageToken}
		for _, m := range res.Messages {
			page.IDs = append(page.IDs, gmail.MessageID(m.Id))
		}
		return nil
	})
	return page, err
}

func (g *googleClient) GetMessage(ctx context.Context, id gmail.MessageID) (gmail.Message, error) {
	var msg gmail.Message
	err := withRetry(ctx, fmt.Sprintf("get message %s", id), func() error {
		m, err := g.svc.Users.Messages.Get(me, string(id)).Format("full").Context(ctx).Do()
		if err != nil {
			return err
		}
		msg = toMessage(m)
		return nil
	})
	return msg, err
}

func (g *googleClient) GetMetadata(ctx context.Context, id gmail.MessageID, headers []string) (gmail.Message, error) {
	var msg gmail.Message
	err := withRetry(ctx, fmt.Sprintf("get metadata %s", id), func() error {
		m, err := g.svc.Users.Messages.Get(me, string(id)).
			Format("metadata").MetadataHeaders(headers...).Context(ctx).Do()
		if err != nil {
			return err
		}
		msg = toMessage(m)
		return nil
	})
	return msg, err
}

func (g *googleClient) BatchModify(ctx context.Context, ids []gmail.MessageID, ops gmail.ModifyOps) error {
	req := &gmailapi.BatchModifyMessagesRequest{Ids: idStrings(ids)}
	if len(ops.AddLabels) > 0 {
		req.AddLabelIds = labelStrings(ops.AddLabels)
	}
	if len(ops.RemoveLabels) > 0 {
		req.RemoveLabelIds = labelStrings(ops.RemoveLabels)
	}
	return withRetry(ctx, "batch modify", func() error {
		return g.svc.Users.Messages.BatchModify(me, req).Context(ctx).Do()
	})
}

func (g *googleClient) Trash(ctx context.Context, id gmail.MessageID) error {
	return withRetry(ctx, fmt.Sprintf("trash %s", id), func() error {
		_, err := g.svc.Users.Messages.Trash(me, string(id)).Context(ctx).Do()
		return err
	})
}

func (g *googleClient) Untrash(ctx context.Context, id gmail.MessageID) error {
	return withRetry(ctx, fmt.Sprintf("untrash %s", id), func() error {
		_, err := g.svc.Users.Messages.Untrash(me, string(id)).Context(ctx).Do()
		return err
	})
}

// Send transmits once with no retry: after an ambiguous failure the message
// may already be on its way, and a retry would risk duplicate delivery.
func (g *googleClient) Send(ctx context.Context, out gmail.Outgoing) (gmail.SendResult, error) {
	msg := &gmailapi.Message{Raw: base64.URLEncoding.EncodeToString(out.Raw)}
	if out.ThreadID != "" {
		msg.ThreadId = string(out.ThreadID)
	}
	sent, err := g.svc.Users.Messages.Send(me, msg).Context(ctx).Do()
	if err != nil {
		return gmail.SendResult{}, classify("send message", err)
	}
	return gmail.SendResult{ID: gmail.MessageID(sent.Id), ThreadID: gmail.ThreadID(sent.ThreadId)}, nil
}

func (g *googleClient) ListLabels(ctx context.Context) ([]gmail.Label, error) {
	var labels []gmail.Label
	err := withRetry(ctx, "list labels", func() error {
		res, err := g.svc.Users.Labels.List(me).Context(ctx).Do()
		if err != nil {
			return err
		}
		labels = labels[:0]
		for _, l := range res.Labels {
			labels = append(labels, toLabel(l))
		}
		return nil
	})
	return labels, err
}

func (g *googleClient) CreateLabel(ctx context.Context, name string) (gmail.Label, error) {
	var label gmail.Label
	err := withRetry(ctx, fmt.Sprintf("create label %q", name), func() error {
		created, err := g.svc.Users.Labels.Create(me, &gmailapi.Label{
			Name:                  name,
			LabelListVisibility:   "labelShow",
			MessageListVisibility: "show",
		}).Context(ctx).Do()
		if err != nil {
			return err
		}
		label = toLabel(created)
		return nil
	})
	return label, err
}

func (g *googleClient) DeleteLabel(ctx context.Context, id gmail.LabelID) error {
	return withRetry(ctx, fmt.Sprintf("delete label %s", id), func() error {
		return g.svc.Users.Labels.Delete(me, string(id)).Context(ctx).Do()
	})
}

func (g *googleClient) RenameLabel(ctx context.Context, id gmail.LabelID, newName string) (gmail.Label, error) {
	var label gmail.Label
	err := withRetry(ctx, fmt.Sprintf("rename label %s", id), func() error {
		patched, err := g.svc.Users.Labels.Patch(me, string(id), &gmailapi.Label{Name: newName}).
			Context(ctx).Do()
		if err != nil {
			return err
		}
		label = toLabel(patched)
		return nil
	})
	return label, err
}

func (g *googleClient) ListFilters(ctx context.Context) ([]gmail.Filter, error) {
	var filters []gmail.Filter
	err := withRetry(ctx, "list filters", func() error {
		res, err := g.svc.Users.Settings.Filters.List(me).Context(ctx).Do()
		if err != nil {
			return err
		}
		filters = filters[:0]
		for _, f := range res.Filter {
			filters = append(filters, toFilter(f))
		}
		return nil
	})
	return filters, err
}

func (g *googleClient) CreateFilter(ctx context.Context, f gmail.Filter) (gmail.Filter, error) {
	req := &gmailapi.Filter{
		Criteria: &gmailapi.FilterCriteria{
			From:          f.Criteria.From,
			To:            f.Criteria.To,
			Subject:       f.Criteria.Subject,
			Query:         f.Criteria.Query,
			HasAttachment: f.Criteria.HasAttachment,
		},
		Action: &gmailapi.FilterAction{
			AddLabelIds:    labelStrings(f.Actions.AddLabelIDs),
			RemoveLabelIds: labelStrings(f.Actions.RemoveLabelIDs),
			Forward:        f.Actions.Forward,
		},
	}
	var created gmail.Filter
	err := withRetry(ctx, "create filter", func() error {
		res, err := g.svc.Users.Settings.Filters.Create(me, req).Context(ctx).Do()
		if err != nil {
			return err
		}
		created = toFilter(res)
		return nil
	})
	return created, err
}

func (g *googleClient) DeleteFilter(ctx context.Context, id gmail.FilterID) error {
	return withRetry(ctx, fmt.Sprintf("delete filter %s", id), func() error {
		return g.svc.Users.Settings.Filters.Delete(me, string(id)).Context(ctx).Do()
	})
}

func (g *googleClient) ListDrafts(ctx context.Context, pageToken string, pageSize int) (gmail.DraftPage, error) {
	var page gmail.DraftPage
	err := withRetry(ctx, "list drafts", func() error {
		call := g.svc.Users.Drafts.List(me).MaxResults(int64(pageSize))
		if pageToken != "" {
			call = call.PageToken(pageToken)
		}
		res, err := call.Context(ctx).Do()
		if err != nil {
			return err
		}
		page = gmail.DraftPage{NextPageToken: res.NextPageToken}
		for _, d := range res.Drafts {
			draft := gmail.Draft{ID: gmail.DraftID(d.Id)}
			if d.Message != nil {
				draft.Message = toMessage(d.Message)
			}
			page.Drafts = append(page.Drafts, draft)
		}
		return nil
	})
	return page, err
}

func (g *googleClient) CreateDraft(ctx context.Context, out gmail.Outgoing) (gmail.Draft, error) {
	msg := &gmailapi.Message{Raw: base64.URLEncoding.EncodeToString(out.Raw)}
	if out.ThreadID != "" {
		msg.ThreadId = string(out.ThreadID)
	}
	var draft gmail.Draft
	err := withRetry(ctx, "create draft", func() error {
		res, err := g.svc.Users.Drafts.Create(me, &gmailapi.Draft{Message: msg}).Context(ctx).Do()
		if err != nil {
			return err
		}
		draft = gmail.Draft{ID: gmail.DraftID(res.Id)}
		if res.Message != nil {
			draft.Message = toMessage(res.Message)
		}
		return nil
	})
	return draft, err
}

func (g *googleClient) DeleteDraft(ctx context.Context, id gmail.DraftID) error {
	return withRetry(ctx, fmt.Sprintf("delete draft %s", id), func() error {
		return g.svc.Users.Drafts.Delete(me, string(id)).Context(ctx).Do()
	})
}

// SendDraft is non-idempotent and transmits once, like Send.
func (g *googleClient) SendDraft(ctx context.Context, id gmail.DraftID) (gmail.SendResult, error) {
	sent, err := g.svc.Users.Drafts.Send(me, &gmailapi.Draft{Id: string(id)}).Context(ctx).Do()
	if err != nil {
		return gmail.SendResult{}, classify(fmt.Sprintf("send draft %s", id), err)
	}
	return gmail.SendResult{ID: gmail.MessageID(sent.Id), ThreadID: gmail.ThreadID(sent.ThreadId)}, nil
}

func (g *googleClient) GetAttachment(ctx context.Context, msg gmail.MessageID, part gmail.AttachmentID) ([]byte, error) {
	var data []byte
	err := withRetry(ctx, fmt.Sprintf("get attachment %s", part), func() error {
		res, err := g.svc.Users.Messages.Attachments.Get(me, string(msg), string(part)).
			Context(ctx).Do()
		if err != nil {
			return err
		}
		data, err = decodeBody(res.Data)
		return err
	})
	return data, err
}

func (g *googleClient) ListAttachments(ctx context.Context, id gmail.MessageID) ([]gmail.Attachment, error) {
	m, err := g.getMessagePayload(ctx, id)
	if err != nil {
		return nil, err
	}
	return walkAttachments(m.Payload), nil
}

// getMessagePayload fetches the raw API message including the part tree.
func (g *googleClient) getMessagePayload(ctx context.Context, id gmail.MessageID) (*gmailapi.Message, error) {
	var m *gmailapi.Message
	err := withRetry(ctx, fmt.Sprintf("get message %s", id), func() error {
		res, err := g.svc.Users.Messages.Get(me, string(id)).Format("full").Context(ctx).Do()
		if err != nil {
			return err
		}
		m = res
		return nil
	})
	return m, err
}

// conversion helpers

func toMessage(m *gmailapi.Message) gmail.Message {
	msg := gmail.Message{
		ID:       gmail.MessageID(m.Id),
		ThreadID: gmail.ThreadID(m.ThreadId),
		Snippet:  m.Snippet,
		Headers:  map[string]string{},
	}
	for _, lid := range m.LabelIds {
		msg.LabelIDs = append(msg.LabelIDs, gmail.LabelID(lid))
	}
	if m.InternalDate > 0 {
		msg.Date = time.Unix(m.InternalDate/1000, 0).UTC()
	}
	if m.Payload != nil {
		for _, h := range m.Payload.Headers {
			msg.Headers[h.Name] = h.Value
		}
		msg.Body = textBody(m.Payload)
	}
	return msg
}

// textBody finds the first text/plain part in the tree.
func textBody(p *gmailapi.MessagePart) string {
	if p == nil {
		return ""
	}
	if p.MimeType == "text/plain" && p.Body != nil && p.Body.Data != "" {
		if data, err := decodeBody(p.Body.Data); err == nil {
			return string(data)
		}
	}
	for _, part := range p.Parts {
		if body := textBody(part); body != "" {
			return body
		}
	}
	return ""
}

// walkAttachments collects attachment parts recursively; a part counts as
// an attachment when it carries both a filename and an attachment id.
func walkAttachments(p *gmailapi.MessagePart) []gmail.Attachment {
	if p == nil {
		return nil
	}
	var out []gmail.Attachment
	if p.Filename != "" && p.Body != nil && p.Body.AttachmentId != "" {
		out = append(out, gmail.Attachment{
			PartID:   gmail.AttachmentID(p.Body.AttachmentId),
			Filename: p.Filename,
			MimeType: p.MimeType,
			Size:     p.Body.Size,
		})
	}
	for _, part := range p.Parts {
		out = append(out, walkAttachments(part)...)
	}
	return out
}

func toLabel(l *gmailapi.Label) gmail.Label {
	kind := gmail.LabelUser
	if l.Type == "system" {
		kind = gmail.LabelSystem
	}
	return gmail.Label{ID: gmail.LabelID(l.Id), Name: l.Name, Kind: kind}
}

func toFilter(f *gmailapi.Filter) gmail.Filter {
	out := gmail.Filter{ID: gmail.FilterID(f.Id)}
	if f.Criteria != nil {
		out.Criteria = gmail.FilterCriteria{
			From:          f.Criteria.From,
			To:            f.Criteria.To,
			Subject:       f.Criteria.Subject,
			Query:         f.Criteria.Query,
			HasAttachment: f.Criteria.HasAttachment,
		}
	}
	if f.Action != nil {
		for _, id := range f.Action.AddLabelIds {
			out.Actions.AddLabelIDs = append(out.Actions.AddLabelIDs, gmail.LabelID(id))
		}
		for _, id := range f.Action.RemoveLabelIds {
			out.Actions.RemoveLabelIDs = append(out.Actions.RemoveLabelIDs, gmail.LabelID(id))
		}
		out.Actions.Forward = f.Action.Forward
	}
	return out
}

// decodeBody handles both padded and unpadded urlsafe base64, which the
// API is inconsistent about.
func decodeBody(data string) ([]byte, error) {
	if b, err := base64.URLEncoding.DecodeString(data); err == nil {
		return b, nil
	}
	return base64.RawURLEncoding.DecodeString(data)
}

func idStrings(ids []gmail.MessageID) []string {
	out := make([]string, len(ids))
	for i, id := range ids {
		out[i] = string(id)
	}
	return out
}

func labelStrings(ids []gmail.LabelID) []string {
	out := make([]string, len(ids))
	for i, id := range ids {
		out[i] = string(id)
	}
	return out
}

var _ gmail.Client = (*googleClient)(nil)
