package compose

import (
	"context"
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/joshsymonds/mailpilot/internal/gmail"
)

type fakeClient struct {
	gmail.Client

	messages map[gmail.MessageID]gmail.Message
	sent     []gmail.Outgoing
	drafted  []gmail.Outgoing

	draftPages    []gmail.DraftPage
	metadataCalls []gmail.MessageID
	deletedDrafts []gmail.DraftID
	sentDrafts    []gmail.DraftID
}

func (f *fakeClient) GetMessage(_ context.Context, id gmail.MessageID) (gmail.Message, error) {
	return f.messages[id], nil
}

func (f *fakeClient) Send(_ context.Context, out gmail.Outgoing) (gmail.SendResult, error) {
	f.sent = append(f.sent, out)
	return gmail.SendResult{ID: "sent-1", ThreadID: out.ThreadID}, nil
}

func (f *fakeClient) CreateDraft(_ context.Context, out gmail.Outgoing) (gmail.Draft, error) {
	f.drafted = append(f.drafted, out)
	return gmail.Draft{ID: "draft-1"}, nil
}

func (f *fakeClient) ListDrafts(_ context.Context, pageToken string, pageSize int) (gmail.DraftPage, error) {
	_ = pageToken
	_ = pageSize
	if len(f.draftPages) == 0 {
		return gmail.DraftPage{}, nil
	}
	page := f.draftPages[0]
	f.draftPages = f.draftPages[1:]
	return page, nil
}

func (f *fakeClient) GetMetadata(_ context.Context, id gmail.MessageID, headers []string) (gmail.Message, error) {
	_ = headers
	f.metadataCalls = append(f.metadataCalls, id)
	return gmail.Message{ID: id, Headers: map[string]string{"Subject": "resolved"}}, nil
}

func (f *fakeClient) DeleteDraft(_ context.Context, id gmail.DraftID) error {
	f.deletedDrafts = append(f.deletedDrafts, id)
	return nil
}

func (f *fakeClient) SendDraft(_ context.Context, id gmail.DraftID) (gmail.SendResult, error) {
	f.sentDrafts = append(f.sentDrafts, id)
	return gmail.SendResult{ID: "sent-2"}, nil
}

func slogDiscard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestSendValidatesBeforeNetwork(t *testing.T) {
	fake := &fakeClient{}
	svc := NewService(fake, nil, slogDiscard())

	_, err := svc.Send(context.Background(), Request{Body: "no recipients"})
	if !gmail.IsKind(err, gmail.KindValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if len(fake.sent) != 0 {
		t.Fatalf("nothing should be sent on validation failure")
	}
}

func TestSend(t *testing.T) {
	fake := &fakeClient{}
	svc := NewService(fake, nil, slogDiscard())

	res, err := svc.Send(context.Background(), Request{To: "a@example.com", Subject: "hi", Body: "there"})
	if err != nil {
		t.Fatalf("send failed: %v", err)
	}
	if res.ID != "sent-1" {
		t.Fatalf("unexpected result: %+v", res)
	}
	if len(fake.sent) != 1 {
		t.Fatalf("expected 1 send, got %d", len(fake.sent))
	}
}

func TestReplyThreadsOntoOriginal(t *testing.T) {
	fake := &fakeClient{
		messages: map[gmail.MessageID]gmail.Message{
			"m1": {
				ID:       "m1",
				ThreadID: "t1",
				Headers: map[string]string{
					"From":       "sender@example.com",
					"Subject":    "status",
					"Message-ID": "<m1@mail.example.com>",
				},
			},
		},
	}
	svc := NewService(fake, nil, slogDiscard())

	res, err := svc.Reply(context.Background(), "m1", "ack", "")
	if err != nil {
		t.Fatalf("reply failed: %v", err)
	}
	if res.ThreadID != "t1" {
		t.Fatalf("reply not threaded: %+v", res)
	}
	if len(fake.sent) != 1 {
		t.Fatalf("expected 1 send, got %d", len(fake.sent))
	}
	raw := string(fake.sent[0].Raw)
	if !strings.Contains(raw, "To: sender@example.com\r\n") {
		t.Fatalf("reply target wrong:\n%s", raw)
	}
	if !strings.Contains(raw, "Subject: Re: status\r\n") {
		t.Fatalf("reply subject wrong:\n%s", raw)
	}
	if !strings.Contains(raw, "In-Reply-To: <m1@mail.example.com>\r\n") {
		t.Fatalf("in-reply-to missing:\n%s", raw)
	}
}

func TestDraftReply(t *testing.T) {
	fake := &fakeClient{
		messages: map[gmail.MessageID]gmail.Message{
			"m1": {ID: "m1", ThreadID: "t1", Headers: map[string]string{"From": "a@example.com", "Subject": "s"}},
		},
	}
	svc := NewService(fake, nil, slogDiscard())

	d, err := svc.DraftReply(context.Background(), "m1", "later", "")
	if err != nil {
		t.Fatalf("draft reply failed: %v", err)
	}
	if d.ID != "draft-1" {
		t.Fatalf("unexpected draft: %+v", d)
	}
	if len(fake.drafted) != 1 || fake.drafted[0].ThreadID != "t1" {
		t.Fatalf("draft not threaded: %+v", fake.drafted)
	}
	if len(fake.sent) != 0 {
		t.Fatalf("draft reply must not send")
	}
}

func TestListDraftsResolvesMetadata(t *testing.T) {
	fake := &fakeClient{
		draftPages: []gmail.DraftPage{
			{Drafts: []gmail.Draft{
				{ID: "d1", Message: gmail.Message{ID: "m1"}},
				{ID: "d2", Message: gmail.Message{ID: "m2", Headers: map[string]string{"Subject": "already"}}},
			}},
		},
	}
	svc := NewService(fake, nil, slogDiscard())

	drafts, err := svc.ListDrafts(context.Background(), 10)
	if err != nil {
		t.Fatalf("list drafts failed: %v", err)
	}
	if len(drafts) != 2 {
		t.Fatalf("expected 2 drafts, got %d", len(drafts))
	}
	if len(fake.metadataCalls) != 1 || fake.metadataCalls[0] != "m1" {
		t.Fatalf("only the bare draft should be resolved: %v", fake.metadataCalls)
	}
	if drafts[0].Message.Header("Subject") != "resolved" {
		t.Fatalf("metadata not applied: %+v", drafts[0].Message)
	}
	if drafts[1].Message.Header("Subject") != "already" {
		t.Fatalf("existing headers must be kept: %+v", drafts[1].Message)
	}
}

func TestListDraftsLimit(t *testing.T) {
	fake := &fakeClient{
		draftPages: []gmail.DraftPage{
			{Drafts: []gmail.Draft{
				{ID: "d1", Message: gmail.Message{Headers: map[string]string{}}},
				{ID: "d2", Message: gmail.Message{Headers: map[string]string{}}},
				{ID: "d3", Message: gmail.Message{Headers: map[string]string{}}},
			}},
		},
	}
	svc := NewService(fake, nil, slogDiscard())

	drafts, err := svc.ListDrafts(context.Background(), 2)
	if err != nil {
		t.Fatalf("list drafts failed: %v", err)
	}
	if len(drafts) != 2 {
		t.Fatalf("expected 2 drafts, got %d", len(drafts))
	}
}

func TestSendAndDeleteDraft(t *testing.T) {
	fake := &fakeClient{}
	svc := NewService(fake, nil, slogDiscard())

	if _, err := svc.SendDraft(context.Background(), "d1"); err != nil {
		t.Fatalf("send draft failed: %v", err)
	}
	if err := svc.DeleteDraft(context.Background(), "d2"); err != nil {
		t.Fatalf("delete draft failed: %v", err)
	}
	if len(fake.sentDrafts) != 1 || fake.sentDrafts[0] != "d1" {
		t.Fatalf("send draft not forwarded: %v", fake.sentDrafts)
	}
	if len(fake.deletedDrafts) != 1 || fake.deletedDrafts[0] != "d2" {
		t.Fatalf("delete draft not forwarded: %v", fake.deletedDrafts)
	}
}
