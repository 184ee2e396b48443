package compose

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/joshsymonds/mailpilot/internal/gmail"
	"github.com/joshsymonds/mailpilot/internal/rate"
)

const defaultDraftPage = 20

// Service sends messages and manages drafts through one account's client.
// Send is atomic: accepted or not, never partially applied, and never
// retried.
type Service struct {
	Client  gmail.Client
	Limiter rate.Limiter
	Log     *slog.Logger
}

// NewService wires a compose service.
func NewService(client gmail.Client, limiter rate.Limiter, logger *slog.Logger) *Service {
	if limiter == nil {
		limiter = rate.None{}
	}
	return &Service{Client: client, Limiter: limiter, Log: logger}
}

// Send builds and transmits the message.
func (s *Service) Send(ctx context.Context, req Request) (gmail.SendResult, error) {
	out, err := Build(req)
	if err != nil {
		return gmail.SendResult{}, err
	}
	if err := s.Limiter.Wait(ctx); err != nil {
		return gmail.SendResult{}, err
	}
	return s.Client.Send(ctx, out)
}

// Reply sends a reply to the message identified by id.
func (s *Service) Reply(ctx context.Context, id gmail.MessageID, body, cc string) (gmail.SendResult, error) {
	original, err := s.original(ctx, id)
	if err != nil {
		return gmail.SendResult{}, err
	}
	return s.Send(ctx, ReplyRequest(original, body, cc))
}

// CreateDraft builds the message and stores it as a draft.
func (s *Service) CreateDraft(ctx context.Context, req Request) (gmail.Draft, error) {
	out, err := Build(req)
	if err != nil {
		return gmail.Draft{}, err
	}
	if err := s.Limiter.Wait(ctx); err != nil {
		return gmail.Draft{}, err
	}
	return s.Client.CreateDraft(ctx, out)
}

// DraftReply stores a reply to id as a draft in the same thread.
func (s *Service) DraftReply(ctx context.Context, id gmail.MessageID, body, cc string) (gmail.Draft, error) {
	original, err := s.original(ctx, id)
	if err != nil {
		return gmail.Draft{}, err
	}
	return s.CreateDraft(ctx, ReplyRequest(original, body, cc))
}

// ListDrafts returns up to limit drafts with header snapshots resolved.
func (s *Service) ListDrafts(ctx context.Context, limit int) ([]gmail.Draft, error) {
	if limit <= 0 {
		limit = defaultDraftPage
	}
	var (
		drafts []gmail.Draft
		token  string
	)
	for len(drafts) < limit {
		if err := s.Limiter.Wait(ctx); err != nil {
			return nil, err
		}
		page, err := s.Client.ListDrafts(ctx, token, limit-len(drafts))
		if err != nil {
			return nil, fmt.Errorf("list drafts: %w", err)
		}
		for _, d := range page.Drafts {
			if len(drafts) >= limit {
				break
			}
			// the listing carries bare message ids; resolve headers
			if d.Message.ID != "" && len(d.Message.Headers) == 0 {
				if err := s.Limiter.Wait(ctx); err != nil {
					return nil, err
				}
				meta, err := s.Client.GetMetadata(ctx, d.Message.ID, []string{"Subject", "To", "Date"})
				if err == nil {
					d.Message = meta
				}
			}
			drafts = append(drafts, d)
		}
		if page.NextPageToken == "" {
			break
		}
		token = page.NextPageToken
	}
	return drafts, nil
}

// DeleteDraft destroys a draft.
func (s *Service) DeleteDraft(ctx context.Context, id gmail.DraftID) error {
	if err := s.Limiter.Wait(ctx); err != nil {
		return err
	}
	return s.Client.DeleteDraft(ctx, id)
}

// SendDraft sends an existing draft, destroying it on success.
func (s *Service) SendDraft(ctx context.Context, id gmail.DraftID) (gmail.SendResult, error) {
	if err := s.Limiter.Wait(ctx); err != nil {
		return gmail.SendResult{}, err
	}
	return s.Client.SendDraft(ctx, id)
}

func (s *Service) original(ctx context.Context, id gmail.MessageID) (gmail.Message, error) {
	if err := s.Limiter.Wait(ctx); err != nil {
		return gmail.Message{}, err
	}
	original, err := s.Client.GetMessage(ctx, id)
	if err != nil {
		return gmail.Message{}, fmt.Errorf("get original message %s: %w", id, err)
	}
	return original, nil
}
