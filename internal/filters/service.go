// Package filters validates and manages server-side filter rules.
package filters

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/joshsymonds/mailpilot/internal/gmail"
	"github.com/joshsymonds/mailpilot/internal/rate"
)

// Actions are the flag-level actions a filter may apply; they are mapped
// onto the service's filter resource.
type Actions struct {
	AddLabel    string // label name, resolved case-insensitively
	CreateLabel bool   // create AddLabel when absent instead of failing
	Archive     bool
	MarkRead    bool
	Trash       bool
	Star        bool
	Forward     string
}

func (a Actions) empty() bool {
	return a.AddLabel == "" && !a.Archive && !a.MarkRead && !a.Trash && !a.Star && a.Forward == ""
}

// Service manages filters through one account's client.
type Service struct {
	Client  gmail.Client
	Limiter rate.Limiter
	Log     *slog.Logger
}

// NewService wires a filter service.
func NewService(client gmail.Client, limiter rate.Limiter, logger *slog.Logger) *Service {
	if limiter == nil {
		limiter = rate.None{}
	}
	return &Service{Client: client, Limiter: limiter, Log: logger}
}

// Add creates a filter. At least one criterion and one action are
// required; both are validated before any network call. Whether the
// service deduplicates a filter identical to an existing one is inherited
// from the service, not engineered here.
func (s *Service) Add(ctx context.Context, criteria gmail.FilterCriteria, actions Actions) (gmail.Filter, error) {
	if criteria.Empty() {
		return gmail.Filter{}, gmail.ValidationError("at least one filter criterion is required")
	}
	if actions.empty() {
		return gmail.Filter{}, gmail.ValidationError("at least one filter action is required")
	}

	resolved := gmail.FilterActions{Forward: actions.Forward}
	if actions.AddLabel != "" {
		label, err := s.resolveLabel(ctx, actions.AddLabel, actions.CreateLabel)
		if err != nil {
			return gmail.Filter{}, err
		}
		resolved.AddLabelIDs = append(resolved.AddLabelIDs, label.ID)
	}
	if actions.Trash {
		resolved.AddLabelIDs = append(resolved.AddLabelIDs, gmail.LabelTrash)
	}
	if actions.Star {
		resolved.AddLabelIDs = append(resolved.AddLabelIDs, gmail.LabelStarred)
	}
	if actions.Archive {
		resolved.RemoveLabelIDs = append(resolved.RemoveLabelIDs, gmail.LabelInbox)
	}
	if actions.MarkRead {
		resolved.RemoveLabelIDs = append(resolved.RemoveLabelIDs, gmail.LabelUnread)
	}

	if err := s.Limiter.Wait(ctx); err != nil {
		return gmail.Filter{}, err
	}
	created, err := s.Client.CreateFilter(ctx, gmail.Filter{Criteria: criteria, Actions: resolved})
	if err != nil {
		return gmail.Filter{}, fmt.Errorf("create filter: %w", err)
	}
	return created, nil
}

// List returns all filters.
func (s *Service) List(ctx context.Context) ([]gmail.Filter, error) {
	if err := s.Limiter.Wait(ctx); err != nil {
		return nil, err
	}
	return s.Client.ListFilters(ctx)
}

// Delete removes one filter by id.
func (s *Service) Delete(ctx context.Context, id gmail.FilterID) error {
	if err := s.Limiter.Wait(ctx); err != nil {
		return err
	}
	return s.Client.DeleteFilter(ctx, id)
}

// resolveLabel resolves a label name case-insensitively. An absent label
// fails naming the label unless create is set.
func (s *Service) resolveLabel(ctx context.Context, name string, create bool) (gmail.Label, error) {
	if err := s.Limiter.Wait(ctx); err != nil {
		return gmail.Label{}, err
	}
	labels, err := s.Client.ListLabels(ctx)
	if err != nil {
		return gmail.Label{}, fmt.Errorf("list labels: %w", err)
	}
	for _, l := range labels {
		if strings.EqualFold(l.Name, name) {
			return l, nil
		}
	}
	if !create {
		return gmail.Label{}, gmail.NotFoundError(fmt.Sprintf("label %q not found", name), nil)
	}
	if err := s.Limiter.Wait(ctx); err != nil {
		return gmail.Label{}, err
	}
	created, err := s.Client.CreateLabel(ctx, name)
	if err != nil {
		return gmail.Label{}, fmt.Errorf("create label %q: %w", name, err)
	}
	return created, nil
}
