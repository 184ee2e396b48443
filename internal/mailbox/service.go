// Package mailbox implements the message-state verbs: search, read,
// trash/untrash, move, archive, age-based cleanup, summarization, and
// label management.
package mailbox

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/joshsymonds/mailpilot/internal/gmail"
	"github.com/joshsymonds/mailpilot/internal/rate"
)

const (
	defaultPageSize = 500
	defaultWorkers  = 4
	summaryBodyMax  = 2000
)

// Service executes mailbox operations against one account's client.
type Service struct {
	Client   gmail.Client
	Limiter  rate.Limiter
	Log      *slog.Logger
	Clock    func() time.Time
	PageSize int
	Workers  int
}

// NewService constructs a Service with sane defaults.
func NewService(client gmail.Client, limiter rate.Limiter, logger *slog.Logger) *Service {
	if limiter == nil {
		limiter = rate.None{}
	}
	return &Service{
		Client:   client,
		Limiter:  limiter,
		Log:      logger,
		Clock:    time.Now,
		PageSize: defaultPageSize,
		Workers:  defaultWorkers,
	}
}

// ItemResult is the per-id outcome of a batch mutation. Some ids may
// succeed while others fail; the batch as a whole does not abort.
type ItemResult struct {
	ID  gmail.MessageID
	Err error
}

// MoveOptions controls Move behavior.
type MoveOptions struct {
	Create   bool // create the label when absent
	MarkRead bool // also remove UNREAD
}

// Search returns at most limit messages matching the raw query, which is
// passed to the service's search grammar unmodified.
func (s *Service) Search(ctx context.Context, query string, limit int) ([]gmail.Message, error) {
	ids, err := s.collectIDs(ctx, gmail.Query{Raw: query}, limit)
	if err != nil {
		return nil, err
	}
	return s.fetchMessages(ctx, ids)
}

// Read returns one full message snapshot.
func (s *Service) Read(ctx context.Context, id gmail.MessageID) (gmail.Message, error) {
	if err := s.wait(ctx); err != nil {
		return gmail.Message{}, err
	}
	return s.Client.GetMessage(ctx, id)
}

// Trash moves each id to trash, reporting per-id outcomes. An id already
// in the trash counts as success.
func (s *Service) Trash(ctx context.Context, ids []gmail.MessageID) ([]ItemResult, error) {
	return s.perID(ctx, ids, s.Client.Trash)
}

// Untrash restores each id from trash with per-id outcomes.
func (s *Service) Untrash(ctx context.Context, ids []gmail.MessageID) ([]ItemResult, error) {
	return s.perID(ctx, ids, s.Client.Untrash)
}

func (s *Service) perID(ctx context.Context, ids []gmail.MessageID, op func(context.Context, gmail.MessageID) error) ([]ItemResult, error) {
	if len(ids) == 0 {
		return nil, gmail.ValidationError("no message ids given")
	}
	results := make([]ItemResult, 0, len(ids))
	for _, id := range ids {
		if err := s.wait(ctx); err != nil {
			return results, err
		}
		results = append(results, ItemResult{ID: id, Err: op(ctx, id)})
	}
	return results, nil
}

// Move applies the named label to ids and removes them from the inbox.
// When the label is absent it is created only with opts.Create; otherwise
// the call fails naming the missing label.
func (s *Service) Move(ctx context.Context, label string, ids []gmail.MessageID, opts MoveOptions) (gmail.Label, error) {
	if len(ids) == 0 {
		return gmail.Label{}, gmail.ValidationError("no message ids given")
	}
	target, ok, err := s.resolveLabel(ctx, label)
	if err != nil {
		return gmail.Label{}, err
	}
	if !ok {
		if !opts.Create {
			return gmail.Label{}, gmail.NotFoundError(fmt.Sprintf("label %q not found", label), nil)
		}
		if err := s.wait(ctx); err != nil {
			return gmail.Label{}, err
		}
		target, err = s.Client.CreateLabel(ctx, label)
		if err != nil {
			return gmail.Label{}, fmt.Errorf("create label %q: %w", label, err)
		}
	}

	ops := gmail.ModifyOps{
		AddLabels:    []gmail.LabelID{target.ID},
		RemoveLabels: []gmail.LabelID{gmail.LabelInbox},
	}
	if opts.MarkRead {
		ops.RemoveLabels = append(ops.RemoveLabels, gmail.LabelUnread)
	}
	if err := s.batchModify(ctx, ids, ops); err != nil {
		return gmail.Label{}, err
	}
	return target, nil
}

// Archive removes ids from the inbox, optionally marking them read.
func (s *Service) Archive(ctx context.Context, ids []gmail.MessageID, markRead bool) error {
	if len(ids) == 0 {
		return gmail.ValidationError("no message ids given")
	}
	ops := gmail.ModifyOps{RemoveLabels: []gmail.LabelID{gmail.LabelInbox}}
	if markRead {
		ops.RemoveLabels = append(ops.RemoveLabels, gmail.LabelUnread)
	}
	return s.batchModify(ctx, ids, ops)
}

// batchChunk is conservative against the service's 1000-id batch cap.
const batchChunk = 1000

func (s *Service) batchModify(ctx context.Context, ids []gmail.MessageID, ops gmail.ModifyOps) error {
	for i := 0; i < len(ids); i += batchChunk {
		j := min(i+batchChunk, len(ids))
		if err := s.wait(ctx); err != nil {
			return err
		}
		if err := s.Client.BatchModify(ctx, ids[i:j], ops); err != nil {
			return err
		}
	}
	return nil
}

// Cleanup trashes messages in label older than days. Re-running with
// identical arguments finds nothing further, because the search grammar
// excludes trashed messages; zero matches is success.
func (s *Service) Cleanup(ctx context.Context, label string, days int) (int, error) {
	if days < 0 {
		return 0, gmail.ValidationError("days must not be negative")
	}
	cutoff := s.Clock().AddDate(0, 0, -days)
	q := gmail.Query{Raw: fmt.Sprintf("label:%s before:%s", quoteLabel(label), cutoff.Format("2006/01/02"))}

	ids, err := s.collectIDs(ctx, q, 0)
	if err != nil {
		return 0, err
	}
	if len(ids) == 0 {
		s.Log.Info("cleanup found nothing to trash", "label", label, "days", days)
		return 0, nil
	}
	trashed := 0
	for _, id := range ids {
		if err := s.wait(ctx); err != nil {
			return trashed, err
		}
		if err := s.Client.Trash(ctx, id); err != nil {
			return trashed, fmt.Errorf("trash %s: %w", id, err)
		}
		trashed++
	}
	s.Log.Info("cleanup trashed messages", "label", label, "days", days, "count", trashed)
	return trashed, nil
}

// Summary returns content snapshots from label for external
// classification. It performs no mutation; bodies are truncated.
func (s *Service) Summary(ctx context.Context, label string, limit int) ([]gmail.Message, error) {
	target, ok, err := s.resolveLabel(ctx, label)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, gmail.NotFoundError(fmt.Sprintf("label %q not found", label), nil)
	}
	ids, err := s.collectIDs(ctx, gmail.Query{Raw: "label:" + quoteLabel(target.Name)}, limit)
	if err != nil {
		return nil, err
	}
	msgs, err := s.fetchMessages(ctx, ids)
	if err != nil {
		return nil, err
	}
	for i := range msgs {
		if len(msgs[i].Body) > summaryBodyMax {
			msgs[i].Body = msgs[i].Body[:summaryBodyMax]
		}
	}
	return msgs, nil
}

// Labels lists all labels.
func (s *Service) Labels(ctx context.Context) ([]gmail.Label, error) {
	if err := s.wait(ctx); err != nil {
		return nil, err
	}
	return s.Client.ListLabels(ctx)
}

// CreateLabel creates a user label. Names are unique per account under
// case-insensitive comparison.
func (s *Service) CreateLabel(ctx context.Context, name string) (gmail.Label, error) {
	if strings.TrimSpace(name) == "" {
		return gmail.Label{}, gmail.ValidationError("label name must not be empty")
	}
	if existing, ok, err := s.resolveLabel(ctx, name); err != nil {
		return gmail.Label{}, err
	} else if ok {
		return gmail.Label{}, gmail.ValidationError("label %q already exists", existing.Name)
	}
	if err := s.wait(ctx); err != nil {
		return gmail.Label{}, err
	}
	return s.Client.CreateLabel(ctx, name)
}

// DeleteLabel removes a user label by name or id. System labels are
// immutable.
func (s *Service) DeleteLabel(ctx context.Context, nameOrID string) (gmail.Label, error) {
	target, ok, err := s.resolveLabel(ctx, nameOrID)
	if err != nil {
		return gmail.Label{}, err
	}
	if !ok {
		return gmail.Label{}, gmail.NotFoundError(fmt.Sprintf("label %q not found", nameOrID), nil)
	}
	if target.Kind == gmail.LabelSystem {
		return gmail.Label{}, gmail.ValidationError("cannot delete system label %q", target.Name)
	}
	if err := s.wait(ctx); err != nil {
		return gmail.Label{}, err
	}
	if err := s.Client.DeleteLabel(ctx, target.ID); err != nil {
		return gmail.Label{}, err
	}
	return target, nil
}

// RenameLabel renames a user label. System labels are immutable.
func (s *Service) RenameLabel(ctx context.Context, oldName, newName string) (gmail.Label, error) {
	if strings.TrimSpace(newName) == "" {
		return gmail.Label{}, gmail.ValidationError("new label name must not be empty")
	}
	target, ok, err := s.resolveLabel(ctx, oldName)
	if err != nil {
		return gmail.Label{}, err
	}
	if !ok {
		return gmail.Label{}, gmail.NotFoundError(fmt.Sprintf("label %q not found", oldName), nil)
	}
	if target.Kind == gmail.LabelSystem {
		return gmail.Label{}, gmail.ValidationError("cannot rename system label %q", target.Name)
	}
	if err := s.wait(ctx); err != nil {
		return gmail.Label{}, err
	}
	return s.Client.RenameLabel(ctx, target.ID, newName)
}

// resolveLabel looks a label up by exact id first, then by
// case-insensitive name.
func (s *Service) resolveLabel(ctx context.Context, nameOrID string) (gmail.Label, bool, error) {
	if err := s.wait(ctx); err != nil {
		return gmail.Label{}, false, err
	}
	labels, err := s.Client.ListLabels(ctx)
	if err != nil {
		return gmail.Label{}, false, fmt.Errorf("list labels: %w", err)
	}
	for _, l := range labels {
		if string(l.ID) == nameOrID {
			return l, true, nil
		}
	}
	for _, l := range labels {
		if strings.EqualFold(l.Name, nameOrID) {
			return l, true, nil
		}
	}
	return gmail.Label{}, false, nil
}

// collectIDs pages through the listing until limit ids are gathered or no
// further pages exist, dropping duplicate ids across pages. limit <= 0
// means unbounded.
func (s *Service) collectIDs(ctx context.Context, q gmail.Query, limit int) ([]gmail.MessageID, error) {
	var (
		ids   []gmail.MessageID
		seen  = map[gmail.MessageID]struct{}{}
		token string
	)
	for {
		pageSize := s.pageSize()
		if limit > 0 && limit-len(ids) < pageSize {
			pageSize = limit - len(ids)
		}
		if err := s.wait(ctx); err != nil {
			return nil, err
		}
		page, err := s.Client.List(ctx, q, token, pageSize)
		if err != nil {
			return nil, fmt.Errorf("list messages: %w", err)
		}
		for _, id := range page.IDs {
			if _, dup := seen[id]; dup {
				continue
			}
			seen[id] = struct{}{}
			ids = append(ids, id)
			if limit > 0 && len(ids) >= limit {
				return ids, nil
			}
		}
		if page.NextPageToken == "" {
			return ids, nil
		}
		token = page.NextPageToken
	}
}

// fetchMessages retrieves full snapshots under a bounded worker pool,
// preserving the input order in the result.
func (s *Service) fetchMessages(ctx context.Context, ids []gmail.MessageID) ([]gmail.Message, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	type result struct {
		idx int
		msg gmail.Message
		err error
	}
	sem := make(chan struct{}, s.workers())
	results := make(chan result, len(ids))
	for i, id := range ids {
		go func(idx int, id gmail.MessageID) {
			sem <- struct{}{}
			defer func() { <-sem }()
			if err := s.wait(ctx); err != nil {
				results <- result{idx: idx, err: err}
				return
			}
			msg, err := s.Client.GetMessage(ctx, id)
			results <- result{idx: idx, msg: msg, err: err}
		}(i, id)
	}
	msgs := make([]gmail.Message, len(ids))
	var firstErr error
	for range ids {
		r := <-results
		if r.err != nil {
			if firstErr == nil {
				firstErr = r.err
			}
			continue
		}
		msgs[r.idx] = r.msg
	}
	if firstErr != nil {
		return nil, firstErr
	}
	return msgs, nil
}

func (s *Service) wait(ctx context.Context) error {
	if s.Limiter == nil {
		return nil
	}
	return s.Limiter.Wait(ctx)
}

func (s *Service) pageSize() int {
	if s.PageSize <= 0 || s.PageSize > defaultPageSize {
		return defaultPageSize
	}
	return s.PageSize
}

func (s *Service) workers() int {
	if s.Workers <= 0 {
		return defaultWorkers
	}
	return s.Workers
}

// quoteLabel wraps names containing spaces so the query grammar treats
// them as one token.
func quoteLabel(name string) string {
	if strings.ContainsAny(name, " \t") {
		return `"` + name + `"`
	}
	return name
}
