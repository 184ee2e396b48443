package filters

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/joshsymonds/mailpilot/internal/gmail"
)

type fakeClient struct {
	gmail.Client

	labels        []gmail.Label
	createdLabels []string
	filters       []gmail.Filter
	created       []gmail.Filter
	deleted       []gmail.FilterID
	calls         int
}

func (f *fakeClient) ListLabels(_ context.Context) ([]gmail.Label, error) {
	f.calls++
	return f.labels, nil
}

func (f *fakeClient) CreateLabel(_ context.Context, name string) (gmail.Label, error) {
	f.calls++
	f.createdLabels = append(f.createdLabels, name)
	return gmail.Label{ID: gmail.LabelID("Label_" + name), Name: name, Kind: gmail.LabelUser}, nil
}

func (f *fakeClient) ListFilters(_ context.Context) ([]gmail.Filter, error) {
	f.calls++
	return f.filters, nil
}

func (f *fakeClient) CreateFilter(_ context.Context, filter gmail.Filter) (gmail.Filter, error) {
	f.calls++
	filter.ID = "f1"
	f.created = append(f.created, filter)
	return filter, nil
}

func (f *fakeClient) DeleteFilter(_ context.Context, id gmail.FilterID) error {
	f.calls++
	f.deleted = append(f.deleted, id)
	return nil
}

func slogDiscard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestAddRequiresCriterion(t *testing.T) {
	fake := &fakeClient{}
	svc := NewService(fake, nil, slogDiscard())

	_, err := svc.Add(context.Background(), gmail.FilterCriteria{}, Actions{Archive: true})
	if !gmail.IsKind(err, gmail.KindValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if fake.calls != 0 {
		t.Fatalf("validation must happen before any client call, saw %d", fake.calls)
	}
}

func TestAddRequiresAction(t *testing.T) {
	fake := &fakeClient{}
	svc := NewService(fake, nil, slogDiscard())

	_, err := svc.Add(context.Background(), gmail.FilterCriteria{From: "x@example.com"}, Actions{})
	if !gmail.IsKind(err, gmail.KindValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if fake.calls != 0 {
		t.Fatalf("validation must happen before any client call, saw %d", fake.calls)
	}
}

func TestAddMapsActions(t *testing.T) {
	fake := &fakeClient{labels: []gmail.Label{{ID: "Label_9", Name: "Newsletters", Kind: gmail.LabelUser}}}
	svc := NewService(fake, nil, slogDiscard())

	created, err := svc.Add(context.Background(),
		gmail.FilterCriteria{From: "news@example.com"},
		Actions{AddLabel: "newsletters", Archive: true, MarkRead: true, Star: true, Forward: "me@example.com"},
	)
	if err != nil {
		t.Fatalf("add failed: %v", err)
	}
	if created.ID != "f1" {
		t.Fatalf("unexpected filter: %+v", created)
	}
	if len(fake.created) != 1 {
		t.Fatalf("expected one create call, got %d", len(fake.created))
	}
	actions := fake.created[0].Actions

	wantAdd := map[gmail.LabelID]bool{"Label_9": true, gmail.LabelStarred: true}
	for _, id := range actions.AddLabelIDs {
		delete(wantAdd, id)
	}
	if len(wantAdd) != 0 {
		t.Fatalf("missing add labels: %v (got %v)", wantAdd, actions.AddLabelIDs)
	}
	wantRemove := map[gmail.LabelID]bool{gmail.LabelInbox: true, gmail.LabelUnread: true}
	for _, id := range actions.RemoveLabelIDs {
		delete(wantRemove, id)
	}
	if len(wantRemove) != 0 {
		t.Fatalf("missing remove labels: %v (got %v)", wantRemove, actions.RemoveLabelIDs)
	}
	if actions.Forward != "me@example.com" {
		t.Fatalf("forward not carried: %q", actions.Forward)
	}
	if len(fake.createdLabels) != 0 {
		t.Fatalf("existing label should be reused, created %v", fake.createdLabels)
	}
}

func TestAddMissingLabelFails(t *testing.T) {
	fake := &fakeClient{}
	svc := NewService(fake, nil, slogDiscard())

	_, err := svc.Add(context.Background(),
		gmail.FilterCriteria{Subject: "invoice"},
		Actions{AddLabel: "billing"},
	)
	if !gmail.IsKind(err, gmail.KindNotFound) {
		t.Fatalf("expected not-found, got %v", err)
	}
	if len(fake.createdLabels) != 0 {
		t.Fatalf("label must not be created without the create flag: %v", fake.createdLabels)
	}
	if len(fake.created) != 0 {
		t.Fatalf("no filter should be created when the label is missing")
	}
}

func TestAddCreatesLabelOnRequest(t *testing.T) {
	fake := &fakeClient{}
	svc := NewService(fake, nil, slogDiscard())

	_, err := svc.Add(context.Background(),
		gmail.FilterCriteria{Subject: "invoice"},
		Actions{AddLabel: "billing", CreateLabel: true},
	)
	if err != nil {
		t.Fatalf("add failed: %v", err)
	}
	if len(fake.createdLabels) != 1 || fake.createdLabels[0] != "billing" {
		t.Fatalf("label not created: %v", fake.createdLabels)
	}
	if len(fake.created) != 1 || len(fake.created[0].Actions.AddLabelIDs) != 1 {
		t.Fatalf("created label not applied: %+v", fake.created)
	}
}

func TestAddTrashAction(t *testing.T) {
	fake := &fakeClient{}
	svc := NewService(fake, nil, slogDiscard())

	_, err := svc.Add(context.Background(), gmail.FilterCriteria{From: "spam@example.com"}, Actions{Trash: true})
	if err != nil {
		t.Fatalf("add failed: %v", err)
	}
	actions := fake.created[0].Actions
	if len(actions.AddLabelIDs) != 1 || actions.AddLabelIDs[0] != gmail.LabelTrash {
		t.Fatalf("trash action not mapped: %+v", actions)
	}
}

func TestListAndDelete(t *testing.T) {
	fake := &fakeClient{filters: []gmail.Filter{{ID: "f1"}, {ID: "f2"}}}
	svc := NewService(fake, nil, slogDiscard())

	all, err := svc.List(context.Background())
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if len(all) != 2 {
		t.Fatalf("expected 2 filters, got %d", len(all))
	}
	if err := svc.Delete(context.Background(), "f2"); err != nil {
		t.Fatalf("delete failed: %v", err)
	}
	if len(fake.deleted) != 1 || fake.deleted[0] != "f2" {
		t.Fatalf("delete not forwarded: %v", fake.deleted)
	}
}
