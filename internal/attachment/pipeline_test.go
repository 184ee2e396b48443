package attachment

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/joshsymonds/mailpilot/internal/gmail"
)

type fakeClient struct {
	gmail.Client

	listPages []gmail.ListPage

	attachments map[gmail.MessageID][]gmail.Attachment
	listErr     map[gmail.MessageID]error
	content     map[gmail.AttachmentID][]byte
	getErr      map[gmail.AttachmentID]error
}

func (f *fakeClient) List(_ context.Context, q gmail.Query, pageToken string, pageSize int) (gmail.ListPage, error) {
	_ = q
	_ = pageToken
	_ = pageSize
	if len(f.listPages) == 0 {
		return gmail.ListPage{}, nil
	}
	page := f.listPages[0]
	f.listPages = f.listPages[1:]
	return page, nil
}

func (f *fakeClient) ListAttachments(_ context.Context, id gmail.MessageID) ([]gmail.Attachment, error) {
	if err := f.listErr[id]; err != nil {
		return nil, err
	}
	return f.attachments[id], nil
}

func (f *fakeClient) GetAttachment(_ context.Context, _ gmail.MessageID, part gmail.AttachmentID) ([]byte, error) {
	if err := f.getErr[part]; err != nil {
		return nil, err
	}
	return f.content[part], nil
}

func slogDiscard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestDownloadFilterMatchesSubstring(t *testing.T) {
	fake := &fakeClient{
		attachments: map[gmail.MessageID][]gmail.Attachment{
			"m1": {
				{PartID: "p1", Filename: "Invoice-March.pdf"},
				{PartID: "p2", Filename: "photo.jpg"},
			},
		},
		content: map[gmail.AttachmentID][]byte{
			"p1": []byte("pdf bytes"),
			"p2": []byte("jpg bytes"),
		},
	}
	svc := NewService(fake, nil, slogDiscard())
	dir := t.TempDir()

	m, err := svc.Download(context.Background(), "m1", Options{Filter: "invoice", OutDir: dir})
	if err != nil {
		t.Fatalf("download failed: %v", err)
	}
	if len(m.Saved) != 1 {
		t.Fatalf("expected 1 saved file, got %d", len(m.Saved))
	}
	if m.Saved[0].Filename != "Invoice-March.pdf" {
		t.Fatalf("wrong file saved: %+v", m.Saved[0])
	}
	data, err := os.ReadFile(m.Saved[0].SavedAs)
	if err != nil {
		t.Fatalf("read saved file: %v", err)
	}
	if string(data) != "pdf bytes" {
		t.Fatalf("unexpected content: %q", data)
	}
}

func TestDownloadCollisionSuffix(t *testing.T) {
	fake := &fakeClient{
		attachments: map[gmail.MessageID][]gmail.Attachment{
			"m1": {
				{PartID: "p1", Filename: "report.pdf"},
				{PartID: "p2", Filename: "report.pdf"},
			},
		},
		content: map[gmail.AttachmentID][]byte{
			"p1": []byte("first"),
			"p2": []byte("second"),
		},
	}
	svc := NewService(fake, nil, slogDiscard())
	dir := t.TempDir()

	m, err := svc.Download(context.Background(), "m1", Options{OutDir: dir})
	if err != nil {
		t.Fatalf("download failed: %v", err)
	}
	if len(m.Saved) != 2 {
		t.Fatalf("expected 2 saved files, got %d", len(m.Saved))
	}
	paths := map[string]bool{}
	for _, f := range m.Saved {
		paths[filepath.Base(f.SavedAs)] = true
	}
	if !paths["report.pdf"] || !paths["report_1.pdf"] {
		t.Fatalf("expected collision suffix, got %v", paths)
	}
	first, _ := os.ReadFile(filepath.Join(dir, "report.pdf"))
	if string(first) != "first" {
		t.Fatalf("original file overwritten: %q", first)
	}
}

func TestDownloadPrefix(t *testing.T) {
	fake := &fakeClient{
		attachments: map[gmail.MessageID][]gmail.Attachment{
			"m1": {{PartID: "p1", Filename: "notes.txt"}},
		},
		content: map[gmail.AttachmentID][]byte{"p1": []byte("x")},
	}
	svc := NewService(fake, nil, slogDiscard())
	dir := t.TempDir()

	m, err := svc.Download(context.Background(), "m1", Options{Prefix: "acct", OutDir: dir})
	if err != nil {
		t.Fatalf("download failed: %v", err)
	}
	if len(m.Saved) != 1 || filepath.Base(m.Saved[0].SavedAs) != "acct_notes.txt" {
		t.Fatalf("prefix not applied: %+v", m.Saved)
	}
}

func TestDownloadPartFailureIsRecorded(t *testing.T) {
	fake := &fakeClient{
		attachments: map[gmail.MessageID][]gmail.Attachment{
			"m1": {
				{PartID: "p1", Filename: "good.txt"},
				{PartID: "p2", Filename: "bad.txt"},
			},
		},
		content: map[gmail.AttachmentID][]byte{"p1": []byte("ok")},
		getErr:  map[gmail.AttachmentID]error{"p2": fmt.Errorf("boom")},
	}
	svc := NewService(fake, nil, slogDiscard())

	m, err := svc.Download(context.Background(), "m1", Options{OutDir: t.TempDir()})
	if err != nil {
		t.Fatalf("download failed: %v", err)
	}
	if len(m.Saved) != 1 || m.Saved[0].Filename != "good.txt" {
		t.Fatalf("good part should be saved: %+v", m.Saved)
	}
	if len(m.Failures) != 1 || m.Failures[0].Filename != "bad.txt" {
		t.Fatalf("bad part should be recorded: %+v", m.Failures)
	}
}

func TestSearchDownloadEmptyQuery(t *testing.T) {
	svc := NewService(&fakeClient{}, nil, slogDiscard())
	if _, err := svc.SearchDownload(context.Background(), "  ", 10, Options{OutDir: t.TempDir()}); !gmail.IsKind(err, gmail.KindValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestSearchDownloadIsolatesMessageFailures(t *testing.T) {
	fake := &fakeClient{
		listPages: []gmail.ListPage{{IDs: []gmail.MessageID{"m1", "m2", "m3"}}},
		attachments: map[gmail.MessageID][]gmail.Attachment{
			"m1": {{PartID: "p1", Filename: "a.txt"}},
			"m3": {{PartID: "p3", Filename: "c.txt"}},
		},
		listErr: map[gmail.MessageID]error{"m2": fmt.Errorf("boom")},
		content: map[gmail.AttachmentID][]byte{
			"p1": []byte("a"),
			"p3": []byte("c"),
		},
	}
	svc := NewService(fake, nil, slogDiscard())
	svc.Workers = 2

	m, err := svc.SearchDownload(context.Background(), "has:attachment", 0, Options{OutDir: t.TempDir()})
	if err != nil {
		t.Fatalf("search download failed: %v", err)
	}
	if len(m.Saved) != 2 {
		t.Fatalf("expected 2 saved files, got %+v", m.Saved)
	}
	if len(m.Failures) != 1 || m.Failures[0].MessageID != "m2" {
		t.Fatalf("expected one failure for m2: %+v", m.Failures)
	}
	// manifest is sorted by message id
	if m.Saved[0].MessageID != "m1" || m.Saved[1].MessageID != "m3" {
		t.Fatalf("manifest not ordered: %+v", m.Saved)
	}
}

func TestSanitize(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{name: "plain", input: "report.pdf", want: "report.pdf"},
		{name: "path-escape", input: "../../etc/passwd", want: ".._.._etc_passwd"},
		{name: "slashes", input: "a/b/c.txt", want: "a_b_c.txt"},
		{name: "backslashes", input: `a\b\c.txt`, want: "a_b_c.txt"},
		{name: "empty", input: "", want: "attachment"},
		{name: "dots", input: "..", want: "attachment"},
	}
	for _, tt := range tests {
		tc := tt
		t.Run(tc.name, func(t *testing.T) {
			if got := sanitize(tc.input); got != tc.want {
				t.Fatalf("sanitize(%q) = %q, want %q", tc.input, got, tc.want)
			}
		})
	}
}
