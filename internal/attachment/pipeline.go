// Package attachment enumerates and bulk-downloads attachment content,
// isolating per-item failures so one bad message never aborts a batch.
package attachment

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/joshsymonds/mailpilot/internal/gmail"
	"github.com/joshsymonds/mailpilot/internal/rate"
)

const defaultWorkers = 4

// Options controls a download run.
type Options struct {
	Filter string // case-insensitive filename substring; empty matches all
	Prefix string // prepended to saved filenames
	OutDir string // destination directory, created if absent
}

// SavedFile records one attachment written to disk.
type SavedFile struct {
	MessageID gmail.MessageID
	Filename  string // original attachment filename
	SavedAs   string // path actually written, collision-suffixed if needed
	Size      int64
}

// Failure records one item that could not be downloaded.
type Failure struct {
	MessageID gmail.MessageID
	Filename  string // empty when the whole message failed
	Err       error
}

// Manifest is the complete, ordering-stable outcome of a download run.
type Manifest struct {
	Saved    []SavedFile
	Failures []Failure
}

// Service downloads attachments through one account's client.
type Service struct {
	Client  gmail.Client
	Limiter rate.Limiter
	Log     *slog.Logger
	Workers int

	mu sync.Mutex // serializes filename reservation and manifest appends
}

// NewService wires an attachment service.
func NewService(client gmail.Client, limiter rate.Limiter, logger *slog.Logger) *Service {
	if limiter == nil {
		limiter = rate.None{}
	}
	return &Service{Client: client, Limiter: limiter, Log: logger, Workers: defaultWorkers}
}

// List enumerates attachment parts of one message without downloading.
func (s *Service) List(ctx context.Context, id gmail.MessageID) ([]gmail.Attachment, error) {
	if err := s.Limiter.Wait(ctx); err != nil {
		return nil, err
	}
	return s.Client.ListAttachments(ctx, id)
}

// Download writes the matching attachments of one message to opts.OutDir.
// Per-part failures are recorded in the manifest, not returned as errors.
func (s *Service) Download(ctx context.Context, id gmail.MessageID, opts Options) (Manifest, error) {
	if err := ensureDir(opts.OutDir); err != nil {
		return Manifest{}, err
	}
	parts, err := s.List(ctx, id)
	if err != nil {
		return Manifest{}, err
	}
	var m Manifest
	s.downloadParts(ctx, id, parts, opts, &m)
	m.sort()
	return m, nil
}

// SearchDownload runs a paginated search and downloads matching
// attachments for each result independently under a bounded worker pool.
// A failure on one message is a manifest entry and the rest of the batch
// proceeds; the manifest is complete and stable regardless of completion
// order.
func (s *Service) SearchDownload(ctx context.Context, query string, limit int, opts Options) (Manifest, error) {
	if strings.TrimSpace(query) == "" {
		return Manifest{}, gmail.ValidationError("search query must not be empty")
	}
	if err := ensureDir(opts.OutDir); err != nil {
		return Manifest{}, err
	}
	ids, err := s.collectIDs(ctx, gmail.Query{Raw: query}, limit)
	if err != nil {
		return Manifest{}, err
	}

	var (
		m   Manifest
		wg  sync.WaitGroup
		sem = make(chan struct{}, s.workers())
	)
	for _, id := range ids {
		wg.Add(1)
		go func(id gmail.MessageID) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			if err := s.Limiter.Wait(ctx); err != nil {
				s.recordFailure(&m, Failure{MessageID: id, Err: err})
				return
			}
			parts, err := s.Client.ListAttachments(ctx, id)
			if err != nil {
				s.Log.Warn("skipping message after enumeration failure", "id", id, "error", err)
				s.recordFailure(&m, Failure{MessageID: id, Err: err})
				return
			}
			s.downloadParts(ctx, id, parts, opts, &m)
		}(id)
	}
	wg.Wait()
	m.sort()
	return m, nil
}

func (s *Service) downloadParts(ctx context.Context, id gmail.MessageID, parts []gmail.Attachment, opts Options, m *Manifest) {
	for _, part := range parts {
		if opts.Filter != "" && !strings.Contains(strings.ToLower(part.Filename), strings.ToLower(opts.Filter)) {
			continue
		}
		if err := s.Limiter.Wait(ctx); err != nil {
			s.recordFailure(m, Failure{MessageID: id, Filename: part.Filename, Err: err})
			return
		}
		data, err := s.Client.GetAttachment(ctx, id, part.PartID)
		if err != nil {
			s.recordFailure(m, Failure{MessageID: id, Filename: part.Filename, Err: err})
			continue
		}
		saved, err := s.save(opts, part.Filename, data)
		if err != nil {
			s.recordFailure(m, Failure{MessageID: id, Filename: part.Filename, Err: err})
			continue
		}
		s.mu.Lock()
		m.Saved = append(m.Saved, SavedFile{
			MessageID: id,
			Filename:  part.Filename,
			SavedAs:   saved,
			Size:      int64(len(data)),
		})
		s.mu.Unlock()
	}
}

// save reserves a collision-free path and writes the content. Filename
// reservation is serialized so concurrent workers never overwrite each
// other.
func (s *Service) save(opts Options, filename string, data []byte) (string, error) {
	name := sanitize(filename)
	if opts.Prefix != "" {
		name = opts.Prefix + "_" + name
	}

	s.mu.Lock()
	path, f, err := createUnique(filepath.Join(opts.OutDir, name))
	s.mu.Unlock()
	if err != nil {
		return "", fmt.Errorf("create %s: %w", name, err)
	}
	defer func() { _ = f.Close() }()

	if _, err := f.Write(data); err != nil {
		return "", fmt.Errorf("write %s: %w", path, err)
	}
	return path, nil
}

// createUnique opens path exclusively, appending _1, _2, ... before the
// extension on collision rather than overwriting.
func createUnique(path string) (string, *os.File, error) {
	ext := filepath.Ext(path)
	stem := strings.TrimSuffix(path, ext)
	candidate := path
	for i := 1; ; i++ {
		f, err := os.OpenFile(candidate, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
		if err == nil {
			return candidate, f, nil
		}
		if !os.IsExist(err) {
			return "", nil, err
		}
		candidate = fmt.Sprintf("%s_%d%s", stem, i, ext)
	}
}

// sanitize strips path separators so a hostile filename cannot escape the
// output directory.
func sanitize(filename string) string {
	name := strings.ReplaceAll(filename, "/", "_")
	name = strings.ReplaceAll(name, "\\", "_")
	name = filepath.Base(name)
	if name == "" || name == "." || name == ".." {
		name = "attachment"
	}
	return name
}

func (s *Service) recordFailure(m *Manifest, f Failure) {
	s.mu.Lock()
	m.Failures = append(m.Failures, f)
	s.mu.Unlock()
}

func (s *Service) collectIDs(ctx context.Context, q gmail.Query, limit int) ([]gmail.MessageID, error) {
	var (
		ids   []gmail.MessageID
		seen  = map[gmail.MessageID]struct{}{}
		token string
	)
	for {
		pageSize := 100
		if limit > 0 && limit-len(ids) < pageSize {
			pageSize = limit - len(ids)
		}
		if err := s.Limiter.Wait(ctx); err != nil {
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

func (s *Service) workers() int {
	if s.Workers <= 0 {
		return defaultWorkers
	}
	return s.Workers
}

// sort orders the manifest by message id then filename so output is
// stable regardless of completion order.
func (m *Manifest) sort() {
	sort.Slice(m.Saved, func(i, j int) bool {
		if m.Saved[i].MessageID != m.Saved[j].MessageID {
			return m.Saved[i].MessageID < m.Saved[j].MessageID
		}
		return m.Saved[i].SavedAs < m.Saved[j].SavedAs
	})
	sort.Slice(m.Failures, func(i, j int) bool {
		if m.Failures[i].MessageID != m.Failures[j].MessageID {
			return m.Failures[i].MessageID < m.Failures[j].MessageID
		}
		return m.Failures[i].Filename < m.Failures[j].Filename
	})
}

func ensureDir(dir string) error {
	if dir == "" {
		return gmail.ValidationError("output directory must not be empty")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create output directory %s: %w", dir, err)
	}
	return nil
}
