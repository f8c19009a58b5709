package source

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"sync"

	"github.com/PuerkitoBio/goquery"

	"TimelineWatch/internal/domain"
	"TimelineWatch/internal/ports"
)

// FileSource serves saved timeline pages from disk. The first page is visible from the
// start; every Scroll reveals the next one, like an infinite timeline loading more posts.
// Files are re-read on every snapshot, so edits show up without a reload.
type FileSource struct {
	paths []string

	mu       sync.Mutex
	revealed int
}

var (
	_ ports.DocumentSource = (*FileSource)(nil)
	_ ports.Scroller       = (*FileSource)(nil)
	_ ports.Refresher      = (*FileSource)(nil)
)

// ErrNothingToReveal is returned by Scroll once every page is visible.
var ErrNothingToReveal = errors.New("no more pages to reveal")

// NewFileSource serves paths in order.
func NewFileSource(paths ...string) (*FileSource, error) {
	if len(paths) == 0 {
		return nil, &domain.ConfigurationError{Field: "source.files", Reason: "at least one file is required"}
	}
	return &FileSource{paths: paths, revealed: 1}, nil
}

func (f *FileSource) Name() string { return f.paths[0] }

// Snapshot concatenates every revealed page into one document.
func (f *FileSource) Snapshot(ctx context.Context) (*goquery.Document, error) {
	f.mu.Lock()
	visible := f.paths[:f.revealed]
	f.mu.Unlock()

	var buf bytes.Buffer
	for _, path := range visible {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		data, err := os.ReadFile(path)
		if err != nil {
			if errors.Is(err, os.ErrNotExist) {
				return nil, &domain.SourceUnavailableError{Source: path, Err: err}
			}
			return nil, fmt.Errorf("read %s: %w", path, err)
		}
		buf.Write(data)
	}

	doc, err := goquery.NewDocumentFromReader(&buf)
	if err != nil {
		return nil, fmt.Errorf("parse document: %w", err)
	}
	return doc, nil
}

// Alive checks that the first page still exists.
func (f *FileSource) Alive(context.Context) error {
	if _, err := os.Stat(f.paths[0]); err != nil {
		return &domain.SourceUnavailableError{Source: f.paths[0], Err: err}
	}
	return nil
}

// Scroll reveals the next page.
func (f *FileSource) Scroll(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.revealed >= len(f.paths) {
		return ErrNothingToReveal
	}
	f.revealed++
	return nil
}

// SoftRefresh is always available: files are re-read on the next snapshot anyway.
func (f *FileSource) SoftRefresh(context.Context) (bool, error) {
	return true, nil
}

// Reload hides every page but the first again.
func (f *FileSource) Reload(context.Context) error {
	f.mu.Lock()
	f.revealed = 1
	f.mu.Unlock()
	return nil
}
