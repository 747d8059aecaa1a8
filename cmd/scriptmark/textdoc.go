package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/abadealex/scriptmark/internal/segment"
)

// textStore adapts plain-text script bundles to the pipeline's external
// interfaces so batches can run without a scanner or OCR backend. Pages are
// separated by form-feed characters; each detected page becomes an
// in-memory handle.
type textStore struct {
	mu    sync.Mutex
	pages map[string][]string
}

func newTextStore() *textStore {
	return &textStore{pages: map[string][]string{}}
}

func (s *textStore) Rasterize(_ context.Context, document string) ([]string, error) {
	data, err := os.ReadFile(document)
	if err != nil {
		return nil, fmt.Errorf("read document %s: %w", document, err)
	}

	rawPages := strings.Split(string(data), "\f")
	handles := make([]string, 0, len(rawPages))

	s.mu.Lock()
	defer s.mu.Unlock()
	for i, raw := range rawPages {
		handle := fmt.Sprintf("%s#p%d", document, i)
		var lines []string
		for _, line := range strings.Split(raw, "\n") {
			if trimmed := strings.TrimSpace(line); trimmed != "" {
				lines = append(lines, trimmed)
			}
		}
		s.pages[handle] = lines
		handles = append(handles, handle)
	}
	return handles, nil
}

func (s *textStore) ExtractText(_ context.Context, page string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	lines, ok := s.pages[page]
	if !ok {
		return nil, fmt.Errorf("unknown page handle %s", page)
	}
	return lines, nil
}

func (s *textStore) Split(_ context.Context, document string, ranges []segment.Range) ([]string, error) {
	handles := make([]string, len(ranges))
	for i, r := range ranges {
		handles[i] = fmt.Sprintf("%s#%s", document, r)
	}
	return handles, nil
}
