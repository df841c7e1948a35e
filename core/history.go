package core

import "sync"

type sampleHistory struct {
	mu    sync.Mutex
	items []WindowSample
	head  int
	count int
}

func newSampleHistory(capacity int) *sampleHistory {
	if capacity < 1 {
		capacity = DefaultHistorySize
	}
	return &sampleHistory{items: make([]WindowSample, capacity)}
}

func (h *sampleHistory) Add(sample WindowSample) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.items[h.head] = sample
	h.head = (h.head + 1) % len(h.items)
	if h.count < len(h.items) {
		h.count++
	}
}

// Recent returns up to limit samples, newest first. limit <= 0 means all.
func (h *sampleHistory) Recent(limit int) []WindowSample {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.count == 0 {
		return nil
	}

	if limit <= 0 || limit > h.count {
		limit = h.count
	}

	out := make([]WindowSample, 0, limit)
	for i := 0; i < limit; i++ {
		idx := (h.head - 1 - i + len(h.items)) % len(h.items)
		out = append(out, h.items[idx])
	}
	return out
}

func (h *sampleHistory) Last() (WindowSample, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.count == 0 {
		return WindowSample{}, false
	}

	idx := (h.head - 1 + len(h.items)) % len(h.items)
	return h.items[idx], true
}
