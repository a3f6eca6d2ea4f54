package remote

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/fahad7169/chatd/internal/chat"
)

// Memory implements Store entirely in memory. It backs the test suites and
// offline runs, and behaves like the real store from the core's
// perspective: subscriptions receive a full snapshot immediately and after
// every relevant mutation.
type Memory struct {
	mu      sync.Mutex
	cols    map[string]*memCollection
	subs    map[int]*memSub
	nextSub int
	nextDoc int
}

type memCollection struct {
	order []string
	docs  map[string]map[string]any
}

type memSub struct {
	query Query
	ch    chan Snapshot
	done  <-chan struct{}
}

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{
		cols: make(map[string]*memCollection),
		subs: make(map[int]*memSub),
	}
}

func (m *Memory) Subscribe(ctx context.Context, q Query) (<-chan Snapshot, func(), error) {
	if q.Collection == "" {
		return nil, nil, fmt.Errorf("query has no collection")
	}
	m.mu.Lock()
	id := m.nextSub
	m.nextSub++
	sub := &memSub{query: q, ch: make(chan Snapshot, 4), done: ctx.Done()}
	m.subs[id] = sub
	push(sub, m.evaluate(q))
	m.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			m.mu.Lock()
			if s, ok := m.subs[id]; ok {
				delete(m.subs, id)
				close(s.ch)
			}
			m.mu.Unlock()
		})
	}
	return sub.ch, cancel, nil
}

func (m *Memory) Get(_ context.Context, path string) (Doc, bool, error) {
	col, id := splitPath(path)
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.cols[col]
	if !ok {
		return Doc{}, false, nil
	}
	fields, ok := c.docs[id]
	if !ok {
		return Doc{}, false, nil
	}
	return Doc{ID: id, Fields: copyFields(fields)}, true, nil
}

func (m *Memory) Upsert(_ context.Context, path string, fields map[string]any, merge bool) error {
	col, id := splitPath(path)
	m.mu.Lock()
	defer m.mu.Unlock()
	c := m.collection(col)
	existing, ok := c.docs[id]
	if !ok {
		c.order = append(c.order, id)
		existing = make(map[string]any)
		c.docs[id] = existing
	} else if !merge {
		existing = make(map[string]any)
		c.docs[id] = existing
	}
	for k, v := range fields {
		existing[k] = v
	}
	m.notify(col)
	return nil
}

func (m *Memory) Add(_ context.Context, collection string, fields map[string]any) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextDoc++
	id := fmt.Sprintf("doc%04d", m.nextDoc)
	c := m.collection(collection)
	c.order = append(c.order, id)
	c.docs[id] = copyFields(fields)
	m.notify(collection)
	return id, nil
}

func (m *Memory) UpdateFields(_ context.Context, path string, fields map[string]any) error {
	col, id := splitPath(path)
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.cols[col]
	if !ok {
		return fmt.Errorf("update %s: no such document", path)
	}
	doc, ok := c.docs[id]
	if !ok {
		return fmt.Errorf("update %s: no such document", path)
	}
	for k, v := range fields {
		doc[k] = v
	}
	m.notify(col)
	return nil
}

func (m *Memory) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, s := range m.subs {
		delete(m.subs, id)
		close(s.ch)
	}
	return nil
}

// SubscriptionCount returns the number of live subscriptions. Tests use it
// to assert teardown released everything.
func (m *Memory) SubscriptionCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.subs)
}

// collection returns (creating if needed) the named collection. Callers
// hold the lock.
func (m *Memory) collection(path string) *memCollection {
	c, ok := m.cols[path]
	if !ok {
		c = &memCollection{docs: make(map[string]map[string]any)}
		m.cols[path] = c
	}
	return c
}

// notify re-evaluates every subscription on the mutated collection and
// pushes a fresh snapshot. Callers hold the lock.
func (m *Memory) notify(collection string) {
	for _, sub := range m.subs {
		if sub.query.Collection != collection {
			continue
		}
		push(sub, m.evaluate(sub.query))
	}
}

// evaluate computes the full snapshot for a query. Callers hold the lock.
func (m *Memory) evaluate(q Query) Snapshot {
	c, ok := m.cols[q.Collection]
	if !ok {
		return Snapshot{}
	}
	snap := Snapshot{}
	for _, id := range c.order {
		fields := c.docs[id]
		if q.ArrayContains != nil && !containsString(fields[q.ArrayContains.Field], q.ArrayContains.Value) {
			continue
		}
		snap.Docs = append(snap.Docs, Doc{ID: id, Fields: copyFields(fields)})
	}
	if q.OrderBy != "" {
		sort.SliceStable(snap.Docs, func(i, j int) bool {
			ti, iok := chat.ParseWireTime(str(snap.Docs[i].Fields[q.OrderBy]))
			tj, jok := chat.ParseWireTime(str(snap.Docs[j].Fields[q.OrderBy]))
			if !iok || !jok {
				return false
			}
			return ti.Before(tj)
		})
	}
	return snap
}

// push delivers a snapshot without blocking. When the subscriber's buffer
// is full the oldest pending snapshot is discarded: each snapshot is
// complete, so only the latest matters.
func push(sub *memSub, snap Snapshot) {
	select {
	case <-sub.done:
		return
	default:
	}
	for {
		select {
		case sub.ch <- snap:
			return
		default:
			select {
			case <-sub.ch:
			default:
				return
			}
		}
	}
}

func containsString(v any, want string) bool {
	for _, s := range stringSlice(v) {
		if s == want {
			return true
		}
	}
	return false
}

func copyFields(fields map[string]any) map[string]any {
	out := make(map[string]any, len(fields))
	for k, v := range fields {
		out[k] = v
	}
	return out
}
