package app

import (
	"context"
	"encoding/json"
	"sort"
	"strings"
	"testing"

	"github.com/example/sidebar/internal/config"
	"github.com/example/sidebar/internal/models"
	"github.com/example/sidebar/internal/oerr"
	"github.com/example/sidebar/internal/ports/secondary"
)

// Ensure the mocks implement their interfaces
var (
	_ secondary.ContextStore    = (*mockStore)(nil)
	_ secondary.AuditLog        = (*mockStore)(nil)
	_ secondary.SessionStore    = (*mockSessionStore)(nil)
	_ secondary.ConversationMap = (*mockConversationMap)(nil)
)

// mockStore implements secondary.ContextStore and secondary.AuditLog over
// in-memory maps, mimicking the atomic commit of the sqlite adapter.
// Setting failErr makes every Commit fail until cleared, for exercising the
// emergency cache path.
type mockStore struct {
	snapshots map[string]*models.Context
	entries   []*models.AuditEntry
	nextSeq   int64
	commits   int
	failErr   error
}

func newMockStore() *mockStore {
	return &mockStore{snapshots: make(map[string]*models.Context), nextSeq: 1}
}

func (m *mockStore) Commit(ctx context.Context, batch secondary.CommitBatch) error {
	if m.failErr != nil {
		return m.failErr
	}
	m.commits++
	for _, c := range batch.Contexts {
		m.snapshots[c.ID] = c.Clone()
	}
	for _, e := range batch.Entries {
		stored := *e
		stored.Seq = m.nextSeq
		m.nextSeq++
		m.entries = append(m.entries, &stored)
	}
	return nil
}

func (m *mockStore) Load(ctx context.Context, id string) (*models.Context, error) {
	c, ok := m.snapshots[id]
	if !ok {
		return nil, &oerr.NotFoundError{Kind: "context", ID: id}
	}
	return c.Clone(), nil
}

func (m *mockStore) LoadAll(ctx context.Context) ([]*models.Context, error) {
	depth := func(c *models.Context) int {
		d := 0
		for cur := c; cur.ParentID != ""; {
			next, ok := m.snapshots[cur.ParentID]
			if !ok {
				break
			}
			cur = next
			d++
		}
		return d
	}
	var all []*models.Context
	for _, c := range m.snapshots {
		all = append(all, c.Clone())
	}
	sort.Slice(all, func(i, j int) bool {
		di, dj := depth(all[i]), depth(all[j])
		if di != dj {
			return di < dj
		}
		return all[i].ShortID < all[j].ShortID
	})
	return all, nil
}

func (m *mockStore) CountContexts(ctx context.Context) (int, error) {
	return len(m.snapshots), nil
}

func (m *mockStore) Query(ctx context.Context, filters secondary.AuditFilters) ([]*models.AuditEntry, error) {
	var out []*models.AuditEntry
	for _, e := range m.entries {
		if filters.ContextID != "" && e.ContextID != filters.ContextID {
			continue
		}
		if filters.EventType != "" && e.EventType != filters.EventType {
			continue
		}
		if !filters.Since.IsZero() && e.Timestamp.Before(filters.Since) {
			continue
		}
		if !filters.Until.IsZero() && e.Timestamp.After(filters.Until) {
			continue
		}
		if filters.PayloadContains != "" {
			data, err := json.Marshal(e.Payload)
			if err != nil || !strings.Contains(string(data), filters.PayloadContains) {
				continue
			}
		}
		out = append(out, e)
	}
	return out, nil
}

func (m *mockStore) EntriesForContext(ctx context.Context, contextID string) ([]*models.AuditEntry, error) {
	return m.Query(ctx, secondary.AuditFilters{ContextID: contextID})
}

func (m *mockStore) CountByContext(ctx context.Context) (map[string]int, error) {
	counts := make(map[string]int)
	for _, e := range m.entries {
		counts[e.ContextID]++
	}
	return counts, nil
}

// entriesOfType filters the recorded entries by event type.
func (m *mockStore) entriesOfType(event models.EventType) []*models.AuditEntry {
	var out []*models.AuditEntry
	for _, e := range m.entries {
		if e.EventType == event {
			out = append(out, e)
		}
	}
	return out
}

// mockSessionStore implements secondary.SessionStore over a map.
type mockSessionStore struct {
	values map[string]string
}

func newMockSessionStore() *mockSessionStore {
	return &mockSessionStore{values: make(map[string]string)}
}

func (m *mockSessionStore) Get(ctx context.Context, key string) (string, error) {
	v, ok := m.values[key]
	if !ok {
		return "", &oerr.NotFoundError{Kind: "session key", ID: key}
	}
	return v, nil
}

func (m *mockSessionStore) Set(ctx context.Context, key, value string) error {
	m.values[key] = value
	return nil
}

func (m *mockSessionStore) Delete(ctx context.Context, key string) error {
	delete(m.values, key)
	return nil
}

// mockConversationMap implements secondary.ConversationMap over maps.
type mockConversationMap struct {
	rootByConv map[string]string
	convByRoot map[string]string
}

func newMockConversationMap() *mockConversationMap {
	return &mockConversationMap{
		rootByConv: make(map[string]string),
		convByRoot: make(map[string]string),
	}
}

func (m *mockConversationMap) Bind(ctx context.Context, rootID, conversationID string) error {
	m.rootByConv[conversationID] = rootID
	m.convByRoot[rootID] = conversationID
	return nil
}

func (m *mockConversationMap) RootFor(ctx context.Context, conversationID string) (string, error) {
	id, ok := m.rootByConv[conversationID]
	if !ok {
		return "", &oerr.NotFoundError{Kind: "conversation", ID: conversationID}
	}
	return id, nil
}

func (m *mockConversationMap) ConversationFor(ctx context.Context, rootID string) (string, error) {
	id, ok := m.convByRoot[rootID]
	if !ok {
		return "", &oerr.NotFoundError{Kind: "root binding", ID: rootID}
	}
	return id, nil
}

// testFixture wires an orchestrator and its mocks for service tests.
type testFixture struct {
	orch    *OrchestratorServiceImpl
	store   *mockStore
	session *mockSessionStore
	cfg     *config.Config
}

func newFixture(t *testing.T) *testFixture {
	t.Helper()
	store := newMockStore()
	session := newMockSessionStore()
	cfg := config.DefaultConfig()
	orch := NewOrchestratorService(store, session, newMockConversationMap(), NewEmergencyCache(), cfg)
	return &testFixture{orch: orch, store: store, session: session, cfg: cfg}
}
