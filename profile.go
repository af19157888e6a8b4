package companion

import (
	"encoding/json"
	"sort"
	"sync"
)

// ──────────────────────────────────────────────
// ProfileStore — key→value facts about a user
// ──────────────────────────────────────────────

const profileKey = "profile"

// ProfileStore persists user profile facts (location, preference, habit).
// Facts are keyed by (userID, key) with last-writer-wins upsert semantics.
type ProfileStore struct {
	store MemoryStore
	mu    sync.Mutex
}

// NewProfileStore creates a profile store on the given backend.
func NewProfileStore(store MemoryStore) *ProfileStore {
	return &ProfileStore{store: store}
}

// Upsert creates or overwrites one fact. The read-modify-write is serialized
// so concurrent upserts for different keys never lose each other.
func (p *ProfileStore) Upsert(userID, key, value string) error {
	if key == "" || value == "" {
		return nil
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	facts, err := p.load(userID)
	if err != nil {
		return err
	}
	facts[key] = value
	data, _ := json.Marshal(facts)
	return p.store.Set(userID, profileKey, string(data))
}

// All returns every fact for the user. Unknown users get an empty map.
func (p *ProfileStore) All(userID string) (map[string]string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.load(userID)
}

// Keys returns fact keys in sorted order, for deterministic prompt rendering.
func (p *ProfileStore) Keys(userID string) ([]string, error) {
	facts, err := p.All(userID)
	if err != nil {
		return nil, err
	}
	keys := make([]string, 0, len(facts))
	for k := range facts {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys, nil
}

func (p *ProfileStore) load(userID string) (map[string]string, error) {
	raw, err := p.store.Get(userID, profileKey)
	if err != nil {
		return nil, err
	}
	facts := make(map[string]string)
	if raw != "" {
		json.Unmarshal([]byte(raw), &facts)
	}
	return facts, nil
}
