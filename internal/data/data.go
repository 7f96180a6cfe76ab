package data

import (
	"path/filepath"

	"github.com/anthropics/trello-discord-bridge/internal/biz/repo"
)

// Repositories contains all storage-backed repositories
type Repositories struct {
	Store    repo.ConfigStore
	EventLog repo.EventLog
	Cache    repo.ConfigCache
}

// NewRepositories creates the config store, event log, and cache.
// The event log lives in its own database file next to the config store
// so audit batch writes never contend with mapping lookups.
func NewRepositories(dbPath string, cacheCfg CacheConfig) (*Repositories, error) {
	store, err := NewConfigStore(dbPath)
	if err != nil {
		return nil, err
	}

	eventDBPath := filepath.Join(filepath.Dir(dbPath), "events.db")
	eventLog, err := NewEventLog(eventDBPath)
	if err != nil {
		store.Close()
		return nil, err
	}

	return &Repositories{
		Store:    store,
		EventLog: eventLog,
		Cache:    NewMemoryCache(cacheCfg),
	}, nil
}

// Close releases every repository resource
func (r *Repositories) Close() {
	if r.Cache != nil {
		r.Cache.Close()
	}
	if r.EventLog != nil {
		r.EventLog.Close()
	}
	if r.Store != nil {
		r.Store.Close()
	}
}
