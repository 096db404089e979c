package foldercache

import (
	"encoding/json"
	"os"
	"sync"
	"time"

	"github.com/apkdrop/apkdrop/metrics"
	"github.com/bep/debounce"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
)

const persistDebounce = 500 * time.Millisecond

// Store is the locally persisted mirror of each backend's folder tree:
// package name -> parent folder id and full stem -> version folder id, one
// entry set per backend. Entries older than the TTL are stale, which makes
// resolution re-verify them remotely before trusting them - it does not
// evict them.
type Store struct {
	mu        sync.RWMutex
	path      string
	ttl       time.Duration
	file      *cacheFile
	persistMu sync.Mutex // single writer for the whole-file write
	debounced func(func())
	now       func() time.Time
}

// Load reads the persisted cache. A missing, unreadable, or corrupt file is
// not an error for the caller: uploads still work, they just re-list remote
// folders. Legacy single-backend files are migrated in place.
func Load(path string, ttl time.Duration) *Store {
	s := &Store{
		path:      path,
		ttl:       ttl,
		file:      newCacheFile(),
		debounced: debounce.New(persistDebounce),
		now:       time.Now,
	}

	b, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return s
	}
	if err != nil {
		logrus.WithError(err).Warn("Could not read folder cache - starting empty")
		return s
	}

	file, migrated, err := parseAndMigrate(b)
	if err != nil {
		logrus.WithError(err).Warn("Could not parse folder cache - starting empty")
		return s
	}
	s.file = file
	if migrated {
		logrus.Info("Migrated legacy folder cache to multi-backend format")
		s.schedulePersist()
	}
	return s
}

func (s *Store) GetParent(backendId string, packageName string) (string, bool) {
	return s.get(backendId, packageName, "parent")
}

func (s *Store) GetVersion(backendId string, fullStem string) (string, bool) {
	return s.get(backendId, fullStem, "version")
}

func (s *Store) get(backendId string, key string, tier string) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entry, ok := s.file.Backends[backendId]
	if !ok {
		metrics.FolderCacheMisses.With(prometheus.Labels{"backend": backendId, "tier": tier}).Inc()
		return "", false
	}
	m := entry.ParentFolders
	if tier == "version" {
		m = entry.VersionFolders
	}
	id, ok := m[key]
	if !ok {
		metrics.FolderCacheMisses.With(prometheus.Labels{"backend": backendId, "tier": tier}).Inc()
		return "", false
	}
	metrics.FolderCacheHits.With(prometheus.Labels{"backend": backendId, "tier": tier}).Inc()
	return id, true
}

func (s *Store) PutParent(backendId string, packageName string, folderId string) {
	s.put(backendId, packageName, folderId, "parent")
}

func (s *Store) PutVersion(backendId string, fullStem string, folderId string) {
	s.put(backendId, fullStem, folderId, "version")
}

func (s *Store) put(backendId string, key string, folderId string, tier string) {
	s.mu.Lock()
	entry, ok := s.file.Backends[backendId]
	if !ok {
		entry = newBackendEntry()
		s.file.Backends[backendId] = entry
	}
	if tier == "version" {
		entry.VersionFolders[key] = folderId
	} else {
		entry.ParentFolders[key] = folderId
	}
	entry.RefreshedAt = s.now().Unix()
	s.mu.Unlock()

	s.schedulePersist()
}

func (s *Store) InvalidateParent(backendId string, packageName string) {
	s.invalidate(backendId, packageName, "parent")
}

func (s *Store) InvalidateVersion(backendId string, fullStem string) {
	s.invalidate(backendId, fullStem, "version")
}

func (s *Store) invalidate(backendId string, key string, tier string) {
	s.mu.Lock()
	entry, ok := s.file.Backends[backendId]
	if ok {
		if tier == "version" {
			delete(entry.VersionFolders, key)
		} else {
			delete(entry.ParentFolders, key)
		}
	}
	s.mu.Unlock()

	if ok {
		metrics.FolderCacheInvalidations.With(prometheus.Labels{"backend": backendId, "tier": tier}).Inc()
		s.schedulePersist()
	}
}

// IsStale is true when the backend has no cache entry yet or hasn't been
// refreshed within the TTL. Stale entries are still served - staleness only
// makes the resolver verify remotely before building on them.
func (s *Store) IsStale(backendId string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entry, ok := s.file.Backends[backendId]
	if !ok {
		return true
	}
	return s.now().Sub(time.Unix(entry.RefreshedAt, 0)) > s.ttl
}

func (s *Store) schedulePersist() {
	s.debounced(func() {
		if err := s.persistNow(); err != nil {
			logrus.WithError(err).Warn("Failed to persist folder cache")
		}
	})
}

// Flush writes the cache out synchronously. Called at shutdown so the
// debounce window can't drop the last mutation.
func (s *Store) Flush() {
	if err := s.persistNow(); err != nil {
		logrus.WithError(err).Warn("Failed to persist folder cache")
	}
}

func (s *Store) persistNow() error {
	// Snapshot under the writer lock so overlapping persists can't land an
	// older snapshot after a newer one
	s.persistMu.Lock()
	defer s.persistMu.Unlock()

	s.mu.RLock()
	b, err := json.MarshalIndent(s.file, "", "  ")
	s.mu.RUnlock()
	if err != nil {
		return err
	}

	tmp := s.path + ".tmp"
	if err = os.WriteFile(tmp, b, 0644); err != nil {
		return err
	}
	return os.Rename(tmp, s.path)
}
