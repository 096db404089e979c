package foldercache

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func testStore(t *testing.T) *Store {
	t.Helper()
	return Load(filepath.Join(t.TempDir(), "cache.json"), 24*time.Hour)
}

func TestLoadMissingFileIsEmpty(t *testing.T) {
	s := testStore(t)
	_, ok := s.GetParent("gofile", "com.example.app")
	assert.False(t, ok)
	assert.True(t, s.IsStale("gofile"))
}

func TestLoadCorruptFileIsEmpty(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cache.json")
	assert.NoError(t, os.WriteFile(path, []byte("{not json"), 0644))

	s := Load(path, 24*time.Hour)
	_, ok := s.GetParent("gofile", "com.example.app")
	assert.False(t, ok)
}

func TestPutAndGet(t *testing.T) {
	s := testStore(t)
	s.PutParent("gofile", "com.example.app", "folder1")
	s.PutVersion("gofile", "com.example.app-2.0.1-release", "folder2")

	id, ok := s.GetParent("gofile", "com.example.app")
	assert.True(t, ok)
	assert.Equal(t, "folder1", id)

	id, ok = s.GetVersion("gofile", "com.example.app-2.0.1-release")
	assert.True(t, ok)
	assert.Equal(t, "folder2", id)

	// Other backends see nothing
	_, ok = s.GetParent("buzzheavier", "com.example.app")
	assert.False(t, ok)
}

func TestInvalidateRemovesOnlyThatKey(t *testing.T) {
	s := testStore(t)
	s.PutParent("gofile", "com.example.app", "folder1")
	s.PutParent("gofile", "com.other.app", "folder2")
	s.PutVersion("gofile", "com.example.app-1.0", "folder3")

	s.InvalidateParent("gofile", "com.example.app")

	_, ok := s.GetParent("gofile", "com.example.app")
	assert.False(t, ok)
	_, ok = s.GetParent("gofile", "com.other.app")
	assert.True(t, ok)
	_, ok = s.GetVersion("gofile", "com.example.app-1.0")
	assert.True(t, ok)
}

func TestStaleness(t *testing.T) {
	s := testStore(t)

	assert.True(t, s.IsStale("gofile")) // no entry yet

	s.PutParent("gofile", "com.example.app", "folder1")
	assert.False(t, s.IsStale("gofile"))

	// Rewind the clock 25 hours and the entry goes stale, but stays served.
	s.now = func() time.Time { return time.Now().Add(25 * time.Hour) }
	assert.True(t, s.IsStale("gofile"))

	id, ok := s.GetParent("gofile", "com.example.app")
	assert.True(t, ok)
	assert.Equal(t, "folder1", id)

	// A put refreshes the entry
	s.PutParent("gofile", "com.other.app", "folder2")
	assert.False(t, s.IsStale("gofile"))
}

func TestPersistRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cache.json")

	s := Load(path, 24*time.Hour)
	s.PutParent("gofile", "com.example.app", "folder1")
	s.PutVersion("buzzheavier", "com.example.app-2.0.1", "dir9")
	s.Flush()

	reloaded := Load(path, 24*time.Hour)
	id, ok := reloaded.GetParent("gofile", "com.example.app")
	assert.True(t, ok)
	assert.Equal(t, "folder1", id)
	id, ok = reloaded.GetVersion("buzzheavier", "com.example.app-2.0.1")
	assert.True(t, ok)
	assert.Equal(t, "dir9", id)
}

func TestOverlappingFlushesConvergeOnTheLatestState(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cache.json")
	s := Load(path, 24*time.Hour)

	var wg sync.WaitGroup
	for i := 0; i < 25; i++ {
		s.PutParent("gofile", "com.example.app", fmt.Sprintf("folder%d", i))
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.Flush()
		}()
	}
	s.PutParent("gofile", "com.example.app", "final")
	s.Flush()
	wg.Wait()

	// Whatever persist ran last must have written the final mapping
	reloaded := Load(path, 24*time.Hour)
	id, ok := reloaded.GetParent("gofile", "com.example.app")
	assert.True(t, ok)
	assert.Equal(t, "final", id)
}

func TestLegacyMigration(t *testing.T) {
	legacy := []byte(`{
		"parentFolders": {"com.example.app": "folder1"},
		"versionFolders": {"com.example.app-2.0.1-release": "folder2"},
		"refreshedAt": 1700000000
	}`)
	current := []byte(`{
		"schemaVersion": 2,
		"backends": {
			"gofile": {
				"parentFolders": {"com.example.app": "folder1"},
				"versionFolders": {"com.example.app-2.0.1-release": "folder2"},
				"refreshedAt": 1700000000
			}
		}
	}`)

	fromLegacy, migrated, err := parseAndMigrate(legacy)
	assert.NoError(t, err)
	assert.True(t, migrated)

	fromCurrent, migrated, err := parseAndMigrate(current)
	assert.NoError(t, err)
	assert.False(t, migrated)

	assert.Equal(t, fromCurrent, fromLegacy)
	assert.Equal(t, "folder1", fromLegacy.Backends[LegacyBackendId].ParentFolders["com.example.app"])
	assert.Equal(t, int64(1700000000), fromLegacy.Backends[LegacyBackendId].RefreshedAt)
}

func TestLegacyMigrationPersistsAsCurrent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cache.json")
	legacy := []byte(`{"parentFolders": {"com.example.app": "folder1"}, "versionFolders": {}, "refreshedAt": 1700000000}`)
	assert.NoError(t, os.WriteFile(path, legacy, 0644))

	s := Load(path, 24*time.Hour)
	id, ok := s.GetParent(LegacyBackendId, "com.example.app")
	assert.True(t, ok)
	assert.Equal(t, "folder1", id)
	s.Flush()

	// Migration is one-time: the rewritten file parses as current format.
	b, err := os.ReadFile(path)
	assert.NoError(t, err)
	_, migrated, err := parseAndMigrate(b)
	assert.NoError(t, err)
	assert.False(t, migrated)
}
