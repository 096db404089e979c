package foldercache

import (
	"encoding/json"
)

const SchemaVersion = 2

// LegacyBackendId is where flat single-backend cache files end up after
// migration. The single-backend era of this tool only spoke gofile.
const LegacyBackendId = "gofile"

type backendEntry struct {
	ParentFolders  map[string]string `json:"parentFolders"`
	VersionFolders map[string]string `json:"versionFolders"`
	RefreshedAt    int64             `json:"refreshedAt"`
}

type cacheFile struct {
	SchemaVersion int                      `json:"schemaVersion"`
	Backends      map[string]*backendEntry `json:"backends"`
}

func newBackendEntry() *backendEntry {
	return &backendEntry{
		ParentFolders:  make(map[string]string),
		VersionFolders: make(map[string]string),
	}
}

func newCacheFile() *cacheFile {
	return &cacheFile{
		SchemaVersion: SchemaVersion,
		Backends:      make(map[string]*backendEntry),
	}
}

// parseAndMigrate decodes a persisted cache, upgrading the legacy flat
// format (no "backends" wrapper) into a single-backend entry. The transform
// is pure and idempotent: a current-format file passes straight through.
func parseAndMigrate(b []byte) (*cacheFile, bool, error) {
	var probe map[string]json.RawMessage
	if err := json.Unmarshal(b, &probe); err != nil {
		return nil, false, err
	}

	if _, ok := probe["backends"]; ok {
		file := newCacheFile()
		if err := json.Unmarshal(b, file); err != nil {
			return nil, false, err
		}
		if file.Backends == nil {
			file.Backends = make(map[string]*backendEntry)
		}
		for _, entry := range file.Backends {
			if entry.ParentFolders == nil {
				entry.ParentFolders = make(map[string]string)
			}
			if entry.VersionFolders == nil {
				entry.VersionFolders = make(map[string]string)
			}
		}
		file.SchemaVersion = SchemaVersion
		return file, false, nil
	}

	legacy := newBackendEntry()
	if err := json.Unmarshal(b, legacy); err != nil {
		return nil, false, err
	}
	if legacy.ParentFolders == nil {
		legacy.ParentFolders = make(map[string]string)
	}
	if legacy.VersionFolders == nil {
		legacy.VersionFolders = make(map[string]string)
	}

	file := newCacheFile()
	file.Backends[LegacyBackendId] = legacy
	return file, true, nil
}
