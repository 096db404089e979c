package backends

import (
	"io"
	"sync"

	"github.com/apkdrop/apkdrop/common"
	"github.com/apkdrop/apkdrop/common/config"
	"github.com/apkdrop/apkdrop/common/rcontext"
)

// RootSentinel stands in for "the account root" on hosts without a folder
// concept, and marks guest/rootless placement on hosts with one.
const RootSentinel = ""

// Backend is the capability-uniform surface over one remote file host. Hosts
// without folders implement the folder operations as pass-throughs that
// return RootSentinel, so callers never branch on the host type.
type Backend interface {
	Id() string
	HasFolders() bool

	// Connect performs a lightweight reachability/auth probe and learns the
	// account's root folder where the host has one.
	Connect(ctx rcontext.RequestContext) error

	// RootFolder is only meaningful after a successful Connect.
	RootFolder() string

	// FindFolder returns common.ErrFolderNotFound when no child matches, and
	// common.ErrParentNotFound when the parent id itself is unknown to the
	// host (the stale cache symptom).
	FindFolder(ctx rcontext.RequestContext, parentId string, name string) (string, error)
	CreateFolder(ctx rcontext.RequestContext, parentId string, name string) (string, error)

	// Upload streams the artifact into the given folder (or the root for
	// RootSentinel) and returns the host's file id.
	Upload(ctx rcontext.RequestContext, folderId string, name string, r io.Reader, size int64) (string, error)

	// Publish produces one public URL for the uploaded artifact. Folder
	// hosts flip the version folder public and read its link; direct-link
	// hosts mint a URL from the file id.
	Publish(ctx rcontext.RequestContext, folderId string, fileId string) (string, error)
}

var clients = &sync.Map{} // backend type -> Backend

// Reset drops all cached backend clients. Called when the config reloads so
// credential edits take effect on the next use.
func Reset() {
	clients = &sync.Map{}
}

// Get returns the (cached) client for an enabled backend.
func Get(backendType string) (Backend, error) {
	if val, ok := clients.Load(backendType); ok {
		return val.(Backend), nil
	}

	conf, ok := config.Get().Backend(backendType)
	if !ok {
		return nil, common.ErrBackendNotFound
	}
	if !conf.Enabled {
		return nil, common.ErrBackendNotEnabled
	}

	var b Backend
	switch backendType {
	case "gofile":
		b = newGofileBackend(conf)
	case "pixeldrain":
		b = newPixeldrainBackend(conf)
	case "buzzheavier":
		b = newBuzzheavierBackend(conf)
	default:
		return nil, common.ErrBackendNotFound
	}

	actual, _ := clients.LoadOrStore(backendType, b)
	return actual.(Backend), nil
}

// EnabledIds lists the backend types enabled in config, in config order.
func EnabledIds() []string {
	ids := make([]string, 0)
	for _, b := range config.Get().EnabledBackends() {
		ids = append(ids, b.Type)
	}
	return ids
}
