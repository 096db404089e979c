package resolver

import (
	"errors"
	"fmt"

	"github.com/apkdrop/apkdrop/artifacts"
	"github.com/apkdrop/apkdrop/backends"
	"github.com/apkdrop/apkdrop/common"
	"github.com/apkdrop/apkdrop/common/rcontext"
	"github.com/apkdrop/apkdrop/foldercache"
)

// ResolveError is a folder lookup/creation failure that the one-shot
// stale-cache recovery could not fix. It is terminal for the job; only an
// explicit retry runs resolution again.
type ResolveError struct {
	Backend string
	Err     error
}

func (e *ResolveError) Error() string {
	return fmt.Sprintf("%s: folder resolution failed: %v", e.Backend, e.Err)
}

func (e *ResolveError) Unwrap() error {
	return e.Err
}

// Resolve produces the version folder id an artifact should upload into:
// a parent folder named after the package under the account root, and a
// version folder named after the full stem under that parent. Cached ids
// are trusted when fresh; a stale cache entry (or none) forces a remote
// find before any create. When the backend reports the cached parent gone,
// exactly that cache key is invalidated and the resolution retried once -
// a second miss is terminal, so a persistently broken backend can't loop.
func Resolve(ctx rcontext.RequestContext, b backends.Backend, cache *foldercache.Store, parsed artifacts.ParsedName) (string, error) {
	if !b.HasFolders() {
		return backends.RootSentinel, nil
	}

	stale := cache.IsStale(b.Id())
	if stale {
		ctx.Log.Debugf("Folder cache for %s is stale - verifying remotely before reuse", b.Id())
	}

	for attempt := 0; ; attempt++ {
		parentId, err := resolveParent(ctx, b, cache, parsed, stale)
		if err != nil {
			return "", &ResolveError{Backend: b.Id(), Err: err}
		}

		versionId, err := resolveVersion(ctx, b, cache, parentId, parsed, stale)
		if err == nil {
			return versionId, nil
		}

		if errors.Is(err, common.ErrParentNotFound) && attempt == 0 {
			ctx.Log.Warnf("Cached parent folder for %s no longer exists on %s - recreating and retrying once", parsed.PackageName, b.Id())
			cache.InvalidateParent(b.Id(), parsed.PackageName)
			stale = true // force remote verification on the retry
			continue
		}

		return "", &ResolveError{Backend: b.Id(), Err: err}
	}
}

func resolveParent(ctx rcontext.RequestContext, b backends.Backend, cache *foldercache.Store, parsed artifacts.ParsedName, stale bool) (string, error) {
	if id, ok := cache.GetParent(b.Id(), parsed.PackageName); ok && !stale {
		return id, nil
	}

	found, err := b.FindFolder(ctx, b.RootFolder(), parsed.PackageName)
	if err == nil {
		cache.PutParent(b.Id(), parsed.PackageName, found)
		return found, nil
	}
	if !errors.Is(err, common.ErrFolderNotFound) {
		return "", err
	}

	ctx.Log.Infof("Creating parent folder %s on %s", parsed.PackageName, b.Id())
	created, err := b.CreateFolder(ctx, b.RootFolder(), parsed.PackageName)
	if err != nil {
		return "", err
	}
	cache.PutParent(b.Id(), parsed.PackageName, created)
	return created, nil
}

func resolveVersion(ctx rcontext.RequestContext, b backends.Backend, cache *foldercache.Store, parentId string, parsed artifacts.ParsedName, stale bool) (string, error) {
	if id, ok := cache.GetVersion(b.Id(), parsed.FullStem); ok && !stale {
		return id, nil
	}

	found, err := b.FindFolder(ctx, parentId, parsed.FullStem)
	if err == nil {
		cache.PutVersion(b.Id(), parsed.FullStem, found)
		return found, nil
	}
	if !errors.Is(err, common.ErrFolderNotFound) {
		return "", err
	}

	ctx.Log.Infof("Creating version folder %s on %s", parsed.FullStem, b.Id())
	created, err := b.CreateFolder(ctx, parentId, parsed.FullStem)
	if err != nil {
		return "", err
	}
	cache.PutVersion(b.Id(), parsed.FullStem, created)
	return created, nil
}
