package uploads

import (
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/apkdrop/apkdrop/artifacts"
	"github.com/apkdrop/apkdrop/backends"
	"github.com/apkdrop/apkdrop/common"
	"github.com/apkdrop/apkdrop/common/config"
	"github.com/apkdrop/apkdrop/common/rcontext"
	"github.com/apkdrop/apkdrop/foldercache"
	"github.com/apkdrop/apkdrop/metrics"
	"github.com/apkdrop/apkdrop/pool"
	"github.com/apkdrop/apkdrop/util/resource_handler"
	"github.com/gabriel-vasile/mimetype"
)

const apkContentType = "application/vnd.android.package-archive"

type jobKey struct {
	backendId    string
	artifactPath string
}

type connectRequest struct {
	ctx     rcontext.RequestContext
	backend backends.Backend
}

type connectResult struct {
	err error
}

// FetchFailed keeps failed probes out of the dedupe cache: a retry after
// fixed credentials must hit the host again, not replay the old error.
func (r *connectResult) FetchFailed() bool {
	return r.err != nil
}

// Orchestrator fans one artifact out to every enabled backend, one pipeline
// per backend on the shared worker queue. Backends never wait on each other:
// a slow or failing host only affects its own job.
type Orchestrator struct {
	cache    *foldercache.Store
	provider func(backendType string) (backends.Backend, error)
	enabled  func() []string
	schedule func(task func()) error
	connects *resource_handler.ResourceHandler

	sampleInterval time.Duration
	stallTimeout   time.Duration
	maxSizeBytes   int64

	mu   sync.Mutex
	jobs map[jobKey]*Job
}

func NewOrchestrator(cache *foldercache.Store) *Orchestrator {
	o := &Orchestrator{
		cache:          cache,
		provider:       backends.Get,
		enabled:        backends.EnabledIds,
		schedule:       func(task func()) error { return pool.UploadQueue.Schedule(task) },
		sampleInterval: time.Duration(config.Get().Uploads.SampleIntervalMillis) * time.Millisecond,
		stallTimeout:   time.Duration(config.Get().Uploads.StallTimeoutSeconds) * time.Second,
		maxSizeBytes:   config.Get().Uploads.MaxSizeBytes,
		jobs:           make(map[jobKey]*Job),
	}
	o.connects = resource_handler.New(4, func(request *resource_handler.WorkRequest) interface{} {
		req := request.Metadata.(*connectRequest)
		return &connectResult{err: req.backend.Connect(req.ctx)}
	})
	return o
}

// Submit validates the artifact locally, then starts one job per backend
// (every enabled backend when none are named). The filename is parsed before
// anything touches the network: a name that can't be placed fails here, not
// N times remotely. A backend that already has a non-terminal job for this
// artifact keeps it.
func (o *Orchestrator) Submit(ctx rcontext.RequestContext, artifactPath string, backendIds ...string) (map[string]*Job, error) {
	parsed, err := artifacts.Parse(filepath.Base(artifactPath))
	if err != nil {
		return nil, err
	}

	info, err := os.Stat(artifactPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, common.ErrArtifactNotFound
		}
		return nil, err
	}
	if o.maxSizeBytes > 0 && info.Size() > o.maxSizeBytes {
		return nil, common.ErrArtifactTooLarge
	}

	if mime, err := mimetype.DetectFile(artifactPath); err == nil && !mime.Is(apkContentType) {
		ctx.Log.Warnf("%s detected as %s rather than an Android package - uploading anyway", artifactPath, mime.String())
	}

	ids := backendIds
	if len(ids) == 0 {
		ids = o.enabled()
	}
	jobs := make(map[string]*Job, len(ids))
	started := make([]*Job, 0, len(ids))

	o.mu.Lock()
	for _, backendId := range ids {
		key := jobKey{backendId, artifactPath}
		if existing, ok := o.jobs[key]; ok && existing.State() != StateFailed && existing.State() != StateSucceeded {
			jobs[backendId] = existing
			continue
		}

		job := newJob(backendId, artifactPath)
		o.jobs[key] = job
		jobs[backendId] = job
		started = append(started, job)
	}
	o.mu.Unlock()

	for _, job := range started {
		o.start(ctx, job, parsed, info.Size())
	}
	return jobs, nil
}

// Retry re-runs a failed upload as a fresh job. Succeeded jobs are not
// retryable, and a job still running keeps running.
func (o *Orchestrator) Retry(ctx rcontext.RequestContext, backendId string, artifactPath string) (*Job, error) {
	parsed, err := artifacts.Parse(filepath.Base(artifactPath))
	if err != nil {
		return nil, err
	}
	info, err := os.Stat(artifactPath)
	if err != nil {
		return nil, common.ErrArtifactNotFound
	}

	key := jobKey{backendId, artifactPath}

	o.mu.Lock()
	existing, ok := o.jobs[key]
	if !ok {
		o.mu.Unlock()
		return nil, common.ErrJobNotFound
	}
	switch existing.State() {
	case StateFailed:
		// retryable
	case StateSucceeded:
		o.mu.Unlock()
		return nil, common.ErrJobNotFailed
	default:
		o.mu.Unlock()
		return nil, common.ErrJobInFlight
	}

	job := newJob(backendId, artifactPath)
	o.jobs[key] = job
	o.mu.Unlock()

	o.start(ctx, job, parsed, info.Size())
	return job, nil
}

// Job returns the current job for a (backend, artifact) pair, if any.
func (o *Orchestrator) Job(backendId string, artifactPath string) (*Job, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	j, ok := o.jobs[jobKey{backendId, artifactPath}]
	return j, ok
}

func (o *Orchestrator) start(ctx rcontext.RequestContext, job *Job, parsed artifacts.ParsedName, size int64) {
	metrics.UploadsStarted.With(map[string]string{"backend": job.BackendId}).Inc()
	jobCtx := ctx.LogWithFields(map[string]interface{}{
		"backend":  job.BackendId,
		"artifact": filepath.Base(job.ArtifactPath),
		"jobId":    job.Id,
	})
	// Hand off asynchronously: a saturated queue delays workers, never the
	// submit/retry API.
	go func() {
		if err := o.schedule(func() { o.execute(jobCtx, job, parsed, size) }); err != nil {
			job.fail(err)
		}
	}()
}

func (o *Orchestrator) Close() {
	o.connects.Close()
}
