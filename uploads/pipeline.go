package uploads

import (
	"errors"
	"os"
	"path/filepath"
	"time"

	"github.com/apkdrop/apkdrop/artifacts"
	"github.com/apkdrop/apkdrop/common"
	"github.com/apkdrop/apkdrop/common/rcontext"
	"github.com/apkdrop/apkdrop/metrics"
	"github.com/apkdrop/apkdrop/resolver"
	"github.com/apkdrop/apkdrop/util"
	"github.com/apkdrop/apkdrop/util/readers"
	"github.com/getsentry/sentry-go"
)

// execute runs one job to a terminal state. Every failure lands the job in
// the failed state with the step's error; nothing here panics past the pool.
func (o *Orchestrator) execute(ctx rcontext.RequestContext, job *Job, parsed artifacts.ParsedName, size int64) {
	b, err := o.provider(job.BackendId)
	if err != nil {
		job.fail(err)
		return
	}

	// Step 1: probe the backend (deduped across concurrent jobs)
	job.transition(StateConnecting)
	res := (<-o.connects.GetResource(job.BackendId, &connectRequest{ctx: ctx, backend: b})).(*connectResult)
	if res.err != nil {
		ctx.Log.Error("Backend connection failed: ", res.err)
		job.fail(res.err)
		return
	}

	// Step 2: work out where the artifact goes
	folderId := ""
	if b.HasFolders() {
		job.transition(StateResolvingFolders)
		folderId, err = resolver.Resolve(ctx, b, o.cache, parsed)
		if err != nil {
			ctx.Log.Error("Folder resolution failed: ", err)
			job.fail(err)
			return
		}
		ctx.Log.Debugf("Uploading into folder %s", folderId)
	}

	// Step 3: stream the file up, sampling throughput as it moves
	job.transition(StateUploading)
	f, err := os.Open(job.ArtifactPath)
	if err != nil {
		job.fail(common.ErrArtifactNotFound)
		return
	}
	defer f.Close()

	progress := readers.NewProgressReader(f, o.stallTimeout)
	stopSampler := o.sampleProgress(job, progress)

	start := time.Now()
	fileId, err := b.Upload(ctx, folderId, filepath.Base(job.ArtifactPath), progress, size)
	stopSampler()
	metrics.UploadedBytes.With(map[string]string{"backend": job.BackendId}).Add(float64(progress.BytesRead()))
	if err != nil {
		if errors.Is(err, common.ErrUploadStalled) {
			ctx.Log.Errorf("Upload made no progress for %s - giving up", o.stallTimeout)
		} else {
			ctx.Log.Error("Upload failed: ", err)
			captureUnexpected(err)
		}
		job.fail(err)
		return
	}

	overall := util.Speed{Bytes: progress.BytesRead(), Elapsed: time.Since(start)}
	ctx.Log.Infof("Uploaded %s in %s (%s)", util.HumanSize(size), time.Since(start).Round(time.Millisecond), overall)

	// Step 4: get a shareable link
	job.transition(StatePublishing)
	link, err := b.Publish(ctx, folderId, fileId)
	if err != nil {
		ctx.Log.Error("Publishing failed: ", err)
		captureUnexpected(err)
		job.fail(err)
		return
	}

	ctx.Log.Info("Available at ", link)
	job.succeed(link)
}

// sampleProgress reports throughput at a fixed interval until stopped. Each
// sample covers only the bytes moved since the previous tick, so the numbers
// track the current transfer rate rather than the lifetime average.
func (o *Orchestrator) sampleProgress(job *Job, progress *readers.ProgressReader) func() {
	if o.sampleInterval <= 0 {
		return func() {}
	}

	stop := make(chan struct{})
	go func() {
		ticker := time.NewTicker(o.sampleInterval)
		defer ticker.Stop()

		lastBytes := int64(0)
		lastAt := time.Now()
		for {
			select {
			case <-stop:
				return
			case now := <-ticker.C:
				total := progress.BytesRead()
				job.progress(util.Speed{Bytes: total - lastBytes, Elapsed: now.Sub(lastAt)}, total)
				lastBytes = total
				lastAt = now
			}
		}
	}()
	return func() { close(stop) }
}

// captureUnexpected forwards errors to sentry unless they're part of the
// normal failure vocabulary (auth problems, rate limits, missing folders).
func captureUnexpected(err error) {
	for _, expected := range []error{
		common.ErrAuthFailed,
		common.ErrRateLimitExceeded,
		common.ErrFolderNotFound,
		common.ErrParentNotFound,
		common.ErrUploadStalled,
	} {
		if errors.Is(err, expected) {
			return
		}
	}
	sentry.CaptureException(err)
}
