package uploads

import (
	"errors"
	"io"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/apkdrop/apkdrop/backends"
	"github.com/apkdrop/apkdrop/common"
	"github.com/apkdrop/apkdrop/common/rcontext"
	"github.com/apkdrop/apkdrop/foldercache"
	"github.com/apkdrop/apkdrop/notifier"
	"github.com/apkdrop/apkdrop/util/resource_handler"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeHost struct {
	id          string
	folders     bool
	publishBase string
	uploadDelay time.Duration

	mu          sync.Mutex
	connectErr  error
	uploadErr   error
	connects    int
	uploadedTo  []string
	uploadBytes int64
}

func (f *fakeHost) Id() string       { return f.id }
func (f *fakeHost) HasFolders() bool { return f.folders }

func (f *fakeHost) Connect(ctx rcontext.RequestContext) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.connects++
	return f.connectErr
}

func (f *fakeHost) RootFolder() string {
	return "root"
}

func (f *fakeHost) FindFolder(ctx rcontext.RequestContext, parentId string, name string) (string, error) {
	if !f.folders {
		return backends.RootSentinel, nil
	}
	return "", common.ErrFolderNotFound
}

func (f *fakeHost) CreateFolder(ctx rcontext.RequestContext, parentId string, name string) (string, error) {
	if !f.folders {
		return backends.RootSentinel, nil
	}
	return "folder-" + name, nil
}

func (f *fakeHost) Upload(ctx rcontext.RequestContext, folderId string, name string, r io.Reader, size int64) (string, error) {
	n, _ := io.Copy(io.Discard, r)
	if f.uploadDelay > 0 {
		time.Sleep(f.uploadDelay)
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.uploadBytes += n
	f.uploadedTo = append(f.uploadedTo, folderId)
	if f.uploadErr != nil {
		return "", f.uploadErr
	}
	return "file-1", nil
}

func (f *fakeHost) Publish(ctx rcontext.RequestContext, folderId string, fileId string) (string, error) {
	return f.publishBase + fileId, nil
}

func (f *fakeHost) setUploadErr(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.uploadErr = err
}

func (f *fakeHost) setConnectErr(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.connectErr = err
}

func (f *fakeHost) connectCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.connects
}

func newTestOrchestrator(t *testing.T, hosts ...*fakeHost) *Orchestrator {
	t.Helper()

	byId := make(map[string]*fakeHost)
	ids := make([]string, 0, len(hosts))
	for _, h := range hosts {
		byId[h.id] = h
		ids = append(ids, h.id)
	}

	o := &Orchestrator{
		cache: foldercache.Load(filepath.Join(t.TempDir(), "cache.json"), 1*time.Hour),
		provider: func(backendType string) (backends.Backend, error) {
			h, ok := byId[backendType]
			if !ok {
				return nil, common.ErrBackendNotFound
			}
			return h, nil
		},
		enabled:        func() []string { return ids },
		schedule:       func(task func()) error { go task(); return nil },
		sampleInterval: 10 * time.Millisecond,
		stallTimeout:   0,
		jobs:           make(map[jobKey]*Job),
	}
	o.connects = resource_handler.New(2, func(request *resource_handler.WorkRequest) interface{} {
		req := request.Metadata.(*connectRequest)
		return &connectResult{err: req.backend.Connect(req.ctx)}
	})
	t.Cleanup(o.Close)
	return o
}

func writeArtifact(t *testing.T, name string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte("not really an apk but big enough to stream"), 0644))
	return path
}

func TestSubmitRejectsBadNamesBeforeTouchingBackends(t *testing.T) {
	host := &fakeHost{id: "fake", publishBase: "https://fake.test/"}
	o := newTestOrchestrator(t, host)
	ctx := rcontext.Initial()

	_, err := o.Submit(ctx, writeArtifact(t, "noversion.apk"))
	assert.ErrorIs(t, err, common.ErrUnparsableName)

	_, err = o.Submit(ctx, writeArtifact(t, "com.example.app-1.2.3.zip"))
	assert.ErrorIs(t, err, common.ErrNotAnArtifact)

	assert.Equal(t, 0, host.connectCount())
}

func TestSubmitRequiresTheFileToExist(t *testing.T) {
	host := &fakeHost{id: "fake"}
	o := newTestOrchestrator(t, host)

	_, err := o.Submit(rcontext.Initial(), filepath.Join(t.TempDir(), "com.example.app-1.2.3.apk"))
	assert.ErrorIs(t, err, common.ErrArtifactNotFound)
	assert.Equal(t, 0, host.connectCount())
}

func TestSubmitEnforcesTheSizeLimit(t *testing.T) {
	host := &fakeHost{id: "fake"}
	o := newTestOrchestrator(t, host)
	o.maxSizeBytes = 1

	_, err := o.Submit(rcontext.Initial(), writeArtifact(t, "com.example.app-1.2.3.apk"))
	assert.ErrorIs(t, err, common.ErrArtifactTooLarge)
}

func TestUploadRunsThroughAllStates(t *testing.T) {
	host := &fakeHost{id: "fake", folders: true, publishBase: "https://fake.test/"}
	o := newTestOrchestrator(t, host)

	events, stop := notifier.Subscribe()
	defer stop()

	path := writeArtifact(t, "com.example.app-1.2.3.apk")
	jobs, err := o.Submit(rcontext.Initial(), path)
	require.NoError(t, err)
	require.Len(t, jobs, 1)

	link, err := jobs["fake"].Result()
	require.NoError(t, err)
	assert.Equal(t, "https://fake.test/file-1", link)

	states := make([]string, 0)
	for ev := range events {
		if ev.Kind != notifier.EventStateChanged || ev.BackendId != "fake" {
			continue
		}
		states = append(states, ev.State)
		if ev.State == StateSucceeded || ev.State == StateFailed {
			break
		}
	}
	assert.Equal(t, []string{StateConnecting, StateResolvingFolders, StateUploading, StatePublishing, StateSucceeded}, states)

	assert.Equal(t, []string{"folder-com.example.app-1.2.3"}, host.uploadedTo)
	assert.Greater(t, host.uploadBytes, int64(0))
}

func TestFolderlessHostSkipsResolution(t *testing.T) {
	host := &fakeHost{id: "flat", publishBase: "https://flat.test/"}
	o := newTestOrchestrator(t, host)

	jobs, err := o.Submit(rcontext.Initial(), writeArtifact(t, "com.example.app-1.2.3.apk"))
	require.NoError(t, err)

	_, err = jobs["flat"].Result()
	require.NoError(t, err)
	assert.Equal(t, []string{backends.RootSentinel}, host.uploadedTo)
}

func TestSlowFailingBackendDoesNotHoldUpTheOthers(t *testing.T) {
	fast := &fakeHost{id: "fast", publishBase: "https://fast.test/"}
	slow := &fakeHost{id: "slow", uploadDelay: 400 * time.Millisecond}
	slow.uploadErr = errors.New("remote exploded")
	o := newTestOrchestrator(t, fast, slow)

	jobs, err := o.Submit(rcontext.Initial(), writeArtifact(t, "com.example.app-1.2.3.apk"))
	require.NoError(t, err)
	require.Len(t, jobs, 2)

	fastJob, slowJob := jobs["fast"], jobs["slow"]

	link, err := fastJob.Result()
	require.NoError(t, err)
	assert.NotEmpty(t, link)

	// The fast host finished while the slow one was still transferring
	select {
	case <-slowJob.Done():
		t.Fatal("slow job finished suspiciously early")
	default:
	}

	_, err = slowJob.Result()
	assert.ErrorContains(t, err, "remote exploded")
	assert.Equal(t, StateSucceeded, fastJob.State())
}

func TestRetryNeedsAFailedJob(t *testing.T) {
	host := &fakeHost{id: "fake", publishBase: "https://fake.test/"}
	o := newTestOrchestrator(t, host)
	ctx := rcontext.Initial()
	path := writeArtifact(t, "com.example.app-1.2.3.apk")

	_, err := o.Retry(ctx, "fake", path)
	assert.ErrorIs(t, err, common.ErrJobNotFound)

	jobs, err := o.Submit(ctx, path)
	require.NoError(t, err)
	_, err = jobs["fake"].Result()
	require.NoError(t, err)

	_, err = o.Retry(ctx, "fake", path)
	assert.ErrorIs(t, err, common.ErrJobNotFailed)
}

func TestRetryRunsAFreshJobAfterFailure(t *testing.T) {
	host := &fakeHost{id: "fake", publishBase: "https://fake.test/"}
	host.uploadErr = errors.New("first try fails")
	o := newTestOrchestrator(t, host)
	ctx := rcontext.Initial()
	path := writeArtifact(t, "com.example.app-1.2.3.apk")

	jobs, err := o.Submit(ctx, path)
	require.NoError(t, err)
	_, err = jobs["fake"].Result()
	require.Error(t, err)

	host.setUploadErr(nil)
	retried, err := o.Retry(ctx, "fake", path)
	require.NoError(t, err)
	assert.NotEqual(t, jobs["fake"].Id, retried.Id)

	link, err := retried.Result()
	require.NoError(t, err)
	assert.Equal(t, "https://fake.test/file-1", link)
}

func TestRetryRefusesAJobStillRunning(t *testing.T) {
	host := &fakeHost{id: "fake", publishBase: "https://fake.test/", uploadDelay: 300 * time.Millisecond}
	o := newTestOrchestrator(t, host)
	ctx := rcontext.Initial()
	path := writeArtifact(t, "com.example.app-1.2.3.apk")

	jobs, err := o.Submit(ctx, path)
	require.NoError(t, err)

	_, err = o.Retry(ctx, "fake", path)
	assert.ErrorIs(t, err, common.ErrJobInFlight)

	_, err = jobs["fake"].Result()
	require.NoError(t, err)
}

func TestResubmitWhileRunningReusesTheJob(t *testing.T) {
	host := &fakeHost{id: "fake", publishBase: "https://fake.test/", uploadDelay: 300 * time.Millisecond}
	o := newTestOrchestrator(t, host)
	ctx := rcontext.Initial()
	path := writeArtifact(t, "com.example.app-1.2.3.apk")

	first, err := o.Submit(ctx, path)
	require.NoError(t, err)
	second, err := o.Submit(ctx, path)
	require.NoError(t, err)

	assert.Same(t, first["fake"], second["fake"])

	_, err = first["fake"].Result()
	require.NoError(t, err)
}

func TestRetryReprobesARecoveredHost(t *testing.T) {
	host := &fakeHost{id: "fake", publishBase: "https://fake.test/"}
	host.connectErr = common.ErrAuthFailed
	o := newTestOrchestrator(t, host)
	ctx := rcontext.Initial()
	path := writeArtifact(t, "com.example.app-1.2.3.apk")

	jobs, err := o.Submit(ctx, path)
	require.NoError(t, err)
	_, err = jobs["fake"].Result()
	require.ErrorIs(t, err, common.ErrAuthFailed)

	// Credentials fixed between the attempts
	host.setConnectErr(nil)

	retried, err := o.Retry(ctx, "fake", path)
	require.NoError(t, err)
	link, err := retried.Result()
	require.NoError(t, err)
	assert.Equal(t, "https://fake.test/file-1", link)
	assert.Equal(t, 2, host.connectCount())
}

func TestSaturatedQueueDoesNotBlockSubmitOrRetry(t *testing.T) {
	host := &fakeHost{id: "fake", publishBase: "https://fake.test/"}
	o := newTestOrchestrator(t, host)

	// Simulate a queue with every worker busy: scheduling parks until released
	release := make(chan struct{})
	o.schedule = func(task func()) error {
		<-release
		go task()
		return nil
	}

	path := writeArtifact(t, "com.example.app-1.2.3.apk")

	submitted := make(chan map[string]*Job, 1)
	go func() {
		jobs, err := o.Submit(rcontext.Initial(), path)
		assert.NoError(t, err)
		submitted <- jobs
	}()

	var jobs map[string]*Job
	select {
	case jobs = <-submitted:
	case <-time.After(2 * time.Second):
		t.Fatal("submit blocked on a saturated queue")
	}

	// The orchestrator API stays responsive while the job waits for a worker
	job, ok := o.Job("fake", path)
	assert.True(t, ok)
	assert.Equal(t, StatePending, job.State())
	_, err := o.Retry(rcontext.Initial(), "fake", path)
	assert.ErrorIs(t, err, common.ErrJobInFlight)

	close(release)
	link, err := jobs["fake"].Result()
	require.NoError(t, err)
	assert.NotEmpty(t, link)
}

func TestConnectFailureIsTerminal(t *testing.T) {
	host := &fakeHost{id: "fake"}
	host.connectErr = common.ErrAuthFailed
	o := newTestOrchestrator(t, host)

	jobs, err := o.Submit(rcontext.Initial(), writeArtifact(t, "com.example.app-1.2.3.apk"))
	require.NoError(t, err)

	_, err = jobs["fake"].Result()
	assert.ErrorIs(t, err, common.ErrAuthFailed)
	assert.Equal(t, StateFailed, jobs["fake"].State())
	assert.Empty(t, host.uploadedTo)
}
