package uploads

import (
	"sync"

	"github.com/apkdrop/apkdrop/metrics"
	"github.com/apkdrop/apkdrop/notifier"
	"github.com/apkdrop/apkdrop/util"
	"github.com/google/uuid"
)

const (
	StatePending          = "pending"
	StateConnecting       = "connecting"
	StateResolvingFolders = "resolving_folders"
	StateUploading        = "uploading"
	StatePublishing       = "publishing"
	StateSucceeded        = "succeeded"
	StateFailed           = "failed"
)

// Job tracks one artifact's journey through one backend. Jobs are immutable
// in identity: a retry is a brand new job for the same (backend, artifact)
// pair, never a resurrected one.
type Job struct {
	Id           string
	BackendId    string
	ArtifactPath string

	mu        sync.Mutex
	state     string
	link      string
	err       error
	lastSpeed util.Speed

	done chan struct{}
}

func newJob(backendId string, artifactPath string) *Job {
	return &Job{
		Id:           uuid.New().String(),
		BackendId:    backendId,
		ArtifactPath: artifactPath,
		state:        StatePending,
		done:         make(chan struct{}),
	}
}

func (j *Job) State() string {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.state
}

// Result blocks until the job reaches a terminal state and returns the
// public link or the failure reason.
func (j *Job) Result() (string, error) {
	<-j.done
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.link, j.err
}

// Done closes when the job reaches a terminal state.
func (j *Job) Done() <-chan struct{} {
	return j.done
}

func (j *Job) LastSpeed() util.Speed {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.lastSpeed
}

func (j *Job) transition(state string) {
	j.mu.Lock()
	j.state = state
	j.mu.Unlock()
	notifier.StateChanged(j.BackendId, j.ArtifactPath, state)
}

func (j *Job) progress(speed util.Speed, bytes int64) {
	j.mu.Lock()
	j.lastSpeed = speed
	j.mu.Unlock()
	notifier.Progress(j.BackendId, j.ArtifactPath, speed, bytes)
}

func (j *Job) succeed(link string) {
	j.mu.Lock()
	j.state = StateSucceeded
	j.link = link
	j.mu.Unlock()
	metrics.UploadsSucceeded.With(map[string]string{"backend": j.BackendId}).Inc()
	notifier.StateChanged(j.BackendId, j.ArtifactPath, StateSucceeded)
	notifier.Succeeded(j.BackendId, j.ArtifactPath, link)
	close(j.done)
}

func (j *Job) fail(err error) {
	j.mu.Lock()
	failedFrom := j.state
	j.state = StateFailed
	j.err = err
	j.mu.Unlock()
	metrics.UploadsFailed.With(map[string]string{"backend": j.BackendId, "state": failedFrom}).Inc()
	notifier.StateChanged(j.BackendId, j.ArtifactPath, StateFailed)
	notifier.Failed(j.BackendId, j.ArtifactPath, err)
	close(j.done)
}
