package notifier

import (
	"github.com/apkdrop/apkdrop/util"
	"github.com/olebedev/emitter"
)

// Events are what the (external) presentation layer renders: status glyph
// changes, live throughput while a transfer runs, and the final link or
// failure per backend. Everything is keyed by (backend, artifact).

type EventKind int

const (
	EventStateChanged EventKind = iota
	EventProgress
	EventTerminal
)

type Event struct {
	Kind         EventKind
	BackendId    string
	ArtifactPath string

	State string // EventStateChanged

	Speed         util.Speed // EventProgress
	BytesUploaded int64      // EventProgress

	Link string // EventTerminal, on success
	Err  error  // EventTerminal, on failure
}

const uploadsTopic = "uploads"

var bus = emitter.New(64)

// Subscribe returns a channel of upload events and a function to stop
// listening. Terminal events arrive in backend-completion order.
func Subscribe() (<-chan Event, func()) {
	// Sync delivery keeps events in emit order
	raw := bus.On(uploadsTopic, emitter.Sync)
	out := make(chan Event, 64)

	done := make(chan struct{})
	go func() {
		defer close(out)
		for {
			select {
			case ev, ok := <-raw:
				if !ok {
					return
				}
				// The subscriber may stop listening while we hold an event
				select {
				case out <- ev.Args[0].(Event):
				case <-done:
					return
				}
			case <-done:
				return
			}
		}
	}()

	finishFn := func() {
		bus.Off(uploadsTopic, raw)
		close(done)
	}
	return out, finishFn
}

func StateChanged(backendId string, artifactPath string, state string) {
	bus.Emit(uploadsTopic, Event{
		Kind:         EventStateChanged,
		BackendId:    backendId,
		ArtifactPath: artifactPath,
		State:        state,
	})
}

func Progress(backendId string, artifactPath string, speed util.Speed, bytesUploaded int64) {
	bus.Emit(uploadsTopic, Event{
		Kind:          EventProgress,
		BackendId:     backendId,
		ArtifactPath:  artifactPath,
		Speed:         speed,
		BytesUploaded: bytesUploaded,
	})
}

func Succeeded(backendId string, artifactPath string, link string) {
	bus.Emit(uploadsTopic, Event{
		Kind:         EventTerminal,
		BackendId:    backendId,
		ArtifactPath: artifactPath,
		Link:         link,
	})
}

func Failed(backendId string, artifactPath string, err error) {
	bus.Emit(uploadsTopic, Event{
		Kind:         EventTerminal,
		BackendId:    backendId,
		ArtifactPath: artifactPath,
		Err:          err,
	})
}
