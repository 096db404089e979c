package notifier

import (
	"runtime"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSubscribeDeliversInOrder(t *testing.T) {
	events, stop := Subscribe()
	defer stop()

	StateChanged("gofile", "com.example.app-1.2.3.apk", "connecting")
	Succeeded("gofile", "com.example.app-1.2.3.apk", "https://gofile.io/d/abc")

	first := <-events
	require.Equal(t, EventStateChanged, first.Kind)
	assert.Equal(t, "connecting", first.State)

	second := <-events
	require.Equal(t, EventTerminal, second.Kind)
	assert.Equal(t, "https://gofile.io/d/abc", second.Link)
	assert.NoError(t, second.Err)
}

func TestUnsubscribeReleasesAnUndrainedForwarder(t *testing.T) {
	baseline := runtime.NumGoroutine()

	events, stop := Subscribe()

	// Overfill the outbound buffer so the forwarder is parked mid-send
	for i := 0; i < 70; i++ {
		StateChanged("gofile", "com.example.app-1.2.3.apk", "uploading")
	}
	time.Sleep(50 * time.Millisecond)

	stop()

	assert.Eventually(t, func() bool {
		return runtime.NumGoroutine() <= baseline
	}, 2*time.Second, 10*time.Millisecond, "forwarder goroutine did not exit after unsubscribe")
	_ = events // deliberately never drained
}
