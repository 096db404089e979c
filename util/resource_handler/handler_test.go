package resource_handler

import (
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
)

type fetchOutcome struct {
	ok      bool
	attempt int32
}

func (f *fetchOutcome) FetchFailed() bool { return !f.ok }

func TestGetResourceSharesSuccessfulResults(t *testing.T) {
	var calls int32
	h := New(2, func(request *WorkRequest) interface{} {
		return &fetchOutcome{ok: true, attempt: atomic.AddInt32(&calls, 1)}
	})
	defer h.Close()

	first := (<-h.GetResource("thing", nil)).(*fetchOutcome)
	second := (<-h.GetResource("thing", nil)).(*fetchOutcome)

	assert.Equal(t, int32(1), first.attempt)
	assert.Equal(t, int32(1), second.attempt)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestGetResourceRetriesAfterAFailedFetch(t *testing.T) {
	var calls int32
	h := New(2, func(request *WorkRequest) interface{} {
		return &fetchOutcome{ok: atomic.AddInt32(&calls, 1) > 1}
	})
	defer h.Close()

	first := (<-h.GetResource("thing", nil)).(*fetchOutcome)
	assert.True(t, first.FetchFailed())

	second := (<-h.GetResource("thing", nil)).(*fetchOutcome)
	assert.False(t, second.FetchFailed())
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
}
