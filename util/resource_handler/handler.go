package resource_handler

import (
	"time"

	"github.com/Jeffail/tunny"
	"github.com/olebedev/emitter"
	"github.com/patrickmn/go-cache"
)

// ResourceHandler collapses concurrent requests for the same resource into
// one unit of work: the first caller queues the fetch, later callers with
// the same id wait on its completion, and the result sticks around briefly
// for stragglers. Used to share one backend auth probe between artifacts
// dropped in quick succession.
type ResourceHandler struct {
	pool      *tunny.Pool
	eventBus  *emitter.Emitter
	itemCache *cache.Cache
}

type resource struct {
	isComplete bool
	result     interface{}
}

type WorkRequest struct {
	Id       string
	Metadata interface{}
}

// Retryable marks fetch results that know whether they failed. Failed results
// are dropped on completion instead of being remembered, so the next request
// for the same id runs the fetch again.
type Retryable interface {
	FetchFailed() bool
}

func New(workers int, fetchFn func(request *WorkRequest) interface{}) *ResourceHandler {
	workFn := func(i interface{}) interface{} { return fetchFn(i.(*WorkRequest)) }
	return &ResourceHandler{
		pool:      tunny.NewFunc(workers, workFn),
		eventBus:  emitter.New(16),
		itemCache: cache.New(30*time.Second, 1*time.Minute), // remember results for 30ish seconds
	}
}

func (h *ResourceHandler) Close() {
	h.pool.Close()
}

func (h *ResourceHandler) GetResource(id string, metadata interface{}) chan interface{} {
	resultChan := make(chan interface{}, 1)

	if cached, found := h.itemCache.Get(id); found {
		res := cached.(*resource)

		if res.isComplete {
			resultChan <- res.result
			return resultChan
		}

		// In flight - wait for whoever started it
		go func() {
			result := <-h.eventBus.Once("complete_" + id)
			resultChan <- result.Args[0]
		}()
		return resultChan
	}

	// Mark the request as started (never expires until completed)
	h.itemCache.Set(id, &resource{false, nil}, cache.NoExpiration)

	go func() {
		result := h.pool.Process(&WorkRequest{id, metadata})
		h.eventBus.Emit("complete_"+id, result)

		if r, ok := result.(Retryable); ok && r.FetchFailed() {
			h.itemCache.Delete(id)
		} else {
			h.itemCache.Set(id, &resource{
				isComplete: true,
				result:     result,
			}, cache.DefaultExpiration)
		}

		resultChan <- result
	}()

	return resultChan
}
