package readers

import (
	"io"
	"sync/atomic"
	"time"

	"github.com/apkdrop/apkdrop/common"
)

// ProgressReader counts bytes as they are read and fails the stream when no
// data has moved for longer than the stall window. Wall-clock request
// timeouts don't work for large uploads, so the deadline is on progress
// instead: an active transfer can take as long as it needs.
type ProgressReader struct {
	r            io.Reader
	stallTimeout time.Duration
	bytesRead    int64
	lastReadAt   int64 // unix nanos
}

func NewProgressReader(r io.Reader, stallTimeout time.Duration) *ProgressReader {
	return &ProgressReader{
		r:            r,
		stallTimeout: stallTimeout,
		lastReadAt:   time.Now().UnixNano(),
	}
}

func (p *ProgressReader) Read(b []byte) (int, error) {
	if p.stallTimeout > 0 {
		last := time.Unix(0, atomic.LoadInt64(&p.lastReadAt))
		if time.Since(last) > p.stallTimeout {
			return 0, common.ErrUploadStalled
		}
	}

	n, err := p.r.Read(b)
	if n > 0 {
		atomic.AddInt64(&p.bytesRead, int64(n))
		atomic.StoreInt64(&p.lastReadAt, time.Now().UnixNano())
	}
	return n, err
}

func (p *ProgressReader) BytesRead() int64 {
	return atomic.LoadInt64(&p.bytesRead)
}
