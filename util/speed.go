package util

import (
	"fmt"
	"time"

	"github.com/dustin/go-humanize"
)

// Speed is an instantaneous throughput sample.
type Speed struct {
	Bytes   int64
	Elapsed time.Duration
}

func (s Speed) MegabytesPerSecond() float64 {
	if s.Elapsed <= 0 {
		return 0
	}
	return (float64(s.Bytes) / (1024 * 1024)) / s.Elapsed.Seconds()
}

func (s Speed) MegabitsPerSecond() float64 {
	if s.Elapsed <= 0 {
		return 0
	}
	return (float64(s.Bytes) * 8) / (s.Elapsed.Seconds() * 1000000)
}

func (s Speed) String() string {
	return fmt.Sprintf("%.2f MB/s (%.2f Mbps)", s.MegabytesPerSecond(), s.MegabitsPerSecond())
}

func HumanSize(bytes int64) string {
	return humanize.Bytes(uint64(bytes))
}
