package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var RemoteCalls = prometheus.NewCounterVec(prometheus.CounterOpts{
	Name: "apkdrop_remote_calls_total",
}, []string{"backend", "operation"})
var RemoteCallErrors = prometheus.NewCounterVec(prometheus.CounterOpts{
	Name: "apkdrop_remote_call_errors_total",
}, []string{"backend", "operation"})
var UploadsStarted = prometheus.NewCounterVec(prometheus.CounterOpts{
	Name: "apkdrop_uploads_started_total",
}, []string{"backend"})
var UploadsSucceeded = prometheus.NewCounterVec(prometheus.CounterOpts{
	Name: "apkdrop_uploads_succeeded_total",
}, []string{"backend"})
var UploadsFailed = prometheus.NewCounterVec(prometheus.CounterOpts{
	Name: "apkdrop_uploads_failed_total",
}, []string{"backend", "state"})
var UploadedBytes = prometheus.NewCounterVec(prometheus.CounterOpts{
	Name: "apkdrop_uploaded_bytes_total",
}, []string{"backend"})
var FolderCacheHits = prometheus.NewCounterVec(prometheus.CounterOpts{
	Name: "apkdrop_folder_cache_hits_total",
}, []string{"backend", "tier"})
var FolderCacheMisses = prometheus.NewCounterVec(prometheus.CounterOpts{
	Name: "apkdrop_folder_cache_misses_total",
}, []string{"backend", "tier"})
var FolderCacheInvalidations = prometheus.NewCounterVec(prometheus.CounterOpts{
	Name: "apkdrop_folder_cache_invalidations_total",
}, []string{"backend", "tier"})

func init() {
	prometheus.MustRegister(RemoteCalls)
	prometheus.MustRegister(RemoteCallErrors)
	prometheus.MustRegister(UploadsStarted)
	prometheus.MustRegister(UploadsSucceeded)
	prometheus.MustRegister(UploadsFailed)
	prometheus.MustRegister(UploadedBytes)
	prometheus.MustRegister(FolderCacheHits)
	prometheus.MustRegister(FolderCacheMisses)
	prometheus.MustRegister(FolderCacheInvalidations)
}
