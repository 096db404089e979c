package common

import (
	"errors"
)

var ErrArtifactNotFound = errors.New("artifact not found")
var ErrNotAnArtifact = errors.New("not an apk file")
var ErrUnparsableName = errors.New("filename does not follow package-version naming")
var ErrFolderNotFound = errors.New("folder not found")
var ErrParentNotFound = errors.New("parent folder not found")
var ErrBackendNotFound = errors.New("backend not found")
var ErrBackendNotEnabled = errors.New("backend not enabled")
var ErrRateLimitExceeded = errors.New("rate limit exceeded")
var ErrAuthFailed = errors.New("authentication failed")
var ErrUploadStalled = errors.New("upload stalled")
var ErrJobNotFailed = errors.New("job has not failed")
var ErrJobNotFound = errors.New("job not found")
var ErrJobInFlight = errors.New("job already in flight")
var ErrArtifactTooLarge = errors.New("artifact exceeds the size limit")
