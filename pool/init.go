package pool

import (
	"github.com/apkdrop/apkdrop/common/config"
	"github.com/getsentry/sentry-go"
	"github.com/sirupsen/logrus"
)

var UploadQueue *Queue

func Init() {
	var err error
	if UploadQueue, err = NewQueue(config.Get().Uploads.NumWorkers, "uploads"); err != nil {
		sentry.CaptureException(err)
		logrus.Error("Error setting up uploads queue")
		logrus.Fatal(err)
	}
}

func AdjustSize() {
	UploadQueue.Tune(config.Get().Uploads.NumWorkers)
}

func Drain() {
	UploadQueue.Release()
}
