package main

import (
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/apkdrop/apkdrop/backends"
	"github.com/apkdrop/apkdrop/common/config"
	"github.com/apkdrop/apkdrop/common/globals"
	"github.com/apkdrop/apkdrop/common/logging"
	"github.com/apkdrop/apkdrop/common/rcontext"
	"github.com/apkdrop/apkdrop/common/version"
	"github.com/apkdrop/apkdrop/foldercache"
	"github.com/apkdrop/apkdrop/metrics"
	"github.com/apkdrop/apkdrop/notifier"
	"github.com/apkdrop/apkdrop/pool"
	"github.com/apkdrop/apkdrop/uploads"
	"github.com/getsentry/sentry-go"
	"github.com/sirupsen/logrus"
)

func main() {
	configPath := flag.String("config", "apkdrop.yaml", "The path to the configuration")
	versionFlag := flag.Bool("version", false, "Prints the version and exits")
	flag.Parse()

	if *versionFlag {
		version.Print(false)
		os.Exit(0)
	}

	// Override config path with the environment variable, if set
	realConfigPath := os.Getenv("APKDROP_CONFIG_PATH")
	if realConfigPath == "" {
		realConfigPath = *configPath
	}
	config.Path = realConfigPath

	c := config.Get()

	err := logging.Setup(
		c.General.LogDirectory,
		c.General.LogColors,
		c.General.JsonLogs,
		c.General.LogLevel,
	)
	if err != nil {
		panic(err)
	}

	logrus.Info("Starting up...")
	version.Print(true)
	config.PrintBackendInfo()

	if c.Sentry.Enabled {
		version.SetDefaults()
		logrus.Info("Setting up Sentry for debugging...")
		err = sentry.Init(sentry.ClientOptions{
			Dsn:     c.Sentry.Dsn,
			Debug:   c.Sentry.Debug,
			Release: version.Version,
		})
		if err != nil {
			logrus.Fatal(err)
		}
	}
	defer sentry.Flush(2 * time.Second)

	metrics.Init()
	pool.Init()

	cache := foldercache.Load(c.FolderCache.FilePath, time.Duration(c.FolderCache.ExpiryHours)*time.Hour)

	watcher := config.Watch()
	defer watcher.Close()
	go func() {
		for range globals.BackendsReloadChan {
			backends.Reset()
			pool.AdjustSize()
		}
	}()
	go func() {
		for range globals.MetricsReloadChan {
			metrics.Reload()
		}
	}()

	artifactPaths := flag.Args()
	if len(artifactPaths) == 0 {
		fmt.Println("Usage: apkdrop [-config path] <artifact.apk> [more.apk ...]")
		os.Exit(2)
	}

	events, unsubscribe := notifier.Subscribe()
	defer unsubscribe()
	go func() {
		for ev := range events {
			log := logrus.WithFields(logrus.Fields{"backend": ev.BackendId, "artifact": ev.ArtifactPath})
			switch ev.Kind {
			case notifier.EventStateChanged:
				log.Debug("Now ", ev.State)
			case notifier.EventProgress:
				log.Info("Transferring at ", ev.Speed)
			case notifier.EventTerminal:
				if ev.Err != nil {
					log.Error("Upload failed: ", ev.Err)
				} else {
					log.Info("Link: ", ev.Link)
				}
			}
		}
	}()

	orchestrator := uploads.NewOrchestrator(cache)
	defer orchestrator.Close()

	ctx := rcontext.Initial()
	allJobs := make([]*uploads.Job, 0)
	for _, p := range artifactPaths {
		jobs, err := orchestrator.Submit(ctx, p)
		if err != nil {
			logrus.Errorf("Skipping %s: %v", p, err)
			continue
		}
		for _, j := range jobs {
			allJobs = append(allJobs, j)
		}
	}

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	done := make(chan struct{})
	go func() {
		for _, j := range allJobs {
			<-j.Done()
		}
		close(done)
	}()

	select {
	case <-done:
	case <-stop:
		logrus.Warn("Interrupted - abandoning in-flight uploads")
	}

	failed := 0
	for _, j := range allJobs {
		if j.State() != uploads.StateSucceeded {
			failed++
		}
	}

	cache.Flush()
	pool.Drain()
	metrics.Stop()
	logrus.Info("Goodbye!")

	if failed > 0 || len(allJobs) == 0 {
		os.Exit(1)
	}
}
