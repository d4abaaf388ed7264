// tapcast records the audio output of a single process to a WAV file.
//
// Usage:
//
//	tapcast -pid 1234 [-out capture.wav] [-device <uid>] [-duration 30s]
package main

import (
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/audiofold/go-tapcast/internal/config"
	"github.com/audiofold/go-tapcast/internal/log"
	"github.com/audiofold/go-tapcast/pkg/capture"
	"github.com/audiofold/go-tapcast/pkg/coreaudio"
)

func main() {
	pid := flag.Int("pid", 0, "target process id (required)")
	out := flag.String("out", "", "output WAV path (default: timestamped file in TAPCAST_DIR)")
	device := flag.String("device", "", "output device UID to mix into (default: system default)")
	duration := flag.Duration("duration", 0, "stop automatically after this long (0 = until Ctrl+C)")
	mic := flag.Bool("mic", false, "record the default microphone instead of a process")
	flag.Parse()

	log.Init(config.LogLevel())

	if !*mic && *pid <= 0 {
		fmt.Fprintln(os.Stderr, "Error: -pid is required (or use -mic)")
		flag.Usage()
		os.Exit(2)
	}

	hal, err := coreaudio.NewSystem()
	if err != nil {
		log.Error("audio HAL unavailable", "error", err)
		os.Exit(1)
	}

	path := *out
	if path == "" {
		path = config.DefaultOutputPath(*pid)
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	var stop func() string
	if *mic {
		rec := capture.NewMicRecorder(hal, log.L())
		if err := rec.Start(path); err != nil {
			log.Error("microphone start failed", "error", err)
			os.Exit(1)
		}
		stop = rec.Stop
	} else {
		rec := capture.New(hal, capture.WithLogger(log.L()))
		err := rec.Start(*pid, capture.StartOptions{
			OutputPath: path,
			DeviceUID:  *device,
		})
		if err != nil {
			log.Error("recording start failed", "pid", *pid, "error", err)
			os.Exit(1)
		}
		stop = rec.Stop
	}

	if *duration > 0 {
		select {
		case <-sigCh:
		case <-time.After(*duration):
		}
	} else {
		<-sigCh
	}

	if finished := stop(); finished != "" {
		fmt.Println(finished)
	}
}
