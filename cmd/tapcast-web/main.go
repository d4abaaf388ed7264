// tapcast-web serves the recording control API and the live level feed.
package main

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/audiofold/go-tapcast/internal/config"
	"github.com/audiofold/go-tapcast/internal/log"
	"github.com/audiofold/go-tapcast/pkg/coreaudio"
	"github.com/audiofold/go-tapcast/pkg/web"
)

func main() {
	log.Init(config.LogLevel())

	hal, err := coreaudio.NewSystem()
	if err != nil {
		log.Error("audio HAL unavailable", "error", err)
		os.Exit(1)
	}

	server := web.NewServer(config.WebPort(), hal, log.L())

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		log.Info("shutting down")
		server.Shutdown()
	}()

	if err := server.Start(); err != nil {
		log.Error("server exited", "error", err)
		os.Exit(1)
	}
}
