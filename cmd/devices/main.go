// devices lists audio output devices and audio-capable processes.
package main

import (
	"fmt"
	"os"

	"github.com/audiofold/go-tapcast/internal/config"
	"github.com/audiofold/go-tapcast/internal/log"
	"github.com/audiofold/go-tapcast/pkg/coreaudio"
)

func main() {
	log.Init(config.LogLevel())

	hal, err := coreaudio.NewSystem()
	if err != nil {
		log.Error("audio HAL unavailable", "error", err)
		os.Exit(1)
	}

	outputs, err := hal.Devices(coreaudio.ScopeOutput)
	if err != nil {
		log.Error("device enumeration failed", "error", err)
		os.Exit(1)
	}

	fmt.Println("Output devices:")
	for _, id := range outputs {
		uid, err := hal.DeviceUID(id)
		if err != nil {
			continue
		}
		fmt.Printf("  %-40s %s\n", hal.ObjectName(id), uid)
	}

	procs, err := hal.Processes()
	if err != nil {
		log.Error("process enumeration failed", "error", err)
		os.Exit(1)
	}

	fmt.Println("\nAudio-capable processes:")
	for _, p := range procs {
		fmt.Printf("  %-8d %s\n", p.PID, p.Name)
	}
}
