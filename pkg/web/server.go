// Package web provides the HTTP control plane for go-tapcast: REST
// endpoints to start and stop recordings and a websocket feed of live
// level meters. It only ever talks to the Recorder's control plane,
// never to the real-time path.
package web

import (
	"log/slog"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/websocket/v2"

	"github.com/audiofold/go-tapcast/pkg/capture"
	"github.com/audiofold/go-tapcast/pkg/coreaudio"
	"github.com/audiofold/go-tapcast/pkg/hub"
)

// Server is the control server.
type Server struct {
	app    *fiber.App
	port   string
	logger *slog.Logger

	hal      coreaudio.HAL
	recorder *capture.Recorder

	levelHub *hub.Hub
}

// levelFrame is one websocket level-meter update.
type levelFrame struct {
	Time time.Time `json:"time"`
	DBFS []float64 `json:"dbfs"`
}

// NewServer creates the control server and its Recorder. Constructing
// the Recorder here also runs the orphan sweep before the first
// request can start a session.
func NewServer(port string, h coreaudio.HAL, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}

	s := &Server{
		port:     port,
		logger:   logger,
		hal:      h,
		levelHub: hub.New("levels", logger),
	}
	s.recorder = capture.New(h,
		capture.WithLogger(logger),
		capture.WithLevelFunc(s.pushLevels),
		capture.WithOnFinished(func(path string) {
			logger.Info("recording finished", "path", path)
		}),
	)

	app := fiber.New(fiber.Config{
		AppName:               "tapcast",
		DisableStartupMessage: true,
	})
	app.Use(cors.New())

	api := app.Group("/api")
	api.Get("/status", s.handleStatus)
	api.Get("/devices", s.handleDevices)
	api.Get("/processes", s.handleProcesses)
	api.Post("/record/start", s.handleStart)
	api.Post("/record/stop", s.handleStop)

	app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	app.Get("/ws/levels", websocket.New(s.handleLevelsWS))

	s.app = app
	return s
}

// Recorder exposes the server-owned recorder, mainly for tests.
func (s *Server) Recorder() *capture.Recorder {
	return s.recorder
}

// Start runs the hub loop and serves until the listener fails.
func (s *Server) Start() error {
	go s.levelHub.Run()
	s.logger.Info("control server listening", "port", s.port)
	return s.app.Listen(":" + s.port)
}

// Shutdown stops any active recording, then the HTTP listener.
func (s *Server) Shutdown() error {
	s.recorder.Stop()
	return s.app.Shutdown()
}

// pushLevels forwards per-buffer dBFS to websocket clients. Invoked on
// the real-time thread; Broadcast drops when saturated, never blocks.
func (s *Server) pushLevels(dbfs []float64) {
	if s.levelHub.ClientCount() == 0 {
		return
	}
	s.levelHub.BroadcastJSON(levelFrame{Time: time.Now(), DBFS: dbfs})
}

func (s *Server) handleLevelsWS(c *websocket.Conn) {
	client := hub.NewClient(s.levelHub, c)
	client.Run()
}
