package web

import (
	"errors"

	"github.com/gofiber/fiber/v2"

	"github.com/audiofold/go-tapcast/internal/config"
	"github.com/audiofold/go-tapcast/pkg/capture"
	"github.com/audiofold/go-tapcast/pkg/coreaudio"
)

type statusResponse struct {
	Recording bool                     `json:"recording"`
	Path      string                   `json:"path,omitempty"`
	Format    *coreaudio.StreamFormat  `json:"format,omitempty"`
	Stats     *capture.BridgeStats     `json:"stats,omitempty"`
	WriteErr  string                   `json:"write_error,omitempty"`
}

func (s *Server) handleStatus(c *fiber.Ctx) error {
	resp := statusResponse{Recording: s.recorder.Recording()}
	if resp.Recording {
		resp.Path = s.recorder.OutputPath()
		if f, ok := s.recorder.Format(); ok {
			resp.Format = &f
		}
		if st, ok := s.recorder.Stats(); ok {
			resp.Stats = &st
		}
		if err := s.recorder.Err(); err != nil {
			resp.WriteErr = err.Error()
		}
	}
	return c.JSON(resp)
}

type deviceResponse struct {
	Name string `json:"name"`
	UID  string `json:"uid"`
}

func (s *Server) handleDevices(c *fiber.Ctx) error {
	ids, err := s.hal.Devices(coreaudio.ScopeOutput)
	if err != nil {
		return fiber.NewError(fiber.StatusInternalServerError, err.Error())
	}
	devices := make([]deviceResponse, 0, len(ids))
	for _, id := range ids {
		uid, err := s.hal.DeviceUID(id)
		if err != nil {
			continue
		}
		devices = append(devices, deviceResponse{Name: s.hal.ObjectName(id), UID: uid})
	}
	return c.JSON(devices)
}

func (s *Server) handleProcesses(c *fiber.Ctx) error {
	procs, err := s.hal.Processes()
	if err != nil {
		return fiber.NewError(fiber.StatusInternalServerError, err.Error())
	}
	if procs == nil {
		procs = []coreaudio.ProcessInfo{}
	}
	return c.JSON(procs)
}

type startRequest struct {
	PID       int    `json:"pid"`
	Path      string `json:"path"`
	DeviceUID string `json:"device_uid"`
}

func (s *Server) handleStart(c *fiber.Ctx) error {
	var req startRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}
	if req.PID <= 0 {
		return fiber.NewError(fiber.StatusBadRequest, "pid is required")
	}
	if req.Path == "" {
		req.Path = config.DefaultOutputPath(req.PID)
	}

	err := s.recorder.Start(req.PID, capture.StartOptions{
		OutputPath: req.Path,
		DeviceUID:  req.DeviceUID,
	})
	switch {
	case err == nil:
		return c.JSON(fiber.Map{"recording": true, "path": req.Path})
	case errors.Is(err, capture.ErrAlreadyRecording):
		return fiber.NewError(fiber.StatusConflict, err.Error())
	case errors.Is(err, capture.ErrProcessNotFound),
		errors.Is(err, capture.ErrDeviceNotFound):
		return fiber.NewError(fiber.StatusNotFound, err.Error())
	case errors.Is(err, capture.ErrUnsupportedFormat):
		return fiber.NewError(fiber.StatusUnprocessableEntity, err.Error())
	default:
		return fiber.NewError(fiber.StatusInternalServerError, err.Error())
	}
}

func (s *Server) handleStop(c *fiber.Ctx) error {
	path := s.recorder.Stop()
	if path == "" {
		return c.JSON(fiber.Map{"recording": false})
	}
	return c.JSON(fiber.Map{"recording": false, "path": path})
}
