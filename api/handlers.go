package api

import (
	"context"
	"errors"
	"sort"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/CristiGvl/ecfanctl/internal/curve"
	"github.com/CristiGvl/ecfanctl/internal/fan"
	"github.com/CristiGvl/ecfanctl/internal/telemetry"
	"github.com/CristiGvl/ecfanctl/internal/view"
)

type modeRequest struct {
	Mode string `json:"mode"`
}

type levelRequest struct {
	Level *int `json:"level"`
}

type pointRequest struct {
	Value *int `json:"value"`
}

type intervalRequest struct {
	Interval string `json:"interval"`
}

// errorResponse writes err with the status matching its cause.
func errorResponse(c *fiber.Ctx, err error) error {
	status := fiber.StatusInternalServerError
	switch {
	case errors.Is(err, fan.ErrUnknownFan):
		status = fiber.StatusNotFound
	case errors.Is(err, fan.ErrInvalidValue):
		status = fiber.StatusBadRequest
	case errors.Is(err, fan.ErrCurvesUnknown):
		status = fiber.StatusConflict
	case errors.Is(err, fan.ErrDeviceWrite):
		status = fiber.StatusBadGateway
	}
	return c.Status(status).JSON(fiber.Map{"error": err.Error()})
}

func badRequest(c *fiber.Ctx, msg string) error {
	return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": msg})
}

func (s *Server) model(c *fiber.Ctx) (view.Model, error) {
	ctx, cancel := context.WithTimeout(c.UserContext(), requestTimeout)
	defer cancel()
	return s.hub.Snapshot(ctx)
}

func fanID(c *fiber.Ctx) (int, error) {
	id, err := strconv.Atoi(c.Params("id"))
	if err != nil {
		return 0, errors.New("invalid fan ID")
	}
	return id, nil
}

// Fan endpoints
func (s *Server) getFans(c *fiber.Ctx) error {
	m, err := s.model(c)
	if err != nil {
		return errorResponse(c, err)
	}

	fans := make([]view.FanView, 0, len(m.Fans))
	for _, f := range m.Fans {
		fans = append(fans, f)
	}
	sort.Slice(fans, func(i, j int) bool { return fans[i].ID < fans[j].ID })

	return c.JSON(fiber.Map{
		"fans":       fans,
		"power_mode": m.PowerMode,
	})
}

func (s *Server) getFan(c *fiber.Ctx) error {
	id, err := fanID(c)
	if err != nil {
		return badRequest(c, err.Error())
	}

	m, err := s.model(c)
	if err != nil {
		return errorResponse(c, err)
	}
	f, ok := m.Fans[id]
	if !ok {
		return errorResponse(c, fan.ErrUnknownFan)
	}
	return c.JSON(f)
}

func (s *Server) setFanMode(c *fiber.Ctx) error {
	id, err := fanID(c)
	if err != nil {
		return badRequest(c, err.Error())
	}

	var req modeRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "Invalid request body")
	}
	mode, err := fan.ParseMode(req.Mode)
	if err != nil {
		return errorResponse(c, err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
	defer cancel()

	if err := s.controller.SetMode(ctx, id, mode); err != nil {
		return errorResponse(c, err)
	}
	return s.fanState(c, id)
}

func (s *Server) setFanLevel(c *fiber.Ctx) error {
	id, err := fanID(c)
	if err != nil {
		return badRequest(c, err.Error())
	}

	var req levelRequest
	if err := c.BodyParser(&req); err != nil || req.Level == nil {
		return badRequest(c, "Invalid request body")
	}

	ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
	defer cancel()

	if err := s.controller.SetLevel(ctx, id, *req.Level); err != nil {
		return errorResponse(c, err)
	}
	return s.fanState(c, id)
}

func (s *Server) editCurve(c *fiber.Ctx) error {
	id, err := fanID(c)
	if err != nil {
		return badRequest(c, err.Error())
	}
	kind, err := curve.ParseKind(c.Params("kind"))
	if err != nil {
		return badRequest(c, err.Error())
	}
	index, err := strconv.Atoi(c.Params("index"))
	if err != nil {
		return badRequest(c, "invalid curve point")
	}

	var req pointRequest
	if err := c.BodyParser(&req); err != nil || req.Value == nil {
		return badRequest(c, "Invalid request body")
	}

	edit, err := s.controller.EditCurve(id, kind, index, *req.Value)
	if err != nil {
		return errorResponse(c, err)
	}
	return c.JSON(edit)
}

func (s *Server) refreshCurves(c *fiber.Ctx) error {
	id, err := fanID(c)
	if err != nil {
		return badRequest(c, err.Error())
	}

	ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
	defer cancel()

	if err := s.controller.RefreshCurves(ctx, id); err != nil {
		if errors.Is(err, fan.ErrUnknownFan) {
			return errorResponse(c, err)
		}
		return c.Status(fiber.StatusBadGateway).JSON(fiber.Map{"error": err.Error()})
	}
	return s.fanState(c, id)
}

func (s *Server) fanState(c *fiber.Ctx, id int) error {
	st, err := s.controller.State(id)
	if err != nil {
		return errorResponse(c, err)
	}
	return c.JSON(st)
}

// Power mode endpoints
func (s *Server) getPowerMode(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"mode": s.controller.PowerMode()})
}

func (s *Server) setPowerMode(c *fiber.Ctx) error {
	var req modeRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "Invalid request body")
	}
	mode, err := fan.ParsePowerMode(req.Mode)
	if err != nil {
		return errorResponse(c, err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
	defer cancel()

	if err := s.controller.SetPowerMode(ctx, mode); err != nil {
		return errorResponse(c, err)
	}
	return c.JSON(fiber.Map{"mode": mode})
}

// Telemetry endpoints
func (s *Server) getTelemetry(c *fiber.Ctx) error {
	m, err := s.model(c)
	if err != nil {
		return errorResponse(c, err)
	}
	if m.Telemetry == nil {
		return c.SendStatus(fiber.StatusNoContent)
	}
	return c.JSON(m.Telemetry)
}

func (s *Server) getPollInterval(c *fiber.Ctx) error {
	presets := make([]string, len(telemetry.Presets))
	for i, p := range telemetry.Presets {
		presets[i] = p.String()
	}
	return c.JSON(fiber.Map{
		"interval": s.poller.Interval().String(),
		"presets":  presets,
	})
}

func (s *Server) setPollInterval(c *fiber.Ctx) error {
	var req intervalRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "Invalid request body")
	}
	d, err := time.ParseDuration(req.Interval)
	if err != nil {
		return badRequest(c, "invalid interval "+strconv.Quote(req.Interval))
	}
	if err := s.poller.SetInterval(d); err != nil {
		return badRequest(c, err.Error())
	}
	return c.JSON(fiber.Map{"interval": d.String()})
}

func (s *Server) getEvents(c *fiber.Ctx) error {
	m, err := s.model(c)
	if err != nil {
		return errorResponse(c, err)
	}
	return c.JSON(m.Events)
}
