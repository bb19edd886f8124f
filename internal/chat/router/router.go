package router

import (
	"context"
	"strconv"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"

	chatapp "festival_chat_service/internal/chat/app"
	memberapp "festival_chat_service/internal/member/app"
	errprocess "festival_chat_service/pkg/err"
	"festival_chat_service/pkg/geo"
	"festival_chat_service/pkg/middlewares"
)

// Handlers 注入路由所需的 use case
type Handlers struct {
	Auth      memberapp.AuthUseCase
	Admission *chatapp.AdmissionUseCase
	Room      *chatapp.RoomUseCase
	Message   *chatapp.SendMessageUseCase
	Websocket *chatapp.ChatWebsocketHandler
}

// RegisterRoutes 注册相关的路由
func RegisterRoutes(r *fiber.App, h *Handlers) {
	r.Get("/health", func(c *fiber.Ctx) error {
		return c.SendString("ok")
	})

	auth := r.Group("/auth")
	auth.Post("/register", h.register)
	auth.Post("/login", h.login)
	auth.Post("/refresh", h.refresh)

	// 以下全部需要有效 JWT
	r.Use(middlewares.JWTMiddleware())

	r.Post("/auth/logout", h.logout)
	r.Post("/events/:eventID/location", h.reportLocation)
	r.Post("/rooms", h.createRoom)
	r.Get("/rooms/:roomID/messages", h.history)

	r.Get("/ws", websocket.New(func(c *websocket.Conn) {
		h.Websocket.HandleConnection(context.Background(), c)
	}))
}

type credentialsReq struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (h *Handlers) register(c *fiber.Ctx) error {
	var req credentialsReq
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid body"})
	}
	if err := h.Auth.Register(c.Context(), req.Email, req.Password); err != nil {
		return respondError(c, err)
	}
	return c.SendStatus(fiber.StatusCreated)
}

func (h *Handlers) login(c *fiber.Ctx) error {
	var req credentialsReq
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid body"})
	}
	pair, err := h.Auth.Login(c.Context(), req.Email, req.Password)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(pair)
}

func (h *Handlers) refresh(c *fiber.Ctx) error {
	var req struct {
		RefreshToken string `json:"refresh_token"`
	}
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid body"})
	}
	pair, err := h.Auth.Refresh(c.Context(), req.RefreshToken)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(pair)
}

func (h *Handlers) logout(c *fiber.Ctx) error {
	var req struct {
		RefreshToken string `json:"refresh_token"`
	}
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid body"})
	}
	accessToken := c.Query(middlewares.QueryToken)
	if accessToken == "" {
		accessToken = c.Cookies(middlewares.CookieToken)
	}
	if err := h.Auth.Logout(c.Context(), accessToken, req.RefreshToken); err != nil {
		return respondError(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

func (h *Handlers) reportLocation(c *fiber.Ctx) error {
	memberID, _ := c.Locals(middlewares.TokenMemberID).(string)

	var req struct {
		Lat float64 `json:"lat"`
		Lon float64 `json:"lon"`
	}
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid body"})
	}

	err := h.Admission.ReportLocation(c.Context(), memberID, c.Params("eventID"),
		geo.Point{Lat: req.Lat, Lon: req.Lon})
	if err != nil {
		return respondError(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

func (h *Handlers) createRoom(c *fiber.Ctx) error {
	memberID, _ := c.Locals(middlewares.TokenMemberID).(string)

	var req struct {
		EventID         string  `json:"event_id"`
		Title           string  `json:"title"`
		MaxParticipants int     `json:"max_participants"`
		RadiusKm        float64 `json:"radius_km"`
		Lat             float64 `json:"lat"`
		Lon             float64 `json:"lon"`
	}
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid body"})
	}

	room, err := h.Room.CreateRoom(c.Context(), req.EventID, memberID, req.Title,
		req.MaxParticipants, req.RadiusKm, geo.Point{Lat: req.Lat, Lon: req.Lon})
	if err != nil {
		return respondError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(room)
}

func (h *Handlers) history(c *fiber.Ctx) error {
	limit, err := strconv.ParseInt(c.Query("limit", "50"), 10, 64)
	if err != nil || limit <= 0 {
		limit = 50
	}
	msgs, err := h.Message.History(c.Context(), c.Params("roomID"), limit)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(msgs)
}

// respondError errprocess 的錯誤分類轉 HTTP status
func respondError(c *fiber.Ctx, err error) error {
	status := fiber.StatusInternalServerError
	switch errprocess.KindOf(err) {
	case errprocess.KindNotFound:
		status = fiber.StatusNotFound
	case errprocess.KindConflict:
		status = fiber.StatusConflict
	case errprocess.KindForbidden:
		status = fiber.StatusForbidden
	case errprocess.KindTransient:
		status = fiber.StatusServiceUnavailable
	}
	return c.Status(status).JSON(fiber.Map{"error": err.Error()})
}
