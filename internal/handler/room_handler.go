package handler

import (
	"context"
	"errors"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"gorm.io/datatypes"

	"github.com/Instaken/realtimechat-app/internal/dto"
	"github.com/Instaken/realtimechat-app/internal/middleware"
	"github.com/Instaken/realtimechat-app/internal/models"
	"github.com/Instaken/realtimechat-app/internal/repository"
	"github.com/Instaken/realtimechat-app/internal/service"
	"github.com/Instaken/realtimechat-app/internal/utils"
)

// RoomHandler wires room endpoints including the websocket upgrade.
type RoomHandler struct {
	rooms      repository.RoomRepository
	service    service.RoomService
	moderation service.ModerationService
	validator  *validator.Validate
	logger     zerolog.Logger
	capacity   int
	retention  int
}

// RoomHandlerConfig carries defaults applied to new rooms.
type RoomHandlerConfig struct {
	DefaultCapacity  int
	DefaultRetention int
}

// NewRoomHandler creates a room handler instance.
func NewRoomHandler(rooms repository.RoomRepository, svc service.RoomService, moderation service.ModerationService, validate *validator.Validate, cfg RoomHandlerConfig, logger zerolog.Logger) *RoomHandler {
	return &RoomHandler{
		rooms:      rooms,
		service:    svc,
		moderation: moderation,
		validator:  validate,
		logger:     logger.With().Str("component", "room_handler").Logger(),
		capacity:   cfg.DefaultCapacity,
		retention:  cfg.DefaultRetention,
	}
}

// Register binds the room routes under the provided router group.
func (h *RoomHandler) Register(router fiber.Router) {
	router.Post("/", h.create)
	router.Get("/", h.list)
	router.Get("/slug/:slug", h.getBySlug)
	router.Get("/:roomId", h.get)
	router.Get("/:roomId/messages", h.history)
	router.Get("/:roomId/participants", h.participants)
	router.Patch("/:roomId/participants/:userId/mute", h.moderate("mute"))
	router.Patch("/:roomId/participants/:userId/unmute", h.moderate("unmute"))
	router.Patch("/:roomId/participants/:userId/ban", h.moderate("ban"))
	router.Patch("/:roomId/participants/:userId/unban", h.moderate("unban"))
	router.Patch("/:roomId/moderator", h.setModerator)
}

// RegisterWebsocket binds the realtime channel under the provided group.
func (h *RoomHandler) RegisterWebsocket(router fiber.Router) {
	router.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			ctx := c.UserContext()
			if ctx == nil {
				ctx = context.Background()
			}
			ctx = middleware.ContextWithCorrelation(ctx, middleware.GetCorrelationID(c))
			c.Locals("request_ctx", ctx)
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})

	router.Get("/ws", websocket.New(h.handleConnection))
}

func (h *RoomHandler) handleConnection(conn *websocket.Conn) {
	userID := localString(conn.Locals(middleware.LocalUserID))
	if userID == "" {
		_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(fiber.StatusUnauthorized, "user id missing"))
		_ = conn.Close()
		return
	}

	username := localString(conn.Locals(middleware.LocalUsername))
	correlation := localString(conn.Locals("correlation_id"))
	baseCtx, _ := conn.Locals("request_ctx").(context.Context)

	opts := service.ConnectionOptions{
		UserID:        userID,
		Username:      username,
		CorrelationID: correlation,
		Context:       baseCtx,
	}

	h.logger.Info().Str("user_id", userID).Msg("room channel connected")
	h.service.ServeConnection(conn, opts)
	h.logger.Info().Str("user_id", userID).Msg("room channel disconnected")
}

func (h *RoomHandler) create(c *fiber.Ctx) error {
	var req dto.RoomCreateRequest
	if err := c.BodyParser(&req); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid request body")
	}
	if err := h.validator.Struct(req); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	capacity := req.Capacity
	if capacity == 0 {
		capacity = h.capacity
	}
	retention := req.RetentionDays
	if retention == 0 {
		retention = h.retention
	}
	typing := true
	if req.TypingIndicators != nil {
		typing = *req.TypingIndicators
	}

	room := models.Room{
		ID:               uuid.NewString(),
		Name:             req.Name,
		Slug:             req.Slug,
		Capacity:         capacity,
		RetentionDays:    retention,
		TypingIndicators: typing,
	}
	if len(req.Theme) > 0 {
		room.Theme = make(datatypes.JSONMap, len(req.Theme))
		for key, value := range req.Theme {
			room.Theme[key] = value
		}
	}

	ctx := h.requestContext(c)
	if err := h.rooms.Create(ctx, &room); err != nil {
		requestLogger(h.logger, c).Error().Err(err).Msg("room creation failed")
		return utils.SendError(c, fiber.StatusInternalServerError, "failed to create room")
	}

	// The creator owns the room.
	owner := models.RoomParticipant{
		RoomID:   room.ID,
		UserID:   middleware.UserID(c),
		Username: middleware.Username(c),
		Role:     models.RoleOwner,
		Status:   models.StatusActive,
	}
	if err := h.rooms.UpsertParticipant(ctx, &owner); err != nil {
		requestLogger(h.logger, c).Error().Err(err).Msg("owner membership failed")
		return utils.SendError(c, fiber.StatusInternalServerError, "failed to create room")
	}

	return utils.SendSuccessWithStatus(c, fiber.StatusCreated, "room created", dto.NewRoomResponse(room))
}

func (h *RoomHandler) list(c *fiber.Ctx) error {
	ctx := h.requestContext(c)
	rooms, err := h.rooms.List(ctx)
	if err != nil {
		requestLogger(h.logger, c).Error().Err(err).Msg("room list failed")
		return utils.SendError(c, fiber.StatusInternalServerError, "failed to list rooms")
	}

	items := make([]dto.RoomListItem, 0, len(rooms))
	for _, room := range rooms {
		items = append(items, dto.RoomListItem{
			RoomResponse: dto.NewRoomResponse(room),
			LastMessage:  h.service.LastMessage(ctx, room.ID),
		})
	}
	return utils.SendSuccess(c, "rooms", items)
}

// getBySlug resolves a room by its slug, the identifier the embeddable
// widget is configured with.
func (h *RoomHandler) getBySlug(c *fiber.Ctx) error {
	slug := c.Params("slug")
	room, err := h.rooms.GetBySlug(h.requestContext(c), slug)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return utils.SendError(c, fiber.StatusNotFound, "room not found")
		}
		requestLogger(h.logger, c).Error().Err(err).Msg("room lookup failed")
		return utils.SendError(c, fiber.StatusInternalServerError, "failed to load room")
	}
	return utils.SendSuccess(c, "room", dto.NewRoomResponse(room))
}

func (h *RoomHandler) get(c *fiber.Ctx) error {
	roomID := c.Params("roomId")
	room, err := h.rooms.Get(h.requestContext(c), roomID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return utils.SendError(c, fiber.StatusNotFound, "room not found")
		}
		requestLogger(h.logger, c).Error().Err(err).Msg("room lookup failed")
		return utils.SendError(c, fiber.StatusInternalServerError, "failed to load room")
	}
	return utils.SendSuccess(c, "room", dto.NewRoomResponse(room))
}

func (h *RoomHandler) history(c *fiber.Ctx) error {
	roomID := c.Params("roomId")

	var beforePtr *time.Time
	if before := c.Query("before"); before != "" {
		parsed, err := time.Parse(time.RFC3339, before)
		if err != nil {
			return utils.SendError(c, fiber.StatusBadRequest, "invalid before timestamp")
		}
		beforePtr = &parsed
	}

	limit, err := parseQueryInt(c, "limit")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid limit")
	}

	query := dto.HistoryQuery{
		RoomID: roomID,
		Before: beforePtr,
		Limit:  limit,
	}

	messages, err := h.service.History(h.requestContext(c), query)
	if err != nil {
		if isValidationError(err) {
			return utils.SendError(c, fiber.StatusBadRequest, err.Error())
		}
		requestLogger(h.logger, c).Error().Err(err).Msg("history load failed")
		return utils.SendError(c, fiber.StatusInternalServerError, "failed to load history")
	}

	return utils.SendSuccess(c, "room history", messages)
}

func (h *RoomHandler) participants(c *fiber.Ctx) error {
	roomID := c.Params("roomId")
	participants, err := h.rooms.Participants(h.requestContext(c), roomID)
	if err != nil {
		requestLogger(h.logger, c).Error().Err(err).Msg("participant list failed")
		return utils.SendError(c, fiber.StatusInternalServerError, "failed to load participants")
	}
	return utils.SendSuccess(c, "room participants", dto.NewParticipantResponseSlice(participants))
}

func (h *RoomHandler) moderate(action string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		roomID := c.Params("roomId")
		targetID := c.Params("userId")
		actorID := middleware.UserID(c)

		var err error
		ctx := h.requestContext(c)
		switch action {
		case "mute":
			err = h.moderation.Mute(ctx, roomID, actorID, targetID)
		case "unmute":
			err = h.moderation.Unmute(ctx, roomID, actorID, targetID)
		case "ban":
			err = h.moderation.Ban(ctx, roomID, actorID, targetID)
		case "unban":
			err = h.moderation.Unban(ctx, roomID, actorID, targetID)
		}
		if err != nil {
			return h.moderationError(c, err)
		}

		return utils.SendSuccess(c, "participant updated", nil)
	}
}

func (h *RoomHandler) setModerator(c *fiber.Ctx) error {
	roomID := c.Params("roomId")

	var req dto.ModeratorUpdateRequest
	if err := c.BodyParser(&req); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid request body")
	}
	if err := h.validator.Struct(req); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	err := h.moderation.SetModerator(h.requestContext(c), roomID, middleware.UserID(c), req.UserID, req.IsModerator)
	if err != nil {
		return h.moderationError(c, err)
	}

	return utils.SendSuccess(c, "moderator role updated", nil)
}

func (h *RoomHandler) moderationError(c *fiber.Ctx, err error) error {
	switch {
	case errors.Is(err, service.ErrNotModerator), errors.Is(err, service.ErrNotOwner),
		errors.Is(err, service.ErrSelfTarget), errors.Is(err, service.ErrOwnerImmune):
		return utils.SendError(c, fiber.StatusForbidden, err.Error())
	case errors.Is(err, service.ErrTargetUnknown):
		return utils.SendError(c, fiber.StatusNotFound, err.Error())
	default:
		requestLogger(h.logger, c).Error().Err(err).Msg("moderation command failed")
		return utils.SendError(c, fiber.StatusInternalServerError, "moderation command failed")
	}
}

func (h *RoomHandler) requestContext(c *fiber.Ctx) context.Context {
	ctx := c.UserContext()
	if ctx == nil {
		ctx = context.Background()
	}
	return middleware.ContextWithCorrelation(ctx, middleware.GetCorrelationID(c))
}
