package api

import (
	"context"
	"crypto/subtle"
	"errors"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/satriahrh/scribe/domain"
	"github.com/satriahrh/scribe/domain/entities"
	"github.com/satriahrh/scribe/domain/repositories"
	"github.com/satriahrh/scribe/internal/auth"
	"github.com/satriahrh/scribe/internal/websocket"
)

const claimsKey = "claims"

// TranscriptionSession is the session surface exposed over HTTP
type TranscriptionSession interface {
	Start(ctx context.Context) error
	Pause(ctx context.Context) error
	Resume(ctx context.Context) error
	Stop(ctx context.Context) error
	Status() entities.Snapshot
	Snapshot() entities.Snapshot
	Transcript(ctx context.Context) (string, error)
	ClearTranscript(ctx context.Context) error
	DeleteTranscript(ctx context.Context) error
	TranscriptPath() string
}

// Dependencies groups what the routes need
type Dependencies struct {
	Session TranscriptionSession
	Hub     *websocket.Hub
	Devices repositories.DeviceRepository
	STT     repositories.SpeechToText
	Issuer  *auth.Issuer
	// APIKey enables operator tokens when set
	APIKey   string
	TokenTTL time.Duration
	// Metrics is served on /metrics when set
	Metrics http.Handler
	// MCP is served on /mcp for operators when set
	MCP    http.Handler
	Logger *zap.Logger
}

type handler struct {
	Dependencies
}

// InitRoutes initializes all API routes
func InitRoutes(e *echo.Echo, deps Dependencies) {
	h := &handler{Dependencies: deps}

	e.GET("/health", h.health)
	if deps.Metrics != nil {
		e.GET("/metrics", echo.WrapHandler(deps.Metrics))
	}

	// API v1 routes
	v1 := e.Group("/api/v1")

	v1.POST("/device/auth", h.deviceAuth)
	v1.POST("/auth/token", h.operatorAuth)

	session := v1.Group("/session", h.requireRole(auth.RoleOperator))
	session.POST("/start", h.startSession)
	session.POST("/pause", h.pauseSession)
	session.POST("/resume", h.resumeSession)
	session.POST("/stop", h.stopSession)
	session.GET("/status", h.sessionStatus)

	transcript := v1.Group("/transcript", h.requireRole(auth.RoleOperator))
	transcript.GET("", h.getTranscript)
	transcript.DELETE("", h.clearTranscript)
	transcript.GET("/path", h.transcriptPath)
	transcript.DELETE("/file", h.deleteTranscript)

	if deps.MCP != nil {
		e.Any("/mcp", echo.WrapHandler(deps.MCP), h.requireRole(auth.RoleOperator))
	}

	// WebSocket endpoint with JWT validation
	e.GET("/ws", h.websocketWithAuth, h.requireRole(auth.RoleDevice, auth.RoleOperator))
}

func (h *handler) health(c echo.Context) error {
	resp := HealthResponse{
		Status:          "ok",
		Service:         "scribe",
		SessionRunning:  h.Session.Snapshot().IsRunning,
		DeviceConnected: h.Hub != nil && h.Hub.DeviceConnected(),
	}

	if c.QueryParam("deep") != "" && h.STT != nil {
		ctx, cancel := context.WithTimeout(c.Request().Context(), 10*time.Second)
		defer cancel()
		if err := h.STT.HealthCheck(ctx); err != nil {
			h.Logger.Warn("Speech-to-text health check failed", zap.Error(err))
			resp.Status = "degraded"
			resp.SpeechToText = err.Error()
			return c.JSON(http.StatusServiceUnavailable, resp)
		}
		resp.SpeechToText = "ok"
	}
	return c.JSON(http.StatusOK, resp)
}

func (h *handler) deviceAuth(c echo.Context) error {
	var req DeviceAuthRequest

	if err := c.Bind(&req); err != nil {
		h.Logger.Error("Failed to bind device auth request", zap.Error(err))
		return c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "invalid_request",
			Message: "Invalid request format",
		})
	}

	if req.SerialNumber == "" || req.SecretKey == "" {
		return c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "missing_fields",
			Message: "Serial number and secret key are required",
		})
	}

	device, err := h.Devices.ValidateDevice(req.SerialNumber, req.SecretKey)
	if err != nil {
		h.Logger.Warn("Device authentication failed",
			zap.String("serial_number", req.SerialNumber),
			zap.Error(err))
		return c.JSON(http.StatusUnauthorized, ErrorResponse{
			Error:   "authentication_failed",
			Message: "Invalid device credentials",
		})
	}

	token, err := h.Issuer.GenerateDeviceToken(device.ID)
	if err != nil {
		h.Logger.Error("Failed to generate device token",
			zap.String("device_id", device.ID),
			zap.Error(err))
		return c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error:   "token_generation_failed",
			Message: "Failed to generate authentication token",
		})
	}

	h.Logger.Info("Device authenticated successfully",
		zap.String("device_id", device.ID),
		zap.String("serial_number", device.SerialNumber))

	return c.JSON(http.StatusOK, DeviceAuthResponse{
		Token:     token,
		ExpiresAt: time.Now().Add(h.TokenTTL),
		DeviceID:  device.ID,
	})
}

func (h *handler) operatorAuth(c echo.Context) error {
	if h.APIKey == "" {
		return c.JSON(http.StatusNotFound, ErrorResponse{
			Error:   "operator_auth_disabled",
			Message: "No API key is configured",
		})
	}

	var req OperatorAuthRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "invalid_request",
			Message: "Invalid request format",
		})
	}

	if subtle.ConstantTimeCompare([]byte(req.APIKey), []byte(h.APIKey)) != 1 {
		h.Logger.Warn("Operator authentication failed")
		return c.JSON(http.StatusUnauthorized, ErrorResponse{
			Error:   "authentication_failed",
			Message: "Invalid API key",
		})
	}

	operatorID := req.OperatorID
	if operatorID == "" {
		operatorID = "operator"
	}
	token, err := h.Issuer.GenerateOperatorToken(operatorID)
	if err != nil {
		h.Logger.Error("Failed to generate operator token", zap.Error(err))
		return c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error:   "token_generation_failed",
			Message: "Failed to generate authentication token",
		})
	}

	return c.JSON(http.StatusOK, OperatorAuthResponse{
		Token:      token,
		ExpiresAt:  time.Now().Add(h.TokenTTL),
		OperatorID: operatorID,
	})
}

// requireRole validates the bearer token, or the token query parameter for
// WebSocket clients that cannot set headers, and checks its role.
func (h *handler) requireRole(roles ...string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			token, ok := auth.BearerToken(c.Request().Header.Get(echo.HeaderAuthorization))
			if !ok {
				token = c.QueryParam("token")
			}
			if token == "" {
				h.Logger.Warn("Request rejected: missing token", zap.String("path", c.Path()))
				return c.JSON(http.StatusUnauthorized, ErrorResponse{
					Error:   "missing_token",
					Message: "JWT token is required",
				})
			}

			claims, err := h.Issuer.ValidateToken(token)
			if err != nil {
				h.Logger.Warn("Request rejected: invalid token", zap.Error(err))
				return c.JSON(http.StatusUnauthorized, ErrorResponse{
					Error:   "invalid_token",
					Message: "Invalid or expired JWT token",
				})
			}

			for _, role := range roles {
				if claims.Role == role {
					c.Set(claimsKey, claims)
					return next(c)
				}
			}

			h.Logger.Warn("Request rejected: invalid role", zap.String("role", claims.Role))
			return c.JSON(http.StatusForbidden, ErrorResponse{
				Error:   "invalid_role",
				Message: "Token role is not allowed here",
			})
		}
	}
}

// websocketWithAuth upgrades a connection that passed requireRole
func (h *handler) websocketWithAuth(c echo.Context) error {
	claims, _ := c.Get(claimsKey).(*auth.JWTClaims)
	if claims == nil || claims.Subject() == "" {
		h.Logger.Error("WebSocket connection rejected: missing subject in token")
		return c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "invalid_token_claims",
			Message: "Subject not found in token",
		})
	}

	h.Logger.Info("WebSocket connection authenticated",
		zap.String("subject", claims.Subject()),
		zap.String("role", claims.Role))

	return websocket.HandleWebSocketWithAuth(h.Hub, c, claims)
}

// sessionError maps session errors to HTTP responses
func (h *handler) sessionError(c echo.Context, err error) error {
	status, code := http.StatusInternalServerError, "internal_error"
	switch {
	case errors.Is(err, domain.ErrAlreadyRunning):
		status, code = http.StatusConflict, "already_running"
	case errors.Is(err, domain.ErrNotRunning):
		status, code = http.StatusConflict, "not_running"
	case errors.Is(err, domain.ErrAlreadyPaused):
		status, code = http.StatusConflict, "already_paused"
	case errors.Is(err, domain.ErrNotPaused):
		status, code = http.StatusConflict, "not_paused"
	case errors.Is(err, domain.ErrInvalidCredentials):
		status, code = http.StatusUnauthorized, "invalid_credentials"
	case errors.Is(err, domain.ErrAudioSourceFailed):
		status, code = http.StatusBadGateway, "audio_source_failed"
	}

	if status == http.StatusInternalServerError {
		h.Logger.Error("Session operation failed", zap.String("path", c.Path()), zap.Error(err))
	}
	return c.JSON(status, ErrorResponse{Error: code, Message: err.Error()})
}
