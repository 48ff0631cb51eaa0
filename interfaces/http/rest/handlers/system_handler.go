package handlers

import (
	"net/http"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"nildb/application/services"
	"nildb/pkg/common"
	"nildb/pkg/errors"
)

// SystemHandler serves the node's operational surface: health, about,
// maintenance control, and the runtime log level.
type SystemHandler struct {
	service  *services.SystemService
	logLevel zap.AtomicLevel
	logger   *zap.Logger
}

func NewSystemHandler(service *services.SystemService, logLevel zap.AtomicLevel, logger *zap.Logger) *SystemHandler {
	return &SystemHandler{service: service, logLevel: logLevel, logger: logger}
}

type setLogLevelRequest struct {
	Level string `json:"level" validate:"required,oneof=debug info warn error"`
}

type logLevelResponse struct {
	Level string `json:"level"`
}

// Health is the liveness endpoint.
func (h *SystemHandler) Health(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("OK"))
}

// About returns the node-info snapshot.
func (h *SystemHandler) About(w http.ResponseWriter, r *http.Request) {
	info, err := h.service.About(r.Context())
	if err != nil {
		common.Fail(w, err)
		return
	}
	common.OK(w, info)
}

// StartMaintenance opens the maintenance window.
func (h *SystemHandler) StartMaintenance(w http.ResponseWriter, r *http.Request) {
	if err := h.service.StartMaintenance(r.Context()); err != nil {
		common.Fail(w, err)
		return
	}
	common.NoContent(w)
}

// StopMaintenance closes the maintenance window.
func (h *SystemHandler) StopMaintenance(w http.ResponseWriter, r *http.Request) {
	if err := h.service.StopMaintenance(r.Context()); err != nil {
		common.Fail(w, err)
		return
	}
	common.NoContent(w)
}

// LogLevel returns the current process log level.
func (h *SystemHandler) LogLevel(w http.ResponseWriter, r *http.Request) {
	common.OK(w, logLevelResponse{Level: h.logLevel.Level().String()})
}

// SetLogLevel changes the process log level at runtime.
func (h *SystemHandler) SetLogLevel(w http.ResponseWriter, r *http.Request) {
	var req setLogLevelRequest
	if err := decodeBody(r, &req); err != nil {
		common.Fail(w, err)
		return
	}

	var level zapcore.Level
	if err := level.UnmarshalText([]byte(req.Level)); err != nil {
		common.Fail(w, errors.Validation("unknown log level "+req.Level))
		return
	}
	h.logLevel.SetLevel(level)
	h.logger.Warn("log level changed", zap.String("level", level.String()))
	common.NoContent(w)
}
