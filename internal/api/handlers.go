package api

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/matheus3301/wahub/internal/bus"
	"github.com/matheus3301/wahub/internal/hub"
	"github.com/matheus3301/wahub/internal/supervisor"
	"go.uber.org/zap"
)

const (
	defaultPageSize  = 100
	maxPageSize      = 500
	defaultEmitEvent = "new_server_data"
)

type createRequest struct {
	InstanceID string `json:"instanceId"`
}

type emitRequest struct {
	RoomName   string `json:"roomName"`
	EventName  string `json:"eventName"`
	DataToEmit any    `json:"dataToEmit"`
}

func (s *Server) listInstances(c echo.Context) error {
	list, err := s.ctrl.List()
	if err != nil {
		s.logger.Error("list instances failed", zap.Error(err))
		return fail(c, http.StatusInternalServerError, "LIST_FAILED", "failed to list instances", err)
	}
	return ok(c, http.StatusOK, list)
}

func (s *Server) createInstance(c echo.Context) error {
	var req createRequest
	if err := c.Bind(&req); err != nil {
		return fail(c, http.StatusBadRequest, "INVALID_REQUEST", "unable to parse request", err)
	}
	if req.InstanceID == "" {
		return fail(c, http.StatusBadRequest, "MISSING_FIELDS", "instanceId is required", nil)
	}

	err := s.ctrl.Create(c.Request().Context(), req.InstanceID, "")
	switch {
	case errors.Is(err, supervisor.ErrInvalidID):
		return fail(c, http.StatusBadRequest, "INVALID_ID", "invalid instance id", err)
	case errors.Is(err, supervisor.ErrAlreadyActive):
		return fail(c, http.StatusConflict, "ALREADY_ACTIVE", "instance already active", err)
	case err != nil:
		s.logger.Error("create instance failed", zap.String("instance", req.InstanceID), zap.Error(err))
		return fail(c, http.StatusInternalServerError, "CREATE_FAILED", "failed to create instance", err)
	}
	return ok(c, http.StatusCreated, createRequest{InstanceID: req.InstanceID})
}

func (s *Server) deleteInstance(c echo.Context) error {
	id := c.Param("id")
	err := s.ctrl.DeletePermanently(c.Request().Context(), id)
	switch {
	case errors.Is(err, supervisor.ErrInvalidID):
		return fail(c, http.StatusBadRequest, "INVALID_ID", "invalid instance id", err)
	case err != nil:
		s.logger.Error("delete instance failed", zap.String("instance", id), zap.Error(err))
		return fail(c, http.StatusInternalServerError, "DELETE_FAILED", "failed to delete instance", err)
	}
	return ok(c, http.StatusOK, createRequest{InstanceID: id})
}

func (s *Server) listContacts(c echo.Context) error {
	id := c.Param("id")
	if found, err := s.instanceExists(c, id); !found {
		return err
	}
	limit, offset, err := page(c)
	if err != nil {
		return fail(c, http.StatusBadRequest, "INVALID_QUERY", "invalid pagination", err)
	}
	contacts, err := s.db.ListContacts(id, limit, offset)
	if err != nil {
		return fail(c, http.StatusInternalServerError, "QUERY_FAILED", "failed to list contacts", err)
	}
	return ok(c, http.StatusOK, contacts)
}

func (s *Server) listChats(c echo.Context) error {
	id := c.Param("id")
	if found, err := s.instanceExists(c, id); !found {
		return err
	}
	limit, offset, err := page(c)
	if err != nil {
		return fail(c, http.StatusBadRequest, "INVALID_QUERY", "invalid pagination", err)
	}
	chats, err := s.db.ListChats(id, limit, offset)
	if err != nil {
		return fail(c, http.StatusInternalServerError, "QUERY_FAILED", "failed to list chats", err)
	}
	return ok(c, http.StatusOK, chats)
}

// listMessages pages backwards in time: before is an exclusive timestamp in
// milliseconds, 0 meaning newest.
func (s *Server) listMessages(c echo.Context) error {
	id := c.Param("id")
	if found, err := s.instanceExists(c, id); !found {
		return err
	}
	limit, _, err := page(c)
	if err != nil {
		return fail(c, http.StatusBadRequest, "INVALID_QUERY", "invalid pagination", err)
	}
	var before int64
	if v := c.QueryParam("before"); v != "" {
		if before, err = strconv.ParseInt(v, 10, 64); err != nil || before < 0 {
			return fail(c, http.StatusBadRequest, "INVALID_QUERY", "before must be a timestamp in milliseconds", err)
		}
	}
	msgs, err := s.db.ListMessages(id, c.Param("chatId"), before, limit)
	if err != nil {
		return fail(c, http.StatusInternalServerError, "QUERY_FAILED", "failed to list messages", err)
	}
	return ok(c, http.StatusOK, msgs)
}

// emit publishes an arbitrary payload into a room and records the outcome in
// the diagnostics room.
func (s *Server) emit(c echo.Context) error {
	var req emitRequest
	if err := c.Bind(&req); err != nil {
		s.diagnose("emit_error", "", "unable to parse emit request")
		return fail(c, http.StatusBadRequest, "INVALID_REQUEST", "unable to parse request", err)
	}
	if req.RoomName == "" {
		s.diagnose("emit_error", "", "emit request without roomName")
		return fail(c, http.StatusBadRequest, "MISSING_FIELDS", "roomName is required", nil)
	}
	if req.EventName == "" {
		req.EventName = defaultEmitEvent
	}

	s.bus.Emit(req.RoomName, req.EventName, req.DataToEmit)
	s.diagnose("emit", req.RoomName, "emitted "+req.EventName)
	s.logger.Info("event emitted", zap.String("room", req.RoomName), zap.String("event", req.EventName))
	return ok(c, http.StatusOK, map[string]string{"roomName": req.RoomName, "eventName": req.EventName})
}

func (s *Server) diagnose(typ, room, msg string) {
	s.bus.Emit(bus.DiagnosticsRoom, hub.EventMonitorUpdate, hub.MonitorEntry{
		Type:      typ,
		Room:      room,
		Message:   msg,
		Timestamp: time.Now(),
	})
}

// instanceExists writes a 404 (or 500) and reports false when the instance
// row is absent.
func (s *Server) instanceExists(c echo.Context, id string) (bool, error) {
	inst, err := s.db.GetInstance(id)
	if err != nil {
		return false, fail(c, http.StatusInternalServerError, "QUERY_FAILED", "failed to load instance", err)
	}
	if inst == nil {
		return false, fail(c, http.StatusNotFound, "NOT_FOUND", "instance not found", nil)
	}
	return true, nil
}

func page(c echo.Context) (limit, offset int, err error) {
	limit = defaultPageSize
	if v := c.QueryParam("limit"); v != "" {
		if limit, err = strconv.Atoi(v); err != nil || limit <= 0 {
			return 0, 0, errors.New("limit must be a positive integer")
		}
	}
	if limit > maxPageSize {
		limit = maxPageSize
	}
	if v := c.QueryParam("offset"); v != "" {
		if offset, err = strconv.Atoi(v); err != nil || offset < 0 {
			return 0, 0, errors.New("offset must be a non-negative integer")
		}
	}
	return limit, offset, nil
}
