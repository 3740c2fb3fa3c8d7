package hub

import (
	"context"
	"errors"

	"github.com/matheus3301/wahub/internal/bus"
	"github.com/matheus3301/wahub/internal/supervisor"
	"go.uber.org/zap"
)

// handle dispatches one inbound frame.
func (h *Hub) handle(c *client, f Frame) {
	log := h.logger.With(zap.String("client", c.token), zap.String("event", f.Event))

	switch f.Event {
	case EventJoinInstanceRoom:
		var req instanceRequest
		if err := decode(f.Data, &req); err != nil || req.InstanceID == "" {
			h.reject(c, f, "instanceId is required")
			return
		}
		room := bus.InstanceRoom(req.InstanceID)
		c.join(room)
		h.monitor("join", c.token, room, "joined instance room")
		h.ack(c, f, AckResult{Success: true, Room: room})

	case EventJoinRoom:
		var req roomRequest
		if err := decode(f.Data, &req); err != nil || req.RoomName == "" {
			h.reject(c, f, "roomName is required")
			return
		}
		c.join(req.RoomName)
		h.monitor("join", c.token, req.RoomName, "joined room")
		h.ack(c, f, AckResult{Success: true, Room: req.RoomName})

	case EventLeaveRoom:
		var req roomRequest
		if err := decode(f.Data, &req); err != nil || req.RoomName == "" {
			h.reject(c, f, "roomName is required")
			return
		}
		left := c.leave(req.RoomName)
		if left {
			h.monitor("leave", c.token, req.RoomName, "left room")
		}
		h.ack(c, f, AckResult{Success: left, Room: req.RoomName})

	case EventJoinMonitorRoom:
		c.join(bus.DiagnosticsRoom)
		h.monitor("join", c.token, bus.DiagnosticsRoom, "joined monitor room")
		h.ack(c, f, AckResult{Success: true, Room: bus.DiagnosticsRoom})

	case EventCreateInstance:
		var req instanceRequest
		if err := decode(f.Data, &req); err != nil || req.InstanceID == "" {
			c.send(Frame{Event: EventCreationError, Data: supervisor.CreationErrorPayload{Error: "instanceId is required"}})
			return
		}
		c.join(bus.InstanceRoom(req.InstanceID))
		ctx, cancel := context.WithTimeout(h.ctx, opTimeout)
		defer cancel()
		err := h.ctrl.Create(ctx, req.InstanceID, c.token)
		switch {
		case err == nil:
			h.ack(c, f, AckResult{Success: true, Room: bus.InstanceRoom(req.InstanceID)})
		case errors.Is(err, supervisor.ErrAlreadyActive):
			// The requester already got instance_creation_error on its own room.
			h.ack(c, f, AckResult{Message: err.Error()})
		default:
			log.Warn("create instance failed", zap.String("instance", req.InstanceID), zap.Error(err))
			c.send(Frame{Event: EventCreationError, Data: supervisor.CreationErrorPayload{InstanceID: req.InstanceID, Error: err.Error()}})
			h.ack(c, f, AckResult{Message: err.Error()})
		}

	case EventListInstances:
		list, err := h.ctrl.List()
		if err != nil {
			log.Error("list instances failed", zap.Error(err))
			h.reject(c, f, "failed to list instances")
			return
		}
		c.send(Frame{Event: EventInstancesList, Data: list, Ack: f.Ack})

	case EventDeleteInstance:
		var req instanceRequest
		if err := decode(f.Data, &req); err != nil || req.InstanceID == "" {
			h.reject(c, f, "instanceId is required")
			return
		}
		ctx, cancel := context.WithTimeout(h.ctx, opTimeout)
		defer cancel()
		if err := h.ctrl.DeletePermanently(ctx, req.InstanceID); err != nil {
			log.Warn("delete instance failed", zap.String("instance", req.InstanceID), zap.Error(err))
			c.send(Frame{Event: EventDeletionError, Data: supervisor.CreationErrorPayload{InstanceID: req.InstanceID, Error: err.Error()}})
			h.ack(c, f, AckResult{Message: err.Error()})
			return
		}
		h.ack(c, f, AckResult{Success: true})

	default:
		log.Debug("unknown event")
		h.reject(c, f, "unknown event")
	}
}

// ack answers a frame that carried an ack id. Frames without one get no reply.
func (h *Hub) ack(c *client, f Frame, res AckResult) {
	if f.Ack == "" {
		return
	}
	c.send(Frame{Event: EventAck, Ack: f.Ack, Data: res})
}

func (h *Hub) reject(c *client, f Frame, msg string) {
	if f.Ack != "" {
		h.ack(c, f, AckResult{Message: msg})
		return
	}
	c.send(Frame{Event: EventInvalidRequest, Data: AckResult{Message: msg}})
}
