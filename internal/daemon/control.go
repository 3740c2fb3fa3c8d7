package daemon

import (
	"context"
	"fmt"
	"net"
	"os"

	"github.com/matheus3301/wahub/internal/bus"
	"github.com/matheus3301/wahub/internal/supervisor"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// InstanceService names the health service that tracks one instance.
func InstanceService(id string) string {
	return "instance:" + id
}

// ControlServer serves gRPC health on the control Unix socket. The empty
// service reports the daemon; instance:<id> is SERVING while connected.
type ControlServer struct {
	grpcServer *grpc.Server
	health     *health.Server
	listener   net.Listener
	socketPath string
	bus        *bus.Bus
	logger     *zap.Logger

	unsub func()
	done  chan struct{}
}

// NewControlServer binds the control socket.
func NewControlServer(socketPath string, b *bus.Bus, logger *zap.Logger) (*ControlServer, error) {
	// Clean stale socket if it exists.
	if _, err := os.Stat(socketPath); err == nil {
		_ = os.Remove(socketPath)
	}

	listener, err := net.Listen("unix", socketPath)
	if err != nil {
		return nil, fmt.Errorf("listen unix socket: %w", err)
	}
	if err := os.Chmod(socketPath, 0600); err != nil {
		_ = listener.Close()
		return nil, fmt.Errorf("chmod socket: %w", err)
	}

	hs := health.NewServer()
	srv := grpc.NewServer()
	healthpb.RegisterHealthServer(srv, hs)

	return &ControlServer{
		grpcServer: srv,
		health:     hs,
		listener:   listener,
		socketPath: socketPath,
		bus:        b,
		logger:     logger,
	}, nil
}

// Start follows instance status on the bus and serves in the background.
func (s *ControlServer) Start() {
	events, unsub := s.bus.Subscribe("instance:*", 256)
	s.unsub = unsub
	s.done = make(chan struct{})
	go func() {
		for {
			select {
			case <-s.done:
				return
			case evt := <-events:
				s.track(evt)
			}
		}
	}()

	s.health.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
	s.logger.Info("control server starting", zap.String("socket", s.socketPath))
	go func() {
		if err := s.grpcServer.Serve(s.listener); err != nil {
			s.logger.Error("control server error", zap.Error(err))
		}
	}()
}

func (s *ControlServer) track(evt bus.Event) {
	switch p := evt.Payload.(type) {
	case supervisor.StatusPayload:
		st := healthpb.HealthCheckResponse_NOT_SERVING
		if p.Status == "connected" {
			st = healthpb.HealthCheckResponse_SERVING
		}
		s.health.SetServingStatus(InstanceService(p.InstanceID), st)
	case supervisor.InstancePayload:
		if evt.Name == supervisor.EventInstanceDeleted {
			s.health.SetServingStatus(InstanceService(p.InstanceID), healthpb.HealthCheckResponse_SERVICE_UNKNOWN)
		}
	}
}

// Stop marks every service as not serving, shuts down gracefully and removes
// the socket file.
func (s *ControlServer) Stop(_ context.Context) {
	s.logger.Info("control server stopping")
	s.health.Shutdown()
	if s.unsub != nil {
		s.unsub()
		close(s.done)
	}
	s.grpcServer.GracefulStop()
	_ = os.Remove(s.socketPath)
}
