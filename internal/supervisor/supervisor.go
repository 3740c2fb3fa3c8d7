// Package supervisor owns the live protocol sessions: it creates and destroys
// them, drives each instance's status machine, and decides between reconnect
// and permanent deletion when a session closes.
package supervisor

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/matheus3301/wahub/internal/bus"
	"github.com/matheus3301/wahub/internal/fanout"
	"github.com/matheus3301/wahub/internal/media"
	"github.com/matheus3301/wahub/internal/paths"
	"github.com/matheus3301/wahub/internal/registry"
	"github.com/matheus3301/wahub/internal/status"
	"github.com/matheus3301/wahub/internal/store"
	"github.com/matheus3301/wahub/internal/wa"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const logoutTimeout = 10 * time.Second

// Session is one protocol session handle as the supervisor uses it.
type Session interface {
	Start(ctx context.Context) error
	Events() <-chan wa.Event
	Close()
	Logout(ctx context.Context) error
	Self() (wa.Identity, bool)
	ProfilePictureURL(ctx context.Context, jid string) (string, error)
	DownloadMedia(ctx context.Context, msg wa.Message) ([]byte, error)
}

// SessionFactory builds a session bound to the instance's credential store.
type SessionFactory func(ctx context.Context, id string) (Session, error)

// Options holds the supervisor timings.
type Options struct {
	ReconnectDelay    time.Duration
	ProfileDelay      time.Duration
	ProfileRetryDelay time.Duration
}

// InstanceView is the instance read model plus whether it is live here.
type InstanceView struct {
	store.InstanceSummary
	Active bool `json:"active"`
}

type entry struct {
	id        string
	requester string
	session   Session
	machine   *status.Machine
	cancel    context.CancelFunc
}

type pendingReconnect struct {
	timer     *time.Timer
	requester string
}

// Supervisor manages every instance in this process.
type Supervisor struct {
	db      *store.DB
	bus     *bus.Bus
	fanout  *fanout.Fanout
	media   *media.Store
	layout  paths.Layout
	factory SessionFactory
	opts    Options
	logger  *zap.Logger

	registry *registry.Registry[*entry]

	// ops serializes create, teardown and delete of one id so a check and
	// its registry mutation never interleave. gate orders registry inserts
	// against Shutdown.
	ops     *keyedMutex
	gate    sync.RWMutex
	closed  atomic.Bool
	mu      sync.Mutex
	pending map[string]*pendingReconnect

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates a supervisor. Nothing runs until Create or Restore is called.
func New(db *store.DB, b *bus.Bus, f *fanout.Fanout, m *media.Store, layout paths.Layout,
	factory SessionFactory, opts Options, logger *zap.Logger) *Supervisor {
	if logger == nil {
		logger = zap.NewNop()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Supervisor{
		db:       db,
		bus:      b,
		fanout:   f,
		media:    m,
		layout:   layout,
		factory:  factory,
		opts:     opts,
		logger:   logger,
		registry: registry.New[*entry](),
		ops:      newKeyedMutex(),
		pending:  make(map[string]*pendingReconnect),
		ctx:      ctx,
		cancel:   cancel,
	}
}

// Create starts an instance on behalf of a requester and broadcasts
// instance_created. requester may be empty; when set, the pairing challenge
// and any creation error are also delivered to that client's room.
func (s *Supervisor) Create(ctx context.Context, id, requester string) error {
	if err := s.start(ctx, id, requester); err != nil {
		return err
	}
	s.bus.Emit(bus.BroadcastRoom, EventInstanceCreated, InstancePayload{InstanceID: id})
	return nil
}

// start is the create transition shared by requests, restore and reconnect.
func (s *Supervisor) start(ctx context.Context, id, requester string) error {
	if err := paths.ValidateID(id); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidID, err)
	}

	s.ops.Lock(id)
	defer s.ops.Unlock(id)
	return s.startLocked(ctx, id, requester)
}

// startLocked runs with the id's op lock held.
func (s *Supervisor) startLocked(ctx context.Context, id, requester string) error {
	s.gate.RLock()
	defer s.gate.RUnlock()
	if s.closed.Load() {
		return ErrClosed
	}
	// An explicit create supersedes a reconnect waiting for its delay.
	s.cancelReconnect(id)

	if s.registry.Has(id) {
		err := &AlreadyActiveError{ID: id}
		if requester != "" {
			s.bus.Emit(bus.ClientRoom(requester), EventCreationError, CreationErrorPayload{InstanceID: id, Error: err.Error()})
		}
		return err
	}

	created, err := s.db.EnsureInstance(id)
	if err != nil {
		return err
	}
	if err := s.layout.EnsureAuthDir(id); err != nil {
		return fmt.Errorf("create auth dir: %w", err)
	}
	sess, err := s.factory(ctx, id)
	if err != nil {
		return fmt.Errorf("create session %s: %w", id, err)
	}

	runCtx, cancel := context.WithCancel(s.ctx)
	e := &entry{
		id:        id,
		requester: requester,
		session:   sess,
		machine:   status.NewMachine(id),
		cancel:    cancel,
	}
	s.registry.Add(id, e)
	s.persist(e, StatusPayload{Status: string(status.Init)})

	s.logger.Info("instance started", zap.String("instance", id), zap.Bool("new_row", created))

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.run(runCtx, e)
	}()
	return nil
}

// run connects the session and consumes its events in emission order until
// the session closes or the entry is torn down.
func (s *Supervisor) run(ctx context.Context, e *entry) {
	log := s.logger.With(zap.String("instance", e.id))

	if err := e.session.Start(ctx); err != nil {
		if ctx.Err() != nil {
			return
		}
		log.Warn("session start failed", zap.Error(err))
		s.handleClose(e, wa.ConnectionUpdate{State: wa.StateClose, Reason: wa.ReasonConnectionLost, Detail: err.Error()})
		return
	}

	events := e.session.Events()
	for {
		select {
		case <-ctx.Done():
			return
		case evt, ok := <-events:
			if !ok {
				return
			}
			if stop := s.dispatch(ctx, e, evt); stop {
				return
			}
		}
	}
}

// dispatch handles one event. A panic here is contained to this event,
// except that a panic while handling a close still ends the run loop.
func (s *Supervisor) dispatch(ctx context.Context, e *entry, evt wa.Event) (stop bool) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("event handler panicked",
				zap.String("instance", e.id),
				zap.String("event", fmt.Sprintf("%T", evt)),
				zap.Any("panic", r))
			cu, isConn := evt.(wa.ConnectionUpdate)
			stop = isConn && cu.State == wa.StateClose
			if stop {
				s.registry.DeleteIf(e.id, func(cur *entry) bool { return cur == e })
				e.cancel()
			}
		}
	}()

	switch evt := evt.(type) {
	case wa.ConnectionUpdate:
		return s.handleConnection(ctx, e, evt)
	case wa.CredentialsUpdate:
		s.logger.Info("credentials stored", zap.String("instance", e.id), zap.String("jid", evt.JID))
	default:
		s.fanout.Handle(ctx, e.id, e.session, evt)
	}
	return false
}

func (s *Supervisor) handleConnection(ctx context.Context, e *entry, evt wa.ConnectionUpdate) bool {
	switch {
	case evt.QR != "":
		s.handleQR(e, evt.QR)
	case evt.State == wa.StateOpen:
		if s.transition(e, status.Connected) {
			s.persist(e, StatusPayload{Status: string(status.Connected), Connection: string(wa.StateOpen)})
			s.wg.Add(1)
			go func() {
				defer s.wg.Done()
				s.syncProfile(ctx, e)
			}()
		}
	case evt.State == wa.StateClose:
		s.handleClose(e, evt)
		return true
	default:
		s.logger.Debug("connection update", zap.String("instance", e.id), zap.String("state", string(evt.State)))
	}
	return false
}

// handleQR renders every challenge afresh since challenges rotate.
func (s *Supervisor) handleQR(e *entry, code string) {
	if !s.transition(e, status.QR) {
		return
	}
	dataURL, err := renderQR(code)
	if err != nil {
		s.logger.Error("failed to render pairing challenge", zap.String("instance", e.id), zap.Error(err))
	}
	s.persist(e, StatusPayload{Status: string(status.QR), QRDataURL: dataURL})

	qr := QRPayload{InstanceID: e.id, QRDataURL: dataURL}
	s.bus.Emit(bus.InstanceRoom(e.id), EventQRCode, qr)
	if e.requester != "" {
		s.bus.Emit(bus.ClientRoom(e.requester), EventQRCode, qr)
	}
}

// handleClose applies the reconnect policy for a closed session.
func (s *Supervisor) handleClose(e *entry, evt wa.ConnectionUpdate) {
	kind := evt.Reason.Kind()
	s.logger.Warn("session closed",
		zap.String("instance", e.id),
		zap.String("reason", string(evt.Reason)),
		zap.String("kind", kind.String()),
		zap.String("detail", evt.Detail))

	if kind == wa.Terminal {
		ctx, cancel := context.WithTimeout(context.Background(), logoutTimeout)
		defer cancel()
		if err := s.DeletePermanently(ctx, e.id); err != nil {
			s.logger.Error("permanent deletion failed", zap.String("instance", e.id), zap.Error(err))
		}
		return
	}

	s.ops.Lock(e.id)
	defer s.ops.Unlock(e.id)

	// A concurrent delete or shutdown already owns this entry.
	if !s.registry.DeleteIf(e.id, func(cur *entry) bool { return cur == e }) {
		return
	}
	if s.transition(e, status.Disconnected) {
		s.persist(e, StatusPayload{
			Status:     string(status.Disconnected),
			Connection: string(wa.StateClose),
			Reason:     string(evt.Reason),
		})
	}
	e.session.Close()
	e.cancel()

	if kind == wa.Recoverable {
		s.scheduleReconnect(e.id, e.requester)
	}
}

// DeletePermanently removes an instance everywhere: live session, stored
// rows, credentials and media. Deleting an unknown instance is not an error.
// The logout round trip only holds up operations on the same id.
func (s *Supervisor) DeletePermanently(ctx context.Context, id string) error {
	if err := paths.ValidateID(id); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidID, err)
	}

	s.ops.Lock(id)
	defer s.ops.Unlock(id)

	s.cancelReconnect(id)

	if e, ok := s.registry.Delete(id); ok {
		e.cancel()
		if err := e.session.Logout(ctx); err != nil {
			s.logger.Debug("logout failed", zap.String("instance", id), zap.Error(err))
		}
		e.session.Close()
		_, _ = e.machine.Transition(status.Deleted)
	}

	existed, err := s.db.DeleteInstance(id)
	if err != nil {
		return err
	}
	if err := s.layout.RemoveAuthDir(id); err != nil {
		return fmt.Errorf("remove auth dir: %w", err)
	}
	if err := s.media.RemoveInstance(id); err != nil {
		s.logger.Warn("failed to remove media", zap.String("instance", id), zap.Error(err))
	}

	s.logger.Info("instance deleted", zap.String("instance", id), zap.Bool("had_row", existed))
	payload := InstancePayload{InstanceID: id}
	s.bus.Emit(bus.InstanceRoom(id), EventInstanceDeleted, payload)
	s.bus.Emit(bus.BroadcastRoom, EventInstanceDeleted, payload)
	return nil
}

// scheduleReconnect arms a delayed re-creation that keeps the original
// requester. Callers hold the id's op lock.
func (s *Supervisor) scheduleReconnect(id, requester string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed.Load() {
		return
	}
	if old, ok := s.pending[id]; ok {
		old.timer.Stop()
	}
	p := &pendingReconnect{requester: requester}
	s.pending[id] = p
	p.timer = time.AfterFunc(s.opts.ReconnectDelay, func() {
		// The token is checked under the op lock so a delete that cancelled
		// this reconnect cannot be overtaken by it.
		s.ops.Lock(id)
		defer s.ops.Unlock(id)

		s.mu.Lock()
		if s.pending[id] != p {
			s.mu.Unlock()
			return
		}
		delete(s.pending, id)
		s.mu.Unlock()

		s.logger.Info("reconnecting instance", zap.String("instance", id))
		if err := s.startLocked(s.ctx, id, p.requester); err != nil && !errors.Is(err, ErrClosed) {
			s.logger.Error("reconnect failed", zap.String("instance", id), zap.Error(err))
		}
	})
	s.logger.Info("reconnect scheduled", zap.String("instance", id), zap.Duration("delay", s.opts.ReconnectDelay))
}

// cancelReconnect stops a pending reconnect and reports whether one existed.
func (s *Supervisor) cancelReconnect(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.pending[id]
	if !ok {
		return false
	}
	p.timer.Stop()
	delete(s.pending, id)
	return true
}

// ReconnectPending reports whether a reconnect is waiting for its delay.
func (s *Supervisor) ReconnectPending(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.pending[id]
	return ok
}

func (s *Supervisor) transition(e *entry, to status.State) bool {
	if _, err := e.machine.Transition(to); err != nil {
		s.logger.Warn("ignored status change", zap.String("instance", e.id), zap.Error(err))
		return false
	}
	return true
}

// persist stores the status and publishes it. A store failure is logged and
// the notification still goes out.
func (s *Supervisor) persist(e *entry, p StatusPayload) {
	p.InstanceID = e.id
	if err := s.db.SetInstanceStatus(e.id, p.Status); err != nil {
		s.logger.Error("failed to persist status", zap.String("instance", e.id), zap.String("status", p.Status), zap.Error(err))
	}
	s.bus.Emit(bus.InstanceRoom(e.id), EventStatusUpdate, p)
}

// Restore starts every stored instance. Failures are logged per instance.
func (s *Supervisor) Restore(ctx context.Context) (int, error) {
	ids, err := s.db.InstanceIDs()
	if err != nil {
		return 0, fmt.Errorf("list instances: %w", err)
	}

	var mu sync.Mutex
	restored := 0
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(4)
	for _, id := range ids {
		g.Go(func() error {
			if err := s.start(gctx, id, ""); err != nil {
				s.logger.Warn("restore failed", zap.String("instance", id), zap.Error(err))
				return nil
			}
			mu.Lock()
			restored++
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()
	s.logger.Info("instances restored", zap.Int("restored", restored), zap.Int("stored", len(ids)))
	return restored, nil
}

// List returns the instance read model with counts computed from the store.
func (s *Supervisor) List() ([]InstanceView, error) {
	summaries, err := s.db.ListInstances()
	if err != nil {
		return nil, err
	}
	out := make([]InstanceView, len(summaries))
	for i, sum := range summaries {
		out[i] = InstanceView{InstanceSummary: sum, Active: s.registry.Has(sum.ID)}
	}
	return out, nil
}

// Active returns the identifiers live in this process.
func (s *Supervisor) Active() []string {
	return s.registry.List()
}

// Status returns the in-memory status of a live instance.
func (s *Supervisor) Status(id string) (status.State, bool) {
	e, ok := s.registry.Get(id)
	if !ok {
		return "", false
	}
	return e.machine.Current(), true
}

// Shutdown closes every live session without logging out, drops pending
// reconnects and waits for the run loops to exit.
func (s *Supervisor) Shutdown(ctx context.Context) error {
	s.gate.Lock()
	if s.closed.Load() {
		s.gate.Unlock()
		return nil
	}
	s.closed.Store(true)
	s.gate.Unlock()

	s.mu.Lock()
	for id, p := range s.pending {
		p.timer.Stop()
		delete(s.pending, id)
	}
	s.mu.Unlock()

	var entries []*entry
	for _, id := range s.registry.List() {
		if e, ok := s.registry.Delete(id); ok {
			entries = append(entries, e)
		}
	}

	s.cancel()
	var g errgroup.Group
	for _, e := range entries {
		g.Go(func() error {
			e.session.Close()
			return nil
		})
	}
	_ = g.Wait()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		s.logger.Info("supervisor stopped", zap.Int("sessions", len(entries)))
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
