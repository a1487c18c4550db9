package presence

import (
	"context"
	"errors"
	"net/http"
	"sync"

	"github.com/illmade-knight/go-livestatus/pkg/metrics"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"
)

// State is the lifecycle state of a Session.
type State int

const (
	StateClosed State = iota
	StateJoining
	StateActive
	StateLeaving
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateJoining:
		return "joining"
	case StateActive:
		return "active"
	case StateLeaving:
		return "leaving"
	default:
		return "unknown"
	}
}

// Signal is an environment event that tears down an active session.
type Signal int

const (
	// SignalHidden reports that the consumer is no longer visible.
	SignalHidden Signal = iota + 1
	// SignalUnload reports that the consumer is going away.
	SignalUnload
)

func (s Signal) String() string {
	switch s {
	case SignalHidden:
		return "hidden"
	case SignalUnload:
		return "unload"
	default:
		return "unknown"
	}
}

type callKind int

const (
	callJoin callKind = iota
	callHeartbeat
	callLeave
)

func (k callKind) String() string {
	switch k {
	case callJoin:
		return "join"
	case callHeartbeat:
		return "heartbeat"
	default:
		return "leave"
	}
}

// activation is one join..leave cycle. alive is guarded by Session.mu and goes
// false exactly once, when the leave for this activation is enqueued.
type activation struct {
	id    int64
	alive bool
	stop  chan struct{}
}

type call struct {
	kind callKind
	act  *activation
}

// Session runs the presence lifecycle for one consumer. All presence calls run
// on a single goroutine in the order they were enqueued, so a leave for one
// activation always completes before the join of the next.
type Session struct {
	cfg    SessionConfig
	client Client
	clock  clockwork.Clock
	logger zerolog.Logger

	mu            sync.Mutex
	open          bool
	id            int64
	headers       http.Header
	state         State
	act           *activation
	pendingLeaves int
	queue         []call
	closing       bool

	wake chan struct{}
	done chan struct{}
}

// NewSession creates a closed session and starts its call executor. A nil clock
// means the real clock.
func NewSession(cfg *SessionConfig, client Client, clock clockwork.Clock, logger zerolog.Logger) (*Session, error) {
	if cfg == nil {
		return nil, errors.New("session config cannot be nil")
	}
	if client == nil {
		return nil, errors.New("presence client cannot be nil")
	}
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	s := &Session{
		cfg:    cfg.withDefaults(),
		client: client,
		clock:  clock,
		logger: logger.With().Str("component", "PresenceSession").Logger(),
		wake:   make(chan struct{}, 1),
		done:   make(chan struct{}),
	}
	go s.run()
	return s, nil
}

// Update feeds the current inputs. A change of open or id tears down the
// current activation, if any, and starts a new one when open is true and id is
// positive. Headers are stored for every later call regardless.
func (s *Session) Update(open bool, id int64, headers http.Header) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closing {
		return
	}
	s.headers = headers.Clone()
	if open == s.open && id == s.id {
		return
	}
	s.open, s.id = open, id

	if s.act != nil {
		s.leaveLocked()
	}
	if open && id > 0 {
		s.activateLocked(id)
	}
}

// Signal feeds an environment event. It only acts on an active session;
// a session torn down by a signal stays closed until its inputs change.
func (s *Session) Signal(sig Signal) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closing || s.state != StateActive || s.act == nil {
		return
	}
	s.logger.Debug().Int64("entity_id", s.act.id).Stringer("signal", sig).Msg("Environment signal, leaving.")
	s.leaveLocked()
}

// State returns the current lifecycle state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Close tears the session down: the current activation leaves and every
// pending call is issued before the executor exits. It waits for that to
// finish or for ctx to end, whichever comes first. Close is idempotent.
func (s *Session) Close(ctx context.Context) error {
	s.mu.Lock()
	if !s.closing {
		s.closing = true
		s.open = false
		if s.act != nil {
			s.leaveLocked()
		}
	}
	s.mu.Unlock()
	s.notify()

	select {
	case <-s.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Session) activateLocked(id int64) {
	act := &activation{id: id, alive: true, stop: make(chan struct{})}
	s.act = act
	s.state = StateJoining
	metrics.PresenceActivations.Inc()
	s.logger.Debug().Int64("entity_id", id).Msg("Joining.")
	s.enqueueLocked(call{kind: callJoin, act: act})
}

func (s *Session) leaveLocked() {
	act := s.act
	act.alive = false
	close(act.stop)
	s.act = nil
	s.pendingLeaves++
	s.state = StateLeaving
	metrics.PresenceActivations.Dec()
	s.logger.Debug().Int64("entity_id", act.id).Msg("Leaving.")
	s.enqueueLocked(call{kind: callLeave, act: act})
}

func (s *Session) enqueueLocked(c call) {
	s.queue = append(s.queue, c)
	s.notify()
}

func (s *Session) notify() {
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

func (s *Session) run() {
	defer close(s.done)
	for {
		s.mu.Lock()
		for len(s.queue) == 0 {
			if s.closing {
				s.mu.Unlock()
				return
			}
			s.mu.Unlock()
			<-s.wake
			s.mu.Lock()
		}
		c := s.queue[0]
		s.queue = s.queue[1:]
		if c.kind == callHeartbeat && !c.act.alive {
			s.mu.Unlock()
			continue
		}
		headers := s.headers.Clone()
		s.mu.Unlock()

		s.execute(c, headers)
	}
}

func (s *Session) execute(c call, headers http.Header) {
	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.CallTimeout)
	defer cancel()

	var err error
	switch c.kind {
	case callJoin:
		err = s.client.Join(ctx, c.act.id, headers)
	case callHeartbeat:
		err = s.client.Heartbeat(ctx, c.act.id, headers)
	case callLeave:
		err = s.client.Leave(ctx, c.act.id, headers)
	}
	if err != nil {
		metrics.PresenceCallsTotal.WithLabelValues(c.kind.String(), "error").Inc()
		s.logger.Warn().Err(err).Int64("entity_id", c.act.id).Stringer("call", c.kind).Msg("Presence call failed.")
	} else {
		metrics.PresenceCallsTotal.WithLabelValues(c.kind.String(), "success").Inc()
	}

	switch c.kind {
	case callJoin:
		s.joined(c.act)
	case callLeave:
		s.left()
	}
}

// joined moves a still-current activation to active, whatever the join result.
func (s *Session) joined(act *activation) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !act.alive || s.act != act {
		return
	}
	s.state = StateActive
	ticker := s.clock.NewTicker(s.cfg.HeartbeatInterval)
	go s.heartbeat(act, ticker)
}

func (s *Session) left() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pendingLeaves--
	if s.act == nil && s.pendingLeaves == 0 {
		s.state = StateClosed
	}
}

func (s *Session) heartbeat(act *activation, ticker clockwork.Ticker) {
	defer ticker.Stop()
	for {
		select {
		case <-act.stop:
			return
		case <-ticker.Chan():
			s.mu.Lock()
			if act.alive {
				s.enqueueLocked(call{kind: callHeartbeat, act: act})
			}
			s.mu.Unlock()
		}
	}
}
