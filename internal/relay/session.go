// Package relay owns the paired client/target connections: the forwarding
// guard, chat interception, lookup scheduling, and session teardown.
package relay

import (
	"context"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/hyrelay/hyrelay/internal/chat"
	"github.com/hyrelay/hyrelay/internal/command"
	"github.com/hyrelay/hyrelay/internal/config"
	"github.com/hyrelay/hyrelay/internal/mcwire"
	"github.com/hyrelay/hyrelay/internal/obslog"
	"github.com/hyrelay/hyrelay/internal/statcache"
	"github.com/hyrelay/hyrelay/internal/stats"
	"github.com/hyrelay/hyrelay/internal/upstream"
)

// Phase is the session lifecycle state.
type Phase int32

const (
	PhaseConnecting Phase = iota
	PhaseActive
	PhaseClosing
	PhaseClosed
)

// Params collects the session's collaborators. ID is optional; the session
// generates one when empty.
type Params struct {
	ID     string
	Client mcwire.Conn
	Target mcwire.Conn
	Cfg    *config.Store
	API    stats.API
	Cache  statcache.Cache
	Pinger upstream.Pinger
}

// Session relays frames between one client and one target and augments the
// stream with overlay lines. Exactly one Session exists at a time.
type Session struct {
	ID string

	client mcwire.Conn
	target mcwire.Conn
	cfg    *config.Store
	cache  statcache.Cache

	pipeline *stats.Pipeline
	router   *command.Router
	overlay  *chat.Overlay
	pinger   upstream.Pinger

	ctx    context.Context
	cancel context.CancelFunc
	sched  *scheduler

	phase     atomic.Int32
	closeOnce sync.Once
}

func NewSession(p Params) *Session {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	s := &Session{
		ID:     p.ID,
		client: p.Client,
		target: p.Target,
		cfg:    p.Cfg,
		cache:  p.Cache,
		pinger: p.Pinger,
	}
	s.ctx, s.cancel = context.WithCancel(context.Background())
	s.sched = newScheduler(s.ctx)
	s.overlay = chat.NewOverlay(p.Cfg)

	watch := stats.NewNameSet(p.Cfg.Strs("guild_list")...)
	s.pipeline = stats.NewPipeline(p.API, p.Cache, p.Cfg, watch, s.emitChat)

	filter := stats.NewNameSet(p.Cfg.Strs("filter_list")...)
	s.router = command.NewRouter(p.Cfg, filter, s.scheduleCommandLookups, s.emitChat)

	s.phase.Store(int32(PhaseConnecting))
	return s
}

func (s *Session) Phase() Phase { return Phase(s.phase.Load()) }

// Done is closed once the session begins teardown.
func (s *Session) Done() <-chan struct{} { return s.ctx.Done() }

// Run wires the connection event subscriptions, starts both read loops, and
// moves the session to ACTIVE.
func (s *Session) Run() {
	s.client.OnFrame(s.onClientFrame)
	s.client.OnError(func(err error) {
		obslog.L().Error("client error", zap.String("session", s.ID), zap.Error(err))
		s.shutdown("client error")
	})
	s.client.OnEnd(func() { s.shutdown("client disconnected") })

	s.target.OnFrame(s.onTargetFrame)
	s.target.OnError(func(err error) {
		obslog.L().Error("target error", zap.String("session", s.ID), zap.Error(err))
		s.shutdown("target error")
	})
	s.target.OnEnd(func() { s.shutdown("target disconnected") })

	s.client.Start()
	s.target.Start()
	s.phase.Store(int32(PhaseActive))
	obslog.L().Info("session active", zap.String("session", s.ID), zap.String("username", s.client.Username()))

	if s.pinger != nil {
		// the probe re-reads ping_alerts and ping_interval per tick, so
		// both can be changed live through update-config
		probe := NewProbe(s.pinger, s.cfg, s.emitAlert)
		go probe.Run(s.ctx)
	}
}

// Close tears the session down. Idempotent.
func (s *Session) Close() { s.shutdown("closed") }

func (s *Session) shutdown(reason string) {
	s.closeOnce.Do(func() {
		s.phase.Store(int32(PhaseClosing))
		s.cancel()
		_ = s.client.Close()
		_ = s.target.Close()
		s.phase.Store(int32(PhaseClosed))
		obslog.L().Info("session closed", zap.String("session", s.ID), zap.String("reason", reason))
	})
}

// forward relays a frame iff the receiver's tracked protocol state matches the
// frame's declared state; mismatches are dropped, never buffered. A write
// failure is logged and does not end the session by itself.
func (s *Session) forward(dst mcwire.Conn, f *mcwire.Frame) {
	if dst.State() != f.State {
		obslog.L().Debug("frame dropped on state mismatch",
			zap.String("frame", f.Name), zap.String("declared", string(f.State)), zap.String("tracked", string(dst.State())))
		return
	}
	if err := dst.WriteFrame(f); err != nil {
		obslog.L().Error("forward failed", zap.String("frame", f.Name), zap.Error(err))
	}
}

func (s *Session) onClientFrame(f *mcwire.Frame) {
	if f.Name == mcwire.FrameChat {
		text, err := chat.MessageText(f.Data)
		if err != nil {
			obslog.L().Warn("malformed client chat payload", zap.Error(err))
		} else if s.router.Handle(text) {
			// locally handled, never reaches the target
			return
		}
	}
	s.forward(s.target, f)
}

func (s *Session) onTargetFrame(f *mcwire.Frame) {
	s.forward(s.client, f)

	if f.Name != mcwire.FrameChat {
		return
	}
	text, err := chat.ExtractServerText(f.Data)
	if err != nil {
		obslog.L().Warn("malformed server chat payload", zap.Error(err))
		return
	}

	switch ev := chat.Classify(text); ev.Kind {
	case chat.EventRoster:
		s.scheduleRosterLookups(ev.Names)
	case chat.EventRoundStart:
		s.onRoundStart()
	case chat.EventRoundEnd:
		s.onRoundEnd()
	}
}

// onRoundStart invalidates the previous match's cache and, when enabled,
// queries the fresh roster.
func (s *Session) onRoundStart() {
	if err := s.cache.Clear(s.ctx); err != nil {
		obslog.L().Warn("cache clear failed", zap.Error(err))
	}
	if !s.cfg.Bool("auto_who") {
		return
	}
	f, err := chat.CommandFrame("/who")
	if err != nil {
		obslog.L().Error("build /who frame", zap.Error(err))
		return
	}
	s.forward(s.target, f)
}

func (s *Session) onRoundEnd() {
	name := s.client.Username()
	if name == "" {
		return
	}
	delay := time.Duration(s.cfg.Int("slumber_alert_delay")) * time.Millisecond
	s.sched.after(delay, func(ctx context.Context) {
		s.pipeline.SlumberCheck(ctx, name)
	})
}

func (s *Session) scheduleRosterLookups(names []string) {
	obslog.L().Info("roster announced", zap.Int("count", len(names)))
	self := s.client.Username()
	filterSelf := s.cfg.Bool("filter_self")
	step := time.Duration(s.cfg.Int("check_delay")) * time.Millisecond

	plan := staggerPlan(names, step, func(n string) bool {
		if filterSelf && strings.EqualFold(n, self) {
			return true
		}
		return s.router.Filter().Has(n)
	})
	for _, item := range plan {
		name := item.Name
		s.sched.after(item.Delay, func(ctx context.Context) {
			s.pipeline.Statcheck(ctx, name, true)
		})
	}
}

func (s *Session) scheduleCommandLookups(names []string) {
	step := time.Duration(s.cfg.Int("check_delay")) * time.Millisecond
	for _, item := range staggerPlan(names, step, nil) {
		name := item.Name
		s.sched.after(item.Delay, func(ctx context.Context) {
			s.pipeline.Statcheck(ctx, name, false)
		})
	}
}

// emitChat writes an overlay line to the client's chat channel. Lines are
// dropped once the session is no longer active.
func (s *Session) emitChat(line string) { s.emitOverlay(line, chat.ChannelChat) }

// emitAlert writes to the system channel used by latency alerts.
func (s *Session) emitAlert(line string) { s.emitOverlay(line, chat.ChannelSystem) }

func (s *Session) emitOverlay(line string, position int) {
	if s.Phase() != PhaseActive {
		return
	}
	f, err := s.overlay.Frame(line, position)
	if err != nil {
		obslog.L().Error("build overlay frame", zap.Error(err))
		return
	}
	if err := s.client.WriteFrame(f); err != nil {
		obslog.L().Error("overlay write failed", zap.Error(err))
	}
}
