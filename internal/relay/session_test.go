package relay

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hyrelay/hyrelay/internal/chat"
	"github.com/hyrelay/hyrelay/internal/config"
	"github.com/hyrelay/hyrelay/internal/mcwire"
	"github.com/hyrelay/hyrelay/internal/statcache"
	"github.com/hyrelay/hyrelay/internal/stats"
)

type fakeConn struct {
	mu       sync.Mutex
	state    mcwire.State
	username string
	written  []*mcwire.Frame
	closed   int
	failWr   bool

	frameCbs []mcwire.FrameCallback
	errCbs   []mcwire.ErrorCallback
	endCbs   []mcwire.EndCallback
}

func (c *fakeConn) OnFrame(cb mcwire.FrameCallback) { c.frameCbs = append(c.frameCbs, cb) }
func (c *fakeConn) OnError(cb mcwire.ErrorCallback) { c.errCbs = append(c.errCbs, cb) }
func (c *fakeConn) OnEnd(cb mcwire.EndCallback)     { c.endCbs = append(c.endCbs, cb) }
func (c *fakeConn) Start()                          {}

func (c *fakeConn) WriteFrame(f *mcwire.Frame) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.failWr {
		return errors.New("write refused")
	}
	c.written = append(c.written, f)
	return nil
}

func (c *fakeConn) State() mcwire.State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *fakeConn) Username() string { return c.username }

func (c *fakeConn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed++
	return nil
}

func (c *fakeConn) deliver(f *mcwire.Frame) {
	for _, cb := range c.frameCbs {
		cb(f)
	}
}

func (c *fakeConn) frames() []*mcwire.Frame {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]*mcwire.Frame, len(c.written))
	copy(out, c.written)
	return out
}

type fakeStatsAPI struct {
	identities map[string]*stats.Identity
	players    map[string]*stats.Player

	// onFetch, when set, runs at the top of FetchPlayer so a test can hold a
	// lookup mid-flight.
	onFetch func()
}

func (f *fakeStatsAPI) Resolve(_ context.Context, name string) (*stats.Identity, error) {
	id, ok := f.identities[strings.ToLower(name)]
	if !ok {
		return nil, stats.ErrNotFound
	}
	return id, nil
}

func (f *fakeStatsAPI) FetchPlayer(_ context.Context, id string) (*stats.Player, error) {
	if f.onFetch != nil {
		f.onFetch()
	}
	p, ok := f.players[id]
	if !ok {
		return nil, stats.ErrNoStats
	}
	return p, nil
}

func (f *fakeStatsAPI) FetchGuild(_ context.Context, _ string) (string, error) { return "", nil }

func serverChatFrame(t *testing.T, text string) *mcwire.Frame {
	t.Helper()
	tree, err := json.Marshal(chat.Node{Text: text})
	require.NoError(t, err)
	data, err := json.Marshal(map[string]string{"message": string(tree)})
	require.NoError(t, err)
	return &mcwire.Frame{Name: mcwire.FrameChat, State: mcwire.StatePlay, Data: data}
}

func clientChatFrame(t *testing.T, text string) *mcwire.Frame {
	t.Helper()
	data, err := json.Marshal(map[string]string{"message": text})
	require.NoError(t, err)
	return &mcwire.Frame{Name: mcwire.FrameChat, State: mcwire.StatePlay, Data: data}
}

type sessionHarness struct {
	session *Session
	client  *fakeConn
	target  *fakeConn
	cfg     *config.Store
	api     *fakeStatsAPI
	cache   statcache.Cache
}

func newSessionHarness(t *testing.T) *sessionHarness {
	t.Helper()
	cfg, err := config.Load("")
	require.NoError(t, err)

	h := &sessionHarness{
		client: &fakeConn{state: mcwire.StatePlay, username: "Me"},
		target: &fakeConn{state: mcwire.StatePlay},
		cfg:    cfg,
		api: &fakeStatsAPI{
			identities: map[string]*stats.Identity{"alice": {ID: "u-1", Username: "Alice"}},
			players: map[string]*stats.Player{
				"u-1": {Bedwars: &stats.Bedwars{Experience: 500_000, FinalKills: 400, FinalDeaths: 100}},
			},
		},
		cache: statcache.NewMemory(),
	}
	h.session = NewSession(Params{
		Client: h.client,
		Target: h.target,
		Cfg:    cfg,
		API:    h.api,
		Cache:  h.cache,
	})
	h.session.Run()
	t.Cleanup(h.session.Close)
	return h
}

// overlayFrames filters out forwarded frames, leaving synthetic chat lines.
func overlayFrames(t *testing.T, frames []*mcwire.Frame) []string {
	t.Helper()
	var out []string
	for _, f := range frames {
		var p struct {
			Message  string `json:"message"`
			Position int    `json:"position"`
		}
		if json.Unmarshal(f.Data, &p) != nil || p.Position == 0 {
			continue
		}
		var m struct {
			Text string `json:"text"`
		}
		require.NoError(t, json.Unmarshal([]byte(p.Message), &m))
		out = append(out, m.Text)
	}
	return out
}

func TestForwardingGuard(t *testing.T) {
	h := newSessionHarness(t)

	match := &mcwire.Frame{Name: "position", State: mcwire.StatePlay}
	h.client.deliver(match)
	assert.Len(t, h.target.frames(), 1, "matching state forwards")

	mismatch := &mcwire.Frame{Name: "position", State: mcwire.StateStatus}
	h.client.deliver(mismatch)
	assert.Len(t, h.target.frames(), 1, "mismatched state drops, never queues")

	h.target.mu.Lock()
	h.target.state = mcwire.StateStatus
	h.target.mu.Unlock()
	h.client.deliver(mismatch)
	assert.Len(t, h.target.frames(), 2, "frame relays once states converge")
}

func TestForwardWriteFailureIsNotFatal(t *testing.T) {
	h := newSessionHarness(t)
	h.target.mu.Lock()
	h.target.failWr = true
	h.target.mu.Unlock()

	h.client.deliver(&mcwire.Frame{Name: "position", State: mcwire.StatePlay})

	assert.Equal(t, PhaseActive, h.session.Phase())
}

func TestRecognizedCommandSuppressed(t *testing.T) {
	h := newSessionHarness(t)

	h.client.deliver(clientChatFrame(t, "/sc"))

	assert.Empty(t, h.target.frames(), "handled command must not reach the target")
	lines := overlayFrames(t, h.client.frames())
	require.Len(t, lines, 1)
	assert.Contains(t, lines[0], "§c", "usage error is reported inline")
}

func TestUnrecognizedChatForwarded(t *testing.T) {
	h := newSessionHarness(t)

	h.client.deliver(clientChatFrame(t, "/msg friend hi"))
	h.client.deliver(clientChatFrame(t, "plain chat"))

	assert.Len(t, h.target.frames(), 2)
	assert.Empty(t, overlayFrames(t, h.client.frames()))
}

func TestRosterLookupsSkipSelfAndFiltered(t *testing.T) {
	h := newSessionHarness(t)
	_, err := h.cfg.Set("check_delay", "10")
	require.NoError(t, err)
	h.session.router.Filter().Add("BadGuy")

	// drop forwarded frames so only overlay writes arrive at the client
	h.client.mu.Lock()
	h.client.state = mcwire.StateStatus
	h.client.mu.Unlock()

	h.target.deliver(serverChatFrame(t, "ONLINE: Me, BadGuy, Alice"))

	require.Eventually(t, func() bool {
		return len(overlayFrames(t, h.client.frames())) == 1
	}, 2*time.Second, 10*time.Millisecond)

	lines := overlayFrames(t, h.client.frames())
	assert.Contains(t, lines[0], "Alice")
}

func TestRoundStartClearsCacheAndAutoWho(t *testing.T) {
	h := newSessionHarness(t)
	ctx := context.Background()
	require.NoError(t, h.cache.Put(ctx, "Alice", &statcache.Entry{Message: "stale"}))

	h.target.deliver(serverChatFrame(t, "to access powerful upgrades."))

	e, err := h.cache.Get(ctx, "Alice")
	require.NoError(t, err)
	assert.Nil(t, e, "round start clears the whole cache")

	frames := h.target.frames()
	require.Len(t, frames, 1)
	text, err := chat.MessageText(frames[0].Data)
	require.NoError(t, err)
	assert.Equal(t, "/who", text)
}

func TestRoundStartWithoutAutoWho(t *testing.T) {
	h := newSessionHarness(t)
	_, err := h.cfg.Set("auto_who", "false")
	require.NoError(t, err)

	h.target.deliver(serverChatFrame(t, "to access powerful upgrades."))

	assert.Empty(t, h.target.frames())
}

func TestMalformedServerChatIgnored(t *testing.T) {
	h := newSessionHarness(t)

	h.target.deliver(&mcwire.Frame{
		Name:  mcwire.FrameChat,
		State: mcwire.StatePlay,
		Data:  json.RawMessage(`{"message":"not a tree"}`),
	})

	assert.Equal(t, PhaseActive, h.session.Phase())
}

func TestTeardownIdempotentAndCancelsPending(t *testing.T) {
	h := newSessionHarness(t)
	h.client.mu.Lock()
	h.client.state = mcwire.StateStatus
	h.client.mu.Unlock()

	h.session.Close()
	h.session.Close()

	assert.Equal(t, PhaseClosed, h.session.Phase())
	assert.Equal(t, 1, h.client.closed, "counterpart ended exactly once")
	assert.Equal(t, 1, h.target.closed)

	// a roster arriving during teardown schedules lookups against a cancelled
	// context; none of them may reach the torn-down client
	h.target.deliver(serverChatFrame(t, "ONLINE: Alice"))
	h.session.sched.wait()
	assert.Empty(t, overlayFrames(t, h.client.frames()), "pending lookups must not fire after teardown")
}

func TestLookupFinishingAfterTeardownEmitsNothing(t *testing.T) {
	h := newSessionHarness(t)
	entered := make(chan struct{})
	release := make(chan struct{})
	h.api.onFetch = func() {
		close(entered)
		<-release
	}

	h.client.deliver(clientChatFrame(t, "/sc alice"))

	select {
	case <-entered:
	case <-time.After(2 * time.Second):
		t.Fatal("lookup never reached the stats fetch")
	}
	h.session.Close()
	close(release)
	h.session.sched.wait()

	assert.Empty(t, overlayFrames(t, h.client.frames()), "result of an in-flight lookup must be dropped after teardown")
}

func TestFilterMutationConcurrentWithRosterScan(t *testing.T) {
	h := newSessionHarness(t)

	// the filter is written on the client read loop and read on the target
	// read loop; both must be able to run at once
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		for i := 0; i < 100; i++ {
			h.client.deliver(clientChatFrame(t, "/filter Guy"+strconv.Itoa(i)))
		}
	}()
	go func() {
		defer wg.Done()
		for i := 0; i < 100; i++ {
			h.target.deliver(serverChatFrame(t, "ONLINE: Alice, Bob, Carol"))
		}
	}()
	wg.Wait()

	assert.Equal(t, PhaseActive, h.session.Phase())
	assert.True(t, h.session.router.Filter().Has("guy0"))
	assert.True(t, h.session.router.Filter().Has("guy99"))
}

func TestEndEventTriggersTeardown(t *testing.T) {
	h := newSessionHarness(t)

	for _, cb := range h.client.endCbs {
		cb()
	}

	assert.Equal(t, PhaseClosed, h.session.Phase())
	assert.Equal(t, 1, h.target.closed)
}

func TestStaggerPlan(t *testing.T) {
	plan := staggerPlan([]string{"A", "B", "C"}, 500*time.Millisecond, nil)
	require.Len(t, plan, 3)
	assert.Equal(t, time.Duration(0), plan[0].Delay)
	assert.Equal(t, 500*time.Millisecond, plan[1].Delay)
	assert.Equal(t, 1000*time.Millisecond, plan[2].Delay)

	skipB := func(n string) bool { return n == "B" }
	plan = staggerPlan([]string{"A", "B", "C"}, 500*time.Millisecond, skipB)
	require.Len(t, plan, 2)
	assert.Equal(t, "C", plan[1].Name)
	assert.Equal(t, 500*time.Millisecond, plan[1].Delay, "skipped names do not consume a slot")
}

type lineSink struct {
	mu    sync.Mutex
	lines []string
}

func (s *lineSink) emit(line string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lines = append(s.lines, line)
}

func (s *lineSink) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.lines)
}

type stubPinger struct{ rtt time.Duration }

func (s stubPinger) Ping(context.Context) (time.Duration, error) { return s.rtt, nil }

func TestProbeRereadsConfigPerTick(t *testing.T) {
	cfg, err := config.Load("")
	require.NoError(t, err)
	_, err = cfg.Set("ping_alerts", "true")
	require.NoError(t, err)
	_, err = cfg.Set("ping_interval", "5")
	require.NoError(t, err)

	sink := &lineSink{}
	p := NewProbe(stubPinger{rtt: 400 * time.Millisecond}, cfg, sink.emit)
	require.Equal(t, 5*time.Millisecond, p.interval())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go p.Run(ctx)

	require.Eventually(t, func() bool { return sink.count() >= 2 }, 2*time.Second, 5*time.Millisecond)

	// an interval change lands on the next tick
	_, err = cfg.Set("ping_interval", "2")
	require.NoError(t, err)
	assert.Equal(t, 2*time.Millisecond, p.interval())

	// disabling ping_alerts silences the loop without stopping it
	_, err = cfg.Set("ping_alerts", "false")
	require.NoError(t, err)
	time.Sleep(20 * time.Millisecond)
	n := sink.count()
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, n, sink.count())
}

func TestProbeAlertThresholds(t *testing.T) {
	cfg, err := config.Load("")
	require.NoError(t, err)
	p := NewProbe(nil, cfg, nil)

	assert.Equal(t, "§c350 ms", p.alertFor(350))
	assert.Equal(t, "§6200 ms", p.alertFor(200))
	assert.Equal(t, "", p.alertFor(100))
}
