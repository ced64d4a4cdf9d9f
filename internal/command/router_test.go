package command

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hyrelay/hyrelay/internal/config"
	"github.com/hyrelay/hyrelay/internal/stats"
)

type harness struct {
	router    *Router
	cfg       *config.Store
	scheduled [][]string
	emitted   []string
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	cfg, err := config.Load("")
	require.NoError(t, err)

	h := &harness{cfg: cfg}
	h.router = NewRouter(cfg, stats.NewNameSet(),
		func(names []string) { h.scheduled = append(h.scheduled, names) },
		func(line string) { h.emitted = append(h.emitted, line) },
	)
	return h
}

func TestHandleNonCommandText(t *testing.T) {
	h := newHarness(t)

	assert.False(t, h.router.Handle("hello team"), "plain chat is forwarded")
	assert.False(t, h.router.Handle("/msg friend hi"), "unknown prefixed text is forwarded")
	assert.False(t, h.router.Handle("/"), "bare prefix is forwarded")
	assert.Empty(t, h.emitted)
	assert.Empty(t, h.scheduled)
}

func TestStatcheckSchedulesInOrder(t *testing.T) {
	h := newHarness(t)

	require.True(t, h.router.Handle("/sc Alice Bob Carol"))
	require.Len(t, h.scheduled, 1)
	assert.Equal(t, []string{"Alice", "Bob", "Carol"}, h.scheduled[0])
	assert.Empty(t, h.emitted)
}

func TestStatcheckUsageError(t *testing.T) {
	h := newHarness(t)

	require.True(t, h.router.Handle("/sc"), "usage error still suppresses")
	assert.Empty(t, h.scheduled)
	require.Len(t, h.emitted, 1)
	assert.Contains(t, h.emitted[0], "§c")
}

func TestFilterAddsLowercased(t *testing.T) {
	h := newHarness(t)

	require.True(t, h.router.Handle("/filter AlIcE Bob"))
	assert.True(t, h.router.Filter().Has("alice"))
	assert.True(t, h.router.Filter().Has("BOB"), "lookup is case-insensitive")
	require.Len(t, h.emitted, 2)
	assert.Equal(t, "§fAlIcE added to filter.", h.emitted[0])
}

func TestFilterUsageError(t *testing.T) {
	h := newHarness(t)

	require.True(t, h.router.Handle("/filter"))
	require.Len(t, h.emitted, 1)
	assert.Contains(t, h.emitted[0], "§c")
}

func TestUpdateConfigSuccess(t *testing.T) {
	h := newHarness(t)

	require.True(t, h.router.Handle("/config check_delay 750"))
	assert.Equal(t, 750, h.cfg.Int("check_delay"))
	require.Len(t, h.emitted, 1)
	assert.Equal(t, "§fUpdated in-memory config: check_delay = 750.", h.emitted[0])
}

func TestUpdateConfigStringJoinsTokens(t *testing.T) {
	h := newHarness(t)

	require.True(t, h.router.Handle("/config tag MY COOL TAG"))
	assert.Equal(t, "MY COOL TAG", h.cfg.Str("tag"))
}

func TestUpdateConfigErrorsSuppressWithoutMutation(t *testing.T) {
	h := newHarness(t)
	before := h.cfg.Int("check_delay")

	tests := []struct {
		name string
		text string
	}{
		{name: "too few args", text: "/config check_delay"},
		{name: "type mismatch", text: "/config check_delay notanumber"},
		{name: "object leaf", text: "/config threat_benchmarks true"},
		{name: "bad path", text: "/config nope.deep 1"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h.emitted = nil
			require.True(t, h.router.Handle(tt.text), "handled even on failure")
			require.Len(t, h.emitted, 1)
			assert.Contains(t, h.emitted[0], "§c")
		})
	}
	assert.Equal(t, before, h.cfg.Int("check_delay"))
}

func TestCommandKeywordRenameTakesEffect(t *testing.T) {
	h := newHarness(t)

	require.True(t, h.router.Handle("/config commands.statcheck check"))
	assert.False(t, h.router.Handle("/sc Alice"), "old keyword forwarded after rename")
	assert.True(t, h.router.Handle("/check Alice"))
	require.Len(t, h.scheduled, 1)
}

func TestCustomCommandPrefix(t *testing.T) {
	h := newHarness(t)

	require.True(t, h.router.Handle("/config command_prefix !"))
	assert.False(t, h.router.Handle("/sc Alice"))
	assert.True(t, h.router.Handle("!sc Alice"))
}
