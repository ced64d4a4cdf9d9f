// Package command recognizes locally-handled commands in client chat and
// dispatches them, reporting whether the input must be suppressed from
// forwarding.
package command

import (
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/hyrelay/hyrelay/internal/config"
	"github.com/hyrelay/hyrelay/internal/obslog"
	"github.com/hyrelay/hyrelay/internal/stats"
)

// Router binds the configured command keywords to their handlers. Keywords
// are read from config at dispatch time, so update-config can rename a
// command live.
type Router struct {
	cfg    *config.Store
	filter *stats.NameSet

	// schedule fires a staggered stat lookup batch, in argument order.
	schedule func(names []string)
	emit     func(line string)
}

func NewRouter(cfg *config.Store, filter *stats.NameSet, schedule func(names []string), emit func(line string)) *Router {
	return &Router{cfg: cfg, filter: filter, schedule: schedule, emit: emit}
}

// Filter exposes the mutable stat filter set.
func (r *Router) Filter() *stats.NameSet { return r.filter }

// Handle inspects raw client chat text. It returns true when the text was a
// recognized command (whether it succeeded or reported a usage error) and
// must not be forwarded; anything else, including unrecognized prefixed text,
// is forwarded unchanged.
func (r *Router) Handle(text string) bool {
	prefix := r.cfg.Str("command_prefix")
	if prefix == "" {
		prefix = "/"
	}
	rest, ok := strings.CutPrefix(text, prefix)
	if !ok {
		return false
	}

	fields := strings.Fields(rest)
	if len(fields) == 0 {
		return false
	}
	keyword, args := fields[0], fields[1:]

	switch keyword {
	case r.cfg.Str("commands.statcheck"):
		r.handleStatcheck(args)
	case r.cfg.Str("commands.stat_filter"):
		r.handleFilter(args)
	case r.cfg.Str("commands.update_config"):
		r.handleUpdateConfig(args)
	default:
		return false
	}
	return true
}

func (r *Router) handleStatcheck(names []string) {
	obslog.L().Info("statcheck command", zap.Strings("names", names))
	if len(names) == 0 {
		r.emit("§cProvide at least one name to statcheck.")
		return
	}
	r.schedule(names)
}

func (r *Router) handleFilter(names []string) {
	obslog.L().Info("filter command", zap.Strings("names", names))
	if len(names) == 0 {
		r.emit("§cProvide at least one username to filter.")
		return
	}
	for _, name := range names {
		r.filter.Add(name)
		r.emit("§f" + name + " added to filter.")
	}
}

func (r *Router) handleUpdateConfig(args []string) {
	obslog.L().Info("update-config command", zap.Strings("args", args))
	if len(args) < 2 {
		r.emit("§cProvide a config setting and a new value for it.")
		return
	}
	path := args[0]
	raw := strings.Join(args[1:], " ")

	v, err := r.cfg.Set(path, raw)
	if err != nil {
		r.emit("§c" + err.Error())
		return
	}
	r.emit(fmt.Sprintf("§fUpdated in-memory config: %s = %v.", path, v))
}
