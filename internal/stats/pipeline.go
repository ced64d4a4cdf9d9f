package stats

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/hyrelay/hyrelay/internal/config"
	"github.com/hyrelay/hyrelay/internal/obslog"
	"github.com/hyrelay/hyrelay/internal/statcache"
)

// Emitter delivers one overlay chat line toward the client. The session wires
// in an emitter that drops lines once it is no longer active.
type Emitter func(line string)

// Pipeline is the cached, threat-classifying stat lookup flow.
type Pipeline struct {
	api        API
	cache      statcache.Cache
	cfg        *config.Store
	guildWatch *NameSet
	emit       Emitter
}

func NewPipeline(api API, cache statcache.Cache, cfg *config.Store, guildWatch *NameSet, emit Emitter) *Pipeline {
	if guildWatch == nil {
		guildWatch = NewNameSet()
	}
	return &Pipeline{api: api, cache: cache, cfg: cfg, guildWatch: guildWatch, emit: emit}
}

// Statcheck resolves name, fetches and derives statistics, formats the
// overlay line, and caches it. fromRoster marks lookups triggered by a roster
// announcement; those are subject to the threats-only suppression rule.
func (p *Pipeline) Statcheck(ctx context.Context, name string, fromRoster bool) {
	obslog.L().Info("statcheck", zap.String("name", name), zap.Bool("from_roster", fromRoster))

	id, err := p.api.Resolve(ctx, name)
	if err != nil {
		obslog.L().Info("identity not resolved", zap.String("name", name), zap.Error(err))
		p.emit("§f" + name + ": §cNo user found")
		return
	}

	if entry, err := p.cache.Get(ctx, id.Username); err == nil && entry != nil {
		obslog.L().Debug("cache hit", zap.String("username", id.Username))
		if p.suppressed(fromRoster, entry.Threat) {
			return
		}
		p.emit(entry.Message)
		return
	}

	player, err := p.api.FetchPlayer(ctx, id.ID)
	if err != nil {
		obslog.L().Info("stats not found", zap.String("username", id.Username), zap.Error(err))
		p.emit(p.cfg.Str("name_prefix") + id.Username + ": §cNo stats found")
		return
	}

	guild, err := p.api.FetchGuild(ctx, id.ID)
	if err != nil {
		// degrade to unaffiliated rather than dropping the whole lookup
		obslog.L().Warn("guild fetch failed", zap.String("username", id.Username), zap.Error(err))
		guild = ""
	}

	snap := Derive(player, guild)
	threat := p.isThreat(snap)
	line := FormatLine(id.Username, snap, p.benchmarks())

	if err := p.cache.Put(ctx, id.Username, &statcache.Entry{Message: line, Threat: threat}); err != nil {
		obslog.L().Warn("cache put failed", zap.String("username", id.Username), zap.Error(err))
	}

	if p.suppressed(fromRoster, threat) {
		return
	}
	p.emit(line)
}

// SlumberCheck fetches the player's own slumber ticket counters and raises an
// overlay alert when the banked total reaches the configured limit.
func (p *Pipeline) SlumberCheck(ctx context.Context, name string) {
	limit := p.cfg.Int("slumber_alert_limit")
	if limit <= 0 {
		return
	}

	id, err := p.api.Resolve(ctx, name)
	if err != nil {
		return
	}
	player, err := p.api.FetchPlayer(ctx, id.ID)
	if err != nil || player.Bedwars == nil {
		return
	}

	snap := Derive(player, "")
	if total := snap.SlumberTotal(); total >= limit {
		p.emit(fmt.Sprintf("§cYou have %d slumber tickets banked. Spend them.", total))
	}
}

func (p *Pipeline) suppressed(fromRoster, threat bool) bool {
	return fromRoster && p.cfg.Bool("threats_only") && !threat
}

func (p *Pipeline) isThreat(s Snapshot) bool {
	if s.FKDR >= p.cfg.Float("threat_benchmarks.fkdr") {
		return true
	}
	if s.Stars >= p.cfg.Int("threat_benchmarks.stars") {
		return true
	}
	return s.Guild != "No Guild" && p.guildWatch.Has(s.Guild)
}

func (p *Pipeline) benchmarks() FKDRBenchmarks {
	return FKDRBenchmarks{
		Good:   p.cfg.Float("fkdr_benchmarks.good"),
		Medium: p.cfg.Float("fkdr_benchmarks.medium"),
		Low:    p.cfg.Float("fkdr_benchmarks.low"),
	}
}
