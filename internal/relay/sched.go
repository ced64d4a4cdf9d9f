package relay

import (
	"context"
	"sync"
	"time"
)

// scheduler runs delayed tasks bound to the session context. Cancelling the
// context cancels every pending task at once; nothing fires after teardown.
type scheduler struct {
	ctx context.Context
	wg  sync.WaitGroup
}

func newScheduler(ctx context.Context) *scheduler {
	return &scheduler{ctx: ctx}
}

func (s *scheduler) after(d time.Duration, fn func(ctx context.Context)) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		t := time.NewTimer(d)
		defer t.Stop()
		select {
		case <-s.ctx.Done():
			return
		case <-t.C:
		}
		if s.ctx.Err() != nil {
			return
		}
		fn(s.ctx)
	}()
}

// wait blocks until every fired task returns. Test helper.
func (s *scheduler) wait() { s.wg.Wait() }

// plannedLookup is one entry of a staggered lookup batch.
type plannedLookup struct {
	Name  string
	Delay time.Duration
}

// staggerPlan assigns strictly increasing delays to the accepted names, in
// input order. Skipped names do not consume a delay slot.
func staggerPlan(names []string, step time.Duration, skip func(string) bool) []plannedLookup {
	var out []plannedLookup
	delay := time.Duration(0)
	for _, n := range names {
		if skip != nil && skip(n) {
			continue
		}
		out = append(out, plannedLookup{Name: n, Delay: delay})
		delay += step
	}
	return out
}
