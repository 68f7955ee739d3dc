package refresh

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/xtding233/gacha-ledger/internal/logger"
)

// ScopeLister returns the scopes a sweep refreshes.
type ScopeLister interface {
	Scopes(ctx context.Context) ([]string, error)
}

// SweepReport is the result of one pass over all known scopes.
type SweepReport struct {
	Started   []string          `json:"started"`
	Conflicts []string          `json:"conflicts"` // already running, left alone
	Failed    map[string]string `json:"failed"`    // scope or scope/account → error
}

// Sweeper starts a refresh for every known scope, one at a time with a random
// delay between starts. It only starts jobs; nothing waits on them.
type Sweeper struct {
	coord  *Coordinator
	scopes ScopeLister
	jitter time.Duration
	log    *logger.Logger
	cron   *cron.Cron

	mu      sync.Mutex // one sweep at a time
	running bool
}

// NewSweeper builds a sweeper; jitter is the upper bound of the delay between starts.
func NewSweeper(coord *Coordinator, scopes ScopeLister, jitter time.Duration, log *logger.Logger) *Sweeper {
	if log == nil {
		log = logger.Nop()
	}
	return &Sweeper{
		coord:  coord,
		scopes: scopes,
		jitter: jitter,
		log:    log,
		cron:   cron.New(cron.WithSeconds()),
	}
}

// SweepOnce runs one pass. A busy or failing scope is recorded and skipped.
func (s *Sweeper) SweepOnce(ctx context.Context) (SweepReport, error) {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return SweepReport{}, errors.New("sweep already running")
	}
	s.running = true
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		s.running = false
		s.mu.Unlock()
	}()

	rep := SweepReport{Failed: map[string]string{}}
	scopes, err := s.scopes.Scopes(ctx)
	if err != nil {
		return rep, fmt.Errorf("list scopes: %w", err)
	}

	first := true
	for _, scope := range scopes {
		accts, err := s.coord.remote.Accounts(ctx, scope)
		if err != nil {
			rep.Failed[scope] = err.Error()
			continue
		}
		for _, a := range accts {
			if !first {
				if err := sleep(ctx, s.delay()); err != nil {
					return rep, err
				}
			}
			first = false

			job, err := s.coord.Request(ctx, scope, a.ID)
			key := scope + "/" + a.ID
			switch {
			case err != nil:
				rep.Failed[key] = err.Error()
			case job.State == StateConflict:
				rep.Conflicts = append(rep.Conflicts, key)
			default:
				rep.Started = append(rep.Started, key)
			}
		}
	}
	s.log.Info().
		Int("scopes", len(scopes)).
		Int("started", len(rep.Started)).
		Int("conflicts", len(rep.Conflicts)).
		Int("failed", len(rep.Failed)).
		Msg("refresh sweep done")
	return rep, nil
}

func (s *Sweeper) delay() time.Duration {
	if s.jitter <= 0 {
		return 0
	}
	return time.Duration(rand.Int64N(int64(s.jitter)))
}

// Start schedules SweepOnce on a six-field cron spec.
func (s *Sweeper) Start(ctx context.Context, spec string) error {
	if _, err := s.cron.AddFunc(spec, func() {
		if _, err := s.SweepOnce(ctx); err != nil {
			s.log.Error().Err(err).Msg("refresh sweep")
		}
	}); err != nil {
		return fmt.Errorf("register sweep: %w", err)
	}
	s.cron.Start()
	s.log.Info().Str("spec", spec).Msg("refresh sweep scheduled")
	return nil
}

// Stop stops the scheduler and waits for a running sweep.
func (s *Sweeper) Stop() {
	<-s.cron.Stop().Done()
}
