package refresh

import (
	"context"
	"time"

	"github.com/google/uuid"

	perr "github.com/xtding233/gacha-ledger/internal/errors"
	"github.com/xtding233/gacha-ledger/internal/ledger"
	"github.com/xtding233/gacha-ledger/internal/logger"
)

// Options tunes polling.
type Options struct {
	PollInterval time.Duration
	Budget       time.Duration // wall-clock budget of a poll loop
	Grace        time.Duration // the one extra wait after the budget is spent
}

// DefaultOptions polls every two seconds for half a minute.
func DefaultOptions() Options {
	return Options{
		PollInterval: 2 * time.Second,
		Budget:       30 * time.Second,
		Grace:        5 * time.Second,
	}
}

// Coordinator runs the request → poll state machine. It keeps no per-job state;
// everything lives in the Job value it returns.
type Coordinator struct {
	remote Remote
	opts   Options
	log    *logger.Logger
	now    func() time.Time
}

// NewCoordinator builds a coordinator; zero options take their defaults.
func NewCoordinator(remote Remote, opts Options, log *logger.Logger) *Coordinator {
	def := DefaultOptions()
	if opts.PollInterval <= 0 {
		opts.PollInterval = def.PollInterval
	}
	if opts.Budget <= 0 {
		opts.Budget = def.Budget
	}
	if opts.Grace < 0 {
		opts.Grace = 0
	}
	if log == nil {
		log = logger.Nop()
	}
	return &Coordinator{remote: remote, opts: opts, log: log, now: time.Now}
}

// SelectAccount resolves the account to refresh. With one account the choice is
// implicit; with several and no accountID it returns *AmbiguousAccountError.
func (c *Coordinator) SelectAccount(ctx context.Context, scope, accountID string) (ledger.Account, error) {
	accts, err := c.remote.Accounts(ctx, scope)
	if err != nil {
		return ledger.Account{}, err
	}
	if accountID != "" {
		for _, a := range accts {
			if a.ID == accountID {
				return a, nil
			}
		}
		return ledger.Account{}, perr.NotFoundf("account %s not bound to scope %s", accountID, scope)
	}
	switch len(accts) {
	case 0:
		return ledger.Account{}, perr.NotFoundf("scope %s has no accounts", scope)
	case 1:
		return accts[0], nil
	default:
		return ledger.Account{}, &AmbiguousAccountError{Scope: scope, Accounts: accts}
	}
}

// Request asks the service to start a job for an already selected account. A
// conflict is returned as a Job in StateConflict, never as an error.
func (c *Coordinator) Request(ctx context.Context, scope, accountID string) (Job, error) {
	job := Job{
		ID:        uuid.New(),
		Scope:     scope,
		AccountID: accountID,
		State:     StateRequested,
		Started:   c.now(),
	}
	res, err := c.remote.RequestRefresh(ctx, scope, accountID)
	if err != nil {
		return job, err
	}
	switch res {
	case ledger.RefreshConflict:
		job.State = StateConflict
		c.log.Info().Str("scope", scope).Msg("sync already in progress")
	default:
		c.arm(&job)
		c.log.Info().Str("scope", scope).Str("job", job.ID.String()).Msg("sync started")
	}
	return job, nil
}

// arm moves job into syncing with a fresh budget and one grace retry.
func (c *Coordinator) arm(job *Job) {
	job.State = StateSyncing
	job.Deadline = c.now().Add(c.opts.Budget)
	job.GraceLeft = 1
}

// Wait polls until a terminal state. A conflicted job is resumed: the remote job
// already running for the scope is polled instead. onProgress may be nil.
// The returned error is a poll failure or ctx's error; the job keeps its last state.
func (c *Coordinator) Wait(ctx context.Context, job Job, onProgress func(Progress)) (Job, error) {
	switch job.State {
	case StateConflict, StateRequested, StateIdle:
		c.arm(&job)
	case StateSyncing:
		if job.Deadline.IsZero() {
			c.arm(&job)
		}
	default:
		return job, nil
	}

	wait := c.opts.PollInterval
	for {
		if err := sleep(ctx, wait); err != nil {
			return job, err
		}
		st, err := c.remote.PollStatus(ctx, job.Scope, job.AccountID)
		if err != nil {
			return job, err
		}
		job.Polls++

		switch st.Status {
		case "completed":
			job.State = StateCompleted
			job.LedgerRef = st.LedgerRef
			job.Last = c.progress(st)
			c.log.Info().Str("scope", job.Scope).Int("polls", job.Polls).Msg("sync completed")
			return job, nil
		case "failed":
			job.State = StateFailed
			job.Detail = st.Error
			c.log.Warn().Str("scope", job.Scope).Str("detail", st.Error).Msg("sync failed")
			return job, nil
		case "syncing", "idle":
			job.Last = c.progress(st)
			if onProgress != nil {
				onProgress(job.Last)
			}
		default:
			return job, perr.Unavailablef("poll %s: unknown status %q", job.Scope, st.Status)
		}

		if c.now().Before(job.Deadline) {
			wait = min(c.opts.PollInterval, max(time.Millisecond, job.Deadline.Sub(c.now())))
			continue
		}
		if job.GraceLeft == 0 {
			job.State = StateTimedOut
			c.log.Warn().Str("scope", job.Scope).Int("polls", job.Polls).Msg("sync timed out")
			return job, nil
		}
		job.GraceLeft--
		wait = c.opts.Grace
	}
}

// Refresh selects the account, requests the job and waits for it. A conflict is
// returned as is unless resume is set, in which case the running job is polled.
func (c *Coordinator) Refresh(ctx context.Context, scope, accountID string, resume bool, onProgress func(Progress)) (Job, error) {
	acct, err := c.SelectAccount(ctx, scope, accountID)
	if err != nil {
		return Job{Scope: scope, AccountID: accountID, State: StateIdle}, err
	}
	job, err := c.Request(ctx, scope, acct.ID)
	if err != nil {
		return job, err
	}
	if job.State == StateConflict && !resume {
		return job, nil
	}
	return c.Wait(ctx, job, onProgress)
}

func (c *Coordinator) progress(st ledger.SyncStatus) Progress {
	return Progress{Fraction: st.Progress, Stage: st.Stage, RecordsFound: st.RecordsFound, At: c.now()}
}

// sleep waits d or until ctx is done.
func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
