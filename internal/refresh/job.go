// Package refresh drives the remote "refresh my ledger" job to completion.
package refresh

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	perr "github.com/xtding233/gacha-ledger/internal/errors"
	"github.com/xtding233/gacha-ledger/internal/ledger"
)

// State of a refresh job as seen by the coordinator.
type State string

const (
	StateIdle      State = "idle"
	StateRequested State = "requested"
	StateSyncing   State = "syncing"
	StateCompleted State = "completed"
	StateFailed    State = "failed"
	StateConflict  State = "conflict"  // another job for the scope is already running
	StateTimedOut  State = "timed_out" // budget and grace poll exhausted
)

// Terminal reports whether polling stops in s. Conflict is terminal for a request
// but the caller may resume polling the existing job with Wait.
func (s State) Terminal() bool {
	switch s {
	case StateCompleted, StateFailed, StateConflict, StateTimedOut:
		return true
	}
	return false
}

// Remote is the part of the ledger service the coordinator drives.
type Remote interface {
	Accounts(ctx context.Context, scope string) ([]ledger.Account, error)
	RequestRefresh(ctx context.Context, scope, accountID string) (ledger.RefreshResult, error)
	PollStatus(ctx context.Context, scope, accountID string) (ledger.SyncStatus, error)
}

// Progress is an intermediate poll result; the coordinator only passes it on.
type Progress struct {
	Fraction     float64   `json:"fraction"`
	Stage        string    `json:"stage,omitempty"`
	RecordsFound int       `json:"recordsFound,omitempty"`
	At           time.Time `json:"at"`
}

// Job is the coordinator's view of one refresh.
type Job struct {
	ID        uuid.UUID `json:"id"`
	Scope     string    `json:"scope"`
	AccountID string    `json:"accountId,omitempty"`
	State     State     `json:"state"`
	Started   time.Time `json:"started"`
	Deadline  time.Time `json:"deadline"`
	GraceLeft int       `json:"graceLeft"`
	Polls     int       `json:"polls"`
	Last      Progress  `json:"last"`
	LedgerRef string    `json:"ledgerRef,omitempty"` // set when completed
	Detail    string    `json:"detail,omitempty"`    // failure detail
}

// AmbiguousAccountError asks the caller to pick one of Accounts.
type AmbiguousAccountError struct {
	Scope    string
	Accounts []ledger.Account
}

func (e *AmbiguousAccountError) Error() string {
	ids := make([]string, len(e.Accounts))
	for i, a := range e.Accounts {
		ids[i] = a.ID
	}
	return fmt.Sprintf("scope %s has %d accounts (%s); select one", e.Scope, len(e.Accounts), strings.Join(ids, ", "))
}

// Unwrap exposes the precondition code to perr.CodeOf.
func (e *AmbiguousAccountError) Unwrap() error {
	return perr.New(perr.ErrorCodePrecondition, "account selection required")
}
