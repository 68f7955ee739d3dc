package refresh

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xtding233/gacha-ledger/internal/ledger"
)

type scopeList []string

func (s scopeList) Scopes(context.Context) ([]string, error) { return s, nil }

func TestSweepDoesNotAbortOnBusyOrBrokenScopes(t *testing.T) {
	remote := &fakeRemote{
		accounts: map[string][]ledger.Account{
			"u1": {{ID: "a1"}},
			"u2": {{ID: "b1"}, {ID: "b2"}},
			"u3": {{ID: "c1"}},
		},
		busy: map[string]bool{"u3": true},
	}
	c := NewCoordinator(remote, fastOptions(), nil)
	s := NewSweeper(c, scopeList{"u1", "ghost", "u3", "u2"}, 2*time.Millisecond, nil)

	rep, err := s.SweepOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"u1/a1", "u2/b1", "u2/b2"}, rep.Started)
	assert.Equal(t, []string{"u3/c1"}, rep.Conflicts)
	assert.Contains(t, rep.Failed, "ghost")
	assert.Equal(t, []string{"u1/a1", "u2/b1", "u2/b2"}, remote.requests)
	assert.Zero(t, remote.polls, "a sweep only starts jobs")
}

func TestSweepStopsOnCancel(t *testing.T) {
	remote := &fakeRemote{accounts: map[string][]ledger.Account{"u1": {{ID: "a"}}, "u2": {{ID: "b"}}}}
	s := NewSweeper(NewCoordinator(remote, fastOptions(), nil), scopeList{"u1", "u2"}, time.Hour, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := s.SweepOnce(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, []string{"u1/a"}, remote.requests)
}

func TestSweeperRejectsBadSpec(t *testing.T) {
	s := NewSweeper(NewCoordinator(&fakeRemote{}, fastOptions(), nil), scopeList{}, 0, nil)
	assert.Error(t, s.Start(context.Background(), "not a cron spec"))
}
