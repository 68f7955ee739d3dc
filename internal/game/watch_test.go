package game

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/xtding233/gacha-ledger/internal/logger"
)

func TestWatcherInvalidatesOnWrite(t *testing.T) {
	dir := rulesDir(t)
	l := NewLoader(dir)
	_, err := l.LoadMerged("character", "")
	require.NoError(t, err)

	changed := make(chan string, 8)
	w, err := NewWatcher(l, logger.Nop(), func(p string) { changed <- p })
	require.NoError(t, err)
	defer w.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go w.Run(ctx)

	writeFile(t, filepath.Join(dir, "character.yaml"), `
draw:
  p_base: 0.01
  pity: 82
`)

	select {
	case p := <-changed:
		require.Equal(t, "character.yaml", filepath.Base(p))
	case <-time.After(5 * time.Second):
		t.Fatal("no change event")
	}

	// several events can arrive for one write; the last one leaves the cache fresh
	require.Eventually(t, func() bool {
		raw, err := l.LoadMerged("character", "")
		return err == nil && raw.Draw.Pity != nil && *raw.Draw.Pity == 82
	}, 5*time.Second, 20*time.Millisecond)
}
