package sweep

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/colonyops/filesession/internal/store/filestore"
)

var _ Sweeper = (*filestore.Store)(nil)

func TestStart_ReapsStoreRecords(t *testing.T) {
	t.Parallel()

	nop := zerolog.Nop()
	store, err := filestore.New(filestore.Options{Dir: t.TempDir(), Logger: &nop})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	id, err := store.Save(ctx, "", map[string]any{"k": "v"}, time.Nanosecond)
	require.NoError(t, err)

	go Start(ctx, store, 10*time.Millisecond, nop)

	// A one nanosecond TTL expires at the next whole second.
	require.Eventually(t, func() bool {
		entries, err := store.List(ctx)
		return err == nil && len(entries) == 0
	}, 5*time.Second, 20*time.Millisecond)

	_, ok := store.Load(ctx, id)
	require.False(t, ok)
}
