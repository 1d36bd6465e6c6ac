package maintenance

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mudmesh/gateway/internal/connmgr"
	"github.com/mudmesh/gateway/internal/registry"
)

type fakePeerTable struct{ muds []string }

func (f fakePeerTable) All() []*connmgr.Connection { return nil }

func TestTrimHistoryRings(t *testing.T) {
	reg := registry.NewMemoryRegistry()
	ctx := context.Background()
	for i := 0; i < 5; i++ {
		require.NoError(t, reg.ListPush(ctx, registry.MessageHistoryKey("tell"), "msg"))
	}

	s := New(reg, fakePeerTable{}, time.Hour, 1000)
	s.trimHistoryRings()

	vals, err := reg.ListRange(ctx, registry.MessageHistoryKey("tell"), 0, -1)
	require.NoError(t, err)
	assert.Len(t, vals, 5)
}

func TestStartAndStop(t *testing.T) {
	reg := registry.NewMemoryRegistry()
	s := New(reg, fakePeerTable{}, time.Hour, 1000)
	require.NoError(t, s.Start("* * * * *", "* * * * *"))
	time.Sleep(10 * time.Millisecond)
	s.Stop()
}
