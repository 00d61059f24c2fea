package journal

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"ordertrack/internal/infra"
)

func TestStore_AppendAndList(t *testing.T) {
	dsn := os.Getenv("TRACK_TEST_DB_DSN")
	if dsn == "" {
		t.Skip("TRACK_TEST_DB_DSN not set; skipping integration test")
	}
	ctx := context.Background()
	pool, err := infra.NewDB(ctx, dsn)
	require.NoError(t, err)
	defer pool.Close()

	store := NewStore(pool)
	require.NoError(t, store.EnsureSchema(ctx))

	session := fmt.Sprintf("test_%d", time.Now().UnixNano())
	first := &Event{SessionID: session, OrderID: "42", Kind: KindOrder, From: "PREPARING", To: "OUT_FOR_DELIVERY", CreatedAt: time.Now().UTC()}
	second := &Event{SessionID: session, OrderID: "42", Kind: KindAnimator, From: "PARKED_AT_ORIGIN", To: "IN_TRANSIT", CreatedAt: time.Now().UTC()}
	require.NoError(t, store.Append(ctx, first))
	require.NoError(t, store.Append(ctx, second))
	require.Less(t, first.ID, second.ID)

	got, err := store.ListBySession(ctx, session)
	require.NoError(t, err)
	require.Len(t, got, 2)
	require.Equal(t, KindOrder, got[0].Kind)
	require.Equal(t, "IN_TRANSIT", got[1].To)
}
