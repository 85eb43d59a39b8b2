package eventlog

import (
	"context"
	"fmt"
	"testing"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"homeescrow/core/events"
	"homeescrow/core/types"
)

func setupTestStore(t *testing.T) *Store {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("failed to open sqlite: %v", err)
	}
	if err := AutoMigrate(db); err != nil {
		t.Fatalf("failed to migrate: %v", err)
	}
	return New(db, nil)
}

type payloadEvent struct{ evt *types.Event }

func (p payloadEvent) EventType() string   { return p.evt.Type }
func (p payloadEvent) Event() *types.Event { return p.evt }

type bareEvent struct{}

func (bareEvent) EventType() string { return "bare" }

func TestEmitAndList(t *testing.T) {
	store := setupTestStore(t)
	var sink events.Emitter = store

	sink.Emit(payloadEvent{&types.Event{Type: "escrow.listed", Attributes: map[string]string{"assetId": "1", "purchasePrice": "10"}}})
	sink.Emit(payloadEvent{&types.Event{Type: "escrow.listed", Attributes: map[string]string{"assetId": "2"}}})
	sink.Emit(payloadEvent{&types.Event{Type: "transfer.native", Attributes: map[string]string{"amount": "5"}}})
	sink.Emit(bareEvent{})

	all, err := store.List(context.Background(), Filter{})
	require.NoError(t, err)
	require.Len(t, all, 3)
	require.Equal(t, "10", all[0].Attrs["purchasePrice"])
	require.Less(t, all[0].Seq, all[1].Seq)
	require.Nil(t, all[2].AssetID)

	id := uint64(2)
	byAsset, err := store.List(context.Background(), Filter{AssetID: &id})
	require.NoError(t, err)
	require.Len(t, byAsset, 1)
	require.Equal(t, uint64(2), *byAsset[0].AssetID)

	byType, err := store.List(context.Background(), Filter{Type: "transfer.native"})
	require.NoError(t, err)
	require.Len(t, byType, 1)

	paged, err := store.List(context.Background(), Filter{After: all[0].Seq, Limit: 1})
	require.NoError(t, err)
	require.Len(t, paged, 1)
	require.Equal(t, all[1].Seq, paged[0].Seq)
}

func TestOpenRejectsUnknownDriver(t *testing.T) {
	_, err := Open("mysql", "dsn", nil)
	require.Error(t, err)
	_, err = Open(DriverSQLite, " ", nil)
	require.ErrorIs(t, err, ErrDSNRequired)
}
