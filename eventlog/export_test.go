package eventlog

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/xitongsys/parquet-go-source/local"
	"github.com/xitongsys/parquet-go/reader"

	"homeescrow/core/types"
)

func TestExportParquetRoundTrip(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()
	require.NoError(t, store.Append(ctx, &types.Event{Type: "escrow.listed", Attributes: map[string]string{"assetId": "1", "purchasePrice": "10"}}))
	require.NoError(t, store.Append(ctx, &types.Event{Type: "escrow.sale_finalized", Attributes: map[string]string{"assetId": "1"}}))
	require.NoError(t, store.Append(ctx, &types.Event{Type: "transfer.native", Attributes: map[string]string{"amount": "5"}}))

	path := filepath.Join(t.TempDir(), "events.parquet")
	written, err := store.ExportParquet(ctx, path, Filter{})
	require.NoError(t, err)
	require.Equal(t, 3, written)

	fr, err := local.NewLocalFileReader(path)
	require.NoError(t, err)
	defer fr.Close()
	pr, err := reader.NewParquetReader(fr, new(parquetRow), 1)
	require.NoError(t, err)
	defer pr.ReadStop()

	rows := make([]parquetRow, pr.GetNumRows())
	require.NoError(t, pr.Read(&rows))
	require.Len(t, rows, 3)
	require.Equal(t, "escrow.listed", rows[0].Type)
	require.True(t, rows[0].HasAsset)
	require.EqualValues(t, 1, rows[0].AssetID)
	require.False(t, rows[2].HasAsset)

	live, err := store.List(ctx, Filter{})
	require.NoError(t, err)
	for i, entry := range live {
		require.Equal(t, Digest(entry), rows[i].Digest)
	}
}

func TestDigestIgnoresAttributeOrder(t *testing.T) {
	id := uint64(4)
	a := Entry{Seq: 1, Type: "escrow.listed", AssetID: &id, Attrs: map[string]string{"a": "1", "b": "2"}}
	b := Entry{Seq: 1, Type: "escrow.listed", AssetID: &id, Attrs: map[string]string{"b": "2", "a": "1"}}
	require.Equal(t, Digest(a), Digest(b))
	require.Len(t, Digest(a), 64)

	b.Attrs["a"] = "changed"
	require.NotEqual(t, Digest(a), Digest(b))
}

func TestExportParquetFiltersByType(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()
	for i := 0; i < 3; i++ {
		require.NoError(t, store.Append(ctx, &types.Event{Type: "deed.minted", Attributes: map[string]string{"id": "1"}}))
	}
	require.NoError(t, store.Append(ctx, &types.Event{Type: "escrow.listed", Attributes: map[string]string{"assetId": "1"}}))

	written, err := store.ExportParquet(ctx, filepath.Join(t.TempDir(), "listed.parquet"), Filter{Type: "escrow.listed"})
	require.NoError(t, err)
	require.Equal(t, 1, written)
}
