package sqlite

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sylvia-iot/broker-core/internal/model"
)

func newTestDlData(id string, expiresAt time.Time) *model.DlDataBuffer {
	now := time.Now().UTC().Truncate(time.Millisecond)
	return &model.DlDataBuffer{
		DataID: id, UnitID: "u1", ApplicationID: "app1", NetworkID: "net1", DeviceID: "dev1",
		CreatedAt: now, ExpiresAt: expiresAt.UTC().Truncate(time.Millisecond),
	}
}

func TestDlDataStore_AddThenGetByID(t *testing.T) {
	store := NewDlDataStore(openTestDB(t))
	ctx := context.Background()
	d := newTestDlData("d1", time.Now().Add(time.Hour))

	require.NoError(t, store.Add(ctx, d))

	got, err := store.GetByID(ctx, "d1")
	require.NoError(t, err)
	assert.Equal(t, "app1", got.ApplicationID)
}

func TestDlDataStore_Delete_RemovesEntry(t *testing.T) {
	store := NewDlDataStore(openTestDB(t))
	ctx := context.Background()
	require.NoError(t, store.Add(ctx, newTestDlData("d1", time.Now().Add(time.Hour))))

	require.NoError(t, store.Delete(ctx, "d1"))

	_, err := store.GetByID(ctx, "d1")
	assert.Error(t, err)
}

func TestDlDataStore_ListExpired_OnlyReturnsPastEntries(t *testing.T) {
	store := NewDlDataStore(openTestDB(t))
	ctx := context.Background()
	now := time.Now().UTC()
	require.NoError(t, store.Add(ctx, newTestDlData("expired", now.Add(-time.Minute))))
	require.NoError(t, store.Add(ctx, newTestDlData("future", now.Add(time.Hour))))

	out, err := store.ListExpired(ctx, now, 10)
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, "expired", out[0].DataID)
}

func TestDlDataStore_ListExpired_RespectsLimit(t *testing.T) {
	store := NewDlDataStore(openTestDB(t))
	ctx := context.Background()
	now := time.Now().UTC()
	require.NoError(t, store.Add(ctx, newTestDlData("d1", now.Add(-2*time.Minute))))
	require.NoError(t, store.Add(ctx, newTestDlData("d2", now.Add(-time.Minute))))

	out, err := store.ListExpired(ctx, now, 1)
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, "d1", out[0].DataID)
}

func TestDlDataStore_Count_FiltersByApplication(t *testing.T) {
	store := NewDlDataStore(openTestDB(t))
	ctx := context.Background()
	require.NoError(t, store.Add(ctx, newTestDlData("d1", time.Now().Add(time.Hour))))

	n, err := store.Count(ctx, model.DlDataListCond{ApplicationID: "app1"})
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	n, err = store.Count(ctx, model.DlDataListCond{ApplicationID: "other"})
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

func TestNewModel_WiresEveryStore(t *testing.T) {
	db := openTestDB(t)
	m := NewModel(db)

	assert.NotNil(t, m.Unit)
	assert.NotNil(t, m.Application)
	assert.NotNil(t, m.Network)
	assert.NotNil(t, m.Device)
	assert.NotNil(t, m.DeviceRoute)
	assert.NotNil(t, m.NetworkRoute)
	assert.NotNil(t, m.DlData)
}
