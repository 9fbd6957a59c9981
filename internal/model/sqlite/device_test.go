package sqlite

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sylvia-iot/broker-core/internal/errors"
	"github.com/sylvia-iot/broker-core/internal/model"
)

func newTestDevice(id, unitID, networkID, addr string) *model.Device {
	now := time.Now().UTC().Truncate(time.Millisecond)
	return &model.Device{
		DeviceID: id, UnitID: unitID, NetworkID: networkID, NetworkAddr: addr,
		CreatedAt: now, ModifiedAt: now,
	}
}

func TestDeviceStore_AddThenGetByAddr(t *testing.T) {
	store := NewDeviceStore(openTestDB(t))
	ctx := context.Background()
	require.NoError(t, store.Add(ctx, newTestDevice("d1", "u1", "n1", "aabbcc")))

	got, err := store.GetByAddr(ctx, "n1", "aabbcc")
	require.NoError(t, err)
	assert.Equal(t, "d1", got.DeviceID)
}

func TestDeviceStore_Add_DuplicateAddrOnSameNetworkIsConflict(t *testing.T) {
	store := NewDeviceStore(openTestDB(t))
	ctx := context.Background()
	require.NoError(t, store.Add(ctx, newTestDevice("d1", "u1", "n1", "aabbcc")))

	err := store.Add(ctx, newTestDevice("d2", "u1", "n1", "aabbcc"))
	require.Error(t, err)
	assert.True(t, errors.IsCategory(err, errors.CategoryConflict))
}

func TestDeviceStore_Move_RelocatesToNewNetworkAddr(t *testing.T) {
	store := NewDeviceStore(openTestDB(t))
	ctx := context.Background()
	require.NoError(t, store.Add(ctx, newTestDevice("d1", "u1", "n1", "aabbcc")))

	require.NoError(t, store.Move(ctx, "d1", "n2", "ddeeff"))

	got, err := store.GetByID(ctx, "d1")
	require.NoError(t, err)
	assert.Equal(t, "n2", got.NetworkID)
	assert.Equal(t, "ddeeff", got.NetworkAddr)
}

func TestDeviceStore_Move_NonexistentDeviceIsNotFound(t *testing.T) {
	store := NewDeviceStore(openTestDB(t))
	err := store.Move(context.Background(), "missing", "n2", "ddeeff")
	assert.True(t, errors.IsCategory(err, errors.CategoryNotFound))
}

func TestDeviceStore_Move_CollidingAddrIsConflict(t *testing.T) {
	store := NewDeviceStore(openTestDB(t))
	ctx := context.Background()
	require.NoError(t, store.Add(ctx, newTestDevice("d1", "u1", "n1", "aabbcc")))
	require.NoError(t, store.Add(ctx, newTestDevice("d2", "u1", "n1", "ddeeff")))

	err := store.Move(ctx, "d1", "n1", "ddeeff")
	assert.True(t, errors.IsCategory(err, errors.CategoryConflict))
}

func TestDeviceStore_List_FiltersByNetworkAddrContains(t *testing.T) {
	store := NewDeviceStore(openTestDB(t))
	ctx := context.Background()
	require.NoError(t, store.Add(ctx, newTestDevice("d1", "u1", "n1", "sensor-01")))
	require.NoError(t, store.Add(ctx, newTestDevice("d2", "u1", "n1", "other-01")))

	page, err := store.List(ctx, model.DeviceListCond{NetworkAddrContains: "sensor"}, model.ListOptions{})
	require.NoError(t, err)
	require.Len(t, page.Items, 1)
	assert.Equal(t, "d1", page.Items[0].DeviceID)
}
