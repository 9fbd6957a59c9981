package sqlite

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sylvia-iot/broker-core/internal/errors"
	"github.com/sylvia-iot/broker-core/internal/model"
)

func newTestUnit(id, code, owner string) *model.Unit {
	now := time.Now().UTC().Truncate(time.Millisecond)
	return &model.Unit{
		UnitID: id, Code: code, OwnerID: owner,
		CreatedAt: now, ModifiedAt: now,
	}
}

func TestUnitStore_AddThenGetByID(t *testing.T) {
	store := NewUnitStore(openTestDB(t))
	ctx := context.Background()
	u := newTestUnit("u1", "Team-One", "owner1")

	require.NoError(t, store.Add(ctx, u))
	assert.Equal(t, "team-one", u.Code)

	got, err := store.GetByID(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, "team-one", got.Code)
	assert.Equal(t, "owner1", got.OwnerID)
}

func TestUnitStore_GetByID_NotFoundReturnsNotFoundError(t *testing.T) {
	store := NewUnitStore(openTestDB(t))
	_, err := store.GetByID(context.Background(), "missing")
	require.Error(t, err)
	assert.True(t, errors.IsCategory(err, errors.CategoryNotFound))
}

func TestUnitStore_Add_DuplicateCodeReturnsConflict(t *testing.T) {
	store := NewUnitStore(openTestDB(t))
	ctx := context.Background()
	require.NoError(t, store.Add(ctx, newTestUnit("u1", "team", "owner1")))

	err := store.Add(ctx, newTestUnit("u2", "team", "owner2"))
	require.Error(t, err)
	assert.True(t, errors.IsCategory(err, errors.CategoryConflict))
}

func TestUnitStore_GetByCode_IsCaseInsensitive(t *testing.T) {
	store := NewUnitStore(openTestDB(t))
	ctx := context.Background()
	require.NoError(t, store.Add(ctx, newTestUnit("u1", "Team-One", "owner1")))

	got, err := store.GetByCode(ctx, "TEAM-ONE")
	require.NoError(t, err)
	assert.Equal(t, "u1", got.UnitID)
}

func TestUnitStore_Update_OnlyPresentFieldsChange(t *testing.T) {
	store := NewUnitStore(openTestDB(t))
	ctx := context.Background()
	require.NoError(t, store.Add(ctx, newTestUnit("u1", "team", "owner1")))

	err := store.Update(ctx, "u1", model.UnitUpdates{Name: model.SetTo("New Name")})
	require.NoError(t, err)

	got, err := store.GetByID(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, "New Name", got.Name)
	assert.Equal(t, "owner1", got.OwnerID)
}

func TestUnitStore_Delete_RemovesUnit(t *testing.T) {
	store := NewUnitStore(openTestDB(t))
	ctx := context.Background()
	require.NoError(t, store.Add(ctx, newTestUnit("u1", "team", "owner1")))

	require.NoError(t, store.Delete(ctx, "u1"))

	_, err := store.GetByID(ctx, "u1")
	assert.True(t, errors.IsCategory(err, errors.CategoryNotFound))
}

func TestUnitStore_Delete_NonexistentIsNotAnError(t *testing.T) {
	store := NewUnitStore(openTestDB(t))
	assert.NoError(t, store.Delete(context.Background(), "missing"))
}

func TestUnitStore_AddMember_IsIdempotent(t *testing.T) {
	store := NewUnitStore(openTestDB(t))
	ctx := context.Background()
	require.NoError(t, store.Add(ctx, newTestUnit("u1", "team", "owner1")))

	require.NoError(t, store.AddMember(ctx, "u1", "member1"))
	require.NoError(t, store.AddMember(ctx, "u1", "member1"))

	got, err := store.GetByID(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, []string{"member1"}, got.MemberIDs)
}

func TestUnitStore_RemoveMember_RefusesToRemoveOwner(t *testing.T) {
	store := NewUnitStore(openTestDB(t))
	ctx := context.Background()
	require.NoError(t, store.Add(ctx, newTestUnit("u1", "team", "owner1")))

	err := store.RemoveMember(ctx, "u1", "owner1")
	require.Error(t, err)
	assert.True(t, errors.IsCategory(err, errors.CategoryValidation))
}

func TestUnitStore_RemoveMember_RemovesExistingMember(t *testing.T) {
	store := NewUnitStore(openTestDB(t))
	ctx := context.Background()
	require.NoError(t, store.Add(ctx, newTestUnit("u1", "team", "owner1")))
	require.NoError(t, store.AddMember(ctx, "u1", "member1"))

	require.NoError(t, store.RemoveMember(ctx, "u1", "member1"))

	got, err := store.GetByID(ctx, "u1")
	require.NoError(t, err)
	assert.Empty(t, got.MemberIDs)
}

func TestUnitStore_Count_FiltersByOwner(t *testing.T) {
	store := NewUnitStore(openTestDB(t))
	ctx := context.Background()
	require.NoError(t, store.Add(ctx, newTestUnit("u1", "team-a", "owner1")))
	require.NoError(t, store.Add(ctx, newTestUnit("u2", "team-b", "owner2")))

	n, err := store.Count(ctx, model.UnitListCond{OwnerID: "owner1"})
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestUnitStore_List_OrdersByCodeAscending(t *testing.T) {
	store := NewUnitStore(openTestDB(t))
	ctx := context.Background()
	require.NoError(t, store.Add(ctx, newTestUnit("u1", "zeta", "owner1")))
	require.NoError(t, store.Add(ctx, newTestUnit("u2", "alpha", "owner1")))

	page, err := store.List(ctx, model.UnitListCond{}, model.ListOptions{
		Sort: []model.SortKey{{Key: model.UnitSortCode, Ascending: true}},
	})
	require.NoError(t, err)
	require.Len(t, page.Items, 2)
	assert.Equal(t, "alpha", page.Items[0].Code)
	assert.Equal(t, "zeta", page.Items[1].Code)
}

func TestUnitStore_List_MemberIDMatchesOwnerOrMember(t *testing.T) {
	store := NewUnitStore(openTestDB(t))
	ctx := context.Background()
	require.NoError(t, store.Add(ctx, newTestUnit("u1", "team-a", "owner1")))
	require.NoError(t, store.AddMember(ctx, "u1", "member1"))
	require.NoError(t, store.Add(ctx, newTestUnit("u2", "team-b", "owner2")))

	page, err := store.List(ctx, model.UnitListCond{MemberID: "member1"}, model.ListOptions{})
	require.NoError(t, err)
	require.Len(t, page.Items, 1)
	assert.Equal(t, "u1", page.Items[0].UnitID)
}

func TestUnitStore_List_CursorMaxIteratesToExhaustionWithNoDuplicates(t *testing.T) {
	store := NewUnitStore(openTestDB(t))
	ctx := context.Background()
	const total = 23
	for i := 0; i < total; i++ {
		code := fmt.Sprintf("unit-%03d", i)
		require.NoError(t, store.Add(ctx, newTestUnit(fmt.Sprintf("u%d", i), code, "owner1")))
	}

	opts := model.ListOptions{
		Sort:      []model.SortKey{{Key: model.UnitSortCode, Ascending: true}},
		CursorMax: 5,
	}

	seen := make(map[string]bool)
	var order []string
	cursor := ""
	pages := 0
	for {
		opts.Cursor = cursor
		page, err := store.List(ctx, model.UnitListCond{}, opts)
		require.NoError(t, err)
		require.LessOrEqual(t, len(page.Items), 5)
		pages++
		for _, u := range page.Items {
			assert.False(t, seen[u.Code], "duplicate code %s", u.Code)
			seen[u.Code] = true
			order = append(order, u.Code)
		}
		if page.NextCursor == nil {
			break
		}
		cursor = *page.NextCursor
	}

	require.Len(t, order, total)
	assert.Greater(t, pages, 1)
	for i := 1; i < len(order); i++ {
		assert.Less(t, order[i-1], order[i])
	}
}

func TestUnitStore_List_CursorMaxUnderLimitReturnsTerminalCursor(t *testing.T) {
	store := NewUnitStore(openTestDB(t))
	ctx := context.Background()
	require.NoError(t, store.Add(ctx, newTestUnit("u1", "alpha", "owner1")))
	require.NoError(t, store.Add(ctx, newTestUnit("u2", "beta", "owner1")))

	page, err := store.List(ctx, model.UnitListCond{}, model.ListOptions{
		Sort:      []model.SortKey{{Key: model.UnitSortCode, Ascending: true}},
		CursorMax: 50,
	})
	require.NoError(t, err)
	require.Len(t, page.Items, 2)
	assert.Nil(t, page.NextCursor)
}
