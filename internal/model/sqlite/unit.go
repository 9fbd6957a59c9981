package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/sylvia-iot/broker-core/internal/errors"
	"github.com/sylvia-iot/broker-core/internal/model"
)

// UnitStore implements model.UnitStore.
type UnitStore struct{ db *DB }

// NewUnitStore returns a UnitStore backed by db.
func NewUnitStore(db *DB) *UnitStore { return &UnitStore{db: db} }

func (s *UnitStore) Add(ctx context.Context, u *model.Unit) error {
	code := strings.ToLower(u.Code)
	_, err := s.db.sql.ExecContext(ctx,
		`INSERT INTO unit (unit_id, code, owner_id, member_ids, name, info, created_at, modified_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		u.UnitID, code, u.OwnerID, encodeStrings(u.MemberIDs), u.Name, encodeInfo(u.Info),
		toMillis(u.CreatedAt), toMillis(u.ModifiedAt),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return errors.NewConflict(errors.CodeUnitExist, "unit code already exists").WithContext("code", code)
		}
		return errors.NewDownstreamTransient("insert unit", err)
	}
	u.Code = code
	return nil
}

func (s *UnitStore) GetByID(ctx context.Context, unitID string) (*model.Unit, error) {
	row := s.db.sql.QueryRowContext(ctx,
		`SELECT unit_id, code, owner_id, member_ids, name, info, created_at, modified_at
		 FROM unit WHERE unit_id = ?`, unitID)
	return scanUnit(row)
}

func (s *UnitStore) GetByCode(ctx context.Context, code string) (*model.Unit, error) {
	row := s.db.sql.QueryRowContext(ctx,
		`SELECT unit_id, code, owner_id, member_ids, name, info, created_at, modified_at
		 FROM unit WHERE code = ?`, strings.ToLower(code))
	return scanUnit(row)
}

func scanUnit(row *sql.Row) (*model.Unit, error) {
	var u model.Unit
	var memberIDs, info string
	var created, modified int64
	err := row.Scan(&u.UnitID, &u.Code, &u.OwnerID, &memberIDs, &u.Name, &info, &created, &modified)
	if err == sql.ErrNoRows {
		return nil, errors.NewNotFound(errors.CodeUnitNotExist, "unit not found")
	}
	if err != nil {
		return nil, errors.NewDownstreamTransient("scan unit", err)
	}
	u.MemberIDs = decodeStrings(memberIDs)
	u.Info = decodeInfo(info)
	u.CreatedAt = fromMillis(created)
	u.ModifiedAt = fromMillis(modified)
	return &u, nil
}

func (s *UnitStore) Update(ctx context.Context, unitID string, updates model.UnitUpdates) error {
	sets := []string{"modified_at = ?"}
	args := []any{toMillis(time.Now())}

	if v, ok := updates.OwnerID.Get(); ok {
		sets = append(sets, "owner_id = ?")
		args = append(args, v)
	}
	if v, ok := updates.Name.Get(); ok {
		sets = append(sets, "name = ?")
		args = append(args, v)
	}
	if v, ok := updates.Info.Get(); ok {
		sets = append(sets, "info = ?")
		args = append(args, encodeInfo(v))
	}

	args = append(args, unitID)
	q := fmt.Sprintf("UPDATE unit SET %s WHERE unit_id = ?", strings.Join(sets, ", "))
	if _, err := s.db.sql.ExecContext(ctx, q, args...); err != nil {
		return errors.NewDownstreamTransient("update unit", err)
	}
	return nil
}

func (s *UnitStore) Delete(ctx context.Context, unitID string) error {
	if _, err := s.db.sql.ExecContext(ctx, `DELETE FROM unit WHERE unit_id = ?`, unitID); err != nil {
		return errors.NewDownstreamTransient("delete unit", err)
	}
	return nil
}

func (s *UnitStore) AddMember(ctx context.Context, unitID, memberID string) error {
	u, err := s.GetByID(ctx, unitID)
	if err != nil {
		return err
	}
	members, added := dedupAppend(u.MemberIDs, memberID)
	if !added {
		return nil
	}
	_, err = s.db.sql.ExecContext(ctx,
		`UPDATE unit SET member_ids = ?, modified_at = ? WHERE unit_id = ?`,
		encodeStrings(members), toMillis(time.Now()), unitID)
	if err != nil {
		return errors.NewDownstreamTransient("add unit member", err)
	}
	return nil
}

func (s *UnitStore) RemoveMember(ctx context.Context, unitID, memberID string) error {
	u, err := s.GetByID(ctx, unitID)
	if err != nil {
		return err
	}
	if memberID == u.OwnerID {
		return errors.NewValidation(errors.CodeParamInvalid, "cannot remove the unit owner as a member")
	}
	members, removed := removeString(u.MemberIDs, memberID)
	if !removed {
		return nil
	}
	_, err = s.db.sql.ExecContext(ctx,
		`UPDATE unit SET member_ids = ?, modified_at = ? WHERE unit_id = ?`,
		encodeStrings(members), toMillis(time.Now()), unitID)
	if err != nil {
		return errors.NewDownstreamTransient("remove unit member", err)
	}
	return nil
}

func (s *UnitStore) whereClause(cond model.UnitListCond) (string, []any) {
	var clauses []string
	var args []any
	if cond.Code != "" {
		clauses = append(clauses, "code = ?")
		args = append(args, strings.ToLower(cond.Code))
	}
	if cond.CodeContains != "" {
		clauses = append(clauses, "code LIKE ? ESCAPE '\\'")
		args = append(args, likePattern(strings.ToLower(cond.CodeContains)))
	}
	if cond.OwnerID != "" {
		clauses = append(clauses, "owner_id = ?")
		args = append(args, cond.OwnerID)
	}
	if cond.MemberID != "" {
		clauses = append(clauses, "(owner_id = ? OR member_ids LIKE ?)")
		args = append(args, cond.MemberID, likePattern(`"`+cond.MemberID+`"`))
	}
	if len(clauses) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(clauses, " AND "), args
}

func (s *UnitStore) Count(ctx context.Context, cond model.UnitListCond) (int, error) {
	where, args := s.whereClause(cond)
	var n int
	err := s.db.sql.QueryRowContext(ctx, "SELECT COUNT(*) FROM unit"+where, args...).Scan(&n)
	if err != nil {
		return 0, errors.NewDownstreamTransient("count units", err)
	}
	return n, nil
}

func (s *UnitStore) List(ctx context.Context, cond model.UnitListCond, opts model.ListOptions) (model.Page[model.Unit], error) {
	where, args := s.whereClause(cond)
	orderBy := buildOrderBy(opts.Sort, map[string]string{
		model.UnitSortCode:       "code",
		model.UnitSortName:       "name",
		model.UnitSortCreatedAt:  "created_at",
		model.UnitSortModifiedAt: "modified_at",
	}, "unit_id")

	w, err := resolveListWindow(opts)
	if err != nil {
		return model.Page[model.Unit]{}, err
	}
	q := fmt.Sprintf(
		`SELECT unit_id, code, owner_id, member_ids, name, info, created_at, modified_at
		 FROM unit%s ORDER BY %s LIMIT ? OFFSET ?`, where, orderBy)
	args = append(args, w.fetchLimit, w.offset)

	rows, err := s.db.sql.QueryContext(ctx, q, args...)
	if err != nil {
		return model.Page[model.Unit]{}, errors.NewDownstreamTransient("list units", err)
	}
	defer rows.Close()

	var items []model.Unit
	for rows.Next() {
		var u model.Unit
		var memberIDs, info string
		var created, modified int64
		if err := rows.Scan(&u.UnitID, &u.Code, &u.OwnerID, &memberIDs, &u.Name, &info, &created, &modified); err != nil {
			return model.Page[model.Unit]{}, errors.NewDownstreamTransient("scan unit row", err)
		}
		u.MemberIDs = decodeStrings(memberIDs)
		u.Info = decodeInfo(info)
		u.CreatedAt = fromMillis(created)
		u.ModifiedAt = fromMillis(modified)
		items = append(items, u)
	}
	items, next := trimPage(w, items)
	return model.Page[model.Unit]{Items: items, NextCursor: next}, nil
}
