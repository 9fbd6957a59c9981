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

// ApplicationStore implements model.ApplicationStore.
type ApplicationStore struct{ db *DB }

// NewApplicationStore returns an ApplicationStore backed by db.
func NewApplicationStore(db *DB) *ApplicationStore { return &ApplicationStore{db: db} }

func (s *ApplicationStore) Add(ctx context.Context, a *model.Application) error {
	code := strings.ToLower(a.Code)
	_, err := s.db.sql.ExecContext(ctx,
		`INSERT INTO application (application_id, unit_id, code, host_uri, name, info, created_at, modified_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		a.ApplicationID, a.UnitID, code, a.HostURI, a.Name, encodeInfo(a.Info),
		toMillis(a.CreatedAt), toMillis(a.ModifiedAt),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return errors.NewConflict(errors.CodeApplicationExist, "application code already exists").WithContext("code", code)
		}
		return errors.NewDownstreamTransient("insert application", err)
	}
	a.Code = code
	return nil
}

func (s *ApplicationStore) GetByID(ctx context.Context, applicationID string) (*model.Application, error) {
	row := s.db.sql.QueryRowContext(ctx,
		`SELECT application_id, unit_id, code, host_uri, name, info, created_at, modified_at
		 FROM application WHERE application_id = ?`, applicationID)
	return scanApplication(row)
}

func (s *ApplicationStore) GetByCode(ctx context.Context, unitID, code string) (*model.Application, error) {
	row := s.db.sql.QueryRowContext(ctx,
		`SELECT application_id, unit_id, code, host_uri, name, info, created_at, modified_at
		 FROM application WHERE unit_id = ? AND code = ?`, unitID, strings.ToLower(code))
	return scanApplication(row)
}

func scanApplication(row *sql.Row) (*model.Application, error) {
	var a model.Application
	var info string
	var created, modified int64
	err := row.Scan(&a.ApplicationID, &a.UnitID, &a.Code, &a.HostURI, &a.Name, &info, &created, &modified)
	if err == sql.ErrNoRows {
		return nil, errors.NewNotFound(errors.CodeApplicationNotExist, "application not found")
	}
	if err != nil {
		return nil, errors.NewDownstreamTransient("scan application", err)
	}
	a.Info = decodeInfo(info)
	a.CreatedAt = fromMillis(created)
	a.ModifiedAt = fromMillis(modified)
	return &a, nil
}

func (s *ApplicationStore) Update(ctx context.Context, applicationID string, updates model.ApplicationUpdates) error {
	sets := []string{"modified_at = ?"}
	args := []any{toMillis(time.Now())}

	if v, ok := updates.HostURI.Get(); ok {
		sets = append(sets, "host_uri = ?")
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

	args = append(args, applicationID)
	q := fmt.Sprintf("UPDATE application SET %s WHERE application_id = ?", strings.Join(sets, ", "))
	if _, err := s.db.sql.ExecContext(ctx, q, args...); err != nil {
		return errors.NewDownstreamTransient("update application", err)
	}
	return nil
}

func (s *ApplicationStore) Delete(ctx context.Context, applicationID string) error {
	if _, err := s.db.sql.ExecContext(ctx, `DELETE FROM application WHERE application_id = ?`, applicationID); err != nil {
		return errors.NewDownstreamTransient("delete application", err)
	}
	return nil
}

func (s *ApplicationStore) whereClause(cond model.ApplicationListCond) (string, []any) {
	var clauses []string
	var args []any
	if cond.UnitID != "" {
		clauses = append(clauses, "unit_id = ?")
		args = append(args, cond.UnitID)
	}
	if cond.Code != "" {
		clauses = append(clauses, "code = ?")
		args = append(args, strings.ToLower(cond.Code))
	}
	if cond.CodeContains != "" {
		clauses = append(clauses, "code LIKE ? ESCAPE '\\'")
		args = append(args, likePattern(strings.ToLower(cond.CodeContains)))
	}
	if len(clauses) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(clauses, " AND "), args
}

func (s *ApplicationStore) Count(ctx context.Context, cond model.ApplicationListCond) (int, error) {
	where, args := s.whereClause(cond)
	var n int
	err := s.db.sql.QueryRowContext(ctx, "SELECT COUNT(*) FROM application"+where, args...).Scan(&n)
	if err != nil {
		return 0, errors.NewDownstreamTransient("count applications", err)
	}
	return n, nil
}

func (s *ApplicationStore) List(ctx context.Context, cond model.ApplicationListCond, opts model.ListOptions) (model.Page[model.Application], error) {
	where, args := s.whereClause(cond)
	orderBy := buildOrderBy(opts.Sort, map[string]string{
		model.ApplicationSortCode:       "code",
		model.ApplicationSortName:       "name",
		model.ApplicationSortCreatedAt:  "created_at",
		model.ApplicationSortModifiedAt: "modified_at",
	}, "application_id")

	w, err := resolveListWindow(opts)
	if err != nil {
		return model.Page[model.Application]{}, err
	}
	q := fmt.Sprintf(
		`SELECT application_id, unit_id, code, host_uri, name, info, created_at, modified_at
		 FROM application%s ORDER BY %s LIMIT ? OFFSET ?`, where, orderBy)
	args = append(args, w.fetchLimit, w.offset)

	rows, err := s.db.sql.QueryContext(ctx, q, args...)
	if err != nil {
		return model.Page[model.Application]{}, errors.NewDownstreamTransient("list applications", err)
	}
	defer rows.Close()

	var items []model.Application
	for rows.Next() {
		var a model.Application
		var info string
		var created, modified int64
		if err := rows.Scan(&a.ApplicationID, &a.UnitID, &a.Code, &a.HostURI, &a.Name, &info, &created, &modified); err != nil {
			return model.Page[model.Application]{}, errors.NewDownstreamTransient("scan application row", err)
		}
		a.Info = decodeInfo(info)
		a.CreatedAt = fromMillis(created)
		a.ModifiedAt = fromMillis(modified)
		items = append(items, a)
	}
	items, next := trimPage(w, items)
	return model.Page[model.Application]{Items: items, NextCursor: next}, nil
}
