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

// NetworkStore implements model.NetworkStore.
type NetworkStore struct{ db *DB }

// NewNetworkStore returns a NetworkStore backed by db.
func NewNetworkStore(db *DB) *NetworkStore { return &NetworkStore{db: db} }

func (s *NetworkStore) Add(ctx context.Context, n *model.Network) error {
	code := strings.ToLower(n.Code)
	_, err := s.db.sql.ExecContext(ctx,
		`INSERT INTO network (network_id, unit_id, code, host_uri, name, info, created_at, modified_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		n.NetworkID, n.UnitID, code, n.HostURI, n.Name, encodeInfo(n.Info),
		toMillis(n.CreatedAt), toMillis(n.ModifiedAt),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return errors.NewConflict(errors.CodeNetworkExist, "network code already exists").WithContext("code", code)
		}
		return errors.NewDownstreamTransient("insert network", err)
	}
	n.Code = code
	return nil
}

func (s *NetworkStore) GetByID(ctx context.Context, networkID string) (*model.Network, error) {
	row := s.db.sql.QueryRowContext(ctx,
		`SELECT network_id, unit_id, code, host_uri, name, info, created_at, modified_at
		 FROM network WHERE network_id = ?`, networkID)
	return scanNetwork(row)
}

func (s *NetworkStore) GetByCode(ctx context.Context, unitID, code string) (*model.Network, error) {
	row := s.db.sql.QueryRowContext(ctx,
		`SELECT network_id, unit_id, code, host_uri, name, info, created_at, modified_at
		 FROM network WHERE unit_id = ? AND code = ?`, unitID, strings.ToLower(code))
	return scanNetwork(row)
}

func scanNetwork(row *sql.Row) (*model.Network, error) {
	var n model.Network
	var info string
	var created, modified int64
	err := row.Scan(&n.NetworkID, &n.UnitID, &n.Code, &n.HostURI, &n.Name, &info, &created, &modified)
	if err == sql.ErrNoRows {
		return nil, errors.NewNotFound(errors.CodeNetworkNotExist, "network not found")
	}
	if err != nil {
		return nil, errors.NewDownstreamTransient("scan network", err)
	}
	n.Info = decodeInfo(info)
	n.CreatedAt = fromMillis(created)
	n.ModifiedAt = fromMillis(modified)
	return &n, nil
}

func (s *NetworkStore) Update(ctx context.Context, networkID string, updates model.NetworkUpdates) error {
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

	args = append(args, networkID)
	q := fmt.Sprintf("UPDATE network SET %s WHERE network_id = ?", strings.Join(sets, ", "))
	if _, err := s.db.sql.ExecContext(ctx, q, args...); err != nil {
		return errors.NewDownstreamTransient("update network", err)
	}
	return nil
}

func (s *NetworkStore) Delete(ctx context.Context, networkID string) error {
	if _, err := s.db.sql.ExecContext(ctx, `DELETE FROM network WHERE network_id = ?`, networkID); err != nil {
		return errors.NewDownstreamTransient("delete network", err)
	}
	return nil
}

func (s *NetworkStore) whereClause(cond model.NetworkListCond) (string, []any) {
	var clauses []string
	var args []any
	if cond.PublicOnly {
		clauses = append(clauses, "unit_id = ''")
	} else if cond.UnitID != "" {
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

func (s *NetworkStore) Count(ctx context.Context, cond model.NetworkListCond) (int, error) {
	where, args := s.whereClause(cond)
	var n int
	err := s.db.sql.QueryRowContext(ctx, "SELECT COUNT(*) FROM network"+where, args...).Scan(&n)
	if err != nil {
		return 0, errors.NewDownstreamTransient("count networks", err)
	}
	return n, nil
}

func (s *NetworkStore) List(ctx context.Context, cond model.NetworkListCond, opts model.ListOptions) (model.Page[model.Network], error) {
	where, args := s.whereClause(cond)
	orderBy := buildOrderBy(opts.Sort, map[string]string{
		model.NetworkSortCode:       "code",
		model.NetworkSortName:       "name",
		model.NetworkSortCreatedAt:  "created_at",
		model.NetworkSortModifiedAt: "modified_at",
	}, "network_id")

	w, err := resolveListWindow(opts)
	if err != nil {
		return model.Page[model.Network]{}, err
	}
	q := fmt.Sprintf(
		`SELECT network_id, unit_id, code, host_uri, name, info, created_at, modified_at
		 FROM network%s ORDER BY %s LIMIT ? OFFSET ?`, where, orderBy)
	args = append(args, w.fetchLimit, w.offset)

	rows, err := s.db.sql.QueryContext(ctx, q, args...)
	if err != nil {
		return model.Page[model.Network]{}, errors.NewDownstreamTransient("list networks", err)
	}
	defer rows.Close()

	var items []model.Network
	for rows.Next() {
		var n model.Network
		var info string
		var created, modified int64
		if err := rows.Scan(&n.NetworkID, &n.UnitID, &n.Code, &n.HostURI, &n.Name, &info, &created, &modified); err != nil {
			return model.Page[model.Network]{}, errors.NewDownstreamTransient("scan network row", err)
		}
		n.Info = decodeInfo(info)
		n.CreatedAt = fromMillis(created)
		n.ModifiedAt = fromMillis(modified)
		items = append(items, n)
	}
	items, next := trimPage(w, items)
	return model.Page[model.Network]{Items: items, NextCursor: next}, nil
}
