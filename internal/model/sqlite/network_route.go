package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/sylvia-iot/broker-core/internal/errors"
	"github.com/sylvia-iot/broker-core/internal/model"
)

// NetworkRouteStore implements model.NetworkRouteStore.
type NetworkRouteStore struct{ db *DB }

// NewNetworkRouteStore returns a NetworkRouteStore backed by db.
func NewNetworkRouteStore(db *DB) *NetworkRouteStore { return &NetworkRouteStore{db: db} }

func (s *NetworkRouteStore) Add(ctx context.Context, r *model.NetworkRoute) error {
	_, err := s.db.sql.ExecContext(ctx,
		`INSERT INTO network_route (route_id, unit_id, application_id, network_id, network_code, application_code, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		r.RouteID, r.UnitID, r.ApplicationID, r.NetworkID, r.NetworkCode, r.ApplicationCode, toMillis(r.CreatedAt),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return errors.NewConflict(errors.CodeRouteExist, "network route already exists").
				WithContext("application_id", r.ApplicationID).WithContext("network_id", r.NetworkID)
		}
		return errors.NewDownstreamTransient("insert network route", err)
	}
	return nil
}

func (s *NetworkRouteStore) GetByID(ctx context.Context, routeID string) (*model.NetworkRoute, error) {
	row := s.db.sql.QueryRowContext(ctx,
		`SELECT route_id, unit_id, application_id, network_id, network_code, application_code, created_at
		 FROM network_route WHERE route_id = ?`, routeID)
	return scanNetworkRoute(row)
}

func scanNetworkRoute(row *sql.Row) (*model.NetworkRoute, error) {
	var r model.NetworkRoute
	var created int64
	err := row.Scan(&r.RouteID, &r.UnitID, &r.ApplicationID, &r.NetworkID, &r.NetworkCode, &r.ApplicationCode, &created)
	if err == sql.ErrNoRows {
		return nil, errors.NewNotFound(errors.CodeRouteNotExist, "network route not found")
	}
	if err != nil {
		return nil, errors.NewDownstreamTransient("scan network route", err)
	}
	r.CreatedAt = fromMillis(created)
	return &r, nil
}

func (s *NetworkRouteStore) ListByNetwork(ctx context.Context, networkID string) ([]model.NetworkRoute, error) {
	rows, err := s.db.sql.QueryContext(ctx,
		`SELECT route_id, unit_id, application_id, network_id, network_code, application_code, created_at
		 FROM network_route WHERE network_id = ?`, networkID)
	if err != nil {
		return nil, errors.NewDownstreamTransient("list network routes by network", err)
	}
	defer rows.Close()
	var out []model.NetworkRoute
	for rows.Next() {
		var r model.NetworkRoute
		var created int64
		if err := rows.Scan(&r.RouteID, &r.UnitID, &r.ApplicationID, &r.NetworkID, &r.NetworkCode, &r.ApplicationCode, &created); err != nil {
			return nil, errors.NewDownstreamTransient("scan network route row", err)
		}
		r.CreatedAt = fromMillis(created)
		out = append(out, r)
	}
	return out, nil
}

func (s *NetworkRouteStore) Delete(ctx context.Context, routeID string) error {
	if _, err := s.db.sql.ExecContext(ctx, `DELETE FROM network_route WHERE route_id = ?`, routeID); err != nil {
		return errors.NewDownstreamTransient("delete network route", err)
	}
	return nil
}

func (s *NetworkRouteStore) whereClause(cond model.NetworkRouteListCond) (string, []any) {
	var clauses []string
	var args []any
	if cond.UnitID != "" {
		clauses = append(clauses, "unit_id = ?")
		args = append(args, cond.UnitID)
	}
	if cond.ApplicationID != "" {
		clauses = append(clauses, "application_id = ?")
		args = append(args, cond.ApplicationID)
	}
	if cond.NetworkID != "" {
		clauses = append(clauses, "network_id = ?")
		args = append(args, cond.NetworkID)
	}
	if len(clauses) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(clauses, " AND "), args
}

func (s *NetworkRouteStore) Count(ctx context.Context, cond model.NetworkRouteListCond) (int, error) {
	where, args := s.whereClause(cond)
	var n int
	err := s.db.sql.QueryRowContext(ctx, "SELECT COUNT(*) FROM network_route"+where, args...).Scan(&n)
	if err != nil {
		return 0, errors.NewDownstreamTransient("count network routes", err)
	}
	return n, nil
}

func (s *NetworkRouteStore) List(ctx context.Context, cond model.NetworkRouteListCond, opts model.ListOptions) (model.Page[model.NetworkRoute], error) {
	where, args := s.whereClause(cond)
	orderBy := buildOrderBy(opts.Sort, map[string]string{
		model.RouteSortNetworkCode:     "network_code",
		model.RouteSortApplicationCode: "application_code",
		model.RouteSortCreatedAt:       "created_at",
	}, "route_id")

	w, err := resolveListWindow(opts)
	if err != nil {
		return model.Page[model.NetworkRoute]{}, err
	}
	q := fmt.Sprintf(
		`SELECT route_id, unit_id, application_id, network_id, network_code, application_code, created_at
		 FROM network_route%s ORDER BY %s LIMIT ? OFFSET ?`, where, orderBy)
	args = append(args, w.fetchLimit, w.offset)

	rows, err := s.db.sql.QueryContext(ctx, q, args...)
	if err != nil {
		return model.Page[model.NetworkRoute]{}, errors.NewDownstreamTransient("list network routes", err)
	}
	defer rows.Close()

	var items []model.NetworkRoute
	for rows.Next() {
		var r model.NetworkRoute
		var created int64
		if err := rows.Scan(&r.RouteID, &r.UnitID, &r.ApplicationID, &r.NetworkID, &r.NetworkCode, &r.ApplicationCode, &created); err != nil {
			return model.Page[model.NetworkRoute]{}, errors.NewDownstreamTransient("scan network route row", err)
		}
		r.CreatedAt = fromMillis(created)
		items = append(items, r)
	}
	items, next := trimPage(w, items)
	return model.Page[model.NetworkRoute]{Items: items, NextCursor: next}, nil
}
