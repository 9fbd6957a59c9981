package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/sylvia-iot/broker-core/internal/errors"
	"github.com/sylvia-iot/broker-core/internal/model"
)

// DeviceRouteStore implements model.DeviceRouteStore.
type DeviceRouteStore struct{ db *DB }

// NewDeviceRouteStore returns a DeviceRouteStore backed by db.
func NewDeviceRouteStore(db *DB) *DeviceRouteStore { return &DeviceRouteStore{db: db} }

func (s *DeviceRouteStore) Add(ctx context.Context, r *model.DeviceRoute) error {
	_, err := s.db.sql.ExecContext(ctx,
		`INSERT INTO device_route
		 (route_id, unit_id, application_id, device_id, network_id, network_code, network_addr, profile, application_code, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.RouteID, r.UnitID, r.ApplicationID, r.DeviceID, r.NetworkID, r.NetworkCode, r.NetworkAddr, r.Profile,
		r.ApplicationCode, toMillis(r.CreatedAt),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return errors.NewConflict(errors.CodeRouteExist, "device route already exists").
				WithContext("application_id", r.ApplicationID).WithContext("device_id", r.DeviceID)
		}
		return errors.NewDownstreamTransient("insert device route", err)
	}
	return nil
}

func (s *DeviceRouteStore) GetByID(ctx context.Context, routeID string) (*model.DeviceRoute, error) {
	row := s.db.sql.QueryRowContext(ctx,
		`SELECT route_id, unit_id, application_id, device_id, network_id, network_code, network_addr, profile, application_code, created_at
		 FROM device_route WHERE route_id = ?`, routeID)
	return scanDeviceRoute(row)
}

func scanDeviceRoute(row *sql.Row) (*model.DeviceRoute, error) {
	var r model.DeviceRoute
	var created int64
	err := row.Scan(&r.RouteID, &r.UnitID, &r.ApplicationID, &r.DeviceID, &r.NetworkID, &r.NetworkCode,
		&r.NetworkAddr, &r.Profile, &r.ApplicationCode, &created)
	if err == sql.ErrNoRows {
		return nil, errors.NewNotFound(errors.CodeRouteNotExist, "device route not found")
	}
	if err != nil {
		return nil, errors.NewDownstreamTransient("scan device route", err)
	}
	r.CreatedAt = fromMillis(created)
	return &r, nil
}

func (s *DeviceRouteStore) ListByDevice(ctx context.Context, deviceID string) ([]model.DeviceRoute, error) {
	rows, err := s.db.sql.QueryContext(ctx,
		`SELECT route_id, unit_id, application_id, device_id, network_id, network_code, network_addr, profile, application_code, created_at
		 FROM device_route WHERE device_id = ?`, deviceID)
	if err != nil {
		return nil, errors.NewDownstreamTransient("list device routes by device", err)
	}
	defer rows.Close()
	return scanDeviceRoutes(rows)
}

func scanDeviceRoutes(rows *sql.Rows) ([]model.DeviceRoute, error) {
	var out []model.DeviceRoute
	for rows.Next() {
		var r model.DeviceRoute
		var created int64
		if err := rows.Scan(&r.RouteID, &r.UnitID, &r.ApplicationID, &r.DeviceID, &r.NetworkID, &r.NetworkCode,
			&r.NetworkAddr, &r.Profile, &r.ApplicationCode, &created); err != nil {
			return nil, errors.NewDownstreamTransient("scan device route row", err)
		}
		r.CreatedAt = fromMillis(created)
		out = append(out, r)
	}
	return out, nil
}

func (s *DeviceRouteStore) RefreshDeviceIdentity(ctx context.Context, deviceID, networkID, networkCode, networkAddr, profile string) error {
	_, err := s.db.sql.ExecContext(ctx,
		`UPDATE device_route SET network_id = ?, network_code = ?, network_addr = ?, profile = ? WHERE device_id = ?`,
		networkID, networkCode, networkAddr, profile, deviceID)
	if err != nil {
		return errors.NewDownstreamTransient("refresh device route identity", err)
	}
	return nil
}

func (s *DeviceRouteStore) Delete(ctx context.Context, routeID string) error {
	if _, err := s.db.sql.ExecContext(ctx, `DELETE FROM device_route WHERE route_id = ?`, routeID); err != nil {
		return errors.NewDownstreamTransient("delete device route", err)
	}
	return nil
}

func (s *DeviceRouteStore) DeleteByDeviceAndApplication(ctx context.Context, deviceID, applicationID string) error {
	_, err := s.db.sql.ExecContext(ctx,
		`DELETE FROM device_route WHERE device_id = ? AND application_id = ?`, deviceID, applicationID)
	if err != nil {
		return errors.NewDownstreamTransient("delete device route by device and application", err)
	}
	return nil
}

func (s *DeviceRouteStore) whereClause(cond model.DeviceRouteListCond) (string, []any) {
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
	if cond.DeviceID != "" {
		clauses = append(clauses, "device_id = ?")
		args = append(args, cond.DeviceID)
	}
	if len(clauses) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(clauses, " AND "), args
}

func (s *DeviceRouteStore) Count(ctx context.Context, cond model.DeviceRouteListCond) (int, error) {
	where, args := s.whereClause(cond)
	var n int
	err := s.db.sql.QueryRowContext(ctx, "SELECT COUNT(*) FROM device_route"+where, args...).Scan(&n)
	if err != nil {
		return 0, errors.NewDownstreamTransient("count device routes", err)
	}
	return n, nil
}

func (s *DeviceRouteStore) List(ctx context.Context, cond model.DeviceRouteListCond, opts model.ListOptions) (model.Page[model.DeviceRoute], error) {
	where, args := s.whereClause(cond)
	orderBy := buildOrderBy(opts.Sort, map[string]string{
		model.RouteSortNetworkCode:     "network_code",
		model.RouteSortApplicationCode: "application_code",
		model.RouteSortCreatedAt:       "created_at",
	}, "route_id")

	w, err := resolveListWindow(opts)
	if err != nil {
		return model.Page[model.DeviceRoute]{}, err
	}
	q := fmt.Sprintf(
		`SELECT route_id, unit_id, application_id, device_id, network_id, network_code, network_addr, profile, application_code, created_at
		 FROM device_route%s ORDER BY %s LIMIT ? OFFSET ?`, where, orderBy)
	args = append(args, w.fetchLimit, w.offset)

	rows, err := s.db.sql.QueryContext(ctx, q, args...)
	if err != nil {
		return model.Page[model.DeviceRoute]{}, errors.NewDownstreamTransient("list device routes", err)
	}
	defer rows.Close()
	items, err := scanDeviceRoutes(rows)
	if err != nil {
		return model.Page[model.DeviceRoute]{}, err
	}
	items, next := trimPage(w, items)
	return model.Page[model.DeviceRoute]{Items: items, NextCursor: next}, nil
}
