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

// DeviceStore implements model.DeviceStore.
type DeviceStore struct{ db *DB }

// NewDeviceStore returns a DeviceStore backed by db.
func NewDeviceStore(db *DB) *DeviceStore { return &DeviceStore{db: db} }

func (s *DeviceStore) Add(ctx context.Context, d *model.Device) error {
	_, err := s.db.sql.ExecContext(ctx,
		`INSERT INTO device (device_id, unit_id, network_id, network_addr, profile, name, info, created_at, modified_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		d.DeviceID, d.UnitID, d.NetworkID, d.NetworkAddr, d.Profile, d.Name, encodeInfo(d.Info),
		toMillis(d.CreatedAt), toMillis(d.ModifiedAt),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return errors.NewConflict(errors.CodeParamInvalid, "device address already exists on network").
				WithContext("network_id", d.NetworkID).WithContext("network_addr", d.NetworkAddr)
		}
		return errors.NewDownstreamTransient("insert device", err)
	}
	return nil
}

func (s *DeviceStore) GetByID(ctx context.Context, deviceID string) (*model.Device, error) {
	row := s.db.sql.QueryRowContext(ctx,
		`SELECT device_id, unit_id, network_id, network_addr, profile, name, info, created_at, modified_at
		 FROM device WHERE device_id = ?`, deviceID)
	return scanDevice(row)
}

func (s *DeviceStore) GetByAddr(ctx context.Context, networkID, networkAddr string) (*model.Device, error) {
	row := s.db.sql.QueryRowContext(ctx,
		`SELECT device_id, unit_id, network_id, network_addr, profile, name, info, created_at, modified_at
		 FROM device WHERE network_id = ? AND network_addr = ?`, networkID, networkAddr)
	return scanDevice(row)
}

func scanDevice(row *sql.Row) (*model.Device, error) {
	var d model.Device
	var info string
	var created, modified int64
	err := row.Scan(&d.DeviceID, &d.UnitID, &d.NetworkID, &d.NetworkAddr, &d.Profile, &d.Name, &info, &created, &modified)
	if err == sql.ErrNoRows {
		return nil, errors.NewNotFound(errors.CodeDeviceNotExist, "device not found")
	}
	if err != nil {
		return nil, errors.NewDownstreamTransient("scan device", err)
	}
	d.Info = decodeInfo(info)
	d.CreatedAt = fromMillis(created)
	d.ModifiedAt = fromMillis(modified)
	return &d, nil
}

func (s *DeviceStore) Update(ctx context.Context, deviceID string, updates model.DeviceUpdates) error {
	sets := []string{"modified_at = ?"}
	args := []any{toMillis(time.Now())}

	if v, ok := updates.Profile.Get(); ok {
		sets = append(sets, "profile = ?")
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

	args = append(args, deviceID)
	q := fmt.Sprintf("UPDATE device SET %s WHERE device_id = ?", strings.Join(sets, ", "))
	if _, err := s.db.sql.ExecContext(ctx, q, args...); err != nil {
		return errors.NewDownstreamTransient("update device", err)
	}
	return nil
}

// Move relocates the device and bumps modified_at. The caller is
// responsible for calling DeviceRouteStore.RefreshDeviceIdentity afterward
// so denormalized route rows stay consistent.
func (s *DeviceStore) Move(ctx context.Context, deviceID, networkID, networkAddr string) error {
	res, err := s.db.sql.ExecContext(ctx,
		`UPDATE device SET network_id = ?, network_addr = ?, modified_at = ? WHERE device_id = ?`,
		networkID, networkAddr, toMillis(time.Now()), deviceID)
	if err != nil {
		if isUniqueViolation(err) {
			return errors.NewConflict(errors.CodeParamInvalid, "device address already exists on target network").
				WithContext("network_id", networkID).WithContext("network_addr", networkAddr)
		}
		return errors.NewDownstreamTransient("move device", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return errors.NewNotFound(errors.CodeDeviceNotExist, "device not found")
	}
	return nil
}

func (s *DeviceStore) Delete(ctx context.Context, deviceID string) error {
	if _, err := s.db.sql.ExecContext(ctx, `DELETE FROM device WHERE device_id = ?`, deviceID); err != nil {
		return errors.NewDownstreamTransient("delete device", err)
	}
	return nil
}

func (s *DeviceStore) whereClause(cond model.DeviceListCond) (string, []any) {
	var clauses []string
	var args []any
	if cond.UnitID != "" {
		clauses = append(clauses, "unit_id = ?")
		args = append(args, cond.UnitID)
	}
	if cond.NetworkID != "" {
		clauses = append(clauses, "network_id = ?")
		args = append(args, cond.NetworkID)
	}
	if cond.NetworkAddr != "" {
		clauses = append(clauses, "network_addr = ?")
		args = append(args, cond.NetworkAddr)
	}
	if cond.NetworkAddrContains != "" {
		clauses = append(clauses, "network_addr LIKE ? ESCAPE '\\'")
		args = append(args, likePattern(cond.NetworkAddrContains))
	}
	if cond.Profile != "" {
		clauses = append(clauses, "profile = ?")
		args = append(args, cond.Profile)
	}
	if len(clauses) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(clauses, " AND "), args
}

func (s *DeviceStore) Count(ctx context.Context, cond model.DeviceListCond) (int, error) {
	where, args := s.whereClause(cond)
	var n int
	err := s.db.sql.QueryRowContext(ctx, "SELECT COUNT(*) FROM device"+where, args...).Scan(&n)
	if err != nil {
		return 0, errors.NewDownstreamTransient("count devices", err)
	}
	return n, nil
}

func (s *DeviceStore) List(ctx context.Context, cond model.DeviceListCond, opts model.ListOptions) (model.Page[model.Device], error) {
	where, args := s.whereClause(cond)
	orderBy := buildOrderBy(opts.Sort, map[string]string{
		model.DeviceSortNetworkAddr: "network_addr",
		model.DeviceSortCreatedAt:   "created_at",
		model.DeviceSortModifiedAt:  "modified_at",
	}, "device_id")

	w, err := resolveListWindow(opts)
	if err != nil {
		return model.Page[model.Device]{}, err
	}
	q := fmt.Sprintf(
		`SELECT device_id, unit_id, network_id, network_addr, profile, name, info, created_at, modified_at
		 FROM device%s ORDER BY %s LIMIT ? OFFSET ?`, where, orderBy)
	args = append(args, w.fetchLimit, w.offset)

	rows, err := s.db.sql.QueryContext(ctx, q, args...)
	if err != nil {
		return model.Page[model.Device]{}, errors.NewDownstreamTransient("list devices", err)
	}
	defer rows.Close()

	var items []model.Device
	for rows.Next() {
		var d model.Device
		var info string
		var created, modified int64
		if err := rows.Scan(&d.DeviceID, &d.UnitID, &d.NetworkID, &d.NetworkAddr, &d.Profile, &d.Name, &info, &created, &modified); err != nil {
			return model.Page[model.Device]{}, errors.NewDownstreamTransient("scan device row", err)
		}
		d.Info = decodeInfo(info)
		d.CreatedAt = fromMillis(created)
		d.ModifiedAt = fromMillis(modified)
		items = append(items, d)
	}
	items, next := trimPage(w, items)
	return model.Page[model.Device]{Items: items, NextCursor: next}, nil
}
