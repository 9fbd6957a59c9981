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

// DlDataStore implements model.DlDataStore.
type DlDataStore struct{ db *DB }

// NewDlDataStore returns a DlDataStore backed by db.
func NewDlDataStore(db *DB) *DlDataStore { return &DlDataStore{db: db} }

func (s *DlDataStore) Add(ctx context.Context, d *model.DlDataBuffer) error {
	_, err := s.db.sql.ExecContext(ctx,
		`INSERT INTO dldata_buffer (data_id, unit_id, application_id, network_id, device_id, created_at, expires_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		d.DataID, d.UnitID, d.ApplicationID, d.NetworkID, d.DeviceID, toMillis(d.CreatedAt), toMillis(d.ExpiresAt),
	)
	if err != nil {
		return errors.NewDownstreamTransient("insert dldata buffer", err)
	}
	return nil
}

func (s *DlDataStore) GetByID(ctx context.Context, dataID string) (*model.DlDataBuffer, error) {
	row := s.db.sql.QueryRowContext(ctx,
		`SELECT data_id, unit_id, application_id, network_id, device_id, created_at, expires_at
		 FROM dldata_buffer WHERE data_id = ?`, dataID)
	var d model.DlDataBuffer
	var created, expires int64
	err := row.Scan(&d.DataID, &d.UnitID, &d.ApplicationID, &d.NetworkID, &d.DeviceID, &created, &expires)
	if err == sql.ErrNoRows {
		return nil, errors.NewNotFound(errors.CodeUnknown, "downlink buffer entry not found")
	}
	if err != nil {
		return nil, errors.NewDownstreamTransient("scan dldata buffer", err)
	}
	d.CreatedAt = fromMillis(created)
	d.ExpiresAt = fromMillis(expires)
	return &d, nil
}

func (s *DlDataStore) Delete(ctx context.Context, dataID string) error {
	if _, err := s.db.sql.ExecContext(ctx, `DELETE FROM dldata_buffer WHERE data_id = ?`, dataID); err != nil {
		return errors.NewDownstreamTransient("delete dldata buffer", err)
	}
	return nil
}

func (s *DlDataStore) ListExpired(ctx context.Context, asOf time.Time, limit int) ([]model.DlDataBuffer, error) {
	rows, err := s.db.sql.QueryContext(ctx,
		`SELECT data_id, unit_id, application_id, network_id, device_id, created_at, expires_at
		 FROM dldata_buffer WHERE expires_at <= ? ORDER BY expires_at ASC LIMIT ?`,
		toMillis(asOf), limitOrAll(limit))
	if err != nil {
		return nil, errors.NewDownstreamTransient("list expired dldata buffers", err)
	}
	defer rows.Close()

	var out []model.DlDataBuffer
	for rows.Next() {
		var d model.DlDataBuffer
		var created, expires int64
		if err := rows.Scan(&d.DataID, &d.UnitID, &d.ApplicationID, &d.NetworkID, &d.DeviceID, &created, &expires); err != nil {
			return nil, errors.NewDownstreamTransient("scan expired dldata buffer row", err)
		}
		d.CreatedAt = fromMillis(created)
		d.ExpiresAt = fromMillis(expires)
		out = append(out, d)
	}
	return out, nil
}

func (s *DlDataStore) whereClause(cond model.DlDataListCond) (string, []any) {
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

func (s *DlDataStore) Count(ctx context.Context, cond model.DlDataListCond) (int, error) {
	where, args := s.whereClause(cond)
	var n int
	err := s.db.sql.QueryRowContext(ctx, "SELECT COUNT(*) FROM dldata_buffer"+where, args...).Scan(&n)
	if err != nil {
		return 0, errors.NewDownstreamTransient("count dldata buffers", err)
	}
	return n, nil
}

func (s *DlDataStore) List(ctx context.Context, cond model.DlDataListCond, opts model.ListOptions) (model.Page[model.DlDataBuffer], error) {
	where, args := s.whereClause(cond)
	orderBy := buildOrderBy(opts.Sort, map[string]string{
		model.DlDataSortCreatedAt: "created_at",
		model.DlDataSortExpiresAt: "expires_at",
	}, "data_id")

	w, err := resolveListWindow(opts)
	if err != nil {
		return model.Page[model.DlDataBuffer]{}, err
	}
	q := fmt.Sprintf(
		`SELECT data_id, unit_id, application_id, network_id, device_id, created_at, expires_at
		 FROM dldata_buffer%s ORDER BY %s LIMIT ? OFFSET ?`, where, orderBy)
	args = append(args, w.fetchLimit, w.offset)

	rows, err := s.db.sql.QueryContext(ctx, q, args...)
	if err != nil {
		return model.Page[model.DlDataBuffer]{}, errors.NewDownstreamTransient("list dldata buffers", err)
	}
	defer rows.Close()

	var items []model.DlDataBuffer
	for rows.Next() {
		var d model.DlDataBuffer
		var created, expires int64
		if err := rows.Scan(&d.DataID, &d.UnitID, &d.ApplicationID, &d.NetworkID, &d.DeviceID, &created, &expires); err != nil {
			return model.Page[model.DlDataBuffer]{}, errors.NewDownstreamTransient("scan dldata buffer row", err)
		}
		d.CreatedAt = fromMillis(created)
		d.ExpiresAt = fromMillis(expires)
		items = append(items, d)
	}
	items, next := trimPage(w, items)
	return model.Page[model.DlDataBuffer]{Items: items, NextCursor: next}, nil
}

// NewModel wires every store implementation into a model.Model locator.
func NewModel(db *DB) *model.Model {
	return &model.Model{
		Unit:         NewUnitStore(db),
		Application:  NewApplicationStore(db),
		Network:      NewNetworkStore(db),
		Device:       NewDeviceStore(db),
		DeviceRoute:  NewDeviceRouteStore(db),
		NetworkRoute: NewNetworkRouteStore(db),
		DlData:       NewDlDataStore(db),
	}
}
