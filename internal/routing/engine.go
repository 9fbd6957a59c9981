package routing

import (
	"context"
	"encoding/json"
	"time"

	"github.com/sylvia-iot/broker-core/internal/appmgr"
	"github.com/sylvia-iot/broker-core/internal/cache"
	"github.com/sylvia-iot/broker-core/internal/errors"
	"github.com/sylvia-iot/broker-core/internal/idgen"
	"github.com/sylvia-iot/broker-core/internal/logger"
	"github.com/sylvia-iot/broker-core/internal/model"
	"github.com/sylvia-iot/broker-core/internal/netmgr"
)

// DefaultExpiresInMillis is the downlink buffer lifetime applied when a
// submission omits expiresIn.
const DefaultExpiresInMillis = 86_400_000

func encodeJSON(v any) ([]byte, error) { return json.Marshal(v) }

// NetworkUplinkHandler returns the netmgr.UplinkHandler bound to one
// network identity, run on every message received on that network's
// uldata queue.
func (e *Engine) NetworkUplinkHandler(id netmgr.Identity) netmgr.UplinkHandler {
	return func(ctx context.Context, frame netmgr.UplinkFrame) error {
		dev, err := e.resolver.Device(ctx, id.UnitCode, id.NetworkCode, frame.NetworkAddr, id.Public)
		if err != nil {
			logger.WarnCtx(ctx, "uplink address did not resolve to a device")
			return nil
		}

		targets, err := e.resolver.UplinkTargets(ctx, id.UnitCode, id.NetworkCode, frame.NetworkAddr, dev)
		if err != nil {
			return errors.NewDownstreamTransient("resolve uplink fan-out", err)
		}
		if len(targets) == 0 {
			return nil
		}

		msg := uplinkMessage{
			DataID:      idgen.New(),
			Time:        frame.Time,
			Publish:     time.Now().UTC(),
			DeviceID:    dev.DeviceID,
			NetworkID:   dev.NetworkID,
			NetworkCode: id.NetworkCode,
			NetworkAddr: frame.NetworkAddr,
			IsPublic:    id.Public,
			Profile:     dev.Profile,
			Data:        frame.Data,
			Extension:   frame.Extension,
		}

		for _, target := range targets {
			e.publishUplink(ctx, id.UnitCode, target, msg)
		}
		return nil
	}
}

func (e *Engine) publishUplink(ctx context.Context, unitCode string, target cache.RouteTarget, msg uplinkMessage) {
	mgr, ok := e.apps.AppManager(unitCode, target.ApplicationCode)
	if !ok {
		logger.WarnCtx(ctx, "uplink target application manager not ready")
		return
	}
	body, err := encodeJSON(msg)
	if err != nil {
		logger.ErrorCtx(ctx, "encode uplink message failed")
		return
	}
	if err := mgr.PublishUplink(ctx, body); err != nil {
		logger.WarnCtx(ctx, "uplink publish to application failed")
	}
}

// NetworkResultHandler returns the netmgr.ResultHandler bound to one
// network identity, run on every message received on that network's
// dldata-result queue.
func (e *Engine) NetworkResultHandler(id netmgr.Identity) netmgr.ResultHandler {
	return func(ctx context.Context, result netmgr.ResultFrame) error {
		buf, err := e.model.DlData.GetByID(ctx, result.DataID)
		if err != nil {
			logger.WarnCtx(ctx, "dldata-result for unknown or expired buffer entry")
			return nil
		}
		e.forwardResult(ctx, buf, resultMessage{DataID: result.DataID, Status: result.Status, Message: result.Message})
		return nil
	}
}

func (e *Engine) forwardResult(ctx context.Context, buf *model.DlDataBuffer, msg resultMessage) {
	if app, err := e.model.Application.GetByID(ctx, buf.ApplicationID); err == nil {
		if mgr, ok := e.apps.AppManager(e.unitCodeByID(ctx, buf.UnitID), app.Code); ok {
			if body, err := encodeJSON(msg); err == nil {
				if err := mgr.PublishResult(ctx, body); err != nil {
					logger.WarnCtx(ctx, "forward dldata-result to application failed")
				}
			}
		}
	}
	if msg.Status >= 0 {
		if err := e.model.DlData.Delete(ctx, buf.DataID); err != nil {
			logger.WarnCtx(ctx, "delete delivered downlink buffer entry failed")
		}
	}
}

func (e *Engine) unitCodeByID(ctx context.Context, unitID string) string {
	unit, err := e.model.Unit.GetByID(ctx, unitID)
	if err != nil {
		return ""
	}
	return unit.Code
}

// ApplicationDownlinkHandler returns the appmgr.DownlinkHandler bound to one
// application identity: validates the submission, resolves its target
// device, and persists a DlDataBuffer correlation entry. The actual
// network-bound send is performed by ApplicationAcceptedHook, after the
// accept dldata-resp has been sent to the application.
func (e *Engine) ApplicationDownlinkHandler(id appmgr.Identity) appmgr.DownlinkHandler {
	return func(ctx context.Context, req appmgr.DownlinkRequest) (string, error) {
		dev, err := e.resolveSubmissionDevice(ctx, id, req)
		if err != nil {
			return "", err
		}

		appRec, err := e.model.Application.GetByCode(ctx, dev.UnitID, id.ApplicationCode)
		if err != nil {
			return "", errors.NewNotFound(errors.CodeApplicationNotExist, "submitting application not found").WithCause(err)
		}
		if dev.UnitID != appRec.UnitID {
			return "", errors.NewInvariant(errors.CodeDeviceUnitMismatch, "device does not belong to the submitting application's unit")
		}

		expiresIn := req.ExpiresIn
		if expiresIn <= 0 {
			expiresIn = time.Duration(e.defaultExpiresIn) * time.Millisecond
		}

		dataID := idgen.New()
		now := time.Now().UTC()
		buf := &model.DlDataBuffer{
			DataID:        dataID,
			UnitID:        dev.UnitID,
			ApplicationID: appRec.ApplicationID,
			NetworkID:     dev.NetworkID,
			DeviceID:      dev.DeviceID,
			CreatedAt:     now,
			ExpiresAt:     now.Add(expiresIn),
		}
		if err := e.model.DlData.Add(ctx, buf); err != nil {
			return "", errors.NewDownstreamTransient("persist downlink buffer entry", err)
		}
		return dataID, nil
	}
}

// resolveSubmissionDevice resolves a downlink submission's target device,
// trying a private network under the submitting application's unit first
// and falling back to a public network, since the submission's networkCode
// alone does not say which.
func (e *Engine) resolveSubmissionDevice(ctx context.Context, id appmgr.Identity, req appmgr.DownlinkRequest) (cache.DeviceIdentity, error) {
	if req.DeviceID != "" {
		return e.resolver.DeviceByID(ctx, req.DeviceID)
	}
	dev, err := e.resolver.Device(ctx, id.UnitCode, req.NetworkCode, req.NetworkAddr, false)
	if err == nil {
		return dev, nil
	}
	return e.resolver.Device(ctx, "_", req.NetworkCode, req.NetworkAddr, true)
}

// ApplicationAcceptedHook returns the appmgr.DownlinkAcceptedHook bound to
// one application identity: publishes the downlink on the resolved
// network's dldata queue, and on failure synthesizes an error dldata-result
// back to the application rather than leaving it waiting.
func (e *Engine) ApplicationAcceptedHook(id appmgr.Identity) appmgr.DownlinkAcceptedHook {
	return func(ctx context.Context, req appmgr.DownlinkRequest, dataID string) {
		buf, err := e.model.DlData.GetByID(ctx, dataID)
		if err != nil {
			return
		}
		network, err := e.model.Network.GetByID(ctx, buf.NetworkID)
		if err != nil {
			e.failDownlink(ctx, id, dataID, "network resolution failed after accept")
			return
		}
		netUnitCode := "_"
		if network.UnitID != "" {
			netUnitCode = e.unitCodeByID(ctx, network.UnitID)
		}

		mgr, ok := e.nets.NetManager(netUnitCode, network.Code)
		if !ok {
			e.failDownlink(ctx, id, dataID, "network manager not ready")
			return
		}

		expiresIn := req.ExpiresIn
		if expiresIn <= 0 {
			expiresIn = time.Duration(e.defaultExpiresIn) * time.Millisecond
		}
		networkAddr := req.NetworkAddr
		if dev, err := e.resolver.DeviceByID(ctx, buf.DeviceID); err == nil {
			networkAddr = dev.NetworkAddr
		}
		msg := downlinkMessage{
			DataID:      dataID,
			Pub:         time.Now().UTC(),
			ExpiresIn:   expiresIn.Milliseconds(),
			NetworkAddr: networkAddr,
			Data:        req.Data,
			Extension:   req.Extension,
		}
		body, err := encodeJSON(msg)
		if err != nil {
			e.failDownlink(ctx, id, dataID, "encode downlink message failed")
			return
		}
		if err := mgr.SendDownlink(ctx, body); err != nil {
			e.failDownlink(ctx, id, dataID, "network send failed")
		}
	}
}

// failDownlink synthesizes an error dldata-result to the submitting
// application when the network-bound send fails after accept, per the
// ordering guarantee that the application treats the initial accept as
// provisional.
func (e *Engine) failDownlink(ctx context.Context, id appmgr.Identity, dataID, message string) {
	logger.WarnCtx(ctx, message)
	mgr, ok := e.apps.AppManager(id.UnitCode, id.ApplicationCode)
	if !ok {
		return
	}
	body, err := encodeJSON(resultMessage{DataID: dataID, Status: -1, Message: message})
	if err != nil {
		return
	}
	_ = mgr.PublishResult(ctx, body)
}

// Reap scans for expired downlink buffer entries, reports a synthetic
// timeout result to each owning application, and deletes the entries.
// cmd/broker drives it from a periodic ticker.
func (e *Engine) Reap(ctx context.Context, limit int) (int, error) {
	expired, err := e.model.DlData.ListExpired(ctx, time.Now().UTC(), limit)
	if err != nil {
		return 0, err
	}
	for i := range expired {
		buf := expired[i]
		e.forwardResult(ctx, &buf, resultMessage{DataID: buf.DataID, Status: -1, Message: "downlink expired before delivery result"})
		if err := e.model.DlData.Delete(ctx, buf.DataID); err != nil {
			logger.WarnCtx(ctx, "delete expired downlink buffer entry failed")
		}
	}
	return len(expired), nil
}
