package routing

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sylvia-iot/broker-core/internal/appmgr"
	"github.com/sylvia-iot/broker-core/internal/model"
	"github.com/sylvia-iot/broker-core/internal/netmgr"
)

func TestEngine_NetworkUplinkHandler_FansOutToResolvedApplication(t *testing.T) {
	m := newTestModel(t)
	seedUnit(t, m, "u1", "unit1")
	seedNetwork(t, m, "n1", "u1", "net1")
	seedDevice(t, m, "d1", "u1", "n1", "aabbcc")
	seedApplication(t, m, "app1", "u1", "application1")
	now := truncMillis(time.Now())
	require.NoError(t, m.DeviceRoute.Add(context.Background(), &model.DeviceRoute{
		RouteID: "r1", UnitID: "u1", ApplicationID: "app1", DeviceID: "d1",
		NetworkID: "n1", NetworkCode: "net1", NetworkAddr: "aabbcc", CreatedAt: now,
	}))

	appMgr, appTr := newTestAppManager(t, "unit1", "application1", nil)
	engine := New(m, newTestCache(), stubAppLookup{appKey("unit1", "application1"): appMgr}, stubNetLookup{}, DefaultExpiresInMillis)

	netID := netmgr.Identity{UnitCode: "unit1", NetworkCode: "net1", Public: false}
	handler := engine.NetworkUplinkHandler(netID)
	require.NoError(t, handler(context.Background(), netmgr.UplinkFrame{NetworkAddr: "aabbcc", Data: "0102", Time: now}))

	uplinkQueue := appTr.queues["broker.application.unit1.application1.uldata"]
	require.NotNil(t, uplinkQueue)
	require.Len(t, uplinkQueue.sent, 1)
	var got map[string]any
	require.NoError(t, json.Unmarshal(uplinkQueue.sent[0], &got))
	assert.Equal(t, "aabbcc", got["networkAddr"])
	assert.Equal(t, "d1", got["deviceId"])
}

func TestEngine_NetworkUplinkHandler_UnresolvedAddressIsNotAnError(t *testing.T) {
	m := newTestModel(t)
	engine := New(m, newTestCache(), stubAppLookup{}, stubNetLookup{}, DefaultExpiresInMillis)

	netID := netmgr.Identity{UnitCode: "unit1", NetworkCode: "net1"}
	handler := engine.NetworkUplinkHandler(netID)
	err := handler(context.Background(), netmgr.UplinkFrame{NetworkAddr: "unknown", Data: "0102", Time: time.Now()})
	assert.NoError(t, err)
}

func TestEngine_NetworkUplinkHandler_NoTargetsIsANoop(t *testing.T) {
	m := newTestModel(t)
	seedUnit(t, m, "u1", "unit1")
	seedNetwork(t, m, "n1", "u1", "net1")
	seedDevice(t, m, "d1", "u1", "n1", "aabbcc")

	engine := New(m, newTestCache(), stubAppLookup{}, stubNetLookup{}, DefaultExpiresInMillis)
	netID := netmgr.Identity{UnitCode: "unit1", NetworkCode: "net1"}
	handler := engine.NetworkUplinkHandler(netID)
	err := handler(context.Background(), netmgr.UplinkFrame{NetworkAddr: "aabbcc", Data: "0102", Time: time.Now()})
	assert.NoError(t, err)
}

func TestEngine_NetworkResultHandler_ForwardsAndDeletesOnFinalStatus(t *testing.T) {
	m := newTestModel(t)
	seedUnit(t, m, "u1", "unit1")
	seedApplication(t, m, "app1", "u1", "application1")
	now := time.Now().UTC()
	require.NoError(t, m.DlData.Add(context.Background(), &model.DlDataBuffer{
		DataID: "dl1", UnitID: "u1", ApplicationID: "app1", NetworkID: "n1", DeviceID: "d1",
		CreatedAt: now, ExpiresAt: now.Add(time.Hour),
	}))

	appMgr, appTr := newTestAppManager(t, "unit1", "application1", nil)
	engine := New(m, newTestCache(), stubAppLookup{appKey("unit1", "application1"): appMgr}, stubNetLookup{}, DefaultExpiresInMillis)

	netID := netmgr.Identity{UnitCode: "unit1", NetworkCode: "net1"}
	handler := engine.NetworkResultHandler(netID)
	require.NoError(t, handler(context.Background(), netmgr.ResultFrame{DataID: "dl1", Status: 0}))

	resultQueue := appTr.queues["broker.application.unit1.application1.dldata-result"]
	require.NotNil(t, resultQueue)
	require.Len(t, resultQueue.sent, 1)

	_, err := m.DlData.GetByID(context.Background(), "dl1")
	assert.Error(t, err)
}

func TestEngine_NetworkResultHandler_KeepsBufferEntryOnNonFinalStatus(t *testing.T) {
	m := newTestModel(t)
	seedUnit(t, m, "u1", "unit1")
	seedApplication(t, m, "app1", "u1", "application1")
	now := time.Now().UTC()
	require.NoError(t, m.DlData.Add(context.Background(), &model.DlDataBuffer{
		DataID: "dl1", UnitID: "u1", ApplicationID: "app1", NetworkID: "n1", DeviceID: "d1",
		CreatedAt: now, ExpiresAt: now.Add(time.Hour),
	}))

	appMgr, _ := newTestAppManager(t, "unit1", "application1", nil)
	engine := New(m, newTestCache(), stubAppLookup{appKey("unit1", "application1"): appMgr}, stubNetLookup{}, DefaultExpiresInMillis)

	netID := netmgr.Identity{UnitCode: "unit1", NetworkCode: "net1"}
	handler := engine.NetworkResultHandler(netID)
	require.NoError(t, handler(context.Background(), netmgr.ResultFrame{DataID: "dl1", Status: -2}))

	_, err := m.DlData.GetByID(context.Background(), "dl1")
	assert.NoError(t, err)
}

func TestEngine_NetworkResultHandler_UnknownDataIDIsNotAnError(t *testing.T) {
	m := newTestModel(t)
	engine := New(m, newTestCache(), stubAppLookup{}, stubNetLookup{}, DefaultExpiresInMillis)
	netID := netmgr.Identity{UnitCode: "unit1", NetworkCode: "net1"}
	handler := engine.NetworkResultHandler(netID)
	assert.NoError(t, handler(context.Background(), netmgr.ResultFrame{DataID: "missing", Status: 0}))
}

func TestEngine_ApplicationDownlinkHandler_ByDeviceIDPersistsBuffer(t *testing.T) {
	m := newTestModel(t)
	seedUnit(t, m, "u1", "unit1")
	seedNetwork(t, m, "n1", "u1", "net1")
	seedDevice(t, m, "d1", "u1", "n1", "aabbcc")
	seedApplication(t, m, "app1", "u1", "application1")

	engine := New(m, newTestCache(), stubAppLookup{}, stubNetLookup{}, DefaultExpiresInMillis)
	appID := appmgr.Identity{UnitCode: "unit1", ApplicationCode: "application1"}
	handler := engine.ApplicationDownlinkHandler(appID)

	dataID, err := handler(context.Background(), appmgr.DownlinkRequest{CorrelationID: "c1", DeviceID: "d1", Data: "0102"})
	require.NoError(t, err)
	require.NotEmpty(t, dataID)

	buf, err := m.DlData.GetByID(context.Background(), dataID)
	require.NoError(t, err)
	assert.Equal(t, "d1", buf.DeviceID)
	assert.Equal(t, "app1", buf.ApplicationID)
}

func TestEngine_ApplicationDownlinkHandler_DefaultsExpiresInWhenOmitted(t *testing.T) {
	m := newTestModel(t)
	seedUnit(t, m, "u1", "unit1")
	seedNetwork(t, m, "n1", "u1", "net1")
	seedDevice(t, m, "d1", "u1", "n1", "aabbcc")
	seedApplication(t, m, "app1", "u1", "application1")

	engine := New(m, newTestCache(), stubAppLookup{}, stubNetLookup{}, 60_000)
	appID := appmgr.Identity{UnitCode: "unit1", ApplicationCode: "application1"}
	handler := engine.ApplicationDownlinkHandler(appID)

	before := time.Now().UTC()
	dataID, err := handler(context.Background(), appmgr.DownlinkRequest{CorrelationID: "c1", DeviceID: "d1", Data: "0102"})
	require.NoError(t, err)

	buf, err := m.DlData.GetByID(context.Background(), dataID)
	require.NoError(t, err)
	assert.WithinDuration(t, before.Add(60*time.Second), buf.ExpiresAt, 2*time.Second)
}

func TestEngine_ApplicationDownlinkHandler_DeviceUnderDifferentUnitThanApplicationFails(t *testing.T) {
	m := newTestModel(t)
	seedUnit(t, m, "u1", "unit1")
	seedUnit(t, m, "u2", "unit2")
	seedNetwork(t, m, "n1", "u1", "net1")
	seedDevice(t, m, "d1", "u1", "n1", "aabbcc")
	seedApplication(t, m, "app1", "u2", "application1")

	engine := New(m, newTestCache(), stubAppLookup{}, stubNetLookup{}, DefaultExpiresInMillis)
	appID := appmgr.Identity{UnitCode: "unit2", ApplicationCode: "application1"}
	handler := engine.ApplicationDownlinkHandler(appID)

	_, err := handler(context.Background(), appmgr.DownlinkRequest{CorrelationID: "c1", DeviceID: "d1", Data: "0102"})
	require.Error(t, err)
}

func TestEngine_ApplicationDownlinkHandler_UnknownDeviceFails(t *testing.T) {
	m := newTestModel(t)
	engine := New(m, newTestCache(), stubAppLookup{}, stubNetLookup{}, DefaultExpiresInMillis)
	appID := appmgr.Identity{UnitCode: "unit1", ApplicationCode: "application1"}
	handler := engine.ApplicationDownlinkHandler(appID)

	_, err := handler(context.Background(), appmgr.DownlinkRequest{CorrelationID: "c1", DeviceID: "missing", Data: "0102"})
	assert.Error(t, err)
}

func TestEngine_ApplicationAcceptedHook_SendsDownlinkOnResolvedNetwork(t *testing.T) {
	m := newTestModel(t)
	seedUnit(t, m, "u1", "unit1")
	seedNetwork(t, m, "n1", "u1", "net1")
	seedDevice(t, m, "d1", "u1", "n1", "aabbcc")
	now := time.Now().UTC()
	require.NoError(t, m.DlData.Add(context.Background(), &model.DlDataBuffer{
		DataID: "dl1", UnitID: "u1", ApplicationID: "app1", NetworkID: "n1", DeviceID: "d1",
		CreatedAt: now, ExpiresAt: now.Add(time.Hour),
	}))

	netMgr, netTr := newTestNetManager(t, "unit1", "net1", false, nil, nil)
	engine := New(m, newTestCache(), stubAppLookup{}, stubNetLookup{netKeyStr("unit1", "net1"): netMgr}, DefaultExpiresInMillis)

	appID := appmgr.Identity{UnitCode: "unit1", ApplicationCode: "application1"}
	hook := engine.ApplicationAcceptedHook(appID)
	hook(context.Background(), appmgr.DownlinkRequest{CorrelationID: "c1", Data: "0102"}, "dl1")

	dlQueue := netTr.queues["broker.network.unit1.net1.dldata"]
	require.NotNil(t, dlQueue)
	require.Len(t, dlQueue.sent, 1)
	var got map[string]any
	require.NoError(t, json.Unmarshal(dlQueue.sent[0], &got))
	assert.Equal(t, "aabbcc", got["networkAddr"])
}

func TestEngine_ApplicationAcceptedHook_PublicNetworkResolvesUnitCodeUnderscore(t *testing.T) {
	m := newTestModel(t)
	seedNetwork(t, m, "n1", "", "pubnet")
	seedDevice(t, m, "d1", "", "n1", "aabbcc")
	now := time.Now().UTC()
	require.NoError(t, m.DlData.Add(context.Background(), &model.DlDataBuffer{
		DataID: "dl1", UnitID: "u1", ApplicationID: "app1", NetworkID: "n1", DeviceID: "d1",
		CreatedAt: now, ExpiresAt: now.Add(time.Hour),
	}))

	netMgr, netTr := newTestNetManager(t, "_", "pubnet", true, nil, nil)
	engine := New(m, newTestCache(), stubAppLookup{}, stubNetLookup{netKeyStr("_", "pubnet"): netMgr}, DefaultExpiresInMillis)

	appID := appmgr.Identity{UnitCode: "unit1", ApplicationCode: "application1"}
	hook := engine.ApplicationAcceptedHook(appID)
	hook(context.Background(), appmgr.DownlinkRequest{CorrelationID: "c1", Data: "0102"}, "dl1")

	dlQueue := netTr.queues["broker.network._.pubnet.dldata"]
	require.NotNil(t, dlQueue)
	assert.Len(t, dlQueue.sent, 1)
}

func TestEngine_ApplicationAcceptedHook_NetManagerNotReadySendsErrorResult(t *testing.T) {
	m := newTestModel(t)
	seedUnit(t, m, "u1", "unit1")
	seedNetwork(t, m, "n1", "u1", "net1")
	seedDevice(t, m, "d1", "u1", "n1", "aabbcc")
	now := time.Now().UTC()
	require.NoError(t, m.DlData.Add(context.Background(), &model.DlDataBuffer{
		DataID: "dl1", UnitID: "u1", ApplicationID: "app1", NetworkID: "n1", DeviceID: "d1",
		CreatedAt: now, ExpiresAt: now.Add(time.Hour),
	}))

	appMgr, appTr := newTestAppManager(t, "unit1", "application1", nil)
	engine := New(m, newTestCache(), stubAppLookup{appKey("unit1", "application1"): appMgr}, stubNetLookup{}, DefaultExpiresInMillis)

	appID := appmgr.Identity{UnitCode: "unit1", ApplicationCode: "application1"}
	hook := engine.ApplicationAcceptedHook(appID)
	hook(context.Background(), appmgr.DownlinkRequest{CorrelationID: "c1", Data: "0102"}, "dl1")

	resultQueue := appTr.queues["broker.application.unit1.application1.dldata-result"]
	require.NotNil(t, resultQueue)
	require.Len(t, resultQueue.sent, 1)
	var got map[string]any
	require.NoError(t, json.Unmarshal(resultQueue.sent[0], &got))
	assert.Equal(t, float64(-1), got["status"])
}

func TestEngine_ApplicationAcceptedHook_UnknownBufferEntryIsANoop(t *testing.T) {
	m := newTestModel(t)
	engine := New(m, newTestCache(), stubAppLookup{}, stubNetLookup{}, DefaultExpiresInMillis)
	appID := appmgr.Identity{UnitCode: "unit1", ApplicationCode: "application1"}
	hook := engine.ApplicationAcceptedHook(appID)
	hook(context.Background(), appmgr.DownlinkRequest{CorrelationID: "c1", Data: "0102"}, "missing")
}

func TestEngine_Reap_ForwardsTimeoutResultForExpiredEntries(t *testing.T) {
	m := newTestModel(t)
	seedUnit(t, m, "u1", "unit1")
	seedApplication(t, m, "app1", "u1", "application1")
	past := time.Now().UTC().Add(-time.Hour)
	require.NoError(t, m.DlData.Add(context.Background(), &model.DlDataBuffer{
		DataID: "dl1", UnitID: "u1", ApplicationID: "app1", NetworkID: "n1", DeviceID: "d1",
		CreatedAt: past, ExpiresAt: past,
	}))

	appMgr, appTr := newTestAppManager(t, "unit1", "application1", nil)
	engine := New(m, newTestCache(), stubAppLookup{appKey("unit1", "application1"): appMgr}, stubNetLookup{}, DefaultExpiresInMillis)

	n, err := engine.Reap(context.Background(), 10)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	resultQueue := appTr.queues["broker.application.unit1.application1.dldata-result"]
	require.NotNil(t, resultQueue)
	require.Len(t, resultQueue.sent, 1)

	_, err = m.DlData.GetByID(context.Background(), "dl1")
	assert.Error(t, err)
}

func TestEngine_Reap_NoExpiredEntriesReturnsZero(t *testing.T) {
	m := newTestModel(t)
	engine := New(m, newTestCache(), stubAppLookup{}, stubNetLookup{}, DefaultExpiresInMillis)
	n, err := engine.Reap(context.Background(), 10)
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}
