package netmgr

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeUplink_ValidPayload(t *testing.T) {
	frame, err := decodeUplink([]byte(`{"networkAddr":"aabbcc","data":"0102","time":"2026-01-01T00:00:00Z"}`))
	require.NoError(t, err)
	assert.Equal(t, "aabbcc", frame.NetworkAddr)
	assert.Equal(t, "0102", frame.Data)
	assert.False(t, frame.Time.IsZero())
}

func TestDecodeUplink_MissingNetworkAddrFails(t *testing.T) {
	_, err := decodeUplink([]byte(`{"data":"0102"}`))
	assert.Error(t, err)
}

func TestDecodeUplink_MissingTimeDefaultsToNow(t *testing.T) {
	frame, err := decodeUplink([]byte(`{"networkAddr":"aabbcc","data":"0102"}`))
	require.NoError(t, err)
	assert.False(t, frame.Time.IsZero())
}

func TestDecodeUplink_MalformedJSONFails(t *testing.T) {
	_, err := decodeUplink([]byte(`not json`))
	assert.Error(t, err)
}

func TestDecodeUplink_NonHexDataFails(t *testing.T) {
	_, err := decodeUplink([]byte(`{"networkAddr":"aabbcc","data":"not-hex"}`))
	assert.Error(t, err)
}

func TestDecodeResult_ValidPayload(t *testing.T) {
	result, err := decodeResult([]byte(`{"dataId":"d1","status":0}`))
	require.NoError(t, err)
	assert.Equal(t, "d1", result.DataID)
	assert.Equal(t, 0, result.Status)
}

func TestDecodeResult_MissingDataIDFails(t *testing.T) {
	_, err := decodeResult([]byte(`{"status":0}`))
	assert.Error(t, err)
}

func TestDecodeResult_MalformedJSONFails(t *testing.T) {
	_, err := decodeResult([]byte(`not json`))
	assert.Error(t, err)
}
