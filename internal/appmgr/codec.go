package appmgr

import (
	"encoding/hex"
	"encoding/json"
	"time"

	"github.com/sylvia-iot/broker-core/internal/errors"
)

// downlinkWire is the wire shape of an application->broker dldata
// submission.
type downlinkWire struct {
	CorrelationID string         `json:"correlationId"`
	DeviceID      string         `json:"deviceId,omitempty"`
	NetworkAddr   string         `json:"networkAddr,omitempty"`
	NetworkCode   string         `json:"networkCode,omitempty"`
	Data          string         `json:"data"`
	Extension     map[string]any `json:"extension,omitempty"`
	ExpiresIn     int64          `json:"expiresIn,omitempty"` // ms
}

func decodeDownlinkRequest(body []byte) (DownlinkRequest, error) {
	var w downlinkWire
	if err := json.Unmarshal(body, &w); err != nil {
		return DownlinkRequest{}, errors.NewValidation(errors.CodeParamInvalid, "malformed dldata submission").WithCause(err)
	}
	if w.CorrelationID == "" {
		return DownlinkRequest{}, errors.NewValidation(errors.CodeParamInvalid, "dldata submission missing correlationId")
	}
	byDeviceID := w.DeviceID != ""
	byNetwork := w.NetworkAddr != "" && w.NetworkCode != ""
	if byDeviceID == byNetwork {
		return DownlinkRequest{CorrelationID: w.CorrelationID}, errors.NewValidation(
			errors.CodeParamInvalid, "dldata submission needs exactly one of deviceId or (networkCode, networkAddr)")
	}
	if _, err := hex.DecodeString(w.Data); err != nil {
		return DownlinkRequest{CorrelationID: w.CorrelationID}, errors.NewValidation(
			errors.CodeParamInvalid, "dldata submission data is not valid hex").WithCause(err)
	}
	return DownlinkRequest{
		CorrelationID: w.CorrelationID,
		DeviceID:      w.DeviceID,
		NetworkAddr:   w.NetworkAddr,
		NetworkCode:   w.NetworkCode,
		Data:          w.Data,
		Extension:     w.Extension,
		ExpiresIn:     time.Duration(w.ExpiresIn) * time.Millisecond,
	}, nil
}

// respWire is the wire shape of a broker->application dldata-resp
// acknowledgement: either a dataId on success or an errorCode on failure.
type respWire struct {
	CorrelationID string `json:"correlationId"`
	DataID        string `json:"dataId,omitempty"`
	Error         string `json:"error,omitempty"`
}

func encodeResp(r respWire) ([]byte, error) {
	return json.Marshal(r)
}
