package netmgr

import (
	"encoding/hex"
	"encoding/json"
	"time"

	"github.com/sylvia-iot/broker-core/internal/errors"
)

// uplinkWire is the wire shape of a network->broker uldata message: time,
// networkAddr, data as hex, and an optional free-form extension bag.
type uplinkWire struct {
	Time        time.Time      `json:"time"`
	NetworkAddr string         `json:"networkAddr"`
	Data        string         `json:"data"`
	Extension   map[string]any `json:"extension,omitempty"`
}

func decodeUplink(body []byte) (UplinkFrame, error) {
	var w uplinkWire
	if err := json.Unmarshal(body, &w); err != nil {
		return UplinkFrame{}, errors.NewValidation(errors.CodeParamInvalid, "malformed uldata payload").WithCause(err)
	}
	if w.NetworkAddr == "" {
		return UplinkFrame{}, errors.NewValidation(errors.CodeParamInvalid, "uldata payload missing networkAddr")
	}
	if _, err := hex.DecodeString(w.Data); err != nil {
		return UplinkFrame{}, errors.NewValidation(errors.CodeParamInvalid, "uldata payload data is not valid hex").WithCause(err)
	}
	if w.Time.IsZero() {
		w.Time = time.Now().UTC()
	}
	return UplinkFrame{
		Time:        w.Time,
		NetworkAddr: w.NetworkAddr,
		Data:        w.Data,
		Extension:   w.Extension,
	}, nil
}

// resultWire is the wire shape of a network->broker dldata-result message.
type resultWire struct {
	DataID  string `json:"dataId"`
	Status  int    `json:"status"`
	Message string `json:"message,omitempty"`
}

func decodeResult(body []byte) (ResultFrame, error) {
	var w resultWire
	if err := json.Unmarshal(body, &w); err != nil {
		return ResultFrame{}, errors.NewValidation(errors.CodeParamInvalid, "malformed dldata-result payload").WithCause(err)
	}
	if w.DataID == "" {
		return ResultFrame{}, errors.NewValidation(errors.CodeParamInvalid, "dldata-result payload missing dataId")
	}
	return ResultFrame{DataID: w.DataID, Status: w.Status, Message: w.Message}, nil
}
