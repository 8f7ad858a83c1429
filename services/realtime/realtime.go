// Package realtimesvc implements the key-value store shared with the wearable.
package realtimesvc

import (
	"encoding/json"
	"math"
	"strconv"
	"time"

	"github.com/pkg/errors"

	"github.com/trezcool/drowsiness/core/hrv"
)

const authCodeIndex = "auth_code_index/"

func pairingKey(sessionID string) string { return sessionID + "/pairing" }
func ppgKey(sessionID string) string     { return sessionID + "/PPG_Data" }
func authCodeKey(code string) string     { return authCodeIndex + code }

// ppgRecord is a PPG sample as pushed by the wearable. Timestamp is either an RFC 3339
// string or epoch milliseconds.
type ppgRecord struct {
	Timestamp json.RawMessage `json:"timestamp"`
	Green     float64         `json:"ppgGreen"`
	IsError   bool            `json:"isError"`
}

func encodeSample(s hrv.Sample) ([]byte, error) {
	ts, err := json.Marshal(s.Time.UTC().Format(time.RFC3339Nano))
	if err != nil {
		return nil, err
	}
	return json.Marshal(ppgRecord{Timestamp: ts, Green: s.Green, IsError: s.IsError})
}

func decodeSample(data []byte) (hrv.Sample, error) {
	var rec ppgRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return hrv.Sample{}, errors.Wrap(err, "decoding PPG record")
	}
	t, err := parseTimestamp(rec.Timestamp)
	if err != nil {
		return hrv.Sample{}, err
	}
	return hrv.Sample{Time: t, Green: rec.Green, IsError: rec.IsError}, nil
}

func parseTimestamp(raw json.RawMessage) (time.Time, error) {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
			return t, nil
		}
		if ms, err := strconv.ParseFloat(s, 64); err == nil {
			return fromMillis(ms), nil
		}
		return time.Time{}, errors.Errorf("invalid PPG timestamp %q", s)
	}
	var ms float64
	if err := json.Unmarshal(raw, &ms); err != nil {
		return time.Time{}, errors.Errorf("invalid PPG timestamp %s", raw)
	}
	return fromMillis(ms), nil
}

func fromMillis(ms float64) time.Time {
	return time.UnixMicro(int64(math.Round(ms * 1000))).UTC()
}
