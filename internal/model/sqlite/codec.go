package sqlite

import (
	"encoding/json"
	"time"
)

func encodeInfo(info map[string]string) string {
	if info == nil {
		info = map[string]string{}
	}
	b, _ := json.Marshal(info)
	return string(b)
}

func decodeInfo(raw string) map[string]string {
	info := map[string]string{}
	if raw == "" {
		return info
	}
	_ = json.Unmarshal([]byte(raw), &info)
	return info
}

func encodeStrings(ss []string) string {
	if ss == nil {
		ss = []string{}
	}
	b, _ := json.Marshal(ss)
	return string(b)
}

func decodeStrings(raw string) []string {
	var ss []string
	if raw == "" {
		return ss
	}
	_ = json.Unmarshal([]byte(raw), &ss)
	return ss
}

func toMillis(t time.Time) int64 { return t.UnixMilli() }

func fromMillis(ms int64) time.Time { return time.UnixMilli(ms).UTC() }

// dedupAppend appends id to ids if not already present.
func dedupAppend(ids []string, id string) ([]string, bool) {
	for _, existing := range ids {
		if existing == id {
			return ids, false
		}
	}
	return append(ids, id), true
}

func removeString(ids []string, id string) ([]string, bool) {
	out := make([]string, 0, len(ids))
	removed := false
	for _, existing := range ids {
		if existing == id {
			removed = true
			continue
		}
		out = append(out, existing)
	}
	return out, removed
}
