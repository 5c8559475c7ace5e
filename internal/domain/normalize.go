package domain

import (
	"encoding/json"
	"sort"
	"strings"
)

// Server responses come in a few shapes depending on server version and on
// how the value was stored. Each decoder below maps every shape it knows to
// the canonical form and anything else to an empty result.

// DecodeUserList accepts:
//
//	["@a:x", "@b:x"]                    legacy bare array
//	{"<field>": ["@a:x", "@b:x"]}       list field
//	{"<field>": {"@a:x": {}, ...}}      map keyed by user id (sorted)
func DecodeUserList(raw []byte, field string) []string {
	var value any
	if err := json.Unmarshal(raw, &value); err != nil {
		return []string{}
	}

	switch v := value.(type) {
	case []any:
		return NormalizeUserSet(stringsOf(v))
	case map[string]any:
		switch inner := v[field].(type) {
		case []any:
			return NormalizeUserSet(stringsOf(inner))
		case map[string]any:
			return NormalizeUserSet(sortedKeys(inner))
		}
	}
	return []string{}
}

// EncodeUserList produces the canonical account-data content for a list.
func EncodeUserList(field string, ids []string) map[string]any {
	if ids == nil {
		ids = []string{}
	}
	return map[string]any{field: ids}
}

// DecodeRoomIDs accepts {"joined_rooms": [...]} or a bare array.
func DecodeRoomIDs(raw []byte) []string {
	var value any
	if err := json.Unmarshal(raw, &value); err != nil {
		return []string{}
	}

	switch v := value.(type) {
	case []any:
		return NormalizeUserSet(stringsOf(v))
	case map[string]any:
		if rooms, ok := v["joined_rooms"].([]any); ok {
			return NormalizeUserSet(stringsOf(rooms))
		}
	}
	return []string{}
}

// DecodeMemberIDs accepts {"joined": {"@a:x": {...}}}, an array of user ids,
// or an array of member objects carrying user_id / userId.
func DecodeMemberIDs(raw []byte) []string {
	var value any
	if err := json.Unmarshal(raw, &value); err != nil {
		return []string{}
	}

	switch v := value.(type) {
	case map[string]any:
		if joined, ok := v["joined"].(map[string]any); ok {
			return NormalizeUserSet(sortedKeys(joined))
		}
	case []any:
		ids := make([]string, 0, len(v))
		for _, item := range v {
			switch member := item.(type) {
			case string:
				ids = append(ids, member)
			case map[string]any:
				if id, ok := member["user_id"].(string); ok {
					ids = append(ids, id)
				} else if id, ok := member["userId"].(string); ok {
					ids = append(ids, id)
				}
			}
		}
		return NormalizeUserSet(ids)
	}
	return []string{}
}

// DecodeReceiptUsers flattens receipt content into the set of reading users.
// It accepts {"m.read": {"@a:x": {...}}} keyed by receipt type, or a map
// keyed directly by user id.
func DecodeReceiptUsers(raw []byte) []string {
	var value map[string]any
	if err := json.Unmarshal(raw, &value); err != nil {
		return []string{}
	}

	users := make([]string, 0, len(value))
	for key, inner := range value {
		if strings.HasPrefix(key, "@") {
			users = append(users, key)
			continue
		}
		if byUser, ok := inner.(map[string]any); ok {
			users = append(users, sortedKeys(byUser)...)
		}
	}
	sort.Strings(users)
	return NormalizeUserSet(users)
}

func stringsOf(values []any) []string {
	out := make([]string, 0, len(values))
	for _, value := range values {
		if s, ok := value.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for key := range m {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}
