package domain

import (
	"fmt"
	"regexp"
	"slices"
	"strings"
)

type ListKind string

const (
	ListBlocked ListKind = "blocked"
	ListMuted   ListKind = "muted"
)

// ListSpec parameterizes the moderation algorithm for one list kind.
type ListSpec struct {
	Kind ListKind
	// StorageKey is the local credential-store key of the cached list.
	StorageKey string
	// AccountDataType is the account-data event type holding the remote list.
	AccountDataType string
	// Field is the list field inside the account-data content.
	Field string
}

var listSpecs = map[ListKind]ListSpec{
	ListBlocked: {
		Kind:            ListBlocked,
		StorageKey:      KeyBlockList,
		AccountDataType: "org.swarmchat.block_list",
		Field:           "blocked",
	},
	ListMuted: {
		Kind:            ListMuted,
		StorageKey:      KeyMuteList,
		AccountDataType: "org.swarmchat.mute_list",
		Field:           "muted",
	},
}

func ListKinds() []ListKind {
	return []ListKind{ListBlocked, ListMuted}
}

func SpecFor(kind ListKind) (ListSpec, error) {
	spec, ok := listSpecs[kind]
	if !ok {
		return ListSpec{}, fmt.Errorf("unsupported moderation list %q", kind)
	}
	return spec, nil
}

var userIDPattern = regexp.MustCompile(`^@[^\s:@]+:[^\s:]+(:[0-9]{1,5})?$`)

// ValidateUserID checks the @name:domain shape of a user identifier.
func ValidateUserID(id string) error {
	if !userIDPattern.MatchString(id) {
		return fmt.Errorf("%w: %q", ErrInvalidUserID, id)
	}
	return nil
}

// NormalizeUserSet trims, drops empties and duplicates, keeping first-seen order.
func NormalizeUserSet(ids []string) []string {
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if id == "" || slices.Contains(out, id) {
			continue
		}
		out = append(out, id)
	}
	return out
}
