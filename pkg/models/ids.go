package models

import (
	"strings"

	"github.com/google/uuid"
)

// Entity ID prefixes. Identifiers are opaque strings built from a short
// type prefix and a dash-free UUID, e.g. "ws_0f4c2a...".
const (
	PrefixWorkspace     = "ws_"
	PrefixFile          = "file_"
	PrefixFolder        = "fld_"
	PrefixWebhook       = "wh_"
	PrefixWebhookSecret = "whsec_"
	PrefixKey           = "key_"
	PrefixHeartbeat     = "hb_"
	PrefixUser          = "usr_"
	PrefixUserWorkspace = "uw_"
	PrefixDelivery      = "whd_"
	PrefixExport        = "exp_"
)

// NewID generates a new opaque identifier with the given prefix.
func NewID(prefix string) string {
	return prefix + strings.ReplaceAll(uuid.New().String(), "-", "")
}

// HasIDPrefix reports whether id carries the expected entity prefix.
func HasIDPrefix(id, prefix string) bool {
	return strings.HasPrefix(id, prefix) && len(id) > len(prefix)
}
