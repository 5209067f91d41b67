package types

import (
	"fmt"

	"github.com/oklog/ulid/v2"
)

// GenerateUUID returns a k-sortable unique identifier
func GenerateUUID() string {
	return ulid.Make().String()
}

// GenerateUUIDWithPrefix returns a k-sortable unique identifier
// with a prefix ex cpn_01HZX3M4K8Q0W2T9A7B6C5D4E3
func GenerateUUIDWithPrefix(prefix string) string {
	if prefix == "" {
		return GenerateUUID()
	}
	return fmt.Sprintf("%s_%s", prefix, GenerateUUID())
}

const (
	UUID_PREFIX_COUPON             = "cpn"
	UUID_PREFIX_COUPON_USAGE       = "cpu"
	UUID_PREFIX_ENGINEER_TXN       = "etx"
	UUID_PREFIX_RECONCILIATION_RUN = "rcn"
	UUID_PREFIX_COMMISSION_ADJ     = "cadj"
	UUID_PREFIX_EVENT              = "evt"
)
