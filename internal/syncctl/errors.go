package syncctl

import (
	"fmt"

	"github.com/duskchain/fullnode/pkg/core"
)

var errRollbackTooSoon = fmt.Errorf("tip adopted too recently for automatic rollback")

func errParentMismatch(got, want core.HashT) error {
	return fmt.Errorf("header pack parent %s does not match tip %s", got, want)
}

func errRollbackRefused(depth, max uint64) error {
	return fmt.Errorf("rollback depth %d exceeds max auto rollback %d", depth, max)
}
