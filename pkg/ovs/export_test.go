package ovs

import (
	"context"

	"github.com/ovn-kubernetes/libovsdb/cache"
	"github.com/ovn-kubernetes/libovsdb/ovsdb"
	"go.uber.org/zap"
)

// NewMirroredClient returns a change-tracking client without a database
// connection. Events fed to the returned handler reach the mirror the way
// libovsdb cache events do; transactions are sent to transact.
func NewMirroredClient(logger *zap.Logger,
	transact func(context.Context, ...ovsdb.Operation) ([]ovsdb.OperationResult, error),
) (*Client, *cache.EventHandlerFuncs) {
	m := newMirror()
	return &Client{transact: transact, logger: logger, mirror: m}, m.handler()
}
