package l2mac

import (
	"context"

	"github.com/samber/lo"
	"go.uber.org/zap"

	"github.com/cybercoder/l2macd/pkg/ovs"
)

// PortRecord is the last link state the cache acted on for a system port.
type PortRecord struct {
	Name string `json:"name"`
	Up   bool   `json:"up"`
}

// PortCache tracks the aggregate link state of system ports and requests a
// MAC flush when one goes down.
type PortCache struct {
	records map[string]*PortRecord
	flusher *Flusher
	logger  *zap.Logger
}

func NewPortCache(flusher *Flusher, logger *zap.Logger) *PortCache {
	return &PortCache{
		records: make(map[string]*PortRecord),
		flusher: flusher,
		logger:  logger,
	}
}

// isSystemPort reports whether any member of the port is a physical interface.
func isSystemPort(row *ovs.PortRow) bool {
	return lo.ContainsBy(row.Interfaces, func(i *ovs.InterfaceRow) bool {
		return i != nil && i.IsSystem()
	})
}

// linkUp is up when at least one member reports link up. No members means down.
func linkUp(row *ovs.PortRow) bool {
	return lo.ContainsBy(row.Interfaces, func(i *ovs.InterfaceRow) bool {
		return i != nil && i.IsUp()
	})
}

// Observe compares the current state of row against the cached one.
func (c *PortCache) Observe(ctx context.Context, row *ovs.PortRow) {
	if row == nil {
		return
	}
	if !isSystemPort(row) {
		if _, ok := c.records[row.Name]; ok {
			c.logger.Debug("port no longer has a system interface", zap.String("port", row.Name))
			delete(c.records, row.Name)
		}
		return
	}

	rec, ok := c.records[row.Name]
	if !ok {
		rec = &PortRecord{Name: row.Name}
		c.records[row.Name] = rec
		c.logger.Debug("port added", zap.String("port", row.Name), zap.Int("ports", len(c.records)))
	}

	up := linkUp(row)
	if up != rec.Up && !up {
		c.logger.Info("port went down, flushing MAC entries", zap.String("port", row.Name))
		// The outcome is already logged and counted by the flusher.
		_ = c.flusher.FlushPort(ctx, row)
	}
	rec.Up = up
}

// Prune drops the records of ports missing from the live set. Disappearing
// is not a down transition, so nothing is flushed.
func (c *PortCache) Prune(live []*ovs.PortRow) {
	present := make(map[string]struct{}, len(live))
	for _, row := range live {
		if row == nil {
			continue
		}
		if _, dup := present[row.Name]; dup {
			c.logger.Warn("port specified twice", zap.String("port", row.Name))
		}
		present[row.Name] = struct{}{}
	}
	for name := range c.records {
		if _, ok := present[name]; !ok {
			delete(c.records, name)
			c.logger.Debug("port removed", zap.String("port", name), zap.Int("ports", len(c.records)))
		}
	}
}

func (c *PortCache) Lookup(name string) (PortRecord, bool) {
	rec, ok := c.records[name]
	if !ok {
		return PortRecord{}, false
	}
	return *rec, true
}

func (c *PortCache) Len() int {
	return len(c.records)
}

// Records returns copies of the cached records in no particular order.
func (c *PortCache) Records() []PortRecord {
	return lo.MapToSlice(c.records, func(_ string, r *PortRecord) PortRecord { return *r })
}

func (c *PortCache) reset() {
	clear(c.records)
}
