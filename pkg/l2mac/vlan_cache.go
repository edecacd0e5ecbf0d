package l2mac

import (
	"context"

	"github.com/samber/lo"
	"go.uber.org/zap"

	"github.com/cybercoder/l2macd/pkg/ovs"
)

// VLANRecord is the last operational state the cache acted on for a VLAN.
type VLANRecord struct {
	ID int64 `json:"id"`
	Up bool  `json:"up"`
}

// VLANCache tracks VLAN operational state and requests a MAC flush when a
// VLAN goes down.
type VLANCache struct {
	records map[int64]*VLANRecord
	flusher *Flusher
	logger  *zap.Logger
}

func NewVLANCache(flusher *Flusher, logger *zap.Logger) *VLANCache {
	return &VLANCache{
		records: make(map[int64]*VLANRecord),
		flusher: flusher,
		logger:  logger,
	}
}

// Observe compares the current state of row against the cached one. Only a
// change of oper_state applied after since can trigger a flush; edits to other
// columns of the row never do.
func (c *VLANCache) Observe(ctx context.Context, row *ovs.VLANRow, since uint64) {
	if row == nil {
		return
	}
	rec, ok := c.records[row.ID]
	if !ok {
		rec = &VLANRecord{ID: row.ID}
		c.records[row.ID] = rec
		c.logger.Debug("vlan added", zap.Int64("vlan", row.ID), zap.Int("vlans", len(c.records)))
	}

	up := row.IsUp()
	if row.ColumnChangedSince(ovs.VLANColumnOperState, since) && rec.Up && !up {
		c.logger.Info("vlan went down, flushing MAC entries", zap.Int64("vlan", row.ID))
		_ = c.flusher.FlushVLAN(ctx, row)
	}
	rec.Up = up
}

// Prune drops the records of VLANs missing from the live set without flushing.
func (c *VLANCache) Prune(live []*ovs.VLANRow) {
	present := make(map[int64]struct{}, len(live))
	for _, row := range live {
		if row != nil {
			present[row.ID] = struct{}{}
		}
	}
	for id := range c.records {
		if _, ok := present[id]; !ok {
			delete(c.records, id)
			c.logger.Debug("vlan removed", zap.Int64("vlan", id), zap.Int("vlans", len(c.records)))
		}
	}
}

func (c *VLANCache) Lookup(id int64) (VLANRecord, bool) {
	rec, ok := c.records[id]
	if !ok {
		return VLANRecord{}, false
	}
	return *rec, true
}

func (c *VLANCache) Len() int {
	return len(c.records)
}

func (c *VLANCache) Records() []VLANRecord {
	return lo.MapToSlice(c.records, func(_ int64, r *VLANRecord) VLANRecord { return *r })
}

func (c *VLANCache) reset() {
	clear(c.records)
}
