package ovs

import (
	"context"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/go-logr/logr"
	"github.com/ovn-kubernetes/libovsdb/client"
	"github.com/ovn-kubernetes/libovsdb/model"
	"go.uber.org/zap"
)

const DefaultDatabase = "OpenSwitch"

// Locker is the processing lock consulted on every Advance.
type Locker interface {
	Poll() error
	Held() bool
	Contended() bool
	Release() error
}

type options struct {
	database         string
	logger           *zap.Logger
	ovsdbLogger      *logr.Logger
	locker           Locker
	reconnectTimeout time.Duration
	tracking         bool
	macTable         bool
}

type Option func(*options)

func WithDatabase(name string) Option {
	return func(o *options) { o.database = name }
}

func WithLogger(logger *zap.Logger, ovsdbLogger *logr.Logger) Option {
	return func(o *options) {
		o.logger = logger
		o.ovsdbLogger = ovsdbLogger
	}
}

func WithLocker(l Locker) Option {
	return func(o *options) { o.locker = l }
}

// WithReconnect makes the client reconnect with exponential backoff after the
// connection to the database is lost.
func WithReconnect(timeout time.Duration) Option {
	return func(o *options) { o.reconnectTimeout = timeout }
}

// WithChangeTracking mirrors the System, Port, Interface and VLAN tables and
// records change markers for them.
func WithChangeTracking() Option {
	return func(o *options) { o.tracking = true }
}

// WithMACTable adds the MAC table to the monitored tables.
func WithMACTable() Option {
	return func(o *options) { o.macTable = true }
}

type Client struct {
	ovsClient client.Client
	transact  transactFunc
	logger    *zap.Logger
	mirror    *mirror
	locker    Locker
}

func CreateOVSclient(ctx context.Context, endpoint string, opts ...Option) (*Client, error) {
	o := options{database: DefaultDatabase, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(&o)
	}

	tables := map[string]model.Model{
		OvsSystemTable:    &System{},
		OvsPortTable:      &Port{},
		OvsInterfaceTable: &Interface{},
		OvsVLANTable:      &VLAN{},
	}
	if o.macTable {
		tables[OvsMACTable] = &MAC{}
	}
	dbModel, err := model.NewClientDBModel(o.database, tables)
	if err != nil {
		return nil, fmt.Errorf("failed to create DB model: %w", err)
	}

	clientOpts := []client.Option{client.WithEndpoint(endpoint)}
	if o.ovsdbLogger != nil {
		clientOpts = append(clientOpts, client.WithLogger(o.ovsdbLogger))
	}
	if o.reconnectTimeout > 0 {
		clientOpts = append(clientOpts, client.WithReconnect(o.reconnectTimeout, backoff.NewExponentialBackOff()))
	}
	ovsClient, err := client.NewOVSDBClient(dbModel, clientOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create OVSDB client: %w", err)
	}

	if err := ovsClient.Connect(ctx); err != nil {
		return nil, fmt.Errorf("failed to connect to OVSDB at %s: %w", endpoint, err)
	}

	c := &Client{ovsClient: ovsClient, transact: ovsClient.Transact, logger: o.logger, locker: o.locker}
	if o.tracking {
		c.mirror = newMirror()
		// Registered before monitoring so the initial dump arrives as inserts.
		ovsClient.Cache().AddEventHandler(c.mirror.handler())
	}
	if _, err := ovsClient.MonitorAll(ctx); err != nil {
		ovsClient.Disconnect()
		return nil, fmt.Errorf("failed to monitor OVSDB: %w", err)
	}
	c.logger.Info("connected to OVSDB",
		zap.String("endpoint", endpoint), zap.String("database", o.database))
	return c, nil
}

func (c *Client) Close() {
	if c.locker != nil {
		if err := c.locker.Release(); err != nil {
			c.logger.Error("failed to release processing lock", zap.Error(err))
		}
	}
	if c.ovsClient != nil {
		c.ovsClient.Disconnect()
	}
}

// Notify fires whenever new data has been queued for the next Advance.
func (c *Client) Notify() <-chan struct{} {
	return c.mirror.notify
}

// Seqno advances every time Advance applies new data.
func (c *Client) Seqno() uint64 {
	return c.mirror.seqno
}

// Advance pulls the data received since the previous call into the mirror and
// refreshes the processing lock. It never blocks on the network.
func (c *Client) Advance() {
	if c.locker != nil {
		if err := c.locker.Poll(); err != nil {
			c.logger.Error("failed to poll processing lock", zap.Error(err))
		}
	}
	c.mirror.advance()
}

func (c *Client) HasLock() bool {
	return c.locker == nil || c.locker.Held()
}

func (c *Client) LockContended() bool {
	return c.locker != nil && c.locker.Contended()
}

// CurCfg returns System.cur_cfg, zero until the System row exists.
func (c *Client) CurCfg() int64 {
	return c.mirror.curCfg
}

// Ports returns the live port rows ordered by name.
func (c *Client) Ports() []*PortRow {
	return c.mirror.livePorts()
}

// TrackedPorts returns the port rows carrying change markers, tombstones included.
func (c *Client) TrackedPorts() []*PortRow {
	return c.mirror.changedPorts()
}

func (c *Client) VLANs() []*VLANRow {
	return c.mirror.liveVLANs()
}

func (c *Client) TrackedVLANs() []*VLANRow {
	return c.mirror.changedVLANs()
}

// ClearTracked drops all change markers and tombstones.
func (c *Client) ClearTracked() {
	c.mirror.clearTracked()
}

func (c *Client) NewTxn() Txn {
	return newTransaction(c.transact, c.mirror)
}
