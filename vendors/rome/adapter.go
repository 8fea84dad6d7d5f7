package rome

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"time"

	"github.com/nanoncore/nano-rome/internal/logging"
	"github.com/nanoncore/nano-rome/model"
	"github.com/nanoncore/nano-rome/types"
	"github.com/nanoncore/nano-rome/vendors/common"
)

// Device commands
const (
	cmdShowBoard      = "show board"
	cmdPortShow       = "port show"
	cmdShowPending    = "connection show pending"
	cmdConnectFmt     = "connection create %s to %s"
	cmdDisconnectFmt  = "connection disconnect %s from %s"
	cmdPortShowOneFmt = "port show %s"
)

// Defaults
const (
	DefaultPollInterval        = 2 * time.Second
	DefaultPortTimeout         = 60 * time.Second
	DefaultSevereFailureMarker = "SEVERE FAILURE"
	DefaultRehomeCommand       = "connection rehome"
	DefaultRehomeDone          = "rehome completed"
	DefaultRehomeTimeout       = 5 * time.Minute
	DefaultEnableCommand       = "connection execution enable"
)

// Metadata keys read from types.EquipmentConfig.Metadata
const (
	MetaPortTimeout  = "rome.port_timeout"
	MetaPollInterval = "rome.poll_interval"
	MetaMarker       = "rome.severe_failure_marker"
)

// Recovery is the fixed two-step sequence run after a severe failure: the
// rehome command, which finishes with Done in its output, then the command
// that re-enables command execution.
type Recovery struct {
	Rehome        string
	Done          string
	RehomeTimeout time.Duration
	Enable        string
}

// Options configures an Adapter
type Options struct {
	Logger              *slog.Logger
	Metrics             *Metrics
	PollInterval        time.Duration
	PortTimeout         time.Duration
	SevereFailureMarker string
	Recovery            Recovery
	BladeRemap          BladeRemap
}

// Option mutates Options
type Option func(*Options)

func WithLogger(l *slog.Logger) Option { return func(o *Options) { o.Logger = l } }
func WithMetrics(m *Metrics) Option { return func(o *Options) { o.Metrics = m } }
func WithPollInterval(d time.Duration) Option { return func(o *Options) { o.PollInterval = d } }
func WithPortTimeout(d time.Duration) Option { return func(o *Options) { o.PortTimeout = d } }
func WithSevereFailureMarker(s string) Option { return func(o *Options) { o.SevereFailureMarker = s } }
func WithRecovery(r Recovery) Option { return func(o *Options) { o.Recovery = r } }
func WithBladeRemap(r BladeRemap) Option { return func(o *Options) { o.BladeRemap = r } }

// WithMetadata applies the rome.* keys of an equipment's metadata
func WithMetadata(meta map[string]string) Option {
	return func(o *Options) {
		if d, ok := common.MetaDuration(meta, MetaPortTimeout); ok {
			o.PortTimeout = d
		}
		if d, ok := common.MetaDuration(meta, MetaPollInterval); ok {
			o.PollInterval = d
		}
		o.SevereFailureMarker = common.MetaStringOr(meta, o.SevereFailureMarker, MetaMarker)
	}
}

// Adapter drives a Rome matrix through one CLI channel per controller
type Adapter struct {
	address  Address
	channels []types.CLIChannel
	opts     Options
	logger   *slog.Logger
	doneRE   *regexp.Regexp
}

// NewAdapter binds channels to the controllers named in address. There must
// be exactly one channel per address host.
func NewAdapter(address Address, channels []types.CLIChannel, opts ...Option) (*Adapter, error) {
	o := Options{
		PollInterval:        DefaultPollInterval,
		PortTimeout:         DefaultPortTimeout,
		SevereFailureMarker: DefaultSevereFailureMarker,
		Recovery: Recovery{
			Rehome:        DefaultRehomeCommand,
			Done:          DefaultRehomeDone,
			RehomeTimeout: DefaultRehomeTimeout,
			Enable:        DefaultEnableCommand,
		},
	}
	for _, opt := range opts {
		opt(&o)
	}
	if o.Logger == nil {
		o.Logger = logging.NewNop()
	}

	hosts := address.Hosts()
	if len(channels) != len(hosts) {
		return nil, fmt.Errorf("address %s needs %d CLI channel(s), got %d", address, len(hosts), len(channels))
	}
	ordered := make([]types.CLIChannel, 0, len(hosts))
	for _, h := range hosts {
		var found types.CLIChannel
		for _, ch := range channels {
			if ch.Host() == h {
				found = ch
				break
			}
		}
		if found == nil {
			return nil, fmt.Errorf("no CLI channel for host %s", h)
		}
		ordered = append(ordered, found)
	}

	return &Adapter{
		address:  address,
		channels: ordered,
		opts:     o,
		logger:   o.Logger.With("address", address.String()),
		doneRE:   regexp.MustCompile(`(?i)` + regexp.QuoteMeta(o.Recovery.Done)),
	}, nil
}

// Address returns the address the adapter was built for
func (a *Adapter) Address() Address {
	return a.address
}

func (a *Adapter) channel(host string) (types.CLIChannel, error) {
	for _, ch := range a.channels {
		if ch.Host() == host {
			return ch, nil
		}
	}
	return nil, fmt.Errorf("no CLI channel for host %s", host)
}

// Connect connects every channel that is also a types.Driver. config is
// used as a template; its Address is replaced per controller.
func (a *Adapter) Connect(ctx context.Context, config *types.EquipmentConfig) error {
	_, err := RunOnHosts(ctx, a.logger, a.channels, func(ctx context.Context, ch types.CLIChannel) (struct{}, error) {
		d, ok := ch.(types.Driver)
		if !ok {
			return struct{}{}, nil
		}
		var hostCfg *types.EquipmentConfig
		if config != nil {
			c := *config
			c.Address = ch.Host()
			hostCfg = &c
		}
		return struct{}{}, d.Connect(ctx, hostCfg)
	})
	return err
}

// Disconnect closes every channel that is also a types.Driver
func (a *Adapter) Disconnect(ctx context.Context) error {
	_, err := RunOnHosts(ctx, a.logger, a.channels, func(ctx context.Context, ch types.CLIChannel) (struct{}, error) {
		if d, ok := ch.(types.Driver); ok {
			return struct{}{}, d.Disconnect(ctx)
		}
		return struct{}{}, nil
	})
	return err
}

// IsConnected reports whether every driver-backed channel is connected
func (a *Adapter) IsConnected() bool {
	for _, ch := range a.channels {
		if d, ok := ch.(types.Driver); ok && !d.IsConnected() {
			return false
		}
	}
	return true
}

// HealthCheck queries the board of every controller
func (a *Adapter) HealthCheck(ctx context.Context) error {
	_, err := RunOnHosts(ctx, a.logger, a.channels, func(ctx context.Context, ch types.CLIChannel) (string, error) {
		return execChecked(ctx, ch, cmdShowBoard)
	})
	return err
}

// GetTopology polls the device and builds the exported chassis
func (a *Adapter) GetTopology(ctx context.Context) (*model.Chassis, error) {
	info, err := a.BoardInfo(ctx)
	if err != nil {
		return nil, err
	}
	table, err := a.PortTable(ctx)
	if err != nil {
		return nil, err
	}
	return BuildTopology(a.address, info, table)
}

var _ types.Driver = (*Adapter)(nil)
