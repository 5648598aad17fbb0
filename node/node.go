package node

import (
	"context"
	"github.com/rs/zerolog"
	"github.com/securerx/go-securerx/api_server"
	"github.com/securerx/go-securerx/ledger"
	"github.com/securerx/go-securerx/metrics"
	"github.com/securerx/go-securerx/peer_sync"
	"github.com/securerx/go-securerx/utils"
	"github.com/ztrue/tracerr"
	"io"
	"os"
	"sync"
	"time"
)

var (
	// ErrorNodeIdRequired is returned when NodeId is empty in InitializeOptions
	ErrorNodeIdRequired = utils.NewRxError("NODE_ID_REQUIRED", "NodeId argument is required")
	// ErrorApiAddrRequired is returned when ApiAddr is empty in InitializeOptions
	ErrorApiAddrRequired = utils.NewRxError("NODE_API_ADDR_REQUIRED", "ApiAddr argument is required")
	// ErrorInvalidSyncTimeout is returned when SyncTimeout is negative
	ErrorInvalidSyncTimeout = utils.NewRxError("NODE_INVALID_SYNC_TIMEOUT", "SyncTimeout cannot be negative")
	// ErrorNodeClosed is returned when starting a node that has been closed
	ErrorNodeClosed = utils.NewRxError("NODE_CLOSED", "this node has already been closed")
	// ErrorNodeAlreadyStarted is returned when starting a node twice
	ErrorNodeAlreadyStarted = utils.NewRxError("NODE_ALREADY_STARTED", "this node is already started")
)

const shutdownTimeout = 5 * time.Second

type InitializeOptions struct {
	// NodeId names this node in logs, metrics labels and outgoing requests.
	NodeId string
	// ApiAddr is the host:port the HTTP API listens on. Use port 0 to pick a free port.
	ApiAddr string
	// Peers are the other nodes to synchronize with, as host:port or URLs.
	Peers []string
	// SyncInterval is the delay between two synchronization cycles. Defaults to 5s. Set to -1 to disable synchronization.
	SyncInterval time.Duration
	// SyncTimeout bounds each peer request. Defaults to 5s.
	SyncTimeout time.Duration
	// LogLevel is the minimum level of logs you want. Use one of the zerolog level constants.
	LogLevel zerolog.Level
	// LogNoColor should be set to true if you want to disable colors in the log output.
	LogNoColor bool
	// LogWriter is the io.Writer to which to write the logs. Defaults to os.Stdout.
	LogWriter io.Writer
	// Clock is used for block timestamps. Defaults to time.Now.
	Clock func() time.Time
}

// State is a running SecureRx node: one ledger, served over HTTP and kept in sync with peers.
type State struct {
	options      InitializeOptions
	logger       zerolog.Logger
	ledger       *ledger.Ledger
	metrics      *metrics.Metrics
	server       *api_server.Server
	synchronizer *peer_sync.Synchronizer

	lock    sync.Mutex
	started bool
	closed  bool
}

func validateOptions(options InitializeOptions) error {
	if options.NodeId == "" {
		return tracerr.Wrap(ErrorNodeIdRequired)
	}
	if options.ApiAddr == "" {
		return tracerr.Wrap(ErrorApiAddrRequired)
	}
	if options.SyncTimeout < 0 {
		return tracerr.Wrap(ErrorInvalidSyncTimeout)
	}
	return nil
}

// Initialize builds a node from options. Nothing listens until Start is called.
func Initialize(options *InitializeOptions) (*State, error) {
	err := validateOptions(*options)
	if err != nil {
		return nil, tracerr.Wrap(err)
	}

	if options.LogWriter == nil {
		options.LogWriter = os.Stdout
	}

	zerolog.TimeFieldFormat = zerolog.TimeFormatUnixMs
	instanceLogger := zerolog.New(zerolog.ConsoleWriter{Out: options.LogWriter, TimeFormat: time.StampMilli, NoColor: options.LogNoColor}).With().Timestamp().Logger()
	instanceLogger = instanceLogger.Level(options.LogLevel)
	instanceLogger = instanceLogger.With().Str("instance", options.NodeId).Logger()

	instanceLogger.Debug().Msg("Initialize new node...")
	instanceLogger.Trace().
		Str("apiAddr", options.ApiAddr).
		Strs("peers", options.Peers).
		Dur("syncInterval", options.SyncInterval).
		Dur("syncTimeout", options.SyncTimeout).
		Msg("Init options")

	nodeMetrics := metrics.New(options.NodeId)
	state := &State{
		options: *options,
		logger:  instanceLogger,
		metrics: nodeMetrics,
		ledger: ledger.New(&ledger.Options{
			Clock:    options.Clock,
			Recorder: nodeMetrics,
			Logger:   instanceLogger,
		}),
	}
	nodeMetrics.ChainHeight.Set(float64(state.ledger.Len()))

	state.server = api_server.New(&api_server.Options{
		Ledger:         state.ledger,
		NodeId:         options.NodeId,
		MetricsHandler: nodeMetrics.Handler(),
		Logger:         instanceLogger,
	})

	if options.SyncInterval >= 0 {
		state.synchronizer, err = peer_sync.New(&peer_sync.Options{
			Ledger:         state.ledger,
			Peers:          options.Peers,
			Interval:       options.SyncInterval,
			RequestTimeout: options.SyncTimeout,
			NodeId:         options.NodeId,
			Logger:         instanceLogger,
			Recorder:       nodeMetrics,
		})
		if err != nil {
			return nil, tracerr.Wrap(err)
		}
	}

	instanceLogger.Info().Str("version", utils.Version).Int("peers", len(options.Peers)).Msg("Node initialized")
	return state, nil
}

func (state *State) Ledger() *ledger.Ledger {
	return state.ledger
}

func (state *State) Metrics() *metrics.Metrics {
	return state.metrics
}

// Synchronizer is nil when synchronization is disabled.
func (state *State) Synchronizer() *peer_sync.Synchronizer {
	return state.synchronizer
}

// Addr returns the address the API listens on, once started.
func (state *State) Addr() string {
	return state.server.Addr()
}

// Start opens the HTTP API and starts the synchronization loop. The loop stops when ctx is cancelled or on Close.
func (state *State) Start(ctx context.Context) error {
	state.lock.Lock()
	defer state.lock.Unlock()
	if state.closed {
		return tracerr.Wrap(ErrorNodeClosed)
	}
	if state.started {
		return tracerr.Wrap(ErrorNodeAlreadyStarted)
	}

	err := state.server.Start(state.options.ApiAddr)
	if err != nil {
		return tracerr.Wrap(err)
	}
	if state.synchronizer != nil {
		err = state.synchronizer.Start(ctx)
		if err != nil { // cannot cover
			_ = state.server.Shutdown(context.Background())
			return tracerr.Wrap(err)
		}
	}
	state.started = true
	state.logger.Info().Str("addr", state.server.Addr()).Msg("Node started")
	return nil
}

// Close stops synchronization and the HTTP API. The ledger is discarded with the node.
func (state *State) Close() error {
	state.lock.Lock()
	defer state.lock.Unlock()
	if state.closed {
		state.logger.Debug().Msg("Already closed")
		return nil
	}

	state.logger.Debug().Msg("Closing...")
	if state.synchronizer != nil {
		state.synchronizer.Stop()
	}
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	err := state.server.Shutdown(ctx)
	if err != nil {
		return tracerr.Wrap(err)
	}

	state.closed = true
	state.logger.Info().Msg("Closed")
	return nil
}
