package peer_sync

import (
	"context"
	"github.com/rs/zerolog"
	"github.com/securerx/go-securerx/ledger"
	"github.com/securerx/go-securerx/node_api"
	"github.com/securerx/go-securerx/utils"
	"github.com/ztrue/tracerr"
	"sync"
	"time"
)

const (
	DefaultInterval       = 5 * time.Second
	DefaultRequestTimeout = 5 * time.Second
	minInterval           = 10 * time.Millisecond
)

var (
	// ErrorNoLedger is returned by New when Options.Ledger is nil
	ErrorNoLedger = utils.NewRxError("PEER_SYNC_NO_LEDGER", "a ledger is required")
	// ErrorAlreadyStarted is returned by Start when the loop is already running
	ErrorAlreadyStarted = utils.NewRxError("PEER_SYNC_ALREADY_STARTED", "synchronizer is already running")
)

// Chain is the part of ledger.Ledger the synchronizer needs.
type Chain interface {
	ReplaceIfLonger(blocks []ledger.Block) (bool, error)
	Len() int
}

// Recorder receives fetch failures. It is implemented by the metrics package.
type Recorder interface {
	SyncFailed(peer string)
}

type noopRecorder struct{}

func (noopRecorder) SyncFailed(string) {}

type Options struct {
	Ledger Chain
	// Peers are base URLs of other nodes. Bare host:port addresses get the http scheme.
	Peers []string
	// Interval between two cycles. Defaults to DefaultInterval.
	Interval time.Duration
	// RequestTimeout bounds each peer fetch. Defaults to DefaultRequestTimeout.
	RequestTimeout time.Duration
	NodeId         string
	Logger         zerolog.Logger
	Recorder       Recorder
}

type Outcome string

const (
	OutcomeReplaced  Outcome = "replaced"
	OutcomeUnchanged Outcome = "unchanged"
	OutcomeFailed    Outcome = "failed"
)

type PeerResult struct {
	Peer         string
	Outcome      Outcome
	RemoteHeight int
	Err          error
}

// Report is the result of one synchronization cycle, in peer order.
type Report struct {
	Peers []PeerResult
}

// Replaced returns true if any peer's chain was adopted during the cycle.
func (r Report) Replaced() bool {
	for _, p := range r.Peers {
		if p.Outcome == OutcomeReplaced {
			return true
		}
	}
	return false
}

type peer struct {
	url    string
	client *node_api.ApiClient
}

// Synchronizer periodically fetches the chain of every peer, and adopts any chain strictly longer than the local one.
// Remote chains are not validated before adoption.
type Synchronizer struct {
	chain    Chain
	peers    []peer
	interval time.Duration
	timeout  time.Duration
	logger   zerolog.Logger
	recorder Recorder

	lock    sync.Mutex
	cancel  context.CancelFunc
	stopped chan struct{}
}

func New(options *Options) (*Synchronizer, error) {
	if options == nil || options.Ledger == nil {
		return nil, tracerr.Wrap(ErrorNoLedger)
	}
	s := &Synchronizer{
		chain:    options.Ledger,
		interval: utils.Ternary(options.Interval == 0, DefaultInterval, utils.Max(options.Interval, minInterval)),
		timeout:  utils.Ternary(options.RequestTimeout <= 0, DefaultRequestTimeout, options.RequestTimeout),
		logger:   options.Logger.With().Str("component", "peerSync").Logger(),
		recorder: options.Recorder,
	}
	if s.recorder == nil {
		s.recorder = noopRecorder{}
	}
	clientOptions := &node_api.ClientOptions{Timeout: s.timeout, NodeId: options.NodeId, Logger: options.Logger}
	for _, address := range options.Peers {
		if address == "" {
			continue
		}
		url := node_api.NormalizeNodeUrl(address)
		s.peers = append(s.peers, peer{url: url, client: node_api.NewApiClient(url, clientOptions)})
	}
	return s, nil
}

// Peers returns the normalized peer URLs.
func (s *Synchronizer) Peers() []string {
	return utils.SliceMap(s.peers, func(p peer) string { return p.url })
}

func (s *Synchronizer) syncPeer(ctx context.Context, p peer) PeerResult {
	requestCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	blocks, err := p.client.GetBlocks(requestCtx)
	if err != nil {
		s.recorder.SyncFailed(p.url)
		s.logger.Warn().Str("peer", p.url).Err(err).Msg("Cannot fetch chain from peer, skipping")
		return PeerResult{Peer: p.url, Outcome: OutcomeFailed, Err: err}
	}
	replaced, err := s.chain.ReplaceIfLonger(blocks)
	if err != nil { // cannot cover
		s.logger.Warn().Str("peer", p.url).Err(err).Msg("Cannot replace chain")
		return PeerResult{Peer: p.url, Outcome: OutcomeFailed, RemoteHeight: len(blocks), Err: err}
	}
	if replaced {
		s.logger.Info().Str("peer", p.url).Int("height", len(blocks)).Msg("Adopted longer chain from peer")
		return PeerResult{Peer: p.url, Outcome: OutcomeReplaced, RemoteHeight: len(blocks)}
	}
	s.logger.Debug().Str("peer", p.url).Int("remoteHeight", len(blocks)).Msg("Peer chain is not longer")
	return PeerResult{Peer: p.url, Outcome: OutcomeUnchanged, RemoteHeight: len(blocks)}
}

// SyncOnce runs one cycle over all peers, in order. A failing peer never stops the cycle.
func (s *Synchronizer) SyncOnce(ctx context.Context) Report {
	report := Report{Peers: make([]PeerResult, 0, len(s.peers))}
	for _, p := range s.peers {
		if ctx.Err() != nil {
			break
		}
		report.Peers = append(report.Peers, s.syncPeer(ctx, p))
	}
	return report
}

// Run syncs every interval until ctx is cancelled.
func (s *Synchronizer) Run(ctx context.Context) {
	s.logger.Info().Int("peers", len(s.peers)).Dur("interval", s.interval).Msg("Starting peer synchronization")
	timer := time.NewTimer(0)
	defer timer.Stop()
	for {
		select {
		case <-ctx.Done():
			s.logger.Info().Msg("Peer synchronization stopped")
			return
		case <-timer.C:
			report := s.SyncOnce(ctx)
			s.logger.Trace().Int("height", s.chain.Len()).Int("peers", len(report.Peers)).Msg("Sync cycle done")
			timer.Reset(s.interval)
		}
	}
}

// Start runs the loop in a background goroutine.
func (s *Synchronizer) Start(ctx context.Context) error {
	s.lock.Lock()
	defer s.lock.Unlock()
	if s.cancel != nil {
		return tracerr.Wrap(ErrorAlreadyStarted)
	}
	loopCtx, cancel := context.WithCancel(ctx)
	stopped := make(chan struct{})
	s.cancel = cancel
	s.stopped = stopped
	go func() {
		defer close(stopped)
		s.Run(loopCtx)
	}()
	return nil
}

// Stop cancels the loop started by Start and waits for it to return. It is a no-op if the loop is not running.
func (s *Synchronizer) Stop() {
	s.lock.Lock()
	cancel, stopped := s.cancel, s.stopped
	s.cancel, s.stopped = nil, nil
	s.lock.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-stopped
}
