package ledger

import (
	"fmt"
	"github.com/rs/zerolog"
	"github.com/securerx/go-securerx/transaction"
	"github.com/securerx/go-securerx/utils"
	"github.com/ztrue/tracerr"
	"sync"
	"time"
)

var (
	// ErrorEmptyChain is returned when trying to replace the ledger with no blocks
	ErrorEmptyChain = utils.NewRxError("LEDGER_EMPTY_CHAIN", "a ledger cannot be empty")
	// ErrorBlockNotFound is returned by Get for an index past the tail
	ErrorBlockNotFound = utils.NewRxError("LEDGER_BLOCK_NOT_FOUND", "no block at this index")
	// ErrorBrokenLink is returned by ValidateDetailed when a block does not point to the hash of its predecessor
	ErrorBrokenLink = utils.NewRxError("LEDGER_BROKEN_LINK", "previous hash does not match")
	// ErrorInvalidTransaction is returned by ValidateDetailed when a transaction signature does not verify
	ErrorInvalidTransaction = utils.NewRxError("LEDGER_INVALID_TRANSACTION", "transaction signature does not verify")
)

// Recorder receives ledger events. It is implemented by the metrics package.
type Recorder interface {
	BlockAppended(block Block, height int)
	ChainReplaced(height int)
}

type noopRecorder struct{}

func (noopRecorder) BlockAppended(Block, int) {}
func (noopRecorder) ChainReplaced(int)        {}

type Options struct {
	// Clock is used for block timestamps. Defaults to time.Now.
	Clock func() time.Time
	// Recorder defaults to a no-op.
	Recorder Recorder
	Logger   zerolog.Logger
}

// Ledger is an in-memory, append-only chain of blocks. It always holds at least the genesis block.
// It is safe for concurrent use. No network I/O happens while the lock is held.
type Ledger struct {
	lock     sync.RWMutex
	blocks   []Block
	clock    func() time.Time
	recorder Recorder
	logger   zerolog.Logger
}

// New returns a ledger holding only a fresh genesis block.
func New(options *Options) *Ledger {
	if options == nil {
		options = &Options{Logger: zerolog.Nop()}
	}
	l := &Ledger{
		clock:    options.Clock,
		recorder: options.Recorder,
		logger:   options.Logger.With().Str("component", "ledger").Logger(),
	}
	if l.clock == nil {
		l.clock = time.Now
	}
	if l.recorder == nil {
		l.recorder = noopRecorder{}
	}
	genesis := Block{
		Index:        0,
		PreviousHash: GenesisPreviousHash,
		Timestamp:    l.now(),
		Transactions: []transaction.Transaction{},
		Nonce:        0,
	}
	l.blocks = []Block{genesis}
	l.logger.Debug().Uint64("timestamp", genesis.Timestamp).Msg("Created genesis block")
	return l
}

func (l *Ledger) now() uint64 {
	return uint64(l.clock().Unix())
}

// Append builds a block holding transactions on top of the current tail, and pushes it.
// Signatures are not checked here: see Validate.
func (l *Ledger) Append(transactions []transaction.Transaction) (Block, error) {
	l.lock.Lock()
	defer l.lock.Unlock()

	// blocks built locally always carry a list, so they hash the same after a round trip on the wire
	if transactions == nil {
		transactions = []transaction.Transaction{}
	}
	tail := l.blocks[len(l.blocks)-1]
	tailHash, err := tail.Hash()
	if err != nil {
		return Block{}, tracerr.Wrap(err)
	}
	block := copyBlock(Block{
		Index:        tail.Index + 1,
		PreviousHash: tailHash,
		Timestamp:    l.now(),
		Transactions: transactions,
		Nonce:        0,
	})
	l.blocks = append(l.blocks, block)
	l.recorder.BlockAppended(block, len(l.blocks))
	l.logger.Debug().Uint64("index", block.Index).Int("transactions", len(block.Transactions)).Msg("Appended block")
	return copyBlock(block), nil
}

// ValidateDetailed walks the chain from index 1 and returns the first defect found, or nil.
// The genesis block is not checked.
func (l *Ledger) ValidateDetailed() error {
	_, err := l.ValidateWithHeight()
	return tracerr.Wrap(err)
}

// ValidateWithHeight is ValidateDetailed, and also returns the height of the chain that was checked.
func (l *Ledger) ValidateWithHeight() (int, error) {
	l.lock.RLock()
	defer l.lock.RUnlock()

	return len(l.blocks), tracerr.Wrap(validateBlocks(l.blocks))
}

// Validate returns true if every block links to its predecessor and every transaction verifies.
func (l *Ledger) Validate() bool {
	return l.ValidateDetailed() == nil
}

func validateBlocks(blocks []Block) error {
	for i := 1; i < len(blocks); i++ {
		previousHash, err := blocks[i-1].Hash()
		if err != nil {
			return tracerr.Wrap(err)
		}
		if blocks[i].PreviousHash != previousHash {
			return tracerr.Wrap(ErrorBrokenLink.AddDetails(fmt.Sprintf("block %d", i)))
		}
		for j := range blocks[i].Transactions {
			if !blocks[i].Transactions[j].Verify() {
				return tracerr.Wrap(ErrorInvalidTransaction.AddDetails(fmt.Sprintf("block %d, transaction %d", i, j)))
			}
		}
	}
	return nil
}

// Replace overwrites the whole chain with a copy of blocks. The new chain is not validated.
func (l *Ledger) Replace(blocks []Block) error {
	if len(blocks) == 0 {
		return tracerr.Wrap(ErrorEmptyChain)
	}
	newBlocks := copyBlocks(blocks)

	l.lock.Lock()
	defer l.lock.Unlock()

	l.replace(newBlocks)
	return nil
}

// ReplaceIfLonger replaces the chain with blocks only if blocks is strictly longer than the current chain.
// The comparison and the replacement happen atomically.
func (l *Ledger) ReplaceIfLonger(blocks []Block) (bool, error) {
	if len(blocks) == 0 {
		return false, nil
	}
	newBlocks := copyBlocks(blocks)

	l.lock.Lock()
	defer l.lock.Unlock()

	if len(newBlocks) <= len(l.blocks) {
		return false, nil
	}
	l.replace(newBlocks)
	return true, nil
}

// replace must be called with the write lock held
func (l *Ledger) replace(newBlocks []Block) {
	previousHeight := len(l.blocks)
	l.blocks = newBlocks
	l.recorder.ChainReplaced(len(newBlocks))
	l.logger.Info().Int("previousHeight", previousHeight).Int("height", len(newBlocks)).Msg("Replaced chain")
}

// Snapshot returns a copy of the chain. Later changes to the ledger do not affect it, and the other way around.
func (l *Ledger) Snapshot() []Block {
	l.lock.RLock()
	defer l.lock.RUnlock()

	return copyBlocks(l.blocks)
}

func (l *Ledger) Get(index uint64) (Block, error) {
	l.lock.RLock()
	defer l.lock.RUnlock()

	if index >= uint64(len(l.blocks)) {
		return Block{}, tracerr.Wrap(ErrorBlockNotFound.AddDetails(fmt.Sprintf("index %d, height %d", index, len(l.blocks))))
	}
	return copyBlock(l.blocks[index]), nil
}

func (l *Ledger) Len() int {
	l.lock.RLock()
	defer l.lock.RUnlock()

	return len(l.blocks)
}

// Last returns the tail block.
func (l *Ledger) Last() Block {
	l.lock.RLock()
	defer l.lock.RUnlock()

	return copyBlock(l.blocks[len(l.blocks)-1])
}
