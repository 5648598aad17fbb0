package ledger

import (
	"crypto/sha256"
	"encoding/hex"
	"github.com/gibson042/canonicaljson-go"
	"github.com/securerx/go-securerx/transaction"
	"github.com/ztrue/tracerr"
)

// GenesisPreviousHash is the previous hash of every genesis block.
const GenesisPreviousHash = "0"

// Block is one link of the chain. Nonce is always 0: there is no proof-of-work.
type Block struct {
	Index        uint64                    `json:"index"`
	PreviousHash string                    `json:"previous_hash"`
	Timestamp    uint64                    `json:"timestamp"`
	Transactions []transaction.Transaction `json:"transactions"`
	Nonce        uint64                    `json:"nonce"`
}

// Hash returns the lowercase hex SHA-256 of the canonical JSON encoding of the block.
func (block Block) Hash() (string, error) {
	serializedBlock, err := canonicaljson.Marshal(block)
	if err != nil {
		return "", tracerr.Wrap(err)
	}

	blockHash := sha256.New()
	blockHash.Write(serializedBlock)

	return hex.EncodeToString(blockHash.Sum(nil)), nil
}

// copyBlock returns a block that shares no slice with b. A nil transaction list stays nil,
// as it encodes differently from an empty one.
func copyBlock(b Block) Block {
	c := b
	if b.Transactions != nil {
		c.Transactions = make([]transaction.Transaction, len(b.Transactions))
		copy(c.Transactions, b.Transactions)
	}
	return c
}

func copyBlocks(blocks []Block) []Block {
	c := make([]Block, len(blocks))
	for i, b := range blocks {
		c[i] = copyBlock(b)
	}
	return c
}
