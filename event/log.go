// Package event defines the core data structures for blockchain event logs.
package event

import (
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

// Hash represents a 32-byte hash.
type Hash = common.Hash

// Address represents a 20-byte Ethereum-compatible address. Equality is byte
// equality, so two hex spellings differing only in case compare equal once parsed.
type Address = common.Address

// Log represents a single event log emitted by a smart contract.
type Log struct {
	// Chain identifies which blockchain this log came from.
	Chain string

	// Address is the contract address that emitted the event.
	Address Address

	// Topics contains the indexed event parameters.
	// Topics[0] is typically the event signature hash.
	Topics []Hash

	// Data holds the non-indexed event parameters (ABI-encoded).
	Data []byte

	BlockNumber uint64
	BlockHash   Hash
	TxHash      Hash
	TxIndex     uint
	LogIndex    uint

	// Removed indicates whether this log was reverted due to a chain reorganization.
	Removed bool

	// ObservedAt is the local time the log was handed to fathom.
	ObservedAt time.Time
}

// Key identifies a log independently of how many times it was delivered.
type Key struct {
	TxHash   Hash
	LogIndex uint
}

// Key returns the delivery-independent identity of the log.
func (l Log) Key() Key {
	return Key{TxHash: l.TxHash, LogIndex: l.LogIndex}
}

// EventSignature returns the first topic (event signature hash), or a zero hash if no topics exist.
func (l Log) EventSignature() Hash {
	if len(l.Topics) > 0 {
		return l.Topics[0]
	}
	return Hash{}
}

// FromTypesLog converts a go-ethereum log into a Log tagged with chainID.
func FromTypesLog(chainID string, tl types.Log) Log {
	topics := make([]Hash, len(tl.Topics))
	copy(topics, tl.Topics)
	return Log{
		Chain:       chainID,
		Address:     tl.Address,
		Topics:      topics,
		Data:        tl.Data,
		BlockNumber: tl.BlockNumber,
		BlockHash:   tl.BlockHash,
		TxHash:      tl.TxHash,
		TxIndex:     tl.TxIndex,
		LogIndex:    tl.Index,
		Removed:     tl.Removed,
		ObservedAt:  time.Now(),
	}
}

// ToTypesLog converts the log back to go-ethereum's representation, for use
// with accounts/abi unpacking helpers.
func (l Log) ToTypesLog() types.Log {
	return types.Log{
		Address:     l.Address,
		Topics:      l.Topics,
		Data:        l.Data,
		BlockNumber: l.BlockNumber,
		TxHash:      l.TxHash,
		TxIndex:     l.TxIndex,
		BlockHash:   l.BlockHash,
		Index:       l.LogIndex,
		Removed:     l.Removed,
	}
}
