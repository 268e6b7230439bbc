// Package decoder turns raw event logs into named parameters.
package decoder

import (
	"encoding/json"
	"fmt"
	"math/big"
	"reflect"
	"sort"
	"strings"

	"github.com/hedeqiang/fathom/event"
)

// Decoder decodes raw event logs into structured data.
type Decoder interface {
	// Decode parses a raw log into a DecodedEvent.
	Decode(log event.Log) (*DecodedEvent, error)

	// Register adds an event ABI signature to the decoder.
	// The signature should be in Solidity format, e.g. "Transfer(address,address,uint256)".
	Register(eventSignature string) error
}

// DecodedEvent contains the decoded representation of an event log.
type DecodedEvent struct {
	// Name is the event name (e.g. "BetSettled").
	Name string

	// Signature is the canonical event signature.
	Signature string

	// Params holds all decoded parameter values keyed by parameter name (indexed + non-indexed).
	Params map[string]interface{}

	// Indexed holds only the decoded indexed (topic) parameters.
	Indexed map[string]interface{}

	// Data holds only the decoded non-indexed (data) parameters.
	Data map[string]interface{}

	// Raw is the original unmodified event log.
	Raw event.Log
}

// Address returns the named parameter as an address.
func (e *DecodedEvent) Address(name string) (event.Address, bool) {
	v, ok := e.lookup(name)
	if !ok {
		return event.Address{}, false
	}
	a, ok := v.(event.Address)
	return a, ok
}

// Uint64 returns the named unsigned integer parameter. It fails for values
// that do not fit in 64 bits.
func (e *DecodedEvent) Uint64(name string) (uint64, bool) {
	v, ok := e.lookup(name)
	if !ok {
		return 0, false
	}
	switch n := v.(type) {
	case *big.Int:
		if n == nil || n.Sign() < 0 || !n.IsUint64() {
			return 0, false
		}
		return n.Uint64(), true
	case uint8:
		return uint64(n), true
	case uint16:
		return uint64(n), true
	case uint32:
		return uint64(n), true
	case uint64:
		return n, true
	default:
		return 0, false
	}
}

// BigInt returns the named integer parameter as a *big.Int.
func (e *DecodedEvent) BigInt(name string) (*big.Int, bool) {
	v, ok := e.lookup(name)
	if !ok {
		return nil, false
	}
	rv := reflect.ValueOf(v)
	switch n := v.(type) {
	case *big.Int:
		return n, n != nil
	default:
		switch rv.Kind() {
		case reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
			return new(big.Int).SetUint64(rv.Uint()), true
		case reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
			return big.NewInt(rv.Int()), true
		}
	}
	return nil, false
}

func (e *DecodedEvent) lookup(name string) (interface{}, bool) {
	if v, ok := e.Params[name]; ok {
		return v, true
	}
	return lookupFold(e.Params, name)
}

// String returns a human-readable representation of the decoded event.
func (e *DecodedEvent) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s(", e.Name)

	keys := make([]string, 0, len(e.Params))
	for k := range e.Params {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for i, k := range keys {
		if i > 0 {
			b.WriteString(", ")
		}
		fmt.Fprintf(&b, "%s=%s", k, render(e.Params[k]))
	}
	b.WriteString(")")

	fmt.Fprintf(&b, " chain=%s block=%d tx=%s",
		e.Raw.Chain, e.Raw.BlockNumber, e.Raw.TxHash.Hex())

	return b.String()
}

// JSON returns the decoded event as a JSON-serializable map.
// Addresses and hashes are hex-encoded, *big.Int becomes a decimal string,
// and byte slices become "0x"-prefixed hex strings.
func (e *DecodedEvent) JSON() map[string]interface{} {
	m := map[string]interface{}{
		"event":       e.Name,
		"signature":   e.Signature,
		"chain":       e.Raw.Chain,
		"blockNumber": e.Raw.BlockNumber,
		"txHash":      e.Raw.TxHash.Hex(),
		"logIndex":    e.Raw.LogIndex,
		"address":     e.Raw.Address.Hex(),
		"removed":     e.Raw.Removed,
	}

	params := make(map[string]interface{}, len(e.Params))
	for k, v := range e.Params {
		params[k] = jsonValue(v)
	}
	m["params"] = params

	return m
}

// MarshalJSON implements json.Marshaler.
func (e *DecodedEvent) MarshalJSON() ([]byte, error) {
	return json.Marshal(e.JSON())
}
