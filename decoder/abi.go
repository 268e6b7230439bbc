package decoder

import (
	"bytes"
	"errors"
	"fmt"

	gethabi "github.com/ethereum/go-ethereum/accounts/abi"

	"github.com/hedeqiang/fathom/event"
	abiutil "github.com/hedeqiang/fathom/internal/abi"
)

var (
	// ErrUnknownEvent is returned for logs whose topic0 is not registered.
	ErrUnknownEvent = errors.New("decoder: unknown event signature")

	// ErrMalformed is returned when the log does not fit the registered event.
	ErrMalformed = errors.New("decoder: malformed log")
)

var _ Decoder = (*ABIDecoder)(nil)

// ABIDecoder decodes event logs using registered ABI event definitions.
type ABIDecoder struct {
	schema *Schema
}

// NewABIDecoder creates a new ABI-based event decoder.
func NewABIDecoder() *ABIDecoder {
	return &ABIDecoder{
		schema: NewSchema(),
	}
}

// Register parses a Solidity event signature and registers it for decoding.
// Example: "Transfer(address indexed from, address indexed to, uint256 value)"
func (d *ABIDecoder) Register(eventSignature string) error {
	parsed, err := abiutil.ParseEventSignature(eventSignature)
	if err != nil {
		return fmt.Errorf("decoder: %w", err)
	}
	ev, err := parsed.Event()
	if err != nil {
		return fmt.Errorf("decoder: %w", err)
	}
	d.schema.Add(ev)
	return nil
}

// RegisterJSON registers all event definitions from a standard JSON ABI.
// Non-event entries are ignored.
func (d *ABIDecoder) RegisterJSON(jsonABI []byte) error {
	parsed, err := gethabi.JSON(bytes.NewReader(jsonABI))
	if err != nil {
		return fmt.Errorf("decoder: parse JSON ABI: %w", err)
	}
	d.RegisterABI(parsed)
	return nil
}

// RegisterABI registers every event of an already parsed ABI.
func (d *ABIDecoder) RegisterABI(parsed gethabi.ABI) {
	for _, ev := range parsed.Events {
		if ev.Anonymous {
			continue
		}
		d.schema.Add(ev)
	}
}

// Topic returns the topic0 hash of a registered event, for building queries.
func (d *ABIDecoder) Topic(name string) (event.Hash, bool) {
	return d.schema.Topic(name)
}

// Decode attempts to decode a log using registered event definitions.
func (d *ABIDecoder) Decode(log event.Log) (*DecodedEvent, error) {
	if len(log.Topics) == 0 {
		return nil, fmt.Errorf("%w: log has no topics", ErrMalformed)
	}

	ev, ok := d.schema.Lookup(log.Topics[0])
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownEvent, log.Topics[0].Hex())
	}

	decoded := &DecodedEvent{
		Name:      ev.Name,
		Signature: ev.Sig,
		Params:    make(map[string]interface{}),
		Indexed:   make(map[string]interface{}),
		Data:      make(map[string]interface{}),
		Raw:       log,
	}

	var indexed gethabi.Arguments
	for _, arg := range ev.Inputs {
		if arg.Indexed {
			indexed = append(indexed, arg)
		}
	}
	if len(log.Topics)-1 != len(indexed) {
		return nil, fmt.Errorf("%w: %s expects %d indexed topics, got %d",
			ErrMalformed, ev.Name, len(indexed), len(log.Topics)-1)
	}
	if err := gethabi.ParseTopicsIntoMap(decoded.Indexed, indexed, log.Topics[1:]); err != nil {
		return nil, fmt.Errorf("%w: %s topics: %v", ErrMalformed, ev.Name, err)
	}

	if nonIndexed := ev.Inputs.NonIndexed(); len(nonIndexed) > 0 {
		if err := nonIndexed.UnpackIntoMap(decoded.Data, log.Data); err != nil {
			return nil, fmt.Errorf("%w: %s data: %v", ErrMalformed, ev.Name, err)
		}
	}

	for k, v := range decoded.Indexed {
		decoded.Params[k] = v
	}
	for k, v := range decoded.Data {
		decoded.Params[k] = v
	}

	return decoded, nil
}
