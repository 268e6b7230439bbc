package tracker

import (
	"errors"
	"fmt"

	"github.com/hedeqiang/fathom/decoder"
	"github.com/hedeqiang/fathom/event"
)

// EventSpec describes the request/fulfillment event pair of an oracle
// consumer contract.
type EventSpec struct {
	// ABI is a JSON ABI holding both events. Signatures may be used instead.
	ABI string

	// Signatures are human-readable event signatures, e.g.
	// "BetSettled(uint64 seq, address indexed player, uint256 payout)".
	Signatures []string

	// Submitted is the event carrying the correlation key of a new request.
	// Empty disables key discovery, leaving address-only matching.
	Submitted string

	// Fulfilled is the settlement event.
	Fulfilled string

	// RequesterField names the requester address in both events. An event
	// without it, or an empty RequesterField, is matched by key alone.
	RequesterField string

	// KeyField names the correlation key (sequence number) in both events.
	KeyField string
}

// PlinkoSpec returns the spec of the entropy-arcade games: BetRequested
// assigns seq, BetSettled carries the outcome, both keyed by player.
func PlinkoSpec() EventSpec {
	return EventSpec{
		Signatures: []string{
			"BetRequested(uint64 seq, address indexed player, uint256 stakeWei, uint8 rows)",
			"BetSettled(uint64 seq, address indexed player, uint256 stakeWei, uint8 rows, uint256 bin, uint256 payout)",
		},
		Submitted:      "BetRequested",
		Fulfilled:      "BetSettled",
		RequesterField: "player",
		KeyField:       "seq",
	}
}

// EntropySpec returns the spec of a Pyth Entropy v2 consumer that emits
// BeastMintRequested. The fulfillment is the Entropy contract's Revealed
// event, which names the consumer rather than the user, so matching is by
// sequence number alone. Pair it with WithFulfillmentContract.
func EntropySpec() EventSpec {
	return EventSpec{
		ABI:       entropyABI,
		Submitted: "BeastMintRequested",
		Fulfilled: "Revealed",
		KeyField:  "sequenceNumber",
	}
}

const entropyABI = `[
{"type":"event","name":"BeastMintRequested","anonymous":false,"inputs":[
 {"name":"tokenId","type":"uint256","indexed":true},
 {"name":"gasLimit","type":"uint32","indexed":false},
 {"name":"isBig","type":"bool","indexed":false},
 {"name":"sequenceNumber","type":"uint64","indexed":false}]},
{"type":"event","name":"Revealed","anonymous":false,"inputs":[
 {"name":"provider","type":"address","indexed":true},
 {"name":"caller","type":"address","indexed":true},
 {"name":"sequenceNumber","type":"uint64","indexed":true},
 {"name":"randomNumber","type":"bytes32","indexed":false},
 {"name":"userContribution","type":"bytes32","indexed":false},
 {"name":"providerContribution","type":"bytes32","indexed":false},
 {"name":"callbackFailed","type":"bool","indexed":false},
 {"name":"callbackReturnValue","type":"bytes","indexed":false},
 {"name":"callbackGasUsed","type":"uint32","indexed":false},
 {"name":"extraArgs","type":"bytes","indexed":false}]}
]`

// compiled is an EventSpec resolved against its ABI.
type compiled struct {
	EventSpec
	decoder        *decoder.ABIDecoder
	submittedTopic event.Hash
	fulfilledTopic event.Hash
}

func (s EventSpec) compile() (*compiled, error) {
	if s.Fulfilled == "" {
		return nil, errors.New("tracker: spec has no fulfilled event")
	}
	if s.RequesterField == "" && s.KeyField == "" {
		return nil, errors.New("tracker: spec needs a requester or key field")
	}

	d := decoder.NewABIDecoder()
	if s.ABI != "" {
		if err := d.RegisterJSON([]byte(s.ABI)); err != nil {
			return nil, fmt.Errorf("tracker: %w", err)
		}
	}
	for _, sig := range s.Signatures {
		if err := d.Register(sig); err != nil {
			return nil, fmt.Errorf("tracker: %w", err)
		}
	}

	c := &compiled{EventSpec: s, decoder: d}
	var ok bool
	if c.fulfilledTopic, ok = d.Topic(s.Fulfilled); !ok {
		return nil, fmt.Errorf("tracker: event %q not in spec ABI", s.Fulfilled)
	}
	if s.Submitted != "" {
		if c.submittedTopic, ok = d.Topic(s.Submitted); !ok {
			return nil, fmt.Errorf("tracker: event %q not in spec ABI", s.Submitted)
		}
	}
	return c, nil
}

// fields pulls the requester and key out of a decoded event. Either may be
// absent.
func (c *compiled) fields(ev *decoder.DecodedEvent) (requester event.Address, hasRequester bool, key correlationKey) {
	if c.RequesterField != "" {
		requester, hasRequester = ev.Address(c.RequesterField)
	}
	if c.KeyField != "" {
		if v, ok := ev.BigInt(c.KeyField); ok {
			key = correlationKey{v}
		}
	}
	return requester, hasRequester, key
}

// payload is every decoded field except the requester and key.
func (c *compiled) payload(ev *decoder.DecodedEvent) map[string]interface{} {
	out := make(map[string]interface{}, len(ev.Params))
	for name, v := range ev.Params {
		if name == c.RequesterField || name == c.KeyField {
			continue
		}
		out[name] = v
	}
	return out
}
