// Package abi parses human-readable Solidity event signatures into
// go-ethereum ABI events.
package abi

import (
	"fmt"
	"strings"

	gethabi "github.com/ethereum/go-ethereum/accounts/abi"
	"golang.org/x/crypto/sha3"

	"github.com/hedeqiang/fathom/event"
)

// EventSignatureHash computes the Keccak-256 hash of a canonical event signature.
func EventSignatureHash(sig string) event.Hash {
	h := sha3.NewLegacyKeccak256()
	h.Write([]byte(sig))
	var out event.Hash
	copy(out[:], h.Sum(nil))
	return out
}

// ParsedEvent represents a parsed Solidity event signature.
type ParsedEvent struct {
	Name   string
	Params []ParsedParam
}

// ParsedParam represents a single parameter in an event signature.
type ParsedParam struct {
	Type    string
	Name    string
	Indexed bool
}

// Canonical returns the canonical signature string (e.g. "Transfer(address,address,uint256)").
func (p *ParsedEvent) Canonical() string {
	types := make([]string, len(p.Params))
	for i, param := range p.Params {
		types[i] = param.Type
	}
	return fmt.Sprintf("%s(%s)", p.Name, strings.Join(types, ","))
}

// Event converts the parsed signature into a go-ethereum ABI event. Unnamed
// parameters are called arg0, arg1, ... by position.
func (p *ParsedEvent) Event() (gethabi.Event, error) {
	args := make(gethabi.Arguments, len(p.Params))
	for i, param := range p.Params {
		typ, err := newType(param.Type)
		if err != nil {
			return gethabi.Event{}, fmt.Errorf("abi: param %d of %s: %w", i, p.Name, err)
		}
		name := param.Name
		if name == "" {
			name = fmt.Sprintf("arg%d", i)
		}
		args[i] = gethabi.Argument{Name: name, Type: typ, Indexed: param.Indexed}
	}
	return gethabi.NewEvent(p.Name, p.Name, false, args), nil
}

// newType builds an ABI type, expanding "(t1,t2)[]" tuple notation into
// components named f0, f1, ...
func newType(typ string) (gethabi.Type, error) {
	if !strings.HasPrefix(typ, "(") {
		return gethabi.NewType(typ, "", nil)
	}
	components, suffix, err := tupleComponents(typ)
	if err != nil {
		return gethabi.Type{}, err
	}
	return gethabi.NewType("tuple"+suffix, "", components)
}

func tupleComponents(typ string) ([]gethabi.ArgumentMarshaling, string, error) {
	closeIdx := strings.LastIndexByte(typ, ')')
	if closeIdx < 0 {
		return nil, "", fmt.Errorf("unterminated tuple %q", typ)
	}
	inner, suffix := typ[1:closeIdx], typ[closeIdx+1:]

	parts := splitParams(inner)
	out := make([]gethabi.ArgumentMarshaling, 0, len(parts))
	for i, part := range parts {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		m := gethabi.ArgumentMarshaling{Name: fmt.Sprintf("f%d", i), Type: part}
		if strings.HasPrefix(part, "(") {
			sub, subSuffix, err := tupleComponents(part)
			if err != nil {
				return nil, "", err
			}
			m.Type = "tuple" + subSuffix
			m.Components = sub
		}
		out = append(out, m)
	}
	return out, suffix, nil
}

// ParseEventSignature parses a Solidity event signature string.
// Supported formats:
//   - "Transfer(address,address,uint256)"
//   - "Transfer(address indexed from, address indexed to, uint256 value)"
func ParseEventSignature(sig string) (*ParsedEvent, error) {
	sig = strings.TrimSpace(sig)

	parenOpen := strings.IndexByte(sig, '(')
	parenClose := strings.LastIndexByte(sig, ')')
	if parenOpen < 0 || parenClose < 0 || parenClose <= parenOpen {
		return nil, fmt.Errorf("abi: malformed event signature: %q", sig)
	}

	name := strings.TrimSpace(sig[:parenOpen])
	if name == "" {
		return nil, fmt.Errorf("abi: empty event name in signature: %q", sig)
	}

	paramsStr := strings.TrimSpace(sig[parenOpen+1 : parenClose])
	if paramsStr == "" {
		return &ParsedEvent{Name: name}, nil
	}

	parts := splitParams(paramsStr)
	params := make([]ParsedParam, 0, len(parts))

	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}

		p, err := parseParam(part)
		if err != nil {
			return nil, fmt.Errorf("abi: %w in signature %q", err, sig)
		}
		params = append(params, p)
	}

	return &ParsedEvent{Name: name, Params: params}, nil
}

func parseParam(s string) (ParsedParam, error) {
	tokens := strings.Fields(s)
	if len(tokens) == 0 {
		return ParsedParam{}, fmt.Errorf("empty parameter")
	}

	var p ParsedParam
	p.Type = tokens[0]
	// tuple types contain spaces only when written with names, which we reject
	if strings.HasPrefix(p.Type, "(") && !strings.HasSuffix(strings.TrimRight(p.Type, "[]0123456789"), ")") {
		return ParsedParam{}, fmt.Errorf("named tuple components are not supported: %q", s)
	}

	for i := 1; i < len(tokens); i++ {
		if tokens[i] == "indexed" {
			p.Indexed = true
		} else {
			p.Name = tokens[i]
		}
	}

	return p, nil
}

// splitParams splits a parameter list string, respecting nested parentheses (e.g., tuples).
func splitParams(s string) []string {
	var parts []string
	depth := 0
	start := 0

	for i, ch := range s {
		switch ch {
		case '(':
			depth++
		case ')':
			depth--
		case ',':
			if depth == 0 {
				parts = append(parts, s[start:i])
				start = i + 1
			}
		}
	}
	parts = append(parts, s[start:])
	return parts
}
