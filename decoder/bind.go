package decoder

import (
	"errors"
	"fmt"
	"math/big"
	"reflect"
	"strings"

	"github.com/ethereum/go-ethereum/common/hexutil"

	"github.com/hedeqiang/fathom/event"
)

var errBindTarget = errors.New("decoder: Bind needs a non-nil pointer to a struct")

// Bind copies parameters into the struct out points to. A field takes the
// parameter named by its `abi` tag, or its own name compared
// case-insensitively; fields with no parameter are left alone and `abi:"-"`
// skips a field. *big.Int values narrow into sized integers when they fit.
//
//	var s struct {
//		Player event.Address
//		Seq    uint64
//		Payout *big.Int `abi:"payout"`
//	}
//	err := ev.Bind(&s)
func (e *DecodedEvent) Bind(out interface{}) error {
	ptr := reflect.ValueOf(out)
	if ptr.Kind() != reflect.Ptr || ptr.IsNil() || ptr.Elem().Kind() != reflect.Struct {
		return errBindTarget
	}
	dst := ptr.Elem()

	for _, f := range reflect.VisibleFields(dst.Type()) {
		if !f.IsExported() || f.Anonymous || len(f.Index) > 1 {
			continue
		}
		name := f.Tag.Get("abi")
		switch name {
		case "-":
			continue
		case "":
			name = f.Name
		}
		val, ok := e.lookup(name)
		if !ok || val == nil {
			continue
		}
		if err := assign(dst.FieldByIndex(f.Index), val); err != nil {
			return fmt.Errorf("decoder: bind %s.%s: %w", e.Name, f.Name, err)
		}
	}
	return nil
}

func lookupFold(params map[string]interface{}, name string) (interface{}, bool) {
	for k, v := range params {
		if strings.EqualFold(k, name) {
			return v, true
		}
	}
	return nil, false
}

func assign(dst reflect.Value, val interface{}) error {
	src := reflect.ValueOf(val)
	dt := dst.Type()

	switch {
	case src.Type().AssignableTo(dt):
		dst.Set(src)
		return nil
	case dt.Kind() == reflect.Ptr && src.Type().AssignableTo(dt.Elem()):
		p := reflect.New(dt.Elem())
		p.Elem().Set(src)
		dst.Set(p)
		return nil
	}

	if n, ok := val.(*big.Int); ok && n != nil {
		switch {
		case isUint(dt.Kind()):
			if n.Sign() < 0 || n.BitLen() > dt.Bits() {
				return fmt.Errorf("%s overflows %s", n, dt)
			}
			dst.SetUint(n.Uint64())
			return nil
		case isInt(dt.Kind()):
			if !n.IsInt64() || dst.OverflowInt(n.Int64()) {
				return fmt.Errorf("%s overflows %s", n, dt)
			}
			dst.SetInt(n.Int64())
			return nil
		}
	}

	sk := src.Kind()
	switch {
	case isUint(sk) && isUint(dt.Kind()) && src.Type().Bits() <= dt.Bits(),
		isInt(sk) && isInt(dt.Kind()) && src.Type().Bits() <= dt.Bits():
		dst.Set(src.Convert(dt))
		return nil
	case dt.Kind() == reflect.String:
		dst.SetString(render(val))
		return nil
	case dt.Kind() == reflect.Slice && dt.Elem().Kind() == reflect.Uint8:
		if b, ok := asBytes(val); ok {
			dst.SetBytes(b)
			return nil
		}
	}
	return fmt.Errorf("cannot assign %T to %s", val, dt)
}

func isUint(k reflect.Kind) bool {
	return k >= reflect.Uint && k <= reflect.Uint64
}

func isInt(k reflect.Kind) bool {
	return k >= reflect.Int && k <= reflect.Int64
}

func asBytes(v interface{}) ([]byte, bool) {
	switch b := v.(type) {
	case []byte:
		return b, true
	case event.Hash:
		return b.Bytes(), true
	case [32]byte:
		return b[:], true
	}
	return nil, false
}

// render formats a parameter for String: hex for addresses, hashes and
// bytes, decimal for integers.
func render(v interface{}) string {
	switch x := v.(type) {
	case event.Address:
		return x.Hex()
	case *big.Int:
		if x == nil {
			return "0"
		}
		return x.String()
	}
	if b, ok := asBytes(v); ok {
		return hexutil.Encode(b)
	}
	return fmt.Sprint(v)
}

// jsonValue is render for values JSON cannot carry faithfully; bools and
// small integers pass through.
func jsonValue(v interface{}) interface{} {
	switch v.(type) {
	case event.Address, *big.Int, []byte, event.Hash, [32]byte:
		return render(v)
	}
	return v
}
