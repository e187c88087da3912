package native

import (
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"math/big"

	"github.com/n3node/core/hash"
	"github.com/n3node/core/smartcontract"
	"github.com/n3node/core/vm"
)

const StdLibID int32 = -11

var stdLibHash = deriveNativeHash("StdLib")

// StdLib is the pure-function encoding/serialization helper native of
// §4.6; it holds no persistent state.
type StdLib struct{}

func NewStdLib() *StdLib { return &StdLib{} }

func (s *StdLib) ID() int32          { return StdLibID }
func (s *StdLib) Hash() hash.Uint160 { return stdLibHash }
func (s *StdLib) Name() string       { return "StdLib" }
func (s *StdLib) OnPersist(*smartcontract.Engine) error   { return nil }
func (s *StdLib) PostPersist(*smartcontract.Engine) error { return nil }

func (s *StdLib) Invoke(e *smartcontract.Engine, method string, args []vm.Item) (vm.Item, error) {
	switch method {
	case "base64Encode":
		b, err := bsArg(args[0])
		if err != nil {
			return nil, err
		}
		return okBytes([]byte(base64.StdEncoding.EncodeToString(b)))
	case "base64Decode":
		b, err := bsArg(args[0])
		if err != nil {
			return nil, err
		}
		dec, err := base64.StdEncoding.DecodeString(string(b))
		if err != nil {
			return nil, fmt.Errorf("native: base64Decode: %w", err)
		}
		return okBytes(dec)
	case "base58Encode":
		b, err := bsArg(args[0])
		if err != nil {
			return nil, err
		}
		return okBytes([]byte(base58Encode(b)))
	case "base58Decode":
		b, err := bsArg(args[0])
		if err != nil {
			return nil, err
		}
		dec, err := base58Decode(string(b))
		if err != nil {
			return nil, err
		}
		return okBytes(dec)
	case "hexEncode":
		b, err := bsArg(args[0])
		if err != nil {
			return nil, err
		}
		return okBytes([]byte(hex.EncodeToString(b)))
	case "hexDecode":
		b, err := bsArg(args[0])
		if err != nil {
			return nil, err
		}
		dec, err := hex.DecodeString(string(b))
		if err != nil {
			return nil, fmt.Errorf("native: hexDecode: %w", err)
		}
		return okBytes(dec)
	case "itoa":
		v, err := intArg(args[0])
		if err != nil {
			return nil, err
		}
		return okBytes([]byte(v.String()))
	case "atoi":
		b, err := bsArg(args[0])
		if err != nil {
			return nil, err
		}
		v, ok := new(big.Int).SetString(string(b), 10)
		if !ok {
			return nil, fmt.Errorf("native: atoi: invalid integer %q", b)
		}
		return okInt(v)
	default:
		return nil, fmt.Errorf("native: StdLib has no method %q", method)
	}
}

// base58 alphabet per the Bitcoin/Neo convention (no 0, O, I, l).
const base58Alphabet = "123456789ABCDEFGHJKLMNPQRSTUVWXYZabcdefghijkmnopqrstuvwxyz"

func base58Encode(b []byte) string {
	zero := base58Alphabet[0]
	n := new(big.Int).SetBytes(b)
	var out []byte
	base := big.NewInt(58)
	mod := new(big.Int)
	for n.Sign() > 0 {
		n.DivMod(n, base, mod)
		out = append(out, base58Alphabet[mod.Int64()])
	}
	for _, c := range b {
		if c != 0 {
			break
		}
		out = append(out, zero)
	}
	reverse(out)
	return string(out)
}

func base58Decode(s string) ([]byte, error) {
	n := new(big.Int)
	base := big.NewInt(58)
	for _, c := range []byte(s) {
		idx := indexByte(base58Alphabet, c)
		if idx < 0 {
			return nil, fmt.Errorf("native: base58Decode: invalid character %q", c)
		}
		n.Mul(n, base)
		n.Add(n, big.NewInt(int64(idx)))
	}
	decoded := n.Bytes()
	leading := 0
	for _, c := range []byte(s) {
		if c != base58Alphabet[0] {
			break
		}
		leading++
	}
	out := make([]byte, leading+len(decoded))
	copy(out[leading:], decoded)
	return out, nil
}

func indexByte(s string, c byte) int {
	for i := 0; i < len(s); i++ {
		if s[i] == c {
			return i
		}
	}
	return -1
}

func reverse(b []byte) {
	for i, j := 0, len(b)-1; i < j; i, j = i+1, j-1 {
		b[i], b[j] = b[j], b[i]
	}
}
