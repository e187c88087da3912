package native

import (
	"fmt"

	"github.com/n3node/core/hash"
	"github.com/n3node/core/smartcontract"
	"github.com/n3node/core/vm"
)

const CryptoLibID int32 = -10

var cryptoLibHash = deriveNativeHash("CryptoLib")

// CryptoLib is the pure-function helper native of §4.2/§4.6: sha256,
// ripemd160, murmur32 and ECDSA verification on secp256r1 or
// secp256k1. It exposes no BLS12-381 operation and holds no persistent
// state.
type CryptoLib struct{}

func NewCryptoLib() *CryptoLib { return &CryptoLib{} }

func (c *CryptoLib) ID() int32          { return CryptoLibID }
func (c *CryptoLib) Hash() hash.Uint160 { return cryptoLibHash }
func (c *CryptoLib) Name() string       { return "CryptoLib" }
func (c *CryptoLib) OnPersist(*smartcontract.Engine) error   { return nil }
func (c *CryptoLib) PostPersist(*smartcontract.Engine) error { return nil }

func (c *CryptoLib) Invoke(e *smartcontract.Engine, method string, args []vm.Item) (vm.Item, error) {
	switch method {
	case "sha256":
		b, err := bsArg(args[0])
		if err != nil {
			return nil, err
		}
		sum := hash.Sha256(b)
		return okBytes(sum[:])
	case "ripemd160":
		b, err := bsArg(args[0])
		if err != nil {
			return nil, err
		}
		sum := hash.Ripemd160(b)
		return okBytes(sum[:])
	case "murmur32":
		b, err := bsArg(args[0])
		if err != nil {
			return nil, err
		}
		seedArg, err := intArg(args[1])
		if err != nil {
			return nil, err
		}
		v := hash.Murmur32(b, uint32(seedArg.Int64()))
		return okInt(bigFromUint32(v))
	case "verifyWithECDsa":
		if len(args) < 4 {
			return nil, fmt.Errorf("native: verifyWithECDsa requires (message, pubkey, signature, curve)")
		}
		msg, err := bsArg(args[0])
		if err != nil {
			return nil, err
		}
		pub, err := bsArg(args[1])
		if err != nil {
			return nil, err
		}
		sig, err := bsArg(args[2])
		if err != nil {
			return nil, err
		}
		curveArg, err := intArg(args[3])
		if err != nil {
			return nil, err
		}
		curve := hash.CurveSecp256r1
		if curveArg.Int64() == 1 {
			curve = hash.CurveSecp256k1
		}
		return okBool(hash.ECDSAVerify(curve, pub, msg, sig))
	default:
		return nil, fmt.Errorf("native: CryptoLib has no method %q", method)
	}
}
