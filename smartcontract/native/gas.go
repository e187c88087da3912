package native

import (
	"fmt"
	"math/big"

	"github.com/n3node/core/hash"
	"github.com/n3node/core/smartcontract"
	"github.com/n3node/core/vm"
)

const GASTokenID int32 = -6

var gasTokenHash = deriveNativeHash("GASToken")

// GasDecimals is the fixed-point scale GAS amounts are stored at (§4.6).
const GasDecimals = 8

// GASToken is the utility token of §4.6: minted on NEO claim and on the
// per-block primary reward, burned to pay transaction fees.
type GASToken struct{}

func NewGASToken() *GASToken { return &GASToken{} }

func (g *GASToken) ID() int32          { return GASTokenID }
func (g *GASToken) Hash() hash.Uint160 { return gasTokenHash }
func (g *GASToken) Name() string       { return "GasToken" }

func gasAccountKey(account hash.Uint160) []byte { return key(prefixAccount, account.BytesLE()) }

func (g *GASToken) BalanceOf(e *smartcontract.Engine, account hash.Uint160) *big.Int {
	b, ok := getBigInt(e, GASTokenID, gasAccountKey(account))
	if !ok {
		return big.NewInt(0)
	}
	return b
}

func (g *GASToken) setBalance(e *smartcontract.Engine, account hash.Uint160, v *big.Int) error {
	if v.Sign() == 0 {
		return e.Snapshot.Delete(smartcontract.StorageKey(GASTokenID, gasAccountKey(account)))
	}
	return putBigInt(e, GASTokenID, gasAccountKey(account), v)
}

// Mint credits amount of GAS to account and grows total supply, the path
// used by NEO.Transfer's implicit claim and by the per-block primary
// reward in PostPersist.
func (g *GASToken) Mint(e *smartcontract.Engine, account hash.Uint160, amount *big.Int) error {
	if amount.Sign() <= 0 {
		return nil
	}
	bal := g.BalanceOf(e, account)
	if err := g.setBalance(e, account, new(big.Int).Add(bal, amount)); err != nil {
		return err
	}
	supply := g.totalSupply(e)
	return putBigInt(e, GASTokenID, []byte{prefixTotalSupply}, new(big.Int).Add(supply, amount))
}

// Burn debits amount of GAS from account (transaction fee settlement)
// and shrinks total supply accordingly.
func (g *GASToken) Burn(e *smartcontract.Engine, account hash.Uint160, amount *big.Int) error {
	if amount.Sign() <= 0 {
		return nil
	}
	bal := g.BalanceOf(e, account)
	if bal.Cmp(amount) < 0 {
		return fmt.Errorf("native: insufficient GAS balance to burn")
	}
	if err := g.setBalance(e, account, new(big.Int).Sub(bal, amount)); err != nil {
		return err
	}
	supply := g.totalSupply(e)
	return putBigInt(e, GASTokenID, []byte{prefixTotalSupply}, new(big.Int).Sub(supply, amount))
}

// Transfer moves amount of GAS between two accounts directly (no claim
// side-effects — that is NEO's concern).
func (g *GASToken) Transfer(e *smartcontract.Engine, from, to hash.Uint160, amount *big.Int) error {
	if amount.Sign() < 0 {
		return fmt.Errorf("native: GAS transfer amount must be non-negative")
	}
	if amount.Sign() == 0 {
		return nil
	}
	fb := g.BalanceOf(e, from)
	if fb.Cmp(amount) < 0 {
		return fmt.Errorf("native: insufficient GAS balance")
	}
	if err := g.setBalance(e, from, new(big.Int).Sub(fb, amount)); err != nil {
		return err
	}
	tb := g.BalanceOf(e, to)
	return g.setBalance(e, to, new(big.Int).Add(tb, amount))
}

func (g *GASToken) totalSupply(e *smartcontract.Engine) *big.Int {
	b, ok := getBigInt(e, GASTokenID, []byte{prefixTotalSupply})
	if !ok {
		return big.NewInt(0)
	}
	return b
}

// OnPersist burns every transaction's SystemFee+NetworkFee from its
// first signer before the block's transactions run, the §8 guarantee
// that fees are charged whether a transaction HALTs or FAULTs: this
// runs against the block-level cache, ahead of (and independent of)
// each transaction's own nested cache.
func (g *GASToken) OnPersist(e *smartcontract.Engine) error {
	for _, settlement := range e.PersistingFees() {
		bal := g.BalanceOf(e, settlement.Payer)
		amount := settlement.Amount
		if bal.Cmp(amount) < 0 {
			amount = bal
		}
		if err := g.Burn(e, settlement.Payer, amount); err != nil {
			return err
		}
	}
	return nil
}

// PostPersist mints the block reward to the primary validator, the
// "GAS mints block rewards to the primary" hook named in §4.6. The
// reward-per-block figure is read from the same policy slot NEO's
// unclaimed-GAS accrual uses, keeping the two in sync.
func (g *GASToken) PostPersist(e *smartcontract.Engine) error {
	primary := e.PrimaryAccount()
	if primary == (hash.Uint160{}) {
		return nil
	}
	perBlock, ok := getBigInt(e, NEOTokenID, []byte{prefixGasPerBlock})
	if !ok || perBlock.Sign() == 0 {
		perBlock = big.NewInt(5 * 100_000_000)
	}
	return g.Mint(e, primary, perBlock)
}

func (g *GASToken) Invoke(e *smartcontract.Engine, method string, args []vm.Item) (vm.Item, error) {
	switch method {
	case "symbol":
		return okBytes([]byte("GAS"))
	case "decimals":
		return okInt(big.NewInt(GasDecimals))
	case "totalSupply":
		return okInt(g.totalSupply(e))
	case "balanceOf":
		if len(args) < 1 {
			return nil, fmt.Errorf("native: balanceOf requires (account)")
		}
		acc, err := popUint160(args[0])
		if err != nil {
			return nil, err
		}
		return okInt(g.BalanceOf(e, acc))
	case "transfer":
		if len(args) < 3 {
			return nil, fmt.Errorf("native: transfer requires (from, to, amount)")
		}
		from, err := popUint160(args[0])
		if err != nil {
			return nil, err
		}
		to, err := popUint160(args[1])
		if err != nil {
			return nil, err
		}
		amt, err := intArg(args[2])
		if err != nil {
			return nil, err
		}
		if !e.CheckWitness(from) {
			return okBool(false)
		}
		if err := g.Transfer(e, from, to, amt); err != nil {
			return nil, err
		}
		return okBool(true)
	default:
		return nil, fmt.Errorf("native: GasToken has no method %q", method)
	}
}
