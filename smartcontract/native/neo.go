package native

import (
	"encoding/binary"
	"fmt"
	"math/big"
	"sort"

	"github.com/n3node/core/hash"
	"github.com/n3node/core/smartcontract"
	"github.com/n3node/core/store"
	"github.com/n3node/core/vm"
)

const NEOTokenID int32 = -5

// NeoTotalSupply is fixed at genesis and never changes; NEO is not
// mintable or burnable past its initial distribution (§4.6).
const NeoTotalSupply int64 = 100_000_000

// DefaultCommitteeSize and DefaultValidatorsCount mirror the config
// knobs SPEC_FULL.md's ambient config package exposes
// (committee-members-count/validators-count). A new NEOToken starts
// with DefaultCommitteeSize, which SetCommitteeSize overrides;
// Validators always uses DefaultValidatorsCount, which has no setter.
const (
	DefaultCommitteeSize  = 21
	DefaultValidatorsCount = 7
)

var neoTokenHash = deriveNativeHash("NEOToken")

type neoAccount struct {
	Balance        *big.Int
	VoteTo         []byte // candidate public key, nil if not voting
	LastClaimIndex uint32
}

// NEOToken is the governance token of §4.6: fixed-supply balances, a
// per-token-second unclaimed GAS accrual, candidate registration and
// voting, and the periodic committee/validator election those votes
// drive.
type NEOToken struct {
	committeeSize int
}

func NewNEOToken() *NEOToken { return &NEOToken{committeeSize: DefaultCommitteeSize} }

func (n *NEOToken) ID() int32         { return NEOTokenID }
func (n *NEOToken) Hash() hash.Uint160 { return neoTokenHash }
func (n *NEOToken) Name() string       { return "NeoToken" }

// SetCommitteeSize lets the node apply its configured committee size
// once at startup, before any block is persisted.
func (n *NEOToken) SetCommitteeSize(size int) { n.committeeSize = size }

func accountKey(account hash.Uint160) []byte { return key(prefixAccount, account.BytesLE()) }

func (n *NEOToken) loadAccount(e *smartcontract.Engine, account hash.Uint160) neoAccount {
	b, err := e.Snapshot.Get(smartcontract.StorageKey(NEOTokenID, accountKey(account)))
	if err != nil {
		return neoAccount{Balance: big.NewInt(0)}
	}
	return decodeNeoAccount(b)
}

func (n *NEOToken) storeAccount(e *smartcontract.Engine, account hash.Uint160, a neoAccount) error {
	return e.Snapshot.Put(smartcontract.StorageKey(NEOTokenID, accountKey(account)), encodeNeoAccount(a))
}

func encodeNeoAccount(a neoAccount) []byte {
	out := make([]byte, 0, 8+4+len(a.VoteTo))
	bal := a.Balance.Bytes()
	var balLen [4]byte
	binary.LittleEndian.PutUint32(balLen[:], uint32(len(bal)))
	out = append(out, balLen[:]...)
	out = append(out, bal...)
	var idx [4]byte
	binary.LittleEndian.PutUint32(idx[:], a.LastClaimIndex)
	out = append(out, idx[:]...)
	out = append(out, a.VoteTo...)
	return out
}

func decodeNeoAccount(b []byte) neoAccount {
	if len(b) < 8 {
		return neoAccount{Balance: big.NewInt(0)}
	}
	balLen := binary.LittleEndian.Uint32(b[:4])
	b = b[4:]
	if len(b) < int(balLen)+4 {
		return neoAccount{Balance: big.NewInt(0)}
	}
	bal := new(big.Int).SetBytes(b[:balLen])
	b = b[balLen:]
	idx := binary.LittleEndian.Uint32(b[:4])
	voteTo := append([]byte(nil), b[4:]...)
	if len(voteTo) == 0 {
		voteTo = nil
	}
	return neoAccount{Balance: bal, LastClaimIndex: idx, VoteTo: voteTo}
}

// Initialize records the fixed total supply and credits all of it to
// genesisAccount, mirroring the reference implementation's bootstrap
// path where the committee BFT multisig account receives NEO's initial
// balance. ledger.Blockchain does not call it.
func (n *NEOToken) Initialize(e *smartcontract.Engine, genesisAccount hash.Uint160) error {
	if err := e.Snapshot.Put(smartcontract.StorageKey(NEOTokenID, []byte{prefixTotalSupply}), big.NewInt(NeoTotalSupply).Bytes()); err != nil {
		return err
	}
	return n.storeAccount(e, genesisAccount, neoAccount{Balance: big.NewInt(NeoTotalSupply)})
}

func (n *NEOToken) BalanceOf(e *smartcontract.Engine, account hash.Uint160) *big.Int {
	return n.loadAccount(e, account).Balance
}

// Transfer moves amount of NEO from -> to, settling any accrued
// unclaimed GAS on from's balance into GAS's native state first (§4.6
// "Minted on claim and on block reward" — a transfer is an implicit
// claim in the reference system).
func (n *NEOToken) Transfer(e *smartcontract.Engine, from, to hash.Uint160, amount *big.Int, gas *GASToken) error {
	if amount.Sign() < 0 {
		return fmt.Errorf("native: NEO transfer amount must be non-negative")
	}
	if amount.Sign() == 0 {
		return nil
	}
	fa := n.loadAccount(e, from)
	if fa.Balance.Cmp(amount) < 0 {
		return fmt.Errorf("native: insufficient NEO balance")
	}
	unclaimed := n.unclaimedGas(e, from, fa)
	fa.Balance = new(big.Int).Sub(fa.Balance, amount)
	fa.LastClaimIndex = e.PersistingIndex()
	if err := n.storeAccount(e, from, fa); err != nil {
		return err
	}
	ta := n.loadAccount(e, to)
	ta.Balance = new(big.Int).Add(ta.Balance, amount)
	if err := n.storeAccount(e, to, ta); err != nil {
		return err
	}
	if unclaimed.Sign() > 0 && gas != nil {
		return gas.Mint(e, from, unclaimed)
	}
	return nil
}

// unclaimedGas accrues at gasPerBlock (read from NEOToken's own
// gas-per-block slot, falling back to 5 GAS) scaled by the
// account's share of total supply, over the blocks since its last
// claim — a token-second model matching §4.6's "height-dependent rate
// per token-second" without requiring a separate reward-curve table.
func (n *NEOToken) unclaimedGas(e *smartcontract.Engine, account hash.Uint160, a neoAccount) *big.Int {
	if a.Balance.Sign() == 0 {
		return big.NewInt(0)
	}
	current := e.PersistingIndex()
	if current <= a.LastClaimIndex {
		return big.NewInt(0)
	}
	blocks := new(big.Int).SetUint64(uint64(current - a.LastClaimIndex))
	perBlock, ok := getBigInt(e, NEOTokenID, []byte{prefixGasPerBlock})
	if !ok || perBlock.Sign() == 0 {
		perBlock = big.NewInt(5 * 100_000_000) // 5 GAS per block, 8 decimals
	}
	reward := new(big.Int).Mul(a.Balance, blocks)
	reward.Mul(reward, perBlock)
	reward.Div(reward, big.NewInt(NeoTotalSupply))
	return reward
}

func (n *NEOToken) UnclaimedGas(e *smartcontract.Engine, account hash.Uint160) *big.Int {
	return n.unclaimedGas(e, account, n.loadAccount(e, account))
}

type candidate struct {
	PubKey     []byte
	Votes      *big.Int
	Registered bool
}

func candidateKey(pubKey []byte) []byte { return key(prefixCandidate, pubKey) }

func (n *NEOToken) loadCandidate(e *smartcontract.Engine, pubKey []byte) candidate {
	b, err := e.Snapshot.Get(smartcontract.StorageKey(NEOTokenID, candidateKey(pubKey)))
	if err != nil {
		return candidate{PubKey: pubKey, Votes: big.NewInt(0)}
	}
	votes := new(big.Int).SetBytes(b)
	return candidate{PubKey: pubKey, Votes: votes, Registered: true}
}

func (n *NEOToken) storeCandidate(e *smartcontract.Engine, c candidate) error {
	if !c.Registered {
		return e.Snapshot.Delete(smartcontract.StorageKey(NEOTokenID, candidateKey(c.PubKey)))
	}
	return e.Snapshot.Put(smartcontract.StorageKey(NEOTokenID, candidateKey(c.PubKey)), c.Votes.Bytes())
}

func (n *NEOToken) RegisterCandidate(e *smartcontract.Engine, pubKey []byte) error {
	c := n.loadCandidate(e, pubKey)
	c.Registered = true
	return n.storeCandidate(e, c)
}

func (n *NEOToken) UnregisterCandidate(e *smartcontract.Engine, pubKey []byte) error {
	c := n.loadCandidate(e, pubKey)
	c.Registered = false
	c.Votes = big.NewInt(0)
	return n.storeCandidate(e, c)
}

// Vote delegates account's full NEO balance to candidate (nil clears an
// existing delegation), moving the weight off any prior candidate.
func (n *NEOToken) Vote(e *smartcontract.Engine, account hash.Uint160, pubKey []byte) error {
	a := n.loadAccount(e, account)
	if a.VoteTo != nil {
		prev := n.loadCandidate(e, a.VoteTo)
		prev.Votes = new(big.Int).Sub(prev.Votes, a.Balance)
		if prev.Votes.Sign() < 0 {
			prev.Votes = big.NewInt(0)
		}
		if err := n.storeCandidate(e, prev); err != nil {
			return err
		}
	}
	a.VoteTo = pubKey
	if pubKey != nil {
		c := n.loadCandidate(e, pubKey)
		if !c.Registered {
			return fmt.Errorf("native: candidate is not registered")
		}
		c.Votes = new(big.Int).Add(c.Votes, a.Balance)
		if err := n.storeCandidate(e, c); err != nil {
			return err
		}
	}
	return n.storeAccount(e, account, a)
}

// Candidates lists every registered candidate currently in storage.
func (n *NEOToken) Candidates(e *smartcontract.Engine) []candidate {
	it := e.Snapshot.Find(smartcontract.StorageKey(NEOTokenID, []byte{prefixCandidate}), store.Forward)
	var out []candidate
	for it.Next() {
		k := it.Key()
		pubKey := append([]byte(nil), k[5:]...) // strip 4-byte contract id + 1-byte prefix
		out = append(out, candidate{PubKey: pubKey, Votes: new(big.Int).SetBytes(it.Value()), Registered: true})
	}
	return out
}

// Committee returns the top committeeSize candidates by vote weight,
// falling back to the standby list stored by SetStandby when fewer
// candidates than committeeSize have registered.
func (n *NEOToken) Committee(e *smartcontract.Engine) [][]byte {
	cands := n.Candidates(e)
	sort.Slice(cands, func(i, j int) bool {
		c := cands[i].Votes.Cmp(cands[j].Votes)
		if c != 0 {
			return c > 0
		}
		return string(cands[i].PubKey) < string(cands[j].PubKey)
	})
	out := make([][]byte, 0, n.committeeSize)
	for i := 0; i < len(cands) && i < n.committeeSize; i++ {
		out = append(out, cands[i].PubKey)
	}
	if len(out) < n.committeeSize {
		standby := n.Standby(e)
		for _, pk := range standby {
			if len(out) >= n.committeeSize {
				break
			}
			if !containsKey(out, pk) {
				out = append(out, pk)
			}
		}
	}
	return out
}

func containsKey(list [][]byte, pk []byte) bool {
	for _, p := range list {
		if string(p) == string(pk) {
			return true
		}
	}
	return false
}

func (n *NEOToken) SetStandby(e *smartcontract.Engine, pubKeys [][]byte) error {
	var buf []byte
	for _, pk := range pubKeys {
		var l [4]byte
		binary.LittleEndian.PutUint32(l[:], uint32(len(pk)))
		buf = append(buf, l[:]...)
		buf = append(buf, pk...)
	}
	return e.Snapshot.Put(smartcontract.StorageKey(NEOTokenID, []byte{prefixCommittee}), buf)
}

func (n *NEOToken) Standby(e *smartcontract.Engine) [][]byte {
	b, err := e.Snapshot.Get(smartcontract.StorageKey(NEOTokenID, []byte{prefixCommittee}))
	if err != nil {
		return nil
	}
	var out [][]byte
	for len(b) >= 4 {
		l := binary.LittleEndian.Uint32(b[:4])
		b = b[4:]
		if uint32(len(b)) < l {
			break
		}
		out = append(out, b[:l])
		b = b[l:]
	}
	return out
}

// Validators returns the first DefaultValidatorsCount entries of the
// current committee, the consensus-participating subset per §4.6/§4.11.
func (n *NEOToken) Validators(e *smartcontract.Engine) [][]byte {
	committee := n.Committee(e)
	count := DefaultValidatorsCount
	if count > len(committee) {
		count = len(committee)
	}
	return committee[:count]
}

func (n *NEOToken) OnPersist(*smartcontract.Engine) error { return nil }

// PostPersist rotates nothing by itself (committee membership is
// recomputed on demand from Candidates/Standby); reserved for parity
// with every other native's hook shape.
func (n *NEOToken) PostPersist(*smartcontract.Engine) error { return nil }

func (n *NEOToken) Invoke(e *smartcontract.Engine, method string, args []vm.Item) (vm.Item, error) {
	switch method {
	case "symbol":
		return okBytes([]byte("NEO"))
	case "decimals":
		return okInt(big.NewInt(0))
	case "totalSupply":
		return okInt(big.NewInt(NeoTotalSupply))
	case "balanceOf":
		if len(args) < 1 {
			return nil, fmt.Errorf("native: balanceOf requires (account)")
		}
		acc, err := popUint160(args[0])
		if err != nil {
			return nil, err
		}
		return okInt(n.BalanceOf(e, acc))
	case "unclaimedGas":
		if len(args) < 1 {
			return nil, fmt.Errorf("native: unclaimedGas requires (account)")
		}
		acc, err := popUint160(args[0])
		if err != nil {
			return nil, err
		}
		return okInt(n.UnclaimedGas(e, acc))
	case "registerCandidate":
		if len(args) < 1 {
			return nil, fmt.Errorf("native: registerCandidate requires (pubkey)")
		}
		pk, err := bsArg(args[0])
		if err != nil {
			return nil, err
		}
		return okBool(true), n.RegisterCandidate(e, pk)
	case "unregisterCandidate":
		if len(args) < 1 {
			return nil, fmt.Errorf("native: unregisterCandidate requires (pubkey)")
		}
		pk, err := bsArg(args[0])
		if err != nil {
			return nil, err
		}
		return okBool(true), n.UnregisterCandidate(e, pk)
	case "vote":
		if len(args) < 2 {
			return nil, fmt.Errorf("native: vote requires (account, pubkey)")
		}
		acc, err := popUint160(args[0])
		if err != nil {
			return nil, err
		}
		var pk []byte
		if _, isNull := args[1].(vm.Null); !isNull {
			pk, err = bsArg(args[1])
			if err != nil {
				return nil, err
			}
		}
		return okBool(true), n.Vote(e, acc, pk)
	case "getCommittee":
		return packPubKeys(n.Committee(e))
	case "getNextBlockValidators":
		return packPubKeys(n.Validators(e))
	default:
		return nil, fmt.Errorf("native: NeoToken has no method %q", method)
	}
}

func packPubKeys(keys [][]byte) (vm.Item, error) {
	items := make([]vm.Item, 0, len(keys))
	for _, k := range keys {
		bs, err := vm.NewByteString(k)
		if err != nil {
			return nil, err
		}
		items = append(items, bs)
	}
	return vm.NewArray(items), nil
}
