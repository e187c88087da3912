package native

import (
	"encoding/binary"
	"fmt"

	"github.com/n3node/core/hash"
	"github.com/n3node/core/smartcontract"
	"github.com/n3node/core/vm"
)

const ContractManagementID int32 = -1

var contractManagementHash = deriveNativeHash("ContractManagement")

// ContractMetadata is ContractManagement's persisted record for one
// deployed contract: its allocated id, NEF bytecode and manifest, per
// §4.6's "maintain contract metadata (manifest, NEF bytecode), id
// allocator, and the contract-hash → metadata index".
type ContractMetadata struct {
	ID       int32
	Hash     hash.Uint160
	NEF      []byte // the contract's NEF container bytes (magic/compiler/script/checksum, §6)
	Manifest []byte // raw JSON manifest bytes (§6)
	Script   []byte // the NEF's embedded VM script, cached for fast CallContract resolution
}

// ContractManagement is the native registry every deployed (non-native)
// contract is addressed through.
type ContractManagement struct {
	byHash map[hash.Uint160]*ContractMetadata
	nextID int32
}

func NewContractManagement() *ContractManagement {
	return &ContractManagement{byHash: make(map[hash.Uint160]*ContractMetadata), nextID: 1}
}

func (c *ContractManagement) ID() int32            { return ContractManagementID }
func (c *ContractManagement) Hash() hash.Uint160    { return contractManagementHash }
func (c *ContractManagement) Name() string          { return "ContractManagement" }
func (c *ContractManagement) OnPersist(*smartcontract.Engine) error   { return nil }
func (c *ContractManagement) PostPersist(*smartcontract.Engine) error { return nil }

// idKey/metaKey are this contract's own storage layout, distinct from
// the generic prefixes in native.go since ContractManagement's schema
// (hash-keyed metadata blobs) doesn't fit the balance/candidate shape
// the token natives share.
func idKey(h hash.Uint160) []byte   { return append([]byte{0x08}, h.BytesLE()...) }
func metaKey(id int32) []byte {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], uint32(id))
	return append([]byte{0x18}, b[:]...)
}

func (c *ContractManagement) load(e *smartcontract.Engine, h hash.Uint160) (*ContractMetadata, bool) {
	if m, ok := c.byHash[h]; ok {
		return m, true
	}
	idBytes, err := e.Snapshot.Get(smartcontract.StorageKey(ContractManagementID, idKey(h)))
	if err != nil {
		return nil, false
	}
	id := int32(binary.LittleEndian.Uint32(idBytes))
	blob, err := e.Snapshot.Get(smartcontract.StorageKey(ContractManagementID, metaKey(id)))
	if err != nil {
		return nil, false
	}
	m, err := decodeMetadata(blob)
	if err != nil {
		return nil, false
	}
	c.byHash[h] = m
	return m, true
}

func (c *ContractManagement) store(e *smartcontract.Engine, m *ContractMetadata) error {
	c.byHash[m.Hash] = m
	var idb [4]byte
	binary.LittleEndian.PutUint32(idb[:], uint32(m.ID))
	if err := e.Snapshot.Put(smartcontract.StorageKey(ContractManagementID, idKey(m.Hash)), idb[:]); err != nil {
		return err
	}
	return e.Snapshot.Put(smartcontract.StorageKey(ContractManagementID, metaKey(m.ID)), encodeMetadata(m))
}

// Deploy registers a newly compiled NEF+manifest pair and returns the
// script hash it is now addressable by. The hash is derived from the
// NEF's script (hash160), matching how every other verification-script
// account hash in the system is produced.
func (c *ContractManagement) Deploy(e *smartcontract.Engine, nef, manifest, script []byte) (hash.Uint160, error) {
	h := hash.Hash160(script)
	if _, exists := c.load(e, h); exists {
		return hash.Uint160{}, fmt.Errorf("native: contract %s already deployed", h)
	}
	id := c.nextID
	c.nextID++
	m := &ContractMetadata{ID: id, Hash: h, NEF: nef, Manifest: manifest, Script: script}
	if err := c.store(e, m); err != nil {
		return hash.Uint160{}, err
	}
	return h, nil
}

func (c *ContractManagement) Update(e *smartcontract.Engine, h hash.Uint160, nef, manifest []byte) error {
	m, ok := c.load(e, h)
	if !ok {
		return fmt.Errorf("native: contract %s not found", h)
	}
	m.NEF = nef
	m.Manifest = manifest
	return c.store(e, m)
}

func (c *ContractManagement) Destroy(e *smartcontract.Engine, h hash.Uint160) error {
	m, ok := c.load(e, h)
	if !ok {
		return fmt.Errorf("native: contract %s not found", h)
	}
	delete(c.byHash, h)
	if err := e.Snapshot.Delete(smartcontract.StorageKey(ContractManagementID, idKey(h))); err != nil {
		return err
	}
	return e.Snapshot.Delete(smartcontract.StorageKey(ContractManagementID, metaKey(m.ID)))
}

// ScriptOf satisfies the interface smartcontract.Engine.CallContract
// type-asserts for when resolving a call to a non-native target.
func (c *ContractManagement) ScriptOf(e *smartcontract.Engine, h hash.Uint160) ([]byte, error) {
	m, ok := c.load(e, h)
	if !ok {
		return nil, fmt.Errorf("native: contract %s not found", h)
	}
	return m.Script, nil
}

// IDOf satisfies the interface smartcontract.Engine's storage-context
// resolution type-asserts for (a deployed contract's storage is keyed
// by its allocated id, not its hash).
func (c *ContractManagement) IDOf(e *smartcontract.Engine, h hash.Uint160) (int32, error) {
	m, ok := c.load(e, h)
	if !ok {
		return 0, fmt.Errorf("native: contract %s not found", h)
	}
	return m.ID, nil
}

func (c *ContractManagement) Invoke(e *smartcontract.Engine, method string, args []vm.Item) (vm.Item, error) {
	switch method {
	case "deploy":
		if len(args) < 2 {
			return nil, fmt.Errorf("native: deploy requires (nef, manifest)")
		}
		nef, err := bsArg(args[0])
		if err != nil {
			return nil, err
		}
		manifest, err := bsArg(args[1])
		if err != nil {
			return nil, err
		}
		script, err := scriptFromNEF(nef)
		if err != nil {
			return nil, err
		}
		h, err := c.Deploy(e, nef, manifest, script)
		if err != nil {
			return nil, err
		}
		return okBytes(h.BytesLE())
	case "getContract":
		if len(args) < 1 {
			return nil, fmt.Errorf("native: getContract requires (hash)")
		}
		h, err := popUint160(args[0])
		if err != nil {
			return nil, err
		}
		m, ok := c.load(e, h)
		if !ok {
			return vm.Null{}, nil
		}
		return okBytes(m.Manifest)
	default:
		return nil, fmt.Errorf("native: ContractManagement has no method %q", method)
	}
}

// scriptFromNEF returns nef unchanged: the whole blob is used as the
// contract script. NEF framing (magic, compiler, tokens, checksum
// trailer) is not parsed or stripped here; ledger.NEF owns that layout
// and natives cannot import ledger (the dependency runs the other way).
func scriptFromNEF(nef []byte) ([]byte, error) {
	if len(nef) == 0 {
		return nil, fmt.Errorf("native: empty NEF")
	}
	return nef, nil
}

func deriveNativeHash(name string) hash.Uint160 {
	return hash.Hash160([]byte("native:" + name))
}

func encodeMetadata(m *ContractMetadata) []byte {
	var buf []byte
	putUint32 := func(v int32) {
		var b [4]byte
		binary.LittleEndian.PutUint32(b[:], uint32(v))
		buf = append(buf, b[:]...)
	}
	putBytes := func(b []byte) {
		putUint32(int32(len(b)))
		buf = append(buf, b...)
	}
	putUint32(m.ID)
	putBytes(m.Hash.BytesLE())
	putBytes(m.NEF)
	putBytes(m.Manifest)
	putBytes(m.Script)
	return buf
}

func decodeMetadata(b []byte) (*ContractMetadata, error) {
	read := func() ([]byte, error) {
		if len(b) < 4 {
			return nil, fmt.Errorf("native: truncated metadata")
		}
		n := int(binary.LittleEndian.Uint32(b[:4]))
		b = b[4:]
		if len(b) < n {
			return nil, fmt.Errorf("native: truncated metadata")
		}
		out := b[:n]
		b = b[n:]
		return out, nil
	}
	if len(b) < 4 {
		return nil, fmt.Errorf("native: truncated metadata")
	}
	id := int32(binary.LittleEndian.Uint32(b[:4]))
	b = b[4:]
	hb, err := read()
	if err != nil {
		return nil, err
	}
	nef, err := read()
	if err != nil {
		return nil, err
	}
	manifest, err := read()
	if err != nil {
		return nil, err
	}
	script, err := read()
	if err != nil {
		return nil, err
	}
	h, err := hash.Uint160FromBytes(hb)
	if err != nil {
		return nil, err
	}
	return &ContractMetadata{ID: id, Hash: h, NEF: nef, Manifest: manifest, Script: script}, nil
}
