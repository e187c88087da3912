package native

import (
	"encoding/binary"
	"fmt"

	"github.com/n3node/core/hash"
	"github.com/n3node/core/smartcontract"
	"github.com/n3node/core/store"
	"github.com/n3node/core/vm"
)

const RoleManagementID int32 = -8

var roleManagementHash = deriveNativeHash("RoleManagement")

// Role identifies one of the well-known public-key lists RoleManagement
// tracks (§4.6).
type Role byte

const (
	RoleStateValidator Role = 4
	RoleOracle         Role = 8
	RoleNeoFSAlphabet  Role = 16
	RoleP2PNotary      Role = 32
)

// RoleManagement assigns ordered public-key lists to roles at a given
// height; queries return the list in force at or before the requested
// height, per §4.6.
type RoleManagement struct{}

func NewRoleManagement() *RoleManagement { return &RoleManagement{} }

func (r *RoleManagement) ID() int32          { return RoleManagementID }
func (r *RoleManagement) Hash() hash.Uint160 { return roleManagementHash }
func (r *RoleManagement) Name() string       { return "RoleManagement" }
func (r *RoleManagement) OnPersist(*smartcontract.Engine) error   { return nil }
func (r *RoleManagement) PostPersist(*smartcontract.Engine) error { return nil }

func roleKey(role Role, height uint32) []byte {
	var hb [4]byte
	binary.LittleEndian.PutUint32(hb[:], height)
	return key(prefixRole, []byte{byte(role)}, hb[:])
}

func encodePubKeys(keys [][]byte) []byte {
	var buf []byte
	for _, k := range keys {
		var l [4]byte
		binary.LittleEndian.PutUint32(l[:], uint32(len(k)))
		buf = append(buf, l[:]...)
		buf = append(buf, k...)
	}
	return buf
}

func decodePubKeys(b []byte) [][]byte {
	var out [][]byte
	for len(b) >= 4 {
		l := binary.LittleEndian.Uint32(b[:4])
		b = b[4:]
		if uint32(len(b)) < l {
			break
		}
		out = append(out, append([]byte(nil), b[:l]...))
		b = b[l:]
	}
	return out
}

// Designate records pubKeys as holding role as of height. Its only
// caller is Invoke's designateAsRole method; no committee witness is
// checked.
func (r *RoleManagement) Designate(e *smartcontract.Engine, role Role, height uint32, pubKeys [][]byte) error {
	return e.Snapshot.Put(smartcontract.StorageKey(RoleManagementID, roleKey(role, height)), encodePubKeys(pubKeys))
}

// GetDesignatedByRole returns the list in force at or before height: the
// entry with the largest recorded height not exceeding the query,
// matching §4.6's "queries return the list in force at a specified
// height".
func (r *RoleManagement) GetDesignatedByRole(e *smartcontract.Engine, role Role, height uint32) [][]byte {
	it := e.Snapshot.Find(smartcontract.StorageKey(RoleManagementID, key(prefixRole, []byte{byte(role)})), store.Forward)
	var best [][]byte
	var bestHeight uint32
	found := false
	for it.Next() {
		k := it.Key()
		if len(k) < 4 {
			continue
		}
		h := binary.LittleEndian.Uint32(k[len(k)-4:])
		if h > height {
			continue
		}
		if !found || h >= bestHeight {
			bestHeight = h
			best = decodePubKeys(it.Value())
			found = true
		}
	}
	return best
}

func (r *RoleManagement) Invoke(e *smartcontract.Engine, method string, args []vm.Item) (vm.Item, error) {
	switch method {
	case "designateAsRole":
		if len(args) < 2 {
			return nil, fmt.Errorf("native: designateAsRole requires (role, pubkeys)")
		}
		roleArg, err := intArg(args[0])
		if err != nil {
			return nil, err
		}
		pkItems, err := itemsOf(args[1])
		if err != nil {
			return nil, err
		}
		pubKeys := make([][]byte, len(pkItems))
		for i, it := range pkItems {
			pk, err := bsArg(it)
			if err != nil {
				return nil, err
			}
			pubKeys[i] = pk
		}
		return okBool(true), r.Designate(e, Role(roleArg.Int64()), e.PersistingIndex()+1, pubKeys)
	case "getDesignatedByRole":
		if len(args) < 2 {
			return nil, fmt.Errorf("native: getDesignatedByRole requires (role, height)")
		}
		roleArg, err := intArg(args[0])
		if err != nil {
			return nil, err
		}
		heightArg, err := intArg(args[1])
		if err != nil {
			return nil, err
		}
		return packPubKeys(r.GetDesignatedByRole(e, Role(roleArg.Int64()), uint32(heightArg.Int64())))
	default:
		return nil, fmt.Errorf("native: RoleManagement has no method %q", method)
	}
}
