package native

import (
	"encoding/binary"
	"fmt"

	"github.com/n3node/core/hash"
	"github.com/n3node/core/smartcontract"
	"github.com/n3node/core/vm"
)

const OracleContractID int32 = -9

var oracleContractHash = deriveNativeHash("OracleContract")

// OracleRequest is one pending HTTPS oracle request (§4.6): the
// requesting contract, the URL/filter/callback it asked for, and the
// GAS amount it offered to pay for the response.
type OracleRequest struct {
	OriginalTxHash hash.Uint256
	GasForResponse int64
	URL            string
	Filter         string
	CallbackContract hash.Uint160
	CallbackMethod string
	UserData       []byte
}

// OracleContract records outstanding oracle requests (Request,
// GetRequest) and deletes them (Finish). It does not validate response
// transactions.
type OracleContract struct{}

func NewOracleContract() *OracleContract { return &OracleContract{} }

func (o *OracleContract) ID() int32          { return OracleContractID }
func (o *OracleContract) Hash() hash.Uint160 { return oracleContractHash }
func (o *OracleContract) Name() string       { return "OracleContract" }
func (o *OracleContract) OnPersist(*smartcontract.Engine) error { return nil }

// PostPersist does nothing; a stored request is removed only by Finish.
func (o *OracleContract) PostPersist(*smartcontract.Engine) error { return nil }

func nextIDKey() []byte { return []byte{prefixOracleID} }

func requestKey(id uint64) []byte {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], id)
	return key(prefixOracleReq, b[:])
}

func (o *OracleContract) nextID(e *smartcontract.Engine) uint64 {
	b, err := e.Snapshot.Get(smartcontract.StorageKey(OracleContractID, nextIDKey()))
	var id uint64
	if err == nil && len(b) == 8 {
		id = binary.LittleEndian.Uint64(b)
	}
	var nb [8]byte
	binary.LittleEndian.PutUint64(nb[:], id+1)
	e.Snapshot.Put(smartcontract.StorageKey(OracleContractID, nextIDKey()), nb[:]) //nolint:errcheck // best-effort counter advance, mirrors id allocators elsewhere in natives
	return id
}

func encodeOracleRequest(r OracleRequest) []byte {
	var buf []byte
	putU64 := func(v int64) {
		var b [8]byte
		binary.LittleEndian.PutUint64(b[:], uint64(v))
		buf = append(buf, b[:]...)
	}
	putBytes := func(b []byte) {
		var l [4]byte
		binary.LittleEndian.PutUint32(l[:], uint32(len(b)))
		buf = append(buf, l[:]...)
		buf = append(buf, b...)
	}
	buf = append(buf, r.OriginalTxHash.BytesLE()...)
	putU64(r.GasForResponse)
	putBytes([]byte(r.URL))
	putBytes([]byte(r.Filter))
	buf = append(buf, r.CallbackContract.BytesLE()...)
	putBytes([]byte(r.CallbackMethod))
	putBytes(r.UserData)
	return buf
}

func decodeOracleRequest(b []byte) (OracleRequest, error) {
	var r OracleRequest
	if len(b) < hash.Uint256Size {
		return r, fmt.Errorf("native: truncated oracle request")
	}
	h, err := hash.Uint256FromBytes(b[:hash.Uint256Size])
	if err != nil {
		return r, err
	}
	r.OriginalTxHash = h
	b = b[hash.Uint256Size:]
	read := func() ([]byte, error) {
		if len(b) < 4 {
			return nil, fmt.Errorf("native: truncated oracle request")
		}
		n := int(binary.LittleEndian.Uint32(b[:4]))
		b = b[4:]
		if len(b) < n {
			return nil, fmt.Errorf("native: truncated oracle request")
		}
		out := b[:n]
		b = b[n:]
		return out, nil
	}
	if len(b) < 8 {
		return r, fmt.Errorf("native: truncated oracle request")
	}
	r.GasForResponse = int64(binary.LittleEndian.Uint64(b[:8]))
	b = b[8:]
	url, err := read()
	if err != nil {
		return r, err
	}
	r.URL = string(url)
	filter, err := read()
	if err != nil {
		return r, err
	}
	r.Filter = string(filter)
	if len(b) < hash.Uint160Size {
		return r, fmt.Errorf("native: truncated oracle request")
	}
	cb, err := hash.Uint160FromBytes(b[:hash.Uint160Size])
	if err != nil {
		return r, err
	}
	r.CallbackContract = cb
	b = b[hash.Uint160Size:]
	method, err := read()
	if err != nil {
		return r, err
	}
	r.CallbackMethod = string(method)
	data, err := read()
	if err != nil {
		return r, err
	}
	r.UserData = data
	return r, nil
}

// Request records a pending request, with gasForResponse stored as a
// number (no GAS is moved or locked), returning the id the off-chain
// oracle node watches for and the eventual response transaction's
// OracleResponse attribute references.
func (o *OracleContract) Request(e *smartcontract.Engine, originalTx hash.Uint256, url, filter string, callback hash.Uint160, method string, gasForResponse int64, userData []byte) (uint64, error) {
	id := o.nextID(e)
	req := OracleRequest{
		OriginalTxHash:   originalTx,
		GasForResponse:   gasForResponse,
		URL:              url,
		Filter:           filter,
		CallbackContract: callback,
		CallbackMethod:   method,
		UserData:         userData,
	}
	return id, e.Snapshot.Put(smartcontract.StorageKey(OracleContractID, requestKey(id)), encodeOracleRequest(req))
}

func (o *OracleContract) GetRequest(e *smartcontract.Engine, id uint64) (OracleRequest, bool) {
	b, err := e.Snapshot.Get(smartcontract.StorageKey(OracleContractID, requestKey(id)))
	if err != nil {
		return OracleRequest{}, false
	}
	req, err := decodeOracleRequest(b)
	if err != nil {
		return OracleRequest{}, false
	}
	return req, true
}

// Finish deletes the stored request with the given id. ledger.Blockchain
// does not call it.
func (o *OracleContract) Finish(e *smartcontract.Engine, id uint64) error {
	return e.Snapshot.Delete(smartcontract.StorageKey(OracleContractID, requestKey(id)))
}

func (o *OracleContract) Invoke(e *smartcontract.Engine, method string, args []vm.Item) (vm.Item, error) {
	switch method {
	case "request":
		if len(args) < 5 {
			return nil, fmt.Errorf("native: request requires (url, filter, callback, method, gasForResponse)")
		}
		url, err := bsArg(args[0])
		if err != nil {
			return nil, err
		}
		filter, err := bsArg(args[1])
		if err != nil {
			return nil, err
		}
		cb, err := popUint160(args[2])
		if err != nil {
			return nil, err
		}
		cbMethod, err := bsArg(args[3])
		if err != nil {
			return nil, err
		}
		gasArg, err := intArg(args[4])
		if err != nil {
			return nil, err
		}
		id, err := o.Request(e, e.ContainerHash(), string(url), string(filter), cb, string(cbMethod), gasArg.Int64(), nil)
		if err != nil {
			return nil, err
		}
		return okInt(bigFromUint32(uint32(id)))
	case "getRequest":
		if len(args) < 1 {
			return nil, fmt.Errorf("native: getRequest requires (id)")
		}
		idArg, err := intArg(args[0])
		if err != nil {
			return nil, err
		}
		req, ok := o.GetRequest(e, idArg.Uint64())
		if !ok {
			return vm.Null{}, nil
		}
		return okBytes(encodeOracleRequest(req))
	default:
		return nil, fmt.Errorf("native: OracleContract has no method %q", method)
	}
}
