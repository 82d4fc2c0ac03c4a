package storage

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/rlp"
	"lukechampine.com/blake3"

	"vaultcore/crypto"
	"vaultcore/native/vault"
)

var (
	vaultStateKey   = []byte("vault/state")
	strategyPrefix  = []byte("vault/strategy/")
	balancePrefix   = []byte("vault/balance/")
	allowancePrefix = []byte("vault/allowance/")
	checkpointScope = []byte("vault/")
)

// VaultStore persists the vault engine's state as RLP records in a key-value
// database. Every Get decodes a fresh copy, so engine mutations on a loaded
// value never leak into the store before the matching Put.
type VaultStore struct {
	db Database
}

func NewVaultStore(db Database) *VaultStore {
	return &VaultStore{db: db}
}

type addressRecord struct {
	Prefix string
	Raw    []byte
}

func encodeAddr(addr crypto.Address) addressRecord {
	return addressRecord{Prefix: string(addr.Prefix()), Raw: addr.Bytes()}
}

func (r addressRecord) address() (crypto.Address, error) {
	if len(r.Raw) == 0 {
		return crypto.Address{}, nil
	}
	if len(r.Raw) != crypto.AddressLength {
		return crypto.Address{}, fmt.Errorf("storage: address record is %d bytes", len(r.Raw))
	}
	return crypto.NewAddress(crypto.AddressPrefix(r.Prefix), r.Raw), nil
}

func encodeAddrList(addrs []crypto.Address) []addressRecord {
	out := make([]addressRecord, len(addrs))
	for i, addr := range addrs {
		out[i] = encodeAddr(addr)
	}
	return out
}

func decodeAddrList(records []addressRecord) ([]crypto.Address, error) {
	out := make([]crypto.Address, len(records))
	for i, rec := range records {
		addr, err := rec.address()
		if err != nil {
			return nil, err
		}
		out[i] = addr
	}
	return out, nil
}

func bigOrZero(v *big.Int) *big.Int {
	if v == nil {
		return big.NewInt(0)
	}
	return v
}

type vaultStateRecord struct {
	Asset                addressRecord
	Decimals             uint8
	TotalIdle            *big.Int
	TotalDebt            *big.Int
	TotalSupply          *big.Int
	LockedShares         *big.Int
	MinimumTotalIdle     *big.Int
	HasDepositLimit      bool
	DepositLimit         *big.Int
	ProfitMaxUnlockTime  uint64
	FullProfitUnlockDate uint64
	ProfitUnlockingRate  *big.Int
	LastProfitUpdate     uint64
	DefaultQueue         []addressRecord
	ActiveStrategies     []addressRecord
	Shutdown             bool
}

// GetVault loads the global vault state, or nil when none was initialized.
func (s *VaultStore) GetVault() (*vault.VaultState, error) {
	raw, err := s.db.Get(vaultStateKey)
	if errors.Is(err, ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var rec vaultStateRecord
	if err := rlp.DecodeBytes(raw, &rec); err != nil {
		return nil, fmt.Errorf("storage: decode vault state: %w", err)
	}
	asset, err := rec.Asset.address()
	if err != nil {
		return nil, err
	}
	queue, err := decodeAddrList(rec.DefaultQueue)
	if err != nil {
		return nil, err
	}
	active, err := decodeAddrList(rec.ActiveStrategies)
	if err != nil {
		return nil, err
	}
	st := &vault.VaultState{
		Asset:                asset,
		Decimals:             rec.Decimals,
		TotalIdle:            bigOrZero(rec.TotalIdle),
		TotalDebt:            bigOrZero(rec.TotalDebt),
		TotalSupply:          bigOrZero(rec.TotalSupply),
		LockedShares:         bigOrZero(rec.LockedShares),
		MinimumTotalIdle:     bigOrZero(rec.MinimumTotalIdle),
		ProfitMaxUnlockTime:  rec.ProfitMaxUnlockTime,
		FullProfitUnlockDate: rec.FullProfitUnlockDate,
		ProfitUnlockingRate:  bigOrZero(rec.ProfitUnlockingRate),
		LastProfitUpdate:     rec.LastProfitUpdate,
		DefaultQueue:         queue,
		ActiveStrategies:     active,
		Shutdown:             rec.Shutdown,
	}
	if rec.HasDepositLimit {
		st.DepositLimit = bigOrZero(rec.DepositLimit)
	}
	return st, nil
}

// PutVault writes the global vault state.
func (s *VaultStore) PutVault(st *vault.VaultState) error {
	if st == nil {
		return errors.New("storage: nil vault state")
	}
	rec := vaultStateRecord{
		Asset:                encodeAddr(st.Asset),
		Decimals:             st.Decimals,
		TotalIdle:            bigOrZero(st.TotalIdle),
		TotalDebt:            bigOrZero(st.TotalDebt),
		TotalSupply:          bigOrZero(st.TotalSupply),
		LockedShares:         bigOrZero(st.LockedShares),
		MinimumTotalIdle:     bigOrZero(st.MinimumTotalIdle),
		HasDepositLimit:      st.DepositLimit != nil,
		DepositLimit:         bigOrZero(st.DepositLimit),
		ProfitMaxUnlockTime:  st.ProfitMaxUnlockTime,
		FullProfitUnlockDate: st.FullProfitUnlockDate,
		ProfitUnlockingRate:  bigOrZero(st.ProfitUnlockingRate),
		LastProfitUpdate:     st.LastProfitUpdate,
		DefaultQueue:         encodeAddrList(st.DefaultQueue),
		ActiveStrategies:     encodeAddrList(st.ActiveStrategies),
		Shutdown:             st.Shutdown,
	}
	raw, err := rlp.EncodeToBytes(&rec)
	if err != nil {
		return fmt.Errorf("storage: encode vault state: %w", err)
	}
	return s.db.Put(vaultStateKey, raw)
}

type strategyRecord struct {
	Address     addressRecord
	Activation  uint64
	LastReport  uint64
	CurrentDebt *big.Int
	MaxDebt     *big.Int
}

func strategyKey(addr crypto.Address) []byte {
	return append(append([]byte(nil), strategyPrefix...), addr.Bytes()...)
}

// GetStrategy loads a strategy's ledger entry, or nil when unknown.
func (s *VaultStore) GetStrategy(addr crypto.Address) (*vault.StrategyParams, error) {
	raw, err := s.db.Get(strategyKey(addr))
	if errors.Is(err, ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var rec strategyRecord
	if err := rlp.DecodeBytes(raw, &rec); err != nil {
		return nil, fmt.Errorf("storage: decode strategy: %w", err)
	}
	stored, err := rec.Address.address()
	if err != nil {
		return nil, err
	}
	return &vault.StrategyParams{
		Address:     stored,
		Activation:  rec.Activation,
		LastReport:  rec.LastReport,
		CurrentDebt: bigOrZero(rec.CurrentDebt),
		MaxDebt:     bigOrZero(rec.MaxDebt),
	}, nil
}

// PutStrategy writes a strategy's ledger entry keyed by its address.
func (s *VaultStore) PutStrategy(params *vault.StrategyParams) error {
	if params == nil {
		return errors.New("storage: nil strategy params")
	}
	rec := strategyRecord{
		Address:     encodeAddr(params.Address),
		Activation:  params.Activation,
		LastReport:  params.LastReport,
		CurrentDebt: bigOrZero(params.CurrentDebt),
		MaxDebt:     bigOrZero(params.MaxDebt),
	}
	raw, err := rlp.EncodeToBytes(&rec)
	if err != nil {
		return fmt.Errorf("storage: encode strategy: %w", err)
	}
	return s.db.Put(strategyKey(params.Address), raw)
}

// DeleteStrategy removes a strategy's ledger entry.
func (s *VaultStore) DeleteStrategy(addr crypto.Address) error {
	return s.db.Delete(strategyKey(addr))
}

func balanceKey(addr crypto.Address) []byte {
	key := append(append([]byte(nil), balancePrefix...), addr.Prefix()...)
	key = append(key, '/')
	return append(key, addr.Bytes()...)
}

// GetShareBalance loads an account's share balance, or nil when the account
// has never held shares.
func (s *VaultStore) GetShareBalance(addr crypto.Address) (*big.Int, error) {
	raw, err := s.db.Get(balanceKey(addr))
	if errors.Is(err, ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	amount := new(big.Int)
	if err := rlp.DecodeBytes(raw, amount); err != nil {
		return nil, fmt.Errorf("storage: decode balance: %w", err)
	}
	return amount, nil
}

// PutShareBalance writes an account's share balance.
func (s *VaultStore) PutShareBalance(addr crypto.Address, amount *big.Int) error {
	raw, err := rlp.EncodeToBytes(bigOrZero(amount))
	if err != nil {
		return fmt.Errorf("storage: encode balance: %w", err)
	}
	return s.db.Put(balanceKey(addr), raw)
}

func allowanceKey(owner, spender crypto.Address) []byte {
	key := append(append([]byte(nil), allowancePrefix...), owner.Bytes()...)
	key = append(key, '/')
	return append(key, spender.Bytes()...)
}

// GetAllowance loads the spend allowance owner has granted spender, or nil
// when no approval exists.
func (s *VaultStore) GetAllowance(owner, spender crypto.Address) (*big.Int, error) {
	raw, err := s.db.Get(allowanceKey(owner, spender))
	if errors.Is(err, ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	amount := new(big.Int)
	if err := rlp.DecodeBytes(raw, amount); err != nil {
		return nil, fmt.Errorf("storage: decode allowance: %w", err)
	}
	return amount, nil
}

// PutAllowance writes the spend allowance owner grants spender.
func (s *VaultStore) PutAllowance(owner, spender crypto.Address, amount *big.Int) error {
	raw, err := rlp.EncodeToBytes(bigOrZero(amount))
	if err != nil {
		return fmt.Errorf("storage: encode allowance: %w", err)
	}
	return s.db.Put(allowanceKey(owner, spender), raw)
}

// Checkpoint hashes every vault record in key order, giving a stable digest
// of the full persisted state for audit snapshots and crash recovery checks.
func (s *VaultStore) Checkpoint() ([32]byte, error) {
	hasher := blake3.New(32, nil)
	err := s.db.Iterate(checkpointScope, func(key, value []byte) error {
		var lenBuf [8]byte
		binary.BigEndian.PutUint64(lenBuf[:], uint64(len(key)))
		hasher.Write(lenBuf[:])
		hasher.Write(key)
		binary.BigEndian.PutUint64(lenBuf[:], uint64(len(value)))
		hasher.Write(lenBuf[:])
		hasher.Write(value)
		return nil
	})
	if err != nil {
		return [32]byte{}, err
	}
	var digest [32]byte
	copy(digest[:], hasher.Sum(nil))
	return digest, nil
}
