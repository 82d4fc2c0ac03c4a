package strategy

import (
	"errors"
	"math/big"

	"vaultcore/crypto"
	"vaultcore/native/vault"
	"vaultcore/storage"
)

var (
	errInvalidAmount = errors.New("book strategy: amount must be positive")
	errNilDatabase   = errors.New("book strategy: database required")
)

var holdingPrefix = []byte("vault/book/")

// BookResolver resolves every registered strategy to a book-value account
// persisted in the vault's key-value store. Deposits add to the account,
// withdrawals pay out in full up to the held balance, and the reported value
// equals the balance, so a report realizes no gain or loss until the account
// is marked with MarkGain or MarkLoss.
type BookResolver struct {
	db storage.Database
}

func NewBookResolver(db storage.Database) *BookResolver {
	return &BookResolver{db: db}
}

// Resolve returns the book account for the address. Every address resolves;
// the vault's own ledger decides which strategies are active.
func (r *BookResolver) Resolve(addr crypto.Address) vault.Strategy {
	if r == nil || r.db == nil {
		return nil
	}
	return &bookAccount{db: r.db, addr: addr.Clone()}
}

// MarkGain raises the strategy's book value so the next report realizes the
// difference as profit.
func (r *BookResolver) MarkGain(addr crypto.Address, amount *big.Int) error {
	return r.adjust(addr, amount, false)
}

// MarkLoss writes down the strategy's book value, clamped at zero, so the
// next report realizes the difference as a loss.
func (r *BookResolver) MarkLoss(addr crypto.Address, amount *big.Int) error {
	return r.adjust(addr, amount, true)
}

func (r *BookResolver) adjust(addr crypto.Address, amount *big.Int, down bool) error {
	if r == nil || r.db == nil {
		return errNilDatabase
	}
	if amount == nil || amount.Sign() <= 0 {
		return errInvalidAmount
	}
	account := &bookAccount{db: r.db, addr: addr}
	held, err := account.balance()
	if err != nil {
		return err
	}
	if down {
		held = new(big.Int).Sub(held, amount)
		if held.Sign() < 0 {
			held = big.NewInt(0)
		}
	} else {
		held = new(big.Int).Add(held, amount)
	}
	return account.put(held)
}

type bookAccount struct {
	db   storage.Database
	addr crypto.Address
}

func holdingKey(addr crypto.Address) []byte {
	key := append(append([]byte(nil), holdingPrefix...), addr.Prefix()...)
	key = append(key, '/')
	return append(key, addr.Bytes()...)
}

func (a *bookAccount) balance() (*big.Int, error) {
	raw, err := a.db.Get(holdingKey(a.addr))
	if errors.Is(err, storage.ErrNotFound) {
		return big.NewInt(0), nil
	}
	if err != nil {
		return nil, err
	}
	return new(big.Int).SetBytes(raw), nil
}

func (a *bookAccount) put(amount *big.Int) error {
	return a.db.Put(holdingKey(a.addr), amount.Bytes())
}

func (a *bookAccount) TotalAssetValue() (*big.Int, error) {
	return a.balance()
}

func (a *bookAccount) Deposit(amount *big.Int) error {
	if amount == nil || amount.Sign() <= 0 {
		return errInvalidAmount
	}
	held, err := a.balance()
	if err != nil {
		return err
	}
	return a.put(new(big.Int).Add(held, amount))
}

func (a *bookAccount) Withdraw(amount *big.Int) (*big.Int, error) {
	if amount == nil || amount.Sign() <= 0 {
		return nil, errInvalidAmount
	}
	held, err := a.balance()
	if err != nil {
		return nil, err
	}
	pay := new(big.Int).Set(amount)
	if pay.Cmp(held) > 0 {
		pay = new(big.Int).Set(held)
	}
	if err := a.put(new(big.Int).Sub(held, pay)); err != nil {
		return nil, err
	}
	return pay, nil
}
