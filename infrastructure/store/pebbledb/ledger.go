package pebbledb

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math/bits"

	"github.com/cockroachdb/pebble/v2"
	"github.com/qubic/go-vesting-ledger/entities"
	"github.com/vmihailenco/msgpack/v5"
)

func (t *Txn) OpenCustody(authority entities.CustodyAuthority, asset string) error {
	key := authority.Schedule()
	if !authority.Allows(key) {
		return entities.ErrUnauthorized
	}

	_, err := getCustody(t.batch, key)
	if err == nil {
		return fmt.Errorf("custody for [%s]: %w", key, entities.ErrScheduleExists)
	}
	if !errors.Is(err, entities.ErrStoreEntityNotFound) {
		return err
	}

	return t.putCustody(&entities.Custody{Schedule: key, Asset: asset})
}

// Fund moves amount from the account into the custody bound to the authority.
func (t *Txn) Fund(from string, authority entities.CustodyAuthority, amount uint64) error {
	custody, err := t.openCustody(authority)
	if err != nil {
		return err
	}

	if err := t.debit(from, custody.Asset, amount); err != nil {
		return err
	}

	sum, carry := bits.Add64(custody.Balance, amount, 0)
	if carry != 0 {
		return entities.ErrMathOverflow
	}
	custody.Balance = sum
	return t.putCustody(custody)
}

// Release moves amount out of the custody bound to the authority into the account.
func (t *Txn) Release(authority entities.CustodyAuthority, to string, amount uint64) error {
	custody, err := t.openCustody(authority)
	if err != nil {
		return err
	}

	if custody.Balance < amount {
		return fmt.Errorf("releasing [%d] from custody holding [%d]: %w", amount, custody.Balance, entities.ErrInsufficientFunds)
	}
	custody.Balance -= amount

	if _, err := t.Credit(to, custody.Asset, amount); err != nil {
		return err
	}
	return t.putCustody(custody)
}

func (t *Txn) CloseCustody(authority entities.CustodyAuthority, rentRecipient string) (uint64, error) {
	custody, err := t.openCustody(authority)
	if err != nil {
		return 0, err
	}

	residual := custody.Balance
	if residual > 0 {
		if _, err := t.Credit(rentRecipient, custody.Asset, residual); err != nil {
			return 0, err
		}
	}

	custody.Balance = 0
	custody.Closed = true
	return residual, t.putCustody(custody)
}

// Credit adds amount to the account balance and returns the new balance.
func (t *Txn) Credit(account, asset string, amount uint64) (uint64, error) {
	balance, err := getBalance(t.batch, account, asset)
	if err != nil {
		return 0, err
	}

	sum, carry := bits.Add64(balance, amount, 0)
	if carry != 0 {
		return 0, entities.ErrMathOverflow
	}
	return sum, t.putBalance(account, asset, sum)
}

func (t *Txn) debit(account, asset string, amount uint64) error {
	balance, err := getBalance(t.batch, account, asset)
	if err != nil {
		return err
	}

	if balance < amount {
		return fmt.Errorf("debiting [%d] from [%s] holding [%d]: %w", amount, account, balance, entities.ErrInsufficientFunds)
	}
	return t.putBalance(account, asset, balance-amount)
}

func (t *Txn) openCustody(authority entities.CustodyAuthority) (*entities.Custody, error) {
	custody, err := getCustody(t.batch, authority.Schedule())
	if errors.Is(err, entities.ErrStoreEntityNotFound) {
		return nil, entities.ErrUnauthorized
	}
	if err != nil {
		return nil, err
	}

	if !authority.Allows(custody.Schedule) {
		return nil, entities.ErrUnauthorized
	}
	if custody.Closed {
		return nil, entities.ErrCustodyClosed
	}
	return custody, nil
}

func (t *Txn) putCustody(custody *entities.Custody) error {
	value, err := msgpack.Marshal(custody)
	if err != nil {
		return fmt.Errorf("marshalling custody: %w", err)
	}

	err = t.batch.Set(custodyKey(custody.Schedule), value, nil)
	if err != nil {
		return fmt.Errorf("setting custody: %w", err)
	}
	return nil
}

func (t *Txn) putBalance(account, asset string, balance uint64) error {
	var value []byte
	value = binary.BigEndian.AppendUint64(value, balance)

	err := t.batch.Set(balanceKey(account, asset), value, nil)
	if err != nil {
		return fmt.Errorf("setting balance: %w", err)
	}
	return nil
}

func getCustody(r reader, key entities.ScheduleKey) (*entities.Custody, error) {
	var custody entities.Custody
	err := getValue(r, custodyKey(key), &custody)
	if err != nil {
		return nil, err
	}
	return &custody, nil
}

// getBalance returns zero for unknown accounts.
func getBalance(r reader, account, asset string) (uint64, error) {
	value, closer, err := r.Get(balanceKey(account, asset))
	if errors.Is(err, pebble.ErrNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("getting balance: %w", err)
	}
	defer closeReader(closer)

	if len(value) != 8 {
		return 0, fmt.Errorf("invalid balance value of length [%d]", len(value))
	}
	return binary.BigEndian.Uint64(value), nil
}

func balanceKey(account, asset string) []byte {
	key := append([]byte{balanceKeyPrefix}, account...)
	key = append(key, keySeparator)
	return append(key, asset...)
}

func custodyKey(key entities.ScheduleKey) []byte {
	return append([]byte{custodyKeyPrefix}, key.String()...)
}
