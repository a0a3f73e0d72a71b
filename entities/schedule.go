package entities

import (
	"fmt"
	"strings"
)

const MaxNameLength = 32

const keySeparator = "/"

// ScheduleKey is the unique identity of a vesting schedule.
type ScheduleKey struct {
	Beneficiary string `json:"beneficiary" msgpack:"beneficiary"`
	Asset       string `json:"asset" msgpack:"asset"`
	Name        string `json:"name" msgpack:"name"`
}

func (k ScheduleKey) String() string {
	return k.Beneficiary + keySeparator + k.Asset + keySeparator + k.Name
}

func (k ScheduleKey) Validate() error {
	if err := ValidateIdentity(k.Beneficiary); err != nil {
		return fmt.Errorf("beneficiary: %w", err)
	}
	if err := ValidateIdentity(k.Asset); err != nil {
		return fmt.Errorf("asset: %w", err)
	}
	if len(k.Name) == 0 || len(k.Name) > MaxNameLength || strings.Contains(k.Name, keySeparator) {
		return ErrInvalidName
	}
	return nil
}

// ParseScheduleKey is the inverse of ScheduleKey.String.
func ParseScheduleKey(s string) (ScheduleKey, error) {
	parts := strings.Split(s, keySeparator)
	if len(parts) != 3 {
		return ScheduleKey{}, fmt.Errorf("parsing schedule key [%s]: %w", s, ErrInvalidIdentity)
	}
	key := ScheduleKey{Beneficiary: parts[0], Asset: parts[1], Name: parts[2]}
	if err := key.Validate(); err != nil {
		return ScheduleKey{}, err
	}
	return key, nil
}

func ValidateIdentity(id string) error {
	if len(id) == 0 || strings.Contains(id, keySeparator) {
		return ErrInvalidIdentity
	}
	return nil
}

type VestingSchedule struct {
	Beneficiary     string `json:"beneficiary" msgpack:"beneficiary"`
	Creator         string `json:"creator" msgpack:"creator"`
	Asset           string `json:"asset" msgpack:"asset"`
	StartTime       int64  `json:"startTime" msgpack:"start_time"`
	EndTime         int64  `json:"endTime" msgpack:"end_time"`
	TotalAmount     uint64 `json:"totalAmount" msgpack:"total_amount"`
	ClaimedAmount   uint64 `json:"claimedAmount" msgpack:"claimed_amount"`
	CliffPercentage uint8  `json:"cliffPercentage" msgpack:"cliff_percentage"`
	PaymentInterval int64  `json:"paymentInterval" msgpack:"payment_interval"`
	Name            string `json:"name" msgpack:"name"`
	Revocable       bool   `json:"revocable" msgpack:"revocable"`
	RevokedAt       int64  `json:"revokedAt" msgpack:"revoked_at"` // 0 means not revoked
	LastClaimedAt   int64  `json:"lastClaimedAt" msgpack:"last_claimed_at"`
	CreatedAt       int64  `json:"createdAt" msgpack:"created_at"`
}

func (s *VestingSchedule) Key() ScheduleKey {
	return ScheduleKey{Beneficiary: s.Beneficiary, Asset: s.Asset, Name: s.Name}
}

func (s *VestingSchedule) IsRevoked() bool {
	return s.RevokedAt != 0
}

type ScheduleState string

const (
	StateCreated          ScheduleState = "created"
	StatePartiallyClaimed ScheduleState = "partially_claimed"
	StateFullyClaimed     ScheduleState = "fully_claimed"
	StateRevoked          ScheduleState = "revoked"
)

// State derives the lifecycle state from the accounting fields.
func (s *VestingSchedule) State() ScheduleState {
	switch {
	case s.IsRevoked():
		return StateRevoked
	case s.ClaimedAmount == 0 && s.TotalAmount > 0:
		return StateCreated
	case s.ClaimedAmount >= s.TotalAmount:
		return StateFullyClaimed
	default:
		return StatePartiallyClaimed
	}
}
