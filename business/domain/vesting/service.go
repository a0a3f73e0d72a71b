package vesting

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/qubic/go-vesting-ledger/entities"
	"go.uber.org/zap"
)

// Tx is one atomic unit of work. Either everything written through it is committed or nothing is.
type Tx interface {
	GetSchedule(key entities.ScheduleKey) (*entities.VestingSchedule, error)
	PutSchedule(schedule *entities.VestingSchedule) error
	Treasury
}

// Treasury moves asset units between accounts and schedule custody balances.
type Treasury interface {
	OpenCustody(authority entities.CustodyAuthority, asset string) error
	Fund(from string, authority entities.CustodyAuthority, amount uint64) error
	Release(authority entities.CustodyAuthority, to string, amount uint64) error
	// CloseCustody sends any residual balance to the rent recipient and returns it.
	CloseCustody(authority entities.CustodyAuthority, rentRecipient string) (uint64, error)
	Credit(account, asset string, amount uint64) (uint64, error)
}

type Store interface {
	// Update runs fn in a transaction. Transactions do not interleave.
	Update(ctx context.Context, fn func(tx Tx) error) error
	GetSchedule(ctx context.Context, key entities.ScheduleKey) (*entities.VestingSchedule, error)
	ListSchedules(ctx context.Context, beneficiary string) ([]*entities.VestingSchedule, error)
	GetBalance(ctx context.Context, account, asset string) (uint64, error)
}

type Metrics interface {
	IncScheduleCreated()
	AddClaim(amount uint64)
	AddRevocation(returned uint64)
	IncRejected(operation, reason string)
}

type Clock interface {
	Now() int64
}

type SystemClock struct{}

func (SystemClock) Now() int64 {
	return time.Now().Unix()
}

type CreateParams struct {
	Beneficiary     string `json:"beneficiary"`
	Creator         string `json:"creator"`
	Asset           string `json:"asset"`
	StartTime       int64  `json:"startTime"`
	EndTime         int64  `json:"endTime"`
	TotalAmount     uint64 `json:"totalAmount"`
	CliffPercentage uint8  `json:"cliffPercentage"`
	PaymentInterval *int64 `json:"paymentInterval,omitempty"`
	Name            string `json:"name"`
	Revocable       bool   `json:"revocable"`
}

func (p CreateParams) key() entities.ScheduleKey {
	return entities.ScheduleKey{Beneficiary: p.Beneficiary, Asset: p.Asset, Name: p.Name}
}

func (p CreateParams) validate() error {
	if err := p.key().Validate(); err != nil {
		return err
	}
	if err := entities.ValidateIdentity(p.Creator); err != nil {
		return errors.Wrap(err, "creator")
	}
	if p.StartTime <= 0 {
		return entities.ErrInvalidStartTime
	}
	if p.EndTime <= p.StartTime {
		return entities.ErrInvalidTimeRange
	}
	if p.CliffPercentage > 100 {
		return entities.ErrInvalidCliff
	}
	if p.PaymentInterval != nil && *p.PaymentInterval <= 0 {
		return entities.ErrInvalidInterval
	}
	return nil
}

type Service struct {
	store     Store
	publisher Publisher
	metrics   Metrics
	logger    *zap.SugaredLogger
}

func NewService(store Store, publisher Publisher, metrics Metrics, logger *zap.SugaredLogger) *Service {
	return &Service{
		store:     store,
		publisher: publisher,
		metrics:   metrics,
		logger:    logger,
	}
}

// Create stores a new schedule and moves the total amount from the creator into the schedule's custody.
func (s *Service) Create(ctx context.Context, params CreateParams, now int64) (*entities.VestingSchedule, error) {
	if err := params.validate(); err != nil {
		return nil, s.reject("create", errors.Wrap(err, "validating schedule"))
	}

	var interval int64
	if params.PaymentInterval != nil {
		interval = *params.PaymentInterval
	}
	schedule := &entities.VestingSchedule{
		Beneficiary:     params.Beneficiary,
		Creator:         params.Creator,
		Asset:           params.Asset,
		StartTime:       params.StartTime,
		EndTime:         params.EndTime,
		TotalAmount:     params.TotalAmount,
		CliffPercentage: params.CliffPercentage,
		PaymentInterval: interval,
		Name:            params.Name,
		Revocable:       params.Revocable,
		CreatedAt:       now,
	}
	key := schedule.Key()

	err := s.store.Update(ctx, func(tx Tx) error {
		_, err := tx.GetSchedule(key)
		if err == nil {
			return entities.ErrScheduleExists
		}
		if !errors.Is(err, entities.ErrScheduleNotFound) {
			return errors.Wrap(err, "checking existing schedule")
		}

		authority := entities.NewCustodyAuthority(key)
		if err := tx.OpenCustody(authority, schedule.Asset); err != nil {
			return errors.Wrap(err, "opening custody")
		}
		if err := tx.Fund(schedule.Creator, authority, schedule.TotalAmount); err != nil {
			return errors.Wrap(err, "funding custody")
		}
		return errors.Wrap(tx.PutSchedule(schedule), "storing schedule")
	})
	if err != nil {
		return nil, s.reject("create", errors.Wrapf(err, "creating schedule [%s]", key))
	}

	s.metrics.IncScheduleCreated()
	s.logger.Infow("Created vesting schedule", "schedule", key.String(), "creator", schedule.Creator,
		"total", schedule.TotalAmount, "start", schedule.StartTime, "end", schedule.EndTime)
	s.publish(ctx, entities.NewScheduleCreatedEvent(*schedule))
	return schedule, nil
}

// Claim releases everything that is currently claimable to the beneficiary and returns the amount.
func (s *Service) Claim(ctx context.Context, key entities.ScheduleKey, now int64) (uint64, error) {
	var claimable uint64
	err := s.store.Update(ctx, func(tx Tx) error {
		schedule, err := tx.GetSchedule(key)
		if err != nil {
			return err
		}

		if schedule.IsRevoked() {
			return entities.ErrVestingRevoked
		}
		if now < schedule.StartTime {
			return entities.ErrCliffNotReached
		}
		claimable, err = ClaimableAmount(schedule, now)
		if err != nil {
			return errors.Wrap(err, "calculating claimable amount")
		}
		if claimable == 0 {
			return entities.ErrNothingToClaim
		}

		schedule.ClaimedAmount, err = checkedAdd(schedule.ClaimedAmount, claimable)
		if err != nil {
			return err
		}
		schedule.LastClaimedAt = now

		if err := tx.Release(entities.NewCustodyAuthority(key), schedule.Beneficiary, claimable); err != nil {
			return errors.Wrap(err, "releasing tokens")
		}
		return errors.Wrap(tx.PutSchedule(schedule), "storing schedule")
	})
	if err != nil {
		return 0, s.reject("claim", errors.Wrapf(err, "claiming schedule [%s]", key))
	}

	s.metrics.AddClaim(claimable)
	s.logger.Infow("Claimed tokens", "schedule", key.String(), "amount", claimable, "time", now)
	s.publish(ctx, entities.NewTokensClaimedEvent(key, claimable, now))
	return claimable, nil
}

// Revoke returns the unvested remainder, total minus claimed, to the creator and closes the custody.
// Vested but unclaimed units are forfeited by the beneficiary. It returns the returned amount and the
// stored revocation time.
func (s *Service) Revoke(ctx context.Context, key entities.ScheduleKey, now int64) (uint64, int64, error) {
	var returned, forfeited uint64
	var revokedAt int64
	err := s.store.Update(ctx, func(tx Tx) error {
		schedule, err := tx.GetSchedule(key)
		if err != nil {
			return err
		}

		if !schedule.Revocable {
			return entities.ErrNotRevocable
		}
		if schedule.IsRevoked() {
			return entities.ErrAlreadyRevoked
		}

		returned, err = checkedSub(schedule.TotalAmount, schedule.ClaimedAmount)
		if err != nil {
			return err
		}
		forfeited = s.forfeitedAmount(schedule, now)

		authority := entities.NewCustodyAuthority(key)
		if err := tx.Release(authority, schedule.Creator, returned); err != nil {
			return errors.Wrap(err, "returning unvested tokens")
		}
		residual, err := tx.CloseCustody(authority, schedule.Creator)
		if err != nil {
			return errors.Wrap(err, "closing custody")
		}
		if residual > 0 {
			s.logger.Warnw("Residual custody balance returned to creator", "schedule", key.String(), "residual", residual)
		}

		// never before the start, a revocation predating the schedule would be ambiguous
		schedule.RevokedAt = max(now, schedule.StartTime)
		revokedAt = schedule.RevokedAt
		return errors.Wrap(tx.PutSchedule(schedule), "storing schedule")
	})
	if err != nil {
		return 0, 0, s.reject("revoke", errors.Wrapf(err, "revoking schedule [%s]", key))
	}

	s.metrics.AddRevocation(returned)
	s.logger.Infow("Revoked vesting schedule", "schedule", key.String(), "returned", returned,
		"forfeited", forfeited, "revokedAt", revokedAt)
	s.publish(ctx, entities.NewScheduleRevokedEvent(key, returned, revokedAt))
	return returned, revokedAt, nil
}

// forfeitedAmount is informational only, a failure is logged and reported as zero.
func (s *Service) forfeitedAmount(schedule *entities.VestingSchedule, now int64) uint64 {
	vested, err := VestedAmount(schedule, now)
	if err != nil {
		s.logger.Warnw("Error calculating forfeited amount", "schedule", schedule.Key().String(), "error", err)
		return 0
	}
	if vested <= schedule.ClaimedAmount {
		return 0
	}
	return vested - schedule.ClaimedAmount
}

// Estimate returns the amount a claim at the given time would release without changing anything.
func (s *Service) Estimate(ctx context.Context, key entities.ScheduleKey, now int64) (uint64, error) {
	schedule, err := s.Get(ctx, key)
	if err != nil {
		return 0, err
	}
	amount, err := ClaimableAmount(schedule, now)
	if err != nil {
		return 0, errors.Wrapf(err, "estimating schedule [%s]", key)
	}
	return amount, nil
}

func (s *Service) Get(ctx context.Context, key entities.ScheduleKey) (*entities.VestingSchedule, error) {
	schedule, err := s.store.GetSchedule(ctx, key)
	if err != nil {
		return nil, errors.Wrapf(err, "getting schedule [%s]", key)
	}
	return schedule, nil
}

func (s *Service) List(ctx context.Context, beneficiary string) ([]*entities.VestingSchedule, error) {
	if err := entities.ValidateIdentity(beneficiary); err != nil {
		return nil, errors.Wrap(err, "beneficiary")
	}
	schedules, err := s.store.ListSchedules(ctx, beneficiary)
	if err != nil {
		return nil, errors.Wrapf(err, "listing schedules of [%s]", beneficiary)
	}
	return schedules, nil
}

func (s *Service) Balance(ctx context.Context, account, asset string) (uint64, error) {
	if err := entities.ValidateIdentity(account); err != nil {
		return 0, errors.Wrap(err, "account")
	}
	if err := entities.ValidateIdentity(asset); err != nil {
		return 0, errors.Wrap(err, "asset")
	}
	balance, err := s.store.GetBalance(ctx, account, asset)
	if err != nil {
		return 0, errors.Wrapf(err, "getting balance of [%s]", account)
	}
	return balance, nil
}

// Deposit credits an account and returns the new balance.
func (s *Service) Deposit(ctx context.Context, account, asset string, amount uint64) (uint64, error) {
	if err := entities.ValidateIdentity(account); err != nil {
		return 0, errors.Wrap(err, "account")
	}
	if err := entities.ValidateIdentity(asset); err != nil {
		return 0, errors.Wrap(err, "asset")
	}
	if amount == 0 {
		return 0, entities.ErrInvalidAmount
	}

	var balance uint64
	err := s.store.Update(ctx, func(tx Tx) error {
		var err error
		balance, err = tx.Credit(account, asset, amount)
		return err
	})
	if err != nil {
		return 0, s.reject("deposit", errors.Wrapf(err, "depositing to [%s]", account))
	}
	s.logger.Infow("Deposited tokens", "account", account, "asset", asset, "amount", amount, "balance", balance)
	return balance, nil
}

func (s *Service) reject(operation string, err error) error {
	s.metrics.IncRejected(operation, Reason(err))
	s.logger.Warnw("Rejected operation", "operation", operation, "error", err)
	return err
}

// Reason maps an error to a short stable identifier.
func Reason(err error) string {
	for _, r := range reasons {
		if errors.Is(err, r.err) {
			return r.reason
		}
	}
	return "internal"
}

var reasons = []struct {
	err    error
	reason string
}{
	{entities.ErrInvalidStartTime, "invalid_start_time"},
	{entities.ErrInvalidTimeRange, "invalid_time_range"},
	{entities.ErrInvalidCliff, "invalid_cliff"},
	{entities.ErrInvalidInterval, "invalid_interval"},
	{entities.ErrInvalidName, "invalid_name"},
	{entities.ErrInvalidIdentity, "invalid_identity"},
	{entities.ErrInvalidAmount, "invalid_amount"},
	{entities.ErrCliffNotReached, "cliff_not_reached"},
	{entities.ErrNothingToClaim, "nothing_to_claim"},
	{entities.ErrVestingRevoked, "vesting_revoked"},
	{entities.ErrNotRevocable, "not_revocable"},
	{entities.ErrAlreadyRevoked, "already_revoked"},
	{entities.ErrScheduleExists, "schedule_exists"},
	{entities.ErrScheduleNotFound, "schedule_not_found"},
	{entities.ErrInsufficientFunds, "insufficient_funds"},
	{entities.ErrCustodyClosed, "custody_closed"},
	{entities.ErrUnauthorized, "unauthorized"},
	{entities.ErrMathOverflow, "math_overflow"},
}
