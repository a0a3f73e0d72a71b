package vesting

import (
	"math/bits"

	"github.com/qubic/go-vesting-ledger/entities"
)

// ClaimableAmount returns how much of the schedule can be claimed at the given time. It is zero before
// the start, after revocation and whenever the claimed amount already covers the vested amount.
func ClaimableAmount(s *entities.VestingSchedule, now int64) (uint64, error) {
	now = min(now, s.EndTime)

	if s.RevokedAt > 0 || now < s.StartTime {
		return 0, nil
	}

	if now == s.EndTime {
		return checkedSub(s.TotalAmount, s.ClaimedAmount)
	}

	totalVested, err := vestedBeforeEnd(s, now)
	if err != nil {
		return 0, err
	}

	if s.ClaimedAmount >= totalVested {
		return 0, nil
	}
	return totalVested - s.ClaimedAmount, nil
}

// VestedAmount returns the total amount vested at the given time, regardless of what was claimed.
// Revocation freezes nothing here, callers check RevokedAt themselves.
func VestedAmount(s *entities.VestingSchedule, now int64) (uint64, error) {
	now = min(now, s.EndTime)
	switch {
	case now < s.StartTime:
		return 0, nil
	case now == s.EndTime:
		return s.TotalAmount, nil
	default:
		return vestedBeforeEnd(s, now)
	}
}

// vestedBeforeEnd expects start <= now < end.
func vestedBeforeEnd(s *entities.VestingSchedule, now int64) (uint64, error) {
	cliffAmount, err := checkedMul(s.TotalAmount, uint64(s.CliffPercentage))
	if err != nil {
		return 0, err
	}
	cliffAmount /= 100

	linearAmount, err := checkedSub(s.TotalAmount, cliffAmount)
	if err != nil {
		return 0, err
	}

	elapsed := now - s.StartTime
	duration := s.EndTime - s.StartTime

	var vested uint64
	if s.PaymentInterval > 0 {
		totalIntervals := duration / s.PaymentInterval
		intervalCount := elapsed / s.PaymentInterval

		if totalIntervals == 0 {
			// interval longer than the whole schedule, all or nothing
			if elapsed >= duration {
				vested = linearAmount
			}
		} else {
			// truncate per interval first, the rounding loss adds up per interval
			amountPerInterval := linearAmount / uint64(totalIntervals)
			vested, err = checkedMul(amountPerInterval, uint64(intervalCount))
			if err != nil {
				return 0, err
			}
		}
	} else {
		product, err := checkedMul(linearAmount, uint64(elapsed))
		if err != nil {
			return 0, err
		}
		vested = product / uint64(duration)
	}

	totalVested, err := checkedAdd(cliffAmount, vested)
	if err != nil {
		return 0, err
	}
	return min(totalVested, s.TotalAmount), nil
}

func checkedMul(a, b uint64) (uint64, error) {
	hi, lo := bits.Mul64(a, b)
	if hi != 0 {
		return 0, entities.ErrMathOverflow
	}
	return lo, nil
}

func checkedAdd(a, b uint64) (uint64, error) {
	sum, carry := bits.Add64(a, b, 0)
	if carry != 0 {
		return 0, entities.ErrMathOverflow
	}
	return sum, nil
}

func checkedSub(a, b uint64) (uint64, error) {
	diff, borrow := bits.Sub64(a, b, 0)
	if borrow != 0 {
		return 0, entities.ErrMathOverflow
	}
	return diff, nil
}
