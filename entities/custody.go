package entities

// CustodyAuthority is the capability that allows moving funds out of the custody balance of exactly
// one schedule. It carries no key material, the ledger only checks that it is bound to the custody
// it is asked to debit.
type CustodyAuthority struct {
	schedule ScheduleKey
}

func NewCustodyAuthority(schedule ScheduleKey) CustodyAuthority {
	return CustodyAuthority{schedule: schedule}
}

func (a CustodyAuthority) Schedule() ScheduleKey {
	return a.schedule
}

// Allows reports whether the authority is bound to the given schedule's custody.
func (a CustodyAuthority) Allows(schedule ScheduleKey) bool {
	return a.schedule != (ScheduleKey{}) && a.schedule == schedule
}

// Custody is the asset holding owned by a schedule.
type Custody struct {
	Schedule ScheduleKey `json:"schedule" msgpack:"schedule"`
	Asset    string      `json:"asset" msgpack:"asset"`
	Balance  uint64      `json:"balance" msgpack:"balance"`
	Closed   bool        `json:"closed" msgpack:"closed"`
}
