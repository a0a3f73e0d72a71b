package entities

type EventType string

const (
	EventScheduleCreated EventType = "schedule_created"
	EventTokensClaimed   EventType = "tokens_claimed"
	EventScheduleRevoked EventType = "schedule_revoked"
)

// Event is the notification payload emitted after a committed transition. Fields not relevant
// for a type are omitted.
type Event struct {
	Type        EventType `json:"type"`
	Schedule    string    `json:"schedule"`
	Beneficiary string    `json:"beneficiary,omitempty"`
	Creator     string    `json:"creator,omitempty"`
	TotalAmount uint64    `json:"totalAmount,omitempty"`
	Amount      uint64    `json:"amount,omitempty"`
	Timestamp   int64     `json:"timestamp"`
}

func NewScheduleCreatedEvent(s VestingSchedule) Event {
	return Event{
		Type:        EventScheduleCreated,
		Schedule:    s.Key().String(),
		Beneficiary: s.Beneficiary,
		Creator:     s.Creator,
		TotalAmount: s.TotalAmount,
		Timestamp:   s.CreatedAt,
	}
}

func NewTokensClaimedEvent(key ScheduleKey, amount uint64, time int64) Event {
	return Event{
		Type:      EventTokensClaimed,
		Schedule:  key.String(),
		Amount:    amount,
		Timestamp: time,
	}
}

// NewScheduleRevokedEvent carries the amount returned to the creator.
func NewScheduleRevokedEvent(key ScheduleKey, returned uint64, time int64) Event {
	return Event{
		Type:      EventScheduleRevoked,
		Schedule:  key.String(),
		Amount:    returned,
		Timestamp: time,
	}
}

// EventRecord is an event read back from the stream together with its position.
type EventRecord struct {
	Event     Event
	Partition int32
	Offset    int64
}
