package enums

// OutboxAggregateType is outbox_events.aggregate_type.
type OutboxAggregateType string

const AggregateRecord OutboxAggregateType = "record"

func (a OutboxAggregateType) IsValid() bool { return a == AggregateRecord }

func ParseOutboxAggregateType(value string) (OutboxAggregateType, error) {
	return parse[OutboxAggregateType]("aggregate type", value, false)
}

// OutboxEventType is outbox_events.event_type. Each value maps to one Pub/Sub topic.
type OutboxEventType string

const (
	EventRecordEventAppended   OutboxEventType = "record_event_appended"
	EventRecordIntegrityFailed OutboxEventType = "record_integrity_failed"
)

func (e OutboxEventType) IsValid() bool {
	switch e {
	case EventRecordEventAppended, EventRecordIntegrityFailed:
		return true
	}
	return false
}

func ParseOutboxEventType(value string) (OutboxEventType, error) {
	return parse[OutboxEventType]("event type", value, false)
}
