package ledger

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/saakshy/saakshy-backend/pkg/enums"
)

// Summary is the dashboard digest of an actor's visible records.
type Summary struct {
	OverdueCount    int             `json:"overdueCount"`
	OverdueAmount   decimal.Decimal `json:"overdueAmount"`
	DueTodayCount   int             `json:"dueTodayCount"`
	DueTodayAmount  decimal.Decimal `json:"dueTodayAmount"`
	PendingCount    int             `json:"pendingCount"`
	TotalReceivable decimal.Decimal `json:"totalReceivable"`
	TotalPayable    decimal.Decimal `json:"totalPayable"`
	RecentActivity  []ActivityItem  `json:"recentActivity"`
	// TopCounterparties lists the parties the actor shares the most records with.
	TopCounterparties []CounterpartyStat `json:"topCounterparties"`
	Metrics           RecordMetrics      `json:"metrics"`
}

// CounterpartyStat groups records by the other party. Contact is set when the
// actor created the records; UserID when the other party created them.
type CounterpartyStat struct {
	Name             string    `json:"name"`
	Contact          string    `json:"contact,omitempty"`
	UserID           string    `json:"userId,omitempty"`
	RecordCount      int       `json:"recordCount"`
	LastInteractedAt time.Time `json:"lastInteractedAt"`
}

// RecordMetrics feeds the trust profile: records the other side acknowledged
// (CONFIRMED or SETTLED) and records under dispute.
type RecordMetrics struct {
	TotalConfirmed int `json:"totalConfirmed"`
	DisputeCount   int `json:"disputeCount"`
}

const topCounterpartiesLimit = 5

// ActivityItem is one event from the actor's records, for the activity feed.
type ActivityItem struct {
	RecordID         string                `json:"recordId"`
	Seq              int64                 `json:"seq"`
	Type             enums.LedgerEventType `json:"type"`
	CounterpartyName string                `json:"counterpartyName"`
	Description      string                `json:"description"`
	Amount           *decimal.Decimal      `json:"amount,omitempty"`
	Timestamp        time.Time             `json:"timestamp"`
}

func (s *service) Summary(ctx context.Context, actor Actor, today string) (*Summary, error) {
	if strings.TrimSpace(today) == "" {
		today = s.clock().UTC().Format(dateLayout)
	} else if err := validateDate("today", today); err != nil {
		return nil, err
	}
	views, err := s.RecordsForActor(ctx, actor)
	if err != nil {
		return nil, err
	}
	summary := BuildSummary(views, actor, today, s.activityLimit)
	return &summary, nil
}

// BuildSummary is the pure part of Summary. Dates compare lexically because
// they are all YYYY-MM-DD.
func BuildSummary(views []RecordView, actor Actor, today string, activityLimit int) Summary {
	summary := Summary{
		OverdueAmount:   decimal.Zero,
		DueTodayAmount:  decimal.Zero,
		TotalReceivable: decimal.Zero,
		TotalPayable:    decimal.Zero,
		RecentActivity:  []ActivityItem{},
	}

	var activity []ActivityItem
	parties := make(map[string]*CounterpartyStat)
	for _, view := range views {
		if view.Status == enums.RecordStatusTampered {
			continue
		}
		for _, event := range view.Events {
			activity = append(activity, activityFor(view, event))
		}
		countParty(parties, view, actor)

		switch view.Status {
		case enums.RecordStatusConfirmed, enums.RecordStatusSettled:
			summary.Metrics.TotalConfirmed++
		case enums.RecordStatusDisputed:
			summary.Metrics.DisputeCount++
		}
		if view.Status == enums.RecordStatusPendingConfirmation {
			summary.PendingCount++
		}
		if view.Status == enums.RecordStatusSettled {
			continue
		}

		switch {
		case view.DueDate != "" && view.DueDate < today:
			summary.OverdueCount++
			summary.OverdueAmount = summary.OverdueAmount.Add(view.RemainingAmount)
		case view.DueDate == today:
			summary.DueTodayCount++
			summary.DueTodayAmount = summary.DueTodayAmount.Add(view.RemainingAmount)
		}

		if owedToActor(view, actor) {
			summary.TotalReceivable = summary.TotalReceivable.Add(view.RemainingAmount)
		} else {
			summary.TotalPayable = summary.TotalPayable.Add(view.RemainingAmount)
		}
	}

	sort.Slice(activity, func(i, j int) bool {
		if !activity[i].Timestamp.Equal(activity[j].Timestamp) {
			return activity[i].Timestamp.After(activity[j].Timestamp)
		}
		if activity[i].RecordID != activity[j].RecordID {
			return activity[i].RecordID < activity[j].RecordID
		}
		return activity[i].Seq > activity[j].Seq
	})
	if activityLimit > 0 && len(activity) > activityLimit {
		activity = activity[:activityLimit]
	}
	summary.RecentActivity = append(summary.RecentActivity, activity...)
	summary.TopCounterparties = topCounterparties(parties, topCounterpartiesLimit)
	return summary
}

func countParty(parties map[string]*CounterpartyStat, view RecordView, actor Actor) {
	key := "user:" + view.CreatorID
	party := CounterpartyStat{Name: view.CreatorID, UserID: view.CreatorID}
	if view.CreatorID == actor.ID {
		key = "contact:" + view.CounterpartyContact
		party = CounterpartyStat{Name: view.CounterpartyName, Contact: view.CounterpartyContact}
	}
	stat, ok := parties[key]
	if !ok {
		stat = &party
		parties[key] = stat
	}
	stat.RecordCount++
	if n := len(view.Events); n > 0 && view.Events[n-1].Timestamp.After(stat.LastInteractedAt) {
		stat.LastInteractedAt = view.Events[n-1].Timestamp
		// the most recent record names the party
		if stat.Contact != "" {
			stat.Name = view.CounterpartyName
		}
	}
}

func topCounterparties(parties map[string]*CounterpartyStat, limit int) []CounterpartyStat {
	out := make([]CounterpartyStat, 0, len(parties))
	for _, stat := range parties {
		out = append(out, *stat)
	}
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.RecordCount != b.RecordCount {
			return a.RecordCount > b.RecordCount
		}
		if !a.LastInteractedAt.Equal(b.LastInteractedAt) {
			return a.LastInteractedAt.After(b.LastInteractedAt)
		}
		return a.Name+a.Contact+a.UserID < b.Name+b.Contact+b.UserID
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out
}

// owedToActor reports whether actor is the seller side of the record, i.e. the one owed money.
func owedToActor(view RecordView, actor Actor) bool {
	role := view.Role
	if view.CreatorID != actor.ID {
		role = role.Counterpart()
	}
	return role == enums.PartyRoleSeller
}

func activityFor(view RecordView, event Event) ActivityItem {
	item := ActivityItem{
		RecordID:         view.RecordID,
		Seq:              event.Seq,
		Type:             event.Type,
		CounterpartyName: view.CounterpartyName,
		Timestamp:        event.Timestamp,
	}
	switch p := event.Payload.(type) {
	case CreatedPayload:
		amount := p.Amount
		item.Amount = &amount
		item.Description = "New record with " + view.CounterpartyName
	case ConfirmedPayload:
		item.Description = "Confirmed by " + view.CounterpartyName
	case PaymentAddedPayload:
		amount := p.Amount
		item.Amount = &amount
		item.Description = "Payment logged with " + view.CounterpartyName
	case DisputeRaisedPayload:
		item.Description = "Dispute raised on record with " + view.CounterpartyName
	case SettledPayload:
		item.Description = "Settled with " + view.CounterpartyName
	}
	return item
}
