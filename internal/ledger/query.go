package ledger

import (
	"context"
	"sort"
	"strings"

	pkgerrors "github.com/saakshy/saakshy-backend/pkg/errors"
)

// GetRecord returns the current view of one record. A record whose chain does
// not verify is returned as TAMPERED with its integrity report. The chain is
// walked on every read; the cache only saves the fold, so a row edited in
// place below the head cannot be served from a view cached before the edit.
func (s *service) GetRecord(ctx context.Context, recordID string) (*RecordView, error) {
	ctx = s.logg.WithRecordID(ctx, recordID)
	events, err := s.store.Load(ctx, recordID)
	if err != nil {
		return nil, err
	}
	if len(events) == 0 {
		return nil, errRecordNotFound()
	}
	report := Verify(recordID, events)
	if report.OK {
		if cached, ok := s.cache.Get(ctx, recordID, Head{Seq: report.HeadSeq, Hash: report.HeadHash}); ok {
			return cached, nil
		}
	}
	return s.viewFromReport(ctx, recordID, events, report, "query")
}

// RecordsForActor lists the records the actor created or is named on as
// counterparty, newest first.
func (s *service) RecordsForActor(ctx context.Context, actor Actor) ([]RecordView, error) {
	if !actor.Authenticated || strings.TrimSpace(actor.ID) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "listing records requires a signed-in user")
	}
	ids, err := s.store.FindVisibleRecordIDs(ctx, actor.ID, NormalizeContact(actor.Contact))
	if err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return []RecordView{}, nil
	}
	histories, err := s.store.LoadMany(ctx, ids)
	if err != nil {
		return nil, err
	}

	views := make([]RecordView, 0, len(ids))
	for _, id := range ids {
		events := histories[id]
		if len(events) == 0 {
			continue
		}
		view, err := s.viewOf(ctx, id, events, "query")
		if err != nil {
			return nil, err
		}
		views = append(views, *view)
	}
	sort.Slice(views, func(i, j int) bool {
		if !views[i].CreatedAt.Equal(views[j].CreatedAt) {
			return views[i].CreatedAt.After(views[j].CreatedAt)
		}
		return views[i].RecordID < views[j].RecordID
	})
	return views, nil
}

// VerifyRecord re-walks the chain and reports where, if anywhere, it breaks.
func (s *service) VerifyRecord(ctx context.Context, recordID string) (*IntegrityReport, error) {
	events, err := s.store.Load(ctx, recordID)
	if err != nil {
		return nil, err
	}
	if len(events) == 0 {
		return nil, errRecordNotFound()
	}
	report := Verify(recordID, events)
	if !report.OK {
		s.metrics.IncIntegrityFailure("verify")
	}
	return &report, nil
}

func (s *service) viewOf(ctx context.Context, recordID string, events []Event, source string) (*RecordView, error) {
	return s.viewFromReport(ctx, recordID, events, Verify(recordID, events), source)
}

func (s *service) viewFromReport(ctx context.Context, recordID string, events []Event, report IntegrityReport, source string) (*RecordView, error) {
	if !report.OK {
		s.metrics.IncIntegrityFailure(source)
		logCtx := s.logg.WithFields(ctx, map[string]any{
			"record_id":     recordID,
			"failed_at_seq": report.FailedAtSeq,
		})
		s.logg.Warn(logCtx, "serving tampered record: "+report.Reason)
		return tamperedView(recordID, events, report), nil
	}
	view, err := Project(events)
	if err != nil {
		// A chain that verifies but cannot be folded was written by something
		// other than this service.
		return tamperedView(recordID, events, IntegrityReport{
			RecordID:    recordID,
			HeadSeq:     report.HeadSeq,
			HeadHash:    report.HeadHash,
			FailedAtSeq: report.HeadSeq,
			Reason:      err.Error(),
		}), nil
	}
	s.cache.Put(ctx, view)
	return view, nil
}
