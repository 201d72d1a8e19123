package repository

import (
	"context"
	"errors"
	"iter"

	"broker_crm_backend/internal/leads/domain"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

var ErrPropertyNotFound = errors.New("property not found")

const eventColumns = `id, lead_id, company_id, event_type, previous_value, new_value, actor_id, created_at, seq`

func scanEvent(s rowScanner) (domain.LeadEvent, error) {
	var event domain.LeadEvent
	var eventType string
	if err := s.Scan(
		&event.ID,
		&event.LeadID,
		&event.CompanyID,
		&eventType,
		&event.PreviousValue,
		&event.NewValue,
		&event.ActorID,
		&event.CreatedAt,
		&event.Seq,
	); err != nil {
		return domain.LeadEvent{}, err
	}
	event.Type = domain.EventType(eventType)
	return event, nil
}

// Append writes one ledger entry. The entry is only written when the lead
// exists within the event's company.
func (r *Repository) Append(ctx context.Context, params domain.NewLeadEvent) (domain.LeadEvent, error) {
	event, err := scanEvent(r.pool.QueryRow(ctx, `
		INSERT INTO lead_events (lead_id, company_id, event_type, previous_value, new_value, actor_id)
		SELECT l.id, l.company_id, $3::text, $4::text, $5::text, $6::uuid
		FROM leads l
		WHERE l.id = $1 AND l.company_id = $2
		RETURNING `+eventColumns,
		params.LeadID, params.CompanyID, string(params.Type), params.PreviousValue, params.NewValue, params.ActorID,
	))
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.LeadEvent{}, ErrNotFound
	}
	return event, err
}

func (r *Repository) ListForLead(ctx context.Context, tenantID, leadID uuid.UUID) iter.Seq2[domain.LeadEvent, error] {
	return func(yield func(domain.LeadEvent, error) bool) {
		rows, err := r.pool.Query(ctx, `
			SELECT `+eventColumns+`
			FROM lead_events
			WHERE lead_id = $1 AND company_id = $2
			ORDER BY created_at ASC, seq ASC
		`, leadID, tenantID)
		if err != nil {
			yield(domain.LeadEvent{}, err)
			return
		}
		defer rows.Close()

		for rows.Next() {
			event, err := scanEvent(rows)
			if err != nil {
				yield(domain.LeadEvent{}, err)
				return
			}
			if !yield(event, nil) {
				return
			}
		}
		if err := rows.Err(); err != nil {
			yield(domain.LeadEvent{}, err)
		}
	}
}

// CollectEvents drains a ledger sequence into a slice, stopping at the first error.
func CollectEvents(seq iter.Seq2[domain.LeadEvent, error]) ([]domain.LeadEvent, error) {
	items := make([]domain.LeadEvent, 0)
	for event, err := range seq {
		if err != nil {
			return nil, err
		}
		items = append(items, event)
	}
	return items, nil
}
