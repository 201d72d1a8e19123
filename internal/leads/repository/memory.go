package repository

import (
	"context"
	"iter"
	"sort"
	"strings"
	"sync"
	"time"

	"broker_crm_backend/internal/leads/domain"

	"github.com/google/uuid"
)

// MemoryRepository is an in-memory implementation of the lead store, ledger
// and property directory, suitable for tests and local development.
// Deleting a lead removes its events, matching the database cascade.
type MemoryRepository struct {
	mu         sync.RWMutex
	leads      map[uuid.UUID]domain.Lead
	events     []domain.LeadEvent
	properties map[uuid.UUID]memoryProperty
	seq        int64
	now        func() time.Time
}

type memoryProperty struct {
	companyID uuid.UUID
	title     string
}

// NewMemoryRepository constructs a MemoryRepository.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		leads:      make(map[uuid.UUID]domain.Lead),
		properties: make(map[uuid.UUID]memoryProperty),
		now:        func() time.Time { return time.Now().UTC() },
	}
}

// WithClock replaces the timestamp source.
func (r *MemoryRepository) WithClock(now func() time.Time) *MemoryRepository {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.now = now
	return r
}

// AddProperty registers a property listing for a company.
func (r *MemoryRepository) AddProperty(companyID uuid.UUID, title string) uuid.UUID {
	r.mu.Lock()
	defer r.mu.Unlock()
	id := uuid.New()
	r.properties[id] = memoryProperty{companyID: companyID, title: title}
	return id
}

func (r *MemoryRepository) Create(_ context.Context, params domain.NewLead) (domain.Lead, error) {
	params = params.WithDefaults()
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	lead := domain.Lead{
		ID:           uuid.New(),
		CompanyID:    params.CompanyID,
		ContactName:  params.ContactName,
		Email:        params.Email,
		Phone:        params.Phone,
		Message:      params.Message,
		Status:       params.Status,
		Source:       params.Source,
		PropertyID:   params.PropertyID,
		Notes:        params.Notes,
		FollowUpDate: params.FollowUpDate,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	r.leads[lead.ID] = lead
	return lead, nil
}

func (r *MemoryRepository) Get(_ context.Context, tenantID, id uuid.UUID) (domain.Lead, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.getLocked(tenantID, id)
}

func (r *MemoryRepository) getLocked(tenantID, id uuid.UUID) (domain.Lead, error) {
	lead, ok := r.leads[id]
	if !ok || lead.CompanyID != tenantID {
		return domain.Lead{}, ErrNotFound
	}
	return lead, nil
}

func (r *MemoryRepository) ListByTenant(_ context.Context, tenantID uuid.UUID, params domain.ListParams) ([]domain.Lead, int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	items := make([]domain.Lead, 0)
	for _, lead := range r.leads {
		if lead.CompanyID != tenantID {
			continue
		}
		if params.Status != nil && lead.Status != *params.Status {
			continue
		}
		if params.Search != "" && !matchesSearch(lead, params.Search) {
			continue
		}
		items = append(items, lead)
	}
	sort.Slice(items, func(i, j int) bool { return items[i].CreatedAt.After(items[j].CreatedAt) })

	total := len(items)
	limit := params.Limit
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	start := min(max(params.Offset, 0), total)
	end := min(start+limit, total)
	return items[start:end], total, nil
}

func (r *MemoryRepository) Update(_ context.Context, tenantID, id uuid.UUID, patch domain.Patch) (domain.Lead, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.updateLocked(tenantID, id, patch)
}

func (r *MemoryRepository) updateLocked(tenantID, id uuid.UUID, patch domain.Patch) (domain.Lead, error) {
	lead, err := r.getLocked(tenantID, id)
	if err != nil {
		return domain.Lead{}, err
	}
	if patch.IsEmpty() {
		return lead, nil
	}
	lead = patch.Apply(lead)
	lead.UpdatedAt = r.now()
	r.leads[id] = lead
	return lead, nil
}

func (r *MemoryRepository) Delete(_ context.Context, tenantID, id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.deleteLocked(tenantID, id)
}

func (r *MemoryRepository) deleteLocked(tenantID, id uuid.UUID) error {
	if _, err := r.getLocked(tenantID, id); err != nil {
		return err
	}
	delete(r.leads, id)
	kept := r.events[:0]
	for _, e := range r.events {
		if e.LeadID != id {
			kept = append(kept, e)
		}
	}
	r.events = kept
	return nil
}

func (r *MemoryRepository) BulkUpdate(_ context.Context, tenantID uuid.UUID, ids []uuid.UUID, patch domain.Patch) ([]domain.Lead, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	updated := make([]domain.Lead, 0, len(ids))
	for _, id := range ids {
		lead, err := r.updateLocked(tenantID, id, patch)
		if err != nil {
			continue
		}
		updated = append(updated, lead)
	}
	return updated, nil
}

func (r *MemoryRepository) BulkDelete(_ context.Context, tenantID uuid.UUID, ids []uuid.UUID) ([]uuid.UUID, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	deleted := make([]uuid.UUID, 0, len(ids))
	for _, id := range ids {
		if err := r.deleteLocked(tenantID, id); err != nil {
			continue
		}
		deleted = append(deleted, id)
	}
	return deleted, nil
}

func (r *MemoryRepository) Append(_ context.Context, params domain.NewLeadEvent) (domain.LeadEvent, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, err := r.getLocked(params.CompanyID, params.LeadID); err != nil {
		return domain.LeadEvent{}, err
	}
	r.seq++
	event := domain.LeadEvent{
		ID:            uuid.New(),
		LeadID:        params.LeadID,
		CompanyID:     params.CompanyID,
		Type:          params.Type,
		PreviousValue: params.PreviousValue,
		NewValue:      params.NewValue,
		ActorID:       params.ActorID,
		CreatedAt:     r.now(),
		Seq:           r.seq,
	}
	r.events = append(r.events, event)
	return event, nil
}

func (r *MemoryRepository) ListForLead(_ context.Context, tenantID, leadID uuid.UUID) iter.Seq2[domain.LeadEvent, error] {
	return func(yield func(domain.LeadEvent, error) bool) {
		r.mu.RLock()
		snapshot := make([]domain.LeadEvent, 0)
		for _, e := range r.events {
			if e.LeadID == leadID && e.CompanyID == tenantID {
				snapshot = append(snapshot, e)
			}
		}
		r.mu.RUnlock()

		sort.SliceStable(snapshot, func(i, j int) bool {
			if !snapshot[i].CreatedAt.Equal(snapshot[j].CreatedAt) {
				return snapshot[i].CreatedAt.Before(snapshot[j].CreatedAt)
			}
			return snapshot[i].Seq < snapshot[j].Seq
		})
		for _, e := range snapshot {
			if !yield(e, nil) {
				return
			}
		}
	}
}

func (r *MemoryRepository) PropertyTitle(_ context.Context, tenantID, propertyID uuid.UUID) (string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.properties[propertyID]
	if !ok || p.companyID != tenantID {
		return "", ErrPropertyNotFound
	}
	return p.title, nil
}

func matchesSearch(lead domain.Lead, term string) bool {
	term = strings.ToLower(term)
	for _, v := range []*string{&lead.ContactName, lead.Email, lead.Phone} {
		if v != nil && strings.Contains(strings.ToLower(*v), term) {
			return true
		}
	}
	return false
}
