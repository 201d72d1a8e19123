package repository

import (
	"context"
	"iter"

	"broker_crm_backend/internal/leads/domain"

	"github.com/google/uuid"
)

// =====================================
// Segregated Interfaces (Interface Segregation Principle)
// =====================================

// LeadReader provides tenant-scoped read access to leads.
type LeadReader interface {
	Get(ctx context.Context, tenantID, id uuid.UUID) (domain.Lead, error)
	ListByTenant(ctx context.Context, tenantID uuid.UUID, params domain.ListParams) ([]domain.Lead, int, error)
}

// LeadWriter provides tenant-scoped write access to leads. Every method
// returns ErrNotFound for ids that are absent or belong to another tenant.
type LeadWriter interface {
	Create(ctx context.Context, lead domain.NewLead) (domain.Lead, error)
	Update(ctx context.Context, tenantID, id uuid.UUID, patch domain.Patch) (domain.Lead, error)
	Delete(ctx context.Context, tenantID, id uuid.UUID) error
	// BulkUpdate applies patch to each id and returns the leads that were updated.
	BulkUpdate(ctx context.Context, tenantID uuid.UUID, ids []uuid.UUID, patch domain.Patch) ([]domain.Lead, error)
	// BulkDelete removes each id and returns the ids that were removed.
	BulkDelete(ctx context.Context, tenantID uuid.UUID, ids []uuid.UUID) ([]uuid.UUID, error)
}

// LeadStore is the full lead persistence contract.
type LeadStore interface {
	LeadReader
	LeadWriter
}

// EventLedger is the append-only audit trail. There is no update or delete.
type EventLedger interface {
	Append(ctx context.Context, event domain.NewLeadEvent) (domain.LeadEvent, error)
	// ListForLead yields the lead's events oldest first. Each range over the
	// returned sequence runs a fresh query.
	ListForLead(ctx context.Context, tenantID, leadID uuid.UUID) iter.Seq2[domain.LeadEvent, error]
}

// PropertyDirectory looks up listing titles.
type PropertyDirectory interface {
	PropertyTitle(ctx context.Context, tenantID, propertyID uuid.UUID) (string, error)
}

// Ensure Repository implements all interfaces
var (
	_ LeadStore         = (*Repository)(nil)
	_ EventLedger       = (*Repository)(nil)
	_ PropertyDirectory = (*Repository)(nil)
	_ LeadStore         = (*MemoryRepository)(nil)
	_ EventLedger       = (*MemoryRepository)(nil)
	_ PropertyDirectory = (*MemoryRepository)(nil)
)
