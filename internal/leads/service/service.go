// Package service is the leads application layer. It maps transport requests
// onto the automation engine and the bulk coordinator, and maps store errors
// onto apperr kinds.
package service

import (
	"context"
	"errors"
	"strings"

	"broker_crm_backend/internal/leads/automation"
	"broker_crm_backend/internal/leads/bulk"
	"broker_crm_backend/internal/leads/domain"
	"broker_crm_backend/internal/leads/repository"
	"broker_crm_backend/internal/leads/transport"
	"broker_crm_backend/platform/apperr"
	"broker_crm_backend/platform/logger"

	"github.com/google/uuid"
)

const (
	defaultPageSize = 20
	maxPageSize     = 100
)

// Automation is the single-lead write path.
type Automation interface {
	Create(ctx context.Context, params domain.NewLead, actor automation.Actor) (automation.CreateResult, error)
	ApplyUpdate(ctx context.Context, tenantID, leadID uuid.UUID, patch domain.Patch, actor automation.Actor) (automation.UpdateResult, error)
}

// Bulk is the many-lead write path.
type Bulk interface {
	BulkUpdate(ctx context.Context, tenantID uuid.UUID, ids []uuid.UUID, patch domain.Patch, actor automation.Actor) (bulk.Report, error)
	BulkDelete(ctx context.Context, tenantID uuid.UUID, ids []uuid.UUID) (bulk.Report, error)
	BulkCreate(ctx context.Context, tenantID uuid.UUID, templates []domain.NewLead, actor automation.Actor) (bulk.Report, error)
}

type Service struct {
	store  repository.LeadStore
	ledger repository.EventLedger
	engine Automation
	bulk   Bulk
	log    *logger.Logger
}

func New(store repository.LeadStore, ledger repository.EventLedger, engine Automation, bulk Bulk, log *logger.Logger) *Service {
	return &Service{store: store, ledger: ledger, engine: engine, bulk: bulk, log: log}
}

func (s *Service) Create(ctx context.Context, tenantID uuid.UUID, actor automation.Actor, req transport.CreateLeadRequest) (transport.LeadResponse, error) {
	res, err := s.engine.Create(ctx, toNewLead(tenantID, req), actor)
	if err != nil {
		return transport.LeadResponse{}, err
	}
	return toLeadResponse(res.Lead), nil
}

func (s *Service) GetByID(ctx context.Context, tenantID, id uuid.UUID) (transport.LeadResponse, error) {
	lead, err := s.store.Get(ctx, tenantID, id)
	if err != nil {
		return transport.LeadResponse{}, mapStoreError("lead.get", err)
	}
	return toLeadResponse(lead), nil
}

func (s *Service) List(ctx context.Context, tenantID uuid.UUID, req transport.ListLeadsRequest) (transport.LeadListResponse, error) {
	if req.Page < 1 {
		req.Page = 1
	}
	if req.PageSize < 1 {
		req.PageSize = defaultPageSize
	}
	if req.PageSize > maxPageSize {
		req.PageSize = maxPageSize
	}

	params := domain.ListParams{
		Search: strings.TrimSpace(req.Query),
		Limit:  req.PageSize,
		Offset: (req.Page - 1) * req.PageSize,
	}
	if req.Status != "" {
		status := domain.Status(req.Status)
		params.Status = &status
	}

	leads, total, err := s.store.ListByTenant(ctx, tenantID, params)
	if err != nil {
		return transport.LeadListResponse{}, mapStoreError("lead.list", err)
	}

	items := make([]transport.LeadResponse, 0, len(leads))
	for _, lead := range leads {
		items = append(items, toLeadResponse(lead))
	}

	totalPages := (total + req.PageSize - 1) / req.PageSize
	return transport.LeadListResponse{
		Items:      items,
		Total:      total,
		Page:       req.Page,
		PageSize:   req.PageSize,
		TotalPages: totalPages,
	}, nil
}

func (s *Service) Update(ctx context.Context, tenantID, id uuid.UUID, actor automation.Actor, req transport.UpdateLeadRequest) (transport.UpdateLeadResponse, error) {
	patch := toPatch(req)
	if patch.IsEmpty() {
		return transport.UpdateLeadResponse{}, apperr.Validation("no fields to update")
	}

	res, err := s.engine.ApplyUpdate(ctx, tenantID, id, patch, actor)
	if err != nil {
		return transport.UpdateLeadResponse{}, err
	}

	queued := make([]string, 0, len(res.Notifications))
	for _, n := range res.Notifications {
		queued = append(queued, n.TemplateKey)
	}
	return transport.UpdateLeadResponse{
		Lead:                  toLeadResponse(res.Lead),
		NotificationsQueued:   queued,
		SideEffectsIncomplete: len(res.SideEffectErrors) > 0,
	}, nil
}

func (s *Service) Delete(ctx context.Context, tenantID, id uuid.UUID) error {
	if err := s.store.Delete(ctx, tenantID, id); err != nil {
		return mapStoreError("lead.delete", err)
	}
	s.log.WithContext(ctx).Info("lead deleted", "lead_id", id.String())
	return nil
}

// ListEvents returns the lead's audit trail, oldest first.
func (s *Service) ListEvents(ctx context.Context, tenantID, id uuid.UUID) (transport.LeadEventListResponse, error) {
	if _, err := s.store.Get(ctx, tenantID, id); err != nil {
		return transport.LeadEventListResponse{}, mapStoreError("lead.get", err)
	}

	items := make([]transport.LeadEventResponse, 0)
	for event, err := range s.ledger.ListForLead(ctx, tenantID, id) {
		if err != nil {
			return transport.LeadEventListResponse{}, mapStoreError("ledger.list", err)
		}
		items = append(items, toEventResponse(event))
	}
	return transport.LeadEventListResponse{Items: items}, nil
}

func (s *Service) BulkUpdate(ctx context.Context, tenantID uuid.UUID, actor automation.Actor, req transport.BulkUpdateLeadsRequest) (transport.BulkReportResponse, error) {
	report, err := s.bulk.BulkUpdate(ctx, tenantID, req.IDs, toPatch(req.Patch), actor)
	if err != nil {
		return transport.BulkReportResponse{}, err
	}
	return toBulkReport(report), nil
}

func (s *Service) BulkDelete(ctx context.Context, tenantID uuid.UUID, req transport.BulkDeleteLeadsRequest) (transport.BulkReportResponse, error) {
	report, err := s.bulk.BulkDelete(ctx, tenantID, req.IDs)
	if err != nil {
		return transport.BulkReportResponse{}, err
	}
	return toBulkReport(report), nil
}

func (s *Service) BulkCreate(ctx context.Context, tenantID uuid.UUID, actor automation.Actor, req transport.BulkCreateLeadsRequest) (transport.BulkReportResponse, error) {
	templates := make([]domain.NewLead, 0, len(req.Leads))
	for _, lead := range req.Leads {
		templates = append(templates, toNewLead(tenantID, lead))
	}
	report, err := s.bulk.BulkCreate(ctx, tenantID, templates, actor)
	if err != nil {
		return transport.BulkReportResponse{}, err
	}
	return toBulkReport(report), nil
}

func mapStoreError(op string, err error) error {
	if errors.Is(err, repository.ErrNotFound) {
		return apperr.NotFound("lead not found")
	}
	return apperr.StoreFailure(op, err)
}
