package service

import (
	"broker_crm_backend/internal/leads/bulk"
	"broker_crm_backend/internal/leads/domain"
	"broker_crm_backend/internal/leads/transport"

	"github.com/google/uuid"
)

func toNewLead(tenantID uuid.UUID, req transport.CreateLeadRequest) domain.NewLead {
	return domain.NewLead{
		CompanyID:    tenantID,
		ContactName:  req.ContactName,
		Email:        req.Email.Value,
		Phone:        req.Phone.Value,
		Message:      req.Message.Value,
		Status:       domain.Status(req.Status),
		Source:       domain.Source(req.Source),
		PropertyID:   req.PropertyID.Value,
		Notes:        req.Notes.Value,
		FollowUpDate: req.FollowUpDate.Value,
	}
}

func toPatch(req transport.UpdateLeadRequest) domain.Patch {
	var patch domain.Patch
	if req.ContactName.Set {
		patch.ContactName = domain.FromPtr(req.ContactName.Value)
	}
	if req.Email.Set {
		patch.Email = domain.FromPtr(req.Email.Value)
	}
	if req.Phone.Set {
		patch.Phone = domain.FromPtr(req.Phone.Value)
	}
	if req.Message.Set {
		patch.Message = domain.FromPtr(req.Message.Value)
	}
	if req.Status.Set {
		patch.Status = stringEnum[domain.Status](req.Status.Value)
	}
	if req.Source.Set {
		patch.Source = stringEnum[domain.Source](req.Source.Value)
	}
	if req.PropertyID.Set {
		patch.PropertyID = domain.FromPtr(req.PropertyID.Value)
	}
	if req.Notes.Set {
		patch.Notes = domain.FromPtr(req.Notes.Value)
	}
	if req.FollowUpDate.Set {
		patch.FollowUpDate = domain.FromPtr(req.FollowUpDate.Value)
	}
	return patch
}

func stringEnum[T ~string](v *string) domain.Optional[T] {
	if v == nil {
		return domain.Clear[T]()
	}
	return domain.Some(T(*v))
}

func toLeadResponse(lead domain.Lead) transport.LeadResponse {
	return transport.LeadResponse{
		ID:           lead.ID,
		CompanyID:    lead.CompanyID,
		ContactName:  lead.ContactName,
		Email:        lead.Email,
		Phone:        lead.Phone,
		Message:      lead.Message,
		Status:       string(lead.Status),
		Source:       string(lead.Source),
		PropertyID:   lead.PropertyID,
		Notes:        lead.Notes,
		FollowUpDate: transport.FormatDate(lead.FollowUpDate),
		CreatedAt:    lead.CreatedAt,
		UpdatedAt:    lead.UpdatedAt,
	}
}

func toEventResponse(event domain.LeadEvent) transport.LeadEventResponse {
	return transport.LeadEventResponse{
		ID:            event.ID,
		LeadID:        event.LeadID,
		Type:          string(event.Type),
		PreviousValue: event.PreviousValue,
		NewValue:      event.NewValue,
		ActorID:       event.ActorID,
		CreatedAt:     event.CreatedAt,
	}
}

func toBulkReport(report bulk.Report) transport.BulkReportResponse {
	items := make([]transport.BulkItemResponse, 0, len(report.Items))
	for _, item := range report.Items {
		items = append(items, transport.BulkItemResponse{
			Index:   item.Index,
			ID:      item.ID,
			Label:   item.Label,
			Outcome: string(item.Outcome),
			Reason:  item.Reason,
		})
	}
	return transport.BulkReportResponse{
		Items:        items,
		SuccessCount: report.SuccessCount,
		FailureCount: report.FailureCount,
	}
}
