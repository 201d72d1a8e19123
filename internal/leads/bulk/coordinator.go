// Package bulk applies one mutation to many leads. Items are processed one at
// a time and each succeeds or fails on its own; nothing is rolled back.
package bulk

import (
	"context"
	"errors"

	"broker_crm_backend/internal/leads/automation"
	"broker_crm_backend/internal/leads/domain"
	"broker_crm_backend/internal/leads/repository"
	"broker_crm_backend/platform/apperr"
	"broker_crm_backend/platform/logger"

	"github.com/google/uuid"
)

// Outcome is the result of one item.
type Outcome string

const (
	OutcomeSuccess Outcome = "success"
	OutcomeFailure Outcome = "failure"
)

// ItemResult reports what happened to the item at Index in the request.
type ItemResult struct {
	Index   int        `json:"index"`
	ID      *uuid.UUID `json:"id,omitempty"`
	Label   string     `json:"label"`
	Outcome Outcome    `json:"outcome"`
	Reason  string     `json:"reason,omitempty"`
}

// Report summarizes a bulk pass.
type Report struct {
	Items        []ItemResult `json:"items"`
	SuccessCount int          `json:"successCount"`
	FailureCount int          `json:"failureCount"`
}

func (r *Report) succeed(index int, id uuid.UUID, label string) {
	r.Items = append(r.Items, ItemResult{Index: index, ID: &id, Label: label, Outcome: OutcomeSuccess})
	r.SuccessCount++
}

func (r *Report) fail(index int, id *uuid.UUID, label string, err error) {
	r.Items = append(r.Items, ItemResult{Index: index, ID: id, Label: label, Outcome: OutcomeFailure, Reason: reason(err)})
	r.FailureCount++
}

// Engine is the automation the coordinator drives per item.
type Engine interface {
	Create(ctx context.Context, params domain.NewLead, actor automation.Actor) (automation.CreateResult, error)
	RecordStatusChange(ctx context.Context, oldLead, newLead domain.Lead, actor automation.Actor) []error
	NormalizePatch(patch domain.Patch) domain.Patch
	CheckProperty(ctx context.Context, tenantID uuid.UUID, propertyID *uuid.UUID) error
}

// Coordinator runs bulk lead operations.
type Coordinator struct {
	store  repository.LeadStore
	engine Engine
	log    *logger.Logger
}

// New creates a Coordinator.
func New(store repository.LeadStore, engine Engine, log *logger.Logger) *Coordinator {
	return &Coordinator{store: store, engine: engine, log: log}
}

var (
	errLeadNotFound = apperr.NotFound("lead not found")
	errDuplicateID  = apperr.Validation("duplicate id in request")
)

// BulkUpdate applies patch to every id. Only the status-change ledger rule runs;
// there is no follow-up scheduling and no notification.
func (c *Coordinator) BulkUpdate(ctx context.Context, tenantID uuid.UUID, ids []uuid.UUID, patch domain.Patch, actor automation.Actor) (Report, error) {
	patch = c.engine.NormalizePatch(patch)
	if err := patch.Validate(); err != nil {
		return Report{}, err
	}
	if patch.IsEmpty() {
		return Report{}, apperr.Validation("patch is empty")
	}
	if propertyID, ok := patch.PropertyID.Get(); ok {
		if err := c.engine.CheckProperty(ctx, tenantID, &propertyID); err != nil {
			return Report{}, err
		}
	}

	if !patch.Status.IsSet() {
		return c.bulkUpdateInOneCall(ctx, tenantID, ids, patch), nil
	}

	repeated := repeatedIndexes(ids)
	report := Report{Items: make([]ItemResult, 0, len(ids))}
	for i, id := range ids {
		if repeated[i] {
			report.fail(i, &id, id.String(), errDuplicateID)
			continue
		}
		if err := ctx.Err(); err != nil {
			report.fail(i, &id, id.String(), err)
			continue
		}

		oldLead, err := c.store.Get(ctx, tenantID, id)
		if err != nil {
			report.fail(i, &id, id.String(), storeError(err))
			continue
		}
		newLead, err := c.store.Update(ctx, tenantID, id, patch)
		if err != nil {
			report.fail(i, &id, oldLead.Label(), storeError(err))
			continue
		}

		// Side-effect errors are already logged by the engine.
		_ = c.engine.RecordStatusChange(ctx, oldLead, newLead, actor)
		report.succeed(i, id, newLead.Label())
	}

	c.logPass(ctx, "bulk_update", report)
	return report, nil
}

func (c *Coordinator) bulkUpdateInOneCall(ctx context.Context, tenantID uuid.UUID, ids []uuid.UUID, patch domain.Patch) Report {
	report := Report{Items: make([]ItemResult, 0, len(ids))}

	updated, err := c.store.BulkUpdate(ctx, tenantID, ids, patch)
	if err != nil {
		err = storeError(err)
		for i, id := range ids {
			report.fail(i, &id, id.String(), err)
		}
		c.logPass(ctx, "bulk_update", report)
		return report
	}

	byID := make(map[uuid.UUID]domain.Lead, len(updated))
	for _, lead := range updated {
		byID[lead.ID] = lead
	}
	repeated := repeatedIndexes(ids)
	for i, id := range ids {
		if repeated[i] {
			report.fail(i, &id, id.String(), errDuplicateID)
			continue
		}
		if lead, ok := byID[id]; ok {
			report.succeed(i, id, lead.Label())
			continue
		}
		report.fail(i, &id, id.String(), errLeadNotFound)
	}

	c.logPass(ctx, "bulk_update", report)
	return report
}

// BulkDelete removes every id. Labels are resolved before anything is deleted
// so the report can name leads that no longer exist.
func (c *Coordinator) BulkDelete(ctx context.Context, tenantID uuid.UUID, ids []uuid.UUID) (Report, error) {
	labels := make([]string, len(ids))
	resolveErrs := make([]error, len(ids))
	toDelete := make([]uuid.UUID, 0, len(ids))
	repeated := repeatedIndexes(ids)

	for i, id := range ids {
		labels[i] = id.String()
		if repeated[i] {
			resolveErrs[i] = errDuplicateID
			continue
		}
		if err := ctx.Err(); err != nil {
			resolveErrs[i] = err
			continue
		}
		lead, err := c.store.Get(ctx, tenantID, id)
		if err != nil {
			resolveErrs[i] = storeError(err)
			continue
		}
		labels[i] = lead.Label()
		toDelete = append(toDelete, id)
	}

	deleted := map[uuid.UUID]struct{}{}
	var deleteErr error
	if len(toDelete) > 0 {
		if err := ctx.Err(); err != nil {
			deleteErr = err
		} else {
			removed, err := c.store.BulkDelete(ctx, tenantID, toDelete)
			if err != nil {
				deleteErr = storeError(err)
			}
			for _, id := range removed {
				deleted[id] = struct{}{}
			}
		}
	}

	report := Report{Items: make([]ItemResult, 0, len(ids))}
	for i, id := range ids {
		switch {
		case resolveErrs[i] != nil:
			report.fail(i, &id, labels[i], resolveErrs[i])
		case hasKey(deleted, id):
			report.succeed(i, id, labels[i])
		case deleteErr != nil:
			report.fail(i, &id, labels[i], deleteErr)
		default:
			report.fail(i, &id, labels[i], errLeadNotFound)
		}
	}

	c.logPass(ctx, "bulk_delete", report)
	return report, nil
}

// BulkCreate creates one lead per template. Every lead belongs to tenantID,
// whatever the template says.
func (c *Coordinator) BulkCreate(ctx context.Context, tenantID uuid.UUID, templates []domain.NewLead, actor automation.Actor) (Report, error) {
	report := Report{Items: make([]ItemResult, 0, len(templates))}
	for i, tmpl := range templates {
		label := tmpl.ContactName
		if err := ctx.Err(); err != nil {
			report.fail(i, nil, label, err)
			continue
		}

		tmpl.CompanyID = tenantID
		res, err := c.engine.Create(ctx, tmpl, actor)
		if err != nil {
			report.fail(i, nil, label, err)
			continue
		}
		report.succeed(i, res.Lead.ID, res.Lead.Label())
	}

	c.logPass(ctx, "bulk_create", report)
	return report, nil
}

func (c *Coordinator) logPass(ctx context.Context, op string, report Report) {
	c.log.WithContext(ctx).Info("lead bulk pass finished",
		"operation", op,
		"succeeded", report.SuccessCount,
		"failed", report.FailureCount,
	)
}

func storeError(err error) error {
	switch {
	case errors.Is(err, repository.ErrNotFound):
		return errLeadNotFound
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return err
	default:
		return apperr.StoreFailure("lead.bulk", err)
	}
}

// reason renders an item failure without leaking storage internals.
func reason(err error) string {
	var appErr *apperr.Error
	if errors.As(err, &appErr) {
		if appErr.HTTPStatus() >= 500 {
			return "storage failure"
		}
		return appErr.Message
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err.Error()
	}
	return "internal error"
}

func hasKey(m map[uuid.UUID]struct{}, id uuid.UUID) bool {
	_, ok := m[id]
	return ok
}

// repeatedIndexes marks every index whose id already appeared earlier in ids.
// Only the first occurrence of an id is processed.
func repeatedIndexes(ids []uuid.UUID) []bool {
	seen := make(map[uuid.UUID]struct{}, len(ids))
	repeated := make([]bool, len(ids))
	for i, id := range ids {
		if hasKey(seen, id) {
			repeated[i] = true
			continue
		}
		seen[id] = struct{}{}
	}
	return repeated
}
