package bulk

import (
	"context"
	"errors"
	"testing"
	"time"

	"broker_crm_backend/internal/leads/automation"
	"broker_crm_backend/internal/leads/domain"
	"broker_crm_backend/internal/leads/ports"
	"broker_crm_backend/internal/leads/repository"
	"broker_crm_backend/platform/apperr"
	"broker_crm_backend/platform/logger"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingDispatcher struct{ calls int }

func (d *countingDispatcher) Dispatch(context.Context, uuid.UUID, ports.Notification) error {
	d.calls++
	return nil
}

// countingStore records how often the single-call bulk path is used.
type countingStore struct {
	*repository.MemoryRepository
	bulkUpdates int
	bulkErr     error
}

func (s *countingStore) BulkUpdate(ctx context.Context, tenantID uuid.UUID, ids []uuid.UUID, patch domain.Patch) ([]domain.Lead, error) {
	s.bulkUpdates++
	if s.bulkErr != nil {
		return nil, s.bulkErr
	}
	return s.MemoryRepository.BulkUpdate(ctx, tenantID, ids, patch)
}

type fixture struct {
	store    *countingStore
	notifier *countingDispatcher
	engine   *automation.Engine
	bulk     *Coordinator
	tenant   uuid.UUID
	actor    automation.Actor
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	repo := repository.NewMemoryRepository()
	store := &countingStore{MemoryRepository: repo}
	notifier := &countingDispatcher{}
	engine := automation.New(store, repo, repo, notifier, time.UTC, logger.NewNop())
	return &fixture{
		store:    store,
		notifier: notifier,
		engine:   engine,
		bulk:     New(store, engine, logger.NewNop()),
		tenant:   uuid.New(),
		actor:    automation.Actor{UserID: uuid.New(), DisplayName: "Grace"},
	}
}

func (f *fixture) seed(t *testing.T, names ...string) []uuid.UUID {
	t.Helper()
	ids := make([]uuid.UUID, 0, len(names))
	for _, name := range names {
		email := name + "@example.com"
		res, err := f.engine.Create(context.Background(), domain.NewLead{CompanyID: f.tenant, ContactName: name, Email: &email}, f.actor)
		require.NoError(t, err)
		ids = append(ids, res.Lead.ID)
	}
	return ids
}

func (f *fixture) events(t *testing.T, id uuid.UUID) []domain.LeadEvent {
	t.Helper()
	events, err := repository.CollectEvents(f.store.ListForLead(context.Background(), f.tenant, id))
	require.NoError(t, err)
	return events
}

func TestBulkUpdateStatusContinuesPastMissingLead(t *testing.T) {
	f := newFixture(t)
	ids := f.seed(t, "ada", "ben", "cy")
	ids = append(ids[:1], append([]uuid.UUID{uuid.New()}, ids[1:]...)...)

	report, err := f.bulk.BulkUpdate(context.Background(), f.tenant, ids, domain.Patch{
		Status: domain.Some(domain.StatusContacted),
	}, f.actor)
	require.NoError(t, err)

	assert.Equal(t, 3, report.SuccessCount)
	assert.Equal(t, 1, report.FailureCount)
	require.Len(t, report.Items, 4)
	assert.Equal(t, OutcomeFailure, report.Items[1].Outcome)
	assert.Equal(t, "lead not found", report.Items[1].Reason)
	assert.Equal(t, "ada", report.Items[0].Label)
	assert.Equal(t, "cy", report.Items[3].Label)
	for i, item := range report.Items {
		assert.Equal(t, i, item.Index)
	}

	lead, err := f.store.Get(context.Background(), f.tenant, ids[3])
	require.NoError(t, err)
	assert.Equal(t, domain.StatusContacted, lead.Status)
	assert.Nil(t, lead.FollowUpDate, "bulk updates never schedule follow-ups")
	assert.Zero(t, f.notifier.calls, "bulk updates never notify")

	events := f.events(t, ids[3])
	require.Len(t, events, 2)
	assert.Equal(t, domain.EventStatusChanged, events[1].Type)
	assert.Zero(t, f.store.bulkUpdates)
}

func TestBulkUpdateWithoutStatusUsesOneStoreCall(t *testing.T) {
	f := newFixture(t)
	ids := f.seed(t, "ada", "ben")
	missing := uuid.New()

	report, err := f.bulk.BulkUpdate(context.Background(), f.tenant, append(ids, missing), domain.Patch{
		Source: domain.Some(domain.SourceReferral),
		Notes:  domain.Some("open house"),
	}, f.actor)
	require.NoError(t, err)

	assert.Equal(t, 1, f.store.bulkUpdates)
	assert.Equal(t, 2, report.SuccessCount)
	assert.Equal(t, OutcomeFailure, report.Items[2].Outcome)
	assert.Equal(t, missing.String(), report.Items[2].Label)
	assert.Len(t, f.events(t, ids[0]), 1, "bulk updates only record status changes")
}

func TestBulkUpdateStoreFailureFailsEveryItem(t *testing.T) {
	f := newFixture(t)
	ids := f.seed(t, "ada", "ben")
	f.store.bulkErr = errors.New("connection reset")

	report, err := f.bulk.BulkUpdate(context.Background(), f.tenant, ids, domain.Patch{Notes: domain.Some("x")}, f.actor)
	require.NoError(t, err)
	assert.Zero(t, report.SuccessCount)
	for _, item := range report.Items {
		assert.Equal(t, "storage failure", item.Reason)
	}
}

func TestBulkUpdateRejectsInvalidPatch(t *testing.T) {
	f := newFixture(t)

	_, err := f.bulk.BulkUpdate(context.Background(), f.tenant, []uuid.UUID{uuid.New()}, domain.Patch{}, f.actor)
	assert.True(t, apperr.Is(err, apperr.KindValidation))

	_, err = f.bulk.BulkUpdate(context.Background(), f.tenant, []uuid.UUID{uuid.New()}, domain.Patch{
		Status: domain.Some(domain.Status("Archived")),
	}, f.actor)
	assert.True(t, apperr.Is(err, apperr.KindValidation))
}

func TestBulkUpdateRejectsPropertyFromAnotherTenant(t *testing.T) {
	for name, patch := range map[string]domain.Patch{
		"single call": {},
		"per item":    {Status: domain.Some(domain.StatusWon)},
	} {
		t.Run(name, func(t *testing.T) {
			f := newFixture(t)
			ids := f.seed(t, "ada")
			foreign := f.store.AddProperty(uuid.New(), "Canal house")
			patch.PropertyID = domain.Some(foreign)

			report, err := f.bulk.BulkUpdate(context.Background(), f.tenant, ids, patch, f.actor)
			assert.True(t, apperr.Is(err, apperr.KindValidation))
			assert.Zero(t, report.SuccessCount)
			assert.Zero(t, f.store.bulkUpdates)

			lead, err := f.store.Get(context.Background(), f.tenant, ids[0])
			require.NoError(t, err)
			assert.Nil(t, lead.PropertyID)
			assert.Equal(t, domain.StatusNew, lead.Status)
		})
	}
}

func TestBulkUpdateAcceptsOwnProperty(t *testing.T) {
	f := newFixture(t)
	ids := f.seed(t, "ada")
	own := f.store.AddProperty(f.tenant, "Loft")

	report, err := f.bulk.BulkUpdate(context.Background(), f.tenant, ids, domain.Patch{PropertyID: domain.Some(own)}, f.actor)
	require.NoError(t, err)
	assert.Equal(t, 1, report.SuccessCount)

	lead, err := f.store.Get(context.Background(), f.tenant, ids[0])
	require.NoError(t, err)
	require.NotNil(t, lead.PropertyID)
	assert.Equal(t, own, *lead.PropertyID)
}

func TestBulkRepeatedIDsFailAfterFirst(t *testing.T) {
	f := newFixture(t)
	ids := f.seed(t, "ada", "ben")
	request := []uuid.UUID{ids[0], ids[1], ids[0]}

	report, err := f.bulk.BulkUpdate(context.Background(), f.tenant, request, domain.Patch{Status: domain.Some(domain.StatusLost)}, f.actor)
	require.NoError(t, err)
	assert.Equal(t, 2, report.SuccessCount)
	assert.Equal(t, OutcomeFailure, report.Items[2].Outcome)
	assert.Equal(t, "duplicate id in request", report.Items[2].Reason)
	assert.Len(t, f.events(t, ids[0]), 2)

	report, err = f.bulk.BulkUpdate(context.Background(), f.tenant, request, domain.Patch{Notes: domain.Some("x")}, f.actor)
	require.NoError(t, err)
	assert.Equal(t, 2, report.SuccessCount)
	assert.Equal(t, OutcomeFailure, report.Items[2].Outcome)

	report, err = f.bulk.BulkDelete(context.Background(), f.tenant, request)
	require.NoError(t, err)
	assert.Equal(t, 2, report.SuccessCount)
	assert.Equal(t, 1, report.FailureCount)
	assert.Equal(t, OutcomeSuccess, report.Items[0].Outcome)
	assert.Equal(t, "duplicate id in request", report.Items[2].Reason)
}

func TestBulkUpdateCancelledMarksRemainingItems(t *testing.T) {
	f := newFixture(t)
	ids := f.seed(t, "ada", "ben")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	report, err := f.bulk.BulkUpdate(ctx, f.tenant, ids, domain.Patch{Status: domain.Some(domain.StatusLost)}, f.actor)
	require.NoError(t, err)
	assert.Zero(t, report.SuccessCount)
	assert.Equal(t, context.Canceled.Error(), report.Items[0].Reason)

	lead, err := f.store.Get(context.Background(), f.tenant, ids[0])
	require.NoError(t, err)
	assert.Equal(t, domain.StatusNew, lead.Status)
}

func TestBulkDeleteReportsLabels(t *testing.T) {
	f := newFixture(t)
	ids := f.seed(t, "ada", "ben", "cy")
	foreign, err := f.engine.Create(context.Background(), domain.NewLead{CompanyID: uuid.New(), ContactName: "dee"}, f.actor)
	require.NoError(t, err)

	request := []uuid.UUID{ids[0], uuid.New(), ids[1], foreign.Lead.ID, ids[2]}
	report, err := f.bulk.BulkDelete(context.Background(), f.tenant, request)
	require.NoError(t, err)

	assert.Equal(t, 3, report.SuccessCount)
	assert.Equal(t, 2, report.FailureCount)
	assert.Equal(t, []string{"ada", request[1].String(), "ben", request[3].String(), "cy"}, labels(report))
	assert.Equal(t, OutcomeFailure, report.Items[3].Outcome)

	for _, id := range ids {
		_, err := f.store.Get(context.Background(), f.tenant, id)
		assert.ErrorIs(t, err, repository.ErrNotFound)
		assert.Empty(t, f.events(t, id))
	}
	_, err = f.store.Get(context.Background(), foreign.Lead.CompanyID, foreign.Lead.ID)
	assert.NoError(t, err, "another tenant's lead survives")
}

func TestBulkCreateForcesTenant(t *testing.T) {
	f := newFixture(t)
	other := uuid.New()

	report, err := f.bulk.BulkCreate(context.Background(), f.tenant, []domain.NewLead{
		{ContactName: "Ada", CompanyID: other},
		{ContactName: "  "},
		{ContactName: "Ben", Source: domain.SourceWhatsApp},
	}, f.actor)
	require.NoError(t, err)

	assert.Equal(t, 2, report.SuccessCount)
	assert.Equal(t, OutcomeFailure, report.Items[1].Outcome)
	assert.Equal(t, "invalid lead", report.Items[1].Reason)

	created, err := f.store.Get(context.Background(), f.tenant, *report.Items[0].ID)
	require.NoError(t, err)
	assert.Equal(t, f.tenant, created.CompanyID)
	require.Len(t, f.events(t, created.ID), 1)
}

func labels(r Report) []string {
	out := make([]string, 0, len(r.Items))
	for _, item := range r.Items {
		out = append(out, item.Label)
	}
	return out
}
