package automation

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"broker_crm_backend/internal/leads/domain"
	"broker_crm_backend/internal/leads/ports"
	"broker_crm_backend/internal/leads/repository"
	"broker_crm_backend/platform/apperr"
	"broker_crm_backend/platform/logger"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeDispatcher struct {
	mu   sync.Mutex
	sent []ports.Notification
	err  error
}

func (f *fakeDispatcher) Dispatch(_ context.Context, _ uuid.UUID, n ports.Notification) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, n)
	return nil
}

// brokenLedger fails every append but reads through to the real ledger.
type brokenLedger struct {
	repository.EventLedger
}

func (brokenLedger) Append(context.Context, domain.NewLeadEvent) (domain.LeadEvent, error) {
	return domain.LeadEvent{}, errors.New("ledger unavailable")
}

type brokenStore struct {
	*repository.MemoryRepository
}

func (brokenStore) Update(context.Context, uuid.UUID, uuid.UUID, domain.Patch) (domain.Lead, error) {
	return domain.Lead{}, errors.New("connection reset")
}

var fixedNow = time.Date(2026, 3, 10, 23, 30, 0, 0, time.UTC)

type harness struct {
	repo     *repository.MemoryRepository
	notifier *fakeDispatcher
	engine   *Engine
	tenant   uuid.UUID
	actor    Actor
}

func newHarness(t *testing.T, opts ...Option) *harness {
	t.Helper()
	repo := repository.NewMemoryRepository()
	notifier := &fakeDispatcher{}
	opts = append([]Option{WithClock(func() time.Time { return fixedNow })}, opts...)
	return &harness{
		repo:     repo,
		notifier: notifier,
		engine:   New(repo, repo, repo, notifier, time.UTC, logger.NewNop(), opts...),
		tenant:   uuid.New(),
		actor:    Actor{UserID: uuid.New(), DisplayName: "Grace Broker"},
	}
}

func (h *harness) create(t *testing.T, params domain.NewLead) domain.Lead {
	t.Helper()
	params.CompanyID = h.tenant
	res, err := h.engine.Create(context.Background(), params, h.actor)
	require.NoError(t, err)
	require.Empty(t, res.SideEffectErrors)
	return res.Lead
}

func (h *harness) events(t *testing.T, leadID uuid.UUID) []domain.LeadEvent {
	t.Helper()
	events, err := repository.CollectEvents(h.repo.ListForLead(context.Background(), h.tenant, leadID))
	require.NoError(t, err)
	return events
}

func ptr[T any](v T) *T { return &v }

func TestCreateAppendsSingleCreatedEventFirst(t *testing.T) {
	h := newHarness(t)
	lead := h.create(t, domain.NewLead{ContactName: "Ada Lovelace"})

	_, err := h.engine.ApplyUpdate(context.Background(), h.tenant, lead.ID, domain.Patch{
		Status: domain.Some(domain.StatusViewing),
		Notes:  domain.Some("called back"),
	}, h.actor)
	require.NoError(t, err)

	events := h.events(t, lead.ID)
	require.Len(t, events, 3)
	assert.Equal(t, domain.EventCreated, events[0].Type)
	assert.Nil(t, events[0].PreviousValue)
	assert.Equal(t, "New", *events[0].NewValue)
	assert.Equal(t, h.actor.UserID, *events[0].ActorID)

	created := 0
	for _, e := range events {
		if e.Type == domain.EventCreated {
			created++
		}
	}
	assert.Equal(t, 1, created)
}

func TestCreateNormalizesContactFields(t *testing.T) {
	h := newHarness(t)
	lead := h.create(t, domain.NewLead{
		ContactName: "  <b>Ada</b> ",
		Phone:       ptr("(201) 555-0123"),
		Email:       ptr("  "),
	})

	assert.Equal(t, "Ada", lead.ContactName)
	require.NotNil(t, lead.Phone)
	assert.Equal(t, "+12015550123", *lead.Phone)
	assert.Nil(t, lead.Email)
}

func TestCreateRejectsInvalidInput(t *testing.T) {
	h := newHarness(t)

	_, err := h.engine.Create(context.Background(), domain.NewLead{CompanyID: h.tenant, ContactName: " "}, h.actor)
	assert.True(t, apperr.Is(err, apperr.KindValidation))

	_, err = h.engine.Create(context.Background(), domain.NewLead{CompanyID: h.tenant, ContactName: "Ada", Status: "Archived"}, h.actor)
	assert.True(t, apperr.Is(err, apperr.KindValidation))

	foreign := h.repo.AddProperty(uuid.New(), "Elsewhere")
	_, err = h.engine.Create(context.Background(), domain.NewLead{CompanyID: h.tenant, ContactName: "Ada", PropertyID: &foreign}, h.actor)
	assert.True(t, apperr.Is(err, apperr.KindValidation))
}

func TestContactedWithoutFollowUpSchedulesThreeDaysOut(t *testing.T) {
	h := newHarness(t)
	lead := h.create(t, domain.NewLead{ContactName: "Ada"})

	res, err := h.engine.ApplyUpdate(context.Background(), h.tenant, lead.ID, domain.Patch{
		Status: domain.Some(domain.StatusContacted),
	}, h.actor)
	require.NoError(t, err)

	require.NotNil(t, res.Lead.FollowUpDate)
	assert.Equal(t, time.Date(2026, 3, 13, 0, 0, 0, 0, time.UTC), *res.Lead.FollowUpDate)
}

func TestFollowUpUsesBusinessTimeZone(t *testing.T) {
	tokyo, err := time.LoadLocation("Asia/Tokyo")
	require.NoError(t, err)

	repo := repository.NewMemoryRepository()
	engine := New(repo, repo, repo, &fakeDispatcher{}, tokyo, logger.NewNop(),
		WithClock(func() time.Time { return fixedNow }))
	tenant := uuid.New()
	created, err := engine.Create(context.Background(), domain.NewLead{CompanyID: tenant, ContactName: "Ada"}, Actor{})
	require.NoError(t, err)

	res, err := engine.ApplyUpdate(context.Background(), tenant, created.Lead.ID, domain.Patch{
		Status: domain.Some(domain.StatusContacted),
	}, Actor{})
	require.NoError(t, err)

	// 23:30 UTC on the 10th is already the 11th in Tokyo.
	assert.Equal(t, time.Date(2026, 3, 14, 0, 0, 0, 0, time.UTC), *res.Lead.FollowUpDate)
}

func TestContactedKeepsSuppliedFollowUp(t *testing.T) {
	h := newHarness(t)
	supplied := time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC)

	t.Run("explicit date", func(t *testing.T) {
		lead := h.create(t, domain.NewLead{ContactName: "Ada"})
		res, err := h.engine.ApplyUpdate(context.Background(), h.tenant, lead.ID, domain.Patch{
			Status:       domain.Some(domain.StatusContacted),
			FollowUpDate: domain.Some(supplied),
		}, h.actor)
		require.NoError(t, err)
		assert.Equal(t, supplied, *res.Lead.FollowUpDate)
	})

	t.Run("explicit clear", func(t *testing.T) {
		lead := h.create(t, domain.NewLead{ContactName: "Ben", FollowUpDate: &supplied})
		res, err := h.engine.ApplyUpdate(context.Background(), h.tenant, lead.ID, domain.Patch{
			Status:       domain.Some(domain.StatusContacted),
			FollowUpDate: domain.Clear[time.Time](),
		}, h.actor)
		require.NoError(t, err)
		assert.Nil(t, res.Lead.FollowUpDate)
	})

	t.Run("other statuses leave the date alone", func(t *testing.T) {
		lead := h.create(t, domain.NewLead{ContactName: "Cy"})
		res, err := h.engine.ApplyUpdate(context.Background(), h.tenant, lead.ID, domain.Patch{
			Status: domain.Some(domain.StatusViewing),
		}, h.actor)
		require.NoError(t, err)
		assert.Nil(t, res.Lead.FollowUpDate)
	})
}

func TestScenarioContactedWithoutEmail(t *testing.T) {
	h := newHarness(t)
	lead := h.create(t, domain.NewLead{ContactName: "Ada"})

	res, err := h.engine.ApplyUpdate(context.Background(), h.tenant, lead.ID, domain.Patch{
		Status: domain.Some(domain.StatusContacted),
	}, h.actor)
	require.NoError(t, err)

	assert.Equal(t, time.Date(2026, 3, 13, 0, 0, 0, 0, time.UTC), *res.Lead.FollowUpDate)
	assert.Empty(t, res.Notifications)
	assert.Empty(t, h.notifier.sent)

	events := h.events(t, lead.ID)
	require.Len(t, events, 2)
	assert.Equal(t, domain.EventStatusChanged, events[1].Type)
	assert.Equal(t, "New", *events[1].PreviousValue)
	assert.Equal(t, "Contacted", *events[1].NewValue)
}

func TestScenarioPropertyCleared(t *testing.T) {
	h := newHarness(t)
	property := h.repo.AddProperty(h.tenant, "Harbour View Loft")
	lead := h.create(t, domain.NewLead{ContactName: "Ada", PropertyID: &property})

	res, err := h.engine.ApplyUpdate(context.Background(), h.tenant, lead.ID, domain.Patch{
		PropertyID: domain.Clear[uuid.UUID](),
	}, h.actor)
	require.NoError(t, err)
	assert.Nil(t, res.Lead.PropertyID)

	events := h.events(t, lead.ID)
	require.Len(t, events, 2)
	assert.Equal(t, domain.EventPropertyAssigned, events[1].Type)
	assert.Equal(t, property.String(), *events[1].PreviousValue)
	assert.Equal(t, domain.UnassignedProperty, *events[1].NewValue)
}

func TestStatusChangeNotifiesLeadWithEmail(t *testing.T) {
	h := newHarness(t)
	property := h.repo.AddProperty(h.tenant, "Harbour View Loft")
	withProperty := h.create(t, domain.NewLead{ContactName: "Ada", Email: ptr("ada@example.com"), PropertyID: &property})
	general := h.create(t, domain.NewLead{ContactName: "Ben", Email: ptr("ben@example.com")})

	res, err := h.engine.ApplyUpdate(context.Background(), h.tenant, withProperty.ID, domain.Patch{
		Status: domain.Some(domain.StatusViewing),
	}, h.actor)
	require.NoError(t, err)
	require.Len(t, res.Notifications, 1)
	n := res.Notifications[0]
	assert.Equal(t, "ada@example.com", n.Recipient)
	assert.Equal(t, ports.TemplateLeadStatusChanged, n.TemplateKey)
	assert.Equal(t, map[string]string{
		"leadId":        withProperty.ID.String(),
		"leadName":      "Ada",
		"oldStatus":     "New",
		"newStatus":     "Viewing",
		"propertyTitle": "Harbour View Loft",
		"brokerName":    "Grace Broker",
	}, n.Data)

	res, err = h.engine.ApplyUpdate(context.Background(), h.tenant, general.ID, domain.Patch{
		Status: domain.Some(domain.StatusLost),
	}, Actor{})
	require.NoError(t, err)
	require.Len(t, res.Notifications, 1)
	assert.Equal(t, GeneralInquiry, res.Notifications[0].Data["propertyTitle"])
	assert.Equal(t, "Your broker", res.Notifications[0].Data["brokerName"])

	assert.Len(t, h.notifier.sent, 2)
}

func TestNoteAddedOnlyForNewNonEmptyNotes(t *testing.T) {
	h := newHarness(t)
	lead := h.create(t, domain.NewLead{ContactName: "Ada", Notes: ptr("first call")})

	_, err := h.engine.ApplyUpdate(context.Background(), h.tenant, lead.ID, domain.Patch{Notes: domain.Some("first call")}, h.actor)
	require.NoError(t, err)
	_, err = h.engine.ApplyUpdate(context.Background(), h.tenant, lead.ID, domain.Patch{Notes: domain.Clear[string]()}, h.actor)
	require.NoError(t, err)
	_, err = h.engine.ApplyUpdate(context.Background(), h.tenant, lead.ID, domain.Patch{Notes: domain.Some("wants a garden")}, h.actor)
	require.NoError(t, err)

	events := h.events(t, lead.ID)
	require.Len(t, events, 2)
	assert.Equal(t, domain.EventNoteAdded, events[1].Type)
	assert.Nil(t, events[1].PreviousValue)
	assert.Equal(t, "wants a garden", *events[1].NewValue)
}

func TestReapplyingPatchAddsNoEvents(t *testing.T) {
	h := newHarness(t)
	property := h.repo.AddProperty(h.tenant, "Harbour View Loft")
	lead := h.create(t, domain.NewLead{ContactName: "Ada", Email: ptr("ada@example.com")})
	patch := domain.Patch{
		Status:     domain.Some(domain.StatusContacted),
		Notes:      domain.Some("keen"),
		PropertyID: domain.Some(property),
	}

	_, err := h.engine.ApplyUpdate(context.Background(), h.tenant, lead.ID, patch, h.actor)
	require.NoError(t, err)
	first := h.events(t, lead.ID)
	require.Len(t, first, 4)

	res, err := h.engine.ApplyUpdate(context.Background(), h.tenant, lead.ID, patch, h.actor)
	require.NoError(t, err)
	assert.Empty(t, res.Notifications)
	assert.Len(t, h.events(t, lead.ID), len(first))
	assert.Len(t, h.notifier.sent, 1)
}

func TestSideEffectFailuresDoNotFailTheUpdate(t *testing.T) {
	repo := repository.NewMemoryRepository()
	notifier := &fakeDispatcher{err: errors.New("outbox unavailable")}
	engine := New(repo, brokenLedger{repo}, repo, notifier, time.UTC, logger.NewNop())
	tenant := uuid.New()

	created, err := engine.Create(context.Background(), domain.NewLead{CompanyID: tenant, ContactName: "Ada", Email: ptr("ada@example.com")}, Actor{})
	require.NoError(t, err)
	require.Len(t, created.SideEffectErrors, 1)

	res, err := engine.ApplyUpdate(context.Background(), tenant, created.Lead.ID, domain.Patch{
		Status: domain.Some(domain.StatusWon),
		Notes:  domain.Some("signed"),
	}, Actor{})
	require.NoError(t, err)
	assert.Equal(t, domain.StatusWon, res.Lead.Status)
	assert.Empty(t, res.Notifications)
	require.Len(t, res.SideEffectErrors, 3)
	assert.True(t, apperr.Is(res.SideEffectErrors[0], apperr.KindStoreFailure))
	assert.True(t, apperr.Is(res.SideEffectErrors[1], apperr.KindNotificationFailure))
	assert.True(t, apperr.Is(res.SideEffectErrors[2], apperr.KindStoreFailure))
}

func TestPrimaryFailuresAreFatal(t *testing.T) {
	h := newHarness(t)

	_, err := h.engine.ApplyUpdate(context.Background(), h.tenant, uuid.New(), domain.Patch{Notes: domain.Some("x")}, h.actor)
	assert.True(t, apperr.Is(err, apperr.KindNotFound))

	lead := h.create(t, domain.NewLead{ContactName: "Ada"})
	broken := New(brokenStore{h.repo}, h.repo, h.repo, h.notifier, time.UTC, logger.NewNop())
	_, err = broken.ApplyUpdate(context.Background(), h.tenant, lead.ID, domain.Patch{Status: domain.Some(domain.StatusWon)}, h.actor)
	assert.True(t, apperr.Is(err, apperr.KindStoreFailure))
	assert.Len(t, h.events(t, lead.ID), 1)

	_, err = h.engine.ApplyUpdate(context.Background(), h.tenant, lead.ID, domain.Patch{Status: domain.Clear[domain.Status]()}, h.actor)
	assert.True(t, apperr.Is(err, apperr.KindValidation))
}

func TestRecordStatusChangeSkipsUnchanged(t *testing.T) {
	h := newHarness(t)
	lead := h.create(t, domain.NewLead{ContactName: "Ada"})

	assert.Empty(t, h.engine.RecordStatusChange(context.Background(), lead, lead, h.actor))
	moved := lead
	moved.Status = domain.StatusLost
	assert.Empty(t, h.engine.RecordStatusChange(context.Background(), lead, moved, h.actor))
	assert.Len(t, h.events(t, lead.ID), 2)
}
