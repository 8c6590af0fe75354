package campaign

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zapflow/campaignd/internal/model"
)

func testContacts(listID int64, n int) *fakeContacts {
	f := &fakeContacts{}
	for i := 1; i <= n; i++ {
		f.contacts = append(f.contacts, model.ContactListItem{
			ID:            int64(i),
			ContactListID: listID,
			Name:          "Contact",
			Number:        "+551199900000" + string(rune('0'+i%10)),
			WhatsappValid: true,
		})
	}
	return f
}

func newTestProcessor(campaigns *fakeCampaigns, contacts *fakeContacts, q *fakeQueue) *Processor {
	return NewProcessor(
		campaigns,
		contacts,
		&fakeSettings{pacing: model.PacingSettings{MessageInterval: 10, LongerIntervalAfter: 2, GreaterInterval: 30}},
		q,
		NopNotifier{},
		NopAudit{},
		testLogger(),
	)
}

func TestProcessorExpandsClaimedCampaign(t *testing.T) {
	cam := &model.Campaign{
		ID: 1, TenantID: 1, ContactListID: 7, AccountID: 1,
		Status:   model.CampaignClaimed,
		Message1: "a", Message2: "b",
	}
	campaigns := newFakeCampaigns(cam)
	q := &fakeQueue{}

	p := newTestProcessor(campaigns, testContacts(7, 3), q)
	require.NoError(t, p.Handle(context.Background(), model.ProcessCampaignPayload{CampaignID: 1}))

	assert.Equal(t, model.CampaignRunning, campaigns.status(1))

	jobs := q.ofType(model.TaskPrepareContact)
	require.Len(t, jobs, 3)

	// Delays accumulate; position 0 carries none, every 2nd step inserts
	// the longer interval.
	p0 := jobs[0].Payload.(model.PrepareContactPayload)
	p1 := jobs[1].Payload.(model.PrepareContactPayload)
	p2 := jobs[2].Payload.(model.PrepareContactPayload)
	assert.Equal(t, int64(0), p0.DelayMs)
	assert.Equal(t, (10 * time.Second).Milliseconds(), p1.DelayMs)
	assert.Equal(t, (40 * time.Second).Milliseconds(), p2.DelayMs)

	// Variant index rotates over the two non-blank messages.
	assert.Equal(t, 0, p0.VariantIndex)
	assert.Equal(t, 1, p1.VariantIndex)
	assert.Equal(t, 0, p2.VariantIndex)
}

func TestProcessorSecondRunIsNoop(t *testing.T) {
	cam := &model.Campaign{
		ID: 1, TenantID: 1, ContactListID: 7,
		Status:   model.CampaignClaimed,
		Message1: "a",
	}
	campaigns := newFakeCampaigns(cam)
	q := &fakeQueue{}
	p := newTestProcessor(campaigns, testContacts(7, 2), q)

	require.NoError(t, p.Handle(context.Background(), model.ProcessCampaignPayload{CampaignID: 1}))
	require.NoError(t, p.Handle(context.Background(), model.ProcessCampaignPayload{CampaignID: 1}))

	assert.Len(t, q.ofType(model.TaskPrepareContact), 2, "redelivered job must not duplicate the fan-out")
}

func TestProcessorMissingCampaignDropped(t *testing.T) {
	p := newTestProcessor(newFakeCampaigns(), testContacts(7, 1), &fakeQueue{})

	require.NoError(t, p.Handle(context.Background(), model.ProcessCampaignPayload{CampaignID: 99}))
}

func TestProcessorNoVariantsMarksError(t *testing.T) {
	cam := &model.Campaign{
		ID: 1, TenantID: 1, ContactListID: 7,
		Status:   model.CampaignClaimed,
		Message1: "   ",
	}
	campaigns := newFakeCampaigns(cam)
	q := &fakeQueue{}
	p := newTestProcessor(campaigns, testContacts(7, 2), q)

	// Expansion failure is terminal for the campaign, not retried.
	require.NoError(t, p.Handle(context.Background(), model.ProcessCampaignPayload{CampaignID: 1}))

	assert.Equal(t, model.CampaignError, campaigns.status(1))
	assert.Empty(t, q.ofType(model.TaskPrepareContact))
}

func TestProcessorPagesThroughContacts(t *testing.T) {
	cam := &model.Campaign{
		ID: 1, TenantID: 1, ContactListID: 7,
		Status:   model.CampaignClaimed,
		Message1: "a",
	}
	campaigns := newFakeCampaigns(cam)
	q := &fakeQueue{}
	p := newTestProcessor(campaigns, testContacts(7, 25), q)
	p.PageSize = 10

	require.NoError(t, p.Handle(context.Background(), model.ProcessCampaignPayload{CampaignID: 1}))

	assert.Len(t, q.ofType(model.TaskPrepareContact), 25)
}
