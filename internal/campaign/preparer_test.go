package campaign

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zapflow/campaignd/internal/model"
)

func preparerFixture() (*fakeCampaigns, *fakeContacts, *fakeShipments, *fakeQueue, *Preparer) {
	cam := &model.Campaign{
		ID: 1, TenantID: 1, ContactListID: 7, AccountID: 1,
		Status:   model.CampaignRunning,
		Message1: "Oi {nome}", Message2: "Ola {nome}",
	}
	campaigns := newFakeCampaigns(cam)
	contacts := &fakeContacts{contacts: []model.ContactListItem{
		{ID: 10, ContactListID: 7, Name: "Ana", Number: "11 99900-0001", WhatsappValid: true},
	}}
	shipments := newFakeShipments()
	q := &fakeQueue{}
	p := NewPreparer(campaigns, contacts, shipments, q, testLogger())
	return campaigns, contacts, shipments, q, p
}

func TestPreparerCreatesShipmentAndSchedulesDispatch(t *testing.T) {
	_, _, shipments, q, p := preparerFixture()

	payload := model.PrepareContactPayload{CampaignID: 1, ContactID: 10, DelayMs: 40000, VariantIndex: 1}
	require.NoError(t, p.Handle(context.Background(), payload))

	ship := shipments.byContact(1, 10)
	require.NotNil(t, ship)
	assert.Equal(t, "+5511999000001", ship.Number)
	assert.Equal(t, "‌ Ola Ana", ship.Message, "variant index picks message2")
	require.NotNil(t, ship.JobID)

	jobs := q.ofType(model.TaskDispatchCampaign)
	require.Len(t, jobs, 1)
	assert.Equal(t, *ship.JobID, jobs[0].ID)
	assert.Equal(t, 40*time.Second, jobs[0].Opts.Delay, "pacing delay becomes the enqueue delay")

	dp := jobs[0].Payload.(model.DispatchPayload)
	assert.Equal(t, ship.ID, dp.ShipmentID)
}

func TestPreparerReplayConvergesOnOneShipment(t *testing.T) {
	_, _, shipments, q, p := preparerFixture()

	payload := model.PrepareContactPayload{CampaignID: 1, ContactID: 10}
	require.NoError(t, p.Handle(context.Background(), payload))
	require.NoError(t, p.Handle(context.Background(), payload))

	assert.Len(t, shipments.shipments, 1, "replay keys on (campaign, contact)")
	// A replay still re-enqueues the dispatch; the dispatcher's terminal
	// guard makes the extra job harmless.
	assert.Len(t, q.ofType(model.TaskDispatchCampaign), 2)
}

func TestPreparerSkipsSettledShipment(t *testing.T) {
	_, _, shipments, q, p := preparerFixture()

	payload := model.PrepareContactPayload{CampaignID: 1, ContactID: 10}
	require.NoError(t, p.Handle(context.Background(), payload))

	ship := shipments.byContact(1, 10)
	_, err := shipments.MarkDelivered(context.Background(), ship.ID, nil, true, time.Now())
	require.NoError(t, err)

	require.NoError(t, p.Handle(context.Background(), payload))
	assert.Len(t, q.ofType(model.TaskDispatchCampaign), 1, "settled shipment must not be redispatched")
}

func TestPreparerRefreshesCompositionOnReplay(t *testing.T) {
	campaigns, _, shipments, _, p := preparerFixture()

	payload := model.PrepareContactPayload{CampaignID: 1, ContactID: 10, VariantIndex: 0}
	require.NoError(t, p.Handle(context.Background(), payload))

	// Campaign text changed between attempts.
	campaigns.campaigns[1].Message1 = "Novidade {nome}"
	require.NoError(t, p.Handle(context.Background(), payload))

	ship := shipments.byContact(1, 10)
	assert.Equal(t, "‌ Novidade Ana", ship.Message)
}

func TestPreparerMissingContactDropped(t *testing.T) {
	_, _, shipments, q, p := preparerFixture()

	require.NoError(t, p.Handle(context.Background(), model.PrepareContactPayload{CampaignID: 1, ContactID: 999}))
	assert.Empty(t, shipments.shipments)
	assert.Empty(t, q.ofType(model.TaskDispatchCampaign))
}

func TestPreparerVariablesSubstituted(t *testing.T) {
	_, _, shipments, _, p := preparerFixture()

	payload := model.PrepareContactPayload{
		CampaignID: 1, ContactID: 10, VariantIndex: 0,
		Variables: []model.Variable{{Key: "empresa", Value: "Demo"}},
	}
	p.Campaigns.(*fakeCampaigns).campaigns[1].Message1 = "Oi {nome}, aqui e a {empresa}"
	require.NoError(t, p.Handle(context.Background(), payload))

	ship := shipments.byContact(1, 10)
	assert.Equal(t, "‌ Oi Ana, aqui e a Demo", ship.Message)
}
