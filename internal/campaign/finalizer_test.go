package campaign

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zapflow/campaignd/internal/model"
)

type recordingNotifier struct {
	updates []model.CampaignStatus
}

func (r *recordingNotifier) CampaignUpdated(_ context.Context, c *model.Campaign) {
	r.updates = append(r.updates, c.Status)
}

func finalizerFixture(contactCount int) (*fakeCampaigns, *fakeShipments, *recordingNotifier, *Finalizer) {
	cam := &model.Campaign{
		ID: 1, TenantID: 1, ContactListID: 7, Status: model.CampaignRunning, Message1: "a",
	}
	campaigns := newFakeCampaigns(cam)
	shipments := newFakeShipments()
	notifier := &recordingNotifier{}
	f := NewFinalizer(campaigns, testContacts(7, contactCount), shipments, notifier, NopAudit{}, testLogger())
	return campaigns, shipments, notifier, f
}

func settleShipment(t *testing.T, shipments *fakeShipments, id string, contactID int64, ok bool) {
	t.Helper()
	s, _, err := shipments.FindOrCreate(context.Background(), model.Shipment{
		ID: id, CampaignID: 1, ContactID: contactID, Number: "+55", Message: "m",
	})
	require.NoError(t, err)
	_, err = shipments.MarkDelivered(context.Background(), s.ID, nil, ok, time.Now())
	require.NoError(t, err)
}

func TestFinalizerClosesWhenAllTerminal(t *testing.T) {
	campaigns, shipments, notifier, f := finalizerFixture(2)
	settleShipment(t, shipments, "s1", 1, true)
	settleShipment(t, shipments, "s2", 2, false)

	cam, _ := campaigns.GetByID(context.Background(), 1)
	require.NoError(t, f.VerifyAndFinalize(context.Background(), cam))

	assert.Equal(t, model.CampaignDone, campaigns.status(1))
	require.NotEmpty(t, notifier.updates)
	assert.Equal(t, model.CampaignDone, notifier.updates[len(notifier.updates)-1])
}

func TestFinalizerWaitsForPendingShipments(t *testing.T) {
	campaigns, shipments, notifier, f := finalizerFixture(2)
	settleShipment(t, shipments, "s1", 1, true)

	cam, _ := campaigns.GetByID(context.Background(), 1)
	require.NoError(t, f.VerifyAndFinalize(context.Background(), cam))

	assert.Equal(t, model.CampaignRunning, campaigns.status(1))
	// Partial progress still notifies the UI.
	assert.NotEmpty(t, notifier.updates)
}

func TestFinalizerIdempotent(t *testing.T) {
	campaigns, shipments, _, f := finalizerFixture(1)
	settleShipment(t, shipments, "s1", 1, true)

	cam, _ := campaigns.GetByID(context.Background(), 1)
	require.NoError(t, f.VerifyAndFinalize(context.Background(), cam))
	first, _ := campaigns.GetByID(context.Background(), 1)
	completedAt := *first.CompletedAt

	require.NoError(t, f.VerifyAndFinalize(context.Background(), cam))
	second, _ := campaigns.GetByID(context.Background(), 1)

	assert.Equal(t, model.CampaignDone, second.Status)
	assert.Equal(t, completedAt, *second.CompletedAt, "re-finalizing must not move the completion time")
}

func TestFinalizerEmptyContactListClosesImmediately(t *testing.T) {
	campaigns, _, _, f := finalizerFixture(0)

	cam, _ := campaigns.GetByID(context.Background(), 1)
	require.NoError(t, f.VerifyAndFinalize(context.Background(), cam))

	assert.Equal(t, model.CampaignDone, campaigns.status(1))
}

func TestSweepRunningFinalizesCompletedCampaigns(t *testing.T) {
	campaigns, shipments, _, f := finalizerFixture(1)
	settleShipment(t, shipments, "s1", 1, true)

	require.NoError(t, f.SweepRunning(context.Background()))

	assert.Equal(t, model.CampaignDone, campaigns.status(1))
}
