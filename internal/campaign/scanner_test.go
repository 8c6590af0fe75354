package campaign

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zapflow/campaignd/internal/model"
)

func TestScannerClaimsDueCampaign(t *testing.T) {
	past := time.Now().Add(-time.Minute)
	cam := &model.Campaign{
		ID: 1, TenantID: 1, Status: model.CampaignScheduled, ScheduledAt: &past,
	}
	campaigns := newFakeCampaigns(cam)
	q := &fakeQueue{}

	s := NewScanner(campaigns, q, NopNotifier{}, NopAudit{}, testLogger())
	require.NoError(t, s.Scan(context.Background()))

	assert.Equal(t, model.CampaignClaimed, campaigns.status(1))

	jobs := q.ofType(model.TaskProcessCampaign)
	require.Len(t, jobs, 1)
	assert.Equal(t, time.Duration(0), jobs[0].Opts.Delay, "past schedules run immediately")
}

func TestScannerDelaysFutureCampaign(t *testing.T) {
	soon := time.Now().Add(30 * time.Minute)
	cam := &model.Campaign{
		ID: 1, TenantID: 1, Status: model.CampaignScheduled, ScheduledAt: &soon,
	}
	campaigns := newFakeCampaigns(cam)
	q := &fakeQueue{}

	s := NewScanner(campaigns, q, NopNotifier{}, NopAudit{}, testLogger())
	require.NoError(t, s.Scan(context.Background()))

	jobs := q.ofType(model.TaskProcessCampaign)
	require.Len(t, jobs, 1)
	assert.InDelta(t, (30 * time.Minute).Seconds(), jobs[0].Opts.Delay.Seconds(), 5,
		"processing waits for the scheduled moment")
}

func TestScannerIgnoresCampaignsOutsideWindow(t *testing.T) {
	farOut := time.Now().Add(3 * time.Hour)
	cam := &model.Campaign{
		ID: 1, TenantID: 1, Status: model.CampaignScheduled, ScheduledAt: &farOut,
	}
	campaigns := newFakeCampaigns(cam)
	q := &fakeQueue{}

	s := NewScanner(campaigns, q, NopNotifier{}, NopAudit{}, testLogger())
	require.NoError(t, s.Scan(context.Background()))

	assert.Equal(t, model.CampaignScheduled, campaigns.status(1))
	assert.Empty(t, q.ofType(model.TaskProcessCampaign))
}

func TestScannerSecondScanFindsNothing(t *testing.T) {
	past := time.Now().Add(-time.Minute)
	cam := &model.Campaign{
		ID: 1, TenantID: 1, Status: model.CampaignScheduled, ScheduledAt: &past,
	}
	campaigns := newFakeCampaigns(cam)
	q := &fakeQueue{}

	s := NewScanner(campaigns, q, NopNotifier{}, NopAudit{}, testLogger())
	require.NoError(t, s.Scan(context.Background()))
	require.NoError(t, s.Scan(context.Background()))

	assert.Len(t, q.ofType(model.TaskProcessCampaign), 1, "claim moves the row out of PROGRAMADA")
}
