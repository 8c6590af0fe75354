package campaign

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/zapflow/campaignd/internal/gateway"
	"github.com/zapflow/campaignd/internal/model"
	"github.com/zapflow/campaignd/internal/queue"
	"github.com/zapflow/campaignd/internal/repository"
)

// In-memory doubles for the store and queue interfaces. They enforce the
// same transition guards as the SQL implementations, which is what the
// pipeline tests are actually about.

type fakeCampaigns struct {
	mu        sync.Mutex
	campaigns map[int64]*model.Campaign
}

func newFakeCampaigns(cs ...*model.Campaign) *fakeCampaigns {
	f := &fakeCampaigns{campaigns: map[int64]*model.Campaign{}}
	for _, c := range cs {
		cc := *c
		f.campaigns[c.ID] = &cc
	}
	return f
}

func (f *fakeCampaigns) GetByID(_ context.Context, id int64) (*model.Campaign, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.campaigns[id]
	if !ok {
		return nil, nil
	}
	cc := *c
	return &cc, nil
}

func (f *fakeCampaigns) ClaimDue(_ context.Context, window time.Duration) ([]repository.ClaimedCampaign, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	now := time.Now()
	var out []repository.ClaimedCampaign
	for _, c := range f.campaigns {
		if c.Status != model.CampaignScheduled || c.ScheduledAt == nil {
			continue
		}
		if c.ScheduledAt.After(now.Add(window)) {
			continue
		}
		c.Status = model.CampaignClaimed
		delay := time.Until(*c.ScheduledAt)
		if delay < 0 {
			delay = 0
		}
		out = append(out, repository.ClaimedCampaign{ID: c.ID, Delay: delay})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (f *fakeCampaigns) MarkRunning(_ context.Context, id int64) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.campaigns[id]
	if !ok || c.Status != model.CampaignClaimed {
		return false, nil
	}
	c.Status = model.CampaignRunning
	return true, nil
}

func (f *fakeCampaigns) MarkError(_ context.Context, id int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if c, ok := f.campaigns[id]; ok {
		c.Status = model.CampaignError
	}
	return nil
}

func (f *fakeCampaigns) Finalize(_ context.Context, id int64, completedAt time.Time) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.campaigns[id]
	if !ok || c.Status != model.CampaignRunning {
		return false, nil
	}
	c.Status = model.CampaignDone
	c.CompletedAt = &completedAt
	return true, nil
}

func (f *fakeCampaigns) ListRunning(_ context.Context) ([]model.Campaign, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []model.Campaign
	for _, c := range f.campaigns {
		if c.Status == model.CampaignRunning {
			out = append(out, *c)
		}
	}
	return out, nil
}

func (f *fakeCampaigns) status(id int64) model.CampaignStatus {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.campaigns[id].Status
}

type fakeContacts struct {
	contacts []model.ContactListItem
}

func (f *fakeContacts) GetByID(_ context.Context, id int64) (*model.ContactListItem, error) {
	for i := range f.contacts {
		if f.contacts[i].ID == id {
			c := f.contacts[i]
			return &c, nil
		}
	}
	return nil, nil
}

func (f *fakeContacts) ListValidPage(_ context.Context, listID int64, offset, limit int) ([]model.ContactListItem, error) {
	var valid []model.ContactListItem
	for _, c := range f.contacts {
		if c.ContactListID == listID && c.WhatsappValid {
			valid = append(valid, c)
		}
	}
	if offset >= len(valid) {
		return nil, nil
	}
	end := offset + limit
	if end > len(valid) {
		end = len(valid)
	}
	return valid[offset:end], nil
}

func (f *fakeContacts) CountValid(_ context.Context, listID int64) (int64, error) {
	var n int64
	for _, c := range f.contacts {
		if c.ContactListID == listID && c.WhatsappValid {
			n++
		}
	}
	return n, nil
}

type fakeShipments struct {
	mu        sync.Mutex
	shipments map[string]*model.Shipment
	byPair    map[string]string
}

func newFakeShipments() *fakeShipments {
	return &fakeShipments{
		shipments: map[string]*model.Shipment{},
		byPair:    map[string]string{},
	}
}

func pairKey(campaignID, contactID int64) string {
	return fmt.Sprintf("%d:%d", campaignID, contactID)
}

func (f *fakeShipments) GetByID(_ context.Context, id string) (*model.Shipment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.shipments[id]
	if !ok {
		return nil, nil
	}
	ss := *s
	return &ss, nil
}

func (f *fakeShipments) FindOrCreate(_ context.Context, s model.Shipment) (*model.Shipment, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	key := pairKey(s.CampaignID, s.ContactID)
	if id, ok := f.byPair[key]; ok {
		existing := *f.shipments[id]
		return &existing, false, nil
	}
	s.CreatedAt = time.Now()
	f.shipments[s.ID] = &s
	f.byPair[key] = s.ID
	ss := s
	return &ss, true, nil
}

func (f *fakeShipments) UpdateComposition(_ context.Context, id, message, confirmationMessage string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.shipments[id]
	if !ok || s.DeliveredAt != nil || s.ConfirmationRequestedAt != nil {
		return nil
	}
	s.Message = message
	s.ConfirmationMessage = confirmationMessage
	return nil
}

func (f *fakeShipments) SetJobID(_ context.Context, id, jobID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if s, ok := f.shipments[id]; ok {
		s.JobID = &jobID
	}
	return nil
}

func (f *fakeShipments) MarkDelivered(_ context.Context, id string, messageID *string, delivered bool, at time.Time) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.shipments[id]
	if !ok || s.DeliveredAt != nil {
		return false, nil
	}
	s.DeliveredAt = &at
	s.MessageID = messageID
	s.Delivered = &delivered
	return true, nil
}

func (f *fakeShipments) MarkConfirmationRequested(_ context.Context, id string, at time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if s, ok := f.shipments[id]; ok && s.DeliveredAt == nil {
		s.ConfirmationRequestedAt = &at
	}
	return nil
}

func (f *fakeShipments) CountTerminal(_ context.Context, campaignID int64) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var n int64
	for _, s := range f.shipments {
		if s.CampaignID == campaignID && s.Delivered != nil {
			n++
		}
	}
	return n, nil
}

func (f *fakeShipments) ListStalePending(_ context.Context, cutoff time.Time, limit int) ([]model.Shipment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []model.Shipment
	for _, s := range f.shipments {
		if s.Delivered == nil && s.DeliveredAt == nil &&
			s.ConfirmationRequestedAt == nil && s.CreatedAt.Before(cutoff) {
			out = append(out, *s)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (f *fakeShipments) Progress(_ context.Context, campaignID int64) (repository.CampaignProgress, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var p repository.CampaignProgress
	for _, s := range f.shipments {
		if s.CampaignID != campaignID {
			continue
		}
		p.Total++
		switch {
		case s.Delivered != nil && *s.Delivered:
			p.Sent++
		case s.Delivered != nil:
			p.Failed++
		case s.ConfirmationRequestedAt != nil:
			p.Awaiting++
		}
	}
	return p, nil
}

func (f *fakeShipments) byContact(campaignID, contactID int64) *model.Shipment {
	f.mu.Lock()
	defer f.mu.Unlock()
	id, ok := f.byPair[pairKey(campaignID, contactID)]
	if !ok {
		return nil
	}
	s := *f.shipments[id]
	return &s
}

type fakeSettings struct {
	pacing model.PacingSettings
}

func (f *fakeSettings) PacingForTenant(context.Context, int64) (model.PacingSettings, error) {
	return f.pacing, nil
}

type fakeFiles struct {
	files []model.CampaignFile
}

func (f *fakeFiles) ListByFileList(_ context.Context, fileListID int64) ([]model.CampaignFile, error) {
	var out []model.CampaignFile
	for _, file := range f.files {
		if file.FileListID == fileListID {
			out = append(out, file)
		}
	}
	return out, nil
}

type enqueued struct {
	ID      string
	Type    string
	Payload any
	Opts    queue.Options
}

type fakeQueue struct {
	mu     sync.Mutex
	nextID int
	jobs   []enqueued
	live   []queue.Job
}

func (f *fakeQueue) Enqueue(_ context.Context, taskType string, payload any, opts queue.Options) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	id := fmt.Sprintf("job-%d", f.nextID)
	f.jobs = append(f.jobs, enqueued{ID: id, Type: taskType, Payload: payload, Opts: opts})
	return id, nil
}

func (f *fakeQueue) ListUnsettled(_ context.Context, taskType string) ([]queue.Job, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []queue.Job
	for _, j := range f.live {
		if j.Type == taskType {
			out = append(out, j)
		}
	}
	return out, nil
}

func (f *fakeQueue) ofType(taskType string) []enqueued {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []enqueued
	for _, j := range f.jobs {
		if j.Type == taskType {
			out = append(out, j)
		}
	}
	return out
}

type sentMessage struct {
	Kind    string // text | media
	Number  string
	Body    string
	Path    string
	Name    string
	Caption string
}

type fakeConnection struct {
	mu        sync.Mutex
	messageID string
	err       error
	sent      []sentMessage
}

func (f *fakeConnection) SendText(_ context.Context, number, body string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return "", f.err
	}
	f.sent = append(f.sent, sentMessage{Kind: "text", Number: number, Body: body})
	return f.messageID, nil
}

func (f *fakeConnection) SendMedia(_ context.Context, number, path, name, caption string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return "", f.err
	}
	f.sent = append(f.sent, sentMessage{Kind: "media", Number: number, Path: path, Name: name, Caption: caption})
	return f.messageID, nil
}

type fakeRegistry struct {
	conn *fakeConnection
	err  error
}

func (f *fakeRegistry) Connection(context.Context, int64) (gateway.Connection, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.conn, nil
}

func testLogger() *zap.Logger { return zap.NewNop() }
