package integration

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/erp/marketplace/internal/domain/integration"
	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"
	"go.uber.org/zap"
)

var mockAny = mock.Anything

func newTestLogger() *zap.Logger {
	logger, _ := zap.NewDevelopment()
	return logger
}

// ---------------------------------------------------------------------------
// In-memory repositories
// ---------------------------------------------------------------------------

type fakeChannelRepo struct {
	mu       sync.Mutex
	channels map[string]integration.MarketplaceChannel
}

func newFakeChannelRepo(channels ...integration.MarketplaceChannel) *fakeChannelRepo {
	r := &fakeChannelRepo{channels: make(map[string]integration.MarketplaceChannel)}
	for _, c := range channels {
		r.channels[c.Slug] = c
	}
	return r
}

func (r *fakeChannelRepo) List(_ context.Context) ([]integration.MarketplaceChannel, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]integration.MarketplaceChannel, 0, len(r.channels))
	for _, c := range r.channels {
		out = append(out, c)
	}
	sort.Slice(out, func(a, b int) bool { return out[a].Slug < out[b].Slug })
	return out, nil
}

func (r *fakeChannelRepo) FindBySlug(_ context.Context, slug string) (*integration.MarketplaceChannel, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.channels[slug]
	if !ok {
		return nil, integration.ErrChannelNotFound
	}
	return &c, nil
}

func (r *fakeChannelRepo) Save(_ context.Context, c *integration.MarketplaceChannel) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.channels[c.Slug] = *c
	return nil
}

type enablementKey struct {
	tenant uuid.UUID
	slug   string
}

type fakeEnablementRepo struct {
	mu   sync.Mutex
	rows map[enablementKey]integration.ChannelEnablement
}

func newFakeEnablementRepo() *fakeEnablementRepo {
	return &fakeEnablementRepo{rows: make(map[enablementKey]integration.ChannelEnablement)}
}

func (r *fakeEnablementRepo) set(tenantID uuid.UUID, slug string, enabled bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rows[enablementKey{tenantID, slug}] = integration.ChannelEnablement{TenantID: tenantID, ChannelSlug: slug, IsEnabled: enabled}
}

func (r *fakeEnablementRepo) Find(_ context.Context, tenantID uuid.UUID, slug string) (*integration.ChannelEnablement, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.rows[enablementKey{tenantID, slug}]
	if !ok {
		return nil, integration.ErrEnablementNotFound
	}
	return &e, nil
}

func (r *fakeEnablementRepo) IsEnabled(ctx context.Context, tenantID uuid.UUID, slug string) (bool, error) {
	e, err := r.Find(ctx, tenantID, slug)
	if err != nil {
		return false, nil
	}
	return e.IsEnabled, nil
}

func (r *fakeEnablementRepo) ListByTenant(_ context.Context, tenantID uuid.UUID) ([]integration.ChannelEnablement, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []integration.ChannelEnablement
	for k, e := range r.rows {
		if k.tenant == tenantID {
			out = append(out, e)
		}
	}
	return out, nil
}

func (r *fakeEnablementRepo) Save(_ context.Context, e *integration.ChannelEnablement) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rows[enablementKey{e.TenantID, e.ChannelSlug}] = *e
	return nil
}

type fakeIntegrationRepo struct {
	mu   sync.Mutex
	rows map[uuid.UUID]integration.Integration
}

func newFakeIntegrationRepo() *fakeIntegrationRepo {
	return &fakeIntegrationRepo{rows: make(map[uuid.UUID]integration.Integration)}
}

func (r *fakeIntegrationRepo) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.rows)
}

// Save mirrors the GORM repository: webhook columns of an existing row are kept
// and a second live row for the same tenant and channel is refused.
func (r *fakeIntegrationRepo) Save(_ context.Context, i *integration.Integration) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	row := *i
	if existing, ok := r.rows[i.ID]; ok {
		row.WebhookStatus = existing.WebhookStatus
		row.LastWebhookReceived = existing.LastWebhookReceived
		r.rows[i.ID] = row
		return nil
	}
	for _, other := range r.rows {
		if other.IsDeleted() || row.IsDeleted() {
			continue
		}
		sameChannel := other.TenantID == row.TenantID && other.ChannelSlug == row.ChannelSlug
		sameAccount := row.ExternalAccountID != "" && other.ChannelSlug == row.ChannelSlug &&
			other.ExternalAccountID == row.ExternalAccountID
		if sameChannel || sameAccount {
			return integration.ErrIntegrationExists
		}
	}
	r.rows[i.ID] = row
	return nil
}

func (r *fakeIntegrationRepo) FindByID(_ context.Context, tenantID, id uuid.UUID) (*integration.Integration, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	i, ok := r.rows[id]
	if !ok || i.TenantID != tenantID || i.IsDeleted() {
		return nil, integration.ErrIntegrationNotFound
	}
	return &i, nil
}

func (r *fakeIntegrationRepo) Get(_ context.Context, id uuid.UUID) (*integration.Integration, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	i, ok := r.rows[id]
	if !ok || i.IsDeleted() {
		return nil, integration.ErrIntegrationNotFound
	}
	return &i, nil
}

func (r *fakeIntegrationRepo) FindByTenantAndChannel(_ context.Context, tenantID uuid.UUID, slug string) (*integration.Integration, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, i := range r.rows {
		if i.TenantID == tenantID && i.ChannelSlug == slug && !i.IsDeleted() {
			return &i, nil
		}
	}
	return nil, integration.ErrIntegrationNotFound
}

func (r *fakeIntegrationRepo) FindByExternalAccount(_ context.Context, slug, account string) (*integration.Integration, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, i := range r.rows {
		if i.ChannelSlug == slug && i.ExternalAccountID == account && !i.IsDeleted() {
			return &i, nil
		}
	}
	return nil, integration.ErrIntegrationNotFound
}

func (r *fakeIntegrationRepo) ListByTenant(_ context.Context, tenantID uuid.UUID) ([]integration.Integration, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []integration.Integration
	for _, i := range r.rows {
		if i.TenantID == tenantID && !i.IsDeleted() {
			out = append(out, i)
		}
	}
	return out, nil
}

func (r *fakeIntegrationRepo) ListSyncCandidates(_ context.Context) ([]integration.Integration, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []integration.Integration
	for _, i := range r.rows {
		if !i.IsDeleted() && i.AutoSyncEnabled && (i.Status == integration.StatusActive || i.Status == integration.StatusError) {
			out = append(out, i)
		}
	}
	return out, nil
}

func (r *fakeIntegrationRepo) UpdateSyncState(_ context.Context, i *integration.Integration) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	row := r.rows[i.ID]
	row.Status = i.Status
	row.LastSync = i.LastSync
	row.LastError = i.LastError
	row.LastErrorTransient = i.LastErrorTransient
	row.ConsecutiveFailures = i.ConsecutiveFailures
	row.LastAttemptAt = i.LastAttemptAt
	r.rows[i.ID] = row
	return nil
}

func (r *fakeIntegrationRepo) UpdateWebhookState(_ context.Context, i *integration.Integration) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	row := r.rows[i.ID]
	row.WebhookStatus = i.WebhookStatus
	row.LastWebhookReceived = i.LastWebhookReceived
	r.rows[i.ID] = row
	return nil
}

func (r *fakeIntegrationRepo) CountByStatus(_ context.Context, tenantID uuid.UUID) (map[integration.IntegrationStatus]int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make(map[integration.IntegrationStatus]int64)
	for _, i := range r.rows {
		if i.TenantID == tenantID && !i.IsDeleted() {
			out[i.Status]++
		}
	}
	return out, nil
}

type fakeSyncLogRepo struct {
	mu   sync.Mutex
	rows []integration.SyncLog
}

func (r *fakeSyncLogRepo) all() []integration.SyncLog {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]integration.SyncLog(nil), r.rows...)
}

func (r *fakeSyncLogRepo) Append(_ context.Context, l *integration.SyncLog) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rows = append(r.rows, *l)
	return nil
}

func (r *fakeSyncLogRepo) ListByIntegration(_ context.Context, tenantID, id uuid.UUID, _ integration.SyncLogFilter) ([]integration.SyncLog, int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []integration.SyncLog
	for idx := len(r.rows) - 1; idx >= 0; idx-- {
		if r.rows[idx].IntegrationID == id && r.rows[idx].TenantID == tenantID {
			out = append(out, r.rows[idx])
		}
	}
	return out, int64(len(out)), nil
}

func (r *fakeSyncLogRepo) CountSince(_ context.Context, tenantID uuid.UUID, since time.Time) (integration.SyncLogCounts, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var c integration.SyncLogCounts
	for _, l := range r.rows {
		if l.TenantID != tenantID || l.CreatedAt.Before(since) {
			continue
		}
		switch l.Status {
		case integration.LogSuccess:
			c.Success++
		case integration.LogError:
			c.Error++
		case integration.LogPending:
			c.Pending++
		}
	}
	return c, nil
}

// ---------------------------------------------------------------------------
// Vault, state store, lock, tracker, dispatcher
// ---------------------------------------------------------------------------

type fakeVault struct {
	mu          sync.Mutex
	secrets     map[integration.CredentialRef][]byte
	unavailable bool
	revoked     []integration.CredentialRef
}

func newFakeVault() *fakeVault {
	return &fakeVault{secrets: make(map[integration.CredentialRef][]byte)}
}

func (v *fakeVault) Store(_ context.Context, _ uuid.UUID, _ string, payload []byte) (integration.CredentialRef, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.unavailable {
		return "", integration.ErrVaultUnavailable
	}
	ref := integration.CredentialRef(uuid.NewString())
	v.secrets[ref] = append([]byte(nil), payload...)
	return ref, nil
}

func (v *fakeVault) Retrieve(_ context.Context, ref integration.CredentialRef) ([]byte, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.unavailable {
		return nil, integration.ErrVaultUnavailable
	}
	p, ok := v.secrets[ref]
	if !ok {
		return nil, integration.ErrRefNotFound
	}
	return p, nil
}

func (v *fakeVault) Revoke(_ context.Context, ref integration.CredentialRef) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	if _, ok := v.secrets[ref]; !ok {
		return integration.ErrRefNotFound
	}
	delete(v.secrets, ref)
	v.revoked = append(v.revoked, ref)
	return nil
}

func (v *fakeVault) size() int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return len(v.secrets)
}

func (v *fakeVault) setUnavailable(b bool) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.unavailable = b
}

type fakeStateStore struct {
	mu     sync.Mutex
	states map[string]integration.OAuthState
}

func newFakeStateStore() *fakeStateStore {
	return &fakeStateStore{states: make(map[string]integration.OAuthState)}
}

func (s *fakeStateStore) Issue(_ context.Context, state *integration.OAuthState) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for token, existing := range s.states {
		if existing.TenantID == state.TenantID && existing.ChannelSlug == state.ChannelSlug {
			delete(s.states, token)
		}
	}
	s.states[state.Token] = *state
	return nil
}

func (s *fakeStateStore) Consume(_ context.Context, token string) (*integration.OAuthState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	state, ok := s.states[token]
	if !ok {
		return nil, integration.ErrInvalidState
	}
	delete(s.states, token)
	return &state, nil
}

type fakeLock struct {
	mu           sync.Mutex
	held         map[uuid.UUID]bool
	acquisitions int
}

func newFakeLock() *fakeLock {
	return &fakeLock{held: make(map[uuid.UUID]bool)}
}

func (l *fakeLock) acquired() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.acquisitions
}

func (l *fakeLock) TryAcquire(_ context.Context, id uuid.UUID) (func(), bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.held[id] {
		return nil, false, nil
	}
	l.held[id] = true
	l.acquisitions++
	return func() {
		l.mu.Lock()
		defer l.mu.Unlock()
		delete(l.held, id)
	}, true, nil
}

type fakeTracker struct {
	mu     sync.Mutex
	counts map[uuid.UUID]int
}

func newFakeTracker() *fakeTracker {
	return &fakeTracker{counts: make(map[uuid.UUID]int)}
}

func (t *fakeTracker) RecordFailure(id uuid.UUID, _ time.Time) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.counts[id]++
	return t.counts[id]
}

func (t *fakeTracker) Reset(id uuid.UUID) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.counts, id)
}

type fakeDispatcher struct {
	mu   sync.Mutex
	jobs []SyncJob
	full bool
}

func (d *fakeDispatcher) Dispatch(job SyncJob) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.full {
		return false
	}
	d.jobs = append(d.jobs, job)
	return true
}

func (d *fakeDispatcher) dispatched() []SyncJob {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]SyncJob(nil), d.jobs...)
}

// ---------------------------------------------------------------------------
// Connector mocks
// ---------------------------------------------------------------------------

type MockConnector struct {
	mock.Mock
	slug string
}

func (m *MockConnector) Slug() string { return m.slug }

func (m *MockConnector) Sync(ctx context.Context, req integration.SyncRequest) (*integration.SyncResult, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*integration.SyncResult), args.Error(1)
}

func (m *MockConnector) ParseWebhook(payload []byte) (*integration.WebhookEnvelope, error) {
	args := m.Called(payload)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*integration.WebhookEnvelope), args.Error(1)
}

func (m *MockConnector) VerifySignature(payload []byte, signature, secret string) bool {
	args := m.Called(payload, signature, secret)
	return args.Bool(0)
}

type MockAPIKeyConnector struct {
	MockConnector
}

func (m *MockAPIKeyConnector) ValidateCredentials(ctx context.Context, fields map[string]string) (*integration.AccountInfo, error) {
	args := m.Called(ctx, fields)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*integration.AccountInfo), args.Error(1)
}

type MockOAuth2Connector struct {
	MockConnector
}

func (m *MockOAuth2Connector) AuthCodeURL(state string) string {
	return "https://auth.example.com/authorize?state=" + state
}

func (m *MockOAuth2Connector) Exchange(ctx context.Context, code string) (*integration.TokenSet, error) {
	args := m.Called(ctx, code)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*integration.TokenSet), args.Error(1)
}

func (m *MockOAuth2Connector) Introspect(ctx context.Context, creds integration.Credentials) (*integration.AccountInfo, error) {
	args := m.Called(ctx, creds)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*integration.AccountInfo), args.Error(1)
}

var (
	_ integration.APIKeyConnector = (*MockAPIKeyConnector)(nil)
	_ integration.OAuth2Connector = (*MockOAuth2Connector)(nil)
)

type staticConnectors map[string]integration.ChannelConnector

func (s staticConnectors) Connector(slug string) (integration.ChannelConnector, error) {
	c, ok := s[slug]
	if !ok {
		return nil, integration.ErrChannelAdapterMissing
	}
	return c, nil
}
