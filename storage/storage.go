package storage

import (
	"context"
	"sort"
	"sync"
	"time"

	"railgate.app/api/models"
)

// Storage is the row store behind every handler. Lookups that find nothing
// return (nil, nil).
type Storage interface {
	SaveLead(ctx context.Context, lead *models.Lead) error
	ListLeads(ctx context.Context) ([]*models.Lead, error)

	SavePartner(ctx context.Context, partner *models.Partner) error
	ListPartners(ctx context.Context) ([]*models.Partner, error)

	SaveContributor(ctx context.Context, contributor *models.Contributor) error
	GetContributor(ctx context.Context, id string) (*models.Contributor, error)
	ListContributors(ctx context.Context) ([]*models.Contributor, error)
	UpdateContributorStatus(ctx context.Context, id, status string) (bool, error)

	SaveIntake(ctx context.Context, intake *models.Intake) error
	ListIntakes(ctx context.Context) ([]*models.Intake, error)

	UpsertGrant(ctx context.Context, grant *models.AccessGrant) error
	FindGrantByEmail(ctx context.Context, email string) (*models.AccessGrant, error)
	CancelGrantsBySubscription(ctx context.Context, subscriptionRef string, at time.Time) (int, error)
	// CancelGrantsByCustomer only touches grants that never recorded a
	// subscription reference.
	CancelGrantsByCustomer(ctx context.Context, customerRef string, at time.Time) (int, error)
	ListGrants(ctx context.Context) ([]*models.AccessGrant, error)

	// MarkCheckoutProcessed records a completed checkout session and reports
	// whether this call was the first to record it.
	MarkCheckoutProcessed(ctx context.Context, sessionID, email string, at time.Time) (bool, error)

	SaveToken(ctx context.Context, token *models.AccessToken) error
	FindLatestTokenByDigest(ctx context.Context, digest string) (*models.AccessToken, error)
	// MarkTokenUsed stamps used_at if it is still unset and reports whether it
	// did.
	MarkTokenUsed(ctx context.Context, id string, at time.Time) (bool, error)

	Close() error
}

// MemoryStorage keeps everything in maps. It is safe for concurrent use and
// backs most handler tests.
type MemoryStorage struct {
	mu sync.RWMutex

	seq          int64
	Leads        []models.Lead
	Partners     []models.Partner
	Contributors []models.Contributor
	Intakes      []models.Intake
	Grants       map[string]models.AccessGrant
	Tokens       []models.AccessToken
	Checkouts    map[string]time.Time
	grantOrder   map[string]int64
}

func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{
		Grants:     make(map[string]models.AccessGrant),
		Checkouts:  make(map[string]time.Time),
		grantOrder: make(map[string]int64),
	}
}

func (m *MemoryStorage) SaveLead(ctx context.Context, lead *models.Lead) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Leads = append(m.Leads, *lead)
	return nil
}

func (m *MemoryStorage) ListLeads(ctx context.Context) ([]*models.Lead, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]*models.Lead, 0, len(m.Leads))
	for i := len(m.Leads) - 1; i >= 0; i-- {
		lead := m.Leads[i]
		out = append(out, &lead)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (m *MemoryStorage) SavePartner(ctx context.Context, partner *models.Partner) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Partners = append(m.Partners, *partner)
	return nil
}

func (m *MemoryStorage) ListPartners(ctx context.Context) ([]*models.Partner, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]*models.Partner, 0, len(m.Partners))
	for i := len(m.Partners) - 1; i >= 0; i-- {
		partner := m.Partners[i]
		out = append(out, &partner)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (m *MemoryStorage) SaveContributor(ctx context.Context, contributor *models.Contributor) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Contributors = append(m.Contributors, *contributor)
	return nil
}

func (m *MemoryStorage) GetContributor(ctx context.Context, id string) (*models.Contributor, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, c := range m.Contributors {
		if c.ID == id {
			return &c, nil
		}
	}
	return nil, nil
}

func (m *MemoryStorage) ListContributors(ctx context.Context) ([]*models.Contributor, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]*models.Contributor, 0, len(m.Contributors))
	for i := len(m.Contributors) - 1; i >= 0; i-- {
		c := m.Contributors[i]
		out = append(out, &c)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (m *MemoryStorage) UpdateContributorStatus(ctx context.Context, id, status string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for i := range m.Contributors {
		if m.Contributors[i].ID == id {
			m.Contributors[i].Status = status
			return true, nil
		}
	}
	return false, nil
}

func (m *MemoryStorage) SaveIntake(ctx context.Context, intake *models.Intake) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Intakes = append(m.Intakes, *intake)
	return nil
}

func (m *MemoryStorage) ListIntakes(ctx context.Context) ([]*models.Intake, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]*models.Intake, 0, len(m.Intakes))
	for i := len(m.Intakes) - 1; i >= 0; i-- {
		intake := m.Intakes[i]
		out = append(out, &intake)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (m *MemoryStorage) UpsertGrant(ctx context.Context, grant *models.AccessGrant) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	existing, ok := m.Grants[grant.Email]
	if !ok {
		m.seq++
		m.grantOrder[grant.Email] = m.seq
		m.Grants[grant.Email] = *grant
		return nil
	}

	existing.Status = grant.Status
	if grant.CustomerRef != "" {
		existing.CustomerRef = grant.CustomerRef
	}
	if grant.SubscriptionRef != "" {
		existing.SubscriptionRef = grant.SubscriptionRef
	}
	existing.UpdatedAt = grant.UpdatedAt
	m.Grants[grant.Email] = existing
	return nil
}

func (m *MemoryStorage) FindGrantByEmail(ctx context.Context, email string) (*models.AccessGrant, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	grant, ok := m.Grants[email]
	if !ok {
		return nil, nil
	}
	return &grant, nil
}

func (m *MemoryStorage) CancelGrantsBySubscription(ctx context.Context, subscriptionRef string, at time.Time) (int, error) {
	return m.cancelWhere(func(g models.AccessGrant) bool {
		return subscriptionRef != "" && g.SubscriptionRef == subscriptionRef
	}, at), nil
}

func (m *MemoryStorage) CancelGrantsByCustomer(ctx context.Context, customerRef string, at time.Time) (int, error) {
	return m.cancelWhere(func(g models.AccessGrant) bool {
		return customerRef != "" && g.CustomerRef == customerRef && g.SubscriptionRef == ""
	}, at), nil
}

func (m *MemoryStorage) cancelWhere(match func(models.AccessGrant) bool, at time.Time) int {
	m.mu.Lock()
	defer m.mu.Unlock()

	n := 0
	for email, g := range m.Grants {
		if !match(g) {
			continue
		}
		g.Status = models.GrantCanceled
		g.UpdatedAt = at
		m.Grants[email] = g
		n++
	}
	return n
}

func (m *MemoryStorage) ListGrants(ctx context.Context) ([]*models.AccessGrant, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]*models.AccessGrant, 0, len(m.Grants))
	for _, g := range m.Grants {
		grant := g
		out = append(out, &grant)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return m.grantOrder[out[i].Email] > m.grantOrder[out[j].Email]
	})
	return out, nil
}

func (m *MemoryStorage) MarkCheckoutProcessed(ctx context.Context, sessionID, email string, at time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, seen := m.Checkouts[sessionID]; seen {
		return false, nil
	}
	m.Checkouts[sessionID] = at
	return true, nil
}

func (m *MemoryStorage) SaveToken(ctx context.Context, token *models.AccessToken) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.Tokens = append(m.Tokens, *token)
	return nil
}

func (m *MemoryStorage) FindLatestTokenByDigest(ctx context.Context, digest string) (*models.AccessToken, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var latest *models.AccessToken
	for i := range m.Tokens {
		t := m.Tokens[i]
		if t.Digest != digest {
			continue
		}
		if latest == nil || !t.CreatedAt.Before(latest.CreatedAt) {
			latest = &t
		}
	}
	return latest, nil
}

func (m *MemoryStorage) MarkTokenUsed(ctx context.Context, id string, at time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for i := range m.Tokens {
		if m.Tokens[i].ID != id || m.Tokens[i].UsedAt != nil {
			continue
		}
		used := at
		m.Tokens[i].UsedAt = &used
		return true, nil
	}
	return false, nil
}

func (m *MemoryStorage) Close() error {
	return nil
}

var _ Storage = (*MemoryStorage)(nil)
