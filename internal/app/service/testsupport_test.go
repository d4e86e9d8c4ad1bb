package service

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/vendimia/refledger/config"
	"github.com/vendimia/refledger/internal/app/model"
	"github.com/vendimia/refledger/internal/app/repository"
)

// memStore is the shared in-memory backing for all fake repositories. A
// snapshot/restore pair gives the fake TxManager real rollback semantics, so
// atomicity tests observe the same all-or-nothing behavior as Postgres.
type memStore struct {
	mu          sync.Mutex
	clicks      []model.ValidatedClick
	links       map[string]model.AffiliateLink
	commissions []model.Commission
	movements   []model.BalanceMovement
	balances    map[string]model.SellerBalance

	// Error injection hooks.
	clickQueryErr     error
	movementCreateErr error
	afterListPending  func(store *memStore)
}

func newMemStore() *memStore {
	return &memStore{
		links:    make(map[string]model.AffiliateLink),
		balances: make(map[string]model.SellerBalance),
	}
}

func (s *memStore) snapshot() *memStore {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap := newMemStore()
	snap.clicks = append(snap.clicks, s.clicks...)
	snap.commissions = append(snap.commissions, s.commissions...)
	snap.movements = append(snap.movements, s.movements...)
	for k, v := range s.links {
		snap.links[k] = v
	}
	for k, v := range s.balances {
		snap.balances[k] = v
	}
	return snap
}

func (s *memStore) restore(snap *memStore) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.clicks = snap.clicks
	s.commissions = snap.commissions
	s.movements = snap.movements
	s.links = snap.links
	s.balances = snap.balances
}

func linkKey(affiliateID, productID string) string {
	return affiliateID + "|" + productID
}

// memClickRepo implements repository.ValidatedClickRepository over memStore.
type memClickRepo struct {
	store *memStore
}

func (r *memClickRepo) Create(_ context.Context, click *model.ValidatedClick) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	r.store.clicks = append(r.store.clicks, *click)
	return nil
}

func (r *memClickRepo) CountValidByFingerprintSince(_ context.Context, fingerprint string, since time.Time) (int64, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	if r.store.clickQueryErr != nil {
		return 0, r.store.clickQueryErr
	}
	var n int64
	for _, c := range r.store.clicks {
		if c.Valid && c.Fingerprint == fingerprint && !c.Timestamp.Before(since) {
			n++
		}
	}
	return n, nil
}

func (r *memClickRepo) CountDistinctAffiliatesByIPSince(_ context.Context, ip string, since time.Time) (int64, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	if r.store.clickQueryErr != nil {
		return 0, r.store.clickQueryErr
	}
	seen := make(map[string]struct{})
	for _, c := range r.store.clicks {
		if c.Valid && c.IP == ip && !c.Timestamp.Before(since) {
			seen[c.AffiliateID] = struct{}{}
		}
	}
	return int64(len(seen)), nil
}

func (r *memClickRepo) CountValidByIPSince(_ context.Context, ip string, since time.Time) (int64, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	if r.store.clickQueryErr != nil {
		return 0, r.store.clickQueryErr
	}
	var n int64
	for _, c := range r.store.clicks {
		if c.Valid && c.IP == ip && !c.Timestamp.Before(since) {
			n++
		}
	}
	return n, nil
}

func (r *memClickRepo) LastValidClickAtByIP(_ context.Context, ip string) (*time.Time, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	if r.store.clickQueryErr != nil {
		return nil, r.store.clickQueryErr
	}
	var last *time.Time
	for i := range r.store.clicks {
		c := r.store.clicks[i]
		if c.Valid && c.IP == ip && (last == nil || c.Timestamp.After(*last)) {
			t := c.Timestamp
			last = &t
		}
	}
	return last, nil
}

func (r *memClickRepo) CountValidByAffiliateSince(_ context.Context, affiliateID string, since time.Time) (int64, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	if r.store.clickQueryErr != nil {
		return 0, r.store.clickQueryErr
	}
	var n int64
	for _, c := range r.store.clicks {
		if c.Valid && c.AffiliateID == affiliateID && !c.Timestamp.Before(since) {
			n++
		}
	}
	return n, nil
}

func (r *memClickRepo) HasValidFingerprintForAffiliateSince(_ context.Context, fingerprint, affiliateID string, since time.Time) (bool, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	if r.store.clickQueryErr != nil {
		return false, r.store.clickQueryErr
	}
	for _, c := range r.store.clicks {
		if c.Valid && c.Fingerprint == fingerprint && c.AffiliateID == affiliateID && !c.Timestamp.Before(since) {
			return true, nil
		}
	}
	return false, nil
}

func (r *memClickRepo) ListRecentByAffiliate(_ context.Context, affiliateID string, limit int) ([]model.ValidatedClick, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	var out []model.ValidatedClick
	for _, c := range r.store.clicks {
		if c.AffiliateID == affiliateID {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Timestamp.After(out[j].Timestamp) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// memLinkRepo implements repository.AffiliateLinkRepository over memStore.
type memLinkRepo struct {
	store *memStore
}

func (r *memLinkRepo) GetOrCreateForUpdate(_ context.Context, affiliateID, productID string) (*model.AffiliateLink, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	key := linkKey(affiliateID, productID)
	link, ok := r.store.links[key]
	if !ok {
		link = model.AffiliateLink{
			ID:            uuid.New().String(),
			AffiliateID:   affiliateID,
			ProductID:     productID,
			AccruedCredit: decimal.Zero,
		}
		r.store.links[key] = link
	}
	out := link
	return &out, nil
}

func (r *memLinkRepo) Save(_ context.Context, link *model.AffiliateLink) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	r.store.links[linkKey(link.AffiliateID, link.ProductID)] = *link
	return nil
}

func (r *memLinkRepo) ListByAffiliate(_ context.Context, affiliateID string) ([]model.AffiliateLink, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	var out []model.AffiliateLink
	for _, l := range r.store.links {
		if l.AffiliateID == affiliateID {
			out = append(out, l)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ProductID < out[j].ProductID })
	return out, nil
}

// memCommissionRepo implements repository.CommissionRepository over memStore.
type memCommissionRepo struct {
	store *memStore
}

func (r *memCommissionRepo) CreateIfAbsent(_ context.Context, commission *model.Commission) (bool, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	for _, c := range r.store.commissions {
		if c.AffiliateID == commission.AffiliateID && c.SaleID == commission.SaleID {
			return false, nil
		}
	}
	commission.CreatedAt = time.Now().UTC()
	r.store.commissions = append(r.store.commissions, *commission)
	return true, nil
}

func (r *memCommissionRepo) GetBySale(_ context.Context, affiliateID, saleID string) (*model.Commission, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	for i := range r.store.commissions {
		c := r.store.commissions[i]
		if c.AffiliateID == affiliateID && c.SaleID == saleID {
			return &c, nil
		}
	}
	return nil, repository.ErrCommissionNotFound
}

func (r *memCommissionRepo) ListPendingForUpdate(_ context.Context, affiliateID string) ([]model.Commission, error) {
	r.store.mu.Lock()
	var out []model.Commission
	for _, c := range r.store.commissions {
		if c.AffiliateID == affiliateID && c.Status == model.CommissionStatusPending {
			out = append(out, c)
		}
	}
	r.store.mu.Unlock()
	if r.store.afterListPending != nil {
		// Models a commission committed by another connection after the
		// listing; row locks do not block a fresh autocommit insert.
		r.store.afterListPending(r.store)
	}
	return out, nil
}

func (r *memCommissionRepo) MarkPaidByIDs(_ context.Context, ids []string, settledAt time.Time) (int64, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	wanted := make(map[string]bool, len(ids))
	for _, id := range ids {
		wanted[id] = true
	}
	var n int64
	for i := range r.store.commissions {
		c := &r.store.commissions[i]
		if wanted[c.ID] && c.Status == model.CommissionStatusPending {
			c.Status = model.CommissionStatusPaid
			t := settledAt
			c.SettledAt = &t
			n++
		}
	}
	return n, nil
}

func (r *memCommissionRepo) ListByAffiliate(_ context.Context, affiliateID string, limit int) ([]model.Commission, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	var out []model.Commission
	for _, c := range r.store.commissions {
		if c.AffiliateID == affiliateID {
			out = append(out, c)
		}
	}
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *memCommissionRepo) ListAffiliatesWithPendingAtLeast(_ context.Context, min decimal.Decimal) ([]string, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	sums := make(map[string]decimal.Decimal)
	for _, c := range r.store.commissions {
		if c.Status == model.CommissionStatusPending {
			sums[c.AffiliateID] = sums[c.AffiliateID].Add(c.CommissionValue)
		}
	}
	var out []string
	for affiliateID, sum := range sums {
		if sum.GreaterThanOrEqual(min) {
			out = append(out, affiliateID)
		}
	}
	sort.Strings(out)
	return out, nil
}

// memMovementRepo implements repository.BalanceMovementRepository.
type memMovementRepo struct {
	store *memStore
}

func (r *memMovementRepo) Create(_ context.Context, movement *model.BalanceMovement) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	if r.store.movementCreateErr != nil {
		return r.store.movementCreateErr
	}
	movement.CreatedAt = time.Now().UTC()
	r.store.movements = append(r.store.movements, *movement)
	return nil
}

func (r *memMovementRepo) ListBySeller(_ context.Context, sellerID string, limit int) ([]model.BalanceMovement, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	var out []model.BalanceMovement
	for _, m := range r.store.movements {
		if m.SellerID == sellerID {
			out = append(out, m)
		}
	}
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// memBalanceRepo implements repository.SellerBalanceRepository.
type memBalanceRepo struct {
	store *memStore
}

func (r *memBalanceRepo) Get(_ context.Context, sellerID string) (*model.SellerBalance, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	b, ok := r.store.balances[sellerID]
	if !ok {
		return nil, repository.ErrSellerBalanceNotFound
	}
	out := b
	return &out, nil
}

func (r *memBalanceRepo) Credit(_ context.Context, sellerID string, amount decimal.Decimal) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	b, ok := r.store.balances[sellerID]
	if !ok {
		b = model.SellerBalance{SellerID: sellerID}
	}
	b.CurrentBalance = b.CurrentBalance.Add(amount)
	b.TotalRevenue = b.TotalRevenue.Add(amount)
	b.DailyRevenue = b.DailyRevenue.Add(amount)
	b.WeeklyRevenue = b.WeeklyRevenue.Add(amount)
	b.MonthlyRevenue = b.MonthlyRevenue.Add(amount)
	r.store.balances[sellerID] = b
	return nil
}

func (r *memBalanceRepo) Put(_ context.Context, balance *model.SellerBalance) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	r.store.balances[balance.SellerID] = *balance
	return nil
}

// memTxManager snapshots the store before the function runs and restores it
// when the function errors, mirroring transactional rollback.
type memTxManager struct {
	store *memStore
}

func (m *memTxManager) Do(_ context.Context, fn func(r repository.Repos) error) error {
	snap := m.store.snapshot()
	err := fn(repository.Repos{
		Links:       &memLinkRepo{store: m.store},
		Commissions: &memCommissionRepo{store: m.store},
		Movements:   &memMovementRepo{store: m.store},
		Balances:    &memBalanceRepo{store: m.store},
	})
	if err != nil {
		m.store.restore(snap)
	}
	return err
}

// nopLocker always grants the settlement lock.
type nopLocker struct{}

func (nopLocker) Acquire(context.Context, string) (func(), error) {
	return func() {}, nil
}

// heldLocker simulates another settlement holding the lock.
type heldLocker struct {
	err error
}

func (l heldLocker) Acquire(context.Context, string) (func(), error) {
	return nil, l.err
}

// captureNotifier records settlement notices for assertion. The engine
// notifies from a goroutine, so tests receive from the channel with a
// deadline instead of polling.
type captureNotifier struct {
	notices chan model.SettlementNotice
}

func newCaptureNotifier() *captureNotifier {
	return &captureNotifier{notices: make(chan model.SettlementNotice, 8)}
}

func (n *captureNotifier) SettlementCompleted(notice model.SettlementNotice) {
	n.notices <- notice
}

func (n *captureNotifier) wait(timeout time.Duration) (model.SettlementNotice, bool) {
	select {
	case notice := <-n.notices:
		return notice, true
	case <-time.After(timeout):
		return model.SettlementNotice{}, false
	}
}

func testFraudConfig() config.FraudConfig {
	return config.FraudConfig{
		WindowMinutes:           60,
		MaxClicksPerFingerprint: 3,
		MaxAffiliatesPerIP:      5,
		MaxClicksPerIP:          5,
		MinSecondsBetweenClicks: 60,
		MaxClicksPerAffiliate:   20,
		MinScreenWidth:          320,
		MaxScreenWidth:          7680,
		MinScreenHeight:         240,
		MaxScreenHeight:         4320,
	}
}

func testAccrualConfig() config.AccrualConfig {
	return config.AccrualConfig{
		ClicksPerCredit: 10,
		CreditUnit:      "0.05",
	}
}

func dec(t interface{ Fatalf(string, ...interface{}) }, s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		t.Fatalf("bad decimal literal %q: %v", s, err)
	}
	return d
}
