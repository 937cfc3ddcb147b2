package delivery

import (
	"context"
	"fmt"
	"io"
	"slices"
	"testing"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xenking/vconn/internal/domain/contract"
	"github.com/xenking/vconn/internal/domain/order"
	"github.com/xenking/vconn/internal/domain/quota"
)

// --- Mock implementations ---

type mockRepo struct {
	orders     []order.Order
	owner      map[string]string // contract id -> wholesaler id
	earningErr error
}

func (m *mockRepo) ByDate(_ context.Context, wholesalerID string, date time.Time, statuses []order.Status) ([]order.Order, error) {
	var out []order.Order
	for _, o := range m.orders {
		if m.owner[o.ContractID] != wholesalerID || !o.DeliveryDate.Equal(date) {
			continue
		}
		if len(statuses) > 0 && !slices.Contains(statuses, o.Status) {
			continue
		}
		out = append(out, o)
	}
	return out, nil
}

func (m *mockRepo) Earnings(_ context.Context, wholesalerID string, date *time.Time) (decimal.Decimal, error) {
	if m.earningErr != nil {
		return decimal.Zero, m.earningErr
	}
	sum := decimal.Zero
	for _, o := range m.orders {
		if m.owner[o.ContractID] != wholesalerID || o.Status != order.StatusDelivered {
			continue
		}
		if date != nil && !o.DeliveryDate.Equal(*date) {
			continue
		}
		sum = sum.Add(o.TotalAmount)
	}
	return sum, nil
}

type mockContracts struct {
	active   []contract.Contract
	accepted []contract.Contract
}

func (m *mockContracts) ActiveByWholesaler(context.Context, string) ([]contract.Contract, error) {
	return m.active, nil
}

func (m *mockContracts) Accepted(context.Context, string) ([]contract.Contract, error) {
	return m.accepted, nil
}

type mockOrders struct {
	active []order.Order
	count  int
}

func (m *mockOrders) ActiveByVendor(context.Context, string) ([]order.Order, error) {
	return m.active, nil
}

func (m *mockOrders) CountByVendor(context.Context, string) (int, error) {
	return m.count, nil
}

type mockQuotas map[quota.Kind]int

func (m mockQuotas) Remaining(_ context.Context, _ string, kind quota.Kind) (int, error) {
	return m[kind], nil
}

type captureWriter struct {
	got Manifest
	err error
}

func (c *captureWriter) WriteManifest(w io.Writer, m Manifest) error {
	c.got = m
	if c.err != nil {
		return c.err
	}
	_, err := fmt.Fprintf(w, "%s:%d", m.Date.Format(time.DateOnly), len(m.Orders))
	return err
}

// --- Helpers ---

var (
	testNow   = time.Date(2026, 5, 4, 15, 0, 0, 0, time.UTC)
	today     = time.Date(2026, 5, 4, 0, 0, 0, 0, time.UTC)
	yesterday = today.AddDate(0, 0, -1)
)

func fixture() *mockRepo {
	money := decimal.RequireFromString
	return &mockRepo{
		owner: map[string]string{"c1": "W", "c2": "W", "x1": "other"},
		orders: []order.Order{
			{ID: "o1", ContractID: "c1", Status: order.StatusPending, DeliveryDate: today, TotalAmount: money("10")},
			{ID: "o2", ContractID: "c2", Status: order.StatusConfirmed, DeliveryDate: today, TotalAmount: money("4.50")},
			{ID: "o3", ContractID: "c1", Status: order.StatusDelivered, DeliveryDate: today, TotalAmount: money("7.25")},
			{ID: "o4", ContractID: "c1", Status: order.StatusCancelled, DeliveryDate: today, TotalAmount: money("99")},
			{ID: "o5", ContractID: "c2", Status: order.StatusDelivered, DeliveryDate: yesterday, TotalAmount: money("12.75")},
			{ID: "o6", ContractID: "x1", Status: order.StatusPending, DeliveryDate: today, TotalAmount: money("3")},
			{ID: "o7", ContractID: "x1", Status: order.StatusDelivered, DeliveryDate: today, TotalAmount: money("8")},
		},
	}
}

func newTestService(repo *mockRepo, w ManifestWriter) *Service {
	s := NewService(repo,
		&mockContracts{
			active:   make([]contract.Contract, 3),
			accepted: make([]contract.Contract, 2),
		},
		&mockOrders{active: make([]order.Order, 1), count: 6},
		mockQuotas{quota.FreeAttempts: 4, quota.Cancellations: 5},
		w,
	)
	s.now = func() time.Time { return testNow }
	return s
}

func ids(orders []order.Order) []string {
	out := make([]string, len(orders))
	for i, o := range orders {
		out[i] = o.ID
	}
	return out
}

// --- Tests ---

func TestToday(t *testing.T) {
	s := newTestService(fixture(), nil)

	got, err := s.Today(context.Background(), "W")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"o1", "o2"}, ids(got))
}

func TestByDate(t *testing.T) {
	s := newTestService(fixture(), nil)

	got, err := s.ByDate(context.Background(), "W", today.Add(10*time.Hour))
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"o1", "o2", "o3", "o4"}, ids(got))
}

func TestEarnings(t *testing.T) {
	ctx := context.Background()
	s := newTestService(fixture(), nil)

	v, err := s.TodayEarnings(ctx, "W")
	require.NoError(t, err)
	assert.Equal(t, "7.25", v.StringFixed(2))

	v, err = s.TotalEarnings(ctx, "W")
	require.NoError(t, err)
	assert.Equal(t, "20.00", v.StringFixed(2))

	v, err = s.TotalEarnings(ctx, "nobody")
	require.NoError(t, err)
	assert.True(t, v.IsZero())
}

func TestWholesalerStats(t *testing.T) {
	s := newTestService(fixture(), nil)

	st, err := s.WholesalerStats(context.Background(), "W")
	require.NoError(t, err)
	assert.Equal(t, 3, st.ActiveContracts)
	assert.Equal(t, 2, st.TodayDeliveries)
	assert.Equal(t, "7.25", st.TodayEarnings.StringFixed(2))
	assert.Equal(t, "20.00", st.TotalEarnings.StringFixed(2))
}

func TestWholesalerStats_Error(t *testing.T) {
	repo := fixture()
	repo.earningErr = errors.New("timeout")
	s := newTestService(repo, nil)

	_, err := s.WholesalerStats(context.Background(), "W")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "earnings")
}

func TestVendorStats(t *testing.T) {
	s := newTestService(fixture(), nil)

	st, err := s.VendorStats(context.Background(), "V")
	require.NoError(t, err)
	assert.Equal(t, &VendorStats{
		AcceptedContracts: 2,
		ActiveOrders:      1,
		TotalOrders:       6,
		FreeAttemptsLeft:  4,
		CancellationsLeft: 5,
	}, st)
}

func TestExportManifest(t *testing.T) {
	w := &captureWriter{}
	s := newTestService(fixture(), w)

	out, err := s.ExportManifest(context.Background(), "W", today.Add(13*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, "2026-05-04:3", string(out))
	assert.Equal(t, today, w.got.Date)
	assert.ElementsMatch(t, []string{"o1", "o2", "o3"}, ids(w.got.Orders), "cancelled orders are left off")
}

func TestExportManifest_WriterError(t *testing.T) {
	s := newTestService(fixture(), &captureWriter{err: errors.New("boom")})

	_, err := s.ExportManifest(context.Background(), "W", today)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "write manifest")
}
