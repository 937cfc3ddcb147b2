package handler

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xenking/vconn/internal/domain/auth"
	"github.com/xenking/vconn/internal/domain/contract"
	"github.com/xenking/vconn/internal/domain/delivery"
	"github.com/xenking/vconn/internal/domain/order"
	"github.com/xenking/vconn/internal/idempotency"
	"github.com/xenking/vconn/pkg/httpmiddleware"
)

var (
	errUnexpected = errors.New("unexpected call")
	testNow       = time.Date(2026, 3, 10, 9, 30, 0, 0, time.UTC)
	testPepper    = []byte("pepper")
)

const (
	vendorKey     = "vendor-key"
	wholesalerKey = "wholesaler-key"
)

// --- fakes ---

type fakeKeys struct {
	byHash map[string]*auth.APIKeyInfo
	err    error
}

func newFakeKeys() *fakeKeys {
	k := &fakeKeys{byHash: make(map[string]*auth.APIKeyInfo)}
	k.add(vendorKey, auth.Actor{ID: "v1", Role: auth.RoleVendor})
	k.add(wholesalerKey, auth.Actor{ID: "w1", Role: auth.RoleWholesaler})
	return k
}

func (k *fakeKeys) add(key string, a auth.Actor) {
	h := hex.EncodeToString(auth.HashAPIKey(testPepper, key))
	k.byHash[h] = &auth.APIKeyInfo{ID: key, KeyHash: h, Name: key, Actor: a}
}

func (k *fakeKeys) FindByHash(_ context.Context, hash string) (*auth.APIKeyInfo, error) {
	if k.err != nil {
		return nil, k.err
	}
	info, ok := k.byHash[hash]
	if !ok {
		return nil, auth.ErrKeyNotFound
	}
	return info, nil
}

type fakeContracts struct {
	create     func(wholesalerID string, f contract.Fields) (*contract.Contract, error)
	get        func(id string) (*contract.Contract, error)
	accept     func(contractID, vendorID string) (*contract.Contract, error)
	update     func(contractID, wholesalerID string, u contract.Update) (*contract.Contract, error)
	deactivate func(contractID, wholesalerID string) (*contract.Contract, error)
	search     func(q contract.SearchQuery) ([]contract.Contract, error)
	endingSoon func(wholesalerID string, window time.Duration) ([]contract.Contract, error)
	list       []contract.Contract
}

func (f *fakeContracts) Create(_ context.Context, wid string, fl contract.Fields) (*contract.Contract, error) {
	if f.create == nil {
		return nil, errUnexpected
	}
	return f.create(wid, fl)
}

func (f *fakeContracts) Get(_ context.Context, id string) (*contract.Contract, error) {
	if f.get == nil {
		return nil, errUnexpected
	}
	return f.get(id)
}

func (f *fakeContracts) Accept(_ context.Context, cid, vid string) (*contract.Contract, error) {
	if f.accept == nil {
		return nil, errUnexpected
	}
	return f.accept(cid, vid)
}

func (f *fakeContracts) AvailableFor(context.Context, string) ([]contract.Contract, error) {
	return f.list, nil
}

func (f *fakeContracts) Accepted(context.Context, string) ([]contract.Contract, error) {
	return f.list, nil
}

func (f *fakeContracts) Update(_ context.Context, cid, wid string, u contract.Update) (*contract.Contract, error) {
	if f.update == nil {
		return nil, errUnexpected
	}
	return f.update(cid, wid, u)
}

func (f *fakeContracts) Deactivate(_ context.Context, cid, wid string) (*contract.Contract, error) {
	if f.deactivate == nil {
		return nil, errUnexpected
	}
	return f.deactivate(cid, wid)
}

func (f *fakeContracts) Search(_ context.Context, q contract.SearchQuery) ([]contract.Contract, error) {
	if f.search == nil {
		return nil, errUnexpected
	}
	return f.search(q)
}

func (f *fakeContracts) ListByWholesaler(context.Context, string) ([]contract.Contract, error) {
	return f.list, nil
}

func (f *fakeContracts) EndingSoon(_ context.Context, wid string, window time.Duration) ([]contract.Contract, error) {
	if f.endingSoon == nil {
		return nil, errUnexpected
	}
	return f.endingSoon(wid, window)
}

type fakeOrders struct {
	mu       sync.Mutex
	placed   int
	place    func(vendorID, contractID string, qty int) (*order.Order, error)
	cancel   func(orderID, vendorID string) error
	deliver  func(orderID, wholesalerID string) (*order.Order, error)
	canPlace order.Eligibility
	canErr   error
	byID     map[string]*order.Order
	list     []order.Order
}

func (f *fakeOrders) CanPlaceOrder(context.Context, string, string) (order.Eligibility, error) {
	return f.canPlace, f.canErr
}

func (f *fakeOrders) PlaceOrder(_ context.Context, vid, cid string, qty int) (*order.Order, error) {
	f.mu.Lock()
	f.placed++
	f.mu.Unlock()
	if f.place == nil {
		return nil, errUnexpected
	}
	return f.place(vid, cid, qty)
}

func (f *fakeOrders) CanCancel(context.Context, string, string) (order.Eligibility, error) {
	return order.Eligibility{Allowed: true, Reason: order.ReasonAccepted, Remaining: 4}, nil
}

func (f *fakeOrders) Cancel(_ context.Context, oid, vid string) error {
	if f.cancel == nil {
		return errUnexpected
	}
	return f.cancel(oid, vid)
}

func (f *fakeOrders) MarkDelivered(_ context.Context, oid, wid string) (*order.Order, error) {
	if f.deliver == nil {
		return nil, errUnexpected
	}
	return f.deliver(oid, wid)
}

func (f *fakeOrders) Get(_ context.Context, id string) (*order.Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	o, ok := f.byID[id]
	if !ok {
		return nil, order.ErrNotFound
	}
	cp := *o
	return &cp, nil
}

func (f *fakeOrders) ListByVendor(context.Context, string) ([]order.Order, error) {
	return f.list, nil
}

func (f *fakeOrders) ActiveByVendor(context.Context, string) ([]order.Order, error) {
	return f.list, nil
}

type fakeDeliveries struct {
	byDate   func(wid string, date time.Time) ([]order.Order, error)
	manifest func(wid string, date time.Time) ([]byte, error)
	today    decimal.Decimal
	total    decimal.Decimal
}

func (f *fakeDeliveries) Today(context.Context, string) ([]order.Order, error) {
	return nil, nil
}

func (f *fakeDeliveries) ByDate(_ context.Context, wid string, date time.Time) ([]order.Order, error) {
	return f.byDate(wid, date)
}

func (f *fakeDeliveries) TodayEarnings(context.Context, string) (decimal.Decimal, error) {
	return f.today, nil
}

func (f *fakeDeliveries) TotalEarnings(context.Context, string) (decimal.Decimal, error) {
	return f.total, nil
}

func (f *fakeDeliveries) WholesalerStats(context.Context, string) (*delivery.WholesalerStats, error) {
	return &delivery.WholesalerStats{ActiveContracts: 2, TodayDeliveries: 3, TodayEarnings: f.today, TotalEarnings: f.total}, nil
}

func (f *fakeDeliveries) VendorStats(context.Context, string) (*delivery.VendorStats, error) {
	return &delivery.VendorStats{AcceptedContracts: 1, ActiveOrders: 2, TotalOrders: 5, FreeAttemptsLeft: 3, CancellationsLeft: 5}, nil
}

func (f *fakeDeliveries) ExportManifest(_ context.Context, wid string, date time.Time) ([]byte, error) {
	return f.manifest(wid, date)
}

type idemEntry struct {
	fingerprint string
	result      string
}

type fakeIdem struct {
	mu       sync.Mutex
	keys     map[string]idemEntry
	released []string
}

func (f *fakeIdem) Claim(_ context.Context, scope, key, fingerprint string) (idempotency.Claim, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	v, ok := f.keys[scope+":"+key]
	switch {
	case !ok:
		f.keys[scope+":"+key] = idemEntry{fingerprint: fingerprint}
		return idempotency.Claim{State: idempotency.StateClaimed}, nil
	case v.fingerprint != fingerprint:
		return idempotency.Claim{State: idempotency.StateMismatch}, nil
	case v.result == "":
		return idempotency.Claim{State: idempotency.StateInFlight}, nil
	default:
		return idempotency.Claim{State: idempotency.StateDone, Result: v.result}, nil
	}
}

func (f *fakeIdem) Complete(_ context.Context, scope, key, fingerprint, result string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.keys[scope+":"+key] = idemEntry{fingerprint: fingerprint, result: result}
	return nil
}

func (f *fakeIdem) Release(_ context.Context, scope, key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.keys, scope+":"+key)
	f.released = append(f.released, key)
	return nil
}

// --- harness ---

type env struct {
	keys       *fakeKeys
	contracts  *fakeContracts
	orders     *fakeOrders
	deliveries *fakeDeliveries
	idem       *fakeIdem
	srv        http.Handler
}

func newEnv() *env {
	e := &env{
		keys:       newFakeKeys(),
		contracts:  &fakeContracts{},
		orders:     &fakeOrders{byID: make(map[string]*order.Order)},
		deliveries: &fakeDeliveries{},
		idem:       &fakeIdem{keys: make(map[string]idemEntry)},
	}
	h := New(e.contracts, e.orders, e.deliveries, e.idem)
	h.now = func() time.Time { return testNow }
	e.srv = h.Router(NewAuthenticator(e.keys, testPepper))
	return e
}

func (e *env) do(method, path, key, body string, hdr ...string) *httptest.ResponseRecorder {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	if key != "" {
		req.Header.Set(httpmiddleware.APIKeyHeader, key)
	}
	for i := 0; i+1 < len(hdr); i += 2 {
		req.Header.Set(hdr[i], hdr[i+1])
	}
	w := httptest.NewRecorder()
	e.srv.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var m map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &m), w.Body.String())
	return m
}

func sampleContract() *contract.Contract {
	return &contract.Contract{
		ID:            "c1",
		WholesalerID:  "w1",
		ProductName:   "Tomatoes",
		DailyQuantity: 10,
		PricePerUnit:  decimal.RequireFromString("2.5"),
		DurationDays:  30,
		Status:        contract.StatusActive,
		EndDate:       testNow.AddDate(0, 0, 30),
		CreatedAt:     testNow,
		UpdatedAt:     testNow,
	}
}

func sampleOrder() *order.Order {
	return &order.Order{
		ID:           "o1",
		VendorID:     "v1",
		ContractID:   "c1",
		Quantity:     6,
		TotalAmount:  decimal.RequireFromString("15"),
		Status:       order.StatusPending,
		DeliveryDate: time.Date(2026, 3, 11, 0, 0, 0, 0, time.UTC),
		CreatedAt:    testNow,
		UpdatedAt:    testNow,
		WholesalerID: "w1",
		ProductName:  "Tomatoes",
	}
}

// --- tests ---

func TestAuth(t *testing.T) {
	e := newEnv()
	e.contracts.list = []contract.Contract{*sampleContract()}

	tests := []struct {
		name string
		path string
		key  string
		want int
	}{
		{name: "missing key", path: "/api/v1/vendor/contracts/available", want: http.StatusUnauthorized},
		{name: "unknown key", path: "/api/v1/vendor/contracts/available", key: "nope", want: http.StatusUnauthorized},
		{name: "vendor route", path: "/api/v1/vendor/contracts/available", key: vendorKey, want: http.StatusOK},
		{name: "wrong role", path: "/api/v1/wholesaler/contracts", key: vendorKey, want: http.StatusForbidden},
		{name: "wholesaler route", path: "/api/v1/wholesaler/contracts", key: wholesalerKey, want: http.StatusOK},
		{name: "vendor only", path: "/api/v1/vendor/stats", key: wholesalerKey, want: http.StatusForbidden},
		{name: "unknown route", path: "/api/v1/nope", key: vendorKey, want: http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := e.do(http.MethodGet, tt.path, tt.key, "")
			assert.Equal(t, tt.want, w.Code, w.Body.String())
		})
	}
}

func TestAuth_LookupFailure(t *testing.T) {
	e := newEnv()
	e.keys.err = errors.New("db down")

	w := e.do(http.MethodGet, "/api/v1/vendor/contracts/available", vendorKey, "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestCreateContract(t *testing.T) {
	e := newEnv()
	var got contract.Fields
	e.contracts.create = func(wid string, f contract.Fields) (*contract.Contract, error) {
		require.Equal(t, "w1", wid)
		got = f
		if err := f.Validate(); err != nil {
			return nil, err
		}
		return sampleContract(), nil
	}

	w := e.do(http.MethodPost, "/api/v1/wholesaler/contracts", wholesalerKey,
		`{"productName":"Tomatoes","dailyQuantity":10,"pricePerUnit":"2.50","durationDays":30,"extra":[1,2]}`)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	assert.Equal(t, "Tomatoes", got.ProductName)
	assert.True(t, got.PricePerUnit.Equal(decimal.RequireFromString("2.5")))
	assert.Contains(t, w.Body.String(), `"pricePerUnit":2.50`)

	body := decode(t, w)
	assert.Equal(t, "c1", body["id"])
	assert.Equal(t, "active", body["status"])
	assert.NotContains(t, body, "acceptedAt")

	w = e.do(http.MethodPost, "/api/v1/wholesaler/contracts", wholesalerKey,
		`{"productName":"","dailyQuantity":0,"pricePerUnit":1.5,"durationDays":30}`)
	require.Equal(t, http.StatusBadRequest, w.Code)
	body = decode(t, w)
	assert.Equal(t, "invalid contract fields", body["message"])
	assert.Contains(t, body["violations"], "productName")
	assert.Contains(t, body["violations"], "dailyQuantity")

	w = e.do(http.MethodPost, "/api/v1/wholesaler/contracts", wholesalerKey, `{"productName":`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestUpdateContract(t *testing.T) {
	e := newEnv()
	var got contract.Update
	e.contracts.update = func(cid, wid string, u contract.Update) (*contract.Contract, error) {
		got = u
		if cid != "c1" || wid != "w1" {
			return nil, nil
		}
		c := sampleContract()
		c.ProductName = *u.ProductName
		return c, nil
	}

	w := e.do(http.MethodPatch, "/api/v1/wholesaler/contracts/c1", wholesalerKey,
		`{"productName":"Cherry tomatoes","description":null}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "Cherry tomatoes", decode(t, w)["productName"])
	assert.Nil(t, got.Description)
	assert.Nil(t, got.PricePerUnit)

	w = e.do(http.MethodPatch, "/api/v1/wholesaler/contracts/other", wholesalerKey, `{"productName":"x"}`)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestDeactivateContract(t *testing.T) {
	e := newEnv()
	e.contracts.deactivate = func(cid, _ string) (*contract.Contract, error) {
		if cid != "c1" {
			return nil, nil
		}
		c := sampleContract()
		c.Status = contract.StatusInactive
		return c, nil
	}

	w := e.do(http.MethodDelete, "/api/v1/wholesaler/contracts/c1", wholesalerKey, "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "inactive", decode(t, w)["status"])

	w = e.do(http.MethodDelete, "/api/v1/wholesaler/contracts/c2", wholesalerKey, "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestAcceptContract(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
	}{
		{name: "accepted", status: http.StatusOK},
		{name: "duplicate", err: contract.ErrAlreadyAccepted, status: http.StatusConflict},
		{name: "closed", err: contract.ErrNotOpen, status: http.StatusUnprocessableEntity},
		{name: "missing", err: errors.Wrap(contract.ErrNotFound, "get contract"), status: http.StatusNotFound},
		{name: "storage", err: errors.New("conn reset"), status: http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := newEnv()
			e.contracts.accept = func(cid, vid string) (*contract.Contract, error) {
				assert.Equal(t, "c1", cid)
				assert.Equal(t, "v1", vid)
				if tt.err != nil {
					return nil, tt.err
				}
				c := sampleContract()
				c.AcceptedAt = &testNow
				return c, nil
			}

			w := e.do(http.MethodPost, "/api/v1/vendor/contracts/c1/accept", vendorKey, "")
			require.Equal(t, tt.status, w.Code, w.Body.String())
			body := decode(t, w)
			if tt.err == nil {
				assert.Equal(t, "2026-03-10T09:30:00Z", body["acceptedAt"])
				return
			}
			assert.EqualValues(t, tt.status, body["code"])
			if tt.status == http.StatusInternalServerError {
				assert.Equal(t, "internal error", body["message"])
			}
		})
	}
}

func TestSearchAndEndingSoon(t *testing.T) {
	e := newEnv()
	var q contract.SearchQuery
	e.contracts.search = func(sq contract.SearchQuery) ([]contract.Contract, error) {
		q = sq
		return []contract.Contract{*sampleContract()}, nil
	}
	var window time.Duration
	e.contracts.endingSoon = func(_ string, win time.Duration) ([]contract.Contract, error) {
		window = win
		return nil, nil
	}

	w := e.do(http.MethodGet, "/api/v1/contracts/search?q=+tomato+&location=Pune", vendorKey, "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, contract.SearchQuery{Text: "tomato", Location: "Pune"}, q)

	w = e.do(http.MethodGet, "/api/v1/wholesaler/contracts/ending-soon?days=3", wholesalerKey, "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "[]", w.Body.String())
	assert.Equal(t, 72*time.Hour, window)

	w = e.do(http.MethodGet, "/api/v1/wholesaler/contracts/ending-soon", wholesalerKey, "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Zero(t, window)

	w = e.do(http.MethodGet, "/api/v1/wholesaler/contracts/ending-soon?days=abc", wholesalerKey, "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestPlaceOrder(t *testing.T) {
	tests := []struct {
		name   string
		body   string
		err    error
		status int
		reason string
	}{
		{name: "placed", body: `{"contractId":"c1","quantity":6}`, status: http.StatusCreated},
		{name: "no contract id", body: `{"quantity":6}`, status: http.StatusBadRequest},
		{name: "bad quantity type", body: `{"contractId":"c1","quantity":"six"}`, status: http.StatusBadRequest},
		{name: "zero quantity", body: `{"contractId":"c1","quantity":0}`, err: order.ErrInvalidQuantity, status: http.StatusBadRequest},
		{
			name:   "quota exhausted",
			body:   `{"contractId":"c1","quantity":1}`,
			err:    &order.IneligibleError{Reason: order.ReasonNoFreeAttempts},
			status: http.StatusUnprocessableEntity,
			reason: "no_free_attempts",
		},
		{
			name:   "closed",
			body:   `{"contractId":"c1","quantity":1}`,
			err:    &order.IneligibleError{Reason: order.ReasonContractClosed},
			status: http.StatusUnprocessableEntity,
			reason: "contract_closed",
		},
		{name: "missing contract", body: `{"contractId":"zz","quantity":1}`, err: order.ErrContractNotFound, status: http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := newEnv()
			e.orders.place = func(vid, cid string, qty int) (*order.Order, error) {
				if tt.err != nil {
					return nil, tt.err
				}
				assert.Equal(t, "v1", vid)
				o := sampleOrder()
				o.Quantity = qty
				return o, nil
			}

			w := e.do(http.MethodPost, "/api/v1/vendor/orders", vendorKey, tt.body)
			require.Equal(t, tt.status, w.Code, w.Body.String())
			body := decode(t, w)
			if tt.status == http.StatusCreated {
				assert.Contains(t, w.Body.String(), `"totalAmount":15.00`)
				assert.Equal(t, "2026-03-11", body["deliveryDate"])
				assert.Equal(t, "pending", body["status"])
				return
			}
			if tt.reason != "" {
				assert.Equal(t, tt.reason, body["reason"])
			}
		})
	}
}

func TestPlaceOrder_Idempotent(t *testing.T) {
	e := newEnv()
	e.orders.place = func(_, _ string, _ int) (*order.Order, error) {
		o := sampleOrder()
		e.orders.byID[o.ID] = o
		return o, nil
	}
	const body = `{"contractId":"c1","quantity":6}`

	w := e.do(http.MethodPost, "/api/v1/vendor/orders", vendorKey, body, IdempotencyKeyHeader, "k1")
	require.Equal(t, http.StatusCreated, w.Code)
	assert.Empty(t, w.Header().Get(ReplayedHeader))

	w = e.do(http.MethodPost, "/api/v1/vendor/orders", vendorKey, body, IdempotencyKeyHeader, "k1")
	require.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, "true", w.Header().Get(ReplayedHeader))
	assert.Equal(t, "o1", decode(t, w)["id"])
	assert.Equal(t, 1, e.orders.placed)

	// The same key with another body is refused without placing.
	w = e.do(http.MethodPost, "/api/v1/vendor/orders", vendorKey, `{"contractId":"c1","quantity":7}`,
		IdempotencyKeyHeader, "k1")
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.Empty(t, w.Header().Get(ReplayedHeader))
	w = e.do(http.MethodPost, "/api/v1/vendor/orders", vendorKey, `{"contractId":"c2","quantity":6}`,
		IdempotencyKeyHeader, "k1")
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.Equal(t, 1, e.orders.placed)

	// A claim without a result is an in-flight duplicate.
	e.idem.keys["v1:k2"] = idemEntry{fingerprint: placeOrderRequest{ContractID: "c1", Quantity: 6}.fingerprint()}
	w = e.do(http.MethodPost, "/api/v1/vendor/orders", vendorKey, body, IdempotencyKeyHeader, "k2")
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, 1, e.orders.placed)

	w = e.do(http.MethodPost, "/api/v1/vendor/orders", vendorKey, body,
		IdempotencyKeyHeader, strings.Repeat("x", maxIdempotencyKey+1))
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestPlaceOrder_FailureReleasesKey(t *testing.T) {
	e := newEnv()
	e.orders.place = func(_, _ string, _ int) (*order.Order, error) {
		return nil, &order.IneligibleError{Reason: order.ReasonNoFreeAttempts}
	}

	w := e.do(http.MethodPost, "/api/v1/vendor/orders", vendorKey, `{"contractId":"c1","quantity":1}`,
		IdempotencyKeyHeader, "k1")
	require.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.Equal(t, []string{"k1"}, e.idem.released)
	assert.NotContains(t, e.idem.keys, "v1:k1")
}

func TestEligibility(t *testing.T) {
	e := newEnv()
	e.orders.canPlace = order.Eligibility{Allowed: true, Reason: order.ReasonFreeAttempt, Remaining: 2}

	w := e.do(http.MethodGet, "/api/v1/vendor/contracts/c1/eligibility", vendorKey, "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"allowed":true,"reason":"free_attempt","remaining":2}`, w.Body.String())

	e.orders.canErr = order.ErrContractNotFound
	w = e.do(http.MethodGet, "/api/v1/vendor/contracts/zz/eligibility", vendorKey, "")
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = e.do(http.MethodGet, "/api/v1/vendor/orders/o1/cancellable", vendorKey, "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"allowed":true,"reason":"accepted","remaining":4}`, w.Body.String())
}

func TestCancelOrder(t *testing.T) {
	e := newEnv()
	e.orders.byID["o1"] = sampleOrder()
	e.orders.cancel = func(oid, vid string) error {
		if oid != "o1" {
			return order.ErrNotFound
		}
		if vid != "v1" {
			return &order.IneligibleError{Reason: order.ReasonNotOwner}
		}
		e.orders.byID[oid].Status = order.StatusCancelled
		return nil
	}

	w := e.do(http.MethodPost, "/api/v1/vendor/orders/o1/cancel", vendorKey, "")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "cancelled", decode(t, w)["status"])

	w = e.do(http.MethodPost, "/api/v1/vendor/orders/o9/cancel", vendorKey, "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestMarkDelivered(t *testing.T) {
	e := newEnv()
	at := testNow
	e.orders.deliver = func(oid, wid string) (*order.Order, error) {
		if oid != "o1" || wid != "w1" {
			return nil, nil
		}
		o := sampleOrder()
		o.Status = order.StatusDelivered
		o.DeliveredAt = &at
		return o, nil
	}

	w := e.do(http.MethodPost, "/api/v1/wholesaler/orders/o1/deliver", wholesalerKey, "")
	require.Equal(t, http.StatusOK, w.Code)
	body := decode(t, w)
	assert.Equal(t, "delivered", body["status"])
	assert.Equal(t, "2026-03-10T09:30:00Z", body["deliveredAt"])

	w = e.do(http.MethodPost, "/api/v1/wholesaler/orders/o2/deliver", wholesalerKey, "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestGetOrder_Visibility(t *testing.T) {
	e := newEnv()
	e.orders.byID["o1"] = sampleOrder()
	e.keys.add("other-vendor", auth.Actor{ID: "v2", Role: auth.RoleVendor})
	e.keys.add("other-wholesaler", auth.Actor{ID: "w2", Role: auth.RoleWholesaler})

	assert.Equal(t, http.StatusOK, e.do(http.MethodGet, "/api/v1/orders/o1", vendorKey, "").Code)
	assert.Equal(t, http.StatusOK, e.do(http.MethodGet, "/api/v1/orders/o1", wholesalerKey, "").Code)
	assert.Equal(t, http.StatusNotFound, e.do(http.MethodGet, "/api/v1/orders/o1", "other-vendor", "").Code)
	assert.Equal(t, http.StatusNotFound, e.do(http.MethodGet, "/api/v1/orders/o1", "other-wholesaler", "").Code)
	assert.Equal(t, http.StatusNotFound, e.do(http.MethodGet, "/api/v1/orders/missing", vendorKey, "").Code)
}

func TestDeliveries(t *testing.T) {
	e := newEnv()
	var gotDate time.Time
	e.deliveries.byDate = func(_ string, d time.Time) ([]order.Order, error) {
		gotDate = d
		return []order.Order{*sampleOrder()}, nil
	}
	e.deliveries.manifest = func(_ string, d time.Time) ([]byte, error) {
		gotDate = d
		return []byte("PK\x03\x04"), nil
	}
	e.deliveries.today = decimal.RequireFromString("7.25")
	e.deliveries.total = decimal.RequireFromString("20")

	w := e.do(http.MethodGet, "/api/v1/wholesaler/deliveries?date=2026-03-11", wholesalerKey, "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, time.Date(2026, 3, 11, 0, 0, 0, 0, time.UTC), gotDate)

	for _, q := range []string{"", "?date=11-03-2026"} {
		w = e.do(http.MethodGet, "/api/v1/wholesaler/deliveries"+q, wholesalerKey, "")
		assert.Equal(t, http.StatusBadRequest, w.Code, q)
	}

	w = e.do(http.MethodGet, "/api/v1/wholesaler/deliveries/manifest", wholesalerKey, "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC), gotDate)
	assert.Equal(t, xlsxContentType, w.Header().Get("Content-Type"))
	assert.Equal(t, `attachment; filename="manifest-2026-03-10.xlsx"`, w.Header().Get("Content-Disposition"))
	assert.Equal(t, "PK\x03\x04", w.Body.String())

	w = e.do(http.MethodGet, "/api/v1/wholesaler/earnings", wholesalerKey, "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"today":7.25,"total":20.00}`, w.Body.String())

	w = e.do(http.MethodGet, "/api/v1/wholesaler/stats", wholesalerKey, "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"activeContracts":2,"todayDeliveries":3,"todayEarnings":7.25,"totalEarnings":20.00}`, w.Body.String())

	w = e.do(http.MethodGet, "/api/v1/vendor/stats", vendorKey, "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"acceptedContracts":1,"activeOrders":2,"totalOrders":5,"freeAttemptsLeft":3,"cancellationsLeft":5}`, w.Body.String())
}
