package kassasync

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/ristobook/ristobook_backend/config"
	"github.com/ristobook/ristobook_backend/models"
)

// stubAPI serves canned responses and counts calls. A nil error func means
// success with the canned data.
type stubAPI struct {
	categories   []KassaCategory
	products     []KassaProduct
	customers    []KassaCustomer
	receipts     func(p ReceiptParams) ([]KassaReceipt, error)
	rooms        []KassaRoom
	tables       []KassaTable
	stock        []KassaStockLevel
	sold         []KassaSoldByProduct
	fetchErr     error
	receiptCalls []ReceiptParams
	roomParams   []RoomParams
	calls        int
}

func (s *stubAPI) GetCategories(ctx context.Context, p CategoryParams, apiKey string) (CategoryPage, error) {
	s.calls++
	if s.fetchErr != nil {
		return CategoryPage{}, s.fetchErr
	}
	return CategoryPage{Categories: s.categories, TotalCount: len(s.categories)}, nil
}

func (s *stubAPI) GetProducts(ctx context.Context, p ProductParams, apiKey string) ([]KassaProduct, error) {
	s.calls++
	return s.products, s.fetchErr
}

func (s *stubAPI) GetCustomers(ctx context.Context, p CustomerParams, apiKey string) ([]KassaCustomer, error) {
	s.calls++
	return s.customers, s.fetchErr
}

func (s *stubAPI) GetReceipts(ctx context.Context, p ReceiptParams, apiKey string) ([]KassaReceipt, error) {
	s.calls++
	s.receiptCalls = append(s.receiptCalls, p)
	if s.receipts != nil {
		return s.receipts(p)
	}
	return nil, s.fetchErr
}

func (s *stubAPI) GetRooms(ctx context.Context, p RoomParams, apiKey string) ([]KassaRoom, error) {
	s.calls++
	s.roomParams = append(s.roomParams, p)
	return s.rooms, s.fetchErr
}

func (s *stubAPI) GetTables(ctx context.Context, p TableParams, apiKey string) ([]KassaTable, error) {
	s.calls++
	return s.tables, s.fetchErr
}

func (s *stubAPI) GetStock(ctx context.Context, p StockParams, apiKey string) ([]KassaStockLevel, error) {
	s.calls++
	return s.stock, s.fetchErr
}

func (s *stubAPI) GetSalesPoints(ctx context.Context, apiKey string) ([]KassaSalesPoint, error) {
	s.calls++
	return nil, s.fetchErr
}

func (s *stubAPI) GetSoldByProductReport(ctx context.Context, p SoldByProductParams, apiKey string) ([]KassaSoldByProduct, error) {
	s.calls++
	return s.sold, s.fetchErr
}

// memStore keeps records in maps keyed by (restaurant, id). failIDs makes
// individual upserts fail to exercise per-record isolation.
type memStore struct {
	categories map[string]*models.PosCategory
	products   map[string]*models.PosProduct
	customers  map[string]*models.PosCustomer
	receipts   map[string]*models.PosReceipt
	rows       map[string][]models.PosReceiptRow
	failIDs    map[string]bool
}

func newMemStore() *memStore {
	return &memStore{
		categories: map[string]*models.PosCategory{},
		products:   map[string]*models.PosProduct{},
		customers:  map[string]*models.PosCustomer{},
		receipts:   map[string]*models.PosReceipt{},
		rows:       map[string][]models.PosReceiptRow{},
		failIDs:    map[string]bool{},
	}
}

func (m *memStore) key(restaurantID, id string) string { return restaurantID + "|" + id }

func (m *memStore) CategoryIDs(ctx context.Context, restaurantID string) (map[string]string, error) {
	out := map[string]string{}
	for _, c := range m.categories {
		if c.RestaurantId == restaurantID {
			out[c.ID] = c.ID
		}
	}
	return out, nil
}

func (m *memStore) UpsertCategory(ctx context.Context, rec *models.PosCategory) error {
	if m.failIDs[rec.ID] {
		return errors.New("constraint violation")
	}
	m.categories[m.key(rec.RestaurantId, rec.ID)] = rec
	return nil
}

func (m *memStore) UpsertProduct(ctx context.Context, rec *models.PosProduct) error {
	if m.failIDs[rec.ID] {
		return errors.New("constraint violation")
	}
	m.products[m.key(rec.RestaurantId, rec.ID)] = rec
	return nil
}

func (m *memStore) UpsertCustomer(ctx context.Context, rec *models.PosCustomer) error {
	if m.failIDs[rec.ID] {
		return errors.New("constraint violation")
	}
	m.customers[m.key(rec.RestaurantId, rec.ID)] = rec
	return nil
}

func (m *memStore) UpsertRoom(ctx context.Context, rec *models.PosRoom) error       { return nil }
func (m *memStore) UpsertTable(ctx context.Context, rec *models.PosTable) error     { return nil }
func (m *memStore) UpsertStockLevel(ctx context.Context, rec *models.PosStockLevel) error {
	return nil
}
func (m *memStore) UpsertProductSale(ctx context.Context, rec *models.PosProductSale) error {
	return nil
}

func (m *memStore) UpsertReceipt(ctx context.Context, rec *models.PosReceipt, rows []models.PosReceiptRow) error {
	if m.failIDs[rec.ID] {
		return errors.New("constraint violation")
	}
	m.receipts[m.key(rec.RestaurantId, rec.ID)] = rec
	m.rows[m.key(rec.RestaurantId, rec.ID)] = rows
	return nil
}

func newTestImporter(api posAPI, store Store) *Importer {
	return &Importer{api: api, store: store, log: config.GetLogger(), windowDays: 3}
}

func TestImportCategories(t *testing.T) {
	api := &stubAPI{categories: []KassaCategory{
		{ID: "5", Name: "Starters"},
		{ID: "6", Name: "Mains"},
	}}
	store := newMemStore()

	res := newTestImporter(api, store).ImportCategories(context.Background(), "r1", CategoryParams{}, "key")
	if res.Err != nil {
		t.Fatalf("unexpected error: %v", res.Err)
	}
	if res.Count != 2 {
		t.Fatalf("expected count 2, got %d", res.Count)
	}
	if store.categories["r1|5"] == nil || store.categories["r1|6"] == nil {
		t.Fatalf("expected both categories stored, got %v", store.categories)
	}
}

func TestImportCategories_EmptyIsSuccess(t *testing.T) {
	res := newTestImporter(&stubAPI{}, newMemStore()).ImportCategories(context.Background(), "r1", CategoryParams{}, "key")
	if res.Err != nil {
		t.Fatalf("empty collection must not error: %v", res.Err)
	}
	if res.Count != 0 {
		t.Fatalf("expected count 0, got %d", res.Count)
	}
}

func TestImportCategories_FetchFailure(t *testing.T) {
	api := &stubAPI{fetchErr: errors.New("connection refused")}
	res := newTestImporter(api, newMemStore()).ImportCategories(context.Background(), "r1", CategoryParams{}, "key")
	if res.Err == nil {
		t.Fatalf("expected error on fetch failure")
	}
	if res.Count != 0 {
		t.Fatalf("expected count 0, got %d", res.Count)
	}
}

func TestImportCategories_RerunUpdatesInPlace(t *testing.T) {
	store := newMemStore()
	api := &stubAPI{categories: []KassaCategory{
		{ID: "5", Name: "Starters"},
		{ID: "6", Name: "Mains"},
	}}
	imp := newTestImporter(api, store)

	if res := imp.ImportCategories(context.Background(), "r1", CategoryParams{}, "key"); res.Err != nil {
		t.Fatalf("first run: %v", res.Err)
	}

	// The POS renamed a category; the next run carries the same ids.
	api.categories = []KassaCategory{
		{ID: "5", Name: "Antipasti"},
		{ID: "6", Name: "Mains"},
	}
	res := imp.ImportCategories(context.Background(), "r1", CategoryParams{}, "key")
	if res.Err != nil {
		t.Fatalf("second run: %v", res.Err)
	}
	if res.Count != 2 {
		t.Fatalf("expected count 2 on rerun, got %d", res.Count)
	}
	if len(store.categories) != 2 {
		t.Fatalf("rerun must update in place, got %d records", len(store.categories))
	}
	if got := store.categories["r1|5"].Name; got != "Antipasti" {
		t.Fatalf("expected renamed category, got %q", got)
	}
}

func TestImportReceipts_RerunReplacesRows(t *testing.T) {
	store := newMemStore()
	receipt := KassaReceipt{
		ID:       "rc1",
		Datetime: "2024-01-05 13:30:00",
		Amount:   json.Number("25"),
		Rows: []KassaReceiptRow{
			{ID: "row1", IDProduct: "p1", Quantity: json.Number("1"), Total: json.Number("10")},
			{ID: "row2", IDProduct: "p2", Quantity: json.Number("1"), Total: json.Number("15")},
		},
	}
	api := &stubAPI{}
	api.receipts = func(p ReceiptParams) ([]KassaReceipt, error) { return []KassaReceipt{receipt}, nil }
	imp := newTestImporter(api, store)

	if res := imp.ImportReceipts(context.Background(), "r1", ReceiptParams{}, "key"); res.Err != nil {
		t.Fatalf("first run: %v", res.Err)
	}
	if len(store.rows["r1|rc1"]) != 2 {
		t.Fatalf("expected 2 rows after first run, got %d", len(store.rows["r1|rc1"]))
	}

	// The POS voided a row and adjusted the total before the next run.
	receipt.Amount = json.Number("10")
	receipt.Rows = receipt.Rows[:1]
	res := imp.ImportReceipts(context.Background(), "r1", ReceiptParams{}, "key")
	if res.Err != nil {
		t.Fatalf("second run: %v", res.Err)
	}
	if len(store.receipts) != 1 {
		t.Fatalf("rerun must not duplicate the receipt, got %d", len(store.receipts))
	}
	if got := store.receipts["r1|rc1"].Total.String(); got != "10" {
		t.Fatalf("expected adjusted total 10, got %s", got)
	}
	rows := store.rows["r1|rc1"]
	if len(rows) != 1 || rows[0].ID != "row1" {
		t.Fatalf("stale rows must be replaced wholesale, got %+v", rows)
	}
}

func TestImportProducts_SkipsAndIsolatesFailures(t *testing.T) {
	store := newMemStore()
	store.categories["r1|5"] = &models.PosCategory{ID: "5", RestaurantId: "r1"}
	store.failIDs["p3"] = true

	api := &stubAPI{products: []KassaProduct{
		{ID: "p1", IDCategory: "5", Name: "Good", Prices: []KassaPrice{{Value: json.Number("8")}}},
		{ID: "p2", IDCategory: "999", Name: "Orphan"},
		{ID: "p3", IDCategory: "5", Name: "Cursed"},
		{ID: "p4", IDCategory: "5", Name: "Also good"},
	}}

	res := newTestImporter(api, store).ImportProducts(context.Background(), "r1", ProductParams{}, "key")
	if res.Err != nil {
		t.Fatalf("partial import must not error when records succeed: %v", res.Err)
	}
	if res.Count != 2 {
		t.Fatalf("expected 2 imported, got %d", res.Count)
	}
	if len(res.Warnings) != 2 {
		t.Fatalf("expected 2 warnings, got %v", res.Warnings)
	}
	if store.products["r1|p1"] == nil || store.products["r1|p4"] == nil {
		t.Fatalf("expected surviving products stored")
	}
	if store.products["r1|p2"] != nil || store.products["r1|p3"] != nil {
		t.Fatalf("skipped and failed products must not be stored")
	}
}

func TestImportProducts_AllFailuresIsError(t *testing.T) {
	store := newMemStore()
	store.categories["r1|5"] = &models.PosCategory{ID: "5", RestaurantId: "r1"}
	store.failIDs["p1"] = true

	api := &stubAPI{products: []KassaProduct{{ID: "p1", IDCategory: "5"}}}
	res := newTestImporter(api, store).ImportProducts(context.Background(), "r1", ProductParams{}, "key")
	if res.Err == nil {
		t.Fatalf("expected error when every upsert fails")
	}
	if res.Count != 0 {
		t.Fatalf("expected count 0, got %d", res.Count)
	}
}

func TestImportReceiptsChunked_PartialProgress(t *testing.T) {
	api := &stubAPI{}
	api.receipts = func(p ReceiptParams) ([]KassaReceipt, error) {
		// Second window fails, later windows must not be attempted.
		if p.DatetimeFrom.String() == "2024-01-04" {
			return nil, errors.New("gateway timeout")
		}
		return []KassaReceipt{{
			ID:       "rc-" + p.DatetimeFrom.String(),
			Datetime: p.DatetimeFrom.String(),
			Amount:   json.Number("10"),
		}}, nil
	}
	store := newMemStore()
	imp := newTestImporter(api, store)

	res := imp.ImportReceiptsChunked(context.Background(), "r1", day("2024-01-01"), day("2024-01-10"), "", "key")
	if res.Err == nil {
		t.Fatalf("expected sticky error from failed window")
	}
	if res.Count != 1 {
		t.Fatalf("expected 1 receipt from the first window, got %d", res.Count)
	}
	if len(api.receiptCalls) != 2 {
		t.Fatalf("expected fetching to stop after the failed window, got %d calls", len(api.receiptCalls))
	}
	if store.receipts["r1|rc-2024-01-01"] == nil {
		t.Fatalf("first window's receipt must be persisted")
	}
}

func TestImportReceiptsChunked_AllWindows(t *testing.T) {
	api := &stubAPI{}
	api.receipts = func(p ReceiptParams) ([]KassaReceipt, error) {
		return []KassaReceipt{{
			ID:       "rc-" + p.DatetimeFrom.String(),
			Datetime: p.DatetimeFrom.String(),
		}}, nil
	}
	imp := newTestImporter(api, newMemStore())

	res := imp.ImportReceiptsChunked(context.Background(), "r1", day("2024-01-01"), day("2024-01-10"), "sp1", "key")
	if res.Err != nil {
		t.Fatalf("unexpected error: %v", res.Err)
	}
	if res.Count != 4 {
		t.Fatalf("expected 4 receipts across 4 windows, got %d", res.Count)
	}
	for _, p := range api.receiptCalls {
		if len(p.IdsSalesPoint) != 1 || p.IdsSalesPoint[0] != "sp1" {
			t.Fatalf("expected sales point filter on every window, got %+v", p)
		}
	}
}

func TestImportReceiptsChunked_CancelledContext(t *testing.T) {
	api := &stubAPI{}
	api.receipts = func(p ReceiptParams) ([]KassaReceipt, error) { return nil, nil }
	imp := newTestImporter(api, newMemStore())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res := imp.ImportReceiptsChunked(ctx, "r1", day("2024-01-01"), day("2024-01-10"), "", "key")
	if res.Err == nil || !errors.Is(res.Err, context.Canceled) {
		t.Fatalf("expected context error, got %v", res.Err)
	}
	if len(api.receiptCalls) != 0 {
		t.Fatalf("expected no fetches after cancellation, got %d", len(api.receiptCalls))
	}
}

func TestImportCustomers_SkipWarningMentionsRecord(t *testing.T) {
	api := &stubAPI{customers: []KassaCustomer{
		{ID: "c1", Name: "Mario"},
		{Name: "No id"},
	}}
	res := newTestImporter(api, newMemStore()).ImportCustomers(context.Background(), "r1", CustomerParams{}, "key")
	if res.Err != nil {
		t.Fatalf("unexpected error: %v", res.Err)
	}
	if res.Count != 1 {
		t.Fatalf("expected 1 imported, got %d", res.Count)
	}
	if len(res.Warnings) != 1 || !strings.Contains(res.Warnings[0], "customer") {
		t.Fatalf("expected a customer skip warning, got %v", res.Warnings)
	}
}
