package kassasync

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/ristobook/ristobook_backend/config"
	"github.com/sirupsen/logrus"
)

// posAPI is what the orchestrator needs from the KassaCloud client. Tests
// substitute a stub; *Client is the production implementation.
type posAPI interface {
	GetCategories(ctx context.Context, p CategoryParams, apiKey string) (CategoryPage, error)
	GetProducts(ctx context.Context, p ProductParams, apiKey string) ([]KassaProduct, error)
	GetCustomers(ctx context.Context, p CustomerParams, apiKey string) ([]KassaCustomer, error)
	GetReceipts(ctx context.Context, p ReceiptParams, apiKey string) ([]KassaReceipt, error)
	GetRooms(ctx context.Context, p RoomParams, apiKey string) ([]KassaRoom, error)
	GetTables(ctx context.Context, p TableParams, apiKey string) ([]KassaTable, error)
	GetStock(ctx context.Context, p StockParams, apiKey string) ([]KassaStockLevel, error)
	GetSalesPoints(ctx context.Context, apiKey string) ([]KassaSalesPoint, error)
	GetSoldByProductReport(ctx context.Context, p SoldByProductParams, apiKey string) ([]KassaSoldByProduct, error)
}

// ImportResult is the uniform outcome of every orchestrated import. Count is
// records successfully written, not records fetched. Warnings carry mapping
// skips and isolated per-record upsert failures; Err is set when the fetch
// failed or when nothing succeeded while something failed.
type ImportResult struct {
	Count    int      `json:"count"`
	Err      error    `json:"-"`
	Message  string   `json:"message,omitempty"`
	Warnings []string `json:"warnings,omitempty"`
}

type Importer struct {
	api        posAPI
	store      Store
	log        *logrus.Logger
	windowDays int
}

func NewImporter(api posAPI, store Store) *Importer {
	windowDays := 3
	if v := strings.TrimSpace(os.Getenv("KASSA_RECEIPT_WINDOW_DAYS")); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			windowDays = n
		}
	}
	return &Importer{
		api:        api,
		store:      store,
		log:        config.GetLogger(),
		windowDays: windowDays,
	}
}

// batch aggregates one import's outcome. Every record's upsert is attempted
// independently so one bad record cannot lose an otherwise successful fetch.
type batch struct {
	resource string
	count    int
	failures int
	warnings []string
}

func (b *batch) skipped(log *logrus.Logger, skip *MappingSkip) {
	b.warnings = append(b.warnings, skip.String())
	log.WithFields(logrus.Fields{
		"resource":    b.resource,
		"entity_type": skip.EntityType,
		"external_id": skip.ExternalId,
	}).Info("record skipped: " + skip.Reason)
}

func (b *batch) upsertFailed(log *logrus.Logger, externalID string, err error) {
	b.failures++
	b.warnings = append(b.warnings, fmt.Sprintf("%s %s upsert failed: %v", b.resource, externalID, err))
	log.WithFields(logrus.Fields{
		"resource":    b.resource,
		"external_id": externalID,
	}).Warn("upsert failed: " + err.Error())
}

func (b *batch) result() ImportResult {
	res := ImportResult{
		Count:    b.count,
		Message:  fmt.Sprintf("imported %d %s", b.count, b.resource),
		Warnings: b.warnings,
	}
	if b.count == 0 && b.failures > 0 {
		res.Err = fmt.Errorf("no %s imported: all %d upserts failed", b.resource, b.failures)
	}
	return res
}

func fetchFailed(err error) ImportResult {
	return ImportResult{Count: 0, Err: err}
}

func (imp *Importer) ImportCategories(ctx context.Context, restaurantID string, p CategoryParams, apiKey string) ImportResult {
	page, err := imp.api.GetCategories(ctx, p, apiKey)
	if err != nil {
		return fetchFailed(err)
	}

	b := batch{resource: "categories"}
	for _, src := range page.Categories {
		rec, skip := mapCategory(src, restaurantID)
		if skip != nil {
			b.skipped(imp.log, skip)
			continue
		}
		if err := imp.store.UpsertCategory(ctx, rec); err != nil {
			b.upsertFailed(imp.log, rec.ID, err)
			continue
		}
		b.count++
	}
	return b.result()
}

func (imp *Importer) ImportProducts(ctx context.Context, restaurantID string, p ProductParams, apiKey string) ImportResult {
	categoryIDs, err := imp.store.CategoryIDs(ctx, restaurantID)
	if err != nil {
		return fetchFailed(err)
	}

	products, err := imp.api.GetProducts(ctx, p, apiKey)
	if err != nil {
		return fetchFailed(err)
	}

	b := batch{resource: "products"}
	for _, src := range products {
		rec, skip := mapProduct(src, restaurantID, categoryIDs, productPolicy)
		if skip != nil {
			b.skipped(imp.log, skip)
			continue
		}
		if err := imp.store.UpsertProduct(ctx, rec); err != nil {
			b.upsertFailed(imp.log, rec.ID, err)
			continue
		}
		b.count++
	}
	return b.result()
}

func (imp *Importer) ImportCustomers(ctx context.Context, restaurantID string, p CustomerParams, apiKey string) ImportResult {
	customers, err := imp.api.GetCustomers(ctx, p, apiKey)
	if err != nil {
		return fetchFailed(err)
	}

	b := batch{resource: "customers"}
	for _, src := range customers {
		rec, skip := mapCustomer(src, restaurantID)
		if skip != nil {
			b.skipped(imp.log, skip)
			continue
		}
		if err := imp.store.UpsertCustomer(ctx, rec); err != nil {
			b.upsertFailed(imp.log, rec.ID, err)
			continue
		}
		b.count++
	}
	return b.result()
}

func (imp *Importer) ImportRooms(ctx context.Context, restaurantID string, p RoomParams, apiKey string) ImportResult {
	rooms, err := imp.api.GetRooms(ctx, p, apiKey)
	if err != nil {
		return fetchFailed(err)
	}

	b := batch{resource: "rooms"}
	for _, src := range rooms {
		rec, skip := mapRoom(src, restaurantID, p.IdSalesPoint)
		if skip != nil {
			b.skipped(imp.log, skip)
			continue
		}
		if err := imp.store.UpsertRoom(ctx, rec); err != nil {
			b.upsertFailed(imp.log, rec.ID, err)
			continue
		}
		b.count++
	}
	return b.result()
}

func (imp *Importer) ImportTables(ctx context.Context, restaurantID string, p TableParams, apiKey string) ImportResult {
	tables, err := imp.api.GetTables(ctx, p, apiKey)
	if err != nil {
		return fetchFailed(err)
	}

	b := batch{resource: "tables"}
	for _, src := range tables {
		rec, skip := mapTable(src, restaurantID, p.IdSalesPoint)
		if skip != nil {
			b.skipped(imp.log, skip)
			continue
		}
		if err := imp.store.UpsertTable(ctx, rec); err != nil {
			b.upsertFailed(imp.log, rec.ID, err)
			continue
		}
		b.count++
	}
	return b.result()
}

func (imp *Importer) ImportStock(ctx context.Context, restaurantID string, p StockParams, apiKey string) ImportResult {
	stock, err := imp.api.GetStock(ctx, p, apiKey)
	if err != nil {
		return fetchFailed(err)
	}

	b := batch{resource: "stock"}
	for _, src := range stock {
		rec, skip := mapStockLevel(src, restaurantID, stockPolicy)
		if skip != nil {
			b.skipped(imp.log, skip)
			continue
		}
		if err := imp.store.UpsertStockLevel(ctx, rec); err != nil {
			b.upsertFailed(imp.log, rec.ID, err)
			continue
		}
		b.count++
	}
	return b.result()
}

// ImportReceipts imports a single date window. Callers with ranges wider than
// the provider's limit go through ImportReceiptsChunked.
func (imp *Importer) ImportReceipts(ctx context.Context, restaurantID string, p ReceiptParams, apiKey string) ImportResult {
	receipts, err := imp.api.GetReceipts(ctx, p, apiKey)
	if err != nil {
		return fetchFailed(err)
	}

	b := batch{resource: "receipts"}
	for _, src := range receipts {
		rec, rows, skip := mapReceipt(src, restaurantID)
		if skip != nil {
			b.skipped(imp.log, skip)
			continue
		}
		if err := imp.store.UpsertReceipt(ctx, rec, rows); err != nil {
			b.upsertFailed(imp.log, rec.ID, err)
			continue
		}
		b.count++
	}
	return b.result()
}

func (imp *Importer) ImportSoldByProduct(ctx context.Context, restaurantID string, p SoldByProductParams, apiKey string) ImportResult {
	sold, err := imp.api.GetSoldByProductReport(ctx, p, apiKey)
	if err != nil {
		return fetchFailed(err)
	}

	b := batch{resource: "sales"}
	for _, src := range sold {
		rec, skip := mapProductSale(src, restaurantID, p.From.String(), p.To.String(), salesPolicy)
		if skip != nil {
			b.skipped(imp.log, skip)
			continue
		}
		if err := imp.store.UpsertProductSale(ctx, rec); err != nil {
			b.upsertFailed(imp.log, rec.ProductId, err)
			continue
		}
		b.count++
	}
	return b.result()
}
