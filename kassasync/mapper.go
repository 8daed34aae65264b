package kassasync

import (
	"encoding/json"
	"strconv"
	"strings"
	"time"

	"github.com/ristobook/ristobook_backend/models"
	"github.com/ristobook/ristobook_backend/utils"
	"github.com/shopspring/decimal"
)

// Mapping from KassaCloud shapes to canonical records. All functions here are
// pure: same record, same lookup table, same policy -> same output.

// FieldPolicy decides what a mapper does when a numeric field is missing or
// non-numeric. Policies are configuration per resource, not branches inside
// the mappers.
type FieldPolicy int

const (
	// PolicyDefaultZero imports the record with the field set to zero.
	PolicyDefaultZero FieldPolicy = iota
	// PolicyReject skips the record.
	PolicyReject
)

type MappingPolicy struct {
	PriceMissing    FieldPolicy
	QuantityMissing FieldPolicy
}

// Unpriced products still import for catalog completeness; quantities in
// stock and sales figures are meaningless when absent, so those reject.
var (
	productPolicy = MappingPolicy{PriceMissing: PolicyDefaultZero}
	stockPolicy   = MappingPolicy{QuantityMissing: PolicyReject}
	salesPolicy   = MappingPolicy{QuantityMissing: PolicyReject}
)

func mapCategory(src KassaCategory, restaurantID string) (*models.PosCategory, *MappingSkip) {
	id := strings.TrimSpace(src.ID)
	if id == "" {
		return nil, &MappingSkip{EntityType: "category", Reason: "id missing"}
	}

	name := strings.TrimSpace(src.Name)
	if name == "" {
		name = "Category " + id
	}

	return &models.PosCategory{
		ID:           id,
		RestaurantId: restaurantID,
		Name:         name,
		Description:  strings.TrimSpace(src.Description),
	}, nil
}

// mapProduct resolves the product's category through categoryIDs (external id
// -> internal id; identity in the current design). A product whose category is
// not in the map is skipped, never inserted with a dangling reference.
func mapProduct(src KassaProduct, restaurantID string, categoryIDs map[string]string, pol MappingPolicy) (*models.PosProduct, *MappingSkip) {
	id := strings.TrimSpace(src.ID)
	if id == "" {
		return nil, &MappingSkip{EntityType: "product", Reason: "id missing"}
	}

	extCategory := strings.TrimSpace(src.IDCategory)
	categoryID, ok := categoryIDs[extCategory]
	if !ok {
		return nil, &MappingSkip{EntityType: "product", ExternalId: id, Reason: "unknown category " + extCategory}
	}

	// The first price-list entry is authoritative.
	price := decimal.Zero
	priced := false
	if len(src.Prices) > 0 {
		if d, ok := decimalFromNumber(src.Prices[0].Value); ok {
			price = d
			priced = true
		}
	}
	if !priced && pol.PriceMissing == PolicyReject {
		return nil, &MappingSkip{EntityType: "product", ExternalId: id, Reason: "price missing or not numeric"}
	}

	name := strings.TrimSpace(src.Name)
	if name == "" {
		name = "Product " + id
	}

	taxRate, _ := decimalFromNumber(src.TaxRate)

	onSale := true
	if src.OnSale != nil {
		onSale = *src.OnSale
	}

	return &models.PosProduct{
		ID:           id,
		RestaurantId: restaurantID,
		CategoryId:   categoryID,
		Name:         name,
		Description:  strings.TrimSpace(src.Description),
		Sku:          strings.TrimSpace(src.Sku),
		Price:        price,
		TaxRate:      taxRate,
		OnSale:       onSale,
	}, nil
}

func mapCustomer(src KassaCustomer, restaurantID string) (*models.PosCustomer, *MappingSkip) {
	id := strings.TrimSpace(src.ID)
	if id == "" {
		return nil, &MappingSkip{EntityType: "customer", Reason: "id missing"}
	}

	name := strings.TrimSpace(src.Name)
	if name == "" {
		name = "Customer " + id
	}

	// Malformed emails are dropped rather than stored; the POS field is
	// free-form.
	email := strings.TrimSpace(src.Email)
	if email != "" && !utils.IsValidEmail(email) {
		email = ""
	}

	return &models.PosCustomer{
		ID:           id,
		RestaurantId: restaurantID,
		Name:         name,
		Email:        email,
		Phone:        utils.NormalizePhoneNumber(src.Phone, utils.DefaultPhoneRegion),
		FiscalCode:   strings.TrimSpace(src.FiscalCode),
		VatNumber:    strings.TrimSpace(src.VatNumber),
		Address:      strings.TrimSpace(src.Address),
		City:         strings.TrimSpace(src.City),
		ZipCode:      strings.TrimSpace(src.ZipCode),
	}, nil
}

func mapRoom(src KassaRoom, restaurantID string, salesPointID string) (*models.PosRoom, *MappingSkip) {
	id := strings.TrimSpace(src.ID)
	if id == "" {
		return nil, &MappingSkip{EntityType: "room", Reason: "id missing"}
	}

	sp := strings.TrimSpace(src.IDSalesPoint)
	if sp == "" {
		sp = salesPointID
	}

	return &models.PosRoom{
		ID:           id,
		RestaurantId: restaurantID,
		SalesPointId: sp,
		Name:         strings.TrimSpace(src.Name),
	}, nil
}

func mapTable(src KassaTable, restaurantID string, salesPointID string) (*models.PosTable, *MappingSkip) {
	id := strings.TrimSpace(src.ID)
	if id == "" {
		return nil, &MappingSkip{EntityType: "table", Reason: "id missing"}
	}

	sp := strings.TrimSpace(src.IDSalesPoint)
	if sp == "" {
		sp = salesPointID
	}

	return &models.PosTable{
		ID:           id,
		RestaurantId: restaurantID,
		SalesPointId: sp,
		RoomId:       strings.TrimSpace(src.IDRoom),
		Name:         strings.TrimSpace(src.Name),
		Seats:        src.Seats,
	}, nil
}

func mapReceipt(src KassaReceipt, restaurantID string) (*models.PosReceipt, []models.PosReceiptRow, *MappingSkip) {
	id := strings.TrimSpace(src.ID)
	if id == "" {
		return nil, nil, &MappingSkip{EntityType: "receipt", Reason: "id missing"}
	}

	date, ok := parseKassaTime(src.Datetime)
	if !ok {
		return nil, nil, &MappingSkip{EntityType: "receipt", ExternalId: id, Reason: "invalid datetime " + src.Datetime}
	}

	total, _ := decimalFromNumber(src.Amount)

	receipt := &models.PosReceipt{
		ID:           id,
		RestaurantId: restaurantID,
		Number:       strings.TrimSpace(src.Number),
		Date:         date,
		Total:        total,
		Covers:       src.Covers,
		SalesPointId: strings.TrimSpace(src.IDSalesPoint),
		RoomId:       strings.TrimSpace(src.IDRoom),
		TableId:      strings.TrimSpace(src.IDTable),
		CustomerId:   strings.TrimSpace(src.IDCustomer),
	}

	rows := make([]models.PosReceiptRow, 0, len(src.Rows))
	for i, r := range src.Rows {
		rowID := strings.TrimSpace(r.ID)
		if rowID == "" {
			// Rows keep a stable synthetic id so a re-import upserts in place.
			rowID = id + "/" + strconv.Itoa(i)
		}
		qty, _ := decimalFromNumber(r.Quantity)
		price, _ := decimalFromNumber(r.Price)
		rowTotal, _ := decimalFromNumber(r.Total)
		rows = append(rows, models.PosReceiptRow{
			ID:           rowID,
			RestaurantId: restaurantID,
			ReceiptId:    id,
			ProductId:    strings.TrimSpace(r.IDProduct),
			Description:  strings.TrimSpace(r.Description),
			Quantity:     qty,
			Price:        price,
			Total:        rowTotal,
		})
	}

	return receipt, rows, nil
}

func mapStockLevel(src KassaStockLevel, restaurantID string, pol MappingPolicy) (*models.PosStockLevel, *MappingSkip) {
	id := strings.TrimSpace(src.IDProduct)
	if id == "" {
		return nil, &MappingSkip{EntityType: "stock", Reason: "product id missing"}
	}

	qty, ok := decimalFromNumber(src.Quantity)
	if !ok && pol.QuantityMissing == PolicyReject {
		return nil, &MappingSkip{EntityType: "stock", ExternalId: id, Reason: "quantity missing or not numeric"}
	}

	available := true
	if src.Available != nil {
		available = *src.Available
	}

	return &models.PosStockLevel{
		ID:           id,
		RestaurantId: restaurantID,
		Quantity:     qty,
		Unit:         strings.TrimSpace(src.Unit),
		Available:    available,
	}, nil
}

func mapProductSale(src KassaSoldByProduct, restaurantID string, dateFrom string, dateTo string, pol MappingPolicy) (*models.PosProductSale, *MappingSkip) {
	id := strings.TrimSpace(src.IDProduct)
	if id == "" {
		return nil, &MappingSkip{EntityType: "sale", Reason: "product id missing"}
	}

	qty, qtyOK := decimalFromNumber(src.Quantity)
	total, totalOK := decimalFromNumber(src.Total)
	if (!qtyOK || !totalOK) && pol.QuantityMissing == PolicyReject {
		return nil, &MappingSkip{EntityType: "sale", ExternalId: id, Reason: "quantity or total missing or not numeric"}
	}

	return &models.PosProductSale{
		ProductId:    id,
		RestaurantId: restaurantID,
		DateFrom:     dateFrom,
		DateTo:       dateTo,
		Description:  strings.TrimSpace(src.Description),
		Quantity:     qty,
		Total:        total,
	}, nil
}

func decimalFromNumber(num json.Number) (decimal.Decimal, bool) {
	if num.String() == "" {
		return decimal.Zero, false
	}
	d, err := decimal.NewFromString(num.String())
	if err != nil {
		return decimal.Zero, false
	}
	return d, true
}

var kassaTimeLayouts = []string{
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006-01-02",
}

func parseKassaTime(value string) (time.Time, bool) {
	value = strings.TrimSpace(value)
	if value == "" {
		return time.Time{}, false
	}
	for _, layout := range kassaTimeLayouts {
		if t, err := time.Parse(layout, value); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}
