package kassasync

import (
	"encoding/json"
	"net/url"
	"strconv"
	"time"
)

// External KassaCloud schemas. These shapes belong to the provider and are
// decoded as-is; mapping into canonical records happens in mapper.go.

type KassaCategory struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	LastUpdate  string `json:"lastUpdate"`
}

type KassaPrice struct {
	Value        json.Number `json:"value"`
	IDSalesPoint string      `json:"idSalesPoint"`
}

type KassaProduct struct {
	ID          string       `json:"id"`
	IDCategory  string       `json:"idCategory"`
	Name        string       `json:"name"`
	Description string       `json:"description"`
	Sku         string       `json:"sku"`
	Prices      []KassaPrice `json:"prices"`
	TaxRate     json.Number  `json:"taxRate"`
	OnSale      *bool        `json:"onSale"`
	LastUpdate  string       `json:"lastUpdate"`
}

type KassaCustomer struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	Email      string `json:"email"`
	Phone      string `json:"phone"`
	FiscalCode string `json:"fiscalCode"`
	VatNumber  string `json:"vatNumber"`
	Address    string `json:"address"`
	City       string `json:"city"`
	ZipCode    string `json:"zipCode"`
	LastUpdate string `json:"lastUpdate"`
}

type KassaReceiptRow struct {
	ID          string      `json:"id"`
	IDProduct   string      `json:"idProduct"`
	Description string      `json:"description"`
	Quantity    json.Number `json:"quantity"`
	Price       json.Number `json:"price"`
	Total       json.Number `json:"total"`
}

type KassaReceipt struct {
	ID           string            `json:"id"`
	Number       string            `json:"number"`
	Datetime     string            `json:"datetime"`
	Amount       json.Number       `json:"amount"`
	Covers       int               `json:"covers"`
	IDSalesPoint string            `json:"idSalesPoint"`
	IDRoom       string            `json:"idRoom"`
	IDTable      string            `json:"idTable"`
	IDCustomer   string            `json:"idCustomer"`
	Rows         []KassaReceiptRow `json:"rows"`
	LastUpdate   string            `json:"lastUpdate"`
}

type KassaRoom struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	IDSalesPoint string `json:"idSalesPoint"`
}

type KassaTable struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	IDRoom       string `json:"idRoom"`
	IDSalesPoint string `json:"idSalesPoint"`
	Seats        int    `json:"seats"`
}

type KassaStockLevel struct {
	IDProduct string      `json:"idProduct"`
	Quantity  json.Number `json:"quantity"`
	Unit      string      `json:"unit"`
	Available *bool       `json:"available"`
}

type KassaSalesPoint struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	City string `json:"city"`
}

type KassaSoldByProduct struct {
	IDProduct   string      `json:"idProduct"`
	Description string      `json:"description"`
	Quantity    json.Number `json:"quantity"`
	Total       json.Number `json:"total"`
}

// Response envelopes. KassaCloud keys each collection by resource name; a
// missing key decodes to a nil slice and is treated as an empty collection.

type categoriesEnvelope struct {
	Categories []KassaCategory `json:"categories"`
	TotalCount int             `json:"totalCount"`
}

type productsEnvelope struct {
	Products []KassaProduct `json:"products"`
}

type customersEnvelope struct {
	Customers []KassaCustomer `json:"customers"`
}

type receiptsEnvelope struct {
	Receipts []KassaReceipt `json:"receipts"`
}

type roomsEnvelope struct {
	Rooms []KassaRoom `json:"rooms"`
}

type tablesEnvelope struct {
	Tables []KassaTable `json:"tables"`
}

type stockEnvelope struct {
	Stock []KassaStockLevel `json:"stock"`
}

type salesPointsEnvelope struct {
	SalesPoints []KassaSalesPoint `json:"salesPoints"`
}

type soldByProductEnvelope struct {
	Sold []KassaSoldByProduct `json:"sold"`
}

type authResponse struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   int64  `json:"expires_in"`
}

// CategoryPage is the paged categories response; totalCount lets callers page
// with start/limit.
type CategoryPage struct {
	Categories []KassaCategory
	TotalCount int
}

// DateParam carries a KassaCloud date filter. The provider accepts either an
// ISO date string or epoch milliseconds; whichever the caller supplies is
// passed through verbatim.
type DateParam struct {
	value string
}

func DateString(s string) DateParam { return DateParam{value: s} }

func DateMillis(ms int64) DateParam { return DateParam{value: strconv.FormatInt(ms, 10)} }

func DateOf(t time.Time) DateParam { return DateParam{value: t.Format("2006-01-02")} }

func (d DateParam) IsZero() bool { return d.value == "" }

func (d DateParam) String() string { return d.value }

// SortSpec is JSON-encoded into the "sorts" query parameter.
type SortSpec struct {
	Field string `json:"field"`
	Desc  bool   `json:"desc"`
}

// ListParams is caller-supplied offset pagination. The client performs exactly
// one request per call; it never auto-paginates.
type ListParams struct {
	Start int
	Limit int
}

func (p ListParams) apply(v url.Values) {
	if p.Start > 0 {
		v.Set("start", strconv.Itoa(p.Start))
	}
	if p.Limit > 0 {
		v.Set("limit", strconv.Itoa(p.Limit))
	}
}

type CategoryParams struct {
	ListParams
	LastUpdateFrom DateParam
}

func (p CategoryParams) values() url.Values {
	v := url.Values{}
	p.ListParams.apply(v)
	addDate(v, "lastUpdateFrom", p.LastUpdateFrom)
	return v
}

type ProductParams struct {
	ListParams
	IdsCategory []string
	Sorts       []SortSpec
}

func (p ProductParams) values() url.Values {
	v := url.Values{}
	p.ListParams.apply(v)
	addIds(v, "idsCategory", p.IdsCategory)
	addSorts(v, p.Sorts)
	return v
}

type CustomerParams struct {
	ListParams
	Sorts []SortSpec
}

func (p CustomerParams) values() url.Values {
	v := url.Values{}
	p.ListParams.apply(v)
	addSorts(v, p.Sorts)
	return v
}

type ReceiptParams struct {
	ListParams
	DatetimeFrom  DateParam
	DatetimeTo    DateParam
	IdsSalesPoint []string
}

func (p ReceiptParams) values() url.Values {
	v := url.Values{}
	p.ListParams.apply(v)
	addDate(v, "datetimeFrom", p.DatetimeFrom)
	addDate(v, "datetimeTo", p.DatetimeTo)
	addIds(v, "idsSalesPoint", p.IdsSalesPoint)
	return v
}

type RoomParams struct {
	IdSalesPoint string
}

func (p RoomParams) values() url.Values {
	v := url.Values{}
	if p.IdSalesPoint != "" {
		v.Set("idSalesPoint", p.IdSalesPoint)
	}
	return v
}

type TableParams struct {
	IdSalesPoint string
	IdRoom       string
}

func (p TableParams) values() url.Values {
	v := url.Values{}
	if p.IdSalesPoint != "" {
		v.Set("idSalesPoint", p.IdSalesPoint)
	}
	if p.IdRoom != "" {
		v.Set("idRoom", p.IdRoom)
	}
	return v
}

type StockParams struct {
	IdsProduct []string
}

func (p StockParams) values() url.Values {
	v := url.Values{}
	addIds(v, "idsProduct", p.IdsProduct)
	return v
}

type SoldByProductParams struct {
	From         DateParam
	To           DateParam
	IdSalesPoint string
}

func (p SoldByProductParams) values() url.Values {
	v := url.Values{}
	addDate(v, "from", p.From)
	addDate(v, "to", p.To)
	if p.IdSalesPoint != "" {
		v.Set("idSalesPoint", p.IdSalesPoint)
	}
	return v
}

func addIds(v url.Values, key string, ids []string) {
	// Array parameters are repeated per key, not comma-joined.
	for _, id := range ids {
		if id != "" {
			v.Add(key, id)
		}
	}
}

func addSorts(v url.Values, sorts []SortSpec) {
	if len(sorts) == 0 {
		return
	}
	b, err := json.Marshal(sorts)
	if err != nil {
		return
	}
	v.Set("sorts", string(b))
}

func addDate(v url.Values, key string, d DateParam) {
	if !d.IsZero() {
		v.Set(key, d.String())
	}
}
