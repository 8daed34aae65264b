package kassasync

import (
	"context"
	"sort"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/ristobook/ristobook_backend/config"
	"github.com/ristobook/ristobook_backend/utils"
	"github.com/sirupsen/logrus"
)

const (
	ResourceCategories = "categories"
	ResourceProducts   = "products"
	ResourceCustomers  = "customers"
	ResourceReceipts   = "receipts"
	ResourceSales      = "sales"
	ResourceRooms      = "rooms"
	ResourceTables     = "tables"
	ResourceStock      = "stock"
)

const dateLayout = "2006-01-02"

// SyncRequest is one synchronous import request against a single resource.
// APIKey overrides the KASSA_API_KEY environment credential when set, which
// lets one deployment serve restaurants with separate KassaCloud accounts.
type SyncRequest struct {
	Resource     string `json:"resource" validate:"required"`
	RestaurantId string `json:"restaurant_id" validate:"required"`
	DateFrom     string `json:"date_from,omitempty"`
	DateTo       string `json:"date_to,omitempty"`
	SalesPointId string `json:"sales_point_id,omitempty"`
	APIKey       string `json:"-"`
	Start        int    `json:"start,omitempty"`
	Limit        int    `json:"limit,omitempty"`
}

// Service validates requests and dispatches them to the importer. All
// validation happens before any network or database call.
type Service struct {
	importer *Importer
	validate *validator.Validate
	log      *logrus.Logger
}

func NewService(importer *Importer) *Service {
	return &Service{
		importer: importer,
		validate: validator.New(),
		log:      config.GetLogger(),
	}
}

func (s *Service) Sync(ctx context.Context, req SyncRequest) ImportResult {
	if err := s.validate.Struct(req); err != nil {
		fields := utils.ProcessValidationErrors(err)
		if len(fields) == 0 {
			return ImportResult{Err: &ValidationError{Field: "request", Reason: err.Error()}}
		}
		// Report the first field in name order so the same request always
		// yields the same error.
		names := make([]string, 0, len(fields))
		for name := range fields {
			names = append(names, name)
		}
		sort.Strings(names)
		return ImportResult{Err: &ValidationError{Field: names[0], Reason: fields[names[0]]}}
	}

	switch req.Resource {
	case ResourceCategories:
		p := CategoryParams{}
		p.Start = req.Start
		p.Limit = req.Limit
		return s.importer.ImportCategories(ctx, req.RestaurantId, p, req.APIKey)

	case ResourceProducts:
		p := ProductParams{}
		p.Start = req.Start
		p.Limit = req.Limit
		return s.importer.ImportProducts(ctx, req.RestaurantId, p, req.APIKey)

	case ResourceCustomers:
		p := CustomerParams{}
		p.Start = req.Start
		p.Limit = req.Limit
		return s.importer.ImportCustomers(ctx, req.RestaurantId, p, req.APIKey)

	case ResourceReceipts:
		from, to, err := s.dateRange(req)
		if err != nil {
			return ImportResult{Err: err}
		}
		return s.importer.ImportReceiptsChunked(ctx, req.RestaurantId, from, to, req.SalesPointId, req.APIKey)

	case ResourceSales:
		from, to, err := s.dateRange(req)
		if err != nil {
			return ImportResult{Err: err}
		}
		p := SoldByProductParams{
			From:         DateOf(from),
			To:           DateOf(to),
			IdSalesPoint: req.SalesPointId,
		}
		return s.importer.ImportSoldByProduct(ctx, req.RestaurantId, p, req.APIKey)

	case ResourceRooms:
		p := RoomParams{IdSalesPoint: s.salesPoint(req)}
		return s.importer.ImportRooms(ctx, req.RestaurantId, p, req.APIKey)

	case ResourceTables:
		p := TableParams{IdSalesPoint: s.salesPoint(req)}
		return s.importer.ImportTables(ctx, req.RestaurantId, p, req.APIKey)

	case ResourceStock:
		return s.importer.ImportStock(ctx, req.RestaurantId, StockParams{}, req.APIKey)

	default:
		return ImportResult{Err: &ValidationError{Field: "resource", Reason: "unknown resource " + req.Resource}}
	}
}

// dateRange parses and orders the request dates. Receipts and sales require
// both ends of the range.
func (s *Service) dateRange(req SyncRequest) (time.Time, time.Time, error) {
	if req.DateFrom == "" {
		return time.Time{}, time.Time{}, &ValidationError{Field: "date_from", Reason: "date_from and date_to are required for " + req.Resource}
	}
	if req.DateTo == "" {
		return time.Time{}, time.Time{}, &ValidationError{Field: "date_to", Reason: "date_from and date_to are required for " + req.Resource}
	}
	from, err := time.Parse(dateLayout, req.DateFrom)
	if err != nil {
		return time.Time{}, time.Time{}, &ValidationError{Field: "date_from", Reason: "invalid date " + req.DateFrom}
	}
	to, err := time.Parse(dateLayout, req.DateTo)
	if err != nil {
		return time.Time{}, time.Time{}, &ValidationError{Field: "date_to", Reason: "invalid date " + req.DateTo}
	}
	if from.After(to) {
		return time.Time{}, time.Time{}, &ValidationError{Field: "date_from", Reason: "date_from is after date_to"}
	}
	return from, to, nil
}

// salesPoint falls back to the provider's first sales point when the request
// does not name one. Rooms and tables always belong to a sales point.
func (s *Service) salesPoint(req SyncRequest) string {
	if req.SalesPointId != "" {
		return req.SalesPointId
	}
	s.log.WithFields(logrus.Fields{
		"restaurant_id": req.RestaurantId,
		"resource":      req.Resource,
	}).Warn("no sales point given, defaulting to 1")
	return "1"
}
