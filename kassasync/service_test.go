package kassasync

import (
	"context"
	"errors"
	"testing"
)

func newTestService(api posAPI, store Store) *Service {
	return NewService(newTestImporter(api, store))
}

func TestSync_ValidatesBeforeAnyNetworkCall(t *testing.T) {
	cases := []struct {
		name string
		req  SyncRequest
	}{
		{"missing restaurant", SyncRequest{Resource: ResourceCategories}},
		{"missing resource", SyncRequest{RestaurantId: "r1"}},
		{"unknown resource", SyncRequest{Resource: "menus", RestaurantId: "r1"}},
		{"receipts without dates", SyncRequest{Resource: ResourceReceipts, RestaurantId: "r1"}},
		{"receipts bad date", SyncRequest{Resource: ResourceReceipts, RestaurantId: "r1", DateFrom: "01/05/2024", DateTo: "2024-01-10"}},
		{"receipts inverted range", SyncRequest{Resource: ResourceReceipts, RestaurantId: "r1", DateFrom: "2024-01-10", DateTo: "2024-01-01"}},
		{"sales without dates", SyncRequest{Resource: ResourceSales, RestaurantId: "r1"}},
	}

	for _, tc := range cases {
		api := &stubAPI{}
		res := newTestService(api, newMemStore()).Sync(context.Background(), tc.req)
		if res.Err == nil {
			t.Fatalf("%s: expected validation error", tc.name)
		}
		var vErr *ValidationError
		if !errors.As(res.Err, &vErr) {
			t.Fatalf("%s: expected ValidationError, got %T: %v", tc.name, res.Err, res.Err)
		}
		if api.calls != 0 {
			t.Fatalf("%s: expected zero api calls before validation, got %d", tc.name, api.calls)
		}
	}
}

func TestSync_ValidationErrorFieldIsDeterministic(t *testing.T) {
	// Both required fields are missing; the reported field must not depend on
	// map iteration order.
	for i := 0; i < 20; i++ {
		res := newTestService(&stubAPI{}, newMemStore()).Sync(context.Background(), SyncRequest{})
		var vErr *ValidationError
		if !errors.As(res.Err, &vErr) {
			t.Fatalf("expected ValidationError, got %v", res.Err)
		}
		if vErr.Field != "Resource" {
			t.Fatalf("expected field Resource on every run, got %q", vErr.Field)
		}
	}
}

func TestSync_MissingDateReportsTheAbsentField(t *testing.T) {
	cases := []struct {
		name  string
		req   SyncRequest
		field string
	}{
		{"missing date_to", SyncRequest{Resource: ResourceReceipts, RestaurantId: "r1", DateFrom: "2024-01-01"}, "date_to"},
		{"missing date_from", SyncRequest{Resource: ResourceReceipts, RestaurantId: "r1", DateTo: "2024-01-10"}, "date_from"},
	}

	for _, tc := range cases {
		res := newTestService(&stubAPI{}, newMemStore()).Sync(context.Background(), tc.req)
		var vErr *ValidationError
		if !errors.As(res.Err, &vErr) {
			t.Fatalf("%s: expected ValidationError, got %v", tc.name, res.Err)
		}
		if vErr.Field != tc.field {
			t.Fatalf("%s: expected field %q, got %q", tc.name, tc.field, vErr.Field)
		}
	}
}

func TestSync_DispatchesCategories(t *testing.T) {
	api := &stubAPI{categories: []KassaCategory{{ID: "5", Name: "Starters"}}}
	res := newTestService(api, newMemStore()).Sync(context.Background(), SyncRequest{
		Resource:     ResourceCategories,
		RestaurantId: "r1",
	})
	if res.Err != nil {
		t.Fatalf("unexpected error: %v", res.Err)
	}
	if res.Count != 1 {
		t.Fatalf("expected 1 category, got %d", res.Count)
	}
}

func TestSync_RoomsDefaultSalesPoint(t *testing.T) {
	api := &stubAPI{rooms: []KassaRoom{{ID: "rm1", Name: "Sala"}}}
	res := newTestService(api, newMemStore()).Sync(context.Background(), SyncRequest{
		Resource:     ResourceRooms,
		RestaurantId: "r1",
	})
	if res.Err != nil {
		t.Fatalf("unexpected error: %v", res.Err)
	}
	if len(api.roomParams) != 1 || api.roomParams[0].IdSalesPoint != "1" {
		t.Fatalf("expected default sales point 1, got %+v", api.roomParams)
	}
}

func TestSync_RoomsExplicitSalesPoint(t *testing.T) {
	api := &stubAPI{rooms: []KassaRoom{{ID: "rm1"}}}
	res := newTestService(api, newMemStore()).Sync(context.Background(), SyncRequest{
		Resource:     ResourceRooms,
		RestaurantId: "r1",
		SalesPointId: "7",
	})
	if res.Err != nil {
		t.Fatalf("unexpected error: %v", res.Err)
	}
	if api.roomParams[0].IdSalesPoint != "7" {
		t.Fatalf("expected sales point 7, got %+v", api.roomParams)
	}
}

func TestSync_ReceiptsRunChunked(t *testing.T) {
	api := &stubAPI{}
	api.receipts = func(p ReceiptParams) ([]KassaReceipt, error) { return nil, nil }
	res := newTestService(api, newMemStore()).Sync(context.Background(), SyncRequest{
		Resource:     ResourceReceipts,
		RestaurantId: "r1",
		DateFrom:     "2024-01-01",
		DateTo:       "2024-01-10",
	})
	if res.Err != nil {
		t.Fatalf("unexpected error: %v", res.Err)
	}
	// Ten days at a three-day window size means four fetches.
	if len(api.receiptCalls) != 4 {
		t.Fatalf("expected 4 chunked fetches, got %d", len(api.receiptCalls))
	}
}

func TestSync_SalesPassesRange(t *testing.T) {
	api := &stubAPI{sold: []KassaSoldByProduct{}}
	res := newTestService(api, newMemStore()).Sync(context.Background(), SyncRequest{
		Resource:     ResourceSales,
		RestaurantId: "r1",
		DateFrom:     "2024-01-01",
		DateTo:       "2024-01-31",
	})
	if res.Err != nil {
		t.Fatalf("unexpected error: %v", res.Err)
	}
	if res.Count != 0 {
		t.Fatalf("expected count 0 for empty report, got %d", res.Count)
	}
}

func TestResourcesRoundTrip(t *testing.T) {
	res := SyncResources{Products: true, Receipts: true}
	decoded := DecodeResources(EncodeResources(res))
	// Products force categories on.
	if !decoded.Categories || !decoded.Products || !decoded.Receipts {
		t.Fatalf("unexpected resources after round trip: %+v", decoded)
	}
	if decoded.Stock || decoded.Rooms {
		t.Fatalf("unset resources must stay off: %+v", decoded)
	}

	if def := DecodeResources(nil); !def.Categories || !def.Products || !def.Customers || !def.Receipts {
		t.Fatalf("nil settings must decode to defaults, got %+v", def)
	}
	if def := DecodeResources([]byte("{not json")); !def.Categories {
		t.Fatalf("garbage settings must decode to defaults, got %+v", def)
	}
}
