package utils

import (
	"context"
	"testing"
)

func TestRestaurantIdContextRoundTrip(t *testing.T) {
	ctx := context.Background()
	if id, ok := GetRestaurantIdFromContext(ctx); ok {
		t.Fatalf("empty context must not carry a restaurant id, got %q", id)
	}

	ctx = SetRestaurantIdInContext(ctx, "r1")
	id, ok := GetRestaurantIdFromContext(ctx)
	if !ok || id != "r1" {
		t.Fatalf("expected r1, got %q (ok=%v)", id, ok)
	}
}
