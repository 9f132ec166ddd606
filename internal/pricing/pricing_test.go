package pricing

import "testing"

func TestCalculatePercentDiscount(t *testing.T) {
	quote, err := Calculate([]Line{
		{UnitPriceCents: 2500, Qty: 4},
	}, &Rule{Kind: KindPercent, Percent: 20})
	if err != nil {
		t.Fatalf("calculate: %v", err)
	}
	if quote.SubtotalCents != 10000 {
		t.Fatalf("expected subtotal 10000, got %d", quote.SubtotalCents)
	}
	if quote.DiscountCents != 2000 {
		t.Fatalf("expected discount 2000, got %d", quote.DiscountCents)
	}
	if quote.PayableCents != 8000 {
		t.Fatalf("expected payable 8000, got %d", quote.PayableCents)
	}
}

func TestCalculateFixedDiscountClampedToSubtotal(t *testing.T) {
	quote, err := Calculate([]Line{
		{UnitPriceCents: 500, Qty: 1},
	}, &Rule{Kind: KindFixed, ValueCents: 1000})
	if err != nil {
		t.Fatalf("calculate: %v", err)
	}
	if quote.DiscountCents != 500 {
		t.Fatalf("expected discount clamped to 500, got %d", quote.DiscountCents)
	}
	if quote.PayableCents != 0 {
		t.Fatalf("expected payable 0, got %d", quote.PayableCents)
	}
}

func TestCalculatePercentFloorsResult(t *testing.T) {
	// 333 * 10% = 33.3 => floor to 33.
	quote, err := Calculate([]Line{{UnitPriceCents: 333, Qty: 1}}, &Rule{Kind: KindPercent, Percent: 10})
	if err != nil {
		t.Fatalf("calculate: %v", err)
	}
	if quote.DiscountCents != 33 {
		t.Fatalf("expected floored discount 33, got %d", quote.DiscountCents)
	}
}

func TestCalculateClampsOutOfRangePercent(t *testing.T) {
	quote, err := Calculate([]Line{{UnitPriceCents: 1000, Qty: 1}}, &Rule{Kind: KindPercent, Percent: 250})
	if err != nil {
		t.Fatalf("calculate: %v", err)
	}
	if quote.DiscountCents != 1000 {
		t.Fatalf("expected percent clamped to 100, got discount %d", quote.DiscountCents)
	}
}

func TestCalculateNoRule(t *testing.T) {
	quote, err := Calculate([]Line{
		{UnitPriceCents: 1200, Qty: 2},
		{UnitPriceCents: 800, Qty: 1},
	}, nil)
	if err != nil {
		t.Fatalf("calculate: %v", err)
	}
	if quote.SubtotalCents != 3200 || quote.DiscountCents != 0 || quote.PayableCents != 3200 {
		t.Fatalf("unexpected quote %+v", quote)
	}
}

func TestCalculateRejectsNegativeInputs(t *testing.T) {
	if _, err := Calculate([]Line{{UnitPriceCents: -1, Qty: 1}}, nil); err == nil {
		t.Fatalf("expected error for negative price")
	}
	if _, err := Calculate([]Line{{UnitPriceCents: 100, Qty: -2}}, nil); err == nil {
		t.Fatalf("expected error for negative quantity")
	}
	if _, err := Calculate([]Line{{UnitPriceCents: 100, Qty: 1}}, &Rule{Kind: "mystery"}); err == nil {
		t.Fatalf("expected error for unknown rule kind")
	}
}
