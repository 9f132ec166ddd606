// Package pricing computes checkout totals. It is pure arithmetic: no I/O,
// no clock, no store access. Amounts are integer minor units throughout.
package pricing

import "fmt"

const (
	KindPercent = "percent"
	KindFixed   = "fixed"
)

// Line is one priced cart entry.
type Line struct {
	UnitPriceCents int64
	Qty            int
}

// Rule is a resolved discount rule. Percent is clamped to [0,100] by the
// calculator regardless of what the caller stored.
type Rule struct {
	Kind       string
	Percent    int
	ValueCents int64
}

type Quote struct {
	SubtotalCents int64
	DiscountCents int64
	PayableCents  int64
}

// Calculate prices the given lines under an optional discount rule. The
// discount never exceeds the subtotal and the payable amount never goes
// below zero. Negative prices or quantities are caller errors.
func Calculate(lines []Line, rule *Rule) (Quote, error) {
	var subtotal int64
	for i, line := range lines {
		if line.UnitPriceCents < 0 {
			return Quote{}, fmt.Errorf("line %d: negative unit price", i)
		}
		if line.Qty < 0 {
			return Quote{}, fmt.Errorf("line %d: negative quantity", i)
		}
		subtotal += line.UnitPriceCents * int64(line.Qty)
	}

	var discount int64
	if rule != nil {
		switch rule.Kind {
		case KindPercent:
			p := rule.Percent
			if p < 0 {
				p = 0
			}
			if p > 100 {
				p = 100
			}
			discount = subtotal * int64(p) / 100
		case KindFixed:
			discount = rule.ValueCents
			if discount < 0 {
				discount = 0
			}
		default:
			return Quote{}, fmt.Errorf("unknown discount kind %q", rule.Kind)
		}
		if discount > subtotal {
			discount = subtotal
		}
	}

	payable := subtotal - discount
	if payable < 0 {
		payable = 0
	}

	return Quote{
		SubtotalCents: subtotal,
		DiscountCents: discount,
		PayableCents:  payable,
	}, nil
}
