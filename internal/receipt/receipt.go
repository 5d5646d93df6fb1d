package receipt

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/dustin/go-humanize"

	"github.com/noah-isme/pos-checkout/internal/cart"
	"github.com/noah-isme/pos-checkout/internal/pricing"
	"github.com/noah-isme/pos-checkout/internal/promotion"
)

// Column contract for purchased and free rows.
const (
	NameWidth   = 12
	QtyWidth    = 2
	AmountWidth = 10

	nameGutter = "  "
	qtyGutter  = "   "
)

const (
	headerBanner = "===========W 편의점============="
	columnHeader = "상품명          수량      금액"
	freeBanner   = "=============증정==============="
	divider      = "=============================="

	grossLabel      = "총구매액        "
	promotionLabel  = "행사할인                     -"
	membershipLabel = "멤버십할인                   -"
	finalLabel      = "결제금액                      "
)

// Line is a purchased row.
type Line struct {
	Name      string `json:"name"`
	Qty       int    `json:"qty"`
	UnitPrice int64  `json:"unitPrice"`
	Amount    int64  `json:"amount"`
}

// FreeLine is a promotional giveaway row; it carries no price.
type FreeLine struct {
	Name string `json:"name"`
	Qty  int    `json:"qty"`
}

// Receipt is everything printed on a receipt.
type Receipt struct {
	Lines   []Line          `json:"lines"`
	Free    []FreeLine      `json:"free,omitempty"`
	Summary pricing.Summary `json:"summary"`
}

// Build assembles a receipt from cart lines, free items and a summary.
func Build(items []cart.Item, free []promotion.FreeItem, summary pricing.Summary) Receipt {
	r := Receipt{
		Lines:   make([]Line, 0, len(items)),
		Summary: summary,
	}
	for _, it := range items {
		r.Lines = append(r.Lines, Line{Name: it.Name, Qty: it.Quantity, UnitPrice: it.Price, Amount: it.Subtotal()})
	}
	for _, f := range free {
		r.Free = append(r.Free, FreeLine{Name: f.Name, Qty: f.Quantity})
	}
	return r
}

// Render produces the fixed-width receipt text. Rows are joined with "\n" and
// there is no trailing newline.
func Render(r Receipt) string {
	rows := make([]string, 0, len(r.Lines)+len(r.Free)+8)
	rows = append(rows, headerBanner, columnHeader)
	for _, l := range r.Lines {
		rows = append(rows, purchasedRow(l.Name, l.Qty, l.Amount))
	}
	if len(r.Free) > 0 {
		rows = append(rows, freeBanner)
		for _, f := range r.Free {
			rows = append(rows, fitName(f.Name)+nameGutter+padLeft(fmt.Sprint(f.Qty), QtyWidth))
		}
	}
	s := r.Summary
	rows = append(rows,
		divider,
		grossLabel+padLeft(fmt.Sprint(s.TotalQuantity), QtyWidth)+qtyGutter+padLeft(Money(s.OriginalTotalAmount), AmountWidth),
		promotionLabel+Money(s.PromotionDiscountAmount),
		membershipLabel+Money(s.MembershipDiscountAmount),
		finalLabel+Money(s.FinalTotalAmount),
	)
	return strings.Join(rows, "\n")
}

// Money formats an amount with thousands separators and the currency suffix.
func Money(amount int64) string {
	return humanize.Comma(amount) + "원"
}

func purchasedRow(name string, qty int, amount int64) string {
	return fitName(name) + nameGutter + padLeft(fmt.Sprint(qty), QtyWidth) + qtyGutter + padLeft(Money(amount), AmountWidth)
}

// fitName truncates or pads name to NameWidth characters.
func fitName(name string) string {
	if utf8.RuneCountInString(name) > NameWidth {
		runes := []rune(name)
		name = string(runes[:NameWidth])
	}
	return padRight(name, NameWidth)
}

func padRight(s string, width int) string {
	if n := utf8.RuneCountInString(s); n < width {
		return s + strings.Repeat(" ", width-n)
	}
	return s
}

func padLeft(s string, width int) string {
	if n := utf8.RuneCountInString(s); n < width {
		return strings.Repeat(" ", width-n) + s
	}
	return s
}
