package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rs/zerolog"
)

const storefrontCatalog = `{"result":[
	{"productId":"cola-promo","name":"콜라","price":1000,"stock":4,"promotion":{"name":"탄산2+1","buyQuantity":2,"getQuantity":1}},
	{"productId":"water","name":"물","price":500,"stock":5}
]}`

func writeFile(t *testing.T, name, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return path
}

func TestRunPrintsOfferAndReceipt(t *testing.T) {
	catalogPath := writeFile(t, "catalog.json", storefrontCatalog)
	cartPath := writeFile(t, "cart.json", `{"items":[{"productId":"cola-promo","quantity":2},{"productId":"water","quantity":1}]}`)

	var out bytes.Buffer
	if err := run([]string{"-catalog", catalogPath, "-cart", cartPath}, &out, zerolog.Nop()); err != nil {
		t.Fatalf("run: %v", err)
	}
	text := out.String()
	if !strings.Contains(text, "현재 콜라은(는) 1개를 무료로 더 받을 수 있습니다.") {
		t.Fatalf("missing offer line:\n%s", text)
	}
	if !strings.Contains(text, "===========W 편의점=============") {
		t.Fatalf("missing receipt header:\n%s", text)
	}
	if !strings.Contains(text, "결제금액                      2,500원") {
		t.Fatalf("unexpected total:\n%s", text)
	}
}

func TestRunResolveAcceptsOffer(t *testing.T) {
	catalogPath := writeFile(t, "catalog.json", `[{"productId":"cola-promo","name":"콜라","price":1000,"stock":4,"promotion":{"buyQuantity":2,"freeQuantity":1}}]`)
	cartPath := writeFile(t, "cart.json", `{"items":[{"productId":"cola-promo","quantity":2}],"options":{"acceptAddMore":true}}`)

	var out bytes.Buffer
	if err := run([]string{"-catalog", catalogPath, "-cart", cartPath, "-resolve"}, &out, zerolog.Nop()); err != nil {
		t.Fatalf("run: %v", err)
	}
	text := out.String()
	if !strings.Contains(text, "=============증정===============") {
		t.Fatalf("expected free section:\n%s", text)
	}
	if !strings.Contains(text, "행사할인                     -1,000원") {
		t.Fatalf("expected promotion discount:\n%s", text)
	}
}

func TestRunResolveDeclined(t *testing.T) {
	catalogPath := writeFile(t, "catalog.json", storefrontCatalog)
	cartPath := writeFile(t, "cart.json", `{"items":[{"productId":"cola-promo","quantity":4}],"options":{"acceptNonPromoPurchase":false}}`)

	err := run([]string{"-catalog", catalogPath, "-cart", cartPath, "-resolve"}, &bytes.Buffer{}, zerolog.Nop())
	if err == nil || !strings.Contains(err.Error(), "declined") {
		t.Fatalf("expected declined error, got %v", err)
	}
}

func TestRunRequiresFiles(t *testing.T) {
	if err := run(nil, &bytes.Buffer{}, zerolog.Nop()); err == nil {
		t.Fatalf("expected error without flags")
	}
}
