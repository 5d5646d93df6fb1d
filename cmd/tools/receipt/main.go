// Command receipt prices a cart offline against a saved catalog and prints
// the promotion findings and the receipt.
//
//	receipt -catalog products.json -cart cart.json [-resolve] [-json]
//
// The catalog file is either a storefront /api/products response or a plain
// array of products. The cart file is an evaluate request body.
package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"

	"github.com/noah-isme/pos-checkout/internal/catalog"
	"github.com/noah-isme/pos-checkout/internal/checkout"
	"github.com/noah-isme/pos-checkout/internal/obs"
	"github.com/noah-isme/pos-checkout/internal/pricing"
	"github.com/noah-isme/pos-checkout/internal/receipt"
)

func main() {
	_ = godotenv.Load()
	logger := obs.NewLogger("console", "info")
	if err := run(os.Args[1:], os.Stdout, logger); err != nil {
		logger.Fatal().Err(err).Msg("receipt")
	}
}

func run(args []string, out io.Writer, logger zerolog.Logger) error {
	fs := flag.NewFlagSet("receipt", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	catalogPath := fs.String("catalog", "", "catalog JSON file")
	cartPath := fs.String("cart", "", "cart JSON file ({\"items\":[...],\"options\":{...}})")
	rateBps := fs.Int("rate-bps", 3000, "membership rate in basis points")
	maxDiscount := fs.Int64("max-discount", 8000, "membership discount cap, 0 for none")
	resolve := fs.Bool("resolve", false, "apply the cart's advisory answers before printing")
	asJSON := fs.Bool("json", false, "print the evaluation as JSON instead of text")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *catalogPath == "" || *cartPath == "" {
		return errors.New("both -catalog and -cart are required")
	}

	products, err := loadCatalog(*catalogPath)
	if err != nil {
		return err
	}
	var req checkout.Request
	if err := readJSON(*cartPath, &req); err != nil {
		return fmt.Errorf("read cart: %w", err)
	}

	idx := catalog.NewIndex(products)
	ledger, rejected := checkout.BuildLedger(idx, req.Items)
	for _, r := range rejected {
		logger.Warn().Str("product", r.ProductID).Int("requested", r.Requested).Int("accepted", r.Accepted).Str("reason", r.Reason).Msg("line rejected")
	}

	membership := pricing.Membership{RateBps: *rateBps, MaxDiscount: *maxDiscount}
	if *resolve {
		resolved, err := checkout.Resolve(idx, ledger, req.Options)
		if err != nil {
			return err
		}
		ledger = resolved
	}
	ev := checkout.Evaluate(idx, ledger, req.Options, membership)

	if *asJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(ev)
	}
	for _, o := range ev.Offers {
		fmt.Fprintf(out, "현재 %s은(는) %d개를 무료로 더 받을 수 있습니다.\n", o.ProductName, o.ExtraQty)
	}
	if s := ev.Shortfall; s != nil {
		fmt.Fprintf(out, "현재 %s %d개는 프로모션 할인이 적용되지 않습니다.\n", s.ProductName, s.NonPromoQty)
	}
	_, err = fmt.Fprintln(out, receipt.Render(ev.Receipt))
	return err
}

func loadCatalog(path string) ([]catalog.Product, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read catalog: %w", err)
	}
	if trimmed := bytes.TrimSpace(raw); len(trimmed) > 0 && trimmed[0] == '[' {
		var products []catalog.Product
		if err := json.Unmarshal(trimmed, &products); err != nil {
			return nil, fmt.Errorf("decode catalog: %w", err)
		}
		return products, nil
	}
	return catalog.Normalize(raw)
}

func readJSON(path string, dst any) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return json.Unmarshal(raw, dst)
}
