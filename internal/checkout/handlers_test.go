package checkout_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/noah-isme/pos-checkout/internal/checkout"
	"github.com/noah-isme/pos-checkout/internal/storefront"
)

type envelope struct {
	Data  json.RawMessage `json:"data"`
	Error *struct {
		Code    string          `json:"code"`
		Message string          `json:"message"`
		Details json.RawMessage `json:"details"`
	} `json:"error"`
}

func serve(t *testing.T, fn http.HandlerFunc, method, target, body string) (int, envelope) {
	t.Helper()
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()
	fn(rr, req)
	var env envelope
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &env), rr.Body.String())
	return rr.Code, env
}

func TestProductsHandlerReportsAvailability(t *testing.T) {
	svc, _ := newService(&fakeOrders{})
	h := checkout.NewHandler(svc)

	code, env := serve(t, h.Products, http.MethodGet, "/api/v1/products?cart=cola-promo:4,water", "")
	require.Equal(t, http.StatusOK, code)

	var products []struct {
		ProductID      string `json:"productId"`
		QuantityInCart int    `json:"quantityInCart"`
		Availability   struct {
			Purchasable    bool   `json:"purchasable"`
			Reason         string `json:"reason"`
			RemainingStock int    `json:"remainingStock"`
		} `json:"availability"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &products))
	require.Len(t, products, 4)

	byID := map[string]int{}
	for i, p := range products {
		byID[p.ProductID] = i
	}
	promo := products[byID["cola-promo"]]
	require.Equal(t, 4, promo.QuantityInCart)
	require.Equal(t, "sold_out", promo.Availability.Reason)
	plain := products[byID["cola"]]
	require.True(t, plain.Availability.Purchasable, "plain twin unlocks once promotional stock is in the cart")
	water := products[byID["water"]]
	require.Equal(t, 1, water.QuantityInCart)
	require.Equal(t, 4, water.Availability.RemainingStock)
}

func TestProductsHandlerRejectsBadCartQuery(t *testing.T) {
	svc, _ := newService(&fakeOrders{})
	code, env := serve(t, checkout.NewHandler(svc).Products, http.MethodGet, "/api/v1/products?cart=water:zero", "")
	require.Equal(t, http.StatusBadRequest, code)
	require.Equal(t, "BAD_REQUEST", env.Error.Code)
}

func TestEvaluateHandler(t *testing.T) {
	svc, _ := newService(&fakeOrders{})
	h := checkout.NewHandler(svc)

	code, env := serve(t, h.Evaluate, http.MethodPost, "/api/v1/checkout/evaluate",
		`{"items":[{"productId":"cola-promo","quantity":2}],"options":{"applyMembership":false}}`)
	require.Equal(t, http.StatusOK, code)

	var quote struct {
		Offers []struct {
			ProductID string `json:"productId"`
			ExtraQty  int    `json:"extraQty"`
		} `json:"offers"`
		Shortfall     *json.RawMessage `json:"shortfall"`
		SummarySource string           `json:"summarySource"`
		Receipt       string           `json:"receipt"`
		CanCheckout   bool             `json:"canCheckout"`
		Summary       struct {
			FinalTotalAmount int64 `json:"finalTotalAmount"`
		} `json:"summary"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &quote))
	require.Len(t, quote.Offers, 1)
	require.Equal(t, 1, quote.Offers[0].ExtraQty)
	require.Nil(t, quote.Shortfall)
	require.Equal(t, "local", quote.SummarySource)
	require.Equal(t, int64(2000), quote.Summary.FinalTotalAmount)
	require.True(t, strings.HasPrefix(quote.Receipt, "===========W 편의점============="))
	require.True(t, quote.CanCheckout)
}

func TestEvaluateHandlerValidation(t *testing.T) {
	svc, _ := newService(&fakeOrders{})
	h := checkout.NewHandler(svc)

	code, env := serve(t, h.Evaluate, http.MethodPost, "/api/v1/checkout/evaluate", `{"items":[{"productId":"","quantity":0}]}`)
	require.Equal(t, http.StatusBadRequest, code)
	require.Equal(t, "VALIDATION_ERROR", env.Error.Code)

	code, env = serve(t, h.Evaluate, http.MethodPost, "/api/v1/checkout/evaluate", `{"items":`)
	require.Equal(t, http.StatusBadRequest, code)
	require.Equal(t, "BAD_REQUEST", env.Error.Code)
}

func TestCheckoutHandlerOutcomes(t *testing.T) {
	shortfall := `{"items":[{"productId":"cola-promo","quantity":4}],"options":{%s}}`

	t.Run("resolution required", func(t *testing.T) {
		svc, _ := newService(&fakeOrders{})
		code, env := serve(t, checkout.NewHandler(svc).Checkout, http.MethodPost, "/api/v1/checkout", strings.Replace(shortfall, "%s", "", 1))
		require.Equal(t, http.StatusConflict, code)
		require.Equal(t, "RESOLUTION_REQUIRED", env.Error.Code)
	})

	t.Run("declined", func(t *testing.T) {
		orders := &fakeOrders{}
		svc, _ := newService(orders)
		code, env := serve(t, checkout.NewHandler(svc).Checkout, http.MethodPost, "/api/v1/checkout", strings.Replace(shortfall, "%s", `"acceptNonPromoPurchase":false`, 1))
		require.Equal(t, http.StatusOK, code)
		var out checkout.Outcome
		require.NoError(t, json.Unmarshal(env.Data, &out))
		require.Equal(t, checkout.StatusAborted, out.Status)
		require.Empty(t, orders.submitted)
	})

	t.Run("upstream failure", func(t *testing.T) {
		orders := &fakeOrders{submitErr: &storefront.Error{Status: http.StatusInternalServerError, Message: "주문 요청 실패 (500)"}}
		svc, _ := newService(orders)
		code, env := serve(t, checkout.NewHandler(svc).Checkout, http.MethodPost, "/api/v1/checkout", strings.Replace(shortfall, "%s", `"acceptNonPromoPurchase":true`, 1))
		require.Equal(t, http.StatusBadGateway, code)
		require.Equal(t, "UPSTREAM_ERROR", env.Error.Code)
		require.Equal(t, "주문 요청 실패 (500)", env.Error.Message)
		require.Contains(t, string(env.Error.Details), `"quantity":4`)
	})

	t.Run("completed", func(t *testing.T) {
		orders := &fakeOrders{result: storefront.OrderResult{OrderID: "ord-9"}}
		svc, _ := newService(orders)
		code, env := serve(t, checkout.NewHandler(svc).Checkout, http.MethodPost, "/api/v1/checkout", strings.Replace(shortfall, "%s", `"acceptNonPromoPurchase":true`, 1))
		require.Equal(t, http.StatusOK, code)
		var out checkout.Outcome
		require.NoError(t, json.Unmarshal(env.Data, &out))
		require.Equal(t, checkout.StatusCompleted, out.Status)
		require.Equal(t, "ord-9", out.OrderID)
		require.Empty(t, out.Items)
		require.Equal(t, int64(3000), out.Summary.FinalTotalAmount)
	})

	t.Run("empty", func(t *testing.T) {
		svc, _ := newService(&fakeOrders{})
		code, env := serve(t, checkout.NewHandler(svc).Checkout, http.MethodPost, "/api/v1/checkout", `{"items":[]}`)
		require.Equal(t, http.StatusUnprocessableEntity, code)
		require.Equal(t, "EMPTY_CART", env.Error.Code)
	})
}
