package storefront_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/pos-checkout/internal/cart"
	"github.com/noah-isme/pos-checkout/internal/resilience"
	"github.com/noah-isme/pos-checkout/internal/storefront"
)

func newClient(t *testing.T, handler http.HandlerFunc) *storefront.Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	client, err := storefront.New(storefront.Config{
		BaseURL: srv.URL + "/",
		HTTP: resilience.HTTPClient{
			Client:      srv.Client(),
			Breaker:     resilience.NewBreaker(100, 1, time.Second),
			MaxAttempts: 3,
			BaseBackoff: time.Millisecond,
		},
	})
	require.NoError(t, err)
	return client
}

func TestFetchProductsNormalizesEnvelope(t *testing.T) {
	client := newClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "/api/products", r.URL.Path)
		_, _ = w.Write([]byte(`{"result":{"data":[
			{"productId":"cola-promo","name":"콜라","price":1000,"stock":10,"promotionSearchResponse":{"name":"탄산2+1","buyQuantity":2,"getQuantity":1}},
			{"productId":"cola","name":"콜라","price":"1000","stock":"5"}
		]}}`))
	})

	products, err := client.FetchProducts(context.Background())
	require.NoError(t, err)
	require.Len(t, products, 2)
	require.Equal(t, "cola-promo", products[0].ID)
	require.NotNil(t, products[0].Promotion)
	require.Equal(t, 2, products[0].Promotion.BuyQuantity)
	require.Equal(t, 1, products[0].Promotion.FreeQuantity)
	require.Nil(t, products[1].Promotion)
	require.Equal(t, int64(1000), products[1].Price)
	require.Equal(t, 5, products[1].Stock)
}

func TestFetchProductsRetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	client := newClient(t, func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte(`{"result":[]}`))
	})

	products, err := client.FetchProducts(context.Background())
	require.NoError(t, err)
	require.Empty(t, products)
	require.Equal(t, int32(2), calls.Load())
}

func TestSubmitOrderReturnsAuthoritativeSummary(t *testing.T) {
	client := newClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/api/orders", r.URL.Path)
		assert.Equal(t, "key-1", r.Header.Get("Idempotency-Key"))
		var req storefront.OrderRequest
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, []cart.OrderLine{{ProductID: "cola-promo", Quantity: 3}}, req.Items)
		assert.True(t, req.ApplyMembership)
		assert.Equal(t, map[string]bool{"cola-promo": true}, req.AcceptAddMore)
		_, _ = w.Write([]byte(`{"result":{"orderId":42,"totalQuantity":3,"originalTotalAmount":3000,"promotionDiscountAmount":1000,"membershipDiscountAmount":600,"finalTotalAmount":1400}}`))
	})

	res, err := client.SubmitOrder(context.Background(), storefront.OrderRequest{
		Items:           []cart.OrderLine{{ProductID: "cola-promo", Quantity: 3}},
		ApplyMembership: true,
		AcceptAddMore:   map[string]bool{"cola-promo": true},
	}, "key-1")
	require.NoError(t, err)
	require.NotNil(t, res.Summary)
	require.Equal(t, int64(1400), res.Summary.FinalTotalAmount)
	require.Equal(t, int64(600), res.Summary.MembershipDiscountAmount)
	require.Equal(t, "42", res.OrderID)
}

func TestSubmitOrderAcknowledgmentOnly(t *testing.T) {
	client := newClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.NotEmpty(t, r.Header.Get("Idempotency-Key"))
		w.WriteHeader(http.StatusCreated)
	})

	res, err := client.SubmitOrder(context.Background(), storefront.OrderRequest{Items: []cart.OrderLine{{ProductID: "a", Quantity: 1}}}, "")
	require.NoError(t, err)
	require.Nil(t, res.Summary)
}

func TestSubmitOrderSingleAttemptWithUpstreamMessage(t *testing.T) {
	var calls atomic.Int32
	client := newClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"message":"재고가 부족합니다"}`))
	})

	_, err := client.SubmitOrder(context.Background(), storefront.OrderRequest{}, "k")
	var sfErr *storefront.Error
	require.ErrorAs(t, err, &sfErr)
	require.Equal(t, http.StatusInternalServerError, sfErr.Status)
	require.Equal(t, "재고가 부족합니다", sfErr.Error())
	require.Equal(t, int32(1), calls.Load())
}

func TestSubmitOrderFallbackMessage(t *testing.T) {
	client := newClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
	})

	_, err := client.SubmitOrder(context.Background(), storefront.OrderRequest{}, "k")
	require.EqualError(t, err, "주문 요청 실패 (400)")
}

func TestFetchProductsFallbackMessage(t *testing.T) {
	client := newClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
	})

	_, err := client.FetchProducts(context.Background())
	require.EqualError(t, err, "GET /api/products 실패 (400)")
}

func TestPreviewOrderUnsupported(t *testing.T) {
	client := newClient(t, func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	})

	_, err := client.PreviewOrder(context.Background(), storefront.OrderRequest{})
	require.True(t, errors.Is(err, storefront.ErrPreviewUnsupported))
}

func TestPreviewOrderSummary(t *testing.T) {
	client := newClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/orders/preview", r.URL.Path)
		_, _ = w.Write([]byte(`{"totalQuantity":2,"originalTotalAmount":20000,"promotionDiscountAmount":0,"membershipDiscountAmount":2000,"finalTotalAmount":18000}`))
	})

	summary, err := client.PreviewOrder(context.Background(), storefront.OrderRequest{})
	require.NoError(t, err)
	require.Equal(t, int64(18000), summary.FinalTotalAmount)
	require.True(t, summary.Consistent())
}

func TestNewValidatesConfig(t *testing.T) {
	_, err := storefront.New(storefront.Config{HTTP: resilience.HTTPClient{Client: http.DefaultClient}})
	require.Error(t, err)
	_, err = storefront.New(storefront.Config{BaseURL: "http://x"})
	require.Error(t, err)
}

func TestBreakersArePerOperation(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/api/orders" {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		_, _ = w.Write([]byte(`{"result":[{"productId":"a","name":"물","price":500,"stock":1}]}`))
	}))
	t.Cleanup(srv.Close)

	breakers := resilience.NewBreakerSet("storefront", resilience.BreakerConfig{MinRequests: 1, FailureRatio: 0.5, OpenFor: time.Minute}, zerolog.Nop())
	client, err := storefront.New(storefront.Config{
		BaseURL:  srv.URL,
		HTTP:     resilience.HTTPClient{Client: srv.Client(), MaxAttempts: 1},
		Breakers: breakers,
	})
	require.NoError(t, err)

	_, err = client.SubmitOrder(context.Background(), storefront.OrderRequest{}, "k")
	require.Error(t, err)
	_, err = client.SubmitOrder(context.Background(), storefront.OrderRequest{}, "k")
	require.ErrorIs(t, err, resilience.ErrOpenCircuit)
	require.EqualError(t, err, "주문 요청 실패")

	products, err := client.FetchProducts(context.Background())
	require.NoError(t, err)
	require.Len(t, products, 1)
	require.Equal(t, []string{"submit_order"}, breakers.OpenOperations())
}
