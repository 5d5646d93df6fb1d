package catalog_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/noah-isme/pos-checkout/internal/catalog"
)

func TestNormalizeArrayEnvelope(t *testing.T) {
	raw := []byte(`{"result":[
		{"productId":1,"name":" 콜라 ","price":"1000","stock":10,
		 "promotionSearchResponse":{"name":"탄산2+1","buyQuantity":2,"getQuantity":1}},
		{"productId":"2","name":"물","price":500.0,"stock":-3,"promotion":null}
	]}`)

	products, err := catalog.Normalize(raw)
	require.NoError(t, err)
	require.Len(t, products, 2)

	require.Equal(t, "1", products[0].ID)
	require.Equal(t, "콜라", products[0].Name)
	require.Equal(t, int64(1000), products[0].Price)
	require.Equal(t, 10, products[0].Stock)
	require.NotNil(t, products[0].Promotion)
	require.Equal(t, "탄산2+1", products[0].Promotion.Name)
	require.Equal(t, 3, products[0].Promotion.GroupSize())

	require.Equal(t, "2", products[1].ID)
	require.Equal(t, int64(500), products[1].Price)
	require.Equal(t, 0, products[1].Stock)
	require.Nil(t, products[1].Promotion)
}

func TestNormalizePagedEnvelopeAndAliases(t *testing.T) {
	raw := []byte(`{"result":{"data":[
		{"productId":"a","name":"감자칩","price":1500,"stock":4,"promotion":{"promotionName":"1+1","buy":1,"free":1}},
		{"productId":"b","name":"초코","price":1200,"stock":4,"promotion":{"name":"기본"}},
		{"productId":"c","name":"사탕","price":300,"stock":4,"promotion":{"buyQty":0,"freeQty":1}},
		{"name":"이름만","price":100,"stock":1}
	]}}`)

	products, err := catalog.Normalize(raw)
	require.NoError(t, err)
	require.Len(t, products, 3, "entries without an id are skipped")

	require.Equal(t, "1+1", products[0].Promotion.Name)
	require.Equal(t, 2, products[0].Promotion.GroupSize())

	require.Equal(t, catalog.DefaultBuyQuantity, products[1].Promotion.BuyQuantity)
	require.Equal(t, catalog.DefaultFreeQuantity, products[1].Promotion.FreeQuantity)

	require.Nil(t, products[2].Promotion, "a zero group parameter makes the rule inert")
	require.False(t, products[2].HasPromotion())
}

func TestNormalizeUnexpectedShapes(t *testing.T) {
	for name, raw := range map[string]string{
		"empty body":    ``,
		"null result":   `{"result":null}`,
		"scalar result": `{"result":"oops"}`,
		"no result":     `{"data":[]}`,
	} {
		t.Run(name, func(t *testing.T) {
			products, err := catalog.Normalize([]byte(raw))
			require.NoError(t, err)
			require.Empty(t, products)
		})
	}

	_, err := catalog.Normalize([]byte(`not json`))
	require.Error(t, err)
}

func TestNormalizeKeepsGoodProductsAroundBadEntries(t *testing.T) {
	raw := []byte(`{"result":[
		{"productId":1,"name":"콜라","price":1000,"stock":10,"promotionSearchResponse":{"buyQuantity":2,"getQuantity":1}},
		{"productId":2,"name":"사이다","price":1000,"stock":5,"promotionSearchResponse":"2+1"},
		{"productId":3,"name":1234,"price":700,"stock":2,"promotion":[1,1]},
		"garbage",
		{"productId":4,"name":{"ko":"물"},"price":500,"stock":1}
	]}`)

	products, skipped, err := catalog.NormalizeReport(raw)
	require.NoError(t, err)
	require.Len(t, products, 4)

	require.True(t, products[0].HasPromotion())

	require.Equal(t, "2", products[1].ID)
	require.Nil(t, products[1].Promotion, "a non-object promotion is treated as none")

	require.Equal(t, "1234", products[2].Name)
	require.Nil(t, products[2].Promotion)

	require.Equal(t, "4", products[3].ID)
	require.Empty(t, products[3].Name)

	require.Len(t, skipped, 1)
	require.Equal(t, 3, skipped[0].Index)
	require.Error(t, skipped[0].Err)

	plain, err := catalog.Normalize(raw)
	require.NoError(t, err)
	require.Equal(t, products, plain)
}
