package shopify_test

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/atelierops/fulfillment/pkg/shipping"
	"github.com/atelierops/fulfillment/pkg/shipping/shopify"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newHTTPClient(t *testing.T, graphql bool, handler http.HandlerFunc) *shopify.HTTPAPIClient {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	return shopify.NewHTTPAPIClient(shopify.HTTPAPIClientConfig{
		BaseURL:     server.URL + "/admin/api/2024-10",
		AccessToken: "shpat_test",
		UseGraphQL:  graphql,
	})
}

func TestHTTPAPIClient_ListFulfillmentOrders(t *testing.T) {
	client := newHTTPClient(t, false, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "/admin/api/2024-10/orders/1001/fulfillment_orders.json", r.URL.Path)
		assert.Equal(t, "shpat_test", r.Header.Get("X-Shopify-Access-Token"))
		_, _ = w.Write([]byte(`{"fulfillment_orders":[{"id":9001,"order_id":1001,"status":"open","assigned_location":{"name":"Bodega"},"line_items":[{"id":1,"quantity":2}]}]}`))
	})

	orders, err := client.ListFulfillmentOrders(context.Background(), "1001")

	require.NoError(t, err)
	require.Len(t, orders, 1)
	assert.Equal(t, shopify.ID("9001"), orders[0].ID)
	assert.Equal(t, "Bodega", orders[0].AssignedLocation.Name)
	assert.Equal(t, 2, orders[0].LineItems[0].Quantity)
}

func TestHTTPAPIClient_CreateFulfillment_REST(t *testing.T) {
	client := newHTTPClient(t, false, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/admin/api/2024-10/fulfillments.json", r.URL.Path)

		var body struct {
			Fulfillment struct {
				LineItems []struct {
					FulfillmentOrderID json.Number `json:"fulfillment_order_id"`
				} `json:"line_items_by_fulfillment_order"`
				NotifyCustomer bool                   `json:"notify_customer"`
				TrackingInfo   *shopify.TrackingInput `json:"tracking_info"`
			} `json:"fulfillment"`
		}
		dec := json.NewDecoder(r.Body)
		dec.UseNumber()
		require.NoError(t, dec.Decode(&body))
		assert.Equal(t, json.Number("9001"), body.Fulfillment.LineItems[0].FulfillmentOrderID)
		assert.False(t, body.Fulfillment.NotifyCustomer)
		require.NotNil(t, body.Fulfillment.TrackingInfo)
		assert.Equal(t, "ENV-555", body.Fulfillment.TrackingInfo.Number)

		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"fulfillment":{"id":7001,"order_id":1001,"status":"success"}}`))
	})

	f, err := client.CreateFulfillment(context.Background(), &shopify.FulfillmentInput{
		FulfillmentOrderID: "9001",
		Tracking:           &shopify.TrackingInput{Number: "ENV-555", Company: "Coordinadora"},
	})

	require.NoError(t, err)
	assert.Equal(t, shopify.ID("7001"), f.ID)
}

func TestHTTPAPIClient_CreateFulfillment_GraphQL(t *testing.T) {
	client := newHTTPClient(t, true, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/admin/api/2024-10/graphql.json", r.URL.Path)

		var body struct {
			Query     string `json:"query"`
			Variables struct {
				Fulfillment struct {
					NotifyCustomer bool `json:"notifyCustomer"`
					LineItems      []struct {
						FulfillmentOrderID string `json:"fulfillmentOrderId"`
					} `json:"lineItemsByFulfillmentOrder"`
				} `json:"fulfillment"`
			} `json:"variables"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Contains(t, body.Query, "fulfillmentCreate")
		assert.True(t, body.Variables.Fulfillment.NotifyCustomer)
		assert.Equal(t, "gid://shopify/FulfillmentOrder/9001", body.Variables.Fulfillment.LineItems[0].FulfillmentOrderID)

		_, _ = w.Write([]byte(`{"data":{"fulfillmentCreate":{"fulfillment":{"id":"gid://shopify/Fulfillment/7001","status":"SUCCESS"},"userErrors":[]}}}`))
	})

	f, err := client.CreateFulfillment(context.Background(), &shopify.FulfillmentInput{
		FulfillmentOrderID: "9001",
		NotifyCustomer:     true,
	})

	require.NoError(t, err)
	assert.Equal(t, shopify.ID("7001"), f.ID)
	assert.Equal(t, "success", f.Status)
}

func TestHTTPAPIClient_CreateFulfillment_GraphQLUserErrors(t *testing.T) {
	client := newHTTPClient(t, true, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"data":{"fulfillmentCreate":{"fulfillment":null,"userErrors":[{"field":["fulfillment"],"message":"Fulfillment order is closed"}]}}}`))
	})

	_, err := client.CreateFulfillment(context.Background(), &shopify.FulfillmentInput{FulfillmentOrderID: "9001"})

	require.Error(t, err)
	var shippingErr *shipping.ShippingError
	require.ErrorAs(t, err, &shippingErr)
	assert.Equal(t, "USER_ERRORS", shippingErr.Code)
	assert.Equal(t, "Fulfillment order is closed", shippingErr.Message)
	assert.Contains(t, shippingErr.Body, "userErrors")
}

func TestHTTPAPIClient_CancelFulfillment_ErrorKeepsBody(t *testing.T) {
	client := newHTTPClient(t, false, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/admin/api/2024-10/fulfillments/7001/cancel.json", r.URL.Path)
		w.WriteHeader(http.StatusUnprocessableEntity)
		_, _ = w.Write([]byte(`{"errors":{"base":["Fulfillment cannot be cancelled"]}}`))
	})

	_, err := client.CancelFulfillment(context.Background(), "7001")

	require.Error(t, err)
	var shippingErr *shipping.ShippingError
	require.ErrorAs(t, err, &shippingErr)
	assert.Equal(t, http.StatusUnprocessableEntity, shippingErr.StatusCode)
	assert.Equal(t, "base Fulfillment cannot be cancelled", shippingErr.Message)
	assert.False(t, shippingErr.Retryable)
}

func TestHTTPAPIClient_Tags(t *testing.T) {
	stored := "VIP, Mayorista"
	client := newHTTPClient(t, false, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/admin/api/2024-10/orders/1001.json", r.URL.Path)
		switch r.Method {
		case http.MethodGet:
			assert.Equal(t, "id,tags", r.URL.Query().Get("fields"))
			_, _ = w.Write([]byte(`{"order":{"id":1001,"tags":"` + stored + `"}}`))
		case http.MethodPut:
			raw, _ := io.ReadAll(r.Body)
			var body struct {
				Order struct {
					ID   json.Number `json:"id"`
					Tags string      `json:"tags"`
				} `json:"order"`
			}
			require.NoError(t, json.Unmarshal(raw, &body))
			assert.Equal(t, json.Number("1001"), body.Order.ID)
			stored = body.Order.Tags
			_, _ = w.Write([]byte(`{"order":{"id":1001}}`))
		}
	})

	tags, err := client.GetOrderTags(context.Background(), "1001")
	require.NoError(t, err)
	assert.Equal(t, "VIP, Mayorista", tags)

	require.NoError(t, client.UpdateOrderTags(context.Background(), "1001", "VIP, Mayorista, ENVIADO"))
	assert.Equal(t, "VIP, Mayorista, ENVIADO", stored)
}

func TestHTTPAPIClient_GetOrder(t *testing.T) {
	client := newHTTPClient(t, false, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "/admin/api/2024-10/orders/1001.json", r.URL.Path)
		assert.Contains(t, r.URL.Query().Get("fields"), "shipping_address")
		_, _ = w.Write([]byte(`{"order":{"id":1001,"name":"#1001","order_number":1001,"email":"ana@example.com","total_price":"150000.00","tags":"VIP","fulfillment_status":null,` +
			`"shipping_address":{"name":"Ana Gómez","address1":"Calle 10 # 5-20","city":"Medellín","province":"Antioquia","province_code":"ANT","zip":"050001","country_code":"CO","phone":"3001234567"}}}`))
	})

	order, err := client.GetOrder(context.Background(), "1001")

	require.NoError(t, err)
	assert.Equal(t, shopify.ID("1001"), order.ID)
	assert.Equal(t, int64(1001), order.OrderNumber)
	assert.Nil(t, order.FulfillmentStatus)
	require.NotNil(t, order.ShippingAddress)
	assert.Equal(t, "Medellín", order.ShippingAddress.City)
	assert.Equal(t, "ANT", order.ShippingAddress.ProvinceCode)
}

func TestHTTPAPIClient_GetOrder_NotFound(t *testing.T) {
	client := newHTTPClient(t, false, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"errors":"Not Found"}`))
	})

	_, err := client.GetOrder(context.Background(), "404")

	var shippingErr *shipping.ShippingError
	require.ErrorAs(t, err, &shippingErr)
	assert.Equal(t, http.StatusNotFound, shippingErr.StatusCode)
	assert.Equal(t, "Not Found", shippingErr.Message)
}
