package shopify

import (
	"testing"

	"github.com/atelierops/fulfillment/pkg/shipping"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFulfillmentCreateMutation_MatchesSchema(t *testing.T) {
	m, err := loadMutation("fulfillmentCreate", fulfillmentCreateMutation.query)

	require.NoError(t, err)
	assert.Equal(t, "FulfillmentCreate", m.op.Name)
	assert.Len(t, m.op.VariableDefinitions, 2)
}

func TestLoadMutation_Rejects(t *testing.T) {
	tests := []struct {
		name  string
		query string
		want  string
	}{
		{
			name:  "unknown field",
			query: `mutation M($f: FulfillmentInput!) { fulfillmentCreate(fulfillment: $f) { fulfillment { id trackingNumber } } }`,
			want:  "trackingNumber",
		},
		{
			name:  "unknown argument",
			query: `mutation M($f: FulfillmentInput!) { fulfillmentCreate(fulfillment: $f, notify: true) { userErrors { message } } }`,
			want:  "notify",
		},
		{
			name:  "wrong variable type",
			query: `mutation M($f: String!) { fulfillmentCreate(fulfillment: $f) { userErrors { message } } }`,
			want:  "FulfillmentInput",
		},
		{
			name:  "syntax error",
			query: `mutation { fulfillmentCreate(`,
		},
		{
			name:  "not a mutation",
			query: `query Q { fulfillment(id: "1") { id } }`,
			want:  "exactly one mutation",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := loadMutation("test", tt.query)
			require.Error(t, err)
			if tt.want != "" {
				assert.Contains(t, err.Error(), tt.want)
			}
		})
	}
}

func TestMutationVariables(t *testing.T) {
	vars, err := fulfillmentCreateMutation.variables(map[string]interface{}{
		"fulfillment": map[string]interface{}{
			"notifyCustomer": false,
			"lineItemsByFulfillmentOrder": []map[string]interface{}{
				{"fulfillmentOrderId": "gid://shopify/FulfillmentOrder/9001"},
			},
			"trackingInfo": &TrackingInput{Number: "ENV-555", Company: "Coordinadora"},
		},
		"message": "Despachado",
	})

	require.NoError(t, err)
	fulfillment := vars["fulfillment"].(map[string]interface{})
	tracking := fulfillment["trackingInfo"].(map[string]interface{})
	assert.Equal(t, "ENV-555", tracking["number"])
	assert.Equal(t, "Despachado", vars["message"])
}

func TestMutationVariables_Rejects(t *testing.T) {
	tests := []struct {
		name string
		vars map[string]interface{}
	}{
		{name: "missing input", vars: map[string]interface{}{}},
		{
			name: "missing line items",
			vars: map[string]interface{}{"fulfillment": map[string]interface{}{"notifyCustomer": true}},
		},
		{
			name: "unknown input field",
			vars: map[string]interface{}{"fulfillment": map[string]interface{}{
				"lineItemsByFulfillmentOrder": []map[string]interface{}{{"fulfillmentOrderId": "1"}},
				"tracking_number":             "ENV-555",
			}},
		},
		{
			name: "wrong scalar type",
			vars: map[string]interface{}{"fulfillment": map[string]interface{}{
				"lineItemsByFulfillmentOrder": []map[string]interface{}{{"fulfillmentOrderId": "1"}},
				"notifyCustomer":              "yes",
			}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := fulfillmentCreateMutation.variables(tt.vars)
			require.Error(t, err)
			assert.Equal(t, shipping.KindValidation, shipping.KindOf(err))
		})
	}
}
