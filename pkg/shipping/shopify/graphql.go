package shopify

import (
	"encoding/json"
	"fmt"

	"github.com/atelierops/fulfillment/pkg/shipping"
	"github.com/vektah/gqlparser/v2"
	"github.com/vektah/gqlparser/v2/ast"
	"github.com/vektah/gqlparser/v2/validator"
)

// adminSchemaSDL is the part of the Admin GraphQL schema this client uses.
// Field and input names follow the 2024-10 API version.
const adminSchemaSDL = `
scalar DateTime
scalar URL

enum FulfillmentStatus {
  CANCELLED
  ERROR
  FAILURE
  OPEN
  PENDING
  SUCCESS
}

type FulfillmentTrackingInfo {
  company: String
  number: String
  url: URL
}

type Fulfillment {
  id: ID!
  status: FulfillmentStatus!
  createdAt: DateTime!
  trackingInfo(first: Int): [FulfillmentTrackingInfo!]!
}

type UserError {
  field: [String!]
  message: String!
}

type FulfillmentCreatePayload {
  fulfillment: Fulfillment
  userErrors: [UserError!]!
}

input FulfillmentOrderLineItemInput {
  id: ID!
  quantity: Int!
}

input FulfillmentOrderLineItemsInput {
  fulfillmentOrderId: ID!
  fulfillmentOrderLineItems: [FulfillmentOrderLineItemInput!]
}

input FulfillmentTrackingInput {
  company: String
  number: String
  numbers: [String!]
  url: URL
  urls: [URL!]
}

input FulfillmentInput {
  lineItemsByFulfillmentOrder: [FulfillmentOrderLineItemsInput!]!
  notifyCustomer: Boolean
  trackingInfo: FulfillmentTrackingInput
}

type Query {
  fulfillment(id: ID!): Fulfillment
}

type Mutation {
  fulfillmentCreate(fulfillment: FulfillmentInput!, message: String): FulfillmentCreatePayload
}
`

var adminSchema = gqlparser.MustLoadSchema(&ast.Source{Name: "admin.graphql", Input: adminSchemaSDL})

// mutation is a GraphQL mutation validated against adminSchema.
type mutation struct {
	name  string
	query string
	op    *ast.OperationDefinition
}

func mustLoadMutation(name, query string) *mutation {
	m, err := loadMutation(name, query)
	if err != nil {
		panic(fmt.Sprintf("shopify: invalid %s document: %v", name, err))
	}
	return m
}

// loadMutation parses query and validates it against adminSchema.
func loadMutation(name, query string) (*mutation, error) {
	doc, errs := gqlparser.LoadQueryWithRules(adminSchema, query, nil)
	if len(errs) > 0 {
		return nil, errs
	}
	if len(doc.Operations) != 1 || doc.Operations[0].Operation != ast.Mutation {
		return nil, fmt.Errorf("%s must contain exactly one mutation", name)
	}
	return &mutation{name: name, query: query, op: doc.Operations[0]}, nil
}

// variables converts vars to their JSON form and checks them against the
// mutation's variable definitions.
func (m *mutation) variables(vars map[string]interface{}) (map[string]interface{}, error) {
	b, err := json.Marshal(vars)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal %s variables: %w", m.name, err)
	}
	var plain map[string]interface{}
	if err := json.Unmarshal(b, &plain); err != nil {
		return nil, fmt.Errorf("failed to unmarshal %s variables: %w", m.name, err)
	}
	if _, err := validator.VariableValues(adminSchema, m.op, plain); err != nil {
		return nil, shipping.NewValidationError(platformName, "INVALID_GRAPHQL_VARIABLES", err.Error()).WithCause(err)
	}
	return plain, nil
}
