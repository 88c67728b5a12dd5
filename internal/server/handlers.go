package server

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/atelierops/fulfillment/internal/orchestrator"
	"github.com/atelierops/fulfillment/pkg/shipping"
	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// userHeader carries the acting user id, set by the authenticating proxy.
const userHeader = "X-User-ID"

// response is the envelope of every API response.
type response struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Message string      `json:"message,omitempty"`
	Error   *errorBody  `json:"error,omitempty"`
}

type errorBody struct {
	Kind       string `json:"kind,omitempty"`
	Code       string `json:"code,omitempty"`
	Message    string `json:"message"`
	Source     string `json:"source,omitempty"`
	StatusCode int    `json:"statusCode,omitempty"`
	Body       string `json:"body,omitempty"`
	Retryable  bool   `json:"retryable"`
}

type createLabelRequest struct {
	Carrier       string          `json:"carrier"`
	Service       string          `json:"service"`
	Weight        float64         `json:"weight"`
	DeclaredValue decimal.Decimal `json:"declaredValue"`
	Content       string          `json:"content"`
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := shipping.HTTPStatus(err)
	body := &errorBody{Message: err.Error(), Retryable: shipping.IsRetryable(err)}

	var se *shipping.ShippingError
	if errors.As(err, &se) {
		body.Kind = string(se.Kind)
		body.Code = se.Code
		body.Message = se.Message
		body.Source = se.Source
		body.StatusCode = se.StatusCode
		body.Body = se.Body
	} else if errors.Is(err, shipping.ErrServiceUnavailable) {
		body.Code = "SERVICE_UNAVAILABLE"
	}

	if status >= http.StatusInternalServerError {
		s.logger.Ctx(r.Context()).Error("Request failed", zap.String("path", r.URL.Path), zap.Error(err))
	}
	writeJSON(w, status, response{Success: false, Message: body.Message, Error: body})
}

func userID(r *http.Request) string {
	return strings.TrimSpace(r.Header.Get(userHeader))
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	status := http.StatusOK
	checks := make(map[string]string, len(s.checks))
	for name, check := range s.checks {
		if err := check(r.Context()); err != nil {
			checks[name] = err.Error()
			status = http.StatusServiceUnavailable
			continue
		}
		checks[name] = "ok"
	}
	writeJSON(w, status, response{
		Success: status == http.StatusOK,
		Data:    map[string]interface{}{"status": http.StatusText(status), "checks": checks},
	})
}

func (s *Server) handleCreateLabel(w http.ResponseWriter, r *http.Request) {
	var body createLabelRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil && !errors.Is(err, io.EOF) {
		s.writeError(w, r, shipping.NewValidationError("server", "INVALID_JSON", "invalid request body: "+err.Error()))
		return
	}

	var carrier shipping.Carrier
	if strings.TrimSpace(body.Carrier) != "" {
		carrier = shipping.ParseCarrier(body.Carrier)
		if !carrier.IsKnown() {
			s.writeError(w, r, shipping.NewValidationError("server", "UNSUPPORTED_CARRIER", "unknown carrier "+body.Carrier))
			return
		}
	}

	result, err := s.shipments.CreateLabel(r.Context(), orchestrator.CreateLabelRequest{
		OrgID:         chi.URLParam(r, "orgID"),
		OrderID:       chi.URLParam(r, "orderID"),
		UserID:        userID(r),
		Carrier:       carrier,
		Service:       body.Service,
		Weight:        body.Weight,
		DeclaredValue: body.DeclaredValue,
		Content:       body.Content,
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	status, message := http.StatusCreated, "Label created"
	if result.AlreadyExisted {
		status, message = http.StatusOK, "Label already exists"
	}
	writeJSON(w, status, response{Success: true, Data: result, Message: message})
}

func (s *Server) handleConfirmShipment(w http.ResponseWriter, r *http.Request) {
	result, err := s.shipments.ConfirmShipment(r.Context(), chi.URLParam(r, "orgID"), chi.URLParam(r, "orderID"), userID(r))
	s.writeFulfillment(w, r, result, err, "Order shipped")
}

func (s *Server) handlePickupReady(w http.ResponseWriter, r *http.Request) {
	result, err := s.shipments.ConfirmPickupReady(r.Context(), chi.URLParam(r, "orgID"), chi.URLParam(r, "orderID"), userID(r))
	s.writeFulfillment(w, r, result, err, "Order ready for pickup")
}

func (s *Server) handlePickupCollected(w http.ResponseWriter, r *http.Request) {
	result, err := s.shipments.ConfirmPickupCollected(r.Context(), chi.URLParam(r, "orgID"), chi.URLParam(r, "orderID"), userID(r))
	s.writeFulfillment(w, r, result, err, "Order collected")
}

func (s *Server) writeFulfillment(w http.ResponseWriter, r *http.Request, result *orchestrator.FulfillmentResult, err error, message string) {
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if result.AlreadyFulfilled {
		message = "Order was already fulfilled"
	}
	writeJSON(w, http.StatusOK, response{Success: true, Data: result, Message: message})
}

func (s *Server) handleCancelLabel(w http.ResponseWriter, r *http.Request) {
	result, err := s.shipments.CancelLabel(r.Context(), orchestrator.CancelLabelRequest{
		OrgID:   chi.URLParam(r, "orgID"),
		LabelID: chi.URLParam(r, "labelID"),
		UserID:  userID(r),
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	message := "Label cancelled"
	if !result.ShopifyFulfillmentCancelled {
		message = "Label cancelled; some platform fulfillments need manual cancellation"
	}
	writeJSON(w, http.StatusOK, response{Success: true, Data: result, Message: message})
}

func (s *Server) handleGetShipment(w http.ResponseWriter, r *http.Request) {
	result, err := s.shipments.GetShipment(r.Context(), chi.URLParam(r, "orgID"), chi.URLParam(r, "orderID"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, response{Success: true, Data: result})
}
