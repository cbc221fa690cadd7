package orders

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/angelmondragon/bazaar-backend/api/middleware"
	internalorders "github.com/angelmondragon/bazaar-backend/internal/orders"
	"github.com/angelmondragon/bazaar-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/bazaar-backend/pkg/errors"
	"github.com/angelmondragon/bazaar-backend/pkg/pagination"
)

type stubOrderService struct {
	create       func(ctx context.Context, input internalorders.CreateInput) (*internalorders.CreateResult, error)
	get          func(ctx context.Context, actor internalorders.Actor, orderID uuid.UUID) (*internalorders.OrderView, error)
	list         func(ctx context.Context, actor internalorders.Actor, params pagination.Params) (*internalorders.OrderList, error)
	cancel       func(ctx context.Context, actor internalorders.Actor, orderID uuid.UUID, reason string) (*internalorders.OrderView, error)
	retry        func(ctx context.Context, actor internalorders.Actor, orderID uuid.UUID) (*internalorders.CreateResult, error)
	updateStatus func(ctx context.Context, actor internalorders.Actor, orderID uuid.UUID, target enums.OrderStatus, note string) (*internalorders.OrderView, error)
}

func (s *stubOrderService) Create(ctx context.Context, input internalorders.CreateInput) (*internalorders.CreateResult, error) {
	return s.create(ctx, input)
}

func (s *stubOrderService) Get(ctx context.Context, actor internalorders.Actor, orderID uuid.UUID) (*internalorders.OrderView, error) {
	return s.get(ctx, actor, orderID)
}

func (s *stubOrderService) List(ctx context.Context, actor internalorders.Actor, params pagination.Params) (*internalorders.OrderList, error) {
	return s.list(ctx, actor, params)
}

func (s *stubOrderService) Cancel(ctx context.Context, actor internalorders.Actor, orderID uuid.UUID, reason string) (*internalorders.OrderView, error) {
	return s.cancel(ctx, actor, orderID, reason)
}

func (s *stubOrderService) RetryPayment(ctx context.Context, actor internalorders.Actor, orderID uuid.UUID) (*internalorders.CreateResult, error) {
	return s.retry(ctx, actor, orderID)
}

func (s *stubOrderService) UpdateStatus(ctx context.Context, actor internalorders.Actor, orderID uuid.UUID, target enums.OrderStatus, note string) (*internalorders.OrderView, error) {
	return s.updateStatus(ctx, actor, orderID, target, note)
}

func (s *stubOrderService) ResumeGatewayInit(context.Context, uuid.UUID) error {
	panic("not used by controllers")
}

func (s *stubOrderService) ExpireOrder(context.Context, uuid.UUID) error {
	panic("not used by controllers")
}

func authedRequest(method, target, body string, role enums.ActorRole, userID uuid.UUID) *http.Request {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, target, nil)
	} else {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
	}
	ctx := middleware.WithIdentity(req.Context(), userID.String(), string(role), "", "buyer@example.com")
	return req.WithContext(ctx)
}

func withOrderID(req *http.Request, orderID string) *http.Request {
	rctx := chi.NewRouteContext()
	rctx.URLParams.Add("orderId", orderID)
	return req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, rctx))
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var payload struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &payload); err != nil {
		t.Fatalf("decode error body: %v", err)
	}
	return payload.Error.Code
}

func TestCreateReturns201WithResult(t *testing.T) {
	userID := uuid.New()
	productID := uuid.New()
	var captured internalorders.CreateInput
	svc := &stubOrderService{
		create: func(ctx context.Context, input internalorders.CreateInput) (*internalorders.CreateResult, error) {
			captured = input
			return &internalorders.CreateResult{
				Order:            &internalorders.OrderView{ID: uuid.New(), TotalMinor: 2200},
				AuthorizationURL: "https://pay.example/abc",
			}, nil
		},
	}

	body := `{"shipping_address_id":"` + uuid.NewString() + `","payment_method":"card","lines":[{"product_id":"` + productID.String() + `","quantity":2}],"notes":"  leave at door "}`
	req := authedRequest(http.MethodPost, "/api/v1/orders", body, enums.ActorRoleCustomer, userID)
	rec := httptest.NewRecorder()
	Create(svc, nil).ServeHTTP(rec, req)

	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d (%s)", rec.Code, rec.Body.String())
	}
	if captured.Actor.UserID != userID || captured.Actor.Email != "buyer@example.com" {
		t.Fatalf("actor not propagated: %+v", captured.Actor)
	}
	if len(captured.Lines) != 1 || captured.Lines[0].Quantity != 2 {
		t.Fatalf("unexpected lines %+v", captured.Lines)
	}
	if captured.Notes != "leave at door" {
		t.Fatalf("notes not sanitized: %q", captured.Notes)
	}

	var payload struct {
		Data internalorders.CreateResult `json:"data"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &payload); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if payload.Data.AuthorizationURL != "https://pay.example/abc" || payload.Data.Order.TotalMinor != 2200 {
		t.Fatalf("unexpected payload %+v", payload.Data)
	}
}

func TestCreateRejectsInvalidBody(t *testing.T) {
	svc := &stubOrderService{
		create: func(context.Context, internalorders.CreateInput) (*internalorders.CreateResult, error) {
			t.Fatal("service should not be called")
			return nil, nil
		},
	}
	cases := map[string]string{
		"no lines":       `{"shipping_address_id":"` + uuid.NewString() + `","payment_method":"card","lines":[]}`,
		"zero quantity":  `{"shipping_address_id":"` + uuid.NewString() + `","payment_method":"card","lines":[{"product_id":"` + uuid.NewString() + `","quantity":0}]}`,
		"bad method":     `{"shipping_address_id":"` + uuid.NewString() + `","payment_method":"barter","lines":[{"product_id":"` + uuid.NewString() + `","quantity":1}]}`,
		"unknown fields": `{"shipping_address_id":"` + uuid.NewString() + `","payment_method":"card","coupon":"x","lines":[{"product_id":"` + uuid.NewString() + `","quantity":1}]}`,
	}
	for name, body := range cases {
		req := authedRequest(http.MethodPost, "/api/v1/orders", body, enums.ActorRoleCustomer, uuid.New())
		rec := httptest.NewRecorder()
		Create(svc, nil).ServeHTTP(rec, req)
		if rec.Code != http.StatusBadRequest {
			t.Fatalf("%s: expected 400, got %d", name, rec.Code)
		}
	}
}

func TestCreateMapsInsufficientStock(t *testing.T) {
	svc := &stubOrderService{
		create: func(context.Context, internalorders.CreateInput) (*internalorders.CreateResult, error) {
			return nil, pkgerrors.New(pkgerrors.CodeInsufficientStock, "insufficient stock")
		},
	}
	body := `{"shipping_address_id":"` + uuid.NewString() + `","payment_method":"cash_on_delivery","lines":[{"product_id":"` + uuid.NewString() + `","quantity":1}]}`
	req := authedRequest(http.MethodPost, "/api/v1/orders", body, enums.ActorRoleCustomer, uuid.New())
	rec := httptest.NewRecorder()
	Create(svc, nil).ServeHTTP(rec, req)

	if rec.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d", rec.Code)
	}
	if code := decodeError(t, rec); code != string(pkgerrors.CodeInsufficientStock) {
		t.Fatalf("unexpected code %s", code)
	}
}

func TestListPassesCursorAndLimit(t *testing.T) {
	var got pagination.Params
	svc := &stubOrderService{
		list: func(ctx context.Context, actor internalorders.Actor, params pagination.Params) (*internalorders.OrderList, error) {
			got = params
			return &internalorders.OrderList{NextCursor: "next"}, nil
		},
	}
	req := authedRequest(http.MethodGet, "/api/v1/orders?limit=5&cursor=abc", "", enums.ActorRoleCustomer, uuid.New())
	rec := httptest.NewRecorder()
	List(svc, nil).ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if got.Limit != 5 || got.Cursor != "abc" {
		t.Fatalf("unexpected params %+v", got)
	}

	req = authedRequest(http.MethodGet, "/api/v1/orders?limit=0", "", enums.ActorRoleCustomer, uuid.New())
	rec = httptest.NewRecorder()
	List(svc, nil).ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for out of range limit, got %d", rec.Code)
	}
}

func TestDetailRejectsInvalidOrderID(t *testing.T) {
	svc := &stubOrderService{}
	req := withOrderID(authedRequest(http.MethodGet, "/api/v1/orders/nope", "", enums.ActorRoleCustomer, uuid.New()), "nope")
	rec := httptest.NewRecorder()
	Detail(svc, nil).ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestDetailNotFound(t *testing.T) {
	svc := &stubOrderService{
		get: func(context.Context, internalorders.Actor, uuid.UUID) (*internalorders.OrderView, error) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
		},
	}
	orderID := uuid.NewString()
	req := withOrderID(authedRequest(http.MethodGet, "/api/v1/orders/"+orderID, "", enums.ActorRoleCustomer, uuid.New()), orderID)
	rec := httptest.NewRecorder()
	Detail(svc, nil).ServeHTTP(rec, req)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
}

func TestCancelWithAndWithoutReason(t *testing.T) {
	var reasons []string
	svc := &stubOrderService{
		cancel: func(ctx context.Context, actor internalorders.Actor, orderID uuid.UUID, reason string) (*internalorders.OrderView, error) {
			reasons = append(reasons, reason)
			return &internalorders.OrderView{ID: orderID, OrderStatus: enums.OrderStatusCancelled}, nil
		},
	}
	orderID := uuid.NewString()

	req := withOrderID(authedRequest(http.MethodPost, "/api/v1/orders/"+orderID+"/cancel", "", enums.ActorRoleCustomer, uuid.New()), orderID)
	rec := httptest.NewRecorder()
	Cancel(svc, nil).ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d (%s)", rec.Code, rec.Body.String())
	}

	req = withOrderID(authedRequest(http.MethodPost, "/api/v1/orders/"+orderID+"/cancel", `{"reason":" changed my mind "}`, enums.ActorRoleCustomer, uuid.New()), orderID)
	rec = httptest.NewRecorder()
	Cancel(svc, nil).ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	if len(reasons) != 2 || reasons[0] != "" || reasons[1] != "changed my mind" {
		t.Fatalf("unexpected reasons %q", reasons)
	}
}

func TestUpdateStatusMapsInvalidTransition(t *testing.T) {
	svc := &stubOrderService{
		updateStatus: func(ctx context.Context, actor internalorders.Actor, orderID uuid.UUID, target enums.OrderStatus, note string) (*internalorders.OrderView, error) {
			if target != enums.OrderStatusDelivered {
				t.Fatalf("unexpected target %s", target)
			}
			return nil, pkgerrors.New(pkgerrors.CodeInvalidTransition, "cannot move from pending to delivered")
		},
	}
	orderID := uuid.NewString()
	req := withOrderID(authedRequest(http.MethodPatch, "/api/v1/orders/"+orderID+"/status", `{"status":"delivered"}`, enums.ActorRoleAdmin, uuid.New()), orderID)
	rec := httptest.NewRecorder()
	UpdateStatus(svc, nil).ServeHTTP(rec, req)

	if rec.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d", rec.Code)
	}
	if code := decodeError(t, rec); code != string(pkgerrors.CodeInvalidTransition) {
		t.Fatalf("unexpected code %s", code)
	}
}

func TestUpdateStatusRejectsUnknownStatus(t *testing.T) {
	orderID := uuid.NewString()
	req := withOrderID(authedRequest(http.MethodPatch, "/api/v1/orders/"+orderID+"/status", `{"status":"pending"}`, enums.ActorRoleAdmin, uuid.New()), orderID)
	rec := httptest.NewRecorder()
	UpdateStatus(&stubOrderService{}, nil).ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestRetryPaymentReturnsAuthorizationURL(t *testing.T) {
	svc := &stubOrderService{
		retry: func(ctx context.Context, actor internalorders.Actor, orderID uuid.UUID) (*internalorders.CreateResult, error) {
			return &internalorders.CreateResult{AuthorizationURL: "https://pay.example/retry"}, nil
		},
	}
	orderID := uuid.NewString()
	req := withOrderID(authedRequest(http.MethodPost, "/api/v1/orders/"+orderID+"/payment/retry", "", enums.ActorRoleCustomer, uuid.New()), orderID)
	rec := httptest.NewRecorder()
	RetryPayment(svc, nil).ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "https://pay.example/retry") {
		t.Fatalf("missing authorization url: %s", rec.Body.String())
	}
}
