package validators

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	pkgerrors "github.com/angelmondragon/bazaar-backend/pkg/errors"
)

type lineInput struct {
	Quantity int64 `json:"quantity" validate:"required,gt=0"`
}

type orderInput struct {
	Method string      `json:"method" validate:"required,oneof=card cash_on_delivery"`
	Lines  []lineInput `json:"lines" validate:"required,min=1,dive"`
	Notes  string      `json:"notes" validate:"max=5"`
}

func post(body string) *http.Request {
	return httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body))
}

func TestDecodeJSONBodyReportsFieldPaths(t *testing.T) {
	var in orderInput
	err := DecodeJSONBody(post(`{"method":"cheque","lines":[{"quantity":0}],"notes":"too long"}`), &in)

	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
	details, ok := pkgerrors.As(err).Details().(map[string]string)
	require.True(t, ok)
	assert.Equal(t, "must be one of: card, cash_on_delivery", details["method"])
	assert.Equal(t, "is required", details["lines[0].quantity"])
	assert.Equal(t, "must be at most 5 characters", details["notes"])
}

func TestDecodeJSONBodyRejectsMalformedInput(t *testing.T) {
	cases := map[string]string{
		"empty":         ``,
		"unknown field": `{"method":"card","lines":[{"quantity":1}],"coupon":"x"}`,
		"trailing data": `{"method":"card","lines":[{"quantity":1}]} {}`,
		"wrong type":    `{"method":"card","lines":"many"}`,
		"syntax":        `{"method":`,
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			var in orderInput
			err := DecodeJSONBody(post(body), &in)
			assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation), "got %v", err)
		})
	}
}

func TestDecodeJSONBodyAcceptsValidInput(t *testing.T) {
	var in orderInput
	require.NoError(t, DecodeJSONBody(post(`{"method":"card","lines":[{"quantity":2}]}`), &in))
	assert.Equal(t, int64(2), in.Lines[0].Quantity)
}

func withURLParam(r *http.Request, key, value string) *http.Request {
	rctx := chi.NewRouteContext()
	rctx.URLParams.Add(key, value)
	return r.WithContext(context.WithValue(r.Context(), chi.RouteCtxKey, rctx))
}

func TestPathUUID(t *testing.T) {
	id := uuid.New()
	got, err := PathUUID(withURLParam(httptest.NewRequest(http.MethodGet, "/", nil), "orderId", id.String()), "orderId")
	require.NoError(t, err)
	assert.Equal(t, id, got)

	_, err = PathUUID(withURLParam(httptest.NewRequest(http.MethodGet, "/", nil), "orderId", "nope"), "orderId")
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))

	_, err = PathUUID(httptest.NewRequest(http.MethodGet, "/", nil), "orderId")
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
}

func TestQueryUUIDOptional(t *testing.T) {
	got, err := QueryUUID(httptest.NewRequest(http.MethodGet, "/?variant_id=", nil), "variant_id")
	require.NoError(t, err)
	assert.Nil(t, got)

	_, err = QueryUUID(httptest.NewRequest(http.MethodGet, "/?variant_id=x", nil), "variant_id")
	assert.Error(t, err)
}

func TestParseQueryInt(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/?limit=20&bad=x&big=500", nil)

	v, err := ParseQueryInt(req, "limit", 10, 1, 100)
	require.NoError(t, err)
	assert.Equal(t, 20, v)

	v, err = ParseQueryInt(req, "missing", 10, 1, 100)
	require.NoError(t, err)
	assert.Equal(t, 10, v)

	_, err = ParseQueryInt(req, "bad", 10, 1, 100)
	assert.Error(t, err)
	_, err = ParseQueryInt(req, "big", 10, 1, 100)
	assert.Error(t, err)
}

func TestSanitizeString(t *testing.T) {
	assert.Equal(t, "leave at door", SanitizeString("  leave at\x00 door \x07 ", 0))
	assert.Equal(t, "line1\nline2", SanitizeString("line1\nline2", 0))
	assert.Equal(t, "héll", SanitizeString("héllo", 4))
}
