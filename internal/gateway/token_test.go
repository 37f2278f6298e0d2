package gateway

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-faster/jx"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xenking/kart-checkout/internal/domain/payment"
)

func chargeRequest() payment.ChargeRequest {
	return payment.ChargeRequest{
		Method:   payment.MethodStripe,
		OrderRef: "K1",
		Amount:   decimal.NewFromInt(420_000),
		Source:   payment.Source{Token: "tok_visa"},
	}
}

func TestToken_Charge(t *testing.T) {
	for _, tt := range []struct {
		name   string
		status int
		body   string
		check  func(t *testing.T, res payment.ChargeResult, err error)
	}{
		{
			name:   "Succeeded",
			status: http.StatusOK,
			body:   `{"id":"ch_1","status":"succeeded","failure_code":null,"amount":420000}`,
			check: func(t *testing.T, res payment.ChargeResult, err error) {
				require.NoError(t, err)
				assert.Equal(t, payment.StatusSettled, res.Status)
				assert.Equal(t, "ch_1", res.Reference)
				assert.Nil(t, res.Error)
			},
		},
		{
			name:   "FailedCharge",
			status: http.StatusOK,
			body:   `{"id":"ch_2","status":"failed","failure_code":"expired_card","failure_message":"expired"}`,
			check: func(t *testing.T, res payment.ChargeResult, err error) {
				require.NoError(t, err)
				assert.Equal(t, payment.StatusFailed, res.Status)
				require.NotNil(t, res.Error)
				assert.Equal(t, "expired_card", res.Error.Code)
			},
		},
		{
			name:   "Declined",
			status: http.StatusPaymentRequired,
			body:   `{"error":{"type":"card_error","code":"card_declined","message":"Your card was declined.","decline_code":"generic_decline"}}`,
			check: func(t *testing.T, res payment.ChargeResult, err error) {
				require.NoError(t, err)
				assert.Equal(t, payment.StatusFailed, res.Status)
				require.NotNil(t, res.Error)
				assert.Equal(t, payment.ErrTypeCard, res.Error.Type)
				assert.Equal(t, "card_declined", res.Error.Code)
			},
		},
		{
			name:   "ParameterMissing",
			status: http.StatusBadRequest,
			body:   `{"error":{"type":"invalid_request_error","code":"parameter_missing","message":"Missing source"}}`,
			check: func(t *testing.T, res payment.ChargeResult, err error) {
				require.NoError(t, err)
				require.NotNil(t, res.Error)
				assert.Equal(t, payment.ErrTypeInvalidRequest, res.Error.Type)
				assert.Equal(t, "parameter_missing", res.Error.Code)
			},
		},
		{
			name:   "ServerError",
			status: http.StatusBadGateway,
			body:   `upstream`,
			check: func(t *testing.T, _ payment.ChargeResult, err error) {
				require.Error(t, err)
			},
		},
		{
			name:   "GarbledError",
			status: http.StatusBadRequest,
			body:   `{"message":"nope"}`,
			check: func(t *testing.T, _ payment.ChargeResult, err error) {
				require.Error(t, err)
			},
		},
	} {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = io.WriteString(w, tt.body)
			}))
			defer srv.Close()

			gw := NewToken(TokenConfig{BaseURL: srv.URL, SecretKey: "sk_test", Currency: "vnd"})
			res, err := gw.Charge(context.Background(), chargeRequest())
			tt.check(t, res, err)
		})
	}
}

func TestToken_ChargeRequest(t *testing.T) {
	var path, auth, source, currency string
	var amount int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path = r.URL.Path
		auth = r.Header.Get("Authorization")
		data, _ := io.ReadAll(r.Body)
		_ = jx.DecodeBytes(data).Obj(func(d *jx.Decoder, key string) error {
			var err error
			switch key {
			case "amount":
				amount, err = d.Int64()
			case "source":
				source, err = d.Str()
			case "currency":
				currency, err = d.Str()
			default:
				return d.Skip()
			}
			return err
		})
		_, _ = io.WriteString(w, `{"id":"ch_1","status":"succeeded"}`)
	}))
	defer srv.Close()

	gw := NewToken(TokenConfig{BaseURL: srv.URL + "/", SecretKey: "sk_test", Currency: "vnd"})
	_, err := gw.Charge(context.Background(), chargeRequest())
	require.NoError(t, err)

	assert.Equal(t, "/v1/charges", path)
	assert.Equal(t, "Bearer sk_test", auth)
	assert.Equal(t, int64(420_000), amount)
	assert.Equal(t, "tok_visa", source)
	assert.Equal(t, "vnd", currency)
}

func TestToken_ChargeTimeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(time.Second):
		}
	}))
	defer srv.Close()

	gw := NewToken(TokenConfig{BaseURL: srv.URL})
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := gw.Charge(ctx, chargeRequest())
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
