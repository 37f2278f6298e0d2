package gateway

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel/trace"

	"github.com/xenking/kart-checkout/internal/domain/payment"
)

// TokenConfig configures the card token gateway.
type TokenConfig struct {
	BaseURL   string
	SecretKey string
	Currency  string
	// TracerProvider instruments outgoing requests. Optional.
	TracerProvider trace.TracerProvider
}

// Token charges tokenized cards through the provider's charges API.
type Token struct {
	cfg    TokenConfig
	client *http.Client
}

var _ payment.Gateway = (*Token)(nil)

// NewToken creates a Token gateway. Request deadlines come from the context
// passed to Charge.
func NewToken(cfg TokenConfig) *Token {
	opts := []otelhttp.Option{
		otelhttp.WithSpanNameFormatter(func(_ string, r *http.Request) string {
			return "gateway " + r.Method + " " + r.URL.Path
		}),
	}
	if cfg.TracerProvider != nil {
		opts = append(opts, otelhttp.WithTracerProvider(cfg.TracerProvider))
	}
	return &Token{
		cfg: cfg,
		client: &http.Client{
			Transport: otelhttp.NewTransport(http.DefaultTransport, opts...),
			Timeout:   30 * time.Second,
		},
	}
}

// Charge creates a charge for req. Provider rejections are returned as a
// failed ChargeResult; an error means the provider could not be reached or
// answered with a server error.
func (t *Token) Charge(ctx context.Context, req payment.ChargeRequest) (payment.ChargeResult, error) {
	body := encodeCharge(req, t.cfg.Currency)

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, strings.TrimRight(t.cfg.BaseURL, "/")+"/v1/charges", bytes.NewReader(body))
	if err != nil {
		return payment.ChargeResult{}, errors.Wrap(err, "create request")
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+t.cfg.SecretKey)
	httpReq.Header.Set("Idempotency-Key", req.OrderRef+"-"+req.Amount.StringFixed(0))

	resp, err := t.client.Do(httpReq)
	if err != nil {
		return payment.ChargeResult{}, errors.Wrap(err, "send charge")
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return payment.ChargeResult{}, errors.Wrap(err, "read response")
	}

	switch {
	case resp.StatusCode >= 500:
		return payment.ChargeResult{}, errors.Errorf("gateway status %d", resp.StatusCode)
	case resp.StatusCode >= 400:
		gErr, err := decodeError(data)
		if err != nil {
			return payment.ChargeResult{}, errors.Wrapf(err, "decode error response (status %d)", resp.StatusCode)
		}
		return payment.ChargeResult{Status: payment.StatusFailed, Error: gErr}, nil
	default:
		res, err := decodeCharge(data)
		if err != nil {
			return payment.ChargeResult{}, errors.Wrap(err, "decode charge")
		}
		return res, nil
	}
}

func encodeCharge(req payment.ChargeRequest, currency string) []byte {
	var e jx.Encoder
	e.ObjStart()
	e.FieldStart("amount")
	e.Int64(req.Amount.IntPart())
	e.FieldStart("currency")
	e.Str(currency)
	if src := sourceOf(req.Source); src != "" {
		e.FieldStart("source")
		e.Str(src)
	}
	e.FieldStart("description")
	e.Str("Order " + req.OrderRef)
	e.FieldStart("metadata")
	e.ObjStart()
	e.FieldStart("order_ref")
	e.Str(req.OrderRef)
	e.ObjEnd()
	e.ObjEnd()
	return e.Bytes()
}

func sourceOf(s payment.Source) string {
	if s.SavedCardID != "" {
		return s.SavedCardID
	}
	return s.Token
}

func decodeCharge(data []byte) (payment.ChargeResult, error) {
	var res payment.ChargeResult
	var status, code, message string
	err := jx.DecodeBytes(data).Obj(func(d *jx.Decoder, key string) error {
		var err error
		switch key {
		case "id":
			res.Reference, err = d.Str()
		case "status":
			status, err = d.Str()
		case "failure_code":
			if d.Next() == jx.Null {
				return d.Null()
			}
			code, err = d.Str()
		case "failure_message":
			if d.Next() == jx.Null {
				return d.Null()
			}
			message, err = d.Str()
		default:
			return d.Skip()
		}
		return err
	})
	if err != nil {
		return payment.ChargeResult{}, err
	}

	switch status {
	case "succeeded":
		res.Status = payment.StatusSettled
	case "pending":
		res.Status = payment.StatusPending
	default:
		res.Status = payment.StatusFailed
		res.Error = &payment.GatewayError{Type: payment.ErrTypeCard, Code: code, Message: message}
	}
	return res, nil
}

func decodeError(data []byte) (*payment.GatewayError, error) {
	var gErr payment.GatewayError
	err := jx.DecodeBytes(data).Obj(func(d *jx.Decoder, key string) error {
		if key != "error" {
			return d.Skip()
		}
		return d.Obj(func(d *jx.Decoder, key string) error {
			var err error
			switch key {
			case "type":
				gErr.Type, err = d.Str()
			case "code":
				gErr.Code, err = d.Str()
			case "message":
				gErr.Message, err = d.Str()
			default:
				return d.Skip()
			}
			return err
		})
	})
	if err != nil {
		return nil, err
	}
	if gErr.Type == "" {
		return nil, errors.New("missing error envelope")
	}
	return &gErr, nil
}
