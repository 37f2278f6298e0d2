package handler

import (
	"context"
	"net/http"
	"strings"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/xenking/kart-checkout/internal/domain/account"
	"github.com/xenking/kart-checkout/internal/domain/checkout"
)

type accountKey struct{}

// accountFrom returns the authenticated account of the request.
func accountFrom(ctx context.Context) *account.Account {
	acc, _ := ctx.Value(accountKey{}).(*account.Account)
	return acc
}

func customerOf(ctx context.Context) checkout.Customer {
	acc := accountFrom(ctx)
	if acc == nil {
		return checkout.Customer{}
	}
	return checkout.Customer{ID: acc.ID, Email: acc.Email}
}

// Authenticate resolves the bearer session token and stores the account in
// the request context.
func (h *Handler) Authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, ok := bearerToken(r.Header.Get("Authorization"))
		if !ok {
			writeError(w, r, account.ErrUnauthorized)
			return
		}
		acc, err := h.auth.Authenticate(r.Context(), token)
		if err != nil {
			if !errors.Is(err, account.ErrUnauthorized) {
				err = errors.Wrap(err, "authenticate")
			}
			writeError(w, r, err)
			return
		}

		ctx := context.WithValue(r.Context(), accountKey{}, acc)
		ctx = zctx.With(ctx, zap.String("account_id", acc.ID))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func bearerToken(header string) (string, bool) {
	scheme, token, ok := strings.Cut(header, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}
