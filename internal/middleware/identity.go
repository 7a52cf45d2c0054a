package middleware

import (
	"context"
	"net/http"
	"strings"
)

// CustomerIDHeader carries the authenticated customer id set by the
// upstream gateway. Requests without it are guest requests.
const CustomerIDHeader = "X-Customer-ID"

type customerIDKey struct{}

// Identity stores the caller's customer id in the request context.
func Identity(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if id := strings.TrimSpace(r.Header.Get(CustomerIDHeader)); id != "" {
			r = r.WithContext(WithCustomerID(r.Context(), id))
		}
		next.ServeHTTP(w, r)
	})
}

// WithCustomerID returns a context carrying the customer id.
func WithCustomerID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, customerIDKey{}, id)
}

// CustomerID returns the caller's customer id, or false for guests.
func CustomerID(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(customerIDKey{}).(string)
	return id, ok && id != ""
}
