package middleware

import "context"

type contextKey string

const (
	ctxUserID      contextKey = "user_id"
	ctxMobile      contextKey = "mobile"
	ctxDisplayName contextKey = "display_name"
)

func UserIDFromContext(ctx context.Context) string {
	return stringFromContext(ctx, ctxUserID)
}

// MobileFromContext returns the verified phone number carried by the caller's token.
func MobileFromContext(ctx context.Context) string {
	return stringFromContext(ctx, ctxMobile)
}

func DisplayNameFromContext(ctx context.Context) string {
	return stringFromContext(ctx, ctxDisplayName)
}

// WithIdentity injects the authenticated caller into the context.
func WithIdentity(ctx context.Context, userID, mobile, name string) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx = context.WithValue(ctx, ctxUserID, userID)
	ctx = context.WithValue(ctx, ctxMobile, mobile)
	return context.WithValue(ctx, ctxDisplayName, name)
}

func stringFromContext(ctx context.Context, key contextKey) string {
	if ctx == nil {
		return ""
	}
	if v, ok := ctx.Value(key).(string); ok {
		return v
	}
	return ""
}
