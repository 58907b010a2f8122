// Package auditctx carries request origin details from the HTTP edge down to
// the audit trail without threading them through every service signature.
package auditctx

import "context"

// Origin describes where a request came from.
type Origin struct {
	IPAddress string
	UserAgent string
}

type originKey struct{}

const maxUserAgent = 255

// WithOrigin returns a derived context carrying origin.
func WithOrigin(ctx context.Context, origin Origin) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	if len(origin.UserAgent) > maxUserAgent {
		origin.UserAgent = origin.UserAgent[:maxUserAgent]
	}
	return context.WithValue(ctx, originKey{}, origin)
}

// FromContext extracts the origin stored by WithOrigin.
func FromContext(ctx context.Context) (Origin, bool) {
	if ctx == nil {
		return Origin{}, false
	}
	origin, ok := ctx.Value(originKey{}).(Origin)
	return origin, ok
}
