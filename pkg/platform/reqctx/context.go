// Package reqctx carries the two request ids that follow an entity update from the
// HTTP boundary through both queues: ours (internal) and the caller's (external).
package reqctx

import "context"

type key int

const (
	internalRequestIDKey key = iota
	externalRequestIDKey
)

// HeaderExternalRequestID is the HTTP header a caller may use to correlate its own id.
const HeaderExternalRequestID = "X-External-Request-Id"

func WithRequestIDs(ctx context.Context, internalID, externalID string) context.Context {
	if internalID != "" {
		ctx = context.WithValue(ctx, internalRequestIDKey, internalID)
	}
	if externalID != "" {
		ctx = context.WithValue(ctx, externalRequestIDKey, externalID)
	}
	return ctx
}

func InternalRequestID(ctx context.Context) string {
	id, _ := ctx.Value(internalRequestIDKey).(string)
	return id
}

func ExternalRequestID(ctx context.Context) string {
	id, _ := ctx.Value(externalRequestIDKey).(string)
	return id
}

// Fields returns the ids present on ctx as log fields.
func Fields(ctx context.Context) map[string]any {
	fields := map[string]any{}
	if id := InternalRequestID(ctx); id != "" {
		fields["internal_request_id"] = id
	}
	if id := ExternalRequestID(ctx); id != "" {
		fields["external_request_id"] = id
	}
	return fields
}
