package telemetry

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Attribute keys for spans. HTTP keys follow OpenTelemetry semantic
// conventions; domain keys use the entity prefix they describe.
const (
	// Client attributes
	AttrClientIP   = "client.ip"
	AttrClientAddr = "client.address"

	// HTTP attributes
	AttrHTTPMethod = "http.request.method"
	AttrHTTPRoute  = "http.route"
	AttrHTTPStatus = "http.response.status_code"

	// Workspace and file attributes
	AttrWorkspaceID = "workspace.id"
	AttrFilePath    = "file.path"
	AttrFileETag    = "file.etag"
	AttrFileSize    = "file.size"

	// Append log attributes
	AttrAppendID   = "append.id"
	AttrAppendType = "append.type"
	AttrAuthor     = "append.author"
	AttrClaimRef   = "claim.ref"

	// Credential attributes
	AttrKeyID      = "key.id"
	AttrPermission = "key.permission"

	// Webhook delivery attributes
	AttrWebhookID       = "webhook.id"
	AttrDeliveryID      = "delivery.id"
	AttrDeliveryAttempt = "delivery.attempt"

	// Export attributes
	AttrExportID  = "export.id"
	AttrFileCount = "export.file_count"

	// Artifact storage attributes
	AttrStoreType = "store.type"
	AttrBucket    = "storage.bucket"
	AttrKey       = "storage.key"
	AttrRegion    = "storage.region"
)

// Span names. Format: <component>.<operation>.
const (
	SpanHTTPRequest     = "http.request"
	SpanWebhookDelivery = "webhook.delivery"
	SpanExportJob       = "export.job"
	SpanStoreQuery      = "store.query"
)

// ============================================================================
// Attribute constructors
// ============================================================================

func ClientIP(ip string) attribute.KeyValue {
	return attribute.String(AttrClientIP, ip)
}

func ClientAddr(addr string) attribute.KeyValue {
	return attribute.String(AttrClientAddr, addr)
}

func HTTPMethod(method string) attribute.KeyValue {
	return attribute.String(AttrHTTPMethod, method)
}

func HTTPRoute(route string) attribute.KeyValue {
	return attribute.String(AttrHTTPRoute, route)
}

func HTTPStatus(code int) attribute.KeyValue {
	return attribute.Int(AttrHTTPStatus, code)
}

func WorkspaceID(id string) attribute.KeyValue {
	return attribute.String(AttrWorkspaceID, id)
}

func FilePath(path string) attribute.KeyValue {
	return attribute.String(AttrFilePath, path)
}

func FileETag(etag string) attribute.KeyValue {
	return attribute.String(AttrFileETag, etag)
}

func FileSize(size int64) attribute.KeyValue {
	return attribute.Int64(AttrFileSize, size)
}

func AppendID(id string) attribute.KeyValue {
	return attribute.String(AttrAppendID, id)
}

func AppendType(t string) attribute.KeyValue {
	return attribute.String(AttrAppendType, t)
}

func Author(author string) attribute.KeyValue {
	return attribute.String(AttrAuthor, author)
}

func ClaimRef(ref string) attribute.KeyValue {
	return attribute.String(AttrClaimRef, ref)
}

func KeyID(id string) attribute.KeyValue {
	return attribute.String(AttrKeyID, id)
}

func Permission(perm string) attribute.KeyValue {
	return attribute.String(AttrPermission, perm)
}

func WebhookID(id string) attribute.KeyValue {
	return attribute.String(AttrWebhookID, id)
}

func DeliveryID(id string) attribute.KeyValue {
	return attribute.String(AttrDeliveryID, id)
}

func DeliveryAttempt(n int) attribute.KeyValue {
	return attribute.Int(AttrDeliveryAttempt, n)
}

func ExportID(id string) attribute.KeyValue {
	return attribute.String(AttrExportID, id)
}

func FileCount(n int) attribute.KeyValue {
	return attribute.Int(AttrFileCount, n)
}

func StoreType(t string) attribute.KeyValue {
	return attribute.String(AttrStoreType, t)
}

func Bucket(name string) attribute.KeyValue {
	return attribute.String(AttrBucket, name)
}

func StorageKey(key string) attribute.KeyValue {
	return attribute.String(AttrKey, key)
}

func Region(region string) attribute.KeyValue {
	return attribute.String(AttrRegion, region)
}

// ============================================================================
// Span helpers
// ============================================================================

// StartRequestSpan starts a server span for an incoming HTTP request.
// The route pattern is attached later once chi has matched it.
func StartRequestSpan(ctx context.Context, method, path string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	allAttrs := make([]attribute.KeyValue, 0, len(attrs)+2)
	allAttrs = append(allAttrs, HTTPMethod(method), attribute.String("url.path", path))
	allAttrs = append(allAttrs, attrs...)

	return Tracer().Start(ctx, SpanHTTPRequest,
		trace.WithSpanKind(trace.SpanKindServer),
		trace.WithAttributes(allAttrs...),
	)
}

// StartDeliverySpan starts a client span for one webhook delivery attempt.
func StartDeliverySpan(ctx context.Context, webhookID, deliveryID string, attempt int, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	allAttrs := make([]attribute.KeyValue, 0, len(attrs)+3)
	allAttrs = append(allAttrs, WebhookID(webhookID), DeliveryID(deliveryID), DeliveryAttempt(attempt))
	allAttrs = append(allAttrs, attrs...)

	return Tracer().Start(ctx, SpanWebhookDelivery,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(allAttrs...),
	)
}

// StartExportSpan starts an internal span for an export job run.
func StartExportSpan(ctx context.Context, exportID, workspaceID string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	allAttrs := make([]attribute.KeyValue, 0, len(attrs)+2)
	allAttrs = append(allAttrs, ExportID(exportID), WorkspaceID(workspaceID))
	allAttrs = append(allAttrs, attrs...)

	return Tracer().Start(ctx, SpanExportJob,
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(allAttrs...),
	)
}

// StartStoreSpan starts an internal span for a database operation.
func StartStoreSpan(ctx context.Context, operation string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	allAttrs := make([]attribute.KeyValue, 0, len(attrs)+1)
	allAttrs = append(allAttrs, attribute.String("db.operation.name", operation))
	allAttrs = append(allAttrs, attrs...)

	return Tracer().Start(ctx, SpanStoreQuery,
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(allAttrs...),
	)
}
