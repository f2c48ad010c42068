package telemetry

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/codes"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.False(t, cfg.Enabled)
	assert.Equal(t, "marklog", cfg.ServiceName)
	assert.Equal(t, "dev", cfg.ServiceVersion)
	assert.Equal(t, "localhost:4317", cfg.Endpoint)
	assert.True(t, cfg.Insecure)
	assert.Equal(t, 1.0, cfg.SampleRate)
}

func TestInitDisabled(t *testing.T) {
	ctx := context.Background()
	cfg := DefaultConfig()
	cfg.Enabled = false

	shutdown, err := Init(ctx, cfg)
	require.NoError(t, err)
	require.NotNil(t, shutdown)

	// Should be able to call shutdown without error
	err = shutdown(ctx)
	assert.NoError(t, err)

	// Should not be enabled
	assert.False(t, IsEnabled())
}

func TestTracerReturnsNoOp(t *testing.T) {
	// Reset state
	tracer = nil
	enabled = false

	// Without initialization, should return no-op tracer
	tr := Tracer()
	require.NotNil(t, tr)
}

func TestStartSpan(t *testing.T) {
	ctx := context.Background()

	// Even without initialization, StartSpan should work (no-op)
	newCtx, span := StartSpan(ctx, "test.operation")
	require.NotNil(t, newCtx)
	require.NotNil(t, span)

	// Should be able to end the span
	span.End()
}

func TestSpanFromContext(t *testing.T) {
	ctx := context.Background()

	// Should return a span even without active span
	span := SpanFromContext(ctx)
	require.NotNil(t, span)
}

func TestAddEvent(t *testing.T) {
	ctx := context.Background()

	// Should not panic with no active span
	require.NotPanics(t, func() {
		AddEvent(ctx, "test.event")
	})
}

func TestRecordError(t *testing.T) {
	ctx := context.Background()

	// Should not panic with nil error
	require.NotPanics(t, func() {
		RecordError(ctx, nil)
	})

	// Should not panic with error
	require.NotPanics(t, func() {
		RecordError(ctx, errors.New("test error"))
	})
}

func TestSetStatus(t *testing.T) {
	ctx := context.Background()

	// Should not panic
	require.NotPanics(t, func() {
		SetStatus(ctx, codes.Ok, "success")
	})

	require.NotPanics(t, func() {
		SetStatus(ctx, codes.Error, "failed")
	})
}

func TestSetAttributes(t *testing.T) {
	ctx := context.Background()

	// Should not panic
	require.NotPanics(t, func() {
		SetAttributes(ctx, ClientIP("192.168.1.1"))
	})
}

func TestTraceID(t *testing.T) {
	ctx := context.Background()

	// Without active span, should return empty string
	traceID := TraceID(ctx)
	assert.Equal(t, "", traceID)
}

func TestSpanID(t *testing.T) {
	ctx := context.Background()

	// Without active span, should return empty string
	spanID := SpanID(ctx)
	assert.Equal(t, "", spanID)
}

func TestAttributeHelpers(t *testing.T) {
	t.Run("ClientIP", func(t *testing.T) {
		attr := ClientIP("192.168.1.100")
		assert.Equal(t, AttrClientIP, string(attr.Key))
		assert.Equal(t, "192.168.1.100", attr.Value.AsString())
	})

	t.Run("ClientAddr", func(t *testing.T) {
		attr := ClientAddr("192.168.1.100:12345")
		assert.Equal(t, AttrClientAddr, string(attr.Key))
		assert.Equal(t, "192.168.1.100:12345", attr.Value.AsString())
	})

	t.Run("HTTPMethod", func(t *testing.T) {
		attr := HTTPMethod("PUT")
		assert.Equal(t, AttrHTTPMethod, string(attr.Key))
		assert.Equal(t, "PUT", attr.Value.AsString())
	})

	t.Run("HTTPRoute", func(t *testing.T) {
		attr := HTTPRoute("/w/{key}/*")
		assert.Equal(t, AttrHTTPRoute, string(attr.Key))
		assert.Equal(t, "/w/{key}/*", attr.Value.AsString())
	})

	t.Run("HTTPStatus", func(t *testing.T) {
		attr := HTTPStatus(412)
		assert.Equal(t, AttrHTTPStatus, string(attr.Key))
		assert.Equal(t, int64(412), attr.Value.AsInt64())
	})

	t.Run("WorkspaceID", func(t *testing.T) {
		attr := WorkspaceID("ws_abc123")
		assert.Equal(t, AttrWorkspaceID, string(attr.Key))
		assert.Equal(t, "ws_abc123", attr.Value.AsString())
	})

	t.Run("FilePath", func(t *testing.T) {
		attr := FilePath("/tasks/backlog.md")
		assert.Equal(t, AttrFilePath, string(attr.Key))
		assert.Equal(t, "/tasks/backlog.md", attr.Value.AsString())
	})

	t.Run("FileETag", func(t *testing.T) {
		attr := FileETag("a1b2c3d4e5f60718")
		assert.Equal(t, AttrFileETag, string(attr.Key))
		assert.Equal(t, "a1b2c3d4e5f60718", attr.Value.AsString())
	})

	t.Run("FileSize", func(t *testing.T) {
		attr := FileSize(1048576)
		assert.Equal(t, AttrFileSize, string(attr.Key))
		assert.Equal(t, int64(1048576), attr.Value.AsInt64())
	})

	t.Run("AppendID", func(t *testing.T) {
		attr := AppendID("a42")
		assert.Equal(t, AttrAppendID, string(attr.Key))
		assert.Equal(t, "a42", attr.Value.AsString())
	})

	t.Run("AppendType", func(t *testing.T) {
		attr := AppendType("claim")
		assert.Equal(t, AttrAppendType, string(attr.Key))
		assert.Equal(t, "claim", attr.Value.AsString())
	})

	t.Run("Author", func(t *testing.T) {
		attr := Author("agent-7")
		assert.Equal(t, AttrAuthor, string(attr.Key))
		assert.Equal(t, "agent-7", attr.Value.AsString())
	})

	t.Run("KeyID", func(t *testing.T) {
		attr := KeyID("key_abc")
		assert.Equal(t, AttrKeyID, string(attr.Key))
		assert.Equal(t, "key_abc", attr.Value.AsString())
	})

	t.Run("WebhookID", func(t *testing.T) {
		attr := WebhookID("wh_123")
		assert.Equal(t, AttrWebhookID, string(attr.Key))
		assert.Equal(t, "wh_123", attr.Value.AsString())
	})

	t.Run("DeliveryAttempt", func(t *testing.T) {
		attr := DeliveryAttempt(3)
		assert.Equal(t, AttrDeliveryAttempt, string(attr.Key))
		assert.Equal(t, int64(3), attr.Value.AsInt64())
	})

	t.Run("ExportID", func(t *testing.T) {
		attr := ExportID("exp_9")
		assert.Equal(t, AttrExportID, string(attr.Key))
		assert.Equal(t, "exp_9", attr.Value.AsString())
	})

	t.Run("Bucket", func(t *testing.T) {
		attr := Bucket("my-bucket")
		assert.Equal(t, AttrBucket, string(attr.Key))
		assert.Equal(t, "my-bucket", attr.Value.AsString())
	})

	t.Run("StorageKey", func(t *testing.T) {
		attr := StorageKey("path/to/object")
		assert.Equal(t, AttrKey, string(attr.Key))
		assert.Equal(t, "path/to/object", attr.Value.AsString())
	})
}

func TestStartRequestSpan(t *testing.T) {
	ctx := context.Background()

	newCtx, span := StartRequestSpan(ctx, "GET", "/w/abc/notes.md")
	require.NotNil(t, newCtx)
	require.NotNil(t, span)
	span.End()

	// With additional attributes
	newCtx2, span2 := StartRequestSpan(ctx, "PUT", "/w/abc/notes.md", ClientIP("10.0.0.1"), WorkspaceID("ws_1"))
	require.NotNil(t, newCtx2)
	require.NotNil(t, span2)
	span2.End()
}

func TestStartDeliverySpan(t *testing.T) {
	ctx := context.Background()

	newCtx, span := StartDeliverySpan(ctx, "wh_1", "whd_1", 1)
	require.NotNil(t, newCtx)
	require.NotNil(t, span)
	span.End()

	newCtx2, span2 := StartDeliverySpan(ctx, "wh_1", "whd_2", 4, WorkspaceID("ws_1"))
	require.NotNil(t, newCtx2)
	require.NotNil(t, span2)
	span2.End()
}

func TestStartExportSpan(t *testing.T) {
	ctx := context.Background()

	newCtx, span := StartExportSpan(ctx, "exp_1", "ws_1")
	require.NotNil(t, newCtx)
	require.NotNil(t, span)
	span.End()

	newCtx2, span2 := StartExportSpan(ctx, "exp_2", "ws_1", FileCount(12), StoreType("s3"))
	require.NotNil(t, newCtx2)
	require.NotNil(t, span2)
	span2.End()
}
