// ABOUTME: Tests for the no-op tracing path when no OTLP endpoint is configured

package observability

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSetupTracing_EmptyEndpointReturnsNoopShutdown(t *testing.T) {
	shutdown, err := SetupTracing(context.Background(), "skillserver", "")
	require.NoError(t, err)
	require.NoError(t, shutdown(context.Background()))
}
