package instrumentation

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Metrics holds all metric instruments for the credential lifecycle core.
type Metrics struct {
	// Flow metrics
	CodesIssued     metric.Int64Counter
	CodesRedeemed   metric.Int64Counter
	TokensIssued    metric.Int64Counter
	TokensRefreshed metric.Int64Counter
	TokensRevoked   metric.Int64Counter
	Logouts         metric.Int64Counter
	AuthFailures    metric.Int64Counter

	// Storage metrics
	StorageOperationTotal    metric.Int64Counter
	StorageOperationDuration metric.Float64Histogram
}

// newMetrics creates and registers all metric instruments.
func newMetrics(inst *Instrumentation) (*Metrics, error) {
	serverMeter := inst.Meter("server")
	storageMeter := inst.Meter("storage")

	m := &Metrics{}

	var err error
	m.CodesIssued, err = serverMeter.Int64Counter(
		"idp.authorization_codes.issued",
		metric.WithDescription("Number of authorization codes issued"),
		metric.WithUnit("{code}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create codes.issued counter: %w", err)
	}

	m.CodesRedeemed, err = serverMeter.Int64Counter(
		"idp.authorization_codes.redeemed",
		metric.WithDescription("Number of authorization code redemptions"),
		metric.WithUnit("{code}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create codes.redeemed counter: %w", err)
	}

	m.TokensIssued, err = serverMeter.Int64Counter(
		"idp.tokens.issued",
		metric.WithDescription("Number of token sets issued"),
		metric.WithUnit("{token_set}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create tokens.issued counter: %w", err)
	}

	m.TokensRefreshed, err = serverMeter.Int64Counter(
		"idp.tokens.refreshed",
		metric.WithDescription("Number of refresh token rotations"),
		metric.WithUnit("{token_set}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create tokens.refreshed counter: %w", err)
	}

	m.TokensRevoked, err = serverMeter.Int64Counter(
		"idp.tokens.revoked",
		metric.WithDescription("Number of token revocations"),
		metric.WithUnit("{token}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create tokens.revoked counter: %w", err)
	}

	m.Logouts, err = serverMeter.Int64Counter(
		"idp.logouts",
		metric.WithDescription("Number of global logouts processed"),
		metric.WithUnit("{logout}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create logouts counter: %w", err)
	}

	m.AuthFailures, err = serverMeter.Int64Counter(
		"idp.auth.failures",
		metric.WithDescription("Number of failed credential-lifecycle operations"),
		metric.WithUnit("{failure}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create auth.failures counter: %w", err)
	}

	m.StorageOperationTotal, err = storageMeter.Int64Counter(
		"idp.storage.operations.total",
		metric.WithDescription("Total number of storage operations"),
		metric.WithUnit("{operation}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create storage.operations.total counter: %w", err)
	}

	m.StorageOperationDuration, err = storageMeter.Float64Histogram(
		"idp.storage.operation.duration",
		metric.WithDescription("Storage operation duration in milliseconds"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create storage.operation.duration histogram: %w", err)
	}

	return m, nil
}

// RecordCodeIssued increments the authorization-code issuance counter.
func (m *Metrics) RecordCodeIssued(ctx context.Context, clientID string) {
	m.CodesIssued.Add(ctx, 1, metric.WithAttributes(
		attribute.String("client_id", clientID),
	))
}

// RecordCodeRedeemed increments the redemption counter with its outcome.
func (m *Metrics) RecordCodeRedeemed(ctx context.Context, clientID string, success bool) {
	m.CodesRedeemed.Add(ctx, 1, metric.WithAttributes(
		attribute.String("client_id", clientID),
		attribute.Bool("success", success),
	))
}

// RecordTokenSetIssued increments the token issuance counter.
func (m *Metrics) RecordTokenSetIssued(ctx context.Context, clientID string) {
	m.TokensIssued.Add(ctx, 1, metric.WithAttributes(
		attribute.String("client_id", clientID),
	))
}

// RecordTokenRefreshed increments the rotation counter.
func (m *Metrics) RecordTokenRefreshed(ctx context.Context, clientID string) {
	m.TokensRefreshed.Add(ctx, 1, metric.WithAttributes(
		attribute.String("client_id", clientID),
	))
}

// RecordTokenRevoked increments the revocation counter.
func (m *Metrics) RecordTokenRevoked(ctx context.Context, clientID, tokenType string) {
	m.TokensRevoked.Add(ctx, 1, metric.WithAttributes(
		attribute.String("client_id", clientID),
		attribute.String("token_type", tokenType),
	))
}

// RecordLogout increments the logout counter.
func (m *Metrics) RecordLogout(ctx context.Context, clientCount int) {
	m.Logouts.Add(ctx, 1, metric.WithAttributes(
		attribute.Int("notified_clients", clientCount),
	))
}

// RecordAuthFailure increments the failure counter for an operation.
func (m *Metrics) RecordAuthFailure(ctx context.Context, operation string) {
	m.AuthFailures.Add(ctx, 1, metric.WithAttributes(
		attribute.String("operation", operation),
	))
}

// RecordStorageOperation records one storage operation and its duration.
func (m *Metrics) RecordStorageOperation(ctx context.Context, operation, result string, durationMs float64) {
	attrs := metric.WithAttributes(
		attribute.String("operation", operation),
		attribute.String("result", result),
	)
	m.StorageOperationTotal.Add(ctx, 1, attrs)
	m.StorageOperationDuration.Record(ctx, durationMs, attrs)
}
