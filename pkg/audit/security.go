// Package audit writes security-relevant events about Dune executions as
// structured log lines for SIEM consumption.
package audit

import (
	"context"
	"encoding/json"
	"time"

	"go.uber.org/zap"

	"github.com/dunelens/dunelens/pkg/logging"
)

// SecurityEventType categorizes security-relevant events for filtering and alerting.
type SecurityEventType string

const (
	// EventSQLInjectionAttempt is logged when libinjection flags a parameter value.
	EventSQLInjectionAttempt SecurityEventType = "sql_injection_attempt"
	// EventParameterValidation is logged when parameters do not match the query.
	EventParameterValidation SecurityEventType = "parameter_validation_failure"
	// EventQueryExecution is logged when a Dune execution is started.
	EventQueryExecution SecurityEventType = "query_execution"
)

// SecurityEvent is one auditable event.
type SecurityEvent struct {
	Timestamp   time.Time         `json:"timestamp"`
	EventType   SecurityEventType `json:"event_type"`
	DuneQueryID int64             `json:"dune_query_id"`
	ClientIP    string            `json:"client_ip,omitempty"`
	Details     any               `json:"details"`
	Severity    string            `json:"severity"` // info, warning, critical
}

// SQLInjectionDetails contains specifics of a flagged parameter value.
type SQLInjectionDetails struct {
	ParamName   string `json:"param_name"`
	ParamValue  string `json:"param_value"`
	Fingerprint string `json:"fingerprint"` // libinjection fingerprint for pattern analysis
}

type clientIPKey struct{}

// WithClientIP records the caller's address for events logged under ctx.
func WithClientIP(ctx context.Context, ip string) context.Context {
	return context.WithValue(ctx, clientIPKey{}, ip)
}

// ClientIPFromContext returns the address set by WithClientIP, or "".
func ClientIPFromContext(ctx context.Context) string {
	ip, _ := ctx.Value(clientIPKey{}).(string)
	return ip
}

// SecurityAuditor logs security events under the "security_audit" logger name.
type SecurityAuditor struct {
	logger *zap.Logger
	now    func() time.Time
}

// NewSecurityAuditor creates a new security auditor.
func NewSecurityAuditor(logger *zap.Logger) *SecurityAuditor {
	return &SecurityAuditor{logger: logger.Named("security_audit"), now: time.Now}
}

func (a *SecurityAuditor) event(ctx context.Context, t SecurityEventType, queryID int64, severity string, details any) (SecurityEvent, string) {
	event := SecurityEvent{
		Timestamp:   a.now().UTC(),
		EventType:   t,
		DuneQueryID: queryID,
		ClientIP:    ClientIPFromContext(ctx),
		Details:     details,
		Severity:    severity,
	}
	// Marshaling these known types cannot fail.
	eventJSON, _ := json.Marshal(event)
	return event, string(eventJSON)
}

// LogInjectionAttempt records a flagged parameter value at ERROR level with
// critical severity. The value is truncated and redacted before logging.
func (a *SecurityAuditor) LogInjectionAttempt(ctx context.Context, queryID int64, details SQLInjectionDetails) {
	details.ParamValue = logging.SanitizeQuery(details.ParamValue)
	event, eventJSON := a.event(ctx, EventSQLInjectionAttempt, queryID, "critical", details)

	a.logger.Error("SQL injection attempt detected",
		zap.String("event_json", eventJSON),
		zap.Int64("dune_query_id", queryID),
		zap.String("param_name", details.ParamName),
		zap.String("fingerprint", details.Fingerprint),
		zap.String("client_ip", event.ClientIP),
		zap.String("severity", event.Severity),
	)
}

// LogParameterValidation records parameters the query does not accept.
// These are usually user errors, so the level is WARN.
func (a *SecurityAuditor) LogParameterValidation(ctx context.Context, queryID int64, errorMessage string) {
	event, eventJSON := a.event(ctx, EventParameterValidation, queryID, "warning",
		map[string]string{"error": errorMessage})

	a.logger.Warn("Parameter validation failed",
		zap.String("event_json", eventJSON),
		zap.Int64("dune_query_id", queryID),
		zap.String("error", errorMessage),
		zap.String("client_ip", event.ClientIP),
		zap.String("severity", event.Severity),
	)
}

// LogQueryExecution records a started execution at INFO level.
func (a *SecurityAuditor) LogQueryExecution(ctx context.Context, queryID int64, executionID string, paramCount int) {
	event, eventJSON := a.event(ctx, EventQueryExecution, queryID, "info",
		map[string]any{"execution_id": executionID, "param_count": paramCount})

	a.logger.Info("Query executed",
		zap.String("event_json", eventJSON),
		zap.Int64("dune_query_id", queryID),
		zap.String("execution_id", executionID),
		zap.String("client_ip", event.ClientIP),
		zap.String("severity", event.Severity),
	)
}
