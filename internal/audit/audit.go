// internal/audit/audit.go
package audit

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

// Check is one steady-state property of the inventory, measured as a number
// and compared against a threshold.
type Check struct {
	Name       string
	Hypothesis string
	Query      func(context.Context) (float64, error)
	Threshold  Threshold
}

type Threshold struct {
	Operator string // >, <, >=, <=, ==
	Value    float64
}

// Holds reports whether value satisfies the threshold. Unknown operators never hold.
func (t Threshold) Holds(value float64) bool {
	switch t.Operator {
	case ">":
		return value > t.Value
	case "<":
		return value < t.Value
	case ">=":
		return value >= t.Value
	case "<=":
		return value <= t.Value
	case "==":
		return value == t.Value
	default:
		return false
	}
}

// CheckResult is the outcome of one check.
type CheckResult struct {
	Name       string  `json:"name"`
	Hypothesis string  `json:"hypothesis"`
	Expected   string  `json:"expected"`
	Actual     float64 `json:"actual"`
	Held       bool    `json:"held"`
	Error      string  `json:"error,omitempty"`
}

// Report collects one audit run.
type Report struct {
	StartTime time.Time     `json:"start_time"`
	EndTime   time.Time     `json:"end_time"`
	Duration  time.Duration `json:"duration"`
	Healthy   bool          `json:"healthy"`
	Results   []CheckResult `json:"results"`
}

// Violations returns the checks that did not hold.
func (r *Report) Violations() []CheckResult {
	var out []CheckResult
	for _, c := range r.Results {
		if !c.Held {
			out = append(out, c)
		}
	}
	return out
}

// Auditor runs registered checks.
type Auditor struct {
	tracer     trace.Tracer
	logger     *slog.Logger
	violations metric.Int64Counter
	checks     []Check
	mu         sync.Mutex
}

func NewAuditor(logger *slog.Logger) *Auditor {
	if logger == nil {
		logger = slog.Default()
	}
	a := &Auditor{
		tracer: otel.Tracer("libradesk/audit"),
		logger: logger.With("component", "audit"),
	}
	a.violations, _ = otel.Meter("libradesk/audit").Int64Counter("audit.violations",
		metric.WithDescription("Inventory checks that did not hold"))
	return a
}

// Register adds checks to the audit.
func (a *Auditor) Register(checks ...Check) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.checks = append(a.checks, checks...)
}

// Checks returns the registered checks.
func (a *Auditor) Checks() []Check {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]Check(nil), a.checks...)
}

// Run evaluates every check once. A check whose query fails counts as not held.
func (a *Auditor) Run(ctx context.Context) *Report {
	ctx, span := a.tracer.Start(ctx, "audit.run")
	defer span.End()

	report := &Report{StartTime: time.Now(), Healthy: true}
	for _, c := range a.Checks() {
		res := CheckResult{
			Name:       c.Name,
			Hypothesis: c.Hypothesis,
			Expected:   c.Threshold.Operator + " " + formatValue(c.Threshold.Value),
		}
		value, err := c.Query(ctx)
		switch {
		case err != nil:
			res.Actual = -1
			res.Error = err.Error()
			span.RecordError(err)
		default:
			res.Actual = value
			res.Held = c.Threshold.Holds(value)
		}
		if !res.Held {
			report.Healthy = false
			a.violations.Add(ctx, 1, metric.WithAttributes(attribute.String("check", c.Name)))
			a.logger.WarnContext(ctx, "audit check failed",
				"check", c.Name, "expected", res.Expected, "actual", res.Actual, "error", res.Error)
		}
		report.Results = append(report.Results, res)
	}
	report.EndTime = time.Now()
	report.Duration = report.EndTime.Sub(report.StartTime)

	span.SetAttributes(
		attribute.Bool("audit.healthy", report.Healthy),
		attribute.Int("audit.violations", len(report.Violations())),
	)
	return report
}
