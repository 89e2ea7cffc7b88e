package orchestrator

import (
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

var meter = otel.Meter("socialpulse/backend/orchestrator")

var (
	taskRuns, _ = meter.Int64Counter("orchestrator.platform_tasks",
		metric.WithDescription("Platform ingestion/analysis tasks attempted"))
	handshakes, _ = meter.Int64Counter("orchestrator.handshakes",
		metric.WithDescription("Connection handshake attempts by outcome"))
	stepAdvances, _ = meter.Int64Counter("orchestrator.step_advances",
		metric.WithDescription("Workflow step advance attempts by outcome"))
)

func platformAttrs(platform, phase string, success bool) metric.MeasurementOption {
	return metric.WithAttributes(
		attribute.String("platform", platform),
		attribute.String("phase", phase),
		attribute.Bool("success", success),
	)
}

func outcomeAttrs(outcome string) metric.MeasurementOption {
	return metric.WithAttributes(attribute.String("outcome", outcome))
}
