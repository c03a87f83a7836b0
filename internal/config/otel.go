package config

import "time"

// OtelConfig controls span export. An empty endpoint leaves tracing off.
type OtelConfig struct {
	ExporterEndpoint string        `env:"OTEL_EXPORTER_OTLP_ENDPOINT" envDefault:""`
	ServiceName      string        `env:"OTEL_SERVICE_NAME" envDefault:"subtickets"`
	SamplingRate     float64       `env:"OTEL_SAMPLING_RATE" envDefault:"1.0"`
	Insecure         bool          `env:"OTEL_EXPORTER_OTLP_INSECURE" envDefault:"true"`
	ExportTimeout    time.Duration `env:"OTEL_EXPORTER_OTLP_TIMEOUT" envDefault:"10s"`
}

func (c OtelConfig) Enabled() bool {
	return c.ExporterEndpoint != ""
}
