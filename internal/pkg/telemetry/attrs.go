package telemetry

import (
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// TracerName identifies spans produced by this module's own instrumentation.
const TracerName = "corridor"

// Tracer returns the module tracer from the globally registered provider.
func Tracer() trace.Tracer {
	return otel.Tracer(TracerName)
}

// Span attribute keys shared by everything that instruments analysis calls,
// so traces stay queryable under one vocabulary.
const (
	AttrLegs         = attribute.Key("corridor.legs")
	AttrBufferWidthM = attribute.Key("corridor.buffer_width_m")
	AttrRoute        = attribute.Key("corridor.route")
	AttrMatches      = attribute.Key("corridor.matches")
)
