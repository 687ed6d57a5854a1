// Package logging provides a small structured-field builder shared by both
// logging backends used across the engine (zap/logr for the data plane,
// logrus for the LLM arbiter). It exists so call sites describe *what*
// happened without caring which backend renders it.
package logging

import (
	"time"

	"github.com/sirupsen/logrus"
)

// Fields is an ordered bag of structured log attributes. Zero value behaves
// like an empty set; use NewFields to get one pre-allocated.
type Fields map[string]interface{}

// NewFields returns an empty, ready-to-chain Fields value.
func NewFields() Fields {
	return Fields{}
}

// Component records the subsystem emitting the log line.
func (f Fields) Component(name string) Fields {
	f["component"] = name
	return f
}

// Operation records the logical action being performed.
func (f Fields) Operation(op string) Fields {
	f["operation"] = op
	return f
}

// Resource records the type (and, if non-empty, the name) of the entity the
// operation acted on.
func (f Fields) Resource(resourceType, resourceName string) Fields {
	f["resource_type"] = resourceType
	if resourceName != "" {
		f["resource_name"] = resourceName
	}
	return f
}

// Duration records an elapsed time in milliseconds.
func (f Fields) Duration(d time.Duration) Fields {
	f["duration_ms"] = d.Milliseconds()
	return f
}

// Error records the error's message, or does nothing if err is nil.
func (f Fields) Error(err error) Fields {
	if err != nil {
		f["error"] = err.Error()
	}
	return f
}

// UserID records the acting user's identifier, or does nothing if empty.
func (f Fields) UserID(id string) Fields {
	if id != "" {
		f["user_id"] = id
	}
	return f
}

// RequestID records a request correlation identifier.
func (f Fields) RequestID(id string) Fields {
	f["request_id"] = id
	return f
}

// TraceID records a distributed-trace identifier.
func (f Fields) TraceID(id string) Fields {
	f["trace_id"] = id
	return f
}

// StatusCode records an HTTP status code.
func (f Fields) StatusCode(code int) Fields {
	f["status_code"] = code
	return f
}

// Method records an HTTP method.
func (f Fields) Method(method string) Fields {
	f["method"] = method
	return f
}

// URL records a request URL.
func (f Fields) URL(url string) Fields {
	f["url"] = url
	return f
}

// Count records an integer count.
func (f Fields) Count(n int) Fields {
	f["count"] = n
	return f
}

// Size records a byte count.
func (f Fields) Size(bytes int64) Fields {
	f["size_bytes"] = bytes
	return f
}

// Version records a version string.
func (f Fields) Version(v string) Fields {
	f["version"] = v
	return f
}

// Custom records an arbitrary key/value pair not covered by a dedicated
// helper.
func (f Fields) Custom(key string, value interface{}) Fields {
	f[key] = value
	return f
}

// ToLogrus adapts Fields to logrus.Fields for callers logging through the
// LLM arbiter's logrus logger.
func (f Fields) ToLogrus() logrus.Fields {
	lf := make(logrus.Fields, len(f))
	for k, v := range f {
		lf[k] = v
	}
	return lf
}

// DatabaseFields is a shorthand for the fields emitted around a repository
// call: component=database, the operation, and the table acted on.
func DatabaseFields(operation, table string) Fields {
	return NewFields().Component("database").Operation(operation).Resource("table", table)
}

// HTTPFields is a shorthand for the fields emitted around an outbound or
// inbound HTTP exchange.
func HTTPFields(method, url string, statusCode int) Fields {
	f := NewFields().Component("http")
	f["method"] = method
	f["url"] = url
	f["status_code"] = statusCode
	return f
}

// AIFields is a shorthand for the fields emitted around an LLM arbiter call.
func AIFields(operation, model string) Fields {
	f := NewFields().Component("ai").Operation(operation)
	f["model"] = model
	return f
}

// MetricsFields is a shorthand for the fields emitted when recording a
// metric observation alongside a log line.
func MetricsFields(operation, metricName string, value float64) Fields {
	f := NewFields().Component("metrics").Operation(operation)
	f["metric_name"] = metricName
	f["value"] = value
	return f
}

// PerformanceFields is a shorthand for the fields emitted around a timed
// operation's outcome.
func PerformanceFields(operation string, duration time.Duration, success bool) Fields {
	f := NewFields().Component("performance").Operation(operation).Duration(duration)
	f["success"] = success
	return f
}
