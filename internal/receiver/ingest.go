// Package receiver implements OTLP HTTP and gRPC endpoints that turn incoming
// log records and spans into corpus elements.
package receiver

import (
	"encoding/hex"
	"log/slog"
	"strconv"
	"strings"

	"github.com/fidde/cardinality_estimator/internal/corpus"
	collogspb "go.opentelemetry.io/proto/otlp/collector/logs/v1"
	coltracepb "go.opentelemetry.io/proto/otlp/collector/trace/v1"
	commonpb "go.opentelemetry.io/proto/otlp/common/v1"
	resourcepb "go.opentelemetry.io/proto/otlp/resource/v1"
)

const (
	serviceNameKey     = "service.name"
	unknownServiceName = "unknown_service"
)

// Result counts what one export request contributed.
type Result struct {
	// Accepted elements were appended to a corpus
	Accepted int

	// Rejected elements were dropped because a corpus was full
	Rejected int

	// Skipped records carried no usable element
	Skipped int
}

// Ingester extracts one element per log record or span and appends it to the
// corpus of the record's service.
type Ingester struct {
	corpora      *corpus.Registry
	attributeKey string
	corpusPrefix string
	logger       *slog.Logger
}

// NewIngester creates an ingester. With an empty attributeKey the element is
// the log body or the span name.
func NewIngester(corpora *corpus.Registry, attributeKey, corpusPrefix string, logger *slog.Logger) *Ingester {
	if logger == nil {
		logger = slog.Default()
	}
	return &Ingester{
		corpora:      corpora,
		attributeKey: attributeKey,
		corpusPrefix: corpusPrefix,
		logger:       logger,
	}
}

// IngestLogs appends the elements of every log record in req.
func (in *Ingester) IngestLogs(req *collogspb.ExportLogsServiceRequest) Result {
	var res Result
	for _, rl := range req.GetResourceLogs() {
		name := in.corpusName(rl.GetResource())

		var elements []string
		for _, sl := range rl.GetScopeLogs() {
			for _, lr := range sl.GetLogRecords() {
				value, ok := in.element(lr.GetAttributes(), rl.GetResource(), lr.GetBody())
				if !ok {
					res.Skipped++
					continue
				}
				elements = append(elements, value)
			}
		}
		in.append(name, elements, &res)
	}
	return res
}

// IngestTraces appends the elements of every span in req.
func (in *Ingester) IngestTraces(req *coltracepb.ExportTraceServiceRequest) Result {
	var res Result
	for _, rs := range req.GetResourceSpans() {
		name := in.corpusName(rs.GetResource())

		var elements []string
		for _, ss := range rs.GetScopeSpans() {
			for _, span := range ss.GetSpans() {
				fallback := &commonpb.AnyValue{Value: &commonpb.AnyValue_StringValue{StringValue: span.GetName()}}
				value, ok := in.element(span.GetAttributes(), rs.GetResource(), fallback)
				if !ok {
					res.Skipped++
					continue
				}
				elements = append(elements, value)
			}
		}
		in.append(name, elements, &res)
	}
	return res
}

func (in *Ingester) append(name string, elements []string, res *Result) {
	if len(elements) == 0 {
		return
	}

	accepted, err := in.corpora.Append(name, elements...)
	if err != nil {
		in.logger.Warn("dropping elements", "corpus", name, "count", len(elements), "error", err)
		res.Rejected += len(elements)
		return
	}

	res.Accepted += accepted
	res.Rejected += len(elements) - accepted
}

// element picks the configured attribute from the record, then the resource.
// Without a configured key the fallback value is used.
func (in *Ingester) element(attrs []*commonpb.KeyValue, resource *resourcepb.Resource, fallback *commonpb.AnyValue) (string, bool) {
	if in.attributeKey == "" {
		return anyValueString(fallback)
	}
	if v, ok := lookup(attrs, in.attributeKey); ok {
		return v, true
	}
	return lookup(resource.GetAttributes(), in.attributeKey)
}

// corpusName is the prefix plus the sanitized service name.
func (in *Ingester) corpusName(resource *resourcepb.Resource) string {
	service, ok := lookup(resource.GetAttributes(), serviceNameKey)
	if !ok || service == "" {
		service = unknownServiceName
	}
	return in.corpusPrefix + strings.Map(func(r rune) rune {
		if r == '/' || r < ' ' {
			return '_'
		}
		return r
	}, service)
}

func lookup(attrs []*commonpb.KeyValue, key string) (string, bool) {
	for _, kv := range attrs {
		if kv.GetKey() == key {
			return anyValueString(kv.GetValue())
		}
	}
	return "", false
}

// anyValueString renders scalar values; arrays, maps and empty values are unusable.
func anyValueString(v *commonpb.AnyValue) (string, bool) {
	switch x := v.GetValue().(type) {
	case *commonpb.AnyValue_StringValue:
		return x.StringValue, x.StringValue != ""
	case *commonpb.AnyValue_IntValue:
		return strconv.FormatInt(x.IntValue, 10), true
	case *commonpb.AnyValue_DoubleValue:
		return strconv.FormatFloat(x.DoubleValue, 'g', -1, 64), true
	case *commonpb.AnyValue_BoolValue:
		return strconv.FormatBool(x.BoolValue), true
	case *commonpb.AnyValue_BytesValue:
		return hex.EncodeToString(x.BytesValue), len(x.BytesValue) > 0
	default:
		return "", false
	}
}
