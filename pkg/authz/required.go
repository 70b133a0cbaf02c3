package authz

import (
	"fmt"
	"log/slog"
	"net/http"

	"github.com/polisai/polis-authz/pkg/telemetry"
)

// ExtractFields runs every configured extractor against the request and
// returns the gathered values keyed by field name. Extraction is best-effort:
// a failing (or panicking) extractor logs an error tagged with the field name
// and degrades that single field to nil; it never prevents extraction of the
// other fields and never aborts request handling.
func ExtractFields(r *http.Request, required RequiredFields, logger *slog.Logger, metrics *telemetry.Metrics) map[string]any {
	if logger == nil {
		logger = slog.Default()
	}

	fields := make(map[string]any, len(required))
	for name, extract := range required {
		value, err := safeExtract(r, extract)
		if err != nil {
			logger.Error("required field extraction failed",
				"field", name,
				"error", err,
			)
			metrics.RecordFieldExtractionError(name)
			fields[name] = nil
			continue
		}
		fields[name] = value
	}
	return fields
}

func safeExtract(r *http.Request, extract FieldExtractor) (value any, err error) {
	if extract == nil {
		return nil, fmt.Errorf("nil extractor")
	}

	defer func() {
		if rec := recover(); rec != nil {
			value = nil
			err = fmt.Errorf("extractor panic: %v", rec)
		}
	}()

	return extract(r)
}
