package safeguarding

import "context"

// Provider is the external inference provider. It receives only the
// token-only request and returns the raw response body.
type Provider interface {
	Analyze(ctx context.Context, req AnalysisRequest) (string, error)
}

// ReportSink consumes finished reports.
type ReportSink interface {
	Store(ctx context.Context, tenant string, report *SafeguardingReport) (string, error)
}
