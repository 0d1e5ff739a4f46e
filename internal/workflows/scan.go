package workflows

import (
	"time"

	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/workflow"
)

// ScanInput is the input for the route scan workflow.
type ScanInput struct {
	BufferWidthM float64
}

// RouteScanResult is the compact per-route payload returned by the
// AnalyzeRoute activity. Full match sets stay out of workflow history.
type RouteScanResult struct {
	Slug         string
	Matches      int
	SamplePoints int
	DurationMS   int64
}

// ScanSummary aggregates one full pass over the stored routes.
type ScanSummary struct {
	Routes       int
	Succeeded    int
	Failed       int
	TotalMatches int
}

// ScanRoutesWorkflow analyzes every stored route against the live index
// and publishes the results. One broken route does not abort the pass:
// its failure is counted and the scan moves on.
func ScanRoutesWorkflow(ctx workflow.Context, input ScanInput) (ScanSummary, error) {
	logger := workflow.GetLogger(ctx)
	logger.Info("Starting route scan", "bufferWidthM", input.BufferWidthM)

	actOpts := workflow.ActivityOptions{
		StartToCloseTimeout: 2 * time.Minute,
		RetryPolicy: &temporal.RetryPolicy{
			MaximumAttempts: 3,
		},
	}
	ctx = workflow.WithActivityOptions(ctx, actOpts)

	var summary ScanSummary

	// Step 1: List the stored route slugs
	var slugs []string
	err := workflow.ExecuteActivity(ctx, "ListRouteSlugs").Get(ctx, &slugs)
	if err != nil {
		return summary, err
	}
	summary.Routes = len(slugs)
	if len(slugs) == 0 {
		logger.Info("No routes stored, nothing to scan")
		return summary, nil
	}

	// Step 2: Analyze each route in turn
	for _, slug := range slugs {
		var res RouteScanResult
		err := workflow.ExecuteActivity(ctx, "AnalyzeRoute", slug, input.BufferWidthM).Get(ctx, &res)
		if err != nil {
			logger.Warn("Route scan failed", "slug", slug, "error", err)
			summary.Failed++
			continue
		}
		summary.Succeeded++
		summary.TotalMatches += res.Matches
	}

	logger.Info("Route scan complete",
		"routes", summary.Routes,
		"succeeded", summary.Succeeded,
		"failed", summary.Failed,
		"totalMatches", summary.TotalMatches)
	return summary, nil
}
