package workflows

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/samirrijal/corridor/internal/core/ports"
	"github.com/samirrijal/corridor/internal/core/usecases"
	"github.com/samirrijal/corridor/internal/pkg/metrics"
)

// ScanActivities holds the activity implementations for the route scan workflow.
type ScanActivities struct {
	Analysis      *usecases.AnalysisService
	Routes        ports.RouteRepository
	DefaultWidthM float64
}

// ListRouteSlugs returns the slugs of all stored routes.
func (a *ScanActivities) ListRouteSlugs(ctx context.Context) ([]string, error) {
	slugs, err := a.Routes.ListSlugs(ctx)
	if err != nil {
		return nil, fmt.Errorf("list route slugs: %w", err)
	}
	return slugs, nil
}

// AnalyzeRoute runs a corridor analysis over one stored route and returns
// a compact summary. The analysis service publishes the full result set.
func (a *ScanActivities) AnalyzeRoute(ctx context.Context, slug string, widthM float64) (RouteScanResult, error) {
	if widthM <= 0 {
		widthM = a.DefaultWidthM
	}

	start := time.Now()
	result, route, err := a.Analysis.AnalyzeRoute(ctx, slug, widthM)
	if err != nil {
		metrics.ObserveAnalysis("scan", time.Since(start), 0, err)
		return RouteScanResult{}, fmt.Errorf("analyze route %s: %w", slug, err)
	}

	matches := result.MatchCount()
	metrics.ObserveAnalysis("scan", time.Since(start), matches, nil)
	log.Printf("Scanned route %s: %d matches over %d sample points", route.Slug, matches, result.SamplePointCount())

	return RouteScanResult{
		Slug:         route.Slug,
		Matches:      matches,
		SamplePoints: result.SamplePointCount(),
		DurationMS:   time.Since(start).Milliseconds(),
	}, nil
}
