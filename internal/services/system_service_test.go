package services

import (
	"context"
	"errors"
	"testing"
	"time"

	domain "github.com/clearcart/api/internal/domain"
)

var systemTestNow = time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)

type stubHealthRepository struct {
	report domain.SystemHealthReport
	err    error
}

func (s *stubHealthRepository) Collect(ctx context.Context) (domain.SystemHealthReport, error) {
	return s.report, s.err
}

func newSystemServiceForTest(t *testing.T, repo *stubHealthRepository, build BuildInfo) SystemService {
	t.Helper()
	svc, err := NewSystemService(SystemServiceDeps{
		HealthRepository: repo,
		Clock:            fixedClock(systemTestNow),
		Build:            build,
	})
	if err != nil {
		t.Fatalf("NewSystemService: %v", err)
	}
	return svc
}

func TestHealthReportFillsBuildMetadata(t *testing.T) {
	repo := &stubHealthRepository{report: domain.SystemHealthReport{
		Checks: map[string]domain.SystemHealthCheck{
			"firestore": {Status: domain.HealthStatusOK},
			"pubsub":    {Status: domain.HealthStatusOK},
		},
	}}
	build := BuildInfo{
		Version:     "1.4.0",
		CommitSHA:   "abc1234",
		Environment: "production",
		StartedAt:   systemTestNow.Add(-90 * time.Minute),
	}
	svc := newSystemServiceForTest(t, repo, build)

	report, err := svc.HealthReport(context.Background())
	if err != nil {
		t.Fatalf("HealthReport: %v", err)
	}
	if report.Status != domain.HealthStatusOK {
		t.Fatalf("status = %q", report.Status)
	}
	if report.Version != "1.4.0" || report.CommitSHA != "abc1234" || report.Environment != "production" {
		t.Fatalf("build = %q %q %q", report.Version, report.CommitSHA, report.Environment)
	}
	if report.Uptime != 90*time.Minute {
		t.Fatalf("uptime = %v", report.Uptime)
	}
	if !report.GeneratedAt.Equal(systemTestNow) {
		t.Fatalf("generatedAt = %v", report.GeneratedAt)
	}
}

func TestHealthReportDerivesStatusFromChecks(t *testing.T) {
	cases := []struct {
		name   string
		checks map[string]domain.SystemHealthCheck
		want   string
	}{
		{"no checks", nil, domain.HealthStatusOK},
		{"degraded dependency", map[string]domain.SystemHealthCheck{
			"firestore": {Status: domain.HealthStatusOK},
			"pubsub":    {Status: domain.HealthStatusDegraded},
		}, domain.HealthStatusDegraded},
		{"failing dependency dominates", map[string]domain.SystemHealthCheck{
			"firestore": {Status: domain.HealthStatusError},
			"pubsub":    {Status: domain.HealthStatusDegraded},
		}, domain.HealthStatusError},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			repo := &stubHealthRepository{report: domain.SystemHealthReport{Checks: tc.checks}}
			svc := newSystemServiceForTest(t, repo, BuildInfo{StartedAt: systemTestNow})

			report, err := svc.HealthReport(context.Background())
			if err != nil {
				t.Fatalf("HealthReport: %v", err)
			}
			if report.Status != tc.want {
				t.Fatalf("status = %q, want %q", report.Status, tc.want)
			}
			if report.Checks == nil {
				t.Fatal("checks map should never be nil")
			}
		})
	}
}

func TestHealthReportKeepsCollectedValues(t *testing.T) {
	generated := systemTestNow.Add(-time.Second)
	repo := &stubHealthRepository{report: domain.SystemHealthReport{
		Status:      domain.HealthStatusDegraded,
		Version:     "collector-1.0",
		Uptime:      time.Hour,
		GeneratedAt: generated,
	}}
	svc := newSystemServiceForTest(t, repo, BuildInfo{Version: "build-2.0", StartedAt: systemTestNow.Add(-time.Minute)})

	report, err := svc.HealthReport(context.Background())
	if err != nil {
		t.Fatalf("HealthReport: %v", err)
	}
	if report.Status != domain.HealthStatusDegraded {
		t.Fatalf("status overridden: %q", report.Status)
	}
	if report.Version != "collector-1.0" {
		t.Fatalf("version overridden: %q", report.Version)
	}
	if report.Uptime != time.Hour {
		t.Fatalf("uptime overridden: %v", report.Uptime)
	}
	if !report.GeneratedAt.Equal(generated) {
		t.Fatalf("generatedAt overridden: %v", report.GeneratedAt)
	}
}

func TestHealthReportPropagatesCollectFailure(t *testing.T) {
	cause := errors.New("probe failed")
	svc := newSystemServiceForTest(t, &stubHealthRepository{err: cause}, BuildInfo{StartedAt: systemTestNow})

	_, err := svc.HealthReport(context.Background())
	if !errors.Is(err, cause) {
		t.Fatalf("err = %v, want collect failure", err)
	}
}
