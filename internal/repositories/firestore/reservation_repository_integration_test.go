//go:build integration

package firestore

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os/exec"
	"strings"
	"testing"
	"time"

	domain "github.com/clearcart/api/internal/domain"
	pconfig "github.com/clearcart/api/internal/platform/config"
	pfirestore "github.com/clearcart/api/internal/platform/firestore"
	"github.com/clearcart/api/internal/repositories"
)

func TestReservationRepositoryIntegration(t *testing.T) {
	if _, err := exec.LookPath("docker"); err != nil {
		t.Skip("docker not available: " + err.Error())
	}

	ensureDockerDaemon(t)

	port := freePort(t)
	endpoint := fmt.Sprintf("127.0.0.1:%d", port)
	containerID := startFirestoreEmulator(t, port)
	t.Cleanup(func() { stopContainer(containerID) })

	waitForEndpoint(t, endpoint, 30*time.Second)

	cfg := pconfig.FirestoreConfig{
		ProjectID:    "reservation-test",
		EmulatorHost: endpoint,
	}

	provider := pfirestore.NewProvider(cfg)
	t.Cleanup(func() {
		_ = provider.Close(context.Background())
	})

	repo, err := NewReservationRepository(provider)
	if err != nil {
		t.Fatalf("new reservation repository: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	now := time.Now().UTC().Truncate(time.Second)
	variant := "var_blue"

	first := domain.InventoryReservation{
		ID:        "res_test_1",
		ProductID: "prod_001",
		VariantID: &variant,
		Quantity:  3,
		Active:    true,
		ExpiresAt: now.Add(30 * time.Minute),
		CreatedAt: now,
	}
	if _, err := repo.Insert(ctx, first); err != nil {
		t.Fatalf("insert: %v", err)
	}

	if _, err := repo.Insert(ctx, first); err == nil {
		t.Fatalf("expected duplicate insert to fail")
	}

	second := domain.InventoryReservation{
		ID:        "res_test_2",
		ProductID: "prod_001",
		VariantID: &variant,
		Quantity:  2,
		Active:    true,
		ExpiresAt: now.Add(-time.Minute),
		CreatedAt: now.Add(-time.Hour),
	}
	if _, err := repo.Insert(ctx, second); err != nil {
		t.Fatalf("insert expired: %v", err)
	}

	// Only the unexpired hold counts toward active quantity.
	total, err := repo.SumActiveQuantity(ctx, "prod_001", &variant, now)
	if err != nil {
		t.Fatalf("sum active: %v", err)
	}
	if total != 3 {
		t.Fatalf("expected active quantity 3, got %d", total)
	}

	expired, err := repo.ListExpiredActive(ctx, now, 10)
	if err != nil {
		t.Fatalf("list expired: %v", err)
	}
	if len(expired) != 1 || expired[0].ID != "res_test_2" {
		t.Fatalf("expected res_test_2 expired, got %+v", expired)
	}

	if err := repo.BindOrder(ctx, []string{"res_test_1"}, "order_1"); err != nil {
		t.Fatalf("bind order: %v", err)
	}
	byOrder, err := repo.ListActiveByOrder(ctx, "order_1")
	if err != nil {
		t.Fatalf("list by order: %v", err)
	}
	if len(byOrder) != 1 || byOrder[0].OrderID == nil || *byOrder[0].OrderID != "order_1" {
		t.Fatalf("expected bound reservation, got %+v", byOrder)
	}

	releasedAt := now.Add(time.Minute)
	if err := repo.Release(ctx, []string{"res_test_1", "res_test_2"}, releasedAt); err != nil {
		t.Fatalf("release: %v", err)
	}
	got, err := repo.FindByID(ctx, "res_test_1")
	if err != nil {
		t.Fatalf("find released: %v", err)
	}
	if got.Active || got.ReleasedAt == nil {
		t.Fatalf("expected released reservation, got %+v", got)
	}

	// Releasing again is a no-op.
	if err := repo.Release(ctx, []string{"res_test_1"}, releasedAt.Add(time.Minute)); err != nil {
		t.Fatalf("re-release: %v", err)
	}
	again, err := repo.FindByID(ctx, "res_test_1")
	if err != nil {
		t.Fatalf("find re-released: %v", err)
	}
	if !again.ReleasedAt.Equal(*got.ReleasedAt) {
		t.Fatalf("expected releasedAt unchanged, got %v then %v", got.ReleasedAt, again.ReleasedAt)
	}

	var invErr *repositories.InventoryError
	if _, err := repo.FindByID(ctx, "res_missing"); err == nil {
		t.Fatalf("expected not found error")
	} else if !errors.As(err, &invErr) || invErr.Code != repositories.InventoryErrorReservationNotFound {
		t.Fatalf("expected reservation not found, got %v", err)
	}
}

func freePort(t *testing.T) int {
	t.Helper()
	addr, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("unable to allocate port: %v", err)
	}
	defer addr.Close()
	return addr.Addr().(*net.TCPAddr).Port
}

func startFirestoreEmulator(t *testing.T, port int) string {
	t.Helper()
	args := []string{
		"run", "-d", "--rm",
		"-p", fmt.Sprintf("%d:8080", port),
		firestoreEmulatorImage,
		"gcloud", "beta", "emulators", "firestore", "start",
		"--host-port=0.0.0.0:8080",
		"--quiet",
	}

	cmd := exec.Command("docker", args...)
	out, err := cmd.CombinedOutput()
	if err != nil {
		t.Fatalf("failed to start firestore emulator: %v - %s", err, string(out))
	}
	id := strings.TrimSpace(string(out))
	if id == "" {
		t.Fatalf("docker returned empty container id")
	}
	if len(id) > 12 {
		id = id[:12]
	}
	return id
}

func ensureDockerDaemon(t *testing.T) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	cmd := exec.CommandContext(ctx, "docker", "info")
	if err := cmd.Run(); err != nil {
		t.Fatalf("docker daemon not available: %v", err)
	}
}

func stopContainer(id string) {
	if id == "" {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	cmd := exec.CommandContext(ctx, "docker", "stop", id)
	_ = cmd.Run()
}

func waitForEndpoint(t *testing.T, endpoint string, timeout time.Duration) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		conn, err := net.DialTimeout("tcp", endpoint, 500*time.Millisecond)
		if err == nil {
			conn.Close()
			return
		}
		time.Sleep(200 * time.Millisecond)
	}
	t.Fatalf("firestore emulator at %s did not become ready within %s", endpoint, timeout)
}

const firestoreEmulatorImage = "gcr.io/google.com/cloudsdktool/cloud-sdk:emulators"
