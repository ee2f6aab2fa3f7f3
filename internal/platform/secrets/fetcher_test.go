package secrets

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"cloud.google.com/go/secretmanager/apiv1/secretmanagerpb"
	"github.com/googleapis/gax-go/v2"
	"go.uber.org/zap"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

type fakeSecretClient struct {
	mu     sync.Mutex
	values map[string]string
	errors map[string]error
	calls  map[string]int
	closed bool
}

func newFakeSecretClient() *fakeSecretClient {
	return &fakeSecretClient{
		values: map[string]string{},
		errors: map[string]error{},
		calls:  map[string]int{},
	}
}

func (c *fakeSecretClient) AccessSecretVersion(_ context.Context, req *secretmanagerpb.AccessSecretVersionRequest, _ ...gax.CallOption) (*secretmanagerpb.AccessSecretVersionResponse, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls[req.GetName()]++
	if err, ok := c.errors[req.GetName()]; ok {
		return nil, err
	}
	value, ok := c.values[req.GetName()]
	if !ok {
		return nil, status.Error(codes.NotFound, "not found")
	}
	return &secretmanagerpb.AccessSecretVersionResponse{
		Name:    req.GetName(),
		Payload: &secretmanagerpb.SecretPayload{Data: []byte(value)},
	}, nil
}

func (c *fakeSecretClient) Close() error {
	c.closed = true
	return nil
}

func (c *fakeSecretClient) callCount(name string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls[name]
}

func TestResolveCachesRemoteSecret(t *testing.T) {
	ctx := context.Background()
	client := newFakeSecretClient()
	resource := "projects/petcorner/secrets/erp-api-key/versions/latest"
	client.values[resource] = "remote-secret\n"

	fetcher, err := NewFetcher(ctx, WithSecretManagerClient(client), WithProject("petcorner"), WithLogger(zap.NewNop()))
	if err != nil {
		t.Fatalf("NewFetcher returned error: %v", err)
	}
	defer fetcher.Close()

	for i := 0; i < 2; i++ {
		got, err := fetcher.ResolveSecret(ctx, "secret://erp-api-key")
		if err != nil {
			t.Fatalf("Resolve returned error: %v", err)
		}
		if got != "remote-secret" {
			t.Fatalf("expected remote-secret, got %q", got)
		}
	}
	if calls := client.callCount(resource); calls != 1 {
		t.Fatalf("expected remote fetch once, got %d", calls)
	}
	if client.closed {
		t.Fatalf("injected client must not be closed by the fetcher")
	}
}

func TestResolveHonoursProjectAndVersion(t *testing.T) {
	ctx := context.Background()
	client := newFakeSecretClient()
	client.values["projects/other/secrets/erp-api-key/versions/3"] = "v3"

	fetcher, err := NewFetcher(ctx, WithSecretManagerClient(client), WithProject("petcorner"))
	if err != nil {
		t.Fatalf("NewFetcher returned error: %v", err)
	}
	got, err := fetcher.Resolve(ctx, "secret://erp-api-key?version=3&project=other")
	if err != nil || got != "v3" {
		t.Fatalf("expected v3, got %q, %v", got, err)
	}
}

func TestResolveFallsBackWhenSecretManagerUnavailable(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	fallbackPath := filepath.Join(dir, ".secrets.local")
	if err := os.WriteFile(fallbackPath, []byte("# local\nsm://erp-api-key=local-secret\n"), 0o600); err != nil {
		t.Fatalf("failed writing fallback file: %v", err)
	}

	client := newFakeSecretClient()
	client.errors["projects/petcorner/secrets/erp-api-key/versions/latest"] = status.Error(codes.PermissionDenied, "denied")

	fetcher, err := NewFetcher(ctx, WithSecretManagerClient(client), WithProject("petcorner"), WithFallbackFile(fallbackPath))
	if err != nil {
		t.Fatalf("NewFetcher returned error: %v", err)
	}
	got, err := fetcher.Resolve(ctx, "secret://erp-api-key")
	if err != nil {
		t.Fatalf("Resolve returned error: %v", err)
	}
	if got != "local-secret" {
		t.Fatalf("expected local-secret, got %q", got)
	}
}

func TestResolveDoesNotFallBackOnNotFound(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	fallbackPath := filepath.Join(dir, ".secrets.local")
	if err := os.WriteFile(fallbackPath, []byte("secret://erp-api-key=local-secret\n"), 0o600); err != nil {
		t.Fatalf("failed writing fallback file: %v", err)
	}

	fetcher, err := NewFetcher(ctx, WithSecretManagerClient(newFakeSecretClient()), WithProject("petcorner"), WithFallbackFile(fallbackPath))
	if err != nil {
		t.Fatalf("NewFetcher returned error: %v", err)
	}
	if _, err := fetcher.Resolve(ctx, "secret://erp-api-key"); err == nil {
		t.Fatalf("expected not found error to surface")
	}
}

func TestResolveWithoutProjectUsesFallbackOnly(t *testing.T) {
	ctx := context.Background()
	fetcher, err := NewFetcher(ctx, WithFallbackFile(filepath.Join(t.TempDir(), "missing")))
	if err != nil {
		t.Fatalf("NewFetcher returned error: %v", err)
	}
	if fetcher.client != nil {
		t.Fatalf("expected no remote client without a project")
	}
	if _, err := fetcher.Resolve(ctx, "secret://erp-api-key"); err == nil {
		t.Fatalf("expected missing fallback to fail")
	}
}

func TestParseReference(t *testing.T) {
	cases := []struct {
		ref     string
		secret  string
		version string
		wantErr bool
	}{
		{ref: "secret://erp-api-key", secret: "erp-api-key", version: "latest"},
		{ref: "secret://erp/api-key?version=2", secret: "erp/api-key", version: "2"},
		{ref: "sm://erp-api-key", wantErr: true},
		{ref: "secret://", wantErr: true},
		{ref: " ", wantErr: true},
	}
	for _, tc := range cases {
		parsed, err := parseReference(tc.ref)
		if tc.wantErr {
			if err == nil {
				t.Fatalf("%q: expected error", tc.ref)
			}
			continue
		}
		if err != nil {
			t.Fatalf("%q: unexpected error %v", tc.ref, err)
		}
		if parsed.Secret != tc.secret || parsed.Version != tc.version {
			t.Fatalf("%q: got %+v", tc.ref, parsed)
		}
	}
}
