package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/policy"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/to"
	"github.com/Azure/azure-sdk-for-go/sdk/resourcemanager/resources/armsubscriptions"
	"github.com/Azure/azure-sdk-for-go/sdk/security/keyvault/azsecrets"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/ylchen07/keyvault-identity-demo/internal/azure"
	"github.com/ylchen07/keyvault-identity-demo/internal/config"
	"github.com/ylchen07/keyvault-identity-demo/internal/discovery"
	"github.com/ylchen07/keyvault-identity-demo/internal/metrics"
	"github.com/ylchen07/keyvault-identity-demo/internal/runtimeconfig"
	"github.com/ylchen07/keyvault-identity-demo/internal/secrets"
	"github.com/ylchen07/keyvault-identity-demo/pkg/models"
)

type staticCredential struct {
	wait bool
}

func (c staticCredential) GetToken(ctx context.Context, _ policy.TokenRequestOptions) (azcore.AccessToken, error) {
	if c.wait {
		<-ctx.Done()
		return azcore.AccessToken{}, ctx.Err()
	}
	return azcore.AccessToken{Token: "t", ExpiresOn: time.Now().Add(time.Hour)}, nil
}

type staticVault struct {
	value string
	err   error
	calls int
}

func (v *staticVault) GetSecret(context.Context, string, string, *azsecrets.GetSecretOptions) (azsecrets.GetSecretResponse, error) {
	v.calls++
	if v.err != nil {
		return azsecrets.GetSecretResponse{}, v.err
	}
	var resp azsecrets.GetSecretResponse
	resp.Value = to.Ptr(v.value)
	return resp, nil
}

// emptyPager yields a single page with no subscriptions
type emptyPager struct {
	done bool
}

func (p *emptyPager) More() bool { return !p.done }

func (p *emptyPager) NextPage(ctx context.Context) (armsubscriptions.ClientListResponse, error) {
	p.done = true
	return armsubscriptions.ClientListResponse{}, ctx.Err()
}

type emptyClients struct{}

func (emptyClients) Subscriptions() azure.SubscriptionsPager { return &emptyPager{} }

func (emptyClients) Identities(string) (azure.IdentitiesPager, error) {
	return nil, errors.New("not used")
}

func (emptyClients) Vaults(string) (azure.VaultsPager, error) {
	return nil, errors.New("not used")
}

type fixture struct {
	server *Server
	state  *runtimeconfig.State
	vault  *staticVault
}

func newFixture(t *testing.T, cred staticCredential) *fixture {
	t.Helper()

	cfg := config.Default()
	cfg.Server.WebRoot = ""
	cfg.Server.Environment = "Development"
	cfg.Azure.KeyVaultURL = "https://seeded.vault.azure.net"

	vault := &staticVault{value: "hunter2"}
	m := metrics.New()
	state := runtimeconfig.New(cfg)
	r := secrets.New(
		secrets.WithCredentialFactory(func(azure.CredentialPlan) (azcore.TokenCredential, error) {
			return staticCredential{}, nil
		}),
		secrets.WithSecretClientFactory(func(string, azcore.TokenCredential) (azure.SecretGetter, error) {
			return vault, nil
		}),
		secrets.WithMetrics(m),
	)
	d := discovery.New(
		discovery.WithCredentialFactory(func(string, azure.DeviceCodePrompt) (azcore.TokenCredential, error) {
			return cred, nil
		}),
		discovery.WithResourceClientsFactory(func(azcore.TokenCredential) (azure.ResourceClients, error) {
			return emptyClients{}, nil
		}),
		discovery.WithMetrics(m),
	)

	return &fixture{server: New(cfg.Server, state, r, d, m), state: state, vault: vault}
}

func (f *fixture) do(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	rec := httptest.NewRecorder()
	f.server.Handler().ServeHTTP(rec, httptest.NewRequest(method, path, reader))
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func TestCurrentConfig(t *testing.T) {
	f := newFixture(t, staticCredential{})

	for _, path := range []string{"/api/config/current", "/api/secrets/config"} {
		rec := f.do(t, http.MethodGet, path, "")
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "application/json; charset=utf-8", rec.Header().Get("Content-Type"))
		assert.NotEmpty(t, rec.Header().Get("X-Request-Id"))

		snap := decode[models.ConfigSnapshot](t, rec)
		assert.Equal(t, "https://seeded.vault.azure.net/", snap.KeyVaultURL)
		assert.False(t, snap.UseManagedIdentity)
		assert.False(t, snap.IsConfigured)
	}
}

func TestCredentialMode(t *testing.T) {
	f := newFixture(t, staticCredential{})

	rec := f.do(t, http.MethodPost, "/api/config/credential-mode", `{"useManagedIdentity":true}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"success":true,"useManagedIdentity":true}`, rec.Body.String())
	assert.True(t, f.state.Snapshot().UseManagedIdentity)

	rec = f.do(t, http.MethodPost, "/api/config/credential-mode", `not json`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestConfigEndpointsRejectMalformedBody(t *testing.T) {
	for _, path := range []string{"/api/config/credential-mode", "/api/config/apply"} {
		t.Run(path, func(t *testing.T) {
			f := newFixture(t, staticCredential{})
			before := f.state.Snapshot()

			rec := f.do(t, http.MethodPost, path, `{"useManagedIdentity":`)
			require.Equal(t, http.StatusBadRequest, rec.Code)
			assert.JSONEq(t, `{"success":false,"errorMessage":"Invalid request body"}`, rec.Body.String())
			assert.Equal(t, before, f.state.Snapshot())
		})
	}
}

func TestApply(t *testing.T) {
	f := newFixture(t, staticCredential{})

	rec := f.do(t, http.MethodPost, "/api/config/apply",
		`{"keyVaultUrl":"https://kv1.vault.azure.net","useManagedIdentity":true}`)
	require.Equal(t, http.StatusOK, rec.Code)

	resp := decode[applyResponse](t, rec)
	assert.True(t, resp.Success)
	assert.Equal(t, models.ConfigSnapshot{
		KeyVaultURL:        "https://kv1.vault.azure.net/",
		UseManagedIdentity: true,
	}, resp.Config)

	// Blank values never clear
	rec = f.do(t, http.MethodPost, "/api/config/apply", `{"keyVaultUrl":"  ","expectedUamiClientId":"uami-1"}`)
	resp = decode[applyResponse](t, rec)
	assert.Equal(t, "https://kv1.vault.azure.net/", resp.Config.KeyVaultURL)
	assert.Equal(t, "uami-1", resp.Config.ExpectedUamiClientID)
	assert.True(t, resp.Config.IsConfigured)
	assert.True(t, resp.Config.ValidationEnabled)
}

func TestRetrieve(t *testing.T) {
	f := newFixture(t, staticCredential{})

	rec := f.do(t, http.MethodPost, "/api/secrets/retrieve", `{"secretName":"db-password"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	res := decode[models.SecretResult](t, rec)
	assert.True(t, res.Success)
	assert.Equal(t, "hunter2", res.SecretValue)
	assert.Equal(t, azure.MethodDeveloper, res.CredentialMethod)
	assert.Equal(t, 1, f.vault.calls)
}

func TestRetrieveFailureIsStillOK(t *testing.T) {
	f := newFixture(t, staticCredential{})
	f.vault.err = &azcore.ResponseError{StatusCode: http.StatusNotFound}

	rec := f.do(t, http.MethodPost, "/api/secrets/retrieve", `{"secretName":"missing"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	res := decode[models.SecretResult](t, rec)
	assert.False(t, res.Success)
	assert.Equal(t, "Secret 'missing' not found in Key Vault.", res.ErrorMessage)
}

func TestRetrieveBadRequest(t *testing.T) {
	f := newFixture(t, staticCredential{})

	for _, body := range []string{``, `{`, `{}`, `{"secretName":"   "}`} {
		rec := f.do(t, http.MethodPost, "/api/secrets/retrieve", body)
		assert.Equal(t, http.StatusBadRequest, rec.Code, "body %q", body)
		res := decode[models.SecretResult](t, rec)
		assert.False(t, res.Success)
		assert.Equal(t, "Secret name is required", res.ErrorMessage)
	}
	assert.Zero(t, f.vault.calls)
}

func TestHealth(t *testing.T) {
	f := newFixture(t, staticCredential{})
	fixed := time.Date(2026, 3, 4, 5, 6, 7, 0, time.UTC)
	f.server.now = func() time.Time { return fixed }

	rec := f.do(t, http.MethodGet, "/api/secrets/health", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"healthy","timestamp":"2026-03-04T05:06:07Z","environment":"Development"}`, rec.Body.String())
}

func TestRootRedirectAndStatic(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "app.js"), []byte("console.log(1)"), 0o644))

	f := newFixture(t, staticCredential{})
	f.server.cfg.WebRoot = dir

	rec := f.do(t, http.MethodGet, "/", "")
	assert.Equal(t, http.StatusFound, rec.Code)
	assert.Equal(t, "/index.html", rec.Header().Get("Location"))

	rec = f.do(t, http.MethodGet, "/app.js", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "console.log(1)", rec.Body.String())
}

func TestMethodNotAllowed(t *testing.T) {
	tests := []struct {
		method string
		path   string
	}{
		{http.MethodGet, "/api/secrets/retrieve"},
		{http.MethodGet, "/api/config/apply"},
		{http.MethodGet, "/api/config/credential-mode"},
		{http.MethodPost, "/api/config/discover"},
		{http.MethodPost, "/api/config/current"},
		{http.MethodDelete, "/api/secrets/health"},
	}

	for _, tt := range tests {
		t.Run(tt.method+" "+tt.path, func(t *testing.T) {
			f := newFixture(t, staticCredential{})
			rec := f.do(t, tt.method, tt.path, "")
			assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
		})
	}
}

func TestMethodNotAllowedWithWebRoot(t *testing.T) {
	f := newFixture(t, staticCredential{})
	f.server.cfg.WebRoot = t.TempDir()

	rec := f.do(t, http.MethodGet, "/api/secrets/retrieve", "")
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestMetricsEndpoint(t *testing.T) {
	f := newFixture(t, staticCredential{})
	f.do(t, http.MethodPost, "/api/secrets/retrieve", `{"secretName":"a"}`)

	rec := f.do(t, http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(),
		`keyvault_demo_secret_retrievals_total{credential="DefaultAzureCredential",outcome="success"} 1`)
}

func frames(t *testing.T, body string) []map[string]any {
	t.Helper()
	var out []map[string]any
	for _, chunk := range strings.Split(body, "\n\n") {
		if chunk == "" {
			continue
		}
		require.True(t, strings.HasPrefix(chunk, "data: "), "frame %q", chunk)
		var ev map[string]any
		require.NoError(t, json.Unmarshal([]byte(strings.TrimPrefix(chunk, "data: ")), &ev))
		out = append(out, ev)
	}
	return out
}

func TestDiscoverStream(t *testing.T) {
	defer goleak.VerifyNone(t)

	f := newFixture(t, staticCredential{})
	rec := f.do(t, http.MethodGet, "/api/config/discover?tenantId=tenant-hint", "")

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/event-stream", rec.Header().Get("Content-Type"))
	assert.Equal(t, "no-cache", rec.Header().Get("Cache-Control"))
	assert.Equal(t, "no", rec.Header().Get("X-Accel-Buffering"))

	evs := frames(t, rec.Body.String())
	var types []string
	for _, ev := range evs {
		types = append(types, ev["type"].(string))
	}
	assert.Equal(t, []string{"progress", "progress", "subscriptions", "complete"}, types)

	last := evs[len(evs)-1]
	assert.Equal(t, "tenant-hint", last["tenantId"])
	assert.Nil(t, last["subscriptionId"])
}

func TestDiscoverClientDisconnect(t *testing.T) {
	defer goleak.VerifyNone(t)

	f := newFixture(t, staticCredential{wait: true})
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan *httptest.ResponseRecorder)
	go func() {
		rec := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/api/config/discover", nil).WithContext(ctx)
		f.server.Handler().ServeHTTP(rec, req)
		done <- rec
	}()

	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case rec := <-done:
		for _, ev := range frames(t, rec.Body.String()) {
			assert.NotEqual(t, "error", ev["type"], "cancellation is not an error")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("handler did not return after the client went away")
	}
}

func TestServeShutsDown(t *testing.T) {
	f := newFixture(t, staticCredential{})
	f.server.cfg.ShutdownTimeout = time.Second

	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	errc := make(chan error, 1)
	go func() { errc <- f.server.serve(ctx, listener) }()

	resp, err := http.Get("http://" + listener.Addr().String() + "/api/secrets/health")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	cancel()
	select {
	case err := <-errc:
		assert.NoError(t, err)
	case <-time.After(3 * time.Second):
		t.Fatal("server did not stop")
	}
}
