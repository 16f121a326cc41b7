package source

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/NeCTAR-RC/reporting-pollster/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// fakeCloud stands in for the identity and compute services.
type fakeCloud struct {
	mux        *http.ServeMux
	server     *httptest.Server
	authCalls  int
	tokenValid time.Duration
}

func newFakeCloud(t *testing.T) *fakeCloud {
	t.Helper()
	f := &fakeCloud{mux: http.NewServeMux(), tokenValid: time.Hour}
	f.server = httptest.NewServer(f.mux)
	t.Cleanup(f.server.Close)

	f.mux.HandleFunc("/identity/auth/tokens", func(w http.ResponseWriter, r *http.Request) {
		f.authCalls++
		w.Header().Set("X-Subject-Token", "test-token")
		w.WriteHeader(http.StatusCreated)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"token": map[string]any{
				"expires_at": time.Now().Add(f.tokenValid).UTC(),
				"catalog": []map[string]any{
					{
						"type": "compute",
						"endpoints": []map[string]any{
							{"interface": "internal", "url": f.server.URL + "/internal"},
							{"interface": "public", "url": f.server.URL + "/compute/"},
						},
					},
				},
			},
		})
	})
	return f
}

func (f *fakeCloud) client(t *testing.T) ComputeClient {
	t.Helper()
	return NewComputeClient(config.ComputeConfig{
		AuthURL:   f.server.URL + "/identity",
		Username:  "reporting",
		Password:  "secret",
		ProjectID: "p1",
	}, zap.NewNop())
}

func TestComputeClientListAggregates(t *testing.T) {
	cloud := newFakeCloud(t)
	cloud.mux.HandleFunc("/compute/os-aggregates", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "test-token", r.Header.Get("X-Auth-Token"))
		_ = json.NewEncoder(w).Encode(map[string]any{
			"aggregates": []map[string]any{
				{
					"id":                7,
					"availability_zone": "melbourne-qh2",
					"name":              "general",
					"hosts":             []string{"cc1.example.org"},
				},
			},
		})
	})

	aggs, err := cloud.client(t).ListAggregates(context.Background())
	require.NoError(t, err)
	require.Len(t, aggs, 1)
	assert.Equal(t, "7", aggs[0].ID)
	assert.Equal(t, "melbourne-qh2", aggs[0].AvailabilityZone)
	assert.Equal(t, []string{"cc1.example.org"}, aggs[0].Hosts)
}

func TestComputeClientListHypervisors(t *testing.T) {
	cloud := newFakeCloud(t)
	cloud.mux.HandleFunc("/compute/os-hypervisors/detail", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{
			"hypervisors": []map[string]any{
				{
					"id":                  11,
					"hypervisor_hostname": "cc1.example.org",
					"host_ip":             "10.0.0.1",
					"vcpus":               32,
					"memory_mb":           65536,
					"local_gb":            500,
				},
			},
		})
	})

	hvs, err := cloud.client(t).ListHypervisors(context.Background())
	require.NoError(t, err)
	require.Len(t, hvs, 1)
	assert.Equal(t, "11", hvs[0].ID)
	assert.Equal(t, int64(32), hvs[0].VCPUs)
	assert.Equal(t, "cc1.example.org", hvs[0].Hostname)
}

func TestComputeClientReusesToken(t *testing.T) {
	cloud := newFakeCloud(t)
	cloud.mux.HandleFunc("/compute/os-aggregates", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{"aggregates": []any{}})
	})

	client := cloud.client(t)
	_, err := client.ListAggregates(context.Background())
	require.NoError(t, err)
	_, err = client.ListAggregates(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, cloud.authCalls)
}

func TestComputeClientAuthFailure(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/identity/auth/tokens", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	})
	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)

	client := NewComputeClient(config.ComputeConfig{
		AuthURL: server.URL + "/identity",
	}, zap.NewNop())

	_, err := client.ListAggregates(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "identity auth")
}
