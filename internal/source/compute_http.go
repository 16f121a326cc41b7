package source

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/NeCTAR-RC/reporting-pollster/internal/config"
	"go.uber.org/zap"
)

// httpComputeClient talks to the compute API over its JSON interface,
// authenticating against the identity service with the password method.
type httpComputeClient struct {
	cfg    config.ComputeConfig
	client *http.Client
	log    *zap.Logger

	token       string
	computeURL  string
	tokenExpiry time.Time
}

// NewComputeClient builds a ComputeClient from the configured endpoint and
// credentials.
func NewComputeClient(cfg config.ComputeConfig, log *zap.Logger) ComputeClient {
	return &httpComputeClient{
		cfg:    cfg,
		client: &http.Client{Timeout: 60 * time.Second},
		log:    log.Named("compute"),
	}
}

type apiAggregate struct {
	ID               json.Number `json:"id"`
	AvailabilityZone string      `json:"availability_zone"`
	Name             string      `json:"name"`
	CreatedAt        *time.Time  `json:"created_at"`
	DeletedAt        *time.Time  `json:"deleted_at"`
	Deleted          bool        `json:"deleted"`
	Hosts            []string    `json:"hosts"`
}

type apiHypervisor struct {
	ID       json.Number `json:"id"`
	Hostname string      `json:"hypervisor_hostname"`
	HostIP   string      `json:"host_ip"`
	VCPUs    int64       `json:"vcpus"`
	MemoryMB int64       `json:"memory_mb"`
	LocalGB  int64       `json:"local_gb"`
}

func (c *httpComputeClient) ListAggregates(ctx context.Context) ([]Aggregate, error) {
	var body struct {
		Aggregates []apiAggregate `json:"aggregates"`
	}
	if err := c.get(ctx, "/os-aggregates", &body); err != nil {
		return nil, err
	}
	out := make([]Aggregate, 0, len(body.Aggregates))
	for _, a := range body.Aggregates {
		out = append(out, Aggregate{
			ID:               a.ID.String(),
			AvailabilityZone: a.AvailabilityZone,
			Name:             a.Name,
			CreatedAt:        a.CreatedAt,
			DeletedAt:        a.DeletedAt,
			Deleted:          a.Deleted,
			Hosts:            a.Hosts,
		})
	}
	return out, nil
}

func (c *httpComputeClient) ListHypervisors(ctx context.Context) ([]Hypervisor, error) {
	var body struct {
		Hypervisors []apiHypervisor `json:"hypervisors"`
	}
	if err := c.get(ctx, "/os-hypervisors/detail", &body); err != nil {
		return nil, err
	}
	out := make([]Hypervisor, 0, len(body.Hypervisors))
	for _, h := range body.Hypervisors {
		out = append(out, Hypervisor{
			ID:       h.ID.String(),
			Hostname: h.Hostname,
			HostIP:   h.HostIP,
			VCPUs:    h.VCPUs,
			MemoryMB: h.MemoryMB,
			LocalGB:  h.LocalGB,
		})
	}
	return out, nil
}

func (c *httpComputeClient) get(ctx context.Context, path string, out any) error {
	if err := c.authenticate(ctx); err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.computeURL+path, nil)
	if err != nil {
		return err
	}
	req.Header.Set("X-Auth-Token", c.token)
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("compute %s: %w", path, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("compute %s: unexpected status %d", path, resp.StatusCode)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func (c *httpComputeClient) authenticate(ctx context.Context) error {
	if c.token != "" && time.Now().Before(c.tokenExpiry.Add(-time.Minute)) {
		return nil
	}

	payload := map[string]any{
		"auth": map[string]any{
			"identity": map[string]any{
				"methods": []string{"password"},
				"password": map[string]any{
					"user": map[string]any{
						"name":     c.cfg.Username,
						"password": c.cfg.Password,
						"domain":   map[string]string{"id": "default"},
					},
				},
			},
			"scope": map[string]any{
				"project": map[string]string{"id": c.cfg.ProjectID},
			},
		},
	}
	buf, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	url := strings.TrimRight(c.cfg.AuthURL, "/") + "/auth/tokens"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(buf))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("identity auth: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusCreated && resp.StatusCode != http.StatusOK {
		return fmt.Errorf("identity auth: unexpected status %d", resp.StatusCode)
	}

	var body struct {
		Token struct {
			ExpiresAt time.Time `json:"expires_at"`
			Catalog   []struct {
				Type      string `json:"type"`
				Endpoints []struct {
					Interface string `json:"interface"`
					URL       string `json:"url"`
				} `json:"endpoints"`
			} `json:"catalog"`
		} `json:"token"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return err
	}

	c.token = resp.Header.Get("X-Subject-Token")
	c.tokenExpiry = body.Token.ExpiresAt
	for _, svc := range body.Token.Catalog {
		if svc.Type != "compute" {
			continue
		}
		for _, ep := range svc.Endpoints {
			if ep.Interface == "public" {
				c.computeURL = strings.TrimRight(ep.URL, "/")
			}
		}
	}
	if c.computeURL == "" {
		return fmt.Errorf("identity auth: no public compute endpoint in catalog")
	}
	c.log.Debug("authenticated against identity service")
	return nil
}
