package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"studyforge/internal/config"
)

var errDaemonUnavailable = errors.New("daemon api unavailable")

type apiClient struct {
	base  *url.URL
	token string
	http  *http.Client
}

type daemonStatus struct {
	Running      bool   `json:"running"`
	PID          int    `json:"pid"`
	DatabasePath string `json:"database_path"`
	LockPath     string `json:"lock_path"`
	Workflow     struct {
		Running      bool                `json:"running"`
		InFlight     int                 `json:"in_flight"`
		LastError    string              `json:"last_error"`
		ContentStats map[string]int      `json:"content_stats"`
		StageHealth  map[string]stageDoc `json:"stage_health"`
	} `json:"workflow"`
}

type stageDoc struct {
	Ready  bool   `json:"ready"`
	Detail string `json:"detail"`
}

func newAPIClient(cfg *config.Config) (*apiClient, error) {
	bind := strings.TrimSpace(cfg.Paths.APIBind)
	if bind == "" {
		return nil, errDaemonUnavailable
	}
	if !strings.Contains(bind, "://") {
		bind = "http://" + bind
	}
	base, err := url.Parse(bind)
	if err != nil {
		return nil, err
	}
	base.Path = ""
	base.RawQuery = ""
	base.Fragment = ""
	return &apiClient{
		base:  base,
		token: cfg.Paths.APIToken,
		http:  &http.Client{Timeout: 10 * time.Second},
	}, nil
}

func (c *apiClient) Status(ctx context.Context) (daemonStatus, error) {
	var status daemonStatus
	err := c.get(ctx, "/api/status", &status)
	return status, err
}

func (c *apiClient) get(ctx context.Context, path string, into any) error {
	endpoint := c.base.ResolveReference(&url.URL{Path: path})
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint.String(), nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		if isConnectionError(err) {
			return errDaemonUnavailable
		}
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusUnauthorized {
		return errors.New("daemon api rejected the token; check paths.api_token or STUDYFORGE_API_TOKEN")
	}
	if resp.StatusCode >= 400 {
		return fmt.Errorf("daemon api %s returned status %d", path, resp.StatusCode)
	}
	return json.NewDecoder(resp.Body).Decode(into)
}

func isConnectionError(err error) bool {
	var urlErr *url.Error
	if errors.As(err, &urlErr) && urlErr.Err != nil {
		err = urlErr.Err
	}
	var opErr *net.OpError
	return errors.As(err, &opErr)
}
