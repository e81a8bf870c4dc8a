package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/ukydev/fleet-journey/internal/journey"
	"github.com/ukydev/fleet-journey/internal/models"
)

// apiError is a non-2xx answer from the journey API.
type apiError struct {
	Status  int
	Message string
}

func (e *apiError) Error() string {
	return fmt.Sprintf("api status %d: %s", e.Status, e.Message)
}

func isStatus(err error, status int) bool {
	var ae *apiError
	return errors.As(err, &ae) && ae.Status == status
}

// apiClient talks to the journey API as one driver.
type apiClient struct {
	baseURL string
	http    *http.Client
	token   string
	userID  string
}

func newAPIClient(baseURL string) *apiClient {
	return &apiClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: 10 * time.Second},
	}
}

func (c *apiClient) do(ctx context.Context, method, path string, body, out interface{}) error {
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, &buf)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var e struct {
			Error string `json:"error"`
		}
		_ = json.Unmarshal(data, &e)
		return &apiError{Status: resp.StatusCode, Message: e.Error}
	}
	if out != nil {
		if err := json.Unmarshal(data, out); err != nil {
			return fmt.Errorf("failed to decode response: %w", err)
		}
	}
	return nil
}

func (c *apiClient) login(ctx context.Context, username, password string) error {
	var res models.LoginResponse
	if err := c.do(ctx, http.MethodPost, "/api/auth/login", models.LoginRequest{Username: username, Password: password}, &res); err != nil {
		return err
	}
	c.token = res.Token
	c.userID = res.User.ID.Hex()
	return nil
}

func (c *apiClient) register(ctx context.Context, req models.RegisterRequest) error {
	var res models.LoginResponse
	if err := c.do(ctx, http.MethodPost, "/api/auth/register", req, &res); err != nil {
		return err
	}
	c.token = res.Token
	c.userID = res.User.ID.Hex()
	return nil
}

// journeyCall posts to a journey endpoint and returns the new snapshot.
func (c *apiClient) journeyCall(ctx context.Context, method, path string, body interface{}) (journey.Snapshot, error) {
	var snap journey.Snapshot
	err := c.do(ctx, method, "/api/journey"+path, body, &snap)
	return snap, err
}
