package devices

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/getdatasurge/frostguard/internal/app/domain/device"
	"github.com/getdatasurge/frostguard/pkg/logger"
)

// Registrar creates a device on the LoRaWAN network server, returning the
// network-side device identifier.
type Registrar interface {
	RegisterDevice(ctx context.Context, d device.Device) (string, error)
}

// HTTPRegistrar registers OTAA devices against a network server's
// application API (The Things Stack v3 shape).
type HTTPRegistrar struct {
	client        *http.Client
	baseURL       *url.URL
	apiKey        string
	applicationID string
	log           *logger.Logger
}

// NewHTTPRegistrar constructs a registrar for the given application.
func NewHTTPRegistrar(client *http.Client, baseURL, apiKey, applicationID string, log *logger.Logger) (*HTTPRegistrar, error) {
	baseURL = strings.TrimSpace(baseURL)
	if baseURL == "" {
		return nil, fmt.Errorf("network server url required")
	}
	parsed, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("parse network server url: %w", err)
	}
	apiKey = strings.TrimSpace(apiKey)
	if apiKey == "" {
		return nil, fmt.Errorf("network server api key required")
	}
	applicationID = strings.TrimSpace(applicationID)
	if applicationID == "" {
		return nil, fmt.Errorf("application id required")
	}
	if client == nil {
		client = &http.Client{Timeout: 15 * time.Second}
	}
	if log == nil {
		log = logger.NewDefault("device-registrar")
	}
	return &HTTPRegistrar{
		client:        client,
		baseURL:       parsed,
		apiKey:        apiKey,
		applicationID: applicationID,
		log:           log,
	}, nil
}

// RegisterDevice provisions an OTAA device in two steps, the way The
// Things Stack v3 expects: create the device on the identity server, then
// push the root keys to the join server. The key material never goes to
// the identity server.
func (r *HTTPRegistrar) RegisterDevice(ctx context.Context, d device.Device) (string, error) {
	deviceID := "eui-" + strings.ToLower(d.DevEUI)

	ids := map[string]any{
		"device_id":       deviceID,
		"dev_eui":         d.DevEUI,
		"join_eui":        d.JoinEUI,
		"application_ids": map[string]string{"application_id": r.applicationID},
	}

	body, err := r.doJSON(ctx, http.MethodPost,
		"/api/v3/applications/"+r.applicationID+"/devices",
		map[string]any{
			"end_device": map[string]any{
				"ids": ids,
			},
		})
	if err != nil {
		return "", fmt.Errorf("identity server: %w", err)
	}

	var created struct {
		IDs struct {
			DeviceID string `json:"device_id"`
		} `json:"ids"`
	}
	if err := json.Unmarshal(body, &created); err != nil {
		return "", fmt.Errorf("decode registration response: %w", err)
	}
	if created.IDs.DeviceID != "" {
		deviceID = created.IDs.DeviceID
		ids["device_id"] = deviceID
	}

	if _, err := r.doJSON(ctx, http.MethodPut,
		"/api/v3/js/applications/"+r.applicationID+"/devices/"+deviceID,
		map[string]any{
			"end_device": map[string]any{
				"ids": ids,
				"root_keys": map[string]any{
					"app_key": map[string]string{"key": d.AppKey},
				},
				"supports_join": true,
			},
			"field_mask": map[string]any{
				"paths": []string{"ids", "root_keys.app_key.key", "supports_join"},
			},
		}); err != nil {
		return "", fmt.Errorf("join server: %w", err)
	}

	return deviceID, nil
}

func (r *HTTPRegistrar) doJSON(ctx context.Context, method, path string, payload any) ([]byte, error) {
	encoded, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}

	endpoint := *r.baseURL
	endpoint.Path = strings.TrimSuffix(endpoint.Path, "/") + path

	req, err := http.NewRequestWithContext(ctx, method, endpoint.String(), bytes.NewReader(encoded))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+r.apiKey)

	resp, err := r.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		detail := body
		if len(detail) > 512 {
			detail = detail[:512]
		}
		return nil, fmt.Errorf("network server status %d: %s", resp.StatusCode, strings.TrimSpace(string(detail)))
	}
	return body, nil
}
