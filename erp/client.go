/*
Copyright 2024 Blnk Finance Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

	http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

// Package erp talks to the ERP resource endpoint that receives pre-AOI batches.
package erp

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/blnkfinance/inspectsync/config"
	"github.com/blnkfinance/inspectsync/internal/request"
	"github.com/blnkfinance/inspectsync/model"
)

const defaultTimeout = 10 * time.Second

// Child is one row of a parent's pre_aoi child table as the ERP returns it.
// Server-side keys (name, idx, ...) are preserved on round trips.
type Child map[string]interface{}

// SerialNo returns the child's serial_no, or "" when absent.
func (c Child) SerialNo() string {
	s, _ := c["serial_no"].(string)
	return s
}

type listResponse struct {
	Data []struct {
		Name string `json:"name"`
	} `json:"data"`
}

type parentResponse struct {
	Data struct {
		Name   string  `json:"name"`
		PreAOI []Child `json:"pre_aoi"`
	} `json:"data"`
}

// Client is an ERP resource client. It is safe for concurrent use.
type Client struct {
	baseURL string
	auth    string
	http    *http.Client
}

// NewClient builds a client for the resource URL in cnf. Every request is
// bounded by cnf.TimeoutSec.
func NewClient(cnf config.ERPConfig) *Client {
	timeout := time.Duration(cnf.TimeoutSec) * time.Second
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Client{
		baseURL: strings.TrimRight(strings.TrimSpace(cnf.URL), "/"),
		auth:    request.TokenAuth(cnf.APIKey, cnf.APISecret),
		http:    &http.Client{Timeout: timeout},
	}
}

// Ping issues a HEAD request against the resource URL.
func (c *Client) Ping(ctx context.Context) error {
	_, err := c.do(ctx, http.MethodHead, c.baseURL, nil, nil)
	return err
}

// FindParent looks up the parent whose model_id equals batchID. found is
// false when the ERP holds no such parent.
func (c *Client) FindParent(ctx context.Context, batchID string) (name string, found bool, err error) {
	filters, err := json.Marshal([][]string{{"model_id", "=", batchID}})
	if err != nil {
		return "", false, err
	}

	var resp listResponse
	endpoint := c.baseURL + "?filters=" + url.QueryEscape(string(filters))
	if _, err := c.do(ctx, http.MethodGet, endpoint, nil, &resp); err != nil {
		return "", false, err
	}
	if len(resp.Data) == 0 || resp.Data[0].Name == "" {
		return "", false, nil
	}
	return resp.Data[0].Name, true, nil
}

// GetChildren fetches the parent's current pre_aoi child rows.
func (c *Client) GetChildren(ctx context.Context, parent string) ([]Child, error) {
	var resp parentResponse
	if _, err := c.do(ctx, http.MethodGet, c.parentURL(parent), nil, &resp); err != nil {
		return nil, err
	}
	return resp.Data.PreAOI, nil
}

// CreateParent creates a draft parent for batchID holding record as its
// only child, and returns the name the ERP assigned to it.
func (c *Client) CreateParent(ctx context.Context, batchID string, record model.InspectionRecord) (string, error) {
	payload := map[string]interface{}{
		"model_id":  batchID,
		"serial_no": record.SerialNo,
		"pre_aoi":   []map[string]interface{}{record.Fields()},
		"docstatus": 0,
	}

	var resp parentResponse
	if _, err := c.do(ctx, http.MethodPost, c.baseURL, payload, &resp); err != nil {
		return "", err
	}
	return resp.Data.Name, nil
}

// ReplaceChildren overwrites the parent's pre_aoi child table.
func (c *Client) ReplaceChildren(ctx context.Context, parent string, children []Child) error {
	if children == nil {
		children = []Child{}
	}
	payload := map[string]interface{}{"pre_aoi": children}
	_, err := c.do(ctx, http.MethodPut, c.parentURL(parent), payload, nil)
	return err
}

func (c *Client) parentURL(parent string) string {
	return c.baseURL + "/" + url.PathEscape(parent)
}

// do sends one request. Only 200 and 201 count as success; anything else is
// returned as a *request.StatusError.
func (c *Client) do(ctx context.Context, method, endpoint string, payload, out interface{}) (*http.Response, error) {
	var body io.Reader
	if payload != nil {
		buf, err := request.ToJsonReq(payload)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal payload: %w", err)
		}
		body = buf
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", c.auth)

	resp, err := request.Call(c.http, req, out)
	if err != nil {
		return resp, err
	}
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return resp, &request.StatusError{Code: resp.StatusCode}
	}
	return resp, nil
}
