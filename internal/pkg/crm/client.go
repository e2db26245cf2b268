// Package crm pushes employer accounts and their subscription state to the
// marketing CRM.
package crm

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

	"github.com/talentbridge/jobboard/internal/pkg/config"
)

type Contact struct {
	Email              string     `json:"email"`
	Name               string     `json:"name"`
	Phone              string     `json:"phone,omitempty"`
	Country            string     `json:"country,omitempty"`
	Role               string     `json:"role"`
	CompanyID          string     `json:"companyId,omitempty"`
	PackageName        string     `json:"packageName,omitempty"`
	PlanType           string     `json:"planType,omitempty"`
	SubscriptionStatus string     `json:"subscriptionStatus,omitempty"`
	SubscriptionExpiry *time.Time `json:"subscriptionExpiry,omitempty"`
}

type Company struct {
	Name    string `json:"name"`
	Country string `json:"country,omitempty"`
	Domain  string `json:"domain,omitempty"`
}

// API is the CRM surface the syncer uses
type API interface {
	UpsertContact(ctx context.Context, contact Contact) (string, error)
	UpsertCompany(ctx context.Context, company Company) (string, error)
}

type Client struct {
	BaseURL    string
	APIKey     string
	HTTPClient *http.Client
}

func NewClient(cfg config.CRMConfig) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &Client{
		BaseURL: strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/"),
		APIKey:  strings.TrimSpace(cfg.APIKey),
		HTTPClient: &http.Client{
			Timeout: timeout,
		},
	}
}

func (c *Client) UpsertContact(ctx context.Context, contact Contact) (string, error) {
	if strings.TrimSpace(contact.Email) == "" {
		return "", errors.New("contact email is required")
	}
	return c.upsert(ctx, "/contacts/upsert", contact)
}

func (c *Client) UpsertCompany(ctx context.Context, company Company) (string, error) {
	if strings.TrimSpace(company.Name) == "" {
		return "", errors.New("company name is required")
	}
	return c.upsert(ctx, "/companies/upsert", company)
}

func (c *Client) upsert(ctx context.Context, path string, body interface{}) (string, error) {
	if c.BaseURL == "" || c.APIKey == "" {
		return "", errors.New("CRM_BASE_URL/CRM_API_KEY are not configured")
	}
	raw, err := json.Marshal(body)
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+path, bytes.NewReader(raw))
	if err != nil {
		return "", err
	}
	req.Header.Set("Authorization", "Bearer "+c.APIKey)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("crm upsert %s failed: status=%d body=%s", path, resp.StatusCode, string(respBody))
	}

	var out struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(respBody, &out); err != nil {
		return "", err
	}
	if strings.TrimSpace(out.ID) == "" {
		return "", fmt.Errorf("crm upsert %s returned empty id", path)
	}
	return out.ID, nil
}
