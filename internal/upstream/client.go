package upstream

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"draftsync/internal/dto"
	"draftsync/internal/entity"
)

// DraftStore is the draft fetch/update collaborator exposed by the
// upstream writing backend.
type DraftStore interface {
	GetDraft(ctx context.Context, sessionId string) (*entity.Draft, error)
	UpdateDraft(ctx context.Context, sessionId string, req *dto.UpdateDraftRequest) (*entity.Draft, error)
}

type Client struct {
	BaseURL  string
	apiToken string
	Client   *http.Client
}

// Ensure Client implements DraftStore
var _ DraftStore = &Client{}

func NewClient(baseURL, apiToken string) *Client {
	return &Client{
		BaseURL:  baseURL,
		apiToken: apiToken,
		// No client-side timeout: a stalled persist stays pending until the
		// transport gives up or the user retries.
		Client: &http.Client{},
	}
}

func (c *Client) GetDraft(ctx context.Context, sessionId string) (*entity.Draft, error) {
	url := fmt.Sprintf("%s/writing/sessions/%s/draft", c.BaseURL, sessionId)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	return c.do(req)
}

func (c *Client) UpdateDraft(ctx context.Context, sessionId string, payload *dto.UpdateDraftRequest) (*entity.Draft, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	url := fmt.Sprintf("%s/writing/sessions/%s/draft", c.BaseURL, sessionId)
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, url, bytes.NewBuffer(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req)
}

func (c *Client) do(req *http.Request) (*entity.Draft, error) {
	if c.apiToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiToken)
	}

	resp, err := c.Client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("upstream request failed: %w", err)
	}
	defer resp.Body.Close()

	bodyBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("upstream error: status %d, body: %s", resp.StatusCode, string(bodyBytes))
	}

	var draftResp dto.DraftResponse
	if err := json.Unmarshal(bodyBytes, &draftResp); err != nil {
		return nil, fmt.Errorf("unmarshal response: %w", err)
	}

	return toDraftEntity(&draftResp), nil
}

func toDraftEntity(r *dto.DraftResponse) *entity.Draft {
	return &entity.Draft{
		Id:         r.Id,
		Title:      r.Title,
		Content:    r.Content,
		References: r.References,
		UpdatedAt:  r.UpdatedAt,
	}
}
