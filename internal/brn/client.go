package brn

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"jobboard/internal/config"
)

// Validator 校验工商登记信息真伪。
type Validator interface {
	ValidateBusiness(ctx context.Context, regNumber string, openingDate time.Time, ceoName string) (bool, error)
}

// Client 调用国税厅真伪核验 API。
type Client struct {
	baseURL    string
	serviceKey string
	httpClient *http.Client
}

// NewClient 构造核验客户端。
func NewClient(cfg config.BRNConfig) *Client {
	return &Client{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		serviceKey: cfg.ServiceKey,
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}
}

type validateRequest struct {
	Businesses []businessEntry `json:"businesses"`
}

type businessEntry struct {
	RegNumber   string `json:"b_no"`
	OpeningDate string `json:"start_dt"`
	CEOName     string `json:"p_nm"`
}

type validateResponse struct {
	Data []struct {
		Valid string `json:"valid"`
	} `json:"data"`
}

// ValidateBusiness 核验登记号、开业日期与法人姓名是否匹配。
// valid == "01" 表示登记信息真实有效。
func (c *Client) ValidateBusiness(ctx context.Context, regNumber string, openingDate time.Time, ceoName string) (bool, error) {
	body, err := json.Marshal(validateRequest{
		Businesses: []businessEntry{{
			RegNumber:   strings.ReplaceAll(regNumber, "-", ""),
			OpeningDate: openingDate.Format("20060102"),
			CEOName:     ceoName,
		}},
	})
	if err != nil {
		return false, fmt.Errorf("marshal validate request: %w", err)
	}

	endpoint := fmt.Sprintf("%s/validate?serviceKey=%s", c.baseURL, url.QueryEscape(c.serviceKey))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return false, fmt.Errorf("build validate request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return false, fmt.Errorf("call business registry: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return false, fmt.Errorf("business registry returned status %d", resp.StatusCode)
	}

	var parsed validateResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return false, fmt.Errorf("decode validate response: %w", err)
	}
	if len(parsed.Data) == 0 {
		return false, nil
	}
	return parsed.Data[0].Valid == "01", nil
}
