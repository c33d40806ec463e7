package volc

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

	"github.com/sirupsen/logrus"
)

const (
	DefaultBaseURL    = "https://ark.cn-beijing.volces.com"
	defaultImageModel = "doubao-seedream-4.0"
	imagesPath        = "/api/v3/images/generations"
)

// ArkClient 火山方舟图片生成接口的REST客户端
type ArkClient struct {
	BaseURL    string
	APIKey     string
	HTTPClient *http.Client
}

// NewArkClient 用显式凭证创建客户端，baseURL 为空时使用默认地址
func NewArkClient(apiKey, baseURL string, timeout time.Duration) *ArkClient {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &ArkClient{
		BaseURL:    strings.TrimRight(baseURL, "/"),
		APIKey:     apiKey,
		HTTPClient: &http.Client{Timeout: timeout},
	}
}

type ImageGenParams struct {
	Model          string
	Prompt         string
	Size           string
	ResponseFormat string
	MaxImages      int
}

// ImageGenResult 生成结果，Raw 为上游原始响应
type ImageGenResult struct {
	URLs []string
	Raw  json.RawMessage
}

func (c *ArkClient) GenerateImages(ctx context.Context, p ImageGenParams) (*ImageGenResult, error) {
	if p.Model == "" {
		p.Model = defaultImageModel
	}
	if p.Size == "" {
		p.Size = "1024x1024"
	}
	body := map[string]any{
		"model":  p.Model,
		"prompt": p.Prompt,
		"size":   p.Size,
	}
	if p.ResponseFormat != "" {
		body["response_format"] = p.ResponseFormat
	}
	// 组图模式
	if p.MaxImages > 1 {
		body["sequential_image_generation"] = "auto"
		body["sequential_image_generation_options"] = map[string]any{"max_images": p.MaxImages}
	}

	raw, err := c.postJSON(ctx, imagesPath, body)
	if err != nil {
		return nil, err
	}
	var resp struct {
		Data []struct {
			URL    string `json:"url"`
			B64    string `json:"b64_json"`
			Format string `json:"format"`
		} `json:"data"`
	}
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, fmt.Errorf("decode image response: %w", err)
	}
	urls := make([]string, 0, len(resp.Data))
	for _, d := range resp.Data {
		if d.URL != "" {
			urls = append(urls, d.URL)
			continue
		}
		if d.B64 != "" {
			fmtType := d.Format
			if fmtType == "" {
				fmtType = "png"
			}
			urls = append(urls, "data:image/"+fmtType+";base64,"+d.B64)
		}
	}
	if len(urls) == 0 {
		return nil, errors.New("no images returned")
	}
	return &ImageGenResult{URLs: urls, Raw: raw}, nil
}

func (c *ArkClient) postJSON(ctx context.Context, path string, body any) ([]byte, error) {
	b, err := json.Marshal(body)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+path, bytes.NewReader(b))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+c.APIKey)
	req.Header.Set("Content-Type", "application/json")
	logrus.WithField("url", req.URL.String()).Debug("ark request")

	res, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer res.Body.Close()
	bodyBytes, err := io.ReadAll(res.Body)
	if err != nil {
		return nil, err
	}
	if res.StatusCode < 200 || res.StatusCode >= 300 {
		return nil, fmt.Errorf("http %d: %s", res.StatusCode, string(bodyBytes))
	}
	return bodyBytes, nil
}
