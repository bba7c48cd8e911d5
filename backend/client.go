// Package backend 调用后端服务的内部接口，记录对局开始、玩家离开与结算结果。
package backend

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

	"github.com/pkg/errors"
)

// APIKeyHeader 内部接口鉴权头
const APIKeyHeader = "X-Internal-Api-Key"

// maxErrorBody 错误信息中保留的响应体长度
const maxErrorBody = 2000

// FinishUser 结算载荷中的单个玩家
type FinishUser struct {
	UserID            string  `json:"user_id"`
	Rank              int     `json:"rank"`
	RatingMean        float64 `json:"rating_mean"`
	RatingUncertainty float64 `json:"rating_uncertainty"`
}

// FinishRequest POST /games/{roomId}/finish 的请求体
type FinishRequest struct {
	Users []FinishUser `json:"users"`
}

// LeaveRequest POST /games/{roomId}/leave 的请求体
type LeaveRequest struct {
	UserID string `json:"user_id"`
}

// Store 对局记录的持久化契约
type Store interface {
	StartGame(ctx context.Context, roomID string) error
	LeaveGame(ctx context.Context, roomID, userID string) error
	FinishGame(ctx context.Context, roomID string, req FinishRequest) error
}

// StatusError 后端返回非 2xx
type StatusError struct {
	Method string
	Path   string
	Status int
	Body   string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("backend-service %d %s on %s %s: %s",
		e.Status, http.StatusText(e.Status), e.Method, e.Path, e.Body)
}

// Client 基于 HTTP 的 Store 实现
type Client struct {
	baseURL string
	apiKey  string
	http    *http.Client
}

// Option 客户端选项
type Option func(*Client)

// WithHTTPClient 替换底层 http.Client
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// WithTimeout 设置单次请求超时
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.http.Timeout = d }
}

// NewClient 创建客户端；baseURL 形如 http://backend:8000/internal
func NewClient(baseURL, apiKey string, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		http:    &http.Client{Timeout: 10 * time.Second},
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// StartGame POST /games/{roomId}/start
func (c *Client) StartGame(ctx context.Context, roomID string) error {
	return c.post(ctx, gamePath(roomID, "start"), nil)
}

// LeaveGame POST /games/{roomId}/leave
func (c *Client) LeaveGame(ctx context.Context, roomID, userID string) error {
	return c.post(ctx, gamePath(roomID, "leave"), LeaveRequest{UserID: userID})
}

// FinishGame POST /games/{roomId}/finish
func (c *Client) FinishGame(ctx context.Context, roomID string, req FinishRequest) error {
	return c.post(ctx, gamePath(roomID, "finish"), req)
}

func gamePath(roomID, action string) string {
	return "/games/" + url.PathEscape(roomID) + "/" + action
}

func (c *Client) post(ctx context.Context, path string, body any) error {
	var rd io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return errors.Wrapf(err, "encode body for %s", path)
		}
		rd = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, rd)
	if err != nil {
		return errors.Wrapf(err, "build request for %s", path)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(APIKeyHeader, c.apiKey)

	resp, err := c.http.Do(req)
	if err != nil {
		return errors.Wrapf(err, "POST %s", path)
	}
	defer resp.Body.Close()

	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		excerpt := strings.TrimSpace(string(raw))
		if len(excerpt) > maxErrorBody {
			excerpt = excerpt[:maxErrorBody]
		}
		return errors.WithStack(&StatusError{
			Method: http.MethodPost,
			Path:   path,
			Status: resp.StatusCode,
			Body:   excerpt,
		})
	}
	return nil
}

// Nop 不做任何事的 Store（未配置后端地址时使用）
type Nop struct{}

func (Nop) StartGame(context.Context, string) error                 { return nil }
func (Nop) LeaveGame(context.Context, string, string) error         { return nil }
func (Nop) FinishGame(context.Context, string, FinishRequest) error { return nil }
