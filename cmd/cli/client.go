package cli

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/wagate/gateway/internal/models"
)

// gatewayClient talks to a running gateway over its HTTP API.
type gatewayClient struct {
	http *resty.Client
}

// APIError is a non-2xx answer from the gateway.
type APIError struct {
	Status   int
	Response models.ErrorResponse
}

func (e *APIError) Error() string {
	if len(e.Response.Message) > 0 {
		return fmt.Sprintf("%s (%d): %s", e.Response.Title, e.Status, e.Response.Message)
	}
	return fmt.Sprintf("gateway returned status %d", e.Status)
}

func newGatewayClient(baseURL string, timeout time.Duration) *gatewayClient {
	return &gatewayClient{
		http: resty.New().
			SetBaseURL(strings.TrimSuffix(baseURL, "/")).
			SetTimeout(timeout).
			SetHeader("Accept", "application/json"),
	}
}

func (g *gatewayClient) check(resp *resty.Response, err error) error {
	if err != nil {
		return fmt.Errorf("gateway request failed: %w", err)
	}
	if resp.IsError() {
		apiErr := &APIError{Status: resp.StatusCode()}
		if failure, ok := resp.Error().(*models.ErrorResponse); ok && failure != nil {
			apiErr.Response = *failure
		}
		return apiErr
	}
	return nil
}

func (g *gatewayClient) Start(ctx context.Context, sessionID string, wait bool) (*models.SessionResponse, error) {
	var result models.SessionResponse
	resp, err := g.http.R().
		SetContext(ctx).
		SetPathParam("id", sessionID).
		SetQueryParam("wait", strconv.FormatBool(wait)).
		SetResult(&result).
		SetError(&models.ErrorResponse{}).
		Post("/sessions/{id}/start")
	if err := g.check(resp, err); err != nil {
		return nil, err
	}
	return &result, nil
}

func (g *gatewayClient) Status(ctx context.Context, sessionID string) (*models.SessionInfo, error) {
	var result models.SessionResponse
	resp, err := g.http.R().
		SetContext(ctx).
		SetPathParam("id", sessionID).
		SetResult(&result).
		SetError(&models.ErrorResponse{}).
		Get("/sessions/{id}")
	if err := g.check(resp, err); err != nil {
		return nil, err
	}
	if result.Session == nil {
		return nil, errors.New("gateway returned no session")
	}
	return result.Session, nil
}

func (g *gatewayClient) List(ctx context.Context) (*models.SessionListResponse, error) {
	var result models.SessionListResponse
	resp, err := g.http.R().
		SetContext(ctx).
		SetResult(&result).
		SetError(&models.ErrorResponse{}).
		Get("/sessions")
	if err := g.check(resp, err); err != nil {
		return nil, err
	}
	return &result, nil
}

func (g *gatewayClient) QRCode(ctx context.Context, sessionID string) (*models.QRCodeResponse, error) {
	var result models.QRCodeResponse
	resp, err := g.http.R().
		SetContext(ctx).
		SetPathParam("id", sessionID).
		SetResult(&result).
		SetError(&models.ErrorResponse{}).
		Get("/sessions/{id}/qr")
	if err := g.check(resp, err); err != nil {
		return nil, err
	}
	return &result, nil
}

func (g *gatewayClient) Stop(ctx context.Context, sessionID string) (*models.SessionResponse, error) {
	var result models.SessionResponse
	resp, err := g.http.R().
		SetContext(ctx).
		SetPathParam("id", sessionID).
		SetResult(&result).
		SetError(&models.ErrorResponse{}).
		Delete("/sessions/{id}")
	if err := g.check(resp, err); err != nil {
		return nil, err
	}
	return &result, nil
}

type historyResponse struct {
	SessionID   string              `json:"session_id" yaml:"session_id"`
	Transitions []models.Transition `json:"transitions" yaml:"transitions"`
	Count       int                 `json:"count" yaml:"count"`
}

func (g *gatewayClient) History(ctx context.Context, sessionID string, limit int) (*historyResponse, error) {
	var result historyResponse
	req := g.http.R().
		SetContext(ctx).
		SetPathParam("id", sessionID).
		SetResult(&result).
		SetError(&models.ErrorResponse{})
	if limit > 0 {
		req.SetQueryParam("limit", strconv.Itoa(limit))
	}
	if err := g.check(req.Get("/sessions/{id}/history")); err != nil {
		return nil, err
	}
	return &result, nil
}

// Send posts a message, as multipart when a file is attached.
func (g *gatewayClient) Send(ctx context.Context, sessionID, number, message, file string) (*models.Ack, error) {
	var result models.SendMessageResponse
	req := g.http.R().
		SetContext(ctx).
		SetPathParam("id", sessionID).
		SetResult(&result).
		SetError(&models.ErrorResponse{})

	if len(file) > 0 {
		req.SetFormData(map[string]string{
			"number":  number,
			"message": message,
		}).SetFile("file", file)
	} else {
		req.SetBody(models.SendMessageRequest{Number: number, Message: message})
	}

	if err := g.check(req.Post("/sessions/{id}/messages")); err != nil {
		return nil, err
	}
	return result.Response, nil
}

// Healthy reports whether the gateway answers its health probe.
func (g *gatewayClient) Healthy(ctx context.Context, path string) bool {
	resp, err := g.http.R().SetContext(ctx).Get(path)
	return err == nil && resp.StatusCode() == http.StatusOK
}
