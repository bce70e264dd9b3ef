// Package gateway is the HTTP client for the marketplace backend. The
// backend is the sole authority on ticket state; the wallet only submits
// verification attempts and caches what the server reports.
package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/robertarktes/ticket-wallet/internal/domain"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
)

type Client struct {
	baseURL  string
	deviceID string
	http     *http.Client
}

func NewClient(baseURL, deviceID string, timeout time.Duration) *Client {
	return &Client{
		baseURL:  baseURL,
		deviceID: deviceID,
		http:     &http.Client{Timeout: timeout},
	}
}

// ScanRecord is one prior admission check, as reported by the server.
type ScanRecord struct {
	ScannedBy  string    `json:"scanned_by"`
	ScannedAt  time.Time `json:"scanned_at"`
	Location   string    `json:"location,omitempty"`
	DeviceInfo string    `json:"device_info,omitempty"`
}

// VerifyResult is the server's verdict on a scan. A rejected ticket
// (already used, cancelled, unknown code) is a successful call with
// Valid=false, never an error.
type VerifyResult struct {
	Valid       bool           `json:"valid"`
	Message     string         `json:"message"`
	Ticket      *domain.Ticket `json:"ticket,omitempty"`
	UsedAt      *time.Time     `json:"used_at,omitempty"`
	ScanHistory []ScanRecord   `json:"scan_history,omitempty"`
}

// MarkUsedResult is the outcome of the compare-and-set admission. On
// conflict the server reports the original admission, not a new one.
type MarkUsedResult struct {
	Ticket       *domain.Ticket `json:"ticket,omitempty"`
	AlreadyUsed  bool           `json:"already_used,omitempty"`
	PreviousScan *ScanRecord    `json:"previous_scan,omitempty"`
}

type verifyRequest struct {
	QRCode     string `json:"qr_code,omitempty"`
	BackupCode string `json:"backup_code,omitempty"`
	ScannedBy  string `json:"scanned_by"`
	Location   string `json:"location,omitempty"`
	DeviceInfo string `json:"device_info,omitempty"`
}

func (c *Client) VerifyByQR(ctx context.Context, qrCode, scannedBy, location, deviceInfo string) (*VerifyResult, error) {
	return c.verify(ctx, verifyRequest{QRCode: qrCode, ScannedBy: scannedBy, Location: location, DeviceInfo: deviceInfo})
}

func (c *Client) VerifyByBackupCode(ctx context.Context, backupCode, scannedBy, location, deviceInfo string) (*VerifyResult, error) {
	return c.verify(ctx, verifyRequest{BackupCode: backupCode, ScannedBy: scannedBy, Location: location, DeviceInfo: deviceInfo})
}

func (c *Client) verify(ctx context.Context, req verifyRequest) (*VerifyResult, error) {
	var result VerifyResult
	if err := c.post(ctx, "/v1/tickets/verify", req, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

func (c *Client) MarkUsed(ctx context.Context, qrCode, scannedBy, location string) (*MarkUsedResult, error) {
	req := verifyRequest{QRCode: qrCode, ScannedBy: scannedBy, Location: location}
	var result MarkUsedResult
	if err := c.post(ctx, "/v1/tickets/mark-used", req, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

func (c *Client) ListMyTickets(ctx context.Context, ownerID string) ([]domain.Ticket, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet,
		c.baseURL+"/v1/tickets/my?owner_id="+ownerID, nil)
	if err != nil {
		return nil, err
	}

	var resp struct {
		Tickets []domain.Ticket `json:"tickets"`
	}
	if err := c.do(httpReq, &resp); err != nil {
		return nil, err
	}
	return resp.Tickets, nil
}

// Ping reports whether the backend is reachable. Used by the
// connectivity probe.
func (c *Client) Ping(ctx context.Context) error {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/v1/healthz", nil)
	if err != nil {
		return err
	}
	return c.do(httpReq, nil)
}

func (c *Client) post(ctx context.Context, path string, body, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return err
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	return c.do(httpReq, out)
}

func (c *Client) do(req *http.Request, out any) error {
	if c.deviceID != "" {
		req.Header.Set("X-Device-ID", c.deviceID)
	}
	otel.GetTextMapPropagator().Inject(req.Context(), propagation.HeaderCarrier(req.Header))

	resp, err := c.http.Do(req)
	if err != nil {
		return errors.CombineErrors(domain.ErrNetwork, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 500 {
		return errors.CombineErrors(domain.ErrNetwork,
			fmt.Errorf("backend returned %d for %s", resp.StatusCode, req.URL.Path))
	}
	if resp.StatusCode >= 400 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return errors.Wrapf(domain.ErrInvalidInput, "backend rejected %s: %d %s", req.URL.Path, resp.StatusCode, body)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return errors.CombineErrors(domain.ErrNetwork, errors.Wrap(err, "malformed backend response"))
	}
	return nil
}
