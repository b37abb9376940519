// Package otp sends and confirms one-time codes for phone verification and
// PIN reset.
package otp

import (
	"bytes"
	"context"
	"crypto/rand"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"math/big"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// ErrUnknownToken is returned by Confirm for a token that was never issued or
// has expired.
var ErrUnknownToken = errors.New("otp token not found or expired")

// Sender delivers a code to a phone and later checks what the user typed.
// Confirm returns the phone the token was issued for; callers must compare
// it with the phone they are about to act on.
type Sender interface {
	Send(ctx context.Context, phone string) (token string, err error)
	Confirm(ctx context.Context, token, code string) (phone string, ok bool, err error)
}

// HTTPClient talks to the messaging provider's JSON API.
type HTTPClient struct {
	baseURL string
	apiKey  string
	client  *http.Client
}

func NewHTTPClient(baseURL, apiKey string) *HTTPClient {
	return &HTTPClient{
		baseURL: baseURL,
		apiKey:  apiKey,
		client:  &http.Client{Timeout: 10 * time.Second},
	}
}

type sendRequest struct {
	Phone string `json:"phone"`
}

type sendResponse struct {
	Token string `json:"token"`
}

type confirmRequest struct {
	Token string `json:"token"`
	Code  string `json:"code"`
}

type confirmResponse struct {
	Verified bool   `json:"verified"`
	Phone    string `json:"phone"`
}

// Send requests a code for a 10-digit Indian mobile number.
func (c *HTTPClient) Send(ctx context.Context, phone string) (string, error) {
	var resp sendResponse
	if err := c.post(ctx, "/otp/send", sendRequest{Phone: "+91" + phone}, &resp); err != nil {
		return "", fmt.Errorf("send otp: %w", err)
	}
	if resp.Token == "" {
		return "", fmt.Errorf("send otp: empty token in response")
	}
	return resp.Token, nil
}

// Confirm checks the code with the provider. The provider echoes the number
// the token was sent to; it comes back without the +91 prefix.
func (c *HTTPClient) Confirm(ctx context.Context, token, code string) (string, bool, error) {
	var resp confirmResponse
	if err := c.post(ctx, "/otp/verify", confirmRequest{Token: token, Code: code}, &resp); err != nil {
		return "", false, fmt.Errorf("confirm otp: %w", err)
	}
	return strings.TrimPrefix(resp.Phone, "+91"), resp.Verified, nil
}

func (c *HTTPClient) post(ctx context.Context, path string, body, out any) error {
	b, err := json.Marshal(body)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(b))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return ErrUnknownToken
	}
	if resp.StatusCode >= 300 {
		return fmt.Errorf("provider returned %s", resp.Status)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

// DevSender keeps codes in memory and logs them instead of sending an SMS.
type DevSender struct {
	mu    sync.Mutex
	codes map[string]pending
	ttl   time.Duration
	now   func() time.Time
}

type pending struct {
	phone   string
	code    string
	expires time.Time
}

func NewDevSender() *DevSender {
	return &DevSender{codes: make(map[string]pending), ttl: 5 * time.Minute, now: time.Now}
}

func (d *DevSender) Send(ctx context.Context, phone string) (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(1000000))
	if err != nil {
		return "", fmt.Errorf("generate otp: %w", err)
	}
	code := fmt.Sprintf("%06d", n.Int64())
	token := uuid.NewString()

	d.mu.Lock()
	d.codes[token] = pending{phone: phone, code: code, expires: d.now().Add(d.ttl)}
	d.mu.Unlock()

	log.Printf("OTP for %s: %s", phone, code)
	return token, nil
}

// Confirm consumes the token on a correct code. A wrong code leaves it usable
// until it expires.
func (d *DevSender) Confirm(ctx context.Context, token, code string) (string, bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	p, ok := d.codes[token]
	if !ok || d.now().After(p.expires) {
		delete(d.codes, token)
		return "", false, ErrUnknownToken
	}
	if p.code != code {
		return p.phone, false, nil
	}
	delete(d.codes, token)
	return p.phone, true, nil
}

// Code returns the pending code for token. Tests only.
func (d *DevSender) Code(token string) string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.codes[token].code
}
