package bank

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"keymarket/config"
	"keymarket/internal/core/domain"
	"keymarket/internal/core/ports"

	"github.com/rs/zerolog"
)

// HTTPClient interface for testability.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// FeedClient implements ports.BankFeed against the bank's statement API.
// Every request is HMAC-signed over METHOD|PATH|TIMESTAMP|BODY so the
// bank can reject tampered or replayed calls.
type FeedClient struct {
	baseURL    string
	secretKey  string
	sigSvc     ports.SignatureService
	httpClient HTTPClient
	log        zerolog.Logger
}

// NewFeedClient creates a new bank feed client.
func NewFeedClient(cfg config.BankFeedConfig, sigSvc ports.SignatureService, log zerolog.Logger) *FeedClient {
	return &FeedClient{
		baseURL:    cfg.BaseURL,
		secretKey:  cfg.SecretKey,
		sigSvc:     sigSvc,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		log:        log,
	}
}

// NewFeedClientWithHTTP creates a feed client with a custom HTTP client.
func NewFeedClientWithHTTP(cfg config.BankFeedConfig, sigSvc ports.SignatureService, httpClient HTTPClient, log zerolog.Logger) *FeedClient {
	return &FeedClient{
		baseURL:    cfg.BaseURL,
		secretKey:  cfg.SecretKey,
		sigSvc:     sigSvc,
		httpClient: httpClient,
		log:        log,
	}
}

// feedTransaction is the bank's wire format for one statement entry.
type feedTransaction struct {
	ID       string `json:"id"`
	Amount   int64  `json:"amount"`
	Memo     string `json:"memo"`
	PostedAt int64  `json:"posted_at"` // Unix seconds
}

type feedResponse struct {
	Transactions []feedTransaction `json:"transactions"`
}

// RecentTransactions fetches the latest inbound transfers for one
// receiving account.
func (c *FeedClient) RecentTransactions(ctx context.Context, accountNo string) ([]domain.BankTransaction, error) {
	path := "/api/v1/accounts/" + accountNo + "/transactions"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return nil, fmt.Errorf("create feed request: %w", err)
	}

	timestamp := time.Now().Unix()
	canonical := c.sigSvc.BuildCanonicalString(http.MethodGet, path, timestamp, "")
	req.Header.Set("X-Timestamp", strconv.FormatInt(timestamp, 10))
	req.Header.Set("X-Signature", c.sigSvc.Sign(c.secretKey, canonical))

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch bank feed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("bank feed returned %d: %s", resp.StatusCode, body)
	}

	var payload feedResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("decode bank feed: %w", err)
	}

	txs := make([]domain.BankTransaction, 0, len(payload.Transactions))
	for _, t := range payload.Transactions {
		txs = append(txs, domain.BankTransaction{
			ID:       t.ID,
			Amount:   t.Amount,
			Memo:     t.Memo,
			PostedAt: time.Unix(t.PostedAt, 0).UTC(),
		})
	}

	c.log.Debug().Str("account_no", accountNo).Int("count", len(txs)).Msg("bank feed fetched")
	return txs, nil
}
