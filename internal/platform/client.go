package platform

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"
	"tradebridge/internal/errors"
	"tradebridge/internal/logger"

	"github.com/sirupsen/logrus"
)

const (
	pathTrades       = "/api/executor/trades"
	pathTradesClosed = "/api/executor/trades/closed"
	pathAlerts       = "/api/executor/alerts"

	HeaderAPIKey    = "X-API-KEY"
	HeaderSign      = "X-SIGN"
	HeaderTimestamp = "X-TIMESTAMP"

	defaultTimeout  = 10 * time.Second
	defaultAttempts = 3
	defaultBackoff  = time.Second
)

type Options struct {
	BaseURL    string
	APIKey     string
	APISecret  string
	ExecutorID string
	Timeout    time.Duration
	Attempts   int
	Backoff    time.Duration
}

// Client posts signed JSON to the operator platform. The signature is
// HMAC-SHA256 over timestamp + api key + body.
type Client struct {
	baseURL    string
	apiKey     string
	secret     string
	executorID string
	attempts   int
	backoff    time.Duration
	httpClient *http.Client
	log        *logger.Logger
	now        func() time.Time
}

func NewClient(opts Options, log *logger.Logger) *Client {
	if opts.Timeout <= 0 {
		opts.Timeout = defaultTimeout
	}
	if opts.Attempts <= 0 {
		opts.Attempts = defaultAttempts
	}
	if opts.Backoff <= 0 {
		opts.Backoff = defaultBackoff
	}
	return &Client{
		baseURL:    strings.TrimRight(opts.BaseURL, "/"),
		apiKey:     opts.APIKey,
		secret:     opts.APISecret,
		executorID: opts.ExecutorID,
		attempts:   opts.Attempts,
		backoff:    opts.Backoff,
		httpClient: &http.Client{Timeout: opts.Timeout},
		log:        log,
		now:        time.Now,
	}
}

func (c *Client) logEntry() *logrus.Entry {
	return c.log.WithComponent("platform")
}

func (c *Client) ReportTrade(ctx context.Context, trade TradeOpened) error {
	trade.ExecutorID = c.executorID
	if err := c.post(ctx, pathTrades, trade); err != nil {
		return err
	}
	c.logEntry().WithField("ticket", trade.Ticket).Info("Сделка передана на платформу.")
	return nil
}

func (c *Client) ReportTradeClosed(ctx context.Context, trade TradeClosed) error {
	trade.ExecutorID = c.executorID
	if err := c.post(ctx, pathTradesClosed, trade); err != nil {
		return err
	}
	c.logEntry().WithFields(logrus.Fields{
		"ticket": trade.Ticket,
		"profit": trade.Profit,
	}).Info("Закрытие сделки передано на платформу.")
	return nil
}

func (c *Client) ReportAlert(ctx context.Context, alert Alert) error {
	alert.ExecutorID = c.executorID
	if alert.Time.IsZero() {
		alert.Time = c.now()
	}
	return c.post(ctx, pathAlerts, alert)
}

// post retries connectivity failures; a rejected request is returned as is.
func (c *Client) post(ctx context.Context, path string, body any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return errors.Wrap(errors.ErrCodeInvalidParameter, "Не удалось подготовить тело запроса", err)
	}

	delay := c.backoff
	for attempt := 1; ; attempt++ {
		err = c.doRequest(ctx, path, payload)
		if err == nil || !errors.IsRetryable(err) || attempt >= c.attempts {
			return err
		}
		c.logEntry().WithError(err).WithField("attempt", attempt).Warn("Платформа недоступна, повтор.")
		select {
		case <-ctx.Done():
			return errors.Wrap(errors.ErrCodeCancelled, "Отправка на платформу отменена", ctx.Err())
		case <-time.After(delay):
		}
		delay *= 2
	}
}

func (c *Client) doRequest(ctx context.Context, path string, payload []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return errors.Wrap(errors.ErrCodeInvalidConfiguration, "Не удалось создать запрос", err)
	}

	timestamp := strconv.FormatInt(c.now().UnixMilli(), 10)
	req.Header.Set(HeaderAPIKey, c.apiKey)
	req.Header.Set(HeaderTimestamp, timestamp)
	req.Header.Set(HeaderSign, Sign(c.secret, timestamp+c.apiKey+string(payload)))
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return errors.Wrap(errors.ErrCodeConnectivity, "Ошибка запроса к платформе", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<16))
	if err != nil {
		return errors.Wrap(errors.ErrCodeConnectivity, "Не удалось прочитать ответ платформы", err)
	}

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return errors.Newf(errors.ErrCodeAuthFailed, "Платформа отклонила подпись: %s", resp.Status)
	case resp.StatusCode >= 500:
		return errors.Newf(errors.ErrCodeConnectivity, "Платформа ответила %s: %s", resp.Status, strings.TrimSpace(string(data)))
	case resp.StatusCode >= 400:
		return errors.Newf(errors.ErrCodeExecution, "Платформа отклонила запрос %s: %s", resp.Status, strings.TrimSpace(string(data)))
	}
	return nil
}

func Sign(secret, payload string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(payload))
	return hex.EncodeToString(mac.Sum(nil))
}
