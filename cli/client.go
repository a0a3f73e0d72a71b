package cli

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
	"github.com/qubic/go-vesting-ledger/api"
	"github.com/qubic/go-vesting-ledger/business/domain/vesting"
	"github.com/qubic/go-vesting-ledger/entities"
)

// Client talks to the vesting service api. In dry run mode requests are printed instead of sent.
type Client struct {
	baseUrl    string
	account    string
	dryRun     bool
	out        io.Writer
	httpClient *http.Client
}

func NewClient(baseUrl, account string, dryRun bool, out io.Writer, timeout time.Duration) *Client {
	return &Client{
		baseUrl:    strings.TrimRight(baseUrl, "/"),
		account:    account,
		dryRun:     dryRun,
		out:        out,
		httpClient: &http.Client{Timeout: timeout},
	}
}

func (c *Client) CreateSchedule(ctx context.Context, params vesting.CreateParams) (*api.ScheduleResponse, error) {
	var response api.ScheduleResponse
	sent, err := c.do(ctx, http.MethodPost, "/v1/schedules", params, &response)
	return result(&response, sent, err)
}

func (c *Client) GetSchedule(ctx context.Context, key entities.ScheduleKey) (*api.ScheduleResponse, error) {
	var response api.ScheduleResponse
	sent, err := c.do(ctx, http.MethodGet, schedulePath(key), nil, &response)
	return result(&response, sent, err)
}

func (c *Client) ListSchedules(ctx context.Context, beneficiary string) (*api.ListSchedulesResponse, error) {
	var response api.ListSchedulesResponse
	sent, err := c.do(ctx, http.MethodGet, "/v1/schedules/"+url.PathEscape(beneficiary), nil, &response)
	return result(&response, sent, err)
}

func (c *Client) Estimate(ctx context.Context, key entities.ScheduleKey, at int64) (*api.EstimateResponse, error) {
	path := schedulePath(key) + "/estimate"
	if at > 0 {
		path += fmt.Sprintf("?at=%d", at)
	}
	var response api.EstimateResponse
	sent, err := c.do(ctx, http.MethodGet, path, nil, &response)
	return result(&response, sent, err)
}

func (c *Client) Claim(ctx context.Context, key entities.ScheduleKey) (*api.ClaimResponse, error) {
	var response api.ClaimResponse
	sent, err := c.do(ctx, http.MethodPost, schedulePath(key)+"/claim", nil, &response)
	return result(&response, sent, err)
}

func (c *Client) Revoke(ctx context.Context, key entities.ScheduleKey) (*api.RevokeResponse, error) {
	var response api.RevokeResponse
	sent, err := c.do(ctx, http.MethodPost, schedulePath(key)+"/revoke", nil, &response)
	return result(&response, sent, err)
}

func (c *Client) Balance(ctx context.Context, account, asset string) (*api.BalanceResponse, error) {
	var response api.BalanceResponse
	path := fmt.Sprintf("/v1/accounts/%s/balances/%s", url.PathEscape(account), url.PathEscape(asset))
	sent, err := c.do(ctx, http.MethodGet, path, nil, &response)
	return result(&response, sent, err)
}

func (c *Client) Deposit(ctx context.Context, account, asset string, amount uint64) (*api.BalanceResponse, error) {
	var response api.BalanceResponse
	path := fmt.Sprintf("/v1/accounts/%s/deposits", url.PathEscape(account))
	sent, err := c.do(ctx, http.MethodPost, path, api.DepositRequest{Asset: asset, Amount: amount}, &response)
	return result(&response, sent, err)
}

// do returns false if the request was only printed.
func (c *Client) do(ctx context.Context, method, path string, body, response any) (bool, error) {
	var payload []byte
	if body != nil {
		var err error
		payload, err = json.Marshal(body)
		if err != nil {
			return false, errors.Wrap(err, "marshalling request")
		}
	}

	if c.dryRun {
		_, err := fmt.Fprintf(c.out, "%s %s%s\n%s: %s\n", method, c.baseUrl, path, api.CallerHeader, c.account)
		if err == nil && payload != nil {
			_, err = fmt.Fprintf(c.out, "%s\n", payload)
		}
		return false, err
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseUrl+path, bytes.NewReader(payload))
	if err != nil {
		return false, errors.Wrap(err, "creating request")
	}
	req.Header.Set("Content-Type", "application/json")
	if c.account != "" {
		req.Header.Set(api.CallerHeader, c.account)
	}

	res, err := c.httpClient.Do(req)
	if err != nil {
		return false, errors.Wrapf(err, "calling [%s %s]", method, path)
	}
	defer res.Body.Close()

	if res.StatusCode >= http.StatusBadRequest {
		var problem api.ErrorResponse
		if err := json.NewDecoder(res.Body).Decode(&problem); err != nil {
			return false, errors.Errorf("unexpected status [%d]", res.StatusCode)
		}
		return false, errors.Errorf("%s: %s", problem.Code, problem.Message)
	}

	if err := json.NewDecoder(res.Body).Decode(response); err != nil {
		return false, errors.Wrap(err, "decoding response")
	}
	return true, nil
}

func result[T any](response *T, sent bool, err error) (*T, error) {
	if err != nil || !sent {
		return nil, err
	}
	return response, nil
}

func schedulePath(key entities.ScheduleKey) string {
	return fmt.Sprintf("/v1/schedules/%s/%s/%s", url.PathEscape(key.Beneficiary), url.PathEscape(key.Asset), url.PathEscape(key.Name))
}
