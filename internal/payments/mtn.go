package payments

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"github.com/afribook/afribook-backend/pkg/config"
	"github.com/afribook/afribook-backend/pkg/enums"
	pkgerrors "github.com/afribook/afribook-backend/pkg/errors"
	"github.com/afribook/afribook-backend/pkg/logger"
)

// MTNClient integrates the MTN MoMo collection and disbursement APIs.
type MTNClient struct {
	baseURL         string
	subscriptionKey string
	apiUser         string
	apiKey          string
	targetEnv       string
	httpClient      *http.Client
	logger          *logger.Logger
}

// NewMTNClient validates the credentials and returns an MTN MoMo gateway.
func NewMTNClient(cfg config.MTNConfig, logg *logger.Logger) (*MTNClient, error) {
	if strings.TrimSpace(cfg.SubscriptionKey) == "" {
		return nil, fmt.Errorf("mtn subscription key is required")
	}
	if strings.TrimSpace(cfg.APIUser) == "" || strings.TrimSpace(cfg.APIKey) == "" {
		return nil, fmt.Errorf("mtn api credentials are required")
	}
	if logg == nil {
		return nil, fmt.Errorf("mtn logger is required")
	}
	return &MTNClient{
		baseURL:         strings.TrimRight(cfg.BaseURL, "/"),
		subscriptionKey: cfg.SubscriptionKey,
		apiUser:         cfg.APIUser,
		apiKey:          cfg.APIKey,
		targetEnv:       cfg.TargetEnv,
		httpClient:      &http.Client{Timeout: cfg.Timeout},
		logger:          logg,
	}, nil
}

func (c *MTNClient) Provider() enums.PaymentProvider {
	return enums.PaymentProviderMTN
}

type mtnTokenResponse struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   any    `json:"expires_in"`
}

type mtnParty struct {
	PartyIDType string `json:"partyIdType"`
	PartyID     string `json:"partyId"`
}

type mtnTransferRequest struct {
	Amount       string    `json:"amount"`
	Currency     string    `json:"currency"`
	ExternalID   string    `json:"externalId"`
	Payer        *mtnParty `json:"payer,omitempty"`
	Payee        *mtnParty `json:"payee,omitempty"`
	PayerMessage string    `json:"payerMessage,omitempty"`
	PayeeNote    string    `json:"payeeNote,omitempty"`
}

type mtnStatusResponse struct {
	Status string `json:"status"`
	Reason any    `json:"reason,omitempty"`
}

// Charge initiates a requesttopay against the payer and polls once for the
// synchronous outcome. Sandbox confirms most transfers immediately; anything
// still pending resolves through the webhook.
func (c *MTNClient) Charge(ctx context.Context, req ChargeRequest) (*Result, error) {
	return c.initiate(ctx, "collection", "requesttopay", mtnTransferRequest{
		Amount:     strconv.FormatInt(req.Amount, 10),
		Currency:   req.Currency.String(),
		ExternalID: req.ExternalRef,
		Payer: &mtnParty{
			PartyIDType: "MSISDN",
			PartyID:     req.PayerPhone,
		},
		PayerMessage: req.Description,
	})
}

// Payout initiates a disbursement transfer to the payee.
func (c *MTNClient) Payout(ctx context.Context, req PayoutRequest) (*Result, error) {
	return c.initiate(ctx, "disbursement", "transfer", mtnTransferRequest{
		Amount:     strconv.FormatInt(req.Amount, 10),
		Currency:   req.Currency.String(),
		ExternalID: req.ExternalRef,
		Payee: &mtnParty{
			PartyIDType: "MSISDN",
			PartyID:     req.PayeePhone,
		},
		PayeeNote: req.Description,
	})
}

func (c *MTNClient) initiate(ctx context.Context, product, operation string, body mtnTransferRequest) (*Result, error) {
	token, err := c.fetchToken(ctx, product)
	if err != nil {
		return nil, err
	}

	referenceID := uuid.NewString()
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshal mtn request: %w", err)
	}

	url := fmt.Sprintf("%s/%s/v1_0/%s", c.baseURL, product, operation)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("build mtn request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+token)
	httpReq.Header.Set("X-Reference-Id", referenceID)
	httpReq.Header.Set("X-Target-Environment", c.targetEnv)
	httpReq.Header.Set("Ocp-Apim-Subscription-Key", c.subscriptionKey)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodePaymentFailed, err, "mtn initiate call failed")
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode != http.StatusAccepted {
		return nil, pkgerrors.New(pkgerrors.CodePaymentFailed,
			fmt.Sprintf("mtn %s returned status %d", operation, resp.StatusCode))
	}

	status, err := c.fetchStatus(ctx, product, operation, referenceID, token)
	if err != nil {
		// The transfer was accepted; report PENDING and let the webhook finish it.
		c.logger.Error(ctx, "mtn status poll failed", err)
		return &Result{ProviderRef: referenceID, Status: enums.PaymentStatusPending}, nil
	}
	return &Result{ProviderRef: referenceID, Status: status}, nil
}

func (c *MTNClient) fetchStatus(ctx context.Context, product, operation, referenceID, token string) (enums.PaymentStatus, error) {
	url := fmt.Sprintf("%s/%s/v1_0/%s/%s", c.baseURL, product, operation, referenceID)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return enums.PaymentStatusPending, fmt.Errorf("build mtn status request: %w", err)
	}
	httpReq.Header.Set("Authorization", "Bearer "+token)
	httpReq.Header.Set("X-Target-Environment", c.targetEnv)
	httpReq.Header.Set("Ocp-Apim-Subscription-Key", c.subscriptionKey)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return enums.PaymentStatusPending, fmt.Errorf("mtn status call: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return enums.PaymentStatusPending, fmt.Errorf("mtn status returned %d", resp.StatusCode)
	}

	var decoded mtnStatusResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return enums.PaymentStatusPending, fmt.Errorf("decode mtn status: %w", err)
	}
	return normalizeProviderStatus(decoded.Status), nil
}

func (c *MTNClient) fetchToken(ctx context.Context, product string) (string, error) {
	url := fmt.Sprintf("%s/%s/token/", c.baseURL, product)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, nil)
	if err != nil {
		return "", fmt.Errorf("build mtn token request: %w", err)
	}
	httpReq.SetBasicAuth(c.apiUser, c.apiKey)
	httpReq.Header.Set("Ocp-Apim-Subscription-Key", c.subscriptionKey)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return "", pkgerrors.Wrap(pkgerrors.CodePaymentFailed, err, "mtn token call failed")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", pkgerrors.New(pkgerrors.CodePaymentFailed,
			fmt.Sprintf("mtn token returned status %d", resp.StatusCode))
	}

	var decoded mtnTokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return "", fmt.Errorf("decode mtn token: %w", err)
	}
	if decoded.AccessToken == "" {
		return "", pkgerrors.New(pkgerrors.CodePaymentFailed, "mtn token response missing access_token")
	}
	return decoded.AccessToken, nil
}
