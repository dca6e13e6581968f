package gateway

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/whoami847/topup-payments/internal/models"
)

const (
	aamarpayLiveBase    = "https://secure.aamarpay.com"
	aamarpaySandboxBase = "https://sandbox.aamarpay.com"
)

// AamarPay implements Adapter for the aamarPay JSON checkout API.
//
// The IPN carries mer_txnid, amount, pay_status and a signature field: an
// HMAC-SHA256 over store_id|mer_txnid|amount|pay_status keyed with the
// gateway's signature key.
type AamarPay struct {
	client  *http.Client
	baseURL string // test override
}

func NewAamarPay(timeout time.Duration) *AamarPay {
	return &AamarPay{client: &http.Client{Timeout: timeout}}
}

func (a *AamarPay) Name() string { return "aamarpay" }

func (a *AamarPay) endpoint(gw *models.Gateway) string {
	if a.baseURL != "" {
		return a.baseURL
	}
	if gw.IsLive {
		return aamarpayLiveBase
	}
	return aamarpaySandboxBase
}

type aamarpayCheckoutResponse struct {
	Result     string `json:"result"`
	PaymentURL string `json:"payment_url"`
	Message    string `json:"message"`
}

func (a *AamarPay) InitiatePayment(ctx context.Context, req InitiationRequest, gw *models.Gateway) (string, error) {
	order := req.Order

	payload := map[string]string{
		"store_id":      gw.StoreID,
		"signature_key": gw.StoreSecret,
		"tran_id":       order.ID,
		"amount":        fmt.Sprintf("%.2f", order.Amount),
		"currency":      order.Currency,
		"desc":          order.Description,
		"cus_name":      req.Customer.Name,
		"cus_email":     req.Customer.Email,
		"cus_phone":     req.Customer.Phone,
		"success_url":   req.Callback.Success,
		"fail_url":      req.Callback.Fail,
		"cancel_url":    req.Callback.Cancel,
		"notify_url":    req.Callback.IPN,
		"type":          "json",
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("aamarpay: encode checkout request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost,
		a.endpoint(gw)+"/jsonpost.php", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("aamarpay: build checkout request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := a.client.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("aamarpay: checkout request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("aamarpay: checkout request: unexpected status %d", resp.StatusCode)
	}

	var checkout aamarpayCheckoutResponse
	if err := json.NewDecoder(resp.Body).Decode(&checkout); err != nil {
		return "", fmt.Errorf("aamarpay: decode checkout response: %w", err)
	}

	if checkout.Result != "true" || checkout.PaymentURL == "" {
		msg := checkout.Message
		if msg == "" {
			msg = "checkout session was not created"
		}
		return "", fmt.Errorf("%w: %s", models.ErrGatewayRejected, msg)
	}

	return checkout.PaymentURL, nil
}

func (a *AamarPay) ValidateIPN(rawBody []byte, gw *models.Gateway) IPNResult {
	vals, err := url.ParseQuery(string(rawBody))
	if err != nil {
		return IPNResult{}
	}

	tranID := vals.Get("mer_txnid")
	signature := vals.Get("signature")
	if tranID == "" || signature == "" {
		return IPNResult{TransactionID: tranID}
	}

	expected := aamarpaySign(gw.StoreID, tranID, vals.Get("amount"), vals.Get("pay_status"), gw.StoreSecret)
	if !hmac.Equal([]byte(expected), []byte(strings.ToLower(signature))) {
		return IPNResult{TransactionID: tranID}
	}

	status := models.StatusFailed
	if vals.Get("pay_status") == "Successful" {
		status = models.StatusCompleted
	}

	return IPNResult{
		IsValid:        true,
		TransactionID:  tranID,
		Status:         status,
		PaymentDetails: flatten(vals),
	}
}

func aamarpaySign(storeID, tranID, amount, payStatus, key string) string {
	mac := hmac.New(sha256.New, []byte(key))
	fmt.Fprintf(mac, "%s|%s|%s|%s", storeID, tranID, amount, payStatus)
	return hex.EncodeToString(mac.Sum(nil))
}
