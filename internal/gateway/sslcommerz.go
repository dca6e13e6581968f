package gateway

import (
	"context"
	"crypto/md5"
	"crypto/subtle"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/whoami847/topup-payments/internal/models"
)

const (
	sslcommerzLiveBase    = "https://securepay.sslcommerz.com"
	sslcommerzSandboxBase = "https://sandbox.sslcommerz.com"
)

// SSLCommerz implements Adapter for the SSLCommerz hosted-checkout API.
//
// Initiation is a form POST to the v4 session endpoint; the response
// carries a GatewayPageURL the user is redirected to. IPN authenticity is
// proven by verify_sign: an md5 over the fields named in verify_key plus
// the md5 of the store password, sorted by field name.
type SSLCommerz struct {
	client  *http.Client
	baseURL string // overrides live/sandbox selection when set; tests use this
}

func NewSSLCommerz(timeout time.Duration) *SSLCommerz {
	return &SSLCommerz{client: &http.Client{Timeout: timeout}}
}

func (s *SSLCommerz) Name() string { return "sslcommerz" }

func (s *SSLCommerz) endpoint(gw *models.Gateway) string {
	if s.baseURL != "" {
		return s.baseURL
	}
	if gw.IsLive {
		return sslcommerzLiveBase
	}
	return sslcommerzSandboxBase
}

type sslcommerzSessionResponse struct {
	Status         string `json:"status"`
	FailedReason   string `json:"failedreason"`
	GatewayPageURL string `json:"GatewayPageURL"`
}

func (s *SSLCommerz) InitiatePayment(ctx context.Context, req InitiationRequest, gw *models.Gateway) (string, error) {
	order := req.Order

	form := url.Values{}
	form.Set("store_id", gw.StoreID)
	form.Set("store_passwd", gw.StoreSecret)
	form.Set("tran_id", order.ID)
	form.Set("total_amount", fmt.Sprintf("%.2f", order.Amount))
	form.Set("currency", order.Currency)
	form.Set("product_name", order.Description)
	form.Set("product_category", string(order.Kind))
	form.Set("product_profile", "non-physical-goods")
	form.Set("cus_name", req.Customer.Name)
	form.Set("cus_email", req.Customer.Email)
	form.Set("cus_phone", req.Customer.Phone)
	form.Set("success_url", req.Callback.Success)
	form.Set("fail_url", req.Callback.Fail)
	form.Set("cancel_url", req.Callback.Cancel)
	form.Set("ipn_url", req.Callback.IPN)
	form.Set("shipping_method", "NO")

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost,
		s.endpoint(gw)+"/gwprocess/v4/api.php", strings.NewReader(form.Encode()))
	if err != nil {
		return "", fmt.Errorf("sslcommerz: build session request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := s.client.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("sslcommerz: session request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("sslcommerz: session request: unexpected status %d", resp.StatusCode)
	}

	var session sslcommerzSessionResponse
	if err := json.NewDecoder(resp.Body).Decode(&session); err != nil {
		return "", fmt.Errorf("sslcommerz: decode session response: %w", err)
	}

	if session.Status != "SUCCESS" || session.GatewayPageURL == "" {
		reason := session.FailedReason
		if reason == "" {
			reason = "session was not created"
		}
		return "", fmt.Errorf("%w: %s", models.ErrGatewayRejected, reason)
	}

	return session.GatewayPageURL, nil
}

func (s *SSLCommerz) ValidateIPN(rawBody []byte, gw *models.Gateway) IPNResult {
	vals, err := url.ParseQuery(string(rawBody))
	if err != nil {
		return IPNResult{}
	}

	tranID := vals.Get("tran_id")
	verifySign := vals.Get("verify_sign")
	verifyKey := vals.Get("verify_key")
	if tranID == "" || verifySign == "" || verifyKey == "" {
		return IPNResult{TransactionID: tranID}
	}

	expected := sslcommerzSign(vals, verifyKey, gw.StoreSecret)
	if subtle.ConstantTimeCompare([]byte(expected), []byte(strings.ToLower(verifySign))) != 1 {
		return IPNResult{TransactionID: tranID}
	}

	status := models.StatusFailed
	switch vals.Get("status") {
	case "VALID", "VALIDATED":
		status = models.StatusCompleted
	}

	return IPNResult{
		IsValid:        true,
		TransactionID:  tranID,
		Status:         status,
		PaymentDetails: flatten(vals),
	}
}

// sslcommerzSign recomputes verify_sign: the fields listed in verify_key
// plus store_passwd=md5(secret), sorted by name, joined as k=v with "&",
// then md5-hexed.
func sslcommerzSign(vals url.Values, verifyKey, storeSecret string) string {
	names := strings.Split(verifyKey, ",")
	pairs := make([]string, 0, len(names)+1)
	for _, name := range names {
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		pairs = append(pairs, name+"="+vals.Get(name))
	}
	pairs = append(pairs, "store_passwd="+md5Hex(storeSecret))
	sort.Strings(pairs)

	return md5Hex(strings.Join(pairs, "&"))
}

func md5Hex(s string) string {
	sum := md5.Sum([]byte(s))
	return hex.EncodeToString(sum[:])
}

func flatten(vals url.Values) map[string]string {
	out := make(map[string]string, len(vals))
	for k := range vals {
		out[k] = vals.Get(k)
	}
	return out
}
