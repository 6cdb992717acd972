// Package gateway builds signed redirect URLs for a VNPay-style payment gateway
// and verifies the parameters it sends back on the return redirect.
package gateway

import (
	"crypto/hmac"
	"crypto/sha512"
	"encoding/hex"
	"fmt"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/spf13/cast"

	"github.com/d60-Lab/bookstore/internal/config"
)

const (
	paramAmount        = "vnp_Amount"
	paramOrderInfo     = "vnp_OrderInfo"
	paramTxnRef        = "vnp_TxnRef"
	paramResponseCode  = "vnp_ResponseCode"
	paramTxnStatus     = "vnp_TransactionStatus"
	paramTransactionNo = "vnp_TransactionNo"
	paramPayDate       = "vnp_PayDate"
	paramSecureHash    = "vnp_SecureHash"
	paramHashType      = "vnp_SecureHashType"

	codeSuccess = "00"
	timeLayout  = "20060102150405"
)

// Outcome of verifying a gateway return.
type Outcome int

const (
	OutcomeInvalid Outcome = iota - 1
	OutcomeFailed
	OutcomeSuccess
)

func (o Outcome) String() string {
	switch o {
	case OutcomeSuccess:
		return "success"
	case OutcomeFailed:
		return "failed"
	default:
		return "invalid"
	}
}

// Callback is the verified, parsed content of a gateway return.
type Callback struct {
	Outcome       Outcome
	TxnRef        string
	OrderRef      string
	Amount        decimal.Decimal
	TransactionNo string
	ResponseCode  string
	PayDate       time.Time
}

// RedirectBuilder is what the payment engine needs from the gateway.
type RedirectBuilder interface {
	BuildPaymentURL(req PaymentRequest) (url string, txnRef string, err error)
	VerifyCallback(params url.Values) Callback
}

type PaymentRequest struct {
	OrderID   int64
	Amount    decimal.Decimal
	OrderInfo string
	ClientIP  string
	Now       time.Time
}

type VNPay struct {
	cfg config.GatewayConfig
}

func NewVNPay(cfg config.GatewayConfig) *VNPay {
	return &VNPay{cfg: cfg}
}

// BuildPaymentURL encodes amount in minor units (×100) and signs the sorted
// query string with HMAC-SHA512.
func (v *VNPay) BuildPaymentURL(req PaymentRequest) (string, string, error) {
	if req.Amount.Sign() <= 0 {
		return "", "", fmt.Errorf("amount must be positive, got %s", req.Amount)
	}
	now := req.Now
	if now.IsZero() {
		now = time.Now()
	}
	txnRef := NewTxnRef(req.OrderID)
	ip := req.ClientIP
	if ip == "" {
		ip = "127.0.0.1"
	}
	info := req.OrderInfo
	if info == "" {
		info = fmt.Sprintf("%d", req.OrderID)
	}

	params := url.Values{}
	params.Set("vnp_Version", "2.1.0")
	params.Set("vnp_Command", "pay")
	params.Set("vnp_TmnCode", v.cfg.TmnCode)
	params.Set(paramAmount, req.Amount.Mul(decimal.NewFromInt(100)).Round(0).String())
	params.Set("vnp_CurrCode", "VND")
	params.Set(paramTxnRef, txnRef)
	params.Set(paramOrderInfo, info)
	params.Set("vnp_OrderType", "other")
	params.Set("vnp_Locale", "vn")
	params.Set("vnp_ReturnUrl", v.cfg.ReturnURL)
	params.Set("vnp_IpAddr", ip)
	params.Set("vnp_CreateDate", now.Format(timeLayout))
	if v.cfg.ExpireAfter > 0 {
		params.Set("vnp_ExpireDate", now.Add(v.cfg.ExpireAfter).Format(timeLayout))
	}

	query := canonicalQuery(params)
	signed := query + "&" + paramSecureHash + "=" + Sign(v.cfg.HashSecret, query)
	return v.cfg.PayURL + "?" + signed, txnRef, nil
}

// VerifyCallback never trusts the parameters until the signature matches.
func (v *VNPay) VerifyCallback(params url.Values) Callback {
	cb := Callback{Outcome: OutcomeInvalid}
	got := params.Get(paramSecureHash)
	if got == "" {
		return cb
	}

	want := Sign(v.cfg.HashSecret, canonicalQuery(signingFields(params)))
	if !hmac.Equal([]byte(strings.ToLower(got)), []byte(want)) {
		return cb
	}

	minor, err := parseMinorUnits(params.Get(paramAmount))
	if err != nil {
		return cb
	}
	cb.TxnRef = params.Get(paramTxnRef)
	cb.OrderRef = OrderRefFromTxnRef(cb.TxnRef)
	cb.Amount = decimal.New(minor, -2)
	cb.TransactionNo = params.Get(paramTransactionNo)
	cb.ResponseCode = params.Get(paramResponseCode)
	if t, err := time.ParseInLocation(timeLayout, params.Get(paramPayDate), time.Local); err == nil {
		cb.PayDate = t
	}

	status := params.Get(paramTxnStatus)
	if cb.ResponseCode == codeSuccess && (status == "" || status == codeSuccess) {
		cb.Outcome = OutcomeSuccess
	} else {
		cb.Outcome = OutcomeFailed
	}
	return cb
}

// Sign returns the lowercase hex HMAC-SHA512 of data.
func Sign(secret, data string) string {
	mac := hmac.New(sha512.New, []byte(secret))
	mac.Write([]byte(data))
	return hex.EncodeToString(mac.Sum(nil))
}

// canonicalQuery sorts keys and url-encodes values the way the gateway hashes them.
func canonicalQuery(params url.Values) string {
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	var b strings.Builder
	for i, k := range keys {
		if i > 0 {
			b.WriteByte('&')
		}
		b.WriteString(url.QueryEscape(k))
		b.WriteByte('=')
		b.WriteString(url.QueryEscape(params.Get(k)))
	}
	return b.String()
}

// NewTxnRef is "<orderID>-<nonce>" so every attempt has a unique reference.
func NewTxnRef(orderID int64) string {
	return fmt.Sprintf("%d-%s", orderID, strings.ReplaceAll(uuid.NewString(), "-", "")[:12])
}

func OrderRefFromTxnRef(ref string) string {
	if i := strings.IndexByte(ref, '-'); i >= 0 {
		return ref[:i]
	}
	return ref
}

// signingFields keeps the non-empty vnp_ parameters except the hash itself.
func signingFields(params url.Values) url.Values {
	fields := url.Values{}
	for k, vals := range params {
		if !strings.HasPrefix(k, "vnp_") || k == paramSecureHash || k == paramHashType {
			continue
		}
		if len(vals) > 0 && vals[0] != "" {
			fields.Set(k, vals[0])
		}
	}
	return fields
}

// SignParams is used by tests and local tooling to fake a gateway return.
func SignParams(secret string, params url.Values) url.Values {
	out := url.Values{}
	for k, vals := range params {
		out[k] = vals
	}
	out.Set(paramSecureHash, Sign(secret, canonicalQuery(signingFields(params))))
	return out
}

// parseMinorUnits accepts only base-10 digits; leading zeros are stripped
// before coercion so they are never read as an octal prefix.
func parseMinorUnits(s string) (int64, error) {
	if s == "" || strings.TrimLeft(s, "0123456789") != "" {
		return 0, fmt.Errorf("amount %q is not a decimal integer", s)
	}
	digits := strings.TrimLeft(s, "0")
	if digits == "" {
		return 0, nil
	}
	return cast.ToInt64E(digits)
}
