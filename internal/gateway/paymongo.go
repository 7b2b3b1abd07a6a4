package gateway

import (
    "bytes"
    "context"
    "crypto/hmac"
    "crypto/sha256"
    "encoding/hex"
    "encoding/json"
    "fmt"
    "io"
    "net/http"
    "strconv"
    "strings"
    "time"
    "unicode/utf8"
)

const payMongoBaseURL = "https://api.paymongo.com/v1"

// PayMongo implements Gateway over the PayMongo REST API.  Requests are
// authenticated with HTTP basic auth using the secret key as username.
type PayMongo struct {
    secretKey     string
    webhookSecret string
    baseURL       string
    methods       []string
    client        *http.Client
    // tolerance bounds the age of a signed webhook; zero disables the check.
    tolerance time.Duration
    now       func() time.Time
}

// PayMongoOption customizes a PayMongo client.
type PayMongoOption func(*PayMongo)

// WithPayMongoBaseURL points the client at another API root (tests).
func WithPayMongoBaseURL(u string) PayMongoOption {
    return func(p *PayMongo) { p.baseURL = strings.TrimRight(u, "/") }
}

// WithPaymentMethods overrides the accepted payment method types.
func WithPaymentMethods(m []string) PayMongoOption {
    return func(p *PayMongo) {
        if len(m) > 0 {
            p.methods = m
        }
    }
}

// NewPayMongo returns a PayMongo gateway.  timeout bounds each API call.
func NewPayMongo(secretKey, webhookSecret string, timeout time.Duration, opts ...PayMongoOption) *PayMongo {
    p := &PayMongo{
        secretKey:     secretKey,
        webhookSecret: webhookSecret,
        baseURL:       payMongoBaseURL,
        methods:       []string{"card", "gcash", "paymaya", "grab_pay"},
        client:        &http.Client{Timeout: timeout},
        tolerance:     5 * time.Minute,
        now:           time.Now,
    }
    for _, o := range opts {
        o(p)
    }
    return p
}

func (p *PayMongo) Name() string { return "paymongo" }

// pmResource is the JSON:API envelope used by every PayMongo resource.
type pmResource struct {
    ID         string          `json:"id"`
    Type       string          `json:"type"`
    Attributes json.RawMessage `json:"attributes"`
}

type pmCheckoutAttrs struct {
    CheckoutURL     string       `json:"checkout_url"`
    Status          string       `json:"status"`
    ReferenceNumber string       `json:"reference_number"`
    PaymentIntent   *pmResource  `json:"payment_intent"`
    Payments        []pmResource `json:"payments"`
}

type pmStatusAttrs struct {
    Status          string       `json:"status"`
    PaymentIntentID string       `json:"payment_intent_id"`
    Payments        []pmResource `json:"payments"`
    LastPaymentErr  *struct {
        FailedMessage string `json:"failed_message"`
    } `json:"last_payment_error"`
}

type pmError struct {
    Errors []struct {
        Code   string `json:"code"`
        Detail string `json:"detail"`
    } `json:"errors"`
}

func (p *PayMongo) do(ctx context.Context, method, path string, body any) (*pmResource, error) {
    var rdr io.Reader
    if body != nil {
        b, err := json.Marshal(body)
        if err != nil {
            return nil, err
        }
        rdr = bytes.NewReader(b)
    }
    req, err := http.NewRequestWithContext(ctx, method, p.baseURL+path, rdr)
    if err != nil {
        return nil, err
    }
    req.SetBasicAuth(p.secretKey, "")
    req.Header.Set("Accept", "application/json")
    if body != nil {
        req.Header.Set("Content-Type", "application/json")
    }
    resp, err := p.client.Do(req)
    if err != nil {
        return nil, fmt.Errorf("paymongo %s %s: %w", method, path, err)
    }
    defer resp.Body.Close()
    raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
    if err != nil {
        return nil, err
    }
    if resp.StatusCode >= 300 {
        var pe pmError
        if json.Unmarshal(raw, &pe) == nil && len(pe.Errors) > 0 {
            return nil, fmt.Errorf("paymongo %s %s: %d %s: %s", method, path, resp.StatusCode, pe.Errors[0].Code, pe.Errors[0].Detail)
        }
        return nil, fmt.Errorf("paymongo %s %s: status %d", method, path, resp.StatusCode)
    }
    var env struct {
        Data pmResource `json:"data"`
    }
    if err := json.Unmarshal(raw, &env); err != nil {
        return nil, fmt.Errorf("paymongo %s %s: decode: %w", method, path, err)
    }
    return &env.Data, nil
}

// CreateCheckout creates a hosted checkout session with a single line
// item for the deposit.
func (p *PayMongo) CreateCheckout(ctx context.Context, req CheckoutRequest) (*Checkout, error) {
    currency := strings.ToUpper(req.Currency)
    if currency == "" {
        currency = "PHP"
    }
    body := map[string]any{
        "data": map[string]any{
            "attributes": map[string]any{
                "billing": map[string]any{
                    "name":  req.CustomerName,
                    "email": req.CustomerEmail,
                },
                "line_items": []map[string]any{{
                    "amount":   MinorUnits(req.Amount),
                    "currency": currency,
                    "name":     req.Description,
                    "quantity": 1,
                }},
                "payment_method_types": p.methods,
                "description":          req.Description,
                "reference_number":     req.Reference,
                "success_url":          req.SuccessURL,
                "cancel_url":           req.CancelURL,
                "send_email_receipt":   true,
            },
        },
    }
    res, err := p.do(ctx, http.MethodPost, "/checkout_sessions", body)
    if err != nil {
        return nil, err
    }
    return decodePayMongoCheckout(res)
}

// GetCheckout retrieves a checkout session by id.
func (p *PayMongo) GetCheckout(ctx context.Context, id string) (*Checkout, error) {
    res, err := p.do(ctx, http.MethodGet, "/checkout_sessions/"+id, nil)
    if err != nil {
        return nil, err
    }
    return decodePayMongoCheckout(res)
}

func decodePayMongoCheckout(res *pmResource) (*Checkout, error) {
    var a pmCheckoutAttrs
    if err := json.Unmarshal(res.Attributes, &a); err != nil {
        return nil, fmt.Errorf("paymongo checkout attributes: %w", err)
    }
    c := &Checkout{ID: res.ID, URL: a.CheckoutURL, Status: a.Status}
    if a.PaymentIntent != nil {
        c.PaymentIntentID = a.PaymentIntent.ID
        var pi pmStatusAttrs
        if json.Unmarshal(a.PaymentIntent.Attributes, &pi) == nil && pi.Status == "succeeded" {
            c.Paid = true
        }
    }
    for _, pay := range a.Payments {
        var pa pmStatusAttrs
        if json.Unmarshal(pay.Attributes, &pa) == nil && pa.Status == "paid" {
            c.PaymentID = pay.ID
            c.Paid = true
        }
    }
    return c, nil
}

// Refund returns money for a captured payment.  PayMongo refunds by
// payment id; when only the intent is known the intent is fetched to
// find its payment.
func (p *PayMongo) Refund(ctx context.Context, req RefundRequest) (*RefundResult, error) {
    paymentID := req.PaymentID
    if paymentID == "" && req.PaymentIntentID != "" {
        res, err := p.do(ctx, http.MethodGet, "/payment_intents/"+req.PaymentIntentID, nil)
        if err != nil {
            return nil, err
        }
        var a pmStatusAttrs
        if err := json.Unmarshal(res.Attributes, &a); err != nil {
            return nil, err
        }
        if len(a.Payments) > 0 {
            paymentID = a.Payments[0].ID
        }
    }
    if paymentID == "" {
        return nil, fmt.Errorf("paymongo refund: no payment id: %w", ErrUnsupported)
    }
    body := map[string]any{
        "data": map[string]any{
            "attributes": map[string]any{
                "amount":     MinorUnits(req.Amount),
                "payment_id": paymentID,
                "reason":     "requested_by_customer",
                "notes":      truncate(req.Reason, 255),
            },
        },
    }
    res, err := p.do(ctx, http.MethodPost, "/refunds", body)
    if err != nil {
        return nil, err
    }
    var a pmStatusAttrs
    if err := json.Unmarshal(res.Attributes, &a); err != nil {
        return nil, fmt.Errorf("paymongo refund %s: decode attributes: %w", res.ID, err)
    }
    return &RefundResult{ID: res.ID, Status: a.Status}, nil
}

// ParseWebhook verifies the Paymongo-Signature header and decodes the
// event.  The header has the form t=<unix>,te=<test sig>,li=<live sig>
// where each signature is HMAC-SHA256 over "<t>.<payload>".
func (p *PayMongo) ParseWebhook(payload []byte, header http.Header) (*WebhookEvent, error) {
    if p.webhookSecret != "" {
        if err := p.verify(payload, header.Get("Paymongo-Signature")); err != nil {
            return nil, err
        }
    }
    var env struct {
        Data struct {
            ID         string `json:"id"`
            Attributes struct {
                Type string     `json:"type"`
                Data pmResource `json:"data"`
            } `json:"attributes"`
        } `json:"data"`
    }
    if err := json.Unmarshal(payload, &env); err != nil {
        return nil, fmt.Errorf("paymongo webhook: %w", err)
    }
    typ := env.Data.Attributes.Type
    obj := env.Data.Attributes.Data
    ev := &WebhookEvent{Type: typ, Kind: EventIgnored}
    switch typ {
    case "checkout_session.payment.paid":
        ev.Kind = EventCheckoutPaid
        ev.CheckoutID = obj.ID
        var a pmCheckoutAttrs
        if json.Unmarshal(obj.Attributes, &a) == nil {
            ev.Reference = a.ReferenceNumber
            if a.PaymentIntent != nil {
                ev.PaymentIntentID = a.PaymentIntent.ID
            }
            if len(a.Payments) > 0 {
                ev.PaymentID = a.Payments[0].ID
            }
        }
    case "payment.paid", "payment.failed":
        ev.Kind = EventPaymentPaid
        if typ == "payment.failed" {
            ev.Kind = EventPaymentFailed
        }
        ev.PaymentID = obj.ID
        var a pmStatusAttrs
        if json.Unmarshal(obj.Attributes, &a) == nil {
            ev.PaymentIntentID = a.PaymentIntentID
            if a.LastPaymentErr != nil {
                ev.FailureMessage = a.LastPaymentErr.FailedMessage
            }
        }
    }
    return ev, nil
}

func (p *PayMongo) verify(payload []byte, header string) error {
    if header == "" {
        return ErrInvalidSignature
    }
    var ts string
    var sigs []string
    for _, part := range strings.Split(header, ",") {
        k, v, ok := strings.Cut(strings.TrimSpace(part), "=")
        if !ok {
            continue
        }
        switch k {
        case "t":
            ts = v
        case "te", "li":
            if v != "" {
                sigs = append(sigs, v)
            }
        }
    }
    if ts == "" || len(sigs) == 0 {
        return ErrInvalidSignature
    }
    if p.tolerance > 0 {
        sec, err := strconv.ParseInt(ts, 10, 64)
        if err != nil {
            return ErrInvalidSignature
        }
        age := p.now().Sub(time.Unix(sec, 0))
        if age > p.tolerance || age < -p.tolerance {
            return ErrInvalidSignature
        }
    }
    want := SignPayMongo(p.webhookSecret, ts, payload)
    for _, s := range sigs {
        if hmac.Equal([]byte(s), []byte(want)) {
            return nil
        }
    }
    return ErrInvalidSignature
}

// SignPayMongo computes the hex signature PayMongo sends for a payload.
func SignPayMongo(secret, timestamp string, payload []byte) string {
    mac := hmac.New(sha256.New, []byte(secret))
    mac.Write([]byte(timestamp))
    mac.Write([]byte("."))
    mac.Write(payload)
    return hex.EncodeToString(mac.Sum(nil))
}

// truncate cuts s to at most n runes.
func truncate(s string, n int) string {
    if utf8.RuneCountInString(s) <= n {
        return s
    }
    r := []rune(s)
    return string(r[:n])
}
