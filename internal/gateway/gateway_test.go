package gateway

import (
    "context"
    "crypto/hmac"
    "crypto/sha256"
    "encoding/hex"
    "encoding/json"
    "fmt"
    "io"
    "net/http"
    "net/http/httptest"
    "strconv"
    "strings"
    "testing"
    "time"
    "unicode/utf8"

    "github.com/stretchr/testify/assert"
    "github.com/stretchr/testify/require"
)

func TestIsPlaceholder(t *testing.T) {
    for _, id := range []string{"", "  ", "{CHECKOUT_SESSION_ID}", "{checkout_session_id}", "{anything}"} {
        assert.True(t, IsPlaceholder(id), id)
    }
    assert.False(t, IsPlaceholder("cs_abc123"))
}

func TestMinorUnits(t *testing.T) {
    assert.Equal(t, int64(1415000), MinorUnits(14150))
    assert.Equal(t, int64(1999), MinorUnits(19.99))
}

func TestCheckoutSettled(t *testing.T) {
    assert.True(t, (&Checkout{Status: "active"}).Settled())
    assert.True(t, (&Checkout{Status: "complete"}).Settled())
    assert.True(t, (&Checkout{Status: "open", Paid: true}).Settled())
    assert.False(t, (&Checkout{Status: "expired"}).Settled())
}

func TestPayMongoCreateCheckout(t *testing.T) {
    var got map[string]any
    srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
        user, _, ok := r.BasicAuth()
        assert.True(t, ok)
        assert.Equal(t, "sk_test", user)
        assert.Equal(t, "/checkout_sessions", r.URL.Path)
        b, _ := io.ReadAll(r.Body)
        require.NoError(t, json.Unmarshal(b, &got))
        w.Header().Set("Content-Type", "application/json")
        fmt.Fprint(w, `{"data":{"id":"cs_1","type":"checkout_session","attributes":{"checkout_url":"https://pay/cs_1","status":"active",
            "payment_intent":{"id":"pi_1","attributes":{"status":"awaiting_payment_method"}}}}}`)
    }))
    defer srv.Close()

    pm := NewPayMongo("sk_test", "", time.Second, WithPayMongoBaseURL(srv.URL))
    co, err := pm.CreateCheckout(context.Background(), CheckoutRequest{
        Reference: "VIO-ABC123", Description: "Deposit", Amount: 14150.5, Currency: "php",
        CustomerEmail: "a@b.co", SuccessURL: "https://s", CancelURL: "https://c",
    })
    require.NoError(t, err)
    assert.Equal(t, "cs_1", co.ID)
    assert.Equal(t, "https://pay/cs_1", co.URL)
    assert.Equal(t, "pi_1", co.PaymentIntentID)

    attrs := got["data"].(map[string]any)["attributes"].(map[string]any)
    item := attrs["line_items"].([]any)[0].(map[string]any)
    assert.Equal(t, float64(1415050), item["amount"])
    assert.Equal(t, "PHP", item["currency"])
    assert.Equal(t, "VIO-ABC123", attrs["reference_number"])
}

func TestPayMongoErrorSurfaces(t *testing.T) {
    srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
        w.WriteHeader(http.StatusBadRequest)
        fmt.Fprint(w, `{"errors":[{"code":"parameter_invalid","detail":"billing.email is invalid"}]}`)
    }))
    defer srv.Close()

    pm := NewPayMongo("sk", "", time.Second, WithPayMongoBaseURL(srv.URL))
    _, err := pm.CreateCheckout(context.Background(), CheckoutRequest{Amount: 1})
    require.Error(t, err)
    assert.Contains(t, err.Error(), "billing.email is invalid")
}

func TestPayMongoGetCheckoutPaid(t *testing.T) {
    srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
        assert.Equal(t, "/checkout_sessions/cs_9", r.URL.Path)
        fmt.Fprint(w, `{"data":{"id":"cs_9","attributes":{"status":"active",
            "payment_intent":{"id":"pi_9","attributes":{"status":"succeeded"}},
            "payments":[{"id":"pay_9","attributes":{"status":"paid"}}]}}}`)
    }))
    defer srv.Close()

    co, err := NewPayMongo("sk", "", time.Second, WithPayMongoBaseURL(srv.URL)).GetCheckout(context.Background(), "cs_9")
    require.NoError(t, err)
    assert.True(t, co.Paid)
    assert.Equal(t, "pi_9", co.PaymentIntentID)
    assert.Equal(t, "pay_9", co.PaymentID)
}

func TestPayMongoRefundResolvesPaymentFromIntent(t *testing.T) {
    var refundBody map[string]any
    srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
        switch r.URL.Path {
        case "/payment_intents/pi_1":
            fmt.Fprint(w, `{"data":{"id":"pi_1","attributes":{"status":"succeeded","payments":[{"id":"pay_1","attributes":{}}]}}}`)
        case "/refunds":
            b, _ := io.ReadAll(r.Body)
            _ = json.Unmarshal(b, &refundBody)
            fmt.Fprint(w, `{"data":{"id":"ref_1","attributes":{"status":"pending"}}}`)
        default:
            w.WriteHeader(http.StatusNotFound)
        }
    }))
    defer srv.Close()

    res, err := NewPayMongo("sk", "", time.Second, WithPayMongoBaseURL(srv.URL)).
        Refund(context.Background(), RefundRequest{PaymentIntentID: "pi_1", Amount: 100})
    require.NoError(t, err)
    assert.Equal(t, "ref_1", res.ID)
    attrs := refundBody["data"].(map[string]any)["attributes"].(map[string]any)
    assert.Equal(t, "pay_1", attrs["payment_id"])
    assert.Equal(t, float64(10000), attrs["amount"])
}

func TestPayMongoRefundUndecodableResponse(t *testing.T) {
    srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
        fmt.Fprint(w, `{"data":{"id":"ref_2","attributes":"pending"}}`)
    }))
    defer srv.Close()

    res, err := NewPayMongo("sk", "", time.Second, WithPayMongoBaseURL(srv.URL)).
        Refund(context.Background(), RefundRequest{PaymentID: "pay_2", Amount: 50})
    require.Error(t, err)
    assert.Nil(t, res)
    assert.Contains(t, err.Error(), "ref_2")
}

func TestTruncateKeepsRunesWhole(t *testing.T) {
    assert.Equal(t, "abc", truncate("abc", 5))
    assert.Equal(t, "Pa", truncate("Paglalakbay", 2))

    got := truncate("Biyahe sa Baños ñ₱₱", 15)
    assert.True(t, utf8.ValidString(got))
    assert.Equal(t, "Biyahe sa Baños", got)

    got = truncate(strings.Repeat("₱", 300), 255)
    assert.True(t, utf8.ValidString(got))
    assert.Equal(t, 255, utf8.RuneCountInString(got))
}

const pmCheckoutPaidEvent = `{"data":{"id":"evt_1","attributes":{"type":"checkout_session.payment.paid",
  "data":{"id":"cs_5","attributes":{"reference_number":"VIO-ZZZ999",
  "payment_intent":{"id":"pi_5","attributes":{}},"payments":[{"id":"pay_5","attributes":{}}]}}}}}`

func TestPayMongoWebhookSignature(t *testing.T) {
    now := time.Unix(1_700_000_000, 0)
    pm := NewPayMongo("sk", "whsk", time.Second)
    pm.now = func() time.Time { return now }

    payload := []byte(pmCheckoutPaidEvent)
    ts := strconv.FormatInt(now.Unix(), 10)
    h := http.Header{}
    h.Set("Paymongo-Signature", "t="+ts+",te="+SignPayMongo("whsk", ts, payload)+",li=")

    ev, err := pm.ParseWebhook(payload, h)
    require.NoError(t, err)
    assert.Equal(t, EventCheckoutPaid, ev.Kind)
    assert.Equal(t, "cs_5", ev.CheckoutID)
    assert.Equal(t, "pi_5", ev.PaymentIntentID)
    assert.Equal(t, "pay_5", ev.PaymentID)
    assert.Equal(t, "VIO-ZZZ999", ev.Reference)

    h.Set("Paymongo-Signature", "t="+ts+",te=deadbeef")
    _, err = pm.ParseWebhook(payload, h)
    assert.ErrorIs(t, err, ErrInvalidSignature)

    old := strconv.FormatInt(now.Add(-time.Hour).Unix(), 10)
    h.Set("Paymongo-Signature", "t="+old+",te="+SignPayMongo("whsk", old, payload))
    _, err = pm.ParseWebhook(payload, h)
    assert.ErrorIs(t, err, ErrInvalidSignature)
}

func TestPayMongoWebhookPaymentFailed(t *testing.T) {
    payload := []byte(`{"data":{"attributes":{"type":"payment.failed","data":{"id":"pay_2",
      "attributes":{"payment_intent_id":"pi_2","last_payment_error":{"failed_message":"card declined"}}}}}}`)
    ev, err := NewPayMongo("sk", "", time.Second).ParseWebhook(payload, http.Header{})
    require.NoError(t, err)
    assert.Equal(t, EventPaymentFailed, ev.Kind)
    assert.Equal(t, "pi_2", ev.PaymentIntentID)
    assert.Equal(t, "card declined", ev.FailureMessage)
}

func TestPayMongoWebhookUnknownIgnored(t *testing.T) {
    ev, err := NewPayMongo("sk", "", time.Second).ParseWebhook([]byte(`{"data":{"attributes":{"type":"source.chargeable"}}}`), http.Header{})
    require.NoError(t, err)
    assert.Equal(t, EventIgnored, ev.Kind)
}

func stripeSignature(secret string, ts time.Time, payload []byte) string {
    mac := hmac.New(sha256.New, []byte(secret))
    mac.Write([]byte(strconv.FormatInt(ts.Unix(), 10) + "."))
    mac.Write(payload)
    return "t=" + strconv.FormatInt(ts.Unix(), 10) + ",v1=" + hex.EncodeToString(mac.Sum(nil))
}

func TestStripeWebhookCheckoutCompleted(t *testing.T) {
    payload := []byte(`{"id":"evt_1","object":"event","type":"checkout.session.completed","api_version":"2020-08-27",
      "data":{"object":{"id":"cs_test_1","object":"checkout.session","payment_status":"paid",
      "client_reference_id":"VIO-AAA111","payment_intent":"pi_3"}}}`)
    s := NewStripe("sk_test", "whsec_test")
    h := http.Header{}
    h.Set("Stripe-Signature", stripeSignature("whsec_test", time.Now(), payload))

    ev, err := s.ParseWebhook(payload, h)
    require.NoError(t, err)
    assert.Equal(t, EventCheckoutPaid, ev.Kind)
    assert.Equal(t, "cs_test_1", ev.CheckoutID)
    assert.Equal(t, "pi_3", ev.PaymentIntentID)
    assert.Equal(t, "VIO-AAA111", ev.Reference)

    h.Set("Stripe-Signature", stripeSignature("other", time.Now(), payload))
    _, err = s.ParseWebhook(payload, h)
    assert.ErrorIs(t, err, ErrInvalidSignature)
}

func TestStripeWebhookUnpaidSessionIgnored(t *testing.T) {
    payload := []byte(`{"id":"evt_2","object":"event","type":"checkout.session.completed",
      "data":{"object":{"id":"cs_2","object":"checkout.session","payment_status":"unpaid"}}}`)
    ev, err := NewStripe("sk_test", "").ParseWebhook(payload, http.Header{})
    require.NoError(t, err)
    assert.Equal(t, EventIgnored, ev.Kind)
}
