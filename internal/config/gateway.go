package config

import (
    "fmt"
    "strings"
    "time"
)

// GatewayConfig selects and configures the payment provider.
type GatewayConfig struct {
    Provider      string // paymongo or stripe
    SecretKey     string
    WebhookSecret string // empty disables signature verification
    Currency      string
    Methods       []string // PayMongo payment_method_types
    Timeout       time.Duration
}

// LoadGatewayConfig reads PAYMENT_GATEWAY and the matching provider keys.
func LoadGatewayConfig() (GatewayConfig, error) {
    provider := strings.ToLower(envStr("PAYMENT_GATEWAY", "paymongo"))
    cfg := GatewayConfig{
        Provider: provider,
        Currency: strings.ToUpper(envStr("PAYMENT_CURRENCY", "PHP")),
        Timeout:  envDur("PAYMENT_TIMEOUT", 15*time.Second),
    }
    switch provider {
    case "paymongo":
        cfg.SecretKey = envStr("PAYMONGO_SECRET_KEY", "")
        cfg.WebhookSecret = envStr("PAYMONGO_WEBHOOK_SECRET", "")
        cfg.Methods = splitList(envStr("PAYMONGO_METHODS", ""))
    case "stripe":
        cfg.SecretKey = envStr("STRIPE_SECRET_KEY", "")
        cfg.WebhookSecret = envStr("STRIPE_WEBHOOK_SECRET", "")
    default:
        return cfg, fmt.Errorf("unknown PAYMENT_GATEWAY %q", provider)
    }
    if cfg.SecretKey == "" {
        return cfg, fmt.Errorf("missing secret key for payment gateway %s", provider)
    }
    return cfg, nil
}

func splitList(s string) []string {
    var out []string
    for _, p := range strings.Split(s, ",") {
        if p = strings.TrimSpace(p); p != "" {
            out = append(out, p)
        }
    }
    return out
}
