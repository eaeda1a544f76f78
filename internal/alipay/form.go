package alipay

import (
	"bytes"
	"encoding/json"
	"fmt"
	"html/template"
	"sort"
	"strings"
	"time"
)

// Gateway constants for the mobile web checkout.
const (
	// DefaultGatewayURL is the production Alipay open API gateway.
	DefaultGatewayURL = "https://openapi.alipay.com/gateway.do"
	// MethodWapPay is the mobile web checkout API method.
	MethodWapPay = "alipay.trade.wap.pay"
	// ProductCodeWap identifies the mobile web product.
	ProductCodeWap = "QUICK_WAP_WAY"
	// SignTypeRSA2 identifies RSA-SHA256 signatures.
	SignTypeRSA2 = "RSA2"
	// TimestampLayout is the gateway timestamp format.
	TimestampLayout = "2006-01-02 15:04:05"
)

// Trade statuses reported by payment callbacks.
const (
	TradeStatusSuccess  = "TRADE_SUCCESS"
	TradeStatusFinished = "TRADE_FINISHED"
)

// gatewayZone is the fixed UTC+8 zone the gateway expects timestamps in.
var gatewayZone = time.FixedZone("UTC+8", 8*60*60)

// WapPayRequest carries the inputs for a mobile web checkout form.
type WapPayRequest struct {
	GatewayURL string
	AppID      string
	PrivateKey string
	OrderID    string
	Amount     string // Two-decimal CNY amount, e.g. "9.90".
	Subject    string
	ReturnURL  string
	NotifyURL  string
	Now        time.Time
}

// WapPayForm is a signed checkout request rendered as an auto-submitting HTML form.
type WapPayForm struct {
	Action string
	Params map[string]string
	HTML   string
}

// bizContent is serialized in field order, matching the gateway examples.
type bizContent struct {
	OutTradeNo  string `json:"out_trade_no"`
	TotalAmount string `json:"total_amount"`
	Subject     string `json:"subject"`
	ProductCode string `json:"product_code"`
}

type formField struct {
	Name  string
	Value string
}

var formTemplate = template.Must(template.New("alipay").Parse(`<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<title>Redirecting to Alipay</title>
</head>
<body>
<form id="alipay_submit" name="alipay_submit" action="{{.Action}}" method="POST">
{{- range .Fields}}
<input type="hidden" name="{{.Name}}" value="{{.Value}}"/>
{{- end}}
</form>
<script>document.forms['alipay_submit'].submit();</script>
</body>
</html>
`))

// BuildWapPayForm signs a checkout request and renders the redirect form.
func BuildWapPayForm(req WapPayRequest) (*WapPayForm, error) {
	if strings.TrimSpace(req.AppID) == "" || strings.TrimSpace(req.PrivateKey) == "" {
		return nil, fmt.Errorf("alipay: app id and private key are required")
	}
	gateway := strings.TrimSpace(req.GatewayURL)
	if gateway == "" {
		gateway = DefaultGatewayURL
	}
	now := req.Now
	if now.IsZero() {
		now = time.Now()
	}

	content, err := encodeBizContent(bizContent{
		OutTradeNo:  req.OrderID,
		TotalAmount: req.Amount,
		Subject:     req.Subject,
		ProductCode: ProductCodeWap,
	})
	if err != nil {
		return nil, err
	}

	params := map[string]string{
		"app_id":      req.AppID,
		"method":      MethodWapPay,
		"format":      "JSON",
		"return_url":  req.ReturnURL,
		"charset":     "utf-8",
		"sign_type":   SignTypeRSA2,
		"timestamp":   now.In(gatewayZone).Format(TimestampLayout),
		"version":     "1.0",
		"notify_url":  req.NotifyURL,
		"biz_content": content,
	}
	sign, err := Sign(params, req.PrivateKey)
	if err != nil {
		return nil, err
	}
	params[ParamSign] = sign

	action := gateway + "?charset=utf-8"
	html, err := renderForm(action, params)
	if err != nil {
		return nil, err
	}
	return &WapPayForm{Action: action, Params: params, HTML: html}, nil
}

func encodeBizContent(content bizContent) (string, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(content); err != nil {
		return "", fmt.Errorf("alipay: encode biz_content: %w", err)
	}
	return strings.TrimRight(buf.String(), "\n"), nil
}

func renderForm(action string, params map[string]string) (string, error) {
	names := make([]string, 0, len(params))
	for name := range params {
		names = append(names, name)
	}
	sort.Strings(names)
	fields := make([]formField, 0, len(names))
	for _, name := range names {
		fields = append(fields, formField{Name: name, Value: params[name]})
	}

	var buf bytes.Buffer
	if err := formTemplate.Execute(&buf, struct {
		Action string
		Fields []formField
	}{Action: action, Fields: fields}); err != nil {
		return "", fmt.Errorf("alipay: render form: %w", err)
	}
	return buf.String(), nil
}
