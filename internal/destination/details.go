package destination

import "strings"

// Details is the method-specific part of a payout destination. Each variant
// carries only the fields its method type needs.
type Details interface {
	Method() MethodType
	Validate() error
	// Summary is a short masked label shown next to a payout.
	Summary() string
}

type BankDetails struct {
	BankName      string `json:"bank_name,omitempty"`
	AccountNumber string `json:"account_number"`
	RoutingNumber string `json:"routing_number,omitempty"`
	AccountHolder string `json:"account_holder,omitempty"`
}

func (d BankDetails) Method() MethodType { return BankTransfer }

func (d BankDetails) Validate() error {
	return required("account_number", d.AccountNumber)
}

func (d BankDetails) Summary() string {
	return joinLabel(d.BankName, "••"+lastN(d.AccountNumber, 4))
}

type InternationalBankDetails struct {
	BankName      string `json:"bank_name,omitempty"`
	IBAN          string `json:"iban"`
	SWIFT         string `json:"swift"`
	AccountHolder string `json:"account_holder,omitempty"`
}

func (d InternationalBankDetails) Method() MethodType { return BankTransferInternational }

func (d InternationalBankDetails) Validate() error {
	return firstErr(required("iban", d.IBAN), required("swift", d.SWIFT))
}

func (d InternationalBankDetails) Summary() string {
	return joinLabel(d.BankName, "IBAN ••"+lastN(d.IBAN, 4))
}

type CardDetails struct {
	Speed  MethodType `json:"speed"`
	CardID string     `json:"card_id"`
}

func (d CardDetails) Method() MethodType {
	if d.Speed == CardExpress {
		return CardExpress
	}
	return CardStandard
}

func (d CardDetails) Validate() error {
	return required("card_id", d.CardID)
}

func (d CardDetails) Summary() string {
	return "Card ••" + lastN(d.CardID, 4)
}

type PayPalDetails struct {
	Email string `json:"email"`
}

func (d PayPalDetails) Method() MethodType { return PayPal }

func (d PayPalDetails) Validate() error {
	if err := required("paypal_email", d.Email); err != nil {
		return err
	}
	if !strings.Contains(d.Email, "@") {
		return &ValidationError{Field: "paypal_email", Message: "is not a valid email"}
	}
	return nil
}

func (d PayPalDetails) Summary() string {
	return "PayPal " + d.Email
}

type CashPickupDetails struct {
	Provider      MethodType `json:"provider"`
	RecipientName string     `json:"recipient_name"`
	City          string     `json:"city"`
	Country       string     `json:"country"`
}

func (d CashPickupDetails) Method() MethodType { return d.Provider }

func (d CashPickupDetails) Validate() error {
	if !d.Provider.IsCashPickup() {
		return &ValidationError{Field: "type", Message: "is not a cash pickup provider"}
	}
	return firstErr(
		required("recipient_name", d.RecipientName),
		required("recipient_city", d.City),
		required("recipient_country", d.Country),
	)
}

func (d CashPickupDetails) Summary() string {
	return joinLabel(d.Provider.DisplayName(), d.RecipientName)
}

type CryptoDetails struct {
	Address  string `json:"address"`
	Network  string `json:"network"`
	Currency string `json:"currency"`
}

func (d CryptoDetails) Method() MethodType { return Crypto }

func (d CryptoDetails) Validate() error {
	return firstErr(
		required("crypto_address", d.Address),
		required("crypto_network", d.Network),
		required("crypto_currency", d.Currency),
	)
}

func (d CryptoDetails) Summary() string {
	return joinLabel(strings.ToUpper(d.Currency), d.Network, shortAddress(d.Address))
}

func lastN(s string, n int) string {
	s = strings.ReplaceAll(s, " ", "")
	if len(s) <= n {
		return s
	}
	return s[len(s)-n:]
}

func shortAddress(addr string) string {
	if len(addr) <= 12 {
		return addr
	}
	return addr[:6] + "…" + addr[len(addr)-4:]
}

func joinLabel(parts ...string) string {
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if strings.TrimSpace(p) != "" {
			out = append(out, p)
		}
	}
	return strings.Join(out, " · ")
}
