package destination

import (
	"fmt"
	"strings"
)

type MethodType string

const (
	BankTransfer              MethodType = "bank_transfer"
	BankTransferInternational MethodType = "bank_transfer_international"
	CardExpress               MethodType = "card_express"
	CardStandard              MethodType = "card_standard"
	WesternUnion              MethodType = "western_union"
	MoneyGram                 MethodType = "moneygram"
	Crypto                    MethodType = "crypto"
	PayPal                    MethodType = "paypal"
)

var methodTypes = map[MethodType]string{
	BankTransfer:              "Bank transfer",
	BankTransferInternational: "International bank transfer",
	CardExpress:               "Card (express)",
	CardStandard:              "Card (standard)",
	WesternUnion:              "Western Union",
	MoneyGram:                 "MoneyGram",
	Crypto:                    "Crypto",
	PayPal:                    "PayPal",
}

func (t MethodType) Valid() bool {
	_, ok := methodTypes[t]
	return ok
}

// IsCashPickup reports whether the recipient collects cash at an agent location.
func (t MethodType) IsCashPickup() bool {
	return t == WesternUnion || t == MoneyGram
}

func (t MethodType) IsCard() bool {
	return t == CardExpress || t == CardStandard
}

func (t MethodType) DisplayName() string {
	if name, ok := methodTypes[t]; ok {
		return name
	}
	return string(t)
}

// ValidationError names the first field that failed validation.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

func required(field, value string) error {
	if strings.TrimSpace(value) == "" {
		return &ValidationError{Field: field, Message: "is required"}
	}
	return nil
}

func firstErr(errs ...error) error {
	for _, err := range errs {
		if err != nil {
			return err
		}
	}
	return nil
}
