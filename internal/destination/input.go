package destination

// Input is the flat wire form of a destination as submitted by clients.
type Input struct {
	Type          MethodType `json:"type"`
	BankName      string     `json:"bank_name,omitempty"`
	AccountNumber string     `json:"account_number,omitempty"`
	RoutingNumber string     `json:"routing_number,omitempty"`
	AccountHolder string     `json:"account_holder,omitempty"`
	IBAN          string     `json:"iban,omitempty"`
	SWIFT         string     `json:"swift,omitempty"`
	RecipientName string     `json:"recipient_name,omitempty"`
	City          string     `json:"recipient_city,omitempty"`
	Country       string     `json:"recipient_country,omitempty"`
	CryptoAddress string     `json:"crypto_address,omitempty"`
	CryptoNetwork string     `json:"crypto_network,omitempty"`
	CryptoCoin    string     `json:"crypto_currency,omitempty"`
	CardID        string     `json:"card_id,omitempty"`
	PayPalEmail   string     `json:"paypal_email,omitempty"`
}

// Parse builds the typed variant for in.Type and validates it.
func Parse(in Input) (Details, error) {
	var d Details
	switch in.Type {
	case BankTransfer:
		d = BankDetails{
			BankName:      in.BankName,
			AccountNumber: in.AccountNumber,
			RoutingNumber: in.RoutingNumber,
			AccountHolder: in.AccountHolder,
		}
	case BankTransferInternational:
		d = InternationalBankDetails{
			BankName:      in.BankName,
			IBAN:          in.IBAN,
			SWIFT:         in.SWIFT,
			AccountHolder: in.AccountHolder,
		}
	case CardExpress, CardStandard:
		d = CardDetails{Speed: in.Type, CardID: in.CardID}
	case PayPal:
		d = PayPalDetails{Email: in.PayPalEmail}
	case WesternUnion, MoneyGram:
		d = CashPickupDetails{
			Provider:      in.Type,
			RecipientName: in.RecipientName,
			City:          in.City,
			Country:       in.Country,
		}
	case Crypto:
		d = CryptoDetails{
			Address:  in.CryptoAddress,
			Network:  in.CryptoNetwork,
			Currency: in.CryptoCoin,
		}
	case "":
		return nil, &ValidationError{Field: "type", Message: "is required"}
	default:
		return nil, &ValidationError{Field: "type", Message: "unsupported payout method " + string(in.Type)}
	}
	if err := d.Validate(); err != nil {
		return nil, err
	}
	return d, nil
}

// Flatten is the inverse of Parse.
func Flatten(d Details) Input {
	in := Input{Type: d.Method()}
	switch v := d.(type) {
	case BankDetails:
		in.BankName, in.AccountNumber, in.RoutingNumber, in.AccountHolder = v.BankName, v.AccountNumber, v.RoutingNumber, v.AccountHolder
	case InternationalBankDetails:
		in.BankName, in.IBAN, in.SWIFT, in.AccountHolder = v.BankName, v.IBAN, v.SWIFT, v.AccountHolder
	case CardDetails:
		in.CardID = v.CardID
	case PayPalDetails:
		in.PayPalEmail = v.Email
	case CashPickupDetails:
		in.RecipientName, in.City, in.Country = v.RecipientName, v.City, v.Country
	case CryptoDetails:
		in.CryptoAddress, in.CryptoNetwork, in.CryptoCoin = v.Address, v.Network, v.Currency
	}
	return in
}
