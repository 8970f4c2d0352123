package cart

import (
	"fmt"
	"strings"
)

type PaymentMethod string

const (
	CashOnDelivery PaymentMethod = "cod"
	MomoQR         PaymentMethod = "momo"
	BankQR         PaymentMethod = "bank"
)

// PaymentMethods lists the selectable methods in display order.
var PaymentMethods = []PaymentMethod{CashOnDelivery, MomoQR, BankQR}

func ParsePaymentMethod(s string) (PaymentMethod, error) {
	m := PaymentMethod(strings.ToLower(strings.TrimSpace(s)))
	if !m.Valid() {
		return "", fmt.Errorf("%w: %q", ErrInvalidPaymentMethod, s)
	}
	return m, nil
}

func (m PaymentMethod) Valid() bool {
	switch m {
	case CashOnDelivery, MomoQR, BankQR:
		return true
	}
	return false
}

// IsQR reports whether the method is settled through a scanned QR transfer.
func (m PaymentMethod) IsQR() bool { return m == MomoQR || m == BankQR }

func (m PaymentMethod) Label() string {
	switch m {
	case CashOnDelivery:
		return "Thanh toán khi nhận hàng"
	case MomoQR:
		return "QR Code MOMO"
	case BankQR:
		return "QR Code NH"
	default:
		return string(m)
	}
}

func (m PaymentMethod) String() string { return string(m) }
