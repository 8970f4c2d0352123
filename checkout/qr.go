package checkout

import (
	"fmt"
	"net/url"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"github.com/susutoys/storefront/cart"
)

const vietQRBase = "https://img.vietqr.io/image/"

// Account is the receiving account encoded in a VietQR image.
type Account struct {
	BankID      string
	AccountNo   string
	AccountName string
}

// QRPayment is what the payment overlay shows for a QR attempt.
type QRPayment struct {
	Method      cart.PaymentMethod
	Account     Account
	Template    string
	Amount      int64
	Note        string
	ShippingFee int64
	Discount    int64
	Total       int64
	ImageURL    string
}

// VietQRImageURL builds the img.vietqr.io quick link for a transfer.
func VietQRImageURL(acct Account, template string, amount int64, note string) string {
	q := url.Values{}
	q.Set("amount", fmt.Sprint(amount))
	q.Set("addInfo", note)
	q.Set("accountName", acct.AccountName)
	return fmt.Sprintf("%s%s-%s-%s.png?%s", vietQRBase,
		url.PathEscape(acct.BankID), url.PathEscape(acct.AccountNo), url.PathEscape(template), q.Encode())
}

// ASCIIFold strips Vietnamese diacritics so banking apps accept the
// transfer note: "Thanh toán đơn hàng" becomes "Thanh toan don hang".
func ASCIIFold(s string) string {
	t := transform.Chain(
		runes.Map(func(r rune) rune {
			switch r {
			case 'đ':
				return 'd'
			case 'Đ':
				return 'D'
			}
			return r
		}),
		norm.NFD,
		runes.Remove(runes.In(unicode.Mn)),
		norm.NFC,
	)
	out, _, err := transform.String(t, s)
	if err != nil {
		return s
	}
	return out
}
