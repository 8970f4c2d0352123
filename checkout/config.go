package checkout

import (
	"time"

	"github.com/susutoys/storefront/cart"
)

type Config struct {
	// Countdown is the number of ticks a QR attempt waits before it is
	// treated as paid.
	Countdown     int
	TickInterval  time.Duration
	RedirectDelay time.Duration
	// Home is where the visitor is sent after a completed checkout.
	Home         string
	QRTemplate   string
	TransferNote string
	Accounts     map[cart.PaymentMethod]Account
}

func DefaultConfig() Config {
	return Config{
		Countdown:     10,
		TickInterval:  time.Second,
		RedirectDelay: 1500 * time.Millisecond,
		Home:          "index.html",
		QRTemplate:    "compact",
		TransferNote:  "Thanh toan don hang SuSu Toys",
		Accounts: map[cart.PaymentMethod]Account{
			cart.MomoQR: {BankID: "970422", AccountNo: "999999999", AccountName: "MOMO DEMO"},
			cart.BankQR: {BankID: "970436", AccountNo: "123456789", AccountName: "NGUYEN VAN A"},
		},
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.Countdown <= 0 {
		c.Countdown = d.Countdown
	}
	if c.TickInterval <= 0 {
		c.TickInterval = d.TickInterval
	}
	if c.RedirectDelay < 0 {
		c.RedirectDelay = d.RedirectDelay
	}
	if c.Home == "" {
		c.Home = d.Home
	}
	if c.QRTemplate == "" {
		c.QRTemplate = d.QRTemplate
	}
	if c.TransferNote == "" {
		c.TransferNote = d.TransferNote
	}
	if c.Accounts == nil {
		c.Accounts = d.Accounts
	}
	return c
}
