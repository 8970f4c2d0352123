// Modelos del carrito: lo que se persiste y lo que ve la sesión.
package cart

// ShippingFee is the flat delivery fee added to every order, in VND.
const ShippingFee int64 = 50000

// Entry is one persisted cart record. Field names follow the storefront's
// susu_cart value so carts written by the product pages decode unchanged.
type Entry struct {
	ID       int64  `json:"id"`
	Name     string `json:"name"`
	Price    int64  `json:"price"`
	Quantity int    `json:"quantity"`
	Image    string `json:"image"`
}

// Line is a working cart line owned by a Session.
type Line struct {
	ProductID int64
	Name      string
	Image     string
	UnitPrice int64
	Quantity  int
}

func (l Line) Total() int64 { return l.UnitPrice * int64(l.Quantity) }

// LineView is the read-only form of a Line handed to renderers.
type LineView struct {
	Index     int    `json:"index"`
	ProductID int64  `json:"productId"`
	Name      string `json:"name"`
	Image     string `json:"image"`
	UnitPrice int64  `json:"unitPrice"`
	Quantity  int    `json:"quantity"`
	LineTotal int64  `json:"lineTotal"`
}

// Snapshot is derived from a Session on demand and never aliases it.
type Snapshot struct {
	Lines         []LineView    `json:"lines"`
	Subtotal      int64         `json:"subtotal"`
	ShippingFee   int64         `json:"shippingFee"`
	Discount      int64         `json:"discount"`
	Total         int64         `json:"total"`
	PaymentMethod PaymentMethod `json:"paymentMethod"`
}

func (s Snapshot) Empty() bool { return len(s.Lines) == 0 }
