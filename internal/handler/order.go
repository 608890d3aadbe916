package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-faster/jx"

	"github.com/xenking/pizza-delivery/internal/domain/order"
	"github.com/xenking/pizza-delivery/internal/domain/payment"
)

// PlaceOrder handles POST /api/orders/custom.
//
// Online checkouts answer 200 with the gateway order to pay; cash on
// delivery commits the order and answers 201.
func (h *Handler) PlaceOrder(w http.ResponseWriter, r *http.Request) {
	var sel order.Selection
	err := decode(r, func(d *jx.Decoder, key string) error {
		if key == "paymentMethod" {
			v, err := decodeString(d)
			sel.PaymentMethod = v
			return err
		}
		return decodeSelectionField(d, key, &sel)
	})
	if err != nil {
		writeError(w, r, err, "Failed to place order")
		return
	}

	res, err := h.orders.PlaceOrder(r.Context(), principal(r).UserID, sel)
	if err != nil {
		writeError(w, r, err, "Failed to place order")
		return
	}

	status := http.StatusOK
	if res.Order != nil {
		status = http.StatusCreated
	}
	writeJSON(w, r, status, func(e *jx.Encoder) {
		e.Obj(func(e *jx.Encoder) {
			e.Field("success", func(e *jx.Encoder) { e.Bool(true) })
			e.Field("razorpayOrder", func(e *jx.Encoder) {
				if res.Intent == nil {
					e.Null()
					return
				}
				encodeIntent(e, res.Intent)
			})
			e.Field("orderData", func(e *jx.Encoder) { encodeOrderData(e, res.Selection, res) })
			if res.Order != nil {
				e.Field("order", func(e *jx.Encoder) { encodeOrder(e, res.Order) })
			}
			e.Field("amount", func(e *jx.Encoder) { encodeDecimal(e, res.Amount) })
			e.Field("currency", func(e *jx.Encoder) { e.Str(res.Currency) })
		})
	})
}

// VerifyPayment handles POST /api/orders/verify.
func (h *Handler) VerifyPayment(w http.ResponseWriter, r *http.Request) {
	var req order.ConfirmPaymentRequest
	err := decode(r, func(d *jx.Decoder, key string) error {
		var err error
		switch key {
		case "razorpay_order_id":
			req.GatewayOrderID, err = decodeString(d)
		case "razorpay_payment_id":
			req.PaymentID, err = decodeString(d)
		case "razorpay_signature":
			req.Signature, err = decodeString(d)
		case "orderData":
			if d.Next() == jx.Null {
				return d.Null()
			}
			err = d.Obj(func(d *jx.Decoder, key string) error {
				return decodeSelectionField(d, key, &req.Selection)
			})
		default:
			err = d.Skip()
		}
		return err
	})
	if err != nil {
		writeError(w, r, err, "Payment verification failed")
		return
	}

	o, err := h.orders.ConfirmPayment(r.Context(), principal(r).UserID, req)
	if err != nil {
		writeError(w, r, err, "Payment verification failed")
		return
	}
	writeJSON(w, r, http.StatusOK, func(e *jx.Encoder) {
		e.Obj(func(e *jx.Encoder) {
			e.Field("success", func(e *jx.Encoder) { e.Bool(true) })
			e.Field("message", func(e *jx.Encoder) { e.Str("Payment verified & order placed") })
			e.Field("order", func(e *jx.Encoder) { encodeOrder(e, o) })
		})
	})
}

// MyOrders handles GET /api/orders/my.
func (h *Handler) MyOrders(w http.ResponseWriter, r *http.Request) {
	orders, err := h.orders.ListForUser(r.Context(), principal(r).UserID)
	if err != nil {
		writeError(w, r, err, "Failed to fetch orders")
		return
	}
	writeOrders(w, r, orders)
}

// AllOrders handles GET /api/orders.
func (h *Handler) AllOrders(w http.ResponseWriter, r *http.Request) {
	orders, err := h.orders.ListAll(r.Context())
	if err != nil {
		writeError(w, r, err, "Failed to fetch orders")
		return
	}
	writeOrders(w, r, orders)
}

// UpdateOrderStatus handles PATCH /api/orders/{id}/status.
func (h *Handler) UpdateOrderStatus(w http.ResponseWriter, r *http.Request) {
	var status string
	err := decode(r, func(d *jx.Decoder, key string) error {
		if key != "status" {
			return d.Skip()
		}
		// Non-string values are rejected by the status check below.
		if d.Next() != jx.String {
			return d.Skip()
		}
		v, err := d.Str()
		status = v
		return err
	})
	if err != nil {
		writeError(w, r, err, "Failed to update order status")
		return
	}

	o, err := h.orders.UpdateStatus(r.Context(), chi.URLParam(r, "id"), status)
	if err != nil {
		writeError(w, r, err, "Failed to update order status")
		return
	}
	writeJSON(w, r, http.StatusOK, func(e *jx.Encoder) {
		e.Obj(func(e *jx.Encoder) {
			e.Field("message", func(e *jx.Encoder) { e.Str("Order status updated") })
			e.Field("order", func(e *jx.Encoder) { encodeOrder(e, o) })
		})
	})
}

func writeOrders(w http.ResponseWriter, r *http.Request, orders []order.Order) {
	writeJSON(w, r, http.StatusOK, func(e *jx.Encoder) {
		e.ArrStart()
		for i := range orders {
			encodeOrder(e, &orders[i])
		}
		e.ArrEnd()
	})
}

// decodeSelectionField decodes one key of a custom pizza checkout body.
// Unknown keys, including the echoed calculatedPrice, are skipped: the
// total is always recomputed server-side.
func decodeSelectionField(d *jx.Decoder, key string, sel *order.Selection) error {
	var err error
	switch key {
	case "base":
		sel.Pizza.Base, err = decodeString(d)
	case "sauce":
		sel.Pizza.Sauce, err = decodeString(d)
	case "cheese":
		sel.Pizza.Cheese, err = decodeString(d)
	case "veggies":
		sel.Pizza.Veggies, err = decodeStrings(d)
	case "meat":
		sel.Pizza.Meat, err = decodeStrings(d)
	case "shippingAddress":
		sel.ShippingAddress, err = decodeAddress(d)
	default:
		err = d.Skip()
	}
	return err
}

// decodeAddress accepts the postal code as either "pincode" or "postalCode".
func decodeAddress(d *jx.Decoder) (order.Address, error) {
	var a order.Address
	if d.Next() == jx.Null {
		return a, d.Null()
	}
	err := d.Obj(func(d *jx.Decoder, key string) error {
		var err error
		switch key {
		case "street":
			a.Street, err = decodeString(d)
		case "city":
			a.City, err = decodeString(d)
		case "pincode", "postalCode":
			a.PostalCode, err = decodeString(d)
		case "country":
			a.Country, err = decodeString(d)
		default:
			err = d.Skip()
		}
		return err
	})
	return a, err
}

func encodeIntent(e *jx.Encoder, in *payment.Intent) {
	e.Obj(func(e *jx.Encoder) {
		e.Field("id", func(e *jx.Encoder) { e.Str(in.ID) })
		e.Field("amount", func(e *jx.Encoder) { e.Int64(in.Amount) })
		e.Field("currency", func(e *jx.Encoder) { e.Str(in.Currency) })
		e.Field("receipt", func(e *jx.Encoder) { e.Str(in.Receipt) })
		e.Field("status", func(e *jx.Encoder) { e.Str(in.Status) })
	})
}

// encodeOrderData echoes the checkout with its server-computed price so the
// client can send it back on verification.
func encodeOrderData(e *jx.Encoder, sel order.Selection, res *order.PlaceOrderResult) {
	e.Obj(func(e *jx.Encoder) {
		encodeCustomPizzaFields(e, sel.Pizza)
		e.Field("shippingAddress", func(e *jx.Encoder) { encodeAddress(e, sel.ShippingAddress) })
		e.Field("calculatedPrice", func(e *jx.Encoder) { encodeDecimal(e, res.Amount) })
	})
}

func encodeCustomPizzaFields(e *jx.Encoder, p order.CustomPizza) {
	e.Field("base", func(e *jx.Encoder) { e.Str(p.Base) })
	e.Field("sauce", func(e *jx.Encoder) { e.Str(p.Sauce) })
	e.Field("cheese", func(e *jx.Encoder) { e.Str(p.Cheese) })
	e.Field("veggies", func(e *jx.Encoder) { encodeStrings(e, p.Veggies) })
	e.Field("meat", func(e *jx.Encoder) { encodeStrings(e, p.Meat) })
}

func encodeAddress(e *jx.Encoder, a order.Address) {
	e.Obj(func(e *jx.Encoder) {
		e.Field("street", func(e *jx.Encoder) { e.Str(a.Street) })
		e.Field("city", func(e *jx.Encoder) { e.Str(a.City) })
		e.Field("pincode", func(e *jx.Encoder) { e.Str(a.PostalCode) })
		e.Field("country", func(e *jx.Encoder) { e.Str(a.Country) })
	})
}

// encodeOrder writes an order. Admin listings carry the joined customer in
// "user"; otherwise "user" is the owning user id.
func encodeOrder(e *jx.Encoder, o *order.Order) {
	e.Obj(func(e *jx.Encoder) {
		e.Field("id", func(e *jx.Encoder) { e.Str(o.ID) })
		e.Field("user", func(e *jx.Encoder) {
			if o.Customer == nil {
				e.Str(o.UserID)
				return
			}
			e.Obj(func(e *jx.Encoder) {
				e.Field("id", func(e *jx.Encoder) { e.Str(o.UserID) })
				e.Field("name", func(e *jx.Encoder) { e.Str(o.Customer.Name) })
				e.Field("email", func(e *jx.Encoder) { e.Str(o.Customer.Email) })
			})
		})
		e.Field("orderItems", func(e *jx.Encoder) {
			e.ArrStart()
			for _, item := range o.Items {
				encodeLineItem(e, item)
			}
			e.ArrEnd()
		})
		e.Field("shippingAddress", func(e *jx.Encoder) { encodeAddress(e, o.ShippingAddress) })
		e.Field("paymentMethod", func(e *jx.Encoder) { e.Str(string(o.PaymentMethod)) })
		e.Field("paymentStatus", func(e *jx.Encoder) { e.Str(string(o.PaymentStatus)) })
		if o.GatewayOrderID != "" {
			e.Field("razorpayOrderId", func(e *jx.Encoder) { e.Str(o.GatewayOrderID) })
		}
		if o.PaymentID != "" {
			e.Field("paymentId", func(e *jx.Encoder) { e.Str(o.PaymentID) })
		}
		e.Field("totalAmount", func(e *jx.Encoder) { encodeDecimal(e, o.Total) })
		e.Field("orderStatus", func(e *jx.Encoder) { e.Str(string(o.Status)) })
		e.Field("createdAt", func(e *jx.Encoder) { encodeTime(e, o.CreatedAt) })
		e.Field("updatedAt", func(e *jx.Encoder) { encodeTime(e, o.UpdatedAt) })
	})
}

func encodeLineItem(e *jx.Encoder, item order.LineItem) {
	e.Obj(func(e *jx.Encoder) {
		if item.PizzaID != "" {
			e.Field("pizza", func(e *jx.Encoder) { e.Str(item.PizzaID) })
		}
		if item.Custom != nil {
			e.Field("customPizza", func(e *jx.Encoder) {
				e.Obj(func(e *jx.Encoder) { encodeCustomPizzaFields(e, *item.Custom) })
			})
		}
		e.Field("name", func(e *jx.Encoder) { e.Str(item.Name) })
		if item.Variant != "" {
			e.Field("variant", func(e *jx.Encoder) { e.Str(item.Variant) })
		}
		e.Field("quantity", func(e *jx.Encoder) { e.Int(item.Quantity) })
		e.Field("price", func(e *jx.Encoder) { encodeDecimal(e, item.Price) })
	})
}
