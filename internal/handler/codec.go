package handler

import (
	"io"
	"net/http"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/shopspring/decimal"

	"github.com/xenking/vconn/internal/domain/contract"
	"github.com/xenking/vconn/internal/domain/delivery"
	"github.com/xenking/vconn/internal/domain/order"
)

const (
	dateLayout   = "2006-01-02"
	maxBodyBytes = 1 << 16
)

var errBadBody = errors.New("invalid request body")

// writeJSON encodes a single value produced by fn.
func writeJSON(w http.ResponseWriter, status int, fn func(e *jx.Encoder)) {
	e := jx.GetEncoder()
	defer jx.PutEncoder(e)
	fn(e)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(e.Bytes())
}

// decodeBody reads a JSON object from r, calling fn for every field.
func decodeBody(r *http.Request, fn func(d *jx.Decoder, key string) error) error {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		return errors.Wrap(errBadBody, err.Error())
	}
	d := jx.DecodeBytes(body)
	if err := d.ObjBytes(func(d *jx.Decoder, key []byte) error {
		return fn(d, string(key))
	}); err != nil {
		return errors.Wrap(errBadBody, err.Error())
	}
	return nil
}

// decodeDecimal accepts both JSON numbers and numeric strings.
func decodeDecimal(d *jx.Decoder) (decimal.Decimal, error) {
	switch d.Next() {
	case jx.String:
		s, err := d.Str()
		if err != nil {
			return decimal.Decimal{}, err
		}
		return decimal.NewFromString(s)
	case jx.Number:
		n, err := d.Num()
		if err != nil {
			return decimal.Decimal{}, err
		}
		return decimal.NewFromString(n.String())
	default:
		return decimal.Decimal{}, errors.Errorf("unexpected %s for decimal", d.Next())
	}
}

func encodeMoney(e *jx.Encoder, d decimal.Decimal) {
	e.Num(jx.Num(d.StringFixed(2)))
}

func encodeTime(e *jx.Encoder, t time.Time) {
	e.Str(t.UTC().Format(time.RFC3339))
}

func strField(e *jx.Encoder, name, v string) {
	if v == "" {
		return
	}
	e.FieldStart(name)
	e.Str(v)
}

func encodeContract(e *jx.Encoder, c *contract.Contract) {
	e.Obj(func(e *jx.Encoder) {
		e.FieldStart("id")
		e.Str(c.ID)
		e.FieldStart("wholesalerId")
		e.Str(c.WholesalerID)
		e.FieldStart("productName")
		e.Str(c.ProductName)
		e.FieldStart("dailyQuantity")
		e.Int(c.DailyQuantity)
		e.FieldStart("pricePerUnit")
		encodeMoney(e, c.PricePerUnit)
		e.FieldStart("durationDays")
		e.Int(c.DurationDays)
		e.FieldStart("description")
		e.Str(c.Description)
		e.FieldStart("status")
		e.Str(string(c.Status))
		e.FieldStart("endDate")
		encodeTime(e, c.EndDate)
		e.FieldStart("createdAt")
		encodeTime(e, c.CreatedAt)
		e.FieldStart("updatedAt")
		encodeTime(e, c.UpdatedAt)

		strField(e, "wholesalerName", c.WholesalerName)
		strField(e, "businessName", c.BusinessName)
		if c.AcceptedAt != nil {
			e.FieldStart("acceptedAt")
			encodeTime(e, *c.AcceptedAt)
		}
		e.FieldStart("acceptedVendors")
		e.Int(c.AcceptedVendors)
		e.FieldStart("totalOrders")
		e.Int(c.TotalOrders)
	})
}

func encodeContracts(e *jx.Encoder, cs []contract.Contract) {
	e.Arr(func(e *jx.Encoder) {
		for i := range cs {
			encodeContract(e, &cs[i])
		}
	})
}

func encodeOrder(e *jx.Encoder, o *order.Order) {
	e.Obj(func(e *jx.Encoder) {
		e.FieldStart("id")
		e.Str(o.ID)
		e.FieldStart("vendorId")
		e.Str(o.VendorID)
		e.FieldStart("contractId")
		e.Str(o.ContractID)
		e.FieldStart("quantity")
		e.Int(o.Quantity)
		e.FieldStart("totalAmount")
		encodeMoney(e, o.TotalAmount)
		e.FieldStart("status")
		e.Str(string(o.Status))
		e.FieldStart("deliveryDate")
		e.Str(o.DeliveryDate.Format(dateLayout))
		e.FieldStart("createdAt")
		encodeTime(e, o.CreatedAt)
		e.FieldStart("updatedAt")
		encodeTime(e, o.UpdatedAt)
		if o.DeliveredAt != nil {
			e.FieldStart("deliveredAt")
			encodeTime(e, *o.DeliveredAt)
		}

		strField(e, "wholesalerId", o.WholesalerID)
		strField(e, "wholesalerName", o.WholesalerName)
		strField(e, "productName", o.ProductName)
		if !o.PricePerUnit.IsZero() {
			e.FieldStart("pricePerUnit")
			encodeMoney(e, o.PricePerUnit)
		}
		strField(e, "vendorName", o.VendorName)
		strField(e, "vendorBusiness", o.VendorBusiness)
		strField(e, "vendorAddress", o.VendorAddress)
		strField(e, "vendorPhone", o.VendorPhone)
	})
}

func encodeOrders(e *jx.Encoder, list []order.Order) {
	e.Arr(func(e *jx.Encoder) {
		for i := range list {
			encodeOrder(e, &list[i])
		}
	})
}

func encodeEligibility(e *jx.Encoder, el order.Eligibility) {
	e.Obj(func(e *jx.Encoder) {
		e.FieldStart("allowed")
		e.Bool(el.Allowed)
		e.FieldStart("reason")
		e.Str(string(el.Reason))
		e.FieldStart("remaining")
		e.Int(el.Remaining)
	})
}

func encodeWholesalerStats(e *jx.Encoder, s *delivery.WholesalerStats) {
	e.Obj(func(e *jx.Encoder) {
		e.FieldStart("activeContracts")
		e.Int(s.ActiveContracts)
		e.FieldStart("todayDeliveries")
		e.Int(s.TodayDeliveries)
		e.FieldStart("todayEarnings")
		encodeMoney(e, s.TodayEarnings)
		e.FieldStart("totalEarnings")
		encodeMoney(e, s.TotalEarnings)
	})
}

func encodeVendorStats(e *jx.Encoder, s *delivery.VendorStats) {
	e.Obj(func(e *jx.Encoder) {
		e.FieldStart("acceptedContracts")
		e.Int(s.AcceptedContracts)
		e.FieldStart("activeOrders")
		e.Int(s.ActiveOrders)
		e.FieldStart("totalOrders")
		e.Int(s.TotalOrders)
		e.FieldStart("freeAttemptsLeft")
		e.Int(s.FreeAttemptsLeft)
		e.FieldStart("cancellationsLeft")
		e.Int(s.CancellationsLeft)
	})
}

// decodeFields reads a contract creation body.
func decodeFields(r *http.Request) (contract.Fields, error) {
	var f contract.Fields
	err := decodeBody(r, func(d *jx.Decoder, key string) error {
		var err error
		switch key {
		case "productName":
			f.ProductName, err = d.Str()
		case "dailyQuantity":
			f.DailyQuantity, err = d.Int()
		case "pricePerUnit":
			f.PricePerUnit, err = decodeDecimal(d)
		case "durationDays":
			f.DurationDays, err = d.Int()
		case "description":
			f.Description, err = d.Str()
		default:
			err = d.Skip()
		}
		return err
	})
	return f, err
}

// decodeUpdate reads a partial contract update. Absent and null fields stay
// unchanged.
func decodeUpdate(r *http.Request) (contract.Update, error) {
	var u contract.Update
	err := decodeBody(r, func(d *jx.Decoder, key string) error {
		if d.Next() == jx.Null {
			return d.Null()
		}
		switch key {
		case "productName":
			v, err := d.Str()
			u.ProductName = &v
			return err
		case "dailyQuantity":
			v, err := d.Int()
			u.DailyQuantity = &v
			return err
		case "pricePerUnit":
			v, err := decodeDecimal(d)
			u.PricePerUnit = &v
			return err
		case "description":
			v, err := d.Str()
			u.Description = &v
			return err
		default:
			return d.Skip()
		}
	})
	return u, err
}

type placeOrderRequest struct {
	ContractID string
	Quantity   int
}

func decodePlaceOrder(r *http.Request) (placeOrderRequest, error) {
	var req placeOrderRequest
	err := decodeBody(r, func(d *jx.Decoder, key string) error {
		var err error
		switch key {
		case "contractId":
			req.ContractID, err = d.Str()
		case "quantity":
			req.Quantity, err = d.Int()
		default:
			err = d.Skip()
		}
		return err
	})
	if err == nil && req.ContractID == "" {
		err = errors.Wrap(errBadBody, "contractId is required")
	}
	return req, err
}
