package promotion

import (
	"context"
	"strconv"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/shopspring/decimal"
)

var (
	// ErrRuleNotFound is returned when no rule matches the given id.
	ErrRuleNotFound = errors.New("promotion rule not found")
	// ErrRuleInactive is returned when applying a rule that is switched off.
	ErrRuleInactive = errors.New("promotion rule is not active")
	// ErrNoTarget is returned when a rule's conditions carry no targeting
	// field at all. Applying such a rule would reprice the entire catalog.
	ErrNoTarget = errors.New("promotion rule has no targeting condition")
	// ErrNoDiscount is returned when a rule's actions yield no positive
	// discount percentage.
	ErrNoDiscount = errors.New("promotion rule has no discount percentage")
)

// Rule is an admin-defined bulk discount over a catalog segment. Conditions
// and Actions are stored as JSON documents; older rules use legacy key names,
// so both are parsed leniently.
type Rule struct {
	ID         int64
	Name       string
	Priority   int
	Conditions []byte
	Actions    []byte
	StartDate  *time.Time
	EndDate    *time.Time
	IsActive   bool
}

// Repository provides lookup of promotion rules.
type Repository interface {
	// FindByID returns the rule or ErrRuleNotFound.
	FindByID(ctx context.Context, id int64) (*Rule, error)
}

// Conditions is the parsed targeting condition set of a rule. Every field is
// optional, but at least one must be present for the rule to be applicable.
type Conditions struct {
	CategoryID   *int64
	ProductID    *int64
	Reference    *string
	IsBestSeller *bool
	IsNew        *bool
}

// HasTarget reports whether at least one targeting field is set.
func (c Conditions) HasTarget() bool {
	return c.CategoryID != nil || c.ProductID != nil || c.Reference != nil ||
		c.IsBestSeller != nil || c.IsNew != nil
}

// ParseConditions decodes a rule's stored conditions document. Unknown keys
// are skipped; malformed JSON is a fault, not a business rejection.
func ParseConditions(raw []byte) (Conditions, error) {
	var c Conditions
	if len(raw) == 0 {
		return c, nil
	}

	d := jx.DecodeBytes(raw)
	err := d.ObjBytes(func(d *jx.Decoder, key []byte) error {
		switch string(key) {
		case "categoryId", "category_id":
			v, err := decodeOptionalInt(d)
			if err != nil {
				return errors.Wrap(err, "categoryId")
			}
			c.CategoryID = v
		case "productId", "product_id":
			v, err := decodeOptionalInt(d)
			if err != nil {
				return errors.Wrap(err, "productId")
			}
			c.ProductID = v
		case "reference":
			v, err := decodeOptionalString(d)
			if err != nil {
				return errors.Wrap(err, "reference")
			}
			c.Reference = v
		case "isBestSeller", "is_best_seller":
			v, err := decodeOptionalBool(d)
			if err != nil {
				return errors.Wrap(err, "isBestSeller")
			}
			c.IsBestSeller = v
		case "isNew", "is_new":
			v, err := decodeOptionalBool(d)
			if err != nil {
				return errors.Wrap(err, "isNew")
			}
			c.IsNew = v
		default:
			return d.Skip()
		}
		return nil
	})
	if err != nil {
		return Conditions{}, errors.Wrap(err, "parse conditions")
	}
	return c, nil
}

// actionKeys are the accepted spellings for the discount percentage, oldest
// last. The first key carrying a positive value wins.
var actionKeys = []string{"percentage", "discountPercentage", "discount", "value"}

// ParsePercentage extracts the discount percentage from a rule's stored
// actions document. Returns ErrNoDiscount when no accepted key holds a
// positive value.
func ParsePercentage(raw []byte) (decimal.Decimal, error) {
	if len(raw) == 0 {
		return decimal.Zero, ErrNoDiscount
	}

	found := make(map[string]decimal.Decimal, 1)
	d := jx.DecodeBytes(raw)
	err := d.ObjBytes(func(d *jx.Decoder, key []byte) error {
		for _, k := range actionKeys {
			if string(key) == k {
				v, err := decodeNumber(d)
				if err != nil {
					return errors.Wrapf(err, "action %q", k)
				}
				if v != nil {
					found[k] = *v
				}
				return nil
			}
		}
		return d.Skip()
	})
	if err != nil {
		return decimal.Zero, errors.Wrap(err, "parse actions")
	}

	for _, k := range actionKeys {
		if v, ok := found[k]; ok && v.IsPositive() {
			return v, nil
		}
	}
	return decimal.Zero, ErrNoDiscount
}

func decodeOptionalInt(d *jx.Decoder) (*int64, error) {
	switch d.Next() {
	case jx.Null:
		return nil, d.Null()
	case jx.String:
		s, err := d.Str()
		if err != nil {
			return nil, err
		}
		if s == "" {
			return nil, nil
		}
		v, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			return nil, err
		}
		return &v, nil
	default:
		v, err := d.Int64()
		if err != nil {
			return nil, err
		}
		return &v, nil
	}
}

func decodeOptionalString(d *jx.Decoder) (*string, error) {
	if d.Next() == jx.Null {
		return nil, d.Null()
	}
	s, err := d.Str()
	if err != nil {
		return nil, err
	}
	if s == "" {
		return nil, nil
	}
	return &s, nil
}

func decodeOptionalBool(d *jx.Decoder) (*bool, error) {
	if d.Next() == jx.Null {
		return nil, d.Null()
	}
	b, err := d.Bool()
	if err != nil {
		return nil, err
	}
	return &b, nil
}

func decodeNumber(d *jx.Decoder) (*decimal.Decimal, error) {
	switch d.Next() {
	case jx.Null:
		return nil, d.Null()
	case jx.String:
		s, err := d.Str()
		if err != nil {
			return nil, err
		}
		if s == "" {
			return nil, nil
		}
		v, err := decimal.NewFromString(s)
		if err != nil {
			return nil, err
		}
		return &v, nil
	default:
		n, err := d.Num()
		if err != nil {
			return nil, err
		}
		v, err := decimal.NewFromString(n.String())
		if err != nil {
			return nil, err
		}
		return &v, nil
	}
}
