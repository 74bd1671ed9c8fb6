package enums

type CouponType string

const (
	CouponTypePercent      CouponType = "percent"
	CouponTypeFixed        CouponType = "fixed"
	CouponTypeFreeShipping CouponType = "free_shipping"
)

var validCouponTypes = []CouponType{CouponTypePercent, CouponTypeFixed, CouponTypeFreeShipping}

func (c CouponType) String() string { return string(c) }

func (c CouponType) IsValid() bool { return isOneOf(validCouponTypes, c) }

func ParseCouponType(value string) (CouponType, error) {
	return parseOneOf(validCouponTypes, value, "coupon type")
}
