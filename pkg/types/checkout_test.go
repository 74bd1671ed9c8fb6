package types

import (
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

func TestMinorUnits(t *testing.T) {
	cases := map[string]int64{
		"90":     9000,
		"90.00":  9000,
		"79.99":  7999,
		"4.90":   490,
		"0.005":  1,
		"12.344": 1234,
	}
	for in, want := range cases {
		if got := MinorUnits(decimal.RequireFromString(in)); got != want {
			t.Fatalf("MinorUnits(%s) = %d, want %d", in, got, want)
		}
	}
	if got := FromMinorUnits(9000); !got.Equal(decimal.RequireFromString("90")) {
		t.Fatalf("FromMinorUnits(9000) = %s", got)
	}
}

func TestSessionItemsScanValue(t *testing.T) {
	items := SessionItems{{
		ProductID: uuid.New(),
		VariantID: uuid.New(),
		Name:      "Tee",
		Size:      "M",
		Quantity:  2,
		UnitPrice: decimal.RequireFromString("25.00"),
	}}
	raw, err := items.Value()
	if err != nil {
		t.Fatalf("value: %v", err)
	}

	var decoded SessionItems
	if err := decoded.Scan(raw); err != nil {
		t.Fatalf("scan: %v", err)
	}
	if len(decoded) != 1 || decoded[0].Quantity != 2 || !decoded[0].UnitPrice.Equal(items[0].UnitPrice) {
		t.Fatalf("unexpected decoded items %+v", decoded)
	}
	if got := decoded[0].LineTotal(); !got.Equal(decimal.RequireFromString("50")) {
		t.Fatalf("unexpected line total %s", got)
	}
	if decoded.Quantity() != 2 {
		t.Fatalf("unexpected quantity %d", decoded.Quantity())
	}
}

func TestSessionItemsScanRejectsUnsupported(t *testing.T) {
	var decoded SessionItems
	if err := decoded.Scan(42); err == nil {
		t.Fatal("expected unsupported scan type error")
	}
}

func TestShippingInfoScanAcceptsDriverTypes(t *testing.T) {
	payload := `{"full_name":"Ana Ruiz","email":"ana@example.com","address_line1":"Calle 1","city":"Madrid","postal_code":"28001","country":"ES"}`
	for name, value := range map[string]any{"string": payload, "bytes": []byte(payload)} {
		var info ShippingInfo
		if err := info.Scan(value); err != nil {
			t.Fatalf("%s: scan: %v", name, err)
		}
		if info.FullName != "Ana Ruiz" || info.Country != "ES" {
			t.Fatalf("%s: unexpected shipping info %+v", name, info)
		}
	}

	var info ShippingInfo
	if err := info.Scan(nil); err != nil || info != (ShippingInfo{}) {
		t.Fatalf("nil scan should reset, got %+v err=%v", info, err)
	}
}

func TestSessionItemsScanAcceptsString(t *testing.T) {
	var decoded SessionItems
	if err := decoded.Scan(`[{"size":"L","quantity":3,"unit_price":"9.50"}]`); err != nil {
		t.Fatalf("scan: %v", err)
	}
	if len(decoded) != 1 || decoded[0].Size != "L" || decoded.Quantity() != 3 {
		t.Fatalf("unexpected decoded items %+v", decoded)
	}
}
