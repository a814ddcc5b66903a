package doctype

import "testing"

func TestDateToISONumeric(t *testing.T) {
	got, err := DateToISO("2026-03-05")
	if err != nil {
		t.Fatalf("DateToISO: %v", err)
	}
	if got != "2026-03-05" {
		t.Errorf("got %q, want 2026-03-05", got)
	}
}

func TestDateToISOSlash(t *testing.T) {
	got, err := DateToISO("05/03/2026")
	if err != nil {
		t.Fatalf("DateToISO: %v", err)
	}
	if got != "2026-03-05" {
		t.Errorf("got %q, want 2026-03-05", got)
	}
}

func TestDateToISOSpanish(t *testing.T) {
	got, err := DateToISO("5 de marzo de 2026")
	if err != nil {
		t.Fatalf("DateToISO: %v", err)
	}
	if got != "2026-03-05" {
		t.Errorf("got %q, want 2026-03-05", got)
	}
}

func TestDateToISOPortuguese(t *testing.T) {
	got, err := DateToISO("5 de março de 2026")
	if err != nil {
		t.Fatalf("DateToISO: %v", err)
	}
	if got != "2026-03-05" {
		t.Errorf("got %q, want 2026-03-05", got)
	}
}

func TestDateToISOFrench(t *testing.T) {
	got, err := DateToISO("5 mars 2026")
	if err != nil {
		t.Fatalf("DateToISO: %v", err)
	}
	if got != "2026-03-05" {
		t.Errorf("got %q, want 2026-03-05", got)
	}
}

func TestDateToISOInvalid(t *testing.T) {
	if _, err := DateToISO("not a date"); err == nil {
		t.Fatal("expected error for unparseable date")
	}
}

func TestDateToISOInvalidCalendarDate(t *testing.T) {
	if _, err := DateToISO("31 de febrero de 2026"); err == nil {
		t.Fatal("expected error for February 31")
	}
}

func TestNormalizeUppercaseTrim(t *testing.T) {
	if got := Normalize("uppercase_trim", "  abc123  "); got != "ABC123" {
		t.Errorf("got %q, want ABC123", got)
	}
}

func TestNormalizeDigitsOnly(t *testing.T) {
	if got := Normalize("digits_only", "POL-1234-X"); got != "1234" {
		t.Errorf("got %q, want 1234", got)
	}
}

func TestCurrencyToDecimalUSStyle(t *testing.T) {
	if got := Normalize("currency_to_decimal", "$1,234.56"); got != "1234.56" {
		t.Errorf("got %q, want 1234.56", got)
	}
}

func TestCurrencyToDecimalEuroStyle(t *testing.T) {
	if got := Normalize("currency_to_decimal", "1.234,56 €"); got != "1234.56" {
		t.Errorf("got %q, want 1234.56", got)
	}
}

func TestNormalizeForMatchStripsTypographicHyphen(t *testing.T) {
	got := NormalizeForMatch("2024‑01‑01")
	if got != "2024-01-01" {
		t.Errorf("got %q, want 2024-01-01", got)
	}
}

func TestFoldAccents(t *testing.T) {
	if got := foldAccents("SECCIÓN"); got != "SECCION" {
		t.Errorf("got %q, want SECCION", got)
	}
}
