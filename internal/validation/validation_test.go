package validation

import (
	"errors"
	"strings"
	"testing"

	"github.com/brianvoe/gofakeit/v6"
)

func TestCleanCNPJ(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want string
	}{
		{"punctuated", "11.222.333/0001-81", "11222333000181"},
		{"bare 14 digits", "11222333000181", "11222333000181"},
		{"surrounding text", "CNPJ: 11.222.333/0001-81 (matriz)", "11222333000181"},
		{"13 digits padded", "8708002000170", "08708002000170"},
		{"12 digits padded", "708002000170", "00708002000170"},
		{"11 digits untouched", "12345678901", "12345678901"},
		{"15 digits untouched", "112223330001811", "112223330001811"},
		{"empty", "", ""},
		{"no digits", "n/a", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := CleanCNPJ(tt.raw); got != tt.want {
				t.Errorf("CleanCNPJ(%q) = %q, want %q", tt.raw, got, tt.want)
			}
		})
	}
}

func TestCleanCNPJPadsShortRuns(t *testing.T) {
	faker := gofakeit.New(42)
	for i := 0; i < 200; i++ {
		for _, n := range []int{12, 13} {
			raw := faker.Numerify(strings.Repeat("#", n))
			got := CleanCNPJ(raw)
			if len(got) != CNPJLength {
				t.Fatalf("CleanCNPJ(%q) = %q, want 14 digits", raw, got)
			}
			if !strings.HasSuffix(got, raw) || strings.Trim(got[:CNPJLength-n], "0") != "" {
				t.Fatalf("CleanCNPJ(%q) = %q, want zero left-padding", raw, got)
			}
		}
	}
}

func TestFormatCNPJ(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want string
	}{
		{"bare digits", "11222333000181", "11.222.333/0001-81"},
		{"already formatted", "11.222.333/0001-81", "11.222.333/0001-81"},
		{"short stays digits", "1122233300", "1122233300"},
		{"mixed garbage", "a1b2", "12"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := FormatCNPJ(tt.raw); got != tt.want {
				t.Errorf("FormatCNPJ(%q) = %q, want %q", tt.raw, got, tt.want)
			}
		})
	}
}

func TestFormatCNPJIdempotent(t *testing.T) {
	faker := gofakeit.New(7)
	for i := 0; i < 500; i++ {
		raw := faker.Numerify("##############")
		once := FormatCNPJ(raw)
		if twice := FormatCNPJ(once); twice != once {
			t.Fatalf("FormatCNPJ not idempotent for %q: %q then %q", raw, once, twice)
		}
	}
}

func TestRequireCNPJ(t *testing.T) {
	got, err := RequireCNPJ("08.708.002/0001-70")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "08708002000170" {
		t.Errorf("RequireCNPJ = %q", got)
	}

	_, err = RequireCNPJ("8708002000170")
	var vErr *ValidationError
	if !errors.As(err, &vErr) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
	if vErr.Field != "cnpj" {
		t.Errorf("Field = %q, want cnpj", vErr.Field)
	}
}

func TestFormatTag(t *testing.T) {
	tests := []struct {
		name   string
		raw    string
		want   string
		wantOK bool
	}{
		{"canonical", "870.800/2017", "870.800/2017", true},
		{"canonical padded", "  870.800/2017 ", "870.800/2017", true},
		{"ten digits", "8708002017", "870.800/2017", true},
		{"ten digits with noise", "870-800-2017", "870.800/2017", true},
		{"free text", " case 12 ", "case 12", true},
		{"blank", "   ", "", false},
		{"empty", "", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := FormatTag(tt.raw)
			if got != tt.want || ok != tt.wantOK {
				t.Errorf("FormatTag(%q) = (%q, %v), want (%q, %v)", tt.raw, got, ok, tt.want, tt.wantOK)
			}
		})
	}
}

func TestValidateURL(t *testing.T) {
	tests := []struct {
		name    string
		url     string
		valid   bool
		wantMsg string
	}{
		{"valid https", "https://api.cnpja.com", true, ""},
		{"valid http with port", "http://localhost:8080", true, ""},
		{"empty string", "", false, "URL is required"},
		{"ftp scheme", "ftp://example.com", false, "URL must use http:// or https:// scheme"},
		{"no scheme", "api.cnpja.com", false, "URL must use http:// or https:// scheme"},
		{"uppercase scheme", "HTTPS://api.cnpja.com", true, ""},
		{"scheme only", "https://", false, "URL must have a valid host"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			valid, msg := ValidateURL(tt.url)
			if valid != tt.valid {
				t.Errorf("ValidateURL(%q) valid = %v, want %v", tt.url, valid, tt.valid)
			}
			if !valid && msg != tt.wantMsg {
				t.Errorf("ValidateURL(%q) msg = %q, want %q", tt.url, msg, tt.wantMsg)
			}
		})
	}
}
