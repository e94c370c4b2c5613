package utils

import "testing"

func TestNormalizeAddress(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		in   string
		want string
	}{
		{"lowercase and punctuation", "21/100 South Sathorn Road, Bangkok", "21100 s sathorn rd bangkok"},
		{"thai street words", "Thanon Silom, Soi 4", "rd silom soi 4"},
		{"abbreviations already", "1055 Silom Rd", "1055 silom rd"},
		{"empty", "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := NormalizeAddress(tt.in); got != tt.want {
				t.Errorf("NormalizeAddress(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestCompareAddresses(t *testing.T) {
	t.Parallel()

	t.Run("same address different spelling", func(t *testing.T) {
		got := CompareAddresses("1055 Silom Road, Bangkok", "1055 Silom Rd, Bangkok")
		if got != 1.0 {
			t.Errorf("score = %f, want 1.0", got)
		}
	})

	t.Run("same street different number", func(t *testing.T) {
		got := CompareAddresses("10 Sukhumvit Rd, Bangkok", "99 Sukhumvit Rd, Bangkok")
		if got < 0.5 || got >= 1.0 {
			t.Errorf("score = %f, want partial credit for the shared street", got)
		}
	})

	t.Run("different streets", func(t *testing.T) {
		got := CompareAddresses("1055 Silom Rd", "1055 Khao San Rd")
		if got >= 0.8 {
			t.Errorf("score = %f, want the street mismatch to dominate", got)
		}
	})

	t.Run("matching postal code breaks ties", func(t *testing.T) {
		near := CompareAddresses("5 Charoen Krung Rd, Bangkok 10500", "5 Charoen Krung Rd, Bangkok 10500")
		far := CompareAddresses("5 Charoen Krung Rd, Bangkok 10500", "5 Charoen Krung Rd, Bangkok 10110")
		if near <= far {
			t.Errorf("same zip scored %f, different zip %f", near, far)
		}
	})

	t.Run("either side empty", func(t *testing.T) {
		if got := CompareAddresses("", "1055 Silom Rd"); got != 0 {
			t.Errorf("score = %f, want 0", got)
		}
	})
}
