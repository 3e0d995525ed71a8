package procgroup

import "testing"

func TestParsePriorityClass(t *testing.T) {
	tests := []struct {
		input   string
		want    PriorityClass
		wantErr bool
	}{
		{"idle", PriorityIdle, false},
		{"below_normal", PriorityBelowNormal, false},
		{"below-normal", PriorityBelowNormal, false},
		{"BelowNormal", PriorityBelowNormal, false},
		{"normal", PriorityNormal, false},
		{"AboveNormal", PriorityAboveNormal, false},
		{"HIGH", PriorityHigh, false},
		{"realtime", PriorityRealtime, false},
		{"", 0, true},
		{"turbo", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParsePriorityClass(tt.input)
			if tt.wantErr {
				if err == nil {
					t.Errorf("ParsePriorityClass(%q) = %v, want error", tt.input, got)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParsePriorityClass(%q) failed: %v", tt.input, err)
			}
			if got != tt.want {
				t.Errorf("ParsePriorityClass(%q) = %v, want %v", tt.input, got, tt.want)
			}
		})
	}
}

func TestPriorityClassText(t *testing.T) {
	text, err := PriorityAboveNormal.MarshalText()
	if err != nil {
		t.Fatalf("MarshalText failed: %v", err)
	}
	if string(text) != "above_normal" {
		t.Errorf("MarshalText = %q, want %q", text, "above_normal")
	}

	var pc PriorityClass
	if err := pc.UnmarshalText(text); err != nil {
		t.Fatalf("UnmarshalText failed: %v", err)
	}
	if pc != PriorityAboveNormal {
		t.Errorf("UnmarshalText = %v, want %v", pc, PriorityAboveNormal)
	}

	if _, err := PriorityClass(99).MarshalText(); err == nil {
		t.Error("expected error marshalling an invalid class")
	}
}

func TestNiceValuesAreOrdered(t *testing.T) {
	classes := []PriorityClass{PriorityIdle, PriorityBelowNormal, PriorityNormal, PriorityAboveNormal, PriorityHigh, PriorityRealtime}
	for i := 1; i < len(classes); i++ {
		if classes[i].niceValue() >= classes[i-1].niceValue() {
			t.Errorf("%v nice %d should be below %v nice %d",
				classes[i], classes[i].niceValue(), classes[i-1], classes[i-1].niceValue())
		}
	}
	if PriorityNormal.niceValue() != 0 {
		t.Errorf("normal nice = %d, want 0", PriorityNormal.niceValue())
	}
}
