package process

import (
	"slices"
	"testing"
)

func TestMergeEnv(t *testing.T) {
	base := []string{"A=1", "B=2", "C=3"}

	got := mergeEnv(base, map[string]string{"B": "two", "D": "4"})
	want := []string{"A=1", "C=3", "B=two", "D=4"}
	if !slices.Equal(got, want) {
		t.Errorf("mergeEnv = %v, want %v", got, want)
	}

	if got := mergeEnv(base, nil); !slices.Equal(got, base) {
		t.Errorf("mergeEnv without overrides = %v, want %v", got, base)
	}
}
