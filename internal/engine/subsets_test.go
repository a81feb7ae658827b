package engine

import (
	"reflect"
	"testing"
)

func TestEnumerateSubsetsOrder(t *testing.T) {
	got := enumerateSubsets(3)
	want := [][]int{
		{},
		{0}, {1}, {2},
		{0, 1}, {0, 2}, {1, 2},
		{0, 1, 2},
	}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("enumerateSubsets(3) = %v, want %v", got, want)
	}
}

func TestEnumerateSubsetsCount(t *testing.T) {
	for n := 0; n <= 8; n++ {
		if got := len(enumerateSubsets(n)); got != 1<<uint(n) {
			t.Errorf("enumerateSubsets(%d) yields %d subsets, want %d", n, got, 1<<uint(n))
		}
	}
}
