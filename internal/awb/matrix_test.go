package awb

import "testing"

func TestColorMatrixApply(t *testing.T) {
	if got := IdentityMatrix().Apply(RGB(10, 20, 30)); got != RGB(10, 20, 30) {
		t.Fatalf("identity apply = %v", got)
	}
	if got := (ColorMatrix{}).Apply(RGB(10, 20, 30)); got != RGB(10, 20, 30) {
		t.Fatalf("zero matrix apply = %v", got)
	}

	m := NewColorMatrix([9]float64{
		1.5, -0.25, -0.25,
		0, 1, 0,
		-1, 0, 0,
	})
	if got := m.Apply(RGB(100, 40, 20)); got != RGB(135, 40, 0) {
		t.Fatalf("apply = %v", got)
	}
}

func TestColorMatrixValues(t *testing.T) {
	in := [9]float64{1, 2, 3, 4, 5, 6, 7, 8, 9}
	if got := NewColorMatrix(in).Values(); got != in {
		t.Fatalf("values = %v", got)
	}
	if got := (ColorMatrix{}).Values(); got != IdentityMatrix().Values() {
		t.Fatalf("zero values = %v", got)
	}
}
