package mouse

import "testing"

func TestParseLocation(t *testing.T) {
	t.Parallel()

	p, err := parseLocation([]byte("X=812\nY=430\nSCREEN=0\nWINDOW=6291462\n"))
	if err != nil {
		t.Fatalf("parseLocation: %v", err)
	}
	if p != (Point{X: 812, Y: 430}) {
		t.Errorf("point = %+v, want {812 430}", p)
	}

	if _, err := parseLocation([]byte("SCREEN=0\n")); err == nil {
		t.Error("expected error for output without coordinates")
	}
}
