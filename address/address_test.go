package address

import "testing"

func TestIsAddress(t *testing.T) {
	var cases = []struct {
		in   GlobalAddress
		want bool
	}{
		{0, true},
		{42, true},
		{NeverRead, false},
		{NotFound, false},
		{NonExist, false},
		{NonAddress, false},
	}
	for _, c := range cases {
		if got := IsAddress(c.in); got != c.want {
			t.Errorf("IsAddress(%s) = %v, want %v", c.in, got, c.want)
		}
	}
}

func TestMaxMin(t *testing.T) {
	if Max(3, 5) != 5 {
		t.Fatal("Max wrong")
	}
	if Max(NeverRead, 0) != 0 {
		t.Fatal("Max with sentinel wrong")
	}
	if Min(3, 5) != 3 {
		t.Fatal("Min wrong")
	}
	if Min(NeverRead, 0) != NeverRead {
		t.Fatal("Min with sentinel wrong")
	}
}

func TestSentinelStrings(t *testing.T) {
	if NeverRead.String() != "NEVER_READ" {
		t.Fatalf("got %s", NeverRead.String())
	}
	if GlobalAddress(7).String() != "7" {
		t.Fatalf("got %s", GlobalAddress(7).String())
	}
}
