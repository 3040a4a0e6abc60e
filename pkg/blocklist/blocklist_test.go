package blocklist

import (
	"testing"
)

func TestCanonical(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"example.com", "example.com."},
		{"example.com.", "example.com."},
		{"EXAMPLE.COM", "example.com."},
		{"Ads.Example.COM.", "ads.example.com."},
		{".", "."},
	}

	for _, tt := range tests {
		if got := Canonical(tt.in); got != tt.want {
			t.Errorf("Canonical(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestCanonicalIdempotent(t *testing.T) {
	for _, name := range []string{"example.com", "A.B.C", "already.canonical."} {
		once := Canonical(name)
		if twice := Canonical(once); twice != once {
			t.Errorf("Canonical not idempotent: %q -> %q -> %q", name, once, twice)
		}
	}
}

func TestSetMatch(t *testing.T) {
	set := NewSet("ads.example.com", "tracker.net", "ad.com")

	tests := []struct {
		name       string
		query      string
		wantZone   string
		wantListed bool
	}{
		{"exact entry", "ads.example.com.", "ads.example.com.", true},
		{"subdomain", "x.ads.example.com.", "ads.example.com.", true},
		{"deep subdomain", "a.b.c.tracker.net.", "tracker.net.", true},
		{"parent of entry", "example.com.", "", false},
		{"unrelated", "example.org.", "", false},
		{"label boundary", "bad.com.", "", false},
		{"boundary subdomain", "x.bad.com.", "", false},
		{"root", ".", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			zone, ok := set.Match(tt.query)
			if ok != tt.wantListed {
				t.Fatalf("Match(%q) ok = %v, want %v", tt.query, ok, tt.wantListed)
			}
			if zone != tt.wantZone {
				t.Errorf("Match(%q) zone = %q, want %q", tt.query, zone, tt.wantZone)
			}
		})
	}
}

func TestSetMatchClosestEnclosing(t *testing.T) {
	// Both example.com and ads.example.com are listed. A query under the
	// deeper entry must report the deeper entry as its zone.
	set := NewSet("example.com", "ads.example.com")

	zone, ok := set.Match("x.ads.example.com.")
	if !ok {
		t.Fatal("expected match")
	}
	if zone != "ads.example.com." {
		t.Errorf("zone = %q, want %q", zone, "ads.example.com.")
	}
}

func TestSetContains(t *testing.T) {
	set := NewSet("Example.COM")

	if !set.Contains("example.com.") {
		t.Error("Contains should see the canonicalised entry")
	}
	if set.Contains("sub.example.com.") {
		t.Error("Contains must not match subdomains")
	}
	if set.Len() != 1 {
		t.Errorf("Len() = %d, want 1", set.Len())
	}
}
