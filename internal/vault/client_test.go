package vault

import "testing"

func TestDisabledClientServesSeededCredentials(t *testing.T) {
	c, err := NewClient(Config{Enabled: false})
	if err != nil {
		t.Fatalf("NewClient failed: %v", err)
	}

	want := VenueCredentials{APIKey: "k-1", Endpoint: "https://venue.test", IsTestnet: true}
	if err := c.Store("solana-dex", want); err != nil {
		t.Fatalf("Store failed: %v", err)
	}

	got, err := c.Fetch("solana-dex")
	if err != nil {
		t.Fatalf("Fetch failed: %v", err)
	}
	if *got != want {
		t.Errorf("got %+v, want %+v", got, want)
	}
}

func TestDisabledClientRejectsUnknownVenue(t *testing.T) {
	c, _ := NewClient(Config{Enabled: false})
	if _, err := c.Fetch("unknown"); err == nil {
		t.Fatal("expected error for unknown venue with vault disabled")
	}
}
