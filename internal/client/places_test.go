package client

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestNearbyTowns(t *testing.T) {
	geocode := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{
			"status": "OK",
			"results": [{
				"address_components": [
					{"long_name": "Hawaii", "types": ["administrative_area_level_1"]},
					{"long_name": "96746", "types": ["postal_code"]}
				]
			}]
		}`)
	}))
	defer geocode.Close()

	nearby := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("type"); got != "locality" {
			t.Errorf("query type = %q, want locality", got)
		}
		fmt.Fprint(w, `{
			"status": "OK",
			"results": [
				{"name": "Kapaa", "geometry": {"location": {"lat": 22.08, "lng": -159.34}}},
				{"name": "Wailua", "geometry": {"location": {"lat": 22.05, "lng": -159.33}}}
			]
		}`)
	}))
	defer nearby.Close()

	c, err := NewGoogleMapsClient("maps-key-123456", 351011, 2*time.Second)
	if err != nil {
		t.Fatalf("NewGoogleMapsClient() error = %v", err)
	}
	c.nearbyURL = nearby.URL
	c.geocodeURL = geocode.URL

	places, err := c.NearbyTowns(context.Background(), 22.06, -159.35)
	if err != nil {
		t.Fatalf("NearbyTowns() error = %v, want nil", err)
	}
	if len(places) != 2 {
		t.Fatalf("NearbyTowns() returned %d places, want 2", len(places))
	}
	if places[0].Name != "Kapaa" || places[0].PostalCode != "96746" {
		t.Errorf("places[0] = %+v, want Kapaa with postal 96746", places[0])
	}
}

func TestNearbyTowns_PostalCodeUnknown(t *testing.T) {
	geocode := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"status": "OK", "results": []}`)
	}))
	defer geocode.Close()

	nearby := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{
			"status": "OK",
			"results": [{"name": "Kekaha", "geometry": {"location": {"lat": 21.97, "lng": -159.71}}}]
		}`)
	}))
	defer nearby.Close()

	c, _ := NewGoogleMapsClient("maps-key-123456", 351011, 2*time.Second)
	c.nearbyURL = nearby.URL
	c.geocodeURL = geocode.URL

	places, err := c.NearbyTowns(context.Background(), 21.97, -159.71)
	if err != nil {
		t.Fatalf("NearbyTowns() error = %v, want nil", err)
	}
	if places[0].PostalCode != "Unknown" {
		t.Errorf("PostalCode = %q, want Unknown", places[0].PostalCode)
	}
}

func TestNearbyTowns_UpstreamStatusError(t *testing.T) {
	nearby := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"status": "REQUEST_DENIED", "results": []}`)
	}))
	defer nearby.Close()

	c, _ := NewGoogleMapsClient("maps-key-123456", 351011, 2*time.Second)
	c.nearbyURL = nearby.URL

	if _, err := c.NearbyTowns(context.Background(), 0, 0); err == nil {
		t.Fatal("NearbyTowns() error = nil, want status error")
	}
}
