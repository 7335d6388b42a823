package client

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"
)

// Place is a nearby locality candidate with its reverse-geocoded postal code.
type Place struct {
	Name       string  `json:"name"`
	Lat        float64 `json:"lat"`
	Lng        float64 `json:"lng"`
	PostalCode string  `json:"postalCode"`
}

// PlacesClient finds localities around a coordinate for the mobile client's
// town picker. Display-layer passthrough; not part of the aggregation core.
type PlacesClient interface {
	NearbyTowns(ctx context.Context, latitude, longitude float64) ([]Place, error)
}

// GoogleMapsClient implements PlacesClient against the Google Places
// nearby-search and Geocoding REST APIs.
type GoogleMapsClient struct {
	apiKey       string
	nearbyURL    string
	geocodeURL   string
	radiusMeters int
	client       *http.Client
}

func NewGoogleMapsClient(apiKey string, radiusMeters int, timeout time.Duration) (*GoogleMapsClient, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("%w: maps API key is required", ErrInvalidAPIKey)
	}
	return &GoogleMapsClient{
		apiKey:       apiKey,
		nearbyURL:    "https://maps.googleapis.com/maps/api/place/nearbysearch/json",
		geocodeURL:   "https://maps.googleapis.com/maps/api/geocode/json",
		radiusMeters: radiusMeters,
		client:       &http.Client{Timeout: timeout},
	}, nil
}

type nearbySearchResponse struct {
	Results []struct {
		Name     string `json:"name"`
		Geometry struct {
			Location struct {
				Lat float64 `json:"lat"`
				Lng float64 `json:"lng"`
			} `json:"location"`
		} `json:"geometry"`
	} `json:"results"`
	Status string `json:"status"`
}

type reverseGeocodeResponse struct {
	Results []struct {
		AddressComponents []struct {
			LongName string   `json:"long_name"`
			Types    []string `json:"types"`
		} `json:"address_components"`
	} `json:"results"`
	Status string `json:"status"`
}

// NearbyTowns lists localities within the configured radius, reverse-geocoding
// each candidate for a postal code. A candidate without a resolvable postal
// code is kept with PostalCode "Unknown", matching the client's expectations.
func (c *GoogleMapsClient) NearbyTowns(ctx context.Context, latitude, longitude float64) ([]Place, error) {
	params := url.Values{}
	params.Set("location", fmt.Sprintf("%f,%f", latitude, longitude))
	params.Set("radius", fmt.Sprintf("%d", c.radiusMeters))
	params.Set("type", "locality")
	params.Set("key", c.apiKey)

	var nearby nearbySearchResponse
	if err := c.getJSON(ctx, c.nearbyURL+"?"+params.Encode(), &nearby); err != nil {
		return nil, fmt.Errorf("nearby search: %w", err)
	}
	if nearby.Status != "OK" && nearby.Status != "ZERO_RESULTS" {
		return nil, fmt.Errorf("%w: nearby search status %s", ErrUpstreamFailure, nearby.Status)
	}

	places := make([]Place, 0, len(nearby.Results))
	for _, result := range nearby.Results {
		place := Place{
			Name:       result.Name,
			Lat:        result.Geometry.Location.Lat,
			Lng:        result.Geometry.Location.Lng,
			PostalCode: "Unknown",
		}
		if code, err := c.reverseGeocodePostalCode(ctx, place.Lat, place.Lng); err == nil && code != "" {
			place.PostalCode = code
		}
		places = append(places, place)
	}
	return places, nil
}

// reverseGeocodePostalCode resolves the postal code for a coordinate.
func (c *GoogleMapsClient) reverseGeocodePostalCode(ctx context.Context, lat, lng float64) (string, error) {
	params := url.Values{}
	params.Set("latlng", fmt.Sprintf("%f,%f", lat, lng))
	params.Set("key", c.apiKey)

	var geo reverseGeocodeResponse
	if err := c.getJSON(ctx, c.geocodeURL+"?"+params.Encode(), &geo); err != nil {
		return "", fmt.Errorf("reverse geocode: %w", err)
	}
	if len(geo.Results) == 0 {
		return "", nil
	}
	for _, component := range geo.Results[0].AddressComponents {
		for _, t := range component.Types {
			if t == "postal_code" {
				return component.LongName, nil
			}
		}
	}
	return "", nil
}

func (c *GoogleMapsClient) getJSON(ctx context.Context, rawURL string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, "GET", rawURL, nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("http request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: HTTP %d", ErrUpstreamFailure, resp.StatusCode)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
