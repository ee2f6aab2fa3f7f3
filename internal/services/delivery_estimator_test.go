package services

import (
	"errors"
	"math"
	"testing"

	domain "github.com/petcorner/storefront/internal/domain"
)

func TestDeliveryCostEstimatorTierBoundaries(t *testing.T) {
	estimator := NewDeliveryCostEstimator()

	cases := []struct {
		km   float64
		cost string
	}{
		{km: 0, cost: "0"},
		{km: 5, cost: "0"},
		{km: 5.0001, cost: "15"},
		{km: 10, cost: "15"},
		{km: 10.01, cost: "25"},
		{km: 20, cost: "25"},
		{km: 20.5, cost: "35"},
		{km: 500, cost: "35"},
		{km: -1, cost: "0"},
	}
	for _, tc := range cases {
		got := estimator.CostForDistance(tc.km)
		if !got.Equal(dec(t, tc.cost)) {
			t.Fatalf("distance %.4f: expected %s got %s", tc.km, tc.cost, got)
		}
	}
}

func TestDeliveryCostEstimatorEstimate(t *testing.T) {
	estimator := NewDeliveryCostEstimator()
	store := &domain.Coordinates{Latitude: 0, Longitude: 0}
	customer := &domain.Coordinates{Latitude: 0.063, Longitude: 0}

	estimate, err := estimator.Estimate(store, customer)
	if err != nil {
		t.Fatalf("estimate: %v", err)
	}
	if math.Abs(estimate.DistanceKm-7.005) > 0.01 {
		t.Fatalf("expected ~7.005 km got %.4f", estimate.DistanceKm)
	}
	if !estimate.Cost.Equal(dec(t, "15")) {
		t.Fatalf("expected cost 15 got %s", estimate.Cost)
	}

	same, err := estimator.Estimate(store, store)
	if err != nil {
		t.Fatalf("estimate same point: %v", err)
	}
	if same.DistanceKm != 0 || !same.Cost.IsZero() {
		t.Fatalf("expected free delivery at the store, got %+v", same)
	}
}

func TestDeliveryCostEstimatorRequiresBothPositions(t *testing.T) {
	estimator := NewDeliveryCostEstimator()
	point := &domain.Coordinates{Latitude: 48.85, Longitude: 2.35}

	if _, err := estimator.Estimate(nil, point); !errors.Is(err, ErrGeolocationUnavailable) {
		t.Fatalf("expected geolocation unavailable for missing origin, got %v", err)
	}
	if _, err := estimator.Estimate(point, nil); !errors.Is(err, ErrGeolocationUnavailable) {
		t.Fatalf("expected geolocation unavailable for missing destination, got %v", err)
	}
	bad := &domain.Coordinates{Latitude: 91, Longitude: 0}
	if _, err := estimator.Estimate(point, bad); !errors.Is(err, ErrGeolocationUnavailable) {
		t.Fatalf("expected geolocation unavailable for out-of-range latitude, got %v", err)
	}
	nan := &domain.Coordinates{Latitude: math.NaN(), Longitude: 0}
	if _, err := estimator.Estimate(nan, point); !errors.Is(err, ErrGeolocationUnavailable) {
		t.Fatalf("expected geolocation unavailable for NaN, got %v", err)
	}
}

func TestHaversineKmIsSymmetric(t *testing.T) {
	paris := domain.Coordinates{Latitude: 48.8566, Longitude: 2.3522}
	lyon := domain.Coordinates{Latitude: 45.7640, Longitude: 4.8357}

	ab := HaversineKm(paris, lyon)
	ba := HaversineKm(lyon, paris)
	if math.Abs(ab-ba) > 1e-9 {
		t.Fatalf("expected symmetric distance, got %.6f vs %.6f", ab, ba)
	}
	if ab < 385 || ab > 400 {
		t.Fatalf("expected Paris-Lyon around 392 km, got %.2f", ab)
	}
}
