package services

import (
	"fmt"
	"math"

	"github.com/shopspring/decimal"

	domain "github.com/petcorner/storefront/internal/domain"
)

const earthRadiusKm = 6371.0

// DeliveryTier maps distances up to and including MaxKm onto a flat fee.
type DeliveryTier struct {
	MaxKm float64
	Cost  decimal.Decimal
}

var defaultDeliveryTiers = []DeliveryTier{
	{MaxKm: 5, Cost: decimal.Zero},
	{MaxKm: 10, Cost: decimal.NewFromInt(15)},
	{MaxKm: 20, Cost: decimal.NewFromInt(25)},
	{MaxKm: math.Inf(1), Cost: decimal.NewFromInt(35)},
}

// DeliveryCostEstimator derives a delivery fee from the great-circle distance between the store
// and the customer.
type DeliveryCostEstimator struct {
	tiers []DeliveryTier
}

// NewDeliveryCostEstimator returns an estimator using the storefront tier table.
func NewDeliveryCostEstimator() *DeliveryCostEstimator {
	return &DeliveryCostEstimator{tiers: defaultDeliveryTiers}
}

// Estimate computes the distance between origin and destination and prices it.
func (e *DeliveryCostEstimator) Estimate(origin, destination *domain.Coordinates) (domain.DeliveryEstimate, error) {
	if origin == nil || destination == nil {
		return domain.DeliveryEstimate{}, ErrGeolocationUnavailable
	}
	if !validCoordinates(*origin) || !validCoordinates(*destination) {
		return domain.DeliveryEstimate{}, fmt.Errorf("%w: coordinates out of range", ErrGeolocationUnavailable)
	}
	distance := HaversineKm(*origin, *destination)
	return domain.DeliveryEstimate{
		DistanceKm: distance,
		Cost:       e.CostForDistance(distance),
	}, nil
}

// CostForDistance returns the fee of the first tier whose inclusive upper bound covers distanceKm.
func (e *DeliveryCostEstimator) CostForDistance(distanceKm float64) decimal.Decimal {
	tiers := defaultDeliveryTiers
	if e != nil && len(e.tiers) > 0 {
		tiers = e.tiers
	}
	if distanceKm < 0 {
		distanceKm = 0
	}
	for _, tier := range tiers {
		if distanceKm <= tier.MaxKm {
			return tier.Cost
		}
	}
	return tiers[len(tiers)-1].Cost
}

// HaversineKm returns the great-circle distance in kilometres.
func HaversineKm(a, b domain.Coordinates) float64 {
	lat1 := toRadians(a.Latitude)
	lat2 := toRadians(b.Latitude)
	dLat := toRadians(b.Latitude - a.Latitude)
	dLon := toRadians(b.Longitude - a.Longitude)

	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1)*math.Cos(lat2)*math.Sin(dLon/2)*math.Sin(dLon/2)
	return 2 * earthRadiusKm * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))
}

func toRadians(deg float64) float64 {
	return deg * math.Pi / 180
}

func validCoordinates(c domain.Coordinates) bool {
	if math.IsNaN(c.Latitude) || math.IsNaN(c.Longitude) {
		return false
	}
	return c.Latitude >= -90 && c.Latitude <= 90 && c.Longitude >= -180 && c.Longitude <= 180
}
