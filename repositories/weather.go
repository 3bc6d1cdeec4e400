package repositories

import (
	"chat-pubsub/contract"
	"context"
	"fmt"
)

const WeatherKey = "weather"

// DefaultWeather is the mock data seeded at start-up.
var DefaultWeather = map[string]string{
	"nashville":   "Sunny, 75°F",
	"new_york":    "Cloudy, 60°F",
	"los_angeles": "Clear, 85°F",
}

type IWeatherRepository interface {
	Seed(ctx context.Context, reports map[string]string) error
	Get(ctx context.Context, city string) (string, error)
}

type WeatherRepository struct {
	store contract.KeyValueStore
}

func NewWeatherRepository(store contract.KeyValueStore) *WeatherRepository {
	return &WeatherRepository{store: store}
}

func (r *WeatherRepository) Seed(ctx context.Context, reports map[string]string) error {
	if err := r.store.SetFields(ctx, WeatherKey, reports); err != nil {
		return fmt.Errorf("seed weather: %w", err)
	}
	return nil
}

// Get returns errors.ErrNotFound for a city without data.
func (r *WeatherRepository) Get(ctx context.Context, city string) (string, error) {
	return r.store.GetField(ctx, WeatherKey, city)
}
