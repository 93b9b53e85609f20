package cityresolve

import (
	"context"
	"errors"
	"testing"

	"marketplace-discovery-service/internal/catalog"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// MockSessionStore is a mock implementation of SessionStore
type MockSessionStore struct {
	mock.Mock
}

func (m *MockSessionStore) City(ctx context.Context, sessionID string) (string, error) {
	args := m.Called(ctx, sessionID)
	return args.String(0), args.Error(1)
}

func (m *MockSessionStore) SetCity(ctx context.Context, sessionID, city string) error {
	args := m.Called(ctx, sessionID, city)
	return args.Error(0)
}

// MockPlaceNamer is a mock implementation of PlaceNamer
type MockPlaceNamer struct {
	mock.Mock
}

func (m *MockPlaceNamer) PlaceName(ctx context.Context, lat, lng float64) (string, error) {
	args := m.Called(ctx, lat, lng)
	return args.String(0), args.Error(1)
}

func testCatalog() *catalog.Catalog {
	return catalog.New(
		[]string{"Минск", "Борисов", "Брест"},
		map[string][]string{catalog.RegionMinsk: {"Минск", "Борисов"}},
	)
}

func TestResolver_PersistedCityWins(t *testing.T) {
	sessions := new(MockSessionStore)
	geocoder := new(MockPlaceNamer)
	resolver := NewResolver(sessions, testCatalog(), geocoder)

	sessions.On("City", mock.Anything, "s1").Return("Минск", nil).Once()

	city, err := resolver.Resolve(context.Background(), "s1", &Coordinates{Lat: 53.9, Lng: 27.56})

	require.NoError(t, err)
	assert.Equal(t, "Минск", city)
	geocoder.AssertNotCalled(t, "PlaceName", mock.Anything, mock.Anything, mock.Anything)
	sessions.AssertExpectations(t)
}

func TestResolver_StalePersistedCityIgnored(t *testing.T) {
	sessions := new(MockSessionStore)
	geocoder := new(MockPlaceNamer)
	resolver := NewResolver(sessions, testCatalog(), geocoder)

	// A city persisted before a catalog change no longer counts.
	sessions.On("City", mock.Anything, "s1").Return("Атлантида", nil).Once()
	geocoder.On("PlaceName", mock.Anything, 53.9, 27.56).Return("Минский район", nil).Once()
	sessions.On("SetCity", mock.Anything, "s1", "Минск").Return(nil).Once()

	city, err := resolver.Resolve(context.Background(), "s1", &Coordinates{Lat: 53.9, Lng: 27.56})

	require.NoError(t, err)
	assert.Equal(t, "Минск", city)
	sessions.AssertExpectations(t)
	geocoder.AssertExpectations(t)
}

func TestResolver_ProviderFailureFallsThroughToNextSource(t *testing.T) {
	sessions := new(MockSessionStore)
	primary := new(MockPlaceNamer)
	fallback := new(MockPlaceNamer)
	resolver := NewResolver(sessions, testCatalog(), primary, fallback)

	sessions.On("City", mock.Anything, "s1").Return("", nil).Once()
	primary.On("PlaceName", mock.Anything, 52.1, 23.7).Return("", errors.New("rate limited")).Once()
	fallback.On("PlaceName", mock.Anything, 52.1, 23.7).Return("Брест", nil).Once()
	sessions.On("SetCity", mock.Anything, "s1", "Брест").Return(nil).Once()

	city, err := resolver.Resolve(context.Background(), "s1", &Coordinates{Lat: 52.1, Lng: 23.7})

	require.NoError(t, err)
	assert.Equal(t, "Брест", city)
	primary.AssertExpectations(t)
	fallback.AssertExpectations(t)
}

func TestResolver_NoMatchFallsBackToFirstCity(t *testing.T) {
	sessions := new(MockSessionStore)
	geocoder := new(MockPlaceNamer)
	resolver := NewResolver(sessions, testCatalog(), geocoder)

	sessions.On("City", mock.Anything, "s1").Return("", nil).Once()
	geocoder.On("PlaceName", mock.Anything, 40.7, -74.0).Return("Springfield", nil).Once()
	sessions.On("SetCity", mock.Anything, "s1", "Борисов").Return(nil).Once()

	city, err := resolver.Resolve(context.Background(), "s1", &Coordinates{Lat: 40.7, Lng: -74.0})

	require.NoError(t, err)
	assert.Equal(t, "Борисов", city, "Борисов sorts first in this catalog")
	sessions.AssertExpectations(t)
}

func TestResolver_NoCoordinatesGoesStraightToDefault(t *testing.T) {
	sessions := new(MockSessionStore)
	geocoder := new(MockPlaceNamer)
	resolver := NewResolver(sessions, testCatalog(), geocoder)

	sessions.On("City", mock.Anything, "s1").Return("", nil).Once()
	sessions.On("SetCity", mock.Anything, "s1", "Борисов").Return(nil).Once()

	city, err := resolver.Resolve(context.Background(), "s1", nil)

	require.NoError(t, err)
	assert.Equal(t, "Борисов", city)
	geocoder.AssertNotCalled(t, "PlaceName", mock.Anything, mock.Anything, mock.Anything)
}

func TestResolver_PersistFailureDoesNotFailResolution(t *testing.T) {
	sessions := new(MockSessionStore)
	resolver := NewResolver(sessions, testCatalog())

	sessions.On("City", mock.Anything, "s1").Return("", nil).Once()
	sessions.On("SetCity", mock.Anything, "s1", "Борисов").Return(errors.New("redis down")).Once()

	city, err := resolver.Resolve(context.Background(), "s1", nil)

	require.NoError(t, err)
	assert.Equal(t, "Борисов", city)
}

func TestResolver_ResolveCoordinatesAlwaysYieldsCity(t *testing.T) {
	geocoder := new(MockPlaceNamer)
	resolver := NewResolver(new(MockSessionStore), testCatalog(), geocoder)

	geocoder.On("PlaceName", mock.Anything, 1.0, 1.0).Return("", errors.New("unreachable")).Once()

	city, matched := resolver.ResolveCoordinates(context.Background(), Coordinates{Lat: 1, Lng: 1})
	assert.Equal(t, "Борисов", city)
	assert.False(t, matched)

	geocoder.On("PlaceName", mock.Anything, 53.9, 27.56).Return("Минск", nil).Once()
	city, matched = resolver.ResolveCoordinates(context.Background(), Coordinates{Lat: 53.9, Lng: 27.56})
	assert.Equal(t, "Минск", city)
	assert.True(t, matched)
}

func TestResolver_SelectValidatesAgainstCatalog(t *testing.T) {
	sessions := new(MockSessionStore)
	resolver := NewResolver(sessions, testCatalog())

	err := resolver.Select(context.Background(), "s1", "Springfield")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrUnknownCity))

	sessions.On("SetCity", mock.Anything, "s1", "Брест").Return(nil).Once()
	err = resolver.Select(context.Background(), "s1", "Брест")
	require.NoError(t, err)
	sessions.AssertExpectations(t)
}
