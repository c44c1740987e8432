package eta

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Pratikk2op/Mechiee-sub000/internal/models"
)

type stubClient struct {
	v     float64
	err   error
	calls int
}

func (s *stubClient) EstimateSeconds(ctx context.Context, from, to models.Coord) (float64, error) {
	s.calls++
	return s.v, s.err
}

func TestEstimatorFallsBackToStraightLine(t *testing.T) {
	from := models.Coord{Lat: 19.0760, Lon: 72.8777}
	to := models.Coord{Lat: 19.0760, Lon: 72.8777}
	e := &Estimator{SpeedMps: 10, Client: &stubClient{err: errors.New("down")}}
	assert.Equal(t, 0.0, e.Seconds(context.Background(), from, to))
}

func TestEstimatorUsesCache(t *testing.T) {
	from := models.Coord{Lat: 1, Lon: 2}
	to := models.Coord{Lat: 1.01, Lon: 2}
	c := &stubClient{v: 125}
	e := &Estimator{Client: c, Cache: NewCache(time.Minute)}

	assert.Equal(t, 125.0, e.Seconds(context.Background(), from, to))
	assert.Equal(t, 125.0, e.Seconds(context.Background(), from, to))
	assert.Equal(t, 1, c.calls)
	assert.Equal(t, 3, e.Minutes(context.Background(), from, to))
}

func TestOSRMClient(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"code":"Ok","routes":[{"duration":321.5}]}`)
	}))
	defer srv.Close()

	got, err := NewOSRMClient(srv.URL).EstimateSeconds(context.Background(), models.Coord{Lat: 1, Lon: 2}, models.Coord{Lat: 3, Lon: 4})
	require.NoError(t, err)
	assert.Equal(t, 321.5, got)
}

func TestOSRMClientRouteURL(t *testing.T) {
	var path string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path = r.URL.Path
		fmt.Fprint(w, `{"code":"Ok","routes":[{"duration":60}]}`)
	}))
	defer srv.Close()

	_, err := NewOSRMClient(srv.URL).EstimateSeconds(context.Background(), models.Coord{Lat: 18.5, Lon: 73.8}, models.Coord{Lat: 18.6, Lon: 73.9})
	require.NoError(t, err)
	assert.Equal(t, "/route/v1/driving/73.800000,18.500000;73.900000,18.600000", path)
}

func TestOSRMClientErrors(t *testing.T) {
	cases := []struct {
		status int
		body   string
		want   string
	}{
		{http.StatusOK, `{"code":"NoRoute","routes":[]}`, "NoRoute"},
		{http.StatusBadGateway, "upstream down", "status 502"},
	}
	from, to := models.Coord{Lat: 1, Lon: 2}, models.Coord{Lat: 3, Lon: 4}
	for _, tc := range cases {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(tc.status)
			fmt.Fprint(w, tc.body)
		}))
		_, err := NewOSRMClient(srv.URL).EstimateSeconds(context.Background(), from, to)
		assert.ErrorContains(t, err, tc.want)
		srv.Close()
	}
}
