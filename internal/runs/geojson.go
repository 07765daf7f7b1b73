package runs

import (
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
)

// FeatureCollection renders a run as a route LineString plus a Point at the
// top speed location.
func FeatureCollection(r Run) *geojson.FeatureCollection {
	line := make(orb.LineString, 0, len(r.Route))
	for _, p := range r.Route {
		line = append(line, orb.Point{p.Longitude, p.Latitude})
	}

	route := geojson.NewFeature(line)
	route.ID = r.ID
	route.Properties["kind"] = "route"
	route.Properties["session_id"] = r.SessionID
	route.Properties["start_time"] = r.StartTime
	route.Properties["end_time"] = r.EndTime
	route.Properties["distance_m"] = r.Distance
	route.Properties["vertical_descent_m"] = r.VerticalDescent
	route.Properties["average_speed_mps"] = r.AverageSpeed
	route.Properties["average_slope_deg"] = r.AverageSlope
	route.Properties["max_slope_deg"] = r.MaxSlope
	route.Properties["elevations"] = elevations(r.Route)

	top := geojson.NewFeature(orb.Point{r.TopSpeedPoint.Longitude, r.TopSpeedPoint.Latitude})
	top.Properties["kind"] = "top_speed"
	top.Properties["speed_mps"] = r.TopSpeed
	top.Properties["timestamp"] = r.TopSpeedPoint.Timestamp

	return geojson.NewFeatureCollection().Append(route).Append(top)
}

func elevations(route []RoutePoint) []float64 {
	out := make([]float64, len(route))
	for i, p := range route {
		out[i] = p.Altitude
	}
	return out
}
