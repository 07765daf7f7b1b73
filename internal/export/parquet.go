// Package export writes finalized runs as Parquet for offline analysis.
package export

import (
	"backend-slopetrack/internal/runs"

	parquetbuffer "github.com/xitongsys/parquet-go-source/buffer"
	"github.com/xitongsys/parquet-go-source/local"
	"github.com/xitongsys/parquet-go/parquet"
	"github.com/xitongsys/parquet-go/source"
	"github.com/xitongsys/parquet-go/writer"
)

type routeRow struct {
	RunID      string  `parquet:"name=run_id, type=BYTE_ARRAY, convertedtype=UTF8, encoding=PLAIN_DICTIONARY"`
	SessionID  string  `parquet:"name=session_id, type=BYTE_ARRAY, convertedtype=UTF8, encoding=PLAIN_DICTIONARY"`
	Seq        int64   `parquet:"name=seq, type=INT64"`
	TSUnixMs   int64   `parquet:"name=ts_unix_ms, type=INT64"`
	Lat        float64 `parquet:"name=lat, type=DOUBLE"`
	Lng        float64 `parquet:"name=lng, type=DOUBLE"`
	AltitudeM  float64 `parquet:"name=altitude_m, type=DOUBLE"`
	SpeedMps   float64 `parquet:"name=speed_mps, type=DOUBLE"`
	IsTopSpeed bool    `parquet:"name=is_top_speed, type=BOOLEAN"`
}

type runRow struct {
	RunID           string  `parquet:"name=run_id, type=BYTE_ARRAY, convertedtype=UTF8"`
	SessionID       string  `parquet:"name=session_id, type=BYTE_ARRAY, convertedtype=UTF8, encoding=PLAIN_DICTIONARY"`
	StartUnixMs     int64   `parquet:"name=start_unix_ms, type=INT64"`
	EndUnixMs       int64   `parquet:"name=end_unix_ms, type=INT64"`
	DurationS       float64 `parquet:"name=duration_s, type=DOUBLE"`
	DistanceM       float64 `parquet:"name=distance_m, type=DOUBLE"`
	TopSpeedMps     float64 `parquet:"name=top_speed_mps, type=DOUBLE"`
	AvgSpeedMps     float64 `parquet:"name=avg_speed_mps, type=DOUBLE"`
	StartElevationM float64 `parquet:"name=start_elevation_m, type=DOUBLE"`
	EndElevationM   float64 `parquet:"name=end_elevation_m, type=DOUBLE"`
	DescentM        float64 `parquet:"name=descent_m, type=DOUBLE"`
	AvgSlopeDeg     float64 `parquet:"name=avg_slope_deg, type=DOUBLE"`
	MaxSlopeDeg     float64 `parquet:"name=max_slope_deg, type=DOUBLE"`
	PointCount      int64   `parquet:"name=point_count, type=INT64"`
}

func routeRows(all []runs.Run) []any {
	var rows []any
	for _, r := range all {
		for i, p := range r.Route {
			rows = append(rows, routeRow{
				RunID:      r.ID,
				SessionID:  r.SessionID,
				Seq:        int64(i),
				TSUnixMs:   p.Timestamp.UnixMilli(),
				Lat:        p.Latitude,
				Lng:        p.Longitude,
				AltitudeM:  p.Altitude,
				SpeedMps:   p.Speed,
				IsTopSpeed: p.Timestamp.Equal(r.TopSpeedPoint.Timestamp),
			})
		}
	}
	return rows
}

func runRows(all []runs.Run) []any {
	rows := make([]any, 0, len(all))
	for _, r := range all {
		rows = append(rows, runRow{
			RunID:           r.ID,
			SessionID:       r.SessionID,
			StartUnixMs:     r.StartTime.UnixMilli(),
			EndUnixMs:       r.EndTime.UnixMilli(),
			DurationS:       r.Duration().Seconds(),
			DistanceM:       r.Distance,
			TopSpeedMps:     r.TopSpeed,
			AvgSpeedMps:     r.AverageSpeed,
			StartElevationM: r.StartElevation,
			EndElevationM:   r.EndElevation,
			DescentM:        r.VerticalDescent,
			AvgSlopeDeg:     r.AverageSlope,
			MaxSlopeDeg:     r.MaxSlope,
			PointCount:      int64(r.PointCount),
		})
	}
	return rows
}

// RouteParquet encodes every route point of all as one Parquet file.
func RouteParquet(all []runs.Run) ([]byte, error) {
	fw := parquetbuffer.NewBufferFile()
	if err := writeRows(fw, new(routeRow), routeRows(all)); err != nil {
		return nil, err
	}
	return append([]byte(nil), fw.Bytes()...), nil
}

// WriteRoutes writes every route point of all to path.
func WriteRoutes(path string, all []runs.Run) error {
	fw, err := local.NewLocalFileWriter(path)
	if err != nil {
		return err
	}
	return writeRows(fw, new(routeRow), routeRows(all))
}

// WriteRuns writes one summary row per run to path.
func WriteRuns(path string, all []runs.Run) error {
	fw, err := local.NewLocalFileWriter(path)
	if err != nil {
		return err
	}
	return writeRows(fw, new(runRow), runRows(all))
}

func writeRows(fw source.ParquetFile, schema any, rows []any) error {
	pw, err := writer.NewParquetWriter(fw, schema, 4)
	if err != nil {
		_ = fw.Close()
		return err
	}
	pw.CompressionType = parquet.CompressionCodec_SNAPPY
	for _, row := range rows {
		if err := pw.Write(row); err != nil {
			_ = pw.WriteStop()
			_ = fw.Close()
			return err
		}
	}
	if err := pw.WriteStop(); err != nil {
		_ = fw.Close()
		return err
	}
	return fw.Close()
}
