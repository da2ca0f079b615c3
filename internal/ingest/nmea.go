package ingest

import (
	"strings"
	"time"

	"backend-tripoverlay/internal/engine"
	"backend-tripoverlay/internal/shared/geo"

	nmea "github.com/adrianmo/go-nmea"
)

const knotsToKmh = 1.852

// samplesFromNMEA extracts position samples from raw NMEA 0183 text. Only
// RMC sentences with validity "A" count; everything else (other sentence
// types, void fixes, noise lines) is skipped silently, the way a serial GPS
// feed is normally consumed.
func samplesFromNMEA(body string, now time.Time) []engine.Sample {
	var samples []engine.Sample

	for _, line := range strings.Split(body, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || !strings.HasPrefix(line, "$") {
			continue
		}

		sentence, err := nmea.Parse(line)
		if err != nil {
			continue
		}
		if sentence.DataType() != nmea.TypeRMC {
			continue
		}

		m := sentence.(nmea.RMC)
		if m.Validity != nmea.ValidRMC {
			continue
		}

		samples = append(samples, engine.Sample{
			Coordinate: geo.Coordinate{Lat: m.Latitude, Lon: m.Longitude},
			SpeedKmh:   m.Speed * knotsToKmh,
			Timestamp:  rmcTime(m, now),
		})
	}
	return samples
}

// rmcTime combines the RMC date and time fields, falling back to server time
// when the receiver has no date lock yet.
func rmcTime(m nmea.RMC, now time.Time) time.Time {
	if !m.Date.Valid || !m.Time.Valid {
		return now
	}
	return time.Date(2000+m.Date.YY, time.Month(m.Date.MM), m.Date.DD,
		m.Time.Hour, m.Time.Minute, m.Time.Second, m.Time.Millisecond*int(time.Millisecond),
		time.UTC)
}
