package netatmo

import "time"

// Module is one remote sensor unit as reported by getstationsdata. The main
// station and its attached modules are both represented as Modules — the
// vendor payload nests them, the published device tree does not.
//
// Signal, battery and reachability fields are pointers because their
// presence depends on the module kind: the station reports wifi_status,
// battery-powered modules report rf_status and battery_percent.
type Module struct {
	ID              string     `json:"_id"`
	Type            string     `json:"type"`
	Name            string     `json:"module_name"`
	WifiStatus      *int       `json:"wifi_status,omitempty"`
	RFStatus        *int       `json:"rf_status,omitempty"`
	BatteryPercent  *int       `json:"battery_percent,omitempty"`
	Reachable       *bool      `json:"reachable,omitempty"`
	LastSeen        int64      `json:"last_seen,omitempty"`
	LastMessage     int64      `json:"last_message,omitempty"`
	LastStatusStore int64      `json:"last_status_store,omitempty"`
	Dashboard       *Dashboard `json:"dashboard_data,omitempty"`
}

// Dashboard holds the measurement fields a module may report. Which fields
// are present depends on module capability (an outdoor module has no CO2
// sensor, a rain gauge has no temperature).
type Dashboard struct {
	Temperature *float64 `json:"Temperature,omitempty"`
	Humidity    *float64 `json:"Humidity,omitempty"`
	CO2         *float64 `json:"CO2,omitempty"`
	Pressure    *float64 `json:"Pressure,omitempty"`
	Noise       *float64 `json:"Noise,omitempty"`
}

// Measurement is one present dashboard field with its value.
type Measurement struct {
	Field string
	Value float64
}

// Measurements returns the present dashboard fields in a fixed order.
// Field names are lowercase and double as Homie property IDs.
func (d *Dashboard) Measurements() []Measurement {
	if d == nil {
		return nil
	}

	fields := []struct {
		name  string
		value *float64
	}{
		{"temperature", d.Temperature},
		{"humidity", d.Humidity},
		{"co2", d.CO2},
		{"pressure", d.Pressure},
		{"noise", d.Noise},
	}

	var out []Measurement
	for _, f := range fields {
		if f.value != nil {
			out = append(out, Measurement{Field: f.name, Value: *f.value})
		}
	}
	return out
}

// LastSeenTime returns the module's most relevant timestamp: last_seen for
// battery modules, falling back to last_message and then the station's
// last_status_store. ok is false when the module carries none of them.
func (m Module) LastSeenTime() (t time.Time, ok bool) {
	for _, ts := range []int64{m.LastSeen, m.LastMessage, m.LastStatusStore} {
		if ts > 0 {
			return time.Unix(ts, 0).UTC(), true
		}
	}
	return time.Time{}, false
}

// stationsDataResponse mirrors the getstationsdata envelope.
type stationsDataResponse struct {
	Body struct {
		Devices []stationDevice `json:"devices"`
	} `json:"body"`
}

// stationDevice is a main station with its attached modules.
type stationDevice struct {
	Module
	Modules []Module `json:"modules"`
}

// flattenStations collapses stations and their attached modules into one
// flat module list, stations first.
func flattenStations(resp stationsDataResponse) []Module {
	var out []Module
	for _, dev := range resp.Body.Devices {
		out = append(out, dev.Module)
		out = append(out, dev.Modules...)
	}
	return out
}
