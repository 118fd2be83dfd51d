package bridge

import (
	"fmt"
	"strconv"
	"time"

	"github.com/nerrad567/netatmo-bridge/internal/homie"
	"github.com/nerrad567/netatmo-bridge/internal/netatmo"
)

// measurements maps a dashboard field to its Homie display name and unit.
var measurements = map[string]struct {
	Name string
	Unit string
}{
	"temperature": {"Temperature", "°C"},
	"humidity":    {"Humidity", "%"},
	"co2":         {"CO2", "ppm"},
	"pressure":    {"Pressure", "mbar"},
	"noise":       {"Noise", "dB"},
}

// conditionProperty describes one module-condition property: whether a
// module reports it and how its value is rendered. The table drives both
// the build path (which properties a node declares) and the update path
// (which values get pushed), so the two can never disagree.
type conditionProperty struct {
	spec    homie.PropertySpec
	present func(netatmo.Module) bool
	value   func(netatmo.Module) string
}

var conditionProperties = []conditionProperty{
	{
		spec:    homie.PropertySpec{ID: "radiosignal", Name: "Radio signal", Datatype: homie.DatatypeString},
		present: func(m netatmo.Module) bool { return m.RFStatus != nil },
		value:   func(m netatmo.Module) string { return bucketSignal(*m.RFStatus, 60, 80) },
	},
	{
		spec:    homie.PropertySpec{ID: "wifisignal", Name: "WiFi signal", Datatype: homie.DatatypeString},
		present: func(m netatmo.Module) bool { return m.WifiStatus != nil },
		value:   func(m netatmo.Module) string { return bucketSignal(*m.WifiStatus, 60, 76) },
	},
	{
		spec:    homie.PropertySpec{ID: "reachable", Name: "Reachable", Datatype: homie.DatatypeBoolean},
		present: func(m netatmo.Module) bool { return m.Reachable != nil },
		value:   func(m netatmo.Module) string { return strconv.FormatBool(*m.Reachable) },
	},
	{
		spec:    homie.PropertySpec{ID: "battery", Name: "Battery", Datatype: homie.DatatypeInteger, Unit: "%", Format: "0:100"},
		present: func(m netatmo.Module) bool { return m.BatteryPercent != nil },
		value:   func(m netatmo.Module) string { return strconv.Itoa(*m.BatteryPercent) },
	},
	{
		spec: homie.PropertySpec{ID: "lastseen", Name: "Last seen", Datatype: homie.DatatypeString},
		present: func(m netatmo.Module) bool {
			_, ok := m.LastSeenTime()
			return ok
		},
		value: func(m netatmo.Module) string {
			t, _ := m.LastSeenTime()
			return t.Format(time.RFC3339)
		},
	},
}

// bucketSignal renders a signal reading as a quality bucket with the raw
// value, e.g. "ok (65)". Lower readings mean a stronger link.
func bucketSignal(v, goodBelow, okBelow int) string {
	label := "bad"
	switch {
	case v < goodBelow:
		label = "good"
	case v < okBelow:
		label = "ok"
	}
	return fmt.Sprintf("%s (%d)", label, v)
}

// sluggedModule pairs a module with its derived node slug.
type sluggedModule struct {
	slug   string
	module netatmo.Module
}

// synchronizer keeps the published Homie device tree in step with the
// vendor's module list. The tree is rebuilt wholesale when the slug set
// changes and value-patched otherwise, so subscribers see topology changes
// atomically and value updates cheaply.
//
// Not safe for concurrent use; driven by the poller goroutine alone.
type synchronizer struct {
	pub        homie.Publisher
	log        Logger
	domain     string
	deviceID   string
	deviceName string

	device *homie.Device
	slugs  map[string]struct{}
}

func newSynchronizer(pub homie.Publisher, domain, deviceID, deviceName string, log Logger) *synchronizer {
	return &synchronizer{
		pub:        pub,
		log:        log,
		domain:     domain,
		deviceID:   deviceID,
		deviceName: deviceName,
	}
}

// Sync reconciles the published tree with the given module list.
func (s *synchronizer) Sync(modules []netatmo.Module) error {
	assigned := s.assignSlugs(modules)

	if s.device == nil || !s.sameSlugs(assigned) {
		return s.rebuild(assigned)
	}
	return s.update(assigned)
}

// Stop announces the published device as cleanly disconnected.
func (s *synchronizer) Stop() error {
	if s.device == nil {
		return nil
	}
	return s.device.Stop()
}

// assignSlugs derives each module's node slug. Colliding slugs resolve
// last-write-wins with a warning; the vendor names modules uniquely in
// practice, so a collision means two modules were given the same name.
func (s *synchronizer) assignSlugs(modules []netatmo.Module) []sluggedModule {
	assigned := make([]sluggedModule, 0, len(modules))
	index := make(map[string]int, len(modules))

	for _, m := range modules {
		slug := Slugify(m.Type, m.Name)
		if slug == "" {
			s.log.Warn("module yields an empty slug, skipping", "id", m.ID, "type", m.Type)
			continue
		}

		if prev, exists := index[slug]; exists {
			s.log.Warn("module slug collision, keeping the later module",
				"slug", slug, "dropped_id", assigned[prev].module.ID, "kept_id", m.ID)
			assigned[prev] = sluggedModule{slug: slug, module: m}
			continue
		}

		index[slug] = len(assigned)
		assigned = append(assigned, sluggedModule{slug: slug, module: m})
	}

	return assigned
}

// sameSlugs reports whether the assigned slug set matches the published one.
// Order-independent: modules moving around in the vendor payload is not a
// topology change.
func (s *synchronizer) sameSlugs(assigned []sluggedModule) bool {
	if len(assigned) != len(s.slugs) {
		return false
	}
	for _, sm := range assigned {
		if _, ok := s.slugs[sm.slug]; !ok {
			return false
		}
	}
	return true
}

// rebuild replaces the published device. The old device is stopped before
// the new one starts so subscribers never see two live trees overlap.
func (s *synchronizer) rebuild(assigned []sluggedModule) error {
	if s.device != nil {
		if err := s.device.Stop(); err != nil {
			s.log.Warn("failed to announce outgoing device as disconnected", "error", err)
		}
		s.device = nil
		s.slugs = nil
	}

	spec := homie.DeviceSpec{
		Domain: s.domain,
		ID:     s.deviceID,
		Name:   s.deviceName,
	}
	for _, sm := range assigned {
		spec.Nodes = append(spec.Nodes, nodeSpec(sm))
	}

	device, err := homie.NewDevice(spec, s.pub)
	if err != nil {
		return fmt.Errorf("bridge: building device tree: %w", err)
	}
	if err := device.Start(); err != nil {
		// Partially registered; left nil so the next cycle rebuilds.
		return fmt.Errorf("bridge: registering device tree: %w", err)
	}

	s.device = device
	s.slugs = make(map[string]struct{}, len(assigned))
	for _, sm := range assigned {
		s.slugs[sm.slug] = struct{}{}
	}

	s.log.Info("device tree rebuilt", "nodes", len(assigned))

	return s.update(assigned)
}

// nodeSpec builds the Homie node description for one module: the condition
// properties it reports plus one float property per dashboard measurement.
func nodeSpec(sm sluggedModule) homie.NodeSpec {
	m := sm.module

	name := m.Name
	if name == "" {
		name = m.Type
	}

	ns := homie.NodeSpec{
		ID:   sm.slug,
		Name: name,
		Type: m.Type,
	}

	for _, cp := range conditionProperties {
		if cp.present(m) {
			ns.Properties = append(ns.Properties, cp.spec)
		}
	}

	for _, meas := range m.Dashboard.Measurements() {
		meta := measurements[meas.Field]
		ns.Properties = append(ns.Properties, homie.PropertySpec{
			ID:       meas.Field,
			Name:     meta.Name,
			Datatype: homie.DatatypeFloat,
			Unit:     meta.Unit,
		})
	}

	return ns
}

// update pushes current values into the existing tree.
func (s *synchronizer) update(assigned []sluggedModule) error {
	for _, sm := range assigned {
		node, err := s.device.Node(sm.slug)
		if err != nil {
			s.log.Warn("module missing from published tree", "slug", sm.slug)
			continue
		}
		if err := s.applyValues(node, sm.module); err != nil {
			return err
		}
	}
	return nil
}

// applyValues publishes a module's current condition and measurement
// values. A module with no dashboard data keeps its last published
// measurements (a temporarily unreachable module should not zero out its
// history on the broker).
func (s *synchronizer) applyValues(node *homie.Node, m netatmo.Module) error {
	for _, cp := range conditionProperties {
		if !cp.present(m) {
			continue
		}
		prop, err := node.Property(cp.spec.ID)
		if err != nil {
			s.log.Warn("condition property missing from node", "property", cp.spec.ID, "error", err)
			continue
		}
		if err := prop.Set(cp.value(m)); err != nil {
			return err
		}
	}

	if m.Dashboard == nil {
		s.log.Warn("module reports no dashboard data, keeping last published measurements",
			"id", m.ID, "name", m.Name)
		return nil
	}

	for _, meas := range m.Dashboard.Measurements() {
		prop, err := node.Property(meas.Field)
		if err != nil {
			// A sensor appearing without a topology change; the property
			// gets declared on the next rebuild.
			s.log.Warn("measurement has no declared property yet", "property", meas.Field)
			continue
		}
		if err := prop.SetFloat(meas.Value); err != nil {
			return err
		}
	}

	return nil
}
