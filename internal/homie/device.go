package homie

import (
	"fmt"
	"strconv"
	"strings"
)

// protocolVersion is the Homie convention version this package implements.
const protocolVersion = "4.0.0"

// Device states defined by the convention.
const (
	StateInit         = "init"
	StateReady        = "ready"
	StateDisconnected = "disconnected"
	StateLost         = "lost"
)

// Datatype is a Homie property datatype.
type Datatype string

// Property datatypes used by the bridge. The convention defines more
// (enum, color, datetime) but sensor telemetry needs only these four.
const (
	DatatypeString  Datatype = "string"
	DatatypeInteger Datatype = "integer"
	DatatypeBoolean Datatype = "boolean"
	DatatypeFloat   Datatype = "float"
)

// Publisher sends retained messages to the broker. Satisfied by
// *mqtt.Client; kept as an interface so tests can record publishes.
type Publisher interface {
	PublishRetained(topic string, payload []byte) error
}

// PropertySpec describes a single read-only property.
type PropertySpec struct {
	ID       string
	Name     string
	Datatype Datatype
	Unit     string // optional, e.g. "°C"
	Format   string // optional, e.g. "0:100"
}

// NodeSpec describes a node and its properties.
type NodeSpec struct {
	ID         string
	Name       string
	Type       string
	Properties []PropertySpec
}

// DeviceSpec describes a complete device tree.
type DeviceSpec struct {
	Domain string
	ID     string
	Name   string
	Nodes  []NodeSpec
}

// Device is a published Homie device. Constructed fully before Start;
// after Start only property values change until Stop.
//
// Device is not safe for concurrent use. The bridge engine owns the tree
// exclusively and drives it from a single goroutine (the poller).
type Device struct {
	spec  DeviceSpec
	pub   Publisher
	nodes map[string]*Node
	order []string // node IDs in spec order for $nodes
}

// Node is a published node within a Device.
type Node struct {
	spec   NodeSpec
	device *Device
	props  map[string]*Property
	order  []string
}

// Property is a single published value within a Node.
type Property struct {
	spec  PropertySpec
	topic string
	pub   Publisher
}

// NewDevice validates a device description and builds the tree.
// Call Start to register it on the broker.
//
// Returns:
//   - *Device: Constructed device, not yet published
//   - error: ErrInvalidID or ErrDuplicateID on a malformed description
func NewDevice(spec DeviceSpec, pub Publisher) (*Device, error) {
	for _, id := range []string{spec.Domain, spec.ID} {
		if !validID(id) {
			return nil, fmt.Errorf("%w: %q", ErrInvalidID, id)
		}
	}

	d := &Device{
		spec:  spec,
		pub:   pub,
		nodes: make(map[string]*Node, len(spec.Nodes)),
	}

	for _, ns := range spec.Nodes {
		if !validID(ns.ID) {
			return nil, fmt.Errorf("%w: node %q", ErrInvalidID, ns.ID)
		}
		if _, exists := d.nodes[ns.ID]; exists {
			return nil, fmt.Errorf("%w: node %q", ErrDuplicateID, ns.ID)
		}

		n := &Node{
			spec:   ns,
			device: d,
			props:  make(map[string]*Property, len(ns.Properties)),
		}
		for _, ps := range ns.Properties {
			if !validID(ps.ID) {
				return nil, fmt.Errorf("%w: property %q on node %q", ErrInvalidID, ps.ID, ns.ID)
			}
			if _, exists := n.props[ps.ID]; exists {
				return nil, fmt.Errorf("%w: property %q on node %q", ErrDuplicateID, ps.ID, ns.ID)
			}
			n.props[ps.ID] = &Property{
				spec:  ps,
				topic: fmt.Sprintf("%s/%s/%s/%s", spec.Domain, spec.ID, ns.ID, ps.ID),
				pub:   pub,
			}
			n.order = append(n.order, ps.ID)
		}

		d.nodes[ns.ID] = n
		d.order = append(d.order, ns.ID)
	}

	return d, nil
}

// StateTopic returns the $state topic for a device identity. The MQTT
// layer uses it to register the LWT before the Device itself exists.
func StateTopic(domain, deviceID string) string {
	return fmt.Sprintf("%s/%s/$state", domain, deviceID)
}

// base returns the device's topic prefix without a trailing slash.
func (d *Device) base() string {
	return d.spec.Domain + "/" + d.spec.ID
}

// Start publishes the full device description and marks the device ready.
//
// Per the convention the device announces $state "init" first, publishes
// every attribute, and flips to "ready" last — subscribers never observe a
// partially described ready device.
//
// Returns:
//   - error: First publish failure; the device should be considered
//     unregistered and Start retried after the broker recovers
func (d *Device) Start() error {
	base := d.base()

	attrs := []struct{ topic, value string }{
		{base + "/$state", StateInit},
		{base + "/$homie", protocolVersion},
		{base + "/$name", d.spec.Name},
		{base + "/$extensions", ""},
		{base + "/$nodes", strings.Join(d.order, ",")},
	}
	for _, a := range attrs {
		if err := d.pub.PublishRetained(a.topic, []byte(a.value)); err != nil {
			return fmt.Errorf("homie: publishing %s: %w", a.topic, err)
		}
	}

	for _, id := range d.order {
		if err := d.nodes[id].publishAttributes(); err != nil {
			return err
		}
	}

	if err := d.pub.PublishRetained(base+"/$state", []byte(StateReady)); err != nil {
		return fmt.Errorf("homie: publishing $state: %w", err)
	}

	return nil
}

// Stop announces the device as cleanly disconnected. The retained
// description stays on the broker; a replacement device publishing the
// same topics overwrites it.
func (d *Device) Stop() error {
	topic := d.base() + "/$state"
	if err := d.pub.PublishRetained(topic, []byte(StateDisconnected)); err != nil {
		return fmt.Errorf("homie: publishing $state: %w", err)
	}
	return nil
}

// Node looks up a node by ID.
func (d *Device) Node(id string) (*Node, error) {
	n, ok := d.nodes[id]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownNode, id)
	}
	return n, nil
}

// NodeIDs returns the device's node IDs in description order.
func (d *Device) NodeIDs() []string {
	ids := make([]string, len(d.order))
	copy(ids, d.order)
	return ids
}

// publishAttributes publishes the node's $name/$type/$properties and every
// property's attribute set.
func (n *Node) publishAttributes() error {
	base := n.device.base() + "/" + n.spec.ID

	attrs := []struct{ topic, value string }{
		{base + "/$name", n.spec.Name},
		{base + "/$type", n.spec.Type},
		{base + "/$properties", strings.Join(n.order, ",")},
	}
	for _, a := range attrs {
		if err := n.device.pub.PublishRetained(a.topic, []byte(a.value)); err != nil {
			return fmt.Errorf("homie: publishing %s: %w", a.topic, err)
		}
	}

	for _, id := range n.order {
		if err := n.props[id].publishAttributes(); err != nil {
			return err
		}
	}

	return nil
}

// Property looks up a property by ID.
func (n *Node) Property(id string) (*Property, error) {
	p, ok := n.props[id]
	if !ok {
		return nil, fmt.Errorf("%w: %q on node %q", ErrUnknownProperty, id, n.spec.ID)
	}
	return p, nil
}

// publishAttributes publishes the property description. $settable and
// $retained are fixed: the bridge exposes read-only telemetry only.
func (p *Property) publishAttributes() error {
	attrs := []struct{ topic, value string }{
		{p.topic + "/$name", p.spec.Name},
		{p.topic + "/$datatype", string(p.spec.Datatype)},
		{p.topic + "/$settable", "false"},
		{p.topic + "/$retained", "true"},
	}
	if p.spec.Unit != "" {
		attrs = append(attrs, struct{ topic, value string }{p.topic + "/$unit", p.spec.Unit})
	}
	if p.spec.Format != "" {
		attrs = append(attrs, struct{ topic, value string }{p.topic + "/$format", p.spec.Format})
	}

	for _, a := range attrs {
		if err := p.pub.PublishRetained(a.topic, []byte(a.value)); err != nil {
			return fmt.Errorf("homie: publishing %s: %w", a.topic, err)
		}
	}

	return nil
}

// Set publishes a new value for the property.
func (p *Property) Set(value string) error {
	if err := p.pub.PublishRetained(p.topic, []byte(value)); err != nil {
		return fmt.Errorf("homie: publishing %s: %w", p.topic, err)
	}
	return nil
}

// SetBool publishes a boolean value ("true"/"false" per the convention).
func (p *Property) SetBool(value bool) error {
	return p.Set(strconv.FormatBool(value))
}

// SetInt publishes an integer value.
func (p *Property) SetInt(value int) error {
	return p.Set(strconv.Itoa(value))
}

// SetFloat publishes a float value with minimal decimal representation.
func (p *Property) SetFloat(value float64) error {
	return p.Set(strconv.FormatFloat(value, 'f', -1, 64))
}

// ValidID reports whether s is a valid Homie topic identifier: non-empty,
// lowercase alphanumerics and hyphens, not starting or ending with a hyphen.
func ValidID(s string) bool {
	return validID(s)
}

func validID(s string) bool {
	if s == "" || strings.HasPrefix(s, "-") || strings.HasSuffix(s, "-") {
		return false
	}
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z':
		case r >= '0' && r <= '9':
		case r == '-':
		default:
			return false
		}
	}
	return true
}
