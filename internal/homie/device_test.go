package homie

import (
	"errors"
	"testing"
)

// recordingPublisher captures retained publishes in order.
type recordingPublisher struct {
	messages []publishedMessage
	failOn   string // topic that triggers an error, for failure-path tests
}

type publishedMessage struct {
	topic   string
	payload string
}

func (r *recordingPublisher) PublishRetained(topic string, payload []byte) error {
	if r.failOn != "" && topic == r.failOn {
		return errors.New("broker unavailable")
	}
	r.messages = append(r.messages, publishedMessage{topic: topic, payload: string(payload)})
	return nil
}

// get returns the last payload published to topic, or "" if none.
func (r *recordingPublisher) get(topic string) (string, bool) {
	for i := len(r.messages) - 1; i >= 0; i-- {
		if r.messages[i].topic == topic {
			return r.messages[i].payload, true
		}
	}
	return "", false
}

// testSpec returns a small two-node device description.
func testSpec() DeviceSpec {
	return DeviceSpec{
		Domain: "homie",
		ID:     "netatmo",
		Name:   "Netatmo Weather Station",
		Nodes: []NodeSpec{
			{
				ID:   "namain-indoor",
				Name: "Indoor",
				Type: "NAMain",
				Properties: []PropertySpec{
					{ID: "temperature", Name: "Temperature", Datatype: DatatypeFloat, Unit: "°C"},
					{ID: "reachable", Name: "Reachable", Datatype: DatatypeBoolean},
				},
			},
			{
				ID:   "namodule1-garden",
				Name: "Garden",
				Type: "NAModule1",
				Properties: []PropertySpec{
					{ID: "battery", Name: "Battery", Datatype: DatatypeInteger, Unit: "%", Format: "0:100"},
				},
			},
		},
	}
}

func TestNewDevice_InvalidIDs(t *testing.T) {
	tests := []struct {
		name   string
		modify func(spec *DeviceSpec)
	}{
		{name: "empty device id", modify: func(s *DeviceSpec) { s.ID = "" }},
		{name: "uppercase device id", modify: func(s *DeviceSpec) { s.ID = "Netatmo" }},
		{name: "leading hyphen domain", modify: func(s *DeviceSpec) { s.Domain = "-homie" }},
		{name: "invalid node id", modify: func(s *DeviceSpec) { s.Nodes[0].ID = "in door" }},
		{name: "invalid property id", modify: func(s *DeviceSpec) { s.Nodes[0].Properties[0].ID = "Temp_C" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			spec := testSpec()
			tt.modify(&spec)

			_, err := NewDevice(spec, &recordingPublisher{})
			if !errors.Is(err, ErrInvalidID) {
				t.Errorf("NewDevice() error = %v, want ErrInvalidID", err)
			}
		})
	}
}

func TestNewDevice_DuplicateNode(t *testing.T) {
	spec := testSpec()
	spec.Nodes = append(spec.Nodes, spec.Nodes[0])

	_, err := NewDevice(spec, &recordingPublisher{})
	if !errors.Is(err, ErrDuplicateID) {
		t.Errorf("NewDevice() error = %v, want ErrDuplicateID", err)
	}
}

func TestStart_PublishesDescription(t *testing.T) {
	pub := &recordingPublisher{}
	device, err := NewDevice(testSpec(), pub)
	if err != nil {
		t.Fatalf("NewDevice() error = %v", err)
	}

	if err := device.Start(); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	want := map[string]string{
		"homie/netatmo/$homie":                              "4.0.0",
		"homie/netatmo/$name":                               "Netatmo Weather Station",
		"homie/netatmo/$nodes":                              "namain-indoor,namodule1-garden",
		"homie/netatmo/namain-indoor/$name":                 "Indoor",
		"homie/netatmo/namain-indoor/$type":                 "NAMain",
		"homie/netatmo/namain-indoor/$properties":           "temperature,reachable",
		"homie/netatmo/namain-indoor/temperature/$datatype": "float",
		"homie/netatmo/namain-indoor/temperature/$unit":     "°C",
		"homie/netatmo/namain-indoor/temperature/$settable": "false",
		"homie/netatmo/namain-indoor/temperature/$retained": "true",
		"homie/netatmo/namodule1-garden/battery/$datatype":  "integer",
		"homie/netatmo/namodule1-garden/battery/$format":    "0:100",
	}
	for topic, value := range want {
		got, ok := pub.get(topic)
		if !ok {
			t.Errorf("Start() did not publish %s", topic)
			continue
		}
		if got != value {
			t.Errorf("Start() published %s = %q, want %q", topic, got, value)
		}
	}

	// $state must begin at init and end at ready, after all attributes.
	if pub.messages[0].topic != "homie/netatmo/$state" || pub.messages[0].payload != StateInit {
		t.Errorf("first publish = %v, want $state init", pub.messages[0])
	}
	last := pub.messages[len(pub.messages)-1]
	if last.topic != "homie/netatmo/$state" || last.payload != StateReady {
		t.Errorf("last publish = %v, want $state ready", last)
	}
}

func TestStart_PublishFailure(t *testing.T) {
	pub := &recordingPublisher{failOn: "homie/netatmo/namain-indoor/$name"}
	device, err := NewDevice(testSpec(), pub)
	if err != nil {
		t.Fatalf("NewDevice() error = %v", err)
	}

	if err := device.Start(); err == nil {
		t.Fatal("Start() expected error when a publish fails")
	}

	// Device must not have been announced ready.
	if state, _ := pub.get("homie/netatmo/$state"); state == StateReady {
		t.Error("$state = ready after failed Start(), want not ready")
	}
}

func TestStop(t *testing.T) {
	pub := &recordingPublisher{}
	device, err := NewDevice(testSpec(), pub)
	if err != nil {
		t.Fatalf("NewDevice() error = %v", err)
	}

	if err := device.Stop(); err != nil {
		t.Fatalf("Stop() error = %v", err)
	}

	if state, _ := pub.get("homie/netatmo/$state"); state != StateDisconnected {
		t.Errorf("$state = %q after Stop(), want %q", state, StateDisconnected)
	}
}

func TestPropertySet(t *testing.T) {
	pub := &recordingPublisher{}
	device, err := NewDevice(testSpec(), pub)
	if err != nil {
		t.Fatalf("NewDevice() error = %v", err)
	}

	node, err := device.Node("namodule1-garden")
	if err != nil {
		t.Fatalf("Node() error = %v", err)
	}
	prop, err := node.Property("battery")
	if err != nil {
		t.Fatalf("Property() error = %v", err)
	}

	if err := prop.SetInt(80); err != nil {
		t.Fatalf("SetInt() error = %v", err)
	}

	if got, _ := pub.get("homie/netatmo/namodule1-garden/battery"); got != "80" {
		t.Errorf("battery value = %q, want %q", got, "80")
	}
}

func TestPropertySetFormats(t *testing.T) {
	pub := &recordingPublisher{}
	device, err := NewDevice(testSpec(), pub)
	if err != nil {
		t.Fatalf("NewDevice() error = %v", err)
	}

	node, _ := device.Node("namain-indoor")

	temp, _ := node.Property("temperature")
	if err := temp.SetFloat(21.5); err != nil {
		t.Fatalf("SetFloat() error = %v", err)
	}
	if got, _ := pub.get("homie/netatmo/namain-indoor/temperature"); got != "21.5" {
		t.Errorf("temperature value = %q, want %q", got, "21.5")
	}

	reachable, _ := node.Property("reachable")
	if err := reachable.SetBool(true); err != nil {
		t.Fatalf("SetBool() error = %v", err)
	}
	if got, _ := pub.get("homie/netatmo/namain-indoor/reachable"); got != "true" {
		t.Errorf("reachable value = %q, want %q", got, "true")
	}
}

func TestLookupErrors(t *testing.T) {
	device, err := NewDevice(testSpec(), &recordingPublisher{})
	if err != nil {
		t.Fatalf("NewDevice() error = %v", err)
	}

	if _, err := device.Node("missing"); !errors.Is(err, ErrUnknownNode) {
		t.Errorf("Node(missing) error = %v, want ErrUnknownNode", err)
	}

	node, _ := device.Node("namain-indoor")
	if _, err := node.Property("missing"); !errors.Is(err, ErrUnknownProperty) {
		t.Errorf("Property(missing) error = %v, want ErrUnknownProperty", err)
	}
}

func TestStateTopic(t *testing.T) {
	if got := StateTopic("homie", "netatmo"); got != "homie/netatmo/$state" {
		t.Errorf("StateTopic() = %q, want %q", got, "homie/netatmo/$state")
	}
}
