package cluster

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v6"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

// stateVersion is written into every persisted document.
const stateVersion = 1

//go:embed schema/state.schema.json
var stateSchemaBytes []byte

var (
	stateSchema     *jsonschema.Schema
	stateSchemaOnce sync.Once
	stateSchemaErr  error
	printer         = message.NewPrinter(language.English)
)

// errCorruptState marks persisted data that cannot be trusted.
var errCorruptState = errors.New("corrupt cluster state")

// State is the registry contents: the ordered clusters and the active name.
type State struct {
	Clusters   []Cluster `json:"clusters"`
	ActiveName string    `json:"activeName"`
}

// document is the persisted form of State. Active flags are derived and
// therefore not part of it.
type document struct {
	Version    int             `json:"version"`
	Clusters   []storedCluster `json:"clusters"`
	ActiveName string          `json:"activeName"`
}

type storedCluster struct {
	Name     string  `json:"name"`
	Network  Network `json:"network"`
	Endpoint string  `json:"endpoint"`
}

// Clone returns a deep copy of the state with Active flags recomputed.
func (s State) Clone() State {
	out := State{
		Clusters:   make([]Cluster, len(s.Clusters)),
		ActiveName: s.ActiveName,
	}
	for i, c := range s.Clusters {
		c.Active = c.Name == s.ActiveName
		out.Clusters[i] = c
	}
	return out
}

// Equal reports whether two states hold the same ordered clusters and active name.
func (s State) Equal(other State) bool {
	if s.ActiveName != other.ActiveName || len(s.Clusters) != len(other.Clusters) {
		return false
	}
	for i := range s.Clusters {
		a, b := s.Clusters[i], other.Clusters[i]
		if a.Name != b.Name || a.Network != b.Network || a.Endpoint != b.Endpoint {
			return false
		}
	}
	return true
}

// index returns the position of the named cluster, or -1.
func (s State) index(name string) int {
	for i, c := range s.Clusters {
		if c.Name == name {
			return i
		}
	}
	return -1
}

// Check verifies the registry invariants: at least one cluster, every cluster
// valid, unique names, and an active name that refers to a cluster.
func (s State) Check() error {
	if len(s.Clusters) == 0 {
		return fmt.Errorf("%w: no clusters", ErrInvariantViolation)
	}

	seen := make(map[string]bool, len(s.Clusters))
	for i := range s.Clusters {
		c := s.Clusters[i]
		if err := c.Validate(); err != nil {
			return fmt.Errorf("%w: %v", ErrInvariantViolation, err)
		}
		if seen[c.Name] {
			return fmt.Errorf("%w: duplicate cluster name %q", ErrInvariantViolation, c.Name)
		}
		seen[c.Name] = true
	}

	if !seen[s.ActiveName] {
		return fmt.Errorf("%w: active cluster %q is not registered", ErrInvariantViolation, s.ActiveName)
	}

	return nil
}

// EncodeState serializes the state into its persisted JSON form.
func EncodeState(s State) ([]byte, error) {
	doc := document{
		Version:    stateVersion,
		Clusters:   make([]storedCluster, len(s.Clusters)),
		ActiveName: s.ActiveName,
	}
	for i, c := range s.Clusters {
		doc.Clusters[i] = storedCluster{Name: c.Name, Network: c.Network, Endpoint: c.Endpoint}
	}

	data, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal cluster state: %w", err)
	}
	return data, nil
}

// DecodeState parses persisted JSON, validates it against the embedded schema
// and checks the registry invariants. Any failure wraps errCorruptState.
func DecodeState(data []byte) (State, error) {
	if err := validateDocument(data); err != nil {
		return State{}, fmt.Errorf("%w: %v", errCorruptState, err)
	}

	var doc document
	if err := json.Unmarshal(data, &doc); err != nil {
		return State{}, fmt.Errorf("%w: %v", errCorruptState, err)
	}

	s := State{
		Clusters:   make([]Cluster, len(doc.Clusters)),
		ActiveName: doc.ActiveName,
	}
	for i, c := range doc.Clusters {
		if c.Network == "" {
			c.Network = NetworkCustom
		}
		s.Clusters[i] = Cluster{Name: c.Name, Network: c.Network, Endpoint: c.Endpoint}
	}

	if err := s.Check(); err != nil {
		return State{}, fmt.Errorf("%w: %v", errCorruptState, err)
	}

	return s.Clone(), nil
}

// getStateSchema compiles the embedded JSON schema once and returns it.
func getStateSchema() (*jsonschema.Schema, error) {
	stateSchemaOnce.Do(func() {
		doc, err := jsonschema.UnmarshalJSON(bytes.NewReader(stateSchemaBytes))
		if err != nil {
			stateSchemaErr = fmt.Errorf("unmarshaling state schema: %w", err)
			return
		}

		c := jsonschema.NewCompiler()
		if err := c.AddResource("state.schema.json", doc); err != nil {
			stateSchemaErr = fmt.Errorf("adding state schema resource: %w", err)
			return
		}
		stateSchema, stateSchemaErr = c.Compile("state.schema.json")
		if stateSchemaErr != nil {
			stateSchemaErr = fmt.Errorf("compiling state schema: %w", stateSchemaErr)
		}
	})
	return stateSchema, stateSchemaErr
}

func validateDocument(data []byte) error {
	schema, err := getStateSchema()
	if err != nil {
		return err
	}

	inst, err := jsonschema.UnmarshalJSON(bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("parsing JSON: %w", err)
	}

	err = schema.Validate(inst)
	if err == nil {
		return nil
	}

	var ve *jsonschema.ValidationError
	if !errors.As(err, &ve) {
		return err
	}

	var issues []string
	collectIssues(ve, &issues)
	if len(issues) == 0 {
		return ve
	}
	return errors.New(strings.Join(issues, "; "))
}

// collectIssues walks the validation error tree and records leaf messages.
func collectIssues(ve *jsonschema.ValidationError, issues *[]string) {
	if len(ve.Causes) == 0 {
		msg := ve.Error()
		if ve.ErrorKind != nil {
			msg = ve.ErrorKind.LocalizedString(printer)
		}
		*issues = append(*issues, "/"+strings.Join(ve.InstanceLocation, "/")+": "+msg)
		return
	}
	for _, cause := range ve.Causes {
		collectIssues(cause, issues)
	}
}
