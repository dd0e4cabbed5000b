package planfile

import (
	"os"
	"sort"

	"github.com/cockroachdb/errors"
	"gopkg.in/yaml.v2"

	"github.com/eigerco/objstore/internal/bridge"
)

// ErrInvalidPlan is returned for migration plans and batches that parse but
// do not describe valid actions.
var ErrInvalidPlan = errors.New("invalid plan")

// Migration is a versioned schema plan. Each step lists the actions that
// move the database to its version from the version before it.
//
//	versions:
//	  - version: 1
//	    actions:
//	      - op: addStore
//	        name: users
//	        keyPath: id
//	      - op: addIndex
//	        store: users
//	        name: byEmail
//	        keyPath: email
//	        unique: true
type Migration struct {
	Versions []Step `yaml:"versions"`
}

type Step struct {
	Version uint64   `yaml:"version"`
	Actions []Action `yaml:"actions"`
}

// Action is one upgrade action. Name is the store name for addStore and
// deleteStore, and the index name for addIndex and deleteIndex.
type Action struct {
	Op            string      `yaml:"op"`
	Name          string      `yaml:"name"`
	Store         string      `yaml:"store"`
	KeyPath       KeyPathSpec `yaml:"keyPath"`
	AutoIncrement bool        `yaml:"autoIncrement"`
	Unique        bool        `yaml:"unique"`
	MultiEntry    bool        `yaml:"multiEntry"`
}

// KeyPathSpec accepts a string or a list of strings. The zero value is no
// key path.
type KeyPathSpec struct {
	bridge.KeyPath
}

func (k *KeyPathSpec) UnmarshalYAML(unmarshal func(any) error) error {
	var single string
	if err := unmarshal(&single); err == nil {
		k.KeyPath = bridge.SingleKeyPath{Path: single}
		return nil
	}
	var multi []string
	if err := unmarshal(&multi); err != nil {
		return errors.Wrap(ErrInvalidPlan, "keyPath must be a string or a list of strings")
	}
	k.KeyPath = bridge.MultiKeyPath{Paths: multi}
	return nil
}

func LoadMigration(path string) (*Migration, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "read migration plan")
	}
	return ParseMigration(data)
}

// ParseMigration decodes a YAML plan. Versions must be positive and
// strictly increasing; unknown fields are rejected.
func ParseMigration(data []byte) (*Migration, error) {
	var m Migration
	if err := yaml.UnmarshalStrict(data, &m); err != nil {
		return nil, errors.Wrap(err, "parse migration plan")
	}

	var prev uint64
	for i, step := range m.Versions {
		if step.Version == 0 || step.Version <= prev {
			return nil, errors.Wrapf(ErrInvalidPlan, "step %d: version %d must be greater than %d", i, step.Version, prev)
		}
		prev = step.Version
		for j, a := range step.Actions {
			if _, err := a.UpgradeAction(); err != nil {
				return nil, errors.Wrapf(err, "version %d action %d", step.Version, j)
			}
		}
	}
	return &m, nil
}

// Latest is the highest version in the plan, or 0 for an empty plan.
func (m *Migration) Latest() uint64 {
	if len(m.Versions) == 0 {
		return 0
	}
	return m.Versions[len(m.Versions)-1].Version
}

// Upgrade returns the actions of every step with old < version <= new, in
// version order.
func (m *Migration) Upgrade() bridge.UpgradeFunc {
	steps := append([]Step(nil), m.Versions...)
	sort.Slice(steps, func(i, j int) bool { return steps[i].Version < steps[j].Version })

	return func(oldVersion, newVersion uint64) []bridge.UpgradeAction {
		var out []bridge.UpgradeAction
		for _, step := range steps {
			if step.Version <= oldVersion || step.Version > newVersion {
				continue
			}
			for _, a := range step.Actions {
				// Validated by ParseMigration.
				action, _ := a.UpgradeAction()
				out = append(out, action)
			}
		}
		return out
	}
}

// UpgradeAction converts a to its bridge form.
func (a Action) UpgradeAction() (bridge.UpgradeAction, error) {
	switch a.Op {
	case "addStore":
		if a.Name == "" {
			return nil, errors.Wrap(ErrInvalidPlan, "addStore needs a name")
		}
		return bridge.AddStore{Name: a.Name, Options: bridge.StoreOptions{
			KeyPath:       a.KeyPath.KeyPath,
			AutoIncrement: a.AutoIncrement,
		}}, nil
	case "deleteStore":
		if a.Name == "" {
			return nil, errors.Wrap(ErrInvalidPlan, "deleteStore needs a name")
		}
		return bridge.DeleteStore{Name: a.Name}, nil
	case "addIndex":
		if a.Store == "" || a.Name == "" {
			return nil, errors.Wrap(ErrInvalidPlan, "addIndex needs a store and a name")
		}
		return bridge.AddIndex{Store: a.Store, Index: a.Name, KeyPath: a.KeyPath.KeyPath, Options: bridge.IndexOptions{
			Unique:     a.Unique,
			MultiEntry: a.MultiEntry,
		}}, nil
	case "deleteIndex":
		if a.Store == "" || a.Name == "" {
			return nil, errors.Wrap(ErrInvalidPlan, "deleteIndex needs a store and a name")
		}
		return bridge.DeleteIndex{Store: a.Store, Index: a.Name}, nil
	default:
		return nil, errors.Wrapf(ErrInvalidPlan, "unknown op %q", a.Op)
	}
}
