// Package definitions loads migration units from YAML files.
//
// The files are laid out as `<module>/<unit>.yaml`:
//
//	dependencies:
//	  - [flowcell, 0005_remove_sequencer_lanes]
//	operations:
//	  - op: add_field
//	    model: flowcell
//	    name: index1_cycles
//	    preserve_default: false
//	    field:
//	      type: PositiveSmallIntegerField
//	      default: 1
//
// `preserve_default` is true unless it is set.
package definitions

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path"
	"sort"
	"strings"
	"sync"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
	"gopkg.in/yaml.v3"

	cerrors "github.com/contiamo/schema-migrator/pkg/errors"
	"github.com/contiamo/schema-migrator/pkg/schema"
)

var extensions = []string{".yaml", ".yml"}

type dependency schema.UnitID

// UnmarshalYAML accepts both `[module, name]` and `module.name`
func (d *dependency) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind == yaml.ScalarNode {
		id, err := schema.ParseUnitID(value.Value)
		if err != nil {
			return err
		}
		*d = dependency(id)
		return nil
	}

	var pair []string
	if err := value.Decode(&pair); err != nil {
		return err
	}
	if len(pair) != 2 {
		return fmt.Errorf("line %d: a dependency is a [module, name] pair", value.Line)
	}
	*d = dependency{Module: pair[0], Name: pair[1]}
	return nil
}

type operation struct {
	schema.Operation
}

type fieldOperation struct {
	Model           string `yaml:"model"`
	Name            string `yaml:"name"`
	Field           field  `yaml:"field"`
	PreserveDefault *bool  `yaml:"preserve_default"`
}

// field decodes a schema.Field. The plain key `null` resolves to a YAML null
// and would never match the `null` struct tag, so keys are read as strings.
type field schema.Field

// UnmarshalYAML implements yaml.Unmarshaler
func (f *field) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind == yaml.MappingNode {
		for i := 0; i+1 < len(value.Content); i += 2 {
			key := value.Content[i]
			if key.Kind == yaml.ScalarNode && key.ShortTag() == "!!null" {
				key.Tag = "!!str"
				key.Style = yaml.DoubleQuotedStyle
			}
		}
	}

	var decoded schema.Field
	if err := value.Decode(&decoded); err != nil {
		return err
	}
	*f = field(decoded)
	return nil
}

func (o fieldOperation) preserve() bool {
	return o.PreserveDefault == nil || *o.PreserveDefault
}

type foreignKeyOperation struct {
	Model    string          `yaml:"model"`
	Name     string          `yaml:"name"`
	To       string          `yaml:"to"`
	OnDelete schema.OnDelete `yaml:"on_delete"`
}

// UnmarshalYAML decodes the operation variant named by `op`
func (o *operation) UnmarshalYAML(value *yaml.Node) error {
	var header struct {
		Op schema.Kind `yaml:"op"`
	}
	if err := value.Decode(&header); err != nil {
		return err
	}

	switch header.Op {
	case schema.KindAddField, schema.KindAlterField:
		var f fieldOperation
		if err := value.Decode(&f); err != nil {
			return err
		}
		if header.Op == schema.KindAddField {
			o.Operation = schema.AddField{Model: f.Model, Name: f.Name, Field: schema.Field(f.Field), PreserveDefault: f.preserve()}
		} else {
			o.Operation = schema.AlterField{Model: f.Model, Name: f.Name, Field: schema.Field(f.Field), PreserveDefault: f.preserve()}
		}
	case schema.KindAddForeignKey:
		var fk foreignKeyOperation
		if err := value.Decode(&fk); err != nil {
			return err
		}
		o.Operation = schema.AddForeignKey{Model: fk.Model, Name: fk.Name, To: fk.To, OnDelete: fk.OnDelete}
	case "":
		return fmt.Errorf("line %d: operation without op", value.Line)
	default:
		return fmt.Errorf("line %d: unknown op %q", value.Line, header.Op)
	}
	return nil
}

type document struct {
	Dependencies []dependency `yaml:"dependencies"`
	Operations   []operation  `yaml:"operations"`
}

// Parse decodes the YAML definition of a unit. Invalid definitions return a
// ConfigurationError.
func Parse(id schema.UnitID, r io.Reader) (*schema.Unit, error) {
	var doc document
	err := yaml.NewDecoder(r).Decode(&doc)
	if err != nil && err != io.EOF {
		return nil, cerrors.NewConfigurationError(id.String(), errors.Wrap(err, "can not parse the definition"))
	}

	deps := make([]schema.UnitID, 0, len(doc.Dependencies))
	for _, d := range doc.Dependencies {
		deps = append(deps, schema.UnitID(d))
	}
	ops := make([]schema.Operation, 0, len(doc.Operations))
	for _, op := range doc.Operations {
		ops = append(ops, op.Operation)
	}

	return schema.NewUnit(id, deps, ops...)
}

// Loader reads the units of every module directory of a file system
type Loader struct {
	fs http.FileSystem
}

// NewLoader creates a loader for the given file system, e.g. http.Dir("./migrations")
func NewLoader(fs http.FileSystem) *Loader {
	return &Loader{fs: fs}
}

// Load returns all units ordered by UnitID. Module directories are read concurrently.
func (l *Loader) Load(ctx context.Context) ([]*schema.Unit, error) {
	modules, err := l.readDir("/")
	if err != nil {
		return nil, err
	}

	var (
		mu    sync.Mutex
		units = []*schema.Unit{}
	)

	g, ctx := errgroup.WithContext(ctx)
	for _, module := range modules {
		if !module.IsDir() || strings.HasPrefix(module.Name(), ".") {
			continue
		}

		module := module.Name()
		g.Go(func() error {
			loaded, err := l.loadModule(ctx, module)
			if err != nil {
				return err
			}
			mu.Lock()
			defer mu.Unlock()
			units = append(units, loaded...)
			return nil
		})
	}
	if err = g.Wait(); err != nil {
		return nil, err
	}

	sort.Slice(units, func(i, j int) bool { return units[i].ID.Less(units[j].ID) })
	return units, nil
}

func (l *Loader) loadModule(ctx context.Context, module string) ([]*schema.Unit, error) {
	logger := logrus.WithContext(ctx).WithField("module", module)

	files, err := l.readDir("/" + module)
	if err != nil {
		return nil, err
	}

	units := []*schema.Unit{}
	for _, file := range files {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		name, ok := unitName(file.Name())
		if file.IsDir() || !ok {
			logger.WithField("file", file.Name()).Debug("skipping file without unit definition")
			continue
		}

		unit, err := l.loadFile(schema.UnitID{Module: module, Name: name}, path.Join("/", module, file.Name()))
		if err != nil {
			return nil, err
		}
		units = append(units, unit)
	}

	logger.WithField("units", len(units)).Debug("module loaded")
	return units, nil
}

func (l *Loader) loadFile(id schema.UnitID, filename string) (*schema.Unit, error) {
	f, err := l.fs.Open(filename)
	if err != nil {
		return nil, errors.Wrapf(err, "can not open %s", filename)
	}
	defer f.Close()

	return Parse(id, f)
}

func (l *Loader) readDir(name string) ([]os.FileInfo, error) {
	dir, err := l.fs.Open(name)
	if err != nil {
		return nil, errors.Wrapf(err, "can not open %s", name)
	}
	defer dir.Close()

	infos, err := dir.Readdir(-1)
	if err != nil {
		return nil, errors.Wrapf(err, "can not list %s", name)
	}

	sort.Slice(infos, func(i, j int) bool { return infos[i].Name() < infos[j].Name() })
	return infos, nil
}

func unitName(filename string) (string, bool) {
	for _, ext := range extensions {
		if strings.HasSuffix(filename, ext) {
			return strings.TrimSuffix(filename, ext), true
		}
	}
	return "", false
}
