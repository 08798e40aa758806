package registry

import (
	"os"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"
)

// citiesFile is the on-disk shape of an operator-supplied registry.
type citiesFile struct {
	Cities []City `yaml:"cities"`
}

// LoadCitiesFromFile reads a YAML city registry from the given path. Cities
// in the file shadow built-in entries with the same name.
func LoadCitiesFromFile(path string) (Registry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrap(err, "registry: read cities file")
	}

	var file citiesFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, eris.Wrap(err, "registry: unmarshal cities file")
	}

	reg := Builtin()
	for _, c := range file.Cities {
		if c.Name == "" {
			return nil, eris.New("registry: cities file entry missing name")
		}
		if len(c.BBox) < 4 {
			return nil, eris.Errorf("registry: city %q bbox has %d vertices, need at least 4", c.Name, len(c.BBox))
		}
		reg[c.Name] = c
	}
	return reg, nil
}
