package loader

import (
	"os"
	"strings"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/lorekeeper/pkg/model"
	"gopkg.in/yaml.v3"
)

// Config is the structure of a collection mapping file:
//
//	sources:
//	  - collection: default
//	    directory: general
type Config struct {
	Sources []model.CollectionSource `yaml:"sources"`
}

// LoadSources reads a collection mapping file. An empty path returns the defaults.
func LoadSources(path string) ([]model.CollectionSource, error) {
	if path == "" {
		return model.DefaultCollectionSources(), nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to read collection mapping file", goerr.V("path", path))
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, goerr.Wrap(err, "failed to parse collection mapping file", goerr.V("path", path))
	}
	if len(cfg.Sources) == 0 {
		return nil, goerr.New("collection mapping file has no sources", goerr.V("path", path))
	}

	for i, src := range cfg.Sources {
		if src.Collection == "" || src.Directory == "" {
			return nil, goerr.New("collection and directory are required",
				goerr.V("path", path),
				goerr.V("index", i))
		}
		if strings.Contains(src.Directory, "..") || strings.HasPrefix(src.Directory, "/") {
			return nil, goerr.New("directory must stay inside the knowledge root",
				goerr.V("path", path),
				goerr.V("directory", src.Directory))
		}
	}

	return cfg.Sources, nil
}
