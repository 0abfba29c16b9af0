package persist

import (
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"github.com/teranos/typegraph/errors"
	"github.com/teranos/typegraph/graph"
)

// SaveFile writes a model to path, choosing the format by extension:
// .tgxml for the XML document, .tgdb for a sqlite snapshot.
func SaveFile(path string, m *graph.Model, log *zap.SugaredLogger) error {
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case XMLExtension:
		f, err := os.Create(path)
		if err != nil {
			return errors.Wrapf(err, "create %s", path)
		}
		if err := SaveXML(f, m); err != nil {
			f.Close()
			return err
		}
		return f.Close()
	case SQLiteExtension:
		s, err := OpenStore(path, log)
		if err != nil {
			return err
		}
		defer s.Close()
		return s.Save(m)
	default:
		return errors.Newf("unknown graph file extension %q (want %s or %s)",
			ext, XMLExtension, SQLiteExtension)
	}
}

// LoadFile reads a model from path, choosing the format by extension.
func LoadFile(path string, log *zap.SugaredLogger) (*graph.Model, error) {
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case XMLExtension:
		f, err := os.Open(path)
		if err != nil {
			return nil, errors.Wrapf(err, "open %s", path)
		}
		defer f.Close()
		return LoadXML(f, log)
	case SQLiteExtension:
		s, err := OpenStore(path, log)
		if err != nil {
			return nil, err
		}
		defer s.Close()
		return s.Load()
	default:
		return nil, errors.Newf("unknown graph file extension %q (want %s or %s)",
			ext, XMLExtension, SQLiteExtension)
	}
}
