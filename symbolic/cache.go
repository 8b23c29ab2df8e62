package symbolic

import (
	"encoding/gob"
	"fmt"
	"os"
	"path/filepath"

	"github.com/Ange-Michel/wholebody/logging"
)

// Compiled programs can be persisted to disk keyed by the structural hash of
// the expression matrix and input list. Load failures of any kind discard
// the artifact and fall back to recompilation; there are no partial loads.

func cacheFile(dir string, key uint64) string {
	return filepath.Join(dir, fmt.Sprintf("%016x.evaluator", key))
}

// SaveProgram writes p into dir under key.
func SaveProgram(dir string, key uint64, p *Program) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	f, err := os.Create(cacheFile(dir, key))
	if err != nil {
		return err
	}
	defer f.Close()
	return gob.NewEncoder(f).Encode(p)
}

// LoadProgram reads the program cached under key, reporting whether one was
// usable. Corrupt files are deleted.
func LoadProgram(dir string, key uint64, logger logging.Logger) (*Program, bool) {
	name := cacheFile(dir, key)
	f, err := os.Open(name)
	if err != nil {
		return nil, false
	}
	defer f.Close()
	var p Program
	if err := gob.NewDecoder(f).Decode(&p); err != nil {
		f.Close()
		os.Remove(name)
		if logger != nil {
			logger.Errorf("deleted %s because it was corrupted: %v", name, err)
		}
		return nil, false
	}
	if p.NRegs < len(p.Syms) || p.OutputLen() != len(p.Outs) {
		os.Remove(name)
		if logger != nil {
			logger.Errorf("deleted %s because its contents were inconsistent", name)
		}
		return nil, false
	}
	return &p, true
}

// CompileCached compiles m over syms, consulting the disk cache in dir when
// dir is nonempty.
func CompileCached(dir string, m Mat, syms []Symbol, logger logging.Logger) (*Program, error) {
	if dir == "" {
		return Compile(m, syms)
	}
	key := StructuralHash(m, syms)
	if p, ok := LoadProgram(dir, key, logger); ok {
		return p, nil
	}
	p, err := Compile(m, syms)
	if err != nil {
		return nil, err
	}
	if err := SaveProgram(dir, key, p); err != nil && logger != nil {
		logger.Warnf("could not persist compiled evaluator: %v", err)
	}
	return p, nil
}
