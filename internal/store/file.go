package store

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/msageha/steplock/internal/lock"
	"github.com/msageha/steplock/internal/model"
	yamlutil "github.com/msageha/steplock/internal/yaml"
	yamlv3 "gopkg.in/yaml.v3"
)

const defaultMaxFileBytes = 1048576

var keyFileTypes = map[string]string{
	KeyGoals:     model.FileTypeGoalState,
	KeySelection: model.FileTypeSelectionState,
	KeyUnlock:    model.FileTypeUnlockState,
}

// FileStore keeps one YAML document per key under <steplockDir>/state.
// Writes are atomic (temp file + rename) and keep a .bak of the previous
// document. Corrupted documents are quarantined on load.
type FileStore struct {
	steplockDir string
	maxBytes    int
	lockMap     *lock.MutexMap
}

func NewFileStore(steplockDir string, maxBytes int) *FileStore {
	if maxBytes <= 0 {
		maxBytes = defaultMaxFileBytes
	}
	return &FileStore{
		steplockDir: steplockDir,
		maxBytes:    maxBytes,
		lockMap:     lock.NewMutexMap(),
	}
}

func (fs *FileStore) Path(key string) string {
	return filepath.Join(fs.steplockDir, "state", key+".yaml")
}

func (fs *FileStore) Load(key string, out any) (bool, error) {
	fileType, ok := keyFileTypes[key]
	if !ok {
		return false, &PersistenceError{Op: "load", Key: key, Err: fmt.Errorf("unknown store key")}
	}

	fs.lockMap.Lock("store:" + key)
	defer fs.lockMap.Unlock("store:" + key)

	path := fs.Path(key)
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, &PersistenceError{Op: "load", Key: key, Err: err}
	}
	if info.Size() > int64(fs.maxBytes) {
		return false, &PersistenceError{Op: "load", Key: key,
			Err: fmt.Errorf("file size %d exceeds limit %d", info.Size(), fs.maxBytes)}
	}

	content, err := os.ReadFile(path)
	if err != nil {
		return false, &PersistenceError{Op: "load", Key: key, Err: err}
	}

	if err := yamlutil.ValidateHeader(content, fileType); err != nil {
		if rerr := yamlutil.RecoverCorruptedFile(fs.steplockDir, path, fileType); rerr != nil {
			return false, &PersistenceError{Op: "load", Key: key,
				Err: fmt.Errorf("invalid document (%v), recovery failed: %w", err, rerr)}
		}
		return false, &PersistenceError{Op: "load", Key: key,
			Err: fmt.Errorf("invalid document, quarantined: %w", err)}
	}

	if err := yamlv3.Unmarshal(content, out); err != nil {
		return false, &PersistenceError{Op: "load", Key: key, Err: err}
	}
	return true, nil
}

func (fs *FileStore) Save(key string, v any) error {
	if _, ok := keyFileTypes[key]; !ok {
		return &PersistenceError{Op: "save", Key: key, Err: fmt.Errorf("unknown store key")}
	}

	fs.lockMap.Lock("store:" + key)
	defer fs.lockMap.Unlock("store:" + key)

	path := fs.Path(key)
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return &PersistenceError{Op: "save", Key: key, Err: err}
	}
	if err := yamlutil.AtomicWrite(path, v); err != nil {
		return &PersistenceError{Op: "save", Key: key, Err: err}
	}
	return nil
}

func (fs *FileStore) Delete(key string) error {
	if _, ok := keyFileTypes[key]; !ok {
		return &PersistenceError{Op: "delete", Key: key, Err: fmt.Errorf("unknown store key")}
	}

	fs.lockMap.Lock("store:" + key)
	defer fs.lockMap.Unlock("store:" + key)

	if err := os.Remove(fs.Path(key)); err != nil && !os.IsNotExist(err) {
		return &PersistenceError{Op: "delete", Key: key, Err: err}
	}
	return nil
}
