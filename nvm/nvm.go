// Package nvm persists small key/value settings across restarts.
package nvm

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"go.yaml.in/yaml/v4"
)

// Namespace groups the board settings inside the storage file.
const Namespace = "storage"

const (
	KeyCurrentLimit = "current_limit"
	KeyFrequency    = "frequency"
)

var ErrNotFound = errors.New("key not found")

type Store interface {
	Save(key, value string) error
	Load(key string) (string, error)
}

// File is a Store backed by a YAML document.
// Every Save rewrites the whole document through a temporary file so a crash never leaves it truncated.
type File struct {
	mu        sync.Mutex
	filename  string
	namespace string
	data      map[string]map[string]string
}

func Open(filename string) (*File, error) {
	f := &File{
		filename:  filename,
		namespace: Namespace,
		data:      make(map[string]map[string]string),
	}

	payload, err := os.ReadFile(filename)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return f, nil
		}
		return nil, fmt.Errorf("nvm: %w", err)
	}

	if err := yaml.Unmarshal(payload, &f.data); err != nil {
		return nil, fmt.Errorf("nvm: %s: %w", filename, err)
	}
	if f.data == nil {
		f.data = make(map[string]map[string]string)
	}

	return f, nil
}

func (f *File) Load(key string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	value, ok := f.data[f.namespace][key]
	if !ok {
		return "", fmt.Errorf("%s: %w", key, ErrNotFound)
	}
	return value, nil
}

func (f *File) Save(key, value string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	ns, ok := f.data[f.namespace]
	if !ok {
		ns = make(map[string]string)
		f.data[f.namespace] = ns
	}

	previous, existed := ns[key]
	ns[key] = value

	if err := f.flush(); err != nil {
		if existed {
			ns[key] = previous
		} else {
			delete(ns, key)
		}
		return fmt.Errorf("nvm: save %s: %w", key, err)
	}

	return nil
}

func (f *File) flush() error {
	payload, err := yaml.Marshal(f.data)
	if err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(f.filename), 0o755); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(filepath.Dir(f.filename), "."+filepath.Base(f.filename)+".*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name()) // No-op once renamed.

	if _, err := tmp.Write(payload); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}

	return os.Rename(tmp.Name(), f.filename)
}

// Memory is a volatile Store.
type Memory struct {
	mu   sync.Mutex
	data map[string]string
}

func NewMemory() *Memory {
	return &Memory{data: make(map[string]string)}
}

func (m *Memory) Load(key string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	value, ok := m.data[key]
	if !ok {
		return "", fmt.Errorf("%s: %w", key, ErrNotFound)
	}
	return value, nil
}

func (m *Memory) Save(key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.data[key] = value
	return nil
}
