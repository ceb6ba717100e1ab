package storage

import (
	"context"
	"sync"

	"github.com/eidolon-labs/notesync/internal/client/payload"
)

// InMemoryDevice is a DeviceInterface implementation backed by plain maps,
// used by sync-engine and storage-service unit tests that want an
// isolated, fast, DB-free fixture rather than a real SQLite file.
type InMemoryDevice struct {
	mu       sync.Mutex
	kv       map[string][]byte
	payloads map[string]payload.Payload
	keychain map[string][]byte
}

func NewInMemoryDevice() *InMemoryDevice {
	return &InMemoryDevice{
		kv:       make(map[string][]byte),
		payloads: make(map[string]payload.Payload),
		keychain: make(map[string][]byte),
	}
}

func (d *InMemoryDevice) GetRawStorageValue(_ context.Context, key string) ([]byte, bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	v, ok := d.kv[key]
	return v, ok, nil
}

func (d *InMemoryDevice) SetRawStorageValue(_ context.Context, key string, value []byte) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.kv[key] = append([]byte(nil), value...)
	return nil
}

func (d *InMemoryDevice) RemoveRawStorageValue(_ context.Context, key string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.kv, key)
	return nil
}

func (d *InMemoryDevice) GetAllRawDatabasePayloads(_ context.Context) ([]payload.Payload, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]payload.Payload, 0, len(d.payloads))
	for _, p := range d.payloads {
		out = append(out, p)
	}
	return out, nil
}

func (d *InMemoryDevice) SaveRawDatabasePayload(_ context.Context, p payload.Payload) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.payloads[p.UUID] = p
	return nil
}

func (d *InMemoryDevice) RemoveRawDatabasePayload(_ context.Context, uuid string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.payloads, uuid)
	return nil
}

func (d *InMemoryDevice) SetKeychainValue(_ context.Context, key string, value []byte) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.keychain[key] = append([]byte(nil), value...)
	return nil
}

func (d *InMemoryDevice) GetKeychainValue(_ context.Context, key string) ([]byte, bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	v, ok := d.keychain[key]
	return v, ok, nil
}

func (d *InMemoryDevice) ClearKeychainValue(_ context.Context, key string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.keychain, key)
	return nil
}
