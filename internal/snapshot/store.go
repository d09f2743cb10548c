// Package snapshot persists device state between simulator runs.
// State is encoded with msgpack and compressed with zstd.
package snapshot

import (
	"os"
	"path/filepath"

	"github.com/klauspost/compress/zstd"
	"github.com/pkg/errors"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/dg645-sim/internal/device"
)

// ErrNoSnapshot is returned by Load when nothing has been saved yet
var ErrNoSnapshot = errors.New("no snapshot saved")

// formatVersion is bumped whenever device.State changes incompatibly
const formatVersion = 1

type envelope struct {
	Version int          `msgpack:"v"`
	State   device.State `msgpack:"state"`
}

// Store saves and loads device state in a single file
type Store struct {
	path string
}

// NewStore creates a store backed by path
func NewStore(path string) *Store {
	return &Store{path: path}
}

// Path returns the backing file
func (s *Store) Path() string {
	return s.path
}

// Save writes state atomically: the file is replaced only once the new
// content is fully on disk
func (s *Store) Save(state device.State) error {
	data, err := Encode(state)
	if err != nil {
		return err
	}

	dir := filepath.Dir(s.path)
	tmp, err := os.CreateTemp(dir, filepath.Base(s.path)+".tmp*")
	if err != nil {
		return errors.Wrap(err, "create snapshot temp file")
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return errors.Wrap(err, "write snapshot")
	}
	if err := tmp.Close(); err != nil {
		return errors.Wrap(err, "close snapshot")
	}
	return errors.Wrap(os.Rename(tmp.Name(), s.path), "replace snapshot")
}

// Load reads the saved state
func (s *Store) Load() (device.State, error) {
	data, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		return device.State{}, ErrNoSnapshot
	}
	if err != nil {
		return device.State{}, errors.Wrap(err, "read snapshot")
	}
	return Decode(data)
}

// Encode serializes a device state
func Encode(state device.State) ([]byte, error) {
	raw, err := msgpack.Marshal(envelope{Version: formatVersion, State: state})
	if err != nil {
		return nil, errors.Wrap(err, "encode snapshot")
	}

	encoder, err := zstd.NewWriter(nil)
	if err != nil {
		return nil, errors.Wrap(err, "create zstd encoder")
	}
	defer encoder.Close()

	return encoder.EncodeAll(raw, nil), nil
}

// Decode restores a device state produced by Encode
func Decode(data []byte) (device.State, error) {
	decoder, err := zstd.NewReader(nil)
	if err != nil {
		return device.State{}, errors.Wrap(err, "create zstd decoder")
	}
	defer decoder.Close()

	raw, err := decoder.DecodeAll(data, nil)
	if err != nil {
		return device.State{}, errors.Wrap(err, "decompress snapshot")
	}

	var env envelope
	if err := msgpack.Unmarshal(raw, &env); err != nil {
		return device.State{}, errors.Wrap(err, "decode snapshot")
	}
	if env.Version != formatVersion {
		return device.State{}, errors.Errorf("unsupported snapshot version %d", env.Version)
	}
	return env.State, nil
}
