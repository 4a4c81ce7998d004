package persistence

import (
	"bufio"
	"bytes"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/dustin/go-humanize"
	"github.com/gocarina/gocsv"
	"github.com/klauspost/compress/zstd"
	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/talgya/cytophage/internal/engine"
)

//go:embed world.schema.json
var worldSchemaJSON string

var (
	schemaOnce sync.Once
	schema     *jsonschema.Schema
	schemaErr  error
)

func worldSchema() (*jsonschema.Schema, error) {
	schemaOnce.Do(func() {
		schema, schemaErr = jsonschema.CompileString("world.schema.json", worldSchemaJSON)
	})
	return schema, schemaErr
}

// ValidateDocument checks raw world document JSON against the schema.
func ValidateDocument(data []byte) error {
	s, err := worldSchema()
	if err != nil {
		return fmt.Errorf("compile world schema: %w", err)
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return fmt.Errorf("parse world document: %w", err)
	}
	if err := s.Validate(v); err != nil {
		return fmt.Errorf("world document invalid: %w", err)
	}
	return nil
}

// FileStore keeps the world as a zstd-compressed JSON document, stats
// history as CSV next to it, and recent events in memory.
type FileStore struct {
	path        string
	historyPath string

	mu     sync.Mutex
	events []engine.Event
}

// maxFileEvents bounds the in-memory event history of a FileStore.
const maxFileEvents = 1000

// OpenFileStore prepares a store writing the document to path.
func OpenFileStore(path string) (*FileStore, error) {
	if _, err := worldSchema(); err != nil {
		return nil, fmt.Errorf("compile world schema: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create store dir: %w", err)
	}
	return &FileStore{
		path:        path,
		historyPath: filepath.Join(filepath.Dir(path), "stats_history.csv"),
	}, nil
}

// SaveWorld writes the document to a temporary file and renames it over
// the previous one, so a crash mid-write leaves the old document intact.
func (fs *FileStore) SaveWorld(st *engine.State) error {
	tmp := fs.path + ".tmp"
	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return fmt.Errorf("create %s: %w", tmp, err)
	}

	enc, err := zstd.NewWriter(f, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		f.Close()
		return err
	}
	bw := bufio.NewWriterSize(enc, 256*1024)
	if err := json.NewEncoder(bw).Encode(st); err != nil {
		enc.Close()
		f.Close()
		return fmt.Errorf("encode world: %w", err)
	}
	if err := bw.Flush(); err != nil {
		enc.Close()
		f.Close()
		return err
	}
	if err := enc.Close(); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	if err := os.Rename(tmp, fs.path); err != nil {
		return fmt.Errorf("replace world document: %w", err)
	}

	if info, err := os.Stat(fs.path); err == nil {
		slog.Debug("world document written", "path", fs.path, "size", humanize.Bytes(uint64(info.Size())))
	}
	return nil
}

// LoadWorld reads, validates and decodes the document.
func (fs *FileStore) LoadWorld() (*engine.State, error) {
	f, err := os.Open(fs.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, ErrNoState
	}
	if err != nil {
		return nil, err
	}
	defer f.Close()

	dec, err := zstd.NewReader(f)
	if err != nil {
		return nil, err
	}
	defer dec.Close()

	data, err := io.ReadAll(bufio.NewReaderSize(dec, 256*1024))
	if err != nil {
		return nil, fmt.Errorf("decompress world document: %w", err)
	}
	if err := ValidateDocument(data); err != nil {
		return nil, err
	}

	var st engine.State
	if err := json.Unmarshal(data, &st); err != nil {
		return nil, fmt.Errorf("decode world document: %w", err)
	}
	slog.Info("world loaded from file",
		"path", fs.path,
		"size", humanize.Bytes(uint64(len(data))),
		"organisms", len(st.Organisms),
		"food", len(st.Food),
	)
	return &st, nil
}

// SaveEvents keeps events in the in-memory history.
func (fs *FileStore) SaveEvents(events []engine.Event) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	fs.events = append(fs.events, events...)
	if len(fs.events) > maxFileEvents {
		fs.events = fs.events[len(fs.events)-maxFileEvents:]
	}
	return nil
}

// RecentEvents returns up to limit of the newest events, oldest first.
func (fs *FileStore) RecentEvents(limit int) ([]engine.Event, error) {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	start := 0
	if limit > 0 && len(fs.events) > limit {
		start = len(fs.events) - limit
	}
	out := make([]engine.Event, len(fs.events)-start)
	copy(out, fs.events[start:])
	return out, nil
}

// AppendStats appends one sample to the history CSV, writing the header
// when the file is new.
func (fs *FileStore) AppendStats(row StatsRow) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	f, err := os.OpenFile(fs.historyPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("open stats history: %w", err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return err
	}
	rows := []StatsRow{row}
	if info.Size() == 0 {
		return gocsv.Marshal(rows, f)
	}
	return gocsv.MarshalWithoutHeaders(rows, f)
}

// StatsHistory reads the newest N samples from the history CSV.
func (fs *FileStore) StatsHistory(limit int) ([]StatsRow, error) {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	f, err := os.Open(fs.historyPath)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var rows []StatsRow
	if err := gocsv.UnmarshalFile(f, &rows); err != nil {
		return nil, fmt.Errorf("read stats history: %w", err)
	}
	if limit > 0 && len(rows) > limit {
		rows = rows[len(rows)-limit:]
	}
	return rows, nil
}

// Close is a no-op; every write closes its file.
func (fs *FileStore) Close() error {
	return nil
}
