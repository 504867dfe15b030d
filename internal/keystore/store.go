// Package keystore reads and writes JSON values through a remote key-value
// service, mirroring the legacy blobs into local files.
//
// The remote is optional. Without it, blobs live only in the data directory
// and raw-key primitives become no-ops. Remote failures are logged and
// degrade the single call that hit them; nothing here returns a backend error
// to the caller.
package keystore

import (
	"context"
	"encoding/json"
	"log/slog"
	"path/filepath"

	"keyadmin/entity"
	"keyadmin/lib/sl"
)

// Remote is the minimal key-value contract. Get returns (nil, nil) when the
// key does not exist.
type Remote interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
	Del(ctx context.Context, key string) error
}

// SetRemote is implemented by remotes that support set-typed values.
type SetRemote interface {
	SMembers(ctx context.Context, key string) ([]string, error)
	SRem(ctx context.Context, key string, member string) error
}

// Recorder observes where loads were served from and which remote calls failed.
type Recorder interface {
	StoreLoad(source string)
	StoreFailure(op string)
}

type nopRecorder struct{}

func (nopRecorder) StoreLoad(string)    {}
func (nopRecorder) StoreFailure(string) {}

// Source tells which backend a Load was served from.
type Source int

const (
	SourceDefault Source = iota
	SourceRemote
	SourceFile
)

func (s Source) String() string {
	switch s {
	case SourceRemote:
		return "remote"
	case SourceFile:
		return "file"
	default:
		return "default"
	}
}

// Blob is a whole-document value kept both under a remote key and in a
// local mirror file.
type Blob struct {
	Key  string
	File string
}

// Loaded is the result of Load. Value is nil when Source is SourceDefault.
type Loaded struct {
	Value  json.RawMessage
	Source Source
}

type Store struct {
	remote Remote
	sets   SetRemote
	dir    string
	rec    Recorder
	log    *slog.Logger
}

// New builds a store. remote may be nil; dataDir holds the mirror files.
func New(remote Remote, dataDir string, log *slog.Logger) *Store {
	s := &Store{
		remote: remote,
		dir:    dataDir,
		rec:    nopRecorder{},
		log:    log.With(sl.Module("keystore")),
	}
	if sr, ok := remote.(SetRemote); ok {
		s.sets = sr
	}
	return s
}

func (s *Store) SetRecorder(rec Recorder) {
	if rec != nil {
		s.rec = rec
	}
}

// HasRemote reports whether a remote backend is configured.
func (s *Store) HasRemote() bool {
	return s.remote != nil
}

func (s *Store) filePath(blob Blob) string {
	return filepath.Join(s.dir, blob.File)
}

// Load returns the remote value when present, else the mirror file, else
// nothing. The remote value is never merged with the file.
func (s *Store) Load(ctx context.Context, blob Blob) Loaded {
	if s.remote != nil {
		raw, err := s.remote.Get(ctx, blob.Key)
		if err != nil {
			s.log.Error("remote load", sl.Key(blob.Key), sl.Err(err))
			s.rec.StoreFailure("get")
		} else if !entity.IsNull(raw) {
			s.rec.StoreLoad(SourceRemote.String())
			return Loaded{Value: raw, Source: SourceRemote}
		}
	}

	raw, err := readJSONFile(s.filePath(blob))
	if err != nil {
		s.log.Error("file load", slog.String("file", blob.File), sl.Err(err))
	} else if raw != nil {
		s.rec.StoreLoad(SourceFile.String())
		return Loaded{Value: raw, Source: SourceFile}
	}

	s.rec.StoreLoad(SourceDefault.String())
	return Loaded{Source: SourceDefault}
}

// Save writes value to the remote when configured and always to the mirror file.
func (s *Store) Save(ctx context.Context, blob Blob, value any) {
	raw, err := json.Marshal(value)
	if err != nil {
		s.log.Error("encode blob", sl.Key(blob.Key), sl.Err(err))
		return
	}
	if s.remote != nil {
		if err = s.remote.Set(ctx, blob.Key, raw); err != nil {
			s.log.Error("remote save", sl.Key(blob.Key), sl.Err(err))
			s.rec.StoreFailure("set")
		}
	}
	if err = writeJSONFile(s.filePath(blob), raw); err != nil {
		s.log.Error("file save", slog.String("file", blob.File), sl.Err(err))
	}
}

// Get reads a raw key from the remote. Missing keys, null values, remote
// errors and the absence of a remote all report ok=false.
func (s *Store) Get(ctx context.Context, key string) (json.RawMessage, bool) {
	if s.remote == nil {
		return nil, false
	}
	raw, err := s.remote.Get(ctx, key)
	if err != nil {
		s.log.Error("remote get", sl.Key(key), sl.Err(err))
		s.rec.StoreFailure("get")
		return nil, false
	}
	if entity.IsNull(raw) {
		return nil, false
	}
	return raw, true
}

// Set writes a raw key to the remote.
func (s *Store) Set(ctx context.Context, key string, value any) {
	if s.remote == nil {
		return
	}
	raw, err := json.Marshal(value)
	if err != nil {
		s.log.Error("encode value", sl.Key(key), sl.Err(err))
		return
	}
	if err = s.remote.Set(ctx, key, raw); err != nil {
		s.log.Error("remote set", sl.Key(key), sl.Err(err))
		s.rec.StoreFailure("set")
	}
}

func (s *Store) Delete(ctx context.Context, key string) {
	if s.remote == nil {
		return
	}
	if err := s.remote.Del(ctx, key); err != nil {
		s.log.Error("remote delete", sl.Key(key), sl.Err(err))
		s.rec.StoreFailure("del")
	}
}

// SetMembers lists a set key. Without set support it returns nothing.
func (s *Store) SetMembers(ctx context.Context, key string) []string {
	if s.sets == nil {
		return nil
	}
	members, err := s.sets.SMembers(ctx, key)
	if err != nil {
		s.log.Error("remote smembers", sl.Key(key), sl.Err(err))
		s.rec.StoreFailure("smembers")
		return nil
	}
	return members
}

func (s *Store) SetRemove(ctx context.Context, key, member string) {
	if s.sets == nil {
		return
	}
	if err := s.sets.SRem(ctx, key, member); err != nil {
		s.log.Error("remote srem", sl.Key(key), slog.String("member", member), sl.Err(err))
		s.rec.StoreFailure("srem")
	}
}

// Decode unmarshals a loaded value into T, returning def for defaults and
// for values of the wrong shape.
func Decode[T any](l Loaded, def T) (T, bool) {
	if l.Source == SourceDefault || entity.IsNull(l.Value) {
		return def, true
	}
	var v T
	if err := json.Unmarshal(l.Value, &v); err != nil {
		return def, false
	}
	return v, true
}

// LoadInto is Load followed by Decode. A value of the wrong shape is logged
// and replaced by def.
func LoadInto[T any](ctx context.Context, s *Store, blob Blob, def T) (T, Source) {
	loaded := s.Load(ctx, blob)
	v, ok := Decode(loaded, def)
	if !ok {
		s.log.Warn("unexpected blob shape", sl.Key(blob.Key), slog.String("source", loaded.Source.String()))
	}
	return v, loaded.Source
}
