// Package fs loads a staged collection from a YAML fixture file and keeps
// it in sync with the file while it is edited.
package fs

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/byxorna/stageboard/pkg/db"
	"github.com/byxorna/stageboard/pkg/db/memory"
	"github.com/byxorna/stageboard/pkg/logger"
	"github.com/byxorna/stageboard/pkg/stage"
	v1 "github.com/byxorna/stageboard/pkg/types/v1"
	"github.com/fsnotify/fsnotify"
	"github.com/go-playground/validator/v10"
	"github.com/mitchellh/go-homedir"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

// Fixture is the on-disk shape of one collection
type Fixture struct {
	Kind     string       `yaml:"kind" validate:"required"`
	Entities []*v1.Entity `yaml:"entities" validate:"dive,required"`
}

// RegistryFunc resolves the stage graph of a kind
type RegistryFunc func(kind string) (*stage.Registry, error)

type Loader struct {
	sync.Mutex
	Path string `validate:"required,file"`

	kind   string
	coll   *memory.Collection
	status v1.SyncStatus
	mtime  time.Time
	log    *zap.SugaredLogger
}

// ReadFixture parses and validates a fixture
func ReadFixture(r io.Reader) (*Fixture, error) {
	bytes, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("unable to read fixture: %w", err)
	}
	var f Fixture
	if err := yaml.Unmarshal(bytes, &f); err != nil {
		return nil, fmt.Errorf("unable to unmarshal fixture: %w", err)
	}
	if err := validator.New().Struct(f); err != nil {
		return nil, fmt.Errorf("fixture validation error: %w", err)
	}
	return &f, nil
}

func New(path string, registry RegistryFunc) (*Loader, error) {
	expandedPath, err := homedir.Expand(path)
	if err != nil {
		return nil, err
	}
	if expandedPath, err = filepath.Abs(expandedPath); err != nil {
		return nil, err
	}
	l := Loader{
		Path:   expandedPath,
		status: v1.StatusUninitialized,
		log:    logger.For(logger.ComponentFixtures).With("path", expandedPath),
	}
	if err := validator.New().Struct(&l); err != nil {
		return nil, fmt.Errorf("invalid fixture path: %w", err)
	}

	f, mtime, err := l.read()
	if err != nil {
		return nil, err
	}
	reg, err := registry(f.Kind)
	if err != nil {
		return nil, fmt.Errorf("fixture %s: %w", expandedPath, err)
	}
	coll, err := memory.New(reg, f.Entities...)
	if err != nil {
		return nil, fmt.Errorf("fixture %s: %w", expandedPath, err)
	}

	l.kind = f.Kind
	l.coll = coll
	l.mtime = mtime
	l.status = v1.StatusOK
	l.log.Infow("loaded fixture", "kind", f.Kind, "entities", len(f.Entities))
	return &l, nil
}

func (l *Loader) Kind() string                   { return l.kind }
func (l *Loader) Collection() *memory.Collection { return l.coll }

func (l *Loader) Status() v1.SyncStatus {
	l.Lock()
	defer l.Unlock()
	return l.status
}

func (l *Loader) read() (*Fixture, time.Time, error) {
	fh, err := os.Open(l.Path)
	if err != nil {
		return nil, time.Time{}, fmt.Errorf("unable to open %s: %w", l.Path, err)
	}
	defer fh.Close()
	finfo, err := fh.Stat()
	if err != nil {
		return nil, time.Time{}, err
	}
	f, err := ReadFixture(fh)
	if err != nil {
		return nil, time.Time{}, fmt.Errorf("%s: %w", l.Path, err)
	}
	return f, finfo.ModTime(), nil
}

// ShouldReload reports whether the file changed since it was last read or
// written
func (l *Loader) ShouldReload() bool {
	finfo, err := os.Stat(l.Path)
	if err != nil {
		return false
	}
	l.Lock()
	defer l.Unlock()
	return !finfo.ModTime().Equal(l.mtime)
}

// Reload replaces the collection contents with the file's. A file that
// fails to parse leaves the collection as it was.
func (l *Loader) Reload() error {
	l.Lock()
	defer l.Unlock()

	l.status = v1.StatusSynchronizing
	f, mtime, err := l.read()
	if err != nil {
		l.status = v1.StatusError
		return err
	}
	if f.Kind != l.kind {
		l.status = v1.StatusError
		return fmt.Errorf("%s changed kind from %s to %s", l.Path, l.kind, f.Kind)
	}
	if err := l.coll.Replace(f.Entities); err != nil {
		l.status = v1.StatusError
		return fmt.Errorf("%s: %w", l.Path, err)
	}
	l.mtime = mtime
	l.status = v1.StatusOK
	l.log.Infow("reloaded fixture", "entities", len(f.Entities))
	return nil
}

// Save writes the collection back to the file, so moves made through the
// server survive a restart
func (l *Loader) Save() error {
	l.Lock()
	defer l.Unlock()

	l.status = v1.StatusSynchronizing
	entities := l.coll.All()
	sort.Slice(entities, func(i, j int) bool { return entities[i].ID < entities[j].ID })

	out, err := yaml.Marshal(Fixture{Kind: l.kind, Entities: entities})
	if err != nil {
		l.status = v1.StatusError
		return fmt.Errorf("unable to marshal fixture: %w", err)
	}

	tmp := l.Path + ".tmp"
	if err := os.WriteFile(tmp, out, 0644); err != nil {
		l.status = v1.StatusError
		return err
	}
	if err := os.Rename(tmp, l.Path); err != nil {
		l.status = v1.StatusError
		return err
	}
	if finfo, err := os.Stat(l.Path); err == nil {
		l.mtime = finfo.ModTime()
	}
	l.status = v1.StatusOK
	return nil
}

// autosave writes the fixture back after every accepted move
type autosave struct {
	*memory.Collection
	l *Loader
}

func (a autosave) Transition(ctx context.Context, req db.TransitionRequest) (*db.TransitionResponse, error) {
	resp, err := a.Collection.Transition(ctx, req)
	if err != nil {
		return nil, err
	}
	if err := a.l.Save(); err != nil {
		a.l.log.Warnw("unable to save fixture", "error", err)
	}
	return resp, nil
}

// AutoSave returns the collection with every move persisted to the file
func (l *Loader) AutoSave() db.Collection {
	return autosave{Collection: l.coll, l: l}
}

// Watch reloads the collection whenever the file changes on disk, until ctx
// is done. onReload, if set, runs after every successful reload.
func (l *Loader) Watch(ctx context.Context, onReload func()) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("unable to create watcher: %w", err)
	}
	defer watcher.Close()

	// editors replace files, so watch the directory
	dir := filepath.Dir(l.Path)
	if err := watcher.Add(dir); err != nil {
		return fmt.Errorf("unable to watch %s: %w", dir, err)
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != l.Path || !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}
			if !l.ShouldReload() {
				continue
			}
			if err := l.Reload(); err != nil {
				l.log.Warnw("unable to reload fixture", "error", err)
				continue
			}
			if onReload != nil {
				onReload()
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			l.log.Warnw("watch error", "error", err)
		}
	}
}
