package engine

import (
	"context"
	"errors"
	"path/filepath"
	"slices"

	"github.com/fsnotify/fsnotify"

	"github.com/raillogistic/autogql"
	"github.com/raillogistic/autogql/registry"
	"github.com/raillogistic/autogql/settings"
)

// ApplyFile applies a configuration document: its global settings become
// global overrides and its schemas are registered, replacing registrations
// of the same name. Applying the same path again drops the global keys and
// the schemas it no longer declares.
func (e *Engine) ApplyFile(path string) error {
	f, err := settings.LoadFile(path)
	if err != nil {
		return err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if len(f.Global) > 0 {
		if err := e.settings.SetGlobalOverrides(f.Global); err != nil {
			return err
		}
	}
	globals := make([]string, 0, len(f.Global))
	for k := range f.Global {
		globals = append(globals, k)
	}
	for _, k := range e.fileGlobals[path] {
		if !slices.Contains(globals, k) {
			e.settings.DeleteGlobalOverride(k)
		}
	}
	e.fileGlobals[path] = globals

	var (
		errs    []error
		schemas = make([]string, 0, len(f.Schemas))
	)
	for _, s := range f.Schemas {
		cfg := registry.Config{
			Description:      s.Description,
			Version:          s.Version,
			Entities:         s.Entities,
			AutoDiscover:     s.AutoDiscover,
			Group:            s.Group,
			ExcludedEntities: s.ExcludedEntities,
			Settings:         s.Settings,
			Disabled:         !s.IsEnabled(),
		}
		if _, err := e.registry.Register(s.Name, cfg, registry.Replace()); err != nil {
			errs = append(errs, err)
			continue
		}
		schemas = append(schemas, s.Name)
	}
	for _, name := range e.fileSchemas[path] {
		if slices.Contains(schemas, name) {
			continue
		}
		if err := e.registry.Unregister(name); err != nil && !errors.Is(err, autogql.ErrSchemaNotFound) {
			errs = append(errs, err)
		}
	}
	e.fileSchemas[path] = schemas
	e.logger.Info("configuration applied", "path", path, "schemas", len(schemas), "globals", len(globals))
	return errors.Join(errs...)
}

// LoadEntityFile loads the entities of a YAML entity file into the catalog.
// Schemas using the loaded entities are rebuilt on their next use.
func (e *Engine) LoadEntityFile(path string) error {
	names, err := e.catalog.LoadFile(path)
	if err != nil {
		return err
	}
	e.logger.Info("entities loaded", "path", path, "entities", len(names))
	return nil
}

// Reload loads the entity files, then applies the configuration files the
// engine was created with.
func (e *Engine) Reload() error {
	var errs []error
	for _, path := range e.entityFiles {
		errs = append(errs, e.LoadEntityFile(path))
	}
	for _, path := range e.configFiles {
		errs = append(errs, e.ApplyFile(path))
	}
	return errors.Join(errs...)
}

type fileKind uint8

const (
	configFile fileKind = iota
	entityFile
)

// Watch re-applies the configuration and entity files of the engine when
// they change, until ctx is done. It returns once the watch is set up.
// Files are watched through their directories, so files replaced by
// editors are picked up as well.
func (e *Engine) Watch(ctx context.Context) error {
	files := make(map[string]fileKind)
	paths := make(map[string]string)
	add := func(kind fileKind, list []string) error {
		for _, p := range list {
			abs, err := filepath.Abs(p)
			if err != nil {
				return err
			}
			files[abs], paths[abs] = kind, p
		}
		return nil
	}
	if err := add(entityFile, e.entityFiles); err != nil {
		return err
	}
	if err := add(configFile, e.configFiles); err != nil {
		return err
	}
	if len(files) == 0 {
		return autogql.NewConfigError("watch", nil, "engine has no configuration or entity files")
	}
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	var dirs []string
	for abs := range files {
		if dir := filepath.Dir(abs); !slices.Contains(dirs, dir) {
			dirs = append(dirs, dir)
		}
	}
	for _, dir := range dirs {
		if err := w.Add(dir); err != nil {
			w.Close()
			return err
		}
	}
	go func() {
		defer w.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case event, ok := <-w.Events:
				if !ok {
					return
				}
				if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
					continue
				}
				abs, err := filepath.Abs(event.Name)
				if err != nil {
					continue
				}
				kind, ok := files[abs]
				if !ok {
					continue
				}
				e.logger.Debug("watched file changed", "path", event.Name, "op", event.Op.String())
				e.reloadFile(kind, paths[abs])
			case err, ok := <-w.Errors:
				if !ok {
					return
				}
				e.logger.Error("file watcher", "error", err)
			}
		}
	}()
	e.logger.Info("watching files", "files", len(files))
	return nil
}

func (e *Engine) reloadFile(kind fileKind, path string) {
	var err error
	switch kind {
	case entityFile:
		err = e.LoadEntityFile(path)
	default:
		err = e.ApplyFile(path)
	}
	if err != nil {
		e.logger.Warn("reloading file", "path", path, "error", err)
	}
}
