// Package workspace models the on-disk `.astdb/` layout. The core treats every path under it as opaque and
// collaborator-owned — this package only resolves the fixed sub-paths
// other packages need (config, indexes, cache tiers, the lock file) so
// none of them hardcode ".astdb/..." themselves.
package workspace

import "path/filepath"

// Workspace resolves the fixed paths under a project root's `.astdb/`
// directory. It creates only the directories Dirs lists (via
// EnsureDirs) and owns none of the files — each collaborator (store,
// vectorindex, cache, config) is responsible for the files under its
// own path.
type Workspace struct {
	root string
	dir  string
}

// Open returns a Workspace rooted at <projectRoot>/.astdb. It does not
// touch the filesystem; call EnsureDirs to create the layout.
func Open(projectRoot string) *Workspace {
	return &Workspace{root: projectRoot, dir: filepath.Join(projectRoot, ".astdb")}
}

// Root returns the project root the workspace was opened for.
func (w *Workspace) Root() string { return w.root }

// Dir returns the `.astdb` directory itself.
func (w *Workspace) Dir() string { return w.dir }

func (w *Workspace) ConfigPath() string    { return filepath.Join(w.dir, "config.json") }
func (w *Workspace) VersionPath() string   { return filepath.Join(w.dir, "version.json") }
func (w *Workspace) AstsDir() string       { return filepath.Join(w.dir, "asts") }
func (w *Workspace) AnnotsDir() string     { return filepath.Join(w.dir, "annots") }
func (w *Workspace) GrammarsDir() string   { return filepath.Join(w.dir, "grammars") }
func (w *Workspace) ModelsDir() string     { return filepath.Join(w.dir, "models") }
func (w *Workspace) ModelsRegistryPath() string {
	return filepath.Join(w.ModelsDir(), "registry.db")
}
func (w *Workspace) NativeDir() string     { return filepath.Join(w.dir, "native") }
func (w *Workspace) IndexBinPath() string  { return filepath.Join(w.dir, "index.bin") }
func (w *Workspace) IndexMetaPath() string { return filepath.Join(w.dir, "index.meta.json") }
func (w *Workspace) MetadataDBPath() string {
	return filepath.Join(w.dir, "metadata.db")
}
func (w *Workspace) L2DiskDir() string   { return filepath.Join(w.dir, "l2-disk") }
func (w *Workspace) L3CachePath() string { return filepath.Join(w.dir, "l3-cache.db") }
func (w *Workspace) LockPath() string    { return filepath.Join(w.dir, ".lock") }
func (w *Workspace) LogPath() string     { return filepath.Join(w.dir, "engine.log") }

// Dirs lists every directory EnsureDirs creates, in creation order.
func (w *Workspace) Dirs() []string {
	return []string{
		w.dir,
		w.AstsDir(),
		w.AnnotsDir(),
		w.GrammarsDir(),
		w.ModelsDir(),
		w.NativeDir(),
		w.L2DiskDir(),
	}
}
