package assets

import (
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/spaghettifunk/framegraph/engine/assets/loaders"
	"github.com/spaghettifunk/framegraph/engine/core"
	"github.com/spaghettifunk/framegraph/engine/rendergraph"
)

var (
	ErrWatcherClosed      = errors.New("graph watcher already closed")
	ErrUnknownGraphFormat = errors.New("unknown graph description format")
)

type GraphType int

const (
	GraphTypeNone GraphType = iota
	GraphTypeTOML
	GraphTypeHCL
)

type GraphInfo struct {
	Path       string
	Type       GraphType
	LastLoaded time.Time
}

// GraphWatcher loads graph description files and, for the files it watches,
// fires core.EVENT_CODE_GRAPH_CHANGED once a burst of writes settles.
type GraphWatcher struct {
	graphs  map[string]GraphInfo
	loaders map[GraphType]Loader
	vars    loaders.Variables

	mutex sync.RWMutex

	done     chan struct{}
	fsnotify *fsnotify.Watcher
	isClosed bool
	started  bool
	wg       sync.WaitGroup
	debounce time.Duration
}

func NewGraphWatcher(vars loaders.Variables, debounce time.Duration) (*GraphWatcher, error) {
	fsWatch, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	gw := &GraphWatcher{
		graphs:   make(map[string]GraphInfo),
		loaders:  make(map[GraphType]Loader),
		vars:     vars,
		fsnotify: fsWatch,
		done:     make(chan struct{}),
		debounce: debounce,
	}
	gw.registerLoader(GraphTypeTOML, loaders.GraphTOMLLoader{})
	gw.registerLoader(GraphTypeHCL, loaders.GraphHCLLoader{})
	return gw, nil
}

func (gw *GraphWatcher) registerLoader(graphType GraphType, loader Loader) {
	gw.loaders[graphType] = loader
}

// SetVariables changes the values HCL descriptions are evaluated with.
func (gw *GraphWatcher) SetVariables(vars loaders.Variables) {
	gw.mutex.Lock()
	defer gw.mutex.Unlock()
	gw.vars = vars
}

// Load reads a description with the loader for its extension.
func (gw *GraphWatcher) Load(path string) (*rendergraph.Description, error) {
	graphType := determineGraphType(path)
	gw.mutex.RLock()
	loader, ok := gw.loaders[graphType]
	vars := gw.vars
	gw.mutex.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%s: %w", path, ErrUnknownGraphFormat)
	}

	d, err := loader.Load(path, vars)
	if err != nil {
		return nil, err
	}

	abs, err := filepath.Abs(path)
	if err == nil {
		gw.mutex.Lock()
		if info, ok := gw.graphs[abs]; ok {
			info.LastLoaded = time.Now()
			gw.graphs[abs] = info
		}
		gw.mutex.Unlock()
	}
	return d, nil
}

// Watch starts watching a description file. The parent directory is watched
// so editors that replace the file on save are still seen.
func (gw *GraphWatcher) Watch(path string) error {
	abs, err := filepath.Abs(path)
	if err != nil {
		return err
	}
	graphType := determineGraphType(abs)
	if graphType == GraphTypeNone {
		return fmt.Errorf("%s: %w", path, ErrUnknownGraphFormat)
	}

	gw.mutex.Lock()
	defer gw.mutex.Unlock()
	if gw.isClosed {
		return ErrWatcherClosed
	}
	if err := gw.fsnotify.Add(filepath.Dir(abs)); err != nil {
		return err
	}
	gw.graphs[abs] = GraphInfo{Path: abs, Type: graphType}
	if !gw.started {
		gw.started = true
		gw.wg.Add(1)
		go gw.start()
	}
	core.LogDebug("watching graph description %s", abs)
	return nil
}

func (gw *GraphWatcher) Unwatch(path string) error {
	abs, err := filepath.Abs(path)
	if err != nil {
		return err
	}
	gw.mutex.Lock()
	defer gw.mutex.Unlock()
	delete(gw.graphs, abs)
	for p := range gw.graphs {
		if filepath.Dir(p) == filepath.Dir(abs) {
			return nil
		}
	}
	return gw.fsnotify.Remove(filepath.Dir(abs))
}

func (gw *GraphWatcher) Graphs() []GraphInfo {
	gw.mutex.RLock()
	defer gw.mutex.RUnlock()
	out := make([]GraphInfo, 0, len(gw.graphs))
	for _, info := range gw.graphs {
		out = append(out, info)
	}
	return out
}

func (gw *GraphWatcher) Close() error {
	gw.mutex.Lock()
	if gw.isClosed {
		gw.mutex.Unlock()
		return nil
	}
	gw.isClosed = true
	gw.mutex.Unlock()

	close(gw.done)
	gw.wg.Wait()
	return gw.fsnotify.Close()
}

func (gw *GraphWatcher) start() {
	defer gw.wg.Done()

	pending := make(map[string]struct{})
	var timer *time.Timer
	var fire <-chan time.Time
	for {
		select {
		case e, ok := <-gw.fsnotify.Events:
			if !ok {
				return
			}
			// Removes and renames are followed by a create when the file
			// is replaced.
			if e.Op&(fsnotify.Create|fsnotify.Write) == 0 || !gw.watched(e.Name) {
				continue
			}
			pending[filepath.Clean(e.Name)] = struct{}{}
			if timer == nil {
				timer = time.NewTimer(gw.debounce)
			} else {
				timer.Reset(gw.debounce)
			}
			fire = timer.C

		case <-fire:
			fire = nil
			for path := range pending {
				gw.handleFileEvent(path)
			}
			clear(pending)

		case err, ok := <-gw.fsnotify.Errors:
			if !ok {
				return
			}
			core.LogError("graph watcher: %s", err)

		case <-gw.done:
			if timer != nil {
				timer.Stop()
			}
			return
		}
	}
}

func (gw *GraphWatcher) watched(path string) bool {
	gw.mutex.RLock()
	defer gw.mutex.RUnlock()
	_, ok := gw.graphs[filepath.Clean(path)]
	return ok
}

func (gw *GraphWatcher) handleFileEvent(path string) {
	core.LogInfo("graph description %s changed", path)
	var ctx core.EventContext
	ctx.Data.C[0] = path
	core.EventFire(core.EVENT_CODE_GRAPH_CHANGED, gw, ctx)
}

func determineGraphType(path string) GraphType {
	switch filepath.Ext(path) {
	case ".toml":
		return GraphTypeTOML
	case ".hcl":
		return GraphTypeHCL
	default:
		return GraphTypeNone
	}
}
