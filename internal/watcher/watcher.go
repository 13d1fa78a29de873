// Package watcher ingests broker transaction exports dropped into a watched
// directory. Filesystem events feed a single-consumer queue, so only one
// import is ever in flight and duplicate triggers are dropped, not queued.
package watcher

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog/log"

	"github.com/mdriscoll/cryptowatch/internal/engine"
	"github.com/mdriscoll/cryptowatch/internal/export"
)

// Mirror copies an imported file into the spreadsheet. Optional and
// best-effort; runs after the import is already marked complete.
type Mirror interface {
	Sync(ctx context.Context, transactions []export.FileTransaction) error
}

// Watcher owns the directory watch and the import worker
type Watcher struct {
	dir      string
	settle   time.Duration
	importer *Importer
	coord    *engine.Coordinator
	mirror   Mirror // may be nil
}

func New(dir string, importer *Importer, coord *engine.Coordinator, mirror Mirror) *Watcher {
	return &Watcher{
		dir:      dir,
		settle:   5 * time.Second,
		importer: importer,
		coord:    coord,
		mirror:   mirror,
	}
}

// Run watches the directory until ctx is cancelled
func (w *Watcher) Run(ctx context.Context) error {
	if err := os.MkdirAll(w.dir, 0755); err != nil {
		return err
	}

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer fw.Close()
	if err := fw.Add(w.dir); err != nil {
		return err
	}

	// unbuffered: the send only lands while the worker is idle, so an event
	// arriving mid-import is ignored rather than queued; the filesystem
	// will fire again if more writes happen
	events := make(chan string)
	go w.consume(ctx, events)

	log.Info().Str("dir", w.dir).Msg("watching for transaction exports")
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case event, ok := <-fw.Events:
			if !ok {
				return nil
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}
			if !strings.EqualFold(filepath.Ext(event.Name), ".csv") {
				continue
			}
			select {
			case events <- event.Name:
			default:
				log.Debug().Str("file", event.Name).Msg("import already in flight, ignoring event")
			}
		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			log.Error().Err(err).Msg("filesystem watch error")
		}
	}
}

func (w *Watcher) consume(ctx context.Context, events <-chan string) {
	for {
		select {
		case <-ctx.Done():
			return
		case path := <-events:
			w.handle(ctx, path)
		}
	}
}

func (w *Watcher) handle(ctx context.Context, path string) {
	if !w.coord.BeginImport() {
		return
	}
	log.Info().Str("file", path).Msg("changed")

	// let the writer finish before reading
	log.Info().Msg("sleeping five seconds to ensure file is fully written")
	select {
	case <-ctx.Done():
		w.coord.EndImport()
		return
	case <-time.After(w.settle):
	}

	fileTxs, inserted, err := w.importer.ProcessFile(ctx, path)
	if err != nil {
		w.coord.EndImport()
		log.Error().Err(err).Str("file", path).Msg("failed to process file")
		return
	}
	if inserted > 0 {
		w.coord.MarkChanged()
	}
	w.coord.EndImport()
	w.coord.RequestRebalance()

	// the mirror must not hold up the next import or the engine
	if w.mirror != nil {
		if err := w.mirror.Sync(ctx, fileTxs); err != nil {
			log.Error().Err(err).Msg("spreadsheet mirror failed")
		}
	}
}
