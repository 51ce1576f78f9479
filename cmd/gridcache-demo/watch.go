package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/teranos/gridcache/cmd/gridcache-demo/internal/demolog"
	"github.com/teranos/gridcache/config"
	"github.com/teranos/gridcache/event"
	"github.com/teranos/gridcache/filter"
	"github.com/teranos/gridcache/internal/fakecache"
	"github.com/teranos/gridcache/listener"
	"github.com/teranos/gridcache/view"
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Build a view and print events as they arrive",
	Long: `watch builds a continuous query cache over an in-process demo cache,
seeds it with a handful of numeric entries, and prints every event the view
delivers as entries cross the configured threshold filter.`,
	RunE: runWatch,
}

func init() {
	watchCmd.Flags().Int("filter-threshold", 300, "only entries with value greater than this satisfy the view")
}

func runWatch(cmd *cobra.Command, _ []string) error {
	threshold, _ := cmd.Flags().GetInt("filter-threshold")

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	remote := fakecache.New(cfg.Grid.CacheName)

	viewFilter := filter.Func(func(e filter.Entry) bool {
		v, _ := e.Value.(int)
		return v > threshold
	})

	l := &listener.Func{
		OnInserted: func(e event.MapEvent) { demolog.Logger.Infow("inserted", "key", e.Key, "value", e.New) },
		OnUpdated:  func(e event.MapEvent) { demolog.Logger.Infow("updated", "key", e.Key, "old", e.Old, "new", e.New) },
		OnDeleted:  func(e event.MapEvent) { demolog.Logger.Infow("deleted", "key", e.Key, "value", e.Old) },
	}

	builder := view.New(remote).Filter(viewFilter).Listener(l)
	if cfg.View.CacheValues {
		builder = builder.Values()
	} else {
		builder = builder.Keys()
	}
	if cfg.View.ReconnectInterval > 0 {
		builder = builder.ReconnectInterval(cfg.View.ReconnectInterval)
	}

	q, err := builder.Build(ctx)
	if err != nil {
		return fmt.Errorf("build view: %w", err)
	}
	defer q.Release(context.Background())

	demolog.Logger.Infow("view synchronized", "state", q.State().String(), "cache_values", q.CacheValues())

	for i := 0; i < 10; i++ {
		key := fmt.Sprintf("k%d", i)
		if err := remote.Put(ctx, key, 250+i*20); err != nil {
			demolog.Logger.Warnw("put failed", "key", key, "error", err)
		}
	}

	<-ctx.Done()
	return nil
}
