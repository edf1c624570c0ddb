package db

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"golang.org/x/sync/errgroup"

	"ohnitiel/upsql/internal/db/sql"
	"ohnitiel/upsql/internal/locale"
)

type Executor struct {
	manager *Manager
	cache   Cache
	workers int
}

type Summary struct {
	Successful int
	Failed     int
	Errors     map[string]error
}

func (s *Summary) String() string {
	return fmt.Sprintf(locale.L.Logs.QuerySummary, s.Successful, s.Failed)
}

// Failures lists the failed profiles, sorted.
func (s *Summary) Failures() []string {
	names := make([]string, 0, len(s.Errors))
	for name := range s.Errors {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// NewExecutor runs on the manager's connections with at most workers
// queries in flight. cache may be nil.
func NewExecutor(manager *Manager, cache Cache, workers uint8) *Executor {
	return &Executor{
		manager: manager,
		cache:   cache,
		workers: max(int(workers), 1),
	}
}

// ParallelExecution runs query on every loaded profile. Results of read-only
// statements are cached when useCache is set.
func (ex *Executor) ParallelExecution(ctx context.Context, query string, useCache bool) (map[string]*ResultSet, *Summary) {
	queryType, err := sql.SimpleQueryIdentifier(query)
	if err != nil {
		slog.WarnContext(ctx, locale.L.Logs.UnableIdentifyQueryType)
	} else {
		slog.InfoContext(ctx, locale.L.Logs.IdentifiedQueryType, "query_type", queryType)
	}
	if err == nil && !queryType.IsSafe() {
		slog.WarnContext(ctx, locale.L.Logs.MutatingStatement, "query_type", queryType)
	}
	cacheable := useCache && ex.cache != nil && err == nil && queryType.IsSafe()

	var (
		mu      sync.Mutex
		results = make(map[string]*ResultSet)
		summary = &Summary{Errors: make(map[string]error)}
	)
	record := func(name string, res *ResultSet, err error) {
		mu.Lock()
		defer mu.Unlock()

		if err != nil {
			summary.Failed++
			summary.Errors[name] = err
			return
		}
		summary.Successful++
		results[name] = res
	}

	var g errgroup.Group
	g.SetLimit(ex.workers)

	for name, conn := range ex.manager.connections {
		g.Go(func() error {
			if conn.err != nil {
				slog.ErrorContext(ctx, locale.L.Logs.SkippingProfileError, "profile", name, "error", conn.err)
				record(name, nil, conn.err)
				return nil
			}

			if cacheable {
				if res, ok := ex.cache.Get(ctx, name, query); ok {
					slog.InfoContext(ctx, locale.L.Logs.CacheHit, "profile", name)
					record(name, res, nil)
					return nil
				}
			}

			slog.InfoContext(ctx, locale.L.Logs.RunningQueryOnProfile, "profile", name)

			res, err := conn.ExecuteQuery(ctx, query)
			if err != nil {
				slog.ErrorContext(ctx, locale.L.Logs.ErrorRunningQueryOnProfile, "profile", name, "error", err)
				record(name, nil, err)
				return nil
			}

			slog.InfoContext(ctx, locale.L.Logs.QuerySuccessfulOnProfile,
				"profile", name,
				"rows", res.RowCount,
				"duration", res.Duration,
			)
			if cacheable {
				ex.cache.Set(ctx, name, query, res)
			}
			record(name, res, nil)
			return nil
		})
	}
	_ = g.Wait()

	slog.InfoContext(ctx, summary.String())

	return results, summary
}

// CheckAll checks every loaded profile in parallel.
func (ex *Executor) CheckAll(ctx context.Context, maxAttempts uint8) *Summary {
	var mu sync.Mutex
	summary := &Summary{Errors: make(map[string]error)}

	var g errgroup.Group
	g.SetLimit(ex.workers)

	for name, conn := range ex.manager.connections {
		g.Go(func() error {
			err := conn.Check(ctx, maxAttempts)

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				summary.Failed++
				summary.Errors[name] = err
			} else {
				summary.Successful++
			}
			return nil
		})
	}
	_ = g.Wait()

	return summary
}
