// Package users resolves user display names in batches.
package users

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/graph-gophers/dataloader"

	"redline/api/internal/store"
)

const DefaultWait = 5 * time.Millisecond

type ctxKey string

const loaderKey ctxKey = "userLoader"

// Lookup reads a set of users in one query.
type Lookup interface {
	ListUsersByIDs(ctx context.Context, ids []string) ([]store.User, error)
}

// Directory turns individual name lookups into one batched read per request.
type Directory struct {
	lookup Lookup
	wait   time.Duration
}

func NewDirectory(lookup Lookup, wait time.Duration) *Directory {
	if wait <= 0 {
		wait = DefaultWait
	}
	return &Directory{lookup: lookup, wait: wait}
}

// NewLoader creates a dataloader whose batches hit the lookup once.
// Unknown users resolve to an empty name.
func (d *Directory) NewLoader() *dataloader.Loader {
	batchFn := func(ctx context.Context, keys dataloader.Keys) []*dataloader.Result {
		results := make([]*dataloader.Result, len(keys))
		found, err := d.lookup.ListUsersByIDs(ctx, keys.Keys())
		if err != nil {
			for i := range results {
				results[i] = &dataloader.Result{Error: err}
			}
			return results
		}

		byID := make(map[string]string, len(found))
		for _, u := range found {
			byID[u.ID] = u.DisplayName
		}
		for i, key := range keys {
			results[i] = &dataloader.Result{Data: byID[key.String()]}
		}
		return results
	}
	return dataloader.NewBatchedLoader(batchFn, dataloader.WithWait(d.wait))
}

// Middleware attaches a request-scoped loader so every projection built
// while serving a request shares one name cache.
func (d *Directory) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := context.WithValue(r.Context(), loaderKey, d.NewLoader())
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// LoaderFromContext retrieves the request-scoped loader, if any.
func LoaderFromContext(ctx context.Context) *dataloader.Loader {
	if l, ok := ctx.Value(loaderKey).(*dataloader.Loader); ok {
		return l
	}
	return nil
}

// DisplayNames resolves the given users. Users without a name are left out
// of the result.
func (d *Directory) DisplayNames(ctx context.Context, userIDs []string) (map[string]string, error) {
	names := make(map[string]string, len(userIDs))
	if len(userIDs) == 0 {
		return names, nil
	}
	loader := LoaderFromContext(ctx)
	if loader == nil {
		loader = d.NewLoader()
	}

	results, errs := loader.LoadMany(ctx, dataloader.NewKeysFromStrings(userIDs))()
	for i, err := range errs {
		if err != nil {
			return nil, fmt.Errorf("load user %s: %w", userIDs[i], err)
		}
	}
	for i, result := range results {
		if name, ok := result.(string); ok && name != "" {
			names[userIDs[i]] = name
		}
	}
	return names, nil
}
