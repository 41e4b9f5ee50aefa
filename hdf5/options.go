package hdf5

import "github.com/robert-malhotra/chunkscan/internal/layout"

// OpenOption configures how a file is read.
type OpenOption func(*openOptions)

type openOptions struct {
	cache layout.CacheConfig
}

func defaultOpenOptions() *openOptions {
	return &openOptions{cache: layout.DefaultCacheConfig()}
}

// WithChunkCache sets the chunk cache given to every chunked dataset.
// Negative sizes are ignored; zero disables caching.
func WithChunkCache(bytes int64, slots int, preemption float64) OpenOption {
	return func(o *openOptions) {
		if bytes < 0 || slots < 0 {
			return
		}
		if preemption < 0 || preemption > 1 {
			preemption = o.cache.Preemption
		}
		o.cache = layout.CacheConfig{Bytes: bytes, Slots: slots, Preemption: preemption}
	}
}
