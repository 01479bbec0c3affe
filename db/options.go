package db

// RowOption configures the optional id cache a RepoRow, FileRow, or
// CommitRow consults before falling through to a SQL lookup.
type RowOption func(*rowOpts)

type rowOpts struct {
	cache *IDCache
}

// WithIDCache fronts a row's id lookup with c. A nil c (or omitting the
// option entirely) disables caching — every lookup hits the store.
func WithIDCache(c *IDCache) RowOption {
	return func(o *rowOpts) { o.cache = c }
}

func applyRowOptions(opts []RowOption) rowOpts {
	var o rowOpts
	for _, opt := range opts {
		opt(&o)
	}
	return o
}
