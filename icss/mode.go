package icss

//go:generate go tool go-enum --marshal --nocase --names --mustparse

// Default scoping mode for selectors. Local scopes class names, ids and
// keyframes unless wrapped in :global, global leaves names alone unless
// wrapped in :local, pure works as local and additionally requires every
// selector to contain at least one local class or id.
// ENUM(local, global, pure)
type Mode int
