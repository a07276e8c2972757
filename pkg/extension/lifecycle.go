package extension

import "context"

// Lifecycle holds the optional callbacks a plugin module exports. Nil fields
// are skipped.
type Lifecycle struct {
	OnLoad         func(ctx context.Context) error
	OnUnload       func(ctx context.Context) error
	OnEnable       func(ctx context.Context) error
	OnDisable      func(ctx context.Context) error
	OnConfigUpdate func(ctx context.Context, config map[string]interface{}) error
}
