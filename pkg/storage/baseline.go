package storage

import (
	"context"
	"strconv"
	"strings"

	"github.com/ogulcanaydogan/bandwidth-guardian/pkg/model"
)

// Baselines persists the last observed cumulative usage per window.
type Baselines struct {
	kv KV
}

// NewBaselines creates a baseline store on top of a KV backend.
func NewBaselines(kv KV) *Baselines {
	return &Baselines{kv: kv}
}

// GetBaseline returns the stored value for window. ok is false when nothing has
// been stored yet, which is not an error.
func (b *Baselines) GetBaseline(ctx context.Context, window model.WindowType) (int64, bool, error) {
	key := window.BaselineKey()
	raw, ok, err := b.kv.Get(ctx, key)
	if err != nil {
		return 0, false, &StoreError{Op: "get baseline", Key: key, Err: err}
	}
	if !ok {
		return 0, false, nil
	}

	value, err := strconv.ParseInt(strings.TrimSpace(string(raw)), 10, 64)
	if err != nil {
		return 0, false, &StoreError{Op: "decode baseline", Key: key, Err: err}
	}
	return value, true, nil
}

// SetBaseline unconditionally overwrites the stored value for window.
func (b *Baselines) SetBaseline(ctx context.Context, window model.WindowType, value int64) error {
	key := window.BaselineKey()
	if err := b.kv.Put(ctx, key, []byte(strconv.FormatInt(value, 10))); err != nil {
		return &StoreError{Op: "set baseline", Key: key, Err: err}
	}
	return nil
}

// List returns the baseline of every window, flagging unset ones.
func (b *Baselines) List(ctx context.Context) ([]model.Baseline, error) {
	out := make([]model.Baseline, 0, len(model.Windows))
	for _, w := range model.Windows {
		value, ok, err := b.GetBaseline(ctx, w)
		if err != nil {
			return nil, err
		}
		out = append(out, model.Baseline{Window: w, Value: value, Set: ok})
	}
	return out, nil
}

// Close closes the underlying backend.
func (b *Baselines) Close() error {
	return b.kv.Close()
}
