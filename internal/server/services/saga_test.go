package services

import (
	"context"
	"errors"
	"testing"

	"github.com/QKhanh04/innerg-api/internal/logging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSaga(t *testing.T) {
	boom := errors.New("boom")

	tests := []struct {
		name      string
		failAt    int // index of the failing step, -1 for none
		undoFails map[string]bool
		wantLog   []string
		wantErr   []string
	}{
		{
			name:    "all succeed",
			failAt:  -1,
			wantLog: []string{"do a", "do b", "do c"},
		},
		{
			name:    "first fails",
			failAt:  0,
			wantLog: []string{"do a"},
			wantErr: []string{"boom"},
		},
		{
			name:    "last fails undoes in reverse",
			failAt:  2,
			wantLog: []string{"do a", "do b", "do c", "undo b", "undo a"},
			wantErr: []string{"boom"},
		},
		{
			name:      "undo failure is joined",
			failAt:    2,
			undoFails: map[string]bool{"a": true},
			wantLog:   []string{"do a", "do b", "do c", "undo b", "undo a"},
			wantErr:   []string{"boom", "undo a: a undo failed"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var log []string
			mk := func(i int, name string, undo bool) step {
				st := step{
					name: name,
					do: func(context.Context) error {
						log = append(log, "do "+name)
						if i == tt.failAt {
							return boom
						}
						return nil
					},
				}
				if undo {
					st.undo = func(context.Context) error {
						log = append(log, "undo "+name)
						if tt.undoFails[name] {
							return errors.New(name + " undo failed")
						}
						return nil
					}
				}
				return st
			}

			sg := &saga{logger: logging.Nop{}, steps: []step{mk(0, "a", true), mk(1, "b", true), mk(2, "c", true)}}
			err := sg.run(context.Background())

			assert.Equal(t, tt.wantLog, log)
			if len(tt.wantErr) == 0 {
				require.NoError(t, err)
				return
			}
			require.ErrorIs(t, err, boom)
			for _, msg := range tt.wantErr {
				assert.Contains(t, err.Error(), msg)
			}
		})
	}
}

func TestSaga_SkipsMissingUndoAndIgnoresCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	var undone []string
	sg := &saga{logger: logging.Nop{}, steps: []step{
		{name: "a", do: func(context.Context) error { return nil }, undo: func(ctx context.Context) error {
			undone = append(undone, "a")
			return ctx.Err()
		}},
		{name: "b", do: func(context.Context) error { return nil }},
		{name: "c", do: func(context.Context) error {
			cancel()
			return context.Canceled
		}},
	}}

	err := sg.run(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, []string{"a"}, undone)
	assert.NotContains(t, err.Error(), "undo")
}
