package inventory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	pkgerrors "github.com/angelmondragon/bazaar-backend/pkg/errors"
)

type conflictCounter struct {
	outcomes []string
}

func (c *conflictCounter) IncStockConflict(outcome string) {
	c.outcomes = append(c.outcomes, outcome)
}

var errBusy = errors.New("database is locked")

func TestRetrierRecoversFromTransientConflict(t *testing.T) {
	counter := &conflictCounter{}
	r := NewRetrier(3, time.Millisecond, counter)

	calls := 0
	err := r.Run(context.Background(), func(context.Context) error {
		calls++
		if calls < 3 {
			return errBusy
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, calls)
	assert.Equal(t, []string{"retried", "retried"}, counter.outcomes)
}

func TestRetrierSurfacesRetryableConflictWhenExhausted(t *testing.T) {
	counter := &conflictCounter{}
	r := NewRetrier(2, time.Millisecond, counter)

	calls := 0
	err := r.Run(context.Background(), func(context.Context) error {
		calls++
		return errBusy
	})
	require.Error(t, err)
	assert.Equal(t, 3, calls)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeRetryableConflict))
	assert.True(t, pkgerrors.MetadataFor(pkgerrors.CodeRetryableConflict).Retryable)
	assert.Equal(t, "exhausted", counter.outcomes[len(counter.outcomes)-1])
}

func TestRetrierDoesNotRetryDomainErrors(t *testing.T) {
	r := NewRetrier(5, time.Millisecond, nil)

	calls := 0
	want := pkgerrors.New(pkgerrors.CodeInsufficientStock, "insufficient stock")
	err := r.Run(context.Background(), func(context.Context) error {
		calls++
		return want
	})
	assert.Equal(t, 1, calls)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeInsufficientStock))
}
