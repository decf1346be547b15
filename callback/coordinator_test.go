package callback

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func identityHandler(payload map[string]any) (map[string]any, error) {
	return payload, nil
}

func TestRegisterHandleWaitRoundTrip(t *testing.T) {
	c := New(nil)
	require.NoError(t, c.Register("job-1", identityHandler))
	assert.Equal(t, 1, c.Pending())

	go c.Handle(map[string]any{"id": "job-1", "status": "completed"})

	result, err := c.Wait(context.Background(), "job-1", time.Second)
	require.NoError(t, err)
	assert.Equal(t, "completed", result["status"])
	assert.Zero(t, c.Pending())
}

func TestDuplicateRegistration(t *testing.T) {
	c := New(nil)
	require.NoError(t, c.Register("job-1", identityHandler))
	err := c.Register("job-1", identityHandler)
	assert.ErrorIs(t, err, ErrDuplicateRegistration)
}

func TestWaitTimeout(t *testing.T) {
	c := New(nil)
	require.NoError(t, c.Register("job-1", identityHandler))

	_, err := c.Wait(context.Background(), "job-1", 20*time.Millisecond)
	assert.ErrorIs(t, err, ErrTimeout)
	assert.Zero(t, c.Pending(), "timeout consumes the registration")
}

func TestWaitContextCancellation(t *testing.T) {
	c := New(nil)
	require.NoError(t, c.Register("job-1", identityHandler))

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()

	_, err := c.Wait(ctx, "job-1", time.Second)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestWaitWithoutRegistration(t *testing.T) {
	c := New(nil)
	_, err := c.Wait(context.Background(), "never-registered", time.Second)
	assert.Error(t, err)
}

func TestUnregisterWakesWaiter(t *testing.T) {
	c := New(nil)
	require.NoError(t, c.Register("job-1", identityHandler))

	go func() {
		time.Sleep(10 * time.Millisecond)
		c.Unregister("job-1")
	}()

	_, err := c.Wait(context.Background(), "job-1", time.Second)
	assert.ErrorIs(t, err, ErrCancelled)
}

func TestHandlerErrorWakesWaiterDistinctly(t *testing.T) {
	c := New(nil)
	handlerFailure := errors.New("remote reported failure")
	require.NoError(t, c.Register("job-1", func(payload map[string]any) (map[string]any, error) {
		return nil, handlerFailure
	}))

	go c.Handle(map[string]any{"id": "job-1"})

	_, err := c.Wait(context.Background(), "job-1", time.Second)
	require.Error(t, err)
	var handlerErr *HandlerError
	require.ErrorAs(t, err, &handlerErr)
	assert.Equal(t, "job-1", handlerErr.JobID)
	assert.ErrorIs(t, err, handlerFailure)
}

func TestLateDeliveryIsDropped(t *testing.T) {
	c := New(nil)
	require.NoError(t, c.Register("job-1", identityHandler))

	_, err := c.Wait(context.Background(), "job-1", 10*time.Millisecond)
	require.ErrorIs(t, err, ErrTimeout)

	// The delivery after the timeout must be a silent no-op.
	c.Handle(map[string]any{"id": "job-1", "status": "completed"})
	assert.Zero(t, c.Pending())
}

func TestDuplicateDeliveryDispatchesOnce(t *testing.T) {
	c := New(nil)
	calls := 0
	require.NoError(t, c.Register("job-1", func(payload map[string]any) (map[string]any, error) {
		calls++
		return payload, nil
	}))

	c.Handle(map[string]any{"id": "job-1"})
	c.Handle(map[string]any{"id": "job-1"})
	assert.Equal(t, 1, calls)

	result, err := c.Wait(context.Background(), "job-1", time.Second)
	require.NoError(t, err)
	assert.NotNil(t, result)
}

func TestHandleWithoutJobID(t *testing.T) {
	c := New(nil)
	require.NoError(t, c.Register("job-1", identityHandler))

	c.Handle(map[string]any{"status": "completed"})
	assert.Equal(t, 1, c.Pending(), "malformed delivery leaves registrations intact")
}
