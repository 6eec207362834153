package async

import (
	"testing"

	"github.com/stretchr/testify/require"
)

type captureHandler struct {
	recovered any
}

func (h *captureHandler) HandlePanic(r any) {
	h.recovered = r
}

func TestHandlePanic_CapturesRecoveredValue(t *testing.T) {
	handler := &captureHandler{}

	require.NotPanics(t, func() {
		defer HandlePanic(handler)
		panic("boom")
	})

	require.Equal(t, "boom", handler.recovered)
}

func TestHandlePanic_NoopAndNilPropagate(t *testing.T) {
	require.PanicsWithValue(t, "boom", func() {
		defer HandlePanic(NoopPanicHandler{})
		panic("boom")
	})

	require.PanicsWithValue(t, "boom", func() {
		defer HandlePanic(&NoopPanicHandler{})
		panic("boom")
	})

	require.PanicsWithValue(t, "boom", func() {
		defer HandlePanic(nil)
		panic("boom")
	})
}

func TestHandlePanic_NoPanicIsNoOp(t *testing.T) {
	handler := &captureHandler{}

	require.NotPanics(t, func() {
		defer HandlePanic(handler)
	})

	require.Nil(t, handler.recovered)
}
