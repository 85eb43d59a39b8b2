package otel

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestParseHeaders(t *testing.T) {
	headers := ParseHeaders(" authorization = Bearer abc ,x-tenant=escrow,broken,=skip,")
	require.Equal(t, map[string]string{
		"authorization": "Bearer abc",
		"x-tenant":      "escrow",
	}, headers)
	require.Empty(t, ParseHeaders(""))
}

func TestInitDisabledIsNoop(t *testing.T) {
	shutdown, err := Init(context.Background(), Config{})
	require.NoError(t, err)
	require.NoError(t, shutdown(context.Background()))
}

func TestInstrumentsRecordOnGlobalProvider(t *testing.T) {
	inst, err := NewInstruments()
	require.NoError(t, err)
	inst.Record(context.Background(), "escrow_list", false, 5*time.Millisecond)
	inst.Record(context.Background(), "escrow_list", true, time.Millisecond)

	var nilInst *Instruments
	nilInst.Record(context.Background(), "escrow_list", false, 0)
	require.NotNil(t, Tracer())
}
