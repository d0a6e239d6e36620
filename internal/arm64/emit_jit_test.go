package arm64

import (
	"testing"

	"github.com/stretchr/testify/require"

	"fasterbasic/internal/ir"
)

func TestAssembleJITProducesSealableBuffer(t *testing.T) {
	fn := simpleFunc()
	m := &ir.Module{Functions: []*ir.Function{fn}}
	buf, err := AssembleJIT(m)
	require.NoError(t, err)
	defer buf.Close()

	require.NoError(t, buf.Seal())
	ptr, err := buf.EntryPointer()
	require.NoError(t, err)
	require.NotNil(t, ptr)
}

func TestAssembleJITUnresolvedBranchFails(t *testing.T) {
	missing := &ir.Block{Name: "nowhere"}
	entry := &ir.Block{Name: "entry", Instrs: []ir.Instr{
		{Op: ir.OpJump, Target: missing},
	}}
	fn := &ir.Function{Name: "badjump", Blocks: []*ir.Block{entry}, Entry: entry}
	_, err := AssembleJIT(&ir.Module{Functions: []*ir.Function{fn}})
	require.Error(t, err)
}

func TestMovImmEncodingFitsSingleWordForSmallConstants(t *testing.T) {
	w := movzImm(0, 42)
	require.Equal(t, uint32(0xD2800000|(42<<5)), w)
}
