package neon

import (
	"testing"

	"github.com/stretchr/testify/require"

	"fasterbasic/internal/ast"
	"fasterbasic/internal/sema"
	"fasterbasic/internal/types"
)

func TestLanesPerRegTable(t *testing.T) {
	require.Equal(t, 16, LanesPerReg(types.Byte))
	require.Equal(t, 8, LanesPerReg(types.Short))
	require.Equal(t, 4, LanesPerReg(types.Int32))
	require.Equal(t, 4, LanesPerReg(types.Single))
	require.Equal(t, 2, LanesPerReg(types.Double))
}

func TestPlanForSplitsVectorAndRemainder(t *testing.T) {
	p := PlanFor(10, types.Single, ast.WAKindAdd, KillSwitches{})
	require.False(t, p.Scalar)
	require.Equal(t, 4, p.Lanes)
	require.EqualValues(t, 2, p.VectorTripCount)
	require.EqualValues(t, 2, p.RemainderCount)
}

func TestPlanForFMAFlag(t *testing.T) {
	p := PlanFor(8, types.Double, ast.WAKindFMA, KillSwitches{})
	require.True(t, p.UseFMA)
}

func TestKillSwitchForcesScalar(t *testing.T) {
	p := PlanFor(16, types.Int32, ast.WAKindCopy, KillSwitches{DisableCopy: true})
	require.True(t, p.Scalar)
	require.EqualValues(t, 16, p.RemainderCount)
}

func TestPlanForStringFallsBackToScalar(t *testing.T) {
	p := PlanFor(5, types.String, ast.WAKindCopy, KillSwitches{})
	require.True(t, p.Scalar)
}

func TestIsSIMDEligibleUDT(t *testing.T) {
	vec4 := &sema.UDTInfo{Fields: []sema.FieldInfo{
		{Name: "X", Type: types.Scalar(types.Single)},
		{Name: "Y", Type: types.Scalar(types.Single)},
		{Name: "Z", Type: types.Scalar(types.Single)},
		{Name: "W", Type: types.Scalar(types.Single)},
	}}
	require.True(t, IsSIMDEligibleUDT(vec4))

	mixed := &sema.UDTInfo{Fields: []sema.FieldInfo{
		{Name: "X", Type: types.Scalar(types.Single)},
		{Name: "Name", Type: types.Scalar(types.String)},
	}}
	require.False(t, IsSIMDEligibleUDT(mixed))
}

func TestClassifyReduction(t *testing.T) {
	require.Equal(t, ReductionSum, ClassifyReduction("SUM"))
	require.Equal(t, ReductionDot, ClassifyReduction("DOT"))
	require.Equal(t, ReductionNone, ClassifyReduction("LEN"))
}
