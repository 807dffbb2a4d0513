package math

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

const tolerance = 1e-5

func TestMat4IdentityMul(t *testing.T) {
	m := NewMat4Translation(NewVec3(1, 2, 3))
	assert.Equal(t, m, m.Mul(NewMat4Identity()))
	assert.Equal(t, m, NewMat4Identity().Mul(m))
}

func TestMat4TranslationLayout(t *testing.T) {
	m := NewMat4Translation(NewVec3(0, 0, 10))
	assert.Equal(t, float32(0), m.Data[12])
	assert.Equal(t, float32(0), m.Data[13])
	assert.Equal(t, float32(10), m.Data[14])
	assert.Equal(t, NewVec3(0, 0, 10), m.Translation())

	p := NewVec3(1, 1, 1).Transform(m)
	assert.True(t, p.Compare(NewVec3(1, 1, 11), tolerance))
}

func TestMat4Inverse(t *testing.T) {
	m := NewMat4EulerXYZ(0.3, -0.7, 1.1).Mul(NewMat4Translation(NewVec3(4, -2, 9)))
	inv := m.Inverse()
	assert.True(t, m.Mul(inv).Compare(NewMat4Identity(), tolerance))

	tr := NewMat4Translation(NewVec3(5, 6, 7)).Inverse()
	assert.True(t, tr.Translation().Compare(NewVec3(-5, -6, -7), tolerance))
}

func TestMat4LookAtDefaultIsIdentity(t *testing.T) {
	m := NewMat4LookAt(NewVec3Zero(), NewVec3Forward(), NewVec3Up())
	assert.True(t, m.Compare(NewMat4Identity(), tolerance))
	assert.True(t, m.Forward().Compare(NewVec3Forward(), tolerance))
}

func TestMat4LookAtMovesWorldIntoViewSpace(t *testing.T) {
	eye := NewVec3(0, 0, 5)
	m := NewMat4LookAt(eye, NewVec3Zero(), NewVec3Up())
	// The origin is 5 units in front of the eye, which is -Z in view space.
	p := NewVec3Zero().Transform(m)
	assert.True(t, p.Compare(NewVec3(0, 0, -5), tolerance))
}

func TestMat4Perspective(t *testing.T) {
	m := NewMat4Perspective(DegToRad(90), 1.0, 0.1, 100.0)
	assert.InDelta(t, 1.0, m.Data[0], tolerance)
	assert.InDelta(t, 1.0, m.Data[5], tolerance)
	assert.Equal(t, float32(-1), m.Data[11])
	assert.Equal(t, float32(0), m.Data[15])
}

func TestMat4Transposed(t *testing.T) {
	m := NewMat4Translation(NewVec3(1, 2, 3)).Transposed()
	assert.Equal(t, float32(1), m.Data[3])
	assert.Equal(t, float32(2), m.Data[7])
	assert.Equal(t, float32(3), m.Data[11])
}

func TestVec3Normalize(t *testing.T) {
	v := NewVec3(3, 0, 4).Normalize()
	assert.InDelta(t, 1.0, v.Length(), tolerance)
	assert.Equal(t, NewVec3Zero(), NewVec3Zero().Normalize())
}

func TestClamp(t *testing.T) {
	assert.Equal(t, 5, Clamp(7, 0, 5))
	assert.Equal(t, float32(-1.5), Clamp(float32(-3), -1.5, 1.5))
	assert.Equal(t, uint32(3), Clamp(uint32(3), 1, 4))
}

func TestMat4EulerAxes(t *testing.T) {
	quarter := K_PI / 2
	assert.True(t, NewVec3(0, 1, 0).Transform(NewMat4EulerXYZ(quarter, 0, 0)).Compare(NewVec3(0, 0, 1), tolerance))
	assert.True(t, NewVec3(1, 0, 0).Transform(NewMat4EulerXYZ(0, quarter, 0)).Compare(NewVec3(0, 0, -1), tolerance))
	assert.True(t, NewVec3(1, 0, 0).Transform(NewMat4EulerXYZ(0, 0, quarter)).Compare(NewVec3(0, 1, 0), tolerance))
}
