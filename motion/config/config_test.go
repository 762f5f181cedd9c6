package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadOverridesOnlyPresentTokens(t *testing.T) {
	doc := []byte(`
xvm: "6000"
xjm: "50000000"
1sa: "1.8"
1po: "true"
ja: "1.5"
rs: "40"
`)
	p, err := NewYAMLProvider(doc)
	require.NoError(t, err)

	s, err := Load(p)
	require.NoError(t, err)

	assert.Equal(t, float32(6000), s.Axis[0].VelocityMax)
	assert.Equal(t, float32(50_000_000), s.Axis[0].JerkMax)
	assert.Equal(t, float32(1.8), s.Motor[0].StepAngle)
	assert.True(t, s.Motor[0].Polarity)
	assert.Equal(t, float32(1.5), s.JunctionAcceleration)
	assert.Equal(t, 40, s.RingSize)

	// Everything left unset keeps Default's value.
	def := Default()
	assert.Equal(t, def.ChordalTolerance, s.ChordalTolerance)
	assert.Equal(t, def.Axis[1].VelocityMax, s.Axis[1].VelocityMax)
}

func TestLoadRejectsMalformedToken(t *testing.T) {
	p, err := NewYAMLProvider([]byte(`xvm: "not-a-number"`))
	require.NoError(t, err)

	_, err = Load(p)
	assert.Error(t, err)
}

func TestYAMLProviderSetRejectsUnknownToken(t *testing.T) {
	p, err := NewYAMLProvider(nil)
	require.NoError(t, err)

	err = p.Set("bogus", "1")
	assert.ErrorAs(t, err, new(ErrUnknownToken))

	err = p.Set("xvm", "6000")
	assert.NoError(t, err)
	v, ok := p.Get("xvm")
	assert.True(t, ok)
	assert.Equal(t, "6000", v)
}

func TestYAMLProviderMarshalRoundTrip(t *testing.T) {
	p, err := NewYAMLProvider(nil)
	require.NoError(t, err)
	require.NoError(t, p.Set("xvm", "6000"))

	doc, err := p.Marshal()
	require.NoError(t, err)

	p2, err := NewYAMLProvider(doc)
	require.NoError(t, err)
	v, ok := p2.Get("xvm")
	assert.True(t, ok)
	assert.Equal(t, "6000", v)
}

func TestKnownToken(t *testing.T) {
	assert.True(t, KnownToken("xvm"))
	assert.True(t, KnownToken("1po"))
	assert.True(t, KnownToken("qt"))
	assert.False(t, KnownToken("xyz"))
	assert.False(t, KnownToken(""))
}
