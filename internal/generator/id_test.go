package generator

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateID(t *testing.T) {
	tests := []struct {
		name    string
		length  int
		wantErr bool
	}{
		{
			name:    "Generate ID with length 7",
			length:  7,
			wantErr: false,
		},
		{
			name:    "Generate ID with length 16",
			length:  16,
			wantErr: false,
		},
		{
			name:    "Generate ID with length 0",
			length:  0,
			wantErr: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := GenerateID(tt.length)

			if (err != nil) != tt.wantErr {
				t.Errorf("GenerateID() error = %v, wantErr %v", err, tt.wantErr)
				return
			}

			if !tt.wantErr {
				if len(got) != tt.length {
					t.Errorf("GenerateID() returned ID with length = %v, want %v", len(got), tt.length)
				}

				for _, c := range got {
					if !strings.ContainsRune(Alphabet, c) {
						t.Errorf("GenerateID() returned %q outside the alphabet", c)
					}
				}

				got2, _ := GenerateID(tt.length)
				if got == got2 && tt.length > 0 {
					t.Errorf("GenerateID() generated the same ID twice: %v", got)
				}
			}
		})
	}
}

func TestValidCode(t *testing.T) {
	tests := []struct {
		code string
		want bool
	}{
		{code: "abc123", want: true},
		{code: "My_Link-1", want: true},
		{code: "", want: false},
		{code: "has space", want: false},
		{code: "slash/inside", want: false},
		{code: "ünïcode", want: false},
		{code: strings.Repeat("a", 32), want: true},
		{code: strings.Repeat("a", 33), want: false},
	}

	for _, tt := range tests {
		t.Run(tt.code, func(t *testing.T) {
			assert.Equal(t, tt.want, ValidCode(tt.code))
		})
	}
}

func TestNew(t *testing.T) {
	g, err := New(StrategyRandom, 7)
	require.NoError(t, err)
	assert.IsType(t, &RandomGenerator{}, g)

	g, err = New("", 7)
	require.NoError(t, err)
	assert.IsType(t, &RandomGenerator{}, g)

	g, err = New(StrategyCounter, 7)
	require.NoError(t, err)
	assert.IsType(t, &CounterGenerator{}, g)

	_, err = New("sequential", 7)
	assert.Error(t, err)

	_, err = New(StrategyRandom, 0)
	assert.Error(t, err)

	_, err = New(StrategyRandom, MaxCodeLength+1)
	assert.Error(t, err)
}

func TestCounterGenerator_Next(t *testing.T) {
	for _, length := range []int{1, 4, 7, 10} {
		g, err := NewCounterGenerator(length)
		require.NoError(t, err)

		seen := make(map[string]struct{})
		for i := 0; i < 50; i++ {
			code, err := g.Next()
			require.NoError(t, err)
			assert.Len(t, code, length)
			assert.True(t, ValidCode(code))
			seen[code] = struct{}{}
		}
		assert.Len(t, seen, 50, "counter codes must not repeat within the span")
	}
}

func TestCounterGenerator_Wraps(t *testing.T) {
	g, err := NewCounterGenerator(1)
	require.NoError(t, err)

	seen := make(map[string]struct{})
	for i := 0; i < 62; i++ {
		code, err := g.Next()
		require.NoError(t, err)
		seen[code] = struct{}{}
	}
	assert.Len(t, seen, 62)

	code, err := g.Next()
	require.NoError(t, err)
	assert.Contains(t, seen, code)
}
