package store

import (
	"bytes"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/decode/internal/emitter"
	"github.com/banshee-data/decode/internal/monitoring"
	"github.com/banshee-data/decode/internal/units"
)

// fullSet carries every optional field, NaN fills and a 3D coordinate so a
// round trip exercises the whole schema.
func fullSet(t *testing.T, n int) *emitter.Set {
	t.Helper()
	f := emitter.Fields{
		XYZ:     make([][]float64, n),
		Phot:    make([]float64, n),
		FrameIx: make([]int64, n),
		ID:      make([]int64, n),
		Prob:    make([]float64, n),
		Bg:      make([]float64, n),
		Color:   make([]int64, n),
		XYZSig:  make([][]float64, n),
		PhotSig: make([]float64, n),
		BgSig:   make([]float64, n),
		XYZCr:   make([][]float64, n),
		PhotCr:  make([]float64, n),
		BgCr:    make([]float64, n),
	}
	for i := 0; i < n; i++ {
		x := float64(i)
		f.XYZ[i] = []float64{x / 3, x * 1.1, -x / 7}
		f.Phot[i] = 1000 + x/9
		f.FrameIx[i] = int64(i % 5)
		f.ID[i] = int64(i)
		f.Prob[i] = 1 / (x + 1)
		f.Bg[i] = math.Pi * x
		f.Color[i] = int64(i % 3)
		f.XYZSig[i] = []float64{0.1 * x, 0.2 * x, 0.3 * x}
		f.PhotSig[i] = math.Sqrt(x)
		f.BgSig[i] = 0.5
		f.XYZCr[i] = []float64{0.01 * x, 0.02 * x, 0.03 * x}
		f.PhotCr[i] = x
		f.BgCr[i] = 0.25
	}
	if n > 1 {
		f.Bg[1] = math.NaN()
	}
	s, err := emitter.New(f, emitter.WithXYUnit(units.Px), emitter.WithPxSize(100, 120.5))
	require.NoError(t, err)
	return s
}

func TestRoundTrip(t *testing.T) {
	original := monitoring.Logf
	defer func() { monitoring.Logf = original }()
	monitoring.SetLogger(nil)

	sets := map[string]*emitter.Set{
		"full":  fullSet(t, 25),
		"empty": fullSet(t, 0),
	}
	factory, err := emitter.Factory(40, emitter.Fields{})
	require.NoError(t, err)
	sets["no meta"] = factory

	files := []struct {
		name string
		opts []SaveOption
	}{
		{"set.emb", nil},
		{"set_lz4.emb", []SaveOption{WithCompression(CompressionLZ4)}},
		{"set_zstd.emb", []SaveOption{WithCompression(CompressionZSTD)}},
		{"set.sqlite", nil},
		{"set.db", nil},
		{"set.csv", nil},
	}

	for setName, s := range sets {
		for _, f := range files {
			t.Run(setName+"/"+f.name, func(t *testing.T) {
				path := filepath.Join(t.TempDir(), f.name)
				require.NoError(t, Save(path, s, f.opts...))
				got, err := Load(path)
				require.NoError(t, err)
				assert.True(t, s.Equal(got), "round trip mismatch:\nwant %v\ngot  %v", s, got)
				assert.Equal(t, s.UsedFields(), got.UsedFields())
			})
		}
	}
}

func TestSaveOverwrites(t *testing.T) {
	path := filepath.Join(t.TempDir(), "set.sqlite")
	require.NoError(t, Save(path, fullSet(t, 10)))
	small := fullSet(t, 3)
	require.NoError(t, Save(path, small))
	got, err := Load(path)
	require.NoError(t, err)
	assert.True(t, small.Equal(got))
}

func TestUnknownExtension(t *testing.T) {
	err := Save(filepath.Join(t.TempDir(), "set.h5"), fullSet(t, 1))
	assert.ErrorIs(t, err, emitter.ErrNotSupported)
	_, err = Load("set.pt")
	assert.ErrorIs(t, err, emitter.ErrNotSupported)
}

func TestLoadFrames(t *testing.T) {
	s := fullSet(t, 40)
	path := filepath.Join(t.TempDir(), "set.sqlite")
	require.NoError(t, SaveTabular(path, s))

	for _, r := range [][2]int64{{0, 5}, {1, 3}, {2, 3}, {7, 9}, {-3, 1}} {
		got, err := LoadFrames(path, r[0], r[1])
		require.NoError(t, err)
		assert.True(t, s.SubsetFrame(r[0], r[1]).Equal(got), "frames [%d, %d)", r[0], r[1])
	}
}

func TestBinaryCorruption(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteBinary(&buf, fullSet(t, 5), CompressionNone))
	data := buf.Bytes()

	t.Run("checksum", func(t *testing.T) {
		bad := bytes.Clone(data)
		bad[len(bad)-1] ^= 0xff
		_, err := ReadBinary(bytes.NewReader(bad))
		assert.ErrorIs(t, err, ErrFormat)
		assert.Contains(t, err.Error(), "checksum")
	})

	t.Run("magic", func(t *testing.T) {
		bad := bytes.Clone(data)
		bad[0] = 'X'
		_, err := ReadBinary(bytes.NewReader(bad))
		assert.ErrorIs(t, err, ErrFormat)
	})

	t.Run("truncated", func(t *testing.T) {
		_, err := ReadBinary(bytes.NewReader(data[:len(data)-10]))
		assert.ErrorIs(t, err, ErrFormat)
	})
}

func TestCompressionShrinksRepetitiveData(t *testing.T) {
	f := emitter.Fields{
		XYZ:     make([][]float64, 2000),
		Phot:    make([]float64, 2000),
		FrameIx: make([]int64, 2000),
	}
	for i := range f.XYZ {
		f.XYZ[i] = []float64{1, 2, 3}
	}
	s := emitter.MustNew(f)

	var raw, packed bytes.Buffer
	require.NoError(t, WriteBinary(&raw, s, CompressionNone))
	require.NoError(t, WriteBinary(&packed, s, CompressionZSTD))
	assert.Less(t, packed.Len(), raw.Len()/4)

	got, err := ReadBinary(&packed)
	require.NoError(t, err)
	assert.True(t, s.Equal(got))
}

func TestParseCompression(t *testing.T) {
	for in, want := range map[string]Compression{"": CompressionNone, "none": CompressionNone, "lz4": CompressionLZ4, "zstd": CompressionZSTD} {
		got, err := ParseCompression(in)
		require.NoError(t, err)
		assert.Equal(t, want, got)
		assert.NotEmpty(t, got.String())
	}
	_, err := ParseCompression("gzip")
	assert.Error(t, err)
}

func TestLoadCSVWarns(t *testing.T) {
	original := monitoring.Logf
	defer func() { monitoring.Logf = original }()

	var logged []string
	monitoring.SetLogger(func(format string, v ...interface{}) {
		logged = append(logged, format)
	})

	path := filepath.Join(t.TempDir(), "set.csv")
	require.NoError(t, SaveCSV(path, fullSet(t, 2)))
	_, err := LoadCSV(path)
	require.NoError(t, err)
	require.Len(t, logged, 1)
	assert.True(t, strings.HasPrefix(logged[0], "warning: "))
}

func TestReadCSVHandWritten(t *testing.T) {
	in := `# xy_unit: nm
frame_ix,x,y,phot
0,1.5,2.5,100
3.0,4,5,200
`
	s, err := ReadCSV(strings.NewReader(in))
	require.NoError(t, err)
	assert.Equal(t, units.Nm, s.XYUnit())
	assert.Equal(t, []int64{0, 3}, s.FrameIx())
	assert.Equal(t, []int64{-1, -1}, s.ID())
	assert.Equal(t, []emitter.Vec3{{1.5, 2.5, 0}, {4, 5, 0}}, s.XYZ())
}

func TestReadCSVNonIntegralFrame(t *testing.T) {
	in := "frame_ix,x,y,phot\n0.5,1,1,1\n"
	_, err := ReadCSV(strings.NewReader(in))
	assert.ErrorIs(t, err, emitter.ErrValidation)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.sqlite"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}
