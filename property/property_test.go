package property_test

import (
	"io/ioutil"
	"os"
	"path/filepath"
	"testing"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/vcontext"
	"github.com/grailbio/seqtab/property"
	"github.com/grailbio/testutil"
	"github.com/grailbio/testutil/assert"
	"github.com/grailbio/testutil/expect"
	"github.com/stretchr/testify/require"
)

func write(t *testing.T, path, data string) string {
	assert.NoError(t, ioutil.WriteFile(path, []byte(data), 0600))
	return path
}

const catalog = ">S1:5:0\nACGT\n>S1:2:1\nTTTT\n>S2:9:0\nGGGGCA\n"

func TestCompute(t *testing.T) {
	expect.EQ(t, property.Composition.Compute("ACGT"), []string{"4", "0.5000"})
	expect.EQ(t, property.Composition.Compute("ggcA"), []string{"4", "0.7500"})
	expect.EQ(t, property.Composition.Compute(""), []string{"0", "0.0000"})
	expect.EQ(t, property.Complexity.Compute("ACGT"), []string{"1", "2.0000"})
	expect.EQ(t, property.Complexity.Compute("TTTT"), []string{"4", "0.0000"})
	expect.EQ(t, property.Complexity.Compute("AAATtt"), []string{"3", "1.0000"})
}

func TestWrite(t *testing.T) {
	ctx := vcontext.Background()
	dir, cleanup := testutil.TempDir(t, "", "")
	defer cleanup()
	in := write(t, filepath.Join(dir, "catalog.fasta"), catalog)
	comp := filepath.Join(dir, "composition.tsv")
	cplx := filepath.Join(dir, "complexity.tsv")
	require.NoError(t, property.WriteComposition(ctx, in, comp))
	require.NoError(t, property.WriteComplexity(ctx, in, cplx))
	data, err := ioutil.ReadFile(comp)
	require.NoError(t, err)
	require.Equal(t, "id\tlength\tgc_content\nS1:5:0\t4\t0.5000\nS1:2:1\t4\t0.0000\nS2:9:0\t6\t0.8333\n", string(data))

	out := filepath.Join(dir, "properties.tsv")
	require.NoError(t, property.Annotate(ctx, comp, cplx, out))
	header, rows, err := property.Read(ctx, out)
	require.NoError(t, err)
	require.Equal(t, []string{"length", "gc_content", "max_homopolymer", "entropy"}, header)
	require.Equal(t, []property.Row{
		{ID: "S1:5:0", Values: []string{"4", "0.5000", "1", "2.0000"}},
		{ID: "S1:2:1", Values: []string{"4", "0.0000", "4", "0.0000"}},
		{ID: "S2:9:0", Values: []string{"6", "0.8333", "4", "1.2516"}},
	}, rows)
}

func TestWriteEmptyCatalog(t *testing.T) {
	ctx := vcontext.Background()
	dir, cleanup := testutil.TempDir(t, "", "")
	defer cleanup()
	in := write(t, filepath.Join(dir, "catalog.fasta"), "")
	out := filepath.Join(dir, "composition.tsv")
	require.NoError(t, property.WriteComposition(ctx, in, out))
	header, rows, err := property.Read(ctx, out)
	require.NoError(t, err)
	require.Equal(t, []string{"length", "gc_content"}, header)
	require.Empty(t, rows)
}

func TestWriteMalformedCatalog(t *testing.T) {
	ctx := vcontext.Background()
	dir, cleanup := testutil.TempDir(t, "", "")
	defer cleanup()
	in := write(t, filepath.Join(dir, "catalog.fasta"), "ACGT\n")
	out := filepath.Join(dir, "composition.tsv")
	err := property.WriteComposition(ctx, in, out)
	expect.True(t, errors.Is(errors.Invalid, err), "%v", err)
	_, err = os.Stat(out)
	expect.True(t, os.IsNotExist(err))
}

func TestAnnotateOrder(t *testing.T) {
	ctx := vcontext.Background()
	dir, cleanup := testutil.TempDir(t, "", "")
	defer cleanup()
	first := write(t, filepath.Join(dir, "a.tsv"), "id\tgc\na\t0.1\nb\t0.2\n")
	second := write(t, filepath.Join(dir, "b.tsv"), "id\tloops\tmfe\nb\t3\t-1.5\na\t1\t-0.2\n")
	out := filepath.Join(dir, "out.tsv")
	require.NoError(t, property.Annotate(ctx, first, second, out))
	data, err := ioutil.ReadFile(out)
	require.NoError(t, err)
	require.Equal(t, "id\tgc\tloops\tmfe\nb\t0.2\t3\t-1.5\na\t0.1\t1\t-0.2\n", string(data))
}

func TestAnnotateErrors(t *testing.T) {
	ctx := vcontext.Background()
	dir, cleanup := testutil.TempDir(t, "", "")
	defer cleanup()
	for _, test := range []struct {
		name          string
		first, second string
		kind          errors.Kind
	}{
		{"key only in second", "id\tx\na\t1\n", "id\ty\na\t2\nb\t3\n", errors.Integrity},
		{"key only in first", "id\tx\na\t1\nb\t2\n", "id\ty\nb\t3\n", errors.Integrity},
		{"duplicate in first", "id\tx\na\t1\na\t2\n", "id\ty\na\t3\n", errors.Integrity},
		{"duplicate in second", "id\tx\na\t1\n", "id\ty\na\t3\na\t3\n", errors.Integrity},
		{"no sentinel", "key\tx\na\t1\n", "id\ty\na\t3\n", errors.Invalid},
		{"missing header", "", "id\ty\n", errors.Invalid},
		{"short row", "id\tx\tz\na\t1\n", "id\ty\na\t3\n", errors.Invalid},
		{"repeated header", "id\tx\na\t1\n", "id\ty\nid\ty\na\t3\n", errors.Invalid},
	} {
		t.Run(test.name, func(t *testing.T) {
			first := write(t, filepath.Join(dir, "a.tsv"), test.first)
			second := write(t, filepath.Join(dir, "b.tsv"), test.second)
			out := filepath.Join(dir, "out.tsv")
			err := property.Annotate(ctx, first, second, out)
			require.True(t, errors.Is(test.kind, err), "%v", err)
			_, err = os.Stat(out)
			require.True(t, os.IsNotExist(err))
		})
	}
}
