package config

import (
	"flag"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// testFlags is a flag set holding every flag of the config schema.
type testFlags struct {
	fs                     *flag.FlagSet
	logHandlerType         *string
	logLevel               *string
	sortBufferBytes        *int
	spillDir               *string
	bloomFalsePositiveRate *float64
	partitions             *int
	address                *string
	input                  *string
	output                 *string
	outputFormat           *string
	serve                  *bool
}

func newTestFlags() *testFlags {
	fs := flag.NewFlagSet("test", flag.ContinueOnError)
	return &testFlags{
		fs:                     fs,
		logHandlerType:         fs.String("log_handler_type", "json", ""),
		logLevel:               fs.String("log_level", "info", ""),
		sortBufferBytes:        fs.Int("sort_buffer_bytes", 1<<20, ""),
		spillDir:               fs.String("spill_dir", "/tmp", ""),
		bloomFalsePositiveRate: fs.Float64("bloom_false_positive_rate", 0.01, ""),
		partitions:             fs.Int("partitions", 1, ""),
		address:                fs.String("address", ":6380", ""),
		input:                  fs.String("input", "-", ""),
		output:                 fs.String("output", "-", ""),
		outputFormat:           fs.String("output_format", "tsv", ""),
		serve:                  fs.Bool("serve", false, ""),
	}
}

func TestConfigDescriptor(t *testing.T) {
	md, err := configDescriptor()
	require.NoError(t, err)
	assert.Equal(t, "pairs.config.Config", string(md.FullName()))

	definedFlags, err := getDefinedFlags(md)
	require.NoError(t, err)
	expected := map[string]struct{}{}
	newTestFlags().fs.VisitAll(func(f *flag.Flag) { expected[f.Name] = struct{}{} })
	assert.Equal(t, expected, definedFlags)
}

func TestApplyConfig(t *testing.T) {
	t.Run("nested values", func(t *testing.T) {
		flags := newTestFlags()
		err := applyConfig(flags.fs, []byte(`
			log { log_level: "debug" }
			sort {
				sort_buffer_bytes: 4096
				bloom_false_positive_rate: 0.5
				partitions: 8
			}
			server { address: "127.0.0.1:7000" }
			cli { serve: true output_format: "binary" }
		`))
		require.NoError(t, err)
		assert.Equal(t, "debug", *flags.logLevel)
		assert.Equal(t, 4096, *flags.sortBufferBytes)
		assert.Equal(t, 0.5, *flags.bloomFalsePositiveRate)
		assert.Equal(t, 8, *flags.partitions)
		assert.Equal(t, "127.0.0.1:7000", *flags.address)
		assert.True(t, *flags.serve)
		assert.Equal(t, "binary", *flags.outputFormat)
		// Fields missing from the file keep their defaults.
		assert.Equal(t, "json", *flags.logHandlerType)
		assert.Equal(t, "/tmp", *flags.spillDir)
	})
	t.Run("zero values are applied", func(t *testing.T) {
		flags := newTestFlags()
		require.NoError(t, applyConfig(flags.fs, []byte(`cli { output_format: "" } sort { partitions: 0 }`)))
		assert.Equal(t, "", *flags.outputFormat)
		assert.Equal(t, 0, *flags.partitions)
	})
	t.Run("command line wins", func(t *testing.T) {
		flags := newTestFlags()
		require.NoError(t, flags.fs.Parse([]string{"-log_level=warn"}))
		require.NoError(t, applyConfig(flags.fs, []byte(`log { log_level: "debug" log_handler_type: "text" }`)))
		assert.Equal(t, "warn", *flags.logLevel)
		assert.Equal(t, "text", *flags.logHandlerType)
	})
	t.Run("empty config", func(t *testing.T) {
		flags := newTestFlags()
		require.NoError(t, applyConfig(flags.fs, nil /*configBytes*/))
		assert.Equal(t, "info", *flags.logLevel)
	})

	for _, testCase := range []struct {
		name   string
		config string
	}{
		{name: "unknown field", config: `log { verbosity: 3 }`},
		{name: "wrong type", config: `sort { sort_buffer_bytes: "many" }`},
		{name: "malformed text", config: `log {`},
	} {
		t.Run(testCase.name, func(t *testing.T) {
			assert.Error(t, applyConfig(newTestFlags().fs, []byte(testCase.config)))
		})
	}
	t.Run("flag not defined", func(t *testing.T) {
		fs := flag.NewFlagSet("partial", flag.ContinueOnError)
		assert.Error(t, applyConfig(fs, []byte(`server { address: ":1" }`)))
	})
}

func TestLoadConfigFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.txtpb")
	require.NoError(t, os.WriteFile(path, []byte(`sort { spill_dir: "/var/spill" }`), 0o644))
	flags := newTestFlags()
	require.NoError(t, loadConfigFile(flags.fs, path))
	assert.Equal(t, "/var/spill", *flags.spillDir)

	err := loadConfigFile(flags.fs, filepath.Join(t.TempDir(), "missing.txtpb"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestCollectUnregisteredFlags(t *testing.T) {
	flags := newTestFlags()
	assert.Empty(t, collectUnregisteredFlags(flags.fs))

	flags.fs.String("config_file", "", "")
	flags.fs.Bool("print_version", false, "")
	flags.fs.Bool("test.v", false, "")
	assert.Empty(t, collectUnregisteredFlags(flags.fs), "Expected skipped flags to be ignored")

	flags.fs.Int("rogue_flag", 0, "")
	errs := collectUnregisteredFlags(flags.fs)
	require.Len(t, errs, 1)
	assert.ErrorContains(t, errs[0], "rogue_flag")
}
