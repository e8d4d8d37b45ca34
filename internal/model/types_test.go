package model

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestParsePeriod verifies string-to-period conversion,
// including case normalization and error cases.
func TestParsePeriod(t *testing.T) {
	tests := []struct {
		input    string
		expected Period
		hasError bool
	}{
		{"historical", PeriodHistorical, false},
		{"scenario", PeriodScenario, false},
		{"Scenario", PeriodScenario, false}, // case insensitive
		{"future", "", true},
		{"", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			result, err := ParsePeriod(tt.input)
			if tt.hasError {
				assert.Error(t, err)
			} else {
				require.NoError(t, err)
				assert.Equal(t, tt.expected, result)
			}
		})
	}
}

// TestParseBackend checks that only exec and docker are accepted.
func TestParseBackend(t *testing.T) {
	b, err := ParseBackend("DOCKER")
	require.NoError(t, err)
	assert.Equal(t, BackendDocker, b)

	b, err = ParseBackend("exec")
	require.NoError(t, err)
	assert.Equal(t, BackendExec, b)

	_, err = ParseBackend("slurm")
	assert.Error(t, err)
}

// TestParseParameterFileName covers the label inference from the
// Pars_<model>_500_<sim>.nc naming convention.
func TestParseParameterFileName(t *testing.T) {
	tests := []struct {
		name    string
		path    string
		want    RunLabel
		wantStr string
		wantErr bool
	}{
		{
			name:    "simple model name",
			path:    "Pars_JSBACH_500_a.nc",
			want:    RunLabel{Model: "JSBACH", Sim: "a"},
			wantStr: "JSBACH_a",
		},
		{
			name:    "model name with underscore",
			path:    "input_data/parameters/Pars_JULES_DR_500_b.nc",
			want:    RunLabel{Model: "JULES_DR", Sim: "b"},
			wantStr: "JULES_DR_b",
		},
		{
			name:    "directory is ignored",
			path:    "/data/Pars_500/Pars_ORCHIDEE_500_d.nc",
			want:    RunLabel{Model: "ORCHIDEE", Sim: "d"},
			wantStr: "ORCHIDEE_d",
		},
		{
			name:    "sim code is the last token",
			path:    "Pars_CLASSIC_500_x_c.nc",
			want:    RunLabel{Model: "CLASSIC", Sim: "c"},
			wantStr: "CLASSIC_c",
		},
		{
			name:    "missing 500 marker",
			path:    "Pars_JSBACH_a.nc",
			wantErr: true,
		},
		{
			name:    "wrong prefix",
			path:    "Params_JSBACH_500_a.nc",
			wantErr: true,
		},
		{
			name:    "prefix glued to another word",
			path:    "xPars_JSBACH_500_a.nc",
			wantErr: true,
		},
		{
			name:    "prefix in the middle of the name",
			path:    "/data/old_Pars_X_500_b.nc",
			wantErr: true,
		},
		{
			name:    "empty sim code",
			path:    "Pars_JSBACH_500_.nc",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseParameterFileName(tt.path)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.wantStr, got.String())
		})
	}
}

func TestParseRunLabel(t *testing.T) {
	tests := []struct {
		in      string
		want    RunLabel
		wantErr bool
	}{
		{in: "JSBACH_a", want: RunLabel{Model: "JSBACH", Sim: "a"}},
		{in: "JULES_DR_b", want: RunLabel{Model: "JULES_DR", Sim: "b"}},
		{in: "JSBACH", wantErr: true},
		{in: "_a", wantErr: true},
		{in: "JSBACH_", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseRunLabel(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.in, got.String())
		})
	}
}

// TestValidateVarSpecs checks duplicate and empty declarations.
func TestValidateVarSpecs(t *testing.T) {
	valid := []VarSpec{
		{Name: "D_Tg"},
		{Name: "D_Cfroz", CoreDims: []string{"reg_pf"}},
		{Name: "D_cveg", CoreDims: []string{"reg_land", "bio_land"}},
	}
	require.NoError(t, ValidateVarSpecs(valid))
	assert.True(t, valid[0].IsScalar())
	assert.False(t, valid[1].IsScalar())

	tests := []struct {
		name  string
		specs []VarSpec
	}{
		{"empty name", []VarSpec{{Name: ""}}},
		{"duplicate name", []VarSpec{{Name: "D_Tg"}, {Name: "D_Tg"}}},
		{"empty dim", []VarSpec{{Name: "D_Tg", CoreDims: []string{""}}}},
		{"repeated dim", []VarSpec{{Name: "D_x", CoreDims: []string{"reg", "reg"}}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Error(t, ValidateVarSpecs(tt.specs))
		})
	}
}

// TestCLIError verifies message formatting and unwrapping.
func TestCLIError(t *testing.T) {
	plain := NewCLIError(ExitConfigError, "bad config")
	assert.Equal(t, "bad config", plain.Error())
	assert.Nil(t, plain.Unwrap())

	cause := errors.New("file not found")
	wrapped := WrapCLIError(ExitInputError, "cannot open forcing", cause)
	assert.Equal(t, "cannot open forcing: file not found", wrapped.Error())
	assert.ErrorIs(t, wrapped, cause)

	// errors.As must find the CLIError through additional wrapping layers.
	outer := fmt.Errorf("run failed: %w", wrapped)
	var cliErr *CLIError
	require.True(t, errors.As(outer, &cliErr))
	assert.Equal(t, ExitInputError, cliErr.Code)
}
